package model

import "time"

// Report is everything needed to render a user's workbook.
type Report struct {
	UserID       string
	Portfolio    Portfolio
	Metrics      PortfolioMetrics
	Stocks       []Stock
	Transactions []Transaction
	GeneratedAt  time.Time
}
