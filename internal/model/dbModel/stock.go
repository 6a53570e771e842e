package dbModel

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Stock struct {
	Symbol        string          `db:"symbol"`
	Name          string          `db:"name"`
	CurrentPrice  decimal.Decimal `db:"current_price"`
	PreviousPrice decimal.Decimal `db:"previous_price"`
	Category      string          `db:"category"`
	Volatility    float64         `db:"volatility"`
	Volume        int64           `db:"volume"`
	SharesIssued  int64           `db:"shares_issued"`
	BusinessID    pgtype.Text     `db:"business_id"`
	DividendYield float64         `db:"dividend_yield"`
	LastUpdated   time.Time       `db:"last_updated"`
}

type PriceHistory struct {
	Symbol    string          `db:"symbol"`
	Price     decimal.Decimal `db:"price"`
	Volume    int64           `db:"volume"`
	Reason    string          `db:"reason"`
	CreatedAt time.Time       `db:"dt_create"`
}

type BusinessMetrics struct {
	BusinessID    string          `db:"business_id"`
	Revenue       decimal.Decimal `db:"revenue"`
	Profit        decimal.Decimal `db:"profit"`
	EmployeeCount int             `db:"employee_count"`
	LastUpdated   time.Time       `db:"last_updated"`
}
