package events

import (
	"time"

	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	PriceChanged        Kind = "price.changed"
	TransactionExecuted Kind = "transaction.executed"
	DividendPaid        Kind = "dividend.paid"
	MarketStatusChanged Kind = "market.status_changed"
	StockCreated        Kind = "stock.created"
	MarketEventOccurred Kind = "market.event"
)

type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type PriceChangedData struct {
	Stock    model.Stock     `json:"stock"`
	OldPrice decimal.Decimal `json:"oldPrice"`
	NewPrice decimal.Decimal `json:"newPrice"`
	Reason   string          `json:"reason"`
}

type TransactionData struct {
	Transaction model.Transaction `json:"transaction"`
	Stock       model.Stock       `json:"stock"`
}

type DividendPaidData struct {
	Symbol           string          `json:"symbol"`
	PerShare         decimal.Decimal `json:"perShare"`
	ShareholderCount int             `json:"shareholderCount"`
	TotalPayout      decimal.Decimal `json:"totalPayout"`
}

type MarketStatusData struct {
	IsOpen bool   `json:"isOpen"`
	Reason string `json:"reason"`
}

type StockCreatedData struct {
	Stock   model.Stock `json:"stock"`
	Creator string      `json:"creator"`
}

type MarketEventData struct {
	Kind           model.MarketEventKind `json:"kind"`
	Intensity      float64               `json:"intensity"`
	AffectedStocks []string              `json:"affectedStocks"`
	Description    string                `json:"description"`
}
