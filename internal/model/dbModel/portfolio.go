package dbModel

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Portfolio struct {
	UserID        string          `db:"user_id"`
	Balance       decimal.Decimal `db:"balance"`
	TotalInvested decimal.Decimal `db:"total_invested"`
	TotalRealized decimal.Decimal `db:"total_realized"`
	LastUpdated   time.Time       `db:"last_updated"`
}

type Holding struct {
	UserID    string          `db:"user_id"`
	Symbol    string          `db:"symbol"`
	Quantity  int             `db:"quantity"`
	CostBasis decimal.Decimal `db:"cost_basis"`
}

type Transaction struct {
	ID            uuid.UUID       `db:"transaction_id"`
	UserID        string          `db:"user_id"`
	Symbol        string          `db:"symbol"`
	Type          string          `db:"type"`
	Quantity      int             `db:"quantity"`
	PricePerShare decimal.Decimal `db:"price_per_share"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	Fee           decimal.Decimal `db:"fee"`
	CreatedAt     time.Time       `db:"dt_create"`
}
