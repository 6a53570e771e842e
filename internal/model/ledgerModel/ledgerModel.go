package ledgerModel

import "github.com/shopspring/decimal"

type Balance struct {
	UserID  string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}

type MoveRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Memo   string          `json:"memo"`
}

type MoveResponse struct {
	Success bool            `json:"success"`
	Balance decimal.Decimal `json:"balance"`
	Error   string          `json:"error,omitempty"`
}
