package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionBuy      TransactionType = "BUY"
	TransactionSell     TransactionType = "SELL"
	TransactionDividend TransactionType = "DIVIDEND"
)

func (t TransactionType) DisplayName() string {
	switch t {
	case TransactionBuy:
		return "Buy"
	case TransactionSell:
		return "Sell"
	case TransactionDividend:
		return "Dividend"
	default:
		return string(t)
	}
}

type Transaction struct {
	ID            uuid.UUID
	UserID        string
	Symbol        string
	Type          TransactionType
	Quantity      int
	PricePerShare decimal.Decimal
	TotalAmount   decimal.Decimal
	Fee           decimal.Decimal
	Timestamp     time.Time
}

func NewTransaction(userID, symbol string, txType TransactionType, qty int, price, total, fee decimal.Decimal, now time.Time) Transaction {
	return Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		Symbol:        symbol,
		Type:          txType,
		Quantity:      qty,
		PricePerShare: price,
		TotalAmount:   total,
		Fee:           fee,
		Timestamp:     now,
	}
}

// NetAmount is the cash effect magnitude: buys pay the fee on top, sells lose it.
func (t Transaction) NetAmount() decimal.Decimal {
	switch t.Type {
	case TransactionBuy:
		return t.TotalAmount.Add(t.Fee)
	case TransactionSell:
		return t.TotalAmount.Sub(t.Fee)
	default:
		return t.TotalAmount
	}
}

// Quote previews an order at the current price without executing it.
type Quote struct {
	Symbol        string
	Side          TransactionType
	Quantity      int
	PricePerShare decimal.Decimal
	Cost          decimal.Decimal
	Fee           decimal.Decimal
	Total         decimal.Decimal // cash leaving the account for buys, arriving for sells
}
