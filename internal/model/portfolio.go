package model

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

type Portfolio struct {
	UserID        string
	Balance       decimal.Decimal
	Holdings      map[string]int
	CostBasis     map[string]decimal.Decimal // running average-cost book value per held symbol
	TotalInvested decimal.Decimal
	TotalRealized decimal.Decimal
	LastUpdated   time.Time
}

func NewPortfolio(userID string, balance decimal.Decimal, now time.Time) Portfolio {
	return Portfolio{
		UserID:      userID,
		Balance:     balance,
		Holdings:    make(map[string]int),
		CostBasis:   make(map[string]decimal.Decimal),
		LastUpdated: now,
	}
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (p Portfolio) Clone() Portfolio {
	c := p
	c.Holdings = make(map[string]int, len(p.Holdings))
	maps.Copy(c.Holdings, p.Holdings)
	c.CostBasis = make(map[string]decimal.Decimal, len(p.CostBasis))
	maps.Copy(c.CostBasis, p.CostBasis)
	return c
}

func (p Portfolio) TotalShares() int {
	total := 0
	for _, qty := range p.Holdings {
		total += qty
	}
	return total
}

func (p Portfolio) Diversity() int {
	n := 0
	for _, qty := range p.Holdings {
		if qty > 0 {
			n++
		}
	}
	return n
}

func (p Portfolio) Owns(symbol string) bool {
	return p.Holdings[NormalizeSymbol(symbol)] > 0
}

type PortfolioMetrics struct {
	TotalValue    decimal.Decimal
	CashBalance   decimal.Decimal
	TotalInvested decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	TotalPnL      decimal.Decimal
	ROI           float64
	Diversity     int
	TotalShares   int
}

type RankedPortfolio struct {
	UserID     string
	TotalValue decimal.Decimal
}
