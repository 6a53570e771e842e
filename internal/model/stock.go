package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultSharesIssued int64 = 1_000_000

var (
	MinPrice      = decimal.RequireFromString("0.01")
	MinVolatility = 0.01
	MaxVolatility = 1.0
)

type Stock struct {
	Symbol        string
	Name          string
	CurrentPrice  decimal.Decimal
	PreviousPrice decimal.Decimal
	Category      Category
	Volatility    float64
	Volume        int64
	SharesIssued  int64
	BusinessID    string
	DividendYield float64
	LastUpdated   time.Time
}

// PercentChange returns the change from the previous price in percent, 0 when
// there is no previous price.
func (s Stock) PercentChange() float64 {
	if s.PreviousPrice.IsZero() {
		return 0
	}
	return s.CurrentPrice.Sub(s.PreviousPrice).
		Div(s.PreviousPrice).
		Mul(decimal.NewFromInt(100)).
		InexactFloat64()
}

func (s Stock) PriceChange() decimal.Decimal {
	return s.CurrentPrice.Sub(s.PreviousPrice)
}

func (s Stock) TrendingUp() bool {
	return s.CurrentPrice.GreaterThan(s.PreviousPrice)
}

func (s Stock) TrendingDown() bool {
	return s.CurrentPrice.LessThan(s.PreviousPrice)
}

func (s Stock) IsBusiness() bool {
	return s.BusinessID != ""
}

func (s Stock) MarketCap() decimal.Decimal {
	return s.CurrentPrice.Mul(decimal.NewFromInt(s.SharesIssued))
}

type PriceHistoryEntry struct {
	Timestamp time.Time
	Price     decimal.Decimal
	Volume    int64
	Reason    string
}

// NormalizeSymbol is the canonical form of a symbol used as a key everywhere.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func ClampVolatility(v float64) float64 {
	if v < MinVolatility {
		return MinVolatility
	}
	if v > MaxVolatility {
		return MaxVolatility
	}
	return v
}

// CostBasisScale matches the precision of the stored cost basis.
const CostBasisScale = 8

// RoundMoney rounds half-up to cents. Amounts in this package are never negative
// at the rounding point, so half-away-from-zero is half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
