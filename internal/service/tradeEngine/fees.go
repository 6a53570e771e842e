package tradeEngine

import (
	"fmt"
	"strings"
	"time"

	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type FeeSchedule struct {
	Percent decimal.Decimal
	Minimum decimal.Decimal
}

// Fee is max(value*Percent/100, Minimum) rounded half-up to cents.
func (f FeeSchedule) Fee(value decimal.Decimal) decimal.Decimal {
	fee := value.Mul(f.Percent).Div(hundred)
	if fee.LessThan(f.Minimum) {
		fee = f.Minimum
	}
	return model.RoundMoney(fee)
}

// TradingHours is a daily window given as offsets from midnight.
// A window whose close is before its open wraps past midnight.
type TradingHours struct {
	Enabled bool
	Open    time.Duration
	Close   time.Duration
}

func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func NewTradingHours(enabled bool, open, close string) (TradingHours, error) {
	o, err := ParseClock(open)
	if err != nil {
		return TradingHours{}, err
	}
	c, err := ParseClock(close)
	if err != nil {
		return TradingHours{}, err
	}
	return TradingHours{Enabled: enabled, Open: o, Close: c}, nil
}

func (h TradingHours) Contains(now time.Time) bool {
	offset := time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second

	switch {
	case h.Open == h.Close:
		return true
	case h.Open < h.Close:
		return offset >= h.Open && offset < h.Close
	default:
		return offset >= h.Open || offset < h.Close
	}
}
