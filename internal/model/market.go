package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BusinessMetrics struct {
	BusinessID    string
	Revenue       decimal.Decimal
	Profit        decimal.Decimal
	EmployeeCount int
	LastUpdated   time.Time
}

// ProfitMargin is profit/revenue, 0 when revenue is 0.
func (m BusinessMetrics) ProfitMargin() decimal.Decimal {
	if m.Revenue.IsZero() {
		return decimal.Zero
	}
	return m.Profit.Div(m.Revenue)
}

type MarketEventKind string

const (
	BullMarket         MarketEventKind = "BULL_MARKET"
	BearMarket         MarketEventKind = "BEAR_MARKET"
	SectorBoom         MarketEventKind = "SECTOR_BOOM"
	MarketCrash        MarketEventKind = "MARKET_CRASH"
	EconomicStimulus   MarketEventKind = "ECONOMIC_STIMULUS"
	InterestRateChange MarketEventKind = "INTEREST_RATE_CHANGE"
)

// MarketEventKinds lists every declared kind.
var MarketEventKinds = []MarketEventKind{
	BullMarket,
	BearMarket,
	SectorBoom,
	MarketCrash,
	EconomicStimulus,
	InterestRateChange,
}

func (k MarketEventKind) Reason() string {
	switch k {
	case BullMarket:
		return "Bull Market"
	case BearMarket:
		return "Bear Market"
	case SectorBoom:
		return "Sector Boom"
	case MarketCrash:
		return "Market Crash"
	case EconomicStimulus:
		return "Economic Stimulus"
	case InterestRateChange:
		return "Interest Rate Change"
	default:
		return string(k)
	}
}

func (k MarketEventKind) Headline() string {
	switch k {
	case BullMarket:
		return "📈 BULL MARKET: All stocks are surging upward!"
	case BearMarket:
		return "📉 BEAR MARKET: Market experiencing widespread decline!"
	case SectorBoom:
		return "🚀 SECTOR BOOM: Specific sector experiencing rapid growth!"
	default:
		return k.Reason()
	}
}

func (k MarketEventKind) Description() string {
	switch k {
	case BullMarket:
		return "Strong economic indicators drive widespread optimism"
	case BearMarket:
		return "Economic uncertainty causes market-wide pessimism"
	case SectorBoom:
		return "Technological breakthrough boosts sector performance"
	case MarketCrash:
		return "Unexpected event triggers rapid market decline"
	case EconomicStimulus:
		return "Government stimulus package boosts market confidence"
	case InterestRateChange:
		return "Central bank adjusts interest rates affecting all sectors"
	default:
		return "Not a valid event"
	}
}

type MarketSnapshot struct {
	Timestamp      time.Time
	TotalMarketCap decimal.Decimal
	TotalVolume    int64
	StockCount     int
	TopGainer      *Stock
	TopLoser       *Stock
	IsOpen         bool
}

type DividendPayout struct {
	Symbol           string
	PerShare         decimal.Decimal
	ShareholderCount int
	TotalPayout      decimal.Decimal
}

type MarketEventResult struct {
	Kind           MarketEventKind
	Intensity      float64
	AffectedStocks []string
}
