package tradeEngine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KotFed0t/stock_market_sim/data/repository/memory"
	"github.com/KotFed0t/stock_market_sim/internal/events"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/service"
	"github.com/KotFed0t/stock_market_sim/internal/service/portfolioStore"
	"github.com/KotFed0t/stock_market_sim/internal/service/stockRegistry"
	"github.com/KotFed0t/stock_market_sim/internal/service/transactionLog"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type harness struct {
	engine       *TradeEngine
	stocks       *stockRegistry.StockRegistry
	portfolios   *portfolioStore.PortfolioStore
	transactions *transactionLog.TransactionLog
	repo         *memory.Memory
	bus          *events.Bus
}

func newHarness(t *testing.T, ledger Ledger, cfg Config) *harness {
	t.Helper()

	repo := memory.New(90, 1000)
	bus := events.NewBus()
	rnd := utils.NewRandom(3)

	stocks := stockRegistry.New(repo, bus, rnd)
	transactions := transactionLog.New(repo)
	portfolios := portfolioStore.New(repo, stocks, transactions, d("10000.00"))

	if cfg.Fees.Percent.IsZero() && cfg.Fees.Minimum.IsZero() {
		cfg.Fees = FeeSchedule{Percent: d("0.1"), Minimum: d("1.00")}
	}

	return &harness{
		engine:       New(stocks, portfolios, transactions, repo, ledger, bus, rnd, cfg),
		stocks:       stocks,
		portfolios:   portfolios,
		transactions: transactions,
		repo:         repo,
		bus:          bus,
	}
}

func openHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, nil, Config{StartOpen: true})
	h.create(t, "TEST", "100.00", model.CategoryTechnology)
	return h
}

func (h *harness) create(t *testing.T, symbol, price string, category model.Category) {
	t.Helper()
	_, err := h.stocks.Create(context.Background(), stockRegistry.CreateParams{
		Symbol:     symbol,
		Name:       symbol,
		Price:      d(price),
		Category:   category,
		Volatility: 0.05,
		Creator:    stockRegistry.SystemCreator,
	})
	require.NoError(t, err)
}

func (h *harness) price(t *testing.T, symbol string) decimal.Decimal {
	t.Helper()
	s, err := h.stocks.Get(symbol)
	require.NoError(t, err)
	return s.CurrentPrice
}

func TestFeeSchedule_Fee(t *testing.T) {
	t.Parallel()

	fees := FeeSchedule{Percent: d("0.1"), Minimum: d("1.00")}

	tests := []struct {
		value string
		want  string
	}{
		{value: "1000", want: "1.00"},
		{value: "500", want: "1.00"},
		{value: "5000", want: "5.00"},
		{value: "12345.67", want: "12.35"},
		{value: "0", want: "1.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fees.Fee(d(tt.value)).StringFixed(2), tt.value)
	}
}

func TestTradeEngine_BuyThenSell(t *testing.T) {
	t.Parallel()

	h := openHarness(t)
	ctx := context.Background()

	var executed []events.TransactionData
	h.bus.Subscribe(events.TransactionExecuted, func(_ context.Context, e events.Event) {
		executed = append(executed, e.Payload.(events.TransactionData))
	})

	tx, err := h.engine.Buy(ctx, "1", "TEST", 10)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionBuy, tx.Type)
	assert.Equal(t, "1000.00", tx.TotalAmount.StringFixed(2))
	assert.Equal(t, "1.00", tx.Fee.StringFixed(2))

	p, err := h.portfolios.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "8999.00", p.Balance.StringFixed(2))
	assert.Equal(t, map[string]int{"TEST": 10}, p.Holdings)
	assert.True(t, d("1000").Equal(p.TotalInvested))

	tx, err = h.engine.Sell(ctx, "1", "TEST", 5)
	require.NoError(t, err)
	assert.Equal(t, "500.00", tx.TotalAmount.StringFixed(2))
	assert.Equal(t, "1.00", tx.Fee.StringFixed(2))

	p, err = h.portfolios.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "9498.00", p.Balance.StringFixed(2))
	assert.Equal(t, map[string]int{"TEST": 5}, p.Holdings)
	assert.True(t, d("499").Equal(p.TotalRealized))
	assert.True(t, d("500").Equal(p.CostBasis["TEST"]))

	history, err := h.engine.TransactionHistory(ctx, "1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.TransactionSell, history[0].Type)

	s, err := h.stocks.Get("TEST")
	require.NoError(t, err)
	assert.Equal(t, int64(15), s.Volume)

	require.Len(t, executed, 2)
	assert.Equal(t, int64(15), executed[1].Stock.Volume)
}

func TestTradeEngine_UpdatePriceThenPercentChange(t *testing.T) {
	t.Parallel()

	h := openHarness(t)
	_, err := h.stocks.UpdatePrice(context.Background(), "TEST", d("50.00"), stockRegistry.ReasonMarket)
	require.NoError(t, err)

	pct, err := h.stocks.PercentChange("TEST")
	require.NoError(t, err)
	assert.InDelta(t, -50.0, pct, 1e-9)
}

func TestTradeEngine_PayDividends(t *testing.T) {
	t.Parallel()

	h := openHarness(t)
	ctx := context.Background()

	_, err := h.engine.Buy(ctx, "1", "TEST", 5)
	require.NoError(t, err)
	before, err := h.portfolios.Balance(ctx, "1")
	require.NoError(t, err)

	var paid []events.DividendPaidData
	h.bus.Subscribe(events.DividendPaid, func(_ context.Context, e events.Event) {
		paid = append(paid, e.Payload.(events.DividendPaidData))
	})

	payout, err := h.engine.PayDividends(ctx, "TEST", d("2.00"))
	require.NoError(t, err)
	assert.Equal(t, 1, payout.ShareholderCount)
	assert.Equal(t, "10.00", payout.TotalPayout.StringFixed(2))

	after, err := h.portfolios.Balance(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "10.00", after.Sub(before).StringFixed(2))

	history, err := h.engine.TransactionHistory(ctx, "1", 0)
	require.NoError(t, err)
	dividends := 0
	for _, tx := range history {
		if tx.Type == model.TransactionDividend {
			dividends++
			assert.Equal(t, 5, tx.Quantity)
			assert.True(t, tx.Fee.IsZero())
			assert.Equal(t, "10.00", tx.TotalAmount.StringFixed(2))
		}
	}
	assert.Equal(t, 1, dividends)

	require.Len(t, paid, 1)
	assert.Equal(t, 1, paid[0].ShareholderCount)
}

func TestTradeEngine_PayDividendsEdgeCases(t *testing.T) {
	t.Parallel()

	h := openHarness(t)
	ctx := context.Background()

	_, err := h.engine.PayDividends(ctx, "NOPE", d("1"))
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = h.engine.PayDividends(ctx, "TEST", d("-1"))
	assert.ErrorIs(t, err, service.ErrInvalidAmount)

	payout, err := h.engine.PayDividends(ctx, "TEST", d("1"))
	require.NoError(t, err)
	assert.Zero(t, payout.ShareholderCount)
	assert.True(t, payout.TotalPayout.IsZero())

	_, err = h.engine.Buy(ctx, "1", "TEST", 1)
	require.NoError(t, err)
	payout, err = h.engine.PayDividends(ctx, "TEST", d("0.001"))
	require.NoError(t, err)
	assert.Zero(t, payout.ShareholderCount)
}

func TestTradeEngine_SellUnheldLeavesPortfolioUnchanged(t *testing.T) {
	t.Parallel()

	h := openHarness(t)
	ctx := context.Background()

	_, err := h.engine.Buy(ctx, "1", "TEST", 3)
	require.NoError(t, err)
	h.create(t, "BANK", "10", model.CategoryFinance)

	before, err := h.portfolios.Get(ctx, "1")
	require.NoError(t, err)

	_, err = h.engine.Sell(ctx, "1", "BANK", 1)
	assert.ErrorIs(t, err, service.ErrInsufficientShares)
	assert.True(t, service.IsRejected(err))

	_, err = h.engine.Sell(ctx, "1", "TEST", 4)
	assert.ErrorIs(t, err, service.ErrInsufficientShares)

	after, err := h.portfolios.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	history, err := h.engine.TransactionHistory(ctx, "1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTradeEngine_Rejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name    string
		call    func(e *TradeEngine) error
		wantErr error
	}{
		{
			name:    "buy zero",
			call:    func(e *TradeEngine) error { _, err := e.Buy(ctx, "1", "TEST", 0); return err },
			wantErr: service.ErrInvalidQuantity,
		},
		{
			name:    "sell negative",
			call:    func(e *TradeEngine) error { _, err := e.Sell(ctx, "1", "TEST", -1); return err },
			wantErr: service.ErrInvalidQuantity,
		},
		{
			name:    "buy unknown",
			call:    func(e *TradeEngine) error { _, err := e.Buy(ctx, "1", "NOPE", 1); return err },
			wantErr: service.ErrNotFound,
		},
		{
			name:    "buy too much",
			call:    func(e *TradeEngine) error { _, err := e.Buy(ctx, "1", "TEST", 100); return err },
			wantErr: service.ErrInsufficientFunds,
		},
		{
			name: "market closed",
			call: func(e *TradeEngine) error {
				e.SetMarketOpen(ctx, false, "test")
				_, err := e.Buy(ctx, "1", "TEST", 1)
				return err
			},
			wantErr: service.ErrMarketClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := openHarness(t)
			err := tt.call(h.engine)
			assert.ErrorIs(t, err, tt.wantErr)

			p, err := h.portfolios.Get(ctx, "1")
			require.NoError(t, err)
			assert.True(t, d("10000").Equal(p.Balance))
			assert.Empty(t, p.Holdings)
		})
	}
}

func TestTradeEngine_SellWithFeeAboveProceeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, Config{StartOpen: true})
	h.create(t, "PENNY", "0.50", model.CategoryCustom)
	ctx := context.Background()

	_, err := h.engine.Buy(ctx, "1", "PENNY", 1)
	require.NoError(t, err)

	_, err = h.engine.Sell(ctx, "1", "PENNY", 1)
	require.NoError(t, err)

	p, err := h.portfolios.Get(ctx, "1")
	require.NoError(t, err)
	// buy 0.50 + 1.00 fee, sell 0.50 - 1.00 fee
	assert.Equal(t, "9998.00", p.Balance.StringFixed(2))
	assert.Equal(t, "-0.50", p.TotalRealized.StringFixed(2))
}

func TestTradeEngine_ConcurrentBuysConserveMoney(t *testing.T) {
	t.Parallel()

	h := openHarness(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 120 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Buy(ctx, "1", "TEST", 1)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, service.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	// each share costs 101.00 with the minimum fee
	assert.Equal(t, 99, succeeded)

	p, err := h.portfolios.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 99, p.Holdings["TEST"])
	assert.Equal(t, "1.00", p.Balance.StringFixed(2))

	history, err := h.engine.TransactionHistory(ctx, "1", 0)
	require.NoError(t, err)
	spent := decimal.Zero
	for _, tx := range history {
		spent = spent.Add(tx.NetAmount())
	}
	assert.True(t, d("10000").Equal(spent.Add(p.Balance)))
}

func TestTradeEngine_Quote(t *testing.T) {
	t.Parallel()

	h := openHarness(t)

	buy, err := h.engine.Quote("test", 10, model.TransactionBuy)
	require.NoError(t, err)
	assert.Equal(t, "TEST", buy.Symbol)
	assert.Equal(t, "1001.00", buy.Total.StringFixed(2))

	sell, err := h.engine.Quote("TEST", 10, model.TransactionSell)
	require.NoError(t, err)
	assert.Equal(t, "999.00", sell.Total.StringFixed(2))

	_, err = h.engine.Quote("TEST", 0, model.TransactionBuy)
	assert.ErrorIs(t, err, service.ErrInvalidQuantity)
	_, err = h.engine.Quote("NOPE", 1, model.TransactionBuy)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestTradeEngine_UpdateBusinessMetrics(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, Config{StartOpen: true})
	ctx := context.Background()
	_, err := h.stocks.CreateBusinessStock(ctx, "BIZ", "Biz", d("100"), "biz-1", 1000, "42")
	require.NoError(t, err)

	s, err := h.engine.UpdateBusinessMetrics(ctx, "biz-1", d("1000"), d("200"), 50)
	require.NoError(t, err)
	// 100 * (1 + 0.2*0.5) * (1 + 50*0.001)
	assert.Equal(t, "115.50", s.CurrentPrice.StringFixed(2))

	history, err := h.stocks.History(ctx, "BIZ", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ReasonBusinessPerformance, history[0].Reason)

	m, err := h.engine.BusinessMetrics(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 50, m.EmployeeCount)

	_, err = h.engine.UpdateBusinessMetrics(ctx, "biz-2", d("10"), d("1"), 1)
	assert.ErrorIs(t, err, service.ErrNotFound)
	stored, err := h.repo.GetBusinessMetrics(ctx, "biz-2")
	require.NoError(t, err)
	assert.True(t, d("10").Equal(stored.Revenue))

	_, err = h.engine.UpdateBusinessMetrics(ctx, "biz-1", d("1"), d("1"), -1)
	assert.ErrorIs(t, err, service.ErrInvalidQuantity)

	_, err = h.engine.BusinessMetrics(ctx, "nobody")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestTradeEngine_BusinessMetricsFromRepository(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, Config{})
	ctx := context.Background()
	require.NoError(t, h.repo.SaveBusinessMetrics(ctx, model.BusinessMetrics{BusinessID: "biz-9", EmployeeCount: 3}))

	m, err := h.engine.BusinessMetrics(ctx, "biz-9")
	require.NoError(t, err)
	assert.Equal(t, 3, m.EmployeeCount)
}

func TestTradeEngine_SetMarketOpenPublishesChangesOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, Config{StartOpen: true})
	ctx := context.Background()

	var statuses []events.MarketStatusData
	h.bus.Subscribe(events.MarketStatusChanged, func(_ context.Context, e events.Event) {
		statuses = append(statuses, e.Payload.(events.MarketStatusData))
	})

	assert.False(t, h.engine.SetMarketOpen(ctx, true, "noop"))
	assert.True(t, h.engine.SetMarketOpen(ctx, false, "maintenance"))
	assert.False(t, h.engine.IsMarketOpen())
	assert.False(t, h.engine.SetMarketOpen(ctx, false, "again"))

	require.Len(t, statuses, 1)
	assert.Equal(t, "maintenance", statuses[0].Reason)
}

func TestTradeEngine_ApplyTradingHours(t *testing.T) {
	t.Parallel()

	hours, err := NewTradingHours(true, "09:00", "17:00")
	require.NoError(t, err)
	h := newHarness(t, nil, Config{Hours: hours, StartOpen: false})
	ctx := context.Background()
	day := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)

	h.engine.ApplyTradingHours(ctx, day.Add(10*time.Hour))
	assert.True(t, h.engine.IsMarketOpen())

	// manual close inside the window is kept until the next boundary
	h.engine.SetMarketOpen(ctx, false, "halt")
	h.engine.ApplyTradingHours(ctx, day.Add(11*time.Hour))
	assert.False(t, h.engine.IsMarketOpen())

	h.engine.SetMarketOpen(ctx, true, "resume")
	h.engine.ApplyTradingHours(ctx, day.Add(18*time.Hour))
	assert.False(t, h.engine.IsMarketOpen())

	h.engine.ApplyTradingHours(ctx, day.Add(33*time.Hour))
	assert.True(t, h.engine.IsMarketOpen())
}

func TestTradeEngine_ApplyTradingHoursDisabled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, Config{StartOpen: true})
	h.engine.ApplyTradingHours(context.Background(), time.Date(2026, 4, 6, 3, 0, 0, 0, time.UTC))
	assert.True(t, h.engine.IsMarketOpen())
}

func TestTradingHours_Contains(t *testing.T) {
	t.Parallel()

	at := func(hour, minute int) time.Time {
		return time.Date(2026, 4, 6, hour, minute, 0, 0, time.UTC)
	}

	day, err := NewTradingHours(true, "09:00", "17:00")
	require.NoError(t, err)
	assert.False(t, day.Contains(at(8, 59)))
	assert.True(t, day.Contains(at(9, 0)))
	assert.True(t, day.Contains(at(16, 59)))
	assert.False(t, day.Contains(at(17, 0)))

	night, err := NewTradingHours(true, "22:00", "02:00")
	require.NoError(t, err)
	assert.True(t, night.Contains(at(23, 0)))
	assert.True(t, night.Contains(at(1, 30)))
	assert.False(t, night.Contains(at(12, 0)))

	always, err := NewTradingHours(true, "00:00", "00:00")
	require.NoError(t, err)
	assert.True(t, always.Contains(at(12, 0)))

	_, err = NewTradingHours(true, "9am", "17:00")
	assert.Error(t, err)
}

func TestTradeEngine_Snapshot(t *testing.T) {
	t.Parallel()

	h := openHarness(t)
	_, err := h.engine.Buy(context.Background(), "1", "TEST", 2)
	require.NoError(t, err)

	snap := h.stocks.Snapshot(h.engine.IsMarketOpen())
	assert.True(t, snap.IsOpen)
	assert.Equal(t, int64(2), snap.TotalVolume)
	assert.Equal(t, 1, snap.StockCount)
}

func TestTradeEngine_RejectionsDoNotPublish(t *testing.T) {
	t.Parallel()

	h := openHarness(t)
	published := 0
	h.bus.SubscribeAll(func(context.Context, events.Event) { published++ })

	_, err := h.engine.Sell(context.Background(), "1", "TEST", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInsufficientShares))
	assert.Zero(t, published)
}
