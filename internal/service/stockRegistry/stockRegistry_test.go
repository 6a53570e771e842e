package stockRegistry

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
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type failingRepo struct {
	*memory.Memory
	loadErr    error
	historyErr error
}

func (f *failingRepo) LoadAllStocks(ctx context.Context) ([]model.Stock, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.Memory.LoadAllStocks(ctx)
}

func (f *failingRepo) GetStockHistory(ctx context.Context, symbol string, days int) ([]model.PriceHistoryEntry, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.Memory.GetStockHistory(ctx, symbol, days)
}

func newRegistry(t *testing.T) (*StockRegistry, *memory.Memory, *events.Bus) {
	t.Helper()
	repo := memory.New(90, 1000)
	bus := events.NewBus()
	return New(repo, bus, utils.NewRandom(42)), repo, bus
}

func createTest(t *testing.T, r *StockRegistry, symbol, price string) model.Stock {
	t.Helper()
	s, err := r.Create(context.Background(), CreateParams{
		Symbol:     symbol,
		Name:       symbol + " Inc",
		Price:      d(price),
		Category:   model.CategoryTechnology,
		Volatility: 0.05,
		Creator:    "tester",
	})
	require.NoError(t, err)
	return s
}

func TestStockRegistry_Create(t *testing.T) {
	t.Parallel()

	r, repo, bus := newRegistry(t)
	var created []events.StockCreatedData
	bus.Subscribe(events.StockCreated, func(_ context.Context, e events.Event) {
		created = append(created, e.Payload.(events.StockCreatedData))
	})

	s := createTest(t, r, " test ", "100.004")

	assert.Equal(t, "TEST", s.Symbol)
	assert.True(t, d("100").Equal(s.CurrentPrice))
	assert.True(t, s.PreviousPrice.Equal(s.CurrentPrice))
	assert.Equal(t, model.DefaultSharesIssued, s.SharesIssued)
	assert.True(t, r.Exists("test"))

	stored, err := repo.LoadAllStocks(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "TEST", stored[0].Symbol)

	require.Len(t, created, 1)
	assert.Equal(t, "tester", created[0].Creator)
}

func TestStockRegistry_CreateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  CreateParams
		wantErr error
	}{
		{name: "empty symbol", params: CreateParams{Symbol: "  ", Price: d("1")}, wantErr: service.ErrInvalidSymbol},
		{name: "zero price", params: CreateParams{Symbol: "X", Price: decimal.Zero}, wantErr: service.ErrInvalidPrice},
		{name: "negative price", params: CreateParams{Symbol: "X", Price: d("-5")}, wantErr: service.ErrInvalidPrice},
		{name: "duplicate", params: CreateParams{Symbol: "tech", Price: d("5")}, wantErr: service.ErrAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, _, _ := newRegistry(t)
			createTest(t, r, "TECH", "10")

			_, err := r.Create(context.Background(), tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1, r.Count())
		})
	}
}

func TestStockRegistry_CreateBusinessStock(t *testing.T) {
	t.Parallel()

	r, _, _ := newRegistry(t)
	s, err := r.CreateBusinessStock(context.Background(), "acme", "Acme", d("25"), "biz-1", 0, "42")
	require.NoError(t, err)

	assert.Equal(t, model.CategoryBusiness, s.Category)
	assert.Equal(t, BusinessVolatility, s.Volatility)
	assert.Equal(t, model.DefaultSharesIssued, s.SharesIssued)

	found, err := r.ByBusinessID("biz-1")
	require.NoError(t, err)
	assert.Equal(t, "ACME", found.Symbol)

	_, err = r.ByBusinessID("biz-2")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestStockRegistry_OneStockPerBusiness(t *testing.T) {
	t.Parallel()

	r, repo, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.CreateBusinessStock(ctx, "AAA", "Alpha", d("100"), "biz-1", 1000, "42")
	require.NoError(t, err)

	_, err = r.CreateBusinessStock(ctx, "BBB", "Beta", d("100"), "biz-1", 1000, "43")
	assert.ErrorIs(t, err, service.ErrAlreadyExists)
	assert.False(t, r.Exists("BBB"))
	assert.Equal(t, 1, r.Count())

	stored, err := repo.LoadAllStocks(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	// the symbol is still free for another business
	_, err = r.CreateBusinessStock(ctx, "BBB", "Beta", d("100"), "biz-2", 1000, "43")
	require.NoError(t, err)

	found, err := r.ByBusinessID("biz-2")
	require.NoError(t, err)
	assert.Equal(t, "BBB", found.Symbol)
}

func TestStockRegistry_LoadKeepsBusinessLinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.New(90, 1000)
	for _, s := range []model.Stock{
		{Symbol: "AAA", CurrentPrice: d("10"), Category: model.CategoryBusiness, BusinessID: "biz-1"},
		{Symbol: "BBB", CurrentPrice: d("10"), Category: model.CategoryBusiness, BusinessID: "biz-1"},
	} {
		require.NoError(t, repo.SaveStock(ctx, s))
	}

	r := New(repo, events.NewBus(), utils.NewRandom(1))
	n, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := r.ByBusinessID("biz-1")
	require.NoError(t, err)
	assert.Equal(t, "AAA", found.Symbol)

	_, err = r.CreateBusinessStock(ctx, "CCC", "Gamma", d("5"), "biz-1", 0, "42")
	assert.ErrorIs(t, err, service.ErrAlreadyExists)
}

func TestStockRegistry_UpdatePricePercentChange(t *testing.T) {
	t.Parallel()

	r, repo, bus := newRegistry(t)
	createTest(t, r, "TEST", "100.00")

	var changes []events.PriceChangedData
	bus.Subscribe(events.PriceChanged, func(_ context.Context, e events.Event) {
		changes = append(changes, e.Payload.(events.PriceChangedData))
	})

	s, err := r.UpdatePrice(context.Background(), "TEST", d("50.00"), ReasonMarket)
	require.NoError(t, err)

	assert.True(t, d("100").Equal(s.PreviousPrice))
	assert.True(t, d("50").Equal(s.CurrentPrice))

	pct, err := r.PercentChange("TEST")
	require.NoError(t, err)
	assert.InDelta(t, -50.0, pct, 1e-9)

	change, err := r.PriceChange("TEST")
	require.NoError(t, err)
	assert.True(t, d("-50").Equal(change))

	require.Len(t, changes, 1)
	assert.True(t, d("100").Equal(changes[0].OldPrice))
	assert.Equal(t, ReasonMarket, changes[0].Reason)

	history, err := repo.GetStockHistory(context.Background(), "TEST", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, d("50").Equal(history[0].Price))
	assert.GreaterOrEqual(t, history[0].Volume, int64(1000))
	assert.Less(t, history[0].Volume, int64(100000))
}

func TestStockRegistry_UpdatePriceRejects(t *testing.T) {
	t.Parallel()

	r, _, _ := newRegistry(t)
	createTest(t, r, "TEST", "100")

	_, err := r.UpdatePrice(context.Background(), "TEST", decimal.Zero, ReasonAdmin)
	assert.ErrorIs(t, err, service.ErrInvalidPrice)

	_, err = r.UpdatePrice(context.Background(), "NOPE", d("1"), ReasonAdmin)
	assert.ErrorIs(t, err, service.ErrNotFound)

	s, err := r.Get("TEST")
	require.NoError(t, err)
	assert.True(t, d("100").Equal(s.CurrentPrice))
}

func TestStockRegistry_AdjustPriceFloorsAtMinimum(t *testing.T) {
	t.Parallel()

	r, _, _ := newRegistry(t)
	createTest(t, r, "PENNY", "0.02")

	s, err := r.AdjustPrice(context.Background(), "PENNY", func(s model.Stock) decimal.Decimal {
		return s.CurrentPrice.Mul(d("0.1"))
	}, "Bear Market")
	require.NoError(t, err)
	assert.True(t, model.MinPrice.Equal(s.CurrentPrice))
}

func TestStockRegistry_ConcurrentAdjustmentsAreNotLost(t *testing.T) {
	t.Parallel()

	r, _, _ := newRegistry(t)
	createTest(t, r, "TEST", "100")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.AdjustPrice(context.Background(), "TEST", func(s model.Stock) decimal.Decimal {
				return s.CurrentPrice.Add(d("1"))
			}, ReasonAdmin)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := r.Get("TEST")
	require.NoError(t, err)
	assert.True(t, d("150").Equal(s.CurrentPrice), s.CurrentPrice.String())
}

func TestStockRegistry_FluctuateSkipsBusinessStocks(t *testing.T) {
	t.Parallel()

	r, _, _ := newRegistry(t)
	createTest(t, r, "TECH", "100")
	createTest(t, r, "BANK", "200")
	_, err := r.CreateBusinessStock(context.Background(), "BIZ", "Biz", d("10"), "biz-1", 1000, "42")
	require.NoError(t, err)

	for range 20 {
		assert.Equal(t, 2, r.Fluctuate(context.Background()))
	}

	biz, err := r.Get("BIZ")
	require.NoError(t, err)
	assert.True(t, d("10").Equal(biz.CurrentPrice))

	for _, s := range r.ByCategory(model.CategoryTechnology) {
		assert.True(t, s.CurrentPrice.GreaterThanOrEqual(model.MinPrice))
		assert.True(t, s.CurrentPrice.Equal(s.CurrentPrice.Round(2)))
	}
}

func TestStockRegistry_FluctuateStaysWithinBounds(t *testing.T) {
	t.Parallel()

	r, _, _ := newRegistry(t)
	createTest(t, r, "TECH", "100")

	r.Fluctuate(context.Background())

	s, err := r.Get("TECH")
	require.NoError(t, err)
	// volatility 0.05 plus at most 0.3 * 0.1 of trend
	assert.True(t, s.CurrentPrice.GreaterThanOrEqual(d("91.99")), s.CurrentPrice.String())
	assert.True(t, s.CurrentPrice.LessThanOrEqual(d("108.01")), s.CurrentPrice.String())
}

func TestStockRegistry_LoadAndSeed(t *testing.T) {
	t.Parallel()

	repo := memory.New(90, 1000)
	require.NoError(t, repo.SaveStock(context.Background(), model.Stock{
		Symbol:       "tech",
		Name:         "TechCorp",
		CurrentPrice: d("12"),
		Category:     model.CategoryTechnology,
		Volatility:   5,
	}))

	r := New(repo, events.NewBus(), utils.NewRandom(1))
	n, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s, err := r.Get("TECH")
	require.NoError(t, err)
	assert.Equal(t, model.MaxVolatility, s.Volatility)
	assert.Equal(t, model.DefaultSharesIssued, s.SharesIssued)

	created, err := r.SeedDefaults(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created)

	empty, _, _ := newRegistry(t)
	created, err = empty.SeedDefaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, created)
	for _, s := range empty.All() {
		assert.True(t, s.CurrentPrice.GreaterThanOrEqual(d("10")))
		assert.True(t, s.CurrentPrice.LessThanOrEqual(d("500")))
		assert.GreaterOrEqual(t, s.Volatility, 0.02)
		assert.Less(t, s.Volatility, 0.15)
	}
}

func TestStockRegistry_LoadFailureIsReturned(t *testing.T) {
	t.Parallel()

	repo := &failingRepo{Memory: memory.New(90, 1000), loadErr: errors.New("db down")}
	r := New(repo, events.NewBus(), utils.NewRandom(1))

	_, err := r.Load(context.Background())
	assert.Error(t, err)
	assert.Zero(t, r.Count())
}

func TestStockRegistry_History(t *testing.T) {
	t.Parallel()

	r, _, _ := newRegistry(t)
	createTest(t, r, "TEST", "100")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, price := range []string{"101", "102", "103"} {
		r.now = func() time.Time { return base.Add(time.Duration(i) * 24 * time.Hour) }
		_, err := r.UpdatePrice(context.Background(), "TEST", d(price), ReasonAdmin)
		require.NoError(t, err)
	}

	r.now = func() time.Time { return base.Add(2*24*time.Hour + time.Hour) }
	history, err := r.History(context.Background(), "TEST", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, d("103").Equal(history[0].Price))

	history, err = r.History(context.Background(), "TEST", 7)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, d("103").Equal(history[0].Price))
	assert.True(t, d("101").Equal(history[2].Price))

	_, err = r.History(context.Background(), "NOPE", 7)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestStockRegistry_HistoryFallsBackToRepository(t *testing.T) {
	t.Parallel()

	repo := memory.New(90, 1000)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.SaveStock(ctx, model.Stock{Symbol: "TEST", CurrentPrice: d("10")}))
	require.NoError(t, repo.SaveStockHistory(ctx, "TEST", model.PriceHistoryEntry{Timestamp: now.Add(-2 * time.Hour), Price: d("9")}))
	require.NoError(t, repo.SaveStockHistory(ctx, "TEST", model.PriceHistoryEntry{Timestamp: now.Add(-time.Hour), Price: d("10")}))

	r := New(repo, events.NewBus(), utils.NewRandom(1))
	_, err := r.Load(ctx)
	require.NoError(t, err)

	history, err := r.History(ctx, "TEST", 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, d("10").Equal(history[0].Price))

	broken := &failingRepo{Memory: repo, historyErr: errors.New("db down")}
	r = New(broken, events.NewBus(), utils.NewRandom(1))
	_, err = r.Load(ctx)
	require.NoError(t, err)

	history, err = r.History(ctx, "TEST", 1)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStockRegistry_Queries(t *testing.T) {
	t.Parallel()

	r, _, _ := newRegistry(t)
	createTest(t, r, "TECH", "100")
	createTest(t, r, "BANK", "50")
	_, err := r.Create(context.Background(), CreateParams{Symbol: "HEAL", Name: "HealthCare Plus", Price: d("20"), Category: model.CategoryHealthcare})
	require.NoError(t, err)

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "BANK", all[0].Symbol)
	assert.Equal(t, "TECH", all[2].Symbol)

	assert.Equal(t, []model.Category{model.CategoryHealthcare, model.CategoryTechnology}, r.Categories())
	assert.Len(t, r.ByCategory(model.CategoryTechnology), 2)
	assert.Len(t, r.Search("health"), 1)
	assert.Len(t, r.Search("inc"), 2)

	marketCap, err := r.MarketCap("BANK")
	require.NoError(t, err)
	assert.True(t, d("50000000").Equal(marketCap))

	_, err = r.UpdatePrice(context.Background(), "TECH", d("150"), ReasonAdmin)
	require.NoError(t, err)
	_, err = r.UpdatePrice(context.Background(), "BANK", d("25"), ReasonAdmin)
	require.NoError(t, err)

	assert.Equal(t, "TECH", r.TopPerformers(1)[0].Symbol)
	assert.Equal(t, "BANK", r.WorstPerformers(1)[0].Symbol)
	assert.Len(t, r.TopPerformers(10), 3)

	require.NoError(t, r.AddVolume(context.Background(), "TECH", 7))
	assert.ErrorIs(t, r.AddVolume(context.Background(), "TECH", 0), service.ErrInvalidQuantity)
	assert.ErrorIs(t, r.AddVolume(context.Background(), "NOPE", 1), service.ErrNotFound)

	snap := r.Snapshot(true)
	assert.True(t, snap.IsOpen)
	assert.Equal(t, 3, snap.StockCount)
	assert.Equal(t, int64(7), snap.TotalVolume)
	require.NotNil(t, snap.TopGainer)
	require.NotNil(t, snap.TopLoser)
	assert.Equal(t, "TECH", snap.TopGainer.Symbol)
	assert.Equal(t, "BANK", snap.TopLoser.Symbol)
}
