package marketScheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStocks struct {
	calls int
	panic bool
}

func (s *fakeStocks) Fluctuate(context.Context) int {
	s.calls++
	if s.panic {
		panic("price feed exploded")
	}
	return 1
}

type fakeEngine struct {
	open      bool
	hoursSeen []time.Time
	executed  []model.MarketEventKind
	eventErr  error
}

func (e *fakeEngine) IsMarketOpen() bool { return e.open }

func (e *fakeEngine) ApplyTradingHours(_ context.Context, now time.Time) {
	e.hoursSeen = append(e.hoursSeen, now)
}

func (e *fakeEngine) ImplementedMarketEvents() []model.MarketEventKind {
	return []model.MarketEventKind{model.BullMarket}
}

func (e *fakeEngine) ExecuteMarketEvent(_ context.Context, kind model.MarketEventKind, intensity float64) (model.MarketEventResult, error) {
	if e.eventErr != nil {
		return model.MarketEventResult{}, e.eventErr
	}
	e.executed = append(e.executed, kind)
	return model.MarketEventResult{Kind: kind, Intensity: intensity}, nil
}

type fakePortfolios struct {
	flushes int
	err     error
}

func (p *fakePortfolios) FlushAll(context.Context) error {
	p.flushes++
	return p.err
}

func (p *fakePortfolios) DriftCount() int64 {
	return 0
}

type fakeRepo struct {
	cleanups int
	err      error
}

func (r *fakeRepo) Cleanup(context.Context) error {
	r.cleanups++
	return r.err
}

func (r *fakeRepo) GetStats(context.Context) (map[string]int64, error) {
	return map[string]int64{"stocks": 3}, nil
}

type fakeBroadcaster struct {
	messages []string
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, message string) {
	b.messages = append(b.messages, message)
}

type fixture struct {
	stocks      *fakeStocks
	engine      *fakeEngine
	portfolios  *fakePortfolios
	repo        *fakeRepo
	broadcaster *fakeBroadcaster
	scheduler   *MarketScheduler
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		stocks:      &fakeStocks{},
		engine:      &fakeEngine{open: true},
		portfolios:  &fakePortfolios{},
		repo:        &fakeRepo{},
		broadcaster: &fakeBroadcaster{},
	}
	f.scheduler = New(f.stocks, f.engine, f.portfolios, f.repo, f.broadcaster, utils.NewRandom(1), cfg)
	return f
}

func TestTick_Cadence(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{FluctuationInterval: 5, CleanupEvery: 10, FlushEvery: 4})
	ctx := context.Background()

	for range 20 {
		require.NoError(t, f.scheduler.Tick(ctx))
	}

	assert.Equal(t, int64(20), f.scheduler.Ticks())
	assert.Equal(t, 4, f.stocks.calls)
	assert.Equal(t, 2, f.repo.cleanups)
	assert.Equal(t, 5, f.portfolios.flushes)
	assert.Len(t, f.engine.hoursSeen, 20)
	assert.Empty(t, f.engine.executed)
}

func TestTick_ClosedMarketSkipsPricing(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{FluctuationInterval: 1, EventChance: 1, CleanupEvery: 1, FlushEvery: 1})
	f.engine.open = false

	require.NoError(t, f.scheduler.Tick(context.Background()))
	assert.Zero(t, f.stocks.calls)
	assert.Empty(t, f.engine.executed)
	assert.Equal(t, 1, f.repo.cleanups)
	assert.Equal(t, 1, f.portfolios.flushes)
}

func TestTick_MarketEventBroadcast(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{FluctuationInterval: 1, EventChance: 1, BroadcastNews: true})

	require.NoError(t, f.scheduler.Tick(context.Background()))
	assert.Equal(t, []model.MarketEventKind{model.BullMarket}, f.engine.executed)
	require.Len(t, f.broadcaster.messages, 1)
	assert.Contains(t, f.broadcaster.messages[0], model.BullMarket.Headline())
	assert.Contains(t, f.broadcaster.messages[0], model.BullMarket.Description())
}

func TestTick_NewsDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{EventChance: 1})

	require.NoError(t, f.scheduler.Tick(context.Background()))
	assert.Len(t, f.engine.executed, 1)
	assert.Empty(t, f.broadcaster.messages)
}

func TestTick_FailuresAreJoined(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{FluctuationInterval: 1, EventChance: 1, CleanupEvery: 1, FlushEvery: 1})
	f.stocks.panic = true
	errEvent := errors.New("event failed")
	errFlush := errors.New("flush failed")
	f.engine.eventErr = errEvent
	f.portfolios.err = errFlush

	err := f.scheduler.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errEvent)
	assert.ErrorIs(t, err, errFlush)
	assert.Contains(t, err.Error(), "fluctuate: panic")

	// remaining steps still ran
	assert.Equal(t, 1, f.repo.cleanups)
	assert.Equal(t, 1, f.portfolios.flushes)
}

func TestRun_ReturnsTickError(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{CleanupEvery: 1})
	f.repo.err = errors.New("vacuum failed")

	err := f.scheduler.Run(context.Background())
	assert.ErrorContains(t, err, "cleanup: vacuum failed")
}
