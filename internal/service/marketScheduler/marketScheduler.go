package marketScheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/utils"
)

const (
	minIntensity = 0.5
	maxIntensity = 2.0
)

type Stocks interface {
	Fluctuate(ctx context.Context) int
}

type Engine interface {
	IsMarketOpen() bool
	ApplyTradingHours(ctx context.Context, now time.Time)
	ImplementedMarketEvents() []model.MarketEventKind
	ExecuteMarketEvent(ctx context.Context, kind model.MarketEventKind, intensity float64) (model.MarketEventResult, error)
}

type Portfolios interface {
	FlushAll(ctx context.Context) error
	DriftCount() int64
}

type Repository interface {
	Cleanup(ctx context.Context) error
	GetStats(ctx context.Context) (map[string]int64, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, message string)
}

type Config struct {
	FluctuationInterval int
	EventChance         float64
	CleanupEvery        int
	FlushEvery          int
	BroadcastNews       bool
}

type MarketScheduler struct {
	stocks      Stocks
	engine      Engine
	portfolios  Portfolios
	repo        Repository
	broadcaster Broadcaster
	rnd         *utils.Random
	cfg         Config
	now         func() time.Time

	ticks atomic.Int64
}

// New builds the driver. broadcaster may be nil.
func New(stocks Stocks, engine Engine, portfolios Portfolios, repo Repository, broadcaster Broadcaster, rnd *utils.Random, cfg Config) *MarketScheduler {
	if cfg.FluctuationInterval <= 0 {
		cfg.FluctuationInterval = 1
	}
	return &MarketScheduler{
		stocks:      stocks,
		engine:      engine,
		portfolios:  portfolios,
		repo:        repo,
		broadcaster: broadcaster,
		rnd:         rnd,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *MarketScheduler) Ticks() int64 {
	return s.ticks.Load()
}

// Run is the job body handed to the periodic scheduler.
func (s *MarketScheduler) Run(ctx context.Context) error {
	return s.Tick(utils.NewCtxWithRqID(ctx))
}

// Tick advances the counter and runs the steps due on it. A failing or
// panicking step does not prevent the remaining steps; all failures are
// joined into the returned error.
func (s *MarketScheduler) Tick(ctx context.Context) error {
	n := s.ticks.Add(1)

	s.engine.ApplyTradingHours(ctx, s.now())
	open := s.engine.IsMarketOpen()

	var errs []error
	if open && n%int64(s.cfg.FluctuationInterval) == 0 {
		errs = append(errs, s.step(ctx, "fluctuate", s.fluctuate))
	}
	if open && s.cfg.EventChance > 0 && s.rnd.Float64() < s.cfg.EventChance {
		errs = append(errs, s.step(ctx, "marketEvent", s.marketEvent))
	}
	if due(n, s.cfg.CleanupEvery) {
		errs = append(errs, s.step(ctx, "cleanup", s.cleanup))
	}
	if due(n, s.cfg.FlushEvery) {
		errs = append(errs, s.step(ctx, "flush", s.portfolios.FlushAll))
	}

	return errors.Join(errs...)
}

func due(n int64, every int) bool {
	return every > 0 && n%int64(every) == 0
}

func (s *MarketScheduler) step(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(
				"Panic recovered in market tick",
				slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
				slog.String("step", name),
				slog.Any("panic", r),
				slog.String("stacktrace", string(debug.Stack())),
			)
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()

	if err = fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (s *MarketScheduler) fluctuate(ctx context.Context) error {
	s.stocks.Fluctuate(ctx)
	return nil
}

func (s *MarketScheduler) marketEvent(ctx context.Context) error {
	kinds := s.engine.ImplementedMarketEvents()
	if len(kinds) == 0 {
		return nil
	}
	kind := kinds[s.rnd.Intn(len(kinds))]
	intensity := s.rnd.Range(minIntensity, maxIntensity)

	if _, err := s.engine.ExecuteMarketEvent(ctx, kind, intensity); err != nil {
		return err
	}

	message := fmt.Sprintf("%s\n%s", kind.Headline(), kind.Description())
	slog.Info("market news", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("kind", string(kind)), slog.Float64("intensity", intensity))
	if s.cfg.BroadcastNews && s.broadcaster != nil {
		s.broadcaster.Broadcast(ctx, message)
	}
	return nil
}

func (s *MarketScheduler) cleanup(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	if err := s.repo.Cleanup(ctx); err != nil {
		return err
	}

	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		slog.Warn("can't get repo stats", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return nil
	}
	attrs := []any{slog.String("rqID", rqID), slog.Int64("holdingsDrift", s.portfolios.DriftCount())}
	for name, count := range stats {
		attrs = append(attrs, slog.Int64(name, count))
	}
	slog.Info("storage cleaned up", attrs...)
	return nil
}
