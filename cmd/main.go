package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KotFed0t/stock_market_sim/config"
	"github.com/KotFed0t/stock_market_sim/data"
	"github.com/KotFed0t/stock_market_sim/data/cache"
	"github.com/KotFed0t/stock_market_sim/data/repository/memory"
	"github.com/KotFed0t/stock_market_sim/data/repository/postgres"
	"github.com/KotFed0t/stock_market_sim/internal/events"
	"github.com/KotFed0t/stock_market_sim/internal/externalApi/ledgerApi"
	"github.com/KotFed0t/stock_market_sim/internal/reportGenerator/xlsxGenerator"
	"github.com/KotFed0t/stock_market_sim/internal/scheduler"
	"github.com/KotFed0t/stock_market_sim/internal/service/marketScheduler"
	"github.com/KotFed0t/stock_market_sim/internal/service/portfolioStore"
	"github.com/KotFed0t/stock_market_sim/internal/service/stockRegistry"
	"github.com/KotFed0t/stock_market_sim/internal/service/tradeEngine"
	"github.com/KotFed0t/stock_market_sim/internal/service/transactionLog"
	"github.com/KotFed0t/stock_market_sim/internal/tgbot"
	"github.com/KotFed0t/stock_market_sim/internal/transport/telegram"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/shopspring/decimal"
)

type gateway interface {
	stockRegistry.Repository
	portfolioStore.Repository
	transactionLog.Repository
	tradeEngine.Repository
	marketScheduler.Repository
}

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	if err := run(cfg); err != nil {
		slog.Error("stock market stopped with error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = utils.NewCtxWithRqID(ctx)

	var repo gateway
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		repo = memory.New(cfg.Storage.HistoryRetentionDays, cfg.Storage.TransactionsPerUser)
	case config.StorageDriverPostgres:
		pgClient, err := data.NewPostgresClient(cfg)
		if err != nil {
			return err
		}
		defer pgClient.Close()
		repo = postgres.NewPostgres(cfg, pgClient)
	default:
		return errors.New("unknown storage driver " + cfg.Storage.Driver)
	}

	bus := events.NewBus()

	if cfg.Redis.Enabled {
		redisClient, err := data.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		bridge := cache.NewRedisBridge(redisClient, cfg)
		defer bridge.Attach(bus).Unsubscribe()
	}

	rnd := utils.NewTimeSeededRandom()

	registry := stockRegistry.New(repo, bus, rnd)
	transactions := transactionLog.New(repo)
	portfolios := portfolioStore.New(repo, registry, transactions, decimal.NewFromFloat(cfg.Economy.StartingBalance))

	hours, err := tradeEngine.NewTradingHours(cfg.Market.AutoHours, cfg.Market.OpenTime, cfg.Market.CloseTime)
	if err != nil {
		return err
	}

	// a typed nil would defeat the engine's nil check
	var ledger tradeEngine.Ledger
	if cfg.API.LedgerApi.Enabled {
		ledger = ledgerApi.New(cfg)
	}

	engine := tradeEngine.New(registry, portfolios, transactions, repo, ledger, bus, rnd, tradeEngine.Config{
		Fees: tradeEngine.FeeSchedule{
			Percent: decimal.NewFromFloat(cfg.Trading.FeePercent),
			Minimum: decimal.NewFromFloat(cfg.Trading.MinimumFee),
		},
		Hours:     hours,
		StartOpen: cfg.Market.StartOpen,
	})

	if _, err = registry.Load(ctx); err != nil {
		return err
	}
	if _, err = portfolios.Load(ctx); err != nil {
		return err
	}
	if cfg.Market.SeedDefaults {
		if _, err = registry.SeedDefaults(ctx); err != nil {
			return err
		}
	}

	var broadcaster marketScheduler.Broadcaster
	if cfg.Telegram.Enabled {
		tgController := telegram.NewController(
			registry,
			engine,
			portfolios,
			repo,
			xlsxGenerator.New(),
			cfg.Economy.CurrencySymbol,
			cfg.API.LedgerApi.Enabled,
		)

		tgBot, err := tgbot.New(cfg, tgController)
		if err != nil {
			return err
		}

		if cfg.Telegram.NewsChatID != 0 && cfg.Market.BroadcastNews {
			notifier := telegram.NewNotifier(tgBot.Bot(), cfg.Telegram.NewsChatID, cfg.Economy.CurrencySymbol)
			for _, sub := range notifier.Attach(bus) {
				defer sub.Unsubscribe()
			}
			broadcaster = notifier
		}

		tgBot.Start()
		defer tgBot.Stop()
	}

	market := marketScheduler.New(registry, engine, portfolios, repo, broadcaster, rnd, marketScheduler.Config{
		FluctuationInterval: cfg.Market.FluctuationInterval,
		EventChance:         cfg.Market.EventChance,
		CleanupEvery:        cfg.Market.CleanupEvery,
		FlushEvery:          cfg.Market.FlushEvery,
		BroadcastNews:       cfg.Market.BroadcastNews,
	})

	sched, err := scheduler.New()
	if err != nil {
		return err
	}
	if err = sched.NewIntervalJob("market tick", market.Run, cfg.Market.TickInterval, false); err != nil {
		return err
	}
	sched.Start()

	slog.Info("stock market started", slog.Int("stocks", registry.Count()), slog.Int("portfolios", portfolios.Count()))

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt

	if err = sched.Stop(); err != nil {
		slog.Error("scheduler stop error", slog.String("err", err.Error()))
	}

	return portfolios.FlushAll(context.WithoutCancel(ctx))
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
