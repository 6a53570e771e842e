package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/KotFed0t/stock_market_sim/config"
	"github.com/KotFed0t/stock_market_sim/internal/events"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const quoteKeyPrefix = "quote:"

type QuoteSnapshot struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	PreviousPrice decimal.Decimal `json:"previousPrice"`
	PercentChange float64         `json:"percentChange"`
	Volume        int64           `json:"volume"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func NewQuoteSnapshot(s model.Stock) QuoteSnapshot {
	return QuoteSnapshot{
		Symbol:        s.Symbol,
		Name:          s.Name,
		Price:         s.CurrentPrice,
		PreviousPrice: s.PreviousPrice,
		PercentChange: s.PercentChange(),
		Volume:        s.Volume,
		UpdatedAt:     s.LastUpdated,
	}
}

// RedisBridge mirrors engine events to redis: the latest quote of every stock
// under quote:<SYMBOL> and every event as JSON on the events channel.
type RedisBridge struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisBridge(redisClient *redis.Client, cfg *config.Config) *RedisBridge {
	return &RedisBridge{redis: redisClient, cfg: cfg}
}

func quoteKey(symbol string) string {
	return quoteKeyPrefix + model.NormalizeSymbol(symbol)
}

// Attach subscribes the bridge to every event kind on bus.
func (r *RedisBridge) Attach(bus *events.Bus) *events.Subscription {
	return bus.SubscribeAll(r.handle)
}

func (r *RedisBridge) handle(ctx context.Context, e events.Event) {
	switch payload := e.Payload.(type) {
	case events.PriceChangedData:
		_ = r.SetQuotes(ctx, []model.Stock{payload.Stock})
	case events.TransactionData:
		_ = r.SetQuotes(ctx, []model.Stock{payload.Stock})
	case events.StockCreatedData:
		_ = r.SetQuotes(ctx, []model.Stock{payload.Stock})
	}
	_ = r.PublishEvent(ctx, e)
}

func (r *RedisBridge) SetQuotes(ctx context.Context, stocks []model.Stock) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("start SetQuotes", slog.String("rqID", rqID))

	pipe := r.redis.Pipeline()
	for _, stock := range stocks {
		quoteJson, err := json.Marshal(NewQuoteSnapshot(stock))
		if err != nil {
			slog.Error(
				"can't marshall quote in SetQuotes",
				slog.String("rqID", rqID),
				slog.String("err", err.Error()),
				slog.String("symbol", stock.Symbol),
			)
			return errors.New("can't marshall quote")
		}

		pipe.Set(ctx, quoteKey(stock.Symbol), quoteJson, r.cfg.Redis.QuoteExpiration)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("failed on pipe.Exec", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetQuotes completed", slog.String("rqID", rqID))

	return nil
}

func (r *RedisBridge) PublishEvent(ctx context.Context, e events.Event) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	eventJson, err := json.Marshal(e)
	if err != nil {
		slog.Error("can't marshall event", slog.String("rqID", rqID), slog.String("kind", string(e.Kind)), slog.String("err", err.Error()))
		return errors.New("can't marshall event")
	}

	err = r.redis.Publish(ctx, r.cfg.Redis.EventsChannel, eventJson).Err()
	if err != nil {
		slog.Error("failed on redis.Publish", slog.String("rqID", rqID), slog.String("kind", string(e.Kind)), slog.String("err", err.Error()))
		return err
	}
	return nil
}
