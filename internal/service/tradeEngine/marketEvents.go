package tradeEngine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KotFed0t/stock_market_sim/internal/events"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/service"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/shopspring/decimal"
)

const (
	bullStep   = 0.05
	bearStep   = 0.05
	sectorStep = 0.15
)

type marketEffect struct {
	apply       func(ctx context.Context, kind model.MarketEventKind, intensity float64) []string
	implemented bool
}

var notImplemented = marketEffect{}

// marketEffects must hold an entry for every value of model.MarketEventKinds.
// Kinds without an agreed effect are mapped to notImplemented explicitly.
func (e *TradeEngine) marketEffects() map[model.MarketEventKind]marketEffect {
	return map[model.MarketEventKind]marketEffect{
		model.BullMarket:         {apply: e.bullMarket, implemented: true},
		model.BearMarket:         {apply: e.bearMarket, implemented: true},
		model.SectorBoom:         {apply: e.sectorBoom, implemented: true},
		model.MarketCrash:        notImplemented,
		model.EconomicStimulus:   notImplemented,
		model.InterestRateChange: notImplemented,
	}
}

// ImplementedMarketEvents lists the kinds that have an effect, in declaration order.
func (e *TradeEngine) ImplementedMarketEvents() []model.MarketEventKind {
	res := make([]model.MarketEventKind, 0, len(model.MarketEventKinds))
	for _, kind := range model.MarketEventKinds {
		if e.effects[kind].implemented {
			res = append(res, kind)
		}
	}
	return res
}

func (e *TradeEngine) ExecuteMarketEvent(ctx context.Context, kind model.MarketEventKind, intensity float64) (model.MarketEventResult, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradeEngine.ExecuteMarketEvent"

	slog.Debug("ExecuteMarketEvent start", slog.String("rqID", rqID), slog.String("op", op), slog.String("kind", string(kind)), slog.Float64("intensity", intensity))
	defer func() {
		slog.Debug("ExecuteMarketEvent finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("kind", string(kind)))
	}()

	effect, ok := e.effects[kind]
	if !ok || !effect.implemented {
		return model.MarketEventResult{}, fmt.Errorf("%w: %s", service.ErrEventNotImplemented, kind)
	}
	if intensity <= 0 {
		return model.MarketEventResult{}, service.ErrInvalidAmount
	}

	affected := effect.apply(ctx, kind, intensity)

	e.bus.Publish(ctx, events.MarketEventOccurred, events.MarketEventData{
		Kind:           kind,
		Intensity:      intensity,
		AffectedStocks: affected,
		Description:    kind.Description(),
	})
	slog.Info("market event executed", slog.String("rqID", rqID), slog.String("kind", string(kind)), slog.Float64("intensity", intensity), slog.Int("affected", len(affected)))

	return model.MarketEventResult{Kind: kind, Intensity: intensity, AffectedStocks: affected}, nil
}

func (e *TradeEngine) scale(ctx context.Context, stocks []model.Stock, factor decimal.Decimal, reason string) []string {
	affected := make([]string, 0, len(stocks))
	for _, s := range stocks {
		_, err := e.stocks.AdjustPrice(ctx, s.Symbol, func(cur model.Stock) decimal.Decimal {
			return cur.CurrentPrice.Mul(factor)
		}, reason)
		if err != nil {
			slog.Warn("market event skipped stock", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("symbol", s.Symbol), slog.String("err", err.Error()))
			continue
		}
		affected = append(affected, s.Symbol)
	}
	return affected
}

func (e *TradeEngine) bullMarket(ctx context.Context, kind model.MarketEventKind, intensity float64) []string {
	factor := decimal.NewFromFloat(1 + bullStep*intensity)
	return e.scale(ctx, e.stocks.All(), factor, kind.Reason())
}

// bearMarket relies on AdjustPrice flooring the result at model.MinPrice.
func (e *TradeEngine) bearMarket(ctx context.Context, kind model.MarketEventKind, intensity float64) []string {
	factor := decimal.NewFromFloat(1 - bearStep*intensity)
	return e.scale(ctx, e.stocks.All(), factor, kind.Reason())
}

func (e *TradeEngine) sectorBoom(ctx context.Context, kind model.MarketEventKind, intensity float64) []string {
	categories := e.stocks.Categories()
	if len(categories) == 0 {
		return []string{}
	}
	category := categories[e.rnd.Intn(len(categories))]
	factor := decimal.NewFromFloat(1 + sectorStep*intensity)

	slog.Info("sector boom", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("category", string(category)))
	return e.scale(ctx, e.stocks.ByCategory(category), factor, kind.Reason())
}
