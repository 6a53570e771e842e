package tradeEngine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KotFed0t/stock_market_sim/data/repository"
	"github.com/KotFed0t/stock_market_sim/internal/events"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/service"
	"github.com/KotFed0t/stock_market_sim/internal/service/portfolioStore"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/shopspring/decimal"
)

const ReasonBusinessPerformance = "Business Performance"

type Stocks interface {
	Get(symbol string) (model.Stock, error)
	All() []model.Stock
	ByCategory(category model.Category) []model.Stock
	ByBusinessID(businessID string) (model.Stock, error)
	Categories() []model.Category
	AdjustPrice(ctx context.Context, symbol string, next func(model.Stock) decimal.Decimal, reason string) (model.Stock, error)
	AddVolume(ctx context.Context, symbol string, qty int) error
}

type Portfolios interface {
	Get(ctx context.Context, userID string) (model.Portfolio, error)
	Update(ctx context.Context, userID string, fn func(p *model.Portfolio) error) (model.Portfolio, error)
	Shareholders(symbol string) map[string]int
}

type Transactions interface {
	Append(ctx context.Context, tx model.Transaction)
	History(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
}

type Repository interface {
	SaveBusinessMetrics(ctx context.Context, metrics model.BusinessMetrics) error
	GetBusinessMetrics(ctx context.Context, businessID string) (model.BusinessMetrics, error)
}

type Publisher interface {
	Publish(ctx context.Context, kind events.Kind, payload any)
}

type Config struct {
	Fees      FeeSchedule
	Hours     TradingHours
	StartOpen bool
}

type TradeEngine struct {
	stocks       Stocks
	portfolios   Portfolios
	transactions Transactions
	repo         Repository
	ledger       Ledger
	bus          Publisher
	rnd          *utils.Random
	now          func() time.Time

	fees  FeeSchedule
	hours TradingHours

	marketOpen atomic.Bool

	hoursMu    sync.Mutex
	lastWindow *bool

	// transfers whose ledger leg failed without a definite answer
	unsettled atomic.Int64

	metricsMu sync.RWMutex
	metrics   map[string]model.BusinessMetrics

	effects map[model.MarketEventKind]marketEffect
}

// New builds the engine. ledger may be nil when no external balance authority is deployed.
func New(
	stocks Stocks,
	portfolios Portfolios,
	transactions Transactions,
	repo Repository,
	ledger Ledger,
	bus Publisher,
	rnd *utils.Random,
	cfg Config,
) *TradeEngine {
	e := &TradeEngine{
		stocks:       stocks,
		portfolios:   portfolios,
		transactions: transactions,
		repo:         repo,
		ledger:       ledger,
		bus:          bus,
		rnd:          rnd,
		now:          time.Now,
		fees:         cfg.Fees,
		hours:        cfg.Hours,
		metrics:      make(map[string]model.BusinessMetrics),
	}
	e.marketOpen.Store(cfg.StartOpen)
	e.effects = e.marketEffects()
	return e
}

func (e *TradeEngine) Fees() FeeSchedule {
	return e.fees
}

func (e *TradeEngine) Quote(symbol string, qty int, side model.TransactionType) (model.Quote, error) {
	if qty <= 0 {
		return model.Quote{}, service.ErrInvalidQuantity
	}
	stock, err := e.stocks.Get(symbol)
	if err != nil {
		return model.Quote{}, err
	}

	cost := model.RoundMoney(stock.CurrentPrice.Mul(decimal.NewFromInt(int64(qty))))
	fee := e.fees.Fee(cost)

	q := model.Quote{
		Symbol:        stock.Symbol,
		Side:          side,
		Quantity:      qty,
		PricePerShare: stock.CurrentPrice,
		Cost:          cost,
		Fee:           fee,
	}
	switch side {
	case model.TransactionBuy:
		q.Total = cost.Add(fee)
	case model.TransactionSell:
		q.Total = cost.Sub(fee)
	default:
		return model.Quote{}, service.ErrInvalidQuantity
	}
	return q, nil
}

// Buy prices the order at the current price and settles it atomically for the user.
func (e *TradeEngine) Buy(ctx context.Context, userID, symbol string, qty int) (model.Transaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradeEngine.Buy"

	slog.Debug("Buy start", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID), slog.String("symbol", symbol), slog.Int("qty", qty))
	defer func() {
		slog.Debug("Buy finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID), slog.String("symbol", symbol))
	}()

	if !e.IsMarketOpen() {
		return model.Transaction{}, service.ErrMarketClosed
	}
	if qty <= 0 {
		return model.Transaction{}, service.ErrInvalidQuantity
	}
	stock, err := e.stocks.Get(symbol)
	if err != nil {
		return model.Transaction{}, err
	}

	price := stock.CurrentPrice
	cost := model.RoundMoney(price.Mul(decimal.NewFromInt(int64(qty))))
	fee := e.fees.Fee(cost)

	_, err = e.portfolios.Update(ctx, userID, func(p *model.Portfolio) error {
		if err := portfolioStore.Debit(p, cost.Add(fee)); err != nil {
			return err
		}
		if err := portfolioStore.AddShares(p, stock.Symbol, qty, cost); err != nil {
			return err
		}
		p.TotalInvested = p.TotalInvested.Add(cost)
		return nil
	})
	if err != nil {
		slog.Info("buy rejected", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID), slog.String("err", err.Error()))
		return model.Transaction{}, err
	}

	tx := model.NewTransaction(userID, stock.Symbol, model.TransactionBuy, qty, price, cost, fee, e.now())
	e.settled(ctx, tx, stock)
	return tx, nil
}

// Sell credits gross proceeds minus the fee after removing the shares.
func (e *TradeEngine) Sell(ctx context.Context, userID, symbol string, qty int) (model.Transaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradeEngine.Sell"

	slog.Debug("Sell start", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID), slog.String("symbol", symbol), slog.Int("qty", qty))
	defer func() {
		slog.Debug("Sell finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID), slog.String("symbol", symbol))
	}()

	if !e.IsMarketOpen() {
		return model.Transaction{}, service.ErrMarketClosed
	}
	if qty <= 0 {
		return model.Transaction{}, service.ErrInvalidQuantity
	}
	stock, err := e.stocks.Get(symbol)
	if err != nil {
		return model.Transaction{}, err
	}

	price := stock.CurrentPrice
	proceeds := model.RoundMoney(price.Mul(decimal.NewFromInt(int64(qty))))
	fee := e.fees.Fee(proceeds)
	net := proceeds.Sub(fee)

	_, err = e.portfolios.Update(ctx, userID, func(p *model.Portfolio) error {
		if _, err := portfolioStore.RemoveShares(p, stock.Symbol, qty); err != nil {
			return err
		}
		switch {
		case net.IsPositive():
			if err := portfolioStore.Credit(p, net); err != nil {
				return err
			}
		case net.IsNegative():
			if err := portfolioStore.Debit(p, net.Neg()); err != nil {
				return err
			}
		}
		p.TotalRealized = p.TotalRealized.Add(net)
		return nil
	})
	if err != nil {
		slog.Info("sell rejected", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID), slog.String("err", err.Error()))
		return model.Transaction{}, err
	}

	tx := model.NewTransaction(userID, stock.Symbol, model.TransactionSell, qty, price, proceeds, fee, e.now())
	e.settled(ctx, tx, stock)
	return tx, nil
}

func (e *TradeEngine) settled(ctx context.Context, tx model.Transaction, stock model.Stock) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	e.transactions.Append(ctx, tx)

	if err := e.stocks.AddVolume(ctx, tx.Symbol, tx.Quantity); err != nil {
		slog.Warn("can't add volume", slog.String("rqID", rqID), slog.String("symbol", tx.Symbol), slog.String("err", err.Error()))
	}
	if s, err := e.stocks.Get(tx.Symbol); err == nil {
		stock = s
	}

	e.bus.Publish(ctx, events.TransactionExecuted, events.TransactionData{Transaction: tx, Stock: stock})
	slog.Info(
		"trade settled",
		slog.String("rqID", rqID),
		slog.String("txID", tx.ID.String()),
		slog.String("type", string(tx.Type)),
		slog.String("userID", tx.UserID),
		slog.String("symbol", tx.Symbol),
		slog.Int("qty", tx.Quantity),
		slog.String("total", tx.TotalAmount.String()),
		slog.String("fee", tx.Fee.String()),
	)
}

var errNoShares = errors.New("no shares left")

// PayDividends credits perShare for every share currently held. Each credit is
// atomic for its user; a failed credit is logged and the rest still run.
func (e *TradeEngine) PayDividends(ctx context.Context, symbol string, perShare decimal.Decimal) (model.DividendPayout, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradeEngine.PayDividends"

	slog.Debug("PayDividends start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("perShare", perShare.String()))
	defer func() {
		slog.Debug("PayDividends finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	stock, err := e.stocks.Get(symbol)
	if err != nil {
		return model.DividendPayout{}, err
	}
	if perShare.IsNegative() {
		return model.DividendPayout{}, service.ErrInvalidAmount
	}

	payout := model.DividendPayout{Symbol: stock.Symbol, PerShare: perShare, TotalPayout: decimal.Zero}

	holders := e.portfolios.Shareholders(stock.Symbol)
	userIDs := make([]string, 0, len(holders))
	for userID := range holders {
		userIDs = append(userIDs, userID)
	}
	slices.Sort(userIDs)

	for _, userID := range userIDs {
		var qty int
		var amount decimal.Decimal

		_, err := e.portfolios.Update(ctx, userID, func(p *model.Portfolio) error {
			qty = p.Holdings[stock.Symbol]
			if qty <= 0 {
				return errNoShares
			}
			amount = model.RoundMoney(perShare.Mul(decimal.NewFromInt(int64(qty))))
			if amount.IsZero() {
				return errNoShares
			}
			return portfolioStore.Credit(p, amount)
		})
		if err != nil {
			if !errors.Is(err, errNoShares) {
				slog.Error("dividend credit failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID), slog.String("err", err.Error()))
			}
			continue
		}

		tx := model.NewTransaction(userID, stock.Symbol, model.TransactionDividend, qty, perShare, amount, decimal.Zero, e.now())
		e.transactions.Append(ctx, tx)

		payout.ShareholderCount++
		payout.TotalPayout = payout.TotalPayout.Add(amount)
	}

	e.bus.Publish(ctx, events.DividendPaid, events.DividendPaidData{
		Symbol:           payout.Symbol,
		PerShare:         payout.PerShare,
		ShareholderCount: payout.ShareholderCount,
		TotalPayout:      payout.TotalPayout,
	})
	slog.Info(
		"dividends paid",
		slog.String("rqID", rqID),
		slog.String("symbol", payout.Symbol),
		slog.Int("shareholders", payout.ShareholderCount),
		slog.String("total", payout.TotalPayout.String()),
	)

	return payout, nil
}

// UpdateBusinessMetrics stores the snapshot and reprices the linked stock.
// service.ErrNotFound is returned when no stock is linked; the metrics are kept anyway.
func (e *TradeEngine) UpdateBusinessMetrics(
	ctx context.Context,
	businessID string,
	revenue, profit decimal.Decimal,
	employeeCount int,
) (model.Stock, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradeEngine.UpdateBusinessMetrics"

	slog.Debug("UpdateBusinessMetrics start", slog.String("rqID", rqID), slog.String("op", op), slog.String("businessID", businessID))
	defer func() {
		slog.Debug("UpdateBusinessMetrics finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("businessID", businessID))
	}()

	if businessID == "" {
		return model.Stock{}, service.ErrNotFound
	}
	if employeeCount < 0 {
		return model.Stock{}, service.ErrInvalidQuantity
	}

	metrics := model.BusinessMetrics{
		BusinessID:    businessID,
		Revenue:       revenue,
		Profit:        profit,
		EmployeeCount: employeeCount,
		LastUpdated:   e.now(),
	}

	e.metricsMu.Lock()
	e.metrics[businessID] = metrics
	e.metricsMu.Unlock()

	if err := e.repo.SaveBusinessMetrics(ctx, metrics); err != nil {
		slog.Error("got error from repo.SaveBusinessMetrics", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	stock, err := e.stocks.ByBusinessID(businessID)
	if err != nil {
		slog.Info("no stock linked to business", slog.String("rqID", rqID), slog.String("op", op), slog.String("businessID", businessID))
		return model.Stock{}, err
	}

	marginFactor := decimal.NewFromInt(1).Add(metrics.ProfitMargin().Mul(decimal.NewFromFloat(0.5)))
	staffFactor := decimal.NewFromInt(1).Add(decimal.NewFromInt(int64(employeeCount)).Mul(decimal.NewFromFloat(0.001)))

	return e.stocks.AdjustPrice(ctx, stock.Symbol, func(s model.Stock) decimal.Decimal {
		return s.CurrentPrice.Mul(marginFactor).Mul(staffFactor)
	}, ReasonBusinessPerformance)
}

func (e *TradeEngine) BusinessMetrics(ctx context.Context, businessID string) (model.BusinessMetrics, error) {
	e.metricsMu.RLock()
	m, ok := e.metrics[businessID]
	e.metricsMu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := e.repo.GetBusinessMetrics(ctx, businessID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.BusinessMetrics{}, service.ErrNotFound
		}
		return model.BusinessMetrics{}, err
	}

	e.metricsMu.Lock()
	e.metrics[businessID] = m
	e.metricsMu.Unlock()
	return m, nil
}

func (e *TradeEngine) IsMarketOpen() bool {
	return e.marketOpen.Load()
}

// SetMarketOpen reports whether the status changed. A change is published.
func (e *TradeEngine) SetMarketOpen(ctx context.Context, open bool, reason string) bool {
	if !e.marketOpen.CompareAndSwap(!open, open) {
		return false
	}

	slog.Info("market status changed", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.Bool("isOpen", open), slog.String("reason", reason))
	e.bus.Publish(ctx, events.MarketStatusChanged, events.MarketStatusData{IsOpen: open, Reason: reason})
	return true
}

// ApplyTradingHours opens or closes the market when now crosses a window
// boundary. Between boundaries a manual override is left alone.
func (e *TradeEngine) ApplyTradingHours(ctx context.Context, now time.Time) {
	if !e.hours.Enabled {
		return
	}

	inWindow := e.hours.Contains(now)

	e.hoursMu.Lock()
	crossed := e.lastWindow == nil || *e.lastWindow != inWindow
	e.lastWindow = &inWindow
	e.hoursMu.Unlock()

	if !crossed {
		return
	}
	if inWindow {
		e.SetMarketOpen(ctx, true, "Trading hours started")
	} else {
		e.SetMarketOpen(ctx, false, "Trading hours ended")
	}
}

func (e *TradeEngine) TransactionHistory(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	return e.transactions.History(ctx, userID, limit)
}
