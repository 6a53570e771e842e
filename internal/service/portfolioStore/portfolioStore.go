package portfolioStore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/service"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/shopspring/decimal"
)

type Repository interface {
	LoadAllPortfolios(ctx context.Context) ([]model.Portfolio, error)
	SavePortfolio(ctx context.Context, portfolio model.Portfolio) error
}

type StockSource interface {
	Get(symbol string) (model.Stock, error)
}

type TransactionSource interface {
	History(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
}

type entry struct {
	mu        sync.Mutex
	portfolio model.Portfolio

	// persistMu serializes saves of one user; each save takes a fresh snapshot.
	persistMu sync.Mutex
}

func (e *entry) snapshot() model.Portfolio {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.portfolio.Clone()
}

type PortfolioStore struct {
	mu         sync.RWMutex
	portfolios map[string]*entry

	repo            Repository
	stocks          StockSource
	transactions    TransactionSource
	startingBalance decimal.Decimal
	now             func() time.Time

	drift atomic.Int64
}

func New(repo Repository, stocks StockSource, transactions TransactionSource, startingBalance decimal.Decimal) *PortfolioStore {
	return &PortfolioStore{
		portfolios:      make(map[string]*entry),
		repo:            repo,
		stocks:          stocks,
		transactions:    transactions,
		startingBalance: model.RoundMoney(startingBalance),
		now:             time.Now,
	}
}

func (s *PortfolioStore) StartingBalance() decimal.Decimal {
	return s.startingBalance
}

func (s *PortfolioStore) Load(ctx context.Context) (int, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.Load"

	slog.Debug("Load start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("Load finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	portfolios, err := s.repo.LoadAllPortfolios(ctx)
	if err != nil {
		slog.Error("got error from repo.LoadAllPortfolios", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, fmt.Errorf("load portfolios: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := 0
	for _, p := range portfolios {
		if p.UserID == "" {
			continue
		}
		if _, ok := s.portfolios[p.UserID]; ok {
			continue
		}
		p = p.Clone()
		if err := normalize(&p); err != nil {
			slog.Warn("stored portfolio violates invariants, skipped", slog.String("rqID", rqID), slog.String("userID", p.UserID), slog.String("err", err.Error()))
			continue
		}
		s.portfolios[p.UserID] = &entry{portfolio: p}
		loaded++
	}

	slog.Info("portfolios loaded", slog.String("rqID", rqID), slog.Int("count", loaded))
	return loaded, nil
}

// entryFor returns the user's entry, materializing and persisting a fresh
// portfolio with the starting balance on first access.
func (s *PortfolioStore) entryFor(ctx context.Context, userID string) (*entry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, service.ErrNotFound
	}

	s.mu.RLock()
	e, ok := s.portfolios[userID]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}

	s.mu.Lock()
	e, ok = s.portfolios[userID]
	if !ok {
		e = &entry{portfolio: model.NewPortfolio(userID, s.startingBalance, s.now())}
		s.portfolios[userID] = e
	}
	s.mu.Unlock()

	if !ok {
		slog.Info("portfolio created", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("userID", userID))
		s.persist(ctx, e)
	}
	return e, nil
}

func (s *PortfolioStore) entries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*entry, 0, len(s.portfolios))
	for _, e := range s.portfolios {
		res = append(res, e)
	}
	return res
}

func (s *PortfolioStore) persist(ctx context.Context, e *entry) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	p := e.snapshot()
	if err := s.repo.SavePortfolio(ctx, p); err != nil {
		slog.Error(
			"got error from repo.SavePortfolio",
			slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
			slog.String("userID", p.UserID),
			slog.String("err", err.Error()),
		)
	}
}

// Get returns a copy of the user's portfolio.
func (s *PortfolioStore) Get(ctx context.Context, userID string) (model.Portfolio, error) {
	e, err := s.entryFor(ctx, userID)
	if err != nil {
		return model.Portfolio{}, err
	}
	return e.snapshot(), nil
}

// Update runs fn on a private copy of the user's portfolio while holding the
// user's lock. The copy replaces the stored portfolio only if fn succeeds and
// the result keeps balance and holdings non-negative, so callers see either
// all of fn's changes or none. The new state is persisted after the lock is released.
func (s *PortfolioStore) Update(ctx context.Context, userID string, fn func(p *model.Portfolio) error) (model.Portfolio, error) {
	e, err := s.entryFor(ctx, userID)
	if err != nil {
		return model.Portfolio{}, err
	}

	e.mu.Lock()
	draft := e.portfolio.Clone()
	if err = fn(&draft); err == nil {
		err = normalize(&draft)
	}
	if err != nil {
		current := e.portfolio.Clone()
		e.mu.Unlock()
		return current, err
	}
	draft.LastUpdated = s.now()
	e.portfolio = draft
	res := draft.Clone()
	e.mu.Unlock()

	s.persist(ctx, e)
	return res, nil
}

func (s *PortfolioStore) AddBalance(ctx context.Context, userID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return service.ErrInvalidAmount
	}
	_, err := s.Update(ctx, userID, func(p *model.Portfolio) error {
		return Credit(p, amount)
	})
	return err
}

func (s *PortfolioStore) RemoveBalance(ctx context.Context, userID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return service.ErrInvalidAmount
	}
	_, err := s.Update(ctx, userID, func(p *model.Portfolio) error {
		return Debit(p, amount)
	})
	return err
}

func (s *PortfolioStore) AddHoldings(ctx context.Context, userID, symbol string, qty int) error {
	if qty <= 0 {
		return service.ErrInvalidQuantity
	}
	_, err := s.Update(ctx, userID, func(p *model.Portfolio) error {
		return AddShares(p, symbol, qty, decimal.Zero)
	})
	return err
}

func (s *PortfolioStore) RemoveHoldings(ctx context.Context, userID, symbol string, qty int) error {
	if qty <= 0 {
		return service.ErrInvalidQuantity
	}
	_, err := s.Update(ctx, userID, func(p *model.Portfolio) error {
		_, err := RemoveShares(p, symbol, qty)
		return err
	})
	return err
}

func (s *PortfolioStore) SetBalance(ctx context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return service.ErrInvalidAmount
	}
	_, err := s.Update(ctx, userID, func(p *model.Portfolio) error {
		p.Balance = model.RoundMoney(amount)
		return nil
	})
	return err
}

// SetHoldings overwrites the share count of one symbol; zero removes it.
func (s *PortfolioStore) SetHoldings(ctx context.Context, userID, symbol string, qty int) error {
	if qty < 0 {
		return service.ErrInvalidQuantity
	}
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return service.ErrInvalidSymbol
	}
	_, err := s.Update(ctx, userID, func(p *model.Portfolio) error {
		p.Holdings[symbol] = qty
		return nil
	})
	return err
}

// Reset restores the starting balance and clears holdings and totals.
func (s *PortfolioStore) Reset(ctx context.Context, userID string) error {
	_, err := s.Update(ctx, userID, func(p *model.Portfolio) error {
		*p = model.NewPortfolio(p.UserID, s.startingBalance, s.now())
		return nil
	})
	return err
}

func (s *PortfolioStore) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Balance, nil
}

func (s *PortfolioStore) Holdings(ctx context.Context, userID, symbol string) (int, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return p.Holdings[model.NormalizeSymbol(symbol)], nil
}

func (s *PortfolioStore) AllHoldings(ctx context.Context, userID string) (map[string]int, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Holdings, nil
}

// valuation is the market value of resolvable holdings and their book value.
// Holdings whose symbol no longer resolves count as zero and bump the drift counter.
func (s *PortfolioStore) valuation(ctx context.Context, p model.Portfolio) (value, basis decimal.Decimal) {
	value, basis = decimal.Zero, decimal.Zero
	for symbol, qty := range p.Holdings {
		stock, err := s.stocks.Get(symbol)
		if err != nil {
			s.drift.Add(1)
			slog.Warn(
				"holding references unknown stock",
				slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
				slog.String("userID", p.UserID),
				slog.String("symbol", symbol),
			)
			continue
		}
		value = value.Add(stock.CurrentPrice.Mul(decimal.NewFromInt(int64(qty))))
		basis = basis.Add(p.CostBasis[symbol])
	}
	return value, basis
}

func (s *PortfolioStore) TotalValue(ctx context.Context, userID string) (decimal.Decimal, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	value, _ := s.valuation(ctx, p)
	return p.Balance.Add(value), nil
}

func (s *PortfolioStore) Metrics(ctx context.Context, userID string) (model.PortfolioMetrics, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.Metrics"

	slog.Debug("Metrics start", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID))
	defer func() {
		slog.Debug("Metrics finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID))
	}()

	p, err := s.Get(ctx, userID)
	if err != nil {
		return model.PortfolioMetrics{}, err
	}

	value, basis := s.valuation(ctx, p)
	unrealized := model.RoundMoney(value.Sub(basis))
	totalPnL := unrealized.Add(p.TotalRealized)

	roi := 0.0
	if p.TotalInvested.IsPositive() {
		roi = totalPnL.Div(p.TotalInvested).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	return model.PortfolioMetrics{
		TotalValue:    p.Balance.Add(value),
		CashBalance:   p.Balance,
		TotalInvested: p.TotalInvested,
		UnrealizedPnL: unrealized,
		RealizedPnL:   p.TotalRealized,
		TotalPnL:      totalPnL,
		ROI:           roi,
		Diversity:     p.Diversity(),
		TotalShares:   p.TotalShares(),
	}, nil
}

// Shareholders scans every portfolio for positive holdings of symbol.
func (s *PortfolioStore) Shareholders(symbol string) map[string]int {
	symbol = model.NormalizeSymbol(symbol)
	res := make(map[string]int)
	for _, e := range s.entries() {
		e.mu.Lock()
		qty := e.portfolio.Holdings[symbol]
		userID := e.portfolio.UserID
		e.mu.Unlock()
		if qty > 0 {
			res[userID] = qty
		}
	}
	return res
}

func (s *PortfolioStore) TopPortfolios(ctx context.Context, limit int) []model.RankedPortfolio {
	ranked := make([]model.RankedPortfolio, 0)
	for _, e := range s.entries() {
		p := e.snapshot()
		value, _ := s.valuation(ctx, p)
		ranked = append(ranked, model.RankedPortfolio{UserID: p.UserID, TotalValue: p.Balance.Add(value)})
	}

	slices.SortFunc(ranked, func(a, b model.RankedPortfolio) int {
		if c := b.TotalValue.Cmp(a.TotalValue); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	if limit >= 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	return ranked
}

func (s *PortfolioStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.portfolios)
}

// FlushAll saves every cached portfolio and returns the joined save errors.
func (s *PortfolioStore) FlushAll(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.FlushAll"

	slog.Debug("FlushAll start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("FlushAll finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	var errs []error
	for _, e := range s.entries() {
		e.persistMu.Lock()
		p := e.snapshot()
		if err := s.repo.SavePortfolio(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("save portfolio %s: %w", p.UserID, err))
		}
		e.persistMu.Unlock()
	}
	return errors.Join(errs...)
}

// DriftCount is the number of valuations that met a holding of an unknown symbol.
func (s *PortfolioStore) DriftCount() int64 {
	return s.drift.Load()
}

// ReconcileCostBasis rebuilds the per-symbol book value by replaying the
// user's BUY and SELL history in chronological order at average cost.
func (s *PortfolioStore) ReconcileCostBasis(ctx context.Context, userID string) (model.Portfolio, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.ReconcileCostBasis"

	slog.Debug("ReconcileCostBasis start", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID))
	defer func() {
		slog.Debug("ReconcileCostBasis finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID))
	}()

	if s.transactions == nil {
		return model.Portfolio{}, errors.New("transaction history is not configured")
	}

	history, err := s.transactions.History(ctx, userID, 0)
	if err != nil {
		slog.Error("got error from transactions.History", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Portfolio{}, err
	}

	basis := ReplayCostBasis(history)

	return s.Update(ctx, userID, func(p *model.Portfolio) error {
		p.CostBasis = make(map[string]decimal.Decimal, len(p.Holdings))
		for symbol := range p.Holdings {
			if b, ok := basis[symbol]; ok {
				p.CostBasis[symbol] = b
			}
		}
		return nil
	})
}

// ReplayCostBasis returns the average-cost book value of every lot still held
// after applying history oldest first. Input order does not matter.
func ReplayCostBasis(history []model.Transaction) map[string]decimal.Decimal {
	txs := slices.Clone(history)
	slices.SortStableFunc(txs, func(a, b model.Transaction) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	held := make(map[string]int)
	basis := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		symbol := model.NormalizeSymbol(tx.Symbol)
		switch tx.Type {
		case model.TransactionBuy:
			held[symbol] += tx.Quantity
			basis[symbol] = basis[symbol].Add(tx.TotalAmount)
		case model.TransactionSell:
			qty := held[symbol]
			if qty <= 0 {
				continue
			}
			sold := min(tx.Quantity, qty)
			if sold == qty {
				delete(held, symbol)
				delete(basis, symbol)
				continue
			}
			released := basis[symbol].Mul(decimal.NewFromInt(int64(sold))).Div(decimal.NewFromInt(int64(qty))).Round(model.CostBasisScale)
			basis[symbol] = basis[symbol].Sub(released)
			held[symbol] = qty - sold
		}
	}
	return basis
}
