package stockRegistry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/KotFed0t/stock_market_sim/internal/events"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/service"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/shopspring/decimal"
)

const (
	SystemCreator          = "SYSTEM"
	BusinessVolatility     = 0.03
	ReasonMarket           = "Market"
	ReasonAdmin            = "Admin"
	marketTrendRange       = 0.1
	marketTrendWeight      = 0.3
	sampledVolumeMin int64 = 1000
	sampledVolumeMax int64 = 100000
)

type Repository interface {
	LoadAllStocks(ctx context.Context) ([]model.Stock, error)
	SaveStock(ctx context.Context, stock model.Stock) error
	SaveStockHistory(ctx context.Context, symbol string, entry model.PriceHistoryEntry) error
	GetStockHistory(ctx context.Context, symbol string, days int) ([]model.PriceHistoryEntry, error)
}

type Publisher interface {
	Publish(ctx context.Context, kind events.Kind, payload any)
}

type CreateParams struct {
	Symbol     string
	Name       string
	Price      decimal.Decimal
	Category   model.Category
	Volatility float64
	Creator    string
}

type entry struct {
	mu      sync.Mutex
	stock   model.Stock
	history *HistoryLog

	// persistMu orders writes to the repository so the stored record is never
	// older than the last one saved.
	persistMu sync.Mutex
}

func (e *entry) snapshot() model.Stock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stock
}

type StockRegistry struct {
	mu     sync.RWMutex
	stocks map[string]*entry
	// business id -> symbol, at most one stock per business
	businesses map[string]string

	repo Repository
	bus  Publisher
	rnd  *utils.Random
	now  func() time.Time
}

func New(repo Repository, bus Publisher, rnd *utils.Random) *StockRegistry {
	return &StockRegistry{
		stocks:     make(map[string]*entry),
		businesses: make(map[string]string),
		repo:       repo,
		bus:    bus,
		rnd:    rnd,
		now:    time.Now,
	}
}

// Load replaces nothing: it adds every stored stock that is not known yet.
// A repository failure is returned so callers can tell it apart from an empty store.
func (r *StockRegistry) Load(ctx context.Context) (int, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockRegistry.Load"

	slog.Debug("Load start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("Load finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	stocks, err := r.repo.LoadAllStocks(ctx)
	if err != nil {
		slog.Error("got error from repo.LoadAllStocks", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, fmt.Errorf("load stocks: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0
	for _, s := range stocks {
		s.Symbol = model.NormalizeSymbol(s.Symbol)
		if s.Symbol == "" {
			continue
		}
		if _, ok := r.stocks[s.Symbol]; ok {
			continue
		}
		if s.BusinessID != "" {
			if owner, ok := r.businesses[s.BusinessID]; ok {
				slog.Warn("skip stock with duplicate business id", slog.String("rqID", rqID), slog.String("symbol", s.Symbol), slog.String("owner", owner))
				continue
			}
			r.businesses[s.BusinessID] = s.Symbol
		}
		s.Volatility = model.ClampVolatility(s.Volatility)
		if s.SharesIssued <= 0 {
			s.SharesIssued = model.DefaultSharesIssued
		}
		r.stocks[s.Symbol] = &entry{stock: s, history: NewHistoryLog()}
		loaded++
	}

	slog.Info("stocks loaded", slog.String("rqID", rqID), slog.Int("count", loaded))
	return loaded, nil
}

var defaultStocks = []struct {
	symbol   string
	name     string
	category model.Category
}{
	{"TECH", "TechCorp Industries", model.CategoryTechnology},
	{"BANK", "National Bank", model.CategoryFinance},
	{"HEAL", "HealthCare Plus", model.CategoryHealthcare},
	{"ENRG", "Energy Solutions", model.CategoryEnergy},
	{"SHOP", "Consumer Goods Co", model.CategoryConsumer},
	{"MINE", "Mining Corp", model.CategoryMaterials},
	{"UTIL", "Utilities United", model.CategoryUtilities},
	{"PROP", "Real Estate Group", model.CategoryRealEstate},
}

// SeedDefaults creates the default catalog when the registry is empty.
func (r *StockRegistry) SeedDefaults(ctx context.Context) (int, error) {
	if r.Count() > 0 {
		return 0, nil
	}

	created := 0
	for _, d := range defaultStocks {
		price := model.RoundMoney(decimal.NewFromFloat(r.rnd.Range(10, 500)))
		_, err := r.Create(ctx, CreateParams{
			Symbol:     d.symbol,
			Name:       d.name,
			Price:      price,
			Category:   d.category,
			Volatility: r.rnd.Range(0.02, 0.15),
			Creator:    SystemCreator,
		})
		if err != nil {
			if errors.Is(err, service.ErrAlreadyExists) {
				continue
			}
			return created, err
		}
		created++
	}

	slog.Info("default stocks created", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.Int("count", created))
	return created, nil
}

func (r *StockRegistry) Create(ctx context.Context, p CreateParams) (model.Stock, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockRegistry.Create"

	slog.Debug("Create start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", p.Symbol))
	defer func() {
		slog.Debug("Create finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", p.Symbol))
	}()

	category := p.Category
	if category == "" {
		category = model.CategoryCustom
	}

	return r.insert(ctx, model.Stock{
		Symbol:       p.Symbol,
		Name:         p.Name,
		CurrentPrice: p.Price,
		Category:     category,
		Volatility:   model.ClampVolatility(p.Volatility),
		SharesIssued: model.DefaultSharesIssued,
	}, p.Creator)
}

func (r *StockRegistry) CreateBusinessStock(
	ctx context.Context,
	symbol, name string,
	price decimal.Decimal,
	businessID string,
	sharesIssued int64,
	creator string,
) (model.Stock, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockRegistry.CreateBusinessStock"

	slog.Debug("CreateBusinessStock start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("businessID", businessID))
	defer func() {
		slog.Debug("CreateBusinessStock finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	if sharesIssued <= 0 {
		sharesIssued = model.DefaultSharesIssued
	}

	return r.insert(ctx, model.Stock{
		Symbol:       symbol,
		Name:         name,
		CurrentPrice: price,
		Category:     model.CategoryBusiness,
		Volatility:   BusinessVolatility,
		SharesIssued: sharesIssued,
		BusinessID:   businessID,
	}, creator)
}

func (r *StockRegistry) insert(ctx context.Context, s model.Stock, creator string) (model.Stock, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	s.Symbol = model.NormalizeSymbol(s.Symbol)
	if s.Symbol == "" {
		return model.Stock{}, service.ErrInvalidSymbol
	}
	if !s.CurrentPrice.IsPositive() {
		return model.Stock{}, service.ErrInvalidPrice
	}
	if s.Name == "" {
		s.Name = s.Symbol
	}
	s.CurrentPrice = floorPrice(model.RoundMoney(s.CurrentPrice))
	s.PreviousPrice = s.CurrentPrice
	s.LastUpdated = r.now()

	r.mu.Lock()
	if _, ok := r.stocks[s.Symbol]; ok {
		r.mu.Unlock()
		slog.Warn("stock already exists", slog.String("rqID", rqID), slog.String("symbol", s.Symbol))
		return model.Stock{}, service.ErrAlreadyExists
	}
	if s.BusinessID != "" {
		if owner, ok := r.businesses[s.BusinessID]; ok {
			r.mu.Unlock()
			slog.Warn("business already has a stock", slog.String("rqID", rqID), slog.String("businessID", s.BusinessID), slog.String("symbol", owner))
			return model.Stock{}, fmt.Errorf("business %s is listed as %s: %w", s.BusinessID, owner, service.ErrAlreadyExists)
		}
		r.businesses[s.BusinessID] = s.Symbol
	}
	e := &entry{stock: s, history: NewHistoryLog()}
	r.stocks[s.Symbol] = e
	r.mu.Unlock()

	r.persist(ctx, e, nil)

	r.bus.Publish(ctx, events.StockCreated, events.StockCreatedData{Stock: s, Creator: creator})
	slog.Info("stock created", slog.String("rqID", rqID), slog.String("symbol", s.Symbol), slog.String("creator", creator))

	return s, nil
}

func (r *StockRegistry) lookup(symbol string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.stocks[model.NormalizeSymbol(symbol)]
	if !ok {
		return nil, service.ErrNotFound
	}
	return e, nil
}

func (r *StockRegistry) entries() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.stocks))
	for symbol := range r.stocks {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)

	res := make([]*entry, 0, len(symbols))
	for _, symbol := range symbols {
		res = append(res, r.stocks[symbol])
	}
	return res
}

func (r *StockRegistry) Exists(symbol string) bool {
	_, err := r.lookup(symbol)
	return err == nil
}

func (r *StockRegistry) Get(symbol string) (model.Stock, error) {
	e, err := r.lookup(symbol)
	if err != nil {
		return model.Stock{}, err
	}
	return e.snapshot(), nil
}

func (r *StockRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stocks)
}

// All returns every stock ordered by symbol.
func (r *StockRegistry) All() []model.Stock {
	entries := r.entries()
	res := make([]model.Stock, 0, len(entries))
	for _, e := range entries {
		res = append(res, e.snapshot())
	}
	return res
}

func (r *StockRegistry) filter(keep func(model.Stock) bool) []model.Stock {
	res := make([]model.Stock, 0)
	for _, s := range r.All() {
		if keep(s) {
			res = append(res, s)
		}
	}
	return res
}

func (r *StockRegistry) ByCategory(category model.Category) []model.Stock {
	return r.filter(func(s model.Stock) bool { return s.Category == category })
}

func (r *StockRegistry) ByBusinessID(businessID string) (model.Stock, error) {
	if businessID == "" {
		return model.Stock{}, service.ErrNotFound
	}
	r.mu.RLock()
	symbol, ok := r.businesses[businessID]
	r.mu.RUnlock()
	if !ok {
		return model.Stock{}, service.ErrNotFound
	}
	return r.Get(symbol)
}

// Categories returns the distinct categories present in the catalog.
func (r *StockRegistry) Categories() []model.Category {
	seen := make(map[model.Category]struct{})
	res := make([]model.Category, 0)
	for _, s := range r.All() {
		if _, ok := seen[s.Category]; ok {
			continue
		}
		seen[s.Category] = struct{}{}
		res = append(res, s.Category)
	}
	slices.Sort(res)
	return res
}

// Search matches query case-insensitively against symbol and name.
func (r *StockRegistry) Search(query string) []model.Stock {
	q := strings.ToLower(strings.TrimSpace(query))
	return r.filter(func(s model.Stock) bool {
		return strings.Contains(strings.ToLower(s.Symbol), q) ||
			strings.Contains(strings.ToLower(s.Name), q)
	})
}

func (r *StockRegistry) UpdatePrice(ctx context.Context, symbol string, newPrice decimal.Decimal, reason string) (model.Stock, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockRegistry.UpdatePrice"

	slog.Debug("UpdatePrice start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("price", newPrice.String()))
	defer func() {
		slog.Debug("UpdatePrice finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	if !newPrice.IsPositive() {
		return model.Stock{}, service.ErrInvalidPrice
	}

	return r.AdjustPrice(ctx, symbol, func(model.Stock) decimal.Decimal { return newPrice }, reason)
}

// AdjustPrice computes the next price from the current record and applies it
// while holding the symbol lock, so concurrent adjustments never lose a step.
// The result is rounded to cents and floored at model.MinPrice.
func (r *StockRegistry) AdjustPrice(ctx context.Context, symbol string, next func(model.Stock) decimal.Decimal, reason string) (model.Stock, error) {
	e, err := r.lookup(symbol)
	if err != nil {
		return model.Stock{}, err
	}

	s, _ := r.adjust(ctx, e, func(s model.Stock) (decimal.Decimal, bool) {
		return next(s), true
	}, reason)
	return s, nil
}

// adjust applies next under the entry lock. next may return false to leave
// the stock untouched.
func (r *StockRegistry) adjust(ctx context.Context, e *entry, next func(model.Stock) (decimal.Decimal, bool), reason string) (model.Stock, bool) {
	e.mu.Lock()
	price, ok := next(e.stock)
	if !ok {
		s := e.stock
		e.mu.Unlock()
		return s, false
	}

	now := r.now()
	old := e.stock.CurrentPrice
	e.stock.PreviousPrice = old
	e.stock.CurrentPrice = floorPrice(model.RoundMoney(price))
	e.stock.LastUpdated = now

	point := model.PriceHistoryEntry{
		Timestamp: now,
		Price:     e.stock.CurrentPrice,
		Volume:    r.rnd.Int63Range(sampledVolumeMin, sampledVolumeMax),
		Reason:    reason,
	}
	e.history.Append(point, now)
	s := e.stock
	e.mu.Unlock()

	r.persist(ctx, e, &point)

	r.bus.Publish(ctx, events.PriceChanged, events.PriceChangedData{
		Stock:    s,
		OldPrice: old,
		NewPrice: s.CurrentPrice,
		Reason:   reason,
	})

	return s, true
}

// persist stores the latest state of e. Failures are logged and the in-memory
// record stays authoritative.
func (r *StockRegistry) persist(ctx context.Context, e *entry, point *model.PriceHistoryEntry) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	s := e.snapshot()
	if err := r.repo.SaveStock(ctx, s); err != nil {
		slog.Error("got error from repo.SaveStock", slog.String("rqID", rqID), slog.String("symbol", s.Symbol), slog.String("err", err.Error()))
	}

	if point == nil {
		return
	}
	if err := r.repo.SaveStockHistory(ctx, s.Symbol, *point); err != nil {
		slog.Error("got error from repo.SaveStockHistory", slog.String("rqID", rqID), slog.String("symbol", s.Symbol), slog.String("err", err.Error()))
	}
}

// Fluctuate moves every non-business stock by its own random delta plus one
// market-wide trend shared by the whole tick.
func (r *StockRegistry) Fluctuate(ctx context.Context) int {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockRegistry.Fluctuate"

	slog.Debug("Fluctuate start", slog.String("rqID", rqID), slog.String("op", op))

	trend := r.rnd.Range(-marketTrendRange, marketTrendRange)
	updated := 0
	for _, e := range r.entries() {
		_, ok := r.adjust(ctx, e, func(s model.Stock) (decimal.Decimal, bool) {
			if s.IsBusiness() {
				return decimal.Zero, false
			}
			delta := r.rnd.Range(-s.Volatility, s.Volatility)
			factor := decimal.NewFromFloat(1 + delta + marketTrendWeight*trend)
			return s.CurrentPrice.Mul(factor), true
		}, ReasonMarket)
		if ok {
			updated++
		}
	}

	slog.Debug("Fluctuate finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int("updated", updated), slog.Float64("trend", trend))
	return updated
}

// History returns entries of the last days, most recent first. When the
// in-memory log is empty (for example right after a restart) the repository is asked.
func (r *StockRegistry) History(ctx context.Context, symbol string, days int) ([]model.PriceHistoryEntry, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	e, err := r.lookup(symbol)
	if err != nil {
		return nil, err
	}

	cutoff := r.now().Add(-time.Duration(days) * 24 * time.Hour)

	e.mu.Lock()
	empty := e.history.Len() == 0
	res := e.history.Since(cutoff)
	symbol = e.stock.Symbol
	e.mu.Unlock()

	if !empty {
		return res, nil
	}

	stored, err := r.repo.GetStockHistory(ctx, symbol, days)
	if err != nil {
		slog.Warn("can't get stock history from repo", slog.String("rqID", rqID), slog.String("symbol", symbol), slog.String("err", err.Error()))
		return res, nil
	}

	slices.SortStableFunc(stored, func(a, b model.PriceHistoryEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return stored, nil
}

func (r *StockRegistry) PercentChange(symbol string) (float64, error) {
	s, err := r.Get(symbol)
	if err != nil {
		return 0, err
	}
	return s.PercentChange(), nil
}

func (r *StockRegistry) PriceChange(symbol string) (decimal.Decimal, error) {
	s, err := r.Get(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return s.PriceChange(), nil
}

func (r *StockRegistry) MarketCap(symbol string) (decimal.Decimal, error) {
	s, err := r.Get(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return s.MarketCap(), nil
}

func (r *StockRegistry) AddVolume(ctx context.Context, symbol string, qty int) error {
	e, err := r.lookup(symbol)
	if err != nil {
		return err
	}
	if qty <= 0 {
		return service.ErrInvalidQuantity
	}

	e.mu.Lock()
	e.stock.Volume += int64(qty)
	e.mu.Unlock()

	r.persist(ctx, e, nil)
	return nil
}

func (r *StockRegistry) TopPerformers(n int) []model.Stock {
	return r.ranked(n, func(a, b model.Stock) int {
		return cmp.Compare(b.PercentChange(), a.PercentChange())
	})
}

func (r *StockRegistry) WorstPerformers(n int) []model.Stock {
	return r.ranked(n, func(a, b model.Stock) int {
		return cmp.Compare(a.PercentChange(), b.PercentChange())
	})
}

func (r *StockRegistry) ranked(n int, compare func(a, b model.Stock) int) []model.Stock {
	all := r.All()
	slices.SortStableFunc(all, compare)
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

func (r *StockRegistry) Snapshot(isOpen bool) model.MarketSnapshot {
	all := r.All()
	snap := model.MarketSnapshot{
		Timestamp:      r.now(),
		TotalMarketCap: decimal.Zero,
		StockCount:     len(all),
		IsOpen:         isOpen,
	}
	for i := range all {
		s := all[i]
		snap.TotalMarketCap = snap.TotalMarketCap.Add(s.MarketCap())
		snap.TotalVolume += s.Volume
		if snap.TopGainer == nil || s.PercentChange() > snap.TopGainer.PercentChange() {
			snap.TopGainer = &all[i]
		}
		if snap.TopLoser == nil || s.PercentChange() < snap.TopLoser.PercentChange() {
			snap.TopLoser = &all[i]
		}
	}
	return snap
}

func floorPrice(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(model.MinPrice) {
		return model.MinPrice
	}
	return p
}
