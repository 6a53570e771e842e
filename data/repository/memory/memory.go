// Package memory is an in-process persistence gateway used when no database is
// configured and as the storage fake in service tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/KotFed0t/stock_market_sim/data/repository"
	"github.com/KotFed0t/stock_market_sim/internal/model"
)

type historyRow struct {
	symbol string
	entry  model.PriceHistoryEntry
}

type Memory struct {
	mu           sync.RWMutex
	stocks       map[string]model.Stock
	portfolios   map[string]model.Portfolio
	transactions []model.Transaction
	history      []historyRow
	metrics      map[string]model.BusinessMetrics

	historyRetention    time.Duration
	transactionsPerUser int
	now                 func() time.Time
}

func New(historyRetentionDays, transactionsPerUser int) *Memory {
	return &Memory{
		stocks:              make(map[string]model.Stock),
		portfolios:          make(map[string]model.Portfolio),
		metrics:             make(map[string]model.BusinessMetrics),
		historyRetention:    time.Duration(historyRetentionDays) * 24 * time.Hour,
		transactionsPerUser: transactionsPerUser,
		now:                 time.Now,
	}
}

func (m *Memory) LoadAllStocks(_ context.Context) ([]model.Stock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]model.Stock, 0, len(m.stocks))
	for _, s := range m.stocks {
		res = append(res, s)
	}
	slices.SortFunc(res, func(a, b model.Stock) int {
		return cmp.Compare(a.Symbol, b.Symbol)
	})
	return res, nil
}

func (m *Memory) SaveStock(_ context.Context, stock model.Stock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks[stock.Symbol] = stock
	return nil
}

func (m *Memory) LoadAllPortfolios(_ context.Context) ([]model.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]model.Portfolio, 0, len(m.portfolios))
	for _, p := range m.portfolios {
		res = append(res, p.Clone())
	}
	return res, nil
}

// SavePortfolio stores a copy, replacing all previously stored holdings.
func (m *Memory) SavePortfolio(_ context.Context, portfolio model.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolios[portfolio.UserID] = portfolio.Clone()
	return nil
}

func (m *Memory) SaveTransaction(_ context.Context, tx model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.transactions {
		if existing.ID == tx.ID {
			return repository.ErrAlreadyExists
		}
	}
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *Memory) GetTransactionHistory(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]model.Transaction, 0)
	for _, tx := range m.transactions {
		if tx.UserID == userID {
			res = append(res, tx)
		}
	}
	newestFirst(res)
	if limit > 0 && limit < len(res) {
		res = res[:limit]
	}
	return res, nil
}

func (m *Memory) SaveStockHistory(_ context.Context, symbol string, entry model.PriceHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, historyRow{symbol: symbol, entry: entry})
	return nil
}

func (m *Memory) GetStockHistory(_ context.Context, symbol string, days int) ([]model.PriceHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().Add(-time.Duration(days) * 24 * time.Hour)
	res := make([]model.PriceHistoryEntry, 0)
	for i := len(m.history) - 1; i >= 0; i-- {
		row := m.history[i]
		if row.symbol == symbol && row.entry.Timestamp.After(cutoff) {
			res = append(res, row.entry)
		}
	}
	slices.SortStableFunc(res, func(a, b model.PriceHistoryEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return res, nil
}

func (m *Memory) SaveBusinessMetrics(_ context.Context, metrics model.BusinessMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[metrics.BusinessID] = metrics
	return nil
}

func (m *Memory) GetBusinessMetrics(_ context.Context, businessID string) (model.BusinessMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics, ok := m.metrics[businessID]
	if !ok {
		return model.BusinessMetrics{}, repository.ErrNotFound
	}
	return metrics, nil
}

func (m *Memory) Cleanup(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.historyRetention)
	m.history = slices.DeleteFunc(m.history, func(row historyRow) bool {
		return row.entry.Timestamp.Before(cutoff)
	})

	if m.transactionsPerUser <= 0 {
		return nil
	}

	sorted := slices.Clone(m.transactions)
	newestFirst(sorted)
	kept := make(map[string]int)
	res := make([]model.Transaction, 0, len(sorted))
	for _, tx := range sorted {
		if kept[tx.UserID] >= m.transactionsPerUser {
			continue
		}
		kept[tx.UserID]++
		res = append(res, tx)
	}
	slices.Reverse(res)
	m.transactions = res
	return nil
}

func (m *Memory) GetStats(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	holdings := 0
	for _, p := range m.portfolios {
		holdings += len(p.Holdings)
	}

	return map[string]int64{
		"stocks":              int64(len(m.stocks)),
		"stock_price_history": int64(len(m.history)),
		"portfolios":          int64(len(m.portfolios)),
		"portfolio_holdings":  int64(holdings),
		"transactions":        int64(len(m.transactions)),
		"business_metrics":    int64(len(m.metrics)),
	}, nil
}

func newestFirst(txs []model.Transaction) {
	slices.SortStableFunc(txs, func(a, b model.Transaction) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}
