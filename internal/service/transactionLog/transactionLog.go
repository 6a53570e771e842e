package transactionLog

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/google/uuid"
)

// PerUserLimit matches the retention applied by repository cleanup.
const PerUserLimit = 1000

type Repository interface {
	SaveTransaction(ctx context.Context, tx model.Transaction) error
	GetTransactionHistory(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
}

type userLog struct {
	txs    []model.Transaction // oldest first
	merged bool
}

type TransactionLog struct {
	mu    sync.Mutex
	users map[string]*userLog
	repo  Repository
}

func New(repo Repository) *TransactionLog {
	return &TransactionLog{
		users: make(map[string]*userLog),
		repo:  repo,
	}
}

func (l *TransactionLog) userLogLocked(userID string) *userLog {
	ul, ok := l.users[userID]
	if !ok {
		ul = &userLog{}
		l.users[userID] = ul
	}
	return ul
}

// Append records tx in memory and in the repository. A repository failure is
// logged and the in-memory record is kept.
func (l *TransactionLog) Append(ctx context.Context, tx model.Transaction) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	l.mu.Lock()
	ul := l.userLogLocked(tx.UserID)
	ul.txs = append(ul.txs, tx)
	ul.txs = trim(ul.txs)
	l.mu.Unlock()

	if err := l.repo.SaveTransaction(ctx, tx); err != nil {
		slog.Error(
			"got error from repo.SaveTransaction",
			slog.String("rqID", rqID),
			slog.String("txID", tx.ID.String()),
			slog.String("userID", tx.UserID),
			slog.String("err", err.Error()),
		)
	}
}

// History returns up to limit transactions of the user, newest first.
// limit <= 0 returns everything retained.
func (l *TransactionLog) History(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TransactionLog.History"

	slog.Debug("History start", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID))
	defer func() {
		slog.Debug("History finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID))
	}()

	l.mu.Lock()
	merged := l.userLogLocked(userID).merged
	l.mu.Unlock()

	if !merged {
		stored, err := l.repo.GetTransactionHistory(ctx, userID, PerUserLimit)
		if err != nil {
			slog.Warn("can't get transaction history from repo", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			l.merge(userID, stored)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	txs := l.userLogLocked(userID).txs
	n := len(txs)
	if limit > 0 && limit < n {
		n = limit
	}
	res := make([]model.Transaction, 0, n)
	for i := len(txs) - 1; i >= 0 && len(res) < n; i-- {
		res = append(res, txs[i])
	}
	return res, nil
}

func (l *TransactionLog) merge(userID string, stored []model.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ul := l.userLogLocked(userID)
	if ul.merged {
		return
	}

	seen := make(map[uuid.UUID]struct{}, len(ul.txs))
	for _, tx := range ul.txs {
		seen[tx.ID] = struct{}{}
	}
	all := slices.Clone(ul.txs)
	for _, tx := range stored {
		if _, ok := seen[tx.ID]; ok {
			continue
		}
		all = append(all, tx)
	}
	slices.SortStableFunc(all, func(a, b model.Transaction) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	ul.txs = trim(all)
	ul.merged = true
}

// Recent returns the newest transactions across all users known in memory.
func (l *TransactionLog) Recent(limit int) []model.Transaction {
	l.mu.Lock()
	all := make([]model.Transaction, 0)
	for _, ul := range l.users {
		all = append(all, ul.txs...)
	}
	l.mu.Unlock()

	slices.SortStableFunc(all, func(a, b model.Transaction) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

func trim(txs []model.Transaction) []model.Transaction {
	if len(txs) <= PerUserLimit {
		return txs
	}
	return slices.Clone(txs[len(txs)-PerUserLimit:])
}
