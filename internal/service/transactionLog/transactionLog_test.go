package transactionLog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KotFed0t/stock_market_sim/data/repository/memory"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenRepo struct{}

func (brokenRepo) SaveTransaction(context.Context, model.Transaction) error {
	return errors.New("db down")
}

func (brokenRepo) GetTransactionHistory(context.Context, string, int) ([]model.Transaction, error) {
	return nil, errors.New("db down")
}

var base = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

func buy(userID, symbol string, minute int) model.Transaction {
	return model.NewTransaction(userID, symbol, model.TransactionBuy, 1, decimal.NewFromInt(10), decimal.NewFromInt(10), decimal.NewFromInt(1), base.Add(time.Duration(minute)*time.Minute))
}

func TestTransactionLog_HistoryNewestFirst(t *testing.T) {
	t.Parallel()

	l := New(memory.New(90, 1000))
	ctx := context.Background()

	l.Append(ctx, buy("1", "A", 1))
	l.Append(ctx, buy("1", "B", 2))
	l.Append(ctx, buy("2", "C", 3))
	l.Append(ctx, buy("1", "D", 4))

	all, err := l.History(ctx, "1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "D", all[0].Symbol)
	assert.Equal(t, "A", all[2].Symbol)

	limited, err := l.History(ctx, "1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "B", limited[1].Symbol)

	none, err := l.History(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransactionLog_MergesStoredHistoryOnce(t *testing.T) {
	t.Parallel()

	repo := memory.New(90, 1000)
	ctx := context.Background()

	old := buy("1", "OLD", 0)
	require.NoError(t, repo.SaveTransaction(ctx, old))

	l := New(repo)
	l.Append(ctx, buy("1", "NEW", 5))

	got, err := l.History(ctx, "1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "NEW", got[0].Symbol)
	assert.Equal(t, "OLD", got[1].Symbol)

	got, err = l.History(ctx, "1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestTransactionLog_RepositoryFailureKeepsMemory(t *testing.T) {
	t.Parallel()

	l := New(brokenRepo{})
	ctx := context.Background()
	l.Append(ctx, buy("1", "A", 1))

	got, err := l.History(ctx, "1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTransactionLog_TrimsPerUser(t *testing.T) {
	t.Parallel()

	l := New(memory.New(90, 0))
	ctx := context.Background()
	for i := range PerUserLimit + 5 {
		l.Append(ctx, buy("1", "A", i))
	}

	got, err := l.History(ctx, "1", 0)
	require.NoError(t, err)
	assert.Len(t, got, PerUserLimit)
	assert.Equal(t, base.Add(time.Duration(PerUserLimit+4)*time.Minute), got[0].Timestamp)
}

func TestTransactionLog_Recent(t *testing.T) {
	t.Parallel()

	l := New(memory.New(90, 1000))
	ctx := context.Background()
	l.Append(ctx, buy("1", "A", 1))
	l.Append(ctx, buy("2", "B", 3))
	l.Append(ctx, buy("3", "C", 2))

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "B", recent[0].Symbol)
	assert.Equal(t, "C", recent[1].Symbol)
}
