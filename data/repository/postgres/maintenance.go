package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/stock_market_sim/utils"
)

// Cleanup drops price history older than the retention window and keeps only
// the newest transactions of every user.
func (r *Postgres) Cleanup(ctx context.Context) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.Cleanup"
	historyQuery := `
		DELETE FROM stock_price_history
		WHERE dt_create < NOW() - make_interval(days => $1)
		`
	transactionsQuery := `
		DELETE FROM transactions
		WHERE transaction_id IN (
			SELECT transaction_id FROM (
				SELECT transaction_id,
					ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY dt_create DESC) AS rn
				FROM transactions
			) ranked
			WHERE ranked.rn > $1
		)
		`

	slog.Debug("Cleanup start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("Cleanup failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Cleanup completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		res, err := r.txOrDb(ctx).ExecContext(ctx, historyQuery, r.cfg.Storage.HistoryRetentionDays)
		if err != nil {
			return err
		}
		historyDeleted, _ := res.RowsAffected()

		res, err = r.txOrDb(ctx).ExecContext(ctx, transactionsQuery, r.cfg.Storage.TransactionsPerUser)
		if err != nil {
			return err
		}
		txsDeleted, _ := res.RowsAffected()

		slog.Info(
			"old records deleted",
			slog.String("rqID", rqID),
			slog.Int64("history", historyDeleted),
			slog.Int64("transactions", txsDeleted),
		)
		return nil
	})
}

var statsTables = []string{
	"stocks",
	"stock_price_history",
	"portfolios",
	"portfolio_holdings",
	"transactions",
	"business_metrics",
}

func (r *Postgres) GetStats(ctx context.Context) (stats map[string]int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetStats"
	query := `
		SELECT
			(SELECT COUNT(*) FROM stocks) AS stocks,
			(SELECT COUNT(*) FROM stock_price_history) AS stock_price_history,
			(SELECT COUNT(*) FROM portfolios) AS portfolios,
			(SELECT COUNT(*) FROM portfolio_holdings) AS portfolio_holdings,
			(SELECT COUNT(*) FROM transactions) AS transactions,
			(SELECT COUNT(*) FROM business_metrics) AS business_metrics
		`

	slog.Debug("GetStats start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("GetStats failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetStats completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	counts := make([]int64, len(statsTables))
	dest := make([]any, len(counts))
	for i := range counts {
		dest[i] = &counts[i]
	}

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query).Scan(dest...)
	if err != nil {
		return nil, err
	}

	stats = make(map[string]int64, len(statsTables))
	for i, table := range statsTables {
		stats[table] = counts[i]
	}
	return stats, nil
}
