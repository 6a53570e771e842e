package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/KotFed0t/stock_market_sim/data/repository"
	"github.com/KotFed0t/stock_market_sim/internal/converter/dbConverter"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/model/dbModel"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/jackc/pgx/v5/pgconn"
)

func (r *Postgres) SaveTransaction(ctx context.Context, tx model.Transaction) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.SaveTransaction"
	query := `
		INSERT INTO transactions(transaction_id, user_id, symbol, type, quantity, price_per_share, total_amount, fee, dt_create)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`

	slog.Debug(
		"SaveTransaction start",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.String("txID", tx.ID.String()),
		slog.String("query", query),
	)
	defer func() {
		if err != nil {
			slog.Error("SaveTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("SaveTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(
		ctx,
		query,
		tx.ID,
		tx.UserID,
		tx.Symbol,
		string(tx.Type),
		tx.Quantity,
		tx.PricePerShare,
		tx.TotalAmount,
		tx.Fee,
		tx.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return repository.ErrAlreadyExists
			}
		}
		return err
	}

	return nil
}

// GetTransactionHistory returns the newest transactions first; limit <= 0 means no limit.
func (r *Postgres) GetTransactionHistory(ctx context.Context, userID string, limit int) (txs []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetTransactionHistory"
	params := map[string]any{
		"userID": userID,
		"limit":  limit,
	}
	query := `
		SELECT transaction_id, user_id, symbol, type, quantity, price_per_share, total_amount, fee, dt_create
		FROM transactions
		WHERE user_id = $1
		ORDER BY dt_create DESC
		LIMIT $2
		`

	slog.Debug("GetTransactionHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("GetTransactionHistory failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTransactionHistory completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	var rows []dbModel.Transaction
	err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, userID, limitArg)
	if err != nil {
		return nil, err
	}

	txs = make([]model.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, dbConverter.ConvertTransaction(row))
	}

	return txs, nil
}
