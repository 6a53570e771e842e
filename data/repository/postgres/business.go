package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/KotFed0t/stock_market_sim/data/repository"
	"github.com/KotFed0t/stock_market_sim/internal/converter/dbConverter"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/model/dbModel"
	"github.com/KotFed0t/stock_market_sim/utils"
)

func (r *Postgres) SaveBusinessMetrics(ctx context.Context, metrics model.BusinessMetrics) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.SaveBusinessMetrics"
	query := `
		INSERT INTO business_metrics(business_id, revenue, profit, employee_count, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id) DO UPDATE SET
			revenue = EXCLUDED.revenue,
			profit = EXCLUDED.profit,
			employee_count = EXCLUDED.employee_count,
			last_updated = EXCLUDED.last_updated
		`

	slog.Debug("SaveBusinessMetrics start", slog.String("rqID", rqID), slog.String("op", op), slog.String("businessID", metrics.BusinessID))
	defer func() {
		if err != nil {
			slog.Error("SaveBusinessMetrics failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("SaveBusinessMetrics completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(
		ctx,
		query,
		metrics.BusinessID,
		metrics.Revenue,
		metrics.Profit,
		metrics.EmployeeCount,
		metrics.LastUpdated,
	)
	return err
}

func (r *Postgres) GetBusinessMetrics(ctx context.Context, businessID string) (metrics model.BusinessMetrics, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetBusinessMetrics"
	query := `
		SELECT business_id, revenue, profit, employee_count, last_updated
		FROM business_metrics
		WHERE business_id = $1
		`

	slog.Debug("GetBusinessMetrics start", slog.String("rqID", rqID), slog.String("op", op), slog.String("businessID", businessID))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetBusinessMetrics failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetBusinessMetrics completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var row dbModel.BusinessMetrics
	err = r.txOrDb(ctx).GetContext(ctx, &row, query, businessID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BusinessMetrics{}, repository.ErrNotFound
		}
		return model.BusinessMetrics{}, err
	}

	return dbConverter.ConvertBusinessMetrics(row), nil
}
