package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/stock_market_sim/internal/converter/dbConverter"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/model/dbModel"
	"github.com/KotFed0t/stock_market_sim/utils"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

func (r *Postgres) LoadAllStocks(ctx context.Context) (stocks []model.Stock, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.LoadAllStocks"
	query := `
		SELECT symbol, name, current_price, previous_price, category, volatility,
			volume, shares_issued, business_id, dividend_yield, last_updated
		FROM stocks
		ORDER BY symbol
		`

	slog.Debug("LoadAllStocks start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("LoadAllStocks failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("LoadAllStocks completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	stocks = make([]model.Stock, 0)
	for rows.Next() {
		var stock dbModel.Stock
		err = rows.StructScan(&stock)
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, dbConverter.ConvertStock(stock))
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return stocks, nil
}

func (r *Postgres) SaveStock(ctx context.Context, stock model.Stock) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.SaveStock"
	query := `
		INSERT INTO stocks(symbol, name, current_price, previous_price, category, volatility,
			volume, shares_issued, business_id, dividend_yield, last_updated)
		VALUES (:symbol, :name, :current_price, :previous_price, :category, :volatility,
			:volume, :shares_issued, :business_id, :dividend_yield, :last_updated)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			current_price = EXCLUDED.current_price,
			previous_price = EXCLUDED.previous_price,
			category = EXCLUDED.category,
			volatility = EXCLUDED.volatility,
			volume = EXCLUDED.volume,
			shares_issued = EXCLUDED.shares_issued,
			business_id = EXCLUDED.business_id,
			dividend_yield = EXCLUDED.dividend_yield,
			last_updated = EXCLUDED.last_updated
		`

	slog.Debug("SaveStock start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", stock.Symbol))
	defer func() {
		if err != nil {
			slog.Error("SaveStock failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("SaveStock completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).NamedExecContext(ctx, query, dbConverter.ConvertStockToDb(stock))
	return err
}

func (r *Postgres) SaveStockHistory(ctx context.Context, symbol string, entry model.PriceHistoryEntry) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.SaveStockHistory"
	query := `
		INSERT INTO stock_price_history(symbol, price, volume, reason, dt_create)
		VALUES ($1, $2, $3, $4, $5)
		`

	slog.Debug("SaveStockHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	defer func() {
		if err != nil {
			slog.Error("SaveStockHistory failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("SaveStockHistory completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, symbol, entry.Price, entry.Volume, entry.Reason, entry.Timestamp)
	return err
}

func (r *Postgres) GetStockHistory(ctx context.Context, symbol string, days int) (history []model.PriceHistoryEntry, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetStockHistory"
	params := map[string]any{
		"symbol": symbol,
		"days":   days,
	}
	query := `
		SELECT symbol, price, volume, reason, dt_create
		FROM stock_price_history
		WHERE symbol = $1
		AND dt_create > NOW() - make_interval(days => $2)
		ORDER BY dt_create DESC
		`

	slog.Debug("GetStockHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("GetStockHistory failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetStockHistory completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var rows []dbModel.PriceHistory
	err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, symbol, days)
	if err != nil {
		return nil, err
	}

	history = make([]model.PriceHistoryEntry, 0, len(rows))
	for _, row := range rows {
		history = append(history, dbConverter.ConvertPriceHistory(row))
	}

	return history, nil
}
