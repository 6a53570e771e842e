package postgres

import (
	"context"
	"log/slog"
	"slices"

	"github.com/KotFed0t/stock_market_sim/internal/converter/dbConverter"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/model/dbModel"
	"github.com/KotFed0t/stock_market_sim/utils"
)

func (r *Postgres) LoadAllPortfolios(ctx context.Context) (portfolios []model.Portfolio, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.LoadAllPortfolios"
	portfoliosQuery := `
		SELECT user_id, balance, total_invested, total_realized, last_updated
		FROM portfolios
		ORDER BY user_id
		`
	holdingsQuery := `
		SELECT user_id, symbol, quantity, cost_basis
		FROM portfolio_holdings
		ORDER BY user_id, symbol
		`

	slog.Debug("LoadAllPortfolios start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("LoadAllPortfolios failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("LoadAllPortfolios completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var dbPortfolios []dbModel.Portfolio
	err = r.txOrDb(ctx).SelectContext(ctx, &dbPortfolios, portfoliosQuery)
	if err != nil {
		return nil, err
	}

	var dbHoldings []dbModel.Holding
	err = r.txOrDb(ctx).SelectContext(ctx, &dbHoldings, holdingsQuery)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string][]dbModel.Holding, len(dbPortfolios))
	for _, h := range dbHoldings {
		byUser[h.UserID] = append(byUser[h.UserID], h)
	}

	portfolios = make([]model.Portfolio, 0, len(dbPortfolios))
	for _, p := range dbPortfolios {
		portfolios = append(portfolios, dbConverter.ConvertPortfolio(p, byUser[p.UserID]))
	}

	return portfolios, nil
}

// SavePortfolio upserts the portfolio row and replaces all of its holdings.
func (r *Postgres) SavePortfolio(ctx context.Context, portfolio model.Portfolio) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.SavePortfolio"
	upsertQuery := `
		INSERT INTO portfolios(user_id, balance, total_invested, total_realized, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			balance = EXCLUDED.balance,
			total_invested = EXCLUDED.total_invested,
			total_realized = EXCLUDED.total_realized,
			last_updated = EXCLUDED.last_updated
		`
	deleteQuery := `DELETE FROM portfolio_holdings WHERE user_id = $1`
	insertQuery := `
		INSERT INTO portfolio_holdings(user_id, symbol, quantity, cost_basis)
		VALUES ($1, $2, $3, $4)
		`

	slog.Debug("SavePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", portfolio.UserID))
	defer func() {
		if err != nil {
			slog.Error("SavePortfolio failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("SavePortfolio completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	symbols := make([]string, 0, len(portfolio.Holdings))
	for symbol, qty := range portfolio.Holdings {
		if qty > 0 {
			symbols = append(symbols, symbol)
		}
	}
	slices.Sort(symbols)

	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := r.txOrDb(ctx).ExecContext(
			ctx,
			upsertQuery,
			portfolio.UserID,
			portfolio.Balance,
			portfolio.TotalInvested,
			portfolio.TotalRealized,
			portfolio.LastUpdated,
		)
		if err != nil {
			return err
		}

		_, err = r.txOrDb(ctx).ExecContext(ctx, deleteQuery, portfolio.UserID)
		if err != nil {
			return err
		}

		for _, symbol := range symbols {
			_, err = r.txOrDb(ctx).ExecContext(
				ctx,
				insertQuery,
				portfolio.UserID,
				symbol,
				portfolio.Holdings[symbol],
				portfolio.CostBasis[symbol],
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
