package tradeEngine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KotFed0t/stock_market_sim/internal/externalApi"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/service"
	"github.com/KotFed0t/stock_market_sim/internal/service/portfolioStore"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/shopspring/decimal"
)

// Ledger is the external balance authority. A move it refused for sure is
// reported as externalApi.ErrRejected or externalApi.ErrNotFound; any other
// error leaves the outcome unknown.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, memo string) error
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal, memo string) error
}

func definitelyRejected(err error) bool {
	return errors.Is(err, externalApi.ErrRejected) || errors.Is(err, externalApi.ErrNotFound)
}

// UnsettledTransfers counts withdrawals whose ledger outcome was unknown. The
// portfolio stays debited for them until an operator reconciles with the ledger.
func (e *TradeEngine) UnsettledTransfers() int64 {
	return e.unsettled.Load()
}

// ExternalBalance returns zero together with service.ErrLedgerUnavailable
// when the ledger is absent or failing.
func (e *TradeEngine) ExternalBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if e.ledger == nil {
		return decimal.Zero, service.ErrLedgerUnavailable
	}
	balance, err := e.ledger.GetBalance(ctx, userID)
	if err != nil {
		slog.Warn("can't get ledger balance", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("userID", userID), slog.String("err", err.Error()))
		return decimal.Zero, fmt.Errorf("%w: %w", service.ErrLedgerUnavailable, err)
	}
	return balance, nil
}

// DepositFromLedger moves amount from the ledger into the portfolio cash.
func (e *TradeEngine) DepositFromLedger(ctx context.Context, userID string, amount decimal.Decimal) (model.Portfolio, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradeEngine.DepositFromLedger"

	slog.Debug("DepositFromLedger start", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID), slog.String("amount", amount.String()))
	defer func() {
		slog.Debug("DepositFromLedger finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID))
	}()

	amount = model.RoundMoney(amount)
	if !amount.IsPositive() {
		return model.Portfolio{}, service.ErrInvalidAmount
	}
	if e.ledger == nil {
		return model.Portfolio{}, service.ErrLedgerUnavailable
	}

	if err := e.ledger.Withdraw(ctx, userID, amount, "Stock market deposit"); err != nil {
		slog.Warn("ledger withdraw failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Portfolio{}, fmt.Errorf("%w: %w", service.ErrLedgerUnavailable, err)
	}

	p, err := e.portfolios.Update(ctx, userID, func(p *model.Portfolio) error {
		return portfolioStore.Credit(p, amount)
	})
	if err != nil {
		slog.Error("portfolio credit failed, refunding ledger", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		if rErr := e.ledger.Deposit(ctx, userID, amount, "Stock market deposit refund"); rErr != nil {
			slog.Error("ledger refund failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID), slog.String("err", rErr.Error()))
		}
		return model.Portfolio{}, err
	}
	return p, nil
}

// WithdrawToLedger moves amount from the portfolio cash to the ledger.
func (e *TradeEngine) WithdrawToLedger(ctx context.Context, userID string, amount decimal.Decimal) (model.Portfolio, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradeEngine.WithdrawToLedger"

	slog.Debug("WithdrawToLedger start", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID), slog.String("amount", amount.String()))
	defer func() {
		slog.Debug("WithdrawToLedger finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID))
	}()

	amount = model.RoundMoney(amount)
	if !amount.IsPositive() {
		return model.Portfolio{}, service.ErrInvalidAmount
	}
	if e.ledger == nil {
		return model.Portfolio{}, service.ErrLedgerUnavailable
	}

	p, err := e.portfolios.Update(ctx, userID, func(p *model.Portfolio) error {
		return portfolioStore.Debit(p, amount)
	})
	if err != nil {
		return model.Portfolio{}, err
	}

	if err = e.ledger.Deposit(ctx, userID, amount, "Stock market withdrawal"); err != nil {
		if !definitelyRejected(err) {
			e.unsettled.Add(1)
			slog.Error(
				"ledger deposit outcome unknown, needs reconciliation",
				slog.String("rqID", rqID),
				slog.String("op", op),
				slog.String("userID", userID),
				slog.String("amount", amount.String()),
				slog.String("err", err.Error()),
			)
			return model.Portfolio{}, fmt.Errorf("%w: %w", service.ErrLedgerUnavailable, err)
		}

		slog.Warn("ledger rejected deposit, refunding portfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		if _, rErr := e.portfolios.Update(ctx, userID, func(p *model.Portfolio) error {
			return portfolioStore.Credit(p, amount)
		}); rErr != nil {
			slog.Error("portfolio refund failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", userID), slog.String("err", rErr.Error()))
		}
		return model.Portfolio{}, fmt.Errorf("%w: %w", service.ErrLedgerUnavailable, err)
	}
	return p, nil
}
