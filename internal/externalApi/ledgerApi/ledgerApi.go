package ledgerApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/KotFed0t/stock_market_sim/config"
	"github.com/KotFed0t/stock_market_sim/internal/externalApi"
	"github.com/KotFed0t/stock_market_sim/internal/model/ledgerModel"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

type LedgerApi struct {
	client *resty.Client
}

func New(cfg *config.Config) *LedgerApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.LedgerApi.Url)
	if cfg.API.LedgerApi.Token != "" {
		client.SetAuthToken(cfg.API.LedgerApi.Token)
	}
	return &LedgerApi{client: client}
}

func (a *LedgerApi) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	rqId := utils.GetRequestIDFromCtx(ctx)
	path := "/balances/" + url.PathEscape(userID)

	slog.Debug("start LedgerApi.GetBalance request", slog.String("rqID", rqId), slog.String("userID", userID))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("X-Request-ID", rqId).
		Get(path)
	if err != nil {
		slog.Error("error while dialing LedgerApi", slog.String("err", err.Error()), slog.String("rqID", rqId))
		return decimal.Zero, err
	}

	if err = checkStatus(resp); err != nil {
		slog.Warn("LedgerApi.GetBalance bad status", slog.String("err", err.Error()), slog.String("rqID", rqId))
		return decimal.Zero, err
	}

	balance := ledgerModel.Balance{}
	err = json.Unmarshal(resp.Body(), &balance)
	if err != nil {
		slog.Error("can't unmarshall response into ledgerModel.Balance", slog.String("err", err.Error()), slog.String("rqID", rqId))
		return decimal.Zero, err
	}

	slog.Debug("LedgerApi.GetBalance request complete", slog.String("rqID", rqId))

	return balance.Balance, nil
}

func (a *LedgerApi) Deposit(ctx context.Context, userID string, amount decimal.Decimal, memo string) error {
	return a.move(ctx, userID, "deposit", amount, memo)
}

func (a *LedgerApi) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, memo string) error {
	return a.move(ctx, userID, "withdraw", amount, memo)
}

func (a *LedgerApi) move(ctx context.Context, userID, action string, amount decimal.Decimal, memo string) error {
	rqId := utils.GetRequestIDFromCtx(ctx)
	path := fmt.Sprintf("/balances/%s/%s", url.PathEscape(userID), action)

	slog.Debug("start LedgerApi.move request", slog.String("rqID", rqId), slog.String("action", action), slog.String("amount", amount.String()))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("X-Request-ID", rqId).
		SetBody(ledgerModel.MoveRequest{Amount: amount, Memo: memo}).
		Post(path)
	if err != nil {
		slog.Error("error while dialing LedgerApi", slog.String("err", err.Error()), slog.String("rqID", rqId))
		return err
	}

	if err = checkStatus(resp); err != nil {
		slog.Warn("LedgerApi.move bad status", slog.String("err", err.Error()), slog.String("rqID", rqId), slog.String("action", action))
		return err
	}

	result := ledgerModel.MoveResponse{}
	err = json.Unmarshal(resp.Body(), &result)
	if err != nil {
		slog.Error("can't unmarshall response into ledgerModel.MoveResponse", slog.String("err", err.Error()), slog.String("rqID", rqId))
		return err
	}
	if !result.Success {
		return fmt.Errorf("%w: %s", externalApi.ErrRejected, result.Error)
	}

	slog.Debug("LedgerApi.move request complete", slog.String("rqID", rqId), slog.String("action", action))

	return nil
}

func checkStatus(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return externalApi.ErrNotFound
	case resp.StatusCode() >= http.StatusBadRequest && resp.StatusCode() < http.StatusInternalServerError:
		return fmt.Errorf("%w: %d", externalApi.ErrRejected, resp.StatusCode())
	case resp.IsError():
		return fmt.Errorf("%w: %d", externalApi.ErrUnexpectedCode, resp.StatusCode())
	}
	return nil
}
