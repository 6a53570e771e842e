package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/KotFed0t/stock_market_sim/internal/converter/telebotConverter"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/service"
	"github.com/KotFed0t/stock_market_sim/internal/service/stockRegistry"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

const (
	adminVolatility = 0.05
	adminUsage      = "Admin commands:\n" +
		"/admin create SYM NAME PRICE [CATEGORY]\n" +
		"/admin ipo SYM NAME PRICE BUSINESS_ID [SHARES]\n" +
		"/admin setprice SYM PRICE\n" +
		"/admin dividend SYM AMOUNT\n" +
		"/admin business BUSINESS_ID REVENUE PROFIT EMPLOYEES\n" +
		"/admin market open|close\n" +
		"/admin stats"
)

type adminHandler func(ctx context.Context, c tele.Context, args []string) error

// Admin dispatches operator subcommands. Access is restricted by the bot's
// admin middleware.
func (ctrl *Controller) Admin(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args := c.Args()
	if len(args) == 0 {
		return c.Send(adminUsage)
	}

	handlers := map[string]adminHandler{
		"create":   ctrl.adminCreate,
		"ipo":      ctrl.adminIPO,
		"setprice": ctrl.adminSetPrice,
		"dividend": ctrl.adminDividend,
		"business": ctrl.adminBusiness,
		"market":   ctrl.adminMarket,
		"stats":    ctrl.adminStats,
	}
	h, ok := handlers[strings.ToLower(args[0])]
	if !ok {
		return c.Send(adminUsage)
	}
	return h(ctx, c, args[1:])
}

func creator(c tele.Context) string {
	if c.Sender() != nil {
		return strconv.FormatInt(c.Sender().ID, 10)
	}
	return userID(c)
}

func (ctrl *Controller) adminCreate(ctx context.Context, c tele.Context, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return c.Send("Usage: /admin create SYM NAME PRICE [CATEGORY]")
	}
	price, err := decimal.NewFromString(args[2])
	if err != nil {
		return c.Send("Invalid price")
	}
	category := model.CategoryCustom
	if len(args) == 4 {
		category = model.ParseCategory(args[3])
	}

	s, err := ctrl.stocks.Create(ctx, stockRegistry.CreateParams{
		Symbol:     args[0],
		Name:       args[1],
		Price:      price,
		Category:   category,
		Volatility: adminVolatility,
		Creator:    creator(c),
	})
	if err != nil {
		return ctrl.replyErr(ctx, c, "stocks.Create", err)
	}
	return c.Send(fmt.Sprintf("Created %s at %s", s.Symbol, telebotConverter.Money(ctrl.currency, s.CurrentPrice)))
}

func (ctrl *Controller) adminIPO(ctx context.Context, c tele.Context, args []string) error {
	if len(args) < 4 || len(args) > 5 {
		return c.Send("Usage: /admin ipo SYM NAME PRICE BUSINESS_ID [SHARES]")
	}
	price, err := decimal.NewFromString(args[2])
	if err != nil {
		return c.Send("Invalid price")
	}
	var shares int64
	if len(args) == 5 {
		shares, err = strconv.ParseInt(args[4], 10, 64)
		if err != nil || shares <= 0 {
			return c.Send("Shares must be a positive number")
		}
	}

	s, err := ctrl.stocks.CreateBusinessStock(ctx, args[0], args[1], price, args[3], shares, creator(c))
	if err != nil {
		return ctrl.replyErr(ctx, c, "stocks.CreateBusinessStock", err)
	}
	return c.Send(fmt.Sprintf("Listed %s for business %s, %d shares at %s", s.Symbol, s.BusinessID, s.SharesIssued, telebotConverter.Money(ctrl.currency, s.CurrentPrice)))
}

func (ctrl *Controller) adminSetPrice(ctx context.Context, c tele.Context, args []string) error {
	if len(args) != 2 {
		return c.Send("Usage: /admin setprice SYM PRICE")
	}
	price, err := decimal.NewFromString(args[1])
	if err != nil {
		return c.Send("Invalid price")
	}

	s, err := ctrl.stocks.UpdatePrice(ctx, args[0], price, stockRegistry.ReasonAdmin)
	if err != nil {
		return ctrl.replyErr(ctx, c, "stocks.UpdatePrice", err)
	}
	return c.Send(fmt.Sprintf("Updated %s price to %s", s.Symbol, telebotConverter.Money(ctrl.currency, s.CurrentPrice)))
}

func (ctrl *Controller) adminDividend(ctx context.Context, c tele.Context, args []string) error {
	if len(args) != 2 {
		return c.Send("Usage: /admin dividend SYM AMOUNT")
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return c.Send("Invalid amount")
	}

	payout, err := ctrl.engine.PayDividends(ctx, args[0], amount)
	if err != nil {
		return ctrl.replyErr(ctx, c, "engine.PayDividends", err)
	}
	return c.Send(fmt.Sprintf(
		"Paid %s dividends to %d shareholders, %s total",
		payout.Symbol,
		payout.ShareholderCount,
		telebotConverter.Money(ctrl.currency, payout.TotalPayout),
	))
}

func (ctrl *Controller) adminBusiness(ctx context.Context, c tele.Context, args []string) error {
	if len(args) != 4 {
		return c.Send("Usage: /admin business BUSINESS_ID REVENUE PROFIT EMPLOYEES")
	}
	revenue, err := decimal.NewFromString(args[1])
	if err != nil {
		return c.Send("Invalid revenue")
	}
	profit, err := decimal.NewFromString(args[2])
	if err != nil {
		return c.Send("Invalid profit")
	}
	employees, err := strconv.Atoi(args[3])
	if err != nil {
		return c.Send("Invalid employee count")
	}

	s, err := ctrl.engine.UpdateBusinessMetrics(ctx, args[0], revenue, profit, employees)
	if errors.Is(err, service.ErrNotFound) {
		return c.Send("Metrics saved, no stock is listed for " + args[0])
	}
	if err != nil {
		return ctrl.replyErr(ctx, c, "engine.UpdateBusinessMetrics", err)
	}
	return c.Send(fmt.Sprintf("Metrics saved, %s repriced to %s", s.Symbol, telebotConverter.Money(ctrl.currency, s.CurrentPrice)))
}

func (ctrl *Controller) adminMarket(ctx context.Context, c tele.Context, args []string) error {
	if len(args) != 1 {
		return c.Send("Usage: /admin market open|close")
	}

	var open bool
	switch strings.ToLower(args[0]) {
	case "open":
		open = true
	case "close":
	default:
		return c.Send("Usage: /admin market open|close")
	}

	if !ctrl.engine.SetMarketOpen(ctx, open, "Operator") {
		return c.Send("Market status unchanged")
	}
	if open {
		return c.Send("Market is now OPEN")
	}
	return c.Send("Market is now CLOSED")
}

func (ctrl *Controller) adminStats(ctx context.Context, c tele.Context, _ []string) error {
	stats, err := ctrl.storage.GetStats(ctx)
	if err != nil {
		return ctrl.replyErr(ctx, c, "storage.GetStats", err)
	}
	return c.Send(telebotConverter.AdminStatsResponse(stats, ctrl.portfolios.DriftCount(), ctrl.engine.UnsettledTransfers()))
}
