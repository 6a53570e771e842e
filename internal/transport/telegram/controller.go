package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/KotFed0t/stock_market_sim/internal/converter/telebotConverter"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/service"
	"github.com/KotFed0t/stock_market_sim/internal/service/stockRegistry"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

const (
	internalErrMsg   = "something went wrong..."
	defaultHistory   = 10
	maxHistory       = 50
	topPortfolios    = 10
	topStocks        = 10
	defaultQuoteSize = 1
	defaultChartDays = 7
	maxChartDays     = 30
	chartPoints      = 10
)

type Stocks interface {
	All() []model.Stock
	Search(query string) []model.Stock
	Get(symbol string) (model.Stock, error)
	Snapshot(isOpen bool) model.MarketSnapshot
	History(ctx context.Context, symbol string, days int) ([]model.PriceHistoryEntry, error)
	TopPerformers(n int) []model.Stock
	WorstPerformers(n int) []model.Stock
	Create(ctx context.Context, p stockRegistry.CreateParams) (model.Stock, error)
	CreateBusinessStock(ctx context.Context, symbol, name string, price decimal.Decimal, businessID string, sharesIssued int64, creator string) (model.Stock, error)
	UpdatePrice(ctx context.Context, symbol string, newPrice decimal.Decimal, reason string) (model.Stock, error)
}

type Engine interface {
	Quote(symbol string, qty int, side model.TransactionType) (model.Quote, error)
	Buy(ctx context.Context, userID, symbol string, qty int) (model.Transaction, error)
	Sell(ctx context.Context, userID, symbol string, qty int) (model.Transaction, error)
	IsMarketOpen() bool
	TransactionHistory(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
	ExternalBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	DepositFromLedger(ctx context.Context, userID string, amount decimal.Decimal) (model.Portfolio, error)
	WithdrawToLedger(ctx context.Context, userID string, amount decimal.Decimal) (model.Portfolio, error)
	UnsettledTransfers() int64
	PayDividends(ctx context.Context, symbol string, perShare decimal.Decimal) (model.DividendPayout, error)
	SetMarketOpen(ctx context.Context, open bool, reason string) bool
	UpdateBusinessMetrics(ctx context.Context, businessID string, revenue, profit decimal.Decimal, employeeCount int) (model.Stock, error)
}

type Portfolios interface {
	Get(ctx context.Context, userID string) (model.Portfolio, error)
	Metrics(ctx context.Context, userID string) (model.PortfolioMetrics, error)
	TopPortfolios(ctx context.Context, limit int) []model.RankedPortfolio
	DriftCount() int64
}

type Storage interface {
	GetStats(ctx context.Context) (map[string]int64, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, report model.Report) (fileBytes []byte, fileExtension string, err error)
}

type Controller struct {
	stocks        Stocks
	engine        Engine
	portfolios    Portfolios
	storage       Storage
	reportGen     ReportGenerator
	currency      string
	ledgerEnabled bool
}

func NewController(
	stocks Stocks,
	engine Engine,
	portfolios Portfolios,
	storage Storage,
	reportGen ReportGenerator,
	currency string,
	ledgerEnabled bool,
) *Controller {
	return &Controller{
		stocks:        stocks,
		engine:        engine,
		portfolios:    portfolios,
		storage:       storage,
		reportGen:     reportGen,
		currency:      currency,
		ledgerEnabled: ledgerEnabled,
	}
}

// LedgerEnabled reports whether the external account commands are served.
func (ctrl *Controller) LedgerEnabled() bool {
	return ctrl.ledgerEnabled
}

func userID(c tele.Context) string {
	return strconv.FormatInt(c.Chat().ID, 10)
}

// errorMessage turns a rejected operation into a reply. ok is false for
// unexpected failures, which get the generic message.
func errorMessage(err error) (msg string, ok bool) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return "Unknown stock", true
	case errors.Is(err, service.ErrMarketClosed):
		return "Market is closed, try again later", true
	case errors.Is(err, service.ErrInsufficientFunds):
		return "Insufficient funds", true
	case errors.Is(err, service.ErrInsufficientShares):
		return "Insufficient shares", true
	case errors.Is(err, service.ErrInvalidQuantity):
		return "Quantity must be a positive number", true
	case errors.Is(err, service.ErrInvalidAmount):
		return "Amount must be positive", true
	case errors.Is(err, service.ErrInvalidSymbol):
		return "Symbol is required", true
	case errors.Is(err, service.ErrInvalidPrice):
		return "Price must be positive", true
	case errors.Is(err, service.ErrAlreadyExists):
		return "Already listed", true
	case errors.Is(err, service.ErrLedgerUnavailable):
		return "External account is unavailable", true
	}
	return "", false
}

func (ctrl *Controller) replyErr(ctx context.Context, c tele.Context, op string, err error) error {
	if msg, ok := errorMessage(err); ok {
		return c.Send(msg)
	}
	slog.Error(
		"got error from "+op,
		slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
		slog.String("err", err.Error()),
	)
	return c.Send(internalErrMsg)
}

func (ctrl *Controller) Start(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	p, err := ctrl.portfolios.Get(ctx, userID(c))
	if err != nil {
		return ctrl.replyErr(ctx, c, "portfolios.Get", err)
	}

	help := fmt.Sprintf(
		"Welcome to the market! 💰 Balance: %s\n\n"+
			"/stocks [query] - list stocks\n"+
			"/quote SYM [QTY] - quote\n"+
			"/chart SYM [DAYS] - price history\n"+
			"/buy SYM QTY - buy shares\n"+
			"/sell SYM QTY - sell shares\n"+
			"/portfolio - your portfolio\n"+
			"/balance - your cash\n"+
			"/history [N] - recent transactions\n"+
			"/top [portfolios|performers|losers] - rankings\n"+
			"/stats - market overview\n"+
			"/report - xlsx report",
		telebotConverter.Money(ctrl.currency, p.Balance),
	)
	if ctrl.ledgerEnabled {
		help += "\n/deposit AMOUNT, /withdraw AMOUNT - move funds to or from your external account"
	}
	return c.Send(help)
}

func (ctrl *Controller) Stocks(c tele.Context) error {
	query := strings.TrimSpace(c.Message().Payload)

	var stocks []model.Stock
	if query == "" {
		stocks = ctrl.stocks.All()
	} else {
		stocks = ctrl.stocks.Search(query)
	}

	text, markup := telebotConverter.StocksResponse(stocks, ctrl.currency)
	return c.Send(text, markup)
}

func (ctrl *Controller) Quote(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args := c.Args()
	if len(args) == 0 {
		return c.Send("Usage: /quote SYM [QTY]")
	}
	qty := defaultQuoteSize
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return c.Send("Quantity must be an integer")
		}
		qty = n
	}

	return ctrl.sendQuote(ctx, c, args[0], qty)
}

// QuoteCallback answers the stock buttons of the /stocks list.
func (ctrl *Controller) QuoteCallback(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	_ = c.Respond()
	return ctrl.sendQuote(ctx, c, c.Callback().Data, defaultQuoteSize)
}

func (ctrl *Controller) sendQuote(ctx context.Context, c tele.Context, symbol string, qty int) error {
	stock, err := ctrl.stocks.Get(symbol)
	if err != nil {
		return ctrl.replyErr(ctx, c, "stocks.Get", err)
	}
	buy, err := ctrl.engine.Quote(symbol, qty, model.TransactionBuy)
	if err != nil {
		return ctrl.replyErr(ctx, c, "engine.Quote", err)
	}
	sell, err := ctrl.engine.Quote(symbol, qty, model.TransactionSell)
	if err != nil {
		return ctrl.replyErr(ctx, c, "engine.Quote", err)
	}

	text, markup := telebotConverter.QuoteResponse(stock, buy, sell, ctrl.currency)
	return c.Send(text, markup)
}

func parseOrder(args []string) (symbol string, qty int, err error) {
	if len(args) != 2 {
		return "", 0, errors.New("usage")
	}
	qty, err = strconv.Atoi(args[1])
	if err != nil {
		return "", 0, err
	}
	return args[0], qty, nil
}

func (ctrl *Controller) Buy(c tele.Context) error {
	symbol, qty, err := parseOrder(c.Args())
	if err != nil {
		return c.Send("Usage: /buy SYM QTY")
	}
	return ctrl.trade(c, model.TransactionBuy, symbol, qty)
}

func (ctrl *Controller) Sell(c tele.Context) error {
	symbol, qty, err := parseOrder(c.Args())
	if err != nil {
		return c.Send("Usage: /sell SYM QTY")
	}
	return ctrl.trade(c, model.TransactionSell, symbol, qty)
}

func (ctrl *Controller) BuyOneCallback(c tele.Context) error {
	_ = c.Respond()
	return ctrl.trade(c, model.TransactionBuy, c.Callback().Data, 1)
}

func (ctrl *Controller) SellOneCallback(c tele.Context) error {
	_ = c.Respond()
	return ctrl.trade(c, model.TransactionSell, c.Callback().Data, 1)
}

func (ctrl *Controller) trade(c tele.Context, side model.TransactionType, symbol string, qty int) error {
	ctx := utils.CreateCtxWithRqID(c)
	uid := userID(c)

	var (
		tx  model.Transaction
		err error
	)
	if side == model.TransactionBuy {
		tx, err = ctrl.engine.Buy(ctx, uid, symbol, qty)
	} else {
		tx, err = ctrl.engine.Sell(ctx, uid, symbol, qty)
	}
	if err != nil {
		return ctrl.replyErr(ctx, c, "engine."+side.DisplayName(), err)
	}

	p, err := ctrl.portfolios.Get(ctx, uid)
	if err != nil {
		return ctrl.replyErr(ctx, c, "portfolios.Get", err)
	}

	return c.Send(telebotConverter.TransactionResponse(tx, p.Balance, ctrl.currency))
}

func (ctrl *Controller) prices(holdings map[string]int) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(holdings))
	for symbol := range holdings {
		if s, err := ctrl.stocks.Get(symbol); err == nil {
			prices[symbol] = s.CurrentPrice
		}
	}
	return prices
}

func (ctrl *Controller) Portfolio(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	uid := userID(c)

	p, err := ctrl.portfolios.Get(ctx, uid)
	if err != nil {
		return ctrl.replyErr(ctx, c, "portfolios.Get", err)
	}
	m, err := ctrl.portfolios.Metrics(ctx, uid)
	if err != nil {
		return ctrl.replyErr(ctx, c, "portfolios.Metrics", err)
	}

	return c.Send(telebotConverter.PortfolioResponse(p, m, ctrl.prices(p.Holdings), ctrl.currency))
}

func (ctrl *Controller) History(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	limit := defaultHistory
	if args := c.Args(); len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return c.Send("Usage: /history [N]")
		}
		limit = min(n, maxHistory)
	}

	txs, err := ctrl.engine.TransactionHistory(ctx, userID(c), limit)
	if err != nil {
		return ctrl.replyErr(ctx, c, "engine.TransactionHistory", err)
	}
	return c.Send(telebotConverter.HistoryResponse(txs, ctrl.currency))
}

func (ctrl *Controller) Top(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	kind := "portfolios"
	if args := c.Args(); len(args) > 0 {
		kind = strings.ToLower(args[0])
	}

	switch kind {
	case "portfolios":
		return c.Send(telebotConverter.TopResponse(ctrl.portfolios.TopPortfolios(ctx, topPortfolios), ctrl.currency))
	case "performers", "gainers":
		return c.Send(telebotConverter.PerformersResponse("📈 Top performers", ctrl.stocks.TopPerformers(topStocks)))
	case "losers":
		return c.Send(telebotConverter.PerformersResponse("📉 Worst performers", ctrl.stocks.WorstPerformers(topStocks)))
	}
	return c.Send("Usage: /top [portfolios|performers|losers]")
}

func (ctrl *Controller) Chart(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args := c.Args()
	if len(args) == 0 || len(args) > 2 {
		return c.Send("Usage: /chart SYM [DAYS]")
	}
	days := defaultChartDays
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return c.Send("Usage: /chart SYM [DAYS]")
		}
		days = min(n, maxChartDays)
	}

	stock, err := ctrl.stocks.Get(args[0])
	if err != nil {
		return ctrl.replyErr(ctx, c, "stocks.Get", err)
	}
	history, err := ctrl.stocks.History(ctx, stock.Symbol, days)
	if err != nil {
		return ctrl.replyErr(ctx, c, "stocks.History", err)
	}
	return c.Send(telebotConverter.ChartResponse(stock.Symbol, days, history, chartPoints, ctrl.currency))
}

// Balance shows the portfolio cash and, with the ledger configured, the
// external account. An unreachable ledger only drops that line.
func (ctrl *Controller) Balance(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	uid := userID(c)

	p, err := ctrl.portfolios.Get(ctx, uid)
	if err != nil {
		return ctrl.replyErr(ctx, c, "portfolios.Get", err)
	}

	var external *decimal.Decimal
	if ctrl.ledgerEnabled {
		if balance, err := ctrl.engine.ExternalBalance(ctx, uid); err == nil {
			external = &balance
		}
	}
	return c.Send(telebotConverter.BalanceResponse(p.Balance, external, ctrl.currency))
}

func (ctrl *Controller) Stats(c tele.Context) error {
	snap := ctrl.stocks.Snapshot(ctrl.engine.IsMarketOpen())
	return c.Send(telebotConverter.StatsResponse(snap, ctrl.currency))
}

func (ctrl *Controller) Report(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	uid := userID(c)

	p, err := ctrl.portfolios.Get(ctx, uid)
	if err != nil {
		return ctrl.replyErr(ctx, c, "portfolios.Get", err)
	}
	m, err := ctrl.portfolios.Metrics(ctx, uid)
	if err != nil {
		return ctrl.replyErr(ctx, c, "portfolios.Metrics", err)
	}
	txs, err := ctrl.engine.TransactionHistory(ctx, uid, 0)
	if err != nil {
		return ctrl.replyErr(ctx, c, "engine.TransactionHistory", err)
	}

	now := time.Now()
	fileBytes, ext, err := ctrl.reportGen.Generate(ctx, model.Report{
		UserID:       uid,
		Portfolio:    p,
		Metrics:      m,
		Stocks:       ctrl.stocks.All(),
		Transactions: txs,
		GeneratedAt:  now,
	})
	if err != nil {
		return ctrl.replyErr(ctx, c, "reportGen.Generate", err)
	}

	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(fileBytes)),
		FileName: fmt.Sprintf("report_%s%s", now.Format("2006-01-02_15-04"), ext),
	}
	return c.Send(doc)
}

func (ctrl *Controller) Deposit(c tele.Context) error {
	return ctrl.moveFunds(c, "/deposit", ctrl.engine.DepositFromLedger)
}

func (ctrl *Controller) Withdraw(c tele.Context) error {
	return ctrl.moveFunds(c, "/withdraw", ctrl.engine.WithdrawToLedger)
}

func (ctrl *Controller) moveFunds(
	c tele.Context,
	command string,
	move func(ctx context.Context, userID string, amount decimal.Decimal) (model.Portfolio, error),
) error {
	ctx := utils.CreateCtxWithRqID(c)

	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: " + command + " AMOUNT")
	}
	amount, err := decimal.NewFromString(args[0])
	if err != nil {
		return c.Send("Amount must be a number")
	}

	p, err := move(ctx, userID(c), amount)
	if err != nil {
		return ctrl.replyErr(ctx, c, command, err)
	}
	return c.Send("💰 Balance: " + telebotConverter.Money(ctrl.currency, p.Balance))
}
