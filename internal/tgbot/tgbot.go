package tgbot

import (
	"fmt"
	"log/slog"

	"github.com/KotFed0t/stock_market_sim/config"
	"github.com/KotFed0t/stock_market_sim/internal/model/tg"
	"github.com/KotFed0t/stock_market_sim/internal/transport/telegram"
	customMW "github.com/KotFed0t/stock_market_sim/internal/transport/telegram/middleware"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
)

type TGBot struct {
	bot      *tele.Bot
	ctrl     *telegram.Controller
	adminIDs []int64
}

func New(cfg *config.Config, ctrl *telegram.Controller) (*TGBot, error) {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.UpdTimeout},
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		slog.Error("error while tele.NewBot", slog.String("err", err.Error()))
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return &TGBot{bot: b, ctrl: ctrl, adminIDs: cfg.Telegram.AdminIDs}, nil
}

// Bot exposes the underlying client for the news notifier.
func (b *TGBot) Bot() *tele.Bot {
	return b.bot
}

func (b *TGBot) Start() {
	b.bot.Use(middleware.Recover(), customMW.Logger())

	b.setupRoutes()

	go b.bot.Start()
	slog.Info("tgbot started!")
}

func (b *TGBot) Stop() {
	slog.Info("start stopping tgbot")
	b.bot.Stop()
	slog.Info("tgbot stopped")
}

func (b *TGBot) setupRoutes() {
	b.bot.Handle("/start", b.ctrl.Start)
	b.bot.Handle("/stocks", b.ctrl.Stocks)
	b.bot.Handle("/quote", b.ctrl.Quote)
	b.bot.Handle("/buy", b.ctrl.Buy)
	b.bot.Handle("/sell", b.ctrl.Sell)
	b.bot.Handle("/portfolio", b.ctrl.Portfolio)
	b.bot.Handle("/history", b.ctrl.History)
	b.bot.Handle("/chart", b.ctrl.Chart)
	b.bot.Handle("/balance", b.ctrl.Balance)
	b.bot.Handle("/top", b.ctrl.Top)
	b.bot.Handle("/stats", b.ctrl.Stats)
	b.bot.Handle("/report", b.ctrl.Report)

	if b.ctrl.LedgerEnabled() {
		b.bot.Handle("/deposit", b.ctrl.Deposit)
		b.bot.Handle("/withdraw", b.ctrl.Withdraw)
	}

	admin := b.bot.Group()
	admin.Use(customMW.AdminOnly(b.adminIDs))
	admin.Handle("/admin", b.ctrl.Admin)

	b.bot.Handle(&tele.Btn{Unique: tg.QuoteBtn}, b.ctrl.QuoteCallback)
	b.bot.Handle(&tele.Btn{Unique: tg.BuyOneBtn}, b.ctrl.BuyOneCallback)
	b.bot.Handle(&tele.Btn{Unique: tg.SellOneBtn}, b.ctrl.SellOneCallback)

	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		return c.Send("Send /start to see the available commands")
	})
}
