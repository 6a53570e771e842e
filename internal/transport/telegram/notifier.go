package telegram

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/stock_market_sim/internal/converter/telebotConverter"
	"github.com/KotFed0t/stock_market_sim/internal/events"
	"github.com/KotFed0t/stock_market_sim/utils"
	tele "gopkg.in/telebot.v4"
)

type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier posts market news to a single chat.
type Notifier struct {
	sender   Sender
	chat     tele.Recipient
	currency string
}

func NewNotifier(sender Sender, chatID int64, currency string) *Notifier {
	return &Notifier{
		sender:   sender,
		chat:     tele.ChatID(chatID),
		currency: currency,
	}
}

func (n *Notifier) Broadcast(ctx context.Context, message string) {
	if _, err := n.sender.Send(n.chat, message); err != nil {
		slog.Error(
			"can't send news",
			slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
			slog.String("err", err.Error()),
		)
	}
}

// Attach subscribes to status changes, dividends and new listings. Market
// events are announced by the market scheduler itself.
func (n *Notifier) Attach(bus *events.Bus) []*events.Subscription {
	return []*events.Subscription{
		bus.Subscribe(events.MarketStatusChanged, n.handle),
		bus.Subscribe(events.DividendPaid, n.handle),
		bus.Subscribe(events.StockCreated, n.handle),
	}
}

func (n *Notifier) handle(ctx context.Context, e events.Event) {
	var message string
	switch payload := e.Payload.(type) {
	case events.MarketStatusData:
		message = telebotConverter.MarketStatusNews(payload)
	case events.DividendPaidData:
		message = telebotConverter.DividendNews(payload, n.currency)
	case events.StockCreatedData:
		message = telebotConverter.StockCreatedNews(payload, n.currency)
	default:
		return
	}
	n.Broadcast(ctx, message)
}
