package telebotConverter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/KotFed0t/stock_market_sim/internal/events"
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/model/tg"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

func Money(currency string, d decimal.Decimal) string {
	if d.IsNegative() {
		return "-" + currency + d.Neg().StringFixed(2)
	}
	return currency + d.StringFixed(2)
}

func trendEmoji(s model.Stock) string {
	switch {
	case s.TrendingUp():
		return "📈"
	case s.TrendingDown():
		return "📉"
	default:
		return "➖"
	}
}

func StocksResponse(stocks []model.Stock, currency string) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	if len(stocks) == 0 {
		return "No stocks found", markup
	}

	var sb strings.Builder
	sb.WriteString("📊 Stocks:\n\n")

	rows := make([]tele.Row, 0, (len(stocks)+3)/4)
	btns := make([]tele.Btn, 0, 4)
	for _, s := range stocks {
		sb.WriteString(fmt.Sprintf("%s %s (%s) %s %+.2f%%\n", trendEmoji(s), s.Symbol, s.Name, Money(currency, s.CurrentPrice), s.PercentChange()))

		btns = append(btns, markup.Data(s.Symbol, tg.QuoteBtn, s.Symbol))
		if len(btns) == 4 {
			rows = append(rows, markup.Row(btns...))
			btns = make([]tele.Btn, 0, 4)
		}
	}
	if len(btns) > 0 {
		rows = append(rows, markup.Row(btns...))
	}
	markup.Inline(rows...)

	return sb.String(), markup
}

func QuoteResponse(s model.Stock, buy, sell model.Quote, currency string) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s - %s\n", trendEmoji(s), s.Symbol, s.Name))
	sb.WriteString(fmt.Sprintf("   ▸ Category: %s\n", s.Category.DisplayName()))
	sb.WriteString(fmt.Sprintf("   ▸ Price: %s (%s, %+.2f%%)\n", Money(currency, s.CurrentPrice), Money(currency, s.PriceChange()), s.PercentChange()))
	sb.WriteString(fmt.Sprintf("   ▸ Volume: %d\n", s.Volume))
	sb.WriteString(fmt.Sprintf("   ▸ Market cap: %s\n", Money(currency, s.MarketCap())))
	sb.WriteString(fmt.Sprintf("   ▸ Buy %d: %s (fee %s)\n", buy.Quantity, Money(currency, buy.Total), Money(currency, buy.Fee)))
	sb.WriteString(fmt.Sprintf("   ▸ Sell %d: %s (fee %s)\n", sell.Quantity, Money(currency, sell.Total), Money(currency, sell.Fee)))

	markup.Inline(markup.Row(
		markup.Data("Buy 1", tg.BuyOneBtn, s.Symbol),
		markup.Data("Sell 1", tg.SellOneBtn, s.Symbol),
	))

	return sb.String(), markup
}

func TransactionResponse(tx model.Transaction, balance decimal.Decimal, currency string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ %s %d %s @ %s\n", tx.Type.DisplayName(), tx.Quantity, tx.Symbol, Money(currency, tx.PricePerShare)))
	sb.WriteString(fmt.Sprintf("   ▸ Total: %s\n", Money(currency, tx.TotalAmount)))
	sb.WriteString(fmt.Sprintf("   ▸ Fee: %s\n", Money(currency, tx.Fee)))
	sb.WriteString(fmt.Sprintf("💰 Balance: %s", Money(currency, balance)))
	return sb.String()
}

func PortfolioResponse(p model.Portfolio, m model.PortfolioMetrics, prices map[string]decimal.Decimal, currency string) string {
	var sb strings.Builder

	sb.WriteString("📊 Portfolio\n")
	sb.WriteString(fmt.Sprintf("💰 Cash: %s\n", Money(currency, m.CashBalance)))
	sb.WriteString(fmt.Sprintf("💼 Total value: %s\n", Money(currency, m.TotalValue)))
	sb.WriteString(fmt.Sprintf("   ▸ Invested: %s\n", Money(currency, m.TotalInvested)))
	sb.WriteString(fmt.Sprintf("   ▸ Unrealized P&L: %s\n", Money(currency, m.UnrealizedPnL)))
	sb.WriteString(fmt.Sprintf("   ▸ Realized: %s\n", Money(currency, m.RealizedPnL)))
	sb.WriteString(fmt.Sprintf("   ▸ Total P&L: %s\n", Money(currency, m.TotalPnL)))
	sb.WriteString(fmt.Sprintf("   ▸ ROI: %.2f%%\n", m.ROI))
	sb.WriteString(fmt.Sprintf("   ▸ Diversity: %d stocks, %d shares\n\n", m.Diversity, m.TotalShares))

	if len(p.Holdings) == 0 {
		sb.WriteString("No holdings yet")
		return sb.String()
	}

	symbols := make([]string, 0, len(p.Holdings))
	for symbol := range p.Holdings {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)

	sb.WriteString("📋 Holdings:\n")
	for i, symbol := range symbols {
		qty := p.Holdings[symbol]
		price, ok := prices[symbol]
		if !ok {
			sb.WriteString(fmt.Sprintf("%d. %s: %d shares (delisted)\n", i+1, symbol, qty))
			continue
		}
		value := price.Mul(decimal.NewFromInt(int64(qty)))
		sb.WriteString(fmt.Sprintf("%d. %s: %d × %s = %s\n", i+1, symbol, qty, Money(currency, price), Money(currency, value)))
	}
	return sb.String()
}

func HistoryResponse(txs []model.Transaction, currency string) string {
	if len(txs) == 0 {
		return "No transactions yet"
	}

	var sb strings.Builder
	sb.WriteString("🧾 Recent transactions:\n")
	for _, tx := range txs {
		sb.WriteString(fmt.Sprintf(
			"%s %s %d %s @ %s, total %s, fee %s\n",
			tx.Timestamp.Format("2006-01-02 15:04"),
			tx.Type.DisplayName(),
			tx.Quantity,
			tx.Symbol,
			Money(currency, tx.PricePerShare),
			Money(currency, tx.TotalAmount),
			Money(currency, tx.Fee),
		))
	}
	return sb.String()
}

func TopResponse(ranked []model.RankedPortfolio, currency string) string {
	if len(ranked) == 0 {
		return "No portfolios yet"
	}

	var sb strings.Builder
	sb.WriteString("🏆 Top portfolios:\n")
	for i, r := range ranked {
		sb.WriteString(fmt.Sprintf("%d. %s: %s\n", i+1, r.UserID, Money(currency, r.TotalValue)))
	}
	return sb.String()
}

func StatsResponse(snap model.MarketSnapshot, currency string) string {
	var sb strings.Builder

	status := "🔴 closed"
	if snap.IsOpen {
		status = "🟢 open"
	}
	sb.WriteString(fmt.Sprintf("🏛 Market is %s\n", status))
	sb.WriteString(fmt.Sprintf("   ▸ Stocks: %d\n", snap.StockCount))
	sb.WriteString(fmt.Sprintf("   ▸ Market cap: %s\n", Money(currency, snap.TotalMarketCap)))
	sb.WriteString(fmt.Sprintf("   ▸ Volume: %d\n", snap.TotalVolume))
	if snap.TopGainer != nil {
		sb.WriteString(fmt.Sprintf("   ▸ Top gainer: %s %+.2f%%\n", snap.TopGainer.Symbol, snap.TopGainer.PercentChange()))
	}
	if snap.TopLoser != nil {
		sb.WriteString(fmt.Sprintf("   ▸ Top loser: %s %+.2f%%\n", snap.TopLoser.Symbol, snap.TopLoser.PercentChange()))
	}
	return sb.String()
}

func MarketStatusNews(data events.MarketStatusData) string {
	if data.IsOpen {
		return fmt.Sprintf("🔔 Market is now OPEN: %s", data.Reason)
	}
	return fmt.Sprintf("🔕 Market is now CLOSED: %s", data.Reason)
}

func DividendNews(data events.DividendPaidData, currency string) string {
	return fmt.Sprintf(
		"💵 %s paid %s per share to %d shareholders (%s total)",
		data.Symbol,
		Money(currency, data.PerShare),
		data.ShareholderCount,
		Money(currency, data.TotalPayout),
	)
}

func StockCreatedNews(data events.StockCreatedData, currency string) string {
	return fmt.Sprintf("🆕 New listing: %s (%s) at %s", data.Stock.Symbol, data.Stock.Name, Money(currency, data.Stock.CurrentPrice))
}

// ChartResponse lists at most limit history points, newest first.
func ChartResponse(symbol string, days int, history []model.PriceHistoryEntry, limit int, currency string) string {
	if len(history) == 0 {
		return "No price history available"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 %s, last %d days:\n", symbol, days))
	for i, h := range history {
		if i == limit {
			break
		}
		sb.WriteString(fmt.Sprintf("%s %s %s\n", h.Timestamp.Format("2006-01-02 15:04"), Money(currency, h.Price), h.Reason))
	}
	return sb.String()
}

func PerformersResponse(title string, stocks []model.Stock) string {
	if len(stocks) == 0 {
		return "No stocks found"
	}

	var sb strings.Builder
	sb.WriteString(title + ":\n")
	for i, s := range stocks {
		sb.WriteString(fmt.Sprintf("%d. %s %+.2f%%\n", i+1, s.Symbol, s.PercentChange()))
	}
	return sb.String()
}

// BalanceResponse shows the external account line only when external is set.
func BalanceResponse(cash decimal.Decimal, external *decimal.Decimal, currency string) string {
	text := "💰 Cash: " + Money(currency, cash)
	if external != nil {
		text += "\n🏦 External account: " + Money(currency, *external)
	}
	return text
}

// AdminStatsResponse renders storage row counts sorted by table name plus the
// engine's consistency counters.
func AdminStatsResponse(stats map[string]int64, drift, unsettled int64) string {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	slices.Sort(names)

	var sb strings.Builder
	sb.WriteString("🗄 Storage:\n")
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("   ▸ %s: %d\n", name, stats[name]))
	}
	sb.WriteString(fmt.Sprintf("⚠️ Holdings of unknown stocks: %d\n", drift))
	sb.WriteString(fmt.Sprintf("⚠️ Unsettled ledger transfers: %d\n", unsettled))
	return sb.String()
}
