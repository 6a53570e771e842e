package xlsxGenerator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	SheetMarket       = "Market"
	SheetPortfolio    = "Portfolio"
	SheetTransactions = "Transactions"
)

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

func (g *XLSXGenerator) Generate(ctx context.Context, report model.Report) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op), slog.String("userID", report.UserID))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	for _, fill := range []func(f *excelize.File, report model.Report) error{
		g.fillMarket,
		g.fillPortfolio,
		g.fillTransactions,
	} {
		if err = fill(f, report); err != nil {
			slog.Error("got error while filling sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, "", err
		}
	}

	// default sheet created by excelize
	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while Saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func header(f *excelize.File, sheet, color string, titles ...string) error {
	_, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}

	styleID, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{color},
		},
	})
	if err != nil {
		return err
	}

	for i, title := range titles {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		_ = f.SetCellStr(sheet, cell, title)
	}

	last, err := excelize.CoordinatesToCellName(len(titles), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, styleID); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	return nil
}

func (g *XLSXGenerator) fillMarket(f *excelize.File, report model.Report) error {
	err := header(f, SheetMarket, "#cfe2f3", "symbol", "name", "category", "price", "change", "change %", "volume", "market cap")
	if err != nil {
		return err
	}

	stocks := slices.Clone(report.Stocks)
	slices.SortFunc(stocks, func(a, b model.Stock) int {
		return b.MarketCap().Cmp(a.MarketCap())
	})

	for i, s := range stocks {
		row := i + 2
		_ = f.SetCellStr(SheetMarket, fmt.Sprintf("A%d", row), s.Symbol)
		_ = f.SetCellStr(SheetMarket, fmt.Sprintf("B%d", row), s.Name)
		_ = f.SetCellStr(SheetMarket, fmt.Sprintf("C%d", row), s.Category.DisplayName())
		_ = f.SetCellValue(SheetMarket, fmt.Sprintf("D%d", row), s.CurrentPrice.InexactFloat64())
		_ = f.SetCellValue(SheetMarket, fmt.Sprintf("E%d", row), s.PriceChange().InexactFloat64())
		_ = f.SetCellValue(SheetMarket, fmt.Sprintf("F%d", row), s.PercentChange())
		_ = f.SetCellInt(SheetMarket, fmt.Sprintf("G%d", row), s.Volume)
		_ = f.SetCellValue(SheetMarket, fmt.Sprintf("H%d", row), s.MarketCap().InexactFloat64())
	}
	return nil
}

func (g *XLSXGenerator) fillPortfolio(f *excelize.File, report model.Report) error {
	err := header(f, SheetPortfolio, "#d9ead3", "symbol", "quantity", "price", "value", "cost basis", "unrealized")
	if err != nil {
		return err
	}

	prices := make(map[string]decimal.Decimal, len(report.Stocks))
	for _, s := range report.Stocks {
		prices[s.Symbol] = s.CurrentPrice
	}

	symbols := make([]string, 0, len(report.Portfolio.Holdings))
	for symbol := range report.Portfolio.Holdings {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)

	row := 2
	for _, symbol := range symbols {
		qty := report.Portfolio.Holdings[symbol]
		price := prices[symbol]
		value := price.Mul(decimal.NewFromInt(int64(qty)))
		basis := report.Portfolio.CostBasis[symbol]

		_ = f.SetCellStr(SheetPortfolio, fmt.Sprintf("A%d", row), symbol)
		_ = f.SetCellInt(SheetPortfolio, fmt.Sprintf("B%d", row), int64(qty))
		_ = f.SetCellValue(SheetPortfolio, fmt.Sprintf("C%d", row), price.InexactFloat64())
		_ = f.SetCellValue(SheetPortfolio, fmt.Sprintf("D%d", row), value.InexactFloat64())
		_ = f.SetCellValue(SheetPortfolio, fmt.Sprintf("E%d", row), model.RoundMoney(basis).InexactFloat64())
		_ = f.SetCellValue(SheetPortfolio, fmt.Sprintf("F%d", row), model.RoundMoney(value.Sub(basis)).InexactFloat64())
		row++
	}

	row++
	m := report.Metrics
	summary := []struct {
		title string
		value any
	}{
		{"cash", m.CashBalance.InexactFloat64()},
		{"total value", m.TotalValue.InexactFloat64()},
		{"total invested", m.TotalInvested.InexactFloat64()},
		{"unrealized P&L", m.UnrealizedPnL.InexactFloat64()},
		{"realized", m.RealizedPnL.InexactFloat64()},
		{"total P&L", m.TotalPnL.InexactFloat64()},
		{"ROI %", m.ROI},
		{"diversity", m.Diversity},
		{"total shares", m.TotalShares},
	}
	for _, line := range summary {
		_ = f.SetCellStr(SheetPortfolio, fmt.Sprintf("A%d", row), line.title)
		_ = f.SetCellValue(SheetPortfolio, fmt.Sprintf("B%d", row), line.value)
		row++
	}
	return nil
}

func (g *XLSXGenerator) fillTransactions(f *excelize.File, report model.Report) error {
	err := header(f, SheetTransactions, "#cccccc", "date", "type", "symbol", "quantity", "price", "total", "fee")
	if err != nil {
		return err
	}

	for i, tx := range report.Transactions {
		row := i + 2
		_ = f.SetCellValue(SheetTransactions, fmt.Sprintf("A%d", row), tx.Timestamp)
		_ = f.SetCellStr(SheetTransactions, fmt.Sprintf("B%d", row), tx.Type.DisplayName())
		_ = f.SetCellStr(SheetTransactions, fmt.Sprintf("C%d", row), tx.Symbol)
		_ = f.SetCellInt(SheetTransactions, fmt.Sprintf("D%d", row), int64(tx.Quantity))
		_ = f.SetCellValue(SheetTransactions, fmt.Sprintf("E%d", row), tx.PricePerShare.InexactFloat64())
		_ = f.SetCellValue(SheetTransactions, fmt.Sprintf("F%d", row), tx.TotalAmount.InexactFloat64())
		_ = f.SetCellValue(SheetTransactions, fmt.Sprintf("G%d", row), tx.Fee.InexactFloat64())
	}
	return nil
}
