package xlsxGenerator

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestXLSXGenerator_Generate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	portfolio := model.NewPortfolio("1", decimal.RequireFromString("8999"), now)
	portfolio.Holdings["TECH"] = 10
	portfolio.CostBasis["TECH"] = decimal.RequireFromString("1000")

	report := model.Report{
		UserID:    "1",
		Portfolio: portfolio,
		Metrics: model.PortfolioMetrics{
			CashBalance: portfolio.Balance,
			TotalValue:  decimal.RequireFromString("10099"),
			Diversity:   1,
			TotalShares: 10,
		},
		Stocks: []model.Stock{
			{Symbol: "SMALL", Name: "Small", CurrentPrice: decimal.NewFromInt(1), PreviousPrice: decimal.NewFromInt(1), SharesIssued: 10, Category: model.CategoryCustom},
			{Symbol: "TECH", Name: "TechCorp", CurrentPrice: decimal.NewFromInt(110), PreviousPrice: decimal.NewFromInt(100), SharesIssued: 1000, Category: model.CategoryTechnology},
		},
		Transactions: []model.Transaction{
			model.NewTransaction("1", "TECH", model.TransactionBuy, 10, decimal.NewFromInt(100), decimal.NewFromInt(1000), decimal.NewFromInt(1), now),
		},
		GeneratedAt: now,
	}

	data, ext, err := New().Generate(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", ext)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SheetMarket, SheetPortfolio, SheetTransactions}, f.GetSheetList())

	cell := func(sheet, axis string) string {
		v, err := f.GetCellValue(sheet, axis)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "symbol", cell(SheetMarket, "A1"))
	assert.Equal(t, "TECH", cell(SheetMarket, "A2"))
	assert.Equal(t, "SMALL", cell(SheetMarket, "A3"))

	assert.Equal(t, "TECH", cell(SheetPortfolio, "A2"))
	assert.Equal(t, "10", cell(SheetPortfolio, "B2"))
	assert.Equal(t, "1100", cell(SheetPortfolio, "D2"))
	assert.Equal(t, "100", cell(SheetPortfolio, "F2"))
	assert.Equal(t, "cash", cell(SheetPortfolio, "A4"))

	assert.Equal(t, "Buy", cell(SheetTransactions, "B2"))
	assert.Equal(t, "TECH", cell(SheetTransactions, "C2"))
}

func TestXLSXGenerator_EmptyReport(t *testing.T) {
	t.Parallel()

	data, _, err := New().Generate(context.Background(), model.Report{UserID: "1"})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(SheetTransactions)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
