package dbConverter

import (
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/model/dbModel"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func ConvertStock(dbStock dbModel.Stock) model.Stock {
	return model.Stock{
		Symbol:        dbStock.Symbol,
		Name:          dbStock.Name,
		CurrentPrice:  dbStock.CurrentPrice,
		PreviousPrice: dbStock.PreviousPrice,
		Category:      model.ParseCategory(dbStock.Category),
		Volatility:    dbStock.Volatility,
		Volume:        dbStock.Volume,
		SharesIssued:  dbStock.SharesIssued,
		BusinessID:    dbStock.BusinessID.String,
		DividendYield: dbStock.DividendYield,
		LastUpdated:   dbStock.LastUpdated,
	}
}

func ConvertStockToDb(stock model.Stock) dbModel.Stock {
	return dbModel.Stock{
		Symbol:        stock.Symbol,
		Name:          stock.Name,
		CurrentPrice:  stock.CurrentPrice,
		PreviousPrice: stock.PreviousPrice,
		Category:      string(stock.Category),
		Volatility:    stock.Volatility,
		Volume:        stock.Volume,
		SharesIssued:  stock.SharesIssued,
		BusinessID:    pgtype.Text{String: stock.BusinessID, Valid: stock.BusinessID != ""},
		DividendYield: stock.DividendYield,
		LastUpdated:   stock.LastUpdated,
	}
}

func ConvertPriceHistory(dbEntry dbModel.PriceHistory) model.PriceHistoryEntry {
	return model.PriceHistoryEntry{
		Timestamp: dbEntry.CreatedAt,
		Price:     dbEntry.Price,
		Volume:    dbEntry.Volume,
		Reason:    dbEntry.Reason,
	}
}

// ConvertPortfolio joins the portfolio row with its holding rows.
func ConvertPortfolio(dbPortfolio dbModel.Portfolio, holdings []dbModel.Holding) model.Portfolio {
	p := model.Portfolio{
		UserID:        dbPortfolio.UserID,
		Balance:       dbPortfolio.Balance,
		Holdings:      make(map[string]int, len(holdings)),
		CostBasis:     make(map[string]decimal.Decimal, len(holdings)),
		TotalInvested: dbPortfolio.TotalInvested,
		TotalRealized: dbPortfolio.TotalRealized,
		LastUpdated:   dbPortfolio.LastUpdated,
	}
	for _, h := range holdings {
		p.Holdings[h.Symbol] = h.Quantity
		p.CostBasis[h.Symbol] = h.CostBasis
	}
	return p
}

func ConvertTransaction(dbTx dbModel.Transaction) model.Transaction {
	return model.Transaction{
		ID:            dbTx.ID,
		UserID:        dbTx.UserID,
		Symbol:        dbTx.Symbol,
		Type:          model.TransactionType(dbTx.Type),
		Quantity:      dbTx.Quantity,
		PricePerShare: dbTx.PricePerShare,
		TotalAmount:   dbTx.TotalAmount,
		Fee:           dbTx.Fee,
		Timestamp:     dbTx.CreatedAt,
	}
}

func ConvertBusinessMetrics(dbMetrics dbModel.BusinessMetrics) model.BusinessMetrics {
	return model.BusinessMetrics{
		BusinessID:    dbMetrics.BusinessID,
		Revenue:       dbMetrics.Revenue,
		Profit:        dbMetrics.Profit,
		EmployeeCount: dbMetrics.EmployeeCount,
		LastUpdated:   dbMetrics.LastUpdated,
	}
}
