package portfolioStore

import (
	"github.com/KotFed0t/stock_market_sim/internal/model"
	"github.com/KotFed0t/stock_market_sim/internal/service"
	"github.com/shopspring/decimal"
)

// The helpers below mutate a draft handed out by PortfolioStore.Update.
// They never leave the draft half-changed on error.

func Credit(p *model.Portfolio, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return service.ErrInvalidAmount
	}
	p.Balance = p.Balance.Add(amount)
	return nil
}

func Debit(p *model.Portfolio, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return service.ErrInvalidAmount
	}
	if p.Balance.LessThan(amount) {
		return service.ErrInsufficientFunds
	}
	p.Balance = p.Balance.Sub(amount)
	return nil
}

// AddShares credits qty shares and adds cost to the symbol's book value.
func AddShares(p *model.Portfolio, symbol string, qty int, cost decimal.Decimal) error {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return service.ErrInvalidSymbol
	}
	if qty <= 0 {
		return service.ErrInvalidQuantity
	}
	p.Holdings[symbol] += qty
	p.CostBasis[symbol] = p.CostBasis[symbol].Add(cost)
	return nil
}

// RemoveShares debits qty shares and releases the matching share of the book
// value at average cost. It returns the released basis.
func RemoveShares(p *model.Portfolio, symbol string, qty int) (decimal.Decimal, error) {
	symbol = model.NormalizeSymbol(symbol)
	if qty <= 0 {
		return decimal.Zero, service.ErrInvalidQuantity
	}
	held := p.Holdings[symbol]
	if held < qty {
		return decimal.Zero, service.ErrInsufficientShares
	}

	basis := p.CostBasis[symbol]
	released := basis.Mul(decimal.NewFromInt(int64(qty))).
		Div(decimal.NewFromInt(int64(held))).
		Round(model.CostBasisScale)

	if held == qty {
		delete(p.Holdings, symbol)
		delete(p.CostBasis, symbol)
		return basis, nil
	}
	p.Holdings[symbol] = held - qty
	p.CostBasis[symbol] = basis.Sub(released)
	return released, nil
}

// normalize drops empty holdings and checks the non-negativity invariants.
func normalize(p *model.Portfolio) error {
	if p.Balance.IsNegative() {
		return service.ErrInsufficientFunds
	}
	for symbol, qty := range p.Holdings {
		if qty < 0 {
			return service.ErrInsufficientShares
		}
		if qty == 0 {
			delete(p.Holdings, symbol)
		}
	}
	for symbol := range p.CostBasis {
		if _, ok := p.Holdings[symbol]; !ok {
			delete(p.CostBasis, symbol)
		}
	}
	return nil
}
