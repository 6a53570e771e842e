package tg

// inline button identifiers
const (
	QuoteBtn   = "quote"
	BuyOneBtn  = "buy1"
	SellOneBtn = "sell1"
)
