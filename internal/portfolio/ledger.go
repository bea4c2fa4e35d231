package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/models"
)

// Ledger is the ordered set of long positions of a single account.
// It holds at most one entry per symbol and never a zero quantity.
type Ledger struct {
	positions []models.Position
}

// NewLedger wraps positions. The slice is owned by the ledger afterwards.
func NewLedger(positions []models.Position) *Ledger {
	return &Ledger{positions: positions}
}

// Positions returns the current entries
func (l *Ledger) Positions() []models.Position {
	if l.positions == nil {
		return []models.Position{}
	}
	return l.positions
}

// Held returns the long quantity held for symbol, zero if none
func (l *Ledger) Held(symbol string) decimal.Decimal {
	if i := l.find(symbol); i >= 0 {
		return l.positions[i].Quantity
	}
	return decimal.Zero
}

func (l *Ledger) find(symbol string) int {
	for i := range l.positions {
		if l.positions[i].Symbol == symbol && l.positions[i].Side == models.SideBuy {
			return i
		}
	}
	return -1
}

// Add merges qty bought at price into the position for symbol, blending the
// average cost by quantity. A missing position is appended.
func (l *Ledger) Add(symbol, stockName string, market models.Market, qty, price decimal.Decimal, now time.Time) models.Position {
	i := l.find(symbol)
	if i < 0 {
		l.positions = append(l.positions, models.Position{
			Symbol:       symbol,
			StockName:    stockName,
			Side:         models.SideBuy,
			Quantity:     qty,
			AveragePrice: price,
			Market:       market,
			LastUpdated:  now,
		})
		return l.positions[len(l.positions)-1]
	}

	pos := &l.positions[i]
	prevCost := pos.AveragePrice.Mul(pos.Quantity)
	newCost := price.Mul(qty)
	totalQty := pos.Quantity.Add(qty)
	pos.AveragePrice = prevCost.Add(newCost).Div(totalQty)
	pos.Quantity = totalQty
	pos.LastUpdated = now
	return *pos
}

// Remove takes qty out of the position for symbol and returns the average
// cost it was carried at. The caller must have checked Held first.
// A position reaching zero is dropped.
func (l *Ledger) Remove(symbol string, qty decimal.Decimal, now time.Time) decimal.Decimal {
	i := l.find(symbol)
	if i < 0 {
		return decimal.Zero
	}
	pos := &l.positions[i]
	avg := pos.AveragePrice
	pos.Quantity = pos.Quantity.Sub(qty)
	pos.LastUpdated = now
	if pos.Quantity.Sign() <= 0 {
		l.positions = append(l.positions[:i], l.positions[i+1:]...)
	}
	return avg
}
