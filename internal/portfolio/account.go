// Package portfolio implements the cash and position rules of a paper
// trading account. It performs no I/O: callers load a models.Portfolio,
// apply fills to it and persist the result.
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/errs"
	"github.com/xtrntr/papertrade/internal/models"
)

// maxAmount bounds balances and order values. Stored money columns hold
// 18 integer digits.
var maxAmount = decimal.New(1, 18)

// NormalizeAmount rounds a cash amount to cents and rejects negative or
// out-of-range values.
func NormalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amount.Round(2)
	if amount.IsNegative() || amount.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, errs.Invalid("amount", "Invalid amount")
	}
	return amount, nil
}

// Fill is a validated order applied at a fixed price
type Fill struct {
	Symbol    string
	StockName string
	Side      models.Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Market    models.Market
}

// New returns an empty account for userID
func New(userID string, balance decimal.Decimal, now time.Time) *models.Portfolio {
	return &models.Portfolio{
		UserID:    userID,
		Balance:   balance,
		Positions: []models.Position{},
		TotalPnL:  decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TotalAmount is quantity * price rounded to currency precision
func TotalAmount(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price).Round(2)
}

// Apply executes f against p and returns the order total. On error p is
// left untouched.
func Apply(p *models.Portfolio, f Fill, now time.Time) (decimal.Decimal, error) {
	total := TotalAmount(f.Quantity, f.Price)
	if total.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, errs.Invalid("quantity", "Order value is too large")
	}
	ledger := NewLedger(p.Positions)

	switch f.Side {
	case models.SideBuy:
		if p.Balance.LessThan(total) {
			return decimal.Zero, &errs.InsufficientFundsError{Required: total, Available: p.Balance}
		}
		p.Balance = p.Balance.Sub(total)
		ledger.Add(f.Symbol, f.StockName, f.Market, f.Quantity, f.Price, now)
	case models.SideSell:
		held := ledger.Held(f.Symbol)
		if held.LessThan(f.Quantity) {
			return decimal.Zero, &errs.InsufficientHoldingsError{Symbol: f.Symbol, Held: held}
		}
		if p.Balance.Add(total).GreaterThanOrEqual(maxAmount) {
			return decimal.Zero, errs.Invalid("quantity", "Order value is too large")
		}
		p.Balance = p.Balance.Add(total)
		avg := ledger.Remove(f.Symbol, f.Quantity, now)
		p.TotalPnL = p.TotalPnL.Add(f.Price.Sub(avg).Mul(f.Quantity).Round(2))
	default:
		return decimal.Zero, errs.Invalid("side", "Side must be Buy or Sell")
	}

	p.Positions = ledger.Positions()
	p.UpdatedAt = now
	return total, nil
}

// SetBalance overrides the cash balance with amount rounded to cents
func SetBalance(p *models.Portfolio, amount decimal.Decimal, now time.Time) error {
	amount, err := NormalizeAmount(amount)
	if err != nil {
		return err
	}
	p.Balance = amount
	p.UpdatedAt = now
	return nil
}
