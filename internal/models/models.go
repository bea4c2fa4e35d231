package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order or a held position
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// OrderType is informational only, every order fills immediately
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// Market classifies the venue of a symbol
type Market string

const (
	MarketIndian Market = "indian"
	MarketUS     Market = "us"
	MarketCrypto Market = "crypto"
)

// OrderStatus of an executed order. Only Filled is ever written.
type OrderStatus string

const (
	OrderStatusFilled OrderStatus = "Filled"
)

// User represents a verified account holder
type User struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	IsVerified       bool       `json:"isVerified"`
	ResetToken       string     `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// PendingUser is a signup waiting for OTP verification
type PendingUser struct {
	Name         string
	Email        string
	PasswordHash string
	OTP          string
	OTPExpiry    time.Time
	CreatedAt    time.Time
}

// Position is the aggregated long holding of one symbol
type Position struct {
	Symbol       string          `json:"symbol"`
	StockName    string          `json:"stockName"`
	Side         Side            `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
	Market       Market          `json:"market"`
	LastUpdated  time.Time       `json:"lastUpdated"`
}

// Portfolio holds a user's cash balance and open positions
type Portfolio struct {
	UserID    string          `json:"user"`
	Balance   decimal.Decimal `json:"balance"`
	Positions []Position      `json:"positions"`
	TotalPnL  decimal.Decimal `json:"totalPnL"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate without touching the original
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	c.Positions = make([]Position, len(p.Positions))
	copy(c.Positions, p.Positions)
	return &c
}

// Order is an immutable record of an executed order
type Order struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user"`
	Symbol      string          `json:"symbol"`
	StockName   string          `json:"stockName"`
	OrderType   OrderType       `json:"orderType"`
	Side        Side            `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      OrderStatus     `json:"status"`
	Market      Market          `json:"market"`
	ExecutedAt  time.Time       `json:"executedAt"`
	CreatedAt   time.Time       `json:"createdAt"`
}
