package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/errs"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/portfolio"
)

// Store persists portfolios and order history.
//
// UpdatePortfolio must hold an exclusive per-user lock for the whole call:
// it loads (or creates with startingBalance) the portfolio, hands it to fn
// for mutation and, when fn succeeds, saves the portfolio together with the
// order fn returned in one atomic write. When fn fails nothing is written.
type Store interface {
	GetOrCreatePortfolio(ctx context.Context, userID string, startingBalance decimal.Decimal) (*models.Portfolio, error)
	GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error)
	UpdatePortfolio(ctx context.Context, userID string, startingBalance decimal.Decimal, fn func(p *models.Portfolio) (*models.Order, error)) (*models.Portfolio, error)
	ListOrders(ctx context.Context, userID string, limit, offset int) ([]models.Order, int, error)
}

// OrderListener is told about every executed order. Implementations must
// not block.
type OrderListener interface {
	OrderFilled(order models.Order)
}

// Exchange executes orders against user portfolios
type Exchange struct {
	store           Store
	listeners       []OrderListener
	startingBalance decimal.Decimal
	log             zerolog.Logger
	now             func() time.Time
}

// NewExchange creates a new exchange
func NewExchange(store Store, startingBalance decimal.Decimal, log zerolog.Logger, listeners ...OrderListener) *Exchange {
	return &Exchange{
		store:           store,
		listeners:       listeners,
		startingBalance: startingBalance,
		log:             log.With().Str("component", "exchange").Logger(),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// OrderRequest is an order as submitted by a client
type OrderRequest struct {
	Symbol    string
	StockName string
	OrderType string
	Side      string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Market    string
}

// PlaceOrderResult is the filled order and the portfolio after it
type PlaceOrderResult struct {
	Order     models.Order
	Portfolio *models.Portfolio
}

// Validate checks the request and returns the fill it describes
func (r OrderRequest) Validate() (portfolio.Fill, models.OrderType, error) {
	var f portfolio.Fill
	symbol := strings.TrimSpace(r.Symbol)
	stockName := strings.TrimSpace(r.StockName)
	if symbol == "" || stockName == "" || strings.TrimSpace(r.OrderType) == "" ||
		strings.TrimSpace(r.Side) == "" || strings.TrimSpace(r.Market) == "" {
		return f, "", errs.Invalid("", "All fields are required")
	}
	if r.Quantity.Sign() <= 0 {
		return f, "", errs.Invalid("quantity", "Quantity must be greater than 0")
	}
	if r.Price.Sign() <= 0 {
		return f, "", errs.Invalid("price", "Price must be greater than 0")
	}

	side, ok := parseSide(r.Side)
	if !ok {
		return f, "", errs.Invalid("side", "Side must be Buy or Sell")
	}
	orderType, ok := parseOrderType(r.OrderType)
	if !ok {
		return f, "", errs.Invalid("orderType", "Order type must be Market or Limit")
	}
	market, ok := parseMarket(r.Market)
	if !ok {
		return f, "", errs.Invalid("market", "Market must be one of indian, us, crypto")
	}

	return portfolio.Fill{
		Symbol:    symbol,
		StockName: stockName,
		Side:      side,
		Quantity:  r.Quantity,
		Price:     r.Price,
		Market:    market,
	}, orderType, nil
}

// PlaceOrder validates req, applies it to the user's portfolio and records
// the filled order. Listeners are notified after the write commits.
func (e *Exchange) PlaceOrder(ctx context.Context, userID string, req OrderRequest) (*PlaceOrderResult, error) {
	fill, orderType, err := req.Validate()
	if err != nil {
		return nil, err
	}

	var order *models.Order
	p, err := e.store.UpdatePortfolio(ctx, userID, e.startingBalance, func(p *models.Portfolio) (*models.Order, error) {
		now := e.now()
		total, err := portfolio.Apply(p, fill, now)
		if err != nil {
			return nil, err
		}
		order = &models.Order{
			ID:          uuid.NewString(),
			UserID:      userID,
			Symbol:      fill.Symbol,
			StockName:   fill.StockName,
			OrderType:   orderType,
			Side:        fill.Side,
			Quantity:    fill.Quantity,
			Price:       fill.Price,
			TotalAmount: total,
			Status:      models.OrderStatusFilled,
			Market:      fill.Market,
			ExecutedAt:  now,
			CreatedAt:   now,
		}
		return order, nil
	})
	if err != nil {
		if errs.IsClientError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to place order: %w", errs.Storage("place order", err))
	}

	e.log.Info().
		Str("user_id", userID).
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("quantity", order.Quantity.String()).
		Str("price", order.Price.String()).
		Msg("Order filled")

	for _, l := range e.listeners {
		l.OrderFilled(*order)
	}

	return &PlaceOrderResult{Order: *order, Portfolio: p}, nil
}

// GetPortfolio returns the user's portfolio, creating it on first access
func (e *Exchange) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	p, err := e.store.GetOrCreatePortfolio(ctx, userID, e.startingBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", errs.Storage("get portfolio", err))
	}
	return p, nil
}

// Positions returns the user's open positions without creating a portfolio
func (e *Exchange) Positions(ctx context.Context, userID string) ([]models.Position, error) {
	p, err := e.store.GetPortfolio(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return []models.Position{}, nil
		}
		return nil, fmt.Errorf("failed to get positions: %w", errs.Storage("get positions", err))
	}
	if p.Positions == nil {
		return []models.Position{}, nil
	}
	return p.Positions, nil
}

// SetBalance overrides the cash balance, creating the portfolio if needed
func (e *Exchange) SetBalance(ctx context.Context, userID string, amount decimal.Decimal) (*models.Portfolio, error) {
	amount, err := portfolio.NormalizeAmount(amount)
	if err != nil {
		return nil, err
	}
	p, err := e.store.UpdatePortfolio(ctx, userID, amount, func(p *models.Portfolio) (*models.Order, error) {
		return nil, portfolio.SetBalance(p, amount, e.now())
	})
	if err != nil {
		if errs.IsClientError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to set balance: %w", errs.Storage("set balance", err))
	}
	e.log.Info().Str("user_id", userID).Str("balance", amount.String()).Msg("Balance overridden")
	return p, nil
}

// OrderPage is one page of order history
type OrderPage struct {
	Orders []models.Order
	Total  int
	Page   int
	Pages  int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// OrderHistory returns the user's orders, newest first
func (e *Exchange) OrderHistory(ctx context.Context, userID string, page, limit int) (*OrderPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	// pages past the addressable range are simply empty
	if page-1 > math.MaxInt/limit {
		page = math.MaxInt/limit + 1
	}

	orders, total, err := e.store.ListOrders(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", errs.Storage("list orders", err))
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return &OrderPage{
		Orders: orders,
		Total:  total,
		Page:   page,
		Pages:  (total + limit - 1) / limit,
	}, nil
}

func parseSide(s string) (models.Side, bool) {
	for _, v := range []models.Side{models.SideBuy, models.SideSell} {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, true
		}
	}
	return "", false
}

func parseOrderType(s string) (models.OrderType, bool) {
	for _, v := range []models.OrderType{models.OrderTypeMarket, models.OrderTypeLimit} {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, true
		}
	}
	return "", false
}

func parseMarket(s string) (models.Market, bool) {
	for _, v := range []models.Market{models.MarketIndian, models.MarketUS, models.MarketCrypto} {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, true
		}
	}
	return "", false
}

func isNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}
