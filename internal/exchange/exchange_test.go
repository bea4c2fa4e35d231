package exchange

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/papertrade/internal/errs"
	"github.com/xtrntr/papertrade/internal/memstore"
	"github.com/xtrntr/papertrade/internal/models"
)

type recordingListener struct {
	mu     sync.Mutex
	orders []models.Order
}

func (r *recordingListener) OrderFilled(order models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, order)
}

func (r *recordingListener) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

// countingStore fails the test if the engine touches storage
type countingStore struct {
	Store
	calls int
}

func (c *countingStore) UpdatePortfolio(ctx context.Context, userID string, startingBalance decimal.Decimal, fn func(p *models.Portfolio) (*models.Order, error)) (*models.Portfolio, error) {
	c.calls++
	return c.Store.UpdatePortfolio(ctx, userID, startingBalance, fn)
}

type brokenStore struct {
	Store
}

func (brokenStore) UpdatePortfolio(ctx context.Context, userID string, startingBalance decimal.Decimal, fn func(p *models.Portfolio) (*models.Order, error)) (*models.Portfolio, error) {
	return nil, errors.New("connection reset")
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestExchange() (*Exchange, *memstore.Store, *recordingListener) {
	store := memstore.New()
	l := &recordingListener{}
	return NewExchange(store, d("50000"), zerolog.Nop(), l), store, l
}

func abc(side string, qty, price string) OrderRequest {
	return OrderRequest{
		Symbol:    "ABC",
		StockName: "ABC Corp",
		OrderType: "Market",
		Side:      side,
		Quantity:  d(qty),
		Price:     d(price),
		Market:    "us",
	}
}

func TestExchange_PlaceOrderScenarios(t *testing.T) {
	ex, _, listener := newTestExchange()
	ctx := context.Background()

	// A
	res, err := ex.PlaceOrder(ctx, "u1", abc("Buy", "10", "100.00"))
	require.NoError(t, err)
	assert.True(t, res.Portfolio.Balance.Equal(d("49000")))
	require.Len(t, res.Portfolio.Positions, 1)
	assert.True(t, res.Portfolio.Positions[0].AveragePrice.Equal(d("100")))
	assert.Equal(t, models.OrderStatusFilled, res.Order.Status)
	assert.Equal(t, models.SideBuy, res.Order.Side)
	assert.True(t, res.Order.TotalAmount.Equal(d("1000")))
	assert.NotEmpty(t, res.Order.ID)

	// B
	res, err = ex.PlaceOrder(ctx, "u1", abc("Buy", "10", "120.00"))
	require.NoError(t, err)
	assert.True(t, res.Portfolio.Balance.Equal(d("47800")))
	require.Len(t, res.Portfolio.Positions, 1)
	assert.True(t, res.Portfolio.Positions[0].Quantity.Equal(d("20")))
	assert.True(t, res.Portfolio.Positions[0].AveragePrice.Equal(d("110")))

	// C
	_, err = ex.PlaceOrder(ctx, "u1", abc("Sell", "25", "130.00"))
	var he *errs.InsufficientHoldingsError
	require.True(t, errors.As(err, &he))
	assert.True(t, he.Held.Equal(d("20")))

	p, err := ex.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.Balance.Equal(d("47800")))

	page, err := ex.OrderHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	// D
	res, err = ex.PlaceOrder(ctx, "u1", abc("sell", "20", "130.00"))
	require.NoError(t, err)
	assert.True(t, res.Portfolio.Balance.Equal(d("50400")))
	assert.Empty(t, res.Portfolio.Positions)
	assert.Equal(t, models.SideSell, res.Order.Side)

	page, err = ex.OrderHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	assert.Equal(t, res.Order.ID, page.Orders[0].ID)

	assert.Equal(t, 3, listener.count())
}

func TestExchange_ValidationBeforeStorage(t *testing.T) {
	store := &countingStore{Store: memstore.New()}
	ex := NewExchange(store, d("50000"), zerolog.Nop())

	tests := []struct {
		name    string
		mutate  func(r *OrderRequest)
		message string
	}{
		{"ZeroQuantity", func(r *OrderRequest) { r.Quantity = decimal.Zero }, "Quantity must be greater than 0"},
		{"NegativePrice", func(r *OrderRequest) { r.Price = d("-5") }, "Price must be greater than 0"},
		{"MissingSymbol", func(r *OrderRequest) { r.Symbol = " " }, "All fields are required"},
		{"MissingMarket", func(r *OrderRequest) { r.Market = "" }, "All fields are required"},
		{"BadSide", func(r *OrderRequest) { r.Side = "Short" }, "Side must be Buy or Sell"},
		{"BadOrderType", func(r *OrderRequest) { r.OrderType = "Stop" }, "Order type must be Market or Limit"},
		{"BadMarket", func(r *OrderRequest) { r.Market = "mars" }, "Market must be one of indian, us, crypto"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := abc("Buy", "1", "10")
			tt.mutate(&req)
			_, err := ex.PlaceOrder(context.Background(), "u1", req)
			var ve *errs.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.message, ve.Message)
		})
	}
	assert.Equal(t, 0, store.calls)
}

func TestExchange_RejectionLeavesNoTrace(t *testing.T) {
	ex, store, listener := newTestExchange()
	ctx := context.Background()

	_, err := ex.PlaceOrder(ctx, "u1", abc("Buy", "1000", "100"))
	var fe *errs.InsufficientFundsError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Required.Equal(d("100000")))
	assert.True(t, fe.Available.Equal(d("50000")))

	_, total, err := store.ListOrders(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, listener.count())
}

func TestExchange_StorageFailure(t *testing.T) {
	ex := NewExchange(brokenStore{Store: memstore.New()}, d("50000"), zerolog.Nop())
	_, err := ex.PlaceOrder(context.Background(), "u1", abc("Buy", "1", "1"))
	var se *errs.StorageError
	require.True(t, errors.As(err, &se))
	assert.False(t, errs.IsClientError(err))
}

// Parallel buys from one user may never spend more than the balance.
func TestExchange_ConcurrentBuysSameUser(t *testing.T) {
	store := memstore.New()
	ex := NewExchange(store, d("1000"), zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ex.PlaceOrder(ctx, "u1", abc("Buy", "1", "100"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			var fe *errs.InsufficientFundsError
			assert.True(t, errors.As(err, &fe))
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	p, err := ex.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.Balance.IsZero())
	require.Len(t, p.Positions, 1)
	assert.True(t, p.Positions[0].Quantity.Equal(d("10")))

	_, total, err := store.ListOrders(ctx, "u1", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestExchange_ConcurrentUsersIndependent(t *testing.T) {
	ex, _, _ := newTestExchange()
	ctx := context.Background()

	var wg sync.WaitGroup
	users := []string{"a", "b", "c", "d"}
	for _, u := range users {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				_, err := ex.PlaceOrder(ctx, u, abc("Buy", "1", "10"))
				assert.NoError(t, err)
			}(u)
		}
	}
	wg.Wait()

	for _, u := range users {
		p, err := ex.GetPortfolio(ctx, u)
		require.NoError(t, err)
		assert.True(t, p.Balance.Equal(d("49800")), "user %s balance %s", u, p.Balance)
	}
}

func TestExchange_Positions(t *testing.T) {
	ex, store, _ := newTestExchange()
	ctx := context.Background()

	positions, err := ex.Positions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, positions)
	_, err = store.GetPortfolio(ctx, "u1")
	assert.ErrorIs(t, err, errs.ErrNotFound, "positions must not create a portfolio")

	_, err = ex.PlaceOrder(ctx, "u1", abc("Buy", "2", "10"))
	require.NoError(t, err)
	positions, err = ex.Positions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestExchange_SetBalance(t *testing.T) {
	ex, _, _ := newTestExchange()
	ctx := context.Background()

	p, err := ex.SetBalance(ctx, "new-user", d("1234.56"))
	require.NoError(t, err)
	assert.True(t, p.Balance.Equal(d("1234.56")))
	assert.Empty(t, p.Positions)

	_, err = ex.SetBalance(ctx, "new-user", d("-1"))
	var ve *errs.ValidationError
	require.True(t, errors.As(err, &ve))

	p, err = ex.GetPortfolio(ctx, "new-user")
	require.NoError(t, err)
	assert.True(t, p.Balance.Equal(d("1234.56")))
}

func TestExchange_OrderHistoryPaging(t *testing.T) {
	ex, _, _ := newTestExchange()
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, err := ex.PlaceOrder(ctx, "u1", abc("Buy", "1", "1"))
		require.NoError(t, err)
	}

	page, err := ex.OrderHistory(ctx, "u1", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.Pages)
	assert.Len(t, page.Orders, 3)

	page, err = ex.OrderHistory(ctx, "u1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 1, page.Pages)
	assert.Len(t, page.Orders, 7)

	page, err = ex.OrderHistory(ctx, "nobody", 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, page.Orders)
	assert.Equal(t, 0, page.Pages)
}

func TestExchange_OrderHistoryFarPage(t *testing.T) {
	ex, _, _ := newTestExchange()
	ctx := context.Background()
	_, err := ex.PlaceOrder(ctx, "u1", abc("Buy", "1", "1"))
	require.NoError(t, err)

	for _, page := range []int{1000, math.MaxInt/DefaultPageSize + 2, math.MaxInt} {
		res, err := ex.OrderHistory(ctx, "u1", page, DefaultPageSize)
		require.NoError(t, err)
		assert.Empty(t, res.Orders)
		assert.Equal(t, 1, res.Total)
		assert.Equal(t, 1, res.Pages)
	}
}

func TestExchange_SetBalanceRoundsToCents(t *testing.T) {
	ex, _, _ := newTestExchange()
	ctx := context.Background()

	p, err := ex.SetBalance(ctx, "u1", d("100.555"))
	require.NoError(t, err)
	assert.Equal(t, "100.56", p.Balance.String())

	res, err := ex.PlaceOrder(ctx, "u1", abc("Buy", "1", "100.555"))
	require.NoError(t, err)
	assert.True(t, res.Portfolio.Balance.IsZero())

	_, err = ex.SetBalance(ctx, "u1", d("1000000000000000000"))
	var ve *errs.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "Invalid amount", ve.Message)
}

func TestExchange_SymbolKeptAsGiven(t *testing.T) {
	ex, _, _ := newTestExchange()
	ctx := context.Background()

	req := abc("Buy", "2", "10")
	req.Symbol = "  brk.b "
	res, err := ex.PlaceOrder(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, "brk.b", res.Order.Symbol)
	require.Len(t, res.Portfolio.Positions, 1)
	assert.Equal(t, "brk.b", res.Portfolio.Positions[0].Symbol)

	// symbols match exactly
	req = abc("Sell", "1", "10")
	req.Symbol = "BRK.B"
	_, err = ex.PlaceOrder(ctx, "u1", req)
	var he *errs.InsufficientHoldingsError
	require.True(t, errors.As(err, &he))
	assert.True(t, he.Held.IsZero())
}
