package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/papertrade/internal/memstore"
	"github.com/xtrntr/papertrade/internal/models"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

func (m *recordingMailer) emails() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.sent))
	copy(out, m.sent)
	return out
}

func TestDispatcher_RunsTasks(t *testing.T) {
	d := NewDispatcher(3, 16, time.Second, zerolog.Nop())
	d.Start()

	var ran atomic.Int32
	var sawDeadline atomic.Bool
	for i := 0; i < 10; i++ {
		ok := d.Submit(Task{Kind: "test", Run: func(ctx context.Context) error {
			if _, has := ctx.Deadline(); has {
				sawDeadline.Store(true)
			}
			ran.Add(1)
			return nil
		}})
		require.True(t, ok)
	}

	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, int32(10), ran.Load())
	assert.True(t, sawDeadline.Load())
	assert.False(t, d.Submit(Task{Kind: "late", Run: func(context.Context) error { return nil }}))
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, 1, time.Second, zerolog.Nop())
	noop := Task{Kind: "test", Run: func(context.Context) error { return nil }}

	assert.True(t, d.Submit(noop))
	assert.False(t, d.Submit(noop), "submit must not block on a full queue")

	d.Start()
	require.NoError(t, d.Stop(context.Background()))
}

func TestDispatcher_SurvivesFailures(t *testing.T) {
	d := NewDispatcher(1, 8, time.Second, zerolog.Nop())
	d.Start()

	var ran atomic.Int32
	d.Submit(Task{Kind: "panic", Run: func(context.Context) error { panic("boom") }})
	d.Submit(Task{Kind: "error", Run: func(context.Context) error { return errors.New("smtp down") }})
	d.Submit(Task{Kind: "ok", Run: func(context.Context) error { ran.Add(1); return nil }})

	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, int32(1), ran.Load())
}

func TestDispatcher_StopHonoursContext(t *testing.T) {
	d := NewDispatcher(1, 1, time.Minute, zerolog.Nop())
	d.Start()
	release := make(chan struct{})
	d.Submit(Task{Kind: "slow", Run: func(context.Context) error { <-release; return nil }})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)
	close(release)
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     string
	}{
		{"USD", "1234.5", "USD", "$1,234.50"},
		{"RoundsToMinorUnit", "0.125", "USD", "$0.13"},
		{"UnknownCurrency", "12.3", "ZZZ", "12.30 ZZZ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMoney(decimal.RequireFromString(tt.amount), tt.currency))
		})
	}

	inr := FormatMoney(decimal.RequireFromString("1234.5"), "INR")
	assert.Contains(t, inr, "₹")
	assert.Contains(t, inr, "1,234.50")
}

func TestShortOrderID(t *testing.T) {
	assert.Equal(t, "9ABCDEF0", ShortOrderID("0b9f3c2e-1d2a-4c5b-8e7f-1234-9abcdef0"))
	assert.Equal(t, "ABC", ShortOrderID("abc"))
}

func TestRender(t *testing.T) {
	e, err := render(KindOTP, "a@example.com", codeData{Name: "Alice", Code: "123456", Minutes: 10})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", e.To)
	assert.Equal(t, "Your verification code", e.Subject)
	assert.Contains(t, e.Text, "**123456**")
	assert.Contains(t, e.HTML, "<strong>123456</strong>")
}

func TestNotifier_OrderFilled(t *testing.T) {
	store := memstore.New()
	require.NoError(t, store.CreateUser(context.Background(), &models.User{
		ID: "u1", Name: "Alice", Email: "alice@example.com", PasswordHash: "x", IsVerified: true,
	}))

	mailer := &recordingMailer{}
	d := NewDispatcher(1, 8, time.Second, zerolog.Nop())
	d.Start()
	n := NewNotifier(d, mailer, store, Options{Currency: "USD"}, zerolog.Nop())

	executed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	n.OrderFilled(models.Order{
		ID: "3f1c2a4e-5b6d-4e7f-8a9b-0c1d2e3f4a5b", UserID: "u1", Symbol: "ABC", StockName: "ABC Corp",
		OrderType: models.OrderTypeMarket, Side: models.SideBuy,
		Quantity: decimal.NewFromInt(10), Price: decimal.NewFromInt(100), TotalAmount: decimal.NewFromInt(1000),
		Status: models.OrderStatusFilled, Market: models.MarketUS, ExecutedAt: executed,
	})
	n.OrderFilled(models.Order{ID: "missing", UserID: "ghost"})
	require.NoError(t, d.Stop(context.Background()))

	emails := mailer.emails()
	require.Len(t, emails, 1)
	e := emails[0]
	assert.Equal(t, "alice@example.com", e.To)
	assert.Equal(t, "Order confirmation", e.Subject)
	assert.Contains(t, e.Text, "#2E3F4A5B")
	assert.Contains(t, e.Text, "$1,000.00 has been deducted")
	assert.Contains(t, e.HTML, "<table>")
	assert.Contains(t, e.HTML, "<strong>BUY</strong>")
}

func TestNotifier_AccountMessages(t *testing.T) {
	mailer := &recordingMailer{}
	d := NewDispatcher(1, 8, time.Second, zerolog.Nop())
	d.Start()
	n := NewNotifier(d, mailer, memstore.New(), Options{Currency: "USD", StartingBalance: decimal.NewFromInt(50000)}, zerolog.Nop())

	n.OTPIssued("a@example.com", "Alice", "111111")
	n.UserVerified("a@example.com", "Alice")
	n.ResetRequested("a@example.com", "Alice", "222222")
	require.NoError(t, d.Stop(context.Background()))

	emails := mailer.emails()
	require.Len(t, emails, 3)
	subjects := map[string]Email{}
	for _, e := range emails {
		subjects[e.Subject] = e
	}
	assert.Contains(t, subjects["Your verification code"].Text, "111111")
	assert.Contains(t, subjects["Your verification code"].Text, "10 minutes")
	assert.Contains(t, subjects["Welcome to PaperTrade"].Text, "$50,000.00")
	assert.Contains(t, subjects["Your password reset code"].Text, "222222")
}

func TestNotifier_MailerFailureIsSwallowed(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	d := NewDispatcher(1, 8, time.Second, zerolog.Nop())
	d.Start()
	n := NewNotifier(d, mailer, memstore.New(), Options{}, zerolog.Nop())

	n.OTPIssued("a@example.com", "Alice", "111111")
	require.NoError(t, d.Stop(context.Background()))
	assert.Empty(t, mailer.emails())
}
