package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/models"
)

// UserLookup resolves the recipient of an order confirmation
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Notifier turns account and order events into emails on the dispatcher
type Notifier struct {
	dispatcher      *Dispatcher
	mailer          Mailer
	users           UserLookup
	currency        string
	startingBalance decimal.Decimal
	codeTTL         time.Duration
	log             zerolog.Logger
}

// Options configures a Notifier
type Options struct {
	Currency        string
	StartingBalance decimal.Decimal
	CodeTTL         time.Duration
}

// NewNotifier creates a notifier that submits to d and delivers through mailer
func NewNotifier(d *Dispatcher, mailer Mailer, users UserLookup, opts Options, log zerolog.Logger) *Notifier {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 10 * time.Minute
	}
	return &Notifier{
		dispatcher:      d,
		mailer:          mailer,
		users:           users,
		currency:        opts.Currency,
		startingBalance: opts.StartingBalance,
		codeTTL:         opts.CodeTTL,
		log:             log.With().Str("component", "notifier").Logger(),
	}
}

type codeData struct {
	Name    string
	Code    string
	Minutes int
}

type welcomeData struct {
	Name    string
	Balance string
}

type orderData struct {
	Name       string
	OrderID    string
	Symbol     string
	StockName  string
	Side       string
	OrderType  string
	Market     string
	Quantity   string
	Price      string
	Total      string
	ExecutedAt string
	IsBuy      bool
}

func (n *Notifier) submit(kind, to string, data interface{}) {
	n.dispatcher.Submit(Task{
		Kind: kind,
		Run: func(ctx context.Context) error {
			e, err := render(kind, to, data)
			if err != nil {
				return err
			}
			return n.mailer.Send(ctx, e)
		},
	})
}

// OTPIssued sends a signup verification code
func (n *Notifier) OTPIssued(email, name, code string) {
	n.submit(KindOTP, email, codeData{Name: name, Code: code, Minutes: int(n.codeTTL.Minutes())})
}

// UserVerified sends the welcome email
func (n *Notifier) UserVerified(email, name string) {
	n.submit(KindWelcome, email, welcomeData{Name: name, Balance: FormatMoney(n.startingBalance, n.currency)})
}

// ResetRequested sends a password reset code
func (n *Notifier) ResetRequested(email, name, code string) {
	n.submit(KindPasswordReset, email, codeData{Name: name, Code: code, Minutes: int(n.codeTTL.Minutes())})
}

// OrderFilled sends an order confirmation to the order's owner
func (n *Notifier) OrderFilled(order models.Order) {
	n.dispatcher.Submit(Task{
		Kind: KindOrderConfirmation,
		Run: func(ctx context.Context) error {
			user, err := n.users.GetUserByID(ctx, order.UserID)
			if err != nil {
				return fmt.Errorf("failed to resolve user %s: %w", order.UserID, err)
			}
			e, err := render(KindOrderConfirmation, user.Email, n.orderData(user.Name, order))
			if err != nil {
				return err
			}
			return n.mailer.Send(ctx, e)
		},
	})
}

func (n *Notifier) orderData(name string, o models.Order) orderData {
	return orderData{
		Name:       name,
		OrderID:    ShortOrderID(o.ID),
		Symbol:     o.Symbol,
		StockName:  o.StockName,
		Side:       strings.ToUpper(string(o.Side)),
		OrderType:  string(o.OrderType),
		Market:     strings.ToUpper(string(o.Market)),
		Quantity:   o.Quantity.String(),
		Price:      FormatMoney(o.Price, n.currency),
		Total:      FormatMoney(o.TotalAmount, n.currency),
		ExecutedAt: o.ExecutedAt.UTC().Format("02 Jan 2006 15:04 MST"),
		IsBuy:      o.Side == models.SideBuy,
	}
}
