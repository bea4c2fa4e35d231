package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/errs"
	"github.com/xtrntr/papertrade/internal/exchange"
	"github.com/xtrntr/papertrade/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type seedCmd struct {
	name     string
	email    string
	password string
	trades   bool
}

func (*seedCmd) Name() string { return "seed" }
func (*seedCmd) Synopsis() string {
	return "creates a verified demo account with a few filled orders"
}
func (*seedCmd) Usage() string {
	return `ptctl seed [-email <email>] [-password <password>] [-trades=false]

  Creates a verified account that can log in without OTP verification and,
  unless -trades=false, fills a handful of demo orders into its portfolio.
  Running it again for an existing account only adds the orders.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "Demo Trader", "Display name of the account")
	f.StringVar(&c.email, "email", "demo@papertrade.local", "Email of the account")
	f.StringVar(&c.password, "password", "demo1234", "Password of the account")
	f.BoolVar(&c.trades, "trades", true, "Fill demo orders")
}

// demoOrders span every market so the portfolio view has something to show
var demoOrders = []exchange.OrderRequest{
	{Symbol: "RELIANCE", StockName: "Reliance Industries", OrderType: "Market", Side: "Buy", Quantity: decimal.NewFromInt(5), Price: decimal.RequireFromString("2450.50"), Market: "indian"},
	{Symbol: "AAPL", StockName: "Apple Inc.", OrderType: "Market", Side: "Buy", Quantity: decimal.NewFromInt(10), Price: decimal.RequireFromString("189.25"), Market: "us"},
	{Symbol: "AAPL", StockName: "Apple Inc.", OrderType: "Limit", Side: "Sell", Quantity: decimal.NewFromInt(4), Price: decimal.RequireFromString("195.10"), Market: "us"},
	{Symbol: "BTC", StockName: "Bitcoin", OrderType: "Market", Side: "Buy", Quantity: decimal.RequireFromString("0.05"), Price: decimal.RequireFromString("64000"), Market: "crypto"},
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer e.close()

	user, err := c.ensureUser(ctx, e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not create account: %v\n", err)
		return subcommands.ExitFailure
	}

	ex := e.exchange()
	if _, err := ex.GetPortfolio(ctx, user.ID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not open portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.trades {
		for _, req := range demoOrders {
			res, err := ex.PlaceOrder(ctx, user.ID, req)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Skipping %s %s: %v\n", req.Side, req.Symbol, err)
				continue
			}
			fmt.Fprintf(os.Stderr, "Filled %s %s %s @ %s\n", res.Order.Side, res.Order.Quantity, res.Order.Symbol, res.Order.Price)
		}
	}

	fmt.Printf("Seeded %s (password %q).\n", user.Email, c.password)
	return subcommands.ExitSuccess
}

func (c *seedCmd) ensureUser(ctx context.Context, e *env) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(c.email))
	user, err := e.store.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(c.password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user = &models.User{
		ID:           uuid.NewString(),
		Name:         c.name,
		Email:        email,
		PasswordHash: string(hash),
		IsVerified:   true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
