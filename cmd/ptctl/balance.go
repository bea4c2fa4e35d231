package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/notify"
)

type setBalanceCmd struct {
	user   string
	amount string
}

func (*setBalanceCmd) Name() string { return "set-balance" }
func (*setBalanceCmd) Synopsis() string { return "overrides a user's cash balance" }
func (*setBalanceCmd) Usage() string {
	return `ptctl set-balance -user <email> -amount <value>

  Replaces the cash balance of the user's portfolio. Positions are untouched.

Usage Examples:
$ ptctl set-balance -user demo@papertrade.local -amount 100000
`
}

func (c *setBalanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Email of the account")
	f.StringVar(&c.amount, "amount", "", "New cash balance")
}

func (c *setBalanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	amount, err := decimal.NewFromString(c.amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid -amount %q\n", c.amount)
		return subcommands.ExitUsageError
	}

	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer e.close()

	user, err := e.lookupUser(ctx, c.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	p, err := e.exchange().SetBalance(ctx, user.ID, amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Balance of %s is now %s.\n", user.Email, notify.FormatMoney(p.Balance, e.cfg.Currency))
	return subcommands.ExitSuccess
}

type portfolioCmd struct {
	user string
}

func (*portfolioCmd) Name() string { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "prints a user's balance and positions" }
func (*portfolioCmd) Usage() string {
	return `ptctl portfolio -user <email>
`
}

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Email of the account")
}

func (c *portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer e.close()

	user, err := e.lookupUser(ctx, c.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	p, err := e.exchange().GetPortfolio(ctx, user.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	cur := e.cfg.Currency
	fmt.Printf("Balance:  %s\n", notify.FormatMoney(p.Balance, cur))
	fmt.Printf("Realized: %s\n", notify.FormatMoney(p.TotalPnL, cur))
	for _, pos := range p.Positions {
		fmt.Printf("%-10s %12s @ %s (%s)\n", pos.Symbol, pos.Quantity.String(), notify.FormatMoney(pos.AveragePrice, cur), pos.Market)
	}
	return subcommands.ExitSuccess
}
