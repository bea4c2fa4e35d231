package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/scheduler"
)

type purgePendingCmd struct{}

func (*purgePendingCmd) Name() string { return "purge-pending" }
func (*purgePendingCmd) Synopsis() string {
	return "deletes unverified signups older than the retention window"
}
func (*purgePendingCmd) Usage() string {
	return `ptctl purge-pending

  Deletes pending signups created more than an hour ago. The server runs the
  same cleanup on PENDING_PURGE_SCHEDULE.
`
}

func (*purgePendingCmd) SetFlags(*flag.FlagSet) {}

func (*purgePendingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer e.close()

	svc := auth.NewAuthService(e.store, auth.Config{
		Secret: []byte(e.cfg.JWTSecret),
		Issuer: e.cfg.JWTIssuer,
	}, nil, e.log)
	job := scheduler.NewPurgePendingJob(svc, time.Minute, e.log)
	if err := scheduler.New(e.log).RunNow(job); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(os.Stderr, "Expired pending signups purged.")
	return subcommands.ExitSuccess
}
