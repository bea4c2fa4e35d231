package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/xtrntr/papertrade/internal/config"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string { return "migrate" }
func (*migrateCmd) Synopsis() string { return "applies the database schema" }
func (*migrateCmd) Usage() string {
	return `ptctl migrate

  Connects to DATABASE_URL and applies the schema. Safe to run repeatedly.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer e.close()

	if e.cfg.StorageDriver != config.DriverPostgres {
		fmt.Fprintf(os.Stderr, "Nothing to migrate for storage driver %q.\n", e.cfg.StorageDriver)
		return subcommands.ExitSuccess
	}
	// opening a postgres store already migrated it
	fmt.Fprintln(os.Stderr, "Schema is up to date.")
	return subcommands.ExitSuccess
}
