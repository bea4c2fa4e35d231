// Command ptctl administers a PaperTrade deployment.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/xtrntr/papertrade/internal/app"
)

func main() {
	app.UseNumericJSON()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&migrateCmd{}, "database")
	commander.Register(&purgePendingCmd{}, "database")
	commander.Register(&seedCmd{}, "accounts")
	commander.Register(&setBalanceCmd{}, "accounts")
	commander.Register(&portfolioCmd{}, "accounts")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
