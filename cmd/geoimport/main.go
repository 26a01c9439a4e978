// Command geoimport loads UK geography releases into the database.
//
//	geoimport import -dataset nspl -path NSPL21_FEB_2025_UK.csv
//	geoimport run jobs.yaml
//	geoimport swap-cleanup | swap-rollback
//	geoimport status [-dataset onsud] [-limit 20]
//	geoimport cancel <run-id>
//	geoimport migrate
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/EmpoweredVote/geo-ingest/internal/runs"
)

// Exit statuses.
const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitPartial = 3
)

var errUsage = errors.New("usage")

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string, stdout io.Writer) (runs.Outcome, error)
}

var commands = []command{
	{"import", "import one dataset from flags", cmdImport},
	{"run", "run every job in a YAML job file", cmdRun},
	{"swap-cleanup", "drop the retained property table", cmdSwapCleanup},
	{"swap-rollback", "put the retained property table back live", cmdSwapRollback},
	{"status", "list recent import runs", cmdStatus},
	{"cancel", "request cancellation of a run", cmdCancel},
	{"migrate", "create or update the geography tables", cmdMigrate},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: geoimport <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", c.name, c.usage)
	}
}

func main() {
	_ = godotenv.Load(".env.local")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches args and maps the result to an exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		outcome, err := c.run(ctx, args[1:], stdout)
		return exitCode(outcome, err, stderr)
	}
	fmt.Fprintf(stderr, "geoimport: unknown command %q\n\n", args[0])
	usage(stderr)
	return exitUsage
}

func exitCode(outcome runs.Outcome, err error, stderr io.Writer) int {
	switch {
	case errors.Is(err, flag.ErrHelp):
		return exitUsage
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, "geoimport:", err)
		return exitUsage
	case err != nil:
		fmt.Fprintln(stderr, "geoimport:", err)
		return exitFailed
	}
	switch outcome {
	case runs.OutcomeFailed:
		return exitFailed
	case runs.OutcomePartial:
		return exitPartial
	}
	return exitOK
}
