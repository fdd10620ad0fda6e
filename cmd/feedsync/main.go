// FeedSync Core - text feed to device intensity mapping service
//
// This is the main entry point for FeedSync Core. The service reads numbers
// (or intensity phrases) from a text feed, maps them onto the actuators of
// connected devices, and keeps those actuators driven with optional
// oscillation until mapping is stopped.
//
// Commands:
//
//	feedsync                 run the service
//	feedsync token           print an API bearer token
//	feedsync migrate         apply, roll back, or list schema migrations
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options are the global command-line flags.
type options struct {
	Config  string `short:"c" long:"config" env:"FEEDSYNC_CONFIG" default:"configs/config.yaml" description:"Path to the configuration file"`
	Version bool   `short:"V" long:"version" description:"Print version information and exit"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:], os.Stdout); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, flagErr.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// execute parses args and runs the selected command, or the service when
// no command is given.
func execute(ctx context.Context, args []string, out io.Writer) error {
	opts := options{Config: defaultConfigPath}
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.SubcommandsOptional = true

	if _, err := parser.AddCommand("token",
		"Issue an API bearer token",
		"Signs a bearer token with the configured security.jwt.secret.",
		&tokenCommand{opts: &opts, out: out},
	); err != nil {
		return err
	}
	if _, err := parser.AddCommand("migrate",
		"Manage database migrations",
		"Applies pending migrations. Use --status to list them or --down to roll back the newest.",
		&migrateCommand{ctx: ctx, opts: &opts, out: out},
	); err != nil {
		return err
	}

	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}
	if parser.Active != nil {
		// The command ran inside ParseArgs.
		return nil
	}
	if opts.Version {
		fmt.Fprintf(out, "feedsync %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}
	return run(ctx, opts.Config)
}
