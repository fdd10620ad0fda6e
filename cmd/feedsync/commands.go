package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/feedsync-core/internal/api"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/config"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/database"
	"github.com/nerrad567/feedsync-core/migrations"
)

// tokenCommand prints a bearer token signed with the configured secret.
type tokenCommand struct {
	Subject string        `long:"subject" default:"operator" description:"Token subject"`
	TTL     time.Duration `long:"ttl" default:"24h" description:"Token lifetime"`

	opts *options
	out  io.Writer
}

func (c *tokenCommand) Execute([]string) error {
	cfg, err := config.Load(c.opts.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is not set")
	}

	token, err := api.IssueToken(c.Subject, cfg.Security.JWT.Secret, c.TTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, token)
	return nil
}

// migrateCommand applies, rolls back, or lists the embedded migrations.
type migrateCommand struct {
	Down   bool `long:"down" description:"Roll back the most recent migration"`
	Status bool `long:"status" description:"List applied and pending migrations"`

	ctx  context.Context
	opts *options
	out  io.Writer
}

func (c *migrateCommand) Execute([]string) error {
	if c.Down && c.Status {
		return errors.New("--down and --status are mutually exclusive")
	}

	cfg, err := config.Load(c.opts.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read path

	switch {
	case c.Down:
		if err := db.MigrateDown(c.ctx, migrations.FS); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
		fmt.Fprintln(c.out, "rolled back latest migration")
	case c.Status:
		applied, pending, err := db.MigrationStatus(c.ctx, migrations.FS)
		if err != nil {
			return fmt.Errorf("reading migration status: %w", err)
		}
		for _, r := range applied {
			fmt.Fprintf(c.out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
		}
		for _, m := range pending {
			fmt.Fprintf(c.out, "pending  %s  %s\n", m.Version, m.Name)
		}
	default:
		if err := db.Migrate(c.ctx, migrations.FS); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		fmt.Fprintln(c.out, "migrations applied")
	}
	return nil
}
