package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"certhub/internal/platform/config"
	"certhub/internal/platform/database"
	"certhub/internal/platform/logger"
	id "certhub/pkg/domain"
	"certhub/pkg/requestcontext"
)

// cli holds what subcommands share. The database is opened on first use so
// that help and flag errors never need one.
type cli struct {
	out    io.Writer
	cfg    *config.Config
	logger *slog.Logger
	conn   *sql.DB
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	root := &cobra.Command{
		Use:           "certhubctl",
		Short:         "Operate a certhub deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logger.New(cfg.Env, cfg.LogLevel)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.conn != nil {
				_ = c.conn.Close()
			}
		},
	}
	root.SetOut(out)
	root.AddCommand(
		c.migrateCmd(),
		c.createAdminCmd(),
		c.usersCmd(),
		c.purgeLogsCmd(),
		c.expireCmd(),
	)
	return root
}

func (c *cli) db(ctx context.Context) (*sql.DB, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	if c.cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	conn, err := database.Open(ctx, c.cfg.Database)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// operatorContext acts as a system administrator for service calls that
// require one. Activity records carry the operator request id.
func operatorContext(ctx context.Context) context.Context {
	ctx = requestcontext.WithPrincipal(ctx, id.UserID{}, id.RoleAdmin, id.InstitutionID{})
	ctx = requestcontext.WithClientMetadata(ctx, "127.0.0.1", "certhubctl")
	return requestcontext.WithRequestID(ctx, "certhubctl")
}
