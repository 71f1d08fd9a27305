package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

type ClusterOptions struct {
	Host string
	Port int
	// SocketDir, when set, replaces Host so that connections go over the
	// unix-domain socket in that directory. The plain auth key in the
	// connection string then never leaves the local machine.
	SocketDir string
	AuthKey   string
	Tracer    pgx.QueryTracer
}

// Cluster opens dedicated connections to databases served by one
// cluster node, with upgrade mode enabled on every session.
type Cluster struct {
	opts   ClusterOptions
	logger zerolog.Logger
}

func NewCluster(opts ClusterOptions, logger zerolog.Logger) *Cluster {
	return &Cluster{
		opts: opts,
		logger: logger.With().
			Str("component", "cluster").
			Logger(),
	}
}

// Connect opens a connection to the named database. Upgrade mode
// relaxes catalog version checks and allows DDL against system tables
// for the lifetime of the session.
func (c *Cluster) Connect(ctx context.Context, database string) (Conn, error) {
	host := c.opts.Host
	if c.opts.SocketDir != "" {
		host = c.opts.SocketDir
	}
	dsn := &DSN{
		Host:     host,
		Port:     c.opts.Port,
		User:     "postgres",
		Password: c.opts.AuthKey,
		DBName:   database,
	}

	conf, err := pgx.ParseConfig(dsn.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string for database %q: %w", database, err)
	}
	conf.Tracer = c.opts.Tracer

	conn, err := pgx.ConnectConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %q: %w", database, err)
	}

	if _, err := conn.Exec(ctx, "SET ysql_upgrade_mode TO true;"); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to enable upgrade mode on database %q: %w", database, err)
	}

	c.logger.Debug().Str("database", database).Msg("connected")

	return conn, nil
}
