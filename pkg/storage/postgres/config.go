package postgres

import "time"

// Config holds pool and session settings for the store.
type Config struct {
	// DSN is a pgx connection string, for example
	// "postgres://tenantgate@db:5432/tenantgate?sslmode=require".
	DSN string

	MaxConns int32 // default: 10
	MinConns int32 // default: 2

	// MaxConnLifetime recycles pooled connections (default: 30m).
	MaxConnLifetime time.Duration

	// StatementTimeout bounds every statement server-side (default: 5s).
	// Settings lookups sit on the request path and must fail fast.
	StatementTimeout time.Duration

	// ApplicationName is reported in pg_stat_activity (default: "tenantgate").
	ApplicationName string

	MigrateOnStart bool
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.StatementTimeout == 0 {
		c.StatementTimeout = 5 * time.Second
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "tenantgate"
	}
}
