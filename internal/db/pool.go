package db

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NewDBPoolParams struct {
	DBHost         string
	DBPort         string
	DBName         string
	DBUser         string
	DBPassword     string
	SSLMode        string
	MaxConns       int32
	TracingEnabled bool
}

// ConnString builds a postgres URL usable by both pgx and lib/pq.
func (p NewDBPoolParams) ConnString() string {
	user := p.DBUser
	if user == "" {
		user = "postgres"
	}
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	connURL := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(p.DBHost, p.DBPort),
		Path:     "/" + p.DBName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	if p.DBPassword != "" {
		connURL.User = url.UserPassword(user, p.DBPassword)
	} else {
		connURL.User = url.User(user)
	}

	return connURL.String()
}

// NewDBPool opens the shared pgx pool used by the pooled notes endpoints.
func NewDBPool(ctx context.Context, params NewDBPoolParams) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(params.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	if params.MaxConns > 0 {
		poolConfig.MaxConns = params.MaxConns
	}

	if params.TracingEnabled {
		poolConfig.ConnConfig.Tracer = otelpgx.NewTracer()
	}

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	return db, nil
}
