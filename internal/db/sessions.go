package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type NewSessionDBParams struct {
	Pool         NewDBPoolParams
	MaxOpenConns int
	MaxIdleConns int
}

// NewSessionDB opens the database/sql handle the sync endpoints acquire their
// per-request sessions from. Connections are opened lazily, on first acquire.
func NewSessionDB(params NewSessionDBParams) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", params.Pool.ConnString())
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	if params.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(params.MaxOpenConns)
	}
	if params.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(params.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return sqlDB, nil
}
