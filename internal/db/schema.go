package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const notesSchemaSQL = `
CREATE TABLE IF NOT EXISTS note
(
    id          SERIAL PRIMARY KEY,
    title       VARCHAR(50) NOT NULL,
    description VARCHAR(50) NOT NULL
);
`

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// CreateSchema creates the note table, if missing. There are no migrations,
// an existing table is left as is.
func CreateSchema(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, notesSchemaSQL); err != nil {
		return fmt.Errorf("create notes schema: %w", err)
	}
	return nil
}
