package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/2beens/notesservice/internal/telemetry/tracing"
)

// Session is a notes accessor bound to one dedicated store connection.
// It must be closed once the request using it is done.
type Session interface {
	notesRepo
	Close() error
}

type SessionSource interface {
	NewSession(ctx context.Context) (Session, error)
}

var (
	_ SessionSource = (*SessionStore)(nil)
	_ Session       = (*SessionRepo)(nil)
)

// SessionStore hands out per-request sessions from a database/sql pool.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{
		db: db,
	}
}

func (s *SessionStore) NewSession(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire db session: %w", err)
	}
	return NewSessionRepo(conn), nil
}

// SessionRepo runs the notes statements over a single *sql.Conn.
type SessionRepo struct {
	conn *sql.Conn
}

func NewSessionRepo(conn *sql.Conn) *SessionRepo {
	return &SessionRepo{
		conn: conn,
	}
}

// Close returns the underlying connection to the pool.
func (r *SessionRepo) Close() error {
	return r.conn.Close()
}

func (r *SessionRepo) Add(ctx context.Context, note *Note) (int, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesSessionRepo.Add")
	defer span.End()

	var id int
	if err := r.conn.QueryRowContext(ctx, insertNoteSQL, note.Title, note.Description).Scan(&id); err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.Int("note.id", id))
	return id, nil
}

func (r *SessionRepo) Get(ctx context.Context, id int) (*Note, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesSessionRepo.Get",
		trace.WithAttributes(attribute.Int("note.id", id)),
	)
	defer span.End()

	var note Note
	err := r.conn.QueryRowContext(ctx, selectNoteSQL, id).Scan(&note.ID, &note.Title, &note.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *SessionRepo) List(ctx context.Context) ([]Note, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesSessionRepo.List")
	defer span.End()

	rows, err := r.conn.QueryContext(ctx, selectAllNotesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.Title, &note.Description); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("notes.count", len(notes)))
	return notes, nil
}

func (r *SessionRepo) Update(ctx context.Context, note *Note) (int, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesSessionRepo.Update",
		trace.WithAttributes(attribute.Int("note.id", note.ID)),
	)
	defer span.End()

	var id int
	err := r.conn.QueryRowContext(ctx, updateNoteSQL, note.Title, note.Description, note.ID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoteNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *SessionRepo) Delete(ctx context.Context, id int) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesSessionRepo.Delete",
		trace.WithAttributes(attribute.Int("note.id", id)),
	)
	defer span.End()

	res, err := r.conn.ExecContext(ctx, deleteNoteSQL, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoteNotFound
	}
	return nil
}
