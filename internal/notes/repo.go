package notes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/2beens/notesservice/internal/telemetry/tracing"
)

var _ notesRepo = (*Repo)(nil)

// Repo is the pooled notes accessor. The pool is shared by all requests and
// owned by the server, which opens it at start and closes it at shutdown.
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, note *Note) (int, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesRepo.Add")
	defer span.End()

	rows, err := r.db.Query(ctx, insertNoteSQL, note.Title, note.Description)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, errors.New("unexpected error [no rows next]")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		return 0, fmt.Errorf("rows scan: %w", err)
	}

	span.SetAttributes(attribute.Int("note.id", id))
	return id, nil
}

func (r *Repo) Get(ctx context.Context, id int) (*Note, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesRepo.Get",
		trace.WithAttributes(attribute.Int("note.id", id)),
	)
	defer span.End()

	var note Note
	err := r.db.QueryRow(ctx, selectNoteSQL, id).Scan(&note.ID, &note.Title, &note.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}

	return &note, nil
}

func (r *Repo) List(ctx context.Context) ([]Note, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesRepo.List")
	defer span.End()

	rows, err := r.db.Query(ctx, selectAllNotesSQL)
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

// Update replaces title and description of the note with the given ID.
func (r *Repo) Update(ctx context.Context, note *Note) (int, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesRepo.Update",
		trace.WithAttributes(attribute.Int("note.id", note.ID)),
	)
	defer span.End()

	var id int
	err := r.db.QueryRow(ctx, updateNoteSQL, note.Title, note.Description, note.ID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoteNotFound
	}
	if err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repo) Delete(ctx context.Context, id int) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesRepo.Delete",
		trace.WithAttributes(attribute.Int("note.id", id)),
	)
	defer span.End()

	tag, err := r.db.Exec(ctx, deleteNoteSQL, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoteNotFound
	}
	return nil
}
