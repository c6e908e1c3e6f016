package notes

// both pgx and lib/pq use $N placeholders, so the pooled and the session
// accessors share the same statements
const (
	insertNoteSQL     = `INSERT INTO note (title, description) VALUES ($1, $2) RETURNING id;`
	selectNoteSQL     = `SELECT id, title, description FROM note WHERE id = $1;`
	selectAllNotesSQL = `SELECT id, title, description FROM note;`
	updateNoteSQL     = `UPDATE note SET title = $1, description = $2 WHERE id = $3 RETURNING id;`
	deleteNoteSQL     = `DELETE FROM note WHERE id = $1;`
)
