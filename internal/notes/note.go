package notes

import "errors"

var ErrNoteNotFound = errors.New("note not found")

type Note struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// NotePayload is the body of create and update requests.
// Pointers tell a missing (or null) field apart from an empty string.
type NotePayload struct {
	Title       *string `json:"title" validate:"required"`
	Description *string `json:"description" validate:"required"`
}

func (p NotePayload) toNote(id int) *Note {
	return &Note{
		ID:          id,
		Title:       *p.Title,
		Description: *p.Description,
	}
}
