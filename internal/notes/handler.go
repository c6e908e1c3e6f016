package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/notesservice/internal/telemetry/metrics"
	"github.com/2beens/notesservice/pkg"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=notes

const detailNoteNotFound = "Note not found"

type notesRepo interface {
	Add(ctx context.Context, note *Note) (int, error)
	Get(ctx context.Context, id int) (*Note, error)
	List(ctx context.Context) ([]Note, error)
	Update(ctx context.Context, note *Note) (int, error)
	Delete(ctx context.Context, id int) error
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type Handler struct {
	repo     notesRepo
	sessions SessionSource
	metrics  *metrics.Manager
	validate *validator.Validate
}

func NewHandler(
	repo notesRepo,
	sessions SessionSource,
	metricsManager *metrics.Manager,
) *Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// report json field names in validation errors
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		repo:     repo,
		sessions: sessions,
		metrics:  metricsManager,
		validate: validate,
	}
}

// SetupRoutes registers the notes endpoints on the router. createLimiter, if
// not nil, wraps the two create endpoints.
func (handler *Handler) SetupRoutes(router *mux.Router, createLimiter mux.MiddlewareFunc) {
	create := http.Handler(http.HandlerFunc(handler.handleCreate))
	createSync := http.Handler(http.HandlerFunc(handler.handleCreateSync))
	if createLimiter != nil {
		create = createLimiter(create)
		createSync = createLimiter(createSync)
	}

	// session backed endpoints first, so "sync" is never read as a note ID
	router.Handle("/notes/sync/", createSync).Methods("POST", "OPTIONS").Name("new-note-sync")
	router.HandleFunc("/notes/sync/{id}/", handler.handleGetSync).Methods("GET", "OPTIONS").Name("get-note-sync")

	router.Handle("/notes/", create).Methods("POST", "OPTIONS").Name("new-note")
	router.HandleFunc("/notes/", handler.handleList).Methods("GET", "OPTIONS").Name("list-notes")
	router.HandleFunc("/notes/{id}/", handler.handleGet).Methods("GET", "OPTIONS").Name("get-note")
	router.HandleFunc("/notes/{id}/", handler.handleUpdate).Methods("PUT", "OPTIONS").Name("update-note")
	router.HandleFunc("/notes/{id}/", handler.handleDelete).Methods("DELETE", "OPTIONS").Name("delete-note")
}

func (handler *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	payload, ok := handler.readPayload(w, r)
	if !ok {
		return
	}

	note := payload.toNote(0)
	id, err := handler.repo.Add(r.Context(), note)
	if err != nil {
		logStoreError("add new note", err)
		writeInternalError(w)
		return
	}
	note.ID = id

	handler.metrics.CounterNotes.Inc()
	log.Tracef("new note %d: [%s] added", note.ID, note.Title)

	pkg.WriteJSONResponse(w, http.StatusCreated, note)
}

func (handler *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := noteIDFromPath(w, r)
	if !ok {
		return
	}

	note, err := handler.repo.Get(r.Context(), id)
	if errors.Is(err, ErrNoteNotFound) {
		writeDetail(w, http.StatusNotFound, detailNoteNotFound)
		return
	}
	if err != nil {
		log.Errorf("get note %d: %s", id, err)
		writeInternalError(w)
		return
	}

	pkg.WriteJSONResponse(w, http.StatusOK, note)
}

func (handler *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	notes, err := handler.repo.List(r.Context())
	if err != nil {
		log.Errorf("list notes error: %s", err)
		writeInternalError(w)
		return
	}

	if notes == nil {
		notes = []Note{}
	}

	pkg.WriteJSONResponse(w, http.StatusOK, notes)
}

func (handler *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := noteIDFromPath(w, r)
	if !ok {
		return
	}
	payload, ok := handler.readPayload(w, r)
	if !ok {
		return
	}

	if _, err := handler.repo.Get(r.Context(), id); err != nil {
		if errors.Is(err, ErrNoteNotFound) {
			writeDetail(w, http.StatusNotFound, detailNoteNotFound)
			return
		}
		log.Errorf("update note %d, get: %s", id, err)
		writeInternalError(w)
		return
	}

	note := payload.toNote(id)
	updatedID, err := handler.repo.Update(r.Context(), note)
	if errors.Is(err, ErrNoteNotFound) {
		// removed between the lookup and the update
		writeDetail(w, http.StatusNotFound, detailNoteNotFound)
		return
	}
	if err != nil {
		logStoreError(fmt.Sprintf("update note %d", id), err)
		writeInternalError(w)
		return
	}
	note.ID = updatedID

	pkg.WriteJSONResponse(w, http.StatusOK, note)
}

func (handler *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := noteIDFromPath(w, r)
	if !ok {
		return
	}

	note, err := handler.repo.Get(r.Context(), id)
	if errors.Is(err, ErrNoteNotFound) {
		writeDetail(w, http.StatusNotFound, detailNoteNotFound)
		return
	}
	if err != nil {
		log.Errorf("delete note %d, get: %s", id, err)
		writeInternalError(w)
		return
	}

	if err := handler.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNoteNotFound) {
			writeDetail(w, http.StatusNotFound, detailNoteNotFound)
			return
		}
		log.Errorf("delete note %d: %s", id, err)
		writeInternalError(w)
		return
	}

	log.Tracef("note %d deleted", id)
	pkg.WriteJSONResponse(w, http.StatusOK, note)
}

func (handler *Handler) readPayload(w http.ResponseWriter, r *http.Request) (NotePayload, bool) {
	var payload NotePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Debugf("note payload, unmarshal json: %s", err)
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return NotePayload{}, false
	}

	if err := handler.validate.Struct(payload); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			writeDetail(
				w,
				http.StatusUnprocessableEntity,
				fmt.Sprintf("field required: %s", validationErrs[0].Field()),
			)
			return NotePayload{}, false
		}
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return NotePayload{}, false
	}

	return payload, true
}

// noteIDFromPath parses the {id} path variable, which has to be a positive integer.
// IDs past the range of the SERIAL id column can not exist and are answered
// with 404 right away.
func noteIDFromPath(w http.ResponseWriter, r *http.Request) (int, bool) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		writeDetail(w, http.StatusUnprocessableEntity, "error, id NaN")
		return 0, false
	}
	if id <= 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "error, id has to be greater than 0")
		return 0, false
	}
	if id > math.MaxInt32 {
		writeDetail(w, http.StatusNotFound, detailNoteNotFound)
		return 0, false
	}
	return int(id), true
}

func logStoreError(op string, err error) {
	if pkg.IsStringDataRightTruncation(err) {
		log.Errorf("%s: title or description too long for the note table: %s", op, err)
		return
	}
	log.Errorf("%s: %s", op, err)
}

func writeDetail(w http.ResponseWriter, statusCode int, detail string) {
	pkg.WriteJSONResponse(w, statusCode, errorResponse{Detail: detail})
}

func writeInternalError(w http.ResponseWriter) {
	writeDetail(w, http.StatusInternalServerError, "internal server error")
}
