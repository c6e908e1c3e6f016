package notes

import (
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/notesservice/pkg"
)

// openSession acquires a store session for the current request. The returned
// release func must be deferred right away, it closes the session on every
// exit path of the handler.
func (handler *Handler) openSession(r *http.Request) (Session, func(), error) {
	session, err := handler.sessions.NewSession(r.Context())
	if err != nil {
		return nil, nil, err
	}
	handler.metrics.GaugeOpenSessions.Inc()

	release := func() {
		handler.metrics.GaugeOpenSessions.Dec()
		if err := session.Close(); err != nil {
			log.Errorf("close notes db session: %s", err)
		}
	}

	return session, release, nil
}

func (handler *Handler) handleCreateSync(w http.ResponseWriter, r *http.Request) {
	session, release, err := handler.openSession(r)
	if err != nil {
		log.Errorf("add new note [sync]: %s", err)
		writeInternalError(w)
		return
	}
	defer release()

	payload, ok := handler.readPayload(w, r)
	if !ok {
		return
	}

	note := payload.toNote(0)
	id, err := session.Add(r.Context(), note)
	if err != nil {
		logStoreError("add new note [sync]", err)
		writeInternalError(w)
		return
	}
	note.ID = id

	handler.metrics.CounterNotes.Inc()
	log.Tracef("new note %d: [%s] added [sync]", note.ID, note.Title)

	pkg.WriteJSONResponse(w, http.StatusCreated, note)
}

func (handler *Handler) handleGetSync(w http.ResponseWriter, r *http.Request) {
	id, ok := noteIDFromPath(w, r)
	if !ok {
		return
	}

	session, release, err := handler.openSession(r)
	if err != nil {
		log.Errorf("get note %d [sync]: %s", id, err)
		writeInternalError(w)
		return
	}
	defer release()

	note, err := session.Get(r.Context(), id)
	if errors.Is(err, ErrNoteNotFound) {
		writeDetail(w, http.StatusNotFound, detailNoteNotFound)
		return
	}
	if err != nil {
		log.Errorf("get note %d [sync]: %s", id, err)
		writeInternalError(w)
		return
	}

	pkg.WriteJSONResponse(w, http.StatusOK, note)
}
