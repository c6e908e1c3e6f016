package notes

import (
	"context"
	"sync"
)

type repoMock struct {
	mu     sync.Mutex
	notes  map[int]*Note
	lastID int
	writes int
}

func newRepoMock() *repoMock {
	return &repoMock{
		notes: make(map[int]*Note),
	}
}

func (r *repoMock) Add(_ context.Context, note *Note) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	r.writes++
	stored := *note
	stored.ID = r.lastID
	r.notes[stored.ID] = &stored
	return stored.ID, nil
}

func (r *repoMock) Get(_ context.Context, id int) (*Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	note, ok := r.notes[id]
	if !ok {
		return nil, ErrNoteNotFound
	}
	n := *note
	return &n, nil
}

func (r *repoMock) List(context.Context) ([]Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	notes := []Note{}
	for _, n := range r.notes {
		notes = append(notes, *n)
	}
	return notes, nil
}

func (r *repoMock) Update(_ context.Context, note *Note) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notes[note.ID]; !ok {
		return 0, ErrNoteNotFound
	}
	r.writes++
	stored := *note
	r.notes[note.ID] = &stored
	return note.ID, nil
}

func (r *repoMock) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notes[id]; !ok {
		return ErrNoteNotFound
	}
	r.writes++
	delete(r.notes, id)
	return nil
}

// sessionSourceMock hands out sessions over a shared repoMock, and counts
// how many of them were opened and closed.
type sessionSourceMock struct {
	repo *repoMock

	mu         sync.Mutex
	opened     int
	closed     int
	newErr     error
	sessionErr error
}

func newSessionSourceMock(repo *repoMock) *sessionSourceMock {
	return &sessionSourceMock{repo: repo}
}

func (s *sessionSourceMock) NewSession(context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.newErr != nil {
		return nil, s.newErr
	}
	s.opened++
	return &sessionMock{source: s}, nil
}

func (s *sessionSourceMock) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

type sessionMock struct {
	source *sessionSourceMock
}

func (s *sessionMock) Add(ctx context.Context, note *Note) (int, error) {
	if err := s.source.sessionErr; err != nil {
		return 0, err
	}
	return s.source.repo.Add(ctx, note)
}

func (s *sessionMock) Get(ctx context.Context, id int) (*Note, error) {
	if err := s.source.sessionErr; err != nil {
		return nil, err
	}
	return s.source.repo.Get(ctx, id)
}

func (s *sessionMock) List(ctx context.Context) ([]Note, error) {
	return s.source.repo.List(ctx)
}

func (s *sessionMock) Update(ctx context.Context, note *Note) (int, error) {
	return s.source.repo.Update(ctx, note)
}

func (s *sessionMock) Delete(ctx context.Context, id int) error {
	return s.source.repo.Delete(ctx, id)
}

func (s *sessionMock) Close() error {
	s.source.mu.Lock()
	defer s.source.mu.Unlock()
	s.source.closed++
	return nil
}
