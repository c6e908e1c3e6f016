//go:build integration_test || all_tests

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/notesservice/internal/notes"
)

func (s *IntegrationTestSuite) doRequest(
	ctx context.Context,
	method, path string,
	body any,
) (int, []byte) {
	t := s.T()

	var reqBody io.Reader
	if body != nil {
		bodyJson, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(bodyJson)
	}

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, respBytes
}

func (s *IntegrationTestSuite) newNoteRequest(ctx context.Context, path, title, description string) notes.Note {
	status, respBytes := s.doRequest(ctx, http.MethodPost, path, map[string]string{
		"title":       title,
		"description": description,
	})
	require.Equal(s.T(), http.StatusCreated, status, string(respBytes))

	var note notes.Note
	require.NoError(s.T(), json.Unmarshal(respBytes, &note))
	return note
}

func (s *IntegrationTestSuite) getNoteRequest(ctx context.Context, path string) (int, notes.Note) {
	status, respBytes := s.doRequest(ctx, http.MethodGet, path, nil)

	var note notes.Note
	if status == http.StatusOK {
		require.NoError(s.T(), json.Unmarshal(respBytes, &note))
	}
	return status, note
}

func (s *IntegrationTestSuite) requireNotFound(status int, respBytes []byte) {
	require.Equal(s.T(), http.StatusNotFound, status)
	assert.JSONEq(s.T(), `{"detail":"Note not found"}`, string(respBytes))
}

func (s *IntegrationTestSuite) TestNotes_CreateAndRead() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, tc := range []struct {
		name       string
		createPath string
		getPath    string
	}{
		{name: "pooled", createPath: "/notes/", getPath: "/notes/%d/"},
		{name: "session", createPath: "/notes/sync/", getPath: "/notes/sync/%d/"},
	} {
		s.Run(tc.name, func() {
			t := s.T()
			created := s.newNoteRequest(ctx, tc.createPath, "A", "B")
			assert.Positive(t, created.ID)
			assert.Equal(t, "A", created.Title)
			assert.Equal(t, "B", created.Description)

			status, note := s.getNoteRequest(ctx, fmt.Sprintf(tc.getPath, created.ID))
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, created, note)

			status, respBytes := s.doRequest(ctx, http.MethodGet, fmt.Sprintf(tc.getPath, 999999), nil)
			s.requireNotFound(status, respBytes)
		})
	}
}

func (s *IntegrationTestSuite) TestNotes_UpdateAndDelete() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	created := s.newNoteRequest(ctx, "/notes/", "A", "B")

	status, respBytes := s.doRequest(ctx, http.MethodPut, fmt.Sprintf("/notes/%d/", created.ID), map[string]string{
		"title":       "C",
		"description": "D",
	})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%d,"title":"C","description":"D"}`, created.ID), string(respBytes))

	status, note := s.getNoteRequest(ctx, fmt.Sprintf("/notes/sync/%d/", created.ID))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, notes.Note{ID: created.ID, Title: "C", Description: "D"}, note)

	// update of a missing note writes nothing
	status, respBytes = s.doRequest(ctx, http.MethodPut, "/notes/999999/", map[string]string{
		"title":       "X",
		"description": "Y",
	})
	s.requireNotFound(status, respBytes)
	var count int
	require.NoError(t, s.dbPool.QueryRow(ctx, "SELECT COUNT(*) FROM note").Scan(&count))
	assert.Equal(t, 1, count)

	status, respBytes = s.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/notes/%d/", created.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%d,"title":"C","description":"D"}`, created.ID), string(respBytes))

	status, respBytes = s.doRequest(ctx, http.MethodGet, fmt.Sprintf("/notes/%d/", created.ID), nil)
	s.requireNotFound(status, respBytes)
	status, respBytes = s.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/notes/%d/", created.ID), nil)
	s.requireNotFound(status, respBytes)
}

func (s *IntegrationTestSuite) TestNotes_List() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	status, respBytes := s.doRequest(ctx, http.MethodGet, "/notes/", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(respBytes))

	var expected []notes.Note
	for i := 0; i < 10; i++ {
		path := "/notes/"
		if i%3 == 0 {
			path = "/notes/sync/"
		}
		expected = append(expected, s.newNoteRequest(ctx, path, gofakeit.LetterN(30), gofakeit.LetterN(50)))
	}

	status, respBytes = s.doRequest(ctx, http.MethodGet, "/notes/", nil)
	require.Equal(t, http.StatusOK, status)
	var listed []notes.Note
	require.NoError(t, json.Unmarshal(respBytes, &listed))
	assert.ElementsMatch(t, expected, listed)
}

func (s *IntegrationTestSuite) TestNotes_InvalidInput() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	for _, path := range []string{"/notes/abc/", "/notes/0/", "/notes/-1/", "/notes/sync/abc/", "/notes/sync/0/"} {
		status, _ := s.doRequest(ctx, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status, path)
	}

	// past the id column range, can not exist
	for _, path := range []string{"/notes/3000000000/", "/notes/sync/3000000000/"} {
		status, respBytes := s.doRequest(ctx, http.MethodGet, path, nil)
		s.requireNotFound(status, respBytes)
	}

	status, respBytes := s.doRequest(ctx, http.MethodPost, "/notes/", map[string]string{"title": "only title"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.JSONEq(t, `{"detail":"field required: description"}`, string(respBytes))

	// longer than the column allows
	status, respBytes = s.doRequest(ctx, http.MethodPost, "/notes/sync/", map[string]string{
		"title":       gofakeit.LetterN(51),
		"description": "d",
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"detail":"internal server error"}`, string(respBytes))
}

func (s *IntegrationTestSuite) TestNotes_SyncSessionsReleased() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	created := s.newNoteRequest(ctx, "/notes/sync/", "A", "B")

	// more concurrent requests than the session pool size, they all have to
	// get a session eventually, which only works if every session is released
	var wg sync.WaitGroup
	statuses := make(chan int, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/notes/sync/%d/", created.ID)
			if i%2 == 1 {
				path = "/notes/sync/999999/"
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverEndpoint+path, nil)
			if err != nil {
				statuses <- 0
				return
			}
			resp, err := s.httpClient.Do(req)
			if err != nil {
				statuses <- 0
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			statuses <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(statuses)

	ok, notFound := 0, 0
	for status := range statuses {
		switch status {
		case http.StatusOK:
			ok++
		case http.StatusNotFound:
			notFound++
		default:
			t.Errorf("unexpected status: %d", status)
		}
	}
	assert.Equal(t, 20, ok)
	assert.Equal(t, 20, notFound)
}

func (s *IntegrationTestSuite) TestNotes_CreateRateLimited() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	for i := 0; i < createLimitPerMin; i++ {
		s.newNoteRequest(ctx, "/notes/", "n", fmt.Sprintf("%d", i))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverEndpoint+"/notes/sync/",
		bytes.NewBufferString(`{"title":"A","description":"B"}`))
	require.NoError(t, err)
	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// reads are not limited
	status, _ := s.doRequest(ctx, http.MethodGet, "/notes/", nil)
	assert.Equal(t, http.StatusOK, status)
}

func (s *IntegrationTestSuite) TestHealthAndMetrics() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	status, respBytes := s.doRequest(ctx, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(respBytes))

	s.newNoteRequest(ctx, "/notes/sync/", "A", "B")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metricsEndpoint+"/metrics", nil)
	require.NoError(t, err)
	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "notes_main_notes_created")
	assert.Contains(t, string(body), "notes_main_open_db_sessions 0")
	assert.Contains(t, string(body), "pgxpool_")
}
