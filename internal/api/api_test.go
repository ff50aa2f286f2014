package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/itrack/internal/health"
	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/service"
	"github.com/joescharf/itrack/internal/store"
)

func setupTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(s, service.Config{Logger: logger})
	srv := NewServer(svc, health.NewReporter("test"), Config{Logger: logger})

	return srv, s
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeIssue(t *testing.T, w *httptest.ResponseRecorder) models.Issue {
	t.Helper()
	var issue models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issue))
	return issue
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []models.Issue {
	t.Helper()
	var issues []models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
	return issues
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestListIssues_Empty(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "GET", "/issues", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
	assert.Equal(t, "0", w.Header().Get(HeaderTotalCount))
	assert.Equal(t, "1", w.Header().Get(HeaderPage))
	assert.Equal(t, "10", w.Header().Get(HeaderPageSize))
}

func TestIssueLifecycle_API(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	// Create
	w := do(t, router, "POST", "/issues", `{"title":"Login fails","status":"open","priority":"high"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeIssue(t, w)
	assert.NotEmpty(t, created.ID)
	assert.Nil(t, created.Assignee)
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	// List with filters
	w = do(t, router, "GET", "/issues?status=open&sortBy=createdAt&order=asc&page=1&pageSize=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeList(t, w)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, "1", w.Header().Get(HeaderTotalCount))

	// Get
	w = do(t, router, "GET", "/issues/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Login fails", decodeIssue(t, w).Title)

	// Update
	w = do(t, router, "PUT", "/issues/"+created.ID, `{"status":"closed"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeIssue(t, w)
	assert.Equal(t, models.IssueStatusClosed, updated.Status)
	assert.Equal(t, "Login fails", updated.Title)
	assert.Equal(t, models.IssuePriorityHigh, updated.Priority)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	// Delete
	w = do(t, router, "DELETE", "/issues/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	// Gone
	w = do(t, router, "GET", "/issues/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "issue not found", errorMessage(t, w))
}

func TestCreateIssue_Defaults(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "POST", "/issues", `{"title":"Only a title","assignee":"alice"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	issue := decodeIssue(t, w)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.Equal(t, models.IssuePriorityMedium, issue.Priority)
	require.NotNil(t, issue.Assignee)
	assert.Equal(t, "alice", *issue.Assignee)
}

func TestCreateIssue_BadRequests(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"title":`},
		{"empty title", `{"title":"   "}`},
		{"bad status", `{"title":"x","status":"done"}`},
		{"bad priority", `{"title":"x","priority":"urgent"}`},
		{"wrong type", `{"title":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/issues", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, errorMessage(t, w))
		})
	}

	w := do(t, router, "GET", "/issues", "")
	assert.JSONEq(t, "[]", w.Body.String(), "rejected creates must not persist")
}

func TestUpdateIssue_PartialAndNullAssignee(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "POST", "/issues", `{"title":"t","priority":"low","assignee":"bob"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeIssue(t, w)

	w = do(t, router, "PATCH", "/issues/"+created.ID, `{"title":"X"}`)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeIssue(t, w)
	assert.Equal(t, "X", updated.Title)
	assert.Equal(t, models.IssuePriorityLow, updated.Priority)
	require.NotNil(t, updated.Assignee)
	assert.Equal(t, "bob", *updated.Assignee)

	w = do(t, router, "PUT", "/issues/"+created.ID, `{"assignee":null}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decodeIssue(t, w).Assignee)
}

func TestUpdateIssue_Errors(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "PUT", "/issues/missing", `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "issue not found", errorMessage(t, w))

	w = do(t, router, "POST", "/issues", `{"title":"t"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeIssue(t, w).ID

	for _, body := range []string{`{"status":"bogus"}`, `{"title":""}`, `{"title":null}`, `not json`} {
		w = do(t, router, "PUT", "/issues/"+id, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestDeleteIssue_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "DELETE", "/issues/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "issue not found", errorMessage(t, w))
	assert.NotContains(t, w.Body.String(), "missing")
}

func TestListIssues_QueryValidation(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	for _, q := range []string{
		"page=abc",
		"pageSize=ten",
		"pageSize=0",
		"pageSize=-5",
		"status=pending",
		"priority=critical",
	} {
		t.Run(q, func(t *testing.T) {
			w := do(t, router, "GET", "/issues?"+q, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestListIssues_LenientParams(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	for i := 0; i < 3; i++ {
		w := do(t, router, "POST", "/issues", fmt.Sprintf(`{"title":"issue %d"}`, i))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, router, "GET", "/issues?page=0&pageSize=1000&sortBy=nope&order=sideways&search=&status=", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 3)
	assert.Equal(t, "1", w.Header().Get(HeaderPage))
	assert.Equal(t, "100", w.Header().Get(HeaderPageSize))
}

func TestListIssues_SearchSortAndPaging(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	for _, body := range []string{
		`{"title":"Fix login bug","priority":"low"}`,
		`{"title":"Add dark mode","priority":"high"}`,
		`{"title":"BUG: crash on save","priority":"high"}`,
		`{"title":"Docs typo","priority":"medium"}`,
	} {
		w := do(t, router, "POST", "/issues", body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, router, "GET", "/issues?search=bug&sortBy=title&order=asc", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeList(t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "BUG: crash on save", list[0].Title)
	assert.Equal(t, "Fix login bug", list[1].Title)

	w = do(t, router, "GET", "/issues?sortBy=priority&order=desc&pageSize=2&page=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	first := decodeList(t, w)
	require.Len(t, first, 2)
	assert.Equal(t, "4", w.Header().Get(HeaderTotalCount))
	for _, i := range first {
		assert.Equal(t, models.IssuePriorityHigh, i.Priority)
	}

	w = do(t, router, "GET", "/issues?sortBy=priority&order=desc&pageSize=2&page=2", "")
	second := decodeList(t, w)
	require.Len(t, second, 2)
	assert.Equal(t, models.IssuePriorityMedium, second[0].Priority)
	assert.Equal(t, models.IssuePriorityLow, second[1].Priority)

	w = do(t, router, "GET", "/issues?pageSize=2&page=9", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
	assert.Equal(t, "4", w.Header().Get(HeaderTotalCount))
}

func TestHealth(t *testing.T) {
	srv, s := setupTestServer(t)
	require.NoError(t, s.Close())

	w := do(t, srv.Router(), "GET", "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	var rep health.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "ok", rep.Status)
	assert.Equal(t, "test", rep.Version)
}

func TestInternalErrorIsGeneric(t *testing.T) {
	srv, s := setupTestServer(t)
	require.NoError(t, s.Close())

	w := do(t, srv.Router(), "GET", "/issues", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", errorMessage(t, w))
}

func TestRequestID(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	a := do(t, router, "GET", "/health", "").Header().Get(HeaderRequestID)
	b := do(t, router, "GET", "/health", "").Header().Get(HeaderRequestID)

	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestCORS(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("OPTIONS", "/issues", nil)
	req.Header.Set("Origin", DefaultAllowedOrigin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, DefaultAllowedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), HeaderTotalCount)

	req = httptest.NewRequest("GET", "/issues", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverer(t *testing.T) {
	srv, _ := setupTestServer(t)
	h := srv.requestLogger(srv.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	w := do(t, h, "GET", "/", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}
