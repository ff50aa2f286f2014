package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joescharf/itrack/internal/errs"
	"github.com/joescharf/itrack/internal/health"
	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/service"
)

// DefaultAllowedOrigin is the web frontend's development origin.
const DefaultAllowedOrigin = "http://localhost:4200"

// List response headers.
const (
	HeaderTotalCount = "X-Total-Count"
	HeaderPage       = "X-Page"
	HeaderPageSize   = "X-Page-Size"
	HeaderRequestID  = "X-Request-ID"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Config holds the optional settings for NewServer.
type Config struct {
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server provides the REST API handlers.
type Server struct {
	svc            *service.IssueService
	health         *health.Reporter
	log            *slog.Logger
	allowedOrigins []string
}

// NewServer creates a new API server.
func NewServer(svc *service.IssueService, hr *health.Reporter, cfg Config) *Server {
	s := &Server{
		svc:            svc,
		health:         hr,
		log:            cfg.Logger,
		allowedOrigins: cfg.AllowedOrigins,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if len(s.allowedOrigins) == 0 {
		s.allowedOrigins = []string{DefaultAllowedOrigin}
	}
	return s
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /issues", s.createIssue)
	mux.HandleFunc("GET /issues", s.listIssues)
	mux.HandleFunc("GET /issues/{id}", s.getIssue)
	mux.HandleFunc("PUT /issues/{id}", s.updateIssue)
	mux.HandleFunc("PATCH /issues/{id}", s.updateIssue)
	mux.HandleFunc("DELETE /issues/{id}", s.deleteIssue)

	mux.HandleFunc("GET /health", s.getHealth)

	return s.requestLogger(s.recoverer(s.corsMiddleware(mux)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors to status codes. Internal causes
// are logged and replaced by a generic message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, errs.ErrNotFound.Error())
	default:
		s.log.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", requestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// --- Issues ---

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var in models.IssueInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	issue, err := s.svc.CreateIssue(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	c, err := parseCriteria(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.svc.ListIssues(r.Context(), c)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	issues := page.Issues
	if issues == nil {
		issues = []*models.Issue{}
	}
	w.Header().Set(HeaderTotalCount, strconv.Itoa(page.Total))
	w.Header().Set(HeaderPage, strconv.Itoa(page.Page))
	w.Header().Set(HeaderPageSize, strconv.Itoa(page.PageSize))
	writeJSON(w, http.StatusOK, issues)
}

// parseCriteria reads list criteria from the query string. Empty values
// mean no constraint. page and pageSize must be integers and pageSize must
// be positive when given.
func parseCriteria(r *http.Request) (models.ListCriteria, error) {
	q := r.URL.Query()
	c := models.ListCriteria{
		Search:   q.Get("search"),
		Status:   models.IssueStatus(q.Get("status")),
		Priority: models.IssuePriority(q.Get("priority")),
		Assignee: q.Get("assignee"),
		SortBy:   q.Get("sortBy"),
		Order:    q.Get("order"),
	}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, errs.Invalid("page", "%q is not an integer", v)
		}
		c.Page = n
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, errs.Invalid("pageSize", "%q is not an integer", v)
		}
		if n <= 0 {
			return c, errs.Invalid("pageSize", "must be greater than 0")
		}
		c.PageSize = n
	}
	return c, nil
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.svc.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	var patch models.IssuePatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	issue, err := s.svc.UpdateIssue(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteIssue(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Health ---

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Report())
}
