// Package service shapes requests around the issue store: it validates
// input, assigns ids and timestamps and leaves persistence to store.Store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joescharf/itrack/internal/errs"
	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/store"
)

// Default list limits.
const (
	DefaultPageSize = store.DefaultPageSize
	MaxPageSize     = 100
)

// Config tunes an IssueService. Zero fields select defaults.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	Logger          *slog.Logger
	Now             func() time.Time
	NewID           func() string
}

// IssueService is stateless; it is safe for concurrent use as long as the
// underlying store is.
type IssueService struct {
	store           store.Store
	log             *slog.Logger
	now             func() time.Time
	newID           func() string
	defaultPageSize int
	maxPageSize     int
}

// New creates an IssueService backed by s.
func New(s store.Store, cfg Config) *IssueService {
	svc := &IssueService{
		store:           s,
		log:             cfg.Logger,
		now:             cfg.Now,
		newID:           cfg.NewID,
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
	}
	if svc.log == nil {
		svc.log = slog.Default()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	if svc.newID == nil {
		svc.newID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if svc.defaultPageSize <= 0 {
		svc.defaultPageSize = DefaultPageSize
	}
	if svc.maxPageSize <= 0 {
		svc.maxPageSize = MaxPageSize
	}
	if svc.defaultPageSize > svc.maxPageSize {
		svc.defaultPageSize = svc.maxPageSize
	}
	return svc
}

// CreateIssue validates in, assigns a fresh id and timestamps and stores it.
func (s *IssueService) CreateIssue(ctx context.Context, in models.IssueInput) (*models.Issue, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errs.Invalid("title", "must not be empty")
	}

	status := in.Status
	if status == "" {
		status = models.IssueStatusOpen
	}
	if !status.Valid() {
		return nil, invalidStatus(status)
	}

	priority := in.Priority
	if priority == "" {
		priority = models.IssuePriorityMedium
	}
	if !priority.Valid() {
		return nil, invalidPriority(priority)
	}

	now := s.now()
	issue := &models.Issue{
		ID:        s.newID(),
		Title:     title,
		Status:    status,
		Priority:  priority,
		Assignee:  normalizeAssignee(in.Assignee),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateIssue(ctx, issue); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			// Duplicate generated ids point at a broken id source, not at the caller.
			s.log.ErrorContext(ctx, "generated issue id already exists", "id", issue.ID, "error", err)
		}
		return nil, err
	}

	s.log.InfoContext(ctx, "issue created", "id", issue.ID, "status", issue.Status, "priority", issue.Priority)
	return issue, nil
}

// ListIssues validates criteria, applies defaults and returns one page.
func (s *IssueService) ListIssues(ctx context.Context, c models.ListCriteria) (*models.IssuePage, error) {
	c, err := s.ResolveCriteria(c)
	if err != nil {
		return nil, err
	}
	if c.SortBy != "" {
		if _, ok := store.SortExpr(c.SortBy); !ok {
			s.log.DebugContext(ctx, "unknown sort key, using default", "sortBy", c.SortBy, "default", store.DefaultSortColumn)
		}
	}
	return s.store.ListIssues(ctx, c)
}

// ResolveCriteria rejects invalid filters and fills paging defaults. A
// negative page size is invalid; zero selects the configured default.
func (s *IssueService) ResolveCriteria(c models.ListCriteria) (models.ListCriteria, error) {
	// Substring filters match verbatim; an all-blank value is no filter.
	if strings.TrimSpace(c.Search) == "" {
		c.Search = ""
	}
	if strings.TrimSpace(c.Assignee) == "" {
		c.Assignee = ""
	}

	if c.Status != "" && !c.Status.Valid() {
		return c, invalidStatus(c.Status)
	}
	if c.Priority != "" && !c.Priority.Valid() {
		return c, invalidPriority(c.Priority)
	}
	if c.PageSize < 0 {
		return c, errs.Invalid("pageSize", "must be greater than 0")
	}
	if c.PageSize == 0 {
		c.PageSize = s.defaultPageSize
	}
	if c.PageSize > s.maxPageSize {
		c.PageSize = s.maxPageSize
	}
	if c.Page < 1 {
		c.Page = 1
	}
	if c.SortBy == "" {
		c.SortBy = "updatedAt"
	}
	c.Order = store.NormalizeOrder(c.Order)
	return c, nil
}

// GetIssue returns the issue with id or an error matching errs.ErrNotFound.
func (s *IssueService) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	return s.store.GetIssue(ctx, id)
}

// UpdateIssue applies only the fields present in patch.
func (s *IssueService) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	patch, err := validatePatch(patch)
	if err != nil {
		return nil, err
	}

	issue, err := s.store.UpdateIssue(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "issue updated", "id", issue.ID, "fields", patchFields(patch))
	return issue, nil
}

// DeleteIssue removes the issue permanently.
func (s *IssueService) DeleteIssue(ctx context.Context, id string) error {
	if err := s.store.DeleteIssue(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "issue deleted", "id", id)
	return nil
}

func validatePatch(p models.IssuePatch) (models.IssuePatch, error) {
	if p.Title.Set {
		if p.Title.Null {
			return p, errs.Invalid("title", "must not be null")
		}
		p.Title.Value = strings.TrimSpace(p.Title.Value)
		if p.Title.Value == "" {
			return p, errs.Invalid("title", "must not be empty")
		}
	}
	if p.Status.Set {
		if p.Status.Null {
			return p, errs.Invalid("status", "must not be null")
		}
		if !p.Status.Value.Valid() {
			return p, invalidStatus(p.Status.Value)
		}
	}
	if p.Priority.Set {
		if p.Priority.Null {
			return p, errs.Invalid("priority", "must not be null")
		}
		if !p.Priority.Value.Valid() {
			return p, invalidPriority(p.Priority.Value)
		}
	}
	if p.Assignee.Set && !p.Assignee.Null {
		p.Assignee.Value = strings.TrimSpace(p.Assignee.Value)
		if p.Assignee.Value == "" {
			p.Assignee = models.Null[string]()
		}
	}
	return p, nil
}

func patchFields(p models.IssuePatch) []string {
	var fields []string
	if p.Title.Set {
		fields = append(fields, "title")
	}
	if p.Status.Set {
		fields = append(fields, "status")
	}
	if p.Priority.Set {
		fields = append(fields, "priority")
	}
	if p.Assignee.Set {
		fields = append(fields, "assignee")
	}
	return fields
}

// normalizeAssignee maps blank assignees to nil.
func normalizeAssignee(a *string) *string {
	if a == nil {
		return nil
	}
	v := strings.TrimSpace(*a)
	if v == "" {
		return nil
	}
	return &v
}

func invalidStatus(s models.IssueStatus) error {
	return errs.Invalid("status", "%q is not one of %s", s, joinValues(models.IssueStatuses))
}

func invalidPriority(p models.IssuePriority) error {
	return errs.Invalid("priority", "%q is not one of %s", p, joinValues(models.IssuePriorities))
}

func joinValues[T ~string](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// IsInternal reports whether err should surface as an internal failure
// rather than as a caller mistake.
func IsInternal(err error) bool {
	return err != nil && !errors.Is(err, errs.ErrNotFound) && !errors.Is(err, errs.ErrValidation)
}
