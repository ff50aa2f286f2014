package store

import (
	"context"

	"github.com/joescharf/itrack/internal/models"
)

// Store defines the persistence interface for issues. Implementations
// return errs.ErrNotFound for unknown ids and errs.ErrConflict for
// duplicate ids.
type Store interface {
	// CreateIssue stores a fully formed issue; id, timestamps and defaults
	// are the caller's responsibility.
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	ListIssues(ctx context.Context, criteria models.ListCriteria) (*models.IssuePage, error)
	// UpdateIssue applies the present fields of patch and bumps updated_at.
	UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error)
	DeleteIssue(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
