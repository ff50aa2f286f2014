package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/itrack/internal/errs"
	"github.com/joescharf/itrack/internal/models"
)

const issueColumns = "id, title, status, priority, assignee, created_at, updated_at"

// sqlStore implements the issue operations over database/sql. The SQLite
// and PostgreSQL stores embed it and differ only in connection setup,
// migrations and error classification.
type sqlStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time

	// isUniqueViolation reports whether err is a duplicate-key failure.
	isUniqueViolation func(err error) bool
}

func newSQLStore(db *sql.DB, d Dialect, uniqueViolation func(error) bool) sqlStore {
	return sqlStore{
		db:                db,
		dialect:           d,
		now:               func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		isUniqueViolation: uniqueViolation,
	}
}

// SetClock replaces the time source used for updated_at.
func (s *sqlStore) SetClock(now func() time.Time) {
	s.now = now
}

// Ping checks the database connection.
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) ph(n int) string {
	return s.dialect.Placeholder(n)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var status, priority string
	var assignee sql.NullString

	if err := row.Scan(&issue.ID, &issue.Title, &status, &priority, &assignee, &issue.CreatedAt, &issue.UpdatedAt); err != nil {
		return nil, err
	}

	issue.Status = models.IssueStatus(status)
	issue.Priority = models.IssuePriority(priority)
	if assignee.Valid {
		issue.Assignee = &assignee.String
	}
	issue.CreatedAt = issue.CreatedAt.UTC()
	issue.UpdatedAt = issue.UpdatedAt.UTC()
	return issue, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// --- Issues ---

func (s *sqlStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create issue: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues WHERE id = "+s.ph(1), issue.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("create issue %s: %w", issue.ID, errs.ErrConflict)
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO issues (%s) VALUES (%s, %s, %s, %s, %s, %s, %s)`,
			issueColumns, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7)),
		issue.ID, issue.Title, string(issue.Status), string(issue.Priority),
		nullString(issue.Assignee), issue.CreatedAt.UTC(), issue.UpdatedAt.UTC(),
	)
	if err != nil {
		if s.isUniqueViolation != nil && s.isUniqueViolation(err) {
			return fmt.Errorf("create issue %s: %w", issue.ID, errs.ErrConflict)
		}
		return fmt.Errorf("create issue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create issue: commit: %w", err)
	}
	return nil
}

func (s *sqlStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := scanIssue(s.db.QueryRowContext(ctx,
		"SELECT "+issueColumns+" FROM issues WHERE id = "+s.ph(1), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get issue %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (s *sqlStore) ListIssues(ctx context.Context, criteria models.ListCriteria) (*models.IssuePage, error) {
	criteria = Normalize(criteria)
	q := newListQuery(s.dialect, criteria)

	page := &models.IssuePage{
		Issues:   []*models.Issue{},
		Page:     criteria.Page,
		PageSize: criteria.PageSize,
	}

	// The count and the page read one snapshot so the total matches the rows.
	tx, err := s.db.BeginTx(ctx, s.readTxOptions())
	if err != nil {
		return nil, fmt.Errorf("list issues: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	countSQL, countArgs := q.CountSQL()
	if err := tx.QueryRowContext(ctx, countSQL, countArgs...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count issues: %w", err)
	}

	selectSQL, selectArgs := q.SelectSQL()
	rows, err := tx.QueryContext(ctx, selectSQL, selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		page.Issues = append(page.Issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("list issues: commit: %w", err)
	}
	return page, nil
}

// readTxOptions returns the options for multi-statement reads. SQLite pins
// a snapshot at the first read of any transaction; PostgreSQL needs
// REPEATABLE READ for that.
func (s *sqlStore) readTxOptions() *sql.TxOptions {
	opts := &sql.TxOptions{ReadOnly: true}
	if s.dialect == DialectPostgres {
		opts.Isolation = sql.LevelRepeatableRead
	}
	return opts
}

func (s *sqlStore) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update issue: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectSQL := "SELECT " + issueColumns + " FROM issues WHERE id = " + s.ph(1)
	if s.dialect == DialectPostgres {
		selectSQL += " FOR UPDATE"
	}
	issue, err := scanIssue(tx.QueryRowContext(ctx, selectSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update issue %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}

	// updated_at must move forward even when the clock has not.
	now := s.now()
	if !now.After(issue.UpdatedAt) {
		now = issue.UpdatedAt.Add(time.Microsecond)
	}
	patch.Apply(issue)
	issue.UpdatedAt = now

	// Only the supplied columns are written.
	setClauses := []string{"updated_at = " + s.ph(1)}
	args := []any{now}
	if patch.Title.Set {
		args = append(args, issue.Title)
		setClauses = append(setClauses, "title = "+s.ph(len(args)))
	}
	if patch.Status.Set {
		args = append(args, string(issue.Status))
		setClauses = append(setClauses, "status = "+s.ph(len(args)))
	}
	if patch.Priority.Set {
		args = append(args, string(issue.Priority))
		setClauses = append(setClauses, "priority = "+s.ph(len(args)))
	}
	if patch.Assignee.Set {
		args = append(args, nullString(issue.Assignee))
		setClauses = append(setClauses, "assignee = "+s.ph(len(args)))
	}
	args = append(args, id)

	result, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE issues SET %s WHERE id = %s", strings.Join(setClauses, ", "), s.ph(len(args))),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update issue: rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("update issue %s: %w", id, errs.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update issue: commit: %w", err)
	}
	return issue, nil
}

func (s *sqlStore) DeleteIssue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = "+s.ph(1), id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete issue: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete issue %s: %w", id, errs.ErrNotFound)
	}
	return nil
}
