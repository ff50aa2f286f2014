package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/itrack/internal/errs"
	"github.com/joescharf/itrack/internal/models"
)

var issueRowColumns = []string{"id", "title", "status", "priority", "assignee", "created_at", "updated_at"}

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &PostgresStore{sqlStore: newSQLStore(db, DialectPostgres, postgresUniqueViolation)}, mock
}

func TestPostgresMock_GetIssueNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+issueColumns+" FROM issues WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(issueRowColumns))

	_, err := s.GetIssue(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMock_CreateIssueUniqueViolation(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	issue := &models.Issue{
		ID: "a", Title: "t", Status: models.IssueStatusOpen, Priority: models.IssuePriorityLow,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM issues WHERE id = $1")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO issues \(.*\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := s.CreateIssue(context.Background(), issue)
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMock_UpdateLocksRowAndWritesSuppliedColumns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := baseTime.Add(time.Hour)
	s.SetClock(func() time.Time { return now })

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+issueColumns+" FROM issues WHERE id = $1 FOR UPDATE")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows(issueRowColumns).
			AddRow("a", "Login fails", "open", "high", nil, baseTime, baseTime))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET updated_at = $1, status = $2 WHERE id = $3")).
		WithArgs(now, "closed", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	issue, err := s.UpdateIssue(context.Background(), "a", models.IssuePatch{Status: models.Some(models.IssueStatusClosed)})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusClosed, issue.Status)
	assert.Equal(t, "Login fails", issue.Title)
	assert.True(t, issue.UpdatedAt.Equal(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMock_ListIssuesPlaceholders(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM issues WHERE LOWER(title) LIKE LOWER($1) ESCAPE '\' AND status = $2`)).
		WithArgs("%Bug%", "open").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM issues WHERE LOWER(title) LIKE LOWER($1) ESCAPE '\' AND status = $2 ORDER BY LOWER(title) ASC, id ASC LIMIT $3 OFFSET $4`)).
		WithArgs("%Bug%", "open", 2, 2).
		WillReturnRows(sqlmock.NewRows(issueRowColumns).
			AddRow("c", "Signup bug", "open", "low", "alice", baseTime, baseTime))
	mock.ExpectCommit()

	page, err := s.ListIssues(context.Background(), models.ListCriteria{
		Search: "Bug", Status: models.IssueStatusOpen, SortBy: "title", Order: "asc", Page: 2, PageSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Issues, 1)
	require.NotNil(t, page.Issues[0].Assignee)
	assert.Equal(t, "alice", *page.Issues[0].Assignee)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMock_ListIssuesCountError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM issues")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.ListIssues(context.Background(), models.ListCriteria{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count issues")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMock_ListIssuesBeginError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := s.ListIssues(context.Background(), models.ListCriteria{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list issues: begin")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadTxOptions(t *testing.T) {
	pg := newSQLStore(nil, DialectPostgres, nil)
	opts := pg.readTxOptions()
	assert.True(t, opts.ReadOnly)
	assert.Equal(t, sql.LevelRepeatableRead, opts.Isolation)

	lite := newSQLStore(nil, DialectSQLite, nil)
	opts = lite.readTxOptions()
	assert.True(t, opts.ReadOnly)
	assert.Equal(t, sql.LevelDefault, opts.Isolation)
}

func TestPostgresMock_DeleteMissing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM issues WHERE id = $1")).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteIssue(context.Background(), "a")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMock_DeleteRowsAffectedError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM issues WHERE id = $1")).
		WithArgs("a").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver lost count")))

	err := s.DeleteIssue(context.Background(), "a")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errs.ErrNotFound)
	assert.Contains(t, err.Error(), "rows affected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMock_UpdateRowsAffectedError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+issueColumns+" FROM issues WHERE id = $1 FOR UPDATE")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows(issueRowColumns).
			AddRow("a", "Login fails", "open", "high", nil, baseTime, baseTime))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET")).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver lost count")))
	mock.ExpectRollback()

	_, err := s.UpdateIssue(context.Background(), "a", models.IssuePatch{Title: models.Some("New")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, errs.ErrNotFound)
	assert.Contains(t, err.Error(), "rows affected")
	assert.NoError(t, mock.ExpectationsWereMet())
}
