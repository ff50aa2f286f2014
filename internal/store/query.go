package store

import (
	"fmt"
	"strings"

	"github.com/joescharf/itrack/internal/models"
)

// DefaultPageSize is used when a criteria carries no page size.
const DefaultPageSize = 10

// DefaultSortColumn orders lists whose sort key is missing or unknown.
const DefaultSortColumn = "updated_at"

// Dialect selects the SQL placeholder style of a backend.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

const (
	statusRank   = "CASE status WHEN 'open' THEN 0 WHEN 'in-progress' THEN 1 WHEN 'closed' THEN 2 ELSE 3 END"
	priorityRank = "CASE priority WHEN 'low' THEN 0 WHEN 'medium' THEN 1 WHEN 'high' THEN 2 ELSE 3 END"
)

// sortColumns maps lower-cased external sort keys to SQL order expressions.
// Both the camelCase API names and the snake_case column names are accepted.
var sortColumns = map[string]string{
	"id":         "id",
	"title":      "LOWER(title)",
	"status":     statusRank,
	"priority":   priorityRank,
	"assignee":   "LOWER(COALESCE(assignee, ''))",
	"createdat":  "created_at",
	"created_at": "created_at",
	"updatedat":  "updated_at",
	"updated_at": "updated_at",
}

// SortExpr resolves an external sort key. Unknown or empty keys resolve to
// DefaultSortColumn with ok=false.
func SortExpr(sortBy string) (expr string, ok bool) {
	if e, found := sortColumns[strings.ToLower(strings.TrimSpace(sortBy))]; found {
		return e, true
	}
	return DefaultSortColumn, false
}

// SortKeys returns the accepted external sort keys.
func SortKeys() []string {
	return []string{"id", "title", "status", "priority", "assignee", "createdAt", "updatedAt"}
}

// NormalizeOrder maps any order string to "asc" or "desc" (the default).
func NormalizeOrder(order string) string {
	if strings.EqualFold(strings.TrimSpace(order), models.OrderAsc) {
		return models.OrderAsc
	}
	return models.OrderDesc
}

// Normalize fills defaults into c: page < 1 becomes 1, a non-positive page
// size becomes DefaultPageSize and the order is canonicalized.
func Normalize(c models.ListCriteria) models.ListCriteria {
	if c.Page < 1 {
		c.Page = 1
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	c.Order = NormalizeOrder(c.Order)
	return c
}

// Offset returns the number of rows skipped before page c.Page.
func Offset(c models.ListCriteria) int {
	return (c.Page - 1) * c.PageSize
}

// listQuery composes the WHERE, ORDER BY and LIMIT/OFFSET clauses of a list
// request for one dialect.
type listQuery struct {
	dialect Dialect
	conds   []string
	args    []any
	orderBy string
	limit   int
	offset  int
}

func newListQuery(d Dialect, c models.ListCriteria) *listQuery {
	c = Normalize(c)
	q := &listQuery{dialect: d, limit: c.PageSize, offset: Offset(c)}

	if c.Search != "" {
		q.conds = append(q.conds, "LOWER(title) LIKE LOWER("+q.bind(likePattern(c.Search))+`) ESCAPE '\'`)
	}
	if c.Status != "" {
		q.conds = append(q.conds, "status = "+q.bind(string(c.Status)))
	}
	if c.Priority != "" {
		q.conds = append(q.conds, "priority = "+q.bind(string(c.Priority)))
	}
	if c.Assignee != "" {
		q.conds = append(q.conds, "LOWER(assignee) LIKE LOWER("+q.bind(likePattern(c.Assignee))+`) ESCAPE '\'`)
	}

	expr, _ := SortExpr(c.SortBy)
	dir := strings.ToUpper(c.Order)
	// id breaks ties so pages never overlap
	q.orderBy = fmt.Sprintf("%s %s, id %s", expr, dir, dir)
	return q
}

func (q *listQuery) bind(v any) string {
	q.args = append(q.args, v)
	return q.dialect.Placeholder(len(q.args))
}

func (q *listQuery) where() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}

// CountSQL returns the statement counting every matching row.
func (q *listQuery) CountSQL() (string, []any) {
	return "SELECT COUNT(*) FROM issues" + q.where(), q.args
}

// SelectSQL returns the statement fetching one page of matching rows.
func (q *listQuery) SelectSQL() (string, []any) {
	args := make([]any, 0, len(q.args)+2)
	args = append(args, q.args...)
	args = append(args, q.limit, q.offset)
	n := len(q.args)
	query := fmt.Sprintf("SELECT %s FROM issues%s ORDER BY %s LIMIT %s OFFSET %s",
		issueColumns, q.where(), q.orderBy,
		q.dialect.Placeholder(n+1), q.dialect.Placeholder(n+2))
	return query, args
}

// likePattern escapes LIKE wildcards and wraps s in %...%. Case folding
// happens in SQL so the column and the pattern go through the same LOWER.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
