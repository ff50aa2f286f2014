package models

// Sort directions accepted by ListCriteria.Order.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListCriteria combines the filter, sort and pagination parameters of an
// issue list query. Zero values mean "no constraint" or "use the default".
type ListCriteria struct {
	Search   string // case-insensitive substring of title
	Status   IssueStatus
	Priority IssuePriority
	Assignee string // case-insensitive substring of assignee
	SortBy   string // external field name, e.g. "updatedAt"
	Order    string // "asc" or "desc"
	Page     int    // 1-based
	PageSize int
}

// IssuePage is one page of a list query.
type IssuePage struct {
	Issues   []*Issue `json:"issues"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"pageSize"`
}
