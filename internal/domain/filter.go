package domain

import (
	"net/url"
	"strconv"
	"time"
)

// Sort columns accepted by TaskFilter.
const (
	SortCreatedAt = "created_at"
	SortDueDate   = "due_date"
	SortPriority  = "priority"
	SortTitle     = "title"
)

// Sort directions accepted by TaskFilter.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Pagination bounds.
const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// TaskFilter narrows and orders a user's task list.
type TaskFilter struct {
	Status   *TaskStatus
	Priority *TaskPriority
	Search   string
	DueFrom  *time.Time
	DueTo    *time.Time
	Sort     string
	Order    string
	Page     int
	PerPage  int
}

// Normalize fills in defaults and clamps out-of-range values. Newest tasks come
// first unless a sort is requested.
func (f TaskFilter) Normalize() TaskFilter {
	switch f.Sort {
	case SortCreatedAt, SortDueDate, SortPriority, SortTitle:
	default:
		f.Sort = SortCreatedAt
	}
	switch f.Order {
	case OrderAsc, OrderDesc:
	default:
		f.Order = OrderDesc
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	f.DueFrom = TruncateDate(f.DueFrom)
	f.DueTo = TruncateDate(f.DueTo)
	return f
}

// Offset is the number of rows skipped before the current page.
func (f TaskFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PerPage
}

// CacheKeyParams renders the filter as a canonical query string. Two filters
// that select the same page produce the same string.
func (f TaskFilter) CacheKeyParams() string {
	f = f.Normalize()

	v := url.Values{}
	if f.Status != nil {
		v.Set("status", string(*f.Status))
	}
	if f.Priority != nil {
		v.Set("priority", string(*f.Priority))
	}
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	if f.DueFrom != nil {
		v.Set("due_from", f.DueFrom.Format(DateFormat))
	}
	if f.DueTo != nil {
		v.Set("due_to", f.DueTo.Format(DateFormat))
	}
	v.Set("sort", f.Sort)
	v.Set("order", f.Order)
	v.Set("page", strconv.Itoa(f.Page))
	v.Set("per_page", strconv.Itoa(f.PerPage))

	// Encode sorts by key.
	return v.Encode()
}

// Pagination describes a page of a list result.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

// NewPagination computes page metadata for total rows under f.
func NewPagination(f TaskFilter, total int) Pagination {
	f = f.Normalize()
	last := (total + f.PerPage - 1) / f.PerPage
	if last < 1 {
		last = 1
	}
	return Pagination{
		CurrentPage: f.Page,
		PerPage:     f.PerPage,
		Total:       total,
		LastPage:    last,
	}
}
