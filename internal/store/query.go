package store

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"taskboard/internal/models"
)

// DefaultLimit is the page size used when a query does not ask for one.
const DefaultLimit = 10

// SortField names a column tasks can be sorted by.
type SortField string

const (
	SortByTitle    SortField = "title"
	SortByPriority SortField = "priority"
	SortByStatus   SortField = "status"
)

// Valid reports whether f is empty or a known column.
func (f SortField) Valid() bool {
	switch f {
	case "", SortByTitle, SortByPriority, SortByStatus:
		return true
	}
	return false
}

// SortOrder is the direction of a sort.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Valid reports whether o is empty or a known direction.
func (o SortOrder) Valid() bool {
	return o == "" || o == Asc || o == Desc
}

// Filters narrows a query. Fields combine with AND; values within a field with OR.
// Empty fields do not filter.
type Filters struct {
	Title    string
	Priority []models.Priority
	Status   []models.Status
}

// Query describes one page of tasks.
type Query struct {
	Page      int
	Limit     int
	SortBy    SortField
	SortOrder SortOrder
	Filters   Filters
}

// Page is one slice of the filtered and sorted collection.
type Page struct {
	Tasks      []models.Task `json:"tasks"`
	TotalPages int           `json:"totalPages"`
	TotalItems int           `json:"totalItems"`
}

// ReadPage filters the collection, sorts the result and returns the requested page.
// Without SortBy tasks come newest first (id descending) and SortOrder is ignored.
// A page past the end yields no tasks but still reports the totals.
func (s *TaskStore) ReadPage(q Query) Page {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = s.defaultLimit
	}

	matched := filterTasks(s.snapshot(), q.Filters)
	sortTasks(matched, q.SortBy, q.SortOrder)

	total := len(matched)
	result := Page{
		Tasks:      []models.Task{},
		TotalItems: total,
		TotalPages: (total + limit - 1) / limit,
	}

	start := (page - 1) * limit
	if start >= total {
		return result
	}
	end := min(start+limit, total)

	for _, t := range matched[start:end] {
		result.Tasks = append(result.Tasks, t.Clone())
	}
	return result
}

// Matches reports whether t passes every filter.
func (f Filters) Matches(t models.Task) bool {
	if f.Title != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Title)) {
		return false
	}
	if len(f.Priority) > 0 && !slices.Contains(f.Priority, t.Priority) {
		return false
	}
	if len(f.Status) > 0 && !slices.Contains(f.Status, t.Status) {
		return false
	}
	return true
}

// filterTasks returns the matching tasks in a new slice; tasks is left untouched.
func filterTasks(tasks []models.Task, f Filters) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// sortTasks orders tasks by id descending, then stably by field when one is
// given, so that ties keep newest-first order in either direction.
func sortTasks(tasks []models.Task, field SortField, order SortOrder) {
	slices.SortFunc(tasks, func(a, b models.Task) int {
		return cmp.Compare(b.ID, a.ID)
	})

	compare := comparator(field)
	if compare == nil {
		return
	}
	if order == Desc {
		asc := compare
		compare = func(a, b models.Task) int { return -asc(a, b) }
	}
	slices.SortStableFunc(tasks, compare)
}

func comparator(field SortField) func(a, b models.Task) int {
	switch field {
	case SortByTitle:
		// Collators keep internal buffers and are not safe for concurrent use.
		c := collate.New(language.English)
		return func(a, b models.Task) int {
			return c.CompareString(a.Title, b.Title)
		}
	case SortByPriority:
		return func(a, b models.Task) int {
			return cmp.Compare(a.Priority.Rank(), b.Priority.Rank())
		}
	case SortByStatus:
		return func(a, b models.Task) int {
			return cmp.Compare(a.Status.Rank(), b.Status.Rank())
		}
	default:
		return nil
	}
}
