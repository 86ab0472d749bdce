package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTitleLength is the longest title accepted at the boundary.
const MaxTitleLength = 100

// Status is the workflow column a task sits in.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusNotStarted, StatusInProgress, StatusCompleted}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// Rank returns the workflow position used for sorting, or -1 when unknown.
func (s Status) Rank() int {
	switch s {
	case StatusNotStarted:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

// Priority is the severity of a task.
type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority from most to least severe.
var Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow, PriorityNone}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// Rank returns a numeric value for sorting by priority.
// Lower numbers indicate higher severity; unknown values return -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	case PriorityNone:
		return 4
	default:
		return -1
	}
}

// Task represents a single unit of work.
type Task struct {
	ID           int64                  `json:"id"`
	Title        string                 `json:"title"`
	Status       Status                 `json:"status"`
	Priority     Priority               `json:"priority"`
	CustomFields map[string]CustomField `json:"customFields,omitempty"`
}

// Validate checks that the task has valid field values.
func (t *Task) Validate() error {
	if err := validateTitle(t.Title); err != nil {
		return err
	}

	if !t.Status.Valid() {
		return fmt.Errorf("status must be one of %s", joinStatuses())
	}

	if !t.Priority.Valid() {
		return fmt.Errorf("priority must be one of %s", joinPriorities())
	}

	for name, field := range t.CustomFields {
		if err := field.Validate(); err != nil {
			return err
		}
		if name != field.Name {
			return fmt.Errorf("custom field key %q does not match field name %q", name, field.Name)
		}
	}

	return nil
}

// Clone returns a copy of the task that shares no memory with t.
func (t Task) Clone() Task {
	if t.CustomFields == nil {
		return t
	}
	fields := make(map[string]CustomField, len(t.CustomFields))
	for k, v := range t.CustomFields {
		fields[k] = v
	}
	t.CustomFields = fields
	return t
}

// TaskPatch holds the fields of a merge-patch update. Nil fields are left untouched.
type TaskPatch struct {
	Title        *string                `json:"title,omitempty"`
	Status       *Status                `json:"status,omitempty"`
	Priority     *Priority              `json:"priority,omitempty"`
	CustomFields map[string]CustomField `json:"customFields,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Status == nil && p.Priority == nil && p.CustomFields == nil
}

// Validate checks the fields present in the patch.
func (p *TaskPatch) Validate() error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}

	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("status must be one of %s", joinStatuses())
	}

	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("priority must be one of %s", joinPriorities())
	}

	for _, field := range p.CustomFields {
		if err := field.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Apply merges the patch into t and returns the result. The id is never touched.
func (p TaskPatch) Apply(t Task) Task {
	out := t.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.CustomFields != nil {
		out.CustomFields = make(map[string]CustomField, len(p.CustomFields))
		for k, v := range p.CustomFields {
			out.CustomFields[k] = v
		}
	}
	return out
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("title is required")
	}

	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or fewer", MaxTitleLength)
	}

	return nil
}

func joinStatuses() string {
	names := make([]string, len(Statuses))
	for i, s := range Statuses {
		names[i] = "'" + string(s) + "'"
	}
	return strings.Join(names, ", ")
}

func joinPriorities() string {
	names := make([]string, len(Priorities))
	for i, p := range Priorities {
		names[i] = "'" + string(p) + "'"
	}
	return strings.Join(names, ", ")
}
