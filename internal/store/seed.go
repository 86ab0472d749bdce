package store

import "taskboard/internal/models"

// SeedTasks returns the example dataset a new collection starts with.
func SeedTasks() []models.Task {
	return []models.Task{
		{ID: 1, Title: "Set up project repository", Status: models.StatusCompleted, Priority: models.PriorityHigh},
		{ID: 2, Title: "Write onboarding guide", Status: models.StatusInProgress, Priority: models.PriorityMedium},
		{ID: 3, Title: "Fix login redirect loop", Status: models.StatusNotStarted, Priority: models.PriorityUrgent},
		{ID: 4, Title: "Design kanban column layout", Status: models.StatusInProgress, Priority: models.PriorityLow},
		{ID: 5, Title: "Add pagination to task table", Status: models.StatusNotStarted, Priority: models.PriorityMedium},
		{ID: 6, Title: "Review pull requests", Status: models.StatusNotStarted, Priority: models.PriorityNone},
		{ID: 7, Title: "Update dependencies", Status: models.StatusCompleted, Priority: models.PriorityLow},
		{
			ID:       8,
			Title:    "Plan quarterly roadmap",
			Status:   models.StatusNotStarted,
			Priority: models.PriorityHigh,
			CustomFields: map[string]models.CustomField{
				"owner": {Name: "owner", Type: models.FieldText, Value: "product"},
			},
		},
	}
}
