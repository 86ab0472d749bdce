package store

import "taskboard/internal/models"

// Column is one kanban lane.
type Column struct {
	Status models.Status `json:"status"`
	Tasks  []models.Task `json:"tasks"`
}

// Board groups the tasks matching filters into one column per status, in
// workflow order. Each column lists tasks newest first. Tasks with a status
// outside the workflow are not shown.
func (s *TaskStore) Board(filters Filters) []Column {
	matched := filterTasks(s.snapshot(), filters)
	sortTasks(matched, "", "")

	columns := make([]Column, len(models.Statuses))
	index := make(map[models.Status]int, len(models.Statuses))
	for i, st := range models.Statuses {
		columns[i] = Column{Status: st, Tasks: []models.Task{}}
		index[st] = i
	}

	for _, t := range matched {
		i, ok := index[t.Status]
		if !ok {
			continue
		}
		columns[i].Tasks = append(columns[i].Tasks, t.Clone())
	}
	return columns
}
