package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"taskboard/internal/models"
	"taskboard/internal/store"
)

// createTaskRequest is the body of POST /api/tasks. ID is optional.
type createTaskRequest struct {
	ID           int64                         `json:"id"`
	Title        string                        `json:"title"`
	Status       models.Status                 `json:"status"`
	Priority     models.Priority               `json:"priority"`
	CustomFields map[string]models.CustomField `json:"customFields"`
}

// ListTasks returns one page of tasks.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, h.store.ReadPage(q))
}

// GetTask returns a single task.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	task, ok := h.store.GetByID(id)
	if !ok {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	h.respondJSON(w, http.StatusOK, task)
}

// CreateTask creates a new task. A missing id is assigned from the creation time.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}

	task := models.Task{
		ID:           req.ID,
		Title:        strings.TrimSpace(req.Title),
		Status:       req.Status,
		Priority:     req.Priority,
		CustomFields: req.CustomFields,
	}
	if task.Status == "" {
		task.Status = models.StatusNotStarted
	}
	if task.Priority == "" {
		task.Priority = models.PriorityNone
	}

	if err := task.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.store.CreateNext(r.Context(), task)
	if errors.Is(err, store.ErrDuplicateID) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/tasks/%d", task.ID))
	h.respondJSON(w, http.StatusCreated, task)
}

// UpdateTask merge-patches an existing task.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var patch models.TaskPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if err := patch.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.applyPatch(w, r, id, patch)
}

// MoveTask changes only the status of a task, as a kanban drop does.
func (h *Handlers) MoveTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var payload struct {
		Status models.Status `json:"status"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}

	patch := models.TaskPatch{Status: &payload.Status}
	if err := patch.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.applyPatch(w, r, id, patch)
}

func (h *Handlers) applyPatch(w http.ResponseWriter, r *http.Request, id int64, patch models.TaskPatch) {
	found, err := h.store.Update(r.Context(), id, patch)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	h.respondUpdated(w, id)
}

// DeleteTask deletes a task. Deleting a missing task succeeds.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PutCustomField sets a custom field on a task.
func (h *Handlers) PutCustomField(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var field models.CustomField
	if err := decodeJSON(w, r, &field); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	field.Name = strings.TrimSpace(field.Name)
	if err := field.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	found, err := h.store.AddCustomField(r.Context(), id, field)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	h.respondUpdated(w, id)
}

// DeleteCustomField removes a custom field from a task.
func (h *Handlers) DeleteCustomField(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	found, err := h.store.RemoveCustomField(r.Context(), id, chi.URLParam(r, "name"))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	h.respondUpdated(w, id)
}

// Board returns the tasks grouped into kanban columns.
func (h *Handlers) Board(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"columns": h.store.Board(filters),
	})
}

// respondUpdated writes the current state of the task after a mutation.
func (h *Handlers) respondUpdated(w http.ResponseWriter, id int64) {
	task, ok := h.store.GetByID(id)
	if !ok {
		// Deleted between the mutation and the read.
		respondError(w, http.StatusNotFound, "task not found")
		return
	}
	h.respondJSON(w, http.StatusOK, task)
}

// parseQuery reads a store.Query from URL values.
func parseQuery(v url.Values) (store.Query, error) {
	q := store.Query{Page: 1}

	if s := v.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, errors.New("page must be a positive integer")
		}
		q.Page = n
	}

	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, errors.New("limit must be a positive integer")
		}
		q.Limit = n
	}

	q.SortBy = store.SortField(v.Get("sortBy"))
	if !q.SortBy.Valid() {
		return q, errors.New("sortBy must be 'title', 'priority', or 'status'")
	}

	q.SortOrder = store.SortOrder(strings.ToLower(v.Get("sortOrder")))
	if !q.SortOrder.Valid() {
		return q, errors.New("sortOrder must be 'asc' or 'desc'")
	}

	filters, err := parseFilters(v)
	if err != nil {
		return q, err
	}
	q.Filters = filters

	return q, nil
}

// parseFilters reads title, priority and status filters. Priority and status
// may be repeated or comma separated.
func parseFilters(v url.Values) (store.Filters, error) {
	f := store.Filters{Title: v.Get("title")}

	for _, s := range splitValues(v["priority"]) {
		p := models.Priority(s)
		if !p.Valid() {
			return f, fmt.Errorf("unknown priority %q", s)
		}
		f.Priority = append(f.Priority, p)
	}

	for _, s := range splitValues(v["status"]) {
		st := models.Status(s)
		if !st.Valid() {
			return f, fmt.Errorf("unknown status %q", s)
		}
		f.Status = append(f.Status, st)
	}

	return f, nil
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
