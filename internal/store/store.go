package store

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"taskboard/internal/kv"
	"taskboard/internal/models"
)

// CollectionKey is the single key the task collection is persisted under.
const CollectionKey = "tasks"

// Store defines the task operations the HTTP layer depends on.
type Store interface {
	// Task operations
	Create(ctx context.Context, task models.Task) error
	CreateNext(ctx context.Context, task models.Task) (models.Task, error)
	ReadPage(q Query) Page
	GetByID(id int64) (models.Task, bool)
	Update(ctx context.Context, id int64, patch models.TaskPatch) (bool, error)
	Delete(ctx context.Context, id int64) error

	// Custom field operations
	AddCustomField(ctx context.Context, id int64, field models.CustomField) (bool, error)
	RemoveCustomField(ctx context.Context, id int64, name string) (bool, error)

	// Views
	Board(filters Filters) []Column
}

// TaskStore owns the task collection. Reads see a published snapshot; every
// mutation builds a new slice, persists it and only then publishes it.
type TaskStore struct {
	mu    sync.RWMutex
	kv    kv.Store
	tasks []models.Task

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int

	defaultLimit int
	now          func() time.Time
}

// Option configures a TaskStore.
type Option func(*TaskStore)

// WithSeed replaces the dataset used when nothing has been persisted yet.
func WithSeed(tasks []models.Task) Option {
	return func(s *TaskStore) {
		s.tasks = cloneTasks(tasks)
	}
}

// WithDefaultLimit sets the page size used when a query asks for less than one item.
func WithDefaultLimit(n int) Option {
	return func(s *TaskStore) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// WithClock overrides the time source used for id assignment.
func WithClock(now func() time.Time) Option {
	return func(s *TaskStore) {
		s.now = now
	}
}

// Open loads the collection from backend, seeding it when nothing is stored.
// The seed is not written back until the first mutation.
func Open(ctx context.Context, backend kv.Store, opts ...Option) (*TaskStore, error) {
	s := &TaskStore{
		kv:           backend,
		tasks:        SeedTasks(),
		subs:         make(map[int]func(Change)),
		defaultLimit: DefaultLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, found, err := backend.Get(ctx, CollectionKey)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	if found {
		var tasks []models.Task
		if err := sonic.ConfigStd.Unmarshal(data, &tasks); err != nil {
			return nil, &StorageError{Op: "decode", Err: err}
		}
		s.tasks = tasks
	}

	return s, nil
}

// Create appends task to the collection. Duplicate ids are not detected.
func (s *TaskStore) Create(ctx context.Context, task models.Task) error {
	s.mu.Lock()
	err := s.appendTask(ctx, task)
	size := len(s.tasks)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(Change{Kind: ChangeCreated, TaskID: task.ID, Size: size})
	return nil
}

// CreateNext appends task, assigning NextID when its id is zero. A non-zero
// id already present in the collection is rejected with ErrDuplicateID. The
// check and the append happen under one lock.
func (s *TaskStore) CreateNext(ctx context.Context, task models.Task) (models.Task, error) {
	s.mu.Lock()
	if task.ID == 0 {
		task.ID = s.nextID()
	} else if s.indexOf(task.ID) >= 0 {
		s.mu.Unlock()
		return models.Task{}, ErrDuplicateID
	}
	err := s.appendTask(ctx, task)
	size := len(s.tasks)
	s.mu.Unlock()

	if err != nil {
		return models.Task{}, err
	}
	s.notify(Change{Kind: ChangeCreated, TaskID: task.ID, Size: size})
	return task.Clone(), nil
}

// appendTask publishes the collection with task added. Callers must hold s.mu
// for writing.
func (s *TaskStore) appendTask(ctx context.Context, task models.Task) error {
	next := make([]models.Task, len(s.tasks), len(s.tasks)+1)
	copy(next, s.tasks)
	next = append(next, task.Clone())
	return s.publish(ctx, next)
}

// GetByID returns a copy of the task with the given id.
func (s *TaskStore) GetByID(id int64) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tasks {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return models.Task{}, false
}

// Update merges patch into the task with the given id. It reports false and
// leaves the collection untouched when no such task exists.
func (s *TaskStore) Update(ctx context.Context, id int64, patch models.TaskPatch) (bool, error) {
	return s.mutateTask(ctx, id, patch.Apply)
}

// Delete removes every task with the given id. Deleting a missing task is a no-op.
func (s *TaskStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	next := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.ID != id {
			next = append(next, t)
		}
	}
	if len(next) == len(s.tasks) {
		s.mu.Unlock()
		return nil
	}
	err := s.publish(ctx, next)
	size := len(s.tasks)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(Change{Kind: ChangeDeleted, TaskID: id, Size: size})
	return nil
}

// AddCustomField sets field on the task, replacing any field with the same name.
func (s *TaskStore) AddCustomField(ctx context.Context, id int64, field models.CustomField) (bool, error) {
	return s.mutateTask(ctx, id, func(t models.Task) models.Task {
		t = t.Clone()
		if t.CustomFields == nil {
			t.CustomFields = make(map[string]models.CustomField, 1)
		}
		t.CustomFields[field.Name] = field
		return t
	})
}

// RemoveCustomField drops the named field from the task. Removing a field
// that is not set leaves the task as it was.
func (s *TaskStore) RemoveCustomField(ctx context.Context, id int64, name string) (bool, error) {
	return s.mutateTask(ctx, id, func(t models.Task) models.Task {
		t = t.Clone()
		delete(t.CustomFields, name)
		return t
	})
}

// NextID returns an id derived from the current time, kept above every id in
// the collection so that creation order and id order agree.
func (s *TaskStore) NextID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID()
}

// nextID expects s.mu to be held.
func (s *TaskStore) nextID() int64 {
	id := s.now().UnixMilli()
	for _, t := range s.tasks {
		if t.ID >= id {
			id = t.ID + 1
		}
	}
	return id
}

// Len returns the number of tasks in the collection.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// mutateTask applies fn to every task with the given id.
func (s *TaskStore) mutateTask(ctx context.Context, id int64, fn func(models.Task) models.Task) (bool, error) {
	s.mu.Lock()
	var (
		next  []models.Task
		found bool
	)
	for i, t := range s.tasks {
		if t.ID != id {
			continue
		}
		if !found {
			next = make([]models.Task, len(s.tasks))
			copy(next, s.tasks)
			found = true
		}
		next[i] = fn(t)
		next[i].ID = id
	}
	if !found {
		s.mu.Unlock()
		return false, nil
	}
	err := s.publish(ctx, next)
	size := len(s.tasks)
	s.mu.Unlock()

	if err != nil {
		return false, err
	}
	s.notify(Change{Kind: ChangeUpdated, TaskID: id, Size: size})
	return true, nil
}

// publish persists next and swaps it in. Callers must hold s.mu for writing.
func (s *TaskStore) publish(ctx context.Context, next []models.Task) error {
	data, err := sonic.ConfigStd.Marshal(next)
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}
	if err := s.kv.Set(ctx, CollectionKey, data); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	s.tasks = next
	return nil
}

func (s *TaskStore) indexOf(id int64) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// snapshot returns the published collection. The slice must not be modified.
func (s *TaskStore) snapshot() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks
}

func cloneTasks(tasks []models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
