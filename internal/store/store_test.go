package store

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"taskboard/internal/kv"
	"taskboard/internal/models"
)

// failingKV wraps a memory store and fails writes while failSet is true.
type failingKV struct {
	*kv.Memory
	mu      sync.Mutex
	failSet bool
	failGet bool
}

var errDiskFull = errors.New("disk full")

func (f *failingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, false, errDiskFull
	}
	return f.Memory.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.Memory.Set(ctx, key, value)
}

func setupTestStore(t *testing.T, tasks ...models.Task) *TaskStore {
	t.Helper()
	s, err := Open(context.Background(), kv.NewMemory(), WithSeed(tasks))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return s
}

func ids(tasks []models.Task) []int64 {
	out := make([]int64, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestOpen_SeedsWhenEmpty(t *testing.T) {
	backend := kv.NewMemory()
	s, err := Open(context.Background(), backend)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if s.Len() != len(SeedTasks()) {
		t.Fatalf("expected %d seeded tasks, got %d", len(SeedTasks()), s.Len())
	}

	// The seed is only written on the first mutation.
	if _, found, _ := backend.Get(context.Background(), CollectionKey); found {
		t.Fatal("expected seed to not be persisted before a mutation")
	}
}

func TestOpen_LoadsPersistedCollection(t *testing.T) {
	backend := kv.NewMemory()
	ctx := context.Background()

	first, _ := Open(ctx, backend, WithSeed(nil))
	first.Create(ctx, models.Task{ID: 10, Title: "Persist me", Status: models.StatusInProgress, Priority: models.PriorityHigh})

	second, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if second.Len() != 1 {
		t.Fatalf("expected 1 persisted task instead of the seed, got %d", second.Len())
	}
	got, ok := second.GetByID(10)
	if !ok || got.Title != "Persist me" {
		t.Fatalf("expected persisted task, got %+v (ok=%v)", got, ok)
	}
}

func TestOpen_StorageErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, &failingKV{Memory: kv.NewMemory(), failGet: true})
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "load" {
		t.Fatalf("expected load StorageError, got %v", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Errorf("expected StorageError to unwrap to the backend error")
	}

	corrupt := kv.NewMemory()
	corrupt.Set(ctx, CollectionKey, []byte("{not json"))
	_, err = Open(ctx, corrupt)
	if !errors.As(err, &se) || se.Op != "decode" {
		t.Fatalf("expected decode StorageError, got %v", err)
	}
}

func TestCreate_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task := models.Task{
		ID:       1700000000000,
		Title:    "Write release notes",
		Status:   models.StatusInProgress,
		Priority: models.PriorityUrgent,
		CustomFields: map[string]models.CustomField{
			"points": {Name: "points", Type: models.FieldNumber, Value: "3"},
		},
	}
	if err := s.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, ok := s.GetByID(task.ID)
	if !ok {
		t.Fatal("expected created task to be found")
	}
	if !reflect.DeepEqual(got, task) {
		t.Errorf("expected %+v, got %+v", task, got)
	}
}

func TestCreate_DoesNotShareMemory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	fields := map[string]models.CustomField{"owner": {Name: "owner", Type: models.FieldText, Value: "sam"}}
	s.Create(ctx, models.Task{ID: 1, Title: "A", CustomFields: fields})
	fields["owner"] = models.CustomField{Name: "owner", Type: models.FieldText, Value: "kim"}

	got, _ := s.GetByID(1)
	if got.CustomFields["owner"].Value != "sam" {
		t.Fatalf("expected stored task to be unaffected by caller changes, got %+v", got.CustomFields)
	}

	got.CustomFields["owner"] = models.CustomField{Name: "owner", Type: models.FieldText, Value: "lee"}
	again, _ := s.GetByID(1)
	if again.CustomFields["owner"].Value != "sam" {
		t.Fatalf("expected returned task to be a copy, got %+v", again.CustomFields)
	}
}

func TestCreate_DuplicateIDsAreNotRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	s.Create(ctx, models.Task{ID: 1, Title: "First"})
	if err := s.Create(ctx, models.Task{ID: 1, Title: "Second"}); err != nil {
		t.Fatalf("expected duplicate id to be accepted, got %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 tasks, got %d", s.Len())
	}
}

func TestCreateNext_AssignsUniqueIDs(t *testing.T) {
	now := time.UnixMilli(5000)
	s, err := Open(context.Background(), kv.NewMemory(),
		WithSeed(nil),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CreateNext(ctx, models.Task{Title: "task"}); err != nil {
				t.Errorf("CreateNext failed: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, task := range s.ReadPage(Query{Page: 1, Limit: n}).Tasks {
		if seen[task.ID] {
			t.Fatalf("id %d assigned twice", task.ID)
		}
		seen[task.ID] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct ids, got %d", n, len(seen))
	}
}

func TestCreateNext_RejectsTakenID(t *testing.T) {
	s := setupTestStore(t, models.Task{ID: 7, Title: "Existing"})
	ctx := context.Background()

	var notified int
	s.Subscribe(func(Change) { notified++ })

	if _, err := s.CreateNext(ctx, models.Task{ID: 7, Title: "Again"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if s.Len() != 1 || notified != 0 {
		t.Errorf("expected collection unchanged, got len=%d notified=%d", s.Len(), notified)
	}

	got, err := s.CreateNext(ctx, models.Task{ID: 8, Title: "Chosen"})
	if err != nil {
		t.Fatalf("CreateNext failed: %v", err)
	}
	if got.ID != 8 {
		t.Errorf("expected requested id 8, got %d", got.ID)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	s := setupTestStore(t)

	got, ok := s.GetByID(999)
	if ok {
		t.Fatalf("expected missing task, got %+v", got)
	}
}

func TestUpdate_MergePatch(t *testing.T) {
	s := setupTestStore(t, models.Task{ID: 1, Title: "A", Status: models.StatusNotStarted, Priority: models.PriorityLow})
	ctx := context.Background()

	completed := models.StatusCompleted
	found, err := s.Update(ctx, 1, models.TaskPatch{Status: &completed})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !found {
		t.Fatal("expected task to be found")
	}

	got, _ := s.GetByID(1)
	want := models.Task{ID: 1, Title: "A", Status: models.StatusCompleted, Priority: models.PriorityLow}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestUpdate_AnyStatusTransitionIsAllowed(t *testing.T) {
	s := setupTestStore(t, models.Task{ID: 1, Title: "A", Status: models.StatusCompleted, Priority: models.PriorityLow})

	notStarted := models.StatusNotStarted
	if _, err := s.Update(context.Background(), 1, models.TaskPatch{Status: &notStarted}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, _ := s.GetByID(1)
	if got.Status != models.StatusNotStarted {
		t.Errorf("expected completed task to move back to not_started, got %s", got.Status)
	}
}

func TestUpdate_MissingTaskIsNoOp(t *testing.T) {
	backend := kv.NewMemory()
	s, _ := Open(context.Background(), backend, WithSeed([]models.Task{{ID: 1, Title: "A"}}))

	title := "B"
	found, err := s.Update(context.Background(), 2, models.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if found {
		t.Fatal("expected update of missing task to report not found")
	}
	if _, found, _ := backend.Get(context.Background(), CollectionKey); found {
		t.Fatal("expected nothing to be persisted")
	}
	got, _ := s.GetByID(1)
	if got.Title != "A" {
		t.Errorf("expected other tasks to be untouched, got %+v", got)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	s := setupTestStore(t,
		models.Task{ID: 1, Title: "A"},
		models.Task{ID: 2, Title: "B"},
	)
	ctx := context.Background()

	if err := s.Delete(ctx, 1); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	afterFirst := s.ReadPage(Query{Page: 1, Limit: 10})

	if err := s.Delete(ctx, 1); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	afterSecond := s.ReadPage(Query{Page: 1, Limit: 10})

	if !reflect.DeepEqual(afterFirst, afterSecond) {
		t.Errorf("expected second delete to be a no-op: %+v vs %+v", afterFirst, afterSecond)
	}
	if _, ok := s.GetByID(1); ok {
		t.Error("expected task 1 to be deleted")
	}
	if _, ok := s.GetByID(2); !ok {
		t.Error("expected task 2 to remain")
	}
}

func TestDelete_RemovesEveryTaskWithID(t *testing.T) {
	s := setupTestStore(t,
		models.Task{ID: 1, Title: "First"},
		models.Task{ID: 2, Title: "Other"},
		models.Task{ID: 1, Title: "Second"},
	)
	ctx := context.Background()

	if err := s.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := s.GetByID(1); ok {
		t.Fatal("expected every task with id 1 to be deleted")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 task left, got %d", s.Len())
	}

	if err := s.Delete(ctx, 1); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("expected second delete to be a no-op, got %d tasks", s.Len())
	}
}

func TestUpdate_PatchesEveryTaskWithID(t *testing.T) {
	s := setupTestStore(t,
		models.Task{ID: 1, Title: "First", Status: models.StatusNotStarted},
		models.Task{ID: 1, Title: "Second", Status: models.StatusNotStarted},
	)
	done := models.StatusCompleted

	found, err := s.Update(context.Background(), 1, models.TaskPatch{Status: &done})
	if err != nil || !found {
		t.Fatalf("Update = %v, %v", found, err)
	}
	for _, task := range s.ReadPage(Query{Page: 1, Limit: 10}).Tasks {
		if task.Status != models.StatusCompleted {
			t.Errorf("expected task %q to be completed, got %s", task.Title, task.Status)
		}
	}
}

func TestMutations_PersistCollection(t *testing.T) {
	backend := kv.NewMemory()
	ctx := context.Background()
	s, _ := Open(ctx, backend, WithSeed(nil))

	s.Create(ctx, models.Task{ID: 1, Title: "A", Status: models.StatusNotStarted, Priority: models.PriorityLow})
	s.Create(ctx, models.Task{ID: 2, Title: "B", Status: models.StatusNotStarted, Priority: models.PriorityLow})
	s.Delete(ctx, 1)

	data, found, err := backend.Get(ctx, CollectionKey)
	if err != nil || !found {
		t.Fatalf("expected persisted collection, err=%v found=%v", err, found)
	}
	var stored []models.Task
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("failed to decode persisted collection: %v", err)
	}
	if !reflect.DeepEqual(ids(stored), []int64{2}) {
		t.Errorf("expected persisted ids [2], got %v", ids(stored))
	}
}

func TestMutations_StorageFailureLeavesCollectionUnchanged(t *testing.T) {
	backend := &failingKV{Memory: kv.NewMemory()}
	ctx := context.Background()
	s, _ := Open(ctx, backend, WithSeed([]models.Task{{ID: 1, Title: "A", Status: models.StatusNotStarted, Priority: models.PriorityLow}}))

	var changes int
	s.Subscribe(func(Change) { changes++ })

	backend.failSet = true

	err := s.Create(ctx, models.Task{ID: 2, Title: "B"})
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "save" {
		t.Fatalf("expected save StorageError from Create, got %v", err)
	}

	title := "changed"
	if _, err := s.Update(ctx, 1, models.TaskPatch{Title: &title}); !errors.As(err, &se) {
		t.Fatalf("expected StorageError from Update, got %v", err)
	}
	if err := s.Delete(ctx, 1); !errors.As(err, &se) {
		t.Fatalf("expected StorageError from Delete, got %v", err)
	}

	if s.Len() != 1 {
		t.Errorf("expected collection to keep 1 task, got %d", s.Len())
	}
	got, _ := s.GetByID(1)
	if got.Title != "A" {
		t.Errorf("expected title to be unchanged, got %q", got.Title)
	}
	if changes != 0 {
		t.Errorf("expected no change notifications, got %d", changes)
	}
}

func TestCustomFields_AddAndRemove(t *testing.T) {
	s := setupTestStore(t, models.Task{ID: 1, Title: "A"})
	ctx := context.Background()

	field := models.CustomField{Name: "owner", Type: models.FieldText, Value: "sam"}
	found, err := s.AddCustomField(ctx, 1, field)
	if err != nil || !found {
		t.Fatalf("AddCustomField failed: found=%v err=%v", found, err)
	}

	replaced := models.CustomField{Name: "owner", Type: models.FieldText, Value: "kim"}
	s.AddCustomField(ctx, 1, replaced)
	s.AddCustomField(ctx, 1, models.CustomField{Name: "points", Type: models.FieldNumber, Value: "5"})

	got, _ := s.GetByID(1)
	if len(got.CustomFields) != 2 || got.CustomFields["owner"] != replaced {
		t.Fatalf("unexpected custom fields: %+v", got.CustomFields)
	}

	found, err = s.RemoveCustomField(ctx, 1, "owner")
	if err != nil || !found {
		t.Fatalf("RemoveCustomField failed: found=%v err=%v", found, err)
	}
	// Removing an unset field is harmless.
	if _, err := s.RemoveCustomField(ctx, 1, "missing"); err != nil {
		t.Fatalf("RemoveCustomField of unset field failed: %v", err)
	}

	got, _ = s.GetByID(1)
	if _, ok := got.CustomFields["owner"]; ok {
		t.Error("expected owner field to be removed")
	}
	if _, ok := got.CustomFields["points"]; !ok {
		t.Error("expected points field to remain")
	}

	found, _ = s.AddCustomField(ctx, 99, field)
	if found {
		t.Error("expected missing task to report not found")
	}
}

func TestNextID(t *testing.T) {
	now := time.UnixMilli(1000)
	s, _ := Open(context.Background(), kv.NewMemory(),
		WithSeed([]models.Task{{ID: 5}}),
		WithClock(func() time.Time { return now }),
	)

	if got := s.NextID(); got != 1000 {
		t.Errorf("expected clock-derived id 1000, got %d", got)
	}

	s.Create(context.Background(), models.Task{ID: 1000})
	if got := s.NextID(); got != 1001 {
		t.Errorf("expected id above existing 1000, got %d", got)
	}
}

func TestSubscribe(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var got []Change
	cancel := s.Subscribe(func(c Change) {
		// Listeners may read from the store.
		s.GetByID(c.TaskID)
		got = append(got, c)
	})

	s.Create(ctx, models.Task{ID: 1, Title: "A"})
	title := "B"
	s.Update(ctx, 1, models.TaskPatch{Title: &title})
	s.Update(ctx, 2, models.TaskPatch{Title: &title})
	s.Delete(ctx, 1)
	s.Delete(ctx, 1)

	want := []Change{
		{Kind: ChangeCreated, TaskID: 1, Size: 1},
		{Kind: ChangeUpdated, TaskID: 1, Size: 1},
		{Kind: ChangeDeleted, TaskID: 1, Size: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	cancel()
	s.Create(ctx, models.Task{ID: 2, Title: "C"})
	if len(got) != 3 {
		t.Errorf("expected no notifications after cancel, got %d", len(got))
	}
}

func TestConcurrentMutations(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			s.Create(ctx, models.Task{ID: id, Title: "task", Status: models.StatusNotStarted, Priority: models.PriorityLow})
		}(int64(i))
		go func() {
			defer wg.Done()
			s.ReadPage(Query{Page: 1, Limit: 5, SortBy: SortByTitle})
		}()
	}
	wg.Wait()

	page := s.ReadPage(Query{Page: 1, Limit: 100})
	if page.TotalItems != 50 {
		t.Fatalf("expected 50 tasks after concurrent creates, got %d", page.TotalItems)
	}
}
