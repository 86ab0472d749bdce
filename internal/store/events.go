package store

// ChangeKind names the mutation that produced a Change.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change is delivered to subscribers after a mutation has been published.
type Change struct {
	Kind   ChangeKind
	TaskID int64
	// Size is the number of tasks in the collection after the change.
	Size int
}

// Subscribe registers fn to be called after every successful mutation.
// Listeners run synchronously on the mutating goroutine, after the store lock
// has been released, so they may call back into the store.
// The returned function removes the subscription.
func (s *TaskStore) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *TaskStore) notify(c Change) {
	s.subMu.Lock()
	listeners := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(c)
	}
}
