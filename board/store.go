package board

import (
	"sort"
	"sync"

	"collabnest/domain"
)

// ChangeKind describes which primitive modified the store.
type ChangeKind string

const (
	Added     ChangeKind = "added"
	Replaced  ChangeKind = "replaced"
	Removed   ChangeKind = "removed"
	Reordered ChangeKind = "reordered"
	Reset     ChangeKind = "reset"
)

// Change is published to subscribers after each successful mutation.
type Change struct {
	Kind ChangeKind
	ID   string
}

const subscriberBuffer = 64

// Store is the ordered in-memory task collection shared by the mutation
// layer, the drag resolver and the realtime reconciler. It holds at most one
// record per id and never errors for unknown ids.
type Store struct {
	mu    sync.Mutex
	tasks []domain.Task
	subs  map[chan Change]struct{}
}

func New(tasks ...domain.Task) *Store {
	s := &Store{subs: make(map[chan Change]struct{})}
	s.resetLocked(tasks)
	return s
}

// Reset replaces the whole collection, keeping the last record for any
// duplicated id at the position of its first occurrence.
func (s *Store) Reset(tasks []domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(tasks)
	s.notifyLocked(Change{Kind: Reset})
}

func (s *Store) resetLocked(tasks []domain.Task) {
	s.tasks = make([]domain.Task, 0, len(tasks))
	seen := make(map[string]int, len(tasks))
	for _, t := range tasks {
		if i, ok := seen[t.ID]; ok {
			s.tasks[i] = t.Clone()
			continue
		}
		seen[t.ID] = len(s.tasks)
		s.tasks = append(s.tasks, t.Clone())
	}
}

// Add appends t, or replaces the existing record with the same id. It
// reports whether a new record was inserted.
func (s *Store) Add(t domain.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(t.ID); i >= 0 {
		s.tasks[i] = t.Clone()
		s.notifyLocked(Change{Kind: Replaced, ID: t.ID})
		return false
	}
	s.tasks = append(s.tasks, t.Clone())
	s.notifyLocked(Change{Kind: Added, ID: t.ID})
	return true
}

// Insert places t at index only when no record with its id exists. It is
// used to undo a removal at the record's former position.
func (s *Store) Insert(index int, t domain.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(t.ID) >= 0 {
		return false
	}
	if index < 0 || index > len(s.tasks) {
		index = len(s.tasks)
	}
	s.tasks = append(s.tasks, domain.Task{})
	copy(s.tasks[index+1:], s.tasks[index:])
	s.tasks[index] = t.Clone()
	s.notifyLocked(Change{Kind: Added, ID: t.ID})
	return true
}

// Replace overwrites the record id with t. It is a no-op returning false
// when id is absent. When t carries a different id the record is re-keyed,
// see Rekey.
func (s *Store) Replace(id string, t domain.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = id
	}
	return s.rekeyLocked(id, t)
}

// Rekey swaps the record oldID for t. If a record with t.ID already exists
// (for example a realtime echo that arrived before the create response), the
// old record is dropped and the existing one replaced so the id stays unique.
func (s *Store) Rekey(oldID string, t domain.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rekeyLocked(oldID, t)
}

func (s *Store) rekeyLocked(oldID string, t domain.Task) bool {
	i := s.indexLocked(oldID)
	if i < 0 {
		return false
	}
	if t.ID != oldID {
		if j := s.indexLocked(t.ID); j >= 0 {
			s.tasks[j] = t.Clone()
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			s.notifyLocked(Change{Kind: Removed, ID: oldID})
			s.notifyLocked(Change{Kind: Replaced, ID: t.ID})
			return true
		}
	}
	s.tasks[i] = t.Clone()
	s.notifyLocked(Change{Kind: Replaced, ID: t.ID})
	return true
}

// Remove deletes id. Absent ids are a no-op.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	s.notifyLocked(Change{Kind: Removed, ID: id})
	return true
}

func (s *Store) Find(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return domain.Task{}, false
	}
	return s.tasks[i].Clone(), true
}

// IndexOf returns the slice position of id, or -1.
func (s *Store) IndexOf(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id)
}

func (s *Store) Filter(pred func(domain.Task) bool) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, 0)
	for _, t := range s.tasks {
		if pred(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (s *Store) All() []domain.Task {
	return s.Filter(func(domain.Task) bool { return true })
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Partition returns the tasks of p in render order: by order, ties broken by
// slice position.
func (s *Store) Partition(p domain.Partition) []domain.Task {
	tasks := s.Filter(p.Contains)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
	return tasks
}

// SetPartitionOrder assigns order = position to each task of ordered that is
// present and belongs to p, and lays those records out in that sequence
// within the slots they already occupy. Tasks outside the sequence are not
// touched. It returns the number of records updated.
func (s *Store) SetPartitionOrder(p domain.Partition, ordered []domain.Task) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(ordered))
	seq := make([]int, 0, len(ordered))
	for _, t := range ordered {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		i := s.indexLocked(t.ID)
		if i < 0 || !p.Contains(s.tasks[i]) {
			continue
		}
		seq = append(seq, i)
	}
	if len(seq) == 0 {
		return 0
	}

	records := make([]domain.Task, len(seq))
	for k, i := range seq {
		records[k] = s.tasks[i]
		records[k].Order = k
	}
	slots := append([]int(nil), seq...)
	sort.Ints(slots)
	for k, slot := range slots {
		s.tasks[slot] = records[k]
	}
	s.notifyLocked(Change{Kind: Reordered, ID: p.String()})
	return len(records)
}

// Subscribe returns a channel receiving change notifications. Delivery is
// best effort: a full subscriber misses notifications rather than blocking
// writers. The returned func cancels the subscription.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notifyLocked(c Change) {
	for ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}
