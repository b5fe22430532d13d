package board

import (
	"reflect"
	"testing"

	"collabnest/domain"
)

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestAddIsIdempotent(t *testing.T) {
	s := New()
	task := domain.Task{ID: "1", Title: "a", Status: domain.StatusTodo}
	for i := 0; i < 5; i++ {
		s.Add(task)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 task, got %d", s.Len())
	}
	task.Title = "b"
	if added := s.Add(task); added {
		t.Fatalf("expected existing record to be replaced")
	}
	got, _ := s.Find("1")
	if got.Title != "b" {
		t.Fatalf("expected replaced title, got %q", got.Title)
	}
}

func TestRemoveAndReplaceAbsentAreNoOps(t *testing.T) {
	s := New(domain.Task{ID: "1", Status: domain.StatusTodo})
	if s.Remove("missing") {
		t.Fatalf("remove of missing id reported success")
	}
	if s.Replace("missing", domain.Task{ID: "missing"}) {
		t.Fatalf("replace of missing id reported success")
	}
	if s.Len() != 1 {
		t.Fatalf("unexpected length %d", s.Len())
	}
	if !s.Remove("1") || s.Len() != 0 {
		t.Fatalf("expected task to be removed")
	}
}

func TestFindReturnsCopy(t *testing.T) {
	s := New(domain.Task{ID: "1", Status: domain.StatusTodo, Labels: []string{"a"}})
	got, ok := s.Find("1")
	if !ok {
		t.Fatalf("task not found")
	}
	got.Labels[0] = "mutated"
	again, _ := s.Find("1")
	if again.Labels[0] != "a" {
		t.Fatalf("store record was mutated through Find result")
	}
}

func TestSetPartitionOrderTouchesOnlyPartition(t *testing.T) {
	s := New(
		domain.Task{ID: "a", Status: domain.StatusTodo, Order: 0},
		domain.Task{ID: "x", Status: domain.StatusDone, Order: 7},
		domain.Task{ID: "b", Status: domain.StatusTodo, Order: 1},
		domain.Task{ID: "c", Status: domain.StatusTodo, Order: 2},
	)
	p := domain.StatusPartition(domain.StatusTodo)
	ordered := []domain.Task{{ID: "b"}, {ID: "c"}, {ID: "a"}, {ID: "x"}}
	if n := s.SetPartitionOrder(p, ordered); n != 3 {
		t.Fatalf("expected 3 updates, got %d", n)
	}
	if got := ids(s.Partition(p)); !reflect.DeepEqual(got, []string{"b", "c", "a"}) {
		t.Fatalf("unexpected partition order %v", got)
	}
	if got := ids(s.All()); !reflect.DeepEqual(got, []string{"b", "x", "c", "a"}) {
		t.Fatalf("unexpected slice layout %v", got)
	}
	x, _ := s.Find("x")
	if x.Order != 7 {
		t.Fatalf("task outside partition changed order: %d", x.Order)
	}
}

func TestRekeyDropsTemporaryWhenRealExists(t *testing.T) {
	s := New(
		domain.Task{ID: "temp-1", Title: "draft", Status: domain.StatusTodo},
		domain.Task{ID: "real-1", Title: "echo", Status: domain.StatusTodo},
	)
	if !s.Rekey("temp-1", domain.Task{ID: "real-1", Title: "server", Status: domain.StatusTodo}) {
		t.Fatalf("rekey failed")
	}
	if s.Len() != 1 {
		t.Fatalf("expected a single record, got %v", ids(s.All()))
	}
	got, _ := s.Find("real-1")
	if got.Title != "server" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestRekeyInPlace(t *testing.T) {
	s := New(
		domain.Task{ID: "a", Status: domain.StatusTodo},
		domain.Task{ID: "temp-1", Status: domain.StatusTodo},
		domain.Task{ID: "b", Status: domain.StatusTodo},
	)
	s.Rekey("temp-1", domain.Task{ID: "real-1", Status: domain.StatusTodo})
	if got := ids(s.All()); !reflect.DeepEqual(got, []string{"a", "real-1", "b"}) {
		t.Fatalf("unexpected layout %v", got)
	}
}

func TestInsertOnlyWhenAbsent(t *testing.T) {
	s := New(domain.Task{ID: "a"}, domain.Task{ID: "c"})
	if !s.Insert(1, domain.Task{ID: "b"}) {
		t.Fatalf("insert failed")
	}
	if s.Insert(0, domain.Task{ID: "b"}) {
		t.Fatalf("insert of present id succeeded")
	}
	if got := ids(s.All()); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected layout %v", got)
	}
}

func TestResetDeduplicates(t *testing.T) {
	s := New()
	s.Reset([]domain.Task{{ID: "1", Title: "a"}, {ID: "2"}, {ID: "1", Title: "b"}})
	if got := ids(s.All()); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("unexpected ids %v", got)
	}
	got, _ := s.Find("1")
	if got.Title != "b" {
		t.Fatalf("expected last record to win, got %q", got.Title)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	s.Add(domain.Task{ID: "1"})
	s.Remove("1")
	first, second := <-ch, <-ch
	if first != (Change{Kind: Added, ID: "1"}) || second != (Change{Kind: Removed, ID: "1"}) {
		t.Fatalf("unexpected changes %v %v", first, second)
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	s.Add(domain.Task{ID: "2"})
}
