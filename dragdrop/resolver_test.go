package dragdrop

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"collabnest/board"
	"collabnest/domain"
	"collabnest/optimistic"
)

type call struct {
	op  string
	id  string
	key string
	ids []string
}

type recordingMutator struct {
	calls []call
	err   error
}

func (m *recordingMutator) SetStatus(_ context.Context, id string, s domain.Status) error {
	m.calls = append(m.calls, call{op: "status", id: id, key: string(s)})
	return m.err
}

func (m *recordingMutator) SetOrganization(_ context.Context, id, org string) error {
	m.calls = append(m.calls, call{op: "organization", id: id, key: org})
	return m.err
}

func (m *recordingMutator) Reorder(_ context.Context, p domain.Partition, ids []string) error {
	m.calls = append(m.calls, call{op: "reorder", key: p.Key, ids: ids})
	return m.err
}

func columnStore() *board.Store {
	return board.New(
		domain.Task{ID: "A", Status: domain.StatusTodo, Order: 0},
		domain.Task{ID: "B", Status: domain.StatusTodo, Order: 1},
		domain.Task{ID: "C", Status: domain.StatusTodo, Order: 2},
		domain.Task{ID: "D", Status: domain.StatusDone, Order: 0},
	)
}

func TestResolveNoOps(t *testing.T) {
	tests := []struct {
		name         string
		active, over string
	}{
		{name: "self", active: "A", over: "A"},
		{name: "unknown active", active: "Z", over: "done"},
		{name: "unknown target", active: "A", over: "Z"},
		{name: "same column", active: "A", over: "todo"},
		{name: "empty target", active: "A", over: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := columnStore()
			before := store.All()
			m := &recordingMutator{}
			r := NewStatusResolver(store, m, nil)

			out, err := r.Resolve(context.Background(), tt.active, tt.over)
			if err != nil || out != NoOp {
				t.Fatalf("expected no-op, got %v %v", out, err)
			}
			if len(m.calls) != 0 {
				t.Fatalf("expected no mutation, got %+v", m.calls)
			}
			if !reflect.DeepEqual(store.All(), before) {
				t.Fatalf("store mutated")
			}
		})
	}
}

func TestResolveDropOnColumn(t *testing.T) {
	m := &recordingMutator{}
	r := NewStatusResolver(columnStore(), m, nil)

	out, err := r.Resolve(context.Background(), "B", "inprogress")
	if err != nil || out != MovedPartition {
		t.Fatalf("unexpected result %v %v", out, err)
	}
	want := []call{{op: "status", id: "B", key: "inprogress"}}
	if !reflect.DeepEqual(m.calls, want) {
		t.Fatalf("unexpected calls %+v", m.calls)
	}
}

func TestResolveSamePartitionMovesToTargetIndex(t *testing.T) {
	m := &recordingMutator{}
	r := NewStatusResolver(columnStore(), m, nil)

	out, err := r.Resolve(context.Background(), "A", "C")
	if err != nil || out != Reordered {
		t.Fatalf("unexpected result %v %v", out, err)
	}
	if len(m.calls) != 1 {
		t.Fatalf("expected exactly one call, got %+v", m.calls)
	}
	if got := m.calls[0]; got.op != "reorder" || got.key != "todo" || !reflect.DeepEqual(got.ids, []string{"B", "C", "A"}) {
		t.Fatalf("unexpected call %+v", got)
	}
}

func TestResolveTaskInOtherPartition(t *testing.T) {
	m := &recordingMutator{}
	r := NewStatusResolver(columnStore(), m, nil)

	out, err := r.Resolve(context.Background(), "A", "D")
	if err != nil || out != MovedPartition {
		t.Fatalf("unexpected result %v %v", out, err)
	}
	want := []call{{op: "status", id: "A", key: "done"}}
	if !reflect.DeepEqual(m.calls, want) {
		t.Fatalf("unexpected calls %+v", m.calls)
	}
}

func TestResolvePartitionIDWinsOverTaskID(t *testing.T) {
	store := board.New(
		domain.Task{ID: "A", Status: domain.StatusTodo},
		domain.Task{ID: "done", Status: domain.StatusTodo},
	)
	m := &recordingMutator{}
	r := NewStatusResolver(store, m, nil)

	if out, _ := r.Resolve(context.Background(), "A", "done"); out != MovedPartition {
		t.Fatalf("expected column drop, got %v", out)
	}
}

func TestResolveOrganizationBoards(t *testing.T) {
	store := board.New(
		domain.Task{ID: "1", Status: domain.StatusTodo, Organization: "acme"},
		domain.Task{ID: "2", Status: domain.StatusDone, Organization: "acme", Order: 1},
		domain.Task{ID: "3", Status: domain.StatusTodo, Organization: "globex"},
	)
	m := &recordingMutator{}
	r := NewResolver(store, m, domain.KindOrganization, []string{"acme"}, nil)

	if out, _ := r.Resolve(context.Background(), "3", "acme"); out != MovedPartition {
		t.Fatalf("expected move, got %v", out)
	}
	if out, _ := r.Resolve(context.Background(), "2", "1"); out != Reordered {
		t.Fatalf("expected reorder, got %v", out)
	}
	// globex is not a rendered board yet, so the id is treated as unknown.
	if out, _ := r.Resolve(context.Background(), "1", "globex"); out != NoOp {
		t.Fatalf("expected no-op, got %v", out)
	}
	r.SetPartitions([]string{"acme", "globex"})
	if out, _ := r.Resolve(context.Background(), "1", "globex"); out != MovedPartition {
		t.Fatalf("expected move after partitions update, got %v", out)
	}
	want := []call{
		{op: "organization", id: "3", key: "acme"},
		{op: "reorder", key: "acme", ids: []string{"2", "1"}},
		{op: "organization", id: "1", key: "globex"},
	}
	if !reflect.DeepEqual(m.calls, want) {
		t.Fatalf("unexpected calls %+v", m.calls)
	}
}

func TestResolveReturnsMutationError(t *testing.T) {
	boom := errors.New("boom")
	m := &recordingMutator{err: boom}
	r := NewStatusResolver(columnStore(), m, nil)

	out, err := r.Resolve(context.Background(), "A", "done")
	if out != MovedPartition || !errors.Is(err, boom) {
		t.Fatalf("unexpected result %v %v", out, err)
	}
}

func TestMove(t *testing.T) {
	tests := []struct {
		from, to int
		want     []string
	}{
		{0, 2, []string{"B", "C", "A"}},
		{2, 0, []string{"C", "A", "B"}},
		{1, 2, []string{"A", "C", "B"}},
	}
	for _, tt := range tests {
		ids := []string{"A", "B", "C"}
		if got := Move(ids, tt.from, tt.to); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("Move(%d, %d) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
		if !reflect.DeepEqual(ids, []string{"A", "B", "C"}) {
			t.Fatalf("input modified: %v", ids)
		}
	}
}

type statusRemote struct {
	optimistic.RemoteAPI
	calls []string
}

func (s *statusRemote) SetTaskStatus(_ context.Context, id string, st domain.Status) (domain.Task, error) {
	s.calls = append(s.calls, id+":"+string(st))
	return domain.Task{ID: id, Status: st, Order: 1}, nil
}

func TestDragOntoColumnThroughLayer(t *testing.T) {
	store := board.New(
		domain.Task{ID: "1", Status: domain.StatusTodo, Order: 0},
		domain.Task{ID: "2", Status: domain.StatusTodo, Order: 1},
	)
	remote := &statusRemote{}
	logger, _ := test.NewNullLogger()
	layer := optimistic.New(store, remote, logger)
	r := NewStatusResolver(store, layer, logger)

	if _, err := r.Resolve(context.Background(), "2", "inprogress"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(remote.calls, []string{"2:inprogress"}) {
		t.Fatalf("unexpected remote calls %v", remote.calls)
	}
	two, _ := store.Find("2")
	if two.Status != domain.StatusInProgress {
		t.Fatalf("unexpected status %q", two.Status)
	}
	one, _ := store.Find("1")
	if one.Order != 0 || one.Status != domain.StatusTodo {
		t.Fatalf("task 1 changed: %+v", one)
	}
}
