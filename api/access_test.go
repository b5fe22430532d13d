package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"collabnest/domain"
	"collabnest/realtime"
)

const personalBody = `{"title":"Groceries","description":"milk","priority":"low","dueDate":"2024-06-01T00:00:00Z"}`

func decodeList(t *testing.T, body string) []domain.Task {
	t.Helper()
	var list domain.TaskList
	if err := sonic.UnmarshalString(body, &list); err != nil {
		t.Fatalf("decode list: %v (%s)", err, body)
	}
	return list.Tasks
}

func TestOrganizationTasksRequireMembership(t *testing.T) {
	auth := &stubAuth{user: "u1"}
	s := newTestServer(t, auth)
	task := decodeTask(t, s.do(t, http.MethodPost, "/api/tasks", createBody, nil))
	if task.Owner != "u1" {
		t.Fatalf("expected creator as owner, got %q", task.Owner)
	}

	auth.user = "mallory"
	orgOrder, _ := sonic.MarshalString(domain.ReorderRequest{Partition: domain.OrganizationPartition("acme"), IDs: []string{task.ID}})
	statusOrder, _ := sonic.MarshalString(domain.ReorderRequest{Partition: domain.StatusPartition(domain.StatusTodo), IDs: []string{task.ID}})
	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "list", method: http.MethodGet, path: "/api/tasks?organization=acme"},
		{name: "get", method: http.MethodGet, path: "/api/tasks/" + task.ID},
		{name: "create", method: http.MethodPost, path: "/api/tasks", body: createBody},
		{name: "update", method: http.MethodPut, path: "/api/tasks/" + task.ID, body: `{"title":"mine now"}`},
		{name: "status", method: http.MethodPatch, path: "/api/tasks/" + task.ID + "/status", body: `{"status":"done"}`},
		{name: "reorderBoard", method: http.MethodPut, path: "/api/tasks/order", body: orgOrder},
		{name: "reorderColumn", method: http.MethodPut, path: "/api/tasks/order", body: statusOrder},
		{name: "delete", method: http.MethodDelete, path: "/api/tasks/" + task.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, tt.method, tt.path, tt.body, nil); rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	stored, err := s.store.GetTask(context.Background(), task.ID)
	if err != nil || stored.Title != task.Title || stored.Status != domain.StatusTodo {
		t.Fatalf("forbidden requests changed the task: %+v (%v)", stored, err)
	}
	if tasks, _ := s.store.ListTasks(context.Background(), "acme"); len(tasks) != 1 {
		t.Fatalf("expected only the original task, got %d", len(tasks))
	}
}

func TestPersonalTasksVisibleOnlyToOwner(t *testing.T) {
	auth := &stubAuth{user: "u1"}
	s := newTestServer(t, auth)
	ps := s.subscribe(t, realtime.UserRoom("u1"))

	rec := s.do(t, http.MethodPost, "/api/tasks", personalBody, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	task := decodeTask(t, rec)
	expectEvent(t, ps, domain.TaskCreatedEvent)

	if got := decodeList(t, s.do(t, http.MethodGet, "/api/tasks", "", nil).Body.String()); len(got) != 1 {
		t.Fatalf("owner should see the task, got %d", len(got))
	}

	auth.user = "u2"
	if got := decodeList(t, s.do(t, http.MethodGet, "/api/tasks", "", nil).Body.String()); len(got) != 0 {
		t.Fatalf("other users must not see personal tasks, got %+v", got)
	}
	if rec := s.do(t, http.MethodGet, "/api/tasks/"+task.ID, "", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/tasks/"+task.ID, "", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestIdempotencyKeyOwnedByAnotherUser(t *testing.T) {
	auth := &stubAuth{user: "u1"}
	s := newTestServer(t, auth)
	header := map[string]string{HeaderIdempotencyKey: "temp-7"}
	if rec := s.do(t, http.MethodPost, "/api/tasks", personalBody, header); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	auth.user = "u2"
	rec := s.do(t, http.MethodPost, "/api/tasks", personalBody, header)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "Groceries") {
		t.Fatalf("response leaked the other user's task")
	}
}

func TestMoveIntoForeignOrganizationForbidden(t *testing.T) {
	s := newTestServer(t, stubAuth{user: "u1"})
	if err := s.store.CreateOrganization(context.Background(), "initech", "u2"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	task := decodeTask(t, s.do(t, http.MethodPost, "/api/tasks", createBody, nil))

	if rec := s.do(t, http.MethodPut, "/api/tasks/"+task.ID, `{"organization":"initech"}`, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	rec := s.do(t, http.MethodPut, "/api/tasks/"+task.ID, `{"organization":""}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 moving to personal, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeTask(t, rec); got.Organization != "" || got.Owner != "u1" {
		t.Fatalf("unexpected task %+v", got)
	}
}

func TestOrganizationMembershipRoutes(t *testing.T) {
	auth := &stubAuth{user: "u1"}
	s := newTestServer(t, auth)

	if rec := s.do(t, http.MethodPost, "/api/organizations", `{"organization":"hooli"}`, nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/api/organizations", `{"organization":"hooli"}`, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPut, "/api/organizations/hooli/members/u2", `{"role":"owner"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPut, "/api/organizations/hooli/members/u2", `{"role":"member"}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	auth.user = "u2"
	rec := s.do(t, http.MethodGet, "/api/organizations", "", nil)
	var memberships []domain.Membership
	if err := sonic.Unmarshal(rec.Body.Bytes(), &memberships); err != nil || len(memberships) != 1 ||
		memberships[0].Organization != "hooli" || memberships[0].Role != domain.RoleMember {
		t.Fatalf("unexpected memberships %s (%v)", rec.Body.String(), err)
	}
	if rec := s.do(t, http.MethodGet, "/api/tasks?organization=hooli", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("member should list the board, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPut, "/api/organizations/hooli/members/u3", `{}`, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
}

func TestStreamRejectsForeignOrganization(t *testing.T) {
	s := newTestServer(t, tokenAuth{})
	header := map[string]string{echo.HeaderAuthorization: "Bearer x.y.z"}
	if rec := s.do(t, http.MethodGet, "/api/stream?organization=initech", "", header); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if got := s.mr.PubSubNumSub(realtime.OrgRoom("initech"))[realtime.OrgRoom("initech")]; got != 0 {
		t.Fatalf("expected no subscription, got %d", got)
	}
}
