package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"collabnest/domain"
	"collabnest/realtime"
)

type tokenAuth struct{}

func (tokenAuth) UserIDFromAuthHeader(h string) (string, error) {
	if h != "Bearer x.y.z" {
		return "", errBadAuthorization
	}
	return "u1", nil
}

func TestStreamRelaysRoomEvents(t *testing.T) {
	s := newTestServer(t, tokenAuth{})
	srv := httptest.NewServer(s.e)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream?organization=acme&token=x.y.z", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	if got := s.mr.PubSubNumSub(realtime.OrgRoom("acme"))[realtime.OrgRoom("acme")]; got != 1 {
		t.Fatalf("expected stream subscribed to org room, got %d", got)
	}
	s.mr.Publish(realtime.OrgRoom("acme"), "not an envelope")
	payload, _ := realtime.Encode(domain.TaskDeletedEvent, domain.DeletedTaskData{ID: "t1"})
	s.mr.Publish(realtime.OrgRoom("acme"), string(payload))

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if lines[0] != "event: task-deleted" || lines[1] != `data: {"id":"t1"}` {
		t.Fatalf("unexpected frame %q", lines)
	}
}

func TestStreamRequiresToken(t *testing.T) {
	s := newTestServer(t, tokenAuth{})
	rec := s.do(t, http.MethodGet, "/api/stream", "", map[string]string{echo.HeaderAuthorization: ""})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
