package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"collabnest/domain"
)

func TestRenderBoardGroupsByColumn(t *testing.T) {
	var buf bytes.Buffer
	renderBoard(&buf, "", []domain.Task{
		{ID: "2", Title: "Second", Status: domain.StatusTodo, Order: 1},
		{ID: "3", Title: "Shipped", Status: domain.StatusDone, Priority: domain.PriorityHigh, AssignedTo: "u2"},
		{ID: "1", Title: "First", Status: domain.StatusTodo, Order: 0},
	})

	want := strings.Join([]string{
		"== personal (3 tasks) ==",
		"[todo]",
		"  1  First",
		"  2  Second",
		"[inprogress]",
		"[done]",
		"  3  Shipped (high) @u2",
		"",
	}, "\n")
	if buf.String() != want {
		t.Fatalf("unexpected board:\n%s", buf.String())
	}
}

func TestUserIDFromToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("any"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	a := &app{token: token}
	if got, err := a.userID(); err != nil || got != "user-7" {
		t.Fatalf("userID() = %q, %v", got, err)
	}
	a.user = "explicit"
	if got, _ := a.userID(); got != "explicit" {
		t.Fatalf("expected --user to win, got %q", got)
	}
	if _, err := (&app{}).userID(); err == nil {
		t.Fatal("expected error without user or token")
	}
}

func TestRootRequiresSubcommandArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"move", "only-one"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected argument count error")
	}
}
