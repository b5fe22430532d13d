package api

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "ok", header: "Bearer header.payload.signature", want: "header.payload.signature"},
		{name: "padded", header: "  Bearer a.b.c  ", want: "a.b.c"},
		{name: "missing", header: "", wantErr: errMissingAuthorization},
		{name: "wrongScheme", header: "Basic a.b.c", wantErr: errBadAuthorization},
		{name: "manyPeriods", header: "Bearer " + strings.Repeat(".", 1000), wantErr: errBadAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bearerToken(tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("bearerToken(%q) error = %v, want %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestUserIDFromAuthHeaderHS256(t *testing.T) {
	secret := []byte("test-secret")
	claims := jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	auth := NewAuth(nil, AuthOptions{Audience: "api://aud", Issuer: "https://issuer/", TestSecret: secret})
	userID, err := auth.UserIDFromAuthHeader("Bearer " + signed)
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}

	other := NewAuth(nil, AuthOptions{Audience: "api://other", TestSecret: secret})
	if _, err := other.UserIDFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatal("expected audience mismatch to fail")
	}
}

func TestUserIDFromBearerRejects(t *testing.T) {
	secret := []byte("test-secret")
	auth := NewAuth(nil, AuthOptions{TestSecret: secret})

	wrongKey, _ := TestToken([]byte("other"), "u1", time.Hour)
	if _, err := auth.UserIDFromBearer(wrongKey); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}

	expired, _ := TestToken(secret, "u1", -2*time.Minute)
	if _, err := auth.UserIDFromBearer(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	if _, err := auth.UserIDFromBearer(noSub); err == nil || err.Error() != "missing sub" {
		t.Fatalf("expected missing sub, got %v", err)
	}

	if _, err := auth.UserIDFromBearer(""); !errors.Is(err, errBadAuthorization) {
		t.Fatalf("expected bad auth for empty token, got %v", err)
	}
}

func TestRS256WithoutJWKS(t *testing.T) {
	auth := NewAuth(nil, AuthOptions{})
	if auth.TestMode() {
		t.Fatal("expected RS256 mode without a test secret")
	}
	hs, _ := TestToken([]byte("s"), "u1", time.Hour)
	if _, err := auth.UserIDFromBearer(hs); err == nil {
		t.Fatal("expected HS256 token to be rejected in RS256 mode")
	}
}

func TestTestTokenRequiresSecret(t *testing.T) {
	if _, err := TestToken(nil, "u1", time.Hour); err == nil {
		t.Fatal("expected error without secret")
	}
}
