package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Fabeuss/oasis/pkg/protocol"
	"github.com/Fabeuss/oasis/pkg/retry"
)

func testAuthClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{
		BaseURL:     ts.URL,
		RetryConfig: retry.Config{MaxAttempts: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	})
	return c, ts
}

func TestLogin_Success(t *testing.T) {
	var gotAuth string
	c, ts := testAuthClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/token":
			var req protocol.LoginRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Username != "alice" || req.Password != "pass123" {
				t.Errorf("unexpected credentials: %+v", req)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(protocol.LoginResponse{
				Token:     "jwt-token-123",
				ExpiresAt: time.Now().Add(24 * time.Hour),
				User:      protocol.UserInfo{Username: "alice"},
			})
		case "/api/v1/dir":
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(protocol.ListResponse{})
		}
	}))
	defer ts.Close()

	resp, err := c.Login(context.Background(), "alice", "pass123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Token != "jwt-token-123" {
		t.Errorf("expected token jwt-token-123, got %s", resp.Token)
	}
	if resp.User.Username != "alice" {
		t.Errorf("expected user alice, got %s", resp.User.Username)
	}

	if _, err := c.List(context.Background(), ""); err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotAuth != "Bearer jwt-token-123" {
		t.Errorf("expected bearer token on later requests, got %q", gotAuth)
	}
}

func TestLogin_Failure(t *testing.T) {
	c, ts := testAuthClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "invalid credentials", Code: 401})
	}))
	defer ts.Close()

	_, err := c.Login(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if StatusOf(err) != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d (%v)", StatusOf(err), err)
	}
}

func TestTokenFile_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	tf := &TokenFile{
		Token:     "abc",
		ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second),
		Server:    "http://localhost:8080",
		Username:  "alice",
	}

	if err := SaveToken(path, tf); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}

	got, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got.Token != tf.Token || got.Username != tf.Username || !got.ExpiresAt.Equal(tf.ExpiresAt) {
		t.Errorf("LoadToken = %+v, want %+v", got, tf)
	}

	if err := DeleteToken(path); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if _, err := LoadToken(path); !os.IsNotExist(err) {
		t.Errorf("expected not-exist after delete, got %v", err)
	}
}

func TestTokenFile_IsExpired(t *testing.T) {
	tf := &TokenFile{ExpiresAt: time.Now().Add(10 * time.Minute)}
	if tf.IsExpired(0) {
		t.Error("token should not be expired")
	}
	if !tf.IsExpired(time.Hour) {
		t.Error("token should be expired with a one hour margin")
	}
}
