package httpadmin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lattice-mud/lattice/internal/metrics"
	"github.com/lattice-mud/lattice/internal/registry"
	"github.com/lattice-mud/lattice/internal/store/memstore"
	"github.com/lattice-mud/lattice/internal/world"
)

func newTestServer(t *testing.T) (*Server, *world.Model) {
	t.Helper()
	var n int
	minter := func() string { n++; return "id" + strconv.Itoa(n) }
	m := world.New(memstore.New(), minter)
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	root, err := m.CreateClass(context.Background(), "Object", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreatePlayer(context.Background(), root.ID, "Alice", "correct horse"); err != nil {
		t.Fatal(err)
	}
	reg := registry.New(registry.NewSnapshot(nil, nil))
	mreg := prometheus.NewRegistry()
	met := metrics.New(mreg, time.Now())

	auth := NewAuthService("test-secret", time.Hour)
	creds := Credentials{Username: "admin", Password: "hunter2"}
	srv := New(auth, creds, m, reg, met, mreg, nil)
	return srv, m
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestObjectsRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/objects/root")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginThenFetchObjectHidesPasswordHash(t *testing.T) {
	srv, m := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	player, ok := m.FindPlayerByName("Alice")
	if !ok {
		t.Fatal("expected Alice to exist")
	}

	loginBody := `{"username":"admin","password":"hunter2"}`
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", strings.NewReader(loginBody))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		t.Fatal(err)
	}
	if loginResp.Token == "" {
		t.Fatal("expected a non-empty token")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/objects/"+string(player.ID), nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("object fetch status = %d, want 200", resp2.StatusCode)
	}
	body := make([]byte, 4096)
	n, _ := resp2.Body.Read(body)
	payload := string(body[:n])
	if strings.Contains(payload, "PasswordHash") || strings.Contains(payload, player.PasswordHash) {
		t.Fatalf("response leaked password hash: %s", payload)
	}
}
