package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lattice.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scripting.MaxCallDepth != 100 || cfg.Scripting.MaxExecutionTimeMs != 5000 {
		t.Fatalf("Scripting = %+v, want defaults", cfg.Scripting)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults to be written to disk: %v", err)
	}
}

func TestLoadParsesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lattice.json")
	data, _ := json.Marshal(Config{
		Server:    ServerConfig{TCPAddr: ":9999"},
		Scripting: ScriptingConfig{MaxCallDepth: 10, MaxExecutionTimeMs: 1000},
	})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.TCPAddr != ":9999" {
		t.Fatalf("TCPAddr = %q, want :9999", cfg.Server.TCPAddr)
	}
	if cfg.Scripting.MaxCallDepth != 10 {
		t.Fatalf("MaxCallDepth = %d, want 10", cfg.Scripting.MaxCallDepth)
	}
}

func TestWatcherSwapsSnapshotOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lattice.json")
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	time.Sleep(50 * time.Millisecond)
	updated := Defaults()
	updated.Server.TCPAddr = ":7000"
	data, _ := json.Marshal(updated)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Current().Server.TCPAddr == ":7000" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if w.Current().Server.TCPAddr != ":7000" {
		t.Fatalf("TCPAddr = %q, want :7000 after reload", w.Current().Server.TCPAddr)
	}

	cancel()
	<-done
}

func TestWatcherKeepsCurrentOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lattice.json")
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if w.Current().Scripting.MaxCallDepth != 100 {
		t.Fatalf("config should be unchanged after a bad write, got %+v", w.Current())
	}
}
