// Package config loads and hot-reloads the server's JSON configuration
// document: the top-level server/database/logging/scripting sections a
// deployment tunes, plus an fsnotify watcher that republishes a fresh
// snapshot whenever the file on disk changes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/lattice-mud/lattice/internal/atomicref"
	"github.com/lattice-mud/lattice/internal/logging"
)

// ServerConfig holds listener/runtime toggles.
type ServerConfig struct {
	TCPAddr     string `json:"tcpAddr"`
	WSAddr      string `json:"wsAddr"`
	AdminAddr   string `json:"adminAddr"`
	PublicURL   string `json:"publicUrl"`
	EnableWS    bool   `json:"enableWs"`
	EnableAdmin bool   `json:"enableAdmin"`
	Debug       bool   `json:"debug"`
}

// DatabaseConfig points at the object store's backing file.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// LoggingConfig mirrors internal/logging's own Config, duplicated here
// (rather than embedded) so this package's JSON shape stays independent
// of internal/logging's Go type, plus the file-sink fields spec.md §6
// names that internal/logging itself has no opinion on.
type LoggingConfig struct {
	Level         string `json:"level"`
	Format        string `json:"format"`
	Console       bool   `json:"console"`
	File          bool   `json:"file"`
	FilePath      string `json:"filePath"`
	RotationCount int    `json:"rotationCount"`
}

// ScriptingConfig bounds script execution.
type ScriptingConfig struct {
	MaxCallDepth       int `json:"maxCallDepth"`
	MaxExecutionTimeMs int `json:"maxExecutionTimeMs"`
}

// Config is the full document loaded from, and written as, the config file.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	Scripting ScriptingConfig `json:"scripting"`
}

// Defaults returns the configuration a fresh install ships with.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			TCPAddr:     ":1701",
			WSAddr:      ":1702",
			AdminAddr:   ":1703",
			EnableWS:    true,
			EnableAdmin: true,
		},
		Database: DatabaseConfig{Path: "lattice.db"},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "console",
			Console:       true,
			File:          false,
			FilePath:      "lattice.log",
			RotationCount: 5,
		},
		Scripting: ScriptingConfig{
			MaxCallDepth:       100,
			MaxExecutionTimeMs: 5000,
		},
	}
}

// ToLoggingConfig projects the logging section onto internal/logging's
// own Config shape.
func (c *Config) ToLoggingConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}

// Load reads path, creating it with Defaults() if it doesn't exist yet.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Defaults()
		if writeErr := write(path, cfg); writeErr != nil {
			return nil, fmt.Errorf("config: write defaults: %w", writeErr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func write(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Watcher holds the live *Config behind an atomic pointer, refreshed
// whenever the backing file changes on disk.
type Watcher struct {
	path string
	ref  *atomicref.Ref[Config]
	log  logging.Sink
}

// NewWatcher loads path once via Load and wraps the result for hot-reload.
func NewWatcher(path string, log logging.Sink) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, ref: atomicref.New(cfg), log: log}, nil
}

// Current returns the most recently loaded configuration snapshot.
func (w *Watcher) Current() *Config { return w.ref.Load() }

// SetLogger swaps in a logging sink discovered only after the config
// document (which names the logger's own level/format) has been loaded.
func (w *Watcher) SetLogger(log logging.Sink) { w.log = log }

// Watch blocks, re-parsing w.path on every write event and swapping in
// the new snapshot if it parses cleanly; a bad edit is logged and the
// previous snapshot is kept, mirroring the Hot-Reload Supervisor's
// leave-current-unchanged-on-failure contract.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: start watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			next, err := Load(w.path)
			if err != nil {
				if w.log != nil {
					w.log.Warnw("config reload failed, keeping current config", "error", err)
				}
				continue
			}
			w.ref.Swap(next)
			if w.log != nil {
				w.log.Infow("config reloaded")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if w.log != nil {
				w.log.Warnw("config watcher error", "error", err)
			}
		}
	}
}
