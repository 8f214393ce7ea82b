// Package reload implements the Hot-Reload Supervisor: it watches the
// verb- and function-source directory trees, and on any change,
// debounces, rebuilds the Registry's Snapshot from the on-disk
// canonical JSON files, recompiles their bodies, and atomically
// publishes the result.
package reload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lattice-mud/lattice/internal/registry"
	"github.com/lattice-mud/lattice/internal/scripthost"
	"github.com/lattice-mud/lattice/internal/world"
)

// DefaultDebounce matches the 250ms quiescence window named in the
// external interface.
const DefaultDebounce = 250 * time.Millisecond

// record is the canonical on-disk shape of one verb or function: a
// single JSON file carrying its metadata and body. A record with
// Patterns is loaded as a verb; any other record as a function.
type record struct {
	OwnerID      string   `json:"ownerId"`
	OwnerIsClass bool     `json:"ownerIsClass"`
	Name         string   `json:"name"`
	Patterns     []string `json:"patterns,omitempty"`
	Params       []string `json:"params,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
	Public       bool     `json:"public,omitempty"`
	Body         string   `json:"body"`
}

// Diagnostic describes one rebuild failure: which file, and why.
type Diagnostic struct {
	Path string
	Err  error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.Path, d.Err)
}

// Logger is the narrow sink the supervisor reports through, matching
// the ambient logging idiom used elsewhere (a single leveled method
// set rather than a concrete *zap.Logger dependency here).
type Logger interface {
	Warnw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
}

// EventSubscriber receives a notice whenever a reload attempt
// completes, successful or not, for forwarding to administrator
// sessions subscribed to reload events.
type EventSubscriber interface {
	NotifyReload(ok bool, verbCount int, diagnostics []Diagnostic)
}

// Supervisor watches root for changes and republishes reg on quiescence.
type Supervisor struct {
	root     string
	debounce time.Duration
	reg      *registry.Registry
	host     *scripthost.Host
	log      Logger
	sub      EventSubscriber
}

// New creates a Supervisor. root is the directory tree containing verb
// and function JSON files (searched recursively).
func New(root string, reg *registry.Registry, host *scripthost.Host, log Logger, sub EventSubscriber) *Supervisor {
	return &Supervisor{root: root, debounce: DefaultDebounce, reg: reg, host: host, log: log, sub: sub}
}

// LoadOnce performs a single rebuild-and-swap without watching for
// further changes, used both at startup and by the watch loop.
func (s *Supervisor) LoadOnce(ctx context.Context) error {
	verbs, functions, diags := s.scan()
	if len(diags) > 0 {
		s.reportFailure(diags)
		return fmt.Errorf("reload: %d file(s) failed to load", len(diags))
	}
	next := registry.NewSnapshot(verbs, functions)
	s.reg.Swap(next)
	if s.sub != nil {
		s.sub.NotifyReload(true, next.VerbCount(), nil)
	}
	if s.log != nil {
		s.log.Infow("registry reloaded", "verbs", len(verbs), "functions", len(functions))
	}
	return nil
}

func (s *Supervisor) reportFailure(diags []Diagnostic) {
	if s.log != nil {
		for _, d := range diags {
			s.log.Warnw("reload failed, keeping current registry", "file", d.Path, "error", d.Err)
		}
	}
	if s.sub != nil {
		s.sub.NotifyReload(false, s.reg.Current().VerbCount(), diags)
	}
}

// scan walks root, parses every *.json file into a verb or function
// record, and compiles its body. A parse or compile failure produces a
// Diagnostic and aborts the rebuild (the caller keeps the current
// registry unchanged); no *.json file is skipped, and one that parses but
// has no patterns is loaded as a function.
func (s *Supervisor) scan() ([]registry.Verb, []registry.Function, []Diagnostic) {
	var verbs []registry.Verb
	var functions []registry.Function
	var diags []Diagnostic

	_ = filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			diags = append(diags, Diagnostic{Path: path, Err: err})
			return nil
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			diags = append(diags, Diagnostic{Path: path, Err: err})
			return nil
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			diags = append(diags, Diagnostic{Path: path, Err: fmt.Errorf("parse: %w", err)})
			return nil
		}
		unit, err := s.host.Compile(path, rec.Body)
		if err != nil {
			diags = append(diags, Diagnostic{Path: path, Err: fmt.Errorf("compile: %w", err)})
			return nil
		}
		if len(rec.Patterns) > 0 {
			verbs = append(verbs, registry.Verb{
				OwnerID: world.ID(rec.OwnerID), OwnerIsClass: rec.OwnerIsClass, Name: rec.Name,
				Patterns: rec.Patterns, Permissions: rec.Permissions, Public: rec.Public,
				Body: rec.Body, BodyHash: unit.Hash, SourcePath: path,
			})
		} else {
			functions = append(functions, registry.Function{
				OwnerID: world.ID(rec.OwnerID), OwnerIsClass: rec.OwnerIsClass, Name: rec.Name,
				Params: rec.Params, Permissions: rec.Permissions, Public: rec.Public,
				Body: rec.Body, BodyHash: unit.Hash, SourcePath: path,
			})
		}
		return nil
	})
	return verbs, functions, diags
}

// Watch blocks, running LoadOnce whenever the source tree has gone
// quiet for the debounce window, until ctx is cancelled.
func (s *Supervisor) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("reload: start watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, s.root); err != nil {
		return fmt.Errorf("reload: watch %s: %w", s.root, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	resetTimer := func() {
		if timer == nil {
			timer = time.NewTimer(s.debounce)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.debounce)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				resetTimer()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if s.log != nil {
				s.log.Warnw("reload watcher error", "error", err)
			}
		case <-timerC:
			_ = s.LoadOnce(ctx)
		}
	}
}

// addRecursive registers every directory under root with the watcher,
// since fsnotify does not watch subtrees on its own.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
