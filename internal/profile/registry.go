package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bimmerbailey/evident/internal/config"
	"github.com/bimmerbailey/evident/internal/rejection"
)

// Registry holds the loaded profiles. Readers always see one complete
// snapshot; Load replaces it in a single step.
type Registry struct {
	dir      string
	logger   *slog.Logger
	snapshot atomic.Pointer[map[string]*Profile]
}

// NewRegistry creates an empty registry reading from dir.
func NewRegistry(dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{dir: dir, logger: logger}
	empty := map[string]*Profile{}
	r.snapshot.Store(&empty)
	return r
}

// Dir returns the directory profiles are read from.
func (r *Registry) Dir() string {
	return r.dir
}

// Load reads every profile in the directory. On any error the previous
// snapshot stays in place.
func (r *Registry) Load() error {
	files, err := config.ProfileFiles(r.dir)
	if err != nil {
		return err
	}

	next := make(map[string]*Profile, len(files))
	var errs []error
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			errs = append(errs, fmt.Errorf("read profile: %w", err))
			continue
		}
		p, err := Parse(data, file)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, ok := next[p.ID]; ok {
			errs = append(errs, fmt.Errorf("%w %s: duplicate id %q (also in %s)", ErrInvalid, file, p.ID, prev.Source))
			continue
		}
		next[p.ID] = p
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	r.snapshot.Store(&next)
	r.logger.Debug("profiles loaded", "dir", r.dir, "count", len(next))
	return nil
}

// Get returns the profile with id.
func (r *Registry) Get(id string) (*Profile, bool) {
	p, ok := (*r.snapshot.Load())[id]
	return p, ok
}

// Lookup returns the profile with id, or an unknown_profile rejection that
// lists the available ids. An empty id yields a nil profile.
func (r *Registry) Lookup(id string) (*Profile, error) {
	if id == "" {
		return nil, nil
	}
	if p, ok := r.Get(id); ok {
		return p, nil
	}
	return nil, rejection.UnknownProfile(r.IDs())
}

// IDs returns the loaded profile ids, sorted.
func (r *Registry) IDs() []string {
	m := *r.snapshot.Load()
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns the loaded profiles sorted by id.
func (r *Registry) List() []*Profile {
	m := *r.snapshot.Load()
	out := make([]*Profile, 0, len(m))
	for _, id := range r.IDs() {
		if p, ok := m[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Watch reloads the registry whenever a YAML file in the directory changes.
// Bursts of events are coalesced by debounce. It blocks until ctx is done.
// A failed reload is logged and the previous snapshot kept.
func (r *Registry) Watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to setup watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed unexpectedly")
			}
			if !relevant(event) {
				continue
			}
			pending = time.After(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			r.logger.Warn("profile watcher error", "error", err)
		case <-pending:
			pending = nil
			if err := r.Load(); err != nil {
				r.logger.Error("profile reload failed", "dir", r.dir, "error", err)
				continue
			}
			r.logger.Info("profiles reloaded", "dir", r.dir, "count", len(r.IDs()))
		}
	}
}

func relevant(event fsnotify.Event) bool {
	switch strings.ToLower(filepath.Ext(event.Name)) {
	case ".yaml", ".yml":
	default:
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}
