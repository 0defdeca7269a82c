// Package tuning loads scoring weights and duration overrides from a YAML
// file and reloads them when the file changes.
package tuning

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/security"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const debounceDelay = 250 * time.Millisecond

// File is the on-disk tuning document.
//
//	weights:
//	  travel_per_minute: 0.75
//	durations:
//	  installation: 5h
type File struct {
	Weights   services.Weights  `yaml:"weights"`
	Durations map[string]string `yaml:"durations"`
}

// DurationOverrides parses the per-kind durations against the catalog.
func (f File) DurationOverrides(catalog *domain.Catalog) (map[domain.AppointmentKind]time.Duration, error) {
	out := make(map[domain.AppointmentKind]time.Duration, len(f.Durations))
	for name, raw := range f.Durations {
		kind, err := catalog.ParseKind(name)
		if err != nil {
			return nil, err
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, domain.NewValidationError("durations."+name, fmt.Sprintf("invalid duration %q", raw))
		}
		out[kind] = d
	}
	return out, nil
}

// Load reads path. Weights missing from the file keep their defaults.
func Load(path string) (File, error) {
	f := File{Weights: services.DefaultWeights()}
	data, err := security.ReadInputFile(path)
	if err != nil {
		return f, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	if err := f.Weights.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

// Watcher reapplies the tuning file to the scoring engine whenever it changes.
type Watcher struct {
	path    string
	scoring *services.ScoringEngine
	logger  *slog.Logger
	fsw     *fsnotify.Watcher
}

// NewWatcher watches the directory holding path, so editors that replace the
// file on save are picked up too.
func NewWatcher(path string, scoring *services.ScoringEngine, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{path: filepath.Clean(path), scoring: scoring, logger: logger, fsw: fsw}, nil
}

// Apply loads the file once and installs its weights.
func (w *Watcher) Apply() error {
	f, err := Load(w.path)
	if err != nil {
		return err
	}
	return w.scoring.SetWeights(f.Weights)
}

// Run processes file events until ctx is done. A file that fails to parse
// leaves the previous weights in place.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
			} else {
				timer.Reset(debounceDelay)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "tuning watcher error", "error", err)
		case <-fire:
			fire = nil
			if err := w.Apply(); err != nil {
				w.logger.WarnContext(ctx, "tuning reload rejected", "path", w.path, "error", err)
				continue
			}
			w.logger.InfoContext(ctx, "scoring weights reloaded", "path", w.path)
		}
	}
}
