// Package catalog loads recorded workflows from a directory of YAML files.
//
// Each file holds one workflow:
//
//	id: 7
//	name: Checkout
//	starting_url: https://shop.test/
//	steps:
//	  - action_type: click
//	    selector: "#buy"
//	    instruction: Click "Buy now"
//
// Step indexes are assigned from file order. The directory can be watched
// so edits are picked up without a restart.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/gateway"
	"github.com/xraph/walkthrough/session"
)

var _ gateway.Catalog = (*Dir)(nil)

// Option configures a Dir.
type Option func(*Dir)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dir) { d.logger = l }
}

// Dir is a workflow catalog backed by a directory.
type Dir struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	workflows map[int64]session.Workflow
}

// Open loads every workflow file in path.
func Open(path string, opts ...Option) (*Dir, error) {
	d := &Dir{
		path:      path,
		logger:    slog.Default(),
		workflows: make(map[int64]session.Workflow),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Path returns the watched directory.
func (d *Dir) Path() string { return d.path }

// Workflow returns the workflow with the given id.
func (d *Dir) Workflow(_ context.Context, id int64) (session.Workflow, error) {
	d.mu.RLock()
	wf, ok := d.workflows[id]
	d.mu.RUnlock()
	if !ok {
		return session.Workflow{}, fmt.Errorf("%w: %d", walkthrough.ErrWorkflowNotFound, id)
	}
	wf.Steps = slices.Clone(wf.Steps)
	return wf, nil
}

// Workflows returns every loaded workflow ordered by id.
func (d *Dir) Workflows() []session.Workflow {
	d.mu.RLock()
	out := make([]session.Workflow, 0, len(d.workflows))
	for _, wf := range d.workflows {
		out = append(out, wf)
	}
	d.mu.RUnlock()
	slices.SortFunc(out, func(a, b session.Workflow) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Reload re-reads the directory. On error the previous contents stay in
// effect.
func (d *Dir) Reload() error {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return fmt.Errorf("catalog: read dir: %w", err)
	}

	loaded := make(map[int64]session.Workflow)
	origin := make(map[int64]string)
	for _, e := range entries {
		if e.IsDir() || !isWorkflowFile(e.Name()) {
			continue
		}
		file := filepath.Join(d.path, e.Name())
		wf, err := LoadFile(file)
		if err != nil {
			return err
		}
		if prev, dup := origin[wf.ID]; dup {
			return fmt.Errorf("catalog: workflow %d defined in both %s and %s", wf.ID, prev, e.Name())
		}
		origin[wf.ID] = e.Name()
		loaded[wf.ID] = wf
	}

	d.mu.Lock()
	d.workflows = loaded
	d.mu.Unlock()

	d.logger.Debug("catalog loaded",
		slog.String("path", d.path),
		slog.Int("workflows", len(loaded)),
	)
	return nil
}

// LoadFile parses a single workflow file.
func LoadFile(file string) (session.Workflow, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return session.Workflow{}, fmt.Errorf("catalog: %w", err)
	}
	wf, err := Parse(data)
	if err != nil {
		return session.Workflow{}, fmt.Errorf("catalog: %s: %w", filepath.Base(file), err)
	}
	return wf, nil
}

// Parse decodes one workflow document. Unknown fields are rejected.
func Parse(data []byte) (session.Workflow, error) {
	var wf session.Workflow
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&wf); err != nil {
		if errors.Is(err, io.EOF) {
			return session.Workflow{}, errors.New("empty document")
		}
		return session.Workflow{}, err
	}
	if wf.ID <= 0 {
		return session.Workflow{}, fmt.Errorf("workflow id must be positive, got %d", wf.ID)
	}
	for i := range wf.Steps {
		wf.Steps[i].Index = i
		if wf.Steps[i].ActionType == "" {
			return session.Workflow{}, fmt.Errorf("step %d: missing action_type", i)
		}
	}
	return wf, nil
}

// Watch reloads the catalog whenever a workflow file changes. It blocks
// until ctx is cancelled.
func (d *Dir) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(d.path); err != nil {
		return fmt.Errorf("catalog: watch %s: %w", d.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isWorkflowFile(ev.Name) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := d.Reload(); err != nil {
				d.logger.Warn("catalog reload failed",
					slog.String("file", filepath.Base(ev.Name)),
					slog.String("error", err.Error()),
				)
				continue
			}
			d.logger.Info("catalog reloaded", slog.String("file", filepath.Base(ev.Name)))

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("catalog watcher error", slog.String("error", err.Error()))
		}
	}
}

func isWorkflowFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	return ext == ".yaml" || ext == ".yml"
}
