// Package registry owns the lifecycle of named directories. Each name gets
// its own backing store, so operations on one directory are never visible
// to another.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/choplin/dirsim/internal/config"
	"github.com/choplin/dirsim/internal/database"
	"github.com/choplin/dirsim/internal/directory"
)

// Manager hands out directories by name.
type Manager struct {
	cfg    config.Config
	logger *zap.Logger
	pathOf func(name string) string

	mu   sync.Mutex
	open map[string]*handle
}

type handle struct {
	db  *database.Context
	dir *directory.Directory
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger shared by the manager and its directories.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPathFunc overrides where file-backed directories are stored.
func WithPathFunc(fn func(name string) string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.pathOf = fn
		}
	}
}

// New creates a Manager. Nothing is opened until Setup is called.
func New(cfg config.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: zap.NewNop(),
		pathOf: config.GetDirectoryPath,
		open:   make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Setup provisions the backing store of name and returns its directory.
// Calling Setup again for an open name returns the same directory.
func (m *Manager) Setup(ctx context.Context, name string) (*directory.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("directory name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.open[name]; ok {
		return h.dir, nil
	}

	mode := m.cfg.StorageFor(name)
	opts := database.Options{Mode: mode}
	if mode == database.StorageFile {
		opts.Path = m.pathOf(name)
	}

	db, err := database.CreateDatabase(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to set up directory %s: %w", name, err)
	}

	dir := directory.New(name, db, m.cfg.Engine, directory.WithLogger(m.logger))
	m.open[name] = &handle{db: db, dir: dir}

	m.logger.Info("directory ready",
		zap.String("directory", name),
		zap.String("storage", string(mode)),
		zap.String("path", opts.Path),
	)
	return dir, nil
}

// Get returns the open directory called name.
func (m *Manager) Get(name string) (*directory.Directory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.open[strings.TrimSpace(name)]
	if !ok {
		return nil, false
	}
	return h.dir, true
}

// Names lists the open directories.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.open))
	for name := range m.open {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Teardown closes name and removes its file when it is file-backed.
// Tearing down a name that was never set up is not an error.
func (m *Manager) Teardown(name string) error {
	name = strings.TrimSpace(name)

	m.mu.Lock()
	h, ok := m.open[name]
	delete(m.open, name)
	m.mu.Unlock()

	if ok {
		if err := database.CloseDatabase(h.db); err != nil {
			return fmt.Errorf("failed to close directory %s: %w", name, err)
		}
	}

	if m.cfg.StorageFor(name) == database.StorageFile {
		if err := database.RemoveDatabase(m.pathOf(name)); err != nil {
			return fmt.Errorf("failed to tear down directory %s: %w", name, err)
		}
	}

	m.logger.Info("directory torn down", zap.String("directory", name))
	return nil
}

// Close closes every open directory without removing any data.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, h := range m.open {
		if err := database.CloseDatabase(h.db); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close directory %s: %w", name, err)
		}
		delete(m.open, name)
	}
	return firstErr
}
