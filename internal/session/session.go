// Package session owns everything that lives for one open project: the store
// handle, the invocation manager, the projector and the synchronizer.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/hpungsan/sift/internal/config"
	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/invoke"
	"github.com/hpungsan/sift/internal/present"
	"github.com/hpungsan/sift/internal/projector"
	"github.com/hpungsan/sift/internal/store"
	"github.com/hpungsan/sift/internal/tools"
)

// Options configures Open.
type Options struct {
	Project *config.Project
	Config  *config.Config
	Logger  hclog.Logger

	// Surface receives decorations. Defaults to a MemorySurface.
	Surface present.Surface

	// CaseInsensitive overrides the platform default for path identity.
	CaseInsensitive *bool

	// Test hooks.
	Runner invoke.Runner
	Finder invoke.Finder
}

// Session is the context object for one project. It is safe for concurrent use.
type Session struct {
	project *config.Project
	cfg     *config.Config
	log     hclog.Logger

	store    *store.Store
	storeErr error

	finder    invoke.Finder
	manager   *invoke.Manager
	projector *projector.Projector
	sync      *present.Synchronizer
	surface   present.Surface
	memory    *present.MemorySurface

	closeOnce sync.Once
}

// Open activates a project. A store that cannot be opened does not fail Open:
// the session runs degraded, projects nothing and warns once.
func Open(opts Options) (*Session, error) {
	if opts.Project == nil {
		return nil, errors.NewInvalidRequest("project is required")
	}
	if opts.Project.ID <= 0 {
		return nil, errors.NewInvalidRequest("project id must be positive")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}

	root, err := filepath.Abs(opts.Project.Root)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid project root: %v", err))
	}
	project := *opts.Project
	project.Root = root

	s := &Session{
		project: &project,
		cfg:     cfg,
		log:     log.Named("session").With("project", project.ID),
	}

	s.finder = opts.Finder
	if s.finder == nil {
		s.finder = tools.NewDiscoverer(tools.DiscovererOptions{
			Paths:   cfg.ToolPaths,
			Timeout: cfg.DiscoveryTimeout(),
			Logger:  log,
		})
	}
	s.manager = invoke.NewManager(opts.Runner, s.finder, tools.Options{RulesDir: cfg.RulesDir}, log)

	st, err := store.Open(project.DatabasePath(), store.Options{Logger: log, Config: cfg})
	if err != nil {
		s.storeErr = err
		s.log.Warn("store unavailable, highlights disabled for this project",
			"path", project.DatabasePath(), "error", err)
	} else {
		s.store = st
		fold := projector.DefaultCaseInsensitive()
		if opts.CaseInsensitive != nil {
			fold = *opts.CaseInsensitive
		}
		s.projector = projector.New(st, projector.Options{
			Root:            root,
			CaseInsensitive: fold,
			Mode:            cfg.ProjectionMode,
			Logger:          log,
		})
	}

	s.surface = opts.Surface
	if s.surface == nil {
		s.memory = present.NewMemorySurface()
		s.surface = s.memory
	} else if m, ok := s.surface.(*present.MemorySurface); ok {
		s.memory = m
	}
	s.sync = present.NewSynchronizer(s.projector, s.surface, present.Options{
		ProjectID: project.ID,
		Styles:    present.ResolveStyles(cfg.Styles),
		Logger:    log,
	})

	s.log.Info("session opened", "root", root, "degraded", s.storeErr != nil)
	return s, nil
}

// Close cancels in-flight analyses and closes the store.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.manager.CancelAll()
		if s.store != nil {
			err = s.store.Close()
		}
		s.log.Info("session closed")
	})
	return err
}

// Project returns the active project.
func (s *Session) Project() *config.Project { return s.project }

// Config returns the effective configuration.
func (s *Session) Config() *config.Config { return s.cfg }

// Logger returns the session logger.
func (s *Session) Logger() hclog.Logger { return s.log }

// Store returns the store, or the STORE_UNAVAILABLE error recorded at Open.
func (s *Session) Store() (*store.Store, error) {
	if s.store == nil {
		return nil, s.storeErr
	}
	return s.store, nil
}

// Degraded reports why the store is unavailable, or nil.
func (s *Session) Degraded() error { return s.storeErr }

// Projector returns the projector, or nil when degraded.
func (s *Session) Projector() *projector.Projector { return s.projector }

// Synchronizer returns the presentation synchronizer.
func (s *Session) Synchronizer() *present.Synchronizer { return s.sync }

// Surface returns the in-memory surface, or nil when a custom surface was given.
func (s *Session) Surface() *present.MemorySurface { return s.memory }

// Manager returns the invocation manager.
func (s *Session) Manager() *invoke.Manager { return s.manager }

// ToolStatus reports discovery status for every known tool.
func (s *Session) ToolStatus(ctx context.Context) []tools.ToolStatus {
	return tools.Status(ctx, s.finder.Find)
}

// Abs resolves p against the project root.
func (s *Session) Abs(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.project.Root, p)
}
