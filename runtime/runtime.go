// Package runtime implements the RuntimeSingleton component: a
// process-wide, lazily-initialized object that parses (or accepts
// pre-parsed) configuration, constructs and exposes the discovery facade
// (which wires the LoLa discovery client), and owns a worker pool (Spawn)
// whose context Close cancels. It builds no separate per-binding runtime
// objects, and the worker pool is not handed to any other component.
// Mirrors the teacher's `cmd/sysbox-fs/main.go` Setup/wiring
// sequence, generalized to a reusable singleton with a mock-injection test
// seam.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/eclipse-score/mw-com-go/config"
	"github.com/eclipse-score/mw-com-go/discovery/facade"
	"github.com/eclipse-score/mw-com-go/domain"
	"github.com/eclipse-score/mw-com-go/identity"
)

// Config is the input to Initialize: either a path to a JSON manifest (in
// which case it is loaded via config.Loader) or an already-parsed
// *domain.Manifest, plus the filesystem roots the discovery and shm layers
// need.
type Config struct {
	DiscoveryRoot  string
	ShmRoot        string
	ManifestPath   string
	Manifest       *domain.Manifest
}

// Runtime is the process-wide RuntimeSingleton object. Only ever reached
// through Instance(), never constructed directly by callers.
type Runtime struct {
	cfg    Config
	facade domain.DiscoveryFacadeIface

	workerCtx    context.Context
	workerCancel context.CancelFunc
	workerWG     sync.WaitGroup
	closed       bool
}

var (
	singletonMu   sync.Mutex
	singleton     *Runtime
	singletonUsed bool
	mockRuntime   *Runtime
)

// Initialize constructs (or replaces, if not yet observed) the process-wide
// Runtime from cfg. Re-initialization before first access to Instance() is
// idempotent — last writer wins, with a logged warning, since nothing has
// observed the prior configuration yet. Re-initialization after first
// access is ignored with a logged warning.
func Initialize(cfg Config) (*Runtime, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singletonUsed {
		logrus.Warn("runtime: Initialize called after the runtime has already been observed; ignoring")
		return singleton, nil
	}

	if singleton != nil {
		logrus.Warn("runtime: Initialize called again before first access; replacing prior configuration")
		singleton.shutdownLocked()
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return nil, err
	}
	singleton = rt
	return singleton, nil
}

// Instance returns the process-wide Runtime, lazily constructing it from
// DefaultConfig() (empty manifest, conventional discovery/shm roots) if
// Initialize was never called. While a mock has been injected via
// SetMockInstance, Instance always returns the mock instead.
func Instance() *Runtime {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	singletonUsed = true

	if mockRuntime != nil {
		return mockRuntime
	}

	if singleton == nil {
		rt, err := newRuntime(DefaultConfig())
		if err != nil {
			// DefaultConfig's empty manifest can never fail loading (there is
			// no file to read); what remains is the discovery facade failing
			// to start, e.g. when no inotify watcher can be created.
			panic(fmt.Sprintf("runtime: failed to lazily construct default runtime: %v", err))
		}
		singleton = rt
	}
	return singleton
}

// SetMockInstance installs a mock Runtime that Instance() returns until
// ClearMockInstance is called — the test hook for mock injection.
func SetMockInstance(mock *Runtime) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	mockRuntime = mock
}

// ClearMockInstance removes a previously injected mock.
func ClearMockInstance() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	mockRuntime = nil
}

// DefaultConfig returns the conventional filesystem roots for a generic
// Linux host with an empty manifest — enough to exercise discovery and
// transport without a configuration file.
func DefaultConfig() Config {
	return Config{
		DiscoveryRoot: "/tmp/mw_com_lola/service_discovery",
		ShmRoot:       "/dev/shm/mw_com_lola",
		Manifest:      emptyManifest(),
	}
}

func newRuntime(cfg Config) (*Runtime, error) {
	manifest := cfg.Manifest
	if manifest == nil {
		if cfg.ManifestPath == "" {
			manifest = emptyManifest()
		} else {
			loaded, err := config.NewLoader().Load(cfg.ManifestPath)
			if err != nil {
				return nil, err
			}
			manifest = loaded
		}
	}

	resolver := config.NewResolver(manifest)

	f, err := facade.New(cfg.DiscoveryRoot, resolver)
	if err != nil {
		return nil, fmt.Errorf("runtime: constructing discovery facade: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	rt := &Runtime{
		cfg:          cfg,
		facade:       f,
		workerCtx:    ctx,
		workerCancel: cancel,
	}
	return rt, nil
}

func emptyManifest() *domain.Manifest {
	return &domain.Manifest{Deployments: map[string][]identity.InstanceIdentifier{}}
}

// Facade returns the process-wide DiscoveryFacade.
func (r *Runtime) Facade() domain.DiscoveryFacadeIface {
	return r.facade
}

// Context returns the root cancellation context handed to every blocking
// worker this runtime owns. Canceled by Close.
func (r *Runtime) Context() context.Context {
	return r.workerCtx
}

// Spawn runs fn on the runtime's worker pool, tracked so Close can wait for
// in-flight work to finish before tearing down bindings — mirrors the
// teacher's exitHandler's "deferring exit() to allow ... to dump logs"
// drain discipline (cmd/sysbox-fs/main.go), generalized to an explicit
// WaitGroup instead of a fixed sleep.
func (r *Runtime) Spawn(fn func(ctx context.Context)) {
	r.workerWG.Add(1)
	go func() {
		defer r.workerWG.Done()
		fn(r.workerCtx)
	}()
}

// Close cancels the worker context, waits for spawned work to drain, and
// tears down the discovery facade.
func (r *Runtime) Close() error {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	return r.shutdownLocked()
}

func (r *Runtime) shutdownLocked() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.workerCancel()
	r.workerWG.Wait()
	return r.facade.Close()
}
