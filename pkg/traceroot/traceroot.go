// Package traceroot initializes and manages tracing, logging, and metrics
// for services reporting to TraceRoot.
package traceroot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/traceroot-ai/traceroot-sdk/internal/constants"
	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
	"github.com/traceroot-ai/traceroot-sdk/pkg/credentials"
	"github.com/traceroot-ai/traceroot-sdk/pkg/diagnostics"
	"github.com/traceroot-ai/traceroot-sdk/pkg/logging"
	"github.com/traceroot-ai/traceroot-sdk/pkg/runtime"
)

// Client provides access to the active runtime and the trace-correlated
// logger. A Client survives credential rotations and configuration reloads;
// the runtime behind it is swapped in place.
type Client struct {
	mu         sync.RWMutex
	runtime    *runtime.Runtime
	logger     *logging.Logger
	ops        *operationInstruments
	creds      *credentials.Manager
	refresher  *credentials.Refresher
	diagServer *diagnostics.Server
	baseCfg    config.Config
	lastDigest string
	lastReload time.Time

	metrics     *runtime.MetricsState
	opts        options
	internal    logging.Adapter
	watchCancel context.CancelFunc
	startTime   time.Time
}

// Init bootstraps the telemetry runtime from configuration sources.
// Callers must invoke Shutdown when finished.
func Init(ctx context.Context, opts ...Option) (*Client, error) {
	settings := defaultOptions()
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := settings.loadConfig(ctx)
	if err != nil {
		return nil, ewrap.Wrap(err, "load config")
	}

	internal := settings.internal
	if internal == nil {
		internal = logging.NewNoopAdapter()
	}

	metrics := runtime.NewMetricsState()

	var manager *credentials.Manager
	if cfg.CloudExportActive() {
		manager = credentials.NewManager(cfg, internal)
	}

	rt, err := runtime.New(ctx, cfg, runtime.Deps{Credentials: manager, Metrics: metrics})
	if err != nil {
		return nil, ewrap.Wrap(err, "init runtime")
	}

	ops, err := newOperationInstruments(cfg, rt.TracerProvider(), rt.MeterProvider())
	if err != nil {
		//nolint:errcheck // best-effort cleanup before returning the instrument error
		_ = rt.Shutdown(ctx)

		return nil, ewrap.Wrap(err, "init operation instruments")
	}

	now := time.Now().UTC()

	client := &Client{
		runtime:    rt,
		logger:     newAppLogger(cfg, rt),
		ops:        ops,
		creds:      manager,
		baseCfg:    cfg,
		lastReload: now,
		metrics:    metrics,
		opts:       settings,
		internal:   internal,
		startTime:  now,
	}

	digest, err := configDigest(cfg)
	if err != nil {
		internal.Error(ctx, err, "config digest unavailable")
	}

	client.lastDigest = digest

	err = client.startConfigWatcher(ctx)
	if err != nil {
		internal.Error(ctx, err, "config watcher disabled")
	}

	client.startRefresher(ctx, manager)

	if cfg.EnableDiagnostics {
		server := diagnostics.NewServer(cfg, client)

		err := server.Start(ctx)
		if err != nil {
			//nolint:errcheck // best-effort cleanup before returning the start error
			_ = client.Shutdown(ctx)

			return nil, ewrap.Wrap(err, "start diagnostics server")
		}

		client.diagServer = server
	}

	return client, nil
}

// Shutdown flushes telemetry, stops background workers, and releases resources.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.watchCancel != nil {
		c.watchCancel()
	}

	c.stopRefresher(ctx)

	var errs []error

	c.mu.RLock()
	server := c.diagServer
	c.mu.RUnlock()

	if server != nil {
		err := server.Shutdown(ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	err := c.Runtime().Shutdown(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Runtime exposes the underlying runtime for advanced integrations.
func (c *Client) Runtime() *runtime.Runtime {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.runtime
}

// Config returns the effective configuration snapshot.
func (c *Client) Config() config.Config {
	return c.Runtime().Config()
}

// Logger returns the trace-correlated application logger.
func (c *Client) Logger() *logging.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.logger
}

// NamedLogger returns a child of the application logger carrying name.
func (c *Client) NamedLogger(name string) *logging.Logger {
	return c.Logger().Named(name)
}

// Tracer returns a tracer from the active provider.
func (c *Client) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return c.Runtime().Tracer(name, opts...)
}

// Meter returns a meter from the active provider.
func (c *Client) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return c.Runtime().Meter(name, opts...)
}

// Snapshot implements diagnostics.SnapshotProvider, layering client-level
// bookkeeping over the runtime snapshot.
func (c *Client) Snapshot() diagnostics.Snapshot {
	snap := c.Runtime().Snapshot()

	c.mu.RLock()
	defer c.mu.RUnlock()

	snap.StartTime = c.startTime
	snap.LastReloadTime = c.lastReload
	snap.ConfigReloadCount = c.metrics.ConfigReloads()

	if c.creds != nil {
		snap.CredentialExpiry = c.creds.ExpiresAt()
	}

	return snap
}

func (c *Client) startConfigWatcher(ctx context.Context) error {
	if !c.opts.watchConfig {
		return nil
	}

	path := c.opts.fileWatcherPath()
	if path == "" {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ewrap.Wrap(err, "resolve config path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ewrap.Wrap(err, "create config watcher")
	}

	dir := filepath.Dir(abs)

	err = watcher.Add(dir)
	if err != nil {
		closeErr := watcher.Close()
		if closeErr != nil {
			c.internal.Error(ctx, closeErr, "close config watcher after add failure")
		}

		return ewrap.Wrap(err, "watch config directory")
	}

	ctx, cancel := context.WithCancel(ctx)

	c.watchCancel = cancel
	go c.watchLoop(ctx, watcher, abs)

	return nil
}

// watchLoop monitors configuration changes and triggers runtime reloads.
//
//nolint:revive // cognitive-complexity: Breaking this up would reduce clarity.
func (c *Client) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string) {
	defer func() {
		closeErr := watcher.Close()
		if closeErr != nil {
			c.internal.Error(ctx, closeErr, "close config watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Name != target {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			c.internal.Info(ctx, "configuration change detected", attribute.String("path", target))
			c.reloadConfig(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			c.internal.Error(ctx, err, "config watcher error")
		}
	}
}

func (c *Client) reloadConfig(ctx context.Context) {
	cfg, err := c.opts.loadConfig(ctx)
	if err != nil {
		c.internal.Error(ctx, err, "reload config failed")

		return
	}

	digest, err := configDigest(cfg)
	if err == nil && digest == c.currentDigest() {
		return
	}

	var manager *credentials.Manager
	if cfg.CloudExportActive() {
		manager = credentials.NewManager(cfg, c.internal)
	}

	err = c.rebuild(ctx, cfg, manager, digest, "configuration reloaded")
	if err != nil {
		return
	}

	c.metrics.IncrementConfigReloads()

	c.stopRefresher(ctx)
	c.startRefresher(ctx, manager)
}

func (c *Client) onRotate(ctx context.Context) credentials.RotateFunc {
	return func(_ credentials.Credentials) {
		c.metrics.IncrementCredentialRotations()

		//nolint:errcheck // rebuild reports failures through the internal logger
		_ = c.rebuild(ctx, c.baseConfig(), c.manager(), c.currentDigest(), "credentials rotated")
	}
}

// rebuild constructs a runtime for cfg and swaps it in, shutting down the
// previous one. The logger is rebuilt so new records flow to the new provider.
func (c *Client) rebuild(ctx context.Context, cfg config.Config, manager *credentials.Manager, digest, reason string) error {
	rt, err := runtime.New(ctx, cfg, runtime.Deps{Credentials: manager, Metrics: c.metrics})
	if err != nil {
		c.internal.Error(ctx, err, "runtime rebuild failed")

		return err
	}

	logger := newAppLogger(cfg, rt)

	ops, err := newOperationInstruments(cfg, rt.TracerProvider(), rt.MeterProvider())
	if err != nil {
		c.internal.Error(ctx, err, "rebuild operation instruments")
	}

	c.mu.Lock()
	old := c.runtime
	c.runtime = rt
	c.logger = logger

	if ops != nil {
		c.ops = ops
	}

	c.creds = manager
	c.baseCfg = cfg
	c.lastDigest = digest
	c.lastReload = time.Now().UTC()
	c.mu.Unlock()

	if old != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, constants.DefaultShutdownTimeout)
		defer cancel()

		err := old.Shutdown(shutdownCtx)
		if err != nil {
			c.internal.Error(shutdownCtx, err, "shutdown previous runtime")
		}
	}

	c.internal.Info(ctx, reason)

	return nil
}

func (c *Client) startRefresher(ctx context.Context, manager *credentials.Manager) {
	if manager == nil {
		return
	}

	refresher, err := credentials.NewRefresher(manager, constants.CredentialRefreshInterval, c.onRotate(ctx), c.internal)
	if err != nil {
		c.internal.Error(ctx, err, "credential refresher disabled")

		return
	}

	err = refresher.Start(ctx)
	if err != nil {
		c.internal.Error(ctx, err, "credential refresher disabled")

		return
	}

	c.mu.Lock()
	c.refresher = refresher
	c.mu.Unlock()
}

func (c *Client) stopRefresher(ctx context.Context) {
	c.mu.Lock()
	refresher := c.refresher
	c.refresher = nil
	c.mu.Unlock()

	if refresher == nil {
		return
	}

	err := refresher.Stop(ctx)
	if err != nil {
		c.internal.Error(ctx, err, "stop credential refresher")
	}
}

func (c *Client) baseConfig() config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.baseCfg
}

func (c *Client) manager() *credentials.Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.creds
}

func (c *Client) currentDigest() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastDigest
}

func newAppLogger(cfg config.Config, rt *runtime.Runtime) *logging.Logger {
	var provider otellog.LoggerProvider
	if lp := rt.LoggerProvider(); lp != nil {
		provider = lp
	}

	return logging.NewLogger(cfg, provider)
}

// configDigest fingerprints a configuration so no-op file events do not
// trigger a runtime rebuild.
func configDigest(cfg config.Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", ewrap.Wrap(err, "marshal config for digest")
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}
