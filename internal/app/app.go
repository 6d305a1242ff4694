package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/events"
	"github.com/vk/pipegrid/internal/operator"
	"github.com/vk/pipegrid/internal/registry"
	"github.com/vk/pipegrid/internal/telemetry"
	"github.com/vk/pipegrid/internal/validator"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	logCloser io.Closer
	config    *Config

	model    *config.Model
	funcs    *registry.Registry
	backends operator.Backends
	sinks    []events.Sink
	metrics  *telemetry.RunMetrics

	httpServer *http.Server
}

// Option customizes an App.
type Option func(*options)

type options struct {
	modules  []registry.Module
	backends operator.Backends
	sinks    []events.Sink
}

// WithModules replaces the built-in function modules.
func WithModules(modules ...registry.Module) Option {
	return func(o *options) { o.modules = modules }
}

// WithBackends sets the services behind llm, extract and img_gen pipes.
// Dry runs ignore them.
func WithBackends(b operator.Backends) Option {
	return func(o *options) { o.backends = b }
}

// WithSink adds an event sink to every run.
func WithSink(s events.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// NewApp is the constructor for the main application. It loads the library
// with loader, registers the function modules and validates the graph
// reachable from the root pipe. Registering a function twice is a
// programming error and panics.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, opts ...Option) (*App, error) {
	o := options{modules: coreModules()}
	for _, opt := range opts {
		opt(&o)
	}

	logger, logCloser, err := newLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, outW)
	if err != nil {
		return nil, err
	}
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, cfg.LibraryPath)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to load library: %w", err)
	}
	logger.Debug("Library loaded.", "files", len(model.Files), "pipes", model.Library.Len())

	funcs := registry.New(o.modules...)
	logger.Debug("All Go modules registered.", "count", len(o.modules))

	if err := funcs.ValidateRegistry(ctx, model.Library); err != nil {
		logCloser.Close()
		return nil, err
	}
	if err := validator.Validate(ctx, model.Concepts, model.Library, cfg.RootPipe); err != nil {
		logCloser.Close()
		return nil, err
	}

	return &App{
		outW:      outW,
		logger:    logger,
		logCloser: logCloser,
		config:    cfg,
		model:     model,
		funcs:     funcs,
		backends:  o.backends,
		sinks:     o.sinks,
		metrics:   telemetry.NewRunMetrics(),
	}, nil
}

// Model returns the loaded library. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}

// Metrics returns the run metrics served at /metrics.
func (a *App) Metrics() *telemetry.RunMetrics {
	return a.metrics
}

// Close releases the log file, if any.
func (a *App) Close() error {
	return a.logCloser.Close()
}
