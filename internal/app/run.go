package app

import (
	"context"
	"fmt"

	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/events"
	"github.com/vk/pipegrid/internal/interpreter"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/operator"
	"github.com/vk/pipegrid/internal/operator/dryrun"
	"github.com/vk/pipegrid/internal/template"
	"github.com/vk/pipegrid/internal/validator"
)

// Run binds the configured inputs, executes the root pipe and writes the
// resulting memory.
func (a *App) Run(ctx context.Context) (*interpreter.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.", "root", a.config.RootPipe)

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx)
		defer a.closeHealthcheckServer(ctx)
	}

	root, err := a.model.Library.Get(a.config.RootPipe)
	if err != nil {
		return nil, err
	}
	inputs, err := a.inputs(root.Domain)
	if err != nil {
		return nil, fmt.Errorf("failed to load inputs: %w", err)
	}
	if err := validator.ValidateInputs(a.model.Concepts, root, inputs); err != nil {
		return nil, err
	}
	logger.Debug("Run inputs validated.", "count", len(inputs))

	sinks := append([]events.Sink(nil), a.sinks...)
	if a.config.EventsURL != "" {
		notifier, err := events.NewNotifier(ctx, a.config.EventsURL, events.NotifierOptions{Namespace: a.config.EventsNamespace})
		if err != nil {
			return nil, fmt.Errorf("failed to connect event notifier: %w", err)
		}
		defer notifier.Close()
		sinks = append(sinks, notifier)
	}

	backends := a.backends
	if a.config.DryRun {
		logger.Info("Dry run: llm, extract and img_gen pipes are served by mocks.")
		backends = dryrun.New().Backends()
	}
	style, err := template.ParseTagStyle(a.config.TagStyle)
	if err != nil {
		return nil, err
	}
	dispatcher := operator.NewDispatcher(a.model.Concepts, a.funcs, backends, operator.WithTagStyle(style))

	interp := interpreter.New(a.model.Concepts, a.model.Library, dispatcher,
		interpreter.WithMaxConcurrency(a.config.MaxConcurrency),
		interpreter.WithSink(events.Fanout(sinks...)),
		interpreter.WithRunMetrics(a.metrics),
	)

	var execOpts []interpreter.ExecuteOption
	if a.config.OutputName != "" {
		execOpts = append(execOpts, interpreter.WithOutputName(a.config.OutputName))
	}
	res, err := interp.Execute(ctx, a.config.RootPipe, inputs, execOpts...)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	if err := a.writeResult(res); err != nil {
		return nil, err
	}
	logger.Debug("App.Run method finished.")
	return res, nil
}

// inputs gathers the inputs file and the inline inputs, in that order.
func (a *App) inputs(domain string) ([]*memory.Stuff, error) {
	var inputs []*memory.Stuff
	if a.config.InputsPath != "" {
		fromFile, err := LoadInputs(a.config.InputsPath, a.model.Concepts, domain)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, fromFile...)
	}
	inline, err := parseInputFlags(a.config.Inputs, a.model.Concepts, domain)
	if err != nil {
		return nil, err
	}
	return append(inputs, inline...), nil
}
