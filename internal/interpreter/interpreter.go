package interpreter

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/events"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/operator"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/vk/pipegrid/internal/telemetry"
	"github.com/zclconf/go-cty/cty"
)

// Interpreter executes pipes from a frozen library. It holds no per-run
// state and is safe for concurrent Execute calls.
type Interpreter struct {
	concepts *concept.Registry
	library  *pipe.Library
	dispatch operator.Operator

	maxConcurrency int
	sink           events.Sink
	runMetrics     *telemetry.RunMetrics
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithMaxConcurrency bounds the concurrent branches of each parallel and
// batch. Zero means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(in *Interpreter) { in.maxConcurrency = n }
}

// WithSink publishes invocation events to s.
func WithSink(s events.Sink) Option {
	return func(in *Interpreter) { in.sink = s }
}

// WithRunMetrics records every execution in m.
func WithRunMetrics(m *telemetry.RunMetrics) Option {
	return func(in *Interpreter) { in.runMetrics = m }
}

// New creates an Interpreter. dispatch runs every leaf pipe.
func New(concepts *concept.Registry, library *pipe.Library, dispatch operator.Operator, opts ...Option) *Interpreter {
	in := &Interpreter{
		concepts: concepts,
		library:  library,
		dispatch: dispatch,
		sink:     events.Nop{},
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// ExecuteOption configures one execution.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	outputName string
}

// WithOutputName sets the name the output of a non-sequence root pipe is
// bound under.
func WithOutputName(name string) ExecuteOption {
	return func(o *executeOptions) { o.outputName = name }
}

// Result is the outcome of a successful execution.
type Result struct {
	RunID string
	// Memory is the root scope: the inputs plus every result bound at the
	// root.
	Memory *memory.Memory
	// MainOutput is the name of the last entry bound in Memory.
	MainOutput string
}

// Main returns the main output.
func (r *Result) Main() (*memory.Stuff, error) {
	return r.Memory.Lookup(r.MainOutput)
}

// Execute runs the root pipe against inputs.
//
// A root sequence runs its steps directly in the root scope, so every step
// result stays visible and the last one is the main output. Any other root
// pipe binds its output under the output name, by default the snake_case
// form of its output concept name.
func (in *Interpreter) Execute(ctx context.Context, rootCode string, inputs []*memory.Stuff, opts ...ExecuteOption) (*Result, error) {
	var o executeOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	runID := uuid.NewString()
	ctx = ctxlog.With(ctx, "run_id", runID)
	logger := ctxlog.FromContext(ctx)
	logger.Info("🚀 Starting execution.", "root", rootCode, "inputs", len(inputs))

	res, err := in.execute(ctx, runID, rootCode, inputs, o)
	duration := time.Since(start)

	status := string(events.Succeeded)
	if err != nil {
		status = string(events.Failed)
	}
	if in.runMetrics != nil {
		in.runMetrics.Record(rootCode, status, duration)
	}
	if err != nil {
		logger.Error("Execution failed.", "error", err, "duration", duration)
		return nil, err
	}
	logger.Info("🏁 Execution finished.", "main_output", res.MainOutput, "bindings", res.Memory.Len(), "duration", duration)
	return res, nil
}

func (in *Interpreter) execute(ctx context.Context, runID, rootCode string, inputs []*memory.Stuff, o executeOptions) (*Result, error) {
	def, err := in.library.Get(rootCode)
	if err != nil {
		return nil, err
	}

	conformed := make([]*memory.Stuff, 0, len(inputs))
	for _, s := range inputs {
		c, err := in.conformInput(s)
		if err != nil {
			return nil, err
		}
		conformed = append(conformed, c)
	}
	mem, err := memory.New(conformed...)
	if err != nil {
		return nil, err
	}

	inv := &invocation{runID: runID, def: def}
	if def.Kind() == pipe.KindSequence {
		inv.inPlace = true
	} else {
		inv.result = o.outputName
		if inv.result == "" {
			_, name := concept.SplitCode(def.Output.Concept)
			inv.result = snakeCase(name)
		}
	}

	if err := in.invoke(ctx, inv, mem); err != nil {
		return nil, err
	}
	main, ok := mem.Main()
	if !ok {
		return nil, fmt.Errorf("pipe '%s' bound no output", rootCode)
	}
	return &Result{RunID: runID, Memory: mem, MainOutput: main}, nil
}

func (in *Interpreter) conformInput(s *memory.Stuff) (*memory.Stuff, error) {
	if _, err := in.concepts.Resolve(s.Concept); err != nil {
		return nil, fmt.Errorf("input '%s': %w", s.Name, err)
	}
	if err := s.Multiplicity.Check(s.Len()); err != nil {
		return nil, fmt.Errorf("input '%s': %w", s.Name, err)
	}
	items := make([]cty.Value, len(s.Items))
	for i, item := range s.Items {
		v, err := in.concepts.Conform(s.Concept, item)
		if err != nil {
			return nil, fmt.Errorf("input '%s': %w", s.Name, err)
		}
		items[i] = v
	}
	out := *s
	out.Items = items
	return &out, nil
}

// snakeCase turns a concept name such as PageSummary into page_summary.
func snakeCase(name string) string {
	runes := []rune(name)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
				sb.WriteByte('_')
			}
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}
