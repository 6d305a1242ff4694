package interpreter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/events"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/vk/pipegrid/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// invocation is one run of one pipe.
type invocation struct {
	id     string
	runID  string
	def    *pipe.Definition
	result string
	step   *int
	index  *int
	branch string
	// inPlace runs a root sequence directly in the root scope. Its steps
	// bind their own results there and nothing is merged at the end.
	inPlace bool
	// discardExports keeps only the result of a parallel branch or batch
	// element; the extra variables it binds stay in its scope.
	discardExports bool

	state events.State
	start time.Time
}

var transitions = map[events.State][]events.State{
	events.Pending: {events.Running, events.Failed},
	events.Running: {events.Succeeded, events.Failed},
}

// advance moves the invocation to the next state. Illegal transitions are
// bugs in the interpreter.
func (inv *invocation) advance(to events.State) {
	for _, allowed := range transitions[inv.state] {
		if allowed == to {
			inv.state = to
			return
		}
	}
	panic(fmt.Sprintf("invocation of pipe '%s': invalid state transition %s -> %s", inv.def.Code, inv.state, to))
}

// child prepares the invocation of a sub-pipe in the same run.
func (inv *invocation) child(def *pipe.Definition, result string) *invocation {
	return &invocation{runID: inv.runID, def: def, result: result}
}

// invoke runs one pipe on scope and, on success, merges its result and
// exports into scope.
func (in *Interpreter) invoke(ctx context.Context, inv *invocation, scope *memory.Memory) error {
	return in.invokeInto(ctx, inv, scope, scope)
}

// invokeInto runs one pipe on the inputs it declares, read from from, and
// on success merges its exports and then its result into into.
func (in *Interpreter) invokeInto(ctx context.Context, inv *invocation, from, into *memory.Memory) error {
	inv.id = uuid.NewString()
	inv.state = events.Pending
	inv.start = time.Now()
	in.publish(ctx, inv, nil)

	kind := inv.def.Kind()
	attrs := []attribute.KeyValue{
		attribute.String("pipe.code", inv.def.Code),
		attribute.String("pipe.kind", string(kind)),
		attribute.String("run.id", inv.runID),
	}
	logArgs := []any{"pipe", inv.def.Code, "kind", kind}
	if inv.index != nil {
		attrs = append(attrs, attribute.Int("batch.index", *inv.index))
		logArgs = append(logArgs, "index", *inv.index)
	}
	if inv.branch != "" {
		attrs = append(attrs, attribute.String("pipe.branch", inv.branch))
	}
	ctx, span := telemetry.Tracer().Start(ctx, "pipe.run", trace.WithAttributes(attrs...))
	defer span.End()
	ctx = ctxlog.With(ctx, logArgs...)
	logger := ctxlog.FromContext(ctx)

	if err := ctx.Err(); err != nil {
		return in.fail(ctx, inv, span, err)
	}

	inv.advance(events.Running)
	in.publish(ctx, inv, nil)
	logger.Info("▶️ Starting pipe.")

	out, exports, err := in.run(ctx, inv, from)
	if err == nil && !inv.inPlace {
		err = merge(inv, into, out, exports)
	}
	if err != nil {
		return in.fail(ctx, inv, span, err)
	}

	inv.advance(events.Succeeded)
	duration := time.Since(inv.start)
	span.SetStatus(codes.Ok, "")
	telemetry.RecordPipe(ctx, telemetry.PipeMetrics{
		PipeCode: inv.def.Code,
		Kind:     string(kind),
		Outcome:  string(events.Succeeded),
		Duration: duration,
	})
	in.publish(ctx, inv, nil)
	logger.Info("✅ Finished pipe.", "result", inv.result, "duration", duration)
	return nil
}

// merge exposes what a finished invocation binds in into, all at once.
func merge(inv *invocation, into *memory.Memory, out *memory.Stuff, exports []*memory.Stuff) error {
	var entries []*memory.Stuff
	if !inv.discardExports {
		entries = append(entries, exports...)
	}
	if out != nil {
		entries = append(entries, out.Rename(inv.result))
	}
	if len(entries) == 0 {
		return nil
	}
	return into.MergeResults(entries...)
}

func (in *Interpreter) fail(ctx context.Context, inv *invocation, span trace.Span, cause error) error {
	inv.advance(events.Failed)
	err := &PipeError{
		PipeCode: inv.def.Code,
		Kind:     inv.def.Kind(),
		Step:     inv.step,
		Index:    inv.index,
		Branch:   inv.branch,
		Err:      cause,
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	telemetry.RecordPipe(ctx, telemetry.PipeMetrics{
		PipeCode: inv.def.Code,
		Kind:     string(inv.def.Kind()),
		Outcome:  string(events.Failed),
		Duration: time.Since(inv.start),
	})
	in.publish(ctx, inv, err)

	logger := ctxlog.FromContext(ctx)
	var inner *PipeError
	if errors.As(cause, &inner) {
		logger.Debug("Pipe failed because a child pipe failed.", "child", inner.PipeCode)
	} else {
		logger.Error("❌ Pipe failed.", "error", cause)
	}
	return err
}

func (in *Interpreter) publish(ctx context.Context, inv *invocation, err error) {
	e := events.Event{
		RunID:        inv.runID,
		InvocationID: inv.id,
		Pipe:         inv.def.Code,
		Kind:         string(inv.def.Kind()),
		State:        inv.state,
		Result:       inv.result,
		Index:        inv.index,
		Time:         time.Now(),
	}
	if inv.state.IsTerminal() {
		e.Duration = time.Since(inv.start)
	}
	if err != nil {
		e.Error = err.Error()
	}
	in.sink.Publish(ctx, e)
}
