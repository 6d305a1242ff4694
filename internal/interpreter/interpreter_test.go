package interpreter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/events"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/multiplicity"
	"github.com/vk/pipegrid/internal/operator"
	"github.com/vk/pipegrid/internal/pipe"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"
)

func funcPipe(code, fn string, out pipe.Binding, inputs ...pipe.Input) *pipe.Definition {
	return &pipe.Definition{Code: code, Inputs: inputs, Output: out, Spec: &pipe.FuncSpec{FunctionName: fn}}
}

func enrichBatch(h *harness) {
	h.add(
		funcPipe("enrich_one", "enrich", one("shop.EnrichedItem"), input("item", one("shop.Item"))),
		&pipe.Definition{
			Code:   "enrich_all",
			Inputs: []pipe.Input{input("items", many("shop.Item"))},
			Output: many("shop.EnrichedItem"),
			Spec:   &pipe.BatchSpec{Branch: "enrich_one", InputListName: "items", InputItemName: "item"},
		},
	)
}

// pipeErrors returns every PipeError in the chain, outermost first.
func pipeErrors(err error) []*PipeError {
	var out []*PipeError
	for ; err != nil; err = errors.Unwrap(err) {
		if pe, ok := err.(*PipeError); ok {
			out = append(out, pe)
		}
	}
	return out
}

func TestExecute_DocumentToSummary(t *testing.T) {
	h := newHarness(t)
	h.add(
		&pipe.Definition{
			Code:   "extract_pages",
			Inputs: []pipe.Input{input("document", one(concept.PDF))},
			Output: many(concept.Page),
			Spec:   &pipe.ExtractSpec{},
		},
		&pipe.Definition{
			Code:   "summarize_pages",
			Inputs: []pipe.Input{input("pages", many(concept.Page))},
			Output: one(concept.Text),
			Spec:   &pipe.LLMSpec{Prompt: "Summarize these pages:\n@pages"},
		},
		&pipe.Definition{
			Code:   "process_document",
			Inputs: []pipe.Input{input("document", one(concept.PDF))},
			Output: one(concept.Text),
			Spec: &pipe.SequenceSpec{Steps: []pipe.Step{
				{Pipe: "extract_pages", Result: "pages"},
				{Pipe: "summarize_pages", Result: "summary"},
			}},
		},
	)

	doc := stuff(t, "document", concept.PDF, multiplicity.Single, "file:///tmp/report.pdf")
	res, err := h.interpreter().Execute(testContext(), "process_document", []*memory.Stuff{doc})
	require.NoError(t, err)

	assert.Equal(t, []string{"document", "pages", "summary"}, res.Memory.Names())
	assert.Equal(t, "summary", res.MainOutput)

	pages, err := res.Memory.Lookup("pages")
	require.NoError(t, err)
	assert.Equal(t, 3, pages.Len())
	assert.Equal(t, concept.Page, pages.Concept)

	summary, err := res.Main()
	require.NoError(t, err)
	assert.False(t, summary.IsList())
	assert.Equal(t, "summarize_pages", summary.ProducedBy)

	input, err := res.Memory.Lookup("document")
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/report.pdf", input.Single().GetAttr("url").AsString(), "caller inputs are conformed to their concept")

	assert.Equal(t, 1, h.backend.Calls("extract_pages"))
	assert.Equal(t, 1, h.backend.Calls("summarize_pages"))
}

func TestExecute_BatchPreservesOrder(t *testing.T) {
	h := newHarness(t)
	enrichBatch(h)
	h.spies.delays["a"] = 20 * time.Millisecond

	items := stuff(t, "items", "shop.Item", multiplicity.List(), "a", "b", "c")
	res, err := h.interpreter().Execute(testContext(), "enrich_all", []*memory.Stuff{items})
	require.NoError(t, err)

	assert.Equal(t, "enriched_item", res.MainOutput)
	out, err := res.Main()
	require.NoError(t, err)
	assert.Equal(t, []string{"enriched a", "enriched b", "enriched c"}, texts(t, out))
	assert.Equal(t, "shop.EnrichedItem", out.Concept)
	assert.Equal(t, 3, h.spies.Calls("enrich"))
}

func TestExecute_BatchOfNothing(t *testing.T) {
	h := newHarness(t)
	enrichBatch(h)

	items := stuff(t, "items", "shop.Item", multiplicity.List())
	res, err := h.interpreter().Execute(testContext(), "enrich_all", []*memory.Stuff{items}, WithOutputName("enriched"))
	require.NoError(t, err)

	out, err := res.Main()
	require.NoError(t, err)
	assert.Equal(t, "enriched", out.Name)
	assert.Zero(t, out.Len())
	assert.Zero(t, h.spies.Calls("enrich"))
}

func TestInvoke_BatchFailureBindsNothing(t *testing.T) {
	h := newHarness(t)
	enrichBatch(h)
	h.spies.failOn = "b"
	in := h.interpreter()

	items := stuff(t, "items", "shop.Item", multiplicity.List(), "a", "b", "c")
	mem, err := memory.New(items)
	require.NoError(t, err)
	def, err := h.lib.Get("enrich_all")
	require.NoError(t, err)

	err = in.invoke(testContext(), &invocation{runID: "run", def: def, result: "enriched"}, mem)
	require.Error(t, err)

	chain := pipeErrors(err)
	require.Len(t, chain, 2)
	assert.Equal(t, "enrich_all", chain[0].PipeCode)
	assert.Equal(t, "enrich_one", chain[1].PipeCode)
	require.NotNil(t, chain[1].Index)
	assert.Equal(t, 1, *chain[1].Index)
	assert.ErrorContains(t, err, "cannot enrich b")

	assert.False(t, mem.Has("enriched"))
	assert.Equal(t, []string{"items"}, mem.Names())
}

func TestExecute_BatchOrderProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		delays := rapid.SliceOfN(rapid.IntRange(0, 4), n, n).Draw(rt, "delays")

		h := newHarness(t)
		enrichBatch(h)
		names := make([]string, n)
		want := make([]string, n)
		for i := range n {
			names[i] = fmt.Sprintf("item-%d", i)
			want[i] = "enriched " + names[i]
			h.spies.delays[names[i]] = time.Duration(delays[i]) * time.Millisecond
		}

		items := stuff(t, "items", "shop.Item", multiplicity.List(), names...)
		res, err := h.interpreter(WithMaxConcurrency(3)).Execute(testContext(), "enrich_all", []*memory.Stuff{items})
		if err != nil {
			rt.Fatalf("execute: %v", err)
		}
		out, err := res.Main()
		if err != nil {
			rt.Fatalf("main output: %v", err)
		}
		got := texts(t, out)
		for i := range want {
			if got[i] != want[i] {
				rt.Fatalf("element %d: got %q, want %q", i, got[i], want[i])
			}
		}
	})
}

func TestExecute_InlineBatchStep(t *testing.T) {
	h := newHarness(t)
	h.add(
		funcPipe("enrich_one", "enrich", one("shop.EnrichedItem"), input("item", one("shop.Item"))),
		&pipe.Definition{
			Code:   "enrich_everything",
			Inputs: []pipe.Input{input("items", many("shop.Item"))},
			Output: many("shop.EnrichedItem"),
			Spec: &pipe.SequenceSpec{Steps: []pipe.Step{
				{Pipe: "enrich_one", Result: "enriched", BatchOver: "items", BatchAs: "item"},
			}},
		},
	)

	items := stuff(t, "items", "shop.Item", multiplicity.List(), "x", "y")
	res, err := h.interpreter().Execute(testContext(), "enrich_everything", []*memory.Stuff{items})
	require.NoError(t, err)

	out, err := res.Main()
	require.NoError(t, err)
	assert.Equal(t, "enriched", out.Name)
	assert.True(t, out.IsList())
	assert.Equal(t, []string{"enriched x", "enriched y"}, texts(t, out))
	assert.False(t, res.Memory.Has("item"), "the batch item stays in its fork")
}

func conditionPipes(h *harness, defaultOutcome, alias string) {
	h.add(
		funcPipe("small_label", "label_small", one(concept.Text)),
		funcPipe("large_label", "label_large", one(concept.Text)),
		&pipe.Definition{
			Code:   "route_by_size",
			Inputs: []pipe.Input{input("size", one(concept.Text))},
			Output: one(concept.Text),
			Spec: &pipe.ConditionSpec{
				Expression:     "size",
				Outcomes:       map[string]string{"small": "small_label", "large": "large_label"},
				DefaultOutcome: defaultOutcome,
				AliasOutcomeTo: alias,
			},
		},
	)
}

func TestExecute_ConditionRunsChosenPipeOnce(t *testing.T) {
	h := newHarness(t)
	conditionPipes(h, pipe.FailOutcome, "route")

	size := stuff(t, "size", concept.Text, multiplicity.Single, "small")
	res, err := h.interpreter().Execute(testContext(), "route_by_size", []*memory.Stuff{size}, WithOutputName("label"))
	require.NoError(t, err)

	assert.Equal(t, 1, h.spies.Calls("label_small"))
	assert.Zero(t, h.spies.Calls("label_large"))
	assert.Equal(t, []string{"size", "route", "label"}, res.Memory.Names())

	label, err := res.Main()
	require.NoError(t, err)
	assert.Equal(t, "label_small", label.Single().AsString())
	route, err := res.Memory.Lookup("route")
	require.NoError(t, err)
	assert.Equal(t, "small", route.Single().AsString())
}

func TestExecute_ConditionDefaultOutcome(t *testing.T) {
	h := newHarness(t)
	conditionPipes(h, "large_label", "")

	size := stuff(t, "size", concept.Text, multiplicity.Single, "medium")
	res, err := h.interpreter().Execute(testContext(), "route_by_size", []*memory.Stuff{size})
	require.NoError(t, err)

	assert.Equal(t, 1, h.spies.Calls("label_large"))
	assert.Zero(t, h.spies.Calls("label_small"))
	assert.Equal(t, "text", res.MainOutput)
}

func TestExecute_ConditionUnmatchedFails(t *testing.T) {
	h := newHarness(t)
	conditionPipes(h, pipe.FailOutcome, "")

	size := stuff(t, "size", concept.Text, multiplicity.Single, "medium")
	_, err := h.interpreter().Execute(testContext(), "route_by_size", []*memory.Stuff{size})

	var unmatched *UnmatchedOutcomeError
	require.ErrorAs(t, err, &unmatched)
	assert.Equal(t, "medium", unmatched.Outcome)
	assert.Equal(t, []string{"large", "small"}, unmatched.Known)
	assert.Zero(t, h.spies.Calls("label_small"))
	assert.Zero(t, h.spies.Calls("label_large"))
}

func TestExecute_ConditionEmptyOutcome(t *testing.T) {
	h := newHarness(t)
	conditionPipes(h, "small_label", "")

	size := stuff(t, "size", concept.Text, multiplicity.Single, "")
	_, err := h.interpreter().Execute(testContext(), "route_by_size", []*memory.Stuff{size})

	var evalErr *ConditionEvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Zero(t, h.spies.Calls("label_small"))
}

func parallelPipes(h *harness, addEach bool, combined string) {
	out := one(concept.Text)
	if combined != "" {
		out = one(combined)
	}
	h.add(
		funcPipe("short_pipe", "short", one(concept.Text), input("topic", one(concept.Text))),
		funcPipe("long_pipe", "long", one(concept.Text), input("topic", one(concept.Text))),
		&pipe.Definition{
			Code:   "both_takes",
			Inputs: []pipe.Input{input("topic", one(concept.Text))},
			Output: out,
			Spec: &pipe.ParallelSpec{
				Branches: []pipe.Branch{
					{Pipe: "short_pipe", Result: "short_take"},
					{Pipe: "long_pipe", Result: "long_take"},
				},
				AddEachOutput:  addEach,
				CombinedOutput: combined,
			},
		},
	)
}

func TestExecute_ParallelAddEachAndCombined(t *testing.T) {
	h := newHarness(t)
	parallelPipes(h, true, "shop.Digest")

	topic := stuff(t, "topic", concept.Text, multiplicity.Single, "go")
	res, err := h.interpreter().Execute(testContext(), "both_takes", []*memory.Stuff{topic})
	require.NoError(t, err)

	assert.Equal(t, []string{"topic", "short_take", "long_take", "digest"}, res.Memory.Names())
	digest, err := res.Main()
	require.NoError(t, err)
	assert.Equal(t, "shop.Digest", digest.Concept)
	assert.Equal(t, "short go", digest.Single().GetAttr("short_take").AsString())
	assert.Equal(t, "long go", digest.Single().GetAttr("long_take").AsString())
}

func TestExecute_ParallelCombinedOnly(t *testing.T) {
	h := newHarness(t)
	parallelPipes(h, false, "shop.Digest")

	topic := stuff(t, "topic", concept.Text, multiplicity.Single, "go")
	res, err := h.interpreter().Execute(testContext(), "both_takes", []*memory.Stuff{topic})
	require.NoError(t, err)
	assert.Equal(t, []string{"topic", "digest"}, res.Memory.Names())
}

func TestInvoke_ParallelFailureMergesNothing(t *testing.T) {
	h := newHarness(t)
	h.add(
		funcPipe("explode", "boom", one(concept.Text)),
		funcPipe("linger", "wait_for_cancel", one(concept.Text)),
		funcPipe("short_pipe", "short", one(concept.Text), input("topic", one(concept.Text))),
		&pipe.Definition{
			Code:   "fragile",
			Inputs: []pipe.Input{input("topic", one(concept.Text))},
			Output: one(concept.Text),
			Spec: &pipe.ParallelSpec{
				Branches: []pipe.Branch{
					{Pipe: "short_pipe", Result: "short_take"},
					{Pipe: "linger", Result: "lingered"},
					{Pipe: "explode", Result: "exploded"},
				},
				AddEachOutput: true,
			},
		},
	)
	in := h.interpreter()
	def, err := h.lib.Get("fragile")
	require.NoError(t, err)
	mem, err := memory.New(stuff(t, "topic", concept.Text, multiplicity.Single, "go"))
	require.NoError(t, err)

	err = in.invoke(testContext(), &invocation{runID: "run", def: def, result: "out"}, mem)
	require.Error(t, err)
	assert.ErrorContains(t, err, "boom")

	assert.Equal(t, []string{"topic"}, mem.Names())
	assert.Equal(t, 1, h.recorder.Count("linger", events.Failed), "siblings are cancelled")
	assert.Zero(t, h.recorder.Count("linger", events.Succeeded))

	chain := pipeErrors(err)
	require.Len(t, chain, 2)
	assert.Equal(t, "exploded", chain[1].Branch)
}

func TestExecute_NestedSequenceScopeIsolation(t *testing.T) {
	h := newHarness(t)
	h.add(
		funcPipe("short_pipe", "short", one(concept.Text), input("topic", one(concept.Text))),
		funcPipe("long_pipe", "long", one(concept.Text), input("topic", one(concept.Text))),
		&pipe.Definition{
			Code:   "inner",
			Inputs: []pipe.Input{input("topic", one(concept.Text))},
			Output: one(concept.Text),
			Spec: &pipe.SequenceSpec{Steps: []pipe.Step{
				{Pipe: "short_pipe", Result: "scratch"},
				{Pipe: "long_pipe", Result: "final"},
			}},
		},
		&pipe.Definition{
			Code:   "outer",
			Inputs: []pipe.Input{input("topic", one(concept.Text))},
			Output: one(concept.Text),
			Spec: &pipe.SequenceSpec{Steps: []pipe.Step{
				{Pipe: "inner", Result: "answer"},
			}},
		},
	)

	topic := stuff(t, "topic", concept.Text, multiplicity.Single, "go")
	res, err := h.interpreter().Execute(testContext(), "outer", []*memory.Stuff{topic})
	require.NoError(t, err)

	assert.Equal(t, []string{"topic", "answer"}, res.Memory.Names())
	answer, err := res.Main()
	require.NoError(t, err)
	assert.Equal(t, "long go", answer.Single().AsString())
	assert.Equal(t, "answer", answer.Name)
}

func TestExecute_InputContract(t *testing.T) {
	h := newHarness(t)
	parallelPipes(h, true, "")

	_, err := h.interpreter().Execute(testContext(), "both_takes", nil)
	var contract *operator.InputContractError
	require.ErrorAs(t, err, &contract)
	assert.Equal(t, "topic", contract.Variable)
}

func TestExecute_UnknownRoot(t *testing.T) {
	h := newHarness(t)
	_, err := h.interpreter().Execute(testContext(), "nothing_here", nil)
	var unknown *pipe.UnknownPipeError
	require.ErrorAs(t, err, &unknown)
}

func TestExecute_CancelledContext(t *testing.T) {
	h := newHarness(t)
	enrichBatch(h)
	ctx, cancel := context.WithCancel(testContext())
	cancel()

	items := stuff(t, "items", "shop.Item", multiplicity.List(), "a")
	_, err := h.interpreter().Execute(ctx, "enrich_all", []*memory.Stuff{items})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.spies.Calls("enrich"))
}

func TestExecute_EventTransitions(t *testing.T) {
	h := newHarness(t)
	enrichBatch(h)
	h.spies.failOn = "b"

	items := stuff(t, "items", "shop.Item", multiplicity.List(), "a", "b")
	_, err := h.interpreter(WithMaxConcurrency(1)).Execute(testContext(), "enrich_all", []*memory.Stuff{items})
	require.Error(t, err)

	succeeded := []events.State{events.Pending, events.Running, events.Succeeded}
	failed := []events.State{events.Pending, events.Running, events.Failed}
	for id, states := range h.recorder.Transitions() {
		if states[len(states)-1] == events.Succeeded {
			assert.Equal(t, succeeded, states, "invocation %s", id)
		} else {
			assert.Equal(t, failed, states, "invocation %s", id)
		}
	}
	assert.Equal(t, 1, h.recorder.Count("enrich_all", events.Failed))
	assert.Equal(t, 1, h.recorder.Count("enrich_one", events.Failed))
	assert.Zero(t, h.recorder.Count("enrich_all", events.Succeeded))

	for _, e := range h.recorder.Events() {
		if e.Pipe == "enrich_one" {
			require.NotNil(t, e.Index)
		}
	}
}

func TestExecute_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = provider.Shutdown(context.Background())
	})

	h := newHarness(t)
	enrichBatch(h)
	items := stuff(t, "items", "shop.Item", multiplicity.List(), "a", "b")
	_, err := h.interpreter().Execute(testContext(), "enrich_all", []*memory.Stuff{items})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	indexed := 0
	for _, s := range spans {
		assert.Equal(t, "pipe.run", s.Name())
		for _, kv := range s.Attributes() {
			if kv.Key == "batch.index" {
				indexed++
			}
		}
	}
	assert.Equal(t, 2, indexed)
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Text":        "text",
		"PageSummary": "page_summary",
		"PDF":         "pdf",
		"PDFReport":   "pdf_report",
		"Invoice2Pdf": "invoice2_pdf",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, snakeCase(in))
		})
	}
}
