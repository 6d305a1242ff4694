package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/multiplicity"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/vk/pipegrid/internal/validator"
	"pgregory.net/rapid"
)

// validateAndExecute runs root only after the library passes validation.
func validateAndExecute(t *testing.T, h *harness, root string, inputs ...*memory.Stuff) (*Result, error) {
	t.Helper()
	require.NoError(t, validator.Validate(testContext(), h.concepts, h.lib, root))
	return h.interpreter().Execute(testContext(), root, inputs)
}

func lookupText(t *testing.T, m *memory.Memory, name string) string {
	t.Helper()
	s, err := m.Lookup(name)
	require.NoError(t, err)
	return s.Single().AsString()
}

func TestExecute_NestedSequenceReusesCallerNames(t *testing.T) {
	h := newHarness(t)
	h.add(
		funcPipe("short_pipe", "short", one(concept.Text), input("topic", one(concept.Text))),
		funcPipe("long_pipe", "long", one(concept.Text), input("topic", one(concept.Text))),
		&pipe.Definition{
			Code:   "inner",
			Inputs: []pipe.Input{input("topic", one(concept.Text))},
			Output: one(concept.Text),
			Spec: &pipe.SequenceSpec{Steps: []pipe.Step{
				{Pipe: "short_pipe", Result: "summary"},
				{Pipe: "long_pipe", Result: "final"},
			}},
		},
		&pipe.Definition{
			Code:   "outer",
			Inputs: []pipe.Input{input("topic", one(concept.Text))},
			Output: one(concept.Text),
			Spec: &pipe.SequenceSpec{Steps: []pipe.Step{
				{Pipe: "short_pipe", Result: "summary"},
				{Pipe: "inner", Result: "answer"},
			}},
		},
	)

	res, err := validateAndExecute(t, h, "outer", stuff(t, "topic", concept.Text, multiplicity.Single, "go"))
	require.NoError(t, err)

	assert.Equal(t, []string{"topic", "summary", "answer"}, res.Memory.Names())
	assert.Equal(t, "short go", lookupText(t, res.Memory, "summary"))
	assert.Equal(t, "long go", lookupText(t, res.Memory, "answer"))
}

func TestExecute_BatchItemNameHeldByCaller(t *testing.T) {
	h := newHarness(t)
	enrichBatch(h)
	h.add(&pipe.Definition{
		Code:   "enrich_with_extra",
		Inputs: []pipe.Input{input("items", many("shop.Item")), input("item", one("shop.Item"))},
		Output: one("shop.EnrichedItem"),
		Spec: &pipe.SequenceSpec{Steps: []pipe.Step{
			{Pipe: "enrich_all", Result: "enriched"},
			{Pipe: "enrich_one", Result: "extra"},
		}},
	})

	res, err := validateAndExecute(t, h, "enrich_with_extra",
		stuff(t, "items", "shop.Item", multiplicity.List(), "a", "b"),
		stuff(t, "item", "shop.Item", multiplicity.Single, "solo"),
	)
	require.NoError(t, err)

	enriched, err := res.Memory.Lookup("enriched")
	require.NoError(t, err)
	assert.Equal(t, []string{"enriched a", "enriched b"}, texts(t, enriched))
	assert.Equal(t, "enriched solo", lookupText(t, res.Memory, "extra"))
}

func TestExecute_ConditionExposesChosenParallelBranches(t *testing.T) {
	h := newHarness(t)
	parallelPipes(h, true, "shop.Digest")
	h.add(
		&pipe.Definition{
			Code:   "pick",
			Inputs: []pipe.Input{input("topic", one(concept.Text)), input("mood", one(concept.Text))},
			Output: one("shop.Digest"),
			Spec: &pipe.ConditionSpec{
				Expression:     "mood",
				Outcomes:       map[string]string{"deep": "both_takes"},
				DefaultOutcome: pipe.FailOutcome,
				AliasOutcomeTo: "route",
			},
		},
		&pipe.Definition{
			Code:   "headline",
			Inputs: []pipe.Input{input("route", one(concept.Text)), input("short_take", one(concept.Text))},
			Output: one(concept.Text),
			Spec:   &pipe.ComposeSpec{Template: "$route $short_take"},
		},
		&pipe.Definition{
			Code:   "report",
			Inputs: []pipe.Input{input("topic", one(concept.Text)), input("mood", one(concept.Text))},
			Output: one(concept.Text),
			Spec: &pipe.SequenceSpec{Steps: []pipe.Step{
				{Pipe: "pick", Result: "digest"},
				{Pipe: "headline", Result: "line"},
			}},
		},
	)

	res, err := validateAndExecute(t, h, "report",
		stuff(t, "topic", concept.Text, multiplicity.Single, "go"),
		stuff(t, "mood", concept.Text, multiplicity.Single, "deep"),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"topic", "mood", "route", "short_take", "long_take", "digest", "line"}, res.Memory.Names())
	assert.Equal(t, "deep short go", lookupText(t, res.Memory, "line"))
}

func TestInvoke_ConditionFailureBindsNoAlias(t *testing.T) {
	h := newHarness(t)
	h.add(
		funcPipe("explode", "boom", one(concept.Text)),
		&pipe.Definition{
			Code:   "route_or_explode",
			Inputs: []pipe.Input{input("size", one(concept.Text))},
			Output: one(concept.Text),
			Spec: &pipe.ConditionSpec{
				Expression:     "size",
				Outcomes:       map[string]string{"small": "explode"},
				DefaultOutcome: pipe.FailOutcome,
				AliasOutcomeTo: "route",
			},
		},
	)
	in := h.interpreter()
	def, err := h.lib.Get("route_or_explode")
	require.NoError(t, err)
	mem, err := memory.New(stuff(t, "size", concept.Text, multiplicity.Single, "small"))
	require.NoError(t, err)

	err = in.invoke(testContext(), &invocation{runID: "run", def: def, result: "label"}, mem)
	require.Error(t, err)
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, []string{"size"}, mem.Names())
}

// TestExecute_ValidGraphsRunWithCollidingNames builds nested sequence,
// condition and batch pipes whose internal names are drawn from the same
// pool as their caller's, and checks that whatever validates also runs.
func TestExecute_ValidGraphsRunWithCollidingNames(t *testing.T) {
	pool := []string{"summary", "item", "scratch", "note", "draft", "route"}

	rapid.Check(t, func(rt *rapid.T) {
		outer := rapid.Permutation(pool).Draw(rt, "outer")
		inner := rapid.Permutation(pool).Draw(rt, "inner")
		itemName := rapid.SampledFrom(pool).Draw(rt, "item_name")

		h := newHarness(t)
		h.add(
			funcPipe("short_pipe", "short", one(concept.Text), input("topic", one(concept.Text))),
			funcPipe("long_pipe", "long", one(concept.Text), input("topic", one(concept.Text))),
			&pipe.Definition{
				Code:   "inner",
				Inputs: []pipe.Input{input("topic", one(concept.Text))},
				Output: one(concept.Text),
				Spec: &pipe.SequenceSpec{Steps: []pipe.Step{
					{Pipe: "short_pipe", Result: inner[0]},
					{Pipe: "long_pipe", Result: inner[1]},
				}},
			},
			&pipe.Definition{
				Code:   "pick",
				Inputs: []pipe.Input{input("topic", one(concept.Text))},
				Output: one(concept.Text),
				Spec: &pipe.ConditionSpec{
					Expression:     "topic",
					Outcomes:       map[string]string{"go": "inner"},
					DefaultOutcome: pipe.FailOutcome,
					AliasOutcomeTo: outer[4],
				},
			},
			&pipe.Definition{
				Code:   "tag_one",
				Inputs: []pipe.Input{input(itemName, one("shop.Item"))},
				Output: one(concept.Text),
				Spec:   &pipe.ComposeSpec{Template: "tag $" + itemName},
			},
			&pipe.Definition{
				Code:   "tag_all",
				Inputs: []pipe.Input{input("items", many("shop.Item"))},
				Output: many(concept.Text),
				Spec:   &pipe.BatchSpec{Branch: "tag_one", InputListName: "items", InputItemName: itemName},
			},
			&pipe.Definition{
				Code:   "root",
				Inputs: []pipe.Input{input("topic", one(concept.Text)), input("items", many("shop.Item"))},
				Output: many(concept.Text),
				Spec: &pipe.SequenceSpec{Steps: []pipe.Step{
					{Pipe: "short_pipe", Result: outer[0]},
					{Pipe: "inner", Result: outer[1]},
					{Pipe: "pick", Result: outer[2]},
					{Pipe: "tag_all", Result: outer[3]},
				}},
			},
		)

		if err := validator.Validate(testContext(), h.concepts, h.lib, "root"); err != nil {
			rt.Fatalf("validate: %v", err)
		}
		res, err := h.interpreter(WithMaxConcurrency(2)).Execute(testContext(), "root", []*memory.Stuff{
			stuff(t, "topic", concept.Text, multiplicity.Single, "go"),
			stuff(t, "items", "shop.Item", multiplicity.List(), "a", "b"),
		})
		if err != nil {
			rt.Fatalf("execute: %v", err)
		}

		want := []string{"topic", "items", outer[0], outer[1], outer[4], outer[2], outer[3]}
		got := res.Memory.Names()
		if len(got) != len(want) {
			rt.Fatalf("bound %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				rt.Fatalf("bound %v, want %v", got, want)
			}
		}
		tags, err := res.Main()
		if err != nil {
			rt.Fatalf("main output: %v", err)
		}
		if tagged := texts(t, tags); tagged[0] != "tag a" || tagged[1] != "tag b" {
			rt.Fatalf("tags: %v", tagged)
		}
	})
}
