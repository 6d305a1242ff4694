package pipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibrary(t *testing.T) {
	lib := NewLibrary()
	require.NoError(t, lib.Add(&Definition{Code: "b", Spec: &ComposeSpec{Template: "x"}}))
	require.NoError(t, lib.Add(&Definition{Code: "a", Spec: &FuncSpec{FunctionName: "f"}}))

	err := lib.Add(&Definition{Code: "a", Spec: &FuncSpec{}})
	var dupErr *DuplicatePipeError
	require.ErrorAs(t, err, &dupErr)

	assert.Error(t, lib.Add(&Definition{Code: "c"}), "a definition needs a spec")

	d, err := lib.Get("a")
	require.NoError(t, err)
	assert.Equal(t, KindFunc, d.Kind())

	_, err = lib.Get("zzz")
	var unknownErr *UnknownPipeError
	assert.ErrorAs(t, err, &unknownErr)

	assert.Equal(t, []string{"a", "b"}, lib.Codes())

	lib.Freeze()
	assert.ErrorContains(t, lib.Add(&Definition{Code: "d", Spec: &FuncSpec{}}), "frozen")
}

func TestChildren(t *testing.T) {
	testCases := []struct {
		name string
		spec Spec
		want []string
	}{
		{
			name: "sequence keeps step order and drops duplicates",
			spec: &SequenceSpec{Steps: []Step{{Pipe: "x"}, {Pipe: "y"}, {Pipe: "x"}}},
			want: []string{"x", "y"},
		},
		{
			name: "condition lists outcomes then default, skipping fail",
			spec: &ConditionSpec{Outcomes: map[string]string{"b": "pb", "a": "pa"}, DefaultOutcome: FailOutcome},
			want: []string{"pa", "pb"},
		},
		{
			name: "batch",
			spec: &BatchSpec{Branch: "each"},
			want: []string{"each"},
		},
		{
			name: "operators have none",
			spec: &LLMSpec{},
			want: nil,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Children(&Definition{Code: "p", Spec: tc.spec}))
		})
	}
}

func TestKindIsController(t *testing.T) {
	for _, k := range Kinds {
		switch k {
		case KindSequence, KindParallel, KindCondition, KindBatch:
			assert.True(t, k.IsController(), k)
		default:
			assert.False(t, k.IsController(), k)
		}
	}
}
