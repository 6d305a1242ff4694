package registry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/multiplicity"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/zclconf/go-cty/cty"
)

type testModule struct{}

func (testModule) Register(r *Registry) {
	r.RegisterFunc("shout", "Uppercases a text.", func(_ context.Context, in Inputs) (any, error) {
		s, err := in.Text("text")
		if err != nil {
			return nil, err
		}
		return s + "!", nil
	})
}

func testContext() context.Context {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func TestRegisterAndLookup(t *testing.T) {
	r := New(testModule{})

	fn, ok := r.Lookup("shout")
	require.True(t, ok)
	text, err := memory.NewStuff("text", "native.Text", multiplicity.Single, cty.StringVal("hi"))
	require.NoError(t, err)
	out, err := fn(context.Background(), Inputs{"text": text})
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"shout"}, r.Names())

	assert.Panics(t, func() { testModule{}.Register(r) })
}

func TestValidateRegistry(t *testing.T) {
	r := New(testModule{})

	lib := pipe.NewLibrary()
	require.NoError(t, lib.Add(&pipe.Definition{Code: "ok", Spec: &pipe.FuncSpec{FunctionName: "shout"}}))
	require.NoError(t, lib.Add(&pipe.Definition{Code: "scripted", Spec: &pipe.FuncSpec{Script: "def run(inputs): return 1"}}))
	require.NoError(t, r.ValidateRegistry(testContext(), lib))

	require.NoError(t, lib.Add(&pipe.Definition{Code: "broken", Spec: &pipe.FuncSpec{FunctionName: "whisper"}}))
	err := r.ValidateRegistry(testContext(), lib)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry validation failed:\n- pipe 'broken': function 'whisper' is not registered")
}

type invoiceLine struct {
	Label  string  `cty:"label"`
	Amount float64 `cty:"amount"`
}

func TestToStuffValue(t *testing.T) {
	testCases := []struct {
		name  string
		input any
		want  cty.Value
	}{
		{name: "string", input: "a", want: cty.StringVal("a")},
		{name: "int", input: 3, want: cty.NumberIntVal(3)},
		{name: "bool", input: true, want: cty.True},
		{name: "strings", input: []string{"a", "b"}, want: cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")})},
		{name: "cty value", input: cty.NumberIntVal(7), want: cty.NumberIntVal(7)},
		{name: "untyped list", input: []any{"a", 1}, want: cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.NumberIntVal(1)})},
		{
			name:  "untyped map",
			input: map[string]any{"n": 1, "s": "x"},
			want:  cty.ObjectVal(map[string]cty.Value{"n": cty.NumberIntVal(1), "s": cty.StringVal("x")}),
		},
		{
			name:  "tagged struct",
			input: invoiceLine{Label: "fee", Amount: 2.5},
			want:  cty.ObjectVal(map[string]cty.Value{"label": cty.StringVal("fee"), "amount": cty.NumberFloatVal(2.5)}),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToStuffValue(tc.input)
			require.NoError(t, err)
			assert.True(t, got.Equals(tc.want).True(), "got %#v", got)
		})
	}

	_, err := ToStuffValue(nil)
	assert.Error(t, err)
	_, err = ToStuffValue(make(chan int))
	assert.Error(t, err)
}

func TestItems(t *testing.T) {
	list := cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")})

	items, err := Items(list, true)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = Items(list, false)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = Items(cty.StringVal("a"), true)
	assert.ErrorContains(t, err, "expected a list")
}
