// Package script runs starlark scripts behind func pipes.
//
// A script defines a function run(inputs) taking a dict of the pipe's
// declared inputs and returning its output. Scripts are hermetic: no load
// statements, no builtins beyond the starlark universe, and a bounded number
// of execution steps.
package script

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// EntryPoint is the function every script must define.
const EntryPoint = "run"

// MaxSteps bounds the computation of one script call.
const MaxSteps = 10_000_000

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  false,
}

// Check compiles a script and verifies that it defines the entry point,
// without running it.
func Check(name, src string) error {
	_, prog, err := starlark.SourceProgramOptions(fileOptions, name, src, starlark.StringDict{}.Has)
	if err != nil {
		return fmt.Errorf("script %s: %w", name, err)
	}
	if prog.NumLoads() > 0 {
		module, _ := prog.Load(0)
		return fmt.Errorf("script %s: load(%q) is not allowed", name, module)
	}
	return nil
}

// Run executes src and calls its run function with inputs.
func Run(ctx context.Context, name, src string, inputs map[string]cty.Value) (cty.Value, error) {
	thread := &starlark.Thread{
		Name: name,
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load(%q) is not allowed", module)
		},
	}
	thread.SetMaxExecutionSteps(MaxSteps)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	globals, err := starlark.ExecFileOptions(fileOptions, thread, name, src, nil)
	if err != nil {
		return cty.NilVal, fmt.Errorf("script %s: %w", name, err)
	}
	fn, ok := globals[EntryPoint].(starlark.Callable)
	if !ok {
		return cty.NilVal, fmt.Errorf("script %s: must define a function %s(inputs)", name, EntryPoint)
	}

	arg := starlark.NewDict(len(inputs))
	for _, key := range sortedKeys(inputs) {
		v, err := toStarlark(inputs[key])
		if err != nil {
			return cty.NilVal, fmt.Errorf("script %s: input %q: %w", name, key, err)
		}
		if err := arg.SetKey(starlark.String(key), v); err != nil {
			return cty.NilVal, err
		}
	}

	result, err := starlark.Call(thread, fn, starlark.Tuple{arg}, nil)
	if err != nil {
		return cty.NilVal, fmt.Errorf("script %s: %w", name, err)
	}
	out, err := fromStarlark(result)
	if err != nil {
		return cty.NilVal, fmt.Errorf("script %s: result: %w", name, err)
	}
	return out, nil
}

func toStarlark(v cty.Value) (starlark.Value, error) {
	if v.IsNull() {
		return starlark.None, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("unknown value")
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return starlark.String(v.AsString()), nil
	case ty == cty.Bool:
		return starlark.Bool(v.True()), nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			i, _ := bf.Int(nil)
			return starlark.MakeBigInt(i), nil
		}
		f, _ := bf.Float64()
		return starlark.Float(f), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		elems := make([]starlark.Value, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, e := it.Element()
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case ty.IsObjectType() || ty.IsMapType():
		d := starlark.NewDict(v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, e := it.Element()
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k.AsString()), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
	}
}

func fromStarlark(v starlark.Value) (cty.Value, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return cty.NilVal, fmt.Errorf("None is not a valid result")
	case starlark.String:
		return cty.StringVal(string(v)), nil
	case starlark.Bytes:
		return cty.StringVal(string(v)), nil
	case starlark.Bool:
		return cty.BoolVal(bool(v)), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return cty.NumberIntVal(i), nil
		}
		return cty.NumberVal(new(big.Float).SetInt(v.BigInt())), nil
	case starlark.Float:
		return cty.NumberFloatVal(float64(v)), nil
	case starlark.Indexable:
		n := v.Len()
		if n == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, n)
		for i := 0; i < n; i++ {
			e, err := fromStarlark(v.Index(i))
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = e
		}
		return cty.TupleVal(elems), nil
	case *starlark.Dict:
		if v.Len() == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, v.Len())
		for _, item := range v.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return cty.NilVal, fmt.Errorf("dict key %s is not a string", item[0])
			}
			e, err := fromStarlark(item[1])
			if err != nil {
				return cty.NilVal, fmt.Errorf("key %q: %w", key, err)
			}
			attrs[key] = e
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported starlark type %s", v.Type())
	}
}

func sortedKeys(m map[string]cty.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
