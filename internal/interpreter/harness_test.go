package interpreter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/events"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/multiplicity"
	"github.com/vk/pipegrid/internal/operator"
	"github.com/vk/pipegrid/internal/operator/dryrun"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/vk/pipegrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// spies is a function module that counts calls and can be told to fail or
// stall on specific items.
type spies struct {
	mu     sync.Mutex
	calls  map[string]int
	failOn string
	delays map[string]time.Duration
}

func newSpies() *spies {
	return &spies{calls: make(map[string]int), delays: make(map[string]time.Duration)}
}

func (s *spies) count(name string) {
	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()
}

func (s *spies) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *spies) Register(r *registry.Registry) {
	r.RegisterFunc("enrich", "", func(ctx context.Context, in registry.Inputs) (any, error) {
		item, err := in.Text("item")
		if err != nil {
			return nil, err
		}
		s.count("enrich")
		s.mu.Lock()
		delay := s.delays[item]
		s.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if item == s.failOn {
			return nil, errors.New("cannot enrich " + item)
		}
		return "enriched " + item, nil
	})
	for _, name := range []string{"label_small", "label_large"} {
		r.RegisterFunc(name, "", func(context.Context, registry.Inputs) (any, error) {
			s.count(name)
			return name, nil
		})
	}
	r.RegisterFunc("short", "", func(_ context.Context, in registry.Inputs) (any, error) {
		topic, err := in.Text("topic")
		return "short " + topic, err
	})
	r.RegisterFunc("long", "", func(_ context.Context, in registry.Inputs) (any, error) {
		topic, err := in.Text("topic")
		return "long " + topic, err
	})
	r.RegisterFunc("boom", "", func(context.Context, registry.Inputs) (any, error) {
		s.count("boom")
		return nil, errors.New("boom")
	})
	r.RegisterFunc("wait_for_cancel", "", func(ctx context.Context, _ registry.Inputs) (any, error) {
		<-ctx.Done()
		s.count("cancelled")
		return nil, ctx.Err()
	})
}

type harness struct {
	t        *testing.T
	concepts *concept.Registry
	lib      *pipe.Library
	spies    *spies
	backend  *dryrun.Backend
	recorder *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	concepts := concept.NewRegistry()
	require.NoError(t, concepts.Register(&concept.Concept{Code: "shop.Item"}))
	require.NoError(t, concepts.Register(&concept.Concept{Code: "shop.EnrichedItem"}))
	require.NoError(t, concepts.Register(&concept.Concept{Code: "shop.Digest", Structure: []*concept.Field{
		{Name: "short_take", Type: concept.Primitive(concept.KindText), Required: true},
		{Name: "long_take", Type: concept.Primitive(concept.KindText), Required: true},
	}}))
	require.NoError(t, concepts.Freeze())
	return &harness{
		t:        t,
		concepts: concepts,
		lib:      pipe.NewLibrary(),
		spies:    newSpies(),
		backend:  dryrun.New(),
		recorder: &events.Recorder{},
	}
}

func (h *harness) add(defs ...*pipe.Definition) {
	h.t.Helper()
	for _, d := range defs {
		require.NoError(h.t, h.lib.Add(d))
	}
}

func (h *harness) interpreter(opts ...Option) *Interpreter {
	dispatcher := operator.NewDispatcher(h.concepts, registry.New(h.spies), h.backend.Backends())
	opts = append([]Option{WithSink(h.recorder)}, opts...)
	return New(h.concepts, h.lib, dispatcher, opts...)
}

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func one(code string) pipe.Binding {
	return pipe.Binding{Concept: code, Multiplicity: multiplicity.Single}
}

func many(code string) pipe.Binding {
	return pipe.Binding{Concept: code, Multiplicity: multiplicity.List()}
}

func input(name string, b pipe.Binding) pipe.Input {
	return pipe.Input{Name: name, Binding: b}
}

func stuff(t *testing.T, name, code string, m multiplicity.Multiplicity, items ...string) *memory.Stuff {
	t.Helper()
	values := make([]cty.Value, len(items))
	for i, s := range items {
		values[i] = cty.StringVal(s)
	}
	s, err := memory.NewStuff(name, code, m, values...)
	require.NoError(t, err)
	return s
}

func texts(t *testing.T, s *memory.Stuff) []string {
	t.Helper()
	out := make([]string, len(s.Items))
	for i, v := range s.Items {
		out[i] = v.AsString()
	}
	return out
}
