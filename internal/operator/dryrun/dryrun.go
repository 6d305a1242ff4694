// Package dryrun provides operator backends that synthesize content shaped
// like the declared output concept instead of calling external services.
package dryrun

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/multiplicity"
	"github.com/vk/pipegrid/internal/operator"
	"github.com/zclconf/go-cty/cty"
)

// DefaultListSize is the number of items produced for unbounded lists.
const DefaultListSize = 3

// Backend implements every operator backend interface.
type Backend struct {
	listSize int

	mu    sync.Mutex
	calls map[string]int
}

// Option configures a Backend.
type Option func(*Backend)

// WithListSize sets how many items unbounded lists get.
func WithListSize(n int) Option {
	return func(b *Backend) { b.listSize = n }
}

// New returns a dry-run backend.
func New(opts ...Option) *Backend {
	b := &Backend{listSize: DefaultListSize, calls: make(map[string]int)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Backends returns b for every backend slot.
func (b *Backend) Backends() operator.Backends {
	return operator.Backends{LLM: b, Extract: b, ImgGen: b}
}

// Calls returns how many times the pipe was served.
func (b *Backend) Calls(pipeCode string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[pipeCode]
}

func (b *Backend) record(pipeCode string) {
	b.mu.Lock()
	b.calls[pipeCode]++
	b.mu.Unlock()
}

func (b *Backend) count(m multiplicity.Multiplicity) int {
	switch m.Kind {
	case multiplicity.Fixed:
		return m.N
	case multiplicity.Variable:
		return b.listSize
	default:
		return 1
	}
}

// Generate implements operator.LLMClient.
func (b *Backend) Generate(ctx context.Context, req *operator.LLMRequest) ([]cty.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.record(req.Pipe)
	n := b.count(req.Output.Multiplicity)
	items := make([]cty.Value, n)
	for i := range items {
		label := fmt.Sprintf("%s #%d", req.Pipe, i+1)
		if req.Output.Structure != nil {
			items[i] = structured(req.Output.Structure, label)
		} else {
			items[i] = synthesize(req.Output.Type, label)
		}
	}
	return items, nil
}

// Extract implements operator.Extractor. Images yield one page.
func (b *Backend) Extract(ctx context.Context, req *operator.ExtractRequest) ([]cty.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.record(req.Pipe)
	n := 1
	if req.IsPDF {
		n = b.listSize
	}
	pages := make([]cty.Value, n)
	for i := range pages {
		pages[i] = cty.ObjectVal(map[string]cty.Value{
			"text":   cty.StringVal(fmt.Sprintf("Page %d extracted by %s", i+1, req.Pipe)),
			"images": cty.ListValEmpty(cty.Object(map[string]cty.Type{"url": cty.String})),
		})
	}
	return pages, nil
}

// GenerateImages implements operator.ImageGenerator.
func (b *Backend) GenerateImages(ctx context.Context, req *operator.ImageRequest) ([]cty.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.record(req.Pipe)
	images := make([]cty.Value, req.Count)
	for i := range images {
		images[i] = cty.ObjectVal(map[string]cty.Value{
			"url": cty.StringVal(fmt.Sprintf("dryrun://%s/%d.png", req.Pipe, i+1)),
		})
	}
	return images, nil
}

func structured(fields []*concept.Field, label string) cty.Value {
	attrs := make(map[string]cty.Value, len(fields))
	for _, f := range fields {
		switch {
		case f.Default != nil:
			attrs[f.Name] = *f.Default
		case len(f.Choices) > 0:
			attrs[f.Name] = cty.StringVal(f.Choices[0])
		default:
			attrs[f.Name] = fieldValue(f.Type, label+" "+f.Name)
		}
	}
	return cty.ObjectVal(attrs)
}

func fieldValue(t concept.FieldType, label string) cty.Value {
	switch t.Kind {
	case concept.KindDate:
		return cty.StringVal("2024-01-01")
	case concept.KindInteger:
		return cty.NumberIntVal(0)
	default:
		return synthesize(t.CtyType(), label)
	}
}

func synthesize(ty cty.Type, label string) cty.Value {
	switch {
	case ty == cty.String:
		return cty.StringVal("Dry run " + label)
	case ty == cty.Number:
		return cty.Zero
	case ty == cty.Bool:
		return cty.False
	case ty.IsListType():
		return cty.ListValEmpty(ty.ElementType())
	case ty.IsMapType():
		return cty.MapValEmpty(ty.ElementType())
	case ty.IsObjectType():
		attrs := make(map[string]cty.Value, len(ty.AttributeTypes()))
		for name, at := range ty.AttributeTypes() {
			if name == "url" && at == cty.String {
				attrs[name] = cty.StringVal("dryrun://" + label)
				continue
			}
			attrs[name] = synthesize(at, label)
		}
		return cty.ObjectVal(attrs)
	default:
		return cty.NullVal(ty)
	}
}
