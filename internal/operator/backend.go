package operator

import (
	"context"

	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/vk/pipegrid/internal/template"
	"github.com/zclconf/go-cty/cty"
)

// OutputShape tells a backend what to produce: the declared binding, the
// runtime type of one item and, for structured concepts, its fields.
type OutputShape struct {
	pipe.Binding
	Type      cty.Type
	Structure []*concept.Field
}

// LLMRequest is one generation call.
type LLMRequest struct {
	Pipe         string
	Model        string
	SystemPrompt string
	Prompt       string
	Visuals      []template.Visual
	Settings     map[string]string
	Output       OutputShape
}

// LLMClient generates content from prompts. It returns one item per output
// element.
type LLMClient interface {
	Generate(ctx context.Context, req *LLMRequest) ([]cty.Value, error)
}

// ExtractRequest is one extraction call over an image or a document.
type ExtractRequest struct {
	Pipe     string
	Model    string
	Concept  string
	IsPDF    bool
	Document cty.Value
	Settings map[string]string
}

// Extractor turns an image or a document into pages.
type Extractor interface {
	Extract(ctx context.Context, req *ExtractRequest) ([]cty.Value, error)
}

// ImageRequest is one image generation call.
type ImageRequest struct {
	Pipe        string
	Model       string
	Prompt      string
	AspectRatio string
	Seed        *int64
	Count       int
	Settings    map[string]string
}

// ImageGenerator produces images from a prompt.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, req *ImageRequest) ([]cty.Value, error)
}

// Backends are the external collaborators behind the operator kinds.
type Backends struct {
	LLM     LLMClient
	Extract Extractor
	ImgGen  ImageGenerator
}
