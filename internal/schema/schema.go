// Package schema holds the gohcl decoding structs of library files.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// File represents the top-level structure of a library file.
type File struct {
	// Domain namespaces the concepts declared in the file.
	Domain   string     `hcl:"domain,optional"`
	Concepts []*Concept `hcl:"concept,block"`
	Pipes    []*Pipe    `hcl:"pipe,block"`
}

// --- Concept Structures ---

// Concept represents a `concept` block.
type Concept struct {
	Name        string     `hcl:"name,label"`
	Description string     `hcl:"description,optional"`
	Refines     string     `hcl:"refines,optional"`
	Structure   *Structure `hcl:"structure,block"`
}

// Structure holds the fields of a structured concept.
type Structure struct {
	Fields []*Field `hcl:"field,block"`
}

// Field represents one `field` block. Type is a type expression such as
// `text` or `list(integer)`; Default is a null expression when absent.
type Field struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type,optional"`
	Description string         `hcl:"description,optional"`
	Required    *bool          `hcl:"required,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
	Choices     []string       `hcl:"choices,optional"`
}

// --- Pipe Structures ---

// Pipe represents a `pipe "<kind>" "<code>"` block. The kind-specific
// attributes stay in Body and are decoded into one of the *Body structs
// below once the kind is known.
type Pipe struct {
	Kind        string `hcl:"kind,label"`
	Code        string `hcl:"code,label"`
	Description string `hcl:"description,optional"`
	// Inputs is an object of variable name to concept reference. It is kept
	// as an expression so the declaration order survives.
	Inputs hcl.Expression `hcl:"inputs,optional"`
	Output string         `hcl:"output,optional"`
	Body   hcl.Body       `hcl:",remain"`
}

// Step represents a `step` block of a sequence.
type Step struct {
	Pipe      string `hcl:"pipe"`
	Result    string `hcl:"result"`
	BatchOver string `hcl:"batch_over,optional"`
	BatchAs   string `hcl:"batch_as,optional"`
}

// SequenceBody is the kind-specific content of a sequence pipe.
type SequenceBody struct {
	Steps []*Step `hcl:"step,block"`
}

// Branch represents a `branch` block of a parallel.
type Branch struct {
	Pipe   string `hcl:"pipe"`
	Result string `hcl:"result"`
}

// ParallelBody is the kind-specific content of a parallel pipe.
type ParallelBody struct {
	Branches       []*Branch `hcl:"branch,block"`
	AddEachOutput  bool      `hcl:"add_each_output,optional"`
	CombinedOutput string    `hcl:"combined_output,optional"`
}

// ConditionBody is the kind-specific content of a condition pipe.
// ExpressionTemplate is kept as an expression: its source text is the
// template, which must not be evaluated by HCL itself.
type ConditionBody struct {
	Expression         string            `hcl:"expression,optional"`
	ExpressionTemplate hcl.Expression    `hcl:"expression_template,optional"`
	Outcomes           map[string]string `hcl:"outcomes,optional"`
	DefaultOutcome     string            `hcl:"default_outcome,optional"`
	AliasOutcomeTo     string            `hcl:"add_alias_from_expression_to,optional"`
}

// BatchBody is the kind-specific content of a batch pipe.
type BatchBody struct {
	Branch        string `hcl:"branch"`
	InputListName string `hcl:"input_list_name"`
	InputItemName string `hcl:"input_item_name"`
}

// LLMBody is the kind-specific content of an llm pipe.
type LLMBody struct {
	Prompt       string            `hcl:"prompt,optional"`
	SystemPrompt string            `hcl:"system_prompt,optional"`
	Model        string            `hcl:"model,optional"`
	Settings     map[string]string `hcl:"settings,optional"`
}

// ExtractBody is the kind-specific content of an extract pipe.
type ExtractBody struct {
	Model    string            `hcl:"model,optional"`
	Settings map[string]string `hcl:"settings,optional"`
}

// ImgGenBody is the kind-specific content of an img_gen pipe.
type ImgGenBody struct {
	Prompt      string            `hcl:"prompt,optional"`
	Model       string            `hcl:"model,optional"`
	AspectRatio string            `hcl:"aspect_ratio,optional"`
	Seed        *int64            `hcl:"seed,optional"`
	Settings    map[string]string `hcl:"settings,optional"`
}

// ComposeBody is the kind-specific content of a compose pipe.
type ComposeBody struct {
	Template string `hcl:"template"`
	TagStyle string `hcl:"tag_style,optional"`
}

// FuncBody is the kind-specific content of a func pipe.
type FuncBody struct {
	FunctionName string `hcl:"function_name,optional"`
	Script       string `hcl:"script,optional"`
}
