package pipe

// Spec holds the kind-specific part of a definition.
type Spec interface {
	Kind() Kind
	Accept(v Visitor) error
}

// Visitor has one method per kind.
type Visitor interface {
	VisitSequence(*SequenceSpec) error
	VisitParallel(*ParallelSpec) error
	VisitCondition(*ConditionSpec) error
	VisitBatch(*BatchSpec) error
	VisitLLM(*LLMSpec) error
	VisitExtract(*ExtractSpec) error
	VisitImgGen(*ImgGenSpec) error
	VisitCompose(*ComposeSpec) error
	VisitFunc(*FuncSpec) error
}

// Step is one step of a Sequence. When BatchOver is set, the step pipe runs
// once per element of that list variable with the element bound as BatchAs,
// and Result holds the ordered list of outputs.
type Step struct {
	Pipe      string
	Result    string
	BatchOver string
	BatchAs   string
}

// IsBatch reports whether the step maps over a list.
func (s Step) IsBatch() bool {
	return s.BatchOver != ""
}

// SequenceSpec runs steps strictly in order.
type SequenceSpec struct {
	Steps []Step
}

// Branch is one sub-pipe of a Parallel.
type Branch struct {
	Pipe   string
	Result string
}

// ParallelSpec runs branches concurrently against the same inputs.
type ParallelSpec struct {
	Branches       []Branch
	AddEachOutput  bool
	CombinedOutput string
}

// FailOutcome as a default outcome makes unmatched outcomes an error.
const FailOutcome = "fail"

// ConditionSpec selects one child pipe from an evaluated outcome key.
// Exactly one of Expression and ExpressionTemplate is set.
type ConditionSpec struct {
	Expression         string
	ExpressionTemplate string
	Outcomes           map[string]string
	DefaultOutcome     string
	AliasOutcomeTo     string
}

// BatchSpec maps Branch over the elements of InputListName.
type BatchSpec struct {
	Branch        string
	InputListName string
	InputItemName string
}

// LLMSpec generates content from a prompt.
type LLMSpec struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Settings     map[string]string
}

// ExtractSpec turns one image or document into pages.
type ExtractSpec struct {
	Model    string
	Settings map[string]string
}

// ImgGenSpec generates images from a literal prompt or a text input.
type ImgGenSpec struct {
	Model       string
	Prompt      string
	AspectRatio string
	Seed        *int64
	Settings    map[string]string
}

// ComposeSpec renders a template into text.
type ComposeSpec struct {
	Template string
	TagStyle string
}

// FuncSpec calls a registered Go function or runs a script.
type FuncSpec struct {
	FunctionName string
	Script       string
}

func (*SequenceSpec) Kind() Kind  { return KindSequence }
func (*ParallelSpec) Kind() Kind  { return KindParallel }
func (*ConditionSpec) Kind() Kind { return KindCondition }
func (*BatchSpec) Kind() Kind     { return KindBatch }
func (*LLMSpec) Kind() Kind       { return KindLLM }
func (*ExtractSpec) Kind() Kind   { return KindExtract }
func (*ImgGenSpec) Kind() Kind    { return KindImgGen }
func (*ComposeSpec) Kind() Kind   { return KindCompose }
func (*FuncSpec) Kind() Kind      { return KindFunc }

func (s *SequenceSpec) Accept(v Visitor) error  { return v.VisitSequence(s) }
func (s *ParallelSpec) Accept(v Visitor) error  { return v.VisitParallel(s) }
func (s *ConditionSpec) Accept(v Visitor) error { return v.VisitCondition(s) }
func (s *BatchSpec) Accept(v Visitor) error     { return v.VisitBatch(s) }
func (s *LLMSpec) Accept(v Visitor) error       { return v.VisitLLM(s) }
func (s *ExtractSpec) Accept(v Visitor) error   { return v.VisitExtract(s) }
func (s *ImgGenSpec) Accept(v Visitor) error    { return v.VisitImgGen(s) }
func (s *ComposeSpec) Accept(v Visitor) error   { return v.VisitCompose(s) }
func (s *FuncSpec) Accept(v Visitor) error      { return v.VisitFunc(s) }

// Children returns the codes of the pipes a definition invokes directly, in
// declaration order and without duplicates.
func Children(d *Definition) []string {
	var codes []string
	seen := make(map[string]struct{})
	add := func(code string) {
		if code == "" || code == FailOutcome {
			return
		}
		if _, ok := seen[code]; ok {
			return
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	switch s := d.Spec.(type) {
	case *SequenceSpec:
		for _, step := range s.Steps {
			add(step.Pipe)
		}
	case *ParallelSpec:
		for _, b := range s.Branches {
			add(b.Pipe)
		}
	case *ConditionSpec:
		for _, key := range sortedKeys(s.Outcomes) {
			add(s.Outcomes[key])
		}
		add(s.DefaultOutcome)
	case *BatchSpec:
		add(s.Branch)
	}
	return codes
}
