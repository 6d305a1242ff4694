package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/vk/pipegrid/internal/interpreter"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

type resultDocument struct {
	RunID      string          `json:"run_id"`
	MainOutput string          `json:"main_output"`
	Memory     []stuffDocument `json:"memory"`
}

type stuffDocument struct {
	Name       string          `json:"name"`
	Concept    string          `json:"concept"`
	ProducedBy string          `json:"produced_by,omitempty"`
	Content    json.RawMessage `json:"content"`
}

// writeResult writes the final memory as JSON to OutputPath, or to the app
// writer when no path is configured.
func (a *App) writeResult(res *interpreter.Result) error {
	doc, err := newResultDocument(res)
	if err != nil {
		return err
	}

	var w io.Writer = a.outW
	if a.config.OutputPath != "" {
		f, err := os.Create(a.config.OutputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

func newResultDocument(res *interpreter.Result) (*resultDocument, error) {
	doc := &resultDocument{RunID: res.RunID, MainOutput: res.MainOutput}
	for _, name := range res.Memory.Names() {
		s, err := res.Memory.Lookup(name)
		if err != nil {
			return nil, err
		}
		v := s.Value()
		content, err := ctyjson.Marshal(v, v.Type())
		if err != nil {
			return nil, fmt.Errorf("failed to encode '%s': %w", name, err)
		}
		doc.Memory = append(doc.Memory, stuffDocument{
			Name:       name,
			Concept:    s.Multiplicity.Format(s.Concept),
			ProducedBy: s.ProducedBy,
			Content:    content,
		})
	}
	return doc, nil
}
