package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/fsutil"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/vk/pipegrid/internal/schema"
)

// DefaultDomain is the concept domain of files that declare none.
const DefaultDomain = "main"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL library loader.
func NewLoader() *Loader {
	return &Loader{}
}

// parsedFile is one decoded library file.
type parsedFile struct {
	path   string
	domain string
	file   *hcl.File
	root   schema.File
}

// Load parses every .hcl file under paths. Concepts from all files are
// registered before any pipe is translated, so pipes may reference concepts
// declared in other files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := fsutil.FindFilesByExtension(".hcl", paths...)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	files := make([]*parsedFile, 0, len(hclFiles))
	for _, path := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
		}
		pf := &parsedFile{path: path, file: hclFile}
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &pf.root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
		}
		pf.domain = pf.root.Domain
		if pf.domain == "" {
			pf.domain = DefaultDomain
		}
		files = append(files, pf)
	}

	concepts := concept.NewRegistry()
	for _, pf := range files {
		for _, c := range pf.root.Concepts {
			def, err := l.translateConcept(ctx, pf.domain, c)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pf.path, err)
			}
			if err := concepts.Register(def); err != nil {
				return nil, fmt.Errorf("%s: %w", pf.path, err)
			}
		}
	}
	if err := concepts.Freeze(); err != nil {
		return nil, err
	}

	lib := pipe.NewLibrary()
	for _, pf := range files {
		for _, p := range pf.root.Pipes {
			def, err := l.translatePipe(ctx, concepts, pf, p)
			if err != nil {
				return nil, fmt.Errorf("%s: pipe '%s': %w", pf.path, p.Code, err)
			}
			if err := lib.Add(def); err != nil {
				return nil, fmt.Errorf("%s: %w", pf.path, err)
			}
		}
	}
	lib.Freeze()

	logger.Debug("HCL loading complete.", "files", len(files), "concepts", len(concepts.Codes()), "pipes", lib.Len())
	return &config.Model{Concepts: concepts, Library: lib, Files: hclFiles}, nil
}
