package integration_tests

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pipegrid/internal/app"
	"github.com/vk/pipegrid/internal/events"
	"github.com/vk/pipegrid/internal/testutil"
)

const documentLibrary = `
domain = "docs"

concept "Summary" {
  description = "A short summary of a page"
}

pipe "extract" "read_pages" {
  inputs = { document = "PDF" }
  output = "Page[]"
}

pipe "llm" "summarize_page" {
  inputs = { page = "Page" }
  output = "Summary"
  prompt = "Summarize this page: $page.text"
}

pipe "func" "merge" {
  inputs        = { items = "Summary[]" }
  output        = "Summary"
  function_name = "join_lines"
}

pipe "sequence" "digest_document" {
  inputs = { document = "PDF" }
  output = "Summary"
  step {
    pipe   = "read_pages"
    result = "pages"
  }
  step {
    pipe       = "summarize_page"
    result     = "items"
    batch_over = "pages"
    batch_as   = "page"
  }
  step {
    pipe   = "merge"
    result = "digest"
  }
}
`

// TestCoreExecution_DocumentDigest runs a document through extraction, a
// per-page batch and a merge, with mocked model backends.
func TestCoreExecution_DocumentDigest(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	files := map[string]string{
		"library/docs.hcl": documentLibrary,
		"inputs.yaml": `
document:
  concept: PDF
  content:
    url: https://example.com/report.pdf
`,
	}

	// --- Act ---
	result := testutil.RunIntegrationTest(t, files, app.Config{
		RootPipe:   "digest_document",
		InputsPath: "inputs.yaml",
		DryRun:     true,
	})

	// --- Assert ---
	require.NoError(t, result.Err)
	res := result.Result
	assert.Equal(t, []string{"document", "pages", "items", "digest"}, res.Memory.Names())
	assert.Equal(t, "digest", res.MainOutput)

	pages, err := res.Memory.Lookup("pages")
	require.NoError(t, err)
	assert.Equal(t, 3, pages.Len())

	digest, err := res.Main()
	require.NoError(t, err)
	assert.Equal(t, "docs.Summary", digest.Concept)
	lines := strings.Split(digest.Single().AsString(), "\n")
	assert.Len(t, lines, 3)
	for _, line := range lines {
		assert.Equal(t, "Dry run summarize_page #1", line)
	}

	assert.Equal(t, 3, result.Events.Count("summarize_page", events.Succeeded))
	assert.Equal(t, 1, result.Events.Count("digest_document", events.Succeeded))
	assert.Contains(t, result.LogOutput, "🏁 Execution finished.")
}
