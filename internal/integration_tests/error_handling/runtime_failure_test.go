package integration_tests

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pipegrid/internal/app"
	"github.com/vk/pipegrid/internal/events"
	"github.com/vk/pipegrid/internal/interpreter"
	"github.com/vk/pipegrid/internal/testutil"
)

// TestErrorHandling_FunctionFailureFailsRun validates that a failing func
// pipe fails every enclosing invocation and the run binds nothing further.
func TestErrorHandling_FunctionFailureFailsRun(t *testing.T) {
	t.Parallel()

	result := testutil.RunIntegrationTest(t, map[string]string{"main.hcl": `
pipe "func" "lookup" {
  inputs        = { name = "Text" }
  output        = "Text"
  function_name = "env_lookup"
}

pipe "func" "shout" {
  inputs        = { text = "Text" }
  output        = "Text"
  function_name = "upper"
}

pipe "sequence" "main" {
  inputs = { name = "Text" }
  output = "Text"
  step {
    pipe   = "lookup"
    result = "text"
  }
  step {
    pipe   = "shout"
    result = "loud"
  }
}
`}, app.Config{RootPipe: "main", Inputs: []string{"name=Text:PIPEGRID_SURELY_UNSET_VARIABLE"}})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), `environment variable "PIPEGRID_SURELY_UNSET_VARIABLE" is not set`)

	var pipeErr *interpreter.PipeError
	require.True(t, errors.As(result.Err, &pipeErr))
	assert.Equal(t, "main", pipeErr.PipeCode)

	assert.Equal(t, 1, result.Events.Count("lookup", events.Failed))
	assert.Equal(t, 1, result.Events.Count("main", events.Failed))
	assert.Equal(t, 0, result.Events.Count("shout", events.Running))
	assert.Contains(t, result.LogOutput, "❌ Pipe failed.")
}
