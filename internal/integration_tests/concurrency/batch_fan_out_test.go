package integration_tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pipegrid/internal/app"
	"github.com/vk/pipegrid/internal/testutil"
)

const napLibrary = `
pipe "func" "nap" {
  inputs        = { id = "Text" }
  output        = "Text"
  function_name = "sleep"
}

pipe "batch" "nap_all" {
  inputs          = { ids = "Text[]" }
  output          = "Text[]"
  branch          = "nap"
  input_list_name = "ids"
  input_item_name = "id"
}
`

func runNaps(t *testing.T, maxConcurrency int) (*testutil.HarnessResult, *testutil.MockSleeperModule) {
	t.Helper()
	sleeper := testutil.NewMockSleeperModule(100 * time.Millisecond)
	result := testutil.RunIntegrationTest(t, map[string]string{"main.hcl": napLibrary}, app.Config{
		RootPipe:       "nap_all",
		OutputName:     "naps",
		Inputs:         []string{"ids=Text[]:A,B,C,D"},
		MaxConcurrency: maxConcurrency,
	}, app.WithModules(sleeper))
	require.NoError(t, result.Err)
	require.Equal(t, 4, sleeper.Len(), "expected execution records for all 4 items")
	return result, sleeper
}

// TestConcurrency_BatchFanOut validates that batch branches run concurrently
// and their results keep the input order.
func TestConcurrency_BatchFanOut(t *testing.T) {
	t.Parallel()

	result, sleeper := runNaps(t, 0)

	naps, err := result.Result.Main()
	require.NoError(t, err)
	var got []string
	for _, item := range naps.Items {
		got = append(got, item.AsString())
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, got)

	assert.True(t, sleeper.Record("A").Overlaps(sleeper.Record("B")), "items A and B did not run in parallel")
	assert.True(t, sleeper.Record("C").Overlaps(sleeper.Record("D")), "items C and D did not run in parallel")
}

// TestConcurrency_MaxConcurrencyOne validates that a limit of one runs the
// batch branches one after another.
func TestConcurrency_MaxConcurrencyOne(t *testing.T) {
	t.Parallel()

	_, sleeper := runNaps(t, 1)

	ids := []string{"A", "B", "C", "D"}
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			assert.False(t, sleeper.Record(a).Overlaps(sleeper.Record(b)), "items %s and %s overlapped", a, b)
		}
	}
}
