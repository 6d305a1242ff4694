// Package testutil holds helpers shared by the integration tests: a
// library-on-disk harness around the App and mock function modules.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/pipegrid/internal/app"
	"github.com/vk/pipegrid/internal/events"
	"github.com/vk/pipegrid/internal/hcl"
	"github.com/vk/pipegrid/internal/interpreter"
)

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Result    *interpreter.Result
	Events    *events.Recorder
	Err       error
	App       *app.App
}

// WriteLibrary writes files, keyed by path relative to a fresh temporary
// directory, and returns that directory.
func WriteLibrary(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// RunIntegrationTest provides a standardized harness for running integration
// tests using a default background context.
func RunIntegrationTest(t *testing.T, files map[string]string, cfg app.Config, opts ...app.Option) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, files, cfg, opts...)
}

// RunIntegrationTestWithContext writes the library files, builds an App over
// them and runs it. LibraryPath defaults to the library directory and a
// relative InputsPath is taken inside it. Startup and run errors, including
// recovered startup panics, land in Err.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, files map[string]string, cfg app.Config, opts ...app.Option) *HarnessResult {
	t.Helper()

	dir := WriteLibrary(t, files)
	if cfg.LibraryPath == "" {
		cfg.LibraryPath = dir
	}
	if cfg.InputsPath != "" && !filepath.IsAbs(cfg.InputsPath) {
		cfg.InputsPath = filepath.Join(dir, cfg.InputsPath)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(dir, "result.json")
	}

	logBuffer := &SafeBuffer{}
	recorder := &events.Recorder{}
	res := &HarnessResult{Events: recorder}
	defer func() {
		res.LogOutput = logBuffer.String()
		if os.Getenv("PIPEGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), res.LogOutput)
		}
	}()

	appConfig, err := app.NewConfig(cfg)
	if err != nil {
		res.Err = err
		return res
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("application startup panicked | %v", r)
			}
		}()
		opts = append(opts, app.WithSink(recorder))
		res.App, res.Err = app.NewApp(logBuffer, appConfig, hcl.NewLoader(), opts...)
	}()
	if res.Err != nil {
		return res
	}
	defer res.App.Close()

	res.Result, res.Err = res.App.Run(ctx)
	return res
}
