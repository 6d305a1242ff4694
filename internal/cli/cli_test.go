package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{
		"-pipe", "announce",
		"-input", "text=Text:hello",
		"-input", "author=Text:ada",
		"-dry-run",
		"-max-concurrency", "4",
		"-log-level", "DEBUG",
		"-tag-style", "xml",
		"lib",
	}, out)

	require.NoError(t, err)
	assert.False(t, shouldExit)
	assert.Equal(t, "lib", cfg.LibraryPath)
	assert.Equal(t, "announce", cfg.RootPipe)
	assert.Equal(t, []string{"text=Text:hello", "author=Text:ada"}, cfg.Inputs)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "xml", cfg.TagStyle)
	assert.Equal(t, "/", cfg.EventsNamespace)
}

func TestParse_LibraryFlagWins(t *testing.T) {
	cfg, _, err := Parse([]string{"-library", "a", "-l", "b", "-pipe", "p", "c"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "a", cfg.LibraryPath)

	cfg, _, err = Parse([]string{"-l", "b", "-pipe", "p", "c"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "b", cfg.LibraryPath)
}

func TestParse_ExitCleanly(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {}} {
		out := &bytes.Buffer{}
		cfg, shouldExit, err := Parse(args, out)
		require.NoError(t, err)
		assert.True(t, shouldExit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown flag", args: []string{"--nope"}, wantErr: "flag provided but not defined"},
		{name: "no root pipe", args: []string{"lib"}, wantErr: "missing -pipe"},
		{name: "bad log format", args: []string{"-pipe", "p", "-log-format", "xml", "lib"}, wantErr: "invalid log-format"},
		{name: "bad log level", args: []string{"-pipe", "p", "-log-level", "loud", "lib"}, wantErr: "invalid log-level"},
		{name: "bad tag style", args: []string{"-pipe", "p", "-tag-style", "curly", "lib"}, wantErr: "unknown tag style"},
		{name: "bad input", args: []string{"-pipe", "p", "-input", "oops", "lib"}, wantErr: "expected name=Concept:value"},
		{name: "negative concurrency", args: []string{"-pipe", "p", "-max-concurrency", "-2", "lib"}, wantErr: "MaxConcurrency"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{})
			require.Error(t, err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantErr)
		})
	}
}
