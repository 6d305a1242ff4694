package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/pipegrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("pipegrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
pipegrid - Runs declarative pipe graphs over typed working memory.

Usage:
  pipegrid [options] -pipe ROOT_PIPE [LIBRARY_PATH]

Arguments:
  LIBRARY_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	var inputs stringList
	libraryFlag := flagSet.String("library", "", "Path to the library file or directory.")
	lFlag := flagSet.String("l", "", "Path to the library file or directory (shorthand).")
	pipeFlag := flagSet.String("pipe", "", "Code of the root pipe to run.")
	inputsFileFlag := flagSet.String("inputs", "", "Path to a YAML file with the run inputs.")
	flagSet.Var(&inputs, "input", "Inline input as name=Concept:value. Repeatable; list concepts take comma-separated values.")
	outputNameFlag := flagSet.String("output-name", "", "Name the output of a non-sequence root pipe is bound under.")
	outputFlag := flagSet.String("output", "", "Write the result JSON to this file instead of stdout.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFileFlag := flagSet.String("log-file", "", "Also write JSON logs to this file.")
	concurrencyFlag := flagSet.Int("max-concurrency", 0, "Maximum concurrent branches per parallel or batch pipe. 0 is unbounded.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Serve llm, extract and img_gen pipes with mock content.")
	tagStyleFlag := flagSet.String("tag-style", "ticks", "Block tag style. Options: 'ticks', 'xml', 'square_brackets', 'no_tag'.")
	eventsURLFlag := flagSet.String("events-url", "", "socket.io server URL that receives run events.")
	eventsNamespaceFlag := flagSet.String("events-namespace", "/", "socket.io namespace for run events.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *libraryFlag != "" {
		path = *libraryFlag
	} else if *lFlag != "" {
		path = *lFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Library path determined.", "path", path)

	if path == "" {
		slog.Debug("No library path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if *pipeFlag == "" {
		return nil, false, &ExitError{Code: 2, Message: "missing -pipe: the root pipe to run is required"}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		LibraryPath:     path,
		RootPipe:        *pipeFlag,
		InputsPath:      *inputsFileFlag,
		Inputs:          inputs,
		OutputName:      *outputNameFlag,
		OutputPath:      *outputFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		LogFile:         *logFileFlag,
		HealthcheckPort: *healthPortFlag,
		MaxConcurrency:  *concurrencyFlag,
		DryRun:          *dryRunFlag,
		TagStyle:        *tagStyleFlag,
		EventsURL:       *eventsURLFlag,
		EventsNamespace: *eventsNamespaceFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
