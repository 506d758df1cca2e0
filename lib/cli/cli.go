package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/snowmerak/bundle.go/lib/config"
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

// Parse processes command-line arguments. It returns the loaded configuration with flag
// overrides applied, a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*config.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("bundlehost", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
bundlehost - installs the packaged bundles and serves them over HTTP.

Usage:
  bundlehost [options]

Configuration is read from defaults, then the -config file, then BUNDLEGO_* environment
variables, then the flags below.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to a YAML configuration file.")
	addrFlag := flagSet.String("addr", "", "HTTP listen address, overrides the configuration.")
	logLevelFlag := flagSet.String("log-level", "", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFormatFlag := flagSet.String("log-format", "", "Log output format. Options: 'text' or 'json'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument %q", flagSet.Arg(0))}
	}

	if *logLevelFlag != "" {
		switch strings.ToLower(*logLevelFlag) {
		case "debug", "info", "warn", "error":
		default:
			return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
		}
	}
	if *logFormatFlag != "" {
		switch strings.ToLower(*logFormatFlag) {
		case "text", "json":
		default:
			return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
		}
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if *logLevelFlag != "" {
		cfg.LogLevel = strings.ToLower(*logLevelFlag)
	}
	if *logFormatFlag != "" {
		cfg.LogFormat = strings.ToLower(*logFormatFlag)
	}

	slog.Debug("CLI parser finished successfully.", "config", *configFlag, "addr", cfg.Addr)
	return &cfg, false, nil
}
