package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/snowmerak/bundle.go/lib/cli"
	"github.com/snowmerak/bundle.go/lib/logging"
	"github.com/snowmerak/bundle.go/lib/runtime"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//go:embed bundles/*.jar
var bundles embed.FS

// main is the entrypoint for the bundle host.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run starts the host and blocks until ctx is done or the server fails.
func run(ctx context.Context, outW io.Writer, args []string) error {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, outW)
	slog.SetDefault(logger)

	rt := runtime.New(*cfg,
		runtime.WithLogger(logger),
		runtime.WithEmbedded(fs.FS(bundles)),
		runtime.WithVersion(version),
	)

	startErr := rt.Start(ctx)
	if startErr == nil {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received.")
		case startErr = <-rt.Err():
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown finished with errors.", "error", err)
		if startErr == nil {
			return err
		}
	}
	if startErr != nil {
		return fmt.Errorf("bundle host failed: %w", startErr)
	}

	logger.Info("Bundle host stopped.")
	return nil
}
