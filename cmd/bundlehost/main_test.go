package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/bundle.go/lib/cli"
)

func TestRun_ShouldExit(t *testing.T) {
	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_InvalidFlag(t *testing.T) {
	err := run(context.Background(), &bytes.Buffer{}, []string{"-log-level", "loud"})

	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
}

func TestRun_StartsAndStopsWithEmbeddedBundles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// installing happens before the wait, so the signal arrives on a running host
	time.AfterFunc(500*time.Millisecond, cancel)
	out := &bytes.Buffer{}

	err := run(ctx, out, []string{"-addr", "127.0.0.1:0", "-log-format", "json"})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Runtime started.")
	assert.Contains(t, out.String(), `"delegate":true`)
	assert.Contains(t, out.String(), "Bundle host stopped.")
}

func TestRun_MissingPackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: 127.0.0.1:0\npackage_path: "+filepath.Join(t.TempDir(), "missing.jar")+"\n"), 0o600))

	err := run(context.Background(), &bytes.Buffer{}, []string{"-config", path})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundle host failed")
}
