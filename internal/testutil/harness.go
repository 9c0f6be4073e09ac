// Package testutil provides the shared harness for integration-style tests
// that run a whole notebook through the app layer.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/cellgridgo/internal/app"
	"github.com/vk/cellgridgo/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of a notebook test run.
type HarnessResult struct {
	// DisplayOutput is everything the console display rendered.
	DisplayOutput string
	LogOutput     string
	Err           error
	App           *app.App
}

// RunNotebook provides a standardized harness for running notebook
// integration tests with a default background context.
func RunNotebook(t *testing.T, files map[string]string, sources ...registry.Source) *HarnessResult {
	t.Helper()
	return RunNotebookWithContext(context.Background(), t, files, sources...)
}

// RunNotebookWithContext writes the given HCL files into a temporary
// directory, runs them through a fresh App, and captures display and log
// output. Startup panics are recovered into HarnessResult.Err.
func RunNotebookWithContext(ctx context.Context, t *testing.T, files map[string]string, sources ...registry.Source) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	appConfig := &app.Config{
		NotebookPath: tmpDir,
		LogLevel:     "debug",
		LogFormat:    "text",
		// Live cells never settle on their own; bound every test run.
		SettleTimeout: 2 * time.Second,
	}

	logBuffer := &SafeBuffer{}
	displayBuffer := &SafeBuffer{}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, displayBuffer, appConfig, sources...)
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
		}
	}

	runErr := testApp.Run(ctx)

	if os.Getenv("CELLGRID_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		DisplayOutput: displayBuffer.String(),
		LogOutput:     logBuffer.String(),
		Err:           runErr,
		App:           testApp,
	}
}
