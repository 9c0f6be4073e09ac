package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/display"
	"github.com/vk/cellgridgo/internal/engine"
	"github.com/vk/cellgridgo/internal/notebook"
	"github.com/vk/cellgridgo/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	logW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	notebook *notebook.Notebook
	config   *Config
	console  *display.Console

	module     *engine.Module
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and registry. Logs
// go to logW; cell values rendered by the display go to displayW.
//
// A failure to load the notebook is a fatal startup error and panics; the
// CLI entrypoint recovers it into a clean exit.
func NewApp(logW, displayW io.Writer, cfg *Config, sources ...registry.Source) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	nb, err := notebook.LoadRecursively(ctx, cfg.NotebookPath)
	if err != nil {
		panic(fmt.Errorf("failed to load notebook: %w", err))
	}

	reg := registry.New()
	if len(sources) == 0 {
		sources = coreSources
	}
	for _, s := range sources {
		reg.RegisterSource(s)
	}
	logger.Debug("All source modules registered.", "kinds", reg.Kinds())

	return &App{
		logW:     logW,
		logger:   logger,
		registry: reg,
		notebook: nb,
		config:   cfg,
		console:  display.NewConsole(displayW),
	}
}

// Module returns the app's engine module. It is nil until Run has started.
// This is primarily for testing and the inspection endpoint.
func (a *App) Module() *engine.Module {
	return a.module
}

// Notebook returns the loaded document model. This is primarily for testing.
func (a *App) Notebook() *notebook.Notebook {
	return a.notebook
}
