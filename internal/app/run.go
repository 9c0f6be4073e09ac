package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/engine"
	"github.com/vk/cellgridgo/internal/exprcell"
	"github.com/vk/cellgridgo/internal/notebook"
)

// Run executes the loaded notebook: it compiles every cell, defines them
// into a fresh engine module, binds the display, and waits for the
// notebook to settle. For notebooks with live cells the wait is bounded by
// the configured settle timeout, after which the run shuts down cleanly.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.module = engine.New(runCtx)

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.config.HealthcheckPort)
		defer a.stopHealthcheckServer()
	}

	a.logger.Info("🚀 Evaluating notebook.", "cells", len(a.notebook.Cells))
	for _, c := range a.notebook.Cells {
		def, err := a.compileCell(ctx, c)
		if err != nil {
			return err
		}
		v, err := a.module.Define(def)
		if err != nil {
			return fmt.Errorf("defining cell %q: %w", c.Name, err)
		}
		if c.Display() {
			a.console.Watch(v)
		}
	}

	waitCtx := runCtx
	if a.config.SettleTimeout > 0 {
		var waitCancel context.CancelFunc
		waitCtx, waitCancel = context.WithTimeout(runCtx, a.config.SettleTimeout)
		defer waitCancel()
	}

	err := a.module.WaitSettled(waitCtx)
	switch {
	case err == nil:
		a.logger.Info("🏁 Notebook settled.", "variables", len(a.module.Snapshot()))
	case errors.Is(err, context.DeadlineExceeded):
		// Live cells keep a notebook from ever settling for good; the
		// timeout is the intended way to end such a run.
		a.logger.Info("🏁 Settle timeout reached, stopping live cells.")
	default:
		return fmt.Errorf("waiting for notebook to settle: %w", err)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// compileCell turns one document cell into an executable definition, using
// the expression compiler or the registered source kind.
func (a *App) compileCell(ctx context.Context, c *notebook.Cell) (cell.Definition, error) {
	if c.Source == "" {
		return exprcell.Compile(c.Name, c.Expr, cell.Flags{Autodisplay: c.Display()})
	}
	src, ok := a.registry.Source(c.Source)
	if !ok {
		return cell.Definition{}, fmt.Errorf("cell %q: unknown source kind %q (registered: %v)",
			c.Name, c.Source, a.registry.Kinds())
	}
	return src.Compile(ctx, c)
}
