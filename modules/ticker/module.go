// Package ticker provides the 'ticker' source kind: a streaming cell that
// emits an incrementing counter at a fixed interval. It exists both as a
// live-cell building block (animations, clocks) and as the simplest
// exercise of the runtime's stream scheduling.
package ticker

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/notebook"
	"github.com/vk/cellgridgo/internal/registry"
)

// Module implements the registry.Source interface for this package.
type Module struct{}

// input defines the attributes of a ticker cell.
type input struct {
	IntervalMS int64 `hcl:"interval_ms,optional"`
	// Limit stops the stream after this many emissions. Zero means the
	// stream runs until the module's context ends.
	Limit int64 `hcl:"limit,optional"`
}

// Kind returns the source kind this module compiles.
func (m *Module) Kind() string { return "ticker" }

// Compile builds a streaming definition emitting 0, 1, 2, ... at the
// configured interval.
func (m *Module) Compile(_ context.Context, c *notebook.Cell) (cell.Definition, error) {
	in := &input{IntervalMS: 1000}
	if diags := gohcl.DecodeBody(c.Remain, nil, in); diags.HasErrors() {
		return cell.Definition{}, fmt.Errorf("cell %q: %w", c.Name, diags)
	}
	if in.IntervalMS <= 0 {
		return cell.Definition{}, fmt.Errorf("cell %q: interval_ms must be positive", c.Name)
	}
	interval := time.Duration(in.IntervalMS) * time.Millisecond
	limit := in.Limit

	compute := func(ctx context.Context, _ map[string]any) (cell.Result, error) {
		ch := make(chan any)
		go func() {
			defer close(ch)
			t := time.NewTicker(interval)
			defer t.Stop()
			for i := int64(0); limit == 0 || i < limit; i++ {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
				}
				select {
				case <-ctx.Done():
					return
				case ch <- i:
				}
			}
		}()
		return cell.StreamOf(ch), nil
	}

	return cell.Definition{
		Output:  c.Name,
		Compute: compute,
		Flags:   cell.Flags{Autodisplay: c.Display()},
	}, nil
}

var _ registry.Source = (*Module)(nil)
