// Package env_vars provides the 'env_vars' source kind: a cell whose value
// is a map of the process environment, optionally filtered by prefix.
package env_vars

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/notebook"
	"github.com/vk/cellgridgo/internal/registry"
)

// Module implements the registry.Source interface for this package.
type Module struct{}

// input defines the attributes of an env_vars cell.
type input struct {
	// Prefix keeps only variables whose name starts with it. The prefix is
	// stripped from the keys of the result.
	Prefix string `hcl:"prefix,optional"`
}

// Kind returns the source kind this module compiles.
func (m *Module) Kind() string { return "env_vars" }

// Compile builds a definition whose value is the environment as a
// map[string]any. The environment is re-read on every recomputation.
func (m *Module) Compile(_ context.Context, c *notebook.Cell) (cell.Definition, error) {
	in := &input{}
	if diags := gohcl.DecodeBody(c.Remain, nil, in); diags.HasErrors() {
		return cell.Definition{}, fmt.Errorf("cell %q: %w", c.Name, diags)
	}
	prefix := in.Prefix

	compute := func(_ context.Context, _ map[string]any) (cell.Result, error) {
		env := make(map[string]any)
		for _, e := range os.Environ() {
			pair := strings.SplitN(e, "=", 2)
			if len(pair) != 2 {
				continue
			}
			key, value := pair[0], pair[1]
			if prefix != "" {
				if !strings.HasPrefix(key, prefix) {
					continue
				}
				key = strings.TrimPrefix(key, prefix)
			}
			env[key] = value
		}
		return cell.Of(env), nil
	}

	return cell.Definition{
		Output:  c.Name,
		Compute: compute,
		Flags:   cell.Flags{Autodisplay: c.Display()},
	}, nil
}

var _ registry.Source = (*Module)(nil)
