// Package exprcell compiles a cell's HCL expression into an executable
// cell.Definition. It is the "transpilation layer" collaborator of the
// runtime: the runtime itself never sees source, only the definitions
// produced here.
//
// Inputs are implicit: every root variable the expression references
// becomes an input of the cell, so `expr = 2 * radius` depends on the cell
// named "radius" without any explicit wiring.
package exprcell

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/cellgridgo/internal/cell"
)

// Compile turns an unevaluated HCL expression into a Definition that
// outputs under the given name. The expression is re-evaluated against the
// current input values on every recomputation.
func Compile(name string, expr hcl.Expression, flags cell.Flags) (cell.Definition, error) {
	if expr == nil {
		return cell.Definition{}, fmt.Errorf("cell %q has no expression", name)
	}

	inputs := referencedNames(expr)

	compute := func(_ context.Context, in map[string]any) (cell.Result, error) {
		vars := make(map[string]cty.Value, len(in))
		for k, v := range in {
			cv, err := ToCty(v)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", k, err)
			}
			vars[k] = cv
		}

		val, diags := expr.Value(&hcl.EvalContext{Variables: vars})
		if diags.HasErrors() {
			return nil, fmt.Errorf("evaluating expression: %w", diags)
		}

		out, err := FromCty(val)
		if err != nil {
			return nil, err
		}
		return cell.Of(out), nil
	}

	return cell.Definition{
		Inputs:  inputs,
		Output:  name,
		Compute: compute,
		Flags:   flags,
	}, nil
}

// referencedNames returns the unique root names the expression traverses,
// in order of first appearance.
func referencedNames(expr hcl.Expression) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		names = append(names, root)
	}
	return names
}
