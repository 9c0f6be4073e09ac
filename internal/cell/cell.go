// Package cell defines the compiled form of a notebook cell: an immutable
// description of its inputs, the name it outputs, and the computation that
// turns input values into a result.
//
// A Definition is produced by an external compiler (for example the HCL
// expression compiler in internal/exprcell, or a source module such as
// modules/ticker) and handed to the runtime. The runtime never inspects a
// cell's source; it only ever sees Definitions.
package cell

import "context"

// ComputeFunc evaluates a cell. It receives the current value of every
// declared input, keyed by input name. The returned Result is either a
// single value or a stream of values; returning an error rejects the cell.
type ComputeFunc func(ctx context.Context, inputs map[string]any) (Result, error)

// Flags control side effects the display layer performs once a cell
// fulfills. They never affect scheduling.
type Flags struct {
	// Autodisplay renders the cell's value whenever it fulfills.
	Autodisplay bool
	// Autoview renders an input widget alongside the value.
	Autoview bool
	// Automutable exposes the value as a mutable view to other consumers.
	Automutable bool
}

// Definition is the immutable compiled form of one cell.
type Definition struct {
	// Inputs is the ordered list of names this cell reads. Order matters:
	// when several inputs fail, the first failing input in this order
	// determines the reported dependency error.
	Inputs []string

	// Output is the name this cell provides to the rest of the notebook.
	// An empty Output makes the cell an anonymous sink: it can observe
	// inputs but nothing can depend on it.
	Output string

	// Compute produces the cell's value from its input values.
	Compute ComputeFunc

	Flags Flags
}
