// Package notebook loads the HCL document model of a notebook: the set of
// cell blocks a user authored, possibly split across many files. The loader
// only aggregates cells; compiling a cell into an executable definition is
// the concern of internal/exprcell and the source modules.
package notebook

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/fsutil"
)

// Cell is one `cell "name" { ... }` block. A cell either carries an expr
// attribute (an expression cell, compiled by internal/exprcell) or names a
// source kind whose module interprets the remaining body.
type Cell struct {
	Name string `hcl:"name,label"`

	// Source selects a registered source kind ("ticker", "socketio", ...).
	// Empty means the cell is an expression cell and Expr must be set.
	Source string `hcl:"source,optional"`

	// Expr is the cell's expression, kept unevaluated: its variable
	// references become the cell's inputs and it is evaluated against
	// their values on every recomputation.
	Expr hcl.Expression `hcl:"expr,optional"`

	// Autodisplay overrides the default of rendering the cell's value on
	// every fulfillment.
	Autodisplay *bool `hcl:"autodisplay,optional"`

	// Remain carries the source-specific attributes for the module that
	// compiles this cell.
	Remain hcl.Body `hcl:",remain"`

	// File is the path the cell was loaded from, for error messages.
	File string
}

// Display reports whether the cell's value should be rendered on
// fulfillment. Cells display by default.
func (c *Cell) Display() bool {
	if c.Autodisplay != nil {
		return *c.Autodisplay
	}
	return true
}

// Notebook is the aggregated document model of one notebook.
type Notebook struct {
	Cells []*Cell
}

// hclNotebookFile is the top-level structure of a notebook file for decoding.
type hclNotebookFile struct {
	Cells []*Cell `hcl:"cell,block"`
}

// newCellsFromHCL parses a single HCL file and returns the cells found in it.
func newCellsFromHCL(filePath string, parser *hclparse.Parser) ([]*Cell, error) {
	hclFile, diags := parser.ParseHCLFile(filePath)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filePath, diags)
	}

	var parsedFile hclNotebookFile
	diags = gohcl.DecodeBody(hclFile.Body, nil, &parsedFile)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filePath, diags)
	}

	for _, c := range parsedFile.Cells {
		c.File = filePath
		if err := c.validate(); err != nil {
			return nil, err
		}
	}
	return parsedFile.Cells, nil
}

func (c *Cell) validate() error {
	hasExpr := c.Expr != nil && !exprAbsent(c.Expr)
	switch {
	case c.Source == "" && !hasExpr:
		return fmt.Errorf("cell %q in %s: needs either an expr or a source", c.Name, c.File)
	case c.Source != "" && hasExpr:
		return fmt.Errorf("cell %q in %s: expr and source are mutually exclusive", c.Name, c.File)
	}
	return nil
}

// exprAbsent reports whether the optional expr attribute was omitted. gohcl
// decodes a missing expression field as a null literal.
func exprAbsent(expr hcl.Expression) bool {
	v, diags := expr.Value(nil)
	return !diags.HasErrors() && v.IsNull()
}

// LoadRecursively finds and parses all HCL files under path into a Notebook.
func LoadRecursively(ctx context.Context, path string) (*Notebook, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading notebook from path.", "path", path)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to find notebook files in %s: %w", path, err)
	}

	nb := &Notebook{}
	if len(files) == 0 {
		logger.Warn("No .hcl notebook files found in path, returning empty notebook.", "path", path)
		return nb, nil
	}

	parser := hclparse.NewParser()
	for _, file := range files {
		cells, err := newCellsFromHCL(file, parser)
		if err != nil {
			return nil, err
		}
		nb.Cells = append(nb.Cells, cells...)
	}

	logger.Info("Notebook loaded.", "files", len(files), "cells", len(nb.Cells))
	return nb, nil
}
