package testutil

import (
	"context"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/notebook"
	"github.com/vk/cellgridgo/internal/registry"
)

// FuncSource is a self-contained source kind for tests. It hands every cell
// of its kind to the provided CompileFn.
type FuncSource struct {
	KindName  string
	CompileFn func(ctx context.Context, c *notebook.Cell) (cell.Definition, error)
}

// Kind implements registry.Source.
func (s *FuncSource) Kind() string { return s.KindName }

// Compile implements registry.Source.
func (s *FuncSource) Compile(ctx context.Context, c *notebook.Cell) (cell.Definition, error) {
	return s.CompileFn(ctx, c)
}

var _ registry.Source = (*FuncSource)(nil)
