// Package registry holds the source kinds available to a notebook. A
// source kind ("ticker", "socketio", ...) compiles a cell block whose
// source attribute names it into an executable cell.Definition. Expression
// cells bypass the registry entirely; they are compiled by
// internal/exprcell.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/notebook"
)

// Source compiles cells of one kind.
type Source interface {
	// Kind is the value a cell's source attribute uses to select this module.
	Kind() string

	// Compile turns the cell block into an executable definition,
	// decoding any source-specific attributes from the cell's remaining
	// body.
	Compile(ctx context.Context, c *notebook.Cell) (cell.Definition, error)
}

// Registry maps source kinds to their modules for a single application
// instance.
type Registry struct {
	sources map[string]Source
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// RegisterSource registers a source module. Registering the same kind twice
// is a programmer error.
func (r *Registry) RegisterSource(s Source) {
	if _, exists := r.sources[s.Kind()]; exists {
		panic(fmt.Sprintf("source kind %q already registered", s.Kind()))
	}
	slog.Debug("Registering source module.", "kind", s.Kind())
	r.sources[s.Kind()] = s
}

// Source returns the module registered for the given kind.
func (r *Registry) Source(kind string) (Source, bool) {
	s, ok := r.sources[kind]
	return s, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.sources))
	for k := range r.sources {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
