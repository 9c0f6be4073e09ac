// Package display renders variable lifecycle transitions to a writer. It
// is a consumer of the runtime's observer contract and deliberately lives
// outside the engine: the engine guarantees the call ordering, the display
// decides what a transition looks like.
package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/vk/cellgridgo/internal/variable"
)

// Console writes one line per terminal transition. Writes from concurrent
// variables are serialized so lines never interleave.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console display writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Watch attaches the console to a variable and returns the observation
// handle, which the caller passes to variable.Unobserve to detach. A
// variable that already settled before Watch is rendered immediately;
// registration and replay are atomic with respect to commits, so a
// fulfillment racing with Watch renders exactly once.
func (c *Console) Watch(v *variable.Variable) *variable.Observation {
	name := v.Name()
	if name == "" {
		name = "(anonymous)"
	}
	return v.ObserveReplay(&cellView{console: c, name: name})
}

// cellView is the per-variable observer bound to a console.
type cellView struct {
	console *Console
	name    string
}

// Pending is a no-op: a console has no display region to clear.
func (cv *cellView) Pending() {}

func (cv *cellView) Fulfilled(value any) {
	cv.console.mu.Lock()
	defer cv.console.mu.Unlock()
	fmt.Fprintf(cv.console.w, "%s = %v\n", cv.name, value)
}

func (cv *cellView) Rejected(err error) {
	cv.console.mu.Lock()
	defer cv.console.mu.Unlock()
	fmt.Fprintf(cv.console.w, "%s ! %v\n", cv.name, err)
}
