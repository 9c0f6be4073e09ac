package engine

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/variable"
)

// links holds the dependency edges of one variable. The inputs slice is
// positional, matching the variable's Definition.Inputs; dependents is the
// reverse edge set. Both are guarded by the module mutex.
type links struct {
	inputs     []*variable.Variable
	dependents map[*variable.Variable]struct{}
}

// Module is one notebook's variable graph plus its scheduler state. Modules
// are independent: several can coexist in a process and variables never
// cross between them. There is no global registry.
type Module struct {
	// ctx is the module's base context. Compute functions receive it and
	// stream pumps stop when it is cancelled.
	ctx context.Context

	mu    sync.Mutex
	names map[string]*variable.Variable
	links map[*variable.Variable]*links

	// dirty is the deduplicated pending-invalidation queue consumed by the
	// dispatcher.
	dirty    []*variable.Variable
	dirtySet map[*variable.Variable]struct{}

	// dispatching is true while the dispatcher goroutine is alive. idleCh
	// is closed whenever the dispatcher drains all work and exits, and
	// replaced with an open channel when work arrives. wake nudges a
	// waiting dispatcher when a pass completes or new work lands.
	dispatching bool
	idleCh      chan struct{}
	wake        chan struct{}

	// active holds the members of every in-flight pass; activePasses
	// counts the passes themselves.
	active       map[*variable.Variable]struct{}
	activePasses int

	// live counts active stream pumps. settled mirrors the WaitSettled
	// condition; settleCh is closed while it holds.
	live     int
	settled  bool
	settleCh chan struct{}
}

// New creates an empty module. The context bounds the lifetime of every
// computation the module starts; cancelling it stops stream pumps and is
// visible to compute functions.
func New(ctx context.Context) *Module {
	idle := make(chan struct{})
	close(idle)
	settle := make(chan struct{})
	close(settle)
	return &Module{
		ctx:      ctx,
		names:    make(map[string]*variable.Variable),
		links:    make(map[*variable.Variable]*links),
		dirtySet: make(map[*variable.Variable]struct{}),
		idleCh:   idle,
		wake:     make(chan struct{}, 1),
		active:   make(map[*variable.Variable]struct{}),
		settled:  true,
		settleCh: settle,
	}
}

// Define ingests a new cell definition. Input names that are not yet known
// resolve to placeholders, so cells may be defined in any order. Defining a
// name that already has a definition fails with DuplicateOutputError; a
// definition that would close a dependency cycle fails with
// CyclicDefinitionError. Both failures leave the module unchanged.
//
// An empty Output defines an anonymous sink: a variable that reads its
// inputs but is absent from the name table, so nothing can depend on it.
//
// Define never blocks on computation; the recomputation of the new variable
// and its dependents is scheduled asynchronously.
func (m *Module) Define(def cell.Definition) (*variable.Variable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if def.Output != "" {
		if v, ok := m.names[def.Output]; ok && v.Defined() {
			return nil, &DuplicateOutputError{Name: def.Output}
		}
	}
	return m.defineLocked(def)
}

// Redefine replaces the definition of def.Output in place, preserving the
// variable's identity and every downstream edge, and schedules the variable
// and its transitive dependents for exactly one recomputation each. If the
// name is not defined yet, Redefine behaves like Define.
func (m *Module) Redefine(def cell.Definition) (*variable.Variable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defineLocked(def)
}

// Delete removes the named variable from the module. Its dependents are
// rewired to a fresh placeholder under the same name (so a later Define
// rebinds them) and scheduled for recomputation, which will reject them
// with a missing-input DependencyError.
func (m *Module) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.names[name]
	if !ok || !v.Defined() {
		return fmt.Errorf("no cell defines %q", name)
	}
	l := m.links[v]

	// A deletion can outrun the scheduler: drop the variable from the
	// dirty queue so no round ever begins on it.
	if _, queued := m.dirtySet[v]; queued {
		delete(m.dirtySet, v)
		for i, d := range m.dirty {
			if d == v {
				m.dirty = append(m.dirty[:i], m.dirty[i+1:]...)
				break
			}
		}
		m.updateSettledLocked()
		m.wakeLocked()
	}

	for _, in := range l.inputs {
		if dl := m.links[in]; dl != nil {
			delete(dl.dependents, v)
			m.maybeCollectLocked(in)
		}
	}
	deps := l.dependents
	delete(m.links, v)
	delete(m.names, name)
	v.Retire()

	if len(deps) > 0 {
		p := variable.New(name)
		m.names[name] = p
		m.links[p] = &links{dependents: deps}
		for d := range deps {
			dl := m.links[d]
			for i, in := range dl.inputs {
				if in == v {
					dl.inputs[i] = p
				}
			}
		}
		for d := range deps {
			m.enqueueLocked(d)
		}
	}

	ctxlog.FromContext(m.ctx).Debug("Deleted cell.", "name", name, "dependents", len(deps))
	return nil
}

// Variable returns the variable currently bound to the given output name.
// It reports false for unknown names; forward-reference placeholders are
// returned as-is (their Defined method reports false).
func (m *Module) Variable(name string) (*variable.Variable, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.names[name]
	return v, ok
}

// VariableStatus is one row of a module state snapshot.
type VariableStatus struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Generation uint64 `json:"generation"`
}

// Snapshot reports the state of every named variable, sorted by name. It is
// the inspection surface used by the healthcheck server.
func (m *Module) Snapshot() []VariableStatus {
	m.mu.Lock()
	vars := make([]*variable.Variable, 0, len(m.names))
	for _, v := range m.names {
		vars = append(vars, v)
	}
	m.mu.Unlock()

	out := make([]VariableStatus, 0, len(vars))
	for _, v := range vars {
		out = append(out, VariableStatus{
			Name:       v.Name(),
			State:      v.State().String(),
			Generation: v.Generation(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WaitIdle blocks until the module is quiescent: no pass running and
// nothing dirty. A module with live stream cells goes idle between
// emissions; callers that want "settled for good" bound the wait with the
// context.
func (m *Module) WaitIdle(ctx context.Context) error {
	for {
		m.mu.Lock()
		if !m.dispatching && len(m.dirty) == 0 {
			m.mu.Unlock()
			return nil
		}
		idle := m.idleCh
		m.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitSettled blocks until the module is settled for good: idle and with no
// stream pumps alive. A module holding live cells never settles, so callers
// must bound the wait with the context.
func (m *Module) WaitSettled(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.settled {
			m.mu.Unlock()
			return nil
		}
		settle := m.settleCh
		m.mu.Unlock()

		select {
		case <-settle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// LiveCount reports the number of stream pumps currently alive.
func (m *Module) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// defineLocked creates or replaces the variable for def.Output. The cycle
// check runs before any mutation so a failed define is atomic.
func (m *Module) defineLocked(def cell.Definition) (*variable.Variable, error) {
	if def.Output != "" && slices.Contains(def.Inputs, def.Output) {
		return nil, &CyclicDefinitionError{Members: []string{def.Output, def.Output}}
	}

	var v *variable.Variable
	if def.Output != "" {
		v = m.names[def.Output]
	}

	// Resolve inputs without creating placeholders yet; a resolution miss
	// cannot contribute to a cycle.
	resolved := make([]*variable.Variable, len(def.Inputs))
	for i, name := range def.Inputs {
		resolved[i] = m.names[name]
	}

	if v != nil {
		for _, in := range resolved {
			if in == nil {
				continue
			}
			if stack := m.findCycleLocked(v, in); stack != nil {
				members := append([]string{v.Name()}, stack...)
				members = append(members, v.Name())
				return nil, &CyclicDefinitionError{Members: members}
			}
		}
	}

	// Past this point the define succeeds; mutate.
	var detached []*variable.Variable
	if v == nil {
		v = variable.New(def.Output)
		if def.Output != "" {
			m.names[def.Output] = v
		}
		m.links[v] = &links{dependents: make(map[*variable.Variable]struct{})}
	} else {
		detached = m.links[v].inputs
		m.links[v].inputs = nil
		for _, in := range detached {
			if dl := m.links[in]; dl != nil {
				delete(dl.dependents, v)
			}
		}
	}

	for i, name := range def.Inputs {
		in := resolved[i]
		if in == nil {
			in = m.names[name]
		}
		if in == nil {
			in = variable.New(name)
			m.names[name] = in
			m.links[in] = &links{dependents: make(map[*variable.Variable]struct{})}
		}
		resolved[i] = in
		m.links[in].dependents[v] = struct{}{}
	}
	m.links[v].inputs = resolved

	// Old inputs are collected only after the new edges exist, so a
	// placeholder reused by the new definition survives.
	for _, in := range detached {
		m.maybeCollectLocked(in)
	}

	v.SetDefinition(def)
	m.enqueueLocked(v)

	ctxlog.FromContext(m.ctx).Debug("Defined cell.",
		"name", def.Output, "inputs", def.Inputs, "generation", v.Generation())
	return v, nil
}

// findCycleLocked walks input edges from entry and reports the path of
// output names leading back to target, or nil when target is unreachable.
func (m *Module) findCycleLocked(target, entry *variable.Variable) []string {
	var stack []string
	visited := make(map[*variable.Variable]bool)

	var walk func(x *variable.Variable) bool
	walk = func(x *variable.Variable) bool {
		if x == target {
			return true
		}
		if visited[x] {
			return false
		}
		visited[x] = true
		l := m.links[x]
		if l == nil {
			return false
		}
		stack = append(stack, x.Name())
		for _, in := range l.inputs {
			if in != nil && walk(in) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		return false
	}

	if walk(entry) {
		return stack
	}
	return nil
}

// maybeCollectLocked drops a placeholder that nothing references anymore.
// Defined variables are never collected here; only Delete removes those.
func (m *Module) maybeCollectLocked(v *variable.Variable) {
	if v.Defined() {
		return
	}
	l := m.links[v]
	if l == nil || len(l.dependents) > 0 {
		return
	}
	delete(m.links, v)
	if v.Name() != "" && m.names[v.Name()] == v {
		delete(m.names, v.Name())
	}
}
