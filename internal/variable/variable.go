// Package variable implements the runtime node backing one notebook cell.
//
// A Variable tracks the cell's current definition, its lifecycle state, its
// last committed value and a monotonically increasing generation counter.
// The generation counter is the staleness guard: every computation captures
// the generation it was started for, and a result commits only while the
// variable is still at that generation. A redefinition, deletion or newer
// recomputation bumps the counter, which silently invalidates every older
// in-flight result.
//
// Variables are mutated only by the engine on their behalf; observers and
// other readers use the accessor methods, which are safe to call from any
// goroutine, including from inside an observer callback.
package variable

import (
	"sync"

	"github.com/vk/cellgridgo/internal/cell"
)

// State is the lifecycle state of a Variable.
type State int32

const (
	// Fresh means the variable has never been computed. Placeholders for
	// forward references stay Fresh until their name is defined.
	Fresh State = iota
	// Pending means a recomputation round has started and not yet settled.
	Pending
	// Fulfilled means the last round committed a value.
	Fulfilled
	// Rejected means the last round committed an error.
	Rejected
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Variable is one node of a notebook module. Identity is stable across
// redefinition: the engine swaps the definition in place so that downstream
// edges and observers survive.
type Variable struct {
	name string

	// deliverMu serializes observer notification rounds. It is always
	// acquired before mu, and held across the callback calls so that no
	// observer ever sees transitions out of order. Accessors take only mu
	// and therefore remain callable from inside a callback.
	deliverMu sync.Mutex

	mu         sync.Mutex
	def        cell.Definition
	defined    bool
	state      State
	value      any
	err        error
	generation uint64

	observers []*Observation
	nextObsID uint64
}

// New returns a Fresh, undefined variable for the given output name. An
// empty name makes the variable anonymous.
func New(name string) *Variable {
	return &Variable{name: name}
}

// Name returns the output name, or "" for an anonymous variable.
func (v *Variable) Name() string {
	return v.name
}

// Defined reports whether the variable currently holds a definition.
// Placeholders created for forward references report false until the
// referenced name is defined.
func (v *Variable) Defined() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.defined
}

// Definition returns the current definition. The zero Definition is
// returned for an undefined variable.
func (v *Variable) Definition() cell.Definition {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.def
}

// State returns the current lifecycle state.
func (v *Variable) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Value returns the last committed value. It is meaningful only while the
// variable is Fulfilled.
func (v *Variable) Value() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Err returns the last committed error. It is meaningful only while the
// variable is Rejected.
func (v *Variable) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Generation returns the current generation counter.
func (v *Variable) Generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.generation
}

// Peek returns state, value and error in one consistent read.
func (v *Variable) Peek() (State, any, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state, v.value, v.err
}

// SetDefinition installs a new definition and bumps the generation, which
// discards every in-flight result of the previous definition. It does not
// notify observers; the recomputation round that follows does.
func (v *Variable) SetDefinition(def cell.Definition) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.def = def
	v.defined = true
	v.generation++
}

// Retire strips the definition and bumps the generation. The engine calls
// it when the variable is deleted from its module; any in-flight result is
// discarded by the generation check.
func (v *Variable) Retire() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.def = cell.Definition{}
	v.defined = false
	v.state = Fresh
	v.value = nil
	v.err = nil
	v.generation++
}

// BeginRound starts a recomputation round: it bumps the generation, moves
// the variable to Pending and notifies observers. The returned generation
// must be passed to Fulfill, Reject or EmitNext to commit the round.
func (v *Variable) BeginRound() uint64 {
	v.deliverMu.Lock()
	defer v.deliverMu.Unlock()

	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.state = Pending
	obs := v.snapshotObserversLocked()
	v.mu.Unlock()

	for _, o := range obs {
		o.observer.Pending()
	}
	return gen
}

// Fulfill commits a value for the given round. It reports false, changing
// nothing, if the round went stale in the meantime.
func (v *Variable) Fulfill(gen uint64, value any) bool {
	v.deliverMu.Lock()
	defer v.deliverMu.Unlock()

	v.mu.Lock()
	if v.generation != gen {
		v.mu.Unlock()
		return false
	}
	v.state = Fulfilled
	v.value = value
	v.err = nil
	obs := v.snapshotObserversLocked()
	v.mu.Unlock()

	for _, o := range obs {
		o.observer.Fulfilled(value)
	}
	return true
}

// Reject commits an error for the given round. It reports false, changing
// nothing, if the round went stale in the meantime.
func (v *Variable) Reject(gen uint64, err error) bool {
	v.deliverMu.Lock()
	defer v.deliverMu.Unlock()

	v.mu.Lock()
	if v.generation != gen {
		v.mu.Unlock()
		return false
	}
	v.state = Rejected
	v.value = nil
	v.err = err
	obs := v.snapshotObserversLocked()
	v.mu.Unlock()

	for _, o := range obs {
		o.observer.Rejected(err)
	}
	return true
}

// EmitNext commits one streamed value as a new generation. The caller
// passes the generation of the previous emission (or of the round that
// produced the stream); on success the variable advances to the returned
// generation and re-enters Fulfilled. A false report means the stream has
// been superseded and the pump must stop.
func (v *Variable) EmitNext(gen uint64, value any) (uint64, bool) {
	v.deliverMu.Lock()
	defer v.deliverMu.Unlock()

	v.mu.Lock()
	if v.generation != gen {
		v.mu.Unlock()
		return 0, false
	}
	v.generation++
	next := v.generation
	v.state = Fulfilled
	v.value = value
	v.err = nil
	obs := v.snapshotObserversLocked()
	v.mu.Unlock()

	for _, o := range obs {
		o.observer.Fulfilled(value)
	}
	return next, true
}
