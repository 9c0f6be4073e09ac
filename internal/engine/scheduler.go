package engine

import (
	"fmt"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/variable"
)

// member is one variable of a pass closure, with its Kahn bookkeeping: the
// number of unsettled in-closure inputs and the in-closure dependents to
// unlock once this member settles.
type member struct {
	v          *variable.Variable
	dependents []*member
	waiting    int
}

// enqueueLocked adds a variable to the dirty queue, coalescing duplicates,
// and wakes the dispatcher. Callers hold m.mu.
func (m *Module) enqueueLocked(v *variable.Variable) {
	if _, ok := m.dirtySet[v]; ok {
		return
	}
	m.dirtySet[v] = struct{}{}
	m.dirty = append(m.dirty, v)

	if !m.dispatching {
		m.dispatching = true
		m.idleCh = make(chan struct{})
		go m.dispatch()
	} else {
		m.wakeLocked()
	}
	m.updateSettledLocked()
}

// wakeLocked nudges the dispatcher without blocking. One buffered token is
// enough: the dispatcher re-reads all module state on every wake. Callers
// hold m.mu.
func (m *Module) wakeLocked() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// updateSettledLocked reconciles the settled flag with the module state and
// swaps settleCh on transitions. Callers hold m.mu.
func (m *Module) updateSettledLocked() {
	now := !m.dispatching && len(m.dirty) == 0 && m.live == 0
	if now == m.settled {
		return
	}
	m.settled = now
	if now {
		close(m.settleCh)
	} else {
		m.settleCh = make(chan struct{})
	}
}

// addLive adjusts the live stream pump count.
func (m *Module) addLive(delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live += delta
	m.updateSettledLocked()
}

// dispatch is the scheduler loop. One instance runs while the module has
// work; on every wake it launches a pass for each dirty root whose closure
// is independent of the passes already in flight, then exits once the
// module is quiescent. Passes run on their own goroutines, so a slow
// computation delays only its own dependents, never an unrelated subgraph.
func (m *Module) dispatch() {
	logger := ctxlog.FromContext(m.ctx)
	for {
		m.mu.Lock()
		m.launchPassesLocked()
		if len(m.dirty) == 0 && m.activePasses == 0 {
			m.dispatching = false
			close(m.idleCh)
			m.updateSettledLocked()
			m.mu.Unlock()
			logger.Debug("Scheduler idle.")
			return
		}
		m.mu.Unlock()
		<-m.wake
	}
}

// launchPassesLocked starts a pass for every launchable dirty root. A root
// is launchable when its dependent closure neither shares a member with an
// in-flight pass nor reads an input one is still computing; anything else
// stays queued and is retried when a pass completes. Callers hold m.mu.
func (m *Module) launchPassesLocked() {
	if len(m.dirty) == 0 {
		return
	}
	logger := ctxlog.FromContext(m.ctx)
	var deferred []*variable.Variable
	deferredSet := make(map[*variable.Variable]struct{})
	launched := make(map[*variable.Variable]struct{})

	for _, root := range m.dirty {
		if _, ok := launched[root]; ok {
			// Coalesced into a closure launched earlier this sweep.
			continue
		}
		closure := m.buildClosureLocked([]*variable.Variable{root})
		if m.blockedByActiveLocked(closure) {
			deferred = append(deferred, root)
			deferredSet[root] = struct{}{}
			continue
		}
		for _, mb := range closure {
			m.active[mb.v] = struct{}{}
			launched[mb.v] = struct{}{}
		}
		m.activePasses++
		logger.Debug("Scheduling pass starting.", "root", root.Name(), "closure", len(closure))
		go m.runPass(closure)
	}

	m.dirty = deferred
	m.dirtySet = deferredSet
}

// blockedByActiveLocked reports whether the closure would race an in-flight
// pass: a shared member must not be computed twice concurrently, and an
// input still being computed must not be read before it settles for its
// round. Callers hold m.mu.
func (m *Module) blockedByActiveLocked(closure []*member) bool {
	for _, mb := range closure {
		if _, ok := m.active[mb.v]; ok {
			return true
		}
		if l := m.links[mb.v]; l != nil {
			for _, in := range l.inputs {
				if _, ok := m.active[in]; ok {
					return true
				}
			}
		}
	}
	return false
}

// buildClosureLocked expands the dirty roots into the transitive closure of
// their dependents and computes each member's in-closure in-degree.
// Callers hold m.mu; the closure is a snapshot, so a define landing after
// this point only affects the next pass.
func (m *Module) buildClosureLocked(roots []*variable.Variable) []*member {
	members := make(map[*variable.Variable]*member)
	queue := make([]*variable.Variable, 0, len(roots))
	for _, v := range roots {
		if _, ok := members[v]; ok {
			continue
		}
		members[v] = &member{v: v}
		queue = append(queue, v)
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		l := m.links[v]
		if l == nil {
			continue
		}
		for d := range l.dependents {
			if _, ok := members[d]; ok {
				continue
			}
			members[d] = &member{v: d}
			queue = append(queue, d)
		}
	}

	out := make([]*member, 0, len(members))
	for _, mb := range members {
		l := m.links[mb.v]
		if l != nil {
			seen := make(map[*member]struct{})
			for _, in := range l.inputs {
				src, ok := members[in]
				if !ok || src == mb {
					continue
				}
				if _, dup := seen[src]; dup {
					continue
				}
				seen[src] = struct{}{}
				mb.waiting++
				src.dependents = append(src.dependents, mb)
			}
		}
		out = append(out, mb)
	}
	return out
}

// runPass runs one scheduling pass to completion. Members with no
// unsettled in-closure inputs start immediately; every member launches on
// its own goroutine, so independent branches proceed concurrently. Once
// every member has settled for its current round the pass releases its
// members and wakes the dispatcher, which retries any roots it deferred.
func (m *Module) runPass(closure []*member) {
	done := make(chan *member)

	for _, mb := range closure {
		if mb.waiting == 0 {
			go m.runMember(mb, done)
		}
	}

	for settled := 0; settled < len(closure); settled++ {
		mb := <-done
		for _, d := range mb.dependents {
			d.waiting--
			if d.waiting == 0 {
				go m.runMember(d, done)
			}
		}
	}

	m.mu.Lock()
	for _, mb := range closure {
		delete(m.active, mb.v)
	}
	m.activePasses--
	m.wakeLocked()
	m.mu.Unlock()
	ctxlog.FromContext(m.ctx).Debug("Scheduling pass complete.", "closure", len(closure))
}

// runMember recomputes one variable and signals the pass when it settles.
func (m *Module) runMember(mb *member, done chan<- *member) {
	m.recompute(mb.v)
	done <- mb
}

// recompute runs one round for v: begin a generation, gather input values,
// invoke compute and commit the result. A rejected or unbound input short-
// circuits to a DependencyError without invoking compute. A variable that
// was deleted after its closure was built is skipped without a round, so
// observers of the retired variable see no further transitions.
func (m *Module) recompute(v *variable.Variable) {
	m.mu.Lock()
	_, present := m.links[v]
	m.mu.Unlock()
	if !present {
		return
	}

	round := v.BeginRound()

	m.mu.Lock()
	def := v.Definition()
	defined := v.Defined()
	_, present = m.links[v]
	var bound []*variable.Variable
	if l := m.links[v]; l != nil {
		bound = append(bound, l.inputs...)
	}
	m.mu.Unlock()

	if !present {
		// Deleted between the round beginning and this snapshot; the
		// retirement already made the round stale, so commit nothing.
		return
	}

	if !defined {
		v.Reject(round, &DependencyError{Input: v.Name(), Err: ErrNotDefined})
		return
	}

	inputs := make(map[string]any, len(def.Inputs))
	for i, name := range def.Inputs {
		if i >= len(bound) {
			v.Reject(round, &DependencyError{Input: name, Err: ErrNotDefined})
			return
		}
		in := bound[i]
		state, value, err := in.Peek()
		switch state {
		case variable.Fulfilled:
			inputs[name] = value
		case variable.Rejected:
			v.Reject(round, &DependencyError{Input: name, Err: err})
			return
		default:
			// Fresh: the input has no definition, or has never settled.
			v.Reject(round, &DependencyError{Input: name, Err: ErrNotDefined})
			return
		}
	}

	res, err := m.safeCompute(def, inputs)
	if err != nil {
		v.Reject(round, err)
		return
	}

	switch r := res.(type) {
	case cell.Single:
		v.Fulfill(round, r.Value)
	case cell.Stream:
		m.consumeStream(v, round, r.C)
	default:
		v.Fulfill(round, nil)
	}
}

// safeCompute invokes the definition's compute function, converting a panic
// or plain error into a ComputeError so no failure escapes the pass.
func (m *Module) safeCompute(def cell.Definition, inputs map[string]any) (res cell.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(m.ctx).Error("Compute panicked.", "cell", def.Output, "panic", r)
			res = nil
			err = &ComputeError{Cell: def.Output, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	res, err = def.Compute(m.ctx, inputs)
	if err != nil {
		err = &ComputeError{Cell: def.Output, Err: err}
	}
	return res, err
}

// consumeStream waits for the stream's first value, commits it as the
// round's result, then hands the channel to a background pump that turns
// every further emission into a new generation.
func (m *Module) consumeStream(v *variable.Variable, round uint64, ch <-chan any) {
	select {
	case value, ok := <-ch:
		if !ok {
			v.Reject(round, &ComputeError{Cell: v.Name(), Err: ErrEmptyStream})
			return
		}
		if !v.Fulfill(round, value) {
			return
		}
		m.addLive(1)
		go m.pumpStream(v, round, ch)
	case <-m.ctx.Done():
		v.Reject(round, &ComputeError{Cell: v.Name(), Err: m.ctx.Err()})
	}
}

// pumpStream forwards stream emissions into the variable until the stream
// closes, the module context ends, or the variable's generation goes stale
// (a redefine or delete superseded the stream). Each committed emission
// re-invalidates the variable's dependents.
func (m *Module) pumpStream(v *variable.Variable, gen uint64, ch <-chan any) {
	defer m.addLive(-1)
	for {
		select {
		case value, ok := <-ch:
			if !ok {
				return
			}
			next, committed := v.EmitNext(gen, value)
			if !committed {
				return
			}
			gen = next
			m.invalidateDependents(v)
		case <-m.ctx.Done():
			return
		}
	}
}

// invalidateDependents marks every direct dependent of v dirty, starting
// the dispatcher if needed.
func (m *Module) invalidateDependents(v *variable.Variable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.links[v]
	if l == nil {
		return
	}
	for d := range l.dependents {
		m.enqueueLocked(d)
	}
}
