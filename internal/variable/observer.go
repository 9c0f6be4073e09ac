package variable

// Observer receives the lifecycle transitions of a variable. For every
// committed recomputation it is called with Pending first and then exactly
// one of Fulfilled or Rejected. Calls arrive in registration order and are
// serialized per variable; callbacks must not block indefinitely, since
// they run on the engine's computation goroutines.
//
// Superseded rounds deliver no terminal transition: a round that is
// discarded by the generation check simply never settles for observers.
type Observer interface {
	Pending()
	Fulfilled(value any)
	Rejected(err error)
}

// Observation is the registration handle returned by Observe.
type Observation struct {
	id       uint64
	observer Observer
}

// Funcs is an Observer built from optional callbacks. Nil fields are
// skipped.
type Funcs struct {
	OnPending   func()
	OnFulfilled func(value any)
	OnRejected  func(err error)
}

func (f *Funcs) Pending() {
	if f.OnPending != nil {
		f.OnPending()
	}
}

func (f *Funcs) Fulfilled(value any) {
	if f.OnFulfilled != nil {
		f.OnFulfilled(value)
	}
}

func (f *Funcs) Rejected(err error) {
	if f.OnRejected != nil {
		f.OnRejected(err)
	}
}

// Observe registers an observer and returns its handle. Registration does
// not replay the current state; the observer sees transitions from the next
// round onward.
func (v *Variable) Observe(o Observer) *Observation {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextObsID++
	reg := &Observation{id: v.nextObsID, observer: o}
	v.observers = append(v.observers, reg)
	return reg
}

// ObserveReplay registers an observer and, when the variable has already
// settled, delivers the terminal transition to the new observer before
// returning. Registration and replay are one delivery-ordered unit: a
// commit racing with ObserveReplay either lands before it and is covered by
// the replay, or lands after it and is delivered through the registration,
// never both.
func (v *Variable) ObserveReplay(o Observer) *Observation {
	v.deliverMu.Lock()
	defer v.deliverMu.Unlock()

	v.mu.Lock()
	v.nextObsID++
	reg := &Observation{id: v.nextObsID, observer: o}
	v.observers = append(v.observers, reg)
	state, value, err := v.state, v.value, v.err
	v.mu.Unlock()

	switch state {
	case Fulfilled:
		o.Fulfilled(value)
	case Rejected:
		o.Rejected(err)
	}
	return reg
}

// Unobserve removes a previously registered observer. Removing a handle
// twice, or a handle from another variable, is a no-op.
func (v *Variable) Unobserve(reg *Observation) {
	if reg == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, o := range v.observers {
		if o.id == reg.id {
			v.observers = append(v.observers[:i], v.observers[i+1:]...)
			return
		}
	}
}

// snapshotObserversLocked copies the observer list so transitions can be
// delivered outside mu. Callers hold mu.
func (v *Variable) snapshotObserversLocked() []*Observation {
	if len(v.observers) == 0 {
		return nil
	}
	out := make([]*Observation, len(v.observers))
	copy(out, v.observers)
	return out
}
