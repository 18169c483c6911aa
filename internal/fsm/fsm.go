// Package fsm provides a minimal transition-table state machine.
//
// The machine is generic over any two comparable types and carries no domain
// knowledge. Only explicitly registered (state, event) pairs transition;
// everything else is a defined no-op, which lets callers absorb late or
// out-of-order events without error handling at every call site.
package fsm

// Machine is a transition-table state machine over states S and events E.
//
// Machine is not safe for concurrent use; callers serialize access.
type Machine[S, E comparable] struct {
	current     S
	transitions map[S]map[E]S
}

// New creates a machine in the given initial state with no transitions
// registered.
func New[S, E comparable](initial S) *Machine[S, E] {
	return &Machine[S, E]{
		current:     initial,
		transitions: make(map[S]map[E]S),
	}
}

// Register declares that event ev moves the machine from state `from` to
// state `to`. There are no wildcard or default transitions; every valid pair
// must be registered explicitly.
func (m *Machine[S, E]) Register(from S, ev E, to S) {
	events, ok := m.transitions[from]
	if !ok {
		events = make(map[E]S)
		m.transitions[from] = events
	}
	events[ev] = to
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	return m.current
}

// Peek returns the state ev would transition to from the current state,
// without mutating the machine.
func (m *Machine[S, E]) Peek(ev E) (S, bool) {
	next, ok := m.transitions[m.current][ev]
	return next, ok
}

// Transition applies ev. If a transition is registered for the current state
// it mutates the machine and returns the new state with ok=true. Otherwise
// state is unchanged and ok=false; this is a defined outcome, not an error.
func (m *Machine[S, E]) Transition(ev E) (S, bool) {
	next, ok := m.transitions[m.current][ev]
	if !ok {
		var zero S
		return zero, false
	}
	m.current = next
	return next, true
}
