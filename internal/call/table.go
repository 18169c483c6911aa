package call

import "github.com/runslikebutter/doorphone/internal/fsm"

// NewLifecycle builds the lifecycle machine for one call, starting at Idle.
//
// Only the pairs registered here transition; everything else is a silent
// no-op, which is how late pushes for an already-ended call get absorbed.
// Note the asymmetry for EventOpenedDoor: it folds to Idle only from Idle and
// Ringing. From Accepted/Ongoing a door release does not end the call.
func NewLifecycle() *fsm.Machine[State, Event] {
	m := fsm.New[State, Event](StateIdle)

	m.Register(StateIdle, EventCallDialing, StateRinging)
	m.Register(StateIdle, EventCallRejected, StateIdle)
	m.Register(StateIdle, EventCallCanceledByCaller, StateIdle)
	m.Register(StateIdle, EventOpenedDoor, StateIdle)

	m.Register(StateRinging, EventUserAcceptsCall, StateAccepted)
	m.Register(StateRinging, EventUserDeclinesCall, StateIdle)
	m.Register(StateRinging, EventCallCanceledByCaller, StateIdle)
	m.Register(StateRinging, EventCallAnsweredByOthers, StateIdle)
	m.Register(StateRinging, EventOpenedDoor, StateIdle)
	m.Register(StateRinging, EventCallRejected, StateIdle)

	m.Register(StateAccepted, EventCallConnected, StateOngoing)
	m.Register(StateAccepted, EventCallCanceledByCaller, StateIdle)
	m.Register(StateAccepted, EventCallAnsweredByOthers, StateIdle)

	m.Register(StateOngoing, EventCallDisconnected, StateIdle)
	m.Register(StateOngoing, EventUserHangsUpCall, StateIdle)
	m.Register(StateOngoing, EventUserDeclinesCall, StateIdle)
	m.Register(StateOngoing, EventCallCanceledByCaller, StateIdle)
	m.Register(StateOngoing, EventCallAnsweredByOthers, StateIdle)
	m.Register(StateOngoing, EventParticipantDisconnected, StateIdle)

	return m
}
