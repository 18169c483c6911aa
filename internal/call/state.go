// Package call holds the call record and the closed state/event vocabulary
// that drives the lifecycle of one intercom call.
package call

import "fmt"

// State represents the lifecycle state of a call on this device.
type State int

const (
	// StateIdle is both the initial and the terminal state: no active session.
	StateIdle State = iota
	// StateRinging is after a push notification arrived, before anyone answered.
	StateRinging
	// StateAccepted is after the user answered, while the provider connects.
	StateAccepted
	// StateOngoing is after media connected.
	StateOngoing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRinging:
		return "Ringing"
	case StateAccepted:
		return "Accepted"
	case StateOngoing:
		return "Ongoing"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// IsTerminal returns true if this is the terminal state.
func (s State) IsTerminal() bool {
	return s == StateIdle
}

// Event is a normalized call or user event fed into the lifecycle machine.
// Server status pushes, provider callbacks and local user intents all reduce
// to this alphabet.
type Event int

const (
	// EventNone is the zero value; no event has been applied yet.
	EventNone Event = iota
	// EventCallDialing indicates the panel started dialing this device.
	EventCallDialing
	// EventUserAcceptsCall indicates the local user answered.
	EventUserAcceptsCall
	// EventCallConnected indicates the media session connected.
	EventCallConnected
	// EventCallDisconnected indicates the media session dropped or failed to connect.
	EventCallDisconnected
	// EventCallRejected indicates the backend rejected the call.
	EventCallRejected
	// EventUserHangsUpCall indicates the local user hung up an ongoing call.
	EventUserHangsUpCall
	// EventUserDeclinesCall indicates the local user declined before connecting.
	EventUserDeclinesCall
	// EventCallAnsweredByOthers indicates another device answered first.
	EventCallAnsweredByOthers
	// EventCallCanceledByCaller indicates the visitor at the panel gave up.
	EventCallCanceledByCaller
	// EventParticipantDisconnected indicates the remote participant left the room.
	EventParticipantDisconnected
	// EventOpenedDoor indicates the door was released during the call flow.
	EventOpenedDoor
)

// String returns the string representation of the event.
func (e Event) String() string {
	switch e {
	case EventNone:
		return "None"
	case EventCallDialing:
		return "CallDialing"
	case EventUserAcceptsCall:
		return "UserAcceptsCall"
	case EventCallConnected:
		return "CallConnected"
	case EventCallDisconnected:
		return "CallDisconnected"
	case EventCallRejected:
		return "CallRejected"
	case EventUserHangsUpCall:
		return "UserHangsUpCall"
	case EventUserDeclinesCall:
		return "UserDeclinesCall"
	case EventCallAnsweredByOthers:
		return "CallAnsweredByOthers"
	case EventCallCanceledByCaller:
		return "CallCanceledByCaller"
	case EventParticipantDisconnected:
		return "ParticipantDisconnected"
	case EventOpenedDoor:
		return "OpenedDoor"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// CancelReason explains why a call was canceled before this device connected.
type CancelReason int

const (
	// CancelReasonAnsweredByOthers means another device answered the call first.
	CancelReasonAnsweredByOthers CancelReason = iota
	// CancelReasonCanceledByCaller means the visitor canceled or timed out.
	CancelReasonCanceledByCaller
)

// String returns the string representation of the cancel reason.
func (r CancelReason) String() string {
	switch r {
	case CancelReasonAnsweredByOthers:
		return "AnsweredByOthers"
	case CancelReasonCanceledByCaller:
		return "CanceledByCaller"
	default:
		return fmt.Sprintf("Unknown(%d)", r)
	}
}
