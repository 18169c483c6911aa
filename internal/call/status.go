package call

import (
	"errors"
	"fmt"
)

// ErrUnknownStatus is returned when the backend reports a status string
// outside the closed set. This is a hard stop for the affected call: event
// derivation cannot continue from a status we cannot reason about.
var ErrUnknownStatus = errors.New("unknown call status")

// Status is the closed set of backend-reported call statuses.
type Status int

const (
	// StatusInitializing means the panel is dialing registered devices.
	StatusInitializing Status = iota
	// StatusConnectingSIP means a device answered and the backend is connecting it.
	StatusConnectingSIP
	// StatusCanceled means the caller canceled at the panel.
	StatusCanceled
	// StatusVoIPRollover means the call rolled over to a phone line; devices ignore it.
	StatusVoIPRollover
	// StatusRejected means the backend rejected the call.
	StatusRejected
	// StatusTimeoutOnlineSignal means no device answered in time.
	StatusTimeoutOnlineSignal
	// StatusOpenedDoor means the door was released.
	StatusOpenedDoor
)

var statusNames = map[Status]string{
	StatusInitializing:        "initializing",
	StatusConnectingSIP:       "connecting_sip",
	StatusCanceled:            "canceled",
	StatusVoIPRollover:        "voip_rollover",
	StatusRejected:            "rejected",
	StatusTimeoutOnlineSignal: "timeout_online_signal",
	StatusOpenedDoor:          "opened_door",
}

var statusValues = func() map[string]Status {
	m := make(map[string]Status, len(statusNames))
	for st, name := range statusNames {
		m[name] = st
	}
	return m
}()

// String returns the wire representation of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// ParseStatus parses a raw backend status string. Empty and unknown strings
// are errors, never silently mapped to a default.
func ParseStatus(raw string) (Status, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: empty status", ErrUnknownStatus)
	}
	st, ok := statusValues[raw]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return st, nil
}
