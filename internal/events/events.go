// Package events carries the caller-facing notifications of the call
// lifecycle.
//
// Processors publish an event on every state transition they want the host
// application to see; the dispatcher drains a ChannelPublisher on a single
// goroutine so handlers observe notifications in order no matter which
// worker produced them.
//
// Subject hierarchy:
//
//	doorphone.calls.<call_guid>.<event_suffix>
//
// Wildcard subscriptions (for brokers that support them):
//
//	doorphone.calls.>          - all call events
//	doorphone.calls.*.ended    - all call.ended events
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/runslikebutter/doorphone/internal/call"
)

// EventType identifies the kind of lifecycle notification.
type EventType string

const (
	CallRinging    EventType = "call.ringing"
	CallAccepted   EventType = "call.accepted"
	CallConnected  EventType = "call.connected"
	CallCanceled   EventType = "call.canceled"
	CallEnded      EventType = "call.ended"
	DoorOpened     EventType = "door.opened"
	ProcessingFail EventType = "call.processing_failed"
)

const (
	// SubjectPrefix is the root of all doorphone subjects.
	SubjectPrefix = "doorphone"

	// SubjectCalls is the per-call subject root.
	SubjectCalls = SubjectPrefix + ".calls"
)

// CallSubject builds a subject for a specific call event.
// Example: CallSubject("abc-123", CallEnded) => "doorphone.calls.abc-123.ended"
func CallSubject(callGUID string, t EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectCalls, callGUID, suffixFor(t))
}

func suffixFor(t EventType) string {
	switch t {
	case CallRinging:
		return "ringing"
	case CallAccepted:
		return "accepted"
	case CallConnected:
		return "connected"
	case CallCanceled:
		return "canceled"
	case CallEnded:
		return "ended"
	case DoorOpened:
		return "door_opened"
	case ProcessingFail:
		return "failed"
	default:
		return "unknown"
	}
}

// Subject patterns for common consumer configurations.
var (
	// PatternAllCalls matches all call events.
	PatternAllCalls = SubjectCalls + ".>"

	// PatternCallEnded matches all call.ended events.
	PatternCallEnded = SubjectCalls + ".*.ended"
)

// Event is one caller-facing lifecycle notification.
type Event struct {
	ID        string    `json:"event_id"`
	Type      EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`

	CallGUID  string `json:"call_guid"`
	PanelID   int    `json:"panel_id,omitempty"`
	PanelName string `json:"panel_name,omitempty"`

	// PlatformIntegrated reports whether the call was surfaced through the
	// OS-native call UI rather than the in-app notification UI.
	PlatformIntegrated bool `json:"platform_integrated"`

	// Reason is set for CallCanceled events.
	Reason call.CancelReason `json:"-"`

	// ReasonText is the wire form of Reason.
	ReasonText string `json:"reason,omitempty"`

	// Error is set for ProcessingFail events.
	Error error `json:"-"`

	// Call is a reference to the call record, set for CallAccepted.
	Call *call.Call `json:"-"`
}

// Subject returns the routing subject for this event.
func (e *Event) Subject() string {
	return CallSubject(e.CallGUID, e.Type)
}

// Builder constructs lifecycle events with shared identity fields.
type Builder struct {
	platformIntegrated bool
}

// NewBuilder creates an event builder. platformIntegrated stamps every event
// with the call-surface kind the processor was started with.
func NewBuilder(platformIntegrated bool) *Builder {
	return &Builder{platformIntegrated: platformIntegrated}
}

func (b *Builder) base(t EventType, c *call.Call) *Event {
	ev := &Event{
		ID:                 uuid.NewString(),
		Type:               t,
		Timestamp:          time.Now().UTC(),
		PlatformIntegrated: b.platformIntegrated,
	}
	if c != nil {
		ev.CallGUID = c.GUID()
		ev.PanelID = c.PanelID()
		ev.PanelName = c.PanelName()
	}
	return ev
}

// Ringing reports that a call notification was received and is ringing.
func (b *Builder) Ringing(c *call.Call) *Event {
	return b.base(CallRinging, c)
}

// Accepted reports that this device answered and the provider is connecting.
func (b *Builder) Accepted(c *call.Call) *Event {
	ev := b.base(CallAccepted, c)
	ev.Call = c
	return ev
}

// Connected reports that media connected.
func (b *Builder) Connected(c *call.Call) *Event {
	return b.base(CallConnected, c)
}

// Canceled reports that the call ended before this device connected.
func (b *Builder) Canceled(c *call.Call, reason call.CancelReason) *Event {
	ev := b.base(CallCanceled, c)
	ev.Reason = reason
	ev.ReasonText = reason.String()
	return ev
}

// Ended reports that the call finished after this device was involved.
func (b *Builder) Ended(c *call.Call) *Event {
	return b.base(CallEnded, c)
}

// DoorOpened reports a door release during the call flow.
func (b *Builder) DoorOpened(c *call.Call) *Event {
	return b.base(DoorOpened, c)
}

// Failed reports that processing the call halted on an unrecoverable error.
func (b *Builder) Failed(c *call.Call, err error) *Event {
	ev := b.base(ProcessingFail, c)
	ev.Error = err
	return ev
}
