// Package processor hosts the per-provider call processors. Each processor
// owns the lifecycle machine for its active call, folds provider callbacks
// and server status pushes into the shared event vocabulary, and fires the
// per-transition side effects exactly once.
package processor

import (
	"context"

	"github.com/runslikebutter/doorphone/internal/call"
)

// CallType describes how the incoming call is being presented to the user.
type CallType int

const (
	// CallTypeNotification is a plain push-notification call: the app shows
	// its own incoming-call UI and owns the audio session itself.
	CallTypeNotification CallType = iota
	// CallTypePlatform is a call surfaced through the platform's native
	// call integration, which prepares the audio session ahead of answer.
	CallTypePlatform
)

func (t CallType) String() string {
	if t == CallTypePlatform {
		return "platform"
	}
	return "notification"
}

// PlatformIntegrated reports whether the platform call UI owns this call.
func (t CallType) PlatformIntegrated() bool { return t == CallTypePlatform }

// Notifications is the outbound device-to-device notification surface the
// processor fires as side effects. *api.Notifier implements it.
type Notifications interface {
	SendIsActive(ctx context.Context, guid string, panelID int) error
	SendCallAccepted(ctx context.Context, guid string, panelID int, video, audio bool) error
	SendToggleCamera(ctx context.Context, guid string, panelID int, video, audio bool) error
	SendOpenDoor(ctx context.Context, guid string, panelID int, completion func(bool))
	SendCallEnded(ctx context.Context, guid string, panelID int, completion func())
}

// Processor is one provider's call lifecycle surface. All operations are
// safe for concurrent use; event delivery for the bound call is serialized
// internally.
type Processor interface {
	// Provider identifies which calls this processor handles.
	Provider() call.Provider

	// ProcessCall binds c as the current call, resets event memory and
	// injects the dialing event.
	ProcessCall(ctx context.Context, c *call.Call, callType CallType) error

	// HandleStatusUpdate ingests a server status push for guid. Pushes for
	// a call other than the bound one are ignored. An unknown status value
	// is a hard error that halts further status derivation for the call.
	HandleStatusUpdate(ctx context.Context, guid, rawStatus string) error

	// AnswerCall injects the user-accept event.
	AnswerCall(ctx context.Context)

	// EndCall hangs up (ongoing) or declines (anything but idle) the bound
	// call. guid is compared case-insensitively; a mismatch is a no-op.
	EndCall(ctx context.Context, guid string)

	// HandleCallPreview starts the incoming-video preview, optionally
	// answering immediately.
	HandleCallPreview(ctx context.Context, autoAccept bool)

	// ToggleMicrophone flips (or sets, when explicit is non-nil) the
	// microphone. Returns false while the call is not ongoing.
	ToggleMicrophone(explicit *bool) bool

	// ToggleCamera flips the outgoing camera and informs the panel.
	ToggleCamera(ctx context.Context)

	// ToggleSpeaker flips the audio output route.
	ToggleSpeaker()

	// PressOpenDoor asks the panel to release the door. Does not change
	// call state.
	PressOpenDoor(ctx context.Context, completion func(bool))

	// PrepareSoundDevice attaches the shared audio device.
	PrepareSoundDevice()
	// DeactivateSoundDevice detaches the shared audio device.
	DeactivateSoundDevice()

	// ActiveCall returns the bound call, or nil.
	ActiveCall() *call.Call

	// UI data-source accessors.
	MicrophoneEnabled() bool
	CameraEnabled() bool
	SpeakerEnabled() bool
}
