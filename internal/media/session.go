// Package media implements the provider-facing media sessions: a WebRTC
// video room for the twilio provider and a SIP audio line for the internal
// provider. Both present the same Session surface to the call processors so
// the lifecycle engine stays provider-agnostic.
package media

import "context"

// Handler receives asynchronous session events. Methods are invoked from
// transport goroutines; implementations forward into their own
// serialization.
type Handler interface {
	// SessionConnected fires when the media path is established.
	SessionConnected()
	// SessionDisconnected fires when the media path drops or fails to
	// establish. err is nil for a local disconnect.
	SessionDisconnected(err error)
	// ParticipantJoined fires when a remote participant appears.
	ParticipantJoined(identity string)
	// ParticipantLeft fires when a remote participant goes away.
	ParticipantLeft(identity string)
	// SessionReconnecting fires when the transport is trying to recover.
	SessionReconnecting(err error)
	// SessionReconnected fires when the transport recovered.
	SessionReconnected()
}

// NoopHandler implements Handler with empty methods. Embed it to implement
// only the callbacks you need.
type NoopHandler struct{}

func (NoopHandler) SessionConnected()         {}
func (NoopHandler) SessionDisconnected(error) {}
func (NoopHandler) ParticipantJoined(string)  {}
func (NoopHandler) ParticipantLeft(string)    {}
func (NoopHandler) SessionReconnecting(error) {}
func (NoopHandler) SessionReconnected()       {}

// Session is one provider media connection for one call.
//
// Connect is asynchronous: a nil return means the attempt started, and the
// outcome arrives on the Handler. Disconnect is idempotent.
type Session interface {
	// Connect establishes the media path. credential is the provider token
	// (empty for providers that authenticate elsewhere); room identifies the
	// call's room or line.
	Connect(ctx context.Context, credential, room string) error

	// Disconnect tears the media path down. Safe to call multiple times and
	// before Connect.
	Disconnect()

	// SetAudioEnabled enables or disables the local audio track.
	SetAudioEnabled(enabled bool)
	// AudioEnabled reports whether the local audio track is live.
	AudioEnabled() bool

	// SetVideoEnabled enables or disables the local video track.
	SetVideoEnabled(enabled bool)
	// VideoEnabled reports whether the local video track is live.
	VideoEnabled() bool
}
