package processor

import (
	"github.com/runslikebutter/doorphone/internal/call"
	"github.com/runslikebutter/doorphone/internal/events"
	"github.com/runslikebutter/doorphone/internal/media"
)

// TwilioConfig wires the WebRTC processor.
type TwilioConfig struct {
	Notifier  Notifications
	Publisher events.Publisher
	Audio     *media.AudioDevice

	// Signal exchanges the SDP offer for the room's answer. Required.
	Signal media.SignalFunc
	// Room tunes the underlying peer connection.
	Room media.RoomConfig
}

// NewTwilio builds the WebRTC call processor. The provider room name is
// the call guid; the room session authenticates with the per-call provider
// token minted by the backend.
func NewTwilio(cfg TwilioConfig) (*Engine, error) {
	return NewEngine(Config{
		Provider:  call.ProviderTwilio,
		Notifier:  cfg.Notifier,
		Publisher: cfg.Publisher,
		Audio:     cfg.Audio,
		NewSession: func(handler media.Handler) (media.Session, error) {
			return media.NewRoomSession(cfg.Room, cfg.Signal, handler), nil
		},
		RoomFor: func(c *call.Call) string { return c.GUID() },
	})
}
