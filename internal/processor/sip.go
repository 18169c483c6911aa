package processor

import (
	"fmt"

	"github.com/runslikebutter/doorphone/internal/call"
	"github.com/runslikebutter/doorphone/internal/events"
	"github.com/runslikebutter/doorphone/internal/media"
)

// SIPConfig wires the SIP processor.
type SIPConfig struct {
	Notifier  Notifications
	Publisher events.Publisher
	Audio     *media.AudioDevice

	// Line is the local SIP identity used to dial the panel.
	Line media.LineConfig
	// Domain is the SIP domain the panels register under.
	Domain string
}

// NewSIP builds the SIP call processor. The line target is derived from
// the bound call's panel: sip:<panelID>@<domain>.
func NewSIP(cfg SIPConfig) (*Engine, error) {
	domain := cfg.Domain
	if domain == "" {
		domain = cfg.Line.AdvertiseAddr
	}
	return NewEngine(Config{
		Provider:  call.ProviderInternal,
		Notifier:  cfg.Notifier,
		Publisher: cfg.Publisher,
		Audio:     cfg.Audio,
		NewSession: func(handler media.Handler) (media.Session, error) {
			return media.NewLineSession(cfg.Line, handler)
		},
		RoomFor: func(c *call.Call) string {
			return fmt.Sprintf("sip:%d@%s", c.PanelID(), domain)
		},
	})
}
