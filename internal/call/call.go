package call

import (
	"fmt"
	"strings"
	"sync"
)

// Provider identifies the call transport technology for one call.
type Provider int

const (
	// ProviderInternal is the SIP-based transport.
	ProviderInternal Provider = iota
	// ProviderTwilio is the WebRTC video-room transport.
	ProviderTwilio
)

// String returns the wire representation of the provider.
func (p Provider) String() string {
	switch p {
	case ProviderInternal:
		return "internal"
	case ProviderTwilio:
		return "twilio"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

// ParseProvider parses a raw provider string from the backend.
func ParseProvider(raw string) (Provider, bool) {
	switch raw {
	case "internal":
		return ProviderInternal, true
	case "twilio":
		return ProviderTwilio, true
	default:
		return 0, false
	}
}

// Attributes carries the descriptive fields of a call resource. All fields
// come from the backend call-status payload.
type Attributes struct {
	CallType         string `json:"call_type"`
	NotificationType string `json:"notification_type"`
	ThumbURL         string `json:"thumb_url,omitempty"`
	MediumURL        string `json:"medium_url,omitempty"`
	CreatedAt        string `json:"created_at"`
	LoggedAt         string `json:"logged_at"`
	DisplayStatus    string `json:"display_status"`
	PanelName        string `json:"panel_name"`
}

// Title returns a human-readable caller kind for UI display.
func (a Attributes) Title() string {
	if a.NotificationType == "visitor" {
		return "Visitor"
	}
	return "Delivery"
}

// TypeDescription returns a human-readable call type for UI display.
func (a Attributes) TypeDescription() string {
	if a.CallType == "mobile" {
		return "Mobile application call"
	}
	return "Phone call"
}

// Call is the record of one ringing or active call.
//
// GUID and Provider are fixed at creation. RawStatus and ProviderToken change
// over the call's life; both are guarded so status pushes and credential
// fetches may land from different goroutines.
type Call struct {
	guid     string
	panelID  int
	provider Provider

	Attributes Attributes

	mu            sync.RWMutex
	rawStatus     string
	providerToken string
}

// New creates a call record. guid and provider never change afterwards.
func New(guid string, panelID int, provider Provider, rawStatus string) *Call {
	return &Call{
		guid:      guid,
		panelID:   panelID,
		provider:  provider,
		rawStatus: rawStatus,
	}
}

// GUID returns the globally unique call identifier.
func (c *Call) GUID() string { return c.guid }

// PanelID returns the originating panel's identifier.
func (c *Call) PanelID() int { return c.panelID }

// Provider returns the call's transport provider.
func (c *Call) Provider() Provider { return c.provider }

// MatchesGUID compares guid case-insensitively against this call's GUID.
func (c *Call) MatchesGUID(guid string) bool {
	return strings.EqualFold(c.guid, guid)
}

// RawStatus returns the last backend-reported status string.
func (c *Call) RawStatus() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rawStatus
}

// SetRawStatus records a new backend-reported status string.
func (c *Call) SetRawStatus(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawStatus = raw
}

// Status parses the current raw status. Empty or unknown raw statuses return
// ErrUnknownStatus.
func (c *Call) Status() (Status, error) {
	return ParseStatus(c.RawStatus())
}

// ProviderToken returns the credential for the call's provider, if fetched.
func (c *Call) ProviderToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providerToken
}

// SetProviderToken records the lazily fetched provider credential. The token
// is write-once per call; later writes are ignored.
func (c *Call) SetProviderToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.providerToken == "" {
		c.providerToken = token
	}
}

// PanelName returns the panel name, with the product's default fallback.
func (c *Call) PanelName() string {
	if c.Attributes.PanelName != "" {
		return c.Attributes.PanelName
	}
	return "Front door"
}
