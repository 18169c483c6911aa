package media

import (
	"sync"

	"github.com/runslikebutter/doorphone/internal/logger"
)

// Route selects the audio output path on the host device.
type Route int

const (
	// RouteReceiver is the earpiece / default output.
	RouteReceiver Route = iota
	// RouteSpeaker is the loudspeaker.
	RouteSpeaker
)

func (r Route) String() string {
	if r == RouteSpeaker {
		return "speaker"
	}
	return "receiver"
}

// AudioDevice tracks the shared sound-device state for a call: whether the
// device is attached to the call and which output route is active. The call
// processors consult it when preparing media and the facade toggles it on
// user request.
type AudioDevice struct {
	mu        sync.Mutex
	connected bool
	route     Route
}

// NewAudioDevice returns a device routed to the receiver and not yet
// attached to any call.
func NewAudioDevice() *AudioDevice {
	return &AudioDevice{route: RouteReceiver}
}

// PrepareForCall attaches the device and picks the initial route.
// overrideSpeaker forces the loudspeaker regardless of the previous route.
func (d *AudioDevice) PrepareForCall(overrideSpeaker bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	if overrideSpeaker {
		d.route = RouteSpeaker
	}
	logger.Debug("[AudioDevice] Prepared for call", "route", d.route.String())
}

// Connect attaches the device without changing the route.
func (d *AudioDevice) Connect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
}

// Disconnect detaches the device and resets the route to the receiver.
func (d *AudioDevice) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	d.route = RouteReceiver
}

// Connected reports whether the device is attached to a call.
func (d *AudioDevice) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// SetRoute switches the output route.
func (d *AudioDevice) SetRoute(r Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.route == r {
		return
	}
	d.route = r
	logger.Debug("[AudioDevice] Route changed", "route", r.String())
}

// CurrentRoute returns the active output route.
func (d *AudioDevice) CurrentRoute() Route {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.route
}
