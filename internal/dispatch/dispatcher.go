// Package dispatch resolves incoming calls to their provider processor and
// exposes the unified call facade consumed by the surrounding application.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/runslikebutter/doorphone/internal/api"
	"github.com/runslikebutter/doorphone/internal/call"
	"github.com/runslikebutter/doorphone/internal/events"
	"github.com/runslikebutter/doorphone/internal/logger"
	"github.com/runslikebutter/doorphone/internal/processor"
)

// Backend is the slice of the API client the dispatcher needs.
// *api.Client implements it.
type Backend interface {
	GetCallStatus(ctx context.Context, guid string) (*call.Call, error)
	GetProviderTokens(ctx context.Context, callGUID, deviceUUID string) (map[string]string, error)
}

// Config wires a Dispatcher.
type Config struct {
	Backend    Backend
	DeviceUUID string
	Processors []processor.Processor

	// Events carries processor events to Run's delivery loop. Optional;
	// without it Subscribe/Run are inert.
	Events *events.ChannelPublisher
}

// Dispatcher owns the provider registry and the single active call slot.
// All facade operations are no-ops when no call is bound.
type Dispatcher struct {
	backend    Backend
	deviceUUID string
	registry   map[call.Provider]processor.Processor
	channel    *events.ChannelPublisher

	mu     sync.Mutex
	active processor.Processor

	listenerMu sync.Mutex
	listeners  []func(*events.Event)
}

// New builds a Dispatcher over the given processors.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("dispatch: backend is required")
	}
	if cfg.DeviceUUID == "" {
		return nil, fmt.Errorf("dispatch: device uuid is required")
	}
	if len(cfg.Processors) == 0 {
		return nil, fmt.Errorf("dispatch: at least one processor is required")
	}

	registry := make(map[call.Provider]processor.Processor, len(cfg.Processors))
	for _, p := range cfg.Processors {
		if _, dup := registry[p.Provider()]; dup {
			return nil, fmt.Errorf("dispatch: duplicate processor for provider %s", p.Provider())
		}
		registry[p.Provider()] = p
	}

	return &Dispatcher{
		backend:    cfg.Backend,
		deviceUUID: cfg.DeviceUUID,
		registry:   registry,
		channel:    cfg.Events,
	}, nil
}

// Subscribe registers a listener for call events. Listeners run in order on
// Run's single delivery goroutine.
func (d *Dispatcher) Subscribe(fn func(*events.Event)) {
	if fn == nil {
		return
	}
	d.listenerMu.Lock()
	d.listeners = append(d.listeners, fn)
	d.listenerMu.Unlock()
}

// Run drains the event channel and redelivers each event, in order, to all
// listeners. Returns when ctx is done or the channel closes.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.channel == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.channel.Events():
			if !ok {
				return
			}
			d.listenerMu.Lock()
			listeners := make([]func(*events.Event), len(d.listeners))
			copy(listeners, d.listeners)
			d.listenerMu.Unlock()
			for _, fn := range listeners {
				fn(event)
			}
		}
	}
}

// ProcessCall fetches the call's status, resolves its provider processor,
// satisfies any just-in-time credential requirement, and hands the call
// over. A duplicate guid for the already-active call is a no-op; a second
// concurrent call is rejected.
func (d *Dispatcher) ProcessCall(ctx context.Context, guid string, callType processor.CallType) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if active := d.activeCallLocked(); active != nil {
		if active.MatchesGUID(guid) {
			logger.Debug("[Dispatcher] Call already being processed", "guid", guid)
			return nil
		}
		return fmt.Errorf("dispatch: call %s already in progress", active.GUID())
	}

	c, err := d.backend.GetCallStatus(ctx, guid)
	if err != nil {
		return fmt.Errorf("fetch call %s: %w", guid, err)
	}

	proc, ok := d.registry[c.Provider()]
	if !ok {
		return fmt.Errorf("dispatch call %s: %w: %s", guid, api.ErrUnsupportedProvider, c.Provider())
	}

	// The WebRTC provider needs a backend-minted token before the
	// processor ever sees the call. A failed fetch fails the dispatch.
	if c.Provider() == call.ProviderTwilio {
		tokens, err := d.backend.GetProviderTokens(ctx, c.GUID(), d.deviceUUID)
		if err != nil {
			return fmt.Errorf("fetch credential for call %s: %w", guid, err)
		}
		token, ok := tokens[c.Provider().String()]
		if !ok || token == "" {
			return fmt.Errorf("fetch credential for call %s: no %s token in response",
				guid, c.Provider())
		}
		c.SetProviderToken(token)
	}

	if err := proc.ProcessCall(ctx, c, callType); err != nil {
		// A processor may keep the call bound after a failure (halted
		// derivation still honors EndCall); keep the facade pointed at it.
		if proc.ActiveCall() != nil {
			d.active = proc
		}
		return err
	}
	d.active = proc
	return nil
}

// HandleStatusUpdate routes a server status push to the active processor.
func (d *Dispatcher) HandleStatusUpdate(ctx context.Context, guid, rawStatus string) error {
	proc := d.currentProcessor()
	if proc == nil {
		logger.Debug("[Dispatcher] Status with no active call", "guid", guid)
		return nil
	}
	return proc.HandleStatusUpdate(ctx, guid, rawStatus)
}

// activeCallLocked returns the bound call, clearing the slot if the
// processor has already released it. Caller holds d.mu.
func (d *Dispatcher) activeCallLocked() *call.Call {
	if d.active == nil {
		return nil
	}
	c := d.active.ActiveCall()
	if c == nil {
		d.active = nil
	}
	return c
}

// currentProcessor returns the processor owning the active call, or nil.
func (d *Dispatcher) currentProcessor() processor.Processor {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.activeCallLocked() == nil {
		return nil
	}
	return d.active
}

// ActiveCall returns the call currently being handled, or nil.
func (d *Dispatcher) ActiveCall() *call.Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeCallLocked()
}

// AnswerCall accepts the active call.
func (d *Dispatcher) AnswerCall(ctx context.Context) {
	if proc := d.currentProcessor(); proc != nil {
		proc.AnswerCall(ctx)
	}
}

// EndCall hangs up or declines the active call.
func (d *Dispatcher) EndCall(ctx context.Context) {
	d.mu.Lock()
	c := d.activeCallLocked()
	proc := d.active
	d.mu.Unlock()
	if c == nil {
		return
	}
	proc.EndCall(ctx, c.GUID())
}

// PreviewCall starts the incoming preview for the active call, optionally
// answering it immediately.
func (d *Dispatcher) PreviewCall(ctx context.Context, autoAccept bool) {
	if proc := d.currentProcessor(); proc != nil {
		proc.HandleCallPreview(ctx, autoAccept)
	}
}

// OpenDoor asks the panel behind the active call to release the door.
func (d *Dispatcher) OpenDoor(ctx context.Context, completion func(bool)) {
	proc := d.currentProcessor()
	if proc == nil {
		if completion != nil {
			completion(false)
		}
		return
	}
	proc.PressOpenDoor(ctx, completion)
}

// MuteMic disables the microphone. Returns false outside an ongoing call.
func (d *Dispatcher) MuteMic() bool {
	proc := d.currentProcessor()
	if proc == nil {
		return false
	}
	off := false
	return proc.ToggleMicrophone(&off)
}

// UnmuteMic enables the microphone. Returns false outside an ongoing call.
func (d *Dispatcher) UnmuteMic() bool {
	proc := d.currentProcessor()
	if proc == nil {
		return false
	}
	on := true
	return proc.ToggleMicrophone(&on)
}

// SpeakerOn routes audio to the loudspeaker.
func (d *Dispatcher) SpeakerOn() {
	if proc := d.currentProcessor(); proc != nil && !proc.SpeakerEnabled() {
		proc.ToggleSpeaker()
	}
}

// SpeakerOff routes audio back to the receiver.
func (d *Dispatcher) SpeakerOff() {
	if proc := d.currentProcessor(); proc != nil && proc.SpeakerEnabled() {
		proc.ToggleSpeaker()
	}
}

// ShowOutgoingVideo turns the outgoing camera on.
func (d *Dispatcher) ShowOutgoingVideo(ctx context.Context) {
	if proc := d.currentProcessor(); proc != nil && !proc.CameraEnabled() {
		proc.ToggleCamera(ctx)
	}
}

// HideOutgoingVideo turns the outgoing camera off.
func (d *Dispatcher) HideOutgoingVideo(ctx context.Context) {
	if proc := d.currentProcessor(); proc != nil && proc.CameraEnabled() {
		proc.ToggleCamera(ctx)
	}
}

// ConnectSoundDevice attaches the shared audio device.
func (d *Dispatcher) ConnectSoundDevice() {
	if proc := d.currentProcessor(); proc != nil {
		proc.PrepareSoundDevice()
	}
}

// DisconnectSoundDevice detaches the shared audio device.
func (d *Dispatcher) DisconnectSoundDevice() {
	if proc := d.currentProcessor(); proc != nil {
		proc.DeactivateSoundDevice()
	}
}
