package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/runslikebutter/doorphone/internal/call"
	"github.com/runslikebutter/doorphone/internal/events"
	"github.com/runslikebutter/doorphone/internal/fsm"
	"github.com/runslikebutter/doorphone/internal/logger"
	"github.com/runslikebutter/doorphone/internal/media"
)

// Config wires an Engine to its collaborators.
type Config struct {
	Provider  call.Provider
	Notifier  Notifications
	Publisher events.Publisher
	Audio     *media.AudioDevice

	// NewSession builds the provider media session with the engine as its
	// event handler.
	NewSession func(handler media.Handler) (media.Session, error)

	// RoomFor maps the bound call to the provider's room or line
	// identifier handed to Session.Connect.
	RoomFor func(c *call.Call) string
}

// Engine is the shared per-provider call processor. Provider-specific code
// is confined to the media session it is constructed with; everything else
// — suppression, transition, side-effect dispatch — is common.
//
// The mutex serializes the suppress -> transition -> side-effect sequence
// for the bound call. Session callbacks re-enter through the same lock.
type Engine struct {
	provider  call.Provider
	notifier  Notifications
	publisher events.Publisher
	audio     *media.AudioDevice
	session   media.Session
	roomFor   func(c *call.Call) string

	mu        sync.Mutex
	machine   *fsm.Machine[call.State, call.Event]
	current   *call.Call
	callType  CallType
	builder   *events.Builder
	lastEvent call.Event
	tornDown  bool
	halted    bool

	// tearingDown is set while Disconnect runs inside teardown so that a
	// session echoing callbacks from its own Disconnect cannot re-enter
	// e.mu.
	tearingDown atomic.Bool
}

// NewEngine builds a processor around the given collaborators.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("processor: notifier is required")
	}
	if cfg.NewSession == nil {
		return nil, fmt.Errorf("processor: session factory is required")
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NewNoopPublisher()
	}
	if cfg.Audio == nil {
		cfg.Audio = media.NewAudioDevice()
	}
	if cfg.RoomFor == nil {
		cfg.RoomFor = func(c *call.Call) string { return c.GUID() }
	}

	e := &Engine{
		provider:  cfg.Provider,
		notifier:  cfg.Notifier,
		publisher: cfg.Publisher,
		audio:     cfg.Audio,
		roomFor:   cfg.RoomFor,
		machine:   call.NewLifecycle(),
		builder:   events.NewBuilder(false),
		lastEvent: call.EventNone,
	}
	session, err := cfg.NewSession(e)
	if err != nil {
		return nil, err
	}
	e.session = session
	return e, nil
}

// Provider identifies which calls this processor handles.
func (e *Engine) Provider() call.Provider { return e.provider }

// ProcessCall binds c as the current call, resets event memory and injects
// the dialing event. If the call's fetched status already maps past
// dialing, that status is ingested right after.
func (e *Engine) ProcessCall(ctx context.Context, c *call.Call, callType CallType) error {
	if c == nil {
		return fmt.Errorf("processor: nil call")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil && !e.current.MatchesGUID(c.GUID()) {
		logger.Warn("[Processor] Replacing bound call",
			"provider", e.provider.String(),
			"old_guid", e.current.GUID(), "new_guid", c.GUID())
	}

	e.current = c
	e.callType = callType
	e.builder = events.NewBuilder(callType.PlatformIntegrated())
	e.machine = call.NewLifecycle()
	e.lastEvent = call.EventNone
	e.tornDown = false
	e.halted = false

	logger.Info("[Processor] Processing call",
		"provider", e.provider.String(), "guid", c.GUID(),
		"call_type", callType.String())

	e.deliver(ctx, call.EventCallDialing)

	st, err := c.Status()
	if err != nil {
		// Same hard stop as a bad status push: halt derivation, keep
		// EndCall working.
		e.halted = true
		e.publisher.Publish(e.builder.Failed(c, err))
		logger.Error("[Processor] Unknown initial call status",
			"guid", c.GUID(), "status", c.RawStatus(), "error", err)
		return fmt.Errorf("process call %s: %w", c.GUID(), err)
	}
	if st != call.StatusInitializing {
		e.ingestStatus(ctx, st)
	}
	return nil
}

// HandleStatusUpdate ingests a server status push for guid.
func (e *Engine) HandleStatusUpdate(ctx context.Context, guid, rawStatus string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || !e.current.MatchesGUID(guid) {
		logger.Debug("[Processor] Status for unbound call ignored",
			"guid", guid, "status", rawStatus)
		return nil
	}
	if e.halted {
		logger.Warn("[Processor] Status ignored, call processing halted",
			"guid", guid, "status", rawStatus)
		return nil
	}

	e.current.SetRawStatus(rawStatus)

	st, err := call.ParseStatus(rawStatus)
	if err != nil {
		// The call can no longer be reasoned about. Halt status-driven
		// derivation; the user can still end the call.
		e.halted = true
		e.publisher.Publish(e.builder.Failed(e.current, err))
		logger.Error("[Processor] Unknown call status",
			"guid", guid, "status", rawStatus, "error", err)
		return fmt.Errorf("status update for call %s: %w", guid, err)
	}

	e.ingestStatus(ctx, st)
	return nil
}

// ingestStatus normalizes a parsed status and delivers the resulting
// event. Caller holds e.mu.
func (e *Engine) ingestStatus(ctx context.Context, st call.Status) {
	ev, ok := call.NormalizeStatus(st, e.machine.Current())
	if !ok {
		logger.Debug("[Processor] Status produced no event",
			"status", st.String(), "state", e.machine.Current().String())
		return
	}
	e.deliver(ctx, ev)
}

// AnswerCall injects the user-accept event.
func (e *Engine) AnswerCall(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return
	}
	e.deliver(ctx, call.EventUserAcceptsCall)
}

// EndCall hangs up or declines the bound call.
func (e *Engine) EndCall(ctx context.Context, guid string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return
	}
	if !e.current.MatchesGUID(guid) {
		logger.Debug("[Processor] EndCall guid mismatch",
			"bound", e.current.GUID(), "requested", guid)
		return
	}

	switch e.machine.Current() {
	case call.StateOngoing:
		e.deliver(ctx, call.EventUserHangsUpCall)
	case call.StateIdle:
		// Already over.
	default:
		e.deliver(ctx, call.EventUserDeclinesCall)
	}
}

// HandleCallPreview starts the incoming preview and optionally answers.
func (e *Engine) HandleCallPreview(ctx context.Context, autoAccept bool) {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return
	}
	logger.Info("[Processor] Call preview",
		"guid", e.current.GUID(), "auto_accept", autoAccept)
	if autoAccept {
		e.deliver(ctx, call.EventUserAcceptsCall)
	}
	e.mu.Unlock()
}

// ToggleMicrophone flips or sets the microphone while ongoing.
func (e *Engine) ToggleMicrophone(explicit *bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.machine.Current() != call.StateOngoing {
		logger.Debug("[Processor] Microphone toggle refused",
			"state", e.machine.Current().String())
		return false
	}

	enabled := !e.session.AudioEnabled()
	if explicit != nil {
		enabled = *explicit
	}
	e.session.SetAudioEnabled(enabled)
	logger.Debug("[Processor] Microphone", "enabled", enabled)
	return true
}

// ToggleCamera flips the outgoing camera and tells the panel.
func (e *Engine) ToggleCamera(ctx context.Context) {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return
	}
	enabled := !e.session.VideoEnabled()
	e.session.SetVideoEnabled(enabled)
	guid, panelID := e.current.GUID(), e.current.PanelID()
	audioOn := e.session.AudioEnabled()
	e.mu.Unlock()

	if err := e.notifier.SendToggleCamera(ctx, guid, panelID, enabled, audioOn); err != nil {
		logger.Warn("[Processor] Toggle camera notification failed", "error", err)
	}
}

// ToggleSpeaker flips the audio output route.
func (e *Engine) ToggleSpeaker() {
	if e.audio.CurrentRoute() == media.RouteSpeaker {
		e.audio.SetRoute(media.RouteReceiver)
	} else {
		e.audio.SetRoute(media.RouteSpeaker)
	}
}

// PressOpenDoor fires the open-door notification. Call state is untouched;
// the panel reports the outcome through its own status push.
func (e *Engine) PressOpenDoor(ctx context.Context, completion func(bool)) {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		if completion != nil {
			completion(false)
		}
		return
	}
	c := e.current
	guid, panelID := c.GUID(), c.PanelID()
	builder := e.builder
	e.mu.Unlock()

	e.notifier.SendOpenDoor(ctx, guid, panelID, func(ok bool) {
		if ok {
			e.publisher.Publish(builder.DoorOpened(c))
		}
		if completion != nil {
			completion(ok)
		}
	})
}

// PrepareSoundDevice attaches the shared audio device.
func (e *Engine) PrepareSoundDevice() { e.audio.Connect() }

// DeactivateSoundDevice detaches the shared audio device.
func (e *Engine) DeactivateSoundDevice() { e.audio.Disconnect() }

// ActiveCall returns the bound call, or nil.
func (e *Engine) ActiveCall() *call.Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// State returns the lifecycle state of the bound call.
func (e *Engine) State() call.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.Current()
}

func (e *Engine) MicrophoneEnabled() bool { return e.session.AudioEnabled() }
func (e *Engine) CameraEnabled() bool     { return e.session.VideoEnabled() }
func (e *Engine) SpeakerEnabled() bool {
	return e.audio.CurrentRoute() == media.RouteSpeaker
}

// deliver runs the suppress -> transition -> side-effect sequence for one
// event. Caller holds e.mu.
func (e *Engine) deliver(ctx context.Context, ev call.Event) {
	if ev == e.lastEvent {
		logger.Debug("[Processor] Duplicate event suppressed", "event", ev.String())
		return
	}
	e.lastEvent = ev

	from := e.machine.Current()
	to, ok := e.machine.Transition(ev)
	if !ok {
		logger.Debug("[Processor] No transition",
			"state", from.String(), "event", ev.String())
		return
	}

	logger.Info("[Processor] Transition",
		"from", from.String(), "event", ev.String(), "to", to.String())

	e.fireSideEffects(ctx, to, ev)
}

// fireSideEffects runs the entered-state side effects exactly once per
// actual transition. Caller holds e.mu.
func (e *Engine) fireSideEffects(ctx context.Context, entered call.State, ev call.Event) {
	c := e.current
	if c == nil {
		return
	}

	switch entered {
	case call.StateRinging:
		if e.callType.PlatformIntegrated() {
			e.audio.PrepareForCall(false)
		}
		e.publisher.Publish(e.builder.Ringing(c))

	case call.StateAccepted:
		if err := e.notifier.SendIsActive(ctx, c.GUID(), c.PanelID()); err != nil {
			logger.Warn("[Processor] Is-active notification failed", "error", err)
		}
		e.publisher.Publish(e.builder.Accepted(c))
		if err := e.session.Connect(ctx, c.ProviderToken(), e.roomFor(c)); err != nil {
			logger.Error("[Processor] Media connect failed",
				"guid", c.GUID(), "error", err)
		}
		if !e.callType.PlatformIntegrated() {
			e.audio.PrepareForCall(true)
		}

	case call.StateOngoing:
		e.publisher.Publish(e.builder.Connected(c))
		if e.callType.PlatformIntegrated() {
			e.session.SetAudioEnabled(true)
		}
		if err := e.notifier.SendCallAccepted(ctx, c.GUID(), c.PanelID(),
			e.session.VideoEnabled(), e.session.AudioEnabled()); err != nil {
			logger.Warn("[Processor] Call-accepted notification failed", "error", err)
		}

	case call.StateIdle:
		e.enterIdle(ctx, ev)
	}
}

// enterIdle dispatches on the triggering event to pick the cleanup and
// caller callback. Teardown runs at most once per call. Caller holds e.mu.
func (e *Engine) enterIdle(ctx context.Context, ev call.Event) {
	c := e.current

	switch ev {
	case call.EventCallDisconnected, call.EventUserHangsUpCall, call.EventParticipantDisconnected:
		e.teardown()
		e.publisher.Publish(e.builder.Ended(c))

	case call.EventUserDeclinesCall:
		e.notifier.SendCallEnded(ctx, c.GUID(), c.PanelID(), nil)
		e.teardown()
		e.publisher.Publish(e.builder.Ended(c))

	case call.EventCallAnsweredByOthers:
		// This device never connected, nothing to tear down.
		e.publisher.Publish(e.builder.Canceled(c, call.CancelReasonAnsweredByOthers))

	case call.EventCallCanceledByCaller:
		e.publisher.Publish(e.builder.Canceled(c, call.CancelReasonCanceledByCaller))

	case call.EventCallRejected:
		e.publisher.Publish(e.builder.Ended(c))

	default:
		e.publisher.Publish(e.builder.Ended(c))
	}

	e.current = nil
	logger.Info("[Processor] Call released", "guid", c.GUID(), "event", ev.String())
}

// teardown releases the media session and audio device. Caller holds e.mu.
func (e *Engine) teardown() {
	if e.tornDown {
		return
	}
	e.tornDown = true
	e.tearingDown.Store(true)
	e.session.Disconnect()
	e.tearingDown.Store(false)
	e.audio.Disconnect()
}

// Session event handlers. The media session calls these from its transport
// goroutines; they fold back into the lifecycle as ordinary events.

func (e *Engine) SessionConnected() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return
	}
	e.deliver(context.Background(), call.EventCallConnected)
}

func (e *Engine) SessionDisconnected(err error) {
	if e.tearingDown.Load() {
		// Echo of our own Disconnect, already handled.
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return
	}
	if err != nil {
		logger.Warn("[Processor] Session dropped",
			"guid", e.current.GUID(), "error", err)
	}
	e.deliver(context.Background(), call.EventCallDisconnected)
}

func (e *Engine) ParticipantJoined(identity string) {
	logger.Debug("[Processor] Participant joined", "identity", identity)
}

func (e *Engine) ParticipantLeft(identity string) {
	if e.tearingDown.Load() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return
	}
	logger.Debug("[Processor] Participant left", "identity", identity)
	e.deliver(context.Background(), call.EventParticipantDisconnected)
}

func (e *Engine) SessionReconnecting(err error) {
	logger.Warn("[Processor] Session reconnecting", "error", err)
}

func (e *Engine) SessionReconnected() {
	logger.Info("[Processor] Session reconnected")
}
