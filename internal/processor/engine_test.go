package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/runslikebutter/doorphone/internal/call"
	"github.com/runslikebutter/doorphone/internal/events"
	"github.com/runslikebutter/doorphone/internal/media"
)

type fakeSession struct {
	mu          sync.Mutex
	audioOn     bool
	videoOn     bool
	connects    int
	disconnects int
	lastToken   string
	lastRoom    string
}

func (s *fakeSession) Connect(_ context.Context, credential, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	s.lastToken = credential
	s.lastRoom = room
	return nil
}

func (s *fakeSession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
}

func (s *fakeSession) SetAudioEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioOn = enabled
}

func (s *fakeSession) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioOn
}

func (s *fakeSession) SetVideoEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoOn = enabled
}

func (s *fakeSession) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoOn
}

type fakeNotifier struct {
	mu     sync.Mutex
	calls  []string
	doorOK bool
}

func (n *fakeNotifier) record(kind string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, kind)
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.calls))
	copy(out, n.calls)
	return out
}

func (n *fakeNotifier) SendIsActive(context.Context, string, int) error {
	n.record("is_active")
	return nil
}

func (n *fakeNotifier) SendCallAccepted(_ context.Context, _ string, _ int, _, _ bool) error {
	n.record("call_accepted")
	return nil
}

func (n *fakeNotifier) SendToggleCamera(_ context.Context, _ string, _ int, _, _ bool) error {
	n.record("toggle_camera")
	return nil
}

func (n *fakeNotifier) SendOpenDoor(_ context.Context, _ string, _ int, completion func(bool)) {
	n.record("open_door")
	if completion != nil {
		completion(n.doorOK)
	}
}

func (n *fakeNotifier) SendCallEnded(_ context.Context, _ string, _ int, completion func()) {
	n.record("call_ended")
	if completion != nil {
		completion()
	}
}

type recordPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordPublisher) Publish(event *events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordPublisher) Close() error { return nil }

func (p *recordPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeSession, *fakeNotifier, *recordPublisher) {
	t.Helper()
	session := &fakeSession{audioOn: true}
	notifier := &fakeNotifier{doorOK: true}
	pub := &recordPublisher{}

	e, err := NewEngine(Config{
		Provider:  call.ProviderTwilio,
		Notifier:  notifier,
		Publisher: pub,
		NewSession: func(media.Handler) (media.Session, error) {
			return session, nil
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, session, notifier, pub
}

func newBoundCall() *call.Call {
	return call.New("CALL-1", 42, call.ProviderTwilio, "initializing")
}

func typesEqual(got, want []events.EventType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestHappyPathOrderedSideEffects(t *testing.T) {
	e, session, notifier, pub := newTestEngine(t)
	ctx := context.Background()

	c := newBoundCall()
	c.SetProviderToken("tok-1")
	if err := e.ProcessCall(ctx, c, CallTypeNotification); err != nil {
		t.Fatalf("ProcessCall: %v", err)
	}
	if e.State() != call.StateRinging {
		t.Fatalf("state after dialing = %v, want ringing", e.State())
	}

	e.AnswerCall(ctx)
	if e.State() != call.StateAccepted {
		t.Fatalf("state after answer = %v, want accepted", e.State())
	}
	if session.connects != 1 {
		t.Errorf("connects = %d, want 1", session.connects)
	}
	if session.lastToken != "tok-1" || session.lastRoom != "CALL-1" {
		t.Errorf("connect got (%q, %q), want (tok-1, CALL-1)", session.lastToken, session.lastRoom)
	}

	e.SessionConnected()
	if e.State() != call.StateOngoing {
		t.Fatalf("state after connect = %v, want ongoing", e.State())
	}

	if got := notifier.sent(); len(got) != 2 || got[0] != "is_active" || got[1] != "call_accepted" {
		t.Errorf("notifications = %v, want [is_active call_accepted]", got)
	}
	want := []events.EventType{events.CallRinging, events.CallAccepted, events.CallConnected}
	if got := pub.types(); !typesEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestDuplicateStatusFiresOnce(t *testing.T) {
	e, _, _, pub := newTestEngine(t)
	ctx := context.Background()

	if err := e.ProcessCall(ctx, newBoundCall(), CallTypeNotification); err != nil {
		t.Fatalf("ProcessCall: %v", err)
	}
	// Re-delivered pushes carrying the same status must not re-fire side
	// effects.
	e.HandleStatusUpdate(ctx, "CALL-1", "initializing")
	e.HandleStatusUpdate(ctx, "CALL-1", "initializing")

	if e.State() != call.StateRinging {
		t.Errorf("state = %v, want ringing", e.State())
	}
	if got := pub.types(); !typesEqual(got, []events.EventType{events.CallRinging}) {
		t.Errorf("events = %v, want exactly one ringing", got)
	}
}

func TestTerminalEventsTeardownAtMostOnce(t *testing.T) {
	tests := []struct {
		name  string
		fire  func(e *Engine, ctx context.Context)
		wants events.EventType
	}{
		{
			name:  "user hangs up",
			fire:  func(e *Engine, ctx context.Context) { e.EndCall(ctx, "CALL-1") },
			wants: events.CallEnded,
		},
		{
			name:  "session dropped",
			fire:  func(e *Engine, _ context.Context) { e.SessionDisconnected(errors.New("ice failed")) },
			wants: events.CallEnded,
		},
		{
			name:  "participant left",
			fire:  func(e *Engine, _ context.Context) { e.ParticipantLeft("panel") },
			wants: events.CallEnded,
		},
		{
			name:  "canceled by caller",
			fire:  func(e *Engine, ctx context.Context) { e.HandleStatusUpdate(ctx, "CALL-1", "canceled") },
			wants: events.CallCanceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, session, _, pub := newTestEngine(t)
			ctx := context.Background()

			e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
			e.AnswerCall(ctx)
			e.SessionConnected()

			tt.fire(e, ctx)
			if e.State() != call.StateIdle {
				t.Fatalf("state = %v, want idle", e.State())
			}
			if e.ActiveCall() != nil {
				t.Error("call should be released on idle entry")
			}
			if session.disconnects > 1 {
				t.Errorf("disconnects = %d, teardown must run at most once", session.disconnects)
			}

			// Late signals after release are absorbed.
			e.SessionDisconnected(nil)
			e.ParticipantLeft("panel")
			if session.disconnects > 1 {
				t.Errorf("late signals re-ran teardown: disconnects = %d", session.disconnects)
			}

			got := pub.types()
			if len(got) == 0 || got[len(got)-1] != tt.wants {
				t.Errorf("events = %v, want final %v", got, tt.wants)
			}
		})
	}
}

func TestEndCallGuidMismatch(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
	e.AnswerCall(ctx)
	e.SessionConnected()

	e.EndCall(ctx, "OTHER")
	if e.State() != call.StateOngoing {
		t.Errorf("state = %v after mismatched EndCall, want ongoing", e.State())
	}

	// guid compare is case-insensitive.
	e.EndCall(ctx, "call-1")
	if e.State() != call.StateIdle {
		t.Errorf("state = %v after case-folded EndCall, want idle", e.State())
	}
}

func TestDeclineSendsCallEndedNotification(t *testing.T) {
	e, session, notifier, pub := newTestEngine(t)
	ctx := context.Background()

	e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
	e.EndCall(ctx, "CALL-1")

	if e.State() != call.StateIdle {
		t.Fatalf("state = %v, want idle", e.State())
	}
	if got := notifier.sent(); len(got) != 1 || got[0] != "call_ended" {
		t.Errorf("notifications = %v, want [call_ended]", got)
	}
	if session.disconnects != 1 {
		t.Errorf("disconnects = %d, decline should tear down", session.disconnects)
	}
	want := []events.EventType{events.CallRinging, events.CallEnded}
	if got := pub.types(); !typesEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestAnsweredByOthersSkipsTeardown(t *testing.T) {
	e, session, _, pub := newTestEngine(t)
	ctx := context.Background()

	e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
	e.HandleStatusUpdate(ctx, "CALL-1", "connecting_sip")

	if e.State() != call.StateIdle {
		t.Fatalf("state = %v, want idle", e.State())
	}
	if session.disconnects != 0 {
		t.Errorf("disconnects = %d, answered-by-others never connected", session.disconnects)
	}

	got := pub.types()
	if len(got) != 2 || got[1] != events.CallCanceled {
		t.Fatalf("events = %v, want [ringing canceled]", got)
	}
	last := pub.events[len(pub.events)-1]
	if last.Reason != call.CancelReasonAnsweredByOthers {
		t.Errorf("reason = %q, want answered-by-others", last.Reason)
	}
}

func TestConnectingSIPIgnoredPastRinging(t *testing.T) {
	e, _, _, pub := newTestEngine(t)
	ctx := context.Background()

	e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
	e.AnswerCall(ctx)
	e.SessionConnected()

	before := len(pub.types())
	e.HandleStatusUpdate(ctx, "CALL-1", "connecting_sip")

	if e.State() != call.StateOngoing {
		t.Errorf("state = %v, connecting_sip past ringing must not cancel", e.State())
	}
	if got := len(pub.types()); got != before {
		t.Errorf("events grew from %d to %d, want no new events", before, got)
	}
}

func TestLateStatusesAbsorbedWhileOngoing(t *testing.T) {
	e, _, _, pub := newTestEngine(t)
	ctx := context.Background()

	e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
	e.AnswerCall(ctx)
	e.SessionConnected()
	before := len(pub.types())

	// Events with no registered transition from ongoing are silent no-ops,
	// even when re-delivered around an intervening different event.
	e.HandleStatusUpdate(ctx, "CALL-1", "opened_door")
	e.HandleStatusUpdate(ctx, "CALL-1", "initializing")
	e.HandleStatusUpdate(ctx, "CALL-1", "opened_door")

	if e.State() != call.StateOngoing {
		t.Fatalf("state = %v, want ongoing", e.State())
	}
	if got := len(pub.types()); got != before {
		t.Errorf("no-op statuses fired %d extra events", got-before)
	}

	e.HandleStatusUpdate(ctx, "CALL-1", "canceled")
	if e.State() != call.StateIdle {
		t.Errorf("state = %v after canceled, want idle", e.State())
	}
}

func TestOpenedDoorWhileRingingEndsCall(t *testing.T) {
	e, _, _, pub := newTestEngine(t)
	ctx := context.Background()

	e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
	e.HandleStatusUpdate(ctx, "CALL-1", "opened_door")

	if e.State() != call.StateIdle {
		t.Fatalf("state = %v, want idle", e.State())
	}
	got := pub.types()
	if len(got) != 2 || got[1] != events.CallEnded {
		t.Errorf("events = %v, want [ringing ended]", got)
	}
}

func TestUnknownStatusHaltsDerivation(t *testing.T) {
	e, _, _, pub := newTestEngine(t)
	ctx := context.Background()

	e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)

	err := e.HandleStatusUpdate(ctx, "CALL-1", "exploded")
	if !errors.Is(err, call.ErrUnknownStatus) {
		t.Fatalf("err = %v, want ErrUnknownStatus", err)
	}

	got := pub.types()
	if len(got) == 0 || got[len(got)-1] != events.ProcessingFail {
		t.Errorf("events = %v, want trailing processing fail", got)
	}

	// Further status pushes are ignored once halted.
	e.HandleStatusUpdate(ctx, "CALL-1", "canceled")
	if e.State() != call.StateRinging {
		t.Errorf("state = %v, halted call must not keep deriving", e.State())
	}

	// The user can still end the call.
	e.EndCall(ctx, "CALL-1")
	if e.State() != call.StateIdle {
		t.Errorf("state = %v, EndCall must still work after halt", e.State())
	}
}

func TestStatusForUnboundCallIgnored(t *testing.T) {
	e, _, _, pub := newTestEngine(t)
	ctx := context.Background()

	if err := e.HandleStatusUpdate(ctx, "GHOST", "canceled"); err != nil {
		t.Fatalf("unbound status update errored: %v", err)
	}
	if len(pub.types()) != 0 {
		t.Error("unbound status update fired events")
	}

	e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
	e.HandleStatusUpdate(ctx, "OTHER", "canceled")
	if e.State() != call.StateRinging {
		t.Errorf("state = %v, mismatched guid must not transition", e.State())
	}
}

func TestToggleMicrophoneOnlyWhileOngoing(t *testing.T) {
	e, session, _, _ := newTestEngine(t)
	ctx := context.Background()

	e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
	if e.ToggleMicrophone(nil) {
		t.Error("toggle must be refused while ringing")
	}

	e.AnswerCall(ctx)
	if e.ToggleMicrophone(nil) {
		t.Error("toggle must be refused while accepted")
	}

	e.SessionConnected()
	if !e.ToggleMicrophone(nil) {
		t.Fatal("toggle must be permitted while ongoing")
	}
	if session.AudioEnabled() {
		t.Error("flip toggle should have muted the microphone")
	}

	on := true
	if !e.ToggleMicrophone(&on) {
		t.Fatal("explicit toggle must be permitted while ongoing")
	}
	if !session.AudioEnabled() {
		t.Error("explicit toggle should have set the microphone on")
	}
}

func TestPressOpenDoor(t *testing.T) {
	e, _, notifier, pub := newTestEngine(t)
	ctx := context.Background()

	// No call bound: completion reports failure, nothing sent.
	var got *bool
	e.PressOpenDoor(ctx, func(ok bool) { got = &ok })
	if got == nil || *got {
		t.Error("open door without a call should complete false")
	}
	if len(notifier.sent()) != 0 {
		t.Error("open door without a call should not notify")
	}

	e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
	state := e.State()

	var ok bool
	e.PressOpenDoor(ctx, func(v bool) { ok = v })
	if !ok {
		t.Error("open door completion should report success")
	}
	if e.State() != state {
		t.Errorf("open door changed state %v -> %v", state, e.State())
	}

	types := pub.types()
	if types[len(types)-1] != events.DoorOpened {
		t.Errorf("events = %v, want trailing door opened", types)
	}
}

func TestSpeakerOverrideByCallType(t *testing.T) {
	t.Run("notification call routes to speaker on accept", func(t *testing.T) {
		session := &fakeSession{audioOn: true}
		audio := media.NewAudioDevice()
		e, err := NewEngine(Config{
			Provider:  call.ProviderTwilio,
			Notifier:  &fakeNotifier{},
			Publisher: &recordPublisher{},
			Audio:     audio,
			NewSession: func(media.Handler) (media.Session, error) {
				return session, nil
			},
		})
		if err != nil {
			t.Fatalf("NewEngine: %v", err)
		}

		ctx := context.Background()
		e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
		if audio.Connected() {
			t.Error("notification call must not prepare audio before accept")
		}
		e.AnswerCall(ctx)
		if !audio.Connected() || audio.CurrentRoute() != media.RouteSpeaker {
			t.Errorf("accept should prepare audio with speaker override, got connected=%v route=%v",
				audio.Connected(), audio.CurrentRoute())
		}
	})

	t.Run("platform call prepares audio at ringing", func(t *testing.T) {
		session := &fakeSession{audioOn: false}
		audio := media.NewAudioDevice()
		e, err := NewEngine(Config{
			Provider:  call.ProviderTwilio,
			Notifier:  &fakeNotifier{},
			Publisher: &recordPublisher{},
			Audio:     audio,
			NewSession: func(media.Handler) (media.Session, error) {
				return session, nil
			},
		})
		if err != nil {
			t.Fatalf("NewEngine: %v", err)
		}

		ctx := context.Background()
		e.ProcessCall(ctx, newBoundCall(), CallTypePlatform)
		if !audio.Connected() || audio.CurrentRoute() != media.RouteReceiver {
			t.Errorf("platform call should prepare audio at ringing without override, got connected=%v route=%v",
				audio.Connected(), audio.CurrentRoute())
		}

		e.AnswerCall(ctx)
		e.SessionConnected()
		if !session.AudioEnabled() {
			t.Error("platform call should enable local audio on connect")
		}
	})
}

func TestProcessCallIngestsFetchedStatus(t *testing.T) {
	e, _, _, pub := newTestEngine(t)
	ctx := context.Background()

	// A call fetched already canceled must fold straight back to idle.
	c := call.New("CALL-2", 7, call.ProviderTwilio, "canceled")
	e.ProcessCall(ctx, c, CallTypeNotification)

	if e.State() != call.StateIdle {
		t.Fatalf("state = %v, want idle", e.State())
	}
	got := pub.types()
	if len(got) != 2 || got[1] != events.CallCanceled {
		t.Errorf("events = %v, want [ringing canceled]", got)
	}
}

// echoingSession mirrors a transport whose Disconnect reports the hangup
// back on the caller's goroutine before returning.
type echoingSession struct {
	fakeSession
	handler media.Handler
}

func (s *echoingSession) Disconnect() {
	s.fakeSession.Disconnect()
	s.handler.ParticipantLeft("panel")
	s.handler.SessionDisconnected(nil)
}

func TestHangupWithReentrantDisconnectCallback(t *testing.T) {
	session := &echoingSession{}
	notifier := &fakeNotifier{doorOK: true}
	pub := &recordPublisher{}

	e, err := NewEngine(Config{
		Provider:  call.ProviderInternal,
		Notifier:  notifier,
		Publisher: pub,
		NewSession: func(h media.Handler) (media.Session, error) {
			session.handler = h
			return session, nil
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	e.ProcessCall(ctx, newBoundCall(), CallTypeNotification)
	e.AnswerCall(ctx)
	e.SessionConnected()

	done := make(chan struct{})
	go func() {
		e.EndCall(ctx, "CALL-1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("EndCall did not return with a reentrant session callback")
	}

	if e.State() != call.StateIdle {
		t.Errorf("state = %v, want idle", e.State())
	}
	if session.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", session.disconnects)
	}
	got := pub.types()
	if len(got) == 0 || got[len(got)-1] != events.CallEnded {
		t.Errorf("events = %v, want a single trailing ended", got)
	}
	for _, typ := range got[:len(got)-1] {
		if typ == events.CallEnded {
			t.Errorf("events = %v, echoed callbacks must not double the ended event", got)
		}
	}
}

func TestProcessCallUnknownFetchedStatusHalts(t *testing.T) {
	e, _, _, pub := newTestEngine(t)
	ctx := context.Background()

	c := call.New("CALL-1", 42, call.ProviderTwilio, "exploded")
	err := e.ProcessCall(ctx, c, CallTypeNotification)
	if !errors.Is(err, call.ErrUnknownStatus) {
		t.Fatalf("err = %v, want ErrUnknownStatus", err)
	}

	got := pub.types()
	if len(got) == 0 || got[len(got)-1] != events.ProcessingFail {
		t.Errorf("events = %v, want trailing processing fail", got)
	}

	// Pushes for the halted call are ignored.
	e.HandleStatusUpdate(ctx, "CALL-1", "active")
	if e.State() != call.StateRinging {
		t.Errorf("state = %v, halted call must not keep deriving", e.State())
	}

	// The user can still end the call.
	e.EndCall(ctx, "CALL-1")
	if e.State() != call.StateIdle {
		t.Errorf("state = %v, EndCall must still work after halt", e.State())
	}
}
