package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/runslikebutter/doorphone/internal/logger"
)

// SignalFunc exchanges the local SDP offer for the room's answer through
// the provider's signaling channel. credential is the access token minted
// for this device, room is the call room name.
type SignalFunc func(ctx context.Context, credential, room string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)

// RoomConfig tunes the WebRTC stack for a room session.
type RoomConfig struct {
	STUNServers []string
	// ICE recovery windows. Zero values pick generous defaults so a brief
	// relay hiccup does not drop the call.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

// RoomSession is the twilio provider's media session: a WebRTC peer
// connection into the provider's video room. It implements Session.
type RoomSession struct {
	cfg     RoomConfig
	signal  SignalFunc
	handler Handler

	mu           sync.Mutex
	pc           *webrtc.PeerConnection
	audioTrack   *webrtc.TrackLocalStaticSample
	videoTrack   *webrtc.TrackLocalStaticSample
	audioOn      bool
	videoOn      bool
	connected    bool
	reconnecting bool
	participants map[string]struct{}
}

// NewRoomSession builds a session that will dial through signal when
// Connect is called.
func NewRoomSession(cfg RoomConfig, signal SignalFunc, handler Handler) *RoomSession {
	if handler == nil {
		handler = NoopHandler{}
	}
	if cfg.DisconnectedTimeout == 0 {
		cfg.DisconnectedTimeout = 30 * time.Second
	}
	if cfg.FailedTimeout == 0 {
		cfg.FailedTimeout = 120 * time.Second
	}
	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = 2 * time.Second
	}
	return &RoomSession{
		cfg:          cfg,
		signal:       signal,
		handler:      handler,
		audioOn:      true,
		videoOn:      false,
		participants: make(map[string]struct{}),
	}
}

func (r *RoomSession) newPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(r.cfg.DisconnectedTimeout, r.cfg.FailedTimeout, r.cfg.KeepAliveInterval)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	iceServers := make([]webrtc.ICEServer, 0, len(r.cfg.STUNServers))
	for _, u := range r.cfg.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}

	return api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
}

// Connect joins the room. The outcome and all later room events arrive on
// the Handler.
func (r *RoomSession) Connect(ctx context.Context, credential, room string) error {
	if r.signal == nil {
		return fmt.Errorf("room session: no signaling configured")
	}

	r.mu.Lock()
	if r.pc != nil {
		r.mu.Unlock()
		return fmt.Errorf("room session already active")
	}

	pc, err := r.newPeerConnection()
	if err != nil {
		r.mu.Unlock()
		return err
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "doorphone")
	if err != nil {
		pc.Close()
		r.mu.Unlock()
		return fmt.Errorf("create audio track: %w", err)
	}
	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		r.mu.Unlock()
		return fmt.Errorf("add audio track: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "doorphone")
	if err != nil {
		pc.Close()
		r.mu.Unlock()
		return fmt.Errorf("create video track: %w", err)
	}
	if _, err := pc.AddTrack(videoTrack); err != nil {
		pc.Close()
		r.mu.Unlock()
		return fmt.Errorf("add video track: %w", err)
	}

	// Recvonly transceivers guarantee the offer carries m-lines for the
	// panel's audio and video even before any remote track exists.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		r.mu.Unlock()
		return fmt.Errorf("add video transceiver: %w", err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		r.mu.Unlock()
		return fmt.Errorf("add audio transceiver: %w", err)
	}

	r.pc = pc
	r.audioTrack = audioTrack
	r.videoTrack = videoTrack
	r.mu.Unlock()

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.onConnectionState(state)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		r.onRemoteTrack(track)
	})

	go r.negotiate(ctx, pc, credential, room)
	return nil
}

func (r *RoomSession) negotiate(ctx context.Context, pc *webrtc.PeerConnection, credential, room string) {
	fail := func(err error) {
		logger.Error("[RoomSession] Join failed", "room", room, "error", err)
		r.teardown()
		r.handler.SessionDisconnected(err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		fail(fmt.Errorf("create offer: %w", err))
		return
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		fail(fmt.Errorf("set local description: %w", err))
		return
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		fail(ctx.Err())
		return
	}

	answer, err := r.signal(ctx, credential, room, *pc.LocalDescription())
	if err != nil {
		fail(fmt.Errorf("signal offer: %w", err))
		return
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		fail(fmt.Errorf("set remote description: %w", err))
		return
	}
	logger.Debug("[RoomSession] Negotiation complete", "room", room)
}

func (r *RoomSession) onConnectionState(state webrtc.PeerConnectionState) {
	logger.Debug("[RoomSession] Connection state", "state", state.String())

	switch state {
	case webrtc.PeerConnectionStateConnected:
		r.mu.Lock()
		wasReconnecting := r.reconnecting
		r.reconnecting = false
		first := !r.connected
		r.connected = true
		r.mu.Unlock()
		if wasReconnecting {
			r.handler.SessionReconnected()
		} else if first {
			r.handler.SessionConnected()
		}

	case webrtc.PeerConnectionStateDisconnected:
		r.mu.Lock()
		active := r.connected
		if active {
			r.reconnecting = true
		}
		r.mu.Unlock()
		if active {
			r.handler.SessionReconnecting(fmt.Errorf("ice disconnected"))
		}

	case webrtc.PeerConnectionStateFailed:
		r.teardown()
		r.handler.SessionDisconnected(fmt.Errorf("peer connection failed"))
	}
}

func (r *RoomSession) onRemoteTrack(track *webrtc.TrackRemote) {
	identity := track.StreamID()
	if identity == "" {
		identity = track.ID()
	}

	r.mu.Lock()
	_, known := r.participants[identity]
	if !known {
		r.participants[identity] = struct{}{}
	}
	r.mu.Unlock()

	if !known {
		logger.Info("[RoomSession] Participant joined",
			"identity", identity, "kind", track.Kind().String())
		r.handler.ParticipantJoined(identity)
	}

	// Drain the track so interceptors keep RTCP feedback flowing.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				r.mu.Lock()
				_, present := r.participants[identity]
				delete(r.participants, identity)
				r.mu.Unlock()
				if present {
					r.handler.ParticipantLeft(identity)
				}
				return
			}
		}
	}()
}

func (r *RoomSession) teardown() {
	r.mu.Lock()
	pc := r.pc
	r.pc = nil
	r.audioTrack = nil
	r.videoTrack = nil
	r.connected = false
	r.reconnecting = false
	r.participants = make(map[string]struct{})
	r.mu.Unlock()

	if pc != nil {
		pc.Close()
	}
}

// Disconnect leaves the room. Idempotent; no Handler callback fires for a
// local disconnect initiated here.
func (r *RoomSession) Disconnect() {
	r.mu.Lock()
	active := r.pc != nil
	r.mu.Unlock()
	if !active {
		return
	}
	r.teardown()
}

// WriteAudioSample forwards one encoded audio sample to the room while the
// microphone is enabled. Samples are dropped silently while muted.
func (r *RoomSession) WriteAudioSample(sample pionmedia.Sample) error {
	r.mu.Lock()
	track, on := r.audioTrack, r.audioOn
	r.mu.Unlock()
	if track == nil || !on {
		return nil
	}
	return track.WriteSample(sample)
}

// WriteVideoSample forwards one encoded video sample to the room while
// outgoing video is enabled.
func (r *RoomSession) WriteVideoSample(sample pionmedia.Sample) error {
	r.mu.Lock()
	track, on := r.videoTrack, r.videoOn
	r.mu.Unlock()
	if track == nil || !on {
		return nil
	}
	return track.WriteSample(sample)
}

// SetAudioEnabled toggles the outgoing microphone track.
func (r *RoomSession) SetAudioEnabled(enabled bool) {
	r.mu.Lock()
	r.audioOn = enabled
	r.mu.Unlock()
}

// AudioEnabled reports the microphone state.
func (r *RoomSession) AudioEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audioOn
}

// SetVideoEnabled toggles the outgoing camera track.
func (r *RoomSession) SetVideoEnabled(enabled bool) {
	r.mu.Lock()
	r.videoOn = enabled
	r.mu.Unlock()
}

// VideoEnabled reports the outgoing camera state.
func (r *RoomSession) VideoEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.videoOn
}
