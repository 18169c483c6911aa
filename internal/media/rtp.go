package media

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"

	"github.com/runslikebutter/doorphone/internal/logger"
)

// generateSSRC returns a random 32-bit SSRC per RFC 3550.
func generateSSRC() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0x12345678
	}
	return binary.BigEndian.Uint32(b[:])
}

// generateSequenceStart returns a random initial sequence number.
func generateSequenceStart() uint16 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(b[:])
}

// AudioStream pumps G.711 audio over a UDP socket in both directions. The
// send side is clock-paced at the codec frame duration and transmits
// silence while the microphone is disabled.
type AudioStream struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	codec  Codec

	ssrc      uint32
	seq       uint16
	timestamp uint32

	micEnabled atomic.Bool

	mu      sync.Mutex
	started bool
	done    chan struct{}

	// onPCM receives decoded inbound audio. Optional.
	onPCM func(pcm []byte)
}

// NewAudioStream binds a stream to an already-open socket and the
// negotiated far end.
func NewAudioStream(conn *net.UDPConn, remote RemoteAudio, onPCM func([]byte)) (*AudioStream, error) {
	if conn == nil {
		return nil, errors.New("audio stream: nil socket")
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(remote.Addr, strconv.Itoa(remote.Port)))
	if err != nil {
		return nil, err
	}
	s := &AudioStream{
		conn:      conn,
		remote:    addr,
		codec:     remote.Codec,
		ssrc:      generateSSRC(),
		seq:       generateSequenceStart(),
		timestamp: 0,
		done:      make(chan struct{}),
		onPCM:     onPCM,
	}
	s.micEnabled.Store(true)
	return s, nil
}

// SetMicEnabled toggles outbound audio. While disabled the stream keeps
// its packet clock and sends silence so the far end's jitter buffer stays
// primed.
func (s *AudioStream) SetMicEnabled(enabled bool) {
	s.micEnabled.Store(enabled)
}

// MicEnabled reports whether outbound audio carries microphone samples.
func (s *AudioStream) MicEnabled() bool {
	return s.micEnabled.Load()
}

// Start launches the send and receive loops. source supplies linear PCM
// frames of BytesPerFrame()*2 bytes; a nil source sends silence only.
func (s *AudioStream) Start(source func() []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.sendLoop(source)
	go s.recvLoop()
}

// Stop halts both loops and closes the socket. Idempotent.
func (s *AudioStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	select {
	case <-s.done:
	default:
		close(s.done)
		s.conn.Close()
	}
}

func (s *AudioStream) sendLoop(source func() []byte) {
	ticker := time.NewTicker(s.codec.SampleDur)
	defer ticker.Stop()

	silencePCM := make([]byte, s.codec.BytesPerFrame()*2)

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		pcm := silencePCM
		if source != nil && s.micEnabled.Load() {
			if frame := source(); len(frame) == len(silencePCM) {
				pcm = frame
			}
		}
		payload, err := s.codec.Encode(pcm)
		if err != nil {
			logger.Error("[AudioStream] Encode failed", "error", err)
			return
		}

		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    s.codec.PayloadType,
				SequenceNumber: s.seq,
				Timestamp:      s.timestamp,
				SSRC:           s.ssrc,
			},
			Payload: payload,
		}
		raw, err := pkt.Marshal()
		if err != nil {
			logger.Error("[AudioStream] Marshal failed", "error", err)
			return
		}
		if _, err := s.conn.WriteToUDP(raw, s.remote); err != nil {
			select {
			case <-s.done:
			default:
				logger.Debug("[AudioStream] Send failed", "error", err)
			}
			return
		}

		s.seq++
		s.timestamp += s.codec.TimestampIncrement()
	}
}

func (s *AudioStream) recvLoop() {
	buf := make([]byte, 1500)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
			default:
				logger.Debug("[AudioStream] Receive ended", "error", err)
			}
			return
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		codec, ok := CodecByPayloadType(pkt.PayloadType)
		if !ok {
			continue
		}
		if s.onPCM != nil {
			pcm, err := codec.Decode(pkt.Payload)
			if err != nil {
				continue
			}
			s.onPCM(pcm)
		}
	}
}
