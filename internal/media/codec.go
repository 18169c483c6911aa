package media

import (
	"fmt"
	"time"

	"github.com/zaf/g711"
)

// Codec describes an RTP audio codec used on the SIP line.
type Codec struct {
	Name        string
	PayloadType uint8
	ClockRate   uint32
	SampleDur   time.Duration
	Channels    int
}

// CodecPCMU is G.711 mu-law, the door panel default.
var CodecPCMU = Codec{
	Name:        "PCMU",
	PayloadType: 0,
	ClockRate:   8000,
	SampleDur:   20 * time.Millisecond,
	Channels:    1,
}

// CodecPCMA is G.711 A-law.
var CodecPCMA = Codec{
	Name:        "PCMA",
	PayloadType: 8,
	ClockRate:   8000,
	SampleDur:   20 * time.Millisecond,
	Channels:    1,
}

// SamplesPerFrame returns the number of PCM samples in one packet.
func (c Codec) SamplesPerFrame() int {
	return int(uint64(c.ClockRate) * uint64(c.SampleDur) / uint64(time.Second))
}

// BytesPerFrame returns the encoded payload size of one packet. G.711 is
// one byte per sample.
func (c Codec) BytesPerFrame() int {
	return c.SamplesPerFrame() * c.Channels
}

// TimestampIncrement returns the RTP timestamp step between packets.
func (c Codec) TimestampIncrement() uint32 {
	return uint32(c.SamplesPerFrame())
}

// Encode converts 16-bit linear PCM to the codec's wire payload.
func (c Codec) Encode(pcm []byte) ([]byte, error) {
	switch c.PayloadType {
	case CodecPCMU.PayloadType:
		return g711.EncodeUlaw(pcm), nil
	case CodecPCMA.PayloadType:
		return g711.EncodeAlaw(pcm), nil
	}
	return nil, fmt.Errorf("encode: unsupported payload type %d", c.PayloadType)
}

// Decode converts the codec's wire payload to 16-bit linear PCM.
func (c Codec) Decode(payload []byte) ([]byte, error) {
	switch c.PayloadType {
	case CodecPCMU.PayloadType:
		return g711.DecodeUlaw(payload), nil
	case CodecPCMA.PayloadType:
		return g711.DecodeAlaw(payload), nil
	}
	return nil, fmt.Errorf("decode: unsupported payload type %d", c.PayloadType)
}

// CodecByPayloadType resolves a negotiated payload type to a known codec.
func CodecByPayloadType(pt uint8) (Codec, bool) {
	switch pt {
	case CodecPCMU.PayloadType:
		return CodecPCMU, true
	case CodecPCMA.PayloadType:
		return CodecPCMA, true
	}
	return Codec{}, false
}
