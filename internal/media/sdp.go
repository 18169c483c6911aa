package media

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"
)

// BuildAudioOffer renders an SDP session offering the given codecs on a
// single audio stream at ip:port.
func BuildAudioOffer(ip string, port int, codecs ...Codec) ([]byte, error) {
	if len(codecs) == 0 {
		codecs = []Codec{CodecPCMU, CodecPCMA}
	}

	formats := make([]string, 0, len(codecs))
	attrs := make([]sdp.Attribute, 0, len(codecs)+2)
	for _, c := range codecs {
		pt := strconv.Itoa(int(c.PayloadType))
		formats = append(formats, pt)
		attrs = append(attrs, sdp.Attribute{
			Key:   "rtpmap",
			Value: fmt.Sprintf("%s %s/%d", pt, c.Name, c.ClockRate),
		})
	}
	attrs = append(attrs,
		sdp.Attribute{Key: "ptime", Value: "20"},
		sdp.Attribute{Key: "sendrecv"},
	)

	now := uint64(time.Now().UnixNano())
	desc := sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      now,
			SessionVersion: now,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: ip,
		},
		SessionName: "doorphone",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: ip},
		},
		TimeDescriptions: []sdp.TimeDescription{{}},
		MediaDescriptions: []*sdp.MediaDescription{{
			MediaName: sdp.MediaName{
				Media:   "audio",
				Port:    sdp.RangedPort{Value: port},
				Protos:  []string{"RTP", "AVP"},
				Formats: formats,
			},
			Attributes: attrs,
		}},
	}
	return desc.Marshal()
}

// RemoteAudio is the negotiated far-end audio endpoint from an SDP answer.
type RemoteAudio struct {
	Addr  string
	Port  int
	Codec Codec
}

// ParseAudioAnswer extracts the far-end audio address, port and first
// mutually supported codec from an SDP answer body.
func ParseAudioAnswer(body []byte) (RemoteAudio, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return RemoteAudio{}, fmt.Errorf("parse sdp: %w", err)
	}

	addr := ""
	if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		addr = desc.ConnectionInformation.Address.Address
	}

	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
			addr = md.ConnectionInformation.Address.Address
		}
		if addr == "" {
			return RemoteAudio{}, fmt.Errorf("parse sdp: no connection address")
		}
		for _, f := range md.MediaName.Formats {
			pt, err := strconv.Atoi(f)
			if err != nil {
				continue
			}
			if codec, ok := CodecByPayloadType(uint8(pt)); ok {
				return RemoteAudio{
					Addr:  addr,
					Port:  md.MediaName.Port.Value,
					Codec: codec,
				}, nil
			}
		}
		return RemoteAudio{}, fmt.Errorf("parse sdp: no supported audio codec")
	}
	return RemoteAudio{}, fmt.Errorf("parse sdp: no audio media section")
}
