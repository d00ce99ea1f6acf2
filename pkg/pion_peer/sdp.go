package pion_peer

import (
	"fmt"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// MediaSection аудио или видео секция SDP
type MediaSection struct {
	Mid       string
	Kind      signaling.MediaKind
	Direction string
}

var directions = []string{"sendrecv", "sendonly", "recvonly", "inactive"}

// MidsFromSDP возвращает аудио и видео секции SDP в порядке m-строк.
// Секции data channel пропускаются.
func MidsFromSDP(raw string) ([]MediaSection, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("parse sdp: %w", err)
	}

	sections := make([]MediaSection, 0, len(desc.MediaDescriptions))
	for i, md := range desc.MediaDescriptions {
		var kind signaling.MediaKind
		switch md.MediaName.Media {
		case "audio":
			kind = signaling.MediaKindAudio
		case "video":
			kind = signaling.MediaKindVideo
		default:
			continue
		}

		mid, ok := md.Attribute("mid")
		if !ok {
			return nil, fmt.Errorf("media section %d has no mid", i)
		}

		// по умолчанию sendrecv
		direction := "sendrecv"
		for _, d := range directions {
			if _, ok := md.Attribute(d); ok {
				direction = d
				break
			}
		}

		sections = append(sections, MediaSection{Mid: mid, Kind: kind, Direction: direction})
	}
	return sections, nil
}
