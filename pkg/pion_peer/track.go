package pion_peer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// ErrTrackEnded запись в остановленный трек
var ErrTrackEnded = errors.New("pion_peer: track is ended")

const streamID = "webrtc_client"

// Track локальный трек для pion. Реализует local_media.PlatformTrack.
// Пакеты пишет приложение, выключенный трек их отбрасывает.
type Track struct {
	local    *webrtc.TrackLocalStaticRTP
	kind     signaling.MediaKind
	source   signaling.MediaSourceKind
	deviceID string

	enabled atomic.Bool
	ended   atomic.Bool
	written atomic.Uint64
	dropped atomic.Uint64
}

// NewTrack создает трек с кодеком по умолчанию для kind: opus или VP8
func NewTrack(kind signaling.MediaKind, source signaling.MediaSourceKind, deviceID string) (*Track, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == signaling.MediaKindVideo {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}

	local, err := webrtc.NewTrackLocalStaticRTP(codec, uuid.NewString(), streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}

	t := &Track{local: local, kind: kind, source: source, deviceID: deviceID}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) ID() string                            { return t.local.ID() }
func (t *Track) Kind() signaling.MediaKind             { return t.kind }
func (t *Track) SourceKind() signaling.MediaSourceKind { return t.source }
func (t *Track) DeviceID() string                      { return t.deviceID }
func (t *Track) SetEnabled(enabled bool)               { t.enabled.Store(enabled) }
func (t *Track) Enabled() bool                         { return t.enabled.Load() }
func (t *Track) Ended() bool                           { return t.ended.Load() }
func (t *Track) Stop()                                 { t.ended.Store(true) }

// Local трек pion, который привязывается к RTPSender
func (t *Track) Local() webrtc.TrackLocal { return t.local }

// WriteRTP отправляет пакет во все привязанные RTPSender.
// Пакеты выключенного трека отбрасываются без ошибки.
func (t *Track) WriteRTP(p *rtp.Packet) error {
	if t.ended.Load() {
		return ErrTrackEnded
	}
	if !t.enabled.Load() {
		t.dropped.Add(1)
		return nil
	}
	if err := t.local.WriteRTP(p); err != nil {
		return err
	}
	t.written.Add(1)
	return nil
}

// Stats количество отправленных и отброшенных пакетов
func (t *Track) Stats() (written, dropped uint64) {
	return t.written.Load(), t.dropped.Load()
}

// Acquirer выдает pion треки по запросу. Реальный захват устройств
// остается за приложением, которое пишет RTP в выданный трек.
type Acquirer struct {
	onTrack func(*Track)
}

// NewAcquirer создает Acquirer
func NewAcquirer() *Acquirer {
	return &Acquirer{}
}

// OnTrack вызывается для каждого нового трека, например чтобы начать запись в него
func (a *Acquirer) OnTrack(fn func(*Track)) {
	a.onTrack = fn
}

// Acquire реализует local_media.Acquirer
func (a *Acquirer) Acquire(ctx context.Context, req local_media.TrackRequest) ([]local_media.PlatformTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deviceID := req.Constraints.DeviceID
	if deviceID == "" {
		deviceID = "default"
	}
	t, err := NewTrack(req.Kind, req.Source, deviceID)
	if err != nil {
		return nil, err
	}
	if a.onTrack != nil {
		a.onTrack(t)
	}
	return []local_media.PlatformTrack{t}, nil
}
