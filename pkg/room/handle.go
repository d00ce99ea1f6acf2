package room

import (
	"context"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

var (
	muted    = media_state.NewMute(media_state.Muted)
	unmuted  = media_state.NewMute(media_state.Unmuted)
	enabled  = media_state.NewMediaExchange(media_state.Enabled)
	disabled = media_state.NewMediaExchange(media_state.Disabled)
)

// RoomHandle внешний доступ к комнате. После закрытия комнаты все методы
// возвращают ErrDetached.
type RoomHandle struct {
	id     string
	client *Client
}

// ID идентификатор комнаты
func (h *RoomHandle) ID() string { return h.id }

func (h *RoomHandle) room() (*Room, error) {
	r, ok := h.client.room(h.id)
	if !ok || r.IsClosed() {
		return nil, ErrDetached
	}
	return r, nil
}

func (h *RoomHandle) change(ctx context.Context, state media_state.MediaState, kind signaling.MediaKind, direction signaling.TrackDirection, source *signaling.MediaSourceKind) error {
	r, err := h.room()
	if err != nil {
		return err
	}
	return r.changeMediaState(ctx, state, kind, direction, source)
}

// MuteAudio заглушает исходящее аудио
func (h *RoomHandle) MuteAudio(ctx context.Context) error {
	return h.change(ctx, muted, signaling.MediaKindAudio, signaling.DirectionSend, nil)
}

// UnmuteAudio снимает заглушение исходящего аудио
func (h *RoomHandle) UnmuteAudio(ctx context.Context) error {
	return h.change(ctx, unmuted, signaling.MediaKindAudio, signaling.DirectionSend, nil)
}

// MuteVideo заглушает исходящее видео. nil source означает все источники.
func (h *RoomHandle) MuteVideo(ctx context.Context, source *signaling.MediaSourceKind) error {
	return h.change(ctx, muted, signaling.MediaKindVideo, signaling.DirectionSend, source)
}

// UnmuteVideo снимает заглушение исходящего видео
func (h *RoomHandle) UnmuteVideo(ctx context.Context, source *signaling.MediaSourceKind) error {
	return h.change(ctx, unmuted, signaling.MediaKindVideo, signaling.DirectionSend, source)
}

// DisableAudio прекращает отправку аудио и освобождает микрофон
func (h *RoomHandle) DisableAudio(ctx context.Context) error {
	return h.change(ctx, disabled, signaling.MediaKindAudio, signaling.DirectionSend, nil)
}

// EnableAudio возобновляет отправку аудио
func (h *RoomHandle) EnableAudio(ctx context.Context) error {
	return h.change(ctx, enabled, signaling.MediaKindAudio, signaling.DirectionSend, nil)
}

// DisableVideo прекращает отправку видео
func (h *RoomHandle) DisableVideo(ctx context.Context, source *signaling.MediaSourceKind) error {
	return h.change(ctx, disabled, signaling.MediaKindVideo, signaling.DirectionSend, source)
}

// EnableVideo возобновляет отправку видео
func (h *RoomHandle) EnableVideo(ctx context.Context, source *signaling.MediaSourceKind) error {
	return h.change(ctx, enabled, signaling.MediaKindVideo, signaling.DirectionSend, source)
}

// DisableRemoteAudio прекращает прием аудио
func (h *RoomHandle) DisableRemoteAudio(ctx context.Context) error {
	return h.change(ctx, disabled, signaling.MediaKindAudio, signaling.DirectionRecv, nil)
}

// EnableRemoteAudio возобновляет прием аудио
func (h *RoomHandle) EnableRemoteAudio(ctx context.Context) error {
	return h.change(ctx, enabled, signaling.MediaKindAudio, signaling.DirectionRecv, nil)
}

// DisableRemoteVideo прекращает прием видео
func (h *RoomHandle) DisableRemoteVideo(ctx context.Context, source *signaling.MediaSourceKind) error {
	return h.change(ctx, disabled, signaling.MediaKindVideo, signaling.DirectionRecv, source)
}

// EnableRemoteVideo возобновляет прием видео
func (h *RoomHandle) EnableRemoteVideo(ctx context.Context, source *signaling.MediaSourceKind) error {
	return h.change(ctx, enabled, signaling.MediaKindVideo, signaling.DirectionRecv, source)
}

// SetLocalMediaSettings см. Room.SetLocalMediaSettings
func (h *RoomHandle) SetLocalMediaSettings(ctx context.Context, settings local_media.MediaStreamSettings, stopFirst, rollbackOnFail bool) error {
	r, err := h.room()
	if err != nil {
		return errored(err)
	}
	return r.SetLocalMediaSettings(ctx, settings, stopFirst, rollbackOnFail)
}

// State снимок клиентского состояния комнаты
func (h *RoomHandle) State() (signaling.RoomState, error) {
	r, err := h.room()
	if err != nil {
		return signaling.RoomState{}, err
	}
	return r.State(), nil
}

// Settings текущие настройки локального медиа
func (h *RoomHandle) Settings() (local_media.MediaStreamSettings, error) {
	r, err := h.room()
	if err != nil {
		return local_media.MediaStreamSettings{}, err
	}
	return r.Settings(), nil
}

// ConnectionQuality последняя оценка соединения с участником
func (h *RoomHandle) ConnectionQuality(member signaling.MemberID) (signaling.ConnectionQualityScore, bool, error) {
	r, err := h.room()
	if err != nil {
		return 0, false, err
	}
	q, ok := r.ConnectionQuality(member)
	return q, ok, nil
}

// OnLocalTrack см. Room.OnLocalTrack
func (h *RoomHandle) OnLocalTrack(fn func(*local_media.Track)) error {
	r, err := h.room()
	if err != nil {
		return err
	}
	r.OnLocalTrack(fn)
	return nil
}

// OnFailedLocalMedia см. Room.OnFailedLocalMedia
func (h *RoomHandle) OnFailedLocalMedia(fn func(error)) error {
	r, err := h.room()
	if err != nil {
		return err
	}
	r.OnFailedLocalMedia(fn)
	return nil
}

// OnConnectionLoss см. Room.OnConnectionLoss
func (h *RoomHandle) OnConnectionLoss(fn func(*signaling.ReconnectHandle)) error {
	r, err := h.room()
	if err != nil {
		return err
	}
	r.OnConnectionLoss(fn)
	return nil
}

// OnClose см. Room.OnClose
func (h *RoomHandle) OnClose(fn func(CloseReason)) error {
	r, err := h.room()
	if err != nil {
		return err
	}
	r.OnClose(fn)
	return nil
}

// OnConnectionQualityUpdated см. Room.OnConnectionQualityUpdated
func (h *RoomHandle) OnConnectionQualityUpdated(fn func(signaling.MemberID, signaling.ConnectionQualityScore)) error {
	r, err := h.room()
	if err != nil {
		return err
	}
	r.OnConnectionQualityUpdated(fn)
	return nil
}
