package peer

import (
	"context"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// Transceiver платформенный RTP трансивер
type Transceiver interface {
	Mid() string
	SetSendDirection(enabled bool)
	SetRecvDirection(enabled bool)
	// SetTrackEnabled включает или заглушает отправляемый трек
	SetTrackEnabled(enabled bool)
	InsertLocalTrack(ctx context.Context, track *local_media.Track) error
	DropLocalTrack() error
}

// Connection платформенное peer connection
type Connection interface {
	AddTransceiver(kind signaling.MediaKind, direction signaling.TrackDirection) (Transceiver, error)
	Close() error
}

// ConnectionFactory создает peer connection для PeerCreated
type ConnectionFactory func(id signaling.PeerID, iceServers []signaling.IceServer, forceRelay bool) (Connection, error)

// CommandSender отправляет команды серверу без ожидания ответа
type CommandSender interface {
	SendCommand(cmd signaling.Command)
}

// TransceiverSide общие возможности исходящего и входящего трека,
// через которые комната управляет медиа состояниями
type TransceiverSide interface {
	TrackID() signaling.TrackID
	Kind() signaling.MediaKind
	SourceKind() signaling.MediaSourceKind
	Direction() signaling.TrackDirection
	Mid() string

	// IsTransitable false для треков, которыми комната не управляет напрямую
	IsTransitable() bool
	IsRequired() bool

	MediaExchangeState() media_state.TransitableState[media_state.MediaExchange]
	MuteState() media_state.TransitableState[media_state.Mute]

	// CheckMediaStateTransition проверяет переход без изменения состояния
	CheckMediaStateTransition(state media_state.MediaState) error
	MediaStateTransitionTo(state media_state.MediaState) error
	WhenMediaStateStable(ctx context.Context, state media_state.MediaState) error
	// IsSubscriptionNeeded true если трек еще не находится в стабильном state
	IsSubscriptionNeeded(state media_state.MediaState) bool
	InMediaState(state media_state.MediaState) bool

	StopMediaStateTransitionTimeout()
	ResetMediaStateTransitionTimeout()
}
