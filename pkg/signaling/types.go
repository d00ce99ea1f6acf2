package signaling

import (
	"fmt"
	"strconv"
)

// PeerID идентификатор peer connection на стороне сервера
type PeerID uint32

func (id PeerID) String() string { return strconv.FormatUint(uint64(id), 10) }

// TrackID идентификатор трека
type TrackID uint32

func (id TrackID) String() string { return strconv.FormatUint(uint64(id), 10) }

// MemberID идентификатор участника комнаты
type MemberID string

// MediaKind тип медиа
type MediaKind uint8

const (
	MediaKindAudio MediaKind = iota
	MediaKindVideo
)

func (k MediaKind) String() string {
	if k == MediaKindVideo {
		return "video"
	}
	return "audio"
}

// MarshalText реализует encoding.TextMarshaler
func (k MediaKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText реализует encoding.TextUnmarshaler
func (k *MediaKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "audio":
		*k = MediaKindAudio
	case "video":
		*k = MediaKindVideo
	default:
		return fmt.Errorf("unknown media kind %q", b)
	}
	return nil
}

// MediaSourceKind источник медиа
type MediaSourceKind uint8

const (
	// SourceDevice камера или микрофон
	SourceDevice MediaSourceKind = iota
	// SourceDisplay захват экрана
	SourceDisplay
)

func (k MediaSourceKind) String() string {
	if k == SourceDisplay {
		return "display"
	}
	return "device"
}

// MarshalText реализует encoding.TextMarshaler
func (k MediaSourceKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText реализует encoding.TextUnmarshaler
func (k *MediaSourceKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "device":
		*k = SourceDevice
	case "display":
		*k = SourceDisplay
	default:
		return fmt.Errorf("unknown media source kind %q", b)
	}
	return nil
}

// Source возвращает указатель на источник, удобно для фильтров
func Source(k MediaSourceKind) *MediaSourceKind { return &k }

// TrackDirection направление трека относительно клиента
type TrackDirection uint8

const (
	DirectionSend TrackDirection = iota
	DirectionRecv
)

func (d TrackDirection) String() string {
	if d == DirectionRecv {
		return "recv"
	}
	return "send"
}

// MarshalText реализует encoding.TextMarshaler
func (d TrackDirection) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText реализует encoding.TextUnmarshaler
func (d *TrackDirection) UnmarshalText(b []byte) error {
	switch string(b) {
	case "send":
		*d = DirectionSend
	case "recv":
		*d = DirectionRecv
	default:
		return fmt.Errorf("unknown track direction %q", b)
	}
	return nil
}

// MediaType описание медиа трека
type MediaType struct {
	Kind     MediaKind       `json:"kind"`
	Source   MediaSourceKind `json:"source"`
	Required bool            `json:"required"`
}

// Track трек, объявленный сервером
type Track struct {
	ID        TrackID        `json:"id"`
	Direction TrackDirection `json:"direction"`
	// Receivers участники, получающие исходящий трек
	Receivers []MemberID `json:"receivers,omitempty"`
	// Sender участник, отправляющий входящий трек
	Sender    MemberID  `json:"sender,omitempty"`
	Mid       string    `json:"mid,omitempty"`
	MediaType MediaType `json:"media_type"`

	EnabledIndividual bool `json:"enabled_individual"`
	EnabledGeneral    bool `json:"enabled_general"`
	Muted             bool `json:"muted"`
}

// TrackPatchEvent изменение трека, присланное сервером.
// nil поле означает отсутствие изменения.
type TrackPatchEvent struct {
	ID                TrackID `json:"id"`
	EnabledIndividual *bool   `json:"enabled_individual,omitempty"`
	EnabledGeneral    *bool   `json:"enabled_general,omitempty"`
	Muted             *bool   `json:"muted,omitempty"`
}

// TrackPatchCommand намерение клиента изменить трек
type TrackPatchCommand struct {
	ID      TrackID `json:"id"`
	Enabled *bool   `json:"enabled,omitempty"`
	Muted   *bool   `json:"muted,omitempty"`
}

// PeerUpdate одно изменение в PeerUpdated, заполнено ровно одно поле
type PeerUpdate struct {
	Added      *Track           `json:"added,omitempty"`
	Updated    *TrackPatchEvent `json:"updated,omitempty"`
	Removed    *TrackID         `json:"removed,omitempty"`
	IceRestart bool             `json:"ice_restart,omitempty"`
}

// IceServer описание STUN/TURN сервера
type IceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// ConnectionQualityScore оценка качества соединения от 1 (плохо) до 4 (отлично)
type ConnectionQualityScore uint8

const (
	QualityPoor ConnectionQualityScore = iota + 1
	QualityMedium
	QualityHigh
	QualityExcellent
)

// Bool возвращает указатель на значение, удобно для патчей
func Bool(v bool) *bool { return &v }
