package local_media

import (
	"sync"

	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// PlatformTrack трек, полученный от платформы: микрофон, камера или экран
type PlatformTrack interface {
	ID() string
	Kind() signaling.MediaKind
	SourceKind() signaling.MediaSourceKind
	DeviceID() string
	SetEnabled(enabled bool)
	Enabled() bool
	Ended() bool
	Stop()
}

// TrackRequest запрос трека у платформы
type TrackRequest struct {
	Kind        signaling.MediaKind
	Source      signaling.MediaSourceKind
	Constraints TrackConstraints
}

// Satisfies проверяет, подходит ли трек под запрос
func (r TrackRequest) Satisfies(t PlatformTrack) bool {
	if t.Kind() != r.Kind || t.Ended() {
		return false
	}
	if r.Kind == signaling.MediaKindVideo && t.SourceKind() != r.Source {
		return false
	}
	return r.Constraints.DeviceID == "" || r.Constraints.DeviceID == t.DeviceID()
}

// Criteria возвращает критерий источника запроса
func (r TrackRequest) Criteria() Criteria {
	return CriteriaFor(r.Kind, &r.Source)
}

// Track локальный трек с подсчетом ссылок.
// Платформенный трек останавливается, когда отпущена последняя ссылка.
type Track struct {
	platform PlatformTrack

	mu     *sync.Mutex
	refs   int
	onDrop func(*Track)
}

// NewTrack оборачивает платформенный трек с одной ссылкой
func NewTrack(p PlatformTrack) *Track {
	return &Track{platform: p, mu: &sync.Mutex{}, refs: 1}
}

func (t *Track) ID() string                            { return t.platform.ID() }
func (t *Track) Kind() signaling.MediaKind             { return t.platform.Kind() }
func (t *Track) SourceKind() signaling.MediaSourceKind { return t.platform.SourceKind() }
func (t *Track) DeviceID() string                      { return t.platform.DeviceID() }
func (t *Track) Ended() bool                           { return t.platform.Ended() }
func (t *Track) SetEnabled(enabled bool)               { t.platform.SetEnabled(enabled) }

// Platform возвращает платформенный трек
func (t *Track) Platform() PlatformTrack { return t.platform }

// Retain добавляет ссылку
func (t *Track) Retain() *Track {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs++
	return t
}

// Release отпускает ссылку
func (t *Track) Release() {
	t.mu.Lock()
	if t.refs == 0 {
		t.mu.Unlock()
		return
	}
	t.refs--
	last := t.refs == 0
	if last && t.onDrop != nil {
		t.onDrop(t)
	}
	t.mu.Unlock()

	if last {
		t.platform.Stop()
	}
}

// Refs количество ссылок
func (t *Track) Refs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refs
}
