package local_media

import (
	"sync"

	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// LocalTracksConstraints разделяемые между комнатой и peers настройки
// исходящего медиа
type LocalTracksConstraints struct {
	mu       sync.RWMutex
	settings MediaStreamSettings
}

// NewLocalTracksConstraints создает обертку с начальными настройками
func NewLocalTracksConstraints(s MediaStreamSettings) *LocalTracksConstraints {
	return &LocalTracksConstraints{settings: s}
}

// Inner возвращает копию настроек
func (c *LocalTracksConstraints) Inner() MediaStreamSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// SetInner полностью заменяет настройки
func (c *LocalTracksConstraints) SetInner(s MediaStreamSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
}

// Constrain применяет новые ограничения и возвращает предыдущие настройки
func (c *LocalTracksConstraints) Constrain(other MediaStreamSettings) MediaStreamSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.settings
	c.settings.Constrain(other)
	return prev
}

// IsTrackEnabled true если источник включен и запрошен
func (c *LocalTracksConstraints) IsTrackEnabled(kind signaling.MediaKind, source signaling.MediaSourceKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.IsTrackEnabled(kind, source)
}

// IsTrackMuted true если источник заглушен
func (c *LocalTracksConstraints) IsTrackMuted(kind signaling.MediaKind, source signaling.MediaSourceKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.IsTrackMuted(kind, source)
}

// Request возвращает запрос трека для источника, если он включен
func (c *LocalTracksConstraints) Request(kind signaling.MediaKind, source signaling.MediaSourceKind) (TrackRequest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Request(kind, source)
}

// SetMediaState сохраняет намерение пользователя
func (c *LocalTracksConstraints) SetMediaState(state media_state.MediaState, kind signaling.MediaKind, source *signaling.MediaSourceKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := state.MediaExchange(); ok {
		c.settings.SetTrackEnabled(v.IsEnabled(), kind, source)
		return
	}
	if v, ok := state.Mute(); ok {
		c.settings.SetTrackMuted(v.IsMuted(), kind, source)
	}
}

// SetMediaExchangeStateByKinds включает или выключает все источники набора
func (c *LocalTracksConstraints) SetMediaExchangeStateByKinds(state media_state.MediaExchange, kinds Criteria) {
	c.mu.Lock()
	defer c.mu.Unlock()
	enabled := state.IsEnabled()
	if kinds&CriteriaAudio != 0 {
		c.settings.Audio.Enabled = enabled
	}
	if kinds&CriteriaDeviceVideo != 0 {
		c.settings.DeviceVideo.Enabled = enabled
	}
	if kinds&CriteriaDisplayVideo != 0 {
		c.settings.DisplayVideo.Enabled = enabled
	}
}

// RecvConstraints настройки приема медиа
type RecvConstraints struct {
	mu           sync.RWMutex
	audio        bool
	deviceVideo  bool
	displayVideo bool
}

// NewRecvConstraints создает настройки, где прием всех источников включен
func NewRecvConstraints() *RecvConstraints {
	return &RecvConstraints{audio: true, deviceVideo: true, displayVideo: true}
}

// SetEnabled включает или выключает прием. nil source означает все источники.
func (c *RecvConstraints) SetEnabled(enabled bool, kind signaling.MediaKind, source *signaling.MediaSourceKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	crit := CriteriaFor(kind, source)
	if crit&CriteriaAudio != 0 {
		c.audio = enabled
	}
	if crit&CriteriaDeviceVideo != 0 {
		c.deviceVideo = enabled
	}
	if crit&CriteriaDisplayVideo != 0 {
		c.displayVideo = enabled
	}
}

// IsEnabled true если прием источника включен
func (c *RecvConstraints) IsEnabled(kind signaling.MediaKind, source signaling.MediaSourceKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if kind == signaling.MediaKindAudio {
		return c.audio
	}
	if source == signaling.SourceDisplay {
		return c.displayVideo
	}
	return c.deviceVideo
}
