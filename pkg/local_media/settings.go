package local_media

import (
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// FacingMode направление камеры
type FacingMode string

const (
	FacingModeAny         FacingMode = ""
	FacingModeUser        FacingMode = "user"
	FacingModeEnvironment FacingMode = "environment"
)

// TrackConstraints ограничения захвата одного источника
type TrackConstraints struct {
	DeviceID   string
	FacingMode FacingMode
}

// TrackSettings настройки одного источника.
//
// Enabled и Muted управляются комнатой (enable/disable, mute/unmute),
// Constrained и Constraints задаются пользователем через SetLocalMediaSettings.
// Источник публикуется, только если он и включен, и запрошен.
type TrackSettings struct {
	Enabled     bool
	Muted       bool
	Constrained bool
	Constraints TrackConstraints
}

// IsEnabled эффективное состояние публикации
func (t TrackSettings) IsEnabled() bool {
	return t.Enabled && t.Constrained
}

func (t *TrackSettings) constrain(other TrackSettings) {
	t.Constrained = other.Constrained
	t.Constraints = other.Constraints
}

// MediaStreamSettings настройки локального медиа для всех источников
type MediaStreamSettings struct {
	Audio        TrackSettings
	DeviceVideo  TrackSettings
	DisplayVideo TrackSettings
}

// NewMediaStreamSettings создает настройки, где все источники включены,
// но ни один не запрошен
func NewMediaStreamSettings() MediaStreamSettings {
	return MediaStreamSettings{
		Audio:        TrackSettings{Enabled: true},
		DeviceVideo:  TrackSettings{Enabled: true},
		DisplayVideo: TrackSettings{Enabled: true},
	}
}

// SetAudio запрашивает микрофон
func (s *MediaStreamSettings) SetAudio(c TrackConstraints) {
	s.Audio.Constrained = true
	s.Audio.Constraints = c
}

// SetDeviceVideo запрашивает камеру
func (s *MediaStreamSettings) SetDeviceVideo(c TrackConstraints) {
	s.DeviceVideo.Constrained = true
	s.DeviceVideo.Constraints = c
}

// SetDisplayVideo запрашивает захват экрана
func (s *MediaStreamSettings) SetDisplayVideo(c TrackConstraints) {
	s.DisplayVideo.Constrained = true
	s.DisplayVideo.Constraints = c
}

// Track возвращает настройки источника. Аудио не различает источники.
func (s *MediaStreamSettings) Track(kind signaling.MediaKind, source signaling.MediaSourceKind) *TrackSettings {
	if kind == signaling.MediaKindAudio {
		return &s.Audio
	}
	if source == signaling.SourceDisplay {
		return &s.DisplayVideo
	}
	return &s.DeviceVideo
}

// tracks возвращает настройки, попадающие под фильтр. nil source означает все источники.
func (s *MediaStreamSettings) tracks(kind signaling.MediaKind, source *signaling.MediaSourceKind) []*TrackSettings {
	if kind == signaling.MediaKindAudio {
		return []*TrackSettings{&s.Audio}
	}
	if source == nil {
		return []*TrackSettings{&s.DeviceVideo, &s.DisplayVideo}
	}
	return []*TrackSettings{s.Track(kind, *source)}
}

// IsTrackEnabled true если источник включен и запрошен
func (s MediaStreamSettings) IsTrackEnabled(kind signaling.MediaKind, source signaling.MediaSourceKind) bool {
	return s.Track(kind, source).IsEnabled()
}

// IsTrackMuted true если источник заглушен
func (s MediaStreamSettings) IsTrackMuted(kind signaling.MediaKind, source signaling.MediaSourceKind) bool {
	return s.Track(kind, source).Muted
}

// SetTrackEnabled включает или выключает публикацию
func (s *MediaStreamSettings) SetTrackEnabled(enabled bool, kind signaling.MediaKind, source *signaling.MediaSourceKind) {
	for _, t := range s.tracks(kind, source) {
		t.Enabled = enabled
	}
}

// SetTrackMuted заглушает или включает звук/изображение
func (s *MediaStreamSettings) SetTrackMuted(muted bool, kind signaling.MediaKind, source *signaling.MediaSourceKind) {
	for _, t := range s.tracks(kind, source) {
		t.Muted = muted
	}
}

// Constrain заменяет ограничения захвата, сохраняя флаги публикации и заглушения
func (s *MediaStreamSettings) Constrain(other MediaStreamSettings) {
	s.Audio.constrain(other.Audio)
	s.DeviceVideo.constrain(other.DeviceVideo)
	s.DisplayVideo.constrain(other.DisplayVideo)
}

// KindsDiff возвращает источники, чьи ограничения или эффективное состояние
// отличаются от other
func (s MediaStreamSettings) KindsDiff(other MediaStreamSettings) Criteria {
	var diff Criteria
	differs := func(a, b TrackSettings) bool {
		return a.IsEnabled() != b.IsEnabled() || a.Constraints != b.Constraints
	}
	if differs(s.Audio, other.Audio) {
		diff |= CriteriaAudio
	}
	if differs(s.DeviceVideo, other.DeviceVideo) {
		diff |= CriteriaDeviceVideo
	}
	if differs(s.DisplayVideo, other.DisplayVideo) {
		diff |= CriteriaDisplayVideo
	}
	return diff
}

// Request возвращает запрос трека для источника, если он включен
func (s MediaStreamSettings) Request(kind signaling.MediaKind, source signaling.MediaSourceKind) (TrackRequest, bool) {
	t := s.Track(kind, source)
	if !t.IsEnabled() {
		return TrackRequest{}, false
	}
	if kind == signaling.MediaKindAudio {
		source = signaling.SourceDevice
	}
	return TrackRequest{Kind: kind, Source: source, Constraints: t.Constraints}, true
}

// Criteria набор источников локального медиа
type Criteria uint8

const (
	CriteriaAudio Criteria = 1 << iota
	CriteriaDeviceVideo
	CriteriaDisplayVideo

	CriteriaNone Criteria = 0
	CriteriaAll           = CriteriaAudio | CriteriaDeviceVideo | CriteriaDisplayVideo
)

// CriteriaFor возвращает критерий для типа и источника. nil source означает все источники.
func CriteriaFor(kind signaling.MediaKind, source *signaling.MediaSourceKind) Criteria {
	if kind == signaling.MediaKindAudio {
		return CriteriaAudio
	}
	if source == nil {
		return CriteriaDeviceVideo | CriteriaDisplayVideo
	}
	if *source == signaling.SourceDisplay {
		return CriteriaDisplayVideo
	}
	return CriteriaDeviceVideo
}

// Has проверяет, входит ли источник в набор
func (c Criteria) Has(kind signaling.MediaKind, source signaling.MediaSourceKind) bool {
	return c&CriteriaFor(kind, &source) != 0
}

// IsEmpty true для пустого набора
func (c Criteria) IsEmpty() bool { return c == CriteriaNone }

func (c Criteria) String() string {
	if c == CriteriaNone {
		return "none"
	}
	var out string
	add := func(name string) {
		if out != "" {
			out += "|"
		}
		out += name
	}
	if c&CriteriaAudio != 0 {
		add("audio")
	}
	if c&CriteriaDeviceVideo != 0 {
		add("device_video")
	}
	if c&CriteriaDisplayVideo != 0 {
		add("display_video")
	}
	return out
}
