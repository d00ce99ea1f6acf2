package media_state

import "fmt"

// MediaExchange состояние обмена медиа для трека
type MediaExchange uint8

const (
	// Disabled медиа не передается
	Disabled MediaExchange = iota
	// Enabled медиа передается
	Enabled
)

// MediaExchangeFromBool преобразует флаг enabled
func MediaExchangeFromBool(enabled bool) MediaExchange {
	if enabled {
		return Enabled
	}
	return Disabled
}

// Opposite возвращает противоположное состояние
func (m MediaExchange) Opposite() MediaExchange {
	if m == Enabled {
		return Disabled
	}
	return Enabled
}

// IsEnabled true для Enabled
func (m MediaExchange) IsEnabled() bool { return m == Enabled }

func (m MediaExchange) String() string {
	if m == Enabled {
		return "enabled"
	}
	return "disabled"
}

// Mute состояние заглушения трека
type Mute uint8

const (
	Unmuted Mute = iota
	Muted
)

// MuteFromBool преобразует флаг muted
func MuteFromBool(muted bool) Mute {
	if muted {
		return Muted
	}
	return Unmuted
}

// Opposite возвращает противоположное состояние
func (m Mute) Opposite() Mute {
	if m == Muted {
		return Unmuted
	}
	return Muted
}

// IsMuted true для Muted
func (m Mute) IsMuted() bool { return m == Muted }

func (m Mute) String() string {
	if m == Muted {
		return "muted"
	}
	return "unmuted"
}

// StateKind вид медиа состояния
type StateKind uint8

const (
	KindMediaExchange StateKind = iota
	KindMute
)

func (k StateKind) String() string {
	if k == KindMute {
		return "mute"
	}
	return "media_exchange"
}

// MediaState одно из стабильных состояний: MediaExchange или Mute.
// Нулевое значение соответствует MediaExchange(Disabled).
type MediaState struct {
	kind     StateKind
	exchange MediaExchange
	mute     Mute
}

// NewMediaExchange создает MediaState вида MediaExchange
func NewMediaExchange(v MediaExchange) MediaState {
	return MediaState{kind: KindMediaExchange, exchange: v}
}

// NewMute создает MediaState вида Mute
func NewMute(v Mute) MediaState {
	return MediaState{kind: KindMute, mute: v}
}

// Kind возвращает вид состояния
func (s MediaState) Kind() StateKind { return s.kind }

// MediaExchange возвращает значение, если состояние этого вида
func (s MediaState) MediaExchange() (MediaExchange, bool) {
	return s.exchange, s.kind == KindMediaExchange
}

// Mute возвращает значение, если состояние этого вида
func (s MediaState) Mute() (Mute, bool) {
	return s.mute, s.kind == KindMute
}

// Opposite возвращает противоположное состояние того же вида
func (s MediaState) Opposite() MediaState {
	if s.kind == KindMute {
		return NewMute(s.mute.Opposite())
	}
	return NewMediaExchange(s.exchange.Opposite())
}

// IsEnabling true для Enabled и Unmuted
func (s MediaState) IsEnabling() bool {
	if s.kind == KindMute {
		return s.mute == Unmuted
	}
	return s.exchange == Enabled
}

// IsDisabling true для Disabled и Muted
func (s MediaState) IsDisabling() bool {
	return !s.IsEnabling()
}

func (s MediaState) String() string {
	if s.kind == KindMute {
		return fmt.Sprintf("mute(%s)", s.mute)
	}
	return fmt.Sprintf("media_exchange(%s)", s.exchange)
}
