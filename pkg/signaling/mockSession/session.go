package mockSession

import (
	"context"
	"sync"

	"github.com/arzzra/webrtc_client/pkg/signaling"
)

const eventBuffer = 1024

// Session in-memory сессия сигнализации
type Session struct {
	mu           sync.Mutex
	connected    bool
	closed       bool
	delivered    []signaling.Command
	dropped      []signaling.Command
	handler      func(signaling.Command)
	reconnectErr error

	events     chan signaling.Event
	connEvents chan signaling.ConnectionEvent
}

// NewSession создает подключенную сессию
func NewSession() *Session {
	return &Session{
		connected:  true,
		events:     make(chan signaling.Event, eventBuffer),
		connEvents: make(chan signaling.ConnectionEvent, 16),
	}
}

// SetHandler устанавливает обработчик доставленных команд
func (s *Session) SetHandler(h func(signaling.Command)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SendCommand доставляет команду обработчику или отбрасывает ее без соединения
func (s *Session) SendCommand(cmd signaling.Command) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !s.connected {
		s.dropped = append(s.dropped, cmd)
		s.mu.Unlock()
		return
	}
	s.delivered = append(s.delivered, cmd)
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		h(cmd)
	}
}

// Events канал событий сервера
func (s *Session) Events() <-chan signaling.Event { return s.events }

// ConnectionEvents канал изменений соединения
func (s *Session) ConnectionEvents() <-chan signaling.ConnectionEvent { return s.connEvents }

// Emit отправляет событие клиенту
func (s *Session) Emit(ev signaling.Event) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.events <- ev
}

// DropConnection эмулирует потерю соединения
func (s *Session) DropConnection() {
	s.mu.Lock()
	if !s.connected || s.closed {
		s.mu.Unlock()
		return
	}
	s.connected = false
	s.mu.Unlock()
	s.connEvents <- signaling.ConnectionLost
}

// SetReconnectError задает ошибку, которую вернет Reconnect
func (s *Session) SetReconnectError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectErr = err
}

// Reconnect восстанавливает соединение
func (s *Session) Reconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.reconnectErr != nil {
		err := s.reconnectErr
		s.mu.Unlock()
		return err
	}
	if s.connected || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.connected = true
	s.mu.Unlock()
	s.connEvents <- signaling.ConnectionRecovered
	return nil
}

// Close закрывает сессию
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// IsConnected true если соединение есть
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Delivered возвращает копию доставленных команд
func (s *Session) Delivered() []signaling.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]signaling.Command, len(s.delivered))
	copy(out, s.delivered)
	return out
}

// Dropped возвращает копию отброшенных команд
func (s *Session) Dropped() []signaling.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]signaling.Command, len(s.dropped))
	copy(out, s.dropped)
	return out
}

// UpdateTracks возвращает доставленные команды UpdateTracks
func (s *Session) UpdateTracks() []signaling.UpdateTracks {
	var out []signaling.UpdateTracks
	for _, cmd := range s.Delivered() {
		if ut, ok := cmd.(signaling.UpdateTracks); ok {
			out = append(out, ut)
		}
	}
	return out
}
