package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrSessionClosed сессия закрыта
var ErrSessionClosed = errors.New("signaling: session closed")

// WebSocketConfig конфигурация WebSocket сессии
type WebSocketConfig struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// EventBuffer размер буфера входящих событий
	EventBuffer int
	Logger      *slog.Logger
}

// DefaultWebSocketConfig возвращает конфигурацию по умолчанию
func DefaultWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		EventBuffer:      256,
	}
}

// Validate проверяет конфигурацию
func (c *WebSocketConfig) Validate() error {
	if c.URL == "" {
		return errors.New("websocket url is required")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be positive")
	}
	if c.EventBuffer < 0 {
		return errors.New("event buffer must not be negative")
	}
	return nil
}

// WebSocketSession реализация Session поверх gorilla/websocket
type WebSocketSession struct {
	cfg    *WebSocketConfig
	dialer *websocket.Dialer
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex

	events     chan Event
	connEvents chan ConnectionEvent
	done       chan struct{}
	wg         sync.WaitGroup
}

// DialWebSocket подключается к серверу сигнализации
func DialWebSocket(ctx context.Context, cfg *WebSocketConfig) (*WebSocketSession, error) {
	if cfg == nil {
		cfg = DefaultWebSocketConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid websocket config: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &WebSocketSession{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger:     logger.With(slog.String("component", "signaling"), slog.String("url", cfg.URL)),
		events:     make(chan Event, cfg.EventBuffer),
		connEvents: make(chan ConnectionEvent, 8),
		done:       make(chan struct{}),
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *WebSocketSession) connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrSessionClosed
	}
	s.conn = conn
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(conn)

	s.logger.Info("Соединение с сервером установлено")
	return nil
}

func (s *WebSocketSession) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleLost(conn, err)
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			s.logger.Warn("Не удалось декодировать событие", slog.String("error", err.Error()))
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *WebSocketSession) handleLost(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	closed := s.closed
	s.mu.Unlock()
	conn.Close()

	if closed {
		return
	}
	s.logger.Warn("Соединение с сервером потеряно", slog.String("error", err.Error()))
	s.emitConnection(ConnectionLost)
}

func (s *WebSocketSession) emitConnection(ev ConnectionEvent) {
	select {
	case s.connEvents <- ev:
	case <-s.done:
	}
}

// SendCommand отправляет команду. При отсутствии соединения команда отбрасывается.
func (s *WebSocketSession) SendCommand(cmd Command) {
	data, err := EncodeCommand(cmd)
	if err != nil {
		s.logger.Error("Не удалось закодировать команду", slog.String("command", cmd.CommandName()), slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.logger.Debug("Нет соединения, команда отброшена", slog.String("command", cmd.CommandName()))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn("Ошибка отправки команды", slog.String("command", cmd.CommandName()), slog.String("error", err.Error()))
	}
}

// Events канал событий сервера
func (s *WebSocketSession) Events() <-chan Event { return s.events }

// ConnectionEvents канал изменений состояния соединения
func (s *WebSocketSession) ConnectionEvents() <-chan ConnectionEvent { return s.connEvents }

// IsConnected true если соединение установлено
func (s *WebSocketSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Reconnect восстанавливает соединение. Ничего не делает, если оно уже есть.
func (s *WebSocketSession) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		return err
	}
	s.emitConnection(ConnectionRecovered)
	return nil
}

// Close закрывает сессию
func (s *WebSocketSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	close(s.done)
	var err error
	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = conn.Close()
	}
	s.wg.Wait()
	return err
}
