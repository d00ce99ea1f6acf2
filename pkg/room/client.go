package room

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// ErrClientDisposed клиент уже освобожден
var ErrClientDisposed = errors.New("room: client is disposed")

// Client владеет комнатами и общим менеджером локального медиа
type Client struct {
	cfg     *Config
	media   *local_media.Manager
	metrics *Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	rooms    map[string]*Room
	disposed bool
}

// NewClient создает клиент
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := *cfg
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Client{
		cfg:     &c,
		media:   local_media.NewManager(c.Acquirer, c.Logger),
		metrics: NewMetrics(c.MetricsRegisterer),
		logger:  c.Logger.With(slog.String("component", "client")),
		rooms:   make(map[string]*Room),
	}, nil
}

// InitRoom создает комнату поверх сессии и начинает обработку событий
func (c *Client) InitRoom(session signaling.Session) (*RoomHandle, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, ErrClientDisposed
	}
	id := uuid.NewString()
	r := newRoom(id, session, c.cfg, c.media, c.metrics)
	c.rooms[id] = r
	c.mu.Unlock()

	r.start()
	c.logger.Info("Комната создана", slog.String("room_id", id))
	return &RoomHandle{id: id, client: c}, nil
}

func (c *Client) room(id string) (*Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[id]
	return r, ok
}

// CloseRoom закрывает комнату. Повторный вызов ничего не делает.
func (c *Client) CloseRoom(h *RoomHandle) {
	c.mu.Lock()
	r, ok := c.rooms[h.id]
	delete(c.rooms, h.id)
	c.mu.Unlock()

	if ok {
		r.close(CloseReason{Reason: "RoomClosed"})
	}
}

// Dispose закрывает все комнаты и останавливает локальные треки
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	rooms := c.rooms
	c.rooms = make(map[string]*Room)
	c.mu.Unlock()

	for _, r := range rooms {
		r.close(CloseReason{Reason: "ClientDisposed"})
	}
	c.media.Dispose()
	c.logger.Info("Клиент освобожден", slog.Int("rooms", len(rooms)))
}
