package signaling

import (
	"context"
	"time"
)

// ConnectionEvent изменение состояния соединения с сервером
type ConnectionEvent uint8

const (
	ConnectionLost ConnectionEvent = iota + 1
	ConnectionRecovered
)

func (e ConnectionEvent) String() string {
	switch e {
	case ConnectionLost:
		return "connection_lost"
	case ConnectionRecovered:
		return "connection_recovered"
	}
	return "unknown"
}

// Session сессия с сервером сигнализации.
//
// SendCommand работает по принципу fire-and-forget: при отсутствии
// соединения команда отбрасывается.
type Session interface {
	SendCommand(cmd Command)
	Events() <-chan Event
	ConnectionEvents() <-chan ConnectionEvent
	Reconnect(ctx context.Context) error
	Close() error
}

// ReconnectHandle передается пользователю при потере соединения
type ReconnectHandle struct {
	session Session
}

// NewReconnectHandle создает handle для сессии
func NewReconnectHandle(s Session) *ReconnectHandle {
	return &ReconnectHandle{session: s}
}

// ReconnectWithDelay переподключается после задержки
func (h *ReconnectHandle) ReconnectWithDelay(ctx context.Context, delay time.Duration) error {
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return h.session.Reconnect(ctx)
}

// ReconnectWithBackoff повторяет попытки с экспоненциальной задержкой
// от starting до maxDelay, пока не истечет ctx
func (h *ReconnectHandle) ReconnectWithBackoff(ctx context.Context, starting time.Duration, multiplier float64, maxDelay time.Duration) error {
	if multiplier < 1 {
		multiplier = 1
	}
	delay := starting
	for {
		err := h.session.Reconnect(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = time.Duration(float64(delay) * multiplier)
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
