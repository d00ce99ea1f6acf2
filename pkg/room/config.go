package room

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/peer"
)

// Config конфигурация клиента и его комнат
type Config struct {
	// TransitionTimeout время ожидания подтверждения перехода от сервера
	TransitionTimeout time.Duration

	// ConnectionFactory создает peer connection для каждого PeerCreated
	ConnectionFactory peer.ConnectionFactory

	// Acquirer получает локальные треки у платформы
	Acquirer local_media.Acquirer

	// Settings начальные настройки локального медиа новой комнаты.
	// nil означает микрофон и камеру без ограничений.
	Settings *local_media.MediaStreamSettings

	Logger *slog.Logger

	// MetricsRegisterer регистратор метрик. nil означает отдельный реестр.
	MetricsRegisterer prometheus.Registerer
}

// DefaultConfig возвращает конфигурацию по умолчанию.
// ConnectionFactory и Acquirer нужно задать перед использованием.
func DefaultConfig() *Config {
	return &Config{
		TransitionTimeout: media_state.DefaultTransitionTimeout,
		Logger:            slog.Default(),
	}
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if c.TransitionTimeout <= 0 {
		return fmt.Errorf("invalid transition timeout: %v", c.TransitionTimeout)
	}
	if c.ConnectionFactory == nil {
		return errors.New("connection factory is required")
	}
	if c.Acquirer == nil {
		return errors.New("local media acquirer is required")
	}
	return nil
}

func (c *Config) initialSettings() local_media.MediaStreamSettings {
	if c.Settings != nil {
		return *c.Settings
	}
	s := local_media.NewMediaStreamSettings()
	s.SetAudio(local_media.TrackConstraints{})
	s.SetDeviceVideo(local_media.TrackConstraints{})
	return s
}
