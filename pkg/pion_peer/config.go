package pion_peer

import (
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// Config настройки фабрики peer connection
type Config struct {
	// ICEServers добавляются к серверам из PeerCreated
	ICEServers []webrtc.ICEServer
	// UDPPortMin и UDPPortMax ограничивают локальные порты ICE, 0 без ограничений
	UDPPortMin uint16
	UDPPortMax uint16

	Logger *slog.Logger
}

// DefaultConfig возвращает конфигурацию без дополнительных ICE серверов
func DefaultConfig() *Config {
	return &Config{}
}
