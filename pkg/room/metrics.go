package room

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

const metricsNamespace = "room"

// Metrics метрики комнат клиента
type Metrics struct {
	mediaStateChanges  *prometheus.CounterVec
	settingsUpdates    *prometheus.CounterVec
	transitionTimeouts prometheus.Counter
	connectionLosses   prometheus.Counter
	peers              prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg. nil reg означает отдельный реестр.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		mediaStateChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "media_state_changes_total",
			Help:      "Media state change requests by kind, direction, target state and result",
		}, []string{"kind", "direction", "state", "result"}),

		settingsUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "settings_updates_total",
			Help:      "Local media settings updates by outcome",
		}, []string{"outcome"}),

		transitionTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transition_timeouts_total",
			Help:      "Media state transitions reverted because the server did not confirm them",
		}),

		connectionLosses: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connection_losses_total",
			Help:      "Signaling connection losses",
		}),

		peers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "peers",
			Help:      "Number of active peer connections",
		}),
	}
}

func (m *Metrics) mediaStateChanged(state media_state.MediaState, kind signaling.MediaKind, direction signaling.TrackDirection, err error) {
	result := "ok"
	if err != nil {
		result = string(toChangeMediaStateError(err).Kind)
	}
	m.mediaStateChanges.WithLabelValues(kind.String(), direction.String(), state.String(), result).Inc()
}

func (m *Metrics) settingsUpdated(err *ConstraintsUpdateError) {
	outcome := "ok"
	if err != nil {
		outcome = err.Outcome().String()
	}
	m.settingsUpdates.WithLabelValues(outcome).Inc()
}
