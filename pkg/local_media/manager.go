package local_media

import (
	"context"
	"log/slog"
	"sync"
)

// Acquirer получает треки у платформы (getUserMedia / getDisplayMedia)
type Acquirer interface {
	Acquire(ctx context.Context, req TrackRequest) ([]PlatformTrack, error)
}

// AcquiredTrack трек, выданный менеджером. IsNew true для только что полученного трека.
type AcquiredTrack struct {
	Track *Track
	IsNew bool
}

// Manager выдает локальные треки, переиспользуя живые
type Manager struct {
	acquirer Acquirer
	logger   *slog.Logger

	// mu защищает кэш и счетчики ссылок всех выданных треков
	mu     sync.Mutex
	tracks map[string]*Track
}

// NewManager создает менеджер
func NewManager(acquirer Acquirer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		acquirer: acquirer,
		logger:   logger.With(slog.String("component", "local_media")),
		tracks:   make(map[string]*Track),
	}
}

// GetTracks возвращает по одному треку на запрос. Каждый трек выдается
// с одной ссылкой, которую вызывающий должен отпустить.
func (m *Manager) GetTracks(ctx context.Context, requests []TrackRequest) ([]AcquiredTrack, error) {
	out := make([]AcquiredTrack, 0, len(requests))
	fail := func(err error) ([]AcquiredTrack, error) {
		for _, a := range out {
			a.Track.Release()
		}
		return nil, err
	}

	for _, req := range requests {
		if t := m.retainCached(req); t != nil {
			out = append(out, AcquiredTrack{Track: t})
			continue
		}

		platform, err := m.acquirer.Acquire(ctx, req)
		if err != nil {
			m.logger.Warn("Не удалось получить локальное медиа",
				slog.String("kind", req.Kind.String()),
				slog.String("source", req.Source.String()),
				slog.String("error", err.Error()))
			return fail(newAcquireError(req, err))
		}

		for i, p := range platform {
			if p.Ended() {
				for _, rest := range platform {
					rest.Stop()
				}
				return fail(&MediaError{
					Code:    CodeLocalTrackIsEnded,
					Message: "local track is ended",
					Kind:    p.Kind(),
					Source:  p.SourceKind(),
				})
			}
			t := m.adopt(p)
			if i == 0 {
				out = append(out, AcquiredTrack{Track: t, IsNew: true})
				continue
			}
			// лишние треки платформы не нужны
			t.Release()
		}
	}
	return out, nil
}

func (m *Manager) retainCached(req TrackRequest) *Track {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.tracks {
		if t.platform.Ended() {
			delete(m.tracks, id)
			continue
		}
		if req.Satisfies(t.platform) && t.refs > 0 {
			t.refs++
			return t
		}
	}
	return nil
}

func (m *Manager) adopt(p PlatformTrack) *Track {
	t := &Track{platform: p, mu: &m.mu, refs: 1}
	t.onDrop = func(dropped *Track) {
		if m.tracks[dropped.ID()] == dropped {
			delete(m.tracks, dropped.ID())
		}
	}

	m.mu.Lock()
	m.tracks[p.ID()] = t
	m.mu.Unlock()

	m.logger.Debug("Получен новый локальный трек",
		slog.String("track_id", p.ID()),
		slog.String("kind", p.Kind().String()),
		slog.String("source", p.SourceKind().String()))
	return t
}

// LiveTracks количество живых треков в кэше
func (m *Manager) LiveTracks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks)
}

// Dispose останавливает все треки
func (m *Manager) Dispose() {
	m.mu.Lock()
	tracks := m.tracks
	m.tracks = make(map[string]*Track)
	m.mu.Unlock()

	for _, t := range tracks {
		t.platform.Stop()
	}
}
