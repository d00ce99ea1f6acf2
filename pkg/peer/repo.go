package peer

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// RepositoryParams общие зависимости всех peers комнаты
type RepositoryParams struct {
	ConnectionFactory ConnectionFactory
	SendConstraints   *local_media.LocalTracksConstraints
	RecvConstraints   *local_media.RecvConstraints
	Media             *local_media.Manager
	Commands          CommandSender
	Timeout           time.Duration
	Logger            *slog.Logger
	Events            Events
}

// Repository хранилище peers комнаты
type Repository struct {
	params RepositoryParams
	logger *slog.Logger

	mu    sync.RWMutex
	peers map[signaling.PeerID]*PeerState
}

// NewRepository создает пустое хранилище
func NewRepository(params RepositoryParams) *Repository {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		params: params,
		logger: logger,
		peers:  make(map[signaling.PeerID]*PeerState),
	}
}

// Create создает peer по событию PeerCreated вместе со всеми треками.
// Ошибка одного трека не отменяет создание остальных.
func (r *Repository) Create(ev signaling.PeerCreated) (*PeerState, error) {
	conn, err := r.params.ConnectionFactory(ev.PeerID, ev.IceServers, ev.ForceRelay)
	if err != nil {
		return nil, fmt.Errorf("create connection for peer %d: %w", ev.PeerID, err)
	}

	p := NewPeerState(Params{
		ID:              ev.PeerID,
		Connection:      conn,
		IceServers:      ev.IceServers,
		ForceRelay:      ev.ForceRelay,
		SendConstraints: r.params.SendConstraints,
		RecvConstraints: r.params.RecvConstraints,
		Media:           r.params.Media,
		Commands:        r.params.Commands,
		Timeout:         r.params.Timeout,
		Logger:          r.logger,
		Events:          r.params.Events,
	})

	r.mu.Lock()
	old := r.peers[ev.PeerID]
	r.peers[ev.PeerID] = p
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}

	var firstErr error
	for _, t := range ev.Tracks {
		if err := p.InsertTrack(t); err != nil {
			r.logger.Error("Не удалось создать трек",
				slog.Uint64("peer_id", uint64(ev.PeerID)),
				slog.Uint64("track_id", uint64(t.ID)),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return p, firstErr
}

// Get возвращает peer по ID
func (r *Repository) Get(id signaling.PeerID) (*PeerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// GetAll возвращает все peers, отсортированные по ID
func (r *Repository) GetAll() []*PeerState {
	r.mu.RLock()
	out := make([]*PeerState, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len количество peers
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Remove закрывает и удаляет peer
func (r *Repository) Remove(id signaling.PeerID) {
	r.mu.Lock()
	p, ok := r.peers[id]
	delete(r.peers, id)
	r.mu.Unlock()

	if ok {
		if err := p.Close(); err != nil {
			r.logger.Warn("Ошибка закрытия peer", slog.Uint64("peer_id", uint64(id)), slog.String("error", err.Error()))
		}
	}
}

// ConnectionLost уведомляет все peers о потере соединения
func (r *Repository) ConnectionLost() {
	for _, p := range r.GetAll() {
		p.ConnectionLost()
	}
}

// ConnectionRecovered уведомляет все peers о восстановлении соединения
func (r *Repository) ConnectionRecovered() {
	for _, p := range r.GetAll() {
		p.ConnectionRecovered()
	}
}

// Apply применяет авторитетное состояние комнаты
func (r *Repository) Apply(state signaling.RoomState) {
	for _, p := range r.GetAll() {
		if _, ok := state.Peers[p.id]; !ok {
			r.Remove(p.id)
		}
	}

	ids := make([]signaling.PeerID, 0, len(state.Peers))
	for id := range state.Peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		ps := state.Peers[id]
		if p, ok := r.Get(id); ok {
			p.Apply(ps)
			continue
		}
		// peer, о котором клиент не знал, создается из снимка
		ev := signaling.PeerCreated{PeerID: id, IceServers: ps.IceServers, ForceRelay: ps.ForceRelay}
		for _, s := range ps.Senders {
			ev.Tracks = append(ev.Tracks, signaling.TrackFromSender(s))
		}
		for _, rs := range ps.Receivers {
			ev.Tracks = append(ev.Tracks, signaling.TrackFromReceiver(rs))
		}
		sort.Slice(ev.Tracks, func(i, j int) bool { return ev.Tracks[i].ID < ev.Tracks[j].ID })
		if _, err := r.Create(ev); err != nil {
			r.logger.Error("Не удалось создать peer из снимка", slog.Uint64("peer_id", uint64(id)), slog.String("error", err.Error()))
		}
	}
}

// AsProto возвращает снимок комнаты для SynchronizeMe
func (r *Repository) AsProto() signaling.RoomState {
	state := signaling.NewRoomState()
	for _, p := range r.GetAll() {
		state.Peers[p.id] = p.AsProto()
	}
	return state
}

// Close закрывает все peers
func (r *Repository) Close() {
	r.mu.Lock()
	peers := r.peers
	r.peers = make(map[signaling.PeerID]*PeerState)
	r.mu.Unlock()

	for id, p := range peers {
		if err := p.Close(); err != nil {
			r.logger.Warn("Ошибка закрытия peer", slog.Uint64("peer_id", uint64(id)), slog.String("error", err.Error()))
		}
	}
}
