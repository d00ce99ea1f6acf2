package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/peer"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// CloseReason причина закрытия комнаты
type CloseReason struct {
	Reason           string
	IsClosedByServer bool
	IsErr            bool
}

type callbacks struct {
	onLocalTrack        func(*local_media.Track)
	onFailedLocalMedia  func(error)
	onConnectionLoss    func(*signaling.ReconnectHandle)
	onClose             func(CloseReason)
	onConnectionQuality func(signaling.MemberID, signaling.ConnectionQualityScore)
}

// Room комната звонка.
//
// События сервера обрабатываются последовательно в одной горутине.
// Колбэки вызываются из нее же и не должны блокироваться надолго или
// закрывать комнату синхронно.
type Room struct {
	id              string
	session         signaling.Session
	sendConstraints *local_media.LocalTracksConstraints
	recvConstraints *local_media.RecvConstraints
	media           *local_media.Manager
	peers           *peer.Repository
	metrics         *Metrics
	logger          *slog.Logger

	cbMu sync.RWMutex
	cb   callbacks

	qualityMu sync.Mutex
	quality   map[signaling.MemberID]signaling.ConnectionQualityScore

	peerCount atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func newRoom(id string, session signaling.Session, cfg *Config, media *local_media.Manager, metrics *Metrics) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		id:              id,
		session:         session,
		sendConstraints: local_media.NewLocalTracksConstraints(cfg.initialSettings()),
		recvConstraints: local_media.NewRecvConstraints(),
		media:           media,
		metrics:         metrics,
		logger:          cfg.Logger.With(slog.String("component", "room"), slog.String("room_id", id)),
		quality:         make(map[signaling.MemberID]signaling.ConnectionQualityScore),
		ctx:             ctx,
		cancel:          cancel,
	}
	r.peers = peer.NewRepository(peer.RepositoryParams{
		ConnectionFactory: cfg.ConnectionFactory,
		SendConstraints:   r.sendConstraints,
		RecvConstraints:   r.recvConstraints,
		Media:             media,
		Commands:          session,
		Timeout:           cfg.TransitionTimeout,
		Logger:            r.logger,
		Events: peer.Events{
			OnNewLocalTrack:     r.emitLocalTrack,
			OnFailedLocalMedia:  r.emitFailedLocalMedia,
			OnTransitionTimeout: r.onTransitionTimeout,
		},
	})
	return r
}

// ID идентификатор комнаты
func (r *Room) ID() string { return r.id }

func (r *Room) start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Room) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-r.session.Events():
			if !ok {
				return
			}
			if err := r.handleEvent(ev); err != nil {
				r.logger.Error("Ошибка обработки события",
					slog.String("event", ev.EventName()),
					slog.String("error", err.Error()))
			}
		case ce, ok := <-r.session.ConnectionEvents():
			if !ok {
				return
			}
			r.handleConnectionEvent(ce)
		}
	}
}

func (r *Room) handleEvent(ev signaling.Event) error {
	switch e := ev.(type) {
	case signaling.PeerCreated:
		return r.onPeerCreated(e)
	case signaling.PeerUpdated:
		return r.onPeerUpdated(e)
	case signaling.PeersRemoved:
		r.onPeersRemoved(e)
	case signaling.ConnectionQualityUpdated:
		r.onConnectionQualityUpdated(e)
	case signaling.StateSynchronized:
		r.onStateSynchronized(e)
	default:
		return fmt.Errorf("unsupported event %q", ev.EventName())
	}
	return nil
}

func (r *Room) onPeerCreated(ev signaling.PeerCreated) error {
	p, err := r.peers.Create(ev)
	r.syncPeersGauge()
	if p == nil {
		return err
	}
	r.logger.Info("Создан peer",
		slog.Uint64("peer_id", uint64(ev.PeerID)),
		slog.Int("tracks", len(ev.Tracks)))

	r.updateLocalStream(p, local_media.CriteriaAll)
	return err
}

func (r *Room) onPeerUpdated(ev signaling.PeerUpdated) error {
	p, ok := r.peers.Get(ev.PeerID)
	if !ok {
		return fmt.Errorf("%w: %d", peer.ErrUnknownPeer, ev.PeerID)
	}

	var (
		added    local_media.Criteria
		firstErr error
	)
	for _, u := range ev.Updates {
		switch {
		case u.Added != nil:
			if err := p.InsertTrack(*u.Added); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if u.Added.Direction == signaling.DirectionSend {
				source := u.Added.MediaType.Source
				added |= local_media.CriteriaFor(u.Added.MediaType.Kind, &source)
			}
		case u.Updated != nil:
			p.PatchTrack(*u.Updated)
		case u.Removed != nil:
			p.RemoveTrack(*u.Removed)
		case u.IceRestart:
			p.RestartIce()
		}
	}

	if !added.IsEmpty() {
		r.updateLocalStream(p, added)
	}
	return firstErr
}

// updateLocalStream получает треки для новых отправителей, ошибки уходят в OnFailedLocalMedia
func (r *Room) updateLocalStream(p *peer.PeerState, criteria local_media.Criteria) {
	if _, err := p.UpdateLocalStream(r.ctx, criteria); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Warn("Не удалось обновить локальный поток",
			slog.Uint64("peer_id", uint64(p.ID())),
			slog.String("criteria", criteria.String()),
			slog.String("error", err.Error()))
		r.emitFailedLocalMedia(err)
	}
}

func (r *Room) onPeersRemoved(ev signaling.PeersRemoved) {
	for _, id := range ev.PeerIDs {
		r.peers.Remove(id)
	}
	r.syncPeersGauge()
}

func (r *Room) onConnectionQualityUpdated(ev signaling.ConnectionQualityUpdated) {
	r.qualityMu.Lock()
	r.quality[ev.PartnerMemberID] = ev.QualityScore
	r.qualityMu.Unlock()

	if cb := r.callbacks().onConnectionQuality; cb != nil {
		cb(ev.PartnerMemberID, ev.QualityScore)
	}
}

func (r *Room) onStateSynchronized(ev signaling.StateSynchronized) {
	r.peers.Apply(ev.State)
	r.syncPeersGauge()
	r.logger.Info("Состояние синхронизировано с сервером", slog.Int("peers", r.peers.Len()))
}

func (r *Room) handleConnectionEvent(ev signaling.ConnectionEvent) {
	switch ev {
	case signaling.ConnectionLost:
		r.logger.Info("Соединение с сервером потеряно")
		r.metrics.connectionLosses.Inc()
		r.peers.ConnectionLost()
		if cb := r.callbacks().onConnectionLoss; cb != nil {
			cb(signaling.NewReconnectHandle(r.session))
		}
	case signaling.ConnectionRecovered:
		r.logger.Info("Соединение с сервером восстановлено")
		r.peers.ConnectionRecovered()
		r.session.SendCommand(signaling.SynchronizeMe{State: r.peers.AsProto()})
	}
}

func (r *Room) syncPeersGauge() {
	n := int64(r.peers.Len())
	old := r.peerCount.Swap(n)
	r.metrics.peers.Add(float64(n - old))
}

func (r *Room) onTransitionTimeout(track signaling.TrackID, state media_state.MediaState) {
	r.metrics.transitionTimeouts.Inc()
	r.logger.Warn("Переход трека отменен по таймауту",
		slog.Uint64("track_id", uint64(track)),
		slog.String("state", state.String()))
}

func (r *Room) callbacks() callbacks {
	r.cbMu.RLock()
	defer r.cbMu.RUnlock()
	return r.cb
}

func (r *Room) emitLocalTrack(t *local_media.Track) {
	if cb := r.callbacks().onLocalTrack; cb != nil {
		cb(t)
	}
}

func (r *Room) emitFailedLocalMedia(err error) {
	if cb := r.callbacks().onFailedLocalMedia; cb != nil {
		cb(err)
	}
}

// OnLocalTrack вызывается для каждого нового локального трека
func (r *Room) OnLocalTrack(fn func(*local_media.Track)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.cb.onLocalTrack = fn
}

// OnFailedLocalMedia вызывается при ошибке получения или вставки локального медиа
func (r *Room) OnFailedLocalMedia(fn func(error)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.cb.onFailedLocalMedia = fn
}

// OnConnectionLoss вызывается при потере соединения с сервером
func (r *Room) OnConnectionLoss(fn func(*signaling.ReconnectHandle)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.cb.onConnectionLoss = fn
}

// OnClose вызывается один раз при закрытии комнаты
func (r *Room) OnClose(fn func(CloseReason)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.cb.onClose = fn
}

// OnConnectionQualityUpdated вызывается при изменении качества соединения с участником
func (r *Room) OnConnectionQualityUpdated(fn func(signaling.MemberID, signaling.ConnectionQualityScore)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.cb.onConnectionQuality = fn
}

// ConnectionQuality последняя известная оценка соединения с участником
func (r *Room) ConnectionQuality(member signaling.MemberID) (signaling.ConnectionQualityScore, bool) {
	r.qualityMu.Lock()
	defer r.qualityMu.Unlock()
	q, ok := r.quality[member]
	return q, ok
}

// State возвращает текущее клиентское состояние комнаты в виде SynchronizeMe
func (r *Room) State() signaling.RoomState {
	return r.peers.AsProto()
}

// Settings текущие настройки локального медиа
func (r *Room) Settings() local_media.MediaStreamSettings {
	return r.sendConstraints.Inner()
}

// IsClosed true после закрытия комнаты
func (r *Room) IsClosed() bool {
	return r.closed.Load()
}

// close останавливает обработку событий и освобождает peers.
// Нельзя вызывать из колбэков комнаты.
func (r *Room) close(reason CloseReason) {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.cancel()
		r.wg.Wait()

		r.peers.Close()
		r.syncPeersGauge()
		if err := r.session.Close(); err != nil {
			r.logger.Warn("Ошибка закрытия сессии", slog.String("error", err.Error()))
		}
		r.logger.Info("Комната закрыта", slog.String("reason", reason.Reason))

		if cb := r.callbacks().onClose; cb != nil {
			cb(reason)
		}
	})
}
