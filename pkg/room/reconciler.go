package room

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/peer"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// stateUpdates желаемые состояния треков по peers
type stateUpdates map[signaling.PeerID]map[signaling.TrackID]media_state.MediaState

func (u stateUpdates) add(peerID signaling.PeerID, trackID signaling.TrackID, state media_state.MediaState) {
	tracks, ok := u[peerID]
	if !ok {
		tracks = make(map[signaling.TrackID]media_state.MediaState)
		u[peerID] = tracks
	}
	tracks[trackID] = state
}

func asError(err error) error {
	if err == nil {
		return nil
	}
	return toChangeMediaStateError(err)
}

// changeMediaState приводит все треки kind/direction/source к state.
//
// Для включения отправки сначала получает локальные треки. Если переход
// не удался, треки возвращаются в противоположное состояние, а
// вызывающий получает исходную ошибку.
func (r *Room) changeMediaState(ctx context.Context, state media_state.MediaState, kind signaling.MediaKind, direction signaling.TrackDirection, source *signaling.MediaSourceKind) error {
	err := r.doChangeMediaState(ctx, state, kind, direction, source)
	if err != nil && r.IsClosed() {
		err = ErrDetached
	}
	r.metrics.mediaStateChanged(state, kind, direction, err)
	return asError(err)
}

func (r *Room) doChangeMediaState(ctx context.Context, state media_state.MediaState, kind signaling.MediaKind, direction signaling.TrackDirection, source *signaling.MediaSourceKind) error {
	if r.IsClosed() {
		return ErrDetached
	}

	logger := r.logger.With(
		slog.String("op_id", uuid.NewString()),
		slog.String("state", state.String()),
		slog.String("kind", kind.String()),
		slog.String("direction", direction.String()))
	logger.Debug("Изменение медиа состояния")

	if err := r.checkMediaStateTransition(state, kind, direction, source); err != nil {
		return err
	}

	prev := r.sendConstraints.Inner()
	r.setConstraintsMediaState(state, kind, direction, source)

	exchange, isExchange := state.MediaExchange()
	enablingSend := direction == signaling.DirectionSend && isExchange && exchange == media_state.Enabled

	if enablingSend {
		tracks, err := r.getLocalTracks(ctx, kind, source)
		if err != nil {
			r.sendConstraints.SetInner(prev)
			logger.Warn("Не удалось получить локальное медиа", slog.String("error", err.Error()))
			return err
		}
		defer func() {
			for _, t := range tracks {
				t.Release()
			}
		}()
	}

	for !r.isAllPeersInMediaState(kind, direction, source, state) {
		err := r.toggleMediaState(ctx, state, kind, direction, source)
		if err == nil {
			continue
		}
		if enablingSend {
			opposite := state.Opposite()
			r.setConstraintsMediaState(opposite, kind, direction, source)
			if rerr := r.toggleMediaState(ctx, opposite, kind, direction, source); rerr != nil {
				logger.Error("Не удалось откатить медиа состояние", slog.String("error", rerr.Error()))
				err = withRollbackError(err, rerr)
			}
		}
		logger.Warn("Изменение медиа состояния не удалось", slog.String("error", err.Error()))
		return err
	}

	logger.Debug("Медиа состояние изменено")
	return nil
}

// checkMediaStateTransition не дает записать в настройки запрещенное состояние
func (r *Room) checkMediaStateTransition(state media_state.MediaState, kind signaling.MediaKind, direction signaling.TrackDirection, source *signaling.MediaSourceKind) error {
	for _, p := range r.peers.GetAll() {
		for _, side := range p.GetTransceiverSides(kind, direction, source) {
			if !side.IsTransitable() {
				continue
			}
			if err := side.CheckMediaStateTransition(state); err != nil {
				return err
			}
		}
	}
	return nil
}

// setConstraintsMediaState сохраняет намерение пользователя в настройках
func (r *Room) setConstraintsMediaState(state media_state.MediaState, kind signaling.MediaKind, direction signaling.TrackDirection, source *signaling.MediaSourceKind) {
	switch direction {
	case signaling.DirectionSend:
		r.sendConstraints.SetMediaState(state, kind, source)
	case signaling.DirectionRecv:
		if exchange, ok := state.MediaExchange(); ok {
			r.recvConstraints.SetEnabled(exchange.IsEnabled(), kind, source)
		}
	}
}

// getLocalTracks получает треки заранее, чтобы ошибка платформы вернулась
// до начала перехода. Вызывающий отпускает треки.
func (r *Room) getLocalTracks(ctx context.Context, kind signaling.MediaKind, source *signaling.MediaSourceKind) ([]*local_media.Track, error) {
	criteria := local_media.CriteriaFor(kind, source)

	seen := make(map[local_media.Criteria]bool)
	var requests []local_media.TrackRequest
	for _, p := range r.peers.GetAll() {
		for _, req := range p.TrackRequests(criteria) {
			if seen[req.Criteria()] {
				continue
			}
			seen[req.Criteria()] = true
			requests = append(requests, req)
		}
	}
	if len(requests) == 0 {
		return nil, nil
	}

	acquired, err := r.media.GetTracks(ctx, requests)
	if err != nil {
		r.emitFailedLocalMedia(err)
		return nil, err
	}

	tracks := make([]*local_media.Track, 0, len(acquired))
	for _, a := range acquired {
		if a.IsNew {
			r.emitLocalTrack(a.Track)
		}
		tracks = append(tracks, a.Track)
	}
	return tracks, nil
}

func (r *Room) isAllPeersInMediaState(kind signaling.MediaKind, direction signaling.TrackDirection, source *signaling.MediaSourceKind, state media_state.MediaState) bool {
	for _, p := range r.peers.GetAll() {
		if !p.IsAllTransceiverSidesInMediaState(kind, direction, source, state) {
			return false
		}
	}
	return true
}

// toggleMediaState переводит управляемые треки всех peers в state
func (r *Room) toggleMediaState(ctx context.Context, state media_state.MediaState, kind signaling.MediaKind, direction signaling.TrackDirection, source *signaling.MediaSourceKind) error {
	updates := make(stateUpdates)
	for _, p := range r.peers.GetAll() {
		for _, side := range p.GetTransceiverSides(kind, direction, source) {
			if side.IsTransitable() {
				updates.add(p.ID(), side.TrackID(), state)
			}
		}
	}
	return r.updateMediaStates(ctx, updates)
}

type pendingSide struct {
	peer  *peer.PeerState
	side  peer.TransceiverSide
	state media_state.MediaState
}

// updateMediaStates выполняет переходы и ждет их стабилизации.
//
// Все переходы сначала проверяются, поэтому запрещенное состояние
// не меняет ни одного трека.
func (r *Room) updateMediaStates(ctx context.Context, updates stateUpdates) error {
	peerIDs := make([]signaling.PeerID, 0, len(updates))
	for id := range updates {
		peerIDs = append(peerIDs, id)
	}
	sort.Slice(peerIDs, func(i, j int) bool { return peerIDs[i] < peerIDs[j] })

	var pending []pendingSide
	for _, peerID := range peerIDs {
		p, ok := r.peers.Get(peerID)
		if !ok {
			continue
		}
		tracks := updates[peerID]
		trackIDs := make([]signaling.TrackID, 0, len(tracks))
		for id := range tracks {
			trackIDs = append(trackIDs, id)
		}
		sort.Slice(trackIDs, func(i, j int) bool { return trackIDs[i] < trackIDs[j] })

		for _, trackID := range trackIDs {
			side, ok := p.TransceiverSide(trackID)
			if !ok {
				continue
			}
			state := tracks[trackID]
			if !side.IsSubscriptionNeeded(state) {
				continue
			}
			pending = append(pending, pendingSide{peer: p, side: side, state: state})
		}
	}
	if len(pending) == 0 {
		return nil
	}

	for _, ps := range pending {
		if err := ps.side.CheckMediaStateTransition(ps.state); err != nil {
			return err
		}
	}
	for _, ps := range pending {
		if err := ps.side.MediaStateTransitionTo(ps.state); err != nil {
			return err
		}
	}

	var g errgroup.Group
	for _, ps := range pending {
		ps := ps
		g.Go(func() error {
			return ps.side.WhenMediaStateStable(ctx, ps.state)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// включенным отправителям нужны локальные треки
	enabled := make(map[*peer.PeerState][]signaling.TrackID)
	var order []*peer.PeerState
	for _, ps := range pending {
		exchange, ok := ps.state.MediaExchange()
		if !ok || exchange != media_state.Enabled || ps.side.Direction() != signaling.DirectionSend {
			continue
		}
		if _, seen := enabled[ps.peer]; !seen {
			order = append(order, ps.peer)
		}
		enabled[ps.peer] = append(enabled[ps.peer], ps.side.TrackID())
	}
	for _, p := range order {
		if err := p.LocalStreamUpdateResult(ctx, enabled[p]); err != nil {
			return err
		}
	}
	return nil
}
