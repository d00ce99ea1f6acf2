package peer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

type trackGroup struct {
	req     local_media.TrackRequest
	senders []*SenderState
}

// UpdateLocalStream получает локальные треки для отправителей из criteria
// и вставляет их в трансиверы.
//
// Возвращает желаемое состояние обмена медиа для каждого затронутого
// отправителя: Enabled, если трек вставлен, Disabled, если источник выключен
// локальными настройками.
func (p *PeerState) UpdateLocalStream(ctx context.Context, criteria local_media.Criteria) (map[signaling.TrackID]media_state.MediaExchange, error) {
	p.updateMu.Lock()
	defer p.updateMu.Unlock()

	var senders []*SenderState
	for _, s := range p.Senders() {
		if criteria.Has(s.Kind(), s.SourceKind()) {
			senders = append(senders, s)
		}
	}

	result := make(map[signaling.TrackID]media_state.MediaExchange, len(senders))
	groups := make(map[local_media.Criteria]*trackGroup)
	var order []local_media.Criteria

	for _, s := range senders {
		req, ok := p.sendConstraints.Request(s.Kind(), s.SourceKind())
		if !ok {
			if s.IsRequired() {
				err := newPeerError(CodeInvalidLocalTracks, p.id, s.id,
					"required sender is disabled by local media settings", nil)
				p.markSenders(senders, err)
				return nil, err
			}
			result[s.id] = media_state.Disabled
			continue
		}
		key := req.Criteria()
		g, ok := groups[key]
		if !ok {
			g = &trackGroup{req: req}
			groups[key] = g
			order = append(order, key)
		}
		g.senders = append(g.senders, s)
	}

	if len(order) == 0 {
		p.markSenders(senders, nil)
		return result, nil
	}

	requests := make([]local_media.TrackRequest, 0, len(order))
	for _, key := range order {
		requests = append(requests, groups[key].req)
	}
	acquired, err := p.media.GetTracks(ctx, requests)
	if err != nil {
		p.markSenders(senders, err)
		return nil, err
	}
	defer func() {
		for _, a := range acquired {
			a.Track.Release()
		}
	}()

	for _, a := range acquired {
		if a.IsNew && p.events.OnNewLocalTrack != nil {
			p.events.OnNewLocalTrack(a.Track)
		}
	}

	for i, key := range order {
		g := groups[key]
		if i >= len(acquired) {
			for _, s := range g.senders {
				if s.IsRequired() {
					err := newPeerError(CodeNotEnoughTracks, p.id, s.id, "no local track for required sender", nil)
					p.markSenders(senders, err)
					return nil, err
				}
				result[s.id] = media_state.Disabled
			}
			continue
		}

		track := acquired[i].Track
		if !g.req.Satisfies(track.Platform()) {
			err := newPeerError(CodeInvalidMediaTrack, p.id, g.senders[0].id, "local track does not satisfy sender constraints", nil)
			p.markSenders(senders, err)
			return nil, err
		}
		for _, s := range g.senders {
			if err := s.InsertTrack(ctx, track); err != nil {
				perr := newPeerError(CodeCouldNotInsertLocalTrack, p.id, s.id, "could not insert local track", err)
				p.markSenders(senders, perr)
				return nil, perr
			}
			result[s.id] = media_state.Enabled
		}
	}

	p.markSenders(senders, nil)
	return result, nil
}

// markSenders фиксирует результат обновления для отправителей, ожидающих трек
func (p *PeerState) markSenders(senders []*SenderState, err error) {
	for _, s := range senders {
		if err == nil {
			s.markLocalTrack(nil)
			continue
		}
		if s.LocalTrackPhase() != LocalTrackStable || !s.HasTrack() {
			s.markLocalTrack(err)
		}
	}
}

// scheduleLocalStreamUpdate запускает фоновое обновление для включенного
// отправителя без трека. Вызывается из наблюдателя контроллера.
func (p *PeerState) scheduleLocalStreamUpdate(s *SenderState) {
	p.mu.RLock()
	closed := p.closed
	if !closed {
		p.wg.Add(1)
	}
	p.mu.RUnlock()
	if closed {
		return
	}

	source := s.SourceKind()
	criteria := local_media.CriteriaFor(s.Kind(), &source)
	go func() {
		defer p.wg.Done()
		if _, err := p.UpdateLocalStream(p.ctx, criteria); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Warn("Фоновое обновление локального потока завершилось ошибкой",
				slog.String("criteria", criteria.String()),
				slog.String("error", err.Error()))
			if p.events.OnFailedLocalMedia != nil {
				p.events.OnFailedLocalMedia(err)
			}
		}
	}()
}

// LocalStreamUpdateResult ждет, пока отправители ids получат локальные треки
func (p *PeerState) LocalStreamUpdateResult(ctx context.Context, ids []signaling.TrackID) error {
	for _, id := range ids {
		s, ok := p.Sender(id)
		if !ok {
			continue
		}
		if err := s.WhenLocalTrackUpdated(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DropSendTracks убирает локальные треки отправителей из criteria
func (p *PeerState) DropSendTracks(criteria local_media.Criteria) {
	for _, s := range p.Senders() {
		if criteria.Has(s.Kind(), s.SourceKind()) {
			s.DropTrack()
		}
	}
}

// SendersWithoutTracks включенные отправители из criteria без локального трека
func (p *PeerState) SendersWithoutTracks(criteria local_media.Criteria) []signaling.TrackID {
	var out []signaling.TrackID
	for _, s := range p.Senders() {
		if !criteria.Has(s.Kind(), s.SourceKind()) {
			continue
		}
		if s.MediaExchangeState().Current() == media_state.Enabled && !s.HasTrack() {
			out = append(out, s.id)
		}
	}
	return out
}

// TrackRequests запросы треков для включенных отправителей из criteria
func (p *PeerState) TrackRequests(criteria local_media.Criteria) []local_media.TrackRequest {
	var out []local_media.TrackRequest
	for _, s := range p.Senders() {
		if !criteria.Has(s.Kind(), s.SourceKind()) {
			continue
		}
		if req, ok := p.sendConstraints.Request(s.Kind(), s.SourceKind()); ok {
			out = append(out, req)
		}
	}
	return out
}
