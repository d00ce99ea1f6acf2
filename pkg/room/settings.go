package room

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/peer"
)

// SetLocalMediaSettings заменяет настройки локального медиа и обновляет
// треки всех peers.
//
// stopFirst останавливает треки измененных источников до получения новых.
// rollbackOnFail восстанавливает прежние настройки, если новые треки
// получить не удалось. Ошибка всегда имеет тип *ConstraintsUpdateError.
func (r *Room) SetLocalMediaSettings(ctx context.Context, settings local_media.MediaStreamSettings, stopFirst, rollbackOnFail bool) error {
	if r.IsClosed() {
		return errored(ErrDetached)
	}

	logger := r.logger.With(
		slog.String("op_id", uuid.NewString()),
		slog.Bool("stop_first", stopFirst),
		slog.Bool("rollback_on_fail", rollbackOnFail))

	err := r.setLocalMediaSettings(ctx, logger, settings, stopFirst, rollbackOnFail)
	r.metrics.settingsUpdated(err)
	if err != nil {
		logger.Warn("Настройки локального медиа не применены",
			slog.String("outcome", err.Outcome().String()),
			slog.String("error", err.Error()))
		return err
	}
	logger.Info("Настройки локального медиа применены")
	return nil
}

func (r *Room) setLocalMediaSettings(ctx context.Context, logger *slog.Logger, settings local_media.MediaStreamSettings, stopFirst, rollbackOnFail bool) *ConstraintsUpdateError {
	prev := r.sendConstraints.Constrain(settings)
	diff := r.sendConstraints.Inner().KindsDiff(prev)
	logger.Debug("Замена настроек локального медиа", slog.String("diff", diff.String()))

	peers := r.peers.GetAll()
	if stopFirst {
		for _, p := range peers {
			p.DropSendTracks(diff)
		}
	}

	updates := make(stateUpdates)
	for i, p := range peers {
		result, err := p.UpdateLocalStream(ctx, local_media.CriteriaAll)
		if err == nil {
			for id, exchange := range result {
				updates.add(p.ID(), id, media_state.NewMediaExchange(exchange))
			}
			continue
		}

		if !errors.Is(err, local_media.ErrCouldNotGetLocalMedia) {
			return errored(err)
		}

		if rollbackOnFail {
			logger.Info("Откат к прежним настройкам", slog.String("reason", err.Error()))
			if rerr := r.setLocalMediaSettings(ctx, logger, prev, stopFirst, false); rerr != nil {
				return rerr.recoveryFailed(err)
			}
			return recovered(err)
		}

		if stopFirst {
			if derr := r.disableSendersWithoutTracks(ctx, updates, diff); derr != nil {
				return recoverFailed(err, derr)
			}
			return recovered(err)
		}

		r.sendConstraints.SetInner(prev)
		r.restoreLocalStreams(ctx, logger, peers[:i], diff)
		return errored(err)
	}

	if err := r.updateMediaStates(ctx, updates); err != nil {
		return errored(err)
	}
	return nil
}

// disableSendersWithoutTracks выключает отправители, оставшиеся без треков
// после неудачной замены настроек. Состояния уже обновленных peers из
// updates применяются вместе с выключением.
//
// В настройках выключаются только источники, чьи отправители остались
// без трека.
func (r *Room) disableSendersWithoutTracks(ctx context.Context, updates stateUpdates, kinds local_media.Criteria) error {
	disabled := media_state.NewMediaExchange(media_state.Disabled)
	var trackless local_media.Criteria
	for _, p := range r.peers.GetAll() {
		for _, id := range p.SendersWithoutTracks(kinds) {
			updates.add(p.ID(), id, disabled)
			if s, ok := p.Sender(id); ok {
				source := s.SourceKind()
				trackless |= local_media.CriteriaFor(s.Kind(), &source)
			}
		}
	}
	r.sendConstraints.SetMediaExchangeStateByKinds(media_state.Disabled, trackless)
	return r.updateMediaStates(ctx, updates)
}

// restoreLocalStreams возвращает peers, уже получившим новые треки, треки
// по восстановленным настройкам. Ошибка восстановления не меняет итог Errored.
func (r *Room) restoreLocalStreams(ctx context.Context, logger *slog.Logger, peers []*peer.PeerState, kinds local_media.Criteria) {
	updates := make(stateUpdates)
	for _, p := range peers {
		result, err := p.UpdateLocalStream(ctx, kinds)
		if err != nil {
			logger.Warn("Не удалось вернуть прежние треки",
				slog.Uint64("peer_id", uint64(p.ID())),
				slog.String("error", err.Error()))
			continue
		}
		for id, exchange := range result {
			// источник выключен прежними настройками, вставленный трек лишний
			if s, ok := p.Sender(id); ok && exchange == media_state.Disabled {
				s.DropTrack()
			}
			updates.add(p.ID(), id, media_state.NewMediaExchange(exchange))
		}
	}
	if err := r.updateMediaStates(ctx, updates); err != nil {
		logger.Warn("Не удалось вернуть прежние состояния отправителей", slog.String("error", err.Error()))
	}
}
