package peer

import (
	"log/slog"
	"time"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/reactive"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// ReceiverParams параметры создания получателя
type ReceiverParams struct {
	Track       signaling.Track
	PeerID      signaling.PeerID
	Transceiver Transceiver
	Constraints *local_media.RecvConstraints
	Commands    CommandSender
	Timeout     time.Duration
	Logger      *slog.Logger

	OnTransitionTimeout func(media_state.MediaState)
}

// ReceiverState входящий трек
type ReceiverState struct {
	mediaControllers

	id          signaling.TrackID
	peerID      signaling.PeerID
	mid         string
	mediaType   signaling.MediaType
	sender      signaling.MemberID
	transceiver Transceiver
	commands    CommandSender
	general     *reactive.Cell[media_state.MediaExchange]
	sync        *SyncState
	logger      *slog.Logger
	unwatch     []func()
}

// NewReceiverState создает получателя
func NewReceiverState(p ReceiverParams) *ReceiverState {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &ReceiverState{
		mediaControllers: newMediaControllers(p.Track.EnabledIndividual, p.Track.Muted, p.Timeout),
		id:               p.Track.ID,
		peerID:           p.PeerID,
		mid:              p.Track.Mid,
		mediaType:        p.Track.MediaType,
		sender:           p.Track.Sender,
		transceiver:      p.Transceiver,
		commands:         p.Commands,
		general:          reactive.NewCell(media_state.MediaExchangeFromBool(p.Track.EnabledGeneral)),
		sync:             NewSyncState(),
		logger: logger.With(
			slog.String("component", "receiver"),
			slog.Uint64("peer_id", uint64(p.PeerID)),
			slog.Uint64("track_id", uint64(p.Track.ID)),
		),
	}
	if r.mid == "" {
		r.mid = p.Transceiver.Mid()
	}

	r.unwatch = append(r.unwatch,
		r.exchange.Watch(r.onExchangeChange),
		r.general.Watch(func(media_state.MediaExchange) { r.applyDirection() }),
	)
	r.sync.Watch(r.onSyncChange)
	r.exchange.OnTransitionTimeout(func(tr media_state.Transition[media_state.MediaExchange]) {
		r.logger.Warn("Сервер не подтвердил переход приема медиа", slog.String("to", tr.To.String()))
		if p.OnTransitionTimeout != nil {
			p.OnTransitionTimeout(media_state.NewMediaExchange(tr.To))
		}
	})

	r.applyDirection()
	r.exchange.TransitionTo(media_state.MediaExchangeFromBool(p.Constraints.IsEnabled(p.Track.MediaType.Kind, p.Track.MediaType.Source)))
	return r
}

func (r *ReceiverState) TrackID() signaling.TrackID { return r.id }

func (r *ReceiverState) PeerID() signaling.PeerID { return r.peerID }

func (r *ReceiverState) Kind() signaling.MediaKind { return r.mediaType.Kind }

func (r *ReceiverState) SourceKind() signaling.MediaSourceKind { return r.mediaType.Source }

func (r *ReceiverState) Direction() signaling.TrackDirection { return signaling.DirectionRecv }

func (r *ReceiverState) Mid() string { return r.mid }

// SenderID участник, отправляющий трек
func (r *ReceiverState) SenderID() signaling.MemberID { return r.sender }

func (r *ReceiverState) IsRequired() bool { return false }

func (r *ReceiverState) IsTransitable() bool { return true }

func (r *ReceiverState) SyncState() *SyncState { return r.sync }

// IsMutedRemotely true если отправитель заглушил трек
func (r *ReceiverState) IsMutedRemotely() bool {
	return r.mute.State().Current().IsMuted()
}

// CheckMediaStateTransition получатель не может заглушить чужой трек
func (r *ReceiverState) CheckMediaStateTransition(state media_state.MediaState) error {
	if state.Kind() == media_state.KindMute {
		return media_state.NewProhibitedStateError(state, "receivers muting is not supported")
	}
	return nil
}

// MediaStateTransitionTo запускает переход к state
func (r *ReceiverState) MediaStateTransitionTo(state media_state.MediaState) error {
	if err := r.CheckMediaStateTransition(state); err != nil {
		return err
	}
	r.transitionTo(state)
	return nil
}

func (r *ReceiverState) onExchangeChange(st media_state.TransitableState[media_state.MediaExchange]) {
	if tr, ok := st.Transition(); ok {
		r.commands.SendCommand(signaling.UpdateTracks{
			PeerID:        r.peerID,
			TracksPatches: []signaling.TrackPatchCommand{{ID: r.id, Enabled: signaling.Bool(tr.To.IsEnabled())}},
		})
		return
	}
	r.applyDirection()
}

func (r *ReceiverState) onSyncChange(_, to SyncStatus) {
	switch to {
	case SyncDesynced:
		r.StopMediaStateTransitionTimeout()
	case SyncSynced:
		for _, patch := range r.pendingIntentions(r.id) {
			r.commands.SendCommand(signaling.UpdateTracks{
				PeerID:        r.peerID,
				TracksPatches: []signaling.TrackPatchCommand{patch},
			})
		}
		r.ResetMediaStateTransitionTimeout()
	}
}

func (r *ReceiverState) applyDirection() {
	enabled := r.exchange.State().Current() == media_state.Enabled &&
		r.general.Get() == media_state.Enabled
	r.transceiver.SetRecvDirection(enabled)
}

// Update применяет изменение от сервера
func (r *ReceiverState) Update(patch signaling.TrackPatchEvent) {
	if patch.EnabledGeneral != nil {
		r.general.Set(media_state.MediaExchangeFromBool(*patch.EnabledGeneral))
	}
	if patch.EnabledIndividual != nil {
		r.exchange.Update(media_state.MediaExchangeFromBool(*patch.EnabledIndividual))
	}
	if patch.Muted != nil {
		r.mute.Update(media_state.MuteFromBool(*patch.Muted))
	}
}

// Apply применяет авторитетный снимок
func (r *ReceiverState) Apply(snapshot signaling.ReceiverState) {
	r.general.Set(media_state.MediaExchangeFromBool(snapshot.EnabledGeneral))
	if v := media_state.MediaExchangeFromBool(snapshot.EnabledIndividual); r.exchange.State().Current() != v {
		r.exchange.Update(v)
	}
	if v := media_state.MuteFromBool(snapshot.Muted); r.mute.State().Current() != v {
		r.mute.Update(v)
	}
	r.sync.Synchronized()
}

// AsProto возвращает подтвержденное состояние для SynchronizeMe
func (r *ReceiverState) AsProto() signaling.ReceiverState {
	return signaling.ReceiverState{
		ID:                r.id,
		Mid:               r.mid,
		MediaType:         r.mediaType,
		SenderID:          r.sender,
		EnabledIndividual: r.exchange.State().Current().IsEnabled(),
		EnabledGeneral:    r.general.Get().IsEnabled(),
		Muted:             r.mute.State().Current().IsMuted(),
	}
}

func (r *ReceiverState) ConnectionLost() { r.sync.ConnectionLost() }

func (r *ReceiverState) ConnectionRecovered() { r.sync.ConnectionRecovered() }

// Close освобождает ресурсы получателя
func (r *ReceiverState) Close() {
	for _, u := range r.unwatch {
		u()
	}
	r.mediaControllers.close()
	r.general.Close()
}
