package peer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/reactive"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// LocalTrackPhase состояние локального трека отправителя
type LocalTrackPhase uint8

const (
	// LocalTrackStable трек вставлен или не нужен
	LocalTrackStable LocalTrackPhase = iota
	// LocalTrackNeedUpdate отправитель включен, но трека нет
	LocalTrackNeedUpdate
	// LocalTrackFailed последнее обновление локального потока завершилось ошибкой
	LocalTrackFailed
)

// SenderParams параметры создания отправителя
type SenderParams struct {
	Track       signaling.Track
	PeerID      signaling.PeerID
	Transceiver Transceiver
	Constraints *local_media.LocalTracksConstraints
	Commands    CommandSender
	Timeout     time.Duration
	Logger      *slog.Logger

	// OnNeedLocalStreamUpdate вызывается синхронно, когда включенному отправителю нужен трек
	OnNeedLocalStreamUpdate func(*SenderState)
	OnTransitionTimeout     func(media_state.MediaState)
}

// SenderState исходящий трек
type SenderState struct {
	mediaControllers

	id          signaling.TrackID
	peerID      signaling.PeerID
	mid         string
	mediaType   signaling.MediaType
	receivers   []signaling.MemberID
	transceiver Transceiver
	commands    CommandSender
	general     *reactive.Cell[media_state.MediaExchange]
	sync        *SyncState
	phase       *reactive.Cell[LocalTrackPhase]
	logger      *slog.Logger

	onNeedUpdate func(*SenderState)
	unwatch      []func()

	mu       sync.Mutex
	track    *local_media.Track
	trackErr error
}

// NewSenderState создает отправителя и сразу запускает переходы к состояниям,
// заданным локальными ограничениями
func NewSenderState(p SenderParams) (*SenderState, error) {
	kind, source := p.Track.MediaType.Kind, p.Track.MediaType.Source
	enabled := p.Constraints.IsTrackEnabled(kind, source)
	muted := p.Constraints.IsTrackMuted(kind, source)

	if p.Track.MediaType.Required {
		if !enabled {
			return nil, media_state.NewProhibitedStateError(
				media_state.NewMediaExchange(media_state.Disabled),
				"required sender can not be created disabled")
		}
		if muted {
			return nil, media_state.NewProhibitedStateError(
				media_state.NewMute(media_state.Muted),
				"required sender can not be created muted")
		}
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &SenderState{
		mediaControllers: newMediaControllers(p.Track.EnabledIndividual, p.Track.Muted, p.Timeout),
		id:               p.Track.ID,
		peerID:           p.PeerID,
		mid:              p.Track.Mid,
		mediaType:        p.Track.MediaType,
		receivers:        p.Track.Receivers,
		transceiver:      p.Transceiver,
		commands:         p.Commands,
		general:          reactive.NewCell(media_state.MediaExchangeFromBool(p.Track.EnabledGeneral)),
		sync:             NewSyncState(),
		phase:            reactive.NewCell(LocalTrackStable),
		onNeedUpdate:     p.OnNeedLocalStreamUpdate,
		logger: logger.With(
			slog.String("component", "sender"),
			slog.Uint64("peer_id", uint64(p.PeerID)),
			slog.Uint64("track_id", uint64(p.Track.ID)),
		),
	}
	if s.mid == "" {
		s.mid = p.Transceiver.Mid()
	}

	s.unwatch = append(s.unwatch,
		s.exchange.Watch(s.onExchangeChange),
		s.mute.Watch(s.onMuteChange),
		s.general.Watch(func(media_state.MediaExchange) { s.applyDirection() }),
	)
	s.sync.Watch(s.onSyncChange)
	s.exchange.OnTransitionTimeout(func(tr media_state.Transition[media_state.MediaExchange]) {
		s.logger.Warn("Сервер не подтвердил переход обмена медиа", slog.String("to", tr.To.String()))
		if p.OnTransitionTimeout != nil {
			p.OnTransitionTimeout(media_state.NewMediaExchange(tr.To))
		}
	})
	s.mute.OnTransitionTimeout(func(tr media_state.Transition[media_state.Mute]) {
		s.logger.Warn("Сервер не подтвердил переход заглушения", slog.String("to", tr.To.String()))
		if p.OnTransitionTimeout != nil {
			p.OnTransitionTimeout(media_state.NewMute(tr.To))
		}
	})

	s.applyDirection()
	s.transceiver.SetTrackEnabled(!p.Track.Muted)

	s.exchange.TransitionTo(media_state.MediaExchangeFromBool(enabled))
	s.mute.TransitionTo(media_state.MuteFromBool(muted))
	return s, nil
}

func (s *SenderState) TrackID() signaling.TrackID { return s.id }

func (s *SenderState) PeerID() signaling.PeerID { return s.peerID }

func (s *SenderState) Kind() signaling.MediaKind { return s.mediaType.Kind }

func (s *SenderState) SourceKind() signaling.MediaSourceKind { return s.mediaType.Source }

func (s *SenderState) Direction() signaling.TrackDirection { return signaling.DirectionSend }

func (s *SenderState) Mid() string { return s.mid }

func (s *SenderState) IsRequired() bool { return s.mediaType.Required }

func (s *SenderState) Receivers() []signaling.MemberID { return s.receivers }

func (s *SenderState) SyncState() *SyncState { return s.sync }

func (s *SenderState) GeneralState() media_state.MediaExchange { return s.general.Get() }

// IsTransitable захват экрана включается только через локальные настройки
func (s *SenderState) IsTransitable() bool {
	return !(s.mediaType.Kind == signaling.MediaKindVideo && s.mediaType.Source == signaling.SourceDisplay)
}

// CheckMediaStateTransition обязательный трек нельзя выключить или заглушить
func (s *SenderState) CheckMediaStateTransition(state media_state.MediaState) error {
	if s.mediaType.Required && state.IsDisabling() {
		return media_state.NewProhibitedStateError(state, "required sender can not be disabled or muted")
	}
	return nil
}

// MediaStateTransitionTo запускает переход к state
func (s *SenderState) MediaStateTransitionTo(state media_state.MediaState) error {
	if err := s.CheckMediaStateTransition(state); err != nil {
		return err
	}
	s.transitionTo(state)
	return nil
}

func (s *SenderState) onExchangeChange(st media_state.TransitableState[media_state.MediaExchange]) {
	if tr, ok := st.Transition(); ok {
		s.sendIntention(signaling.TrackPatchCommand{ID: s.id, Enabled: signaling.Bool(tr.To.IsEnabled())})
		return
	}

	s.applyDirection()
	if st.Current() == media_state.Disabled {
		s.DropTrack()
		s.phase.Set(LocalTrackStable)
		return
	}
	if !s.HasTrack() {
		s.phase.Set(LocalTrackNeedUpdate)
		if s.onNeedUpdate != nil {
			s.onNeedUpdate(s)
		}
	}
}

func (s *SenderState) onMuteChange(st media_state.TransitableState[media_state.Mute]) {
	if tr, ok := st.Transition(); ok {
		s.sendIntention(signaling.TrackPatchCommand{ID: s.id, Muted: signaling.Bool(tr.To.IsMuted())})
		return
	}

	enabled := st.Current() == media_state.Unmuted
	s.transceiver.SetTrackEnabled(enabled)
	if t := s.LocalTrack(); t != nil {
		t.SetEnabled(enabled)
	}
}

func (s *SenderState) onSyncChange(_, to SyncStatus) {
	switch to {
	case SyncDesynced:
		s.StopMediaStateTransitionTimeout()
	case SyncSynced:
		for _, patch := range s.pendingIntentions(s.id) {
			s.sendIntention(patch)
		}
		s.ResetMediaStateTransitionTimeout()
	}
}

func (s *SenderState) sendIntention(patch signaling.TrackPatchCommand) {
	s.commands.SendCommand(signaling.UpdateTracks{
		PeerID:        s.peerID,
		TracksPatches: []signaling.TrackPatchCommand{patch},
	})
}

func (s *SenderState) applyDirection() {
	enabled := s.exchange.State().Current() == media_state.Enabled &&
		s.general.Get() == media_state.Enabled
	s.transceiver.SetSendDirection(enabled)
}

// Update применяет изменение от сервера
func (s *SenderState) Update(patch signaling.TrackPatchEvent) {
	if patch.EnabledGeneral != nil {
		s.general.Set(media_state.MediaExchangeFromBool(*patch.EnabledGeneral))
	}
	if patch.EnabledIndividual != nil {
		s.exchange.Update(media_state.MediaExchangeFromBool(*patch.EnabledIndividual))
	}
	if patch.Muted != nil {
		s.mute.Update(media_state.MuteFromBool(*patch.Muted))
	}
}

// Apply применяет авторитетный снимок после восстановления соединения.
// Незавершенный переход сохраняется, если сервер его еще не видел.
func (s *SenderState) Apply(snapshot signaling.SenderState) {
	s.general.Set(media_state.MediaExchangeFromBool(snapshot.EnabledGeneral))
	if v := media_state.MediaExchangeFromBool(snapshot.EnabledIndividual); s.exchange.State().Current() != v {
		s.exchange.Update(v)
	}
	if v := media_state.MuteFromBool(snapshot.Muted); s.mute.State().Current() != v {
		s.mute.Update(v)
	}
	s.receivers = snapshot.Receivers
	s.sync.Synchronized()
}

// AsProto возвращает подтвержденное состояние для SynchronizeMe
func (s *SenderState) AsProto() signaling.SenderState {
	return signaling.SenderState{
		ID:                s.id,
		Mid:               s.mid,
		MediaType:         s.mediaType,
		Receivers:         s.receivers,
		EnabledIndividual: s.exchange.State().Current().IsEnabled(),
		EnabledGeneral:    s.general.Get().IsEnabled(),
		Muted:             s.mute.State().Current().IsMuted(),
	}
}

// ConnectionLost переводит синхронизацию в Desynced
func (s *SenderState) ConnectionLost() { s.sync.ConnectionLost() }

// ConnectionRecovered переводит синхронизацию в Syncing
func (s *SenderState) ConnectionRecovered() { s.sync.ConnectionRecovered() }

// InsertTrack вставляет локальный трек в трансивер и удерживает ссылку на него
func (s *SenderState) InsertTrack(ctx context.Context, track *local_media.Track) error {
	if s.LocalTrack() == track {
		return nil
	}
	if err := s.transceiver.InsertLocalTrack(ctx, track); err != nil {
		return err
	}
	track.Retain()
	track.SetEnabled(s.mute.State().Current() == media_state.Unmuted)

	s.mu.Lock()
	old := s.track
	s.track = track
	s.mu.Unlock()

	if old != nil {
		old.Release()
	}
	return nil
}

// DropTrack убирает локальный трек из трансивера
func (s *SenderState) DropTrack() {
	s.mu.Lock()
	t := s.track
	s.track = nil
	s.mu.Unlock()

	if t == nil {
		return
	}
	if err := s.transceiver.DropLocalTrack(); err != nil {
		s.logger.Warn("Не удалось убрать трек из трансивера", slog.String("error", err.Error()))
	}
	t.Release()
}

// HasTrack true если локальный трек вставлен
func (s *SenderState) HasTrack() bool {
	return s.LocalTrack() != nil
}

// LocalTrack возвращает вставленный локальный трек
func (s *SenderState) LocalTrack() *local_media.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

// LocalTrackPhase текущее состояние локального трека
func (s *SenderState) LocalTrackPhase() LocalTrackPhase {
	return s.phase.Get()
}

// markLocalTrack фиксирует результат обновления локального потока
func (s *SenderState) markLocalTrack(err error) {
	if err == nil {
		s.phase.Set(LocalTrackStable)
		return
	}
	s.mu.Lock()
	s.trackErr = err
	s.mu.Unlock()
	s.phase.Set(LocalTrackFailed)
}

// WhenLocalTrackUpdated ждет завершения обновления локального потока
func (s *SenderState) WhenLocalTrackUpdated(ctx context.Context) error {
	phase, err := s.phase.When(ctx, func(p LocalTrackPhase) bool { return p != LocalTrackNeedUpdate })
	if err != nil {
		return err
	}
	if phase == LocalTrackFailed {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.trackErr
	}
	return nil
}

// Close освобождает ресурсы отправителя
func (s *SenderState) Close() {
	for _, u := range s.unwatch {
		u()
	}
	s.DropTrack()
	s.mediaControllers.close()
	s.general.Close()
	s.phase.Close()
}
