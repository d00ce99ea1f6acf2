package peer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// Events обработчики событий peer
type Events struct {
	// OnNewLocalTrack вызывается для каждого впервые полученного локального трека
	OnNewLocalTrack func(*local_media.Track)
	// OnFailedLocalMedia вызывается при ошибке фонового обновления локального потока
	OnFailedLocalMedia func(error)
	// OnTransitionTimeout вызывается, когда сервер не подтвердил переход трека
	OnTransitionTimeout func(track signaling.TrackID, state media_state.MediaState)
}

// Params параметры создания peer
type Params struct {
	ID              signaling.PeerID
	Connection      Connection
	IceServers      []signaling.IceServer
	ForceRelay      bool
	SendConstraints *local_media.LocalTracksConstraints
	RecvConstraints *local_media.RecvConstraints
	Media           *local_media.Manager
	Commands        CommandSender
	Timeout         time.Duration
	Logger          *slog.Logger
	Events          Events
}

// PeerState клиентское состояние одного peer connection
type PeerState struct {
	id              signaling.PeerID
	conn            Connection
	sendConstraints *local_media.LocalTracksConstraints
	recvConstraints *local_media.RecvConstraints
	media           *local_media.Manager
	commands        CommandSender
	timeout         time.Duration
	logger          *slog.Logger
	events          Events
	sync            *SyncState

	mu         sync.RWMutex
	senders    map[signaling.TrackID]*SenderState
	receivers  map[signaling.TrackID]*ReceiverState
	iceServers []signaling.IceServer
	forceRelay bool
	restartIce bool
	closed     bool

	// updateMu сериализует обновления локального потока
	updateMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPeerState создает peer без треков
func NewPeerState(p Params) *PeerState {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PeerState{
		id:              p.ID,
		conn:            p.Connection,
		sendConstraints: p.SendConstraints,
		recvConstraints: p.RecvConstraints,
		media:           p.Media,
		commands:        p.Commands,
		timeout:         p.Timeout,
		logger:          logger.With(slog.String("component", "peer"), slog.Uint64("peer_id", uint64(p.ID))),
		events:          p.Events,
		sync:            NewSyncState(),
		senders:         make(map[signaling.TrackID]*SenderState),
		receivers:       make(map[signaling.TrackID]*ReceiverState),
		iceServers:      p.IceServers,
		forceRelay:      p.ForceRelay,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// ID идентификатор peer
func (p *PeerState) ID() signaling.PeerID { return p.id }

// Connection платформенное соединение
func (p *PeerState) Connection() Connection { return p.conn }

// SyncState машина синхронизации peer
func (p *PeerState) SyncState() *SyncState { return p.sync }

// InsertTrack создает отправителя или получателя для трека сервера.
// Повторное добавление известного трека отклоняется с ErrDuplicateTrack,
// существующий трек не меняется.
func (p *PeerState) InsertTrack(track signaling.Track) error {
	if p.hasTrack(track.ID) {
		return p.duplicateTrack(track.ID)
	}

	tr, err := p.conn.AddTransceiver(track.MediaType.Kind, track.Direction)
	if err != nil {
		return fmt.Errorf("add transceiver for track %d: %w", track.ID, err)
	}

	if track.Direction == signaling.DirectionSend {
		s, err := NewSenderState(SenderParams{
			Track:                   track,
			PeerID:                  p.id,
			Transceiver:             tr,
			Constraints:             p.sendConstraints,
			Commands:                p.commands,
			Timeout:                 p.timeout,
			Logger:                  p.logger,
			OnNeedLocalStreamUpdate: p.scheduleLocalStreamUpdate,
			OnTransitionTimeout:     p.transitionTimeoutHook(track.ID),
		})
		if err != nil {
			return err
		}
		p.mu.Lock()
		dup := p.hasTrackLocked(track.ID)
		if !dup {
			p.senders[track.ID] = s
		}
		p.mu.Unlock()
		if dup {
			s.Close()
			return p.duplicateTrack(track.ID)
		}
		p.logger.Debug("Создан отправитель", slog.Uint64("track_id", uint64(track.ID)), slog.String("kind", track.MediaType.Kind.String()))
		return nil
	}

	r := NewReceiverState(ReceiverParams{
		Track:       track,
		PeerID:      p.id,
		Transceiver: tr,
		Constraints: p.recvConstraints,
		Commands:    p.commands,
		Timeout:     p.timeout,
		Logger:      p.logger,

		OnTransitionTimeout: p.transitionTimeoutHook(track.ID),
	})
	p.mu.Lock()
	dup := p.hasTrackLocked(track.ID)
	if !dup {
		p.receivers[track.ID] = r
	}
	p.mu.Unlock()
	if dup {
		r.Close()
		return p.duplicateTrack(track.ID)
	}
	p.logger.Debug("Создан получатель", slog.Uint64("track_id", uint64(track.ID)), slog.String("kind", track.MediaType.Kind.String()))
	return nil
}

func (p *PeerState) hasTrack(id signaling.TrackID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasTrackLocked(id)
}

func (p *PeerState) hasTrackLocked(id signaling.TrackID) bool {
	_, s := p.senders[id]
	_, r := p.receivers[id]
	return s || r
}

func (p *PeerState) duplicateTrack(id signaling.TrackID) error {
	return newPeerError(CodeDuplicateTrack, p.id, id, "track already exists", nil)
}

func (p *PeerState) transitionTimeoutHook(id signaling.TrackID) func(media_state.MediaState) {
	if p.events.OnTransitionTimeout == nil {
		return nil
	}
	return func(state media_state.MediaState) {
		p.events.OnTransitionTimeout(id, state)
	}
}

// PatchTrack применяет изменение трека от сервера
func (p *PeerState) PatchTrack(patch signaling.TrackPatchEvent) {
	if s, ok := p.Sender(patch.ID); ok {
		s.Update(patch)
		return
	}
	if r, ok := p.Receiver(patch.ID); ok {
		r.Update(patch)
		return
	}
	p.logger.Warn("Изменение неизвестного трека", slog.Uint64("track_id", uint64(patch.ID)))
}

// RemoveTrack удаляет трек
func (p *PeerState) RemoveTrack(id signaling.TrackID) {
	p.mu.Lock()
	s := p.senders[id]
	r := p.receivers[id]
	delete(p.senders, id)
	delete(p.receivers, id)
	p.mu.Unlock()

	if s != nil {
		s.Close()
	}
	if r != nil {
		r.Close()
	}
}

// RestartIce отмечает, что сервер запросил ICE restart
func (p *PeerState) RestartIce() {
	p.mu.Lock()
	p.restartIce = true
	p.mu.Unlock()
	p.logger.Info("Сервер запросил ICE restart")
}

// Sender возвращает отправителя по ID
func (p *PeerState) Sender(id signaling.TrackID) (*SenderState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.senders[id]
	return s, ok
}

// Receiver возвращает получателя по ID
func (p *PeerState) Receiver(id signaling.TrackID) (*ReceiverState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.receivers[id]
	return r, ok
}

// Senders отправители, отсортированные по ID
func (p *PeerState) Senders() []*SenderState {
	p.mu.RLock()
	out := make([]*SenderState, 0, len(p.senders))
	for _, s := range p.senders {
		out = append(out, s)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Receivers получатели, отсортированные по ID
func (p *PeerState) Receivers() []*ReceiverState {
	p.mu.RLock()
	out := make([]*ReceiverState, 0, len(p.receivers))
	for _, r := range p.receivers {
		out = append(out, r)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// TransceiverSide возвращает трек любого направления по ID
func (p *PeerState) TransceiverSide(id signaling.TrackID) (TransceiverSide, bool) {
	if s, ok := p.Sender(id); ok {
		return s, true
	}
	if r, ok := p.Receiver(id); ok {
		return r, true
	}
	return nil, false
}

// GetTransceiverSides возвращает треки заданного типа и направления.
// nil source означает любой источник.
func (p *PeerState) GetTransceiverSides(kind signaling.MediaKind, direction signaling.TrackDirection, source *signaling.MediaSourceKind) []TransceiverSide {
	var out []TransceiverSide
	match := func(side TransceiverSide) bool {
		return side.Kind() == kind && (source == nil || side.SourceKind() == *source)
	}
	if direction == signaling.DirectionSend {
		for _, s := range p.Senders() {
			if match(s) {
				out = append(out, s)
			}
		}
		return out
	}
	for _, r := range p.Receivers() {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

// IsAllTransceiverSidesInMediaState true если все управляемые треки фильтра
// стабильны в state
func (p *PeerState) IsAllTransceiverSidesInMediaState(kind signaling.MediaKind, direction signaling.TrackDirection, source *signaling.MediaSourceKind, state media_state.MediaState) bool {
	for _, side := range p.GetTransceiverSides(kind, direction, source) {
		if !side.IsTransitable() {
			continue
		}
		if !side.InMediaState(state) {
			return false
		}
	}
	return true
}

// ConnectionLost переводит peer и все треки в Desynced
func (p *PeerState) ConnectionLost() {
	p.sync.ConnectionLost()
	for _, s := range p.Senders() {
		s.ConnectionLost()
	}
	for _, r := range p.Receivers() {
		r.ConnectionLost()
	}
}

// ConnectionRecovered переводит peer и все треки в Syncing
func (p *PeerState) ConnectionRecovered() {
	p.sync.ConnectionRecovered()
	for _, s := range p.Senders() {
		s.ConnectionRecovered()
	}
	for _, r := range p.Receivers() {
		r.ConnectionRecovered()
	}
}

// Apply применяет авторитетный снимок peer: обновляет известные треки,
// создает новые и удаляет отсутствующие
func (p *PeerState) Apply(snapshot signaling.PeerState) {
	for _, s := range p.Senders() {
		if _, ok := snapshot.Senders[s.id]; !ok {
			p.RemoveTrack(s.id)
		}
	}
	for _, r := range p.Receivers() {
		if _, ok := snapshot.Receivers[r.id]; !ok {
			p.RemoveTrack(r.id)
		}
	}

	for id, ss := range snapshot.Senders {
		if s, ok := p.Sender(id); ok {
			s.Apply(ss)
			continue
		}
		if err := p.InsertTrack(signaling.TrackFromSender(ss)); err != nil {
			p.logger.Error("Не удалось создать отправителя из снимка", slog.Uint64("track_id", uint64(id)), slog.String("error", err.Error()))
		}
	}
	for id, rs := range snapshot.Receivers {
		if r, ok := p.Receiver(id); ok {
			r.Apply(rs)
			continue
		}
		if err := p.InsertTrack(signaling.TrackFromReceiver(rs)); err != nil {
			p.logger.Error("Не удалось создать получателя из снимка", slog.Uint64("track_id", uint64(id)), slog.String("error", err.Error()))
		}
	}

	p.mu.Lock()
	p.iceServers = snapshot.IceServers
	p.forceRelay = snapshot.ForceRelay
	p.restartIce = snapshot.RestartIce
	p.mu.Unlock()

	p.sync.Synchronized()
}

// AsProto возвращает снимок для SynchronizeMe
func (p *PeerState) AsProto() signaling.PeerState {
	state := signaling.PeerState{
		Senders:   make(map[signaling.TrackID]signaling.SenderState),
		Receivers: make(map[signaling.TrackID]signaling.ReceiverState),
	}
	for _, s := range p.Senders() {
		state.Senders[s.id] = s.AsProto()
	}
	for _, r := range p.Receivers() {
		state.Receivers[r.id] = r.AsProto()
	}

	p.mu.RLock()
	state.IceServers = p.iceServers
	state.ForceRelay = p.forceRelay
	state.RestartIce = p.restartIce
	p.mu.RUnlock()
	return state
}

// Close закрывает все треки и соединение
func (p *PeerState) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	for _, s := range p.Senders() {
		s.Close()
	}
	for _, r := range p.Receivers() {
		r.Close()
	}
	return p.conn.Close()
}
