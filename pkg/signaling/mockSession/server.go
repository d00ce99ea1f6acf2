package mockSession

import (
	"sync"
	"time"

	"github.com/arzzra/webrtc_client/pkg/signaling"
)

type serverPeer struct {
	created signaling.PeerCreated
	order   []signaling.TrackID
	tracks  map[signaling.TrackID]*signaling.Track
}

// Server сценарный сервер сигнализации.
// Команды обрабатываются последовательно в отдельной горутине.
type Server struct {
	session *Session

	mu          sync.Mutex
	peers       map[signaling.PeerID]*serverPeer
	autoApprove bool
	pending     []signaling.UpdateTracks
	delay       time.Duration
	forced      map[signaling.TrackID]bool
	syncCount   int

	queue chan signaling.Command
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewServer создает сервер и подключает его к сессии
func NewServer(session *Session) *Server {
	srv := &Server{
		session:     session,
		peers:       make(map[signaling.PeerID]*serverPeer),
		autoApprove: true,
		forced:      make(map[signaling.TrackID]bool),
		queue:       make(chan signaling.Command, eventBuffer),
		done:        make(chan struct{}),
	}
	session.SetHandler(srv.enqueue)

	srv.wg.Add(1)
	go srv.run()
	return srv
}

func (s *Server) enqueue(cmd signaling.Command) {
	select {
	case s.queue <- cmd:
	case <-s.done:
	}
}

func (s *Server) run() {
	defer s.wg.Done()
	for {
		select {
		case cmd := <-s.queue:
			s.handle(cmd)
		case <-s.done:
			return
		}
	}
}

func (s *Server) handle(cmd signaling.Command) {
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-s.done:
			return
		}
	}

	switch c := cmd.(type) {
	case signaling.UpdateTracks:
		s.mu.Lock()
		if !s.autoApprove {
			s.pending = append(s.pending, c)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.apply(c)
	case signaling.SynchronizeMe:
		s.mu.Lock()
		s.syncCount++
		s.mu.Unlock()
		s.session.Emit(signaling.StateSynchronized{State: s.Snapshot()})
	}
}

func (s *Server) apply(cmd signaling.UpdateTracks) {
	s.mu.Lock()
	peer, ok := s.peers[cmd.PeerID]
	if !ok {
		s.mu.Unlock()
		return
	}

	var updates []signaling.PeerUpdate
	for _, p := range cmd.TracksPatches {
		track, ok := peer.tracks[p.ID]
		if !ok {
			continue
		}
		patch := signaling.TrackPatchEvent{ID: p.ID}
		if p.Enabled != nil {
			enabled := *p.Enabled
			if forced, ok := s.forced[p.ID]; ok {
				enabled = forced
			}
			track.EnabledIndividual = enabled
			track.EnabledGeneral = enabled
			patch.EnabledIndividual = signaling.Bool(enabled)
			patch.EnabledGeneral = signaling.Bool(enabled)
		}
		if p.Muted != nil {
			track.Muted = *p.Muted
			patch.Muted = signaling.Bool(*p.Muted)
		}
		updates = append(updates, signaling.PeerUpdate{Updated: &patch})
	}
	s.mu.Unlock()

	if len(updates) > 0 {
		s.session.Emit(signaling.PeerUpdated{PeerID: cmd.PeerID, Updates: updates})
	}
}

// AddPeer регистрирует peer и отправляет клиенту PeerCreated
func (s *Server) AddPeer(ev signaling.PeerCreated) {
	peer := &serverPeer{
		created: ev,
		tracks:  make(map[signaling.TrackID]*signaling.Track, len(ev.Tracks)),
	}
	for i := range ev.Tracks {
		t := ev.Tracks[i]
		peer.order = append(peer.order, t.ID)
		peer.tracks[t.ID] = &t
	}

	s.mu.Lock()
	s.peers[ev.PeerID] = peer
	s.mu.Unlock()

	s.session.Emit(ev)
}

// RemovePeers удаляет peers и отправляет PeersRemoved
func (s *Server) RemovePeers(ids ...signaling.PeerID) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.peers, id)
	}
	s.mu.Unlock()

	s.session.Emit(signaling.PeersRemoved{PeerIDs: ids})
}

// UpdateTrack изменяет трек по инициативе сервера
func (s *Server) UpdateTrack(peerID signaling.PeerID, patch signaling.TrackPatchEvent) {
	s.mu.Lock()
	if peer, ok := s.peers[peerID]; ok {
		if track, ok := peer.tracks[patch.ID]; ok {
			if patch.EnabledIndividual != nil {
				track.EnabledIndividual = *patch.EnabledIndividual
			}
			if patch.EnabledGeneral != nil {
				track.EnabledGeneral = *patch.EnabledGeneral
			}
			if patch.Muted != nil {
				track.Muted = *patch.Muted
			}
		}
	}
	s.mu.Unlock()

	s.session.Emit(signaling.PeerUpdated{
		PeerID:  peerID,
		Updates: []signaling.PeerUpdate{{Updated: &patch}},
	})
}

// SetAutoApprove включает или выключает подтверждение UpdateTracks.
// Неподтвержденные команды копятся до ApprovePending.
func (s *Server) SetAutoApprove(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoApprove = v
}

// ApprovePending применяет накопленные команды по порядку
func (s *Server) ApprovePending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, cmd := range pending {
		s.apply(cmd)
	}
}

// PendingCount количество неподтвержденных команд
func (s *Server) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ForceEnabled заставляет сервер отвечать на намерения трека заданным значением
func (s *Server) ForceEnabled(id signaling.TrackID, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced[id] = enabled
}

// SetResponseDelay задает задержку обработки каждой команды
func (s *Server) SetResponseDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SyncRequests количество обработанных SynchronizeMe
func (s *Server) SyncRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncCount
}

// Track возвращает серверное состояние трека
func (s *Server) Track(peerID signaling.PeerID, id signaling.TrackID) (signaling.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peer, ok := s.peers[peerID]
	if !ok {
		return signaling.Track{}, false
	}
	t, ok := peer.tracks[id]
	if !ok {
		return signaling.Track{}, false
	}
	return *t, true
}

// Snapshot возвращает авторитетное состояние комнаты
func (s *Server) Snapshot() signaling.RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := signaling.NewRoomState()
	for id, peer := range s.peers {
		ps := signaling.PeerState{
			Senders:    make(map[signaling.TrackID]signaling.SenderState),
			Receivers:  make(map[signaling.TrackID]signaling.ReceiverState),
			IceServers: peer.created.IceServers,
			ForceRelay: peer.created.ForceRelay,
		}
		for _, tid := range peer.order {
			t := peer.tracks[tid]
			if t.Direction == signaling.DirectionSend {
				ps.Senders[tid] = signaling.SenderState{
					ID:                t.ID,
					Mid:               t.Mid,
					MediaType:         t.MediaType,
					Receivers:         t.Receivers,
					EnabledIndividual: t.EnabledIndividual,
					EnabledGeneral:    t.EnabledGeneral,
					Muted:             t.Muted,
				}
			} else {
				ps.Receivers[tid] = signaling.ReceiverState{
					ID:                t.ID,
					Mid:               t.Mid,
					MediaType:         t.MediaType,
					SenderID:          t.Sender,
					EnabledIndividual: t.EnabledIndividual,
					EnabledGeneral:    t.EnabledGeneral,
					Muted:             t.Muted,
				}
			}
		}
		state.Peers[id] = ps
	}
	return state
}

// Close останавливает обработку команд
func (s *Server) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	s.wg.Wait()
}
