package pion_peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/peer"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

var (
	// ErrUnsupportedTrack платформенный трек не является *Track
	ErrUnsupportedTrack = errors.New("pion_peer: unsupported platform track")
	// ErrKindMismatch тип трека не совпадает с типом трансивера
	ErrKindMismatch = errors.New("pion_peer: track kind mismatch")
	// ErrNotSender трек вставляется во входящий трансивер
	ErrNotSender = errors.New("pion_peer: transceiver does not send")
	// ErrConnectionClosed соединение уже закрыто
	ErrConnectionClosed = errors.New("pion_peer: connection is closed")
)

// RTPHandler получает входящие пакеты трансиверов с включенным приемом
type RTPHandler func(mid string, kind signaling.MediaKind, p *rtp.Packet)

// Factory создает peer connection на общем webrtc.API
type Factory struct {
	api    *webrtc.API
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	conns     map[signaling.PeerID]*Connection
	onConnect func(*Connection)
}

// NewFactory регистрирует кодеки по умолчанию и создает фабрику
func NewFactory(cfg *Config) (*Factory, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	s := webrtc.SettingEngine{}
	if c.UDPPortMin > 0 && c.UDPPortMax >= c.UDPPortMin {
		if err := s.SetEphemeralUDPPortRange(c.UDPPortMin, c.UDPPortMax); err != nil {
			return nil, fmt.Errorf("udp port range %d-%d: %w", c.UDPPortMin, c.UDPPortMax, err)
		}
	}

	return &Factory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(s)),
		cfg:    c,
		logger: c.Logger.With(slog.String("component", "pion_peer")),
		conns:  make(map[signaling.PeerID]*Connection),
	}, nil
}

// OnConnection вызывается для каждого созданного соединения
func (f *Factory) OnConnection(fn func(*Connection)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = fn
}

// Get возвращает живое соединение peer
func (f *Factory) Get(id signaling.PeerID) (*Connection, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[id]
	return c, ok
}

// NewConnection реализует peer.ConnectionFactory
func (f *Factory) NewConnection(id signaling.PeerID, iceServers []signaling.IceServer, forceRelay bool) (peer.Connection, error) {
	cfg := webrtc.Configuration{ICEServers: f.iceServers(iceServers)}
	if forceRelay {
		cfg.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}

	pc, err := f.api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("peer %d: new peer connection: %w", id, err)
	}

	c := &Connection{
		id:      id,
		pc:      pc,
		logger:  f.logger.With(slog.Uint64("peer_id", uint64(id))),
		onClose: func() { f.forget(id) },
	}
	pc.OnTrack(c.handleRemoteTrack)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug("Состояние соединения", slog.String("state", state.String()))
	})

	f.mu.Lock()
	f.conns[id] = c
	onConnect := f.onConnect
	f.mu.Unlock()

	if onConnect != nil {
		onConnect(c)
	}
	c.logger.Debug("Peer connection создан", slog.Int("ice_servers", len(cfg.ICEServers)), slog.Bool("force_relay", forceRelay))
	return c, nil
}

func (f *Factory) forget(id signaling.PeerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conns, id)
}

func (f *Factory) iceServers(servers []signaling.IceServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(f.cfg.ICEServers)+len(servers))
	out = append(out, f.cfg.ICEServers...)
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
		}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	return out
}

// Connection peer.Connection поверх webrtc.PeerConnection
type Connection struct {
	id      signaling.PeerID
	pc      *webrtc.PeerConnection
	logger  *slog.Logger
	onClose func()

	mu           sync.Mutex
	transceivers []*Transceiver
	onRTP        RTPHandler
	closed       bool
}

// PeerConnection исходное соединение pion
func (c *Connection) PeerConnection() *webrtc.PeerConnection { return c.pc }

// OnRTP устанавливает обработчик входящих пакетов
func (c *Connection) OnRTP(fn RTPHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRTP = fn
}

// AddTransceiver реализует peer.Connection
func (c *Connection) AddTransceiver(kind signaling.MediaKind, direction signaling.TrackDirection) (peer.Transceiver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}

	codecType := webrtc.RTPCodecTypeAudio
	if kind == signaling.MediaKindVideo {
		codecType = webrtc.RTPCodecTypeVideo
	}
	init := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly}
	if direction == signaling.DirectionRecv {
		init.Direction = webrtc.RTPTransceiverDirectionRecvonly
	}

	pt, err := c.pc.AddTransceiverFromKind(codecType, init)
	if err != nil {
		return nil, fmt.Errorf("peer %d: add %s transceiver: %w", c.id, kind, err)
	}

	t := &Transceiver{
		pion:         pt,
		kind:         kind,
		direction:    direction,
		trackEnabled: true,
		sendEnabled:  direction == signaling.DirectionSend,
		recvEnabled:  direction == signaling.DirectionRecv,
		logger:       c.logger.With(slog.String("kind", kind.String()), slog.String("direction", direction.String())),
	}
	if direction == signaling.DirectionSend {
		// до вставки локального трека отправлять нечего
		if err := pt.Sender().ReplaceTrack(nil); err != nil {
			return nil, fmt.Errorf("peer %d: detach placeholder track: %w", c.id, err)
		}
	}
	c.transceivers = append(c.transceivers, t)
	return t, nil
}

// Transceivers трансиверы в порядке создания
func (c *Connection) Transceivers() []*Transceiver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Transceiver(nil), c.transceivers...)
}

// CreateOffer создает offer, применяет его локально и ждет окончания сбора кандидатов
func (c *Connection) CreateOffer(ctx context.Context) (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("peer %d: create offer: %w", c.id, err)
	}
	return c.setLocal(ctx, offer)
}

// AcceptOffer применяет удаленный offer и возвращает answer
func (c *Connection) AcceptOffer(ctx context.Context, offer string) (string, error) {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", fmt.Errorf("peer %d: set remote offer: %w", c.id, err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("peer %d: create answer: %w", c.id, err)
	}
	return c.setLocal(ctx, answer)
}

// SetAnswer применяет удаленный answer
func (c *Connection) SetAnswer(answer string) error {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("peer %d: set remote answer: %w", c.id, err)
	}
	return nil
}

func (c *Connection) setLocal(ctx context.Context, desc webrtc.SessionDescription) (string, error) {
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("peer %d: set local %s: %w", c.id, desc.Type, err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return c.pc.LocalDescription().SDP, nil
}

// Close реализует peer.Connection
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.onClose != nil {
		c.onClose()
	}
	if err := c.pc.Close(); err != nil {
		return fmt.Errorf("peer %d: close: %w", c.id, err)
	}
	c.logger.Debug("Peer connection закрыт")
	return nil
}

func (c *Connection) handleRemoteTrack(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	var t *Transceiver
	for _, tr := range c.Transceivers() {
		if tr.pion.Receiver() == receiver {
			t = tr
			break
		}
	}
	if t == nil {
		c.logger.Warn("Входящий трек без трансивера", slog.String("track", remote.ID()))
		return
	}

	go c.readLoop(t, remote)
}

func (c *Connection) readLoop(t *Transceiver, remote *webrtc.TrackRemote) {
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Debug("Чтение входящего трека завершено", slog.String("error", err.Error()))
			}
			return
		}
		if !t.IsReceiving() {
			t.dropped.Add(1)
			continue
		}

		c.mu.Lock()
		h := c.onRTP
		c.mu.Unlock()
		if h != nil {
			h(t.Mid(), t.kind, pkt)
		}
	}
}

// Transceiver peer.Transceiver поверх webrtc.RTPTransceiver
type Transceiver struct {
	pion      *webrtc.RTPTransceiver
	kind      signaling.MediaKind
	direction signaling.TrackDirection
	logger    *slog.Logger

	mu           sync.Mutex
	sendEnabled  bool
	recvEnabled  bool
	trackEnabled bool
	track        *Track
	attached     *Track

	dropped atomic.Uint64
}

// Mid пуст до применения локального описания
func (t *Transceiver) Mid() string { return t.pion.Mid() }

func (t *Transceiver) Kind() signaling.MediaKind { return t.kind }

// SetSendDirection отвязывает трек от отправителя при выключении
func (t *Transceiver) SetSendDirection(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendEnabled = enabled
	t.applyLocked()
}

func (t *Transceiver) SetRecvDirection(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recvEnabled = enabled
}

// SetTrackEnabled заглушенный трансивер не отправляет пакеты
func (t *Transceiver) SetTrackEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trackEnabled = enabled
	t.applyLocked()
}

// InsertLocalTrack привязывает трек к отправителю
func (t *Transceiver) InsertLocalTrack(ctx context.Context, track *local_media.Track) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.direction != signaling.DirectionSend {
		return ErrNotSender
	}
	pt, ok := track.Platform().(*Track)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedTrack, track.Platform())
	}
	if pt.Kind() != t.kind {
		return fmt.Errorf("%w: %s track into %s transceiver", ErrKindMismatch, pt.Kind(), t.kind)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.track = pt
	if err := t.applyLocked(); err != nil {
		t.track = nil
		return err
	}
	return nil
}

func (t *Transceiver) DropLocalTrack() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.track = nil
	return t.applyLocked()
}

// IsSending true если трек привязан к отправителю
func (t *Transceiver) IsSending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attached != nil
}

func (t *Transceiver) IsReceiving() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recvEnabled
}

// Dropped число входящих пакетов, отброшенных при выключенном приеме
func (t *Transceiver) Dropped() uint64 { return t.dropped.Load() }

// Direction желаемое направление для следующего согласования
func (t *Transceiver) Direction() webrtc.RTPTransceiverDirection {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.sendEnabled && t.recvEnabled:
		return webrtc.RTPTransceiverDirectionSendrecv
	case t.sendEnabled:
		return webrtc.RTPTransceiverDirectionSendonly
	case t.recvEnabled:
		return webrtc.RTPTransceiverDirectionRecvonly
	}
	return webrtc.RTPTransceiverDirectionInactive
}

// applyLocked приводит привязку трека к флагам. Вызывается под t.mu.
func (t *Transceiver) applyLocked() error {
	if t.direction != signaling.DirectionSend {
		return nil
	}

	want := t.track
	if !t.sendEnabled || !t.trackEnabled {
		want = nil
	}
	if want == t.attached {
		return nil
	}

	var local webrtc.TrackLocal
	if want != nil {
		local = want.Local()
	}
	if err := t.pion.Sender().ReplaceTrack(local); err != nil {
		t.logger.Error("Не удалось заменить трек отправителя", slog.String("error", err.Error()))
		return fmt.Errorf("replace track: %w", err)
	}
	t.attached = want
	return nil
}
