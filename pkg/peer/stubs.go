package peer

import (
	"context"
	"strconv"
	"sync"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// FakeTransceiver трансивер без медиа стека, запоминающий примененные эффекты
type FakeTransceiver struct {
	mid       string
	kind      signaling.MediaKind
	direction signaling.TrackDirection

	mu           sync.Mutex
	sendEnabled  bool
	recvEnabled  bool
	trackEnabled bool
	track        *local_media.Track
	inserts      int
	insertErr    error
}

func (t *FakeTransceiver) Mid() string { return t.mid }

func (t *FakeTransceiver) SetSendDirection(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendEnabled = enabled
}

func (t *FakeTransceiver) SetRecvDirection(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recvEnabled = enabled
}

func (t *FakeTransceiver) SetTrackEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trackEnabled = enabled
}

func (t *FakeTransceiver) InsertLocalTrack(_ context.Context, track *local_media.Track) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.insertErr != nil {
		return t.insertErr
	}
	t.track = track
	t.inserts++
	return nil
}

func (t *FakeTransceiver) DropLocalTrack() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.track = nil
	return nil
}

// FailInsert заставляет InsertLocalTrack возвращать err
func (t *FakeTransceiver) FailInsert(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertErr = err
}

// IsSending true если направление отправки включено
func (t *FakeTransceiver) IsSending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sendEnabled
}

// IsReceiving true если направление приема включено
func (t *FakeTransceiver) IsReceiving() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recvEnabled
}

// IsTrackEnabled false если трек заглушен
func (t *FakeTransceiver) IsTrackEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trackEnabled
}

// Track вставленный локальный трек
func (t *FakeTransceiver) Track() *local_media.Track {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.track
}

// Inserts количество вставок трека
func (t *FakeTransceiver) Inserts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inserts
}

// FakeConnection peer connection без медиа стека
type FakeConnection struct {
	mu           sync.Mutex
	transceivers []*FakeTransceiver
	closed       bool
}

// AddTransceiver создает FakeTransceiver с последовательным mid
func (c *FakeConnection) AddTransceiver(kind signaling.MediaKind, direction signaling.TrackDirection) (Transceiver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &FakeTransceiver{
		mid:          strconv.Itoa(len(c.transceivers)),
		kind:         kind,
		direction:    direction,
		trackEnabled: true,
	}
	c.transceivers = append(c.transceivers, t)
	return t, nil
}

// Transceiver возвращает трансивер по mid
func (c *FakeConnection) Transceiver(mid string) *FakeTransceiver {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.transceivers {
		if t.mid == mid {
			return t
		}
	}
	return nil
}

// Transceivers все трансиверы
func (c *FakeConnection) Transceivers() []*FakeTransceiver {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*FakeTransceiver, len(c.transceivers))
	copy(out, c.transceivers)
	return out
}

func (c *FakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// IsClosed true после Close
func (c *FakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FakeConnections фабрика FakeConnection, запоминающая созданные соединения
type FakeConnections struct {
	mu    sync.Mutex
	conns map[signaling.PeerID]*FakeConnection
}

// NewFakeConnections создает пустую фабрику
func NewFakeConnections() *FakeConnections {
	return &FakeConnections{conns: make(map[signaling.PeerID]*FakeConnection)}
}

// Factory возвращает ConnectionFactory
func (f *FakeConnections) Factory() ConnectionFactory {
	return func(id signaling.PeerID, _ []signaling.IceServer, _ bool) (Connection, error) {
		c := &FakeConnection{}
		f.mu.Lock()
		f.conns[id] = c
		f.mu.Unlock()
		return c, nil
	}
}

// Get возвращает соединение peer
func (f *FakeConnections) Get(id signaling.PeerID) *FakeConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[id]
}
