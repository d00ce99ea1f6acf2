package room

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/peer"
	"github.com/arzzra/webrtc_client/pkg/signaling"
	"github.com/arzzra/webrtc_client/pkg/signaling/mockSession"
)

const waitFor = 2 * time.Second

type fixture struct {
	t        *testing.T
	ctx      context.Context
	session  *mockSession.Session
	server   *mockSession.Server
	conns    *peer.FakeConnections
	acquirer *local_media.FakeAcquirer
	reg      *prometheus.Registry
	client   *Client
	handle   *RoomHandle
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		session:  mockSession.NewSession(),
		conns:    peer.NewFakeConnections(),
		acquirer: local_media.NewFakeAcquirer(),
		reg:      prometheus.NewRegistry(),
	}
	f.server = mockSession.NewServer(f.session)

	cfg := DefaultConfig()
	cfg.TransitionTimeout = timeout
	cfg.ConnectionFactory = f.conns.Factory()
	cfg.Acquirer = f.acquirer
	cfg.MetricsRegisterer = f.reg
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := NewClient(cfg)
	require.NoError(t, err)
	f.client = client
	f.handle, err = client.InitRoom(f.session)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	f.ctx = ctx
	t.Cleanup(func() {
		cancel()
		f.client.Dispose()
		f.server.Close()
	})
	return f
}

func (f *fixture) room() *Room {
	r, ok := f.client.room(f.handle.ID())
	require.True(f.t, ok, "room is closed")
	return r
}

// addPeer создает peer на сервере и ждет, пока включенные отправители получат треки
func (f *fixture) addPeer(id signaling.PeerID, tracks ...signaling.Track) *peer.PeerState {
	f.t.Helper()
	f.server.AddPeer(signaling.PeerCreated{PeerID: id, Tracks: tracks})
	require.Eventually(f.t, func() bool {
		p, ok := f.room().peers.Get(id)
		return ok && len(p.SendersWithoutTracks(local_media.CriteriaAll)) == 0
	}, waitFor, 5*time.Millisecond)

	p, _ := f.room().peers.Get(id)
	return p
}

func (f *fixture) sender(peerID signaling.PeerID, id signaling.TrackID) *peer.SenderState {
	f.t.Helper()
	p, ok := f.room().peers.Get(peerID)
	require.True(f.t, ok)
	s, ok := p.Sender(id)
	require.True(f.t, ok)
	return s
}

func (f *fixture) receiver(peerID signaling.PeerID, id signaling.TrackID) *peer.ReceiverState {
	f.t.Helper()
	p, ok := f.room().peers.Get(peerID)
	require.True(f.t, ok)
	r, ok := p.Receiver(id)
	require.True(f.t, ok)
	return r
}

func (f *fixture) transceiver(peerID signaling.PeerID, side peer.TransceiverSide) *peer.FakeTransceiver {
	return f.conns.Get(peerID).Transceiver(side.Mid())
}

func (f *fixture) serverTrack(peerID signaling.PeerID, id signaling.TrackID) signaling.Track {
	f.t.Helper()
	t, ok := f.server.Track(peerID, id)
	require.True(f.t, ok)
	return t
}

func (f *fixture) updateTracksCount() int {
	return len(f.session.UpdateTracks())
}

// metricValue сумма счетчиков или gauge по сериям с заданными метками
func (f *fixture) metricValue(name string, labels map[string]string) float64 {
	f.t.Helper()
	mfs, err := f.reg.Gather()
	require.NoError(f.t, err)

	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			if c := m.GetCounter(); c != nil {
				sum += c.GetValue()
				continue
			}
			sum += m.GetGauge().GetValue()
		}
	}
	return sum
}

func sendTrack(id signaling.TrackID, kind signaling.MediaKind, source signaling.MediaSourceKind) signaling.Track {
	return signaling.Track{
		ID:                id,
		Direction:         signaling.DirectionSend,
		Receivers:         []signaling.MemberID{"bob"},
		MediaType:         signaling.MediaType{Kind: kind, Source: source},
		EnabledIndividual: true,
		EnabledGeneral:    true,
	}
}

func recvTrack(id signaling.TrackID, kind signaling.MediaKind) signaling.Track {
	return signaling.Track{
		ID:                id,
		Direction:         signaling.DirectionRecv,
		Sender:            "bob",
		MediaType:         signaling.MediaType{Kind: kind, Source: signaling.SourceDevice},
		EnabledIndividual: true,
		EnabledGeneral:    true,
	}
}

// audioVideoPeer peer 1 с микрофоном (1), камерой (2) и входящим видео (3)
func (f *fixture) audioVideoPeer() *peer.PeerState {
	return f.addPeer(1,
		sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice),
		sendTrack(2, signaling.MediaKindVideo, signaling.SourceDevice),
		recvTrack(3, signaling.MediaKindVideo))
}
