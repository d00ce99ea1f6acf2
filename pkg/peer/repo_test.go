package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

func newTestRepository(t *testing.T) (*Repository, *FakeConnections, *commandLog) {
	t.Helper()
	conns := NewFakeConnections()
	log := &commandLog{}
	repo := NewRepository(RepositoryParams{
		ConnectionFactory: conns.Factory(),
		SendConstraints:   local_media.NewLocalTracksConstraints(fullSettings()),
		RecvConstraints:   local_media.NewRecvConstraints(),
		Media:             local_media.NewManager(local_media.NewFakeAcquirer(), nil),
		Commands:          log,
		Timeout:           time.Second,
	})
	t.Cleanup(repo.Close)
	return repo, conns, log
}

func TestRepositoryCreate(t *testing.T) {
	repo, conns, _ := newTestRepository(t)

	p, err := repo.Create(signaling.PeerCreated{
		PeerID: 7,
		Tracks: []signaling.Track{
			sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice),
			recvTrack(2, signaling.MediaKindVideo),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, signaling.PeerID(7), p.ID())
	assert.Len(t, p.Senders(), 1)
	assert.Len(t, p.Receivers(), 1)
	assert.Len(t, conns.Get(7).Transceivers(), 2)

	got, ok := repo.Get(7)
	require.True(t, ok)
	assert.Same(t, p, got)
}

func TestRepositoryCreateKeepsValidTracks(t *testing.T) {
	repo, _, _ := newTestRepository(t)
	required := sendTrack(1, signaling.MediaKindVideo, signaling.SourceDisplay)
	required.MediaType.Required = true

	p, err := repo.Create(signaling.PeerCreated{
		PeerID: 1,
		Tracks: []signaling.Track{required, sendTrack(2, signaling.MediaKindAudio, signaling.SourceDevice)},
	})
	require.Error(t, err)
	require.NotNil(t, p)
	_, ok := p.Sender(2)
	assert.True(t, ok)
}

func TestRepositoryApply(t *testing.T) {
	repo, conns, _ := newTestRepository(t)
	_, err := repo.Create(signaling.PeerCreated{PeerID: 1, Tracks: []signaling.Track{sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)}})
	require.NoError(t, err)
	_, err = repo.Create(signaling.PeerCreated{PeerID: 2, Tracks: []signaling.Track{recvTrack(2, signaling.MediaKindAudio)}})
	require.NoError(t, err)

	repo.ConnectionLost()
	repo.ConnectionRecovered()

	state := repo.AsProto()
	delete(state.Peers, 2)
	state.Peers[3] = signaling.PeerState{
		Senders: map[signaling.TrackID]signaling.SenderState{},
		Receivers: map[signaling.TrackID]signaling.ReceiverState{
			3: {
				ID:                3,
				MediaType:         signaling.MediaType{Kind: signaling.MediaKindVideo, Source: signaling.SourceDevice},
				SenderID:          "bob",
				EnabledIndividual: true,
				EnabledGeneral:    true,
			},
		},
	}
	repo.Apply(state)

	assert.Equal(t, 2, repo.Len())
	_, ok := repo.Get(2)
	assert.False(t, ok)
	assert.True(t, conns.Get(2).IsClosed())

	p3, ok := repo.Get(3)
	require.True(t, ok)
	_, ok = p3.Receiver(3)
	assert.True(t, ok)

	p1, _ := repo.Get(1)
	assert.Equal(t, SyncSynced, p1.SyncState().Current())
}
