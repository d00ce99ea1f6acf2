package mockSession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/webrtc_client/pkg/signaling"
)

func audioSender(id signaling.TrackID) signaling.Track {
	return signaling.Track{
		ID:                id,
		Direction:         signaling.DirectionSend,
		MediaType:         signaling.MediaType{Kind: signaling.MediaKindAudio},
		EnabledIndividual: true,
		EnabledGeneral:    true,
	}
}

func nextEvent(t *testing.T, s *Session) signaling.Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	return nil
}

func TestServerAnswersUpdateTracks(t *testing.T) {
	session := NewSession()
	srv := NewServer(session)
	defer srv.Close()

	srv.AddPeer(signaling.PeerCreated{PeerID: 1, Tracks: []signaling.Track{audioSender(10)}})
	_, ok := nextEvent(t, session).(signaling.PeerCreated)
	require.True(t, ok)

	session.SendCommand(signaling.UpdateTracks{
		PeerID:        1,
		TracksPatches: []signaling.TrackPatchCommand{{ID: 10, Enabled: signaling.Bool(false)}},
	})

	ev, ok := nextEvent(t, session).(signaling.PeerUpdated)
	require.True(t, ok)
	require.Len(t, ev.Updates, 1)
	patch := ev.Updates[0].Updated
	assert.Equal(t, false, *patch.EnabledIndividual)
	assert.Nil(t, patch.Muted)

	track, ok := srv.Track(1, 10)
	require.True(t, ok)
	assert.False(t, track.EnabledIndividual)
}

func TestServerHoldsWhenNotApproving(t *testing.T) {
	session := NewSession()
	srv := NewServer(session)
	defer srv.Close()

	srv.AddPeer(signaling.PeerCreated{PeerID: 1, Tracks: []signaling.Track{audioSender(10)}})
	nextEvent(t, session)

	srv.SetAutoApprove(false)
	session.SendCommand(signaling.UpdateTracks{
		PeerID:        1,
		TracksPatches: []signaling.TrackPatchCommand{{ID: 10, Muted: signaling.Bool(true)}},
	})
	require.Eventually(t, func() bool { return srv.PendingCount() == 1 }, time.Second, 5*time.Millisecond)

	srv.ApprovePending()
	ev := nextEvent(t, session).(signaling.PeerUpdated)
	assert.Equal(t, true, *ev.Updates[0].Updated.Muted)
}

func TestSessionDropsCommandsWhileDisconnected(t *testing.T) {
	session := NewSession()
	srv := NewServer(session)
	defer srv.Close()

	session.DropConnection()
	assert.Equal(t, signaling.ConnectionLost, <-session.ConnectionEvents())

	session.SendCommand(signaling.SynchronizeMe{State: signaling.NewRoomState()})
	assert.Len(t, session.Dropped(), 1)
	assert.Empty(t, session.Delivered())

	require.NoError(t, session.Reconnect(context.Background()))
	assert.Equal(t, signaling.ConnectionRecovered, <-session.ConnectionEvents())

	session.SendCommand(signaling.SynchronizeMe{State: signaling.NewRoomState()})
	_, ok := nextEvent(t, session).(signaling.StateSynchronized)
	assert.True(t, ok)
	assert.Equal(t, 1, srv.SyncRequests())
}
