package peer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

func TestUpdateLocalStream(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	var fresh int
	tp.events.OnNewLocalTrack = func(*local_media.Track) { fresh++ }

	require.NoError(t, tp.InsertTrack(sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)))
	require.NoError(t, tp.InsertTrack(sendTrack(2, signaling.MediaKindVideo, signaling.SourceDevice)))
	require.NoError(t, tp.InsertTrack(sendTrack(3, signaling.MediaKindVideo, signaling.SourceDisplay)))

	result, err := tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	require.NoError(t, err)
	assert.Equal(t, map[signaling.TrackID]media_state.MediaExchange{
		1: media_state.Enabled,
		2: media_state.Enabled,
		3: media_state.Disabled,
	}, result)
	assert.Equal(t, 2, tp.acquirer.Requests())
	assert.Equal(t, 2, fresh)

	// повторное обновление переиспользует живые треки
	_, err = tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	require.NoError(t, err)
	assert.Equal(t, 2, tp.acquirer.Requests())
	assert.Equal(t, 2, fresh)

	s, _ := tp.Sender(1)
	assert.Equal(t, 1, tp.transceiver(s).Inserts())
	assert.Equal(t, 1, s.LocalTrack().Refs())
}

func TestUpdateLocalStreamRequiredSenderUnconstrained(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	track := sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)
	track.MediaType.Required = true
	require.NoError(t, tp.InsertTrack(track))

	onlyVideo := local_media.NewMediaStreamSettings()
	onlyVideo.SetDeviceVideo(local_media.TrackConstraints{})
	tp.constraints.Constrain(onlyVideo)

	_, err := tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	assert.ErrorIs(t, err, ErrInvalidLocalTracks)
	assert.Zero(t, tp.acquirer.Requests())
}

func TestUpdateLocalStreamAcquireFailure(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	tp.acquirer.Fail(signaling.MediaKindVideo, signaling.SourceDevice, errors.New("camera busy"))
	require.NoError(t, tp.InsertTrack(sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)))
	require.NoError(t, tp.InsertTrack(sendTrack(2, signaling.MediaKindVideo, signaling.SourceDevice)))

	_, err := tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	assert.ErrorIs(t, err, local_media.ErrCouldNotGetLocalMedia)

	s, _ := tp.Sender(2)
	assert.Equal(t, LocalTrackFailed, s.LocalTrackPhase())
	assert.Zero(t, tp.media.LiveTracks(), "tracks acquired before the failure are released")
}

func TestUpdateLocalStreamInsertFailure(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	require.NoError(t, tp.InsertTrack(sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)))
	s, _ := tp.Sender(1)
	tp.transceiver(s).FailInsert(errors.New("sender closed"))

	_, err := tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	assert.ErrorIs(t, err, ErrInsertLocalTracks)
	assert.ErrorIs(t, err, ErrCouldNotInsertLocalTrack)
	assert.False(t, s.HasTrack())
}

func TestUpdateLocalStreamEndedTrack(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	tp.acquirer.EndOnAcquire(signaling.MediaKindAudio, signaling.SourceDevice)
	require.NoError(t, tp.InsertTrack(sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)))

	_, err := tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	assert.ErrorIs(t, err, local_media.ErrLocalTrackIsEnded)
}

func TestInsertDuplicateTrackRejected(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	s := insertSender(t, tp, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))
	require.NoError(t, tp.InsertTrack(recvTrack(2, signaling.MediaKindVideo)))
	r, _ := tp.Receiver(2)

	_, err := tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	require.NoError(t, err)
	track := s.LocalTrack()

	err = tp.InsertTrack(sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))
	assert.ErrorIs(t, err, ErrDuplicateTrack)
	err = tp.InsertTrack(recvTrack(2, signaling.MediaKindVideo))
	assert.ErrorIs(t, err, ErrDuplicateTrack)
	// один ID не может быть и отправителем, и получателем
	err = tp.InsertTrack(recvTrack(1, signaling.MediaKindAudio))
	assert.ErrorIs(t, err, ErrDuplicateTrack)

	assert.Len(t, tp.conn.Transceivers(), 2, "no transceiver for rejected tracks")
	got, _ := tp.Sender(1)
	assert.Same(t, s, got)
	assert.Same(t, track, s.LocalTrack())
	assert.Equal(t, 1, track.Refs())
	gotR, _ := tp.Receiver(2)
	assert.Same(t, r, gotR)
}

func TestGetTransceiverSides(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	require.NoError(t, tp.InsertTrack(sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)))
	require.NoError(t, tp.InsertTrack(sendTrack(2, signaling.MediaKindVideo, signaling.SourceDevice)))
	require.NoError(t, tp.InsertTrack(sendTrack(3, signaling.MediaKindVideo, signaling.SourceDisplay)))
	require.NoError(t, tp.InsertTrack(recvTrack(4, signaling.MediaKindVideo)))

	assert.Len(t, tp.GetTransceiverSides(signaling.MediaKindVideo, signaling.DirectionSend, nil), 2)
	display := tp.GetTransceiverSides(signaling.MediaKindVideo, signaling.DirectionSend, signaling.Source(signaling.SourceDisplay))
	require.Len(t, display, 1)
	assert.Equal(t, signaling.TrackID(3), display[0].TrackID())
	assert.Len(t, tp.GetTransceiverSides(signaling.MediaKindVideo, signaling.DirectionRecv, nil), 1)

	// захват экрана выключен настройками и находится в переходе, но не учитывается
	assert.True(t, tp.IsAllTransceiverSidesInMediaState(signaling.MediaKindVideo, signaling.DirectionSend, nil, enabled))
	assert.False(t, tp.IsAllTransceiverSidesInMediaState(signaling.MediaKindVideo, signaling.DirectionSend, nil, disabled))
}

func TestDropSendTracks(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	require.NoError(t, tp.InsertTrack(sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)))
	require.NoError(t, tp.InsertTrack(sendTrack(2, signaling.MediaKindVideo, signaling.SourceDevice)))
	_, err := tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	require.NoError(t, err)
	assert.Empty(t, tp.SendersWithoutTracks(local_media.CriteriaAll))

	tp.DropSendTracks(local_media.CriteriaAudio)

	assert.Equal(t, []signaling.TrackID{1}, tp.SendersWithoutTracks(local_media.CriteriaAll))
	assert.Len(t, tp.TrackRequests(local_media.CriteriaAll), 2)
}

func TestPeerApplySnapshot(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	require.NoError(t, tp.InsertTrack(sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)))
	require.NoError(t, tp.InsertTrack(recvTrack(2, signaling.MediaKindVideo)))
	tp.ConnectionLost()
	tp.ConnectionRecovered()
	assert.Equal(t, SyncSyncing, tp.SyncState().Current())

	snapshot := tp.AsProto()
	delete(snapshot.Receivers, 2)
	snapshot.Receivers[3] = signaling.ReceiverState{
		ID:                3,
		MediaType:         signaling.MediaType{Kind: signaling.MediaKindAudio, Source: signaling.SourceDevice},
		SenderID:          "carol",
		EnabledIndividual: true,
		EnabledGeneral:    true,
	}
	snapshot.RestartIce = true
	tp.Apply(snapshot)

	_, ok := tp.Receiver(2)
	assert.False(t, ok)
	r, ok := tp.Receiver(3)
	require.True(t, ok)
	assert.Equal(t, signaling.MemberID("carol"), r.SenderID())
	_, ok = tp.Sender(1)
	assert.True(t, ok)
	assert.True(t, tp.AsProto().RestartIce)
	assert.Equal(t, SyncSynced, tp.SyncState().Current())
}

func TestPeerClose(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	require.NoError(t, tp.InsertTrack(sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)))
	_, err := tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	require.NoError(t, err)

	require.NoError(t, tp.Close())
	assert.True(t, tp.conn.IsClosed())
	assert.True(t, tp.acquirer.Tracks()[0].Stopped())
	require.NoError(t, tp.Close())
}
