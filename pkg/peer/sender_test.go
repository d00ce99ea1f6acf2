package peer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

var (
	enabled  = media_state.NewMediaExchange(media_state.Enabled)
	disabled = media_state.NewMediaExchange(media_state.Disabled)
	muted    = media_state.NewMute(media_state.Muted)
)

func insertSender(t *testing.T, tp *testPeer, track signaling.Track) *SenderState {
	t.Helper()
	require.NoError(t, tp.InsertTrack(track))
	s, ok := tp.Sender(track.ID)
	require.True(t, ok)
	return s
}

func TestSenderCreatedInConstraintsState(t *testing.T) {
	settings := fullSettings()
	settings.SetTrackEnabled(false, signaling.MediaKindAudio, nil)
	tp := newTestPeer(t, settings)

	s := insertSender(t, tp, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))

	tr, ok := s.MediaExchangeState().Transition()
	require.True(t, ok, "sender should start transition to the constrained state")
	assert.Equal(t, media_state.Enabled, tr.From)
	assert.Equal(t, media_state.Disabled, tr.To)

	patches := tp.log.patches()
	require.Len(t, patches, 1)
	assert.Equal(t, signaling.TrackID(1), patches[0].ID)
	assert.Equal(t, signaling.Bool(false), patches[0].Enabled)
	assert.Nil(t, patches[0].Muted)
}

func TestRequiredSenderCreatedDisabled(t *testing.T) {
	settings := fullSettings()
	settings.SetTrackEnabled(false, signaling.MediaKindAudio, nil)
	tp := newTestPeer(t, settings)

	track := sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)
	track.MediaType.Required = true
	err := tp.InsertTrack(track)

	require.Error(t, err)
	assert.ErrorIs(t, err, media_state.ErrProhibitedState)
	_, ok := tp.Sender(1)
	assert.False(t, ok)
}

func TestRequiredSenderRejectsMute(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	track := sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)
	track.MediaType.Required = true
	s := insertSender(t, tp, track)

	err := s.MediaStateTransitionTo(muted)
	assert.ErrorIs(t, err, media_state.ErrProhibitedState)

	err = s.MediaStateTransitionTo(disabled)
	assert.ErrorIs(t, err, media_state.ErrProhibitedState)

	cur, stable := s.MuteState().Stable()
	assert.True(t, stable)
	assert.Equal(t, media_state.Unmuted, cur)
	assert.Zero(t, tp.log.len())
}

func TestSenderMuteConfirmed(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	s := insertSender(t, tp, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))

	_, err := tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	require.NoError(t, err)
	require.Len(t, tp.acquirer.Tracks(), 1)
	platform := tp.acquirer.Tracks()[0]

	require.NoError(t, s.MediaStateTransitionTo(muted))
	patches := tp.log.patches()
	require.Len(t, patches, 1)
	assert.Equal(t, signaling.Bool(true), patches[0].Muted)
	assert.True(t, tp.transceiver(s).IsTrackEnabled(), "track stays live until confirmation")

	tp.PatchTrack(signaling.TrackPatchEvent{ID: 1, Muted: signaling.Bool(true)})

	assert.True(t, s.InMediaState(muted))
	assert.False(t, tp.transceiver(s).IsTrackEnabled())
	assert.False(t, platform.Enabled())
}

func TestSenderDisableDropsTrack(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	s := insertSender(t, tp, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))

	_, err := tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	require.NoError(t, err)
	require.True(t, s.HasTrack())
	platform := tp.acquirer.Tracks()[0]

	require.NoError(t, s.MediaStateTransitionTo(disabled))
	assert.True(t, s.HasTrack(), "track is kept while transition is pending")

	tp.PatchTrack(signaling.TrackPatchEvent{ID: 1, EnabledIndividual: signaling.Bool(false)})

	assert.False(t, s.HasTrack())
	assert.Nil(t, tp.transceiver(s).Track())
	assert.False(t, tp.transceiver(s).IsSending())
	assert.True(t, platform.Stopped())
	assert.Equal(t, LocalTrackStable, s.LocalTrackPhase())
}

func TestSenderEnableRequestsLocalTrack(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	track := sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)
	track.EnabledIndividual = false
	s := insertSender(t, tp, track)

	patches := tp.log.patches()
	require.Len(t, patches, 1)
	assert.Equal(t, signaling.Bool(true), patches[0].Enabled)
	assert.False(t, tp.transceiver(s).IsSending())

	tp.PatchTrack(signaling.TrackPatchEvent{ID: 1, EnabledIndividual: signaling.Bool(true)})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.WhenLocalTrackUpdated(ctx))
	assert.True(t, s.HasTrack())
	assert.True(t, tp.transceiver(s).IsSending())
	assert.Equal(t, 1, tp.acquirer.Requests())
}

func TestSenderBackgroundUpdateFailure(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	tp.acquirer.Fail(signaling.MediaKindAudio, signaling.SourceDevice, errors.New("permission denied"))
	track := sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice)
	track.EnabledIndividual = false
	s := insertSender(t, tp, track)

	tp.PatchTrack(signaling.TrackPatchEvent{ID: 1, EnabledIndividual: signaling.Bool(true)})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.WhenLocalTrackUpdated(ctx)
	assert.ErrorIs(t, err, local_media.ErrCouldNotGetLocalMedia)
	assert.Equal(t, LocalTrackFailed, s.LocalTrackPhase())

	select {
	case reported := <-tp.failures:
		assert.ErrorIs(t, reported, local_media.ErrGetUserMediaFailed)
	case <-ctx.Done():
		t.Fatal("failure was not reported")
	}
}

func TestSenderGeneralStateControlsDirection(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	s := insertSender(t, tp, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))
	assert.True(t, tp.transceiver(s).IsSending())

	tp.PatchTrack(signaling.TrackPatchEvent{ID: 1, EnabledGeneral: signaling.Bool(false)})
	assert.False(t, tp.transceiver(s).IsSending())
	assert.True(t, s.InMediaState(enabled), "individual state is not affected")

	tp.PatchTrack(signaling.TrackPatchEvent{ID: 1, EnabledGeneral: signaling.Bool(true)})
	assert.True(t, tp.transceiver(s).IsSending())
}

func TestSenderResendsPendingIntentionAfterSync(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	s := insertSender(t, tp, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))

	require.NoError(t, s.MediaStateTransitionTo(disabled))
	require.Equal(t, 1, tp.log.len())

	tp.ConnectionLost()
	assert.Equal(t, SyncDesynced, s.SyncState().Current())
	assert.True(t, s.MediaExchangeController().IsTimeoutStopped())

	tp.ConnectionRecovered()
	assert.Equal(t, SyncSyncing, s.SyncState().Current())
	assert.Equal(t, 1, tp.log.len(), "nothing is resent before the snapshot arrives")

	// сервер не видел намерения
	tp.Apply(tp.AsProto())

	assert.Equal(t, SyncSynced, s.SyncState().Current())
	assert.False(t, s.MediaExchangeController().IsTimeoutStopped())
	patches := tp.log.patches()
	require.Len(t, patches, 2)
	assert.Equal(t, patches[0], patches[1])
	_, inTransition := s.MediaExchangeState().Transition()
	assert.True(t, inTransition)
}

func TestSenderSnapshotConfirmsPendingIntention(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	s := insertSender(t, tp, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))

	require.NoError(t, s.MediaStateTransitionTo(disabled))
	tp.ConnectionLost()
	tp.ConnectionRecovered()

	snapshot := tp.AsProto()
	ss := snapshot.Senders[1]
	ss.EnabledIndividual = false
	snapshot.Senders[1] = ss
	tp.Apply(snapshot)

	assert.True(t, s.InMediaState(disabled))
	assert.Equal(t, 1, tp.log.len())
}

func TestSenderTransitionTimeout(t *testing.T) {
	tp := newTestPeerTimeout(t, fullSettings(), 200*time.Millisecond)
	s := insertSender(t, tp, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))

	require.NoError(t, s.MediaStateTransitionTo(disabled))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.WhenMediaStateStable(ctx, disabled)

	assert.ErrorIs(t, err, media_state.ErrTransitionIntoOppositeState)
	assert.ErrorIs(t, err, media_state.ErrTransitionTimeout)
	assert.True(t, s.InMediaState(enabled))
}

func TestSenderReversedMuteKeepsTrackLive(t *testing.T) {
	tp := newTestPeerTimeout(t, fullSettings(), 100*time.Millisecond)
	s := insertSender(t, tp, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))

	_, err := tp.UpdateLocalStream(context.Background(), local_media.CriteriaAll)
	require.NoError(t, err)
	platform := tp.acquirer.Tracks()[0]

	unmuted := media_state.NewMute(media_state.Unmuted)
	require.NoError(t, s.MediaStateTransitionTo(muted))
	require.NoError(t, s.MediaStateTransitionTo(unmuted))
	assert.Equal(t, media_state.Unmuted, s.MuteState().Current())

	// сервер не отвечает, переход истекает
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.WhenMediaStateStable(ctx, unmuted))

	assert.True(t, s.InMediaState(unmuted))
	assert.True(t, tp.transceiver(s).IsTrackEnabled())
	assert.True(t, platform.Enabled())
}

func TestSenderTimeoutSuspendedWhileDesynced(t *testing.T) {
	tp := newTestPeerTimeout(t, fullSettings(), 100*time.Millisecond)
	s := insertSender(t, tp, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))

	require.NoError(t, s.MediaStateTransitionTo(disabled))
	tp.ConnectionLost()

	time.Sleep(300 * time.Millisecond)
	_, inTransition := s.MediaExchangeState().Transition()
	assert.True(t, inTransition, "transition must survive while desynced")
}

func TestDisplaySenderIsNotTransitable(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	display := insertSender(t, tp, sendTrack(1, signaling.MediaKindVideo, signaling.SourceDisplay))
	device := insertSender(t, tp, sendTrack(2, signaling.MediaKindVideo, signaling.SourceDevice))

	assert.False(t, display.IsTransitable())
	assert.True(t, device.IsTransitable())
}

func TestReceiverRejectsMute(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	require.NoError(t, tp.InsertTrack(recvTrack(1, signaling.MediaKindAudio)))
	r, ok := tp.Receiver(1)
	require.True(t, ok)

	err := r.MediaStateTransitionTo(muted)
	assert.ErrorIs(t, err, media_state.ErrProhibitedState)
	assert.Zero(t, tp.log.len())
}

func TestReceiverDisable(t *testing.T) {
	tp := newTestPeer(t, fullSettings())
	require.NoError(t, tp.InsertTrack(recvTrack(1, signaling.MediaKindVideo)))
	r, ok := tp.Receiver(1)
	require.True(t, ok)
	require.True(t, tp.transceiver(r).IsReceiving())

	require.NoError(t, r.MediaStateTransitionTo(disabled))
	patches := tp.log.patches()
	require.Len(t, patches, 1)
	assert.Equal(t, signaling.Bool(false), patches[0].Enabled)
	assert.True(t, tp.transceiver(r).IsReceiving())

	tp.PatchTrack(signaling.TrackPatchEvent{ID: 1, EnabledIndividual: signaling.Bool(false)})
	assert.False(t, tp.transceiver(r).IsReceiving())

	tp.PatchTrack(signaling.TrackPatchEvent{ID: 1, Muted: signaling.Bool(true)})
	assert.True(t, r.IsMutedRemotely())
}
