package room

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/peer"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

var errCameraBusy = errors.New("camera busy")

// otherCamera те же источники, но другая камера
func otherCamera() local_media.MediaStreamSettings {
	s := local_media.NewMediaStreamSettings()
	s.SetAudio(local_media.TrackConstraints{})
	s.SetDeviceVideo(local_media.TrackConstraints{DeviceID: "cam2"})
	return s
}

func requireUpdateError(t *testing.T, err error) *ConstraintsUpdateError {
	t.Helper()
	var uerr *ConstraintsUpdateError
	require.ErrorAs(t, err, &uerr)
	return uerr
}

func TestSetLocalMediaSettingsSwitchesCamera(t *testing.T) {
	f := newFixture(t, time.Second)
	f.audioVideoPeer()
	video := f.sender(1, 2)
	oldTrack := video.LocalTrack()

	require.NoError(t, f.handle.SetLocalMediaSettings(f.ctx, otherCamera(), false, false))

	assert.Equal(t, "cam2", video.LocalTrack().DeviceID())
	assert.NotSame(t, oldTrack, video.LocalTrack())
	settings, _ := f.handle.Settings()
	assert.Equal(t, "cam2", settings.DeviceVideo.Constraints.DeviceID)
	assert.Equal(t, 2, f.room().media.LiveTracks())
	assert.Equal(t, 1.0, f.metricValue("room_settings_updates_total", map[string]string{"outcome": "ok"}))
}

func TestSetLocalMediaSettingsDisablesUnconstrainedSource(t *testing.T) {
	f := newFixture(t, time.Second)
	f.audioVideoPeer()

	onlyAudio := local_media.NewMediaStreamSettings()
	onlyAudio.SetAudio(local_media.TrackConstraints{})
	require.NoError(t, f.handle.SetLocalMediaSettings(f.ctx, onlyAudio, false, false))

	video := f.sender(1, 2)
	assert.True(t, video.InMediaState(disabled))
	assert.False(t, video.HasTrack())
	assert.False(t, f.serverTrack(1, 2).EnabledIndividual)
	assert.True(t, f.sender(1, 1).InMediaState(enabled))
}

func TestSetLocalMediaSettingsErrored(t *testing.T) {
	f := newFixture(t, time.Second)
	f.audioVideoPeer()
	before, _ := f.handle.Settings()
	video := f.sender(1, 2)
	oldTrack := video.LocalTrack()

	f.acquirer.Fail(signaling.MediaKindVideo, signaling.SourceDevice, errCameraBusy)
	err := f.handle.SetLocalMediaSettings(f.ctx, otherCamera(), false, false)

	uerr := requireUpdateError(t, err)
	assert.Equal(t, OutcomeErrored, uerr.Outcome())
	require.NotNil(t, uerr.Err())
	assert.Equal(t, KindCouldNotGetLocalMedia, uerr.Err().Kind)
	assert.Nil(t, uerr.RecoverReason())
	assert.ErrorIs(t, err, errCameraBusy)

	after, _ := f.handle.Settings()
	assert.Equal(t, before, after)
	assert.Same(t, oldTrack, video.LocalTrack())
	assert.True(t, video.InMediaState(enabled))
	assert.Equal(t, 1.0, f.metricValue("room_settings_updates_total", map[string]string{"outcome": "errored"}))
}

func TestSetLocalMediaSettingsRollback(t *testing.T) {
	f := newFixture(t, time.Second)
	f.audioVideoPeer()
	before, _ := f.handle.Settings()
	video := f.sender(1, 2)
	oldTrack := video.LocalTrack()

	f.acquirer.Fail(signaling.MediaKindVideo, signaling.SourceDevice, errCameraBusy)
	err := f.handle.SetLocalMediaSettings(f.ctx, otherCamera(), false, true)

	uerr := requireUpdateError(t, err)
	assert.Equal(t, OutcomeRecovered, uerr.Outcome())
	require.NotNil(t, uerr.RecoverReason())
	assert.Equal(t, KindCouldNotGetLocalMedia, uerr.RecoverReason().Kind)
	assert.Empty(t, uerr.RecoverFailReasons())
	assert.Nil(t, uerr.Err())

	after, _ := f.handle.Settings()
	assert.Equal(t, before, after)
	assert.Same(t, oldTrack, video.LocalTrack())
	assert.True(t, video.InMediaState(enabled))
}

func TestSetLocalMediaSettingsStopFirstDisablesSenders(t *testing.T) {
	f := newFixture(t, time.Second)
	f.audioVideoPeer()
	oldTrack := f.acquirer.Tracks()[1]

	f.acquirer.Fail(signaling.MediaKindVideo, signaling.SourceDevice, errCameraBusy)
	err := f.handle.SetLocalMediaSettings(f.ctx, otherCamera(), true, false)

	uerr := requireUpdateError(t, err)
	assert.Equal(t, OutcomeRecovered, uerr.Outcome())
	assert.Equal(t, KindCouldNotGetLocalMedia, uerr.RecoverReason().Kind)

	// старая камера остановлена до получения новой
	assert.True(t, oldTrack.Stopped())
	video := f.sender(1, 2)
	assert.True(t, video.InMediaState(disabled))
	assert.False(t, video.HasTrack())
	assert.False(t, f.serverTrack(1, 2).EnabledIndividual)
	settings, _ := f.handle.Settings()
	assert.False(t, settings.IsTrackEnabled(signaling.MediaKindVideo, signaling.SourceDevice))

	// аудио не затронуто
	audio := f.sender(1, 1)
	assert.True(t, audio.InMediaState(enabled))
	assert.True(t, audio.HasTrack())
}

func TestSetLocalMediaSettingsRecoverFailed(t *testing.T) {
	f := newFixture(t, time.Second)
	f.audioVideoPeer()

	f.acquirer.Fail(signaling.MediaKindVideo, signaling.SourceDevice, errCameraBusy)
	err := f.handle.SetLocalMediaSettings(f.ctx, otherCamera(), true, true)

	uerr := requireUpdateError(t, err)
	assert.Equal(t, OutcomeRecoverFailed, uerr.Outcome())
	assert.Equal(t, KindCouldNotGetLocalMedia, uerr.RecoverReason().Kind)
	require.Len(t, uerr.RecoverFailReasons(), 1)
	assert.Equal(t, KindCouldNotGetLocalMedia, uerr.RecoverFailReasons()[0].Kind)

	// прежние настройки тоже не дали камеру, отправитель выключен
	video := f.sender(1, 2)
	assert.True(t, video.InMediaState(disabled))
	assert.Equal(t, 1.0, f.metricValue("room_settings_updates_total", map[string]string{"outcome": "recover_failed"}))
}

// micAndCamera оба источника с заданными устройствами
func micAndCamera(mic, camera string) local_media.MediaStreamSettings {
	s := local_media.NewMediaStreamSettings()
	s.SetAudio(local_media.TrackConstraints{DeviceID: mic})
	s.SetDeviceVideo(local_media.TrackConstraints{DeviceID: camera})
	return s
}

// sharedMicPeers peer 1 с микрофоном, peer 2 с микрофоном и камерой.
// Peer 2 обрабатывается вторым, поэтому отказ его камеры случается после
// того, как peer 1 уже получил новый микрофон.
func sharedMicPeers(f *fixture) {
	f.addPeer(1, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))
	f.addPeer(2,
		sendTrack(2, signaling.MediaKindAudio, signaling.SourceDevice),
		sendTrack(3, signaling.MediaKindVideo, signaling.SourceDevice))
	require.NoError(f.t, f.handle.SetLocalMediaSettings(f.ctx, micAndCamera("mic1", "cam1"), false, false))
}

func platformTrack(t *testing.T, f *fixture, deviceID string) *local_media.FakeTrack {
	t.Helper()
	for _, tr := range f.acquirer.Tracks() {
		if tr.DeviceID() == deviceID {
			return tr
		}
	}
	require.Failf(t, "no platform track", "device %s", deviceID)
	return nil
}

func TestSetLocalMediaSettingsErroredRestoresEarlierPeers(t *testing.T) {
	f := newFixture(t, time.Second)
	sharedMicPeers(f)
	before, _ := f.handle.Settings()
	mic := f.sender(1, 1)
	oldTrack := mic.LocalTrack()
	require.Equal(t, "mic1", oldTrack.DeviceID())

	f.acquirer.Fail(signaling.MediaKindVideo, signaling.SourceDevice, errCameraBusy)
	err := f.handle.SetLocalMediaSettings(f.ctx, micAndCamera("mic2", "cam2"), false, false)

	uerr := requireUpdateError(t, err)
	assert.Equal(t, OutcomeErrored, uerr.Outcome())
	assert.ErrorIs(t, err, errCameraBusy)

	after, _ := f.handle.Settings()
	assert.Equal(t, before, after)

	// peer 1 успел получить mic2, но вернулся к прежнему треку
	assert.Same(t, oldTrack, mic.LocalTrack())
	assert.True(t, mic.InMediaState(enabled))
	assert.True(t, platformTrack(t, f, "mic2").Stopped())
	assert.Equal(t, "mic1", f.sender(2, 2).LocalTrack().DeviceID())
	assert.Equal(t, "cam1", f.sender(2, 3).LocalTrack().DeviceID())
}

func TestSetLocalMediaSettingsErroredDropsTracksOfDisabledSources(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addPeer(1, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))
	f.addPeer(2, sendTrack(2, signaling.MediaKindVideo, signaling.SourceDevice))

	videoOnly := local_media.NewMediaStreamSettings()
	videoOnly.SetDeviceVideo(local_media.TrackConstraints{DeviceID: "cam1"})
	require.NoError(t, f.handle.SetLocalMediaSettings(f.ctx, videoOnly, false, false))
	mic := f.sender(1, 1)
	require.True(t, mic.InMediaState(disabled))

	f.acquirer.Fail(signaling.MediaKindVideo, signaling.SourceDevice, errCameraBusy)
	err := f.handle.SetLocalMediaSettings(f.ctx, micAndCamera("", "cam2"), false, false)

	assert.Equal(t, OutcomeErrored, requireUpdateError(t, err).Outcome())
	assert.True(t, mic.InMediaState(disabled))
	assert.False(t, mic.HasTrack())
	settings, _ := f.handle.Settings()
	assert.False(t, settings.IsTrackEnabled(signaling.MediaKindAudio, signaling.SourceDevice))
	assert.Equal(t, "cam1", f.sender(2, 2).LocalTrack().DeviceID())
}

func TestSetLocalMediaSettingsRollbackRestoresEarlierPeers(t *testing.T) {
	f := newFixture(t, time.Second)
	sharedMicPeers(f)
	before, _ := f.handle.Settings()
	mic := f.sender(1, 1)
	oldTrack := mic.LocalTrack()

	f.acquirer.Fail(signaling.MediaKindVideo, signaling.SourceDevice, errCameraBusy)
	err := f.handle.SetLocalMediaSettings(f.ctx, micAndCamera("mic2", "cam2"), false, true)

	uerr := requireUpdateError(t, err)
	assert.Equal(t, OutcomeRecovered, uerr.Outcome())
	assert.Equal(t, KindCouldNotGetLocalMedia, uerr.RecoverReason().Kind)

	after, _ := f.handle.Settings()
	assert.Equal(t, before, after)
	assert.Same(t, oldTrack, mic.LocalTrack())
	assert.True(t, platformTrack(t, f, "mic2").Stopped())
	assert.Equal(t, "cam1", f.sender(2, 3).LocalTrack().DeviceID())
}

func TestSetLocalMediaSettingsStopFirstKeepsUpdatedPeers(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addPeer(1, sendTrack(1, signaling.MediaKindAudio, signaling.SourceDevice))
	f.addPeer(2, sendTrack(2, signaling.MediaKindVideo, signaling.SourceDevice))

	videoOnly := local_media.NewMediaStreamSettings()
	videoOnly.SetDeviceVideo(local_media.TrackConstraints{})
	require.NoError(t, f.handle.SetLocalMediaSettings(f.ctx, videoOnly, false, false))
	mic := f.sender(1, 1)
	require.True(t, mic.InMediaState(disabled))
	require.False(t, mic.HasTrack())

	f.acquirer.Fail(signaling.MediaKindVideo, signaling.SourceDevice, errCameraBusy)
	err := f.handle.SetLocalMediaSettings(f.ctx, otherCamera(), true, false)

	uerr := requireUpdateError(t, err)
	assert.Equal(t, OutcomeRecovered, uerr.Outcome())

	// peer 1 получил микрофон до отказа камеры peer 2
	assert.True(t, mic.InMediaState(enabled))
	assert.True(t, mic.HasTrack())
	assert.True(t, f.serverTrack(1, 1).EnabledIndividual)

	camera := f.sender(2, 2)
	assert.True(t, camera.InMediaState(disabled))
	assert.False(t, camera.HasTrack())

	settings, _ := f.handle.Settings()
	assert.True(t, settings.IsTrackEnabled(signaling.MediaKindAudio, signaling.SourceDevice))
	assert.False(t, settings.IsTrackEnabled(signaling.MediaKindVideo, signaling.SourceDevice))
}

func TestSetLocalMediaSettingsStopFirstDisablesLaterPeers(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addPeer(1, sendTrack(1, signaling.MediaKindVideo, signaling.SourceDevice))
	f.addPeer(2,
		sendTrack(2, signaling.MediaKindAudio, signaling.SourceDevice),
		sendTrack(3, signaling.MediaKindVideo, signaling.SourceDevice))

	f.acquirer.Fail(signaling.MediaKindVideo, signaling.SourceDevice, errCameraBusy)
	err := f.handle.SetLocalMediaSettings(f.ctx, otherCamera(), true, false)

	assert.Equal(t, OutcomeRecovered, requireUpdateError(t, err).Outcome())

	// камера peer 2 остановлена до отказа peer 1 и тоже выключается
	for _, camera := range []*peer.SenderState{f.sender(1, 1), f.sender(2, 3)} {
		assert.True(t, camera.InMediaState(disabled))
		assert.False(t, camera.HasTrack())
	}
	assert.True(t, f.sender(2, 2).InMediaState(enabled))
	assert.True(t, f.sender(2, 2).HasTrack())
}
