package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// commandLog CommandSender, запоминающий команды
type commandLog struct {
	mu   sync.Mutex
	cmds []signaling.Command
}

func (l *commandLog) SendCommand(cmd signaling.Command) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmds = append(l.cmds, cmd)
}

func (l *commandLog) patches() []signaling.TrackPatchCommand {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []signaling.TrackPatchCommand
	for _, c := range l.cmds {
		if ut, ok := c.(signaling.UpdateTracks); ok {
			out = append(out, ut.TracksPatches...)
		}
	}
	return out
}

func (l *commandLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cmds)
}

func fullSettings() local_media.MediaStreamSettings {
	s := local_media.NewMediaStreamSettings()
	s.SetAudio(local_media.TrackConstraints{})
	s.SetDeviceVideo(local_media.TrackConstraints{})
	return s
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

type testPeer struct {
	*PeerState
	log         *commandLog
	acquirer    *local_media.FakeAcquirer
	media       *local_media.Manager
	conn        *FakeConnection
	constraints *local_media.LocalTracksConstraints
	failures    chan error
}

func newTestPeer(t *testing.T, settings local_media.MediaStreamSettings) *testPeer {
	t.Helper()
	return newTestPeerTimeout(t, settings, time.Second)
}

func newTestPeerTimeout(t *testing.T, settings local_media.MediaStreamSettings, timeout time.Duration) *testPeer {
	t.Helper()
	tp := &testPeer{
		log:         &commandLog{},
		acquirer:    local_media.NewFakeAcquirer(),
		conn:        &FakeConnection{},
		constraints: local_media.NewLocalTracksConstraints(settings),
		failures:    make(chan error, 8),
	}
	tp.media = local_media.NewManager(tp.acquirer, nil)
	tp.PeerState = NewPeerState(Params{
		ID:              1,
		Connection:      tp.conn,
		SendConstraints: tp.constraints,
		RecvConstraints: local_media.NewRecvConstraints(),
		Media:           tp.media,
		Commands:        tp.log,
		Timeout:         timeout,
		Events: Events{
			OnFailedLocalMedia: func(err error) { tp.failures <- err },
		},
	})
	t.Cleanup(func() { tp.Close() })
	return tp
}

func (tp *testPeer) transceiver(side TransceiverSide) *FakeTransceiver {
	return tp.conn.Transceiver(side.Mid())
}
