package local_media

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// FakeTrack платформенный трек без реального устройства
type FakeTrack struct {
	id       string
	kind     signaling.MediaKind
	source   signaling.MediaSourceKind
	deviceID string

	mu      sync.Mutex
	enabled bool
	ended   bool
	stops   int
}

// NewFakeTrack создает включенный трек
func NewFakeTrack(kind signaling.MediaKind, source signaling.MediaSourceKind, deviceID string) *FakeTrack {
	return &FakeTrack{
		id:       uuid.NewString(),
		kind:     kind,
		source:   source,
		deviceID: deviceID,
		enabled:  true,
	}
}

func (t *FakeTrack) ID() string                            { return t.id }
func (t *FakeTrack) Kind() signaling.MediaKind             { return t.kind }
func (t *FakeTrack) SourceKind() signaling.MediaSourceKind { return t.source }
func (t *FakeTrack) DeviceID() string                      { return t.deviceID }

func (t *FakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *FakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *FakeTrack) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

// End эмулирует отключение устройства
func (t *FakeTrack) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ended = true
}

func (t *FakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ended = true
	t.stops++
}

// Stopped true если трек был остановлен
func (t *FakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops > 0
}

// FakeAcquirer Acquirer для тестов и демо: выдает FakeTrack и умеет
// отказывать по источнику
type FakeAcquirer struct {
	mu       sync.Mutex
	failures map[Criteria]error
	ended    map[Criteria]bool
	requests []TrackRequest
	tracks   []*FakeTrack
}

// NewFakeAcquirer создает acquirer без отказов
func NewFakeAcquirer() *FakeAcquirer {
	return &FakeAcquirer{
		failures: make(map[Criteria]error),
		ended:    make(map[Criteria]bool),
	}
}

// Acquire реализует Acquirer
func (a *FakeAcquirer) Acquire(ctx context.Context, req TrackRequest) ([]PlatformTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)

	key := req.Criteria()
	if err, ok := a.failures[key]; ok {
		return nil, err
	}
	t := NewFakeTrack(req.Kind, req.Source, req.Constraints.DeviceID)
	if a.ended[key] {
		t.ended = true
	}
	a.tracks = append(a.tracks, t)
	return []PlatformTrack{t}, nil
}

// Fail заставляет запросы источника завершаться ошибкой
func (a *FakeAcquirer) Fail(kind signaling.MediaKind, source signaling.MediaSourceKind, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[CriteriaFor(kind, &source)] = err
}

// Recover снимает отказ
func (a *FakeAcquirer) Recover(kind signaling.MediaKind, source signaling.MediaSourceKind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.failures, CriteriaFor(kind, &source))
}

// EndOnAcquire заставляет выдавать уже завершенные треки
func (a *FakeAcquirer) EndOnAcquire(kind signaling.MediaKind, source signaling.MediaSourceKind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ended[CriteriaFor(kind, &source)] = true
}

// Requests количество обращений к платформе
func (a *FakeAcquirer) Requests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// Tracks выданные треки
func (a *FakeAcquirer) Tracks() []*FakeTrack {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*FakeTrack, len(a.tracks))
	copy(out, a.tracks)
	return out
}
