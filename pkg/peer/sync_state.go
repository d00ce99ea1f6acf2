package peer

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// SyncStatus состояние синхронизации с сервером
type SyncStatus string

const (
	// SyncSynced клиент и сервер согласованы
	SyncSynced SyncStatus = "synced"
	// SyncDesynced соединение потеряно, таймеры переходов приостановлены
	SyncDesynced SyncStatus = "desynced"
	// SyncSyncing соединение восстановлено, ожидается StateSynchronized
	SyncSyncing SyncStatus = "syncing"
)

const (
	eventConnectionLost      = "connection_lost"
	eventConnectionRecovered = "connection_recovered"
	eventSynchronized        = "synchronized"
)

// SyncState машина синхронизации: Synced -> Desynced -> Syncing -> Synced
type SyncState struct {
	fsm *fsm.FSM

	mu       sync.Mutex
	watchers []func(from, to SyncStatus)
}

// NewSyncState создает машину в состоянии Synced
func NewSyncState() *SyncState {
	s := &SyncState{}
	s.fsm = fsm.NewFSM(
		string(SyncSynced),
		fsm.Events{
			{Name: eventConnectionLost, Src: []string{string(SyncSynced), string(SyncSyncing)}, Dst: string(SyncDesynced)},
			{Name: eventConnectionRecovered, Src: []string{string(SyncDesynced)}, Dst: string(SyncSyncing)},
			{Name: eventSynchronized, Src: []string{string(SyncSyncing), string(SyncDesynced)}, Dst: string(SyncSynced)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.notify(SyncStatus(e.Src), SyncStatus(e.Dst))
			},
		},
	)
	return s
}

// Current текущее состояние
func (s *SyncState) Current() SyncStatus {
	return SyncStatus(s.fsm.Current())
}

// ConnectionLost переводит в Desynced
func (s *SyncState) ConnectionLost() bool {
	return s.event(eventConnectionLost)
}

// ConnectionRecovered переводит в Syncing
func (s *SyncState) ConnectionRecovered() bool {
	return s.event(eventConnectionRecovered)
}

// Synchronized переводит в Synced
func (s *SyncState) Synchronized() bool {
	return s.event(eventSynchronized)
}

// Watch регистрирует наблюдателя переходов. Наблюдатель вызывается синхронно.
func (s *SyncState) Watch(fn func(from, to SyncStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// event возвращает false, если событие недопустимо в текущем состоянии
// (например, повторная потеря соединения)
func (s *SyncState) event(name string) bool {
	return s.fsm.Event(context.Background(), name) == nil
}

func (s *SyncState) notify(from, to SyncStatus) {
	s.mu.Lock()
	watchers := make([]func(from, to SyncStatus), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, w := range watchers {
		w(from, to)
	}
}
