package media_state

import (
	"sync"
	"time"
)

// TransitionTimer таймер перехода, который можно приостановить.
// Stop приостанавливает, Reset запускает заново на полную задержку.
type TransitionTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	gen     uint64
	stopped bool
	done    bool
	onFire  func()
}

// NewTransitionTimer создает таймер. При stopped=true таймер не запущен до Reset.
func NewTransitionTimer(delay time.Duration, stopped bool, onFire func()) *TransitionTimer {
	t := &TransitionTimer{
		delay:   delay,
		stopped: stopped,
		onFire:  onFire,
	}
	if !stopped {
		t.armLocked()
	}
	return t
}

func (t *TransitionTimer) armLocked() {
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.delay, func() { t.fire(gen) })
}

func (t *TransitionTimer) fire(gen uint64) {
	t.mu.Lock()
	if t.done || t.stopped || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()

	t.onFire()
}

// Stop приостанавливает таймер
func (t *TransitionTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.stopped = true
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Reset перезапускает таймер с полной задержкой
func (t *TransitionTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.stopped = false
	if t.timer != nil {
		t.timer.Stop()
	}
	t.armLocked()
}

// Cancel окончательно отменяет таймер
func (t *TransitionTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

// IsStopped true если таймер приостановлен
func (t *TransitionTimer) IsStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
