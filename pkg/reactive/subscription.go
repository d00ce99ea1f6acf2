package reactive

import (
	"context"
	"errors"
	"sync"
)

// ErrSubscriptionClosed возвращается Next после закрытия подписки и исчерпания очереди
var ErrSubscriptionClosed = errors.New("reactive: subscription closed")

// Subscription неограниченная очередь значений ячейки
type Subscription[T any] struct {
	mu      sync.Mutex
	queue   []T
	notify  chan struct{}
	closed  bool
	filter  func(T) bool
	onClose func()
}

func newSubscription[T any](filter func(T) bool, onClose func()) *Subscription[T] {
	return &Subscription[T]{
		notify:  make(chan struct{}, 1),
		filter:  filter,
		onClose: onClose,
	}
}

func (s *Subscription[T]) push(v T) {
	if s.filter != nil && !s.filter(v) {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next возвращает следующее значение, блокируясь до его появления
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			v := s.queue[0]
			var zero T
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return v, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			var zero T
			return zero, ErrSubscriptionClosed
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close отписывается от ячейки. Уже полученные значения остаются доступны Next.
func (s *Subscription[T]) Close() {
	if s.closeQueue() && s.onClose != nil {
		s.onClose()
	}
}

func (s *Subscription[T]) closeQueue() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()
	s.wake()
	return true
}
