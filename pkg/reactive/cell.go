package reactive

import (
	"context"
	"errors"
	"sync"
)

// ErrCellClosed возвращается ожидающим после закрытия ячейки
var ErrCellClosed = errors.New("reactive: cell closed")

type watcher[T any] struct {
	id uint64
	fn func(T)
}

// Cell наблюдаемое значение
type Cell[T comparable] struct {
	// setMu сериализует запись и вызов наблюдателей
	setMu sync.Mutex

	mu       sync.RWMutex
	value    T
	settled  T
	changed  chan struct{}
	watchers []watcher[T]
	subs     map[uint64]*Subscription[T]
	nextID   uint64
	closed   bool
}

// NewCell создает ячейку с начальным значением
func NewCell[T comparable](initial T) *Cell[T] {
	return &Cell[T]{
		value:   initial,
		settled: initial,
		changed: make(chan struct{}),
		subs:    make(map[uint64]*Subscription[T]),
	}
}

// Get возвращает текущее значение
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Settled возвращает последнее значение, уже обработанное наблюдателями
func (c *Cell[T]) Settled() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settled
}

// Set устанавливает значение. Возвращает false если значение не изменилось.
func (c *Cell[T]) Set(v T) bool {
	c.setMu.Lock()
	defer c.setMu.Unlock()
	return c.setLocked(v)
}

// Update атомарно вычисляет новое значение из текущего
func (c *Cell[T]) Update(fn func(T) T) bool {
	c.setMu.Lock()
	defer c.setMu.Unlock()
	return c.setLocked(fn(c.Get()))
}

func (c *Cell[T]) setLocked(v T) bool {
	c.mu.Lock()
	if c.closed || c.value == v {
		c.mu.Unlock()
		return false
	}
	c.value = v
	watchers := make([]watcher[T], len(c.watchers))
	copy(watchers, c.watchers)
	c.mu.Unlock()

	for _, w := range watchers {
		w.fn(v)
	}

	c.mu.Lock()
	c.settled = v
	subs := make([]*Subscription[T], 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	ch := c.changed
	c.changed = make(chan struct{})
	c.mu.Unlock()

	for _, s := range subs {
		s.push(v)
	}
	close(ch)
	return true
}

// Watch регистрирует синхронного наблюдателя.
// Возвращает функцию отписки.
func (c *Cell[T]) Watch(fn func(T)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.watchers = append(c.watchers, watcher[T]{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, w := range c.watchers {
			if w.id == id {
				c.watchers = append(c.watchers[:i], c.watchers[i+1:]...)
				return
			}
		}
	}
}

// Subscribe возвращает подписку на будущие значения
func (c *Cell[T]) Subscribe() *Subscription[T] {
	return c.SubscribeFunc(nil)
}

// SubscribeFunc возвращает подписку только на значения, удовлетворяющие pred
func (c *Cell[T]) SubscribeFunc(pred func(T) bool) *Subscription[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	sub := newSubscription[T](pred, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	})
	if c.closed {
		sub.closeQueue()
		return sub
	}
	c.subs[id] = sub
	return sub
}

// When ждет значения, удовлетворяющего pred, начиная с текущего
func (c *Cell[T]) When(ctx context.Context, pred func(T) bool) (T, error) {
	for {
		c.mu.RLock()
		v, ch, closed := c.settled, c.changed, c.closed
		c.mu.RUnlock()

		if pred(v) {
			return v, nil
		}
		if closed {
			return v, ErrCellClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// WhenEq ждет конкретного значения
func (c *Cell[T]) WhenEq(ctx context.Context, want T) error {
	_, err := c.When(ctx, func(v T) bool { return v == want })
	return err
}

// Close закрывает все подписки и будит ожидающих
func (c *Cell[T]) Close() {
	c.setMu.Lock()
	defer c.setMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[uint64]*Subscription[T])
	c.watchers = nil
	ch := c.changed
	c.mu.Unlock()

	for _, s := range subs {
		s.closeQueue()
	}
	close(ch)
}
