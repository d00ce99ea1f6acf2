package media_state

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arzzra/webrtc_client/pkg/reactive"
)

// DefaultTransitionTimeout время, за которое сервер должен подтвердить переход
const DefaultTransitionTimeout = 10 * time.Second

// Controller владеет TransitableState одного трансивера.
//
// Переход запускает таймер; если сервер не подтвердил переход до срабатывания,
// состояние откатывается в Stable(From). Таймер приостанавливается на время
// потери соединения с сервером.
type Controller[S StableValue[S]] struct {
	state   *reactive.Cell[TransitableState[S]]
	timeout time.Duration

	mu             sync.Mutex
	timer          *TransitionTimer
	timeoutStopped bool
	onTimeout      []func(Transition[S])

	timeouts atomic.Uint64
}

// NewController создает контроллер в состоянии Stable(initial)
func NewController[S StableValue[S]](initial S, timeout time.Duration) *Controller[S] {
	if timeout <= 0 {
		timeout = DefaultTransitionTimeout
	}
	c := &Controller[S]{
		state:   reactive.NewCell(NewStable(initial)),
		timeout: timeout,
	}
	c.state.Watch(c.onStateChange)
	return c
}

// onStateChange перевооружает таймер на каждую новую фазу перехода
func (c *Controller[S]) onStateChange(st TransitableState[S]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Cancel()
		c.timer = nil
	}
	if tr, ok := st.Transition(); ok {
		c.timer = NewTransitionTimer(c.timeout, c.timeoutStopped, func() { c.expire(tr) })
	}
}

func (c *Controller[S]) expire(tr Transition[S]) {
	expired := c.state.Update(func(cur TransitableState[S]) TransitableState[S] {
		if t, ok := cur.Transition(); ok && t == tr {
			// счетчик увеличивается до уведомления ожидающих
			c.timeouts.Add(1)
			return NewStable(tr.From)
		}
		return cur
	})
	if !expired {
		return
	}

	c.mu.Lock()
	hooks := make([]func(Transition[S]), len(c.onTimeout))
	copy(hooks, c.onTimeout)
	c.mu.Unlock()

	for _, h := range hooks {
		h(tr)
	}
}

// State возвращает текущее состояние
func (c *Controller[S]) State() TransitableState[S] {
	return c.state.Get()
}

// TransitionTo запускает переход к desired
func (c *Controller[S]) TransitionTo(desired S) {
	c.state.Update(func(cur TransitableState[S]) TransitableState[S] {
		return cur.TransitionTo(desired)
	})
}

// Update применяет подтвержденное сервером значение, схлопывая любой переход
func (c *Controller[S]) Update(v S) {
	c.state.Set(NewStable(v))
}

// StopTransitionTimeout приостанавливает таймер текущего и будущих переходов
func (c *Controller[S]) StopTransitionTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeoutStopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
}

// ResetTransitionTimeout возобновляет таймер с полной задержкой
func (c *Controller[S]) ResetTransitionTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeoutStopped = false
	if c.timer != nil {
		c.timer.Reset()
	}
}

// IsTimeoutStopped true если таймеры приостановлены
func (c *Controller[S]) IsTimeoutStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeoutStopped
}

// OnTransitionTimeout регистрирует обработчик истечения перехода
func (c *Controller[S]) OnTransitionTimeout(fn func(Transition[S])) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTimeout = append(c.onTimeout, fn)
}

// Watch регистрирует синхронного наблюдателя состояния.
// Наблюдатель не должен вызывать TransitionTo или Update этого же контроллера.
func (c *Controller[S]) Watch(fn func(TransitableState[S])) func() {
	return c.state.Watch(fn)
}

// Subscribe подписка на все изменения состояния
func (c *Controller[S]) Subscribe() *reactive.Subscription[TransitableState[S]] {
	return c.state.Subscribe()
}

// SubscribeStable подписка только на стабильные состояния
func (c *Controller[S]) SubscribeStable() *reactive.Subscription[TransitableState[S]] {
	return c.state.SubscribeFunc(TransitableState[S].IsStable)
}

// SubscribeTransition подписка только на переходы
func (c *Controller[S]) SubscribeTransition() *reactive.Subscription[TransitableState[S]] {
	return c.state.SubscribeFunc(func(s TransitableState[S]) bool { return !s.IsStable() })
}

// WhenStabilized ждет любого стабильного состояния
func (c *Controller[S]) WhenStabilized(ctx context.Context) (S, error) {
	st, err := c.state.When(ctx, TransitableState[S].IsStable)
	return st.Current(), err
}

// WhenMediaStateStable ждет стабилизации.
// Стабилизация в противоположном значении дает ErrTransitionIntoOppositeState,
// причиной которой является ErrTransitionTimeout, если переход истек по таймеру.
func (c *Controller[S]) WhenMediaStateStable(ctx context.Context, desired S) error {
	start := c.timeouts.Load()
	sub := c.SubscribeStable()
	defer sub.Close()

	check := func(st TransitableState[S]) error {
		if st.Current() == desired {
			return nil
		}
		var cause error
		if c.timeouts.Load() != start {
			cause = ErrTransitionTimeout
		}
		return NewOppositeStateError(desired.String(), cause)
	}

	if st := c.state.Settled(); st.IsStable() {
		return check(st)
	}
	st, err := sub.Next(ctx)
	if err != nil {
		return err
	}
	return check(st)
}

// Close отменяет таймер и закрывает подписки
func (c *Controller[S]) Close() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Cancel()
		c.timer = nil
	}
	c.mu.Unlock()
	c.state.Close()
}

// MediaExchangeController контроллер состояния обмена медиа
type MediaExchangeController = Controller[MediaExchange]

// MuteController контроллер состояния заглушения
type MuteController = Controller[Mute]
