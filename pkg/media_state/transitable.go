package media_state

import "fmt"

// StableValue стабильное значение, у которого есть противоположное
type StableValue[S any] interface {
	comparable
	Opposite() S
	String() string
}

// Transition переход из From в To
type Transition[S StableValue[S]] struct {
	From S
	To   S
}

// TransitableState либо Stable(s), либо Transition{From, To}
type TransitableState[S StableValue[S]] struct {
	from       S
	to         S
	transition bool
}

// NewStable создает стабильное состояние
func NewStable[S StableValue[S]](s S) TransitableState[S] {
	return TransitableState[S]{from: s, to: s}
}

// NewTransition создает переходное состояние
func NewTransition[S StableValue[S]](from, to S) TransitableState[S] {
	return TransitableState[S]{from: from, to: to, transition: true}
}

// IsStable true для стабильного состояния
func (t TransitableState[S]) IsStable() bool { return !t.transition }

// Stable возвращает стабильное значение
func (t TransitableState[S]) Stable() (S, bool) {
	return t.from, !t.transition
}

// Transition возвращает переход
func (t TransitableState[S]) Transition() (Transition[S], bool) {
	return Transition[S]{From: t.from, To: t.to}, t.transition
}

// Intended значение, к которому стремится состояние
func (t TransitableState[S]) Intended() S { return t.to }

// Current подтвержденное значение
func (t TransitableState[S]) Current() S { return t.from }

// TransitionTo вычисляет новое состояние для желаемого значения.
//
// Stable(x) -> Transition{x, d} при d != x.
// Разворот Transition{from, to} меняет только цель: From остается
// подтвержденным значением, и истечение перехода возвращает именно его.
// Уже запрошенное значение не меняет состояние.
func (t TransitableState[S]) TransitionTo(desired S) TransitableState[S] {
	if !t.transition {
		if t.from == desired {
			return t
		}
		return NewTransition(t.from, desired)
	}
	if t.to == desired {
		return t
	}
	return NewTransition(t.from, desired)
}

// CancelTransition возвращает Stable(From)
func (t TransitableState[S]) CancelTransition() TransitableState[S] {
	return NewStable(t.from)
}

func (t TransitableState[S]) String() string {
	if t.transition {
		return fmt.Sprintf("transition(%s -> %s)", t.from, t.to)
	}
	return fmt.Sprintf("stable(%s)", t.from)
}
