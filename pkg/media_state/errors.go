package media_state

import "fmt"

// ErrorCode код ошибки медиа состояния
type ErrorCode string

const (
	// CodeProhibitedState запрошенное состояние запрещено для трансивера
	CodeProhibitedState ErrorCode = "PROHIBITED_STATE"
	// CodeTransitionIntoOppositeState трансивер стабилизировался в противоположном состоянии
	CodeTransitionIntoOppositeState ErrorCode = "TRANSITION_INTO_OPPOSITE_STATE"
	// CodeTransitionTimeout сервер не подтвердил переход вовремя
	CodeTransitionTimeout ErrorCode = "TRANSITION_TIMEOUT"
)

// StateError ошибка перехода медиа состояния
type StateError struct {
	Code    ErrorCode
	Message string
	// State желаемое состояние
	State string
	Cause error
}

// Error реализует интерфейс error
func (e *StateError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.State != "" {
		msg += " (state: " + e.State + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap возвращает исходную ошибку
func (e *StateError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду
func (e *StateError) Is(target error) bool {
	t, ok := target.(*StateError)
	return ok && t.Code == e.Code
}

var (
	ErrProhibitedState             = &StateError{Code: CodeProhibitedState, Message: "prohibited state"}
	ErrTransitionIntoOppositeState = &StateError{Code: CodeTransitionIntoOppositeState, Message: "transition into opposite state"}
	ErrTransitionTimeout           = &StateError{Code: CodeTransitionTimeout, Message: "media state transition timed out"}
)

// NewProhibitedStateError создает ошибку запрещенного состояния
func NewProhibitedStateError(state MediaState, reason string) *StateError {
	return &StateError{
		Code:    CodeProhibitedState,
		Message: reason,
		State:   state.String(),
	}
}

// NewOppositeStateError создает ошибку стабилизации в противоположном состоянии
func NewOppositeStateError(desired string, cause error) *StateError {
	return &StateError{
		Code:    CodeTransitionIntoOppositeState,
		Message: "media state stabilized in the opposite state",
		State:   desired,
		Cause:   cause,
	}
}
