package room

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/peer"
)

// ErrorKind вид ошибки изменения медиа состояния
type ErrorKind string

const (
	// KindDetached комната уже закрыта
	KindDetached ErrorKind = "DETACHED"
	// KindInvalidLocalTracks настройки не позволяют получить нужные треки
	KindInvalidLocalTracks ErrorKind = "INVALID_LOCAL_TRACKS"
	// KindCouldNotGetLocalMedia платформа не выдала локальное медиа
	KindCouldNotGetLocalMedia ErrorKind = "COULD_NOT_GET_LOCAL_MEDIA"
	// KindInsertLocalTracks полученные треки не удалось вставить в трансиверы
	KindInsertLocalTracks ErrorKind = "INSERT_LOCAL_TRACKS"
	// KindProhibitedState запрошенное состояние запрещено
	KindProhibitedState ErrorKind = "PROHIBITED_STATE"
	// KindTransitionIntoOppositeState трек стабилизировался в противоположном состоянии
	KindTransitionIntoOppositeState ErrorKind = "TRANSITION_INTO_OPPOSITE_STATE"
	// KindInternal прочие ошибки, например отмена контекста
	KindInternal ErrorKind = "INTERNAL"
)

// ChangeMediaStateError ошибка операции изменения медиа состояния
type ChangeMediaStateError struct {
	Kind    ErrorKind
	Message string
	Cause   error
	// RollbackErr ошибка компенсирующего перехода, если откат тоже не удался
	RollbackErr error
}

// Error реализует интерфейс error
func (e *ChangeMediaStateError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.RollbackErr != nil {
		msg += "; rollback failed: " + e.RollbackErr.Error()
	}
	return msg
}

// Unwrap возвращает исходную ошибку и ошибку отката
func (e *ChangeMediaStateError) Unwrap() []error {
	var out []error
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	if e.RollbackErr != nil {
		out = append(out, e.RollbackErr)
	}
	return out
}

// Is сравнивает ошибки по виду
func (e *ChangeMediaStateError) Is(target error) bool {
	t, ok := target.(*ChangeMediaStateError)
	return ok && t.Kind == e.Kind
}

var (
	ErrDetached                    = &ChangeMediaStateError{Kind: KindDetached, Message: "room is closed"}
	ErrInvalidLocalTracks          = &ChangeMediaStateError{Kind: KindInvalidLocalTracks, Message: "invalid local tracks"}
	ErrCouldNotGetLocalMedia       = &ChangeMediaStateError{Kind: KindCouldNotGetLocalMedia, Message: "could not get local media"}
	ErrInsertLocalTracks           = &ChangeMediaStateError{Kind: KindInsertLocalTracks, Message: "could not insert local tracks"}
	ErrProhibitedState             = &ChangeMediaStateError{Kind: KindProhibitedState, Message: "prohibited media state"}
	ErrTransitionIntoOppositeState = &ChangeMediaStateError{Kind: KindTransitionIntoOppositeState, Message: "transition into opposite state"}
)

// toChangeMediaStateError классифицирует ошибку нижнего уровня, сохраняя цепочку причин
func toChangeMediaStateError(err error) *ChangeMediaStateError {
	if err == nil {
		return nil
	}
	var cerr *ChangeMediaStateError
	if errors.As(err, &cerr) {
		return cerr
	}

	kind, msg := KindInternal, "internal error"
	switch {
	case errors.Is(err, media_state.ErrProhibitedState):
		kind, msg = KindProhibitedState, ErrProhibitedState.Message
	case errors.Is(err, media_state.ErrTransitionIntoOppositeState):
		kind, msg = KindTransitionIntoOppositeState, ErrTransitionIntoOppositeState.Message
	case errors.Is(err, local_media.ErrCouldNotGetLocalMedia):
		kind, msg = KindCouldNotGetLocalMedia, ErrCouldNotGetLocalMedia.Message
	case errors.Is(err, peer.ErrInvalidLocalTracks):
		kind, msg = KindInvalidLocalTracks, ErrInvalidLocalTracks.Message
	case errors.Is(err, peer.ErrInsertLocalTracks):
		kind, msg = KindInsertLocalTracks, ErrInsertLocalTracks.Message
	}
	return &ChangeMediaStateError{Kind: kind, Message: msg, Cause: err}
}

// withRollbackError добавляет к err ошибку неудачного отката. Вид ошибки
// определяется исходной причиной.
func withRollbackError(err, rollback error) *ChangeMediaStateError {
	out := *toChangeMediaStateError(err)
	out.RollbackErr = rollback
	return &out
}

// ConstraintsUpdateOutcome результат неудачной замены настроек локального медиа
type ConstraintsUpdateOutcome uint8

const (
	// OutcomeRecovered новые настройки не применились, прежнее состояние восстановлено
	OutcomeRecovered ConstraintsUpdateOutcome = iota + 1
	// OutcomeRecoverFailed восстановить прежнее состояние тоже не удалось
	OutcomeRecoverFailed
	// OutcomeErrored ошибка без попытки восстановления
	OutcomeErrored
)

func (o ConstraintsUpdateOutcome) String() string {
	switch o {
	case OutcomeRecovered:
		return "recovered"
	case OutcomeRecoverFailed:
		return "recover_failed"
	case OutcomeErrored:
		return "errored"
	}
	return "unknown"
}

// ConstraintsUpdateError ошибка SetLocalMediaSettings
type ConstraintsUpdateError struct {
	outcome ConstraintsUpdateOutcome
	// reason причина восстановления или ошибка для Errored
	reason *ChangeMediaStateError
	fails  []*ChangeMediaStateError
}

func recovered(reason error) *ConstraintsUpdateError {
	return &ConstraintsUpdateError{outcome: OutcomeRecovered, reason: toChangeMediaStateError(reason)}
}

func recoverFailed(reason error, fails ...error) *ConstraintsUpdateError {
	e := &ConstraintsUpdateError{outcome: OutcomeRecoverFailed, reason: toChangeMediaStateError(reason)}
	for _, f := range fails {
		e.fails = append(e.fails, toChangeMediaStateError(f))
	}
	return e
}

func errored(err error) *ConstraintsUpdateError {
	return &ConstraintsUpdateError{outcome: OutcomeErrored, reason: toChangeMediaStateError(err)}
}

// recoveryFailed превращает ошибку неудачного восстановления в RecoverFailed
// с причиной reason. Ранее накопленные причины сохраняются.
func (e *ConstraintsUpdateError) recoveryFailed(reason error) *ConstraintsUpdateError {
	if e.outcome != OutcomeRecoverFailed {
		return recoverFailed(reason, e.reason)
	}
	out := &ConstraintsUpdateError{
		outcome: OutcomeRecoverFailed,
		reason:  toChangeMediaStateError(reason),
		fails:   make([]*ChangeMediaStateError, 0, len(e.fails)+1),
	}
	out.fails = append(out.fails, e.fails...)
	out.fails = append(out.fails, e.reason)
	return out
}

// Outcome вид результата
func (e *ConstraintsUpdateError) Outcome() ConstraintsUpdateOutcome { return e.outcome }

// RecoverReason ошибка, из-за которой выполнялось восстановление.
// nil для Errored.
func (e *ConstraintsUpdateError) RecoverReason() *ChangeMediaStateError {
	if e.outcome == OutcomeErrored {
		return nil
	}
	return e.reason
}

// RecoverFailReasons ошибки, из-за которых восстановление не удалось
func (e *ConstraintsUpdateError) RecoverFailReasons() []*ChangeMediaStateError {
	out := make([]*ChangeMediaStateError, len(e.fails))
	copy(out, e.fails)
	return out
}

// Err ошибка для Errored, иначе nil
func (e *ConstraintsUpdateError) Err() *ChangeMediaStateError {
	if e.outcome != OutcomeErrored {
		return nil
	}
	return e.reason
}

// Error реализует интерфейс error
func (e *ConstraintsUpdateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "constraints update %s: %v", e.outcome, e.reason)
	for i, f := range e.fails {
		fmt.Fprintf(&b, "; recover fail %d: %v", i+1, f)
	}
	return b.String()
}

// Unwrap возвращает основную причину
func (e *ConstraintsUpdateError) Unwrap() error {
	if e.reason == nil {
		return nil
	}
	return e.reason
}
