package peer

import (
	"fmt"

	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// ErrorCode код ошибки peer
type ErrorCode string

const (
	// CodeInvalidLocalTracks запрос локальных треков невыполним
	CodeInvalidLocalTracks ErrorCode = "INVALID_LOCAL_TRACKS"
	// CodeInvalidMediaTrack выданный трек не подходит трансиверу
	CodeInvalidMediaTrack ErrorCode = "INVALID_MEDIA_TRACK"
	// CodeNotEnoughTracks не хватает треков для обязательных трансиверов
	CodeNotEnoughTracks ErrorCode = "NOT_ENOUGH_TRACKS"
	// CodeCouldNotInsertLocalTrack трансивер отказался принять трек
	CodeCouldNotInsertLocalTrack ErrorCode = "COULD_NOT_INSERT_LOCAL_TRACK"
	// CodeUnknownPeer peer не найден
	CodeUnknownPeer ErrorCode = "UNKNOWN_PEER"
	// CodeDuplicateTrack трек с таким ID уже есть в peer
	CodeDuplicateTrack ErrorCode = "DUPLICATE_TRACK"
)

// PeerError ошибка работы с peer
type PeerError struct {
	Code    ErrorCode
	Message string
	PeerID  signaling.PeerID
	TrackID signaling.TrackID
	Cause   error
}

// Error реализует интерфейс error
func (e *PeerError) Error() string {
	msg := fmt.Sprintf("[%s] %s (peer: %d", e.Code, e.Message, e.PeerID)
	if e.TrackID != 0 {
		msg += fmt.Sprintf(", track: %d", e.TrackID)
	}
	msg += ")"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap возвращает исходную ошибку
func (e *PeerError) Unwrap() error {
	return e.Cause
}

// Is сравнивает по коду. ErrInsertLocalTracks совпадает с любой ошибкой вставки.
func (e *PeerError) Is(target error) bool {
	t, ok := target.(*PeerError)
	if !ok {
		return false
	}
	if t == ErrInsertLocalTracks {
		return e.IsInsertLocalTracks()
	}
	return t.Code == e.Code
}

// IsInsertLocalTracks true для ошибок вставки локальных треков
func (e *PeerError) IsInsertLocalTracks() bool {
	switch e.Code {
	case CodeInvalidMediaTrack, CodeNotEnoughTracks, CodeCouldNotInsertLocalTrack:
		return true
	}
	return false
}

var (
	ErrInvalidLocalTracks = &PeerError{Code: CodeInvalidLocalTracks, Message: "invalid local tracks"}
	// ErrInsertLocalTracks любая ошибка вставки локальных треков
	ErrInsertLocalTracks  = &PeerError{Message: "insert local tracks failed"}

	ErrInvalidMediaTrack        = &PeerError{Code: CodeInvalidMediaTrack, Message: "invalid media track"}
	ErrNotEnoughTracks          = &PeerError{Code: CodeNotEnoughTracks, Message: "not enough tracks"}
	ErrCouldNotInsertLocalTrack = &PeerError{Code: CodeCouldNotInsertLocalTrack, Message: "could not insert local track"}
	ErrUnknownPeer              = &PeerError{Code: CodeUnknownPeer, Message: "unknown peer"}
	ErrDuplicateTrack           = &PeerError{Code: CodeDuplicateTrack, Message: "duplicate track"}
)

func newPeerError(code ErrorCode, peerID signaling.PeerID, trackID signaling.TrackID, msg string, cause error) *PeerError {
	return &PeerError{Code: code, Message: msg, PeerID: peerID, TrackID: trackID, Cause: cause}
}
