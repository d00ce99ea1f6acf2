package local_media

import (
	"fmt"

	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// ErrorCode код ошибки получения локального медиа
type ErrorCode string

const (
	CodeGetUserMediaFailed    ErrorCode = "GET_USER_MEDIA_FAILED"
	CodeGetDisplayMediaFailed ErrorCode = "GET_DISPLAY_MEDIA_FAILED"
	CodeLocalTrackIsEnded     ErrorCode = "LOCAL_TRACK_IS_ENDED"
)

// MediaError ошибка получения локального медиа (CouldNotGetLocalMedia)
type MediaError struct {
	Code    ErrorCode
	Message string
	Kind    signaling.MediaKind
	Source  signaling.MediaSourceKind
	Cause   error
}

// Error реализует интерфейс error
func (e *MediaError) Error() string {
	msg := fmt.Sprintf("[%s] %s (%s/%s)", e.Code, e.Message, e.Kind, e.Source)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap возвращает исходную ошибку платформы
func (e *MediaError) Unwrap() error {
	return e.Cause
}

// Is сравнивает по коду; ErrCouldNotGetLocalMedia совпадает с любым кодом
func (e *MediaError) Is(target error) bool {
	t, ok := target.(*MediaError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	// ErrCouldNotGetLocalMedia любая ошибка получения локального медиа
	ErrCouldNotGetLocalMedia = &MediaError{Message: "could not get local media"}

	ErrGetUserMediaFailed    = &MediaError{Code: CodeGetUserMediaFailed, Message: "getUserMedia failed"}
	ErrGetDisplayMediaFailed = &MediaError{Code: CodeGetDisplayMediaFailed, Message: "getDisplayMedia failed"}
	ErrLocalTrackIsEnded     = &MediaError{Code: CodeLocalTrackIsEnded, Message: "local track is ended"}
)

func newAcquireError(req TrackRequest, cause error) *MediaError {
	code, msg := CodeGetUserMediaFailed, "getUserMedia failed"
	if req.Source == signaling.SourceDisplay {
		code, msg = CodeGetDisplayMediaFailed, "getDisplayMedia failed"
	}
	return &MediaError{Code: code, Message: msg, Kind: req.Kind, Source: req.Source, Cause: cause}
}
