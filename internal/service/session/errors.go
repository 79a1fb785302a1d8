package session

import (
	"errors"

	"speech-transcript-service/internal/service/stt"
)

// Errors returned by the controller.
var (
	ErrAlreadyActive       = errors.New("session already active")
	ErrProviderStartFailed = errors.New("provider rejected start")
	ErrInvalidLanguage     = errors.New("invalid language tag")
	ErrUnknownEvent        = errors.New("unknown event")
)

// Status lines shown to the user.
const (
	StatusListening   = "Listening"
	StatusReady       = "Ready"
	StatusStartFailed = "Could not start speech recognition"

	errorPrefix = "Speech recognition error: "
)

// ClassifyError returns the kind of a provider failure and its user-facing
// message. A nil error classifies as KindOther.
func ClassifyError(err *stt.ProviderError) (stt.ErrorKind, string) {
	if err == nil {
		return stt.KindOther, errorPrefix + "unknown"
	}

	switch err.Kind {
	case stt.KindNoSpeech:
		return err.Kind, errorPrefix + "no speech was detected"
	case stt.KindMicrophoneUnavailable:
		return err.Kind, errorPrefix + "microphone is not available"
	case stt.KindPermissionDenied:
		return err.Kind, errorPrefix + "microphone use is not allowed"
	case stt.KindNetwork:
		return err.Kind, errorPrefix + "a network error occurred"
	default:
		code := err.Code
		if code == "" && err.Err != nil {
			code = err.Err.Error()
		}
		if code == "" {
			code = "unknown"
		}
		return stt.KindOther, errorPrefix + code
	}
}
