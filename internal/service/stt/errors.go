package stt

import "fmt"

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	// KindOther is any failure without a dedicated kind; the raw code is kept.
	KindOther ErrorKind = iota
	// KindNoSpeech - the provider heard nothing it could recognize.
	KindNoSpeech
	// KindMicrophoneUnavailable - audio capture failed.
	KindMicrophoneUnavailable
	// KindPermissionDenied - the user or platform refused access.
	KindPermissionDenied
	// KindNetwork - the provider could not reach its backend.
	KindNetwork
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNoSpeech:
		return "no_speech"
	case KindMicrophoneUnavailable:
		return "microphone_unavailable"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNetwork:
		return "network"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ProviderError is a classified provider failure.
type ProviderError struct {
	Kind ErrorKind
	Code string // raw provider code, e.g. "no-speech" or a gRPC code name
	Err  error
}

// NewProviderError builds a ProviderError from a raw provider code.
func NewProviderError(code string, err error) *ProviderError {
	return &ProviderError{Kind: ParseErrorKind(code), Code: code, Err: err}
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error %s (%s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("provider error %s (%s)", e.Kind, e.Code)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ParseErrorKind maps the error codes used by browser-style recognizers.
// Unknown codes map to KindOther.
func ParseErrorKind(code string) ErrorKind {
	switch code {
	case "no-speech":
		return KindNoSpeech
	case "audio-capture":
		return KindMicrophoneUnavailable
	case "not-allowed", "service-not-allowed":
		return KindPermissionDenied
	case "network":
		return KindNetwork
	default:
		return KindOther
	}
}
