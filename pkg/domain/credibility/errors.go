package credibility

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Text length bounds, counted in characters after trimming.
const (
	MinTextLength = 5
	MaxTextLength = 250
)

// ErrGenericFailure is the message used when the service fails without saying why.
const ErrGenericFailure = "Failed to check credibility"

// ValidationReason says why a text was rejected.
type ValidationReason string

const (
	ReasonEmpty    ValidationReason = "empty"
	ReasonTooShort ValidationReason = "too_short"
	ReasonTooLong  ValidationReason = "too_long"
	// ReasonBackend marks a validation-variant result returned by the service.
	ReasonBackend ValidationReason = "backend"
)

// ValidationError is raised when text is out of bounds, either locally before
// a request is sent or by the service as a validation-variant result.
type ValidationError struct {
	Reason   ValidationReason
	Length   int
	Message  string
	Category string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// TransportError covers network failures, non-2xx responses and malformed
// payloads.
type TransportError struct {
	Message string
	Status  int
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidateText trims text and checks it against the length bounds. It returns
// the trimmed text on success.
func ValidateText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n == 0:
		return "", &ValidationError{Reason: ReasonEmpty, Message: "Please enter some text to check."}
	case n < MinTextLength:
		return "", &ValidationError{Reason: ReasonTooShort, Length: n, Message: lengthMessage()}
	case n > MaxTextLength:
		return "", &ValidationError{Reason: ReasonTooLong, Length: n, Message: lengthMessage()}
	}
	return trimmed, nil
}

// WithinBounds reports whether a raw input length allows submission. It is the
// rule behind disabling a check button.
func WithinBounds(n int) bool {
	return n >= MinTextLength && n <= MaxTextLength
}

func lengthMessage() string {
	return fmt.Sprintf("Text length must be between %d and %d characters", MinTextLength, MaxTextLength)
}

// AsError converts a non-success result into the error a consumer should
// surface. It returns nil for success results.
func AsError(r CheckResult) error {
	switch r.Variant() {
	case VariantTransport:
		return &TransportError{Message: r.Error}
	case VariantValidation:
		msg := r.Explanation
		if msg == "" {
			msg = lengthMessage()
		}
		return &ValidationError{Reason: ReasonBackend, Category: r.Category, Message: msg}
	case VariantMalformed:
		return &TransportError{Message: "Malformed response from credibility service"}
	default:
		return nil
	}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}
