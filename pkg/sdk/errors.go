package sdk

import (
	"errors"
	"fmt"
)

// ErrUnexpectedResponse is returned when a 2xx body does not carry the
// expected shape.
var ErrUnexpectedResponse = errors.New("truthguard: unexpected response")

// APIError is returned for a request the server answered with a failure,
// such as rejected text or an unreachable scoring service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("truthguard: %d: %s", e.Status, e.Message)
}
