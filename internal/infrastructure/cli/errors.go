package cli

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/truthguard/internal/infrastructure/bridge"
	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/messaging"
	"github.com/felixgeelhaar/truthguard/pkg/storage"
)

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: 1,
	}
}

// MapError converts known domain errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	var verr *credibility.ValidationError
	if errors.As(err, &verr) {
		return NewCLIError("text rejected", fmt.Sprintf("Pass between %d and %d characters", credibility.MinTextLength, credibility.MaxTextLength), err)
	}

	var terr *credibility.TransportError
	if errors.As(err, &terr) {
		return NewCLIError("scoring service request failed",
			"Run 'truthguard health' or point TruthGuard elsewhere with 'truthguard settings set --service-url <url>'", err)
	}

	switch {
	case errors.Is(err, bridge.ErrUnavailable), errors.Is(err, bridge.ErrDisconnected):
		return NewCLIError("background not reachable", "Start it with 'truthguard serve', or pass --direct", err)
	case errors.Is(err, messaging.ErrNoReceiver):
		return NewCLIError("no receiving context", "Make sure 'truthguard serve' is running and the page has finished loading", err)
	case errors.Is(err, storage.ErrInvalidSettings):
		return NewCLIError("invalid settings", "serviceUrl must be an http or https URL", err)
	case errors.Is(err, browser.ErrNoActiveTab):
		return NewCLIError("no active tab", "Set chrome.enabled and chrome.debugger_url in the config and open a page", err)
	case errors.Is(err, browser.ErrRestrictedPage):
		return NewCLIError("page cannot be scripted", "Switch to an http or https page", err)
	}

	return err
}
