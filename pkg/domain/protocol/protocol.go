// Package protocol defines the messages exchanged between extension contexts:
// one request type and one response type per action, and the JSON boundary
// that validates raw messages before they are dispatched.
package protocol

import (
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
)

// Action tags a message on the wire.
type Action string

const (
	ActionCheckCredibility  Action = "checkCredibility"
	ActionGetSettings       Action = "getSettings"
	ActionSaveSettings      Action = "saveSettings"
	ActionGetSelectedText   Action = "getSelectedText"
	ActionHighlightText     Action = "highlightText"
	ActionCheckSelectedText Action = "checkSelectedText"
)

// AllActions lists every known action.
func AllActions() []Action {
	return []Action{
		ActionCheckCredibility,
		ActionGetSettings,
		ActionSaveSettings,
		ActionGetSelectedText,
		ActionHighlightText,
		ActionCheckSelectedText,
	}
}

// ExpectsReply reports whether the action defines a response. Actions without
// one are posted fire-and-forget.
func (a Action) ExpectsReply() bool {
	switch a {
	case ActionHighlightText, ActionCheckSelectedText:
		return false
	default:
		return true
	}
}

func (a Action) String() string { return string(a) }

// Request is implemented by every message a context can send.
type Request interface {
	Action() Action
}

// CheckCredibility asks the background to score text on the sender's behalf.
type CheckCredibility struct {
	Text string `json:"text"`
}

func (CheckCredibility) Action() Action { return ActionCheckCredibility }

// GetSettings asks the background for the resolved settings record.
type GetSettings struct{}

func (GetSettings) Action() Action { return ActionGetSettings }

// SaveSettings merges Settings into the stored record.
type SaveSettings struct {
	Settings settings.Partial `json:"settings"`
}

func (SaveSettings) Action() Action { return ActionSaveSettings }

// GetSelectedText asks a content agent for its page's live selection.
type GetSelectedText struct{}

func (GetSelectedText) Action() Action { return ActionGetSelectedText }

// HighlightText asks a content agent to mark text on its page.
type HighlightText struct {
	Text  string `json:"text"`
	Score int    `json:"score"`
}

func (HighlightText) Action() Action { return ActionHighlightText }

// CheckSelectedText tells a content agent to check Text, or its live
// selection when Text is empty.
type CheckSelectedText struct {
	Text string `json:"text,omitempty"`
}

func (CheckSelectedText) Action() Action { return ActionCheckSelectedText }

// Response is implemented by every reply type.
type Response interface {
	isResponse()
}

// CheckCredibilityResponse answers CheckCredibility.
type CheckCredibilityResponse struct {
	Success bool                     `json:"success"`
	Result  *credibility.CheckResult `json:"result,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// SettingsResponse answers GetSettings.
type SettingsResponse struct {
	settings.Settings
}

// SaveSettingsResponse answers SaveSettings.
type SaveSettingsResponse struct {
	Success bool `json:"success"`
}

// SelectedTextResponse answers GetSelectedText.
type SelectedTextResponse struct {
	Text string `json:"text"`
}

// ErrorResponse is the failure shape any handler may return in place of its
// normal reply.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (CheckCredibilityResponse) isResponse() {}
func (SettingsResponse) isResponse()         {}
func (SaveSettingsResponse) isResponse()     {}
func (SelectedTextResponse) isResponse()     {}
func (ErrorResponse) isResponse()            {}

// Failure builds an ErrorResponse from err.
func Failure(err error) ErrorResponse {
	return ErrorResponse{Success: false, Error: err.Error()}
}

// CheckFailure builds a failed CheckCredibilityResponse from err.
func CheckFailure(err error) CheckCredibilityResponse {
	return CheckCredibilityResponse{Success: false, Error: err.Error()}
}
