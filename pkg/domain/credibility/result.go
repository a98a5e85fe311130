// Package credibility holds the value types exchanged with the scoring service:
// check requests, the discriminated check result, risk levels and the error
// taxonomy shared by every context.
package credibility

import "strings"

// Validation categories returned by the scoring service instead of a score.
const (
	CategoryInvalidInput = "invalid_input"
	CategoryShortInput   = "short_input"
	CategoryLongInput    = "long_input"
)

// CheckRequest is the body posted to the scoring endpoint.
type CheckRequest struct {
	Text string `json:"text"`
}

// Variant identifies which shape a CheckResult carries.
type Variant string

const (
	VariantSuccess    Variant = "success"
	VariantValidation Variant = "validation"
	VariantTransport  Variant = "transport"
	VariantMalformed  Variant = "malformed"
)

// CheckResult is the payload returned by the scoring service. Exactly one of
// the success, validation or transport shapes is populated; use Variant before
// trusting Score.
type CheckResult struct {
	Score       *int     `json:"score,omitempty"`
	Category    string   `json:"category,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Tip         string   `json:"tip,omitempty"`
	Flags       []string `json:"flags,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Variant branches on Error first, then on Category, then on Score.
func (r CheckResult) Variant() Variant {
	switch {
	case r.Error != "":
		return VariantTransport
	case IsValidationCategory(r.Category):
		return VariantValidation
	case r.Score == nil || *r.Score < 0 || *r.Score > 100:
		return VariantMalformed
	default:
		return VariantSuccess
	}
}

// Risk returns the risk level of a success result. ok is false for any other
// variant.
func (r CheckResult) Risk() (level RiskLevel, ok bool) {
	if r.Variant() != VariantSuccess {
		return "", false
	}
	return LevelFor(*r.Score), true
}

// HumanCategory renders a category for display, e.g. "fabricated_claim" as
// "fabricated claim".
func (r CheckResult) HumanCategory() string {
	return strings.ReplaceAll(r.Category, "_", " ")
}

// IsValidationCategory reports whether category is one of the backend's
// validation-error categories.
func IsValidationCategory(category string) bool {
	switch category {
	case CategoryInvalidInput, CategoryShortInput, CategoryLongInput:
		return true
	default:
		return false
	}
}

// Success builds a success-variant result.
func Success(score int, category, explanation, tip string, flags ...string) CheckResult {
	return CheckResult{
		Score:       &score,
		Category:    category,
		Explanation: explanation,
		Tip:         tip,
		Flags:       flags,
	}
}
