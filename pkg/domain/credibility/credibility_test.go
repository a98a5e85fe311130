package credibility

import (
	"errors"
	"strings"
	"testing"
)

func TestLevelFor_PartitionsScoreRange(t *testing.T) {
	for s := MinScore; s <= MaxScore; s++ {
		got := LevelFor(s)
		var want RiskLevel
		switch {
		case s >= 0 && s <= 30:
			want = RiskLow
		case s > 30 && s <= 70:
			want = RiskMedium
		case s > 70 && s <= 100:
			want = RiskHigh
		}
		if got != want {
			t.Fatalf("LevelFor(%d) = %s, want %s", s, got, want)
		}
	}
}

func TestLevelFor_Boundaries(t *testing.T) {
	tests := []struct {
		score int
		want  RiskLevel
	}{
		{0, RiskLow},
		{30, RiskLow},
		{31, RiskMedium},
		{70, RiskMedium},
		{71, RiskHigh},
		{100, RiskHigh},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestShouldNotify(t *testing.T) {
	if ShouldNotify(70) {
		t.Error("70 must not notify")
	}
	if !ShouldNotify(71) {
		t.Error("71 must notify")
	}
}

func TestValidateText(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		reason ValidationReason
		want   string
	}{
		{"empty", "   ", ReasonEmpty, ""},
		{"short", "ab", ReasonTooShort, ""},
		{"multibyte", "ééé é", "", "ééé é"},
		{"trimmed", "  hello world  ", "", "hello world"},
		{"long", strings.Repeat("x", 251), ReasonTooLong, ""},
		{"max", strings.Repeat("x", 250), "", strings.Repeat("x", 250)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateText(tt.in)
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("got %q, want %q", got, tt.want)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Reason != tt.reason {
				t.Errorf("reason = %s, want %s", verr.Reason, tt.reason)
			}
		})
	}
}

func TestValidateText_ShortMessage(t *testing.T) {
	_, err := ValidateText("ab")
	if err == nil || !strings.Contains(err.Error(), "between 5 and 250 characters") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestCheckResult_Variant(t *testing.T) {
	score := 40
	bad := 140
	tests := []struct {
		name string
		r    CheckResult
		want Variant
	}{
		{"success", CheckResult{Score: &score, Category: "biased"}, VariantSuccess},
		{"validation", CheckResult{Category: CategoryShortInput, Explanation: "too short"}, VariantValidation},
		{"error first", CheckResult{Score: &score, Category: CategoryLongInput, Error: "boom"}, VariantTransport},
		{"missing score", CheckResult{Category: "false"}, VariantMalformed},
		{"score out of range", CheckResult{Score: &bad, Category: "false"}, VariantMalformed},
	}
	for _, tt := range tests {
		if got := tt.r.Variant(); got != tt.want {
			t.Errorf("%s: Variant() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestAsError(t *testing.T) {
	if err := AsError(Success(10, "factual", "", "")); err != nil {
		t.Fatalf("success must not be an error: %v", err)
	}
	err := AsError(CheckResult{Category: CategoryShortInput, Explanation: "Given input is too short"})
	if !IsValidation(err) || err.Error() != "Given input is too short" {
		t.Errorf("unexpected validation error: %v", err)
	}
	if !IsTransport(AsError(CheckResult{Error: "No text provided"})) {
		t.Error("expected transport error")
	}
}

func TestAlert(t *testing.T) {
	msg := Alert(LevelFor(85), "fabricated_claim")
	if msg != "TruthGuard detected high-risk content: fabricated_claim" {
		t.Errorf("unexpected alert %q", msg)
	}
}

func TestHumanCategory(t *testing.T) {
	r := Success(85, "fabricated_claim", "", "")
	if got := r.HumanCategory(); got != "fabricated claim" {
		t.Errorf("got %q", got)
	}
}
