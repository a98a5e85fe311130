package credibility

import "fmt"

// RiskLevel is the three-way classification of a credibility score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Score bounds for each level. A score s is Low when s <= LowMax, Medium when
// LowMax < s <= MediumMax and High above MediumMax.
const (
	MinScore  = 0
	LowMax    = 30
	MediumMax = 70
	MaxScore  = 100
)

// NotificationThreshold is the score above which the background alerts.
const NotificationThreshold = MediumMax

// LevelFor classifies a score in [0,100].
func LevelFor(score int) RiskLevel {
	switch {
	case score <= LowMax:
		return RiskLow
	case score <= MediumMax:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ShouldNotify reports whether a score is high enough to raise an alert.
func ShouldNotify(score int) bool {
	return score > NotificationThreshold
}

func (l RiskLevel) String() string {
	return string(l)
}

// Label returns the heading shown next to the score, e.g. "High Risk".
func (l RiskLevel) Label() string {
	switch l {
	case RiskLow:
		return "Low Risk"
	case RiskMedium:
		return "Medium Risk"
	case RiskHigh:
		return "High Risk"
	default:
		return "Unknown Risk"
	}
}

// Description returns the one-line explanation shown under the label.
func (l RiskLevel) Description() string {
	switch l {
	case RiskLow:
		return "Content appears credible"
	case RiskMedium:
		return "May contain misleading info"
	case RiskHigh:
		return "Likely contains misinformation"
	default:
		return ""
	}
}

// Alert is the message body of a high-risk notification.
func Alert(level RiskLevel, category string) string {
	return fmt.Sprintf("TruthGuard detected %s-risk content: %s", level, category)
}
