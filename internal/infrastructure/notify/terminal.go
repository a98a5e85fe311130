package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("196")).
			PaddingLeft(1).
			PaddingRight(1)
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// Terminal prints alerts as styled lines. It stands in for the desktop
// notification area when the background runs headless.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminal writes alerts to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) Name() string { return "terminal" }
func (t *Terminal) Type() string { return "terminal" }

func (t *Terminal) Notify(_ context.Context, n browser.Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.out, "%s %s\n", titleStyle.Render(n.Title), levelStyle(n.Level).Render(n.Message))
	return err
}

func levelStyle(l credibility.RiskLevel) lipgloss.Style {
	switch l {
	case credibility.RiskHigh:
		return highStyle
	case credibility.RiskMedium:
		return mediumStyle
	default:
		return lowStyle
	}
}
