// Package tui renders the popup context in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/truthguard/pkg/application/popup"
	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/lifecycle"
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(1).
			PaddingRight(1)

	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	selectStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	riskStyles = map[credibility.RiskLevel]lipgloss.Style{
		credibility.RiskLow:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		credibility.RiskMedium: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
		credibility.RiskHigh:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
)

// refreshMsg asks the model to redraw from the agent's state.
type refreshMsg struct{}

// Model is the bubbletea model of the popup.
type Model struct {
	ctx     context.Context
	agent   *popup.Agent
	input   textarea.Model
	spinner spinner.Model
	err     error
}

// NewModel creates a popup model around agent.
func NewModel(ctx context.Context, agent *popup.Agent) Model {
	ta := textarea.New()
	ta.Placeholder = "Enter text to check (5-250 characters)"
	ta.CharLimit = 1000
	ta.ShowLineNumbers = false
	ta.SetWidth(60)
	ta.SetHeight(4)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{ctx: ctx, agent: agent, input: ta, spinner: sp}
}

func (m Model) Init() tea.Cmd {
	agent := m.agent
	return tea.Batch(textarea.Blink, m.spinner.Tick, func() tea.Msg {
		agent.WaitOpen()
		return refreshMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+s":
			m.agent.SetInput(m.input.Value())
			m.err = m.agent.Check(m.ctx)
			return m, nil
		case "ctrl+e":
			m.err = m.agent.CheckSelected(m.ctx)
			return m, nil
		case "ctrl+l":
			m.input.Reset()
			m.agent.Clear()
			m.err = nil
			return m, nil
		case "ctrl+d":
			m.agent.Dismiss()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.agent.SetInput(m.input.Value())
		m.err = nil
		return m, cmd
	case refreshMsg:
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	v := m.agent.View()
	sections := []string{headerStyle.Render("TruthGuard")}

	if v.HasSelection() {
		sections = append(sections, selectStyle.Render(
			mutedStyle.Render("Selected text")+"\n"+v.SelectionPreview+"\n"+mutedStyle.Render("[ctrl+e] Check selected text")))
	}

	counter := v.Counter
	if !v.CanSubmit && v.Input != "" {
		counter = errorStyle.Render(counter)
	} else {
		counter = mutedStyle.Render(counter)
	}
	sections = append(sections, m.input.View(), counter)

	if m.err != nil {
		sections = append(sections, errorStyle.Render(m.err.Error()))
	}
	if panel := m.panelView(v.Panel); panel != "" {
		sections = append(sections, panel)
	}

	sections = append(sections, mutedStyle.Render(fmt.Sprintf(
		"[ctrl+s] Check  [ctrl+l] Clear  [ctrl+d] Dismiss  [esc] Quit\nFull website: %s", m.agent.WebsiteURL())))
	return baseStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...)) + "\n"
}

func (m Model) panelView(s lifecycle.Snapshot) string {
	switch s.State {
	case lifecycle.StateLoading:
		return m.spinner.View() + " Checking credibility..."
	case lifecycle.StateShowingError:
		return errorStyle.Render("Error: " + s.Error)
	case lifecycle.StateShowingResult:
		return resultView(s)
	default:
		return ""
	}
}

func resultView(s lifecycle.Snapshot) string {
	if s.Result == nil || s.Result.Score == nil {
		return ""
	}
	r := s.Result
	style, ok := riskStyles[s.Risk]
	if !ok {
		style = mutedStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", style.Render(fmt.Sprintf("%d", *r.Score)), style.Render(s.Risk.Label()))
	b.WriteString(s.Risk.Description())
	if r.Category != "" {
		fmt.Fprintf(&b, "\nCategory: %s", r.HumanCategory())
	}
	if r.Explanation != "" {
		fmt.Fprintf(&b, "\n%s", r.Explanation)
	}
	if r.Tip != "" {
		fmt.Fprintf(&b, "\nTip: %s", r.Tip)
	}
	if len(r.Flags) > 0 {
		fmt.Fprintf(&b, "\nFlags: %s", strings.Join(r.Flags, ", "))
	}
	return b.String()
}

// programRenderer forwards panel transitions to a running program. Sends
// are asynchronous because the controller is locked while rendering and the
// program's View reads the controller.
type programRenderer struct {
	mu   sync.Mutex
	prog *tea.Program
}

func (r *programRenderer) set(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prog = p
}

func (r *programRenderer) Retire() {}

func (r *programRenderer) Render(lifecycle.Snapshot) {
	r.mu.Lock()
	p := r.prog
	r.mu.Unlock()
	if p != nil {
		go p.Send(refreshMsg{})
	}
}

// Run opens the popup against tabs and scorer until the user quits or ctx
// is done.
func Run(ctx context.Context, tabs browser.Tabs, scorer lifecycle.Scorer, opts ...popup.Option) error {
	r := &programRenderer{}
	agent, err := popup.New(tabs, scorer, append(opts, popup.WithRenderer(r))...)
	if err != nil {
		return err
	}
	defer agent.Close()

	prog := tea.NewProgram(NewModel(ctx, agent), tea.WithContext(ctx))
	r.set(prog)
	agent.Open(ctx)

	_, err = prog.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
