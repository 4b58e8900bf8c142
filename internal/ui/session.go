package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pdfmcp/pdfmcp/internal/query"
)

var (
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Session runs the interactive query TUI.
type Session struct {
	program *tea.Program
}

// NewSession creates an interactive session over the query service.
// Returns an error when output is not a terminal.
func NewSession(service *query.Service, out io.Writer) (*Session, error) {
	if service == nil {
		return nil, errors.New("query service is required")
	}
	if !IsTTY(out) {
		return nil, errors.New("interactive session requires a terminal")
	}

	model := newSessionModel(service)
	if DetectNoColor() {
		model.styles = NoColorStyles()
	}

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if f, ok := out.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	return &Session{program: tea.NewProgram(model, opts...)}, nil
}

// Run blocks until the user quits.
func (s *Session) Run() error {
	_, err := s.program.Run()
	return err
}

// searchDoneMsg delivers an async retrieval outcome.
type searchDoneMsg struct {
	resp *query.RetrievalResponse
	err  error
}

// sessionModel is the bubbletea model for the query session.
type sessionModel struct {
	service *query.Service

	input    textinput.Model
	spin     spinner.Model
	viewport viewport.Model
	styles   Styles

	width     int
	ready     bool
	searching bool
	quitting  bool
	lastQuery string
	results   *query.RetrievalResponse
	err       error
}

func newSessionModel(service *query.Service) sessionModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "search the corpus"
	ti.CharLimit = 512
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return sessionModel{
		service:  service,
		input:    ti,
		spin:     sp,
		viewport: viewport.New(0, 0),
		styles:   DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m sessionModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m sessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width

		_, qh := queryBoxStyle.GetFrameSize()
		_, rh := resultBoxStyle.GetFrameSize()
		reserved := 3 + qh + rh // header, status, footer
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = vh
		m.input.Width = max(20, msg.Width-8)
		m.viewport.SetContent(m.renderResults())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.searching {
				return m, nil
			}
			m.searching = true
			m.err = nil
			m.lastQuery = q
			return m, tea.Batch(m.spin.Tick, search(m.service, q))

		case "up", "down", "pgup", "pgdown", "home", "end":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd

		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

	case searchDoneMsg:
		m.searching = false
		m.results = msg.resp
		m.err = msg.err
		m.viewport.SetContent(m.renderResults())
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if !m.searching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m sessionModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	header := m.styles.Header.Render("pdfmcp query session")
	input := queryBoxStyle.Width(max(20, m.width-2)).Render(m.input.View())
	results := resultBoxStyle.Width(max(20, m.width-2)).Render(m.viewport.View())
	footer := m.styles.Dim.Render("enter search  •  up/down scroll  •  esc quit")

	return strings.Join([]string{header, input, m.statusLine(), results, footer}, "\n")
}

func (m sessionModel) statusLine() string {
	switch {
	case m.searching:
		return m.spin.View() + m.styles.Label.Render("searching...")
	case m.err != nil:
		return m.styles.Error.Render("error: " + m.err.Error())
	case m.results != nil:
		return m.styles.Label.Render(fmt.Sprintf("%d results for %q", m.results.TotalChunks, m.lastQuery))
	default:
		return m.styles.Dim.Render("ready")
	}
}

// renderResults builds the viewport content from the last response.
func (m sessionModel) renderResults() string {
	if m.err != nil {
		return m.styles.Error.Render(m.err.Error())
	}
	if m.results == nil {
		return m.styles.Dim.Render("Type a query and press enter.")
	}
	if len(m.results.Chunks) == 0 {
		return m.styles.Dim.Render(fmt.Sprintf("No matches for %q.", m.results.Query))
	}

	wrap := lipgloss.NewStyle().Width(max(20, m.viewport.Width-2))
	sep := m.styles.Dim.Render("  •  ")

	var b strings.Builder
	for i, c := range m.results.Chunks {
		title := m.styles.Active.Render(fmt.Sprintf("%d. %s", i+1, c.DocumentName))
		meta := m.styles.Label.Render(fmt.Sprintf("page %d", c.PageNumber))
		line := title + sep + meta
		if score, ok := c.Metadata["score"].(float64); ok {
			line += sep + m.styles.Score.Render(fmt.Sprintf("%.3f", score))
		}
		b.WriteString(line + "\n")

		if terms, ok := c.Metadata["matched_terms"].([]string); ok && len(terms) > 0 {
			b.WriteString(m.styles.Dim.Render("matched: "+strings.Join(terms, ", ")) + "\n")
		}

		b.WriteString(wrap.Render(excerpt(c.Content)) + "\n")
		if i < len(m.results.Chunks)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// search runs retrieval off the UI loop and reports back as a message.
func search(service *query.Service, q string) tea.Cmd {
	return func() tea.Msg {
		resp, err := service.Retrieve(context.Background(), q, 0)
		return searchDoneMsg{resp: resp, err: err}
	}
}

// excerpt collapses whitespace and bounds the preview length, cutting
// on a rune boundary.
func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	const limit = 400
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
