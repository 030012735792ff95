package tui

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/bassamadnan/mailreminder/gmail"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gravitational/trace"
	"golang.org/x/oauth2"
)

type consentModel struct {
	urls    <-chan string
	results <-chan consentDoneMsg

	authURL string
	code    string
	err     error
	aborted bool
	done    bool
	width   int
}

func newConsentModel(urls <-chan string, results <-chan consentDoneMsg) consentModel {
	return consentModel{urls: urls, results: results}
}

func (m consentModel) Init() tea.Cmd {
	return tea.Batch(
		waitForURLCmd(m.urls),
		waitForConsentCmd(m.results),
	)
}

func (m consentModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.aborted = true
			return m, tea.Quit
		}
	case authURLMsg:
		m.authURL = string(msg)
	case consentDoneMsg:
		m.code, m.err, m.done = msg.code, msg.err, true
		return m, tea.Quit
	}
	return m, nil
}

func (m consentModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Authorize Gmail access"))
	b.WriteString("\n\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString(StatusBarErrorStyle.Render("Authorization failed: " + m.err.Error()))
	case m.done:
		b.WriteString(StatusBarSuccessStyle.Render("Authorization received"))
	case m.authURL == "":
		b.WriteString(HintStyle.Render("Starting the authorization listener..."))
	default:
		b.WriteString("Open this link in your browser and grant read-only access:\n\n")
		url := m.authURL
		if m.width > 8 {
			url = lipgloss.NewStyle().Width(m.width - 8).Render(url)
		}
		b.WriteString(URLStyle.Render(url))
		b.WriteString("\n\n")
		b.WriteString(HintStyle.Render("Waiting for the redirect... [q/Esc/Ctrl+C]: abort"))
	}
	return PromptBoxStyle.Render(b.String()) + "\n"
}

// ConsentPrompt runs the loopback consent flow behind a terminal prompt.
type ConsentPrompt struct {
	Timeout time.Duration
	// Input and Output default to the terminal.
	Input  io.Reader
	Output io.Writer
}

func (c *ConsentPrompt) Consent(ctx context.Context, conf *oauth2.Config) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	urls := make(chan string, 1)
	results := make(chan consentDoneMsg, 1)
	loopback := &gmail.LoopbackConsent{
		Prompt:  func(authURL string) { urls <- authURL },
		Timeout: c.Timeout,
	}
	go func() {
		code, err := loopback.Consent(ctx, conf)
		close(urls)
		results <- consentDoneMsg{code: code, err: err}
	}()

	var opts []tea.ProgramOption
	if c.Input != nil {
		opts = append(opts, tea.WithInput(c.Input))
	}
	if c.Output != nil {
		opts = append(opts, tea.WithOutput(c.Output))
	}
	final, err := tea.NewProgram(newConsentModel(urls, results), opts...).Run()
	if err != nil {
		return "", trace.Wrap(err)
	}
	m, ok := final.(consentModel)
	if !ok {
		return "", trace.BadParameter("unexpected model %T", final)
	}
	if m.aborted {
		return "", trace.AccessDenied("authorization aborted")
	}
	return m.code, trace.Wrap(m.err)
}
