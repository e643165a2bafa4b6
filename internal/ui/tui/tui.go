// Package tui is the terminal chat client.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/intelart/internal/chat"
)

// Asker answers one chat message.
type Asker interface {
	Ask(ctx context.Context, req chat.Request) (*chat.Reply, error)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))
)

// chrome is the number of rows used around the transcript.
const chrome = 7

type replyMsg struct{ reply *chat.Reply }

type errMsg struct{ err error }

type Model struct {
	Title     string
	SessionID string
	Scene     int
	MaxScenes int
	Finished  bool
	Waiting   bool
	Quitting  bool
	Ready     bool
	Width     int
	Height    int

	transcript []string
	input      textinput.Model
	viewport   viewport.Model
	progress   progress.Model

	ctx   context.Context
	asker Asker
}

// NewModel builds a chat model. maxScenes > 0 shows the story progress bar.
func NewModel(ctx context.Context, asker Asker, title string, maxScenes int) Model {
	in := textinput.New()
	in.Placeholder = "Écris ton message…"
	in.Prompt = "> "
	in.CharLimit = 4000
	in.Focus()

	return Model{
		Title:     title,
		MaxScenes: maxScenes,
		input:     in,
		progress:  progress.New(progress.WithDefaultGradient()),
		ctx:       ctx,
		asker:     asker,
	}
}

// Transcript returns the rendered conversation lines.
func (m Model) Transcript() []string {
	return m.transcript
}

// Input returns the text currently typed.
func (m Model) Input() string {
	return m.input.Value()
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) ask(text string) tea.Cmd {
	req := chat.Request{Message: text, SessionID: m.SessionID}
	return func() tea.Msg {
		reply, err := m.asker.Ask(m.ctx, req)
		if err != nil {
			return errMsg{err}
		}
		return replyMsg{reply}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.Quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.Waiting {
				return m, nil
			}
			m.input.SetValue("")
			m.Waiting = true
			m.appendLine(userStyle.Render("Vous : ") + text)
			return m, m.ask(text)
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		h := msg.Height - chrome
		if h < 1 {
			h = 1
		}
		if !m.Ready {
			m.viewport = viewport.New(msg.Width, h)
			m.Ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = h
		}
		m.input.Width = msg.Width - 4
		m.progress.Width = msg.Width - 4
		m.refresh()

	case replyMsg:
		m.Waiting = false
		r := msg.reply
		if r.SessionID != "" {
			m.SessionID = r.SessionID
		}
		if r.MaxScenes > 0 {
			m.Scene = r.Scene
			m.MaxScenes = r.MaxScenes
			m.Finished = r.Finished
		}
		m.appendLine(infoStyle.Render("Intelart : ") + r.Response)

	case errMsg:
		m.Waiting = false
		m.appendLine(errorStyle.Render("Erreur : " + msg.err.Error()))
	}

	var cmd tea.Cmd
	if key, ok := msg.(tea.KeyMsg); ok && key.Type != tea.KeyPgUp && key.Type != tea.KeyPgDown {
		// letters belong to the input, not the viewport key map
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) appendLine(line string) {
	m.transcript = append(m.transcript, line)
	m.refresh()
}

func (m *Model) refresh() {
	if !m.Ready {
		return
	}
	body := strings.Join(m.transcript, "\n\n")
	if m.Width > 0 {
		body = lipgloss.NewStyle().Width(m.Width).Render(body)
	}
	m.viewport.SetContent(body)
	m.viewport.GotoBottom()
}

func (m Model) status() string {
	switch {
	case m.Waiting:
		return "Intelart réfléchit…"
	case m.Finished:
		return "Histoire terminée"
	case m.MaxScenes > 0:
		return fmt.Sprintf("Scène %d/%d", m.Scene, m.MaxScenes)
	default:
		return "Prêt"
	}
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initialisation…"
	}

	header := titleStyle.Render(" "+m.Title+" ") + infoStyle.Render(" "+m.status()+" ")

	var prog string
	if m.MaxScenes > 0 {
		prog = "\n" + m.progress.ViewAs(float64(m.Scene)/float64(m.MaxScenes))
	}

	view := fmt.Sprintf("%s\n\n%s\n%s\n\n%s", header, m.viewport.View(), prog, m.input.View())
	if m.Quitting {
		return view + "\n  Au revoir !\n"
	}
	return view
}

// Run starts the chat client on the terminal and blocks until the user quits.
func Run(ctx context.Context, asker Asker, title string, maxScenes int) error {
	p := tea.NewProgram(NewModel(ctx, asker, title, maxScenes), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
