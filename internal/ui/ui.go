// Package ui reports long-running work such as training to a terminal.
package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

type Reporter interface {
	Status(status string)
	Progress(done, total int)
	Log(msg string)
}

type Silent struct{}

func (Silent) Status(string)     {}
func (Silent) Progress(int, int) {}
func (Silent) Log(string)        {}

var (
	statusStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
)

// Console writes one line per update. Progress lines are rewritten in
// place with a carriage return and terminated once done reaches total.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Status(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, statusStyle.Render(status))
}

func (c *Console) Progress(done, total int) {
	if total <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	line := fmt.Sprintf("  %d/%d morceaux", done, total)
	if done >= total {
		fmt.Fprintln(c.out, "\r"+doneStyle.Render(line))
		return
	}
	fmt.Fprint(c.out, "\r"+line)
}

func (c *Console) Log(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, msg)
}
