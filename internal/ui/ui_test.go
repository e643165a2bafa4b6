package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestSilent(t *testing.T) {
	r := Silent{}
	// Should not panic
	r.Status("test status")
	r.Progress(0, 0)
	r.Progress(3, 10)
	r.Log("")
}

func TestSilent_ImplementsInterface(t *testing.T) {
	var _ Reporter = Silent{}
	var _ Reporter = &Silent{}
}

// MockReporter records every call for assertions.
type MockReporter struct {
	StatusUpdates []string
	Steps         [][2]int
	LogMessages   []string
}

func (m *MockReporter) Status(status string) {
	m.StatusUpdates = append(m.StatusUpdates, status)
}

func (m *MockReporter) Progress(done, total int) {
	m.Steps = append(m.Steps, [2]int{done, total})
}

func (m *MockReporter) Log(msg string) {
	m.LogMessages = append(m.LogMessages, msg)
}

func TestMockReporter(t *testing.T) {
	m := &MockReporter{}

	m.Status("status1")
	m.Progress(1, 2)
	m.Progress(2, 2)
	m.Log("message1")

	if len(m.StatusUpdates) != 1 || m.StatusUpdates[0] != "status1" {
		t.Errorf("unexpected status updates: %v", m.StatusUpdates)
	}
	if len(m.Steps) != 2 || m.Steps[1] != [2]int{2, 2} {
		t.Errorf("unexpected steps: %v", m.Steps)
	}
	if len(m.LogMessages) != 1 {
		t.Errorf("expected 1 log message, got %d", len(m.LogMessages))
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Status("Apprentissage de doc.pdf")
	c.Progress(1, 3)
	c.Progress(3, 3)
	c.Progress(0, 0)
	c.Log("terminé")

	out := buf.String()
	for _, want := range []string{"Apprentissage de doc.pdf", "1/3 morceaux", "3/3 morceaux", "terminé\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "0/0") {
		t.Errorf("empty progress should be skipped: %q", out)
	}
}

func TestReporter_Polymorphic(t *testing.T) {
	var buf bytes.Buffer
	reporters := []Reporter{
		Silent{},
		&MockReporter{},
		NewConsole(&buf),
	}

	for _, r := range reporters {
		r.Status("test")
		r.Progress(1, 1)
		r.Log("test")
	}
}
