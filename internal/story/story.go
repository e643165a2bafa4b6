// Package story drives the fixed-length interactive story mode.
package story

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/intelart/internal/persona"
	"github.com/felixgeelhaar/intelart/internal/session"
)

// DefaultMaxScenes is the story length when none is configured.
const DefaultMaxScenes = 10

var (
	sceneMarker = regexp.MustCompile(`(?i)sc[eè]ne\s*(\d{1,2})`)
	choiceLine  = regexp.MustCompile(`\(\d\)`)
)

// Engine tracks scene progression from what the model writes.
type Engine struct {
	MaxScenes int
	persona   *persona.Persona
}

func NewEngine(p *persona.Persona, maxScenes int) *Engine {
	if maxScenes <= 0 {
		maxScenes = DefaultMaxScenes
	}
	if p == nil {
		p = persona.Default()
	}
	return &Engine{MaxScenes: maxScenes, persona: p}
}

// Prompt is the system prompt for the scene that comes after st.Scene.
func (e *Engine) Prompt(st *session.State, knowledge string) string {
	next := st.Scene + 1
	if next > e.MaxScenes {
		next = e.MaxScenes
	}
	return e.persona.StoryPrompt(next, e.MaxScenes, knowledge)
}

// Advance moves st forward after the model produced output and returns
// the text to show. The highest scene marker above the current scene wins;
// without one the story moves by a single scene. Once the last scene is
// reached, choice lines are dropped.
func (e *Engine) Advance(st *session.State, output string) string {
	next := st.Scene + 1
	if m := HighestMarker(output); m > st.Scene {
		next = m
	}
	if next > e.MaxScenes {
		next = e.MaxScenes
	}

	st.Scene = next
	st.Started = true
	if st.Scene >= e.MaxScenes {
		st.Finished = true
		return StripChoices(output)
	}
	return output
}

// Closing answers messages sent to a finished story.
func (e *Engine) Closing() string {
	return e.persona.StoryClosing(e.MaxScenes)
}

// HighestMarker returns the largest "scène N" number in text, or 0.
func HighestMarker(text string) int {
	highest := 0
	for _, m := range sceneMarker.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

// StripChoices removes every line containing a numbered choice like "(2)".
func StripChoices(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if !choiceLine.MatchString(l) {
			kept = append(kept, l)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
