package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// namePlaceholder is substituted with Persona.Name in every text field.
const namePlaceholder = "{name}"

// repliesPlaceholder marks where Identity places the unknown replies. A
// personality without it gets them appended.
const repliesPlaceholder = "{unknown_replies}"

// Persona is the assistant's identity: who it claims to be and how it
// answers when it does not know something.
type Persona struct {
	Name           string   `json:"name" yaml:"name"`
	Personality    string   `json:"personality" yaml:"personality"`
	UnknownReplies []string `json:"unknown_replies" yaml:"unknown_replies"`
	StoryPremise   string   `json:"story_premise" yaml:"story_premise"`
}

// ValidationResult represents the outcome of a linting pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// Default returns the built-in Intelart persona.
func Default() *Persona {
	return &Persona{
		Name:           "Intelart",
		Personality:    defaultPersonality,
		UnknownReplies: append([]string(nil), defaultUnknownReplies...),
		StoryPremise:   defaultStoryPremise,
	}
}

// Load reads a persona from a file (JSON or YAML). Empty fields keep the
// defaults so a file can override only the name, for instance.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}

	var p Persona
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON persona: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML persona: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported persona format: %s (use .json or .yaml)", ext)
	}

	def := Default()
	if p.Name == "" {
		p.Name = def.Name
	}
	if p.Personality == "" {
		p.Personality = def.Personality
	}
	if p.UnknownReplies == nil {
		p.UnknownReplies = def.UnknownReplies
	}
	if p.StoryPremise == "" {
		p.StoryPremise = def.StoryPremise
	}
	return &p, nil
}

// Validate checks the persona for completeness.
func Validate(p Persona) ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}

	if strings.TrimSpace(p.Name) == "" {
		res.Valid = false
		res.Errors = append(res.Errors, "Name is required")
	}

	if strings.TrimSpace(p.Personality) == "" {
		res.Valid = false
		res.Errors = append(res.Errors, "Personality is required")
	} else if len(p.Personality) < 40 {
		res.Warnings = append(res.Warnings, "Personality is very short; the model will improvise")
	}

	if len(p.UnknownReplies) == 0 {
		res.Warnings = append(res.Warnings, "No unknown replies; the model will word its own refusals")
	}

	if strings.TrimSpace(p.StoryPremise) == "" {
		res.Warnings = append(res.Warnings, "No story premise; story mode will start from a blank page")
	}

	return res
}

// render substitutes the persona name into s.
func (p *Persona) render(s string) string {
	return strings.ReplaceAll(s, namePlaceholder, p.Name)
}

// Identity is the personality with the unknown replies in place.
func (p *Persona) Identity() string {
	text := p.render(p.Personality)
	replies := p.unknownReplies()
	switch {
	case strings.Contains(text, repliesPlaceholder) && replies == "":
		text = strings.ReplaceAll(text, repliesPlaceholder+"\n\n", "")
		text = strings.ReplaceAll(text, repliesPlaceholder, "")
	case strings.Contains(text, repliesPlaceholder):
		text = strings.ReplaceAll(text, repliesPlaceholder, replies)
	case replies != "":
		text += "\n\n" + replies
	}
	return strings.TrimRight(text, "\n")
}

func (p *Persona) unknownReplies() string {
	if len(p.UnknownReplies) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Si tu ne sais pas quelque chose (= si ce n'est pas écrit explicitement ci-dessous), réponds TOUJOURS avec humour :")
	for _, r := range p.UnknownReplies {
		fmt.Fprintf(&b, "\n\"%s\"", p.render(r))
	}
	return b.String()
}

// Welcome is the greeting served on the API root.
func (p *Persona) Welcome() string {
	return fmt.Sprintf("Bienvenue dans l'API %s 🚀", p.Name)
}

// LearnedFile is the reply after training on an uploaded document.
func (p *Persona) LearnedFile(name string) string {
	return fmt.Sprintf("%s a bien appris le contenu du fichier %s.", p.Name, name)
}

// LearnedURL is the reply after training on a web page.
func (p *Persona) LearnedURL(url string) string {
	return fmt.Sprintf("%s a appris le contenu du site : %s", p.Name, url)
}
