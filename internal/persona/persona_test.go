package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPersona_Load(t *testing.T) {
	tmpDir, _ := os.MkdirTemp("", "persona-test-*")
	defer os.RemoveAll(tmpDir)

	yamlPath := filepath.Join(tmpDir, "persona.yaml")
	os.WriteFile(yamlPath, []byte("name: Artemis\nunknown_replies: [\"Aucune idée !\"]"), 0600)

	jsonPath := filepath.Join(tmpDir, "persona.json")
	os.WriteFile(jsonPath, []byte(`{"name": "Jason", "personality": "Tu es {name}, un robot grincheux mais attachant."}`), 0600)

	t.Run("YAML", func(t *testing.T) {
		p, err := Load(yamlPath)
		if err != nil {
			t.Fatalf("Failed to load YAML: %v", err)
		}
		if p.Name != "Artemis" {
			t.Errorf("Expected 'Artemis', got '%s'", p.Name)
		}
		if p.Personality != defaultPersonality {
			t.Error("Expected default personality to be kept")
		}
		if len(p.UnknownReplies) != 1 {
			t.Errorf("Expected 1 unknown reply, got %d", len(p.UnknownReplies))
		}
	})

	t.Run("JSON", func(t *testing.T) {
		p, err := Load(jsonPath)
		if err != nil {
			t.Fatalf("Failed to load JSON: %v", err)
		}
		if !strings.Contains(p.Identity(), "Tu es Jason, un robot grincheux") {
			t.Errorf("Expected rendered personality, got '%s'", p.Identity())
		}
	})

	t.Run("Invalid Extension", func(t *testing.T) {
		if _, err := Load(filepath.Join(tmpDir, "persona.txt")); err == nil {
			t.Error("Expected error for .txt extension")
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := Load(filepath.Join(tmpDir, "absent.yaml")); err == nil {
			t.Error("Expected error for missing file")
		}
	})
}

func TestPersona_Validate(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		res := Validate(*Default())
		if !res.Valid {
			t.Errorf("Expected default persona to be valid, got errors: %v", res.Errors)
		}
		if len(res.Warnings) != 0 {
			t.Errorf("Expected no warnings, got %v", res.Warnings)
		}
	})

	t.Run("Missing Fields", func(t *testing.T) {
		res := Validate(Persona{})
		if res.Valid {
			t.Error("Expected invalid persona")
		}
		if len(res.Errors) != 2 {
			t.Errorf("Expected 2 errors, got %d", len(res.Errors))
		}
	})

	t.Run("Short Personality", func(t *testing.T) {
		res := Validate(Persona{Name: "X", Personality: "Sois drôle."})
		if !res.Valid {
			t.Error("Expected valid persona")
		}
		if len(res.Warnings) != 3 {
			t.Errorf("Expected 3 warnings, got %v", res.Warnings)
		}
	})
}

func TestPersona_KnowledgePrompt(t *testing.T) {
	p := Default()
	prompt := p.KnowledgePrompt("Qui a peint la Joconde ?", "Léonard a peint la Joconde.")

	for _, want := range []string{
		"Tu es une intelligence artificielle nommée Intelart.",
		"Je m'appelle Intelart.",
		"TES SEULES CONNAISSANCES (rien d'autre) :",
		"Léonard a peint la Joconde.",
		"Qui a peint la Joconde ?",
		"INSTRUCTIONS CRITIQUES :",
		"Je suis en plein apprentissage 😅",
		"Réponds maintenant :",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}

	if strings.Index(prompt, "Léonard") > strings.Index(prompt, "Qui a peint") {
		t.Error("Expected knowledge before the question")
	}
}

func TestPersona_NoKnowledgePrompt(t *testing.T) {
	prompt := Default().NoKnowledgePrompt("Quelle heure est-il ?")
	if !strings.Contains(prompt, "QUESTION : Quelle heure est-il ?") {
		t.Errorf("Expected question line, got %q", prompt)
	}
	if !strings.Contains(prompt, "Tu n'as AUCUNE connaissance sur ce sujet.") {
		t.Error("Expected no-knowledge instruction")
	}
	if strings.Contains(prompt, "TES SEULES CONNAISSANCES") {
		t.Error("Did not expect a knowledge section")
	}
}

func TestPersona_StoryPrompt(t *testing.T) {
	p := Default()

	middle := p.StoryPrompt(3, 10, "")
	if !strings.Contains(middle, "SCÈNE 3 sur 10") {
		t.Errorf("Expected scene position, got %q", middle)
	}
	if !strings.Contains(middle, "(1), (2), (3)") {
		t.Error("Expected choice instructions before the last scene")
	}

	last := p.StoryPrompt(10, 10, "La cité s'appelle Ys.")
	if !strings.Contains(last, "DERNIÈRE scène") {
		t.Error("Expected closing instructions on the last scene")
	}
	if strings.Contains(last, "(1), (2), (3)") {
		t.Error("Did not expect choices on the last scene")
	}
	if !strings.Contains(last, "La cité s'appelle Ys.") {
		t.Error("Expected world knowledge in the story prompt")
	}
}

func TestPersona_Messages(t *testing.T) {
	p := Default()
	if p.Welcome() != "Bienvenue dans l'API Intelart 🚀" {
		t.Errorf("Unexpected welcome: %s", p.Welcome())
	}
	if p.LearnedFile("cours.pdf") != "Intelart a bien appris le contenu du fichier cours.pdf." {
		t.Errorf("Unexpected file message: %s", p.LearnedFile("cours.pdf"))
	}
	if p.LearnedURL("https://example.com") != "Intelart a appris le contenu du site : https://example.com" {
		t.Errorf("Unexpected url message: %s", p.LearnedURL("https://example.com"))
	}
}

func TestPersona_IdentityOrder(t *testing.T) {
	id := Default().Identity()

	name := strings.Index(id, "Je m'appelle Intelart.")
	unknown := strings.Index(id, "Si tu ne sais pas quelque chose")
	reply := strings.Index(id, "\"Je ne connais pas encore ça ! Je suis en plein apprentissage 😅\"")
	forbidden := strings.Index(id, "INTERDIT ABSOLU")
	closing := strings.Index(id, "Tu es bienveillant")

	if name < 0 || unknown < 0 || reply < 0 || forbidden < 0 || closing < 0 {
		t.Fatalf("Missing section in identity:\n%s", id)
	}
	if !(name < unknown && unknown < reply && reply < forbidden && forbidden < closing) {
		t.Errorf("Unexpected section order: name=%d unknown=%d reply=%d forbidden=%d closing=%d",
			name, unknown, reply, forbidden, closing)
	}
	if strings.Contains(id, repliesPlaceholder) {
		t.Error("Expected placeholder to be replaced")
	}
	if !strings.HasSuffix(id, "réponds toujours à la première personne.") {
		t.Errorf("Expected identity to end with the closing line, got %q", id[len(id)-60:])
	}
}

func TestPersona_IdentityWithoutReplies(t *testing.T) {
	p := Default()
	p.UnknownReplies = nil
	id := p.Identity()

	if strings.Contains(id, repliesPlaceholder) || strings.Contains(id, "Si tu ne sais pas") {
		t.Errorf("Expected no unknown-replies block, got:\n%s", id)
	}
	if strings.Contains(id, "\n\n\n") {
		t.Error("Expected no empty section left behind")
	}
}

func TestPersona_IdentityAppendsReplies(t *testing.T) {
	p := &Persona{
		Name:           "Jason",
		Personality:    "Tu es {name}, un robot grincheux mais attachant.",
		UnknownReplies: []string{"{name} ne sait pas."},
	}
	want := "Tu es Jason, un robot grincheux mais attachant.\n\n" +
		"Si tu ne sais pas quelque chose (= si ce n'est pas écrit explicitement ci-dessous), réponds TOUJOURS avec humour :\n" +
		"\"Jason ne sait pas.\""
	if got := p.Identity(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
