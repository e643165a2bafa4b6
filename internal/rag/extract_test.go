package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/felixgeelhaar/intelart/internal/rag/ragtest"
)

func TestExtractPDF(t *testing.T) {
	data := ragtest.PDF(
		[]string{"Bonjour le monde", "Deuxieme ligne"},
		[]string{"Page deux (suite)"},
	)

	text, err := ExtractPDFBytes(data)
	if err != nil {
		t.Fatalf("ExtractPDF failed: %v", err)
	}

	order := []string{"Bonjour le monde", "Deuxieme ligne", "Page deux (suite)"}
	last := -1
	for _, want := range order {
		i := strings.Index(text, want)
		if i < 0 {
			t.Fatalf("Expected %q in %q", want, text)
		}
		if i < last {
			t.Errorf("Expected %q after the previous line", want)
		}
		last = i
	}
}

func TestExtractPDF_NoTextLayer(t *testing.T) {
	text, err := ExtractPDFBytes(ragtest.PDF([]string{}))
	if err != nil {
		t.Fatalf("ExtractPDF failed: %v", err)
	}
	if strings.TrimSpace(text) != "" {
		t.Errorf("Expected no text, got %q", text)
	}
}

func TestExtractPDF_Invalid(t *testing.T) {
	if _, err := ExtractPDFBytes([]byte(strings.Repeat("not a pdf ", 20))); err == nil {
		t.Error("Expected error for garbage input")
	}
}

func TestExtractHTML(t *testing.T) {
	page := `<html><head><title>Accueil</title>
<style>body { color: red }</style>
<script>var secret = 1;</script>
</head><body>
<h1>Titre</h1>
<p>Un   paragraphe</p>
<noscript>active javascript</noscript>
</body></html>`

	text, err := ExtractHTML(strings.NewReader(page), "text/html")
	if err != nil {
		t.Fatalf("ExtractHTML failed: %v", err)
	}

	want := "Accueil\nTitre\nUn   paragraphe"
	if text != want {
		t.Errorf("Expected %q, got %q", want, text)
	}
}

func TestExtractHTML_Latin1Meta(t *testing.T) {
	page := "<html><head><meta charset=iso-8859-1></head><body><p>Caf\xe9 du mus\xe9e</p></body></html>"

	text, err := ExtractHTML(strings.NewReader(page), "")
	if err != nil {
		t.Fatalf("ExtractHTML failed: %v", err)
	}
	if !utf8.ValidString(text) {
		t.Fatalf("Expected valid UTF-8, got %q", text)
	}
	if text != "Café du musée" {
		t.Errorf("Expected %q, got %q", "Café du musée", text)
	}
}

func TestExtractHTML_Latin1ContentType(t *testing.T) {
	page := "<p>\xc9t\xe9 \xe0 Giverny</p>"

	text, err := ExtractHTML(strings.NewReader(page), "text/html; charset=ISO-8859-1")
	if err != nil {
		t.Fatalf("ExtractHTML failed: %v", err)
	}
	if text != "Été à Giverny" {
		t.Errorf("Expected %q, got %q", "Été à Giverny", text)
	}
}
