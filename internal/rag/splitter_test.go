package rag

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitter_ParagraphBoundaries(t *testing.T) {
	s := NewSplitter(20, 0)
	got := s.Split("aaaa bbbb\n\ncccc dddd\n\neeee")

	want := []string{"aaaa bbbb\n\ncccc dddd", "eeee"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d chunks, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplitter_NoSeparatorsFallsBackToRunes(t *testing.T) {
	s := NewSplitter(1000, 150)
	got := s.Split(strings.Repeat("x", 2500))

	lengths := []int{1000, 1000, 800}
	if len(got) != len(lengths) {
		t.Fatalf("Expected %d chunks, got %d", len(lengths), len(got))
	}
	for i, l := range lengths {
		if n := utf8.RuneCountInString(got[i]); n != l {
			t.Errorf("chunk %d: expected %d runes, got %d", i, l, n)
		}
	}
}

func TestSplitter_Overlap(t *testing.T) {
	var words []string
	for i := 0; i < 500; i++ {
		words = append(words, fmt.Sprintf("w%03d", i))
	}
	s := NewSplitter(100, 20)
	chunks := s.Split(strings.Join(words, " "))

	if len(chunks) < 2 {
		t.Fatalf("Expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 100 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
		if i == 0 {
			continue
		}
		first := strings.Fields(c)[0]
		if !strings.Contains(chunks[i-1], first) {
			t.Errorf("chunk %d starts with %q which is not carried over from chunk %d", i, first, i-1)
		}
	}
	if !strings.HasPrefix(chunks[0], "w000") || !strings.HasSuffix(chunks[len(chunks)-1], "w499") {
		t.Error("Expected the chunks to cover the whole text")
	}
}

func TestSplitter_CountsRunes(t *testing.T) {
	s := NewSplitter(1000, 0)
	got := s.Split(strings.Repeat("é", 1500))
	if len(got) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(got))
	}
	if n := utf8.RuneCountInString(got[0]); n != 1000 {
		t.Errorf("Expected 1000 runes, got %d", n)
	}
}

func TestSplitter_Blank(t *testing.T) {
	s := NewSplitter(1000, 150)
	for _, in := range []string{"", "   ", "\n\n\n"} {
		if got := s.Split(in); len(got) != 0 {
			t.Errorf("Split(%q) = %q, want nothing", in, got)
		}
	}
}

func TestNewSplitter_Defaults(t *testing.T) {
	s := NewSplitter(0, -1)
	if s.Size != 1000 || s.Overlap != 0 {
		t.Errorf("Unexpected defaults: %+v", s)
	}
	s = NewSplitter(100, 100)
	if s.Overlap != 0 {
		t.Errorf("Overlap >= size should be dropped, got %d", s.Overlap)
	}
}
