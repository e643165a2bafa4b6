package rag

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetcher_SendsBrowserUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != BrowserUserAgent {
			t.Errorf("Unexpected User-Agent %q", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<p>ok</p>"))
	}))
	defer srv.Close()

	page, err := NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(page.Body) != "<p>ok</p>" {
		t.Errorf("Unexpected body %q", page.Body)
	}
	if page.ContentType != "text/html; charset=utf-8" {
		t.Errorf("Unexpected content type %q", page.ContentType)
	}
}

func TestFetcher_RejectsOversizedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 65)))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	f.MaxBytes = 64
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("Expected error for page over the size limit")
	}
	if !strings.Contains(err.Error(), "larger than 64 bytes") {
		t.Errorf("Unexpected error %q", err)
	}
}

func TestFetcher_AcceptsPageAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	f.MaxBytes = 64
	page, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(page.Body) != 64 {
		t.Errorf("Expected 64 bytes, got %d", len(page.Body))
	}
}

func TestFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewFetcher(nil).Fetch(context.Background(), srv.URL+"/absent")
	if err == nil {
		t.Fatal("Expected error for 404")
	}
	if !strings.Contains(err.Error(), "404 Not Found for url:") {
		t.Errorf("Unexpected error %q", err)
	}
}
