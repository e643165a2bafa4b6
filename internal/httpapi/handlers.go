package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/intelart/internal/chat"
	"github.com/felixgeelhaar/intelart/internal/guard"
	"github.com/felixgeelhaar/intelart/internal/provider"
	"github.com/felixgeelhaar/intelart/internal/rag"
	"github.com/felixgeelhaar/intelart/internal/session"
)

const (
	noTextPDF  = "Le PDF ne contient pas de texte lisible."
	noTextPage = "La page ne contient pas de texte exploitable."
)

type errorBody struct {
	Detail string `json:"detail"`
}

type trainReply struct {
	Message     string `json:"message"`
	ChunksAdded int    `json:"chunks_added"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// classify maps an error to a status and a user-facing detail. prefix
// introduces unexpected errors, e.g. "Erreur interne : ".
func (s *Server) classify(err error, prefix string) (int, string) {
	var v *guard.Violation
	switch {
	case errors.As(err, &v):
		return http.StatusBadRequest, v.Message
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, chat.ErrEmptyMessage.Error()
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "Session inconnue."
	case errors.Is(err, rag.ErrAlreadyLearned):
		return http.StatusConflict, "Ce document a déjà été appris."
	case provider.IsModelNotFound(err):
		return http.StatusNotFound, s.modelHint()
	default:
		return http.StatusInternalServerError, prefix + err.Error()
	}
}

func (s *Server) modelHint() string {
	if s.deps.LLMName == "" || s.deps.LLMName == "ollama" {
		return fmt.Sprintf("Le modèle '%s' n'est pas disponible localement. Exécute 'ollama pull %s'.", s.cfg.Model, s.cfg.Model)
	}
	return fmt.Sprintf("Le modèle '%s' n'est pas disponible chez %s.", s.cfg.Model, s.deps.LLMName)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, prefix string) {
	status, detail := s.classify(err, prefix)
	if status >= http.StatusInternalServerError {
		s.deps.Observer.Log().Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, detail)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": s.deps.Persona.Welcome()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	chunks := 0
	if s.deps.Index != nil {
		n, err := s.deps.Index.Count(r.Context())
		if err != nil {
			s.fail(w, r, err, "Erreur interne : ")
			return
		}
		chunks = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"chunks": chunks,
		"llm":    s.deps.LLMName,
		"mode":   s.deps.Chat.Mode(),
	})
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	const prefix = "Erreur pendant l'entraînement : "

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Le champ 'file' est requis.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, err, prefix)
		return
	}

	res, err := s.deps.Trainer.TrainPDF(r.Context(), header.Filename, data, nil)
	if err != nil {
		if errors.Is(err, rag.ErrNoText) {
			writeError(w, http.StatusBadRequest, noTextPDF)
			return
		}
		s.fail(w, r, err, prefix)
		return
	}

	writeJSON(w, http.StatusOK, trainReply{
		Message:     s.deps.Persona.LearnedFile(header.Filename),
		ChunksAdded: res.ChunksAdded,
	})
}

func (s *Server) handleTrainURL(w http.ResponseWriter, r *http.Request) {
	const prefix = "Erreur lors du chargement de l'URL : "

	url := strings.TrimSpace(r.FormValue("url"))
	if url == "" {
		writeError(w, http.StatusBadRequest, "Le champ 'url' est requis.")
		return
	}

	res, err := s.deps.Trainer.TrainURL(r.Context(), url, nil)
	if err != nil {
		if errors.Is(err, rag.ErrNoText) {
			writeError(w, http.StatusBadRequest, noTextPage)
			return
		}
		s.fail(w, r, err, prefix)
		return
	}

	writeJSON(w, http.StatusOK, trainReply{
		Message:     s.deps.Persona.LearnedURL(url),
		ChunksAdded: res.ChunksAdded,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, chat.ErrEmptyMessage.Error())
		return
	}

	reply, err := s.deps.Chat.Ask(r.Context(), req)
	if err != nil {
		s.fail(w, r, err, "Erreur interne : ")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// sessionID reads session_id from a JSON body or a form.
func sessionID(r *http.Request) string {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return ""
		}
		return strings.TrimSpace(body.SessionID)
	}
	return strings.TrimSpace(r.FormValue("session_id"))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Le champ 'session_id' est requis.")
		return
	}

	if err := s.deps.Chat.Reset(r.Context(), id); err != nil {
		s.fail(w, r, err, "Erreur interne : ")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Session réinitialisée.",
		"session_id": id,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Chat.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, "Erreur interne : ")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources := []*rag.Source{}
	if s.deps.Sources != nil {
		list, err := s.deps.Sources.ListSources()
		if err != nil {
			s.fail(w, r, err, "Erreur interne : ")
			return
		}
		if list != nil {
			sources = list
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": sources})
}
