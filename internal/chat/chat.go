// Package chat answers user messages, either from learned knowledge or as
// the narrator of an interactive story.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/intelart/internal/events"
	"github.com/felixgeelhaar/intelart/internal/guard"
	"github.com/felixgeelhaar/intelart/internal/observe"
	"github.com/felixgeelhaar/intelart/internal/persona"
	"github.com/felixgeelhaar/intelart/internal/provider"
	"github.com/felixgeelhaar/intelart/internal/rag"
	"github.com/felixgeelhaar/intelart/internal/session"
	"github.com/felixgeelhaar/intelart/internal/story"
)

// Modes.
const (
	ModeKnowledge = "knowledge"
	ModeStory     = "story"
)

const contextPreviewRunes = 800

// ErrEmptyMessage is returned for blank messages.
var ErrEmptyMessage = errors.New("Le champ 'message' est requis.")

// Searcher finds knowledge relevant to a question.
type Searcher interface {
	Search(ctx context.Context, question string, k int) ([]rag.Match, error)
}

type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type Reply struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id,omitempty"`
	Scene     int    `json:"scene,omitempty"`
	MaxScenes int    `json:"max_scenes,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
}

// Status is a session summary plus the story length.
type Status struct {
	session.Summary
	MaxScenes int `json:"max_scenes"`
}

// Options wires a Service. Retriever, Guard and Bus are optional; Sessions
// is required in story mode.
type Options struct {
	Mode      string
	TopK      int
	LLM       provider.Provider
	Retriever Searcher
	Sessions  *session.Manager
	Story     *story.Engine
	Persona   *persona.Persona
	Guard     *guard.Guard
	Bus       *events.EventBus
	Observer  *observe.Observer
}

type Service struct {
	opts Options
}

func NewService(opts Options) (*Service, error) {
	if opts.LLM == nil {
		return nil, errors.New("chat: no llm provider")
	}
	if opts.Mode == "" {
		opts.Mode = ModeKnowledge
	}
	if opts.Mode != ModeKnowledge && opts.Mode != ModeStory {
		return nil, errors.New("chat: unknown mode " + opts.Mode)
	}
	if opts.Mode == ModeStory && opts.Sessions == nil {
		return nil, errors.New("chat: story mode needs a session manager")
	}
	if opts.TopK <= 0 {
		opts.TopK = 7
	}
	if opts.Persona == nil {
		opts.Persona = persona.Default()
	}
	if opts.Story == nil {
		opts.Story = story.NewEngine(opts.Persona, story.DefaultMaxScenes)
	}
	if opts.Observer == nil {
		opts.Observer = observe.Discard()
	}
	return &Service{opts: opts}, nil
}

// Mode returns "knowledge" or "story".
func (s *Service) Mode() string {
	return s.opts.Mode
}

// MaxScenes returns the configured story length.
func (s *Service) MaxScenes() int {
	return s.opts.Story.MaxScenes
}

// Ask answers one message.
func (s *Service) Ask(ctx context.Context, req Request) (reply *Reply, err error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, ErrEmptyMessage
	}
	if s.opts.Guard != nil {
		if v := s.opts.Guard.CheckMessage(msg); v != nil {
			return nil, v
		}
	}

	ctx, span := s.opts.Observer.StartSpan(ctx, "chat.ask",
		attribute.String("mode", s.opts.Mode),
		attribute.String("llm", s.opts.LLM.Name()),
	)
	defer func() {
		observe.Fail(span, err)
		span.End()
		if err != nil {
			s.opts.Bus.PublishWithData(events.EventChatFailed, req.SessionID, map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	if s.opts.Mode == ModeStory {
		return s.tell(ctx, msg, req.SessionID)
	}
	return s.answer(ctx, msg, req.SessionID)
}

func (s *Service) answer(ctx context.Context, msg, sessionID string) (*Reply, error) {
	knowledge, n, err := s.retrieve(ctx, msg)
	if err != nil {
		return nil, err
	}

	prompt := s.opts.Persona.NoKnowledgePrompt(msg)
	if strings.TrimSpace(knowledge) != "" {
		prompt = s.opts.Persona.KnowledgePrompt(msg, knowledge)
	}

	resp, err := s.opts.LLM.Chat(ctx, []provider.Message{{Role: provider.RoleUser, Content: prompt}})
	if err != nil {
		return nil, err
	}

	reply := &Reply{Response: resp.Content}
	if sessionID != "" && s.opts.Sessions != nil {
		_, err := s.opts.Sessions.Update(ctx, sessionID, func(st *session.State) error {
			st.Append(provider.RoleUser, msg)
			st.Append(provider.RoleAssistant, resp.Content)
			return nil
		})
		if err != nil {
			return nil, err
		}
		reply.SessionID = sessionID
	}

	s.opts.Bus.PublishWithData(events.EventChatAnswered, sessionID, map[string]interface{}{
		"chunks": n,
		"tokens": resp.Usage.TotalTokens,
	})
	return reply, nil
}

func (s *Service) tell(ctx context.Context, msg, sessionID string) (*Reply, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var out string
	var wasFinished bool
	var prevScene int
	st, err := s.opts.Sessions.Update(ctx, sessionID, func(st *session.State) error {
		prevScene = st.Scene
		if st.Finished {
			wasFinished = true
			out = s.opts.Story.Closing()
			return nil
		}

		knowledge, _, err := s.retrieve(ctx, msg)
		if err != nil {
			return err
		}

		messages := make([]provider.Message, 0, len(st.History)+2)
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: s.opts.Story.Prompt(st, knowledge)})
		messages = append(messages, st.History...)
		messages = append(messages, provider.Message{Role: provider.RoleUser, Content: msg})

		resp, err := s.opts.LLM.Chat(ctx, messages)
		if err != nil {
			return err
		}

		out = s.opts.Story.Advance(st, resp.Content)
		st.Append(provider.RoleUser, msg)
		st.Append(provider.RoleAssistant, out)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !wasFinished {
		s.opts.Bus.PublishWithData(events.EventChatAnswered, sessionID, map[string]interface{}{
			"scene": st.Scene,
		})
		if st.Scene != prevScene {
			s.opts.Bus.PublishWithData(events.EventSceneAdvanced, sessionID, map[string]interface{}{
				"from": prevScene,
				"to":   st.Scene,
			})
		}
		if st.Finished {
			s.opts.Bus.PublishWithData(events.EventStoryFinished, sessionID, map[string]interface{}{
				"scenes": st.Scene,
			})
		}
	}

	return &Reply{
		Response:  out,
		SessionID: sessionID,
		Scene:     st.Scene,
		MaxScenes: s.opts.Story.MaxScenes,
		Finished:  st.Finished,
	}, nil
}

// retrieve returns the joined context and how many chunks it holds.
func (s *Service) retrieve(ctx context.Context, question string) (string, int, error) {
	if s.opts.Retriever == nil {
		return "", 0, nil
	}
	matches, err := s.opts.Retriever.Search(ctx, question, s.opts.TopK)
	if err != nil {
		return "", 0, err
	}
	knowledge := rag.JoinContext(matches)

	s.opts.Observer.Log().Info().
		Str("question", question).
		Int("chunks", len(matches)).
		Str("context", preview(knowledge, contextPreviewRunes)).
		Msg("retrieved context")
	return knowledge, len(matches), nil
}

// Reset forgets a session.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	if s.opts.Sessions == nil {
		return session.ErrNotFound
	}
	if err := s.opts.Sessions.Reset(ctx, sessionID); err != nil {
		return err
	}
	s.opts.Bus.PublishWithData(events.EventSessionReset, sessionID, nil)
	return nil
}

// Status reports where a session stands.
func (s *Service) Status(ctx context.Context, sessionID string) (*Status, error) {
	if s.opts.Sessions == nil {
		return nil, session.ErrNotFound
	}
	sum, err := s.opts.Sessions.Status(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Status{Summary: *sum, MaxScenes: s.opts.Story.MaxScenes}, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
