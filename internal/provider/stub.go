package provider

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

const stubDimensions = 64

// StubProvider is an offline provider for tests and demos. It replays
// Responses in order, then echoes the last user message.
type StubProvider struct {
	mu        sync.Mutex
	Responses []Response
	Err       error
	calls     [][]Message
}

func NewStubProvider(responses ...string) *StubProvider {
	s := &StubProvider{}
	for _, r := range responses {
		s.Responses = append(s.Responses, Response{Content: r})
	}
	return s
}

func (m *StubProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]Message(nil), messages...))
	if m.Err != nil {
		return nil, m.Err
	}

	if len(m.Responses) == 0 {
		var last string
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == RoleUser {
				last = messages[i].Content
				break
			}
		}
		return &Response{Content: "stub: " + last}, nil
	}

	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return &resp, nil
}

// Queue appends canned responses.
func (m *StubProvider) Queue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range responses {
		m.Responses = append(m.Responses, Response{Content: r})
	}
}

// Fail makes every following Chat call return err. Pass nil to recover.
func (m *StubProvider) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Calls returns every message list received so far.
func (m *StubProvider) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}

// Embed hashes words into a fixed-size bag-of-words vector. Texts sharing
// words end up close under cosine similarity.
func (m *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, stubDimensions+1)
	vec[stubDimensions] = 0.01 // never the zero vector
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%stubDimensions]++
	}
	return vec, nil
}

func (m *StubProvider) Name() string {
	return "stub"
}
