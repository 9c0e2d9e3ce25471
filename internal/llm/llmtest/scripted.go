// Package llmtest provides deterministic llm.Client implementations for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/jonathan/trial-explainer/internal/llm"
)

// ErrExhausted is returned once a Scripted client runs out of replies.
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Reply is one canned response. A non-nil Err is returned instead of Text.
type Reply struct {
	Text string
	Err  error
}

// Scripted replays a fixed sequence of replies and records every prompt.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	// Respond, when set, takes priority over the reply queue.
	Respond func(prompt string, tier llm.ModelTier) (string, error)
	Prompts []string
	Tiers   []llm.ModelTier

	jsonCalls int
}

// NewScripted returns a client that answers with texts in order.
func NewScripted(texts ...string) *Scripted {
	s := &Scripted{}
	for _, t := range texts {
		s.replies = append(s.replies, Reply{Text: t})
	}
	return s
}

// NewFunc returns a client that answers every prompt with fn.
func NewFunc(fn func(prompt string, tier llm.ModelTier) (string, error)) *Scripted {
	return &Scripted{Respond: fn}
}

// Push appends replies to the queue.
func (s *Scripted) Push(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Calls reports how many prompts the client has received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Prompts)
}

// JSONCalls reports how many prompts arrived through GenerateJSON.
func (s *Scripted) JSONCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jsonCalls
}

// GenerateContent implements llm.Client.
func (s *Scripted) GenerateContent(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
	s.mu.Lock()
	s.Prompts = append(s.Prompts, prompt)
	s.Tiers = append(s.Tiers, tier)
	if s.Respond != nil {
		fn := s.Respond
		s.mu.Unlock()
		return fn(prompt, tier)
	}
	defer s.mu.Unlock()

	if len(s.replies) == 0 {
		return "", ErrExhausted
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.Text, r.Err
}

// GenerateJSON implements llm.Client.
func (s *Scripted) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	s.mu.Lock()
	s.jsonCalls++
	s.mu.Unlock()
	return s.GenerateContent(ctx, prompt, tier)
}

// GetModel implements llm.Client.
func (s *Scripted) GetModel(tier llm.ModelTier) string {
	return "scripted-" + string(tier)
}

// Close implements llm.Client.
func (s *Scripted) Close() error { return nil }
