package imagegen

import (
	"context"
	"strings"

	"github.com/jonathan/trial-explainer/internal/llm"
	"github.com/jonathan/trial-explainer/internal/prompts"
)

// fallbackWords is how many words of the prompt survive when simplification fails.
const fallbackWords = 8

// Simplifier rewrites a prompt into a shorter one for a second round of attempts.
type Simplifier interface {
	Simplify(ctx context.Context, prompt string) string
}

// LLMSimplifier asks the lite model tier for a shorter prompt.
type LLMSimplifier struct {
	Client llm.Client
}

// Simplify implements Simplifier. It never fails: any error or empty answer
// falls back to the first words of the prompt.
func (s *LLMSimplifier) Simplify(ctx context.Context, prompt string) string {
	if s == nil || s.Client == nil {
		return TruncateWords(prompt, fallbackWords)
	}
	rendered, err := prompts.Render("simplify-image", map[string]string{"Prompt": prompt})
	if err != nil {
		return TruncateWords(prompt, fallbackWords)
	}
	text, err := s.Client.GenerateContent(ctx, rendered, llm.TierLite)
	if err != nil {
		return TruncateWords(prompt, fallbackWords)
	}
	text = strings.Trim(strings.TrimSpace(text), "\"'`")
	text = strings.TrimSpace(text)
	if text == "" {
		return TruncateWords(prompt, fallbackWords)
	}
	return text
}

// TruncateSimplifier keeps the first N words and never calls a model.
type TruncateSimplifier struct {
	Words int
}

// Simplify implements Simplifier.
func (t TruncateSimplifier) Simplify(_ context.Context, prompt string) string {
	n := t.Words
	if n <= 0 {
		n = fallbackWords
	}
	return TruncateWords(prompt, n)
}

// TruncateWords returns the first n whitespace-separated words of s.
func TruncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
