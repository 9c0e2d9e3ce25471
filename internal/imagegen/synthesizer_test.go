package imagegen

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trial-explainer/internal/llm"
	"github.com/jonathan/trial-explainer/internal/llm/llmtest"
	"github.com/jonathan/trial-explainer/internal/types"
)

var pngPayload = bytes.Repeat([]byte{0x89}, 2048)

// fakeEndpoint answers from a per-prompt policy and counts calls.
type fakeEndpoint struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	respond func(call int, prompt string) ([]byte, error)
}

func (f *fakeEndpoint) Fetch(_ context.Context, prompt string, _, _ int) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.respond(call, prompt)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestSynth(ep Endpoint, simp Simplifier) *Synthesizer {
	return NewSynthesizer(ep, simp, Options{MinBytes: DefaultMinBytes, Pause: time.Second, SuccessPause: time.Second}, nil).WithSleep(noSleep)
}

func TestGenerate_SucceedsOnThirdCall(t *testing.T) {
	ep := &fakeEndpoint{respond: func(call int, _ string) ([]byte, error) {
		if call < 3 {
			return nil, errors.New("HTTP 502")
		}
		return pngPayload, nil
	}}
	dir := t.TempDir()

	outcomes, err := newTestSynth(ep, nil).Generate(context.Background(),
		[]types.Asset{{Name: "heart icon", Prompt: "a cartoon heart"}}, dir)
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	require.False(t, outcomes[0].Skipped)
	res := outcomes[0].Item
	assert.Equal(t, "heart_icon", res.Name)
	assert.False(t, res.Simplified)
	assert.Equal(t, "a cartoon heart", res.Prompt)
	assert.Equal(t, filepath.Join(dir, "heart_icon.png"), res.Path)
	assert.Equal(t, 3, ep.calls)
	assert.FileExists(t, res.Path)
}

func TestGenerate_AlwaysFailingMakesSixCalls(t *testing.T) {
	ep := &fakeEndpoint{respond: func(int, string) ([]byte, error) {
		return nil, errors.New("HTTP 500")
	}}

	outcomes, err := newTestSynth(ep, nil).Generate(context.Background(),
		[]types.Asset{{Name: "x", Prompt: "one two three four five six seven eight nine ten"}}, t.TempDir())
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.Equal(t, 6, ep.calls)
	// Last three calls used the truncated prompt.
	assert.Equal(t, "one two three four five six seven eight", ep.prompts[5])
	assert.Equal(t, "one two three four five six seven eight nine ten", ep.prompts[0])
}

func TestGenerate_ZeroMinBytesAcceptsSmallPayload(t *testing.T) {
	ep := &fakeEndpoint{respond: func(call int, _ string) ([]byte, error) {
		if call == 1 {
			return nil, nil
		}
		return []byte("tiny"), nil
	}}
	synth := NewSynthesizer(ep, nil, Options{MinBytes: 0}, nil).WithSleep(noSleep)

	outcomes, err := synth.Generate(context.Background(), []types.Asset{{Name: "a", Prompt: "p"}}, t.TempDir())
	require.NoError(t, err)
	require.False(t, outcomes[0].Skipped)
	assert.Equal(t, 2, ep.calls, "an empty payload is still a failure")
}

func TestGenerate_SmallPayloadCountsAsFailure(t *testing.T) {
	ep := &fakeEndpoint{respond: func(call int, _ string) ([]byte, error) {
		if call == 1 {
			return []byte("tiny"), nil
		}
		return pngPayload, nil
	}}

	outcomes, err := newTestSynth(ep, nil).Generate(context.Background(), []types.Asset{{Name: "a", Prompt: "p"}}, t.TempDir())
	require.NoError(t, err)
	require.False(t, outcomes[0].Skipped)
	assert.Equal(t, 2, ep.calls)
}

func TestGenerate_SimplifiedPromptRecorded(t *testing.T) {
	ep := &fakeEndpoint{respond: func(_ int, prompt string) ([]byte, error) {
		if prompt == "simple heart" {
			return pngPayload, nil
		}
		return nil, errors.New("timeout")
	}}
	client := llmtest.NewScripted(`"simple heart"`)

	outcomes, err := newTestSynth(ep, &LLMSimplifier{Client: client}).Generate(context.Background(),
		[]types.Asset{{Name: "heart", Prompt: "an intricately detailed anatomical heart"}}, t.TempDir())
	require.NoError(t, err)

	require.False(t, outcomes[0].Skipped)
	assert.True(t, outcomes[0].Item.Simplified)
	assert.Equal(t, "simple heart", outcomes[0].Item.Prompt)
	assert.Equal(t, 4, ep.calls)
	assert.Equal(t, llm.TierLite, client.Tiers[0])
}

func TestGenerate_OneOfFiveFails(t *testing.T) {
	ep := &fakeEndpoint{respond: func(_ int, prompt string) ([]byte, error) {
		if prompt == "broken" || prompt == TruncateWords("broken", fallbackWords) {
			return nil, errors.New("HTTP 500")
		}
		return pngPayload, nil
	}}
	assets := []types.Asset{
		{Name: "a", Prompt: "first"},
		{Name: "b", Prompt: "second"},
		{Name: "c", Prompt: "broken"},
		{Name: "d", Prompt: "fourth"},
		{Name: "e", Prompt: "fifth"},
	}

	outcomes, err := newTestSynth(ep, nil).Generate(context.Background(), assets, t.TempDir())
	require.NoError(t, err)

	require.Len(t, outcomes, 5)
	assert.Equal(t, 1, types.SkipCount(outcomes))
	items := types.Items(outcomes)
	require.Len(t, items, 4)
	assert.Equal(t, []string{"a", "b", "d", "e"}, []string{items[0].Name, items[1].Name, items[2].Name, items[3].Name})
}

func TestGenerate_EmptyPromptUsesName(t *testing.T) {
	ep := &fakeEndpoint{respond: func(int, string) ([]byte, error) { return pngPayload, nil }}

	_, err := newTestSynth(ep, nil).Generate(context.Background(), []types.Asset{{Name: "pill bottle"}}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"pill bottle"}, ep.prompts)
}

func TestGenerate_DuplicateNamesDoNotOverwrite(t *testing.T) {
	ep := &fakeEndpoint{respond: func(int, string) ([]byte, error) { return pngPayload, nil }}
	dir := t.TempDir()

	outcomes, err := newTestSynth(ep, nil).Generate(context.Background(),
		[]types.Asset{{Name: "pill/bottle", Prompt: "p"}, {Name: "pill bottle", Prompt: "q"}}, dir)
	require.NoError(t, err)

	items := types.Items(outcomes)
	require.Len(t, items, 2)
	assert.Equal(t, "pill_bottle", items[0].Name)
	assert.Equal(t, "pill_bottle_2", items[1].Name)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestGenerate_PausesBetweenFailures(t *testing.T) {
	ep := &fakeEndpoint{respond: func(int, string) ([]byte, error) { return nil, errors.New("down") }}
	var pauses []time.Duration
	synth := NewSynthesizer(ep, nil, Options{Pause: time.Second, SuccessPause: time.Millisecond}, nil).
		WithSleep(func(_ context.Context, d time.Duration) error {
			pauses = append(pauses, d)
			return nil
		})

	_, err := synth.Generate(context.Background(), []types.Asset{{Name: "a", Prompt: "p"}}, t.TempDir())
	require.NoError(t, err)
	// Two pauses inside each round of three attempts.
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second, time.Second}, pauses)
}

func TestGenerate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ep := &fakeEndpoint{respond: func(int, string) ([]byte, error) { return pngPayload, nil }}

	_, err := newTestSynth(ep, nil).Generate(ctx, []types.Asset{{Name: "a", Prompt: "p"}}, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ep.calls)
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"heart icon":     "heart_icon",
		"cell-diagram_2": "cell-diagram_2",
		"a/b\\c.png":     "a_b_c_png",
		"":               "image",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), in)
	}
}

func TestNamer_SkipsTakenSuffix(t *testing.T) {
	n := NewNamer()
	assert.Equal(t, "a_2", n.Next("a_2"))
	assert.Equal(t, "a", n.Next("a"))
	assert.Equal(t, "a_3", n.Next("a"))
}
