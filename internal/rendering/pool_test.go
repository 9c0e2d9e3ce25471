package rendering

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trial-explainer/internal/types"
)

func poolOf(t *testing.T, names ...string) (*ImagePool, string) {
	t.Helper()
	dir := t.TempDir()
	var images []types.ImageResult
	for _, n := range names {
		p := filepath.Join(dir, n+".png")
		require.NoError(t, os.WriteFile(p, []byte("png"), 0o644))
		images = append(images, types.ImageResult{Name: n, Path: p})
	}
	return NewImagePool(images), dir
}

func TestResolve_Cascade(t *testing.T) {
	pool, dir := poolOf(t, "celldiagram_nobg", "immune_cells", "Heart_Icon", "pill_bottle_nobg", "calendar")

	tests := []struct {
		request string
		file    string
		method  string
	}{
		{"calendar", "calendar", MatchExact},
		{"heart_icon", "Heart_Icon", MatchExact},
		{"pill_bottle", "pill_bottle_nobg", MatchExact},
		{"Cell_Diagram", "celldiagram_nobg", MatchNormalized},
		{"Heart-Icon", "Heart_Icon", MatchNormalized},
		{"bottle", "pill_bottle_nobg", MatchSubstring},
		{"immune response graphic", "immune_cells", MatchTokens},
	}
	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			path, method, ok := pool.Resolve(tt.request)
			require.True(t, ok)
			assert.Equal(t, filepath.Join(dir, tt.file+".png"), path)
			assert.Equal(t, tt.method, method)
		})
	}
}

func TestResolve_Unmatched(t *testing.T) {
	pool, _ := poolOf(t, "celldiagram_nobg", "immune_cells", "calendar")

	for _, name := range []string{"xyz123", "", "   "} {
		_, _, ok := pool.Resolve(name)
		assert.False(t, ok, name)
	}
}

func TestResolve_ThresholdConfigurable(t *testing.T) {
	pool, _ := poolOf(t, "immune_cells")
	pool.Threshold = 0.75

	_, _, ok := pool.Resolve("immune response graphic")
	assert.False(t, ok)
}

func TestResolve_BestTokenScoreWins(t *testing.T) {
	pool, dir := poolOf(t, "blood_test_tube", "blood_pressure_cuff")

	path, method, ok := pool.Resolve("pressure cuff blood")
	require.True(t, ok)
	assert.Equal(t, MatchTokens, method)
	assert.Equal(t, filepath.Join(dir, "blood_pressure_cuff.png"), path)
}

func TestNewImagePool_SkipsMissingFiles(t *testing.T) {
	pool := NewImagePool([]types.ImageResult{{Name: "ghost", Path: "/nope/ghost.png"}, {Name: "blank"}})
	assert.Zero(t, pool.Len())
}

func TestNewImagePool_IndexesNameAndStem(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "heart_nobg.png")
	require.NoError(t, os.WriteFile(p, []byte("png"), 0o644))

	pool := NewImagePool([]types.ImageResult{{Name: "heart", Path: p}})
	assert.Equal(t, []string{"heart_nobg", "heart"}, pool.Names())
}

func TestNewImagePoolFromDir(t *testing.T) {
	_, dir := poolOf(t, "b", "a")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	pool := NewImagePoolFromDir(dir)
	assert.Equal(t, []string{"a", "b"}, pool.Names())
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 0.5, TokenOverlap(tokenize("immune response graphic"), tokenize("immune_cells")))
	assert.Equal(t, 1.0, TokenOverlap(tokenize("a-b"), tokenize("b a")))
	assert.Equal(t, 0.0, TokenOverlap(tokenize(""), tokenize("a")))
}
