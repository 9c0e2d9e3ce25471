package rendering

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonathan/trial-explainer/internal/types"
)

// DefaultMatchThreshold is the minimum token-overlap score accepted.
const DefaultMatchThreshold = 0.5

// Resolution methods, in cascade order.
const (
	MatchExact      = "exact"
	MatchNormalized = "normalized"
	MatchSubstring  = "substring"
	MatchTokens     = "tokens"
)

// fillerTokens name the kind of picture rather than its subject and are
// ignored when scoring token overlap.
var fillerTokens = map[string]bool{
	"graphic":      true,
	"image":        true,
	"img":          true,
	"picture":      true,
	"illustration": true,
	"icon":         true,
	"nobg":         true,
}

type poolEntry struct {
	name       string
	path       string
	normalized string
	tokens     map[string]bool
}

// ImagePool resolves layout image references to files on disk.
type ImagePool struct {
	entries   []poolEntry
	byName    map[string]int
	Threshold float64
}

// NewImagePool indexes images by their name and by their file stem.
// Entries whose file does not exist are left out.
func NewImagePool(images []types.ImageResult) *ImagePool {
	p := &ImagePool{byName: make(map[string]int), Threshold: DefaultMatchThreshold}
	for _, img := range images {
		if img.Path == "" {
			continue
		}
		if _, err := os.Stat(img.Path); err != nil {
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(img.Path), filepath.Ext(img.Path))
		p.add(stem, img.Path)
		if img.Name != "" && img.Name != stem {
			p.add(img.Name, img.Path)
		}
	}
	return p
}

// NewImagePoolFromDir indexes every .png file under dir.
func NewImagePoolFromDir(dir string) *ImagePool {
	var images []types.ImageResult
	matches, _ := filepath.Glob(filepath.Join(dir, "*.png"))
	sort.Strings(matches)
	for _, m := range matches {
		images = append(images, types.ImageResult{Path: m})
	}
	return NewImagePool(images)
}

func (p *ImagePool) add(name, path string) {
	if _, dup := p.byName[name]; dup {
		return
	}
	p.byName[name] = len(p.entries)
	p.entries = append(p.entries, poolEntry{
		name:       name,
		path:       path,
		normalized: normalize(name),
		tokens:     tokenize(name),
	})
}

// Len reports how many names the pool can resolve.
func (p *ImagePool) Len() int {
	return len(p.entries)
}

// Names returns the indexed names in insertion order.
func (p *ImagePool) Names() []string {
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.name
	}
	return names
}

// Resolve finds the file for a requested name. It tries, in order and
// stopping at the first hit: exact or case-insensitive name (also with a
// _nobg suffix), separator- and case-insensitive equality, substring
// containment either way, and the best token overlap at or above Threshold.
func (p *ImagePool) Resolve(name string) (path string, method string, ok bool) {
	name = strings.TrimSpace(name)
	if name == "" || len(p.entries) == 0 {
		return "", "", false
	}

	for _, candidate := range []string{name, name + "_nobg"} {
		if i, found := p.byName[candidate]; found {
			return p.entries[i].path, MatchExact, true
		}
	}
	for _, candidate := range []string{name, name + "_nobg"} {
		for _, e := range p.entries {
			if strings.EqualFold(e.name, candidate) {
				return e.path, MatchExact, true
			}
		}
	}

	want := normalize(name)
	if want == "" {
		return "", "", false
	}
	for _, e := range p.entries {
		if e.normalized == want || e.normalized == want+"nobg" {
			return e.path, MatchNormalized, true
		}
	}

	for _, e := range p.entries {
		if e.normalized == "" {
			continue
		}
		if strings.Contains(e.normalized, want) || strings.Contains(want, e.normalized) {
			return e.path, MatchSubstring, true
		}
	}

	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	wantTokens := tokenize(name)
	best, bestScore := -1, 0.0
	for i, e := range p.entries {
		score := TokenOverlap(wantTokens, e.tokens)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= threshold {
		return p.entries[best].path, MatchTokens, true
	}
	return "", "", false
}

// TokenOverlap is |a ∩ b| / max(|a|, |b|).
func TokenOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for t := range a {
		if b[t] {
			common++
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(common) / float64(denom)
}

func normalize(s string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !fillerTokens[f] {
			tokens[f] = true
		}
	}
	return tokens
}
