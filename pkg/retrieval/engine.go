// Package retrieval selects memes by tag similarity and produces bounded
// menu samples for prompt construction.
package retrieval

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/agext/levenshtein"
	"github.com/wenli/memekeeper/pkg/store"
)

const (
	// substringBonus biases fuzzy scoring toward literal tag hits without
	// making them absolute
	substringBonus = 0.5

	// acceptThreshold is the minimum fuzzy score a candidate must exceed
	acceptThreshold = 0.1
)

// Library is the read surface the engine needs from the store
type Library interface {
	List() []store.Record
}

// Engine matches queries against the library's tag descriptions
type Engine struct {
	library Library

	rng   *rand.Rand
	rngMu sync.Mutex
}

// New creates a retrieval engine over the given library
func New(library Library) *Engine {
	return &Engine{
		library: library,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// MatchExact returns a record whose tag text contains query as a literal
// substring. Multiple matches are broken uniformly at random.
func (e *Engine) MatchExact(query string) (*store.Record, bool) {
	var matches []store.Record
	for _, rec := range e.library.List() {
		if strings.Contains(rec.TagText, query) {
			matches = append(matches, rec)
		}
	}
	if len(matches) == 0 {
		return nil, false
	}

	e.rngMu.Lock()
	pick := matches[e.rng.Intn(len(matches))]
	e.rngMu.Unlock()

	return &pick, true
}

// MatchFuzzy scores every record's tag text against query with a normalized
// edit-distance similarity in [0,1], plus a fixed bonus for a literal
// substring hit, and returns the best-scoring record when it clears the
// acceptance threshold. Ties keep the first record in the ID-sorted scan.
func (e *Engine) MatchFuzzy(query string) (*store.Record, bool) {
	if query == "" {
		return nil, false
	}

	var best *store.Record
	bestScore := 0.0

	for _, rec := range e.library.List() {
		score := levenshtein.Similarity(query, rec.TagText, nil)
		if strings.Contains(rec.TagText, query) {
			score += substringBonus
		}
		if score > bestScore {
			rec := rec
			best = &rec
			bestScore = score
		}
	}

	if best == nil || bestScore <= acceptThreshold {
		return nil, false
	}
	return best, true
}

// SampleMenu returns tag descriptions to surface to the reply generator:
// every distinct description when there are at most maxSize of them,
// otherwise a uniform sample of exactly maxSize distinct descriptions.
// Records sharing a tag text contribute a single entry.
func (e *Engine) SampleMenu(maxSize int) []string {
	if maxSize <= 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var descriptions []string
	for _, rec := range e.library.List() {
		if _, ok := seen[rec.TagText]; ok {
			continue
		}
		seen[rec.TagText] = struct{}{}
		descriptions = append(descriptions, rec.TagText)
	}

	if len(descriptions) <= maxSize {
		return descriptions
	}

	e.rngMu.Lock()
	perm := e.rng.Perm(len(descriptions))
	e.rngMu.Unlock()

	sampled := make([]string, 0, maxSize)
	for _, idx := range perm[:maxSize] {
		sampled = append(sampled, descriptions[idx])
	}
	return sampled
}
