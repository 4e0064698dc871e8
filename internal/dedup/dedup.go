// Package dedup collapses near-duplicate news articles before scoring.
// Two phases: exact duplicates by URL or normalized-title hash, then
// token-cosine similarity grouping. Deterministic for a given input order.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/models"
)

// Keep strategies.
const (
	KeepHighestRelevance = "highest_relevance"
	KeepMostRecent       = "most_recent"
	KeepFirst            = "first"
)

var wordRe = regexp.MustCompile(`[a-z]+`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "day": {}, "get": {}, "has": {}, "him": {},
	"his": {}, "how": {}, "man": {}, "new": {}, "now": {}, "old": {},
	"see": {}, "two": {}, "way": {}, "who": {}, "its": {}, "did": {},
	"say": {}, "she": {}, "too": {}, "use": {}, "that": {}, "with": {},
	"have": {}, "this": {}, "will": {}, "your": {}, "from": {}, "they": {},
	"been": {}, "were": {}, "said": {}, "each": {}, "which": {}, "their": {},
	"would": {}, "there": {}, "could": {}, "other": {}, "after": {},
	"about": {}, "more": {}, "these": {}, "into": {}, "than": {}, "also": {},
}

// Deduplicator groups similar articles and keeps one per group.
type Deduplicator struct {
	threshold float64
	strategy  string
}

// New builds a Deduplicator. An unknown strategy falls back to
// highest_relevance.
func New(threshold float64, strategy string) *Deduplicator {
	switch strategy {
	case KeepHighestRelevance, KeepMostRecent, KeepFirst:
	default:
		strategy = KeepHighestRelevance
	}
	return &Deduplicator{threshold: threshold, strategy: strategy}
}

// Result reports what happened to a batch.
type Result struct {
	Kept    []models.Article
	Removed int
	Groups  int // similarity groups with more than one member
}

// Deduplicate collapses the batch. Running it twice over its own output
// removes nothing further.
func (d *Deduplicator) Deduplicate(articles []models.Article) Result {
	if len(articles) <= 1 {
		return Result{Kept: articles}
	}

	exact := d.dropExact(articles)
	vectors := make([]tokenVector, len(exact))
	for i, a := range exact {
		vectors[i] = vectorize(a.Title + " " + a.Description)
	}

	// Greedy grouping in input order: each article joins the first earlier
	// group whose representative it matches.
	groupOf := make([]int, len(exact))
	reps := []int{} // representative article index per group
	for i := range exact {
		groupOf[i] = -1
		for g, rep := range reps {
			if similarity(vectors[i], vectors[rep]) >= d.threshold {
				groupOf[i] = g
				break
			}
		}
		if groupOf[i] == -1 {
			groupOf[i] = len(reps)
			reps = append(reps, i)
		}
	}

	members := make([][]int, len(reps))
	for i, g := range groupOf {
		members[g] = append(members[g], i)
	}

	res := Result{}
	for _, idxs := range members {
		if len(idxs) > 1 {
			res.Groups++
			res.Removed += len(idxs) - 1
		}
		res.Kept = append(res.Kept, exact[d.pick(exact, idxs)])
	}
	res.Removed += len(articles) - len(exact)

	if res.Removed > 0 {
		log.Debug().Int("input", len(articles)).Int("kept", len(res.Kept)).
			Int("removed", res.Removed).Msg("deduplicated articles")
	}
	return res
}

// dropExact removes articles sharing a URL or a normalized-title hash,
// keeping the first occurrence.
func (d *Deduplicator) dropExact(articles []models.Article) []models.Article {
	seen := make(map[string]struct{}, len(articles)*2)
	out := make([]models.Article, 0, len(articles))
	for _, a := range articles {
		keys := []string{}
		if a.URL != "" {
			keys = append(keys, "u:"+a.URL)
		}
		if h := titleHash(a.Title); h != "" {
			keys = append(keys, "t:"+h)
		}
		dup := false
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		out = append(out, a)
	}
	return out
}

func (d *Deduplicator) pick(articles []models.Article, idxs []int) int {
	best := idxs[0]
	for _, i := range idxs[1:] {
		switch d.strategy {
		case KeepMostRecent:
			if articles[i].PublishedAt.After(articles[best].PublishedAt) {
				best = i
			}
		case KeepHighestRelevance:
			if articles[i].RelevanceScore > articles[best].RelevanceScore {
				best = i
			}
		case KeepFirst:
			// keep best as-is
		}
	}
	return best
}

func titleHash(title string) string {
	norm := strings.Join(tokenize(title), " ")
	if norm == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:8])
}

type tokenVector map[string]float64

func tokenize(text string) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

func vectorize(text string) tokenVector {
	v := tokenVector{}
	for _, w := range tokenize(text) {
		v[w]++
	}
	var norm float64
	for _, c := range v {
		norm += c * c
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for w := range v {
			v[w] /= norm
		}
	}
	return v
}

// similarity is the cosine of the two normalized vectors, with a quick
// skip when fewer than 3 tokens overlap.
func similarity(a, b tokenVector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	common := 0
	dot := 0.0
	for w, ca := range small {
		if cb, ok := large[w]; ok {
			common++
			dot += ca * cb
		}
	}
	if common < 3 {
		return 0
	}
	return dot
}
