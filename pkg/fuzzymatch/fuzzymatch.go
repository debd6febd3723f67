// Package fuzzymatch resolves human- or agent-supplied table names
// against the authoritative definition list. Lookup is tolerant: exact
// and substring hits always outrank base-name hits, which outrank pure
// edit-distance similarity. "Not found" is an empty result, never an
// error.
package fuzzymatch

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Match is one scored candidate.
type Match struct {
	Name  string
	Score float64
}

// Scoring tiers. The first applicable tier wins per candidate, so a
// substring hit can never be outranked by a Levenshtein hit.
const (
	substringFloor = 0.95 // substring tier scores in [0.95, 1.0]
	baseNameFloor  = 0.85 // base-name tier scores in [0.85, 0.94]
	baseNameCeil   = 0.94
	editCap        = 0.84 // Levenshtein tier is capped below base-name
)

// FindClosestMatches scores every candidate against the query and
// returns the best maxResults in descending score order, ties kept in
// input order. maxDistance is an edit-distance budget converted to a
// minimum score using the longest string in play; a negative value
// disables the filter. Empty query or candidate list yields an empty
// result.
func FindClosestMatches(query string, candidates []string, maxResults, maxDistance int) []Match {
	if query == "" || len(candidates) == 0 || maxResults <= 0 {
		return nil
	}

	longest := len(query)
	for _, c := range candidates {
		if len(c) > longest {
			longest = len(c)
		}
	}
	minScore := -1.0
	if maxDistance >= 0 && longest > 0 {
		minScore = 1 - float64(maxDistance)/float64(longest)
	}

	type scored struct {
		Match
		order int
	}
	var out []scored
	for i, cand := range candidates {
		s := score(query, cand)
		if s < minScore {
			continue
		}
		out = append(out, scored{Match{Name: cand, Score: s}, i})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].order < out[j].order
	})

	if len(out) > maxResults {
		out = out[:maxResults]
	}
	matches := make([]Match, len(out))
	for i, s := range out {
		matches[i] = s.Match
	}
	return matches
}

func score(query, cand string) float64 {
	q := strings.ToLower(query)
	c := strings.ToLower(cand)

	// tier 1: substring containment, weighted by how much of the
	// candidate the query covers
	if strings.Contains(c, q) {
		return substringFloor + (1-substringFloor)*float64(len(q))/float64(len(c))
	}

	// tier 2: base-name match with any trailing parenthetical suffix
	// stripped, e.g. "Boost Target (High Gear)" -> "Boost Target"
	base := strings.ToLower(baseName(cand))
	if base != c && base != "" {
		if strings.Contains(base, q) || strings.Contains(q, base) {
			shorter, longer := len(q), len(base)
			if shorter > longer {
				shorter, longer = longer, shorter
			}
			coverage := float64(shorter) / float64(longer)
			return baseNameFloor + (baseNameCeil-baseNameFloor)*coverage
		}
	}

	// tier 3: normalized Levenshtein similarity
	dist := fuzzy.LevenshteinDistance(q, c)
	max := len(q)
	if len(c) > max {
		max = len(c)
	}
	if max == 0 {
		return 0
	}
	sim := 1 - float64(dist)/float64(max)
	if sim > editCap {
		sim = editCap
	}
	if sim < 0 {
		sim = 0
	}
	return sim
}

// baseName strips one trailing parenthetical suffix from a candidate.
func baseName(s string) string {
	trimmed := strings.TrimRight(s, " ")
	if !strings.HasSuffix(trimmed, ")") {
		return s
	}
	open := strings.LastIndex(trimmed, "(")
	if open <= 0 {
		return s
	}
	return strings.TrimRight(trimmed[:open], " ")
}
