// Package retrieval selects the corpus fragments most relevant to a visitor
// query using lexical keyword scoring. This is deliberately not a semantic
// search: the category table below is the whole model, and scoring is
// deterministic for identical input.
package retrieval

import (
	"sort"
	"strings"

	"github.com/mallhive/concierge/internal/corpus"
)

const (
	// categoryWeight is added once per category matched in both query and fragment.
	categoryWeight = 10

	// maxResults caps how many fragments Search returns.
	maxResults = 4

	// fallbackCount is how many leading fragments Search returns when
	// nothing scores above zero.
	fallbackCount = 3

	// minWordLen: query words must be longer than this to count for overlap.
	minWordLen = 3
)

// category pairs a semantic category with its literal keyword variants.
type category struct {
	name     string
	keywords []string
}

// categories is the fixed scoring table. Pure data: both the query and the
// fragment must contain one of a category's variants for it to count.
var categories = []category{
	{"coffee", []string{"coffee", "café", "cafe", "breeze"}},
	{"chinese", []string{"chinese", "dragon", "wok"}},
	{"sri lankan", []string{"sri lankan", "ceylon", "spice"}},
	{"washroom", []string{"washroom", "toilet", "restroom", "bathroom"}},
	{"conference", []string{"conference", "hall", "meeting"}},
	{"subway", []string{"subway", "metro", "train"}},
	{"parking", []string{"parking", "park", "car"}},
	{"food", []string{"food", "eat", "restaurant", "dining"}},
	{"shop", []string{"shop", "store", "shopping"}},
	{"offer", []string{"offer", "discount", "sale", "deal", "special"}},
}

type scoredFragment struct {
	fragment corpus.Fragment
	score    int
}

// Score computes the relevance of one fragment to a query: +10 for every
// category whose keywords appear in both the lowercased query and the
// lowercased fragment, +1 for every query word longer than three characters
// found as a substring of the fragment.
func Score(query, fragment string) int {
	q := strings.ToLower(query)
	f := strings.ToLower(fragment)

	score := 0
	for _, cat := range categories {
		if containsAny(q, cat.keywords) && containsAny(f, cat.keywords) {
			score += categoryWeight
		}
	}
	for _, word := range strings.Fields(q) {
		if len(word) > minWordLen && strings.Contains(f, word) {
			score++
		}
	}
	return score
}

// Search returns the fragments of c most relevant to query, best first,
// at most four. Equal scores keep original corpus order. When no fragment
// scores above zero the first three fragments are returned unchanged so the
// caller always has some context to work with. An empty corpus yields nil.
func Search(query string, c *corpus.Corpus) []corpus.Fragment {
	if c == nil || len(c.Fragments) == 0 {
		return nil
	}

	scored := make([]scoredFragment, 0, len(c.Fragments))
	for _, f := range c.Fragments {
		if s := Score(query, f.Text); s > 0 {
			scored = append(scored, scoredFragment{fragment: f, score: s})
		}
	}

	if len(scored) == 0 {
		n := min(fallbackCount, len(c.Fragments))
		out := make([]corpus.Fragment, n)
		copy(out, c.Fragments[:n])
		return out
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}

	out := make([]corpus.Fragment, len(scored))
	for i, s := range scored {
		out[i] = s.fragment
	}
	return out
}

// ContextText joins retrieved fragments back into one context block.
func ContextText(fragments []corpus.Fragment) string {
	if len(fragments) == 0 {
		return ""
	}
	parts := make([]string, len(fragments))
	for i, f := range fragments {
		parts[i] = f.Text
	}
	return strings.Join(parts, "\n\n")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
