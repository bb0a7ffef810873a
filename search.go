package main

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// searchThreshold is the minimum similarity for an entry to match.
const searchThreshold = 0.7

var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// searchIndex matches queries against file names and relative paths.
// It is rebuilt from scratch whenever the file set changes.
type searchIndex struct {
	files FileSet
	names []string
	paths []string
}

func newSearchIndex(files FileSet) *searchIndex {
	idx := &searchIndex{
		files: files.clone(),
		names: make([]string, len(files)),
		paths: make([]string, len(files)),
	}
	for i, f := range files {
		idx.names[i] = strings.ToLower(f.Name)
		idx.paths[i] = strings.ToLower(f.RelativePath)
	}
	return idx
}

// pathSource adapts lowercased relative paths to fuzzy.Source
type pathSource []string

func (s pathSource) String(i int) string { return s[i] }
func (s pathSource) Len() int            { return len(s) }

type scoredEntry struct {
	pos        int
	similarity float64
	fuzzy      int
}

// search returns the entries matching query, best first. An empty query
// returns every entry in FileSet order.
func (idx *searchIndex) search(query string) FileSet {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return idx.files.clone()
	}

	fuzzyScores := make(map[int]int)
	for _, m := range fuzzy.FindFrom(q, pathSource(idx.paths)) {
		fuzzyScores[m.Index] = m.Score
	}

	qr := []rune(q)
	var hits []scoredEntry
	for i := range idx.files {
		sim := similarity(qr, idx.names[i])
		if sim < 1 {
			if s := similarity(qr, idx.paths[i]); s > sim {
				sim = s
			}
		}
		if sim < searchThreshold {
			continue
		}
		hits = append(hits, scoredEntry{pos: i, similarity: sim, fuzzy: fuzzyScores[i]})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].similarity != hits[b].similarity {
			return hits[a].similarity > hits[b].similarity
		}
		return hits[a].fuzzy > hits[b].fuzzy
	})

	out := make(FileSet, 0, len(hits))
	for _, h := range hits {
		out = append(out, idx.files[h.pos])
	}
	return out
}

// similarity scores how well query occurs somewhere in key, from 0 to 1.
// A substring hit is 1; otherwise the best edit distance against windows of
// roughly the query's length is scaled by the query length.
func similarity(query []rune, key string) float64 {
	if strings.Contains(key, string(query)) {
		return 1
	}
	kr := []rune(key)
	n := len(query)
	if n == 0 {
		return 1
	}

	best := -1
	for width := n - 1; width <= n+1; width++ {
		if width < 1 {
			continue
		}
		if width > len(kr) {
			break
		}
		for start := 0; start+width <= len(kr); start++ {
			d := levenshtein.DistanceForStrings(query, kr[start:start+width], editOptions)
			if best < 0 || d < best {
				best = d
			}
		}
	}
	if best < 0 {
		best = levenshtein.DistanceForStrings(query, kr, editOptions)
	}

	sim := 1 - float64(best)/float64(n)
	if sim < 0 {
		return 0
	}
	return sim
}
