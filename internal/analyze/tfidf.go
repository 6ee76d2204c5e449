// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"math"
	"slices"
	"sort"
	"strings"
)

const (
	minDocFreq = 2
	maxDocFrac = 0.95
)

// tfidf is a dense document-term matrix with L2-normalized rows.
type tfidf struct {
	vocab []string
	rows  [][]float64
}

// vectorize builds the TF-IDF matrix for docs. When no term survives the
// document frequency bounds it retries with unigrams only, min_df=1 and
// no upper bound.
func vectorize(docs [][]string, maxFeatures int) tfidf {
	vocab := vocabulary(docs, minDocFreq, maxDocFrac, maxFeatures, true)
	if len(vocab) == 0 {
		vocab = vocabulary(docs, 1, 1.0, maxFeatures, false)
	}

	index := make(map[string]int, len(vocab))
	for i, term := range vocab {
		index[term] = i
	}

	n := len(docs)
	df := make([]int, len(vocab))
	for _, doc := range docs {
		for _, term := range distinct(doc) {
			if j, ok := index[term]; ok {
				df[j]++
			}
		}
	}
	idf := make([]float64, len(vocab))
	for j := range vocab {
		idf[j] = math.Log(float64(1+n)/float64(1+df[j])) + 1
	}

	rows := make([][]float64, n)
	for i, doc := range docs {
		row := make([]float64, len(vocab))
		for _, term := range doc {
			if j, ok := index[term]; ok {
				row[j]++
			}
		}
		var norm float64
		for j := range row {
			row[j] = float64(row[j] * idf[j])
			norm += float64(row[j] * row[j])
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range row {
				row[j] /= norm
			}
		}
		rows[i] = row
	}
	return tfidf{vocab: vocab, rows: rows}
}

// vocabulary returns the sorted terms whose document frequency lies in
// [minDF, maxFrac*len(docs)], keeping at most maxFeatures terms by
// descending document frequency.
func vocabulary(docs [][]string, minDF int, maxFrac float64, maxFeatures int, bigrams bool) []string {
	df := make(map[string]int)
	for _, doc := range docs {
		for _, term := range distinct(doc) {
			if !bigrams && strings.Contains(term, " ") {
				continue
			}
			df[term]++
		}
	}

	maxDF := maxFrac * float64(len(docs))
	terms := make([]string, 0, len(df))
	for term, count := range df {
		if count >= minDF && float64(count) <= maxDF {
			terms = append(terms, term)
		}
	}

	if maxFeatures > 0 && len(terms) > maxFeatures {
		sort.Slice(terms, func(a, b int) bool {
			if df[terms[a]] != df[terms[b]] {
				return df[terms[a]] > df[terms[b]]
			}
			return terms[a] < terms[b]
		})
		terms = terms[:maxFeatures]
	}
	slices.Sort(terms)
	return terms
}

func distinct(doc []string) []string {
	seen := make(map[string]bool, len(doc))
	out := make([]string, 0, len(doc))
	for _, term := range doc {
		if !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}
	return out
}
