package bm25

import (
	"math"
	"sort"

	"github.com/igoryan-dao/quill/internal/textutil"
)

// Stats holds corpus-wide term statistics. They are computed at index
// time and loaded at query time to build sparse query vectors that match
// the indexed document vectors.
type Stats struct {
	DocCount int                `json:"doc_count"`
	AvgDL    float64            `json:"avgdl"`
	Vocab    map[string]int     `json:"vocab"`
	IDF      map[string]float64 `json:"idf"`
}

// SparseVector pairs vocabulary indices with term weights. Indices are
// sorted ascending, the order Pinecone expects.
type SparseVector struct {
	Indices []int     `json:"indices"`
	Values  []float64 `json:"values"`
}

// Empty reports whether the vector carries no terms.
func (v *SparseVector) Empty() bool {
	return v == nil || len(v.Indices) == 0
}

// DocTerms carries one document's term frequencies for vector building.
type DocTerms struct {
	TF     map[string]int
	DocLen int
}

// BuildStats computes corpus statistics over the given texts and returns
// the per-document term frequencies alongside.
func BuildStats(texts []string) (*Stats, []DocTerms) {
	df := make(map[string]int)
	terms := make([]DocTerms, 0, len(texts))
	totalLen := 0

	for _, text := range texts {
		tf := make(map[string]int)
		docLen := 0
		for _, tok := range textutil.Tokenize(text) {
			tf[tok]++
			docLen++
		}
		totalLen += docLen
		terms = append(terms, DocTerms{TF: tf, DocLen: docLen})
		for term := range tf {
			df[term]++
		}
	}

	docCount := len(texts)
	avgdl := 0.0
	if docCount > 0 {
		avgdl = float64(totalLen) / float64(docCount)
	}

	vocabTerms := make([]string, 0, len(df))
	for term := range df {
		vocabTerms = append(vocabTerms, term)
	}
	sort.Strings(vocabTerms)

	vocab := make(map[string]int, len(vocabTerms))
	for i, term := range vocabTerms {
		vocab[term] = i
	}

	idf := make(map[string]float64, len(df))
	for term, dfi := range df {
		idf[term] = math.Log(1.0 + (float64(docCount)-float64(dfi)+0.5)/(float64(dfi)+0.5))
	}

	return &Stats{DocCount: docCount, AvgDL: avgdl, Vocab: vocab, IDF: idf}, terms
}

// DocVector weights one document's terms against the corpus stats using
// the BM25 saturation formula.
func DocVector(terms DocTerms, stats *Stats, k1, b float64) *SparseVector {
	if len(terms.TF) == 0 || stats == nil || len(stats.Vocab) == 0 || terms.DocLen <= 0 {
		return &SparseVector{}
	}

	denomBase := k1
	if stats.AvgDL != 0 {
		denomBase = k1 * (1.0 - b + b*(float64(terms.DocLen)/stats.AvgDL))
	}

	type weighted struct {
		idx int
		val float64
	}
	var pairs []weighted
	for term, freq := range terms.TF {
		idf, ok := stats.IDF[term]
		if !ok {
			continue
		}
		idx, ok := stats.Vocab[term]
		if !ok {
			continue
		}
		tf := float64(freq)
		weight := idf * (tf * (k1 + 1.0) / (tf + denomBase))
		if weight <= 0.0 {
			continue
		}
		pairs = append(pairs, weighted{idx: idx, val: weight})
	}
	if len(pairs) == 0 {
		return &SparseVector{}
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].idx < pairs[j].idx })
	vec := &SparseVector{
		Indices: make([]int, len(pairs)),
		Values:  make([]float64, len(pairs)),
	}
	for i, p := range pairs {
		vec.Indices[i] = p.idx
		vec.Values[i] = p.val
	}
	return vec
}

// BuildQueryVector maps a query onto the corpus vocabulary with tf*idf
// weights. Terms outside the vocabulary are dropped.
func BuildQueryVector(query string, stats *Stats) *SparseVector {
	if stats == nil || len(stats.Vocab) == 0 || len(stats.IDF) == 0 {
		return &SparseVector{}
	}

	counts := make(map[string]int)
	for _, tok := range textutil.Tokenize(query) {
		counts[tok]++
	}
	if len(counts) == 0 {
		return &SparseVector{}
	}

	type weighted struct {
		idx int
		val float64
	}
	var pairs []weighted
	for term, tf := range counts {
		idx, ok := stats.Vocab[term]
		if !ok {
			continue
		}
		idf, ok := stats.IDF[term]
		if !ok {
			continue
		}
		pairs = append(pairs, weighted{idx: idx, val: float64(tf) * idf})
	}
	if len(pairs) == 0 {
		return &SparseVector{}
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].idx < pairs[j].idx })
	vec := &SparseVector{
		Indices: make([]int, len(pairs)),
		Values:  make([]float64, len(pairs)),
	}
	for i, p := range pairs {
		vec.Indices[i] = p.idx
		vec.Values[i] = p.val
	}
	return vec
}
