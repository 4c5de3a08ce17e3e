package retrieval

import (
	"context"

	"github.com/igoryan-dao/quill/internal/bm25"
)

// Match is one scored hit from a vector store query.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// QueryRequest describes a similarity search. Filter uses the Pinecone
// operator syntax ({"doc_id": {"$eq": "..."}}, {"page": {"$gte": 2}});
// plain values are treated as equality.
type QueryRequest struct {
	Namespace    string
	Vector       []float32
	TopK         int
	Filter       map[string]any
	SparseVector *bm25.SparseVector
}

// Vector is one record to upsert.
type Vector struct {
	ID       string
	Values   []float32
	Sparse   *bm25.SparseVector
	Metadata map[string]any
}

// DeleteRequest removes vectors by ID, by metadata filter, or wholesale.
type DeleteRequest struct {
	Namespace string
	IDs       []string
	Filter    map[string]any
	DeleteAll bool
}

// IndexStats summarizes the index contents.
type IndexStats struct {
	Dimension  int            `json:"dimension"`
	Namespaces map[string]int `json:"namespaces"`
}

// VectorStore is a namespaced dense+sparse vector index.
type VectorStore interface {
	Query(ctx context.Context, req *QueryRequest) ([]Match, error)
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	Delete(ctx context.Context, req *DeleteRequest) error
	Stats(ctx context.Context) (*IndexStats, error)
}

// matchesFilter evaluates a Pinecone-style metadata filter against md.
// Supported operators: $eq, $ne, $gte, $lte, $gt, $lt, $in. A bare value
// means equality.
func matchesFilter(md map[string]any, filter map[string]any) bool {
	for field, cond := range filter {
		value, ok := md[field]
		if !ok {
			return false
		}
		ops, isOps := cond.(map[string]any)
		if !isOps {
			if !looseEqual(value, cond) {
				return false
			}
			continue
		}
		for op, want := range ops {
			switch op {
			case "$eq":
				if !looseEqual(value, want) {
					return false
				}
			case "$ne":
				if looseEqual(value, want) {
					return false
				}
			case "$gte", "$lte", "$gt", "$lt":
				a, aok := toFloat(value)
				b, bok := toFloat(want)
				if !aok || !bok {
					return false
				}
				switch op {
				case "$gte":
					if !(a >= b) {
						return false
					}
				case "$lte":
					if !(a <= b) {
						return false
					}
				case "$gt":
					if !(a > b) {
						return false
					}
				case "$lt":
					if !(a < b) {
						return false
					}
				}
			case "$in":
				list, lok := want.([]any)
				if !lok {
					return false
				}
				found := false
				for _, item := range list {
					if looseEqual(value, item) {
						found = true
						break
					}
				}
				if !found {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}

// looseEqual compares metadata values, treating all numeric types as
// float64 the way JSON round-trips do.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
