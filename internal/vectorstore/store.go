package vectorstore

import (
	"context"
	"fmt"
	"math"
)

// Record is the store's view of a document: content is carried inside
// metadata so a search hit needs no second lookup.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Match is a record returned from a similarity query.
type Match struct {
	Record
	Score float64
}

// Store is a backend supporting filtered similarity search over stored
// vectors. Filters are exact-match AND predicates over metadata fields.
// Tie order between equal scores is unspecified.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	QueryTopK(ctx context.Context, vector []float32, k int, filter map[string]any) ([]Match, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error
}

// CosineSimilarity returns dot(a,b) / (|a|*|b|). A zero-magnitude input
// yields 0, never NaN.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// MatchesFilter reports whether metadata satisfies every filter entry.
// Values are compared by their string form since metadata roundtrips
// through BSON/JSON and numeric types shift in transit.
func MatchesFilter(meta map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
