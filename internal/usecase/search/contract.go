package search

import (
	"context"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/domain/search/mode"
	"github.com/kailas-cloud/semdex/internal/domain/search/result"
)

// PostReader reads the immutable post snapshot.
type PostReader interface {
	Get(id int64) (domain.Post, bool)
	NewestFirst() []int64
	AuthorPostCounts() map[string]int
}

// AnnotationReader reads per-post tagging annotations.
type AnnotationReader interface {
	Get(id int64) (domain.Annotation, bool)
	PostsWithTag(tag string) []int64
}

// Ranker produces the full similarity ranking for a query vector.
type Ranker interface {
	Rank(query []float32, m mode.Mode, weights []float64) ([]result.Ranked, error)
	AvailableModes() []mode.Mode
}

// Embedder vectorizes text. Potentially slow and blocking; this cost is
// exactly what the daemon protocol hides from callers.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
