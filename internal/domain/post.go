// Package domain holds the core entities shared across layers.
package domain

import "strings"

// Post is one unit of searchable content. Immutable once loaded.
// The id is the only key correlating posts across vector spaces, the
// record store, and result sets. It is an int64 end to end and must
// never pass through a floating-point representation.
type Post struct {
	ID        int64
	Content   string
	Timestamp string // sortable "2006-01-02 15:04:05" form
	URL       string
	Author    string
}

// DedupKey identifies logically duplicate posts: same author, same
// trimmed content. Among duplicates the earliest timestamp survives.
type DedupKey struct {
	Author  string
	Content string
}

// Dedup returns the deduplication key for the post.
func (p *Post) Dedup() DedupKey {
	return DedupKey{Author: p.Author, Content: strings.TrimSpace(p.Content)}
}

// Annotation holds the tagging output attached to a post: the model's
// tagging rationale, a one-line summary, and the tag list.
type Annotation struct {
	Reasoning string   `json:"reasoning"`
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
}
