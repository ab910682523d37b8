// Package result defines the search hit types produced per query.
package result

// Post is the wire shape of one post in a result set, enriched with
// annotation fields when tag data exists for the post.
type Post struct {
	PostID    int64    `json:"post_id"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp"`
	URL       string   `json:"url"`
	Author    string   `json:"user"`
	Reasoning string   `json:"reasoning,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Scored is one ranked search hit. Rank is 1-based and assigned after
// final filtering, in acceptance order.
type Scored struct {
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
	Post
}

// Ranked is a bare (post id, score) pair from the raw similarity
// ranking, before any filtering.
type Ranked struct {
	PostID int64   `json:"post_id"`
	Score  float64 `json:"score"`
}
