package client

import "fmt"

// Error is a JSON-RPC error returned by the server.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Kind string `json:"kind,omitempty"`
	} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Kind returns the machine-readable error category, empty when the
// server attached none.
func (e *Error) Kind() string {
	if e.Data == nil {
		return ""
	}
	return e.Data.Kind
}

// UserFilter restricts results by author.
type UserFilter struct {
	Includes     []string `json:"includes,omitempty"`
	Excludes     []string `json:"excludes,omitempty"`
	ThresholdMin *int     `json:"threshold_min,omitempty"`
	ThresholdMax *int     `json:"threshold_max,omitempty"`
}

// DateFilter restricts results to a timestamp range. Bounds use
// "2006-01-02 15:04:05" or "2006-01-02".
type DateFilter struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// SearchSettings is the filter block accepted by SearchSimilar. A zero
// TopK is left off the wire so the server applies its default.
type SearchSettings struct {
	UserFilter UserFilter `json:"user_filter"`
	DateFilter DateFilter `json:"date_filter"`
	TopK       int        `json:"top_k,omitempty"`
}

// Post is a stored post with its optional annotations.
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

// ScoredPost is a ranked, filtered search result.
type ScoredPost struct {
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
	Post
}

// RankedPost is a bare (id, score) pair from VectorSearch.
type RankedPost struct {
	PostID int64   `json:"post_id"`
	Score  float64 `json:"score"`
}

// Status reports daemon state.
type Status struct {
	Status         string   `json:"status"`
	Ready          bool     `json:"ready"`
	Model          string   `json:"model"`
	LoadedPosts    int      `json:"loaded_posts"`
	AvailableModes []string `json:"available_modes,omitempty"`
}

// UserStat is one author's post count.
type UserStat struct {
	User      string `json:"user"`
	PostCount int    `json:"post_count"`
}

// DatabaseStats summarizes the loaded corpus.
type DatabaseStats struct {
	TotalPosts int `json:"total_posts"`
	TotalUsers int `json:"total_users"`
	DateRange  struct {
		Earliest string `json:"earliest"`
		Latest   string `json:"latest"`
	} `json:"date_range"`
}

// SearchOptions tunes SearchSimilar beyond the bare query.
type SearchOptions struct {
	Settings *SearchSettings
	Mode     string
	Weights  []float64
}
