// Package settings holds the per-request search settings value object.
package settings

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// TopK limits.
const (
	MinTopK     = 1
	MaxTopK     = 100
	DefaultTopK = 10
)

// UserFilter restricts results by author. Includes and excludes are a
// mutually exclusive choice; if both are set, includes takes precedence.
// The post-count thresholds combine independently with either.
type UserFilter struct {
	Includes     []string
	Excludes     []string
	ThresholdMin *int
	ThresholdMax *int
}

// Allows reports whether posts by the author pass the filter.
// postCounts maps author to their total post count.
func (f UserFilter) Allows(author string, postCounts map[string]int) bool {
	if len(f.Includes) > 0 {
		found := false
		for _, u := range f.Includes {
			if u == author {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	} else if len(f.Excludes) > 0 {
		for _, u := range f.Excludes {
			if u == author {
				return false
			}
		}
	}

	count := postCounts[author]
	if f.ThresholdMin != nil && count < *f.ThresholdMin {
		return false
	}
	if f.ThresholdMax != nil && count > *f.ThresholdMax {
		return false
	}
	return true
}

// DateFilter restricts results to an inclusive [From, To] timestamp range.
// A bound that fails to parse is treated as absent rather than rejecting
// the query. This fail-open behavior is deliberate and covered by tests.
type DateFilter struct {
	From string
	To   string
}

var dateLayouts = []string{"2006-01-02 15:04:05", "2006-01-02"}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Allows reports whether the timestamp passes the filter. Posts with a
// missing or unparseable timestamp always pass (fail open).
func (f DateFilter) Allows(timestamp string) bool {
	if f.From == "" && f.To == "" {
		return true
	}
	if timestamp == "" {
		return true
	}
	ts, ok := parseTimestamp(timestamp)
	if !ok {
		return true
	}

	if f.From != "" {
		if from, ok := parseTimestamp(f.From); ok && ts.Before(from) {
			return false
		}
	}
	if f.To != "" {
		if to, ok := parseTimestamp(f.To); ok && ts.After(to) {
			return false
		}
	}
	return true
}

// Settings is the immutable per-request search configuration.
// Deduplication is always on and not user-configurable.
type Settings struct {
	userFilter UserFilter
	dateFilter DateFilter
	topK       int
}

// New validates and creates search settings. topK must lie in
// [MinTopK, MaxTopK]; out-of-range values are an error, never clamped.
func New(userFilter UserFilter, dateFilter DateFilter, topK int) (Settings, error) {
	if topK < MinTopK || topK > MaxTopK {
		return Settings{}, fmt.Errorf(
			"%w: top_k must be between %d and %d, got %d",
			domain.ErrValidation, MinTopK, MaxTopK, topK,
		)
	}
	return Settings{userFilter: userFilter, dateFilter: dateFilter, topK: topK}, nil
}

// Default returns settings with no filters and the default topK.
func Default() Settings {
	return Settings{topK: DefaultTopK}
}

// UserFilter returns the author filter.
func (s Settings) UserFilter() UserFilter { return s.userFilter }

// DateFilter returns the timestamp filter.
func (s Settings) DateFilter() DateFilter { return s.dateFilter }

// TopK returns the maximum number of results to produce.
func (s Settings) TopK() int { return s.topK }

type wireUserFilter struct {
	Includes     []string `json:"includes,omitempty"`
	Excludes     []string `json:"excludes,omitempty"`
	ThresholdMin *int     `json:"threshold_min,omitempty"`
	ThresholdMax *int     `json:"threshold_max,omitempty"`
}

type wireDateFilter struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// TopK is a pointer so an absent field is distinguishable from an
// explicit 0: absent falls back to the default, 0 is out of range.
type wireSettings struct {
	UserFilter wireUserFilter `json:"user_filter"`
	DateFilter wireDateFilter `json:"date_filter"`
	TopK       *int           `json:"top_k"`
}

// MarshalJSON implements the wire format shared with clients.
func (s Settings) MarshalJSON() ([]byte, error) {
	topK := s.topK
	return json.Marshal(wireSettings{
		UserFilter: wireUserFilter{
			Includes:     s.userFilter.Includes,
			Excludes:     s.userFilter.Excludes,
			ThresholdMin: s.userFilter.ThresholdMin,
			ThresholdMax: s.userFilter.ThresholdMax,
		},
		DateFilter: wireDateFilter{From: s.dateFilter.From, To: s.dateFilter.To},
		TopK:       &topK,
	})
}

// UnmarshalJSON decodes and validates the wire format. An absent top_k
// falls back to DefaultTopK; an out-of-range one is a validation error.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var w wireSettings
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	topK := DefaultTopK
	if w.TopK != nil {
		topK = *w.TopK
	}
	decoded, err := New(
		UserFilter{
			Includes:     w.UserFilter.Includes,
			Excludes:     w.UserFilter.Excludes,
			ThresholdMin: w.UserFilter.ThresholdMin,
			ThresholdMax: w.UserFilter.ThresholdMax,
		},
		DateFilter{From: w.DateFilter.From, To: w.DateFilter.To},
		topK,
	)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
