// Package status reports daemon readiness and data-set statistics.
package status

import (
	"sort"
	"sync/atomic"
)

// Report is the get_status response.
type Report struct {
	Status      string `json:"status"`
	Ready       bool   `json:"ready"`
	Model       string `json:"model"`
	LoadedPosts int    `json:"loaded_posts"`
}

// UserStat is one author with their post count.
type UserStat struct {
	User      string `json:"user"`
	PostCount int    `json:"post_count"`
}

// DBStats is the get_database_stats response.
type DBStats struct {
	TotalPosts int       `json:"total_posts"`
	TotalUsers int       `json:"total_users"`
	DateRange  DateRange `json:"date_range"`
}

// DateRange is an inclusive timestamp span.
type DateRange struct {
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
}

// Service answers status and statistics queries. Readiness is flipped
// once by the daemon after heavy initialization completes.
type Service struct {
	model string
	posts PostReader
	ready atomic.Bool
}

// New creates a status service. posts may be nil until SetReady.
func New(model string) *Service {
	return &Service{model: model}
}

// SetReady marks initialization complete and attaches the loaded snapshot.
func (s *Service) SetReady(posts PostReader) {
	s.posts = posts
	s.ready.Store(true)
}

// Ready reports whether initialization has completed.
func (s *Service) Ready() bool { return s.ready.Load() }

// Report returns the current status.
func (s *Service) Report() Report {
	r := Report{Status: "initializing", Ready: s.ready.Load(), Model: s.model}
	if r.Ready {
		r.Status = "ok"
		r.LoadedPosts = s.posts.Len()
	}
	return r
}

// UserStats returns authors by descending post count, bounded by limit.
func (s *Service) UserStats(limit int) []UserStat {
	if !s.ready.Load() {
		return nil
	}
	counts := s.posts.AuthorPostCounts()
	stats := make([]UserStat, 0, len(counts))
	for user, count := range counts {
		stats = append(stats, UserStat{User: user, PostCount: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].PostCount != stats[j].PostCount {
			return stats[i].PostCount > stats[j].PostCount
		}
		return stats[i].User < stats[j].User
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

// DBStats returns data-set statistics.
func (s *Service) DBStats() DBStats {
	if !s.ready.Load() {
		return DBStats{}
	}
	earliest, latest := s.posts.TimestampRange()
	return DBStats{
		TotalPosts: s.posts.Len(),
		TotalUsers: len(s.posts.AuthorPostCounts()),
		DateRange:  DateRange{Earliest: earliest, Latest: latest},
	}
}
