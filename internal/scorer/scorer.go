// Package scorer computes per-post similarity scores, combining one or
// more vector spaces into a single ranking.
package scorer

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/domain/search/mode"
	"github.com/kailas-cloud/semdex/internal/domain/search/result"
	"github.com/kailas-cloud/semdex/internal/vectorspace"
)

// Hybrid scores a query vector against the configured spaces. The
// single-space modes use cosine similarity; the hybrid modes combine
// the per-space similarities element-wise.
type Hybrid struct {
	spaces []*vectorspace.Space // configured order: content, reasoning, summary
}

// New creates a scorer over the configured spaces.
func New(spaces ...*vectorspace.Space) *Hybrid {
	return &Hybrid{spaces: spaces}
}

// AvailableModes returns the modes usable with the spaces present on
// disk. Hybrid modes need at least two spaces. Queried dynamically: a
// space added or removed between calls changes the answer.
func (h *Hybrid) AvailableModes() []mode.Mode {
	var modes []mode.Mode
	available := 0
	for _, s := range h.spaces {
		if s.Exists() {
			modes = append(modes, mode.Mode(s.Name()))
			available++
		}
	}
	if available >= 2 {
		modes = append(modes, mode.Average, mode.Maximum, mode.Minimum)
	}
	return modes
}

func (h *Hybrid) modeAvailable(m mode.Mode) bool {
	for _, am := range h.AvailableModes() {
		if am == m {
			return true
		}
	}
	return false
}

// Rank scores every post that has a vector in at least one relevant
// space and returns the full ranking: descending score, ties broken by
// ascending post id. weights apply to average mode only and must match
// the configured space count; they are normalized to sum to 1.
//
// A post missing a vector in some spaces is scored over the spaces that
// do hold one. This graceful degradation is a policy choice, covered
// explicitly by tests.
func (h *Hybrid) Rank(query []float32, m mode.Mode, weights []float64) ([]result.Ranked, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrValidation, m)
	}
	if !h.modeAvailable(m) {
		return nil, fmt.Errorf("%w: mode %q is not available, available modes: %v",
			domain.ErrUnsupportedMode, m, h.AvailableModes())
	}
	if weights != nil {
		if m != mode.Average {
			return nil, fmt.Errorf("%w: weights are only valid with mode %q", domain.ErrValidation, mode.Average)
		}
		if len(weights) != len(h.spaces) {
			return nil, fmt.Errorf("%w: got %d weights for %d configured spaces",
				domain.ErrValidation, len(weights), len(h.spaces))
		}
	}

	if !m.IsHybrid() {
		return h.rankSingle(query, string(m))
	}
	return h.rankCombined(query, m, weights)
}

func (h *Hybrid) space(name string) *vectorspace.Space {
	for _, s := range h.spaces {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func (h *Hybrid) rankSingle(query []float32, name string) ([]result.Ranked, error) {
	s := h.space(name)
	sims, err := s.CosineAll(query)
	if err != nil {
		return nil, err
	}
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}
	ranked := make([]result.Ranked, len(ids))
	for i, id := range ids {
		ranked[i] = result.Ranked{PostID: id, Score: float64(sims[i])}
	}
	sortRanked(ranked)
	return ranked, nil
}

// accum carries per-post combination state across spaces.
type accum struct {
	score     float64
	weightSum float64
	seen      bool
}

func (h *Hybrid) rankCombined(query []float32, m mode.Mode, weights []float64) ([]result.Ranked, error) {
	scores := make(map[int64]*accum)

	for i, s := range h.spaces {
		if !s.Exists() {
			continue
		}
		sims, err := s.CosineAll(query)
		if err != nil {
			return nil, err
		}
		ids, err := s.IDs()
		if err != nil {
			return nil, err
		}

		weight := 1.0
		if weights != nil {
			weight = weights[i]
		}

		for row, id := range ids {
			sim := float64(sims[row])
			a := scores[id]
			if a == nil {
				a = &accum{}
				scores[id] = a
			}
			switch m {
			case mode.Average:
				a.score += sim * weight
				a.weightSum += weight
			case mode.Maximum:
				if !a.seen || sim > a.score {
					a.score = sim
				}
			case mode.Minimum:
				if !a.seen || sim < a.score {
					a.score = sim
				}
			}
			a.seen = true
		}
	}

	ranked := make([]result.Ranked, 0, len(scores))
	for id, a := range scores {
		score := a.score
		// Per-post weight normalization: only the spaces holding a
		// vector for this post contribute, and their weights sum to 1.
		if m == mode.Average && a.weightSum > 0 {
			score /= a.weightSum
		}
		ranked = append(ranked, result.Ranked{PostID: id, Score: score})
	}
	sortRanked(ranked)
	return ranked, nil
}

func sortRanked(ranked []result.Ranked) {
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].PostID < ranked[j].PostID
	})
}
