// Package search implements the filtering, ranking, and deduplicating
// search engine over the post store and vector spaces.
package search

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/domain/search/mode"
	"github.com/kailas-cloud/semdex/internal/domain/search/result"
	"github.com/kailas-cloud/semdex/internal/domain/search/settings"
	"github.com/kailas-cloud/semdex/internal/textquery"
)

// Service is the stateless search orchestrator. All state it touches is
// the read-only post snapshot and the vector spaces; the only mutable
// state is the dedup tracker local to a single Search call.
type Service struct {
	posts  PostReader
	tags   AnnotationReader
	ranker Ranker
	embed  Embedder
}

// New creates a search service.
func New(posts PostReader, tags AnnotationReader, ranker Ranker, embed Embedder) *Service {
	return &Service{posts: posts, tags: tags, ranker: ranker, embed: embed}
}

// candidate is one enumerated post before filtering.
type candidate struct {
	id    int64
	score float64
}

// Search runs a V|T pipeline query with filters and deduplication.
// Candidates failing a filter are skipped without consuming a result
// slot; iteration stops once settings.TopK results are accepted. Rank
// is assigned 1..N after filtering.
func (s *Service) Search(
	ctx context.Context, query string, st settings.Settings, m mode.Mode, weights []float64,
) ([]result.Scored, error) {
	vectorQuery, textFilter := textquery.SplitPipeline(query)
	if vectorQuery == "" && textFilter == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrValidation)
	}

	var (
		candidates []candidate
		compound   bool
		err        error
	)
	if vectorQuery == "" {
		candidates, err = s.textCandidates(textFilter, m)
	} else {
		compound = textFilter != ""
		candidates, err = s.vectorCandidates(ctx, vectorQuery, m, weights)
	}
	if err != nil {
		return nil, err
	}

	var include, exclude []string
	if compound {
		include, exclude = textquery.ParseTerms(textFilter)
	}

	return s.filter(ctx, candidates, st, compound, include, exclude)
}

// filter applies the fixed test order (text -> user -> date -> dedup)
// and early-terminates at topK accepted results.
func (s *Service) filter(
	ctx context.Context, candidates []candidate, st settings.Settings,
	compound bool, include, exclude []string,
) ([]result.Scored, error) {
	postCounts := s.posts.AuthorPostCounts()
	accepted := make([]result.Scored, 0, st.TopK())
	seen := make(map[domain.DedupKey]int) // dedup key -> index into accepted

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		post, ok := s.posts.Get(c.id)
		if !ok {
			continue
		}

		if compound && !textquery.Match(post.Content, include, exclude) {
			continue
		}
		if !st.UserFilter().Allows(post.Author, postCounts) {
			continue
		}
		if !st.DateFilter().Allows(post.Timestamp) {
			continue
		}

		key := post.Dedup()
		if idx, dup := seen[key]; dup {
			// Among duplicates the earliest timestamp survives: a later
			// candidate with an older timestamp replaces the accepted
			// one in place, keeping its result slot.
			if post.Timestamp < accepted[idx].Timestamp {
				accepted[idx] = s.enrich(post, c.score)
			}
			continue
		}

		seen[key] = len(accepted)
		accepted = append(accepted, s.enrich(post, c.score))
		if len(accepted) >= st.TopK() {
			break
		}
	}

	for i := range accepted {
		accepted[i].Rank = i + 1
	}
	return accepted, nil
}

func (s *Service) enrich(post domain.Post, score float64) result.Scored {
	r := result.Scored{
		Score: score,
		Post: result.Post{
			PostID:    post.ID,
			Content:   post.Content,
			Timestamp: post.Timestamp,
			URL:       post.URL,
			Author:    post.Author,
		},
	}
	if a, ok := s.tags.Get(post.ID); ok {
		r.Reasoning = a.Reasoning
		r.Summary = a.Summary
		r.Tags = a.Tags
	}
	return r
}

// vectorCandidates embeds the seed text and enumerates posts by
// descending similarity.
func (s *Service) vectorCandidates(
	ctx context.Context, vectorQuery string, m mode.Mode, weights []float64,
) ([]candidate, error) {
	vec, err := s.embed.Embed(ctx, vectorQuery)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	ranked, err := s.ranker.Rank(vec, m, weights)
	if err != nil {
		return nil, err
	}
	candidates := make([]candidate, len(ranked))
	for i, r := range ranked {
		candidates[i] = candidate{id: r.PostID, score: r.Score}
	}
	return candidates, nil
}

// textCandidates enumerates posts matching the text filter alone,
// newest first, with a constant score. Hybrid modes have no text facet
// to search.
func (s *Service) textCandidates(textFilter string, m mode.Mode) ([]candidate, error) {
	if m.IsHybrid() {
		return nil, fmt.Errorf(
			"%w: hybrid mode %q requires a vector query", domain.ErrValidation, m,
		)
	}
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrValidation, m)
	}

	include, exclude := textquery.ParseTerms(textFilter)
	var candidates []candidate
	for _, id := range s.posts.NewestFirst() {
		if textquery.Match(s.facetText(id, m), include, exclude) {
			candidates = append(candidates, candidate{id: id, score: 1.0})
		}
	}
	return candidates, nil
}

// facetText returns the text searched for a single-space mode: the post
// content, or the tagging rationale / summary from the annotations.
func (s *Service) facetText(id int64, m mode.Mode) string {
	switch m {
	case mode.Content:
		if post, ok := s.posts.Get(id); ok {
			return post.Content
		}
	case mode.Reasoning:
		if a, ok := s.tags.Get(id); ok {
			return a.Reasoning
		}
	case mode.Summary:
		if a, ok := s.tags.Get(id); ok {
			return a.Summary
		}
	}
	return ""
}

// RankAll runs the raw similarity ranking for the vector part of a V|T
// query. topK <= 0 means unbounded: the full ranking is returned and the
// transport chunks it. A text filter, when present, is applied while
// collecting.
func (s *Service) RankAll(
	ctx context.Context, query string, topK int, m mode.Mode, weights []float64,
) ([]result.Ranked, error) {
	vectorQuery, textFilter := textquery.SplitPipeline(query)
	if vectorQuery == "" {
		return nil, fmt.Errorf("%w: vector query part is empty", domain.ErrValidation)
	}

	vec, err := s.embed.Embed(ctx, vectorQuery)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	ranked, err := s.ranker.Rank(vec, m, weights)
	if err != nil {
		return nil, err
	}
	if textFilter == "" && topK <= 0 {
		return ranked, nil
	}

	include, exclude := textquery.ParseTerms(textFilter)
	out := make([]result.Ranked, 0, len(ranked))
	for _, r := range ranked {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if textFilter != "" {
			post, ok := s.posts.Get(r.PostID)
			if !ok || !textquery.Match(post.Content, include, exclude) {
				continue
			}
		}
		out = append(out, r)
		if topK > 0 && len(out) >= topK {
			break
		}
	}
	return out, nil
}

// SearchByText runs a text-only term search against a source facet,
// newest first, bounded by limit.
func (s *Service) SearchByText(
	ctx context.Context, term string, limit int, m mode.Mode,
) ([]result.Post, error) {
	if term == "" {
		return nil, fmt.Errorf("%w: search term is empty", domain.ErrValidation)
	}
	candidates, err := s.textCandidates(term, m)
	if err != nil {
		return nil, err
	}

	out := make([]result.Post, 0, limit)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		post, ok := s.posts.Get(c.id)
		if !ok {
			continue
		}
		out = append(out, s.enrich(post, 0).Post)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// PostsByTag returns posts carrying the tag, newest first, bounded by
// limit.
func (s *Service) PostsByTag(ctx context.Context, tag string, limit int) ([]result.Post, error) {
	if tag == "" {
		return nil, fmt.Errorf("%w: tag is empty", domain.ErrValidation)
	}

	ids := s.tags.PostsWithTag(tag)
	tagged := make(map[int64]bool, len(ids))
	for _, id := range ids {
		tagged[id] = true
	}

	out := make([]result.Post, 0, limit)
	for _, id := range s.posts.NewestFirst() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !tagged[id] {
			continue
		}
		post, ok := s.posts.Get(id)
		if !ok {
			continue
		}
		out = append(out, s.enrich(post, 0).Post)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AvailableModes reports the scoring modes currently usable.
func (s *Service) AvailableModes() []mode.Mode {
	return s.ranker.AvailableModes()
}
