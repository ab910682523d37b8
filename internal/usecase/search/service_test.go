package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/domain/search/mode"
	"github.com/kailas-cloud/semdex/internal/domain/search/result"
	"github.com/kailas-cloud/semdex/internal/domain/search/settings"
)

// --- Mocks ---

type mockPosts struct {
	posts map[int64]domain.Post
}

func (m *mockPosts) Get(id int64) (domain.Post, bool) {
	p, ok := m.posts[id]
	return p, ok
}

func (m *mockPosts) NewestFirst() []int64 {
	ids := make([]int64, 0, len(m.posts))
	for id := range m.posts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m.posts[ids[i]], m.posts[ids[j]]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (m *mockPosts) AuthorPostCounts() map[string]int {
	counts := make(map[string]int)
	for _, p := range m.posts {
		counts[p.Author]++
	}
	return counts
}

type mockTags struct {
	annotations map[int64]domain.Annotation
	byTag       map[string][]int64
}

func (m *mockTags) Get(id int64) (domain.Annotation, bool) {
	a, ok := m.annotations[id]
	return a, ok
}

func (m *mockTags) PostsWithTag(tag string) []int64 {
	return m.byTag[tag]
}

type mockRanker struct {
	ranked []result.Ranked
	err    error
	modes  []mode.Mode
	called bool
}

func (m *mockRanker) Rank(_ []float32, _ mode.Mode, _ []float64) ([]result.Ranked, error) {
	m.called = true
	return m.ranked, m.err
}

func (m *mockRanker) AvailableModes() []mode.Mode { return m.modes }

type mockEmbedder struct {
	vec    []float32
	err    error
	called bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.called = true
	return m.vec, m.err
}

// --- Fixtures ---

func post(id int64, author, content, timestamp string) domain.Post {
	return domain.Post{
		ID:        id,
		Author:    author,
		Content:   content,
		Timestamp: timestamp,
		URL:       fmt.Sprintf("https://x.com/%s/status/%d", author, id),
	}
}

// corpus builds ten posts by distinct authors with descending scores.
func corpus() (*mockPosts, *mockRanker) {
	posts := &mockPosts{posts: map[int64]domain.Post{}}
	var ranked []result.Ranked
	for i := int64(1); i <= 10; i++ {
		posts.posts[i] = post(i, fmt.Sprintf("user%d", i),
			fmt.Sprintf("post number %d about machine learning", i),
			fmt.Sprintf("2022-01-%02d 12:00:00", i))
		ranked = append(ranked, result.Ranked{PostID: i, Score: 1 - float64(i)*0.05})
	}
	return posts, &mockRanker{ranked: ranked, modes: []mode.Mode{mode.Content}}
}

func mustSettings(t *testing.T, uf settings.UserFilter, df settings.DateFilter, topK int) settings.Settings {
	t.Helper()
	st, err := settings.New(uf, df, topK)
	if err != nil {
		t.Fatalf("settings.New: %v", err)
	}
	return st
}

// --- Tests ---

func TestSearch_TopKBoundsResults(t *testing.T) {
	posts, ranker := corpus()
	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(posts, &mockTags{}, ranker, embed)

	st := mustSettings(t, settings.UserFilter{}, settings.DateFilter{}, 5)
	results, err := svc.Search(context.Background(), "machine learning", st, mode.Content, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Rank != i+1 {
			t.Errorf("result %d rank = %d, want %d", i, r.Rank, i+1)
		}
	}
	if results[0].PostID != 1 {
		t.Errorf("best result = %d, want 1", results[0].PostID)
	}
	if !embed.called {
		t.Error("expected Embed to be called")
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	posts, ranker := corpus()
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{vec: []float32{0.1}})

	_, err := svc.Search(context.Background(), "   ", settings.Default(), mode.Content, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSearch_DateFilterSkipsWithoutConsumingSlots(t *testing.T) {
	posts, ranker := corpus()
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{vec: []float32{0.1}})

	// posts 1-4 fall before the bound; the top 5 accepted are posts 5-9
	st := mustSettings(t, settings.UserFilter{}, settings.DateFilter{From: "2022-01-05"}, 5)
	results, err := svc.Search(context.Background(), "machine learning", st, mode.Content, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if results[0].PostID != 5 {
		t.Errorf("first result = %d, want 5", results[0].PostID)
	}
}

func TestSearch_UserFilter(t *testing.T) {
	posts, ranker := corpus()
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{vec: []float32{0.1}})

	st := mustSettings(t, settings.UserFilter{Includes: []string{"user3", "user7"}}, settings.DateFilter{}, 10)
	results, err := svc.Search(context.Background(), "machine learning", st, mode.Content, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].PostID != 3 || results[1].PostID != 7 {
		t.Errorf("results = %d, %d, want 3, 7", results[0].PostID, results[1].PostID)
	}
}

func TestSearch_DedupKeepsEarliestTimestamp(t *testing.T) {
	// two posts by the same author with identical content; the higher
	// scored one is newer
	posts := &mockPosts{posts: map[int64]domain.Post{
		1: post(1, "alice", "same text", "2022-05-01 10:00:00"),
		2: post(2, "alice", "same text", "2022-01-01 10:00:00"),
		3: post(3, "bob", "other text", "2022-03-01 10:00:00"),
	}}
	ranker := &mockRanker{ranked: []result.Ranked{
		{PostID: 1, Score: 0.9},
		{PostID: 3, Score: 0.8},
		{PostID: 2, Score: 0.7},
	}}
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{vec: []float32{0.1}})

	st := mustSettings(t, settings.UserFilter{}, settings.DateFilter{}, 10)
	results, err := svc.Search(context.Background(), "q", st, mode.Content, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results after dedup, got %d", len(results))
	}
	// the duplicate with the earlier timestamp replaced post 1 in place,
	// keeping its slot ahead of bob
	if results[0].PostID != 2 {
		t.Errorf("first result = %d, want 2 (earliest duplicate)", results[0].PostID)
	}
	if results[1].PostID != 3 {
		t.Errorf("second result = %d, want 3", results[1].PostID)
	}
}

func TestSearch_DedupTrimsContentWhitespace(t *testing.T) {
	posts := &mockPosts{posts: map[int64]domain.Post{
		1: post(1, "alice", "  same text  ", "2022-05-01 10:00:00"),
		2: post(2, "alice", "same text", "2022-06-01 10:00:00"),
	}}
	ranker := &mockRanker{ranked: []result.Ranked{
		{PostID: 1, Score: 0.9},
		{PostID: 2, Score: 0.8},
	}}
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{vec: []float32{0.1}})

	st := mustSettings(t, settings.UserFilter{}, settings.DateFilter{}, 10)
	results, err := svc.Search(context.Background(), "q", st, mode.Content, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result after dedup, got %d", len(results))
	}
}

func TestSearch_CompoundQuery(t *testing.T) {
	posts := &mockPosts{posts: map[int64]domain.Post{
		1: post(1, "alice", "machine learning is great", "2022-01-01 10:00:00"),
		2: post(2, "bob", "machine learning spam offer", "2022-01-02 10:00:00"),
		3: post(3, "carol", "deep learning notes", "2022-01-03 10:00:00"),
	}}
	ranker := &mockRanker{ranked: []result.Ranked{
		{PostID: 2, Score: 0.9},
		{PostID: 1, Score: 0.8},
		{PostID: 3, Score: 0.7},
	}}
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{vec: []float32{0.1}})

	st := mustSettings(t, settings.UserFilter{}, settings.DateFilter{}, 10)
	results, err := svc.Search(context.Background(), "machine learning | -spam", st, mode.Content, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// post 2 contains "spam" and is dropped despite its top score
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].PostID != 1 {
		t.Errorf("first result = %d, want 1", results[0].PostID)
	}
}

func TestSearch_TextOnlyQuery(t *testing.T) {
	posts := &mockPosts{posts: map[int64]domain.Post{
		1: post(1, "alice", "golang generics", "2022-01-01 10:00:00"),
		2: post(2, "bob", "golang iterators", "2022-03-01 10:00:00"),
		3: post(3, "carol", "python asyncio", "2022-02-01 10:00:00"),
	}}
	ranker := &mockRanker{}
	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(posts, &mockTags{}, ranker, embed)

	st := mustSettings(t, settings.UserFilter{}, settings.DateFilter{}, 10)
	results, err := svc.Search(context.Background(), "| golang", st, mode.Content, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// newest first
	if results[0].PostID != 2 || results[1].PostID != 1 {
		t.Errorf("results = %d, %d, want 2, 1", results[0].PostID, results[1].PostID)
	}
	if results[0].Score != 1.0 {
		t.Errorf("text-only score = %v, want 1.0", results[0].Score)
	}
	if embed.called {
		t.Error("Embed should not be called for a text-only query")
	}
	if ranker.called {
		t.Error("Rank should not be called for a text-only query")
	}
}

func TestSearch_TextOnlyRejectsHybridMode(t *testing.T) {
	posts, ranker := corpus()
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{vec: []float32{0.1}})

	_, err := svc.Search(context.Background(), "| golang", settings.Default(), mode.Average, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSearch_AttachesAnnotations(t *testing.T) {
	posts, ranker := corpus()
	tags := &mockTags{annotations: map[int64]domain.Annotation{
		1: {Reasoning: "why", Summary: "short", Tags: []string{"ml"}},
	}}
	svc := New(posts, tags, ranker, &mockEmbedder{vec: []float32{0.1}})

	st := mustSettings(t, settings.UserFilter{}, settings.DateFilter{}, 1)
	results, err := svc.Search(context.Background(), "q", st, mode.Content, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Summary != "short" || len(results[0].Tags) != 1 {
		t.Errorf("annotations not attached: %+v", results[0])
	}
}

func TestSearch_EmbedderError(t *testing.T) {
	posts, ranker := corpus()
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{err: errors.New("api down")})

	_, err := svc.Search(context.Background(), "q", settings.Default(), mode.Content, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRankAll_Unbounded(t *testing.T) {
	posts, ranker := corpus()
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{vec: []float32{0.1}})

	ranked, err := svc.RankAll(context.Background(), "q", 0, mode.Content, nil)
	if err != nil {
		t.Fatalf("RankAll: %v", err)
	}
	if len(ranked) != 10 {
		t.Errorf("expected the full ranking of 10, got %d", len(ranked))
	}
}

func TestRankAll_Bounded(t *testing.T) {
	posts, ranker := corpus()
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{vec: []float32{0.1}})

	ranked, err := svc.RankAll(context.Background(), "q", 3, mode.Content, nil)
	if err != nil {
		t.Fatalf("RankAll: %v", err)
	}
	if len(ranked) != 3 {
		t.Errorf("expected 3, got %d", len(ranked))
	}
}

func TestRankAll_RequiresVectorPart(t *testing.T) {
	posts, ranker := corpus()
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{vec: []float32{0.1}})

	_, err := svc.RankAll(context.Background(), "| text only", 0, mode.Content, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestRankAll_TextFilterApplied(t *testing.T) {
	posts := &mockPosts{posts: map[int64]domain.Post{
		1: post(1, "alice", "golang post", "2022-01-01 10:00:00"),
		2: post(2, "bob", "python post", "2022-01-02 10:00:00"),
	}}
	ranker := &mockRanker{ranked: []result.Ranked{
		{PostID: 1, Score: 0.9},
		{PostID: 2, Score: 0.8},
	}}
	svc := New(posts, &mockTags{}, ranker, &mockEmbedder{vec: []float32{0.1}})

	ranked, err := svc.RankAll(context.Background(), "q | golang", 0, mode.Content, nil)
	if err != nil {
		t.Fatalf("RankAll: %v", err)
	}
	if len(ranked) != 1 || ranked[0].PostID != 1 {
		t.Errorf("ranked = %v, want only post 1", ranked)
	}
}

func TestSearchByText(t *testing.T) {
	posts := &mockPosts{posts: map[int64]domain.Post{
		1: post(1, "alice", "golang generics", "2022-01-01 10:00:00"),
		2: post(2, "bob", "golang iterators", "2022-03-01 10:00:00"),
	}}
	svc := New(posts, &mockTags{}, &mockRanker{}, &mockEmbedder{})

	results, err := svc.SearchByText(context.Background(), "golang", 1, mode.Content)
	if err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	if len(results) != 1 || results[0].PostID != 2 {
		t.Errorf("results = %v, want newest post 2", results)
	}
}

func TestSearchByText_EmptyTerm(t *testing.T) {
	svc := New(&mockPosts{}, &mockTags{}, &mockRanker{}, &mockEmbedder{})
	if _, err := svc.SearchByText(context.Background(), "", 10, mode.Content); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSearchByText_ReasoningFacet(t *testing.T) {
	posts := &mockPosts{posts: map[int64]domain.Post{
		1: post(1, "alice", "unrelated content", "2022-01-01 10:00:00"),
	}}
	tags := &mockTags{annotations: map[int64]domain.Annotation{
		1: {Reasoning: "tagged because golang"},
	}}
	svc := New(posts, tags, &mockRanker{}, &mockEmbedder{})

	results, err := svc.SearchByText(context.Background(), "golang", 10, mode.Reasoning)
	if err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestPostsByTag_NewestFirstAndLimited(t *testing.T) {
	posts, _ := corpus()
	tags := &mockTags{byTag: map[string][]int64{
		"ml": {2, 5, 9},
	}}
	svc := New(posts, tags, &mockRanker{}, &mockEmbedder{})

	results, err := svc.PostsByTag(context.Background(), "ml", 2)
	if err != nil {
		t.Fatalf("PostsByTag: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].PostID != 9 || results[1].PostID != 5 {
		t.Errorf("ids = [%d %d], want [9 5]", results[0].PostID, results[1].PostID)
	}
}

func TestPostsByTag_UnknownTag(t *testing.T) {
	posts, _ := corpus()
	svc := New(posts, &mockTags{}, &mockRanker{}, &mockEmbedder{})

	results, err := svc.PostsByTag(context.Background(), "nothing", 10)
	if err != nil {
		t.Fatalf("PostsByTag: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestPostsByTag_EmptyTag(t *testing.T) {
	svc := New(&mockPosts{}, &mockTags{}, &mockRanker{}, &mockEmbedder{})
	if _, err := svc.PostsByTag(context.Background(), "", 10); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
