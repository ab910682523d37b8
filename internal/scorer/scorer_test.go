package scorer

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/domain/search/mode"
	"github.com/kailas-cloud/semdex/internal/domain/search/result"
	"github.com/kailas-cloud/semdex/internal/vectorspace"
)

// makeSpace builds an on-disk space with the given id -> vector rows.
func makeSpace(t *testing.T, name string, dim int, rows map[int64][]float32) *vectorspace.Space {
	t.Helper()
	dir := t.TempDir()

	meta, err := json.Marshal(vectorspace.Meta{Model: "test-model", Dimensions: dim, Chunks: 1})
	if err != nil {
		t.Fatalf("marshal meta: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), meta, 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}

	var ids []int64
	var vectors []float32
	for id, vec := range rows {
		ids = append(ids, id)
		vectors = append(vectors, vec...)
	}
	if len(ids) > 0 {
		if err := vectorspace.WriteChunk(filepath.Join(dir, "0000.vec"), ids, vectors, dim); err != nil {
			t.Fatalf("write chunk: %v", err)
		}
	}
	return vectorspace.New(name, dir, zap.NewNop())
}

// emptySpace is a space whose directory has no metadata, i.e. absent.
func emptySpace(t *testing.T, name string) *vectorspace.Space {
	t.Helper()
	return vectorspace.New(name, t.TempDir(), zap.NewNop())
}

func scoreOf(t *testing.T, ranked []result.Ranked, id int64) float64 {
	t.Helper()
	for _, r := range ranked {
		if r.PostID == id {
			return r.Score
		}
	}
	t.Fatalf("post %d not in ranking %v", id, ranked)
	return 0
}

func TestAvailableModes(t *testing.T) {
	content := makeSpace(t, "content", 2, map[int64][]float32{1: {1, 0}})
	reasoning := makeSpace(t, "reasoning", 2, map[int64][]float32{1: {0, 1}})
	summary := emptySpace(t, "summary")

	h := New(content, reasoning, summary)
	modes := h.AvailableModes()

	want := map[mode.Mode]bool{
		mode.Content: true, mode.Reasoning: true,
		mode.Average: true, mode.Maximum: true, mode.Minimum: true,
	}
	if len(modes) != len(want) {
		t.Fatalf("modes = %v, want %v", modes, want)
	}
	for _, m := range modes {
		if !want[m] {
			t.Errorf("unexpected mode %q", m)
		}
	}
}

func TestAvailableModes_SingleSpaceHasNoHybrid(t *testing.T) {
	content := makeSpace(t, "content", 2, map[int64][]float32{1: {1, 0}})
	h := New(content, emptySpace(t, "reasoning"), emptySpace(t, "summary"))

	for _, m := range h.AvailableModes() {
		if m.IsHybrid() {
			t.Errorf("hybrid mode %q should not be available with one space", m)
		}
	}
}

func TestRank_SingleSpace(t *testing.T) {
	content := makeSpace(t, "content", 2, map[int64][]float32{
		1: {1, 0},
		2: {0, 1},
		3: {1, 1},
	})
	h := New(content)

	ranked, err := h.Rank([]float32{1, 0}, mode.Content, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("expected 3 results, got %d", len(ranked))
	}
	if ranked[0].PostID != 1 {
		t.Errorf("best match = %d, want 1", ranked[0].PostID)
	}
	if ranked[2].PostID != 2 {
		t.Errorf("worst match = %d, want 2", ranked[2].PostID)
	}
}

func TestRank_TieBreakByAscendingID(t *testing.T) {
	content := makeSpace(t, "content", 2, map[int64][]float32{
		5: {1, 0},
		2: {1, 0},
		9: {1, 0},
	})
	h := New(content)

	ranked, err := h.Rank([]float32{1, 0}, mode.Content, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	want := []int64{2, 5, 9}
	for i, id := range want {
		if ranked[i].PostID != id {
			t.Fatalf("order = %v, want %v", ranked, want)
		}
	}
}

func TestRank_Average(t *testing.T) {
	content := makeSpace(t, "content", 2, map[int64][]float32{1: {1, 0}})
	reasoning := makeSpace(t, "reasoning", 2, map[int64][]float32{1: {0, 1}})
	h := New(content, reasoning)

	ranked, err := h.Rank([]float32{1, 0}, mode.Average, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	// similarities 1.0 and 0.0 average to 0.5
	if got := scoreOf(t, ranked, 1); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("average score = %v, want 0.5", got)
	}
}

func TestRank_WeightedAverage(t *testing.T) {
	content := makeSpace(t, "content", 2, map[int64][]float32{1: {1, 0}})
	reasoning := makeSpace(t, "reasoning", 2, map[int64][]float32{1: {0, 1}})
	h := New(content, reasoning)

	ranked, err := h.Rank([]float32{1, 0}, mode.Average, []float64{3, 1})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	// (1.0*3 + 0.0*1) / 4 = 0.75
	if got := scoreOf(t, ranked, 1); math.Abs(got-0.75) > 1e-6 {
		t.Errorf("weighted score = %v, want 0.75", got)
	}
}

func TestRank_MaximumAndMinimum(t *testing.T) {
	content := makeSpace(t, "content", 2, map[int64][]float32{1: {1, 0}})
	reasoning := makeSpace(t, "reasoning", 2, map[int64][]float32{1: {0, 1}})
	h := New(content, reasoning)

	ranked, err := h.Rank([]float32{1, 0}, mode.Maximum, nil)
	if err != nil {
		t.Fatalf("Rank maximum: %v", err)
	}
	if got := scoreOf(t, ranked, 1); math.Abs(got-1) > 1e-6 {
		t.Errorf("maximum score = %v, want 1", got)
	}

	ranked, err = h.Rank([]float32{1, 0}, mode.Minimum, nil)
	if err != nil {
		t.Fatalf("Rank minimum: %v", err)
	}
	if got := scoreOf(t, ranked, 1); math.Abs(got) > 1e-6 {
		t.Errorf("minimum score = %v, want 0", got)
	}
}

func TestRank_PartialCoverage(t *testing.T) {
	// post 2 only has a content vector; its average is over content alone
	content := makeSpace(t, "content", 2, map[int64][]float32{
		1: {1, 0},
		2: {1, 0},
	})
	reasoning := makeSpace(t, "reasoning", 2, map[int64][]float32{1: {0, 1}})
	h := New(content, reasoning)

	ranked, err := h.Rank([]float32{1, 0}, mode.Average, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
	if got := scoreOf(t, ranked, 2); math.Abs(got-1) > 1e-6 {
		t.Errorf("partially covered post score = %v, want 1", got)
	}
	if got := scoreOf(t, ranked, 1); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("fully covered post score = %v, want 0.5", got)
	}
}

func TestRank_UnknownMode(t *testing.T) {
	h := New(makeSpace(t, "content", 2, map[int64][]float32{1: {1, 0}}))
	_, err := h.Rank([]float32{1, 0}, mode.Mode("bogus"), nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestRank_UnavailableMode(t *testing.T) {
	h := New(
		makeSpace(t, "content", 2, map[int64][]float32{1: {1, 0}}),
		emptySpace(t, "reasoning"),
		emptySpace(t, "summary"),
	)
	_, err := h.Rank([]float32{1, 0}, mode.Reasoning, nil)
	if !errors.Is(err, domain.ErrUnsupportedMode) {
		t.Errorf("expected ErrUnsupportedMode, got %v", err)
	}
	// the message names what is usable instead
	if err != nil && !strings.Contains(err.Error(), "content") {
		t.Errorf("error should list available modes, got %q", err)
	}
}

func TestRank_WeightsRejectedOutsideAverage(t *testing.T) {
	content := makeSpace(t, "content", 2, map[int64][]float32{1: {1, 0}})
	reasoning := makeSpace(t, "reasoning", 2, map[int64][]float32{1: {0, 1}})
	h := New(content, reasoning)

	_, err := h.Rank([]float32{1, 0}, mode.Maximum, []float64{1, 1})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestRank_WeightsLengthMustMatchSpaces(t *testing.T) {
	content := makeSpace(t, "content", 2, map[int64][]float32{1: {1, 0}})
	reasoning := makeSpace(t, "reasoning", 2, map[int64][]float32{1: {0, 1}})
	h := New(content, reasoning)

	_, err := h.Rank([]float32{1, 0}, mode.Average, []float64{1})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
