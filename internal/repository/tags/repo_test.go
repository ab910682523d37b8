package tags

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeTagsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write tags file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTagsFile(t, `{"key":1001,"reasoning":"about go","summary":"go post","tags":["go","tech"]}
{"key":1002,"reasoning":"about rust","summary":"rust post","tags":["rust","tech"]}
`)
	repo, err := Load(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if repo.Len() != 2 {
		t.Fatalf("Len = %d, want 2", repo.Len())
	}

	a, ok := repo.Get(1001)
	if !ok {
		t.Fatal("annotation 1001 not found")
	}
	if a.Summary != "go post" || len(a.Tags) != 2 {
		t.Errorf("annotation = %+v", a)
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	repo, err := Load(filepath.Join(t.TempDir(), "absent.jsonl"), zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if repo.Len() != 0 {
		t.Errorf("Len = %d, want 0", repo.Len())
	}
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	path := writeTagsFile(t, `{"key":1,"summary":"good"}
this is not json
{"key":2,"summary":"also good"}

`)
	repo, err := Load(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if repo.Len() != 2 {
		t.Errorf("Len = %d, want 2", repo.Len())
	}
}

func TestPostsWithTag(t *testing.T) {
	path := writeTagsFile(t, `{"key":1,"tags":["go"]}
{"key":2,"tags":["go","rust"]}
{"key":3,"tags":["rust"]}
`)
	repo, err := Load(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := repo.PostsWithTag("go"); len(got) != 2 {
		t.Errorf("PostsWithTag(go) = %v, want 2 ids", got)
	}
	if got := repo.PostsWithTag("absent"); len(got) != 0 {
		t.Errorf("PostsWithTag(absent) = %v, want empty", got)
	}
}
