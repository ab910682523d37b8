// Package tags loads the tagging annotations produced by the offline
// pipeline: a JSONL file with one record per annotated post.
package tags

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Repo is an immutable snapshot of post annotations with a tag -> post
// ids reverse index.
type Repo struct {
	annotations map[int64]domain.Annotation
	tagIndex    map[string][]int64
}

type line struct {
	Key       int64    `json:"key"`
	Reasoning string   `json:"reasoning"`
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
}

// Load reads the annotations file. A missing file is a valid state (no
// annotations); malformed lines are skipped and logged.
func Load(path string, logger *zap.Logger) (*Repo, error) {
	repo := &Repo{
		annotations: make(map[int64]domain.Annotation),
		tagIndex:    make(map[string][]int64),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return repo, nil
		}
		return nil, fmt.Errorf("open tags file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			logger.Warn("skipping malformed tag record", zap.Error(err))
			continue
		}
		repo.annotations[l.Key] = domain.Annotation{
			Reasoning: l.Reasoning,
			Summary:   l.Summary,
			Tags:      l.Tags,
		}
		for _, tag := range l.Tags {
			repo.tagIndex[tag] = append(repo.tagIndex[tag], l.Key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tags file: %w", err)
	}

	return repo, nil
}

// Get returns the annotation for a post id.
func (r *Repo) Get(id int64) (domain.Annotation, bool) {
	a, ok := r.annotations[id]
	return a, ok
}

// PostsWithTag returns the ids of posts carrying the tag.
func (r *Repo) PostsWithTag(tag string) []int64 { return r.tagIndex[tag] }

// Len returns the number of annotated posts.
func (r *Repo) Len() int { return len(r.annotations) }
