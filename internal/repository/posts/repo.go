// Package posts provides read-only access to the post store backed by a
// CSV export. All rows are loaded once at startup; the snapshot is never
// mutated afterward, so concurrent reads need no locking.
package posts

import (
	"encoding/csv"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// statusURLRegex extracts the author and post id from a post permalink
// of the form https://<host>/<author>/status/<id>.
var statusURLRegex = regexp.MustCompile(`https?://(?:www\.)?(?:twitter\.com|x\.com)/([^/]+)/status/(\d+)`)

// Repo is an immutable snapshot of the post store.
type Repo struct {
	posts      map[int64]domain.Post
	ids        []int64 // ascending by id
	postCounts map[string]int
}

// Load reads a CSV export with rows of the form
// post_id, url, timestamp, content, log_type. Content is HTML-unescaped.
// When a post id appears more than once, the row with the larger
// log_type wins for author attribution.
func Load(path string) (*Repo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open posts csv: %w", err)
	}
	defer f.Close()

	return read(f)
}

func read(r io.Reader) (*Repo, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	repo := &Repo{
		posts:      make(map[int64]domain.Post),
		postCounts: make(map[string]int),
	}

	type attribution struct {
		author  string
		logType int
	}
	attributions := make(map[int64]attribution)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read posts csv: %w", err)
		}
		if len(row) < 5 {
			continue
		}

		id, err := strconv.ParseInt(strings.Trim(row[0], `"`), 10, 64)
		if err != nil {
			continue
		}
		url := strings.Trim(row[1], `"`)
		timestamp := strings.Trim(row[2], `"`)
		content := html.UnescapeString(strings.Trim(row[3], `"`))
		logType, _ := strconv.Atoi(strings.Trim(row[4], `"`))

		repo.posts[id] = domain.Post{
			ID:        id,
			Content:   content,
			Timestamp: timestamp,
			URL:       url,
		}

		if author, urlID, ok := parseStatusURL(url); ok && urlID == id {
			if prev, seen := attributions[id]; !seen || logType > prev.logType {
				attributions[id] = attribution{author: author, logType: logType}
			}
		}
	}

	for id, attr := range attributions {
		p := repo.posts[id]
		p.Author = attr.author
		repo.posts[id] = p
		repo.postCounts[attr.author]++
	}

	repo.ids = make([]int64, 0, len(repo.posts))
	for id := range repo.posts {
		repo.ids = append(repo.ids, id)
	}
	sort.Slice(repo.ids, func(i, j int) bool { return repo.ids[i] < repo.ids[j] })

	return repo, nil
}

func parseStatusURL(url string) (author string, id int64, ok bool) {
	m := statusURLRegex.FindStringSubmatch(url)
	if m == nil {
		return "", 0, false
	}
	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return m[1], id, true
}

// Get returns the post for the id.
func (r *Repo) Get(id int64) (domain.Post, bool) {
	p, ok := r.posts[id]
	return p, ok
}

// IDs returns all post ids in ascending integer order.
func (r *Repo) IDs() []int64 { return r.ids }

// Len returns the number of loaded posts.
func (r *Repo) Len() int { return len(r.posts) }

// AuthorPostCounts returns the author -> total post count aggregate used
// by user-filter thresholds. Callers must not mutate it.
func (r *Repo) AuthorPostCounts() map[string]int { return r.postCounts }

// NewestFirst returns post ids ordered by descending timestamp, ties
// broken by ascending id for determinism.
func (r *Repo) NewestFirst() []int64 {
	ids := make([]int64, len(r.ids))
	copy(ids, r.ids)
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := r.posts[ids[i]], r.posts[ids[j]]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		return a.ID < b.ID
	})
	return ids
}

// TimestampRange returns the earliest and latest post timestamps.
func (r *Repo) TimestampRange() (earliest, latest string) {
	for _, p := range r.posts {
		if p.Timestamp == "" {
			continue
		}
		if earliest == "" || p.Timestamp < earliest {
			earliest = p.Timestamp
		}
		if p.Timestamp > latest {
			latest = p.Timestamp
		}
	}
	return earliest, latest
}
