// Package vectorspace owns one named set of post id -> embedding vector
// pairs, loaded lazily from chunked files on disk. A space is read-only
// once loaded; concurrent reads need no locking.
package vectorspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Meta is the space metadata stored in meta.json. Model identifies the
// embedding model that produced the vectors and is required: serving
// vectors without knowing their model is a configuration fault.
type Meta struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Chunks     int    `json:"chunks"`
	CSVPath    string `json:"csv_path,omitempty"`
}

// Space is one named vector space. Absence of an id in a space is a
// valid state meaning "no vector available", not an error.
type Space struct {
	name   string
	dir    string
	logger *zap.Logger

	group  singleflight.Group
	loaded atomic.Bool

	meta       Meta
	ids        []int64 // ascending
	idToOffset map[int64]int
	vectors    []float32 // row-major, len(ids) x dim, rows L2-normalized
	dim        int
}

// New creates a space over a directory. No I/O happens until LoadMeta
// or the first lookup.
func New(name, dir string, logger *zap.Logger) *Space {
	return &Space{name: name, dir: dir, logger: logger}
}

// Name returns the space name.
func (s *Space) Name() string { return s.name }

// Exists reports whether the space directory has metadata on disk.
func (s *Space) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, "meta.json"))
	return err == nil
}

// LoadMeta reads and validates the space metadata. A missing model
// identifier is a fail-fast configuration error, never deferred.
func (s *Space) LoadMeta() (Meta, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "meta.json"))
	if err != nil {
		return Meta{}, fmt.Errorf("read space %q metadata: %w", s.name, err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("%w: space %q metadata: %v", domain.ErrConfiguration, s.name, err)
	}
	if meta.Model == "" {
		return Meta{}, fmt.Errorf("%w: space %q metadata is missing the model identifier", domain.ErrConfiguration, s.name)
	}
	return meta, nil
}

// Load reads all chunk files into memory. Idempotent; concurrent first
// uses are collapsed into a single load.
func (s *Space) Load() error {
	if s.loaded.Load() {
		return nil
	}
	_, err, _ := s.group.Do("load", func() (interface{}, error) {
		if s.loaded.Load() {
			return nil, nil
		}
		if err := s.load(); err != nil {
			return nil, err
		}
		s.loaded.Store(true)
		return nil, nil
	})
	return err
}

func (s *Space) load() error {
	meta, err := s.LoadMeta()
	if err != nil {
		return err
	}
	s.meta = meta

	var (
		allIDs     []int64
		allVectors []float32
		dim        int
	)
	for chunkID := 0; chunkID < meta.Chunks; chunkID++ {
		path := filepath.Join(s.dir, fmt.Sprintf("%04d.vec", chunkID))
		if _, err := os.Stat(path); err != nil {
			// absent chunks are skipped, matching the writer's sparse layout
			continue
		}
		ids, vectors, chunkDim, err := ReadChunk(path)
		if err != nil {
			return fmt.Errorf("space %q chunk %04d: %w", s.name, chunkID, err)
		}
		if dim == 0 {
			dim = chunkDim
		} else if chunkDim != dim {
			return fmt.Errorf("%w: space %q chunk %04d dimension %d != %d",
				domain.ErrConfiguration, s.name, chunkID, chunkDim, dim)
		}
		allIDs = append(allIDs, ids...)
		allVectors = append(allVectors, vectors...)
	}

	if len(allIDs) == 0 {
		return fmt.Errorf("%w: space %q has no vector chunks", domain.ErrConfiguration, s.name)
	}

	// Reorder rows by ascending integer id so iteration order is
	// deterministic. Ids are never compared through a float cast.
	order := make([]int, len(allIDs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return allIDs[order[i]] < allIDs[order[j]] })

	s.dim = dim
	s.ids = make([]int64, len(allIDs))
	s.vectors = make([]float32, len(allIDs)*dim)
	s.idToOffset = make(map[int64]int, len(allIDs))
	for row, src := range order {
		id := allIDs[src]
		s.ids[row] = id
		s.idToOffset[id] = row
		copy(s.vectors[row*dim:(row+1)*dim], allVectors[src*dim:(src+1)*dim])
		normalizeInPlace(s.vectors[row*dim : (row+1)*dim])
	}

	s.logger.Info("vector space loaded",
		zap.String("space", s.name),
		zap.Int("vectors", len(s.ids)),
		zap.Int("dimensions", dim),
		zap.String("model", meta.Model),
	)
	return nil
}

// Loaded reports whether the vectors are in memory.
func (s *Space) Loaded() bool { return s.loaded.Load() }

// Meta returns the metadata. Valid after Load.
func (s *Space) Meta() Meta { return s.meta }

// Dim returns the vector dimensionality. Valid after Load.
func (s *Space) Dim() int { return s.dim }

// Len returns the number of stored vectors. Valid after Load.
func (s *Space) Len() int { return len(s.ids) }

// IDs returns all post ids in ascending integer order, loading lazily.
func (s *Space) IDs() ([]int64, error) {
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s.ids, nil
}

// Get returns the normalized vector for a post id, loading lazily.
// ok is false when the space holds no vector for the id.
func (s *Space) Get(id int64) (vec []float32, ok bool, err error) {
	if err := s.Load(); err != nil {
		return nil, false, err
	}
	row, ok := s.idToOffset[id]
	if !ok {
		return nil, false, nil
	}
	return s.vectors[row*s.dim : (row+1)*s.dim], true, nil
}

// CosineAll computes the cosine similarity of the query against every
// stored vector, in IDs() order. Stored rows are pre-normalized so this
// reduces to dot products against the normalized query.
func (s *Space) CosineAll(query []float32) ([]float32, error) {
	if err := s.Load(); err != nil {
		return nil, err
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query dimension %d != space %q dimension %d",
			domain.ErrValidation, len(query), s.name, s.dim)
	}
	q := make([]float32, s.dim)
	copy(q, query)
	normalizeInPlace(q)

	sims := make([]float32, len(s.ids))
	for row := range s.ids {
		sims[row] = dot(s.vectors[row*s.dim:(row+1)*s.dim], q)
	}
	return sims, nil
}
