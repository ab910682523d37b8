package vectorspace

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Chunk files are zstd-compressed frames of a fixed little-endian
// layout: uint32 count, uint32 dim, count int64 ids, count*dim float32
// vector components.

// ReadChunk reads one chunk file.
func ReadChunk(path string) (ids []int64, vectors []float32, dim int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var header [2]uint32
	if err := binary.Read(dec, binary.LittleEndian, &header); err != nil {
		return nil, nil, 0, fmt.Errorf("read header: %w", err)
	}
	count, d := int(header[0]), int(header[1])
	if count <= 0 || d <= 0 {
		return nil, nil, 0, fmt.Errorf("invalid chunk header: count=%d dim=%d", count, d)
	}

	ids = make([]int64, count)
	if err := binary.Read(dec, binary.LittleEndian, ids); err != nil {
		return nil, nil, 0, fmt.Errorf("read ids: %w", err)
	}
	vectors = make([]float32, count*d)
	if err := binary.Read(dec, binary.LittleEndian, vectors); err != nil {
		return nil, nil, 0, fmt.Errorf("read vectors: %w", err)
	}
	return ids, vectors, d, nil
}

// WriteChunk writes one chunk file. len(vectors) must equal
// len(ids)*dim.
func WriteChunk(path string, ids []int64, vectors []float32, dim int) error {
	if len(vectors) != len(ids)*dim {
		return fmt.Errorf("vector data length %d != %d ids x %d dim", len(vectors), len(ids), dim)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	enc, err := zstd.NewWriter(bw)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}

	header := [2]uint32{uint32(len(ids)), uint32(dim)}
	if err := writeAll(enc, header, ids, vectors); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	return bw.Flush()
}

func writeAll(w io.Writer, values ...interface{}) error {
	for _, v := range values {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
