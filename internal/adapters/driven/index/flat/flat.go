// Package flat provides an exact, in-memory vector index with a flat
// inner-product scan and a binary snapshot file for persistence.
package flat

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// snapshot file layout constants.
var magic = [4]byte{'R', 'G', 'V', '1'}

// Index is a flat inner-product index over unit-normalized vectors.
//
// All reads share the RWMutex read lock and all mutations take the
// write lock, so a search in flight observes either the full pre- or
// full post-mutation record set. At this scale a linear scan is exact
// and fast enough; no approximate structure is needed.
type Index struct {
	mu        sync.RWMutex
	path      string
	dimension int
	records   []driven.VectorRecord
	byID      map[int64]struct{}
	nextID    atomic.Int64
}

// New creates an empty index that persists to path on Save.
// The dimension is fixed by the first inserted record.
func New(path string) *Index {
	return &Index{
		path: path,
		byID: make(map[int64]struct{}),
	}
}

// Load reads a previously saved index from path. A missing file yields
// an empty index, not an error.
func Load(path string) (*Index, error) {
	idx := New(path)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("opening index snapshot: %w", err)
	}
	defer f.Close()

	if err := idx.read(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("reading index snapshot %s: %w", path, err)
	}
	return idx, nil
}

// ReserveIDs atomically allocates n consecutive fresh vector IDs and
// returns the first. IDs start at 1 and are never reused.
func (idx *Index) ReserveIDs(n int) int64 {
	return idx.nextID.Add(int64(n)) - int64(n) + 1
}

// Insert adds one record.
func (idx *Index) Insert(_ context.Context, rec driven.VectorRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.insertLocked(rec)
}

// InsertBatch adds all records under one write lock, so concurrent
// searches observe either none or all of them.
func (idx *Index) InsertBatch(_ context.Context, recs []driven.VectorRecord) error {
	if len(recs) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	// Validate the whole batch before touching state: a batch must
	// never be half-applied.
	dim := idx.dimension
	seen := make(map[int64]struct{}, len(recs))
	for _, rec := range recs {
		if dim == 0 {
			dim = len(rec.Embedding)
		}
		if err := validateRecord(rec, dim); err != nil {
			return err
		}
		if _, dup := idx.byID[rec.VectorID]; dup {
			return fmt.Errorf("%w: vector ID %d", domain.ErrAlreadyExists, rec.VectorID)
		}
		if _, dup := seen[rec.VectorID]; dup {
			return fmt.Errorf("%w: vector ID %d", domain.ErrAlreadyExists, rec.VectorID)
		}
		seen[rec.VectorID] = struct{}{}
	}

	for _, rec := range recs {
		if err := idx.insertLocked(rec); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) insertLocked(rec driven.VectorRecord) error {
	if idx.dimension == 0 {
		if len(rec.Embedding) == 0 {
			return fmt.Errorf("%w: empty embedding", domain.ErrInvalidInput)
		}
		idx.dimension = len(rec.Embedding)
	}
	if err := validateRecord(rec, idx.dimension); err != nil {
		return err
	}
	if _, dup := idx.byID[rec.VectorID]; dup {
		return fmt.Errorf("%w: vector ID %d", domain.ErrAlreadyExists, rec.VectorID)
	}

	idx.records = append(idx.records, rec)
	idx.byID[rec.VectorID] = struct{}{}
	// Advance the ID counter past explicit IDs. ReserveIDs runs
	// lock-free, so a plain store here could roll it backward.
	for {
		cur := idx.nextID.Load()
		if rec.VectorID <= cur || idx.nextID.CompareAndSwap(cur, rec.VectorID) {
			break
		}
	}
	return nil
}

func validateRecord(rec driven.VectorRecord, dim int) error {
	if len(rec.Embedding) != dim {
		return fmt.Errorf("%w: got %d, index has %d", domain.ErrDimensionMismatch, len(rec.Embedding), dim)
	}
	for _, v := range rec.Embedding {
		if math.IsNaN(float64(v)) {
			return fmt.Errorf("%w: embedding contains NaN", domain.ErrInvalidInput)
		}
	}
	return nil
}

// DeleteByDocument removes all records referencing the document under
// one write lock and returns how many were removed.
func (idx *Index) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	kept := idx.records[:0]
	removed := 0
	for _, rec := range idx.records {
		if rec.DocumentID == documentID {
			delete(idx.byID, rec.VectorID)
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	idx.records = kept
	return removed, nil
}

// Search performs an exact flat scan: inner product of the query
// against every stored vector, descending by score with ties broken by
// ascending vector ID.
func (idx *Index) Search(_ context.Context, query []float32, topK int) ([]driven.VectorHit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrInvalidInput, topK)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.records) == 0 {
		return []driven.VectorHit{}, nil
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(query), idx.dimension)
	}

	hits := make([]driven.VectorHit, 0, len(idx.records))
	for _, rec := range idx.records {
		hits = append(hits, driven.VectorHit{
			VectorID:   rec.VectorID,
			DocumentID: rec.DocumentID,
			ChunkIndex: rec.ChunkIndex,
			Score:      dot(query, rec.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].VectorID < hits[j].VectorID
	})

	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// Len returns the number of records.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// VectorIDs returns every record's vector ID, for the startup
// referential integrity check against the chunk store.
func (idx *Index) VectorIDs() []int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]int64, len(idx.records))
	for i, rec := range idx.records {
		ids[i] = rec.VectorID
	}
	return ids
}

// VectorOwners maps each record's vector ID to its owning document ID,
// for the startup referential integrity check.
func (idx *Index) VectorOwners() map[int64]string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	owners := make(map[int64]string, len(idx.records))
	for _, rec := range idx.records {
		owners[rec.VectorID] = rec.DocumentID
	}
	return owners
}

// Save writes a snapshot atomically: a temp file in the same directory
// is renamed over the target.
func (idx *Index) Save() error {
	if idx.path == "" {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(idx.path), 0o700); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(idx.path), ".index-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := idx.write(w); err != nil {
		tmp.Close()
		return fmt.Errorf("writing index snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing index snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), idx.path); err != nil {
		return fmt.Errorf("replacing index snapshot: %w", err)
	}
	return nil
}

// Close persists the index.
func (idx *Index) Close() error {
	return idx.Save()
}

// write serializes the index. Caller holds at least the read lock.
func (idx *Index) write(w io.Writer) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	header := []any{
		int32(idx.dimension),
		idx.nextID.Load(),
		int64(len(idx.records)),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	for _, rec := range idx.records {
		if err := binary.Write(w, binary.LittleEndian, rec.VectorID); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(rec.ChunkIndex)); err != nil {
			return err
		}
		docID := []byte(rec.DocumentID)
		if err := binary.Write(w, binary.LittleEndian, int32(len(docID))); err != nil {
			return err
		}
		if _, err := w.Write(docID); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, rec.Embedding); err != nil {
			return err
		}
	}
	return nil
}

// read deserializes into an empty index.
func (idx *Index) read(r io.Reader) error {
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return err
	}
	if gotMagic != magic {
		return errors.New("not an index snapshot")
	}

	var dimension int32
	var nextID, count int64
	if err := binary.Read(r, binary.LittleEndian, &dimension); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &nextID); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}

	idx.dimension = int(dimension)
	idx.nextID.Store(nextID)
	idx.records = make([]driven.VectorRecord, 0, count)

	for i := int64(0); i < count; i++ {
		var rec driven.VectorRecord
		var chunkIndex, docIDLen int32

		if err := binary.Read(r, binary.LittleEndian, &rec.VectorID); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &chunkIndex); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &docIDLen); err != nil {
			return err
		}
		docID := make([]byte, docIDLen)
		if _, err := io.ReadFull(r, docID); err != nil {
			return err
		}
		rec.Embedding = make([]float32, dimension)
		if err := binary.Read(r, binary.LittleEndian, rec.Embedding); err != nil {
			return err
		}

		rec.ChunkIndex = int(chunkIndex)
		rec.DocumentID = string(docID)
		idx.records = append(idx.records, rec)
		idx.byID[rec.VectorID] = struct{}{}
	}
	return nil
}

// dot computes the inner product. Both vectors are unit-normalized, so
// this equals cosine similarity.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
