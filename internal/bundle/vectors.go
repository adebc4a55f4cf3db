package bundle

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/viterin/vek/vek32"
)

// NoNeighbor marks a search slot with no stored vector behind it.
const NoNeighbor = -1

var vectorFileMagic = [4]byte{'F', 'F', 'V', 'X'}

const (
	vectorFileVersion = 1
	vectorHeaderSize  = 4 + 4 + 4 + 8 // magic, version, dim, count
)

// Neighbor is one k-NN search slot. Position is the ledger position of the
// stored vector, or NoNeighbor when the index holds fewer than k vectors.
type Neighbor struct {
	Position int
	Distance float32 // squared L2
}

// VectorIndex is an append-only flat index with exact squared-L2 search.
// Vectors live in one contiguous arena; vector i occupies data[i*dim:(i+1)*dim].
type VectorIndex struct {
	mu   sync.RWMutex
	dim  int // 0 until the first vector is added
	data []float32
}

// NewVectorIndex creates an empty index with no fixed dimension.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{}
}

// Dim returns the fixed dimension, or 0 if no vector was ever added.
func (v *VectorIndex) Dim() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dim
}

// Len returns the number of stored vectors.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lenLocked()
}

func (v *VectorIndex) lenLocked() int {
	if v.dim == 0 {
		return 0
	}
	return len(v.data) / v.dim
}

// Vector returns a copy of the vector at position i.
func (v *VectorIndex) Vector(i int) []float32 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if i < 0 || i >= v.lenLocked() {
		return nil
	}
	return slices.Clone(v.data[i*v.dim : (i+1)*v.dim])
}

// CheckDim reports whether all vectors can be appended: they must share one
// length, and that length must equal the index dimension once it is fixed.
func (v *VectorIndex) CheckDim(vectors [][]float32) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.checkDimLocked(vectors)
}

func (v *VectorIndex) checkDimLocked(vectors [][]float32) error {
	want := v.dim
	for i, vec := range vectors {
		if len(vec) == 0 {
			return fmt.Errorf("%w: vector %d is empty", ErrDimensionMismatch, i)
		}
		if want == 0 {
			want = len(vec)
		}
		if len(vec) != want {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), want)
		}
	}
	return nil
}

// Append adds vectors in order. Either all vectors are added or none are.
// The first vector ever added fixes the index dimension.
func (v *VectorIndex) Append(vectors ...[]float32) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkDimLocked(vectors); err != nil {
		return err
	}
	for _, vec := range vectors {
		if v.dim == 0 {
			v.dim = len(vec)
		}
		v.data = append(v.data, vec...)
	}
	return nil
}

// Search returns exactly k slots ordered by ascending squared L2 distance,
// ties broken by position. Slots past the stored vector count are NoNeighbor.
func (v *VectorIndex) Search(query []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.dim != 0 && len(query) != v.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), v.dim)
	}

	n := v.lenLocked()
	all := make([]Neighbor, n)
	qq := vek32.Dot(query, query)
	for i := 0; i < n; i++ {
		row := v.data[i*v.dim : (i+1)*v.dim]
		// |q-x|^2 = |q|^2 + |x|^2 - 2<q,x>
		d := qq + vek32.Dot(row, row) - 2*vek32.Dot(query, row)
		if d < 0 {
			d = 0
		}
		all[i] = Neighbor{Position: i, Distance: d}
	}
	slices.SortFunc(all, func(a, b Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})

	out := make([]Neighbor, k)
	for i := range out {
		if i < n {
			out[i] = all[i]
			continue
		}
		out[i] = Neighbor{Position: NoNeighbor, Distance: math.MaxFloat32}
	}
	return out, nil
}

// truncate drops every vector at position >= n.
func (v *VectorIndex) truncate(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n < v.lenLocked() {
		v.data = v.data[:n*v.dim]
	}
}

// MarshalBinary encodes the index as a little-endian header followed by the arena.
func (v *VectorIndex) MarshalBinary() ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	buf := make([]byte, vectorHeaderSize, vectorHeaderSize+4*len(v.data))
	copy(buf[0:4], vectorFileMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], vectorFileVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(v.dim))           //nolint:gosec // dim is a small positive int
	binary.LittleEndian.PutUint64(buf[12:20], uint64(v.lenLocked())) //nolint:gosec // count is non-negative
	for _, f := range v.data {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf, nil
}

// UnmarshalBinary replaces the index contents with a MarshalBinary encoding.
func (v *VectorIndex) UnmarshalBinary(data []byte) error {
	if len(data) < vectorHeaderSize || [4]byte(data[0:4]) != vectorFileMagic {
		return fmt.Errorf("%w: not a vector index file", ErrBundleCorrupt)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != vectorFileVersion {
		return fmt.Errorf("%w: unsupported vector index version %d", ErrBundleCorrupt, version)
	}
	dim := binary.LittleEndian.Uint32(data[8:12])
	count := binary.LittleEndian.Uint64(data[12:20])
	body := data[vectorHeaderSize:]

	if dim == 0 && count != 0 {
		return fmt.Errorf("%w: %d vectors without a dimension", ErrBundleCorrupt, count)
	}
	if uint64(len(body)) != count*uint64(dim)*4 {
		return fmt.Errorf("%w: vector data is %d bytes, header promises %d vectors of %d",
			ErrBundleCorrupt, len(body), count, dim)
	}

	arena := make([]float32, len(body)/4)
	for i := range arena {
		arena[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.dim = int(dim)
	v.data = arena
	return nil
}
