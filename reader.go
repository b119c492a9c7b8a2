package bitpack

import (
	"errors"
	"fmt"
)

// Reader provides random and sequential access to a series produced by
// AppendSeries. Blocks are decoded on demand and the most recently decoded
// block is cached, so sequential iteration unpacks every block once.
//
// A Reader is not safe for concurrent use. Create multiple readers from
// the same buffer if concurrent access is needed.
type Reader struct {
	// index locates every block inside the loaded buffer
	index seriesIndex

	// block holds the decoded values of block number cached
	block Block

	// cached is the block number held in block, -1 when none
	cached int

	// pos is the current position for sequential iteration (0-based)
	pos int

	// loaded indicates if the reader has been loaded with data
	loaded bool
}

// ErrNotLoaded is returned when operations are called before Load().
var ErrNotLoaded = errors.New("bitpack: reader not loaded")

// ErrPositionOutOfRange is returned when accessing a position beyond the series length.
var ErrPositionOutOfRange = errors.New("bitpack: position out of range")

// NewReader creates an empty Reader that must be loaded with Load() before use.
func NewReader() *Reader {
	return &Reader{cached: -1}
}

// Load a series into the reader. The buffer is validated and indexed but no
// block is decoded yet. Load resets all internal state and can be called
// multiple times to reuse the reader. buf must stay unchanged while loaded.
func (r *Reader) Load(buf []byte) error {
	idx, err := indexSeries(buf, &r.index)
	if err != nil {
		r.loaded = false
		return err
	}
	r.index = idx
	r.cached = -1
	r.pos = 0
	r.loaded = true
	return nil
}

// IsLoaded returns whether the reader has been loaded with data.
func (r *Reader) IsLoaded() bool {
	return r.loaded
}

// Len returns the number of values in the series.
func (r *Reader) Len() int {
	if !r.loaded {
		return 0
	}
	return r.index.count
}

// NumBlocks returns the number of packed blocks in the series.
func (r *Reader) NumBlocks() int {
	if !r.loaded {
		return 0
	}
	return r.index.blocks()
}

// BlockWidth returns the bit width block b was packed with.
func (r *Reader) BlockWidth(b int) (int, error) {
	if !r.loaded {
		return 0, ErrNotLoaded
	}
	if b < 0 || b >= r.index.blocks() {
		return 0, fmt.Errorf("%w: block %d of %d", ErrPositionOutOfRange, b, r.index.blocks())
	}
	return int(r.index.widths[b]), nil
}

// Pos returns the current position for sequential iteration.
func (r *Reader) Pos() int {
	return r.pos
}

// Reset resets the reader position to the beginning for sequential iteration.
func (r *Reader) Reset() {
	r.pos = 0
}

// Get returns the value at the specified position.
// Returns an error if the reader is not loaded or pos is out of range.
func (r *Reader) Get(pos int) (uint64, error) {
	if !r.loaded {
		return 0, ErrNotLoaded
	}
	if pos < 0 || pos >= r.index.count {
		return 0, ErrPositionOutOfRange
	}
	if err := r.load(pos / BlockSize); err != nil {
		return 0, err
	}
	return r.block[pos%BlockSize], nil
}

// GetSafe returns the value at the specified position and whether the position is valid.
// Returns (0, false) if the reader is not loaded, pos is out of range or the
// block cannot be decoded.
func (r *Reader) GetSafe(pos int) (uint64, bool) {
	val, err := r.Get(pos)
	return val, err == nil
}

// Next returns the next value in sequence and its position.
// Returns (value, pos, true) on success, or (0, 0, false) if not loaded or no more elements.
func (r *Reader) Next() (value uint64, pos int, ok bool) {
	if !r.loaded || r.pos >= r.index.count {
		return 0, 0, false
	}
	value, err := r.Get(r.pos)
	if err != nil {
		return 0, 0, false
	}
	pos = r.pos
	r.pos++
	return value, pos, true
}

// SkipTo advances to and returns the first value >= req, scanning forward
// from the current position.
// Returns (value, pos, true) if found, or (0, 0, false) if not loaded or no value >= req exists.
func (r *Reader) SkipTo(req uint64) (value uint64, pos int, ok bool) {
	for {
		v, p, more := r.Next()
		if !more {
			return 0, 0, false
		}
		if v >= req {
			return v, p, true
		}
	}
}

// Decode copies all values into the provided destination slice.
// If dst has insufficient capacity, a new slice is allocated.
func (r *Reader) Decode(dst []uint64) ([]uint64, error) {
	if !r.loaded {
		return nil, ErrNotLoaded
	}
	n := r.index.count
	if cap(dst) < n {
		dst = make([]uint64, n)
	} else {
		dst = dst[:n]
	}
	for b := 0; b < r.index.blocks(); b++ {
		if err := r.load(b); err != nil {
			return nil, err
		}
		copy(dst[b*BlockSize:], r.block[:])
	}
	return dst, nil
}

// load makes block b the cached block.
func (r *Reader) load(b int) error {
	if r.cached == b {
		return nil
	}
	if err := r.index.unpack(&r.block, b); err != nil {
		r.cached = -1
		return err
	}
	r.cached = b
	return nil
}
