// Package bitpack implements a fixed-block bit-width codec for unsigned 64-bit
// integers.
//
// The codec packs blocks of 16 values, each truncated to a caller-declared
// bit width n in [0, 64], into a dense byte stream of exactly 2n bytes and
// unpacks them back bit-exactly. It only issues aligned 8/16/32/64-bit scalar
// writes and reads against a bounded Buffer:
//
//   - The part of n that is a multiple of 8 is stored as aligned lanes: for
//     each lane width L, greedily the widest of 64/32/16/8 not exceeding the
//     bits left, one L-bit scalar per value holding its next L bits.
//   - A remainder r of 1..7 bits is stored as a 16r-bit bitstream (value 0 at
//     bit 0, value 1 at bit r, ...) tiled greedily by 64/32/16-bit words.
//     Fields may straddle two words; no padding is introduced.
//
// The stream carries no header. The same n must be passed to Unpack that was
// passed to Pack. Scalars are little-endian unless the Buffer is configured
// otherwise. The package maintains no global mutable state.
package bitpack

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// BlockSize is the number of values packed together under one width.
	BlockSize = 16
	// MaxBitWidth is the largest supported bit width.
	MaxBitWidth = 64

	// maxTileWords bounds the words needed for a tail: 16×7 = 64+32+16.
	maxTileWords = 3
)

// Block is one group of values packed under a single bit width.
type Block [BlockSize]uint64

var bo = binary.LittleEndian

// ErrCapacity is returned by Pack when the buffer runs out of room. The
// scalars written before the failing one are not rolled back.
var ErrCapacity = errors.New("bitpack: buffer capacity exceeded")

// ErrOutOfRange is returned by Buffer reads and Unpack when the stream is
// shorter than the layout being replayed: the width differs from the one used
// to pack, or the storage was truncated.
var ErrOutOfRange = errors.New("bitpack: read out of range")

// PackedSize returns the number of bytes Pack writes for one block at width
// n, which is ceil(16n/8).
func PackedSize(n int) int {
	validateBitWidth(n)
	return (BlockSize*n + 7) / 8
}

// Pack appends block to buf using n bits per value. Bits above n are not
// stored. The caller's block is not modified.
//
// n = 0 writes nothing. If buf fills up, Pack returns an error wrapping
// ErrCapacity; the buffer then holds a partial block and must be reset before
// reuse. Pack panics if n is outside [0, MaxBitWidth].
func Pack(buf *Buffer, block *Block, n int) error {
	validateBitWidth(n)
	l := &layouts[n]
	work := *block
	for _, w := range l.Lanes {
		if err := packLane(buf, &work, w); err != nil {
			return err
		}
	}
	if l.Remainder > 0 {
		return packTiles(buf, &work, l.Remainder)
	}
	return nil
}

// Unpack reads one block packed at width n from buf into dst.
//
// n = 0 zeroes dst without reading. A short stream returns the buffer's
// ErrOutOfRange error immediately; dst is unspecified in that case. Unpack
// panics if n is outside [0, MaxBitWidth].
func Unpack(buf *Buffer, dst *Block, n int) error {
	validateBitWidth(n)
	*dst = Block{}
	l := &layouts[n]
	offset := 0
	for _, w := range l.Lanes {
		if err := unpackLane(buf, dst, w, offset); err != nil {
			return err
		}
		offset += w
	}
	if l.Remainder > 0 {
		return unpackTiles(buf, dst, l.Remainder, offset)
	}
	return nil
}

// packLane writes the low width bits of every value, in value order, and
// shifts them out of the working copy.
func packLane(buf *Buffer, work *Block, width int) error {
	for i := range work {
		if !buf.put(width, work[i]) {
			return capacityError(buf, width)
		}
		work[i] >>= width
	}
	return nil
}

// unpackLane reads one scalar per value and ORs it in at bit offset.
func unpackLane(buf *Buffer, dst *Block, width, offset int) error {
	for i := range dst {
		v, err := buf.get(width)
		if err != nil {
			return err
		}
		dst[i] |= v << offset
	}
	return nil
}

// packTiles lays the low r bits of every value out as one contiguous
// bitstream and writes it as the tile words of remainder r.
func packTiles(buf *Buffer, work *Block, r int) error {
	words, starts := layouts[r].Tiles, tileStarts[r]
	mask := Mask(r)

	var acc [maxTileWords]uint64
	for i, v := range work {
		v &= mask
		s := locate(i*r, r, words, starts)
		acc[s.word] |= v << s.shift
		if s.straddles(r) {
			acc[s.word+1] |= v >> s.low
		}
	}
	for k, w := range words {
		if !buf.put(w, acc[k]) {
			return capacityError(buf, w)
		}
	}
	return nil
}

// unpackTiles reads the tile words of remainder r and reassembles every
// value's r-bit field, ORing it in at bit offset.
func unpackTiles(buf *Buffer, dst *Block, r, offset int) error {
	words, starts := layouts[r].Tiles, tileStarts[r]

	var acc [maxTileWords]uint64
	for k, w := range words {
		v, err := buf.get(w)
		if err != nil {
			return err
		}
		acc[k] = v
	}
	for i := range dst {
		s := locate(i*r, r, words, starts)
		v := (acc[s.word] >> s.shift) & Mask(s.low)
		if s.straddles(r) {
			v |= (acc[s.word+1] & Mask(r-s.low)) << s.low
		}
		dst[i] |= v << offset
	}
	return nil
}

func capacityError(buf *Buffer, width int) error {
	return fmt.Errorf("%w: %d-bit write needs %d bytes at offset %d, %d available",
		ErrCapacity, width, width/8, buf.Len(), buf.Available())
}
