package bitpack

import (
	"fmt"
	"slices"
)

// Scalar widths available to the codec, widest first. Lanes may use any of
// them; tile words never use 8 since a tiled remainder always spans a multiple
// of 16 bits (16 values × 1..7 bits).
var (
	laneWidths = [...]int{64, 32, 16, 8}
	tileWidths = [...]int{64, 32, 16}
)

// Layout is the scalar decomposition the codec uses for one bit width. It is
// a pure function of the width: two blocks packed at the same width produce
// streams with identical section structure and length.
type Layout struct {
	// Width is the bit width the layout was derived from.
	Width int
	// Lanes lists the aligned lane widths in stream order. Every lane stores
	// BlockSize scalars of that width, one per value.
	Lanes []int
	// Remainder is the number of bits per value (0..7) left after peeling
	// lanes off Width.
	Remainder int
	// Tiles lists the accumulator word widths holding the BlockSize×Remainder
	// bit tail, in stream order.
	Tiles []int
}

// Bytes returns the number of bytes a block packed with l occupies.
func (l Layout) Bytes() int {
	total := 0
	for _, w := range l.Lanes {
		total += BlockSize * w / 8
	}
	for _, w := range l.Tiles {
		total += w / 8
	}
	return total
}

// String formats the layout as e.g. "23: lanes [16] tiles [64 32 16]".
func (l Layout) String() string {
	return fmt.Sprintf("%d: lanes %v tiles %v", l.Width, l.Lanes, l.Tiles)
}

// layouts holds the decomposition of every width 0..MaxBitWidth.
var layouts [MaxBitWidth + 1]Layout

// tileStarts holds, per remainder, the bit offset at which each tile word
// begins inside the BlockSize×remainder bit tail.
var tileStarts [8][]int

func init() {
	for n := range layouts {
		layouts[n] = decompose(n)
	}
	for r := 1; r < 8; r++ {
		tiles := layouts[r].Tiles
		starts := make([]int, len(tiles))
		offset := 0
		for i, w := range tiles {
			starts[i] = offset
			offset += w
		}
		tileStarts[r] = starts
	}
}

// LayoutOf returns the decomposition for width n. It panics if n is outside
// [0, MaxBitWidth].
func LayoutOf(n int) Layout {
	validateBitWidth(n)
	l := layouts[n]
	l.Lanes = slices.Clone(l.Lanes)
	l.Tiles = slices.Clone(l.Tiles)
	return l
}

// decompose derives the layout for width n: lanes are peeled greedily from
// the widest scalar not exceeding the remaining width until fewer than 8 bits
// are left, then the tail bitstream is split greedily into tile words.
func decompose(n int) Layout {
	l := Layout{Width: n}
	remaining := n
	for remaining >= 8 {
		for _, w := range laneWidths {
			if w <= remaining {
				l.Lanes = append(l.Lanes, w)
				remaining -= w
				break
			}
		}
	}
	l.Remainder = remaining
	bits := BlockSize * remaining
	for bits > 0 {
		for _, w := range tileWidths {
			if w <= bits {
				l.Tiles = append(l.Tiles, w)
				bits -= w
				break
			}
		}
	}
	return l
}

// span locates one value's field inside the tile words.
type span struct {
	// word is the index of the tile word holding the field's low bits.
	word int
	// shift is the bit position of the field inside that word.
	shift int
	// low is the number of field bits stored in word. When it is smaller than
	// the field width the rest sits at bit 0 of word+1.
	low int
}

// straddles reports whether a field of the given width continues into the
// next word.
func (s span) straddles(width int) bool {
	return s.low < width
}

// locate finds the field of width bits starting at bit offset of a tail
// tiled by words, whose start offsets are given by starts.
func locate(offset, width int, words, starts []int) span {
	for i := len(words) - 1; i >= 0; i-- {
		if offset >= starts[i] {
			shift := offset - starts[i]
			if shift >= words[i] {
				break
			}
			return span{word: i, shift: shift, low: min(width, words[i]-shift)}
		}
	}
	panic(fmt.Sprintf("bitpack: bit offset %d outside tiled tail %v", offset, words))
}
