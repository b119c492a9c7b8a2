package bitpack

import (
	"fmt"
	"math/bits"
)

// RequiredBitWidth returns the smallest width that holds every value of the
// block. Uses OR-reduction to avoid per-element branching.
func RequiredBitWidth(block *Block) int {
	var orAll uint64
	for _, v := range block {
		orAll |= v
	}
	return bits.Len64(orAll)
}

// Mask returns a value with the low n bits set. Mask(64) is all ones.
func Mask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

// MaskBlock clears every bit above n in place.
func MaskBlock(block *Block, n int) {
	validateBitWidth(n)
	m := Mask(n)
	for i := range block {
		block[i] &= m
	}
}

// validateBitWidth panics if n is not a usable bit width. A width outside the
// range is a caller bug, not a data error.
func validateBitWidth(n int) {
	if n < 0 || n > MaxBitWidth {
		panic(fmt.Sprintf("bitpack: invalid bit width %d (must be 0..%d)", n, MaxBitWidth))
	}
}
