package bitpack

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackAllWidths(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for width := 0; width <= MaxBitWidth; width++ {
		width := width
		t.Run(fmt.Sprintf("width_%02d", width), func(t *testing.T) {
			assert := assert.New(t)
			src := genBlock(rng, width)

			buf := NewBuffer(PackedSize(width))
			require.NoError(t, Pack(buf, &src, width))
			assert.Equal((BlockSize*width+7)/8, buf.Len(), "packed size")
			assert.Zero(buf.Available(), "buffer sized exactly")

			buf.Reset()
			var got Block
			require.NoError(t, Unpack(buf, &got, width))
			assert.Equal(src, got, "round trip mismatch:\n%s", spew.Sdump(src, got))
			assert.Equal(PackedSize(width), buf.Len(), "unpack must consume the whole block")
		})
	}
}

func TestPackMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(2025))

	for width := 0; width <= MaxBitWidth; width++ {
		src := genBlock(rng, width)
		buf := NewBuffer(PackedSize(width))
		require.NoError(t, Pack(buf, &src, width))
		assert.Equal(t, referenceStream(&src, width), buf.Bytes(), "width %d", width)
	}
}

func TestPackZeroWidth(t *testing.T) {
	assert := assert.New(t)

	src := Block{1, 2, 3}
	empty := NewBuffer(0)
	assert.NoError(Pack(empty, &src, 0))
	assert.Equal(0, empty.Len())

	// Whatever the buffer holds, width 0 decodes to zeros without reading.
	buf := WrapBuffer([]byte{0xff, 0xff, 0xff})
	got := Block{7, 7, 7}
	assert.NoError(Unpack(buf, &got, 0))
	assert.Equal(Block{}, got)
	assert.Equal(0, buf.Len())
}

func TestPackWidth3(t *testing.T) {
	assert := assert.New(t)

	src := Block{0, 1, 2, 3, 4, 5, 6, 7, 0, 1, 2, 3, 4, 5, 6, 7}
	buf := NewBuffer(64)
	require.NoError(t, Pack(buf, &src, 3))
	assert.Equal([]byte{0x88, 0xc6, 0xfa, 0x88, 0xc6, 0xfa}, buf.Bytes())

	buf.Reset()
	var got Block
	require.NoError(t, Unpack(buf, &got, 3))
	assert.Equal(src, got)
}

func TestPackWidth4(t *testing.T) {
	assert := assert.New(t)

	var src Block
	for i := range src {
		src[i] = uint64(i)
	}
	buf := NewBuffer(PackedSize(4))
	require.NoError(t, Pack(buf, &src, 4))
	// One 64-bit tile word holding nibble i = value i.
	assert.Equal([]byte{0x10, 0x32, 0x54, 0x76, 0x98, 0xba, 0xdc, 0xfe}, buf.Bytes())

	buf.Reset()
	var got Block
	require.NoError(t, Unpack(buf, &got, 4))
	assert.Equal(src, got, "width 4 must decode through its own layout")
}

func TestPackWidth23(t *testing.T) {
	assert := assert.New(t)

	var src Block
	for i := range src {
		src[i] = uint64(i*0x5a5a5+0x12345) & Mask(23)
	}
	buf := NewBuffer(128)
	require.NoError(t, Pack(buf, &src, 23))
	assert.Equal(46, buf.Len())

	// First section: the low 16 bits of every value.
	for i, v := range src {
		assert.Equal(uint16(v), binary.LittleEndian.Uint16(buf.Bytes()[2*i:]), "lane value %d", i)
	}
	// Then 112 bits of 7-bit fields in 64+32+16-bit words.
	tail := buf.Bytes()[32:]
	words := []uint64{
		binary.LittleEndian.Uint64(tail[0:]),
		uint64(binary.LittleEndian.Uint32(tail[8:])),
		uint64(binary.LittleEndian.Uint16(tail[12:])),
	}
	for i, v := range src {
		var field uint64
		for b := 0; b < 7; b++ {
			bit := i*7 + b
			var word, off int
			switch {
			case bit < 64:
				word, off = 0, bit
			case bit < 96:
				word, off = 1, bit-64
			default:
				word, off = 2, bit-96
			}
			field |= (words[word] >> off & 1) << b
		}
		assert.Equal(v>>16, field, "tile field %d", i)
	}

	buf.Reset()
	var got Block
	require.NoError(t, Unpack(buf, &got, 23))
	assert.Equal(src, got)
}

func TestPackIgnoresBitsAboveWidth(t *testing.T) {
	assert := assert.New(t)

	for _, width := range []int{1, 5, 8, 12, 23, 40, 63} {
		var src Block
		for i := range src {
			src[i] = ^uint64(0) - uint64(i)
		}
		orig := src
		buf := NewBuffer(PackedSize(width))
		require.NoError(t, Pack(buf, &src, width), "width %d", width)
		assert.Equal(orig, src, "Pack must not modify the caller's block")

		buf.Reset()
		var got Block
		require.NoError(t, Unpack(buf, &got, width))
		MaskBlock(&orig, width)
		assert.Equal(orig, got, "width %d", width)
	}
}

func TestPackLengthIndependentOfData(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for width := 0; width <= MaxBitWidth; width++ {
		a := genBlock(rng, width)
		var b Block // all zero

		bufA := NewBuffer(PackedSize(MaxBitWidth))
		bufB := NewBuffer(PackedSize(MaxBitWidth))
		require.NoError(t, Pack(bufA, &a, width))
		require.NoError(t, Pack(bufB, &b, width))
		assert.Equal(t, bufA.Len(), bufB.Len(), "width %d", width)
		assert.Equal(t, LayoutOf(width).Bytes(), bufA.Len(), "width %d", width)
	}
}

func TestPackCapacityExhausted(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for width := 1; width <= MaxBitWidth; width++ {
		src := genBlock(rng, width)
		buf := NewBuffer(PackedSize(width) - 1)
		var err error
		assert.NotPanics(t, func() { err = Pack(buf, &src, width) }, "width %d", width)
		assert.ErrorIs(t, err, ErrCapacity, "width %d", width)
	}
}

func TestUnpackTruncated(t *testing.T) {
	rng := rand.New(rand.NewSource(13))

	for width := 1; width <= MaxBitWidth; width++ {
		src := genBlock(rng, width)
		full := NewBuffer(PackedSize(width))
		require.NoError(t, Pack(full, &src, width))

		short := WrapBuffer(full.Bytes()[:full.Len()-1])
		var got Block
		err := Unpack(short, &got, width)
		assert.ErrorIs(t, err, ErrOutOfRange, "width %d", width)
	}
}

func TestUnpackWidthMismatch(t *testing.T) {
	src := Block{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	buf := NewBuffer(PackedSize(5))
	require.NoError(t, Pack(buf, &src, 5))

	buf.Reset()
	var got Block
	assert.ErrorIs(t, Unpack(buf, &got, 6), ErrOutOfRange)
}

func TestPackSequentialBlocks(t *testing.T) {
	assert := assert.New(t)
	rng := rand.New(rand.NewSource(99))

	widths := []int{0, 3, 64, 7, 17, 8, 1, 33, 0, 56}
	total := 0
	for _, w := range widths {
		total += PackedSize(w)
	}
	buf := NewBuffer(total)
	blocks := make([]Block, len(widths))
	for i, w := range widths {
		blocks[i] = genBlock(rng, w)
		require.NoError(t, Pack(buf, &blocks[i], w))
	}
	assert.Equal(total, buf.Len())

	buf.Reset()
	for i, w := range widths {
		var got Block
		require.NoError(t, Unpack(buf, &got, w))
		assert.Equal(blocks[i], got, "block %d width %d", i, w)
	}
	assert.Zero(buf.Available())
}

func TestPackByteOrder(t *testing.T) {
	assert := assert.New(t)

	src := Block{0x0102}
	le := NewBuffer(PackedSize(16))
	be := NewBuffer(PackedSize(16))
	be.SetByteOrder(binary.BigEndian)
	require.NoError(t, Pack(le, &src, 16))
	require.NoError(t, Pack(be, &src, 16))
	assert.Equal([]byte{0x02, 0x01}, le.Bytes()[:2])
	assert.Equal([]byte{0x01, 0x02}, be.Bytes()[:2])

	be.Reset()
	var got Block
	require.NoError(t, Unpack(be, &got, 16))
	assert.Equal(src, got)
}

func TestPackInvalidWidth(t *testing.T) {
	assert := assert.New(t)

	var blk Block
	buf := NewBuffer(256)
	assert.Panics(func() { _ = Pack(buf, &blk, -1) })
	assert.Panics(func() { _ = Pack(buf, &blk, 65) })
	assert.Panics(func() { _ = Unpack(buf, &blk, 65) })
	assert.Panics(func() { PackedSize(65) })
	assert.Panics(func() { LayoutOf(-1) })
}

func BenchmarkPack(b *testing.B) {
	for _, width := range []int{3, 8, 23, 47, 64} {
		b.Run(fmt.Sprintf("width_%02d", width), func(b *testing.B) {
			src := genBlock(rand.New(rand.NewSource(1)), width)
			buf := NewBuffer(PackedSize(width))
			b.SetBytes(BlockSize * 8)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				buf.Reset()
				_ = Pack(buf, &src, width)
			}
		})
	}
}

func BenchmarkUnpack(b *testing.B) {
	for _, width := range []int{3, 8, 23, 47, 64} {
		b.Run(fmt.Sprintf("width_%02d", width), func(b *testing.B) {
			src := genBlock(rand.New(rand.NewSource(1)), width)
			buf := NewBuffer(PackedSize(width))
			_ = Pack(buf, &src, width)
			var dst Block
			b.SetBytes(BlockSize * 8)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				buf.Reset()
				_ = Unpack(buf, &dst, width)
			}
		})
	}
}

// genBlock returns random values that use the full width (the first value
// always has bit width-1 set).
func genBlock(rng *rand.Rand, width int) Block {
	var blk Block
	m := Mask(width)
	for i := range blk {
		blk[i] = rng.Uint64() & m
	}
	if width > 0 {
		blk[0] |= 1 << (width - 1)
	}
	return blk
}

// referenceStream encodes blk bit by bit: lanes as little-endian bytes of
// each value's next lane bits, then the tail as an LSB-first bitstream. With
// little-endian tile words both views produce the same bytes.
func referenceStream(blk *Block, width int) []byte {
	l := LayoutOf(width)
	out := []byte{}
	shift := 0
	for _, w := range l.Lanes {
		for _, v := range blk {
			for k := 0; k < w/8; k++ {
				out = append(out, byte(v>>(shift+8*k)))
			}
		}
		shift += w
	}
	var cur byte
	nbits := 0
	for _, v := range blk {
		v >>= shift
		for b := 0; b < l.Remainder; b++ {
			if v>>b&1 == 1 {
				cur |= 1 << nbits
			}
			nbits++
			if nbits == 8 {
				out = append(out, cur)
				cur, nbits = 0, 0
			}
		}
	}
	return out
}
