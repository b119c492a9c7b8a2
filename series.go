package bitpack

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// A series is a self-describing sequence of blocks, each packed at the
// smallest width that holds its values. Layout (little-endian):
//
//	Bytes 0-3:  value count
//	Bytes 4-7:  width directory length in bytes (D)
//	Bytes 8-8+D: width directory, one width per block (StreamVByte)
//	Remainder:  the blocks, back to back, 2×width bytes each
//
// The final block is zero-padded when the count is not a multiple of
// BlockSize; padding never raises its width.
const seriesHeaderBytes = 8

// ErrInvalidBuffer is returned when a series is too small or malformed.
var ErrInvalidBuffer = errors.New("bitpack: invalid buffer")

// seriesBlocks returns the number of blocks needed for count values.
func seriesBlocks(count int) int {
	return (count + BlockSize - 1) / BlockSize
}

// MaxSeriesSize returns the largest number of bytes AppendSeries can emit for
// count values.
func MaxSeriesSize(count int) int {
	blocks := seriesBlocks(count)
	dir := 0
	if blocks > 0 {
		dir = svbControlBytes(blocks) + blocks
	}
	return seriesHeaderBytes + dir + blocks*PackedSize(MaxBitWidth)
}

// AppendSeries encodes values as a series and appends it to dst, so callers
// can reuse buffers across calls. It panics if there are more values than
// the header can count.
func AppendSeries(dst []byte, values []uint64) []byte {
	if uint64(len(values)) > math.MaxUint32 {
		panic(fmt.Sprintf("bitpack: series length %d exceeds maximum %d", len(values), uint64(math.MaxUint32)))
	}
	blocks := seriesBlocks(len(values))
	widths := make([]uint32, blocks)
	payloadLen := 0
	var blk Block
	for b := 0; b < blocks; b++ {
		fillBlock(&blk, values, b)
		w := RequiredBitWidth(&blk)
		widths[b] = uint32(w)
		payloadLen += PackedSize(w)
	}

	start := len(dst)
	dst = slices.Grow(dst, seriesHeaderBytes+svbControlBytes(blocks)+blocks+payloadLen)
	dst = dst[:start+seriesHeaderBytes]
	bo.PutUint32(dst[start:], uint32(len(values)))
	dst = encodeDirectory(dst, widths)
	bo.PutUint32(dst[start+4:], uint32(len(dst)-start-seriesHeaderBytes))

	payloadStart := len(dst)
	dst = slices.Grow(dst, payloadLen)
	dst = dst[:payloadStart+payloadLen]
	buf := WrapBuffer(dst[payloadStart:])
	for b := 0; b < blocks; b++ {
		fillBlock(&blk, values, b)
		if err := Pack(buf, &blk, int(widths[b])); err != nil {
			// The payload was sized from the same widths.
			panic(fmt.Sprintf("bitpack: series payload sizing: %v", err))
		}
	}
	return dst
}

// DecodeSeries decodes a series produced by AppendSeries into dst, which is
// resized as needed, and returns the values.
func DecodeSeries(dst []uint64, buf []byte) ([]uint64, error) {
	idx, err := indexSeries(buf, nil)
	if err != nil {
		return nil, err
	}
	if cap(dst) >= idx.count {
		dst = dst[:idx.count]
	} else {
		dst = make([]uint64, idx.count)
	}
	var blk Block
	for b := 0; b < idx.blocks(); b++ {
		if err := idx.unpack(&blk, b); err != nil {
			return nil, err
		}
		copy(dst[b*BlockSize:], blk[:])
	}
	return dst, nil
}

// seriesIndex is a parsed series header with the byte offset of every block.
type seriesIndex struct {
	count   int
	widths  []uint32
	offsets []int // offsets[b] is where block b starts in payload; len = blocks+1
	payload []byte
}

func (s *seriesIndex) blocks() int {
	return len(s.widths)
}

// unpack decodes block b into dst.
func (s *seriesIndex) unpack(dst *Block, b int) error {
	buf := WrapBuffer(s.payload[s.offsets[b]:s.offsets[b+1]])
	if err := Unpack(buf, dst, int(s.widths[b])); err != nil {
		return fmt.Errorf("%w: block %d: %w", ErrInvalidBuffer, b, err)
	}
	return nil
}

// indexSeries validates buf and builds its block index. The widths slice of
// reuse, when it has enough capacity, is recycled.
func indexSeries(buf []byte, reuse *seriesIndex) (seriesIndex, error) {
	if len(buf) < seriesHeaderBytes {
		return seriesIndex{}, fmt.Errorf("%w: buffer too small for header (need %d bytes, got %d)",
			ErrInvalidBuffer, seriesHeaderBytes, len(buf))
	}
	count := int(bo.Uint32(buf[0:4]))
	dirLen := int(bo.Uint32(buf[4:8]))
	if dirLen > len(buf)-seriesHeaderBytes {
		return seriesIndex{}, fmt.Errorf("%w: width directory truncated (need %d bytes, got %d)",
			ErrInvalidBuffer, dirLen, len(buf)-seriesHeaderBytes)
	}
	blocks := seriesBlocks(count)
	// Every block costs one control bit pair and at least one data byte.
	if minDir := svbControlBytes(blocks) + blocks; dirLen < minDir {
		return seriesIndex{}, fmt.Errorf("%w: width directory of %d bytes cannot describe %d blocks (need at least %d)",
			ErrInvalidBuffer, dirLen, blocks, minDir)
	}

	var scratch []uint32
	var offsets []int
	if reuse != nil && cap(reuse.widths) >= blocks && cap(reuse.offsets) >= blocks+1 {
		scratch = reuse.widths[:blocks]
		offsets = reuse.offsets[:blocks+1]
	} else {
		scratch = make([]uint32, blocks)
		offsets = make([]int, blocks+1)
	}

	dir := buf[seriesHeaderBytes : seriesHeaderBytes+dirLen]
	widths, err := decodeDirectory(dir, blocks, scratch)
	if err != nil {
		return seriesIndex{}, err
	}

	payload := buf[seriesHeaderBytes+dirLen:]
	offsets[0] = 0
	for b, w := range widths {
		offsets[b+1] = offsets[b] + PackedSize(int(w))
	}
	if need := offsets[blocks]; len(payload) < need {
		return seriesIndex{}, fmt.Errorf("%w: buffer truncated (need %d payload bytes, got %d)",
			ErrInvalidBuffer, need, len(payload))
	}
	return seriesIndex{count: count, widths: widths, offsets: offsets, payload: payload}, nil
}

// fillBlock copies block b of values into blk, zero-filling past the end.
func fillBlock(blk *Block, values []uint64, b int) {
	n := copy(blk[:], values[b*BlockSize:])
	clear(blk[n:])
}
