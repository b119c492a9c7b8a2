// Width directory of a packed series.
//
// The directory holds one bit width per block, StreamVByte-encoded: control
// bytes first (2 bits per value, code+1 = byte length, value 0 in the low
// bits), then the data bytes. Widths are at most 64 so every data entry is a
// single byte, but the directory is validated generically before it is handed
// to the decoder.

package bitpack

import (
	"fmt"

	"github.com/mhr3/streamvbyte"
)

// svbControlBlockSizeLUT is a precomputed lookup table for StreamVByte control byte sizes.
// Entry i = sum of byte lengths for all 4 values encoded in control byte i.
var svbControlBlockSizeLUT [256]uint8

func init() {
	for ctrl := 0; ctrl < 256; ctrl++ {
		size := (ctrl & 0x03) + ((ctrl >> 2) & 0x03) + ((ctrl >> 4) & 0x03) + (ctrl >> 6) + 4
		svbControlBlockSizeLUT[ctrl] = uint8(size)
	}
}

// svbControlBytes returns the number of control bytes for count values.
func svbControlBytes(count int) int {
	return (count + 3) >> 2
}

// svbPayloadLen returns the number of data bytes described by the control
// bytes of a count-value stream. Full groups use the lookup table; the codes
// of the trailing partial group are summed individually.
func svbPayloadLen(control []byte, count int) int {
	full := count >> 2
	total := 0
	for _, ctrl := range control[:full] {
		total += int(svbControlBlockSizeLUT[ctrl])
	}
	if tail := count & 0x03; tail > 0 {
		ctrl := control[full]
		for i := 0; i < tail; i++ {
			total += int((ctrl>>(i*2))&0x03) + 1
		}
	}
	return total
}

// encodeDirectory appends the StreamVByte encoding of widths to dst.
func encodeDirectory(dst []byte, widths []uint32) []byte {
	if len(widths) == 0 {
		return dst
	}
	start := len(dst)
	maxLen := streamvbyte.MaxEncodedLen(len(widths))
	dst = append(dst, make([]byte, maxLen)...)
	enc := streamvbyte.EncodeUint32(widths, &streamvbyte.EncodeOptions[uint32]{
		Buffer: dst[start:],
	})
	n := copy(dst[start:], enc)
	return dst[:start+n]
}

// decodeDirectory decodes count widths from dir into scratch (which must
// hold count entries) after checking that dir is exactly as long as its
// control bytes claim and that every width is in range.
func decodeDirectory(dir []byte, count int, scratch []uint32) ([]uint32, error) {
	if count == 0 {
		if len(dir) != 0 {
			return nil, fmt.Errorf("%w: %d directory bytes for an empty series", ErrInvalidBuffer, len(dir))
		}
		return scratch[:0], nil
	}
	ctrlLen := svbControlBytes(count)
	if len(dir) < ctrlLen {
		return nil, fmt.Errorf("%w: width directory truncated (need %d control bytes, got %d)",
			ErrInvalidBuffer, ctrlLen, len(dir))
	}
	if want := ctrlLen + svbPayloadLen(dir[:ctrlLen], count); len(dir) != want {
		return nil, fmt.Errorf("%w: width directory length %d, control bytes describe %d",
			ErrInvalidBuffer, len(dir), want)
	}
	widths := streamvbyte.DecodeUint32(dir, count, &streamvbyte.DecodeOptions[uint32]{
		Buffer: scratch[:count],
	})
	for i, w := range widths {
		if w > MaxBitWidth {
			return nil, fmt.Errorf("%w: block %d has bit width %d", ErrInvalidBuffer, i, w)
		}
	}
	return widths, nil
}
