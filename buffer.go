package bitpack

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/cpu"
)

// Buffer is a fixed-capacity byte region with a single read/write cursor.
// All codec output goes through its aligned PutUintN methods and all codec
// input through its UintN methods, so the codec never touches the storage at
// arbitrary bit offsets.
//
// The capacity is fixed at construction and never grows. Reset rewinds the
// cursor without clearing the stored bytes, which lets one Buffer be written
// and then read back in place.
//
// A Buffer is not safe for concurrent use. Callers that share one between
// goroutines must serialize access themselves.
type Buffer struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

// NewBuffer allocates a Buffer holding capacity zeroed bytes.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		panic(fmt.Sprintf("bitpack: invalid buffer capacity %d", capacity))
	}
	return &Buffer{data: make([]byte, capacity), order: bo}
}

// WrapBuffer returns a Buffer backed by data. The capacity is len(data) and
// the cursor starts at the beginning, so the bytes can be decoded directly.
// Writes through the Buffer modify data.
func WrapBuffer(data []byte) *Buffer {
	return &Buffer{data: data[:len(data):len(data)], order: bo}
}

// NativeByteOrder reports the byte order of the host. Streams written with it
// match the layout of encoders that store scalars in machine order, but are
// only portable between hosts of the same endianness.
func NativeByteOrder() binary.ByteOrder {
	if cpu.IsBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// SetByteOrder changes the order used for every subsequent put and get.
// The default is little-endian, which is the portable wire format.
func (b *Buffer) SetByteOrder(order binary.ByteOrder) {
	b.order = order
}

// ByteOrder returns the order the buffer encodes scalars in.
func (b *Buffer) ByteOrder() binary.ByteOrder {
	return b.order
}

// Len returns the cursor position, i.e. the number of bytes written or read
// since construction or the last Reset.
func (b *Buffer) Len() int {
	return b.pos
}

// Cap returns the fixed capacity in bytes.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Available returns the number of bytes between the cursor and the end.
func (b *Buffer) Available() int {
	return len(b.data) - b.pos
}

// Bytes returns the bytes before the cursor. The slice aliases the storage.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.pos]
}

// Reset moves the cursor back to the start. Stored bytes are kept.
func (b *Buffer) Reset() {
	b.pos = 0
}

// PutUint8 appends v. It returns false and leaves the buffer unchanged if no
// byte is left.
func (b *Buffer) PutUint8(v uint8) bool {
	if b.Available() < 1 {
		return false
	}
	b.data[b.pos] = v
	b.pos++
	return true
}

// PutUint16 appends v as two bytes. It returns false and leaves the buffer
// unchanged if fewer than two bytes are left.
func (b *Buffer) PutUint16(v uint16) bool {
	if b.Available() < 2 {
		return false
	}
	b.order.PutUint16(b.data[b.pos:], v)
	b.pos += 2
	return true
}

// PutUint32 appends v as four bytes. It returns false and leaves the buffer
// unchanged if fewer than four bytes are left.
func (b *Buffer) PutUint32(v uint32) bool {
	if b.Available() < 4 {
		return false
	}
	b.order.PutUint32(b.data[b.pos:], v)
	b.pos += 4
	return true
}

// PutUint64 appends v as eight bytes. It returns false and leaves the buffer
// unchanged if fewer than eight bytes are left.
func (b *Buffer) PutUint64(v uint64) bool {
	if b.Available() < 8 {
		return false
	}
	b.order.PutUint64(b.data[b.pos:], v)
	b.pos += 8
	return true
}

// Uint8 reads one byte.
func (b *Buffer) Uint8() (uint8, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

// Uint16 reads two bytes.
func (b *Buffer) Uint16() (uint16, error) {
	if err := b.need(2); err != nil {
		return 0, err
	}
	v := b.order.Uint16(b.data[b.pos:])
	b.pos += 2
	return v, nil
}

// Uint32 reads four bytes.
func (b *Buffer) Uint32() (uint32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	v := b.order.Uint32(b.data[b.pos:])
	b.pos += 4
	return v, nil
}

// Uint64 reads eight bytes.
func (b *Buffer) Uint64() (uint64, error) {
	if err := b.need(8); err != nil {
		return 0, err
	}
	v := b.order.Uint64(b.data[b.pos:])
	b.pos += 8
	return v, nil
}

// need reports ErrOutOfRange when fewer than n bytes remain.
func (b *Buffer) need(n int) error {
	if b.Available() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, %d remaining",
			ErrOutOfRange, n, b.pos, b.Available())
	}
	return nil
}

// put writes the low width bits of v as a single scalar. width must be one of
// 8, 16, 32 or 64.
func (b *Buffer) put(width int, v uint64) bool {
	switch width {
	case 8:
		return b.PutUint8(uint8(v))
	case 16:
		return b.PutUint16(uint16(v))
	case 32:
		return b.PutUint32(uint32(v))
	case 64:
		return b.PutUint64(v)
	}
	panic(fmt.Sprintf("bitpack: unsupported scalar width %d", width))
}

// get reads a single scalar of the given width, zero-extended to 64 bits.
func (b *Buffer) get(width int) (uint64, error) {
	switch width {
	case 8:
		v, err := b.Uint8()
		return uint64(v), err
	case 16:
		v, err := b.Uint16()
		return uint64(v), err
	case 32:
		v, err := b.Uint32()
		return uint64(v), err
	case 64:
		return b.Uint64()
	}
	panic(fmt.Sprintf("bitpack: unsupported scalar width %d", width))
}
