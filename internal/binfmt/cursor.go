package binfmt

import (
	"encoding/binary"
)

// Cursor is a bounds-checked reader over a fixed region of a file image.
// Every read reports failure through an ok bool instead of panicking, so
// parsers degrade on truncated input rather than aborting a build.
type Cursor struct {
	data  []byte
	order binary.ByteOrder
}

// NewCursor creates a cursor over data using the given byte order.
func NewCursor(data []byte, order binary.ByteOrder) *Cursor {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Cursor{data: data, order: order}
}

// Len returns the size of the region in bytes.
func (c *Cursor) Len() uint64 {
	return uint64(len(c.data))
}

// Order returns the cursor's byte order.
func (c *Cursor) Order() binary.ByteOrder {
	return c.order
}

// WithOrder returns a cursor over the same region using a different byte
// order. Used once the identification bytes reveal the file's endianness.
func (c *Cursor) WithOrder(order binary.ByteOrder) *Cursor {
	return &Cursor{data: c.data, order: order}
}

// Sub returns a cursor restricted to the region [off, off+size). Used for
// fat Mach-O slices so slice-relative offsets cannot escape the slice.
func (c *Cursor) Sub(off, size uint64) (*Cursor, bool) {
	if off > c.Len() || size > c.Len()-off {
		return nil, false
	}
	return &Cursor{data: c.data[off : off+size], order: c.order}, true
}

// Bytes returns n bytes starting at off.
func (c *Cursor) Bytes(off, n uint64) ([]byte, bool) {
	if off > c.Len() || n > c.Len()-off {
		return nil, false
	}
	return c.data[off : off+n], true
}

// U8 reads one byte at off.
func (c *Cursor) U8(off uint64) (uint8, bool) {
	b, ok := c.Bytes(off, 1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

// U16 reads a 16-bit value at off.
func (c *Cursor) U16(off uint64) (uint16, bool) {
	b, ok := c.Bytes(off, 2)
	if !ok {
		return 0, false
	}
	return c.order.Uint16(b), true
}

// U32 reads a 32-bit value at off.
func (c *Cursor) U32(off uint64) (uint32, bool) {
	b, ok := c.Bytes(off, 4)
	if !ok {
		return 0, false
	}
	return c.order.Uint32(b), true
}

// U64 reads a 64-bit value at off.
func (c *Cursor) U64(off uint64) (uint64, bool) {
	b, ok := c.Bytes(off, 8)
	if !ok {
		return 0, false
	}
	return c.order.Uint64(b), true
}

// Word reads a pointer-width value at off; width is 4 or 8 bytes.
func (c *Cursor) Word(off uint64, width int) (uint64, bool) {
	switch width {
	case 4:
		v, ok := c.U32(off)
		return uint64(v), ok
	case 8:
		return c.U64(off)
	}
	return 0, false
}

// CString reads a NUL-terminated string starting at off. An unterminated
// string runs to the end of the region.
func (c *Cursor) CString(off uint64) (string, bool) {
	if off >= c.Len() {
		return "", false
	}
	rest := c.data[off:]
	for i, b := range rest {
		if b == 0 {
			return string(rest[:i]), true
		}
	}
	return string(rest), true
}
