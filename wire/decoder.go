package wire

import (
	"fmt"
	"io"
	"unicode/utf8"
)

// A Decoder provides utilities to read wire format fragments from a
// byte slice.
//
// Reads skip over whatever padding the format's alignment rules call
// for, except [Decoder.Read] which consumes bytes verbatim. Alignment
// is computed relative to the start of In, so In must hold a complete
// message starting at offset zero.
type Decoder struct {
	// Order lays out multi-byte values.
	Order ByteOrder
	// In is the message being read.
	In []byte

	// offset tracks how much of In has been consumed. Alignment
	// depends on the absolute position within the message, which
	// local context partway through a decode cannot supply.
	offset int
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int { return d.offset }

// Remaining returns the number of unconsumed bytes.
func (d *Decoder) Remaining() int { return len(d.In) - d.offset }

// Pad consumes zero bytes so that the next read falls on a multiple
// of align bytes. An already aligned decoder consumes nothing.
func (d *Decoder) Pad(align int) error {
	r := d.offset % align
	if r == 0 {
		return nil
	}
	if d.offset+align-r > len(d.In) {
		return io.ErrUnexpectedEOF
	}
	d.offset += align - r
	return nil
}

// Read consumes the next n bytes, unframed and unpadded.
func (d *Decoder) Read(n int) ([]byte, error) {
	if n < 0 || d.offset+n > len(d.In) {
		return nil, io.ErrUnexpectedEOF
	}
	bs := d.In[d.offset : d.offset+n]
	d.offset += n
	return bs, nil
}

// Bytes reads a byte array.
func (d *Decoder) Bytes() ([]byte, error) {
	ln, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	return d.Read(int(ln))
}

// String reads a wire format string, verifying the NUL terminator
// and that the contents are valid UTF-8.
func (d *Decoder) String() (string, error) {
	ln, err := d.Uint32()
	if err != nil {
		return "", err
	}
	return d.stringBody(int(ln))
}

// Signature reads a wire format type signature, which is a string
// with a single length byte instead of a uint32.
func (d *Decoder) Signature() (string, error) {
	ln, err := d.Uint8()
	if err != nil {
		return "", err
	}
	return d.stringBody(int(ln))
}

func (d *Decoder) stringBody(ln int) (string, error) {
	bs, err := d.Read(ln + 1)
	if err != nil {
		return "", err
	}
	if bs[ln] != 0 {
		return "", fmt.Errorf("string of length %d is not NUL-terminated", ln)
	}
	bs = bs[:ln]
	if !utf8.Valid(bs) {
		return "", fmt.Errorf("string %q is not valid UTF-8", bs)
	}
	for _, b := range bs {
		if b == 0 {
			return "", fmt.Errorf("string %q contains an interior NUL byte", bs)
		}
	}
	return string(bs), nil
}

// Uint8 reads a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	bs, err := d.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Uint16 reads a uint16.
func (d *Decoder) Uint16() (uint16, error) {
	if err := d.Pad(2); err != nil {
		return 0, err
	}
	bs, err := d.Read(2)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint16(bs), nil
}

// Uint32 reads a uint32.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.Pad(4); err != nil {
		return 0, err
	}
	bs, err := d.Read(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint32(bs), nil
}

// Uint64 reads a uint64.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.Pad(8); err != nil {
		return 0, err
	}
	bs, err := d.Read(8)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint64(bs), nil
}

// Array reads an array. The length prefix and the padding for the
// element type's alignment (elemAlign) are consumed even when the
// array is empty. readElement is then called once per element, with
// the element's index, until the prefixed extent is used up. It must
// consume exactly the bytes of its element and stay within the
// extent.
//
// Array returns the number of elements processed.
func (d *Decoder) Array(elemAlign int, readElement func(int) error) (int, error) {
	ln, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if ln > MaxArrayBytes {
		return 0, fmt.Errorf("array of %d bytes exceeds the maximum of %d", ln, MaxArrayBytes)
	}
	if err := d.Pad(elemAlign); err != nil {
		return 0, err
	}
	end := d.offset + int(ln)
	if end > len(d.In) {
		return 0, io.ErrUnexpectedEOF
	}
	idx := 0
	for d.offset < end {
		if err := readElement(idx); err != nil {
			return idx, err
		}
		idx++
	}
	if d.offset != end {
		return idx, fmt.Errorf("array elements overran the array extent by %d bytes", d.offset-end)
	}
	return idx, nil
}

// Struct aligns the cursor for a struct, whose fields are read by
// the fields function.
func (d *Decoder) Struct(fields func() error) error {
	if err := d.Pad(8); err != nil {
		return err
	}
	return fields()
}

// ByteOrderFlag reads a byte order flag byte ('l' or 'B') and points
// [Decoder.Order] at the matching order.
func (d *Decoder) ByteOrderFlag() error {
	v, err := d.Uint8()
	if err != nil {
		return err
	}
	switch v {
	case 'B':
		d.Order = BigEndian
	case 'l':
		d.Order = LittleEndian
	default:
		return fmt.Errorf("unknown byte order flag %q", v)
	}
	return nil
}
