package wire

import "fmt"

// MaxArrayBytes is the maximum byte length of a single marshaled
// array, from the DBus specification.
const MaxArrayBytes = 1 << 26

// An Encoder provides utilities to append wire format fragments to a
// byte slice.
//
// Methods insert padding as needed to conform to the format's
// alignment rules, except for [Encoder.Write] which outputs bytes
// verbatim. Alignment is computed relative to the start of Out, so a
// message must be encoded into Out from offset zero.
type Encoder struct {
	// Order lays out multi-byte values.
	Order ByteOrder
	// Out accumulates the encoded message.
	Out []byte
}

var zeros [8]byte

// Pad appends zero bytes until the output is a multiple of align
// bytes long. Output that is already aligned is left as is.
func (e *Encoder) Pad(align int) {
	if r := len(e.Out) % align; r != 0 {
		e.Out = append(e.Out, zeros[:align-r]...)
	}
}

// Write appends bs verbatim, with no padding. Encoding rules become
// the caller's problem.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// Bytes writes bs as a byte array.
func (e *Encoder) Bytes(bs []byte) {
	e.Pad(4)
	e.Uint32(uint32(len(bs)))
	e.Out = append(e.Out, bs...)
}

// String writes s as a wire format string: a uint32 byte length
// followed by the string and a NUL terminator.
func (e *Encoder) String(s string) {
	e.Pad(4)
	e.Uint32(uint32(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Signature writes s as a wire format type signature: a single
// length byte followed by the signature and a NUL terminator.
func (e *Encoder) Signature(s string) {
	e.Uint8(uint8(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Uint8 writes a uint8.
func (e *Encoder) Uint8(u8 uint8) {
	e.Out = append(e.Out, u8)
}

// Uint16 writes a uint16.
func (e *Encoder) Uint16(u16 uint16) {
	e.Pad(2)
	e.Out = e.Order.AppendUint16(e.Out, u16)
}

// Uint32 writes a uint32.
func (e *Encoder) Uint32(u32 uint32) {
	e.Pad(4)
	e.Out = e.Order.AppendUint32(e.Out, u32)
}

// Uint64 writes a uint64.
func (e *Encoder) Uint64(u64 uint64) {
	e.Pad(8)
	e.Out = e.Order.AppendUint64(e.Out, u64)
}

// Array encodes an array whose contents are written by the elements
// function. elemAlign, the alignment of the element type, pads the
// gap between the length prefix and the first element. The prefix
// counts the bytes elements wrote, excluding that padding.
func (e *Encoder) Array(elemAlign int, elements func() error) error {
	e.Pad(4)
	offset := len(e.Out)
	e.Uint32(0)
	e.Pad(elemAlign)

	start := len(e.Out)
	err := elements()
	end := len(e.Out)
	if sz := end - start; sz > MaxArrayBytes {
		return fmt.Errorf("array too large: %d bytes, max is %d", sz, MaxArrayBytes)
	}
	e.Order.PutUint32(e.Out[offset:], uint32(end-start))

	return err
}

// Struct aligns the output for a struct, whose fields are written by
// the elements function.
func (e *Encoder) Struct(elements func() error) error {
	e.Pad(8)
	return elements()
}

// ByteOrderFlag writes the wire format byte order flag byte ('l' or
// 'B') that matches [Encoder.Order].
func (e *Encoder) ByteOrderFlag() {
	e.Write([]byte{e.Order.flag()})
}
