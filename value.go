package ibus

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/go-ibus/ibus/wire"
)

// A Value is a single value in an IBus message. The protocol's type
// system is closed: Value is implemented only by the types in this
// package, one per wire type. Every Value knows its own signature, so
// messages can be encoded without further type information.
type Value interface {
	// signature returns the type signature of the value. It also
	// seals the interface to this package's types.
	signature() Signature
	// encodeTo appends the value's wire representation, not
	// including any leading alignment padding.
	encodeTo(e *wire.Encoder) error
}

// SignatureOf returns the type signature of the given values, the
// concatenation of each value's own signature.
func SignatureOf(vs ...Value) Signature {
	if len(vs) == 1 {
		return vs[0].signature()
	}
	sigs := make([]Signature, len(vs))
	for i, v := range vs {
		sigs[i] = v.signature()
	}
	return concatSig(sigs)
}

var (
	sigUint8      = Signature{"y"}
	sigBool       = Signature{"b"}
	sigInt16      = Signature{"n"}
	sigUint16     = Signature{"q"}
	sigInt32      = Signature{"i"}
	sigUint32     = Signature{"u"}
	sigInt64      = Signature{"x"}
	sigUint64     = Signature{"t"}
	sigDouble     = Signature{"d"}
	sigString     = Signature{"s"}
	sigObjectPath = Signature{"o"}
	sigSignature  = Signature{"g"}
	sigVariant    = Signature{"v"}
)

// Uint8 is a byte, wire type "y".
type Uint8 uint8

func (v Uint8) signature() Signature { return sigUint8 }

func (v Uint8) encodeTo(e *wire.Encoder) error {
	e.Uint8(uint8(v))
	return nil
}

// Bool is a boolean, wire type "b".
type Bool bool

func (v Bool) signature() Signature { return sigBool }

func (v Bool) encodeTo(e *wire.Encoder) error {
	if v {
		e.Uint32(1)
	} else {
		e.Uint32(0)
	}
	return nil
}

// Int16 is a signed 16-bit integer, wire type "n".
type Int16 int16

func (v Int16) signature() Signature { return sigInt16 }

func (v Int16) encodeTo(e *wire.Encoder) error {
	e.Uint16(uint16(v))
	return nil
}

// Uint16 is an unsigned 16-bit integer, wire type "q".
type Uint16 uint16

func (v Uint16) signature() Signature { return sigUint16 }

func (v Uint16) encodeTo(e *wire.Encoder) error {
	e.Uint16(uint16(v))
	return nil
}

// Int32 is a signed 32-bit integer, wire type "i".
type Int32 int32

func (v Int32) signature() Signature { return sigInt32 }

func (v Int32) encodeTo(e *wire.Encoder) error {
	e.Uint32(uint32(v))
	return nil
}

// Uint32 is an unsigned 32-bit integer, wire type "u".
type Uint32 uint32

func (v Uint32) signature() Signature { return sigUint32 }

func (v Uint32) encodeTo(e *wire.Encoder) error {
	e.Uint32(uint32(v))
	return nil
}

// Int64 is a signed 64-bit integer, wire type "x".
type Int64 int64

func (v Int64) signature() Signature { return sigInt64 }

func (v Int64) encodeTo(e *wire.Encoder) error {
	e.Uint64(uint64(v))
	return nil
}

// Uint64 is an unsigned 64-bit integer, wire type "t".
type Uint64 uint64

func (v Uint64) signature() Signature { return sigUint64 }

func (v Uint64) encodeTo(e *wire.Encoder) error {
	e.Uint64(uint64(v))
	return nil
}

// Double is a 64-bit float, wire type "d".
type Double float64

func (v Double) signature() Signature { return sigDouble }

func (v Double) encodeTo(e *wire.Encoder) error {
	e.Uint64(math.Float64bits(float64(v)))
	return nil
}

// String is a UTF-8 string, wire type "s". The wire format cannot
// carry strings containing NUL bytes or invalid UTF-8.
type String string

func (v String) signature() Signature { return sigString }

func (v String) encodeTo(e *wire.Encoder) error {
	if strings.IndexByte(string(v), 0) >= 0 {
		return typeErr("ibus.String", "string contains a NUL byte")
	}
	if !utf8.ValidString(string(v)) {
		return typeErr("ibus.String", "string is not valid UTF-8")
	}
	e.String(string(v))
	return nil
}

// Signature values are themselves sendable, wire type "g".

func (s Signature) signature() Signature { return sigSignature }

func (s Signature) encodeTo(e *wire.Encoder) error {
	// Concatenated signatures, such as a message body's, are built
	// without re-parsing and can outgrow the wire format's single
	// length byte.
	if len(s.str) > maxSigLen {
		return typeErr("ibus.Signature", "signature is %d bytes, limit is %d", len(s.str), maxSigLen)
	}
	e.Signature(s.str)
	return nil
}

// A Variant is a value paired with its type signature on the wire,
// wire type "v".
type Variant struct {
	Value Value
}

func (v Variant) signature() Signature { return sigVariant }

func (v Variant) encodeTo(e *wire.Encoder) error {
	if v.Value == nil {
		return typeErr("ibus.Variant", "variant has no value")
	}
	inner := v.Value.signature()
	if parts := inner.split(); len(parts) != 1 {
		return typeErr("ibus.Variant", "variant value signature %q is not a single type", inner)
	}
	e.Signature(inner.str)
	return v.Value.encodeTo(e)
}

// An Array is a sequence of values of one type, wire type "a". Elem
// is the element type, and must be set even when Values is empty.
type Array struct {
	Elem   Signature
	Values []Value
}

func (a Array) signature() Signature { return Signature{"a" + a.Elem.str} }

func (a Array) encodeTo(e *wire.Encoder) error {
	if a.Elem.IsZero() {
		return typeErr("ibus.Array", "array has no element type")
	}
	if parts := a.Elem.split(); len(parts) != 1 {
		return typeErr("ibus.Array", "array element signature %q is not a single type", a.Elem)
	}
	for i, el := range a.Values {
		if el == nil {
			return typeErr("ibus.Array", "array element %d is nil", i)
		}
		if got := el.signature(); got != a.Elem {
			return typeErr("ibus.Array", "array element %d has signature %q, want %q", i, got, a.Elem)
		}
	}
	return e.Array(a.Elem.alignment(), func() error {
		for _, el := range a.Values {
			if err := el.encodeTo(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// A Dict is an association from keys of one basic type to values of
// one type, wire type "a{...}". Entries preserve their order across
// encode and decode.
type Dict struct {
	Key, Val Signature
	Entries  []DictEntry
}

// A DictEntry is a single key/value pair of a Dict.
type DictEntry struct {
	Key, Val Value
}

func (d Dict) signature() Signature {
	return Signature{"a{" + d.Key.str + d.Val.str + "}"}
}

func (d Dict) encodeTo(e *wire.Encoder) error {
	if len(d.Key.str) != 1 || !strings.ContainsRune(basicTypeCodes, rune(d.Key.str[0])) {
		return typeErr("ibus.Dict", "dict key signature %q is not a basic type", d.Key)
	}
	if d.Val.IsZero() {
		return typeErr("ibus.Dict", "dict has no value type")
	}
	if parts := d.Val.split(); len(parts) != 1 {
		return typeErr("ibus.Dict", "dict value signature %q is not a single type", d.Val)
	}
	for i, ent := range d.Entries {
		if ent.Key == nil || ent.Val == nil {
			return typeErr("ibus.Dict", "dict entry %d is incomplete", i)
		}
		if got := ent.Key.signature(); got != d.Key {
			return typeErr("ibus.Dict", "dict entry %d key has signature %q, want %q", i, got, d.Key)
		}
		if got := ent.Val.signature(); got != d.Val {
			return typeErr("ibus.Dict", "dict entry %d value has signature %q, want %q", i, got, d.Val)
		}
	}
	return e.Array(8, func() error {
		for _, ent := range d.Entries {
			err := e.Struct(func() error {
				if err := ent.Key.encodeTo(e); err != nil {
					return err
				}
				return ent.Val.encodeTo(e)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Lookup returns the value of the first entry whose key equals key,
// or nil if there is none.
func (d Dict) Lookup(key Value) Value {
	for _, ent := range d.Entries {
		if ent.Key == key {
			return ent.Val
		}
	}
	return nil
}

// A Struct is a sequence of values of possibly differing types, wire
// type "(...)". Structs must have at least one field.
type Struct struct {
	Fields []Value
}

func (s Struct) signature() Signature {
	sigs := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		sigs[i] = f.signature().str
	}
	return Signature{"(" + strings.Join(sigs, "") + ")"}
}

func (s Struct) encodeTo(e *wire.Encoder) error {
	if len(s.Fields) == 0 {
		return typeErr("ibus.Struct", "struct has no fields")
	}
	return e.Struct(func() error {
		for i, f := range s.Fields {
			if f == nil {
				return typeErr("ibus.Struct", "struct field %d is nil", i)
			}
			if err := f.encodeTo(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Variant values may nest other variants. maxVariantDepth bounds the
// recursion when decoding adversarial input.
const maxVariantDepth = 64

// decodeValue reads one value of the given single complete type.
// Errors it returns describe malformed wire data and are wrapped into
// a DecodeError at the message boundary.
func decodeValue(d *wire.Decoder, sig Signature, depth int) (Value, error) {
	switch c := sig.str[0]; c {
	case 'y':
		v, err := d.Uint8()
		if err != nil {
			return nil, err
		}
		return Uint8(v), nil
	case 'b':
		v, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		switch v {
		case 0:
			return Bool(false), nil
		case 1:
			return Bool(true), nil
		}
		return nil, fmt.Errorf("invalid boolean value %d", v)
	case 'n':
		v, err := d.Uint16()
		if err != nil {
			return nil, err
		}
		return Int16(v), nil
	case 'q':
		v, err := d.Uint16()
		if err != nil {
			return nil, err
		}
		return Uint16(v), nil
	case 'i':
		v, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		return Int32(v), nil
	case 'u':
		v, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		return Uint32(v), nil
	case 'x':
		v, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		return Int64(v), nil
	case 't':
		v, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		return Uint64(v), nil
	case 'd':
		v, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		return Double(math.Float64frombits(v)), nil
	case 's':
		v, err := d.String()
		if err != nil {
			return nil, err
		}
		return String(v), nil
	case 'o':
		v, err := d.String()
		if err != nil {
			return nil, err
		}
		if !ObjectPath(v).Valid() {
			return nil, fmt.Errorf("invalid object path %q", v)
		}
		return ObjectPath(v), nil
	case 'g':
		v, err := d.Signature()
		if err != nil {
			return nil, err
		}
		ps, err := ParseSignature(v)
		if err != nil {
			return nil, err
		}
		return ps, nil
	case 'v':
		if depth+1 > maxVariantDepth {
			return nil, fmt.Errorf("variant nesting deeper than %d", maxVariantDepth)
		}
		raw, err := d.Signature()
		if err != nil {
			return nil, err
		}
		inner, err := ParseSignature(raw)
		if err != nil {
			return nil, err
		}
		if parts := inner.split(); len(parts) != 1 {
			return nil, fmt.Errorf("variant signature %q is not a single type", raw)
		}
		val, err := decodeValue(d, inner, depth+1)
		if err != nil {
			return nil, err
		}
		return Variant{val}, nil
	case 'a':
		if sig.isDict() {
			key, val := sig.dictKeyVal()
			var entries []DictEntry
			_, err := d.Array(8, func(int) error {
				return d.Struct(func() error {
					k, err := decodeValue(d, key, depth)
					if err != nil {
						return err
					}
					v, err := decodeValue(d, val, depth)
					if err != nil {
						return err
					}
					entries = append(entries, DictEntry{k, v})
					return nil
				})
			})
			if err != nil {
				return nil, err
			}
			return Dict{Key: key, Val: val, Entries: entries}, nil
		}
		elem := sig.arrayElem()
		var vals []Value
		_, err := d.Array(elem.alignment(), func(int) error {
			v, err := decodeValue(d, elem, depth)
			if err != nil {
				return err
			}
			vals = append(vals, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return Array{Elem: elem, Values: vals}, nil
	case '(':
		var fields []Value
		err := d.Struct(func() error {
			for _, fs := range sig.structFields() {
				f, err := decodeValue(d, fs, depth)
				if err != nil {
					return err
				}
				fields = append(fields, f)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return Struct{Fields: fields}, nil
	}
	return nil, fmt.Errorf("unknown type specifier %q", sig.str[0])
}

// decodeValues reads one value per complete type of sig, in order.
func decodeValues(d *wire.Decoder, sig Signature) ([]Value, error) {
	var vals []Value
	for _, part := range sig.split() {
		v, err := decodeValue(d, part, 0)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}
