package ibus

import (
	"fmt"
	"io"

	"github.com/go-ibus/ibus/wire"
)

// MsgType is the type of a message.
type MsgType uint8

const (
	// MsgCall is a method call.
	MsgCall MsgType = iota + 1
	// MsgReturn is a successful reply to a method call.
	MsgReturn
	// MsgError is an error reply to a method call.
	MsgError
	// MsgSignal is a broadcast with no reply.
	MsgSignal
)

func (t MsgType) String() string {
	switch t {
	case MsgCall:
		return "call"
	case MsgReturn:
		return "return"
	case MsgError:
		return "error"
	case MsgSignal:
		return "signal"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Message flags.
const (
	// FlagNoReplyExpected tells the recipient of a call that no reply
	// is wanted.
	FlagNoReplyExpected = 0x1
	// FlagNoAutoStart tells the bus not to auto-start a service to
	// handle the message.
	FlagNoAutoStart = 0x2
)

// MaxMessageBytes is the largest wire size of a single message.
const MaxMessageBytes = 1 << 27

const protoVersion = 1

// Header field codes.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrName     = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
	fieldNumFDs      = 9
)

// A Message is a single unit of the IBus wire protocol.
type Message struct {
	// Type is the message's type.
	Type MsgType
	// Flags is the message's flag byte.
	Flags byte
	// Serial identifies the message on its connection. It must be
	// non-zero.
	Serial uint32

	// Path is the target object for a call, or the source object for
	// a signal. Required for MsgCall and MsgSignal.
	Path ObjectPath
	// Interface is the interface to target for a call, or the source
	// interface for a signal. Required for MsgCall and MsgSignal.
	Interface string
	// Member is the method name for a call, or the signal name for a
	// signal. Required for MsgCall and MsgSignal.
	Member string
	// ErrName is the name of the error that occurred. Required for
	// MsgError.
	ErrName string
	// ReplySerial is the serial of the call this message answers.
	// Required for MsgReturn and MsgError.
	ReplySerial uint32
	// Destination is the intended recipient of the message. Optional
	// for signals, required for everything else.
	Destination string
	// Sender is the bus name of the message's origin. The bus
	// populates this value itself.
	Sender string

	// Body is the message payload. Its signature travels in the
	// message header.
	Body []Value
}

// Valid checks that the message is well formed for its type.
func (m *Message) Valid() error {
	if m.Serial == 0 {
		return fmt.Errorf("invalid message with zero Serial")
	}
	switch m.Type {
	case 0:
		return fmt.Errorf("invalid message with Type 0")
	case MsgCall:
		if m.Path == "" {
			return fmt.Errorf("missing required header field Path")
		}
		if m.Interface == "" {
			return fmt.Errorf("missing required header field Interface")
		}
		if m.Member == "" {
			return fmt.Errorf("missing required header field Member")
		}
		if m.Destination == "" {
			return fmt.Errorf("missing required header field Destination")
		}
	case MsgReturn:
		if m.ReplySerial == 0 {
			return fmt.Errorf("missing required header field ReplySerial")
		}
	case MsgError:
		if m.ReplySerial == 0 {
			return fmt.Errorf("missing required header field ReplySerial")
		}
		if m.ErrName == "" {
			return fmt.Errorf("missing required header field ErrName")
		}
	case MsgSignal:
		if m.Path == "" {
			return fmt.Errorf("missing required header field Path")
		}
		if m.Interface == "" {
			return fmt.Errorf("missing required header field Interface")
		}
		if m.Member == "" {
			return fmt.Errorf("missing required header field Member")
		}
	default:
		// Unknown message types are suspect, but the protocol
		// requires us to allow them.
	}
	return nil
}

// WantReply reports whether this message requires a response.
func (m *Message) WantReply() bool {
	return m.Type == MsgCall && m.Flags&FlagNoReplyExpected == 0
}

// Encode returns the message's wire representation in the given byte
// order.
func (m *Message) Encode(ord wire.ByteOrder) ([]byte, error) {
	if err := m.Valid(); err != nil {
		return nil, err
	}

	var bodySig Signature
	body := wire.Encoder{Order: ord}
	for i, v := range m.Body {
		if v == nil {
			return nil, typeErr("ibus.Message", "body value %d is nil", i)
		}
		if err := v.encodeTo(&body); err != nil {
			return nil, err
		}
	}
	if len(m.Body) > 0 {
		bodySig = SignatureOf(m.Body...)
	}

	e := wire.Encoder{Order: ord}
	e.ByteOrderFlag()
	e.Uint8(uint8(m.Type))
	e.Uint8(m.Flags)
	e.Uint8(protoVersion)
	e.Uint32(uint32(len(body.Out)))
	e.Uint32(m.Serial)

	field := func(code byte, v Value) error {
		return e.Struct(func() error {
			e.Uint8(code)
			return Variant{v}.encodeTo(&e)
		})
	}
	err := e.Array(8, func() error {
		if m.Path != "" {
			if err := field(fieldPath, m.Path); err != nil {
				return err
			}
		}
		if m.Interface != "" {
			if err := field(fieldInterface, String(m.Interface)); err != nil {
				return err
			}
		}
		if m.Member != "" {
			if err := field(fieldMember, String(m.Member)); err != nil {
				return err
			}
		}
		if m.ErrName != "" {
			if err := field(fieldErrName, String(m.ErrName)); err != nil {
				return err
			}
		}
		if m.ReplySerial != 0 {
			if err := field(fieldReplySerial, Uint32(m.ReplySerial)); err != nil {
				return err
			}
		}
		if m.Destination != "" {
			if err := field(fieldDestination, String(m.Destination)); err != nil {
				return err
			}
		}
		if m.Sender != "" {
			if err := field(fieldSender, String(m.Sender)); err != nil {
				return err
			}
		}
		if !bodySig.IsZero() {
			if err := field(fieldSignature, bodySig); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The header is padded to an 8 byte boundary before the body.
	e.Pad(8)
	e.Write(body.Out)

	if len(e.Out) > MaxMessageBytes {
		return nil, typeErr("ibus.Message", "message is %d bytes, limit is %d", len(e.Out), MaxMessageBytes)
	}
	return e.Out, nil
}

// ReadMessage reads one message from r.
//
// If the returned error is a [DecodeError], the malformed message was
// fully consumed from r and further messages can be read. Any other
// error means the stream is no longer synchronized to message
// boundaries and must be abandoned.
func ReadMessage(r io.Reader) (*Message, error) {
	var fixed [16]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, err
	}

	d := wire.Decoder{In: fixed[:]}
	if err := d.ByteOrderFlag(); err != nil {
		return nil, ProtocolError{err}
	}
	// Reads from the 16 byte fixed header cannot fail.
	rawType, _ := d.Uint8()
	flags, _ := d.Uint8()
	version, _ := d.Uint8()
	bodyLen, _ := d.Uint32()
	serial, _ := d.Uint32()
	fieldsLen, _ := d.Uint32()

	if version != protoVersion {
		return nil, ProtocolError{fmt.Errorf("unsupported protocol version %d", version)}
	}
	if fieldsLen > wire.MaxArrayBytes {
		return nil, ProtocolError{fmt.Errorf("header field array is %d bytes, limit is %d", fieldsLen, wire.MaxArrayBytes)}
	}
	// The field array is padded out to an 8 byte boundary before the
	// body. The fixed header is 16 bytes, so the padded length only
	// needs rounding up.
	hdrLen := (int64(fieldsLen) + 7) &^ 7
	if total := 16 + hdrLen + int64(bodyLen); total > MaxMessageBytes {
		return nil, ProtocolError{fmt.Errorf("message is %d bytes, limit is %d", total, MaxMessageBytes)}
	}

	rest := make([]byte, hdrLen+int64(bodyLen))
	if _, err := io.ReadFull(r, rest); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	m := &Message{
		Type:   MsgType(rawType),
		Flags:  flags,
		Serial: serial,
	}
	if err := m.parse(d.Order, fieldsLen, rest); err != nil {
		return nil, err
	}
	return m, nil
}

// parse fills in the message's header fields and body from the wire
// bytes following the fixed header. Errors are DecodeErrors: the
// frame has already been consumed in full.
func (m *Message) parse(ord wire.ByteOrder, fieldsLen uint32, rest []byte) error {
	var bodySig Signature
	numFDs := uint32(0)

	d := wire.Decoder{Order: ord, In: rest}
	end := int(fieldsLen)
	for d.Offset() < end {
		err := d.Struct(func() error {
			code, err := d.Uint8()
			if err != nil {
				return err
			}
			val, err := decodeValue(&d, sigVariant, 0)
			if err != nil {
				return err
			}
			inner := val.(Variant).Value
			badType := func(want string) error {
				return fmt.Errorf("header field %d has signature %q, want %q", code, SignatureOf(inner), want)
			}
			switch code {
			case fieldPath:
				p, ok := inner.(ObjectPath)
				if !ok {
					return badType("o")
				}
				m.Path = p
			case fieldInterface:
				s, ok := inner.(String)
				if !ok {
					return badType("s")
				}
				m.Interface = string(s)
			case fieldMember:
				s, ok := inner.(String)
				if !ok {
					return badType("s")
				}
				m.Member = string(s)
			case fieldErrName:
				s, ok := inner.(String)
				if !ok {
					return badType("s")
				}
				m.ErrName = string(s)
			case fieldReplySerial:
				u, ok := inner.(Uint32)
				if !ok {
					return badType("u")
				}
				m.ReplySerial = uint32(u)
			case fieldDestination:
				s, ok := inner.(String)
				if !ok {
					return badType("s")
				}
				m.Destination = string(s)
			case fieldSender:
				s, ok := inner.(String)
				if !ok {
					return badType("s")
				}
				m.Sender = string(s)
			case fieldSignature:
				g, ok := inner.(Signature)
				if !ok {
					return badType("g")
				}
				bodySig = g
			case fieldNumFDs:
				u, ok := inner.(Uint32)
				if !ok {
					return badType("u")
				}
				numFDs = uint32(u)
			default:
				// Unknown header fields must be ignored.
			}
			return nil
		})
		if err != nil {
			return DecodeError{fmt.Errorf("reading header fields: %w", err)}
		}
		if d.Offset() > end {
			return decodeErr("header fields overran the field array extent")
		}
	}
	if err := m.Valid(); err != nil {
		return DecodeError{err}
	}
	if numFDs > 0 {
		return decodeErr("message carries %d file descriptors, which are not supported", numFDs)
	}

	if err := d.Pad(8); err != nil {
		return DecodeError{fmt.Errorf("reading header padding: %w", err)}
	}
	if bodySig.IsZero() {
		if d.Remaining() > 0 {
			return decodeErr("message has a %d byte body but no signature header field", d.Remaining())
		}
		return nil
	}
	body, err := decodeValues(&d, bodySig)
	if err != nil {
		return DecodeError{fmt.Errorf("reading message body (signature %q): %w", bodySig, err)}
	}
	if d.Remaining() > 0 {
		return decodeErr("%d trailing bytes after message body (signature %q)", d.Remaining(), bodySig)
	}
	m.Body = body
	return nil
}
