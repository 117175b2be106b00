package wire

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// ByteOrder is a byte order that knows its wire format flag byte.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
	flag() byte
}

type endian struct {
	byteOrder
	flagByte byte
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func (e endian) flag() byte { return e.flagByte }

var (
	BigEndian    ByteOrder = endian{binary.BigEndian, 'B'}
	LittleEndian ByteOrder = endian{binary.LittleEndian, 'l'}
	// NativeEndian is the byte order of the machine we are running
	// on. Messages are sent in native order, since the flag byte lets
	// the peer cope either way.
	NativeEndian ByteOrder = nativeOrder()
)

func nativeOrder() ByteOrder {
	if cpu.IsBigEndian {
		return endian{binary.NativeEndian, 'B'}
	}
	return endian{binary.NativeEndian, 'l'}
}
