// Package util provides decoders for the primitive integer encodings
// used throughout DWARF: fixed-width integers, unsigned/signed LEB128,
// NUL-terminated strings and ULEB128-length-prefixed blocks.
package util

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ErrMalformedLEB128 reports a LEB128 value whose continuation bits run
// past the longest encoding that fits in 64 bits.
var ErrMalformedLEB128 = fmt.Errorf("malformed LEB128: continuation past 64 bits")

// DecodeULEB128 decodes an unsigned Little Endian Base 128 represented
// number, returning the value and the number of bytes consumed.
func DecodeULEB128(buf *bytes.Buffer) (uint64, uint32, error) {
	var (
		result uint64
		shift  uint64
		length uint32
	)

	for {
		b, err := buf.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("decode uleb128: %w", err)
		}
		length++

		result |= uint64(b&0x7f) << shift

		// If high order bit is 0, this byte is the last.
		if b&0x80 == 0 {
			break
		}

		shift += 7
		if shift >= 64 {
			return 0, 0, ErrMalformedLEB128
		}
	}

	return result, length, nil
}

// DecodeSLEB128 decodes a signed Little Endian Base 128 represented
// number, returning the value and the number of bytes consumed.
func DecodeSLEB128(buf *bytes.Buffer) (int64, uint32, error) {
	var (
		b      byte
		err    error
		result int64
		shift  uint64
		length uint32
	)

	for {
		b, err = buf.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("decode sleb128: %w", err)
		}
		length++

		result |= int64(b&0x7f) << shift
		shift += 7

		if b&0x80 == 0 {
			break
		}
		if shift >= 64 {
			return 0, 0, ErrMalformedLEB128
		}
	}

	// sign extend negative values
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}

	return result, length, nil
}

// ParseString reads a NUL-terminated string from buf, returning the
// string without the terminator and the number of bytes consumed.
func ParseString(buf *bytes.Buffer) (string, uint32, error) {
	str, err := buf.ReadString(0x0)
	if err != nil {
		return "", 0, fmt.Errorf("parse string: %w", err)
	}
	return str[:len(str)-1], uint32(len(str)), nil
}

// ReadUintRaw reads an unsigned integer of size 1, 2, 4 or 8 bytes in
// the given byte order.
func ReadUintRaw(reader io.Reader, order binary.ByteOrder, ptrSize int) (uint64, error) {
	switch ptrSize {
	case 1:
		var n uint8
		if err := binary.Read(reader, order, &n); err != nil {
			return 0, err
		}
		return uint64(n), nil
	case 2:
		var n uint16
		if err := binary.Read(reader, order, &n); err != nil {
			return 0, err
		}
		return uint64(n), nil
	case 4:
		var n uint32
		if err := binary.Read(reader, order, &n); err != nil {
			return 0, err
		}
		return uint64(n), nil
	case 8:
		var n uint64
		if err := binary.Read(reader, order, &n); err != nil {
			return 0, err
		}
		return n, nil
	}
	return 0, fmt.Errorf("pointer size %d not supported", ptrSize)
}

// ReadBlock reads a ULEB128-length-prefixed byte block, e.g. a
// DW_FORM_block value holding a DWARF expression. It returns the block
// payload and the total number of bytes consumed, prefix included.
func ReadBlock(buf *bytes.Buffer) ([]byte, uint32, error) {
	n, c, err := DecodeULEB128(buf)
	if err != nil {
		return nil, 0, err
	}
	if uint64(buf.Len()) < n {
		return nil, 0, fmt.Errorf("read block: need %d bytes, have %d", n, buf.Len())
	}
	block := make([]byte, n)
	copy(block, buf.Next(int(n)))
	return block, c + uint32(n), nil
}
