package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// test sections are built with ptrSize 8 and these CIE header fields:
// version=1, augmentation="", caf=1, daf=-8, ra=16
var cieBody = []byte{0x01, 0x00, 0x01, 0x78, 0x10}

func u32(order binary.ByteOrder, v uint32) []byte {
	b := make([]byte, 4)
	order.PutUint32(b, v)
	return b
}

func u64(order binary.ByteOrder, v uint64) []byte {
	b := make([]byte, 8)
	order.PutUint64(b, v)
	return b
}

func cat(parts ...[]byte) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(p)
	}
	return buf.Bytes()
}

// cie32 builds a 32-bit format CIE holding the given instruction bytes.
func cie32(order binary.ByteOrder, instructions []byte) []byte {
	body := cat(cieBody, instructions)
	return cat(u32(order, uint32(4+len(body))), u32(order, 0xffffffff), body)
}

// fde32 builds a 32-bit format FDE referencing the CIE at cieOff.
func fde32(order binary.ByteOrder, cieOff uint32, loc, rng uint64, instructions []byte) []byte {
	return cat(
		u32(order, uint32(4+16+len(instructions))),
		u32(order, cieOff),
		u64(order, loc),
		u64(order, rng),
		instructions)
}

// cie64 builds a 64-bit format CIE: all-ones escape, 8-byte length,
// 8-byte CIE id.
func cie64(order binary.ByteOrder, instructions []byte) []byte {
	body := cat(cieBody, instructions)
	return cat(
		u32(order, 0xffffffff),
		u64(order, uint64(8+len(body))),
		u64(order, 0xffffffffffffffff),
		body)
}

// fde64 builds a 64-bit format FDE referencing the CIE at cieOff.
func fde64(order binary.ByteOrder, cieOff uint64, loc, rng uint64, instructions []byte) []byte {
	return cat(
		u32(order, 0xffffffff),
		u64(order, uint64(8+16+len(instructions))),
		u64(order, cieOff),
		u64(order, loc),
		u64(order, rng),
		instructions)
}

func TestParse32BitCIE(t *testing.T) {
	instructions := []byte{
		0x0c, 0x07, 0x08, // DW_CFA_def_cfa r7 8
		0x90, 0x01, // DW_CFA_offset r16 1
		DW_CFA_nop,
	}
	data := cie32(binary.LittleEndian, instructions)

	entries, err := Parse(data, binary.LittleEndian, 0, 8)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	cie, ok := entries[0].(*CommonInformationEntry)
	require.True(t, ok)
	require.Equal(t, uint64(0), cie.Offset())
	require.Equal(t, 32, cie.DwarfFormat())
	require.Equal(t, uint64(len(data)-4), cie.Length)
	require.Equal(t, uint64(0xffffffff), cie.CIE_id)
	require.Equal(t, uint8(1), cie.Version)
	require.Equal(t, "", cie.Augmentation)
	require.Equal(t, uint64(1), cie.CodeAlignmentFactor)
	require.Equal(t, int64(-8), cie.DataAlignmentFactor)
	require.Equal(t, uint64(16), cie.ReturnAddressRegister)

	require.Len(t, cie.Instructions, 3)
	require.Equal(t, byte(0x0c), cie.Instructions[0].Opcode)
	require.Equal(t, []interface{}{uint64(7), uint64(8)}, cie.Instructions[0].Args)
	require.Equal(t, byte(0x90), cie.Instructions[1].Opcode)
	require.Equal(t, []interface{}{uint64(16), uint64(1)}, cie.Instructions[1].Args)
	require.Equal(t, byte(DW_CFA_nop), cie.Instructions[2].Opcode)
	require.Empty(t, cie.Instructions[2].Args)
}

func TestParseFDEResolvesCIE(t *testing.T) {
	cie := cie32(binary.LittleEndian, []byte{DW_CFA_nop})
	fde := fde32(binary.LittleEndian, 0, 0x401000, 0x80, []byte{
		0x41,       // DW_CFA_advance_loc 1
		0x0e, 0x10, // DW_CFA_def_cfa_offset 16
	})
	data := cat(cie, fde)

	entries, err := Parse(data, binary.LittleEndian, 0, 8)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	c, ok := entries[0].(*CommonInformationEntry)
	require.True(t, ok)
	f, ok := entries[1].(*FrameDescriptionEntry)
	require.True(t, ok)

	require.Equal(t, uint64(len(cie)), f.Offset())
	require.Equal(t, uint64(0), f.CIEPointer())
	require.True(t, c == f.CIE)
	require.Equal(t, uint64(0x401000), f.Begin())
	require.Equal(t, uint64(0x401080), f.End())
	require.True(t, f.Cover(0x401000))
	require.True(t, f.Cover(0x40107f))
	require.False(t, f.Cover(0x401080))
	require.False(t, f.Cover(0x400fff))

	require.Len(t, f.Instructions, 2)
	require.Equal(t, []interface{}{uint64(1)}, f.Instructions[0].Args)
	require.Equal(t, []interface{}{uint64(16)}, f.Instructions[1].Args)
}

func TestParse64BitEntries(t *testing.T) {
	cie := cie64(binary.LittleEndian, []byte{DW_CFA_nop})
	fde := fde64(binary.LittleEndian, 0, 0x1000, 0x20, []byte{DW_CFA_nop})
	data := cat(cie, fde)

	entries, err := Parse(data, binary.LittleEndian, 0, 8)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	c := entries[0].(*CommonInformationEntry)
	require.Equal(t, 64, c.DwarfFormat())
	require.Equal(t, uint64(0xffffffffffffffff), c.CIE_id)
	// initial length field is 4-byte escape + 8-byte length
	require.Equal(t, uint64(len(cie)-12), c.Length)

	f := entries[1].(*FrameDescriptionEntry)
	require.Equal(t, 64, f.DwarfFormat())
	require.True(t, c == f.CIE)
	require.Equal(t, uint64(len(cie)), f.Offset())
}

func TestParseMixedFormats(t *testing.T) {
	// a 32-bit CIE followed by a 64-bit CIE, formats are per entry
	data := cat(
		cie32(binary.LittleEndian, []byte{DW_CFA_nop}),
		cie64(binary.LittleEndian, []byte{DW_CFA_nop}))

	entries, err := Parse(data, binary.LittleEndian, 0, 8)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 32, entries[0].DwarfFormat())
	require.Equal(t, 64, entries[1].DwarfFormat())
}

func TestParseBigEndian(t *testing.T) {
	cie := cie32(binary.BigEndian, []byte{DW_CFA_nop})
	fde := fde32(binary.BigEndian, 0, 0x2000, 0x40, []byte{DW_CFA_nop})

	entries, err := Parse(cat(cie, fde), binary.BigEndian, 0, 8)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	f := entries[1].(*FrameDescriptionEntry)
	require.Equal(t, uint64(0x2000), f.Begin())
	require.Equal(t, uint64(0x2040), f.End())
}

func TestParseStaticBase(t *testing.T) {
	data := cat(
		cie32(binary.LittleEndian, []byte{DW_CFA_nop}),
		fde32(binary.LittleEndian, 0, 0x1000, 0x10, []byte{DW_CFA_nop}))

	entries, err := Parse(data, binary.LittleEndian, 0x400000, 8)
	require.NoError(t, err)

	f := entries[1].(*FrameDescriptionEntry)
	require.Equal(t, uint64(0x401000), f.Begin())
}

func TestParseZeroTerminator(t *testing.T) {
	data := cat(
		cie32(binary.LittleEndian, []byte{DW_CFA_nop}),
		u32(binary.LittleEndian, 0))

	entries, err := Parse(data, binary.LittleEndian, 0, 8)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestEntriesIdempotent(t *testing.T) {
	data := cat(
		cie32(binary.LittleEndian, []byte{DW_CFA_nop}),
		fde32(binary.LittleEndian, 0, 0x1000, 0x10, []byte{DW_CFA_nop}))

	cfi := New(data, binary.LittleEndian, 0, 8)
	first, err := cfi.Entries()
	require.NoError(t, err)
	second, err := cfi.Entries()
	require.NoError(t, err)

	// the parse ran once, both calls observe the same entries
	require.Len(t, first, 2)
	require.True(t, first[0] == second[0])
	require.True(t, first[1] == second[1])
}

func TestEntriesCachesError(t *testing.T) {
	data := cie32(binary.LittleEndian, []byte{0x17}) // reserved opcode

	cfi := New(data, binary.LittleEndian, 0, 8)
	_, err1 := cfi.Entries()
	require.Error(t, err1)
	_, err2 := cfi.Entries()
	require.Equal(t, err1, err2)
}

func TestInstructionShapes(t *testing.T) {
	instructions := cat(
		[]byte{0x45},                                     // DW_CFA_advance_loc 5
		[]byte{0x82, 0x04},                               // DW_CFA_offset r2 4
		[]byte{0xc3},                                     // DW_CFA_restore r3
		[]byte{DW_CFA_set_loc}, u64(binary.LittleEndian, 0xdeadbeef),
		[]byte{DW_CFA_advance_loc1, 0x2a},
		[]byte{DW_CFA_advance_loc2, 0x34, 0x12},
		[]byte{DW_CFA_advance_loc4, 0x78, 0x56, 0x34, 0x12},
		[]byte{DW_CFA_register, 0x01, 0x02},
		[]byte{DW_CFA_undefined, 0x07},
		[]byte{DW_CFA_def_cfa_offset_sf, 0x7c},           // sleb -4
		[]byte{DW_CFA_def_cfa_expression, 0x02, 0x77, 0x08},
		[]byte{DW_CFA_expression, 0x03, 0x02, 0x91, 0x7c},
		[]byte{DW_CFA_val_expression, 0x04, 0x01, 0x9c},
		[]byte{DW_CFA_def_cfa_sf, 0x06, 0x7c},
		[]byte{DW_CFA_remember_state},
		[]byte{DW_CFA_restore_state},
	)
	data := cie32(binary.LittleEndian, instructions)

	entries, err := Parse(data, binary.LittleEndian, 0, 8)
	require.NoError(t, err)

	ins := entries[0].(*CommonInformationEntry).Instructions
	require.Len(t, ins, 16)

	want := []struct {
		opcode byte
		args   []interface{}
	}{
		{0x45, []interface{}{uint64(5)}},
		{0x82, []interface{}{uint64(2), uint64(4)}},
		{0xc3, []interface{}{uint64(3)}},
		{DW_CFA_set_loc, []interface{}{uint64(0xdeadbeef)}},
		{DW_CFA_advance_loc1, []interface{}{uint64(0x2a)}},
		{DW_CFA_advance_loc2, []interface{}{uint64(0x1234)}},
		{DW_CFA_advance_loc4, []interface{}{uint64(0x12345678)}},
		{DW_CFA_register, []interface{}{uint64(1), uint64(2)}},
		{DW_CFA_undefined, []interface{}{uint64(7)}},
		{DW_CFA_def_cfa_offset_sf, []interface{}{int64(-4)}},
		{DW_CFA_def_cfa_expression, []interface{}{[]byte{0x77, 0x08}}},
		// the register operand and the expression block are both kept
		{DW_CFA_expression, []interface{}{uint64(3), []byte{0x91, 0x7c}}},
		{DW_CFA_val_expression, []interface{}{uint64(4), []byte{0x9c}}},
		{DW_CFA_def_cfa_sf, []interface{}{uint64(6), int64(-4)}},
		{DW_CFA_remember_state, nil},
		{DW_CFA_restore_state, nil},
	}
	for i, w := range want {
		require.Equal(t, w.opcode, ins[i].Opcode, "instruction %d", i)
		if w.args == nil {
			require.Empty(t, ins[i].Args, "instruction %d", i)
		} else {
			require.Equal(t, w.args, ins[i].Args, "instruction %d", i)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	data := cie32(binary.LittleEndian, []byte{0x17}) // reserved

	_, err := Parse(data, binary.LittleEndian, 0, 8)
	require.Error(t, err)

	var unknown *ErrUnknownOpcode
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, byte(0x17), unknown.Opcode)
}

func TestFramingMismatch(t *testing.T) {
	// the entry's length field cuts DW_CFA_advance_loc1 off from its
	// operand; decoding the operand overshoots the declared end
	body := cat(cieBody, []byte{DW_CFA_advance_loc1})
	data := cat(
		u32(binary.LittleEndian, uint32(4+len(body))),
		u32(binary.LittleEndian, 0xffffffff),
		body,
		[]byte{0x2a}) // the operand, outside the entry

	_, err := Parse(data, binary.LittleEndian, 0, 8)
	require.Error(t, err)

	var mismatch *ErrFramingMismatch
	require.True(t, errors.As(err, &mismatch))
}

func TestTruncatedSection(t *testing.T) {
	data := cie32(binary.LittleEndian, []byte{DW_CFA_nop})

	// chop the last byte: the declared length runs past the data
	_, err := Parse(data[:len(data)-1], binary.LittleEndian, 0, 8)
	require.Error(t, err)

	// malformed ULEB128 in the CIE header
	body := []byte{0x01, 0x00, 0x80} // version, augmentation, caf with dangling continuation
	bad := cat(
		u32(binary.LittleEndian, uint32(4+len(body))),
		u32(binary.LittleEndian, 0xffffffff),
		body)
	_, err = Parse(bad, binary.LittleEndian, 0, 8)
	require.Error(t, err)
}
