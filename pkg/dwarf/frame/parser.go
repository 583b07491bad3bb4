// Package frame contains data structures and
// related functions for parsing and searching
// through Dwarf .debug_frame data.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hitzhangjie/cfidump/pkg/dwarf/util"
)

// CallFrameInfo wraps a raw .debug_frame section. The section is parsed
// on first use of Entries; the outcome, entries or error, is computed at
// most once and cached, so repeated calls are idempotent and safe for
// concurrent use.
type CallFrameInfo struct {
	data       []byte
	order      binary.ByteOrder
	staticBase uint64
	ptrSize    int

	parseOnce sync.Once
	entries   Entries
	err       error
}

// New returns a CallFrameInfo decoding data in byte order order with
// target address size ptrSize. staticBase is added to every FDE's
// initial location, for binaries loaded at a relocated base address.
func New(data []byte, order binary.ByteOrder, staticBase uint64, ptrSize int) *CallFrameInfo {
	return &CallFrameInfo{
		data:       data,
		order:      order,
		staticBase: staticBase,
		ptrSize:    ptrSize,
	}
}

// Size returns the byte size of the wrapped section.
func (cfi *CallFrameInfo) Size() uint64 {
	return uint64(len(cfi.data))
}

// Entries returns the parsed CIE and FDE entries in file order.
func (cfi *CallFrameInfo) Entries() (Entries, error) {
	cfi.parseOnce.Do(func() {
		cfi.entries, cfi.err = Parse(cfi.data, cfi.order, cfi.staticBase, cfi.ptrSize)
	})
	return cfi.entries, cfi.err
}

type parsefunc func(*parseContext) parsefunc

// parseContext context which helps parsing the CIE and FDEs stored in .debug_frame
type parseContext struct {
	buf        *bytes.Buffer
	size       uint64
	order      binary.ByteOrder
	staticBase uint64
	ptrSize    int

	entries Entries
	cies    map[uint64]*CommonInformationEntry
	common  *CommonInformationEntry
	frame   *FrameDescriptionEntry

	offset    uint64 // start of the entry being parsed
	length    uint64
	format    int    // 32 or 64, re-derived per entry
	endOffset uint64 // one past the entry's last instruction byte

	err error
}

// pos returns the current cursor position within the section.
func (ctx *parseContext) pos() uint64 {
	return ctx.size - uint64(ctx.buf.Len())
}

// offsetSize returns the width of offset-sized header fields for the
// current entry's DWARF format.
func (ctx *parseContext) offsetSize() int {
	if ctx.format == 64 {
		return 8
	}
	return 4
}

func (ctx *parseContext) fail(err error) parsefunc {
	ctx.err = err
	return nil
}

// cieSentinel is the all-ones CIE_id value marking an entry as a CIE.
func cieSentinel(format int) uint64 {
	if format == 64 {
		return 0xffffffffffffffff
	}
	return 0xffffffff
}

// Parse takes in data (a byte slice) and returns the parsed entries,
// CIEs and FDEs interleaved in file order. Each FrameDescriptionEntry
// holds a pointer to its resolved CommonInformationEntry.
func Parse(data []byte, order binary.ByteOrder, staticBase uint64, ptrSize int) (Entries, error) {
	pctx := &parseContext{
		buf:        bytes.NewBuffer(data),
		size:       uint64(len(data)),
		order:      order,
		staticBase: staticBase,
		ptrSize:    ptrSize,
		cies:       map[uint64]*CommonInformationEntry{},
	}

	for fn := parselength; pctx.buf.Len() != 0 && fn != nil; {
		fn = fn(pctx)
	}
	if pctx.err != nil {
		return nil, pctx.err
	}

	return pctx.entries, nil
}

// parselength parses the length and CIE_id/CIE_pointer fields of a CIE
// or FDE, classifying the entry by the all-ones sentinel.
func parselength(ctx *parseContext) parsefunc {
	ctx.offset = ctx.pos()

	word, err := util.ReadUintRaw(ctx.buf, ctx.order, 4)
	if err != nil {
		return ctx.fail(fmt.Errorf("entry at %#x: read length: %w", ctx.offset, err))
	}

	// A 4-byte all-ones length field is not a length but an escape into
	// the 64-bit DWARF format, the real length follows as 8 bytes. The
	// format is re-derived for every entry, both widths may share a section.
	ctx.format = 32
	ctx.length = word
	initialLengthSize := uint64(4)
	if word == dwarf64Escape {
		ctx.format = 64
		initialLengthSize = 12
		if ctx.length, err = util.ReadUintRaw(ctx.buf, ctx.order, 8); err != nil {
			return ctx.fail(fmt.Errorf("entry at %#x: read 64-bit length: %w", ctx.offset, err))
		}
	}

	if ctx.length == 0 {
		// ZERO terminator
		return parselength
	}

	ctx.endOffset = ctx.offset + ctx.length + initialLengthSize

	// parsing CIE_id of CIE
	// parsing CIE_pointer of FDE
	cieid, err := util.ReadUintRaw(ctx.buf, ctx.order, ctx.offsetSize())
	if err != nil {
		return ctx.fail(fmt.Errorf("entry at %#x: read CIE id: %w", ctx.offset, err))
	}

	if cieid == cieSentinel(ctx.format) {
		ctx.common = &CommonInformationEntry{
			Length:      ctx.length,
			CIE_id:      cieid,
			offset:      ctx.offset,
			dwarfFormat: ctx.format,
		}
		return parseCIE
	}

	// CIE is nil if the referenced CIE does not precede this FDE,
	// the caller can still resolve it through CIEPointer.
	ctx.frame = &FrameDescriptionEntry{
		Length:      ctx.length,
		CIE:         ctx.cies[cieid],
		offset:      ctx.offset,
		dwarfFormat: ctx.format,
		ciePointer:  cieid,
	}
	return parseFDE
}

// parseCIE parse CIE entry
func parseCIE(ctx *parseContext) parsefunc {
	var err error

	// parse version
	if ctx.common.Version, err = ctx.buf.ReadByte(); err != nil {
		return ctx.fail(fmt.Errorf("CIE at %#x: version: %w", ctx.common.offset, err))
	}

	// parse augmentation
	if ctx.common.Augmentation, _, err = util.ParseString(ctx.buf); err != nil {
		return ctx.fail(fmt.Errorf("CIE at %#x: augmentation: %w", ctx.common.offset, err))
	}

	// parse code alignment factor
	if ctx.common.CodeAlignmentFactor, _, err = util.DecodeULEB128(ctx.buf); err != nil {
		return ctx.fail(fmt.Errorf("CIE at %#x: code alignment factor: %w", ctx.common.offset, err))
	}

	// parse data alignment factor
	if ctx.common.DataAlignmentFactor, _, err = util.DecodeSLEB128(ctx.buf); err != nil {
		return ctx.fail(fmt.Errorf("CIE at %#x: data alignment factor: %w", ctx.common.offset, err))
	}

	// parse return address register
	if ctx.common.ReturnAddressRegister, _, err = util.DecodeULEB128(ctx.buf); err != nil {
		return ctx.fail(fmt.Errorf("CIE at %#x: return address register: %w", ctx.common.offset, err))
	}

	// parse initial instructions, which run to the end of the entry
	if ctx.common.Instructions, err = ctx.parseinstructions(ctx.endOffset); err != nil {
		return ctx.fail(fmt.Errorf("CIE at %#x: %w", ctx.common.offset, err))
	}

	// index the CIE by offset so following FDEs resolve their back reference
	ctx.cies[ctx.common.offset] = ctx.common
	ctx.entries = append(ctx.entries, ctx.common)

	// prepare to parse next FDE or CIE
	return parselength
}

// parseFDE parse FDE entry
func parseFDE(ctx *parseContext) parsefunc {
	var num uint64
	var err error

	// parsing initial_location of FDE
	if num, err = util.ReadUintRaw(ctx.buf, ctx.order, ctx.ptrSize); err != nil {
		return ctx.fail(fmt.Errorf("FDE at %#x: initial location: %w", ctx.frame.offset, err))
	}
	ctx.frame.begin = num + ctx.staticBase

	// parsing address_range of FDE
	if num, err = util.ReadUintRaw(ctx.buf, ctx.order, ctx.ptrSize); err != nil {
		return ctx.fail(fmt.Errorf("FDE at %#x: address range: %w", ctx.frame.offset, err))
	}
	ctx.frame.size = num

	// parsing instructions of FDE, which run to the end of the entry
	if ctx.frame.Instructions, err = ctx.parseinstructions(ctx.endOffset); err != nil {
		return ctx.fail(fmt.Errorf("FDE at %#x: %w", ctx.frame.offset, err))
	}

	ctx.entries = append(ctx.entries, ctx.frame)

	// prepare to parse next FDE or CIE
	return parselength
}

// parseinstructions decodes call frame instructions from the current
// cursor position up to, not including, end.
func (ctx *parseContext) parseinstructions(end uint64) ([]CallFrameInstruction, error) {
	var instructions []CallFrameInstruction

	for ctx.pos() < end {
		opoff := ctx.pos()
		opcode, err := ctx.buf.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("opcode at %#x: %w", opoff, err)
		}

		var args []interface{}
		switch opcode & primaryOpcodeMask {
		case DW_CFA_advance_loc:
			args = []interface{}{uint64(opcode & primaryArgMask)}
		case DW_CFA_offset:
			off, _, err := util.DecodeULEB128(ctx.buf)
			if err != nil {
				return nil, fmt.Errorf("DW_CFA_offset at %#x: %w", opoff, err)
			}
			args = []interface{}{uint64(opcode & primaryArgMask), off}
		case DW_CFA_restore:
			args = []interface{}{uint64(opcode & primaryArgMask)}
		default:
			if args, err = ctx.parseoperands(opcode, opoff); err != nil {
				return nil, err
			}
		}

		instructions = append(instructions, CallFrameInstruction{Opcode: opcode, Args: args})
	}

	// The entry's length field is authoritative. An instruction whose
	// operands run past the computed end means the section is corrupt.
	if pos := ctx.pos(); pos != end {
		return nil, &ErrFramingMismatch{Offset: pos, End: end}
	}

	return instructions, nil
}

// parseoperands decodes the operands of an extended (primary bits zero)
// instruction per the opcode's operand shape.
func (ctx *parseContext) parseoperands(opcode byte, opoff uint64) ([]interface{}, error) {
	wrap := func(err error) error {
		return fmt.Errorf("%s at %#x: %w", InstructionName(opcode), opoff, err)
	}

	switch opcode {
	case DW_CFA_nop, DW_CFA_remember_state, DW_CFA_restore_state:
		return nil, nil

	case DW_CFA_set_loc:
		addr, err := util.ReadUintRaw(ctx.buf, ctx.order, ctx.ptrSize)
		if err != nil {
			return nil, wrap(err)
		}
		return []interface{}{addr}, nil

	case DW_CFA_advance_loc1:
		delta, err := util.ReadUintRaw(ctx.buf, ctx.order, 1)
		if err != nil {
			return nil, wrap(err)
		}
		return []interface{}{delta}, nil

	case DW_CFA_advance_loc2:
		delta, err := util.ReadUintRaw(ctx.buf, ctx.order, 2)
		if err != nil {
			return nil, wrap(err)
		}
		return []interface{}{delta}, nil

	case DW_CFA_advance_loc4:
		delta, err := util.ReadUintRaw(ctx.buf, ctx.order, 4)
		if err != nil {
			return nil, wrap(err)
		}
		return []interface{}{delta}, nil

	case DW_CFA_offset_extended, DW_CFA_register, DW_CFA_def_cfa, DW_CFA_val_offset:
		op1, _, err := util.DecodeULEB128(ctx.buf)
		if err != nil {
			return nil, wrap(err)
		}
		op2, _, err := util.DecodeULEB128(ctx.buf)
		if err != nil {
			return nil, wrap(err)
		}
		return []interface{}{op1, op2}, nil

	case DW_CFA_restore_extended, DW_CFA_undefined, DW_CFA_same_value,
		DW_CFA_def_cfa_register, DW_CFA_def_cfa_offset:
		op1, _, err := util.DecodeULEB128(ctx.buf)
		if err != nil {
			return nil, wrap(err)
		}
		return []interface{}{op1}, nil

	case DW_CFA_def_cfa_offset_sf:
		op1, _, err := util.DecodeSLEB128(ctx.buf)
		if err != nil {
			return nil, wrap(err)
		}
		return []interface{}{op1}, nil

	case DW_CFA_def_cfa_expression:
		block, _, err := util.ReadBlock(ctx.buf)
		if err != nil {
			return nil, wrap(err)
		}
		return []interface{}{block}, nil

	case DW_CFA_expression, DW_CFA_val_expression:
		// ULEB128 register followed by the expression block, both kept
		reg, _, err := util.DecodeULEB128(ctx.buf)
		if err != nil {
			return nil, wrap(err)
		}
		block, _, err := util.ReadBlock(ctx.buf)
		if err != nil {
			return nil, wrap(err)
		}
		return []interface{}{reg, block}, nil

	case DW_CFA_offset_extended_sf, DW_CFA_def_cfa_sf, DW_CFA_val_offset_sf:
		op1, _, err := util.DecodeULEB128(ctx.buf)
		if err != nil {
			return nil, wrap(err)
		}
		op2, _, err := util.DecodeSLEB128(ctx.buf)
		if err != nil {
			return nil, wrap(err)
		}
		return []interface{}{op1, op2}, nil
	}

	// No generic length field exists for instructions, an unrecognized
	// opcode makes the rest of the entry unparseable.
	return nil, &ErrUnknownOpcode{Opcode: opcode, Offset: opoff}
}
