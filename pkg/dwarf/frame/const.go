package frame

// DWARF call frame instruction opcodes, see DWARFv4 7.23 figure 40.
//
// The high 2 bits of an opcode byte select one of three packed
// instructions carrying a small operand in the low 6 bits. When the
// high 2 bits are zero the whole byte selects an extended instruction.
const (
	DW_CFA_advance_loc = 0x1 << 6 // low 6: delta
	DW_CFA_offset      = 0x2 << 6 // low 6: register
	DW_CFA_restore     = 0x3 << 6 // low 6: register

	DW_CFA_nop                = 0x00 // no ops
	DW_CFA_set_loc            = 0x01 // op1: address
	DW_CFA_advance_loc1       = 0x02 // op1: 1-byte delta
	DW_CFA_advance_loc2       = 0x03 // op1: 2-byte delta
	DW_CFA_advance_loc4       = 0x04 // op1: 4-byte delta
	DW_CFA_offset_extended    = 0x05 // op1: ULEB128 register, op2: ULEB128 offset
	DW_CFA_restore_extended   = 0x06 // op1: ULEB128 register
	DW_CFA_undefined          = 0x07 // op1: ULEB128 register
	DW_CFA_same_value         = 0x08 // op1: ULEB128 register
	DW_CFA_register           = 0x09 // op1: ULEB128 register, op2: ULEB128 register
	DW_CFA_remember_state     = 0x0a // no ops
	DW_CFA_restore_state      = 0x0b // no ops
	DW_CFA_def_cfa            = 0x0c // op1: ULEB128 register, op2: ULEB128 offset
	DW_CFA_def_cfa_register   = 0x0d // op1: ULEB128 register
	DW_CFA_def_cfa_offset     = 0x0e // op1: ULEB128 offset
	DW_CFA_def_cfa_expression = 0x0f // op1: BLOCK
	DW_CFA_expression         = 0x10 // op1: ULEB128 register, op2: BLOCK
	DW_CFA_offset_extended_sf = 0x11 // op1: ULEB128 register, op2: SLEB128 offset
	DW_CFA_def_cfa_sf         = 0x12 // op1: ULEB128 register, op2: SLEB128 offset
	DW_CFA_def_cfa_offset_sf  = 0x13 // op1: SLEB128 offset
	DW_CFA_val_offset         = 0x14 // op1: ULEB128, op2: ULEB128
	DW_CFA_val_offset_sf      = 0x15 // op1: ULEB128, op2: SLEB128
	DW_CFA_val_expression     = 0x16 // op1: ULEB128, op2: BLOCK
	DW_CFA_lo_user            = 0x1c
	DW_CFA_hi_user            = 0x3f
)

const (
	primaryOpcodeMask = 0xc0 // high 2 bits select a packed instruction
	primaryArgMask    = 0x3f // low 6 bits carry its inline operand
)

// dwarf64Escape in the 4-byte length prefix marks a 64-bit DWARF format
// entry whose real length follows as an 8-byte field.
const dwarf64Escape = 0xffffffff

// opcodeNames maps an extended opcode byte, or a packed opcode's primary
// bits, to its mnemonic. Built once here, never mutated.
var opcodeNames = map[byte]string{
	DW_CFA_advance_loc:        "DW_CFA_advance_loc",
	DW_CFA_offset:             "DW_CFA_offset",
	DW_CFA_restore:            "DW_CFA_restore",
	DW_CFA_nop:                "DW_CFA_nop",
	DW_CFA_set_loc:            "DW_CFA_set_loc",
	DW_CFA_advance_loc1:       "DW_CFA_advance_loc1",
	DW_CFA_advance_loc2:       "DW_CFA_advance_loc2",
	DW_CFA_advance_loc4:       "DW_CFA_advance_loc4",
	DW_CFA_offset_extended:    "DW_CFA_offset_extended",
	DW_CFA_restore_extended:   "DW_CFA_restore_extended",
	DW_CFA_undefined:          "DW_CFA_undefined",
	DW_CFA_same_value:         "DW_CFA_same_value",
	DW_CFA_register:           "DW_CFA_register",
	DW_CFA_remember_state:     "DW_CFA_remember_state",
	DW_CFA_restore_state:      "DW_CFA_restore_state",
	DW_CFA_def_cfa:            "DW_CFA_def_cfa",
	DW_CFA_def_cfa_register:   "DW_CFA_def_cfa_register",
	DW_CFA_def_cfa_offset:     "DW_CFA_def_cfa_offset",
	DW_CFA_def_cfa_expression: "DW_CFA_def_cfa_expression",
	DW_CFA_expression:         "DW_CFA_expression",
	DW_CFA_offset_extended_sf: "DW_CFA_offset_extended_sf",
	DW_CFA_def_cfa_sf:         "DW_CFA_def_cfa_sf",
	DW_CFA_def_cfa_offset_sf:  "DW_CFA_def_cfa_offset_sf",
	DW_CFA_val_offset:         "DW_CFA_val_offset",
	DW_CFA_val_offset_sf:      "DW_CFA_val_offset_sf",
	DW_CFA_val_expression:     "DW_CFA_val_expression",
}

// InstructionName returns the DW_CFA_* mnemonic for an opcode byte. For
// packed opcodes only the primary bits identify the instruction.
func InstructionName(opcode byte) string {
	if primary := opcode & primaryOpcodeMask; primary != 0 {
		return opcodeNames[primary]
	}
	if name, ok := opcodeNames[opcode]; ok {
		return name
	}
	return "DW_CFA_unknown"
}
