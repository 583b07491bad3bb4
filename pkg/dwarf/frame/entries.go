package frame

import (
	"fmt"
	"strings"
)

// CallFrameInstruction is one decoded call frame instruction. Opcode is
// the raw opcode byte; for packed opcodes it still carries the inline
// operand bits. Args holds the decoded operands in order: uint64 for
// unsigned values, int64 for signed values, []byte for expression blocks.
type CallFrameInstruction struct {
	Opcode byte
	Args   []interface{}
}

func (ins CallFrameInstruction) String() string {
	args := make([]string, 0, len(ins.Args))
	for _, arg := range ins.Args {
		switch v := arg.(type) {
		case []byte:
			args = append(args, fmt.Sprintf("% x", v))
		default:
			args = append(args, fmt.Sprintf("%v", v))
		}
	}
	return fmt.Sprintf("%s (%#x): [%s]", InstructionName(ins.Opcode), ins.Opcode, strings.Join(args, ", "))
}

// CommonInformationEntry represents a CIE in the .debug_frame section:
// the shared defaults and initial instruction program for a group of FDEs.
type CommonInformationEntry struct {
	Length                uint64
	CIE_id                uint64
	Version               uint8
	Augmentation          string
	CodeAlignmentFactor   uint64
	DataAlignmentFactor   int64
	ReturnAddressRegister uint64
	Instructions          []CallFrameInstruction

	offset      uint64
	dwarfFormat int
}

// Offset returns the byte offset of this CIE within the section. FDEs
// reference their CIE by this offset.
func (cie *CommonInformationEntry) Offset() uint64 { return cie.offset }

// DwarfFormat returns 32 or 64 depending on the entry's DWARF format.
func (cie *CommonInformationEntry) DwarfFormat() int { return cie.dwarfFormat }

// FrameDescriptionEntry represents an FDE in the .debug_frame section:
// the unwind instruction program for one code address range.
type FrameDescriptionEntry struct {
	Length       uint64
	CIE          *CommonInformationEntry
	Instructions []CallFrameInstruction

	offset      uint64
	dwarfFormat int
	ciePointer  uint64
	begin, size uint64
}

// Offset returns the byte offset of this FDE within the section.
func (fde *FrameDescriptionEntry) Offset() uint64 { return fde.offset }

// DwarfFormat returns 32 or 64 depending on the entry's DWARF format.
func (fde *FrameDescriptionEntry) DwarfFormat() int { return fde.dwarfFormat }

// CIEPointer returns the byte offset of the owning CIE, as recorded in
// the FDE header.
func (fde *FrameDescriptionEntry) CIEPointer() uint64 { return fde.ciePointer }

// Begin returns the address of the first location covered by this frame.
func (fde *FrameDescriptionEntry) Begin() uint64 { return fde.begin }

// End returns the address one past the last location covered by this frame.
func (fde *FrameDescriptionEntry) End() uint64 { return fde.begin + fde.size }

// Cover returns whether addr falls within the bounds of this frame.
func (fde *FrameDescriptionEntry) Cover(addr uint64) bool {
	return addr-fde.begin < fde.size
}

// Entry is one parsed .debug_frame entry, either a *CommonInformationEntry
// or a *FrameDescriptionEntry.
type Entry interface {
	// Offset returns the byte offset of the entry within the section.
	Offset() uint64
	// DwarfFormat returns 32 or 64 depending on the entry's DWARF format.
	DwarfFormat() int
}

// Entries holds the parsed entries of a section, in file order.
type Entries []Entry

// CIEs returns the common information entries, in file order.
func (entries Entries) CIEs() []*CommonInformationEntry {
	var cies []*CommonInformationEntry
	for _, entry := range entries {
		if cie, ok := entry.(*CommonInformationEntry); ok {
			cies = append(cies, cie)
		}
	}
	return cies
}

// FDEs returns the frame description entries, in file order.
func (entries Entries) FDEs() []*FrameDescriptionEntry {
	var fdes []*FrameDescriptionEntry
	for _, entry := range entries {
		if fde, ok := entry.(*FrameDescriptionEntry); ok {
			fdes = append(fdes, fde)
		}
	}
	return fdes
}
