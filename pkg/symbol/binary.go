package symbol

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hitzhangjie/cfidump/pkg/dwarf/frame"
	"github.com/hitzhangjie/cfidump/pkg/dwarf/godwarf"
	"golang.org/x/arch/x86/x86asm"
)

// BinaryInfo holds the call frame information of an executable, plus
// enough of the binary to show the machine code an FDE covers.
type BinaryInfo struct {
	Path    string
	Order   binary.ByteOrder
	PtrSize int
	Entries frame.Entries

	textAddr uint64
	text     []byte
}

// Analyze analyzes executable `execFile` and returns the binary info
func Analyze(execFile string) (*BinaryInfo, error) {
	file, err := elf.Open(execFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// parse .(z)debug_frame
	frameData, err := godwarf.GetDebugSection(file, "frame")
	if err != nil {
		return nil, err
	}

	// sniff byte order from .debug_info when present
	order := binary.ByteOrder(binary.LittleEndian)
	if infoData, err := godwarf.GetDebugSection(file, "info"); err == nil {
		order = godwarf.DwarfEndian(infoData)
	}

	ptrSize := 8
	if file.Class == elf.ELFCLASS32 {
		ptrSize = 4
	}

	cfi := frame.New(frameData, order, 0, ptrSize)
	entries, err := cfi.Entries()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("no frame entries found")
	}

	bi := &BinaryInfo{
		Path:    execFile,
		Order:   order,
		PtrSize: ptrSize,
		Entries: entries,
	}

	// keep the text payload so FDE code ranges can be disassembled
	if text := file.Section(".text"); text != nil {
		if data, err := text.Data(); err == nil {
			bi.textAddr = text.Addr
			bi.text = data
		}
	}

	return bi, nil
}

// Disassemble writes the machine instructions in [from, to) to w,
// one per line with address and raw bytes.
func (bi *BinaryInfo) Disassemble(w io.Writer, from, to uint64, syntax string) error {
	if bi.text == nil {
		return errors.New("no .text section")
	}
	if from < bi.textAddr || to > bi.textAddr+uint64(len(bi.text)) || from > to {
		return fmt.Errorf("range [%#x, %#x) outside .text [%#x, %#x)",
			from, to, bi.textAddr, bi.textAddr+uint64(len(bi.text)))
	}

	dat := bi.text[from-bi.textAddr : to-bi.textAddr]
	tw := tabwriter.NewWriter(w, 0, 4, 8, ' ', 0)

	for offset := 0; offset < len(dat); {
		inst, err := x86asm.Decode(dat[offset:], bi.PtrSize*8)
		if err != nil {
			return fmt.Errorf("x86asm decode error: %v", err)
		}

		asm, err := instSyntax(inst, syntax)
		if err != nil {
			return fmt.Errorf("x86asm syntax error: %v", err)
		}

		end := offset + inst.Len
		fmt.Fprintf(tw, "%#x:\t% x\t%s\n", from+uint64(offset), dat[offset:end], asm)
		offset = end
	}

	return tw.Flush()
}

func instSyntax(inst x86asm.Inst, syntax string) (string, error) {
	asm := ""
	switch syntax {
	case "go":
		asm = x86asm.GoSyntax(inst, uint64(inst.PCRel), nil)
	case "gnu":
		asm = x86asm.GNUSyntax(inst, uint64(inst.PCRel), nil)
	case "intel":
		asm = x86asm.IntelSyntax(inst, uint64(inst.PCRel), nil)
	default:
		return "", fmt.Errorf("invalid asm syntax error")
	}
	return asm, nil
}
