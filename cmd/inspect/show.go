package inspect

import (
	"fmt"
	"strconv"

	"github.com/hitzhangjie/cfidump/pkg/dwarf/frame"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <n>",
	Short:   "show one entry with its decoded instructions",
	Aliases: []string{"s"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupEntries,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := entryByIndex(args)
		if err != nil {
			return err
		}

		switch e := entry.(type) {
		case *frame.CommonInformationEntry:
			fmt.Printf("CIE offset=%#x length=%#x format=%d\n", e.Offset(), e.Length, e.DwarfFormat())
			fmt.Printf("  version:                 %d\n", e.Version)
			fmt.Printf("  augmentation:            %q\n", e.Augmentation)
			fmt.Printf("  code alignment factor:   %d\n", e.CodeAlignmentFactor)
			fmt.Printf("  data alignment factor:   %d\n", e.DataAlignmentFactor)
			fmt.Printf("  return address register: %d\n", e.ReturnAddressRegister)
			printInstructions(e.Instructions)
		case *frame.FrameDescriptionEntry:
			fmt.Printf("FDE offset=%#x length=%#x format=%d\n", e.Offset(), e.Length, e.DwarfFormat())
			fmt.Printf("  cie:      %#x", e.CIEPointer())
			if e.CIE == nil {
				fmt.Printf(" (unresolved)")
			}
			fmt.Println()
			fmt.Printf("  pc range: %#x..%#x\n", e.Begin(), e.End())
			printInstructions(e.Instructions)
		}
		return nil
	},
}

func init() {
	inspectRootCmd.AddCommand(showCmd)
}

func printInstructions(instructions []frame.CallFrameInstruction) {
	fmt.Println("  instructions:")
	for _, ins := range instructions {
		fmt.Printf("    %s\n", ins)
	}
}

// entryByIndex resolves the single <n> argument against the target's entries
func entryByIndex(args []string) (frame.Entry, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expect one entry index, see `list`")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid entry index %q", args[0])
	}
	if n < 0 || n >= len(Target.Entries) {
		return nil, fmt.Errorf("entry index %d out of range [0, %d)", n, len(Target.Entries))
	}
	return Target.Entries[n], nil
}
