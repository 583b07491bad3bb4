package inspect

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/hitzhangjie/cfidump/pkg/dwarf/frame"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "list CIE/FDE entries of the binary",
	Aliases: []string{"ls", "entries"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupEntries,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			onlyCIE, _ = cmd.Flags().GetBool("cie")
			onlyFDE, _ = cmd.Flags().GetBool("fde")
		)

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for i, entry := range Target.Entries {
			switch e := entry.(type) {
			case *frame.CommonInformationEntry:
				if onlyFDE {
					continue
				}
				fmt.Fprintf(tw, "%d\tCIE\toffset=%#x\tlength=%#x\tversion=%d\taug=%q\n",
					i, e.Offset(), e.Length, e.Version, e.Augmentation)
			case *frame.FrameDescriptionEntry:
				if onlyCIE {
					continue
				}
				fmt.Fprintf(tw, "%d\tFDE\toffset=%#x\tlength=%#x\tcie=%#x\tpc=%#x..%#x\n",
					i, e.Offset(), e.Length, e.CIEPointer(), e.Begin(), e.End())
			}
		}
		return tw.Flush()
	},
}

func init() {
	inspectRootCmd.AddCommand(listCmd)

	listCmd.Flags().Bool("cie", false, "list only CIE entries")
	listCmd.Flags().Bool("fde", false, "list only FDE entries")
}
