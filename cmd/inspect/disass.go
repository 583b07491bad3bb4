package inspect

import (
	"fmt"
	"os"

	"github.com/hitzhangjie/cfidump/pkg/dwarf/frame"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var disassCmd = &cobra.Command{
	Use:     "disass <n>",
	Short:   "disassemble the code range covered by an FDE",
	Aliases: []string{"dis", "disassemble"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCode,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		syntax, _ := cmd.Flags().GetString("syntax")
		if syntax == "" {
			syntax = viper.GetString("syntax")
		}

		entry, err := entryByIndex(args)
		if err != nil {
			return err
		}
		fde, ok := entry.(*frame.FrameDescriptionEntry)
		if !ok {
			return fmt.Errorf("entry %s is a CIE, only FDEs cover code", args[0])
		}

		return Target.Disassemble(os.Stdout, fde.Begin(), fde.End(), syntax)
	},
}

func init() {
	inspectRootCmd.AddCommand(disassCmd)

	disassCmd.Flags().StringP("syntax", "s", "", "assembly syntax: go, gnu, intel (default from config)")
}
