/*
Copyright © 2021 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hitzhangjie/cfidump/pkg/dwarf/frame"
	"github.com/hitzhangjie/cfidump/pkg/symbol"
	"github.com/spf13/cobra"
)

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <prog>",
	Short: "dump call frame information of an executable",
	Long: `dump call frame information of an executable.

Prints every CIE and FDE of the .debug_frame section in file order,
with the decoded call frame instructions of each entry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("expect one executable file")
		}
		noInstructions, _ := cmd.Flags().GetBool("no-instructions")

		bi, err := symbol.Analyze(args[0])
		if err != nil {
			return err
		}

		for _, entry := range bi.Entries {
			switch e := entry.(type) {
			case *frame.CommonInformationEntry:
				printCIE(os.Stdout, e, noInstructions)
			case *frame.FrameDescriptionEntry:
				printFDE(os.Stdout, e, noInstructions)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().Bool("no-instructions", false, "omit the instruction listing of each entry")
}

func printCIE(w io.Writer, cie *frame.CommonInformationEntry, noInstructions bool) {
	fmt.Fprintf(w, "%#010x CIE length=%#x format=%d version=%d aug=%q caf=%d daf=%d ra=%d\n",
		cie.Offset(), cie.Length, cie.DwarfFormat(), cie.Version, cie.Augmentation,
		cie.CodeAlignmentFactor, cie.DataAlignmentFactor, cie.ReturnAddressRegister)
	if noInstructions {
		return
	}
	for _, ins := range cie.Instructions {
		fmt.Fprintf(w, "    %s\n", ins)
	}
}

func printFDE(w io.Writer, fde *frame.FrameDescriptionEntry, noInstructions bool) {
	fmt.Fprintf(w, "%#010x FDE length=%#x format=%d cie=%#x pc=%#x..%#x\n",
		fde.Offset(), fde.Length, fde.DwarfFormat(), fde.CIEPointer(), fde.Begin(), fde.End())
	if noInstructions {
		return
	}
	for _, ins := range fde.Instructions {
		fmt.Fprintf(w, "    %s\n", ins)
	}
}
