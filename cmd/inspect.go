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

	"github.com/hitzhangjie/cfidump/cmd/inspect"
	"github.com/hitzhangjie/cfidump/pkg/symbol"
	"github.com/spf13/cobra"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <prog>",
	Short: "interactively browse call frame information",
	Long:  `interactively browse the CIE/FDE entries of an executable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("expect one executable file")
		}

		bi, err := symbol.Analyze(args[0])
		if err != nil {
			return err
		}
		inspect.Target = bi
		return nil
	},
	PostRun: func(cmd *cobra.Command, args []string) {
		inspect.NewInspectSession().Start()
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
