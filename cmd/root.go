// turbotrim: a high-performance tool for trimming paired FASTQ files.
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/turbotrim/blob/master/LICENSE.txt>.

package cmd

import (
	"fmt"
	"os"

	"github.com/exascience/turbotrim/utils"
	"github.com/spf13/cobra"
)

// NewRootCommand returns the turbotrim command with all its
// subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           utils.ProgramName,
		Short:         "Fast trimming of paired fastq.gz files",
		Version:       utils.ProgramVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, c.UsageString())
		return errInvalidCommandLine
	})
	root.AddCommand(newTrimCommand(), newVerifyCommand())
	return root
}

// Execute runs the turbotrim command for the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}
