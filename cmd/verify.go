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
	"log"

	"github.com/exascience/turbotrim/fastq"
	"github.com/exascience/turbotrim/utils/bgzf"
	"github.com/spf13/cobra"
)

func newVerifyCommand() *cobra.Command {
	var read1, read2 string
	var threads int
	command := &cobra.Command{
		Use:   "verify",
		Short: "Check that two paired fastq.gz files hold the same number of well-formed records",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ok := checkFastqGz("--read1", read1) && checkExist("--read1", read1)
			ok = checkFastqGz("--read2", read2) && checkExist("--read2", read2) && ok
			if threads < 1 {
				log.Println("Error: Invalid decompression-threads:", threads)
				ok = false
			}
			if !ok {
				return errInvalidCommandLine
			}
			pairs, err := verifyPaired(read1, read2, threads)
			if err != nil {
				return err
			}
			log.Printf("%v and %v hold %v read pairs.\n", read1, read2, pairs)
			return nil
		},
	}
	flags := command.Flags()
	flags.StringVarP(&read1, "read1", "a", "", "first fastq.gz file")
	flags.StringVarP(&read2, "read2", "b", "", "second fastq.gz file")
	flags.IntVar(&threads, "decompression-threads", bgzf.DefaultThreads, "number of decompression threads per BGZF input file")
	_ = command.MarkFlagRequired("read1")
	_ = command.MarkFlagRequired("read2")
	return command
}

// verifyPaired reads two paired FASTQ files to the end and returns the
// number of pairs.
func verifyPaired(read1, read2 string, threads int) (pairs int, err error) {
	input, err := fastq.OpenPaired(read1, read2, threads)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := input.Close(); err == nil {
			err = cerr
		}
	}()
	for {
		if input.Fetch(fastq.DefaultBatchSize) == 0 {
			return input.Pairs(), input.Err()
		}
	}
}
