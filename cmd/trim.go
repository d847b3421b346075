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
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/exascience/turbotrim/fastq"
	"github.com/exascience/turbotrim/internal"
	"github.com/exascience/turbotrim/utils/bgzf"
	"github.com/spf13/cobra"
)

// DefaultTrimLength is the number of bases trimmed when --trim-len is
// not given.
const DefaultTrimLength = 10

type trimOptions struct {
	read1, read2, out1, out2 string
	trimLength               int
	side                     string
	preserveOrder            bool
	nrOfThreads              int
	compressionThreads       int
	decompressionThreads     int
	compressionLevel         int
	batchSize                int
	queueDepth               int
	logPath                  string
	timed                    bool
	profile                  string
}

var errInvalidCommandLine = errors.New("invalid command line")

func newTrimCommand() *cobra.Command {
	var opts trimOptions
	command := &cobra.Command{
		Use:   "trim",
		Short: "Trim bases from every read of two paired fastq.gz files",
		Long: `Trim a fixed number of bases from one end of every read in a pair of
mated fastq.gz files, and write the trimmed reads to two BGZF-compressed
fastq.gz files.

Reading, trimming and compressing run concurrently. Unless
--preserve-order is given, records may be written in a different order
than they are read, but the Nth records of both outputs are always mates.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runTrim(&opts)
		},
	}
	flags := command.Flags()
	flags.StringVarP(&opts.read1, "read1", "a", "", "first fastq.gz file")
	flags.StringVarP(&opts.read2, "read2", "b", "", "second fastq.gz file")
	flags.StringVarP(&opts.out1, "out1", "x", "", "first output fastq.gz file")
	flags.StringVarP(&opts.out2, "out2", "y", "", "second output fastq.gz file")
	flags.IntVarP(&opts.trimLength, "trim-len", "l", DefaultTrimLength, "number of bases to trim")
	flags.StringVar(&opts.side, "side", fastq.Suffix.String(), "end of the reads to trim: suffix (3') or prefix (5')")
	flags.BoolVar(&opts.preserveOrder, "preserve-order", false, "write records in input order")
	flags.IntVar(&opts.nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.IntVar(&opts.compressionThreads, "compression-threads", bgzf.DefaultThreads, "number of compression threads per output file")
	flags.IntVar(&opts.decompressionThreads, "decompression-threads", bgzf.DefaultThreads, "number of decompression threads per BGZF input file")
	flags.IntVar(&opts.compressionLevel, "compression-level", -1, "compression level from -2 (Huffman only) to 9 (best), -1 for the default")
	flags.IntVar(&opts.batchSize, "batch-size", fastq.DefaultBatchSize, "number of read pairs per batch")
	flags.IntVar(&opts.queueDepth, "queue-depth", 0, "maximum number of batches between reading and writing, 0 for twice the number of threads")
	flags.StringVar(&opts.logPath, "log-path", "", "directory for the log files (default $HOME)")
	flags.BoolVar(&opts.timed, "timed", false, "log the elapsed time")
	flags.StringVar(&opts.profile, "profile", "", "write a CPU profile to the given file prefix")
	for _, name := range []string{"read1", "read2", "out1", "out2"} {
		_ = command.MarkFlagRequired(name)
	}
	return command
}

func (opts *trimOptions) check() (side fastq.Side, ok bool) {
	ok = true
	for _, input := range []struct{ parameter, filename string }{
		{"--read1", opts.read1},
		{"--read2", opts.read2},
	} {
		ok = checkFastqGz(input.parameter, input.filename) && checkExist(input.parameter, input.filename) && ok
	}
	for _, output := range []struct{ parameter, filename string }{
		{"--out1", opts.out1},
		{"--out2", opts.out2},
	} {
		ok = checkFastqGz(output.parameter, output.filename) && checkCreate(output.parameter, output.filename) && ok
	}
	if ok {
		ok = checkDistinct("--out1", opts.out1, "--out2", opts.out2) &&
			checkDistinct("--read1", opts.read1, "--out1", opts.out1) &&
			checkDistinct("--read1", opts.read1, "--out2", opts.out2) &&
			checkDistinct("--read2", opts.read2, "--out1", opts.out1) &&
			checkDistinct("--read2", opts.read2, "--out2", opts.out2)
	}
	if opts.trimLength < 0 {
		log.Println("Error: Invalid trim-len:", opts.trimLength)
		ok = false
	}
	side, err := fastq.ParseSide(opts.side)
	if err != nil {
		log.Println("Error:", err)
		ok = false
	}
	if opts.nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads:", opts.nrOfThreads)
		ok = false
	}
	if opts.compressionThreads < 1 {
		log.Println("Error: Invalid compression-threads:", opts.compressionThreads)
		ok = false
	}
	if opts.decompressionThreads < 1 {
		log.Println("Error: Invalid decompression-threads:", opts.decompressionThreads)
		ok = false
	}
	if opts.compressionLevel < -2 || opts.compressionLevel > 9 {
		log.Println("Error: Invalid compression-level:", opts.compressionLevel)
		ok = false
	}
	if opts.batchSize < 1 {
		log.Println("Error: Invalid batch-size:", opts.batchSize)
		ok = false
	}
	if opts.queueDepth < 0 {
		log.Println("Error: Invalid queue-depth:", opts.queueDepth)
		ok = false
	}
	return side, ok
}

func (opts *trimOptions) commandLine(side fastq.Side) string {
	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " trim")
	fmt.Fprint(&command, " --read1 ", opts.read1, " --read2 ", opts.read2)
	fmt.Fprint(&command, " --out1 ", opts.out1, " --out2 ", opts.out2)
	fmt.Fprint(&command, " --trim-len ", opts.trimLength, " --side ", side)
	if opts.preserveOrder {
		fmt.Fprint(&command, " --preserve-order")
	}
	if opts.nrOfThreads > 0 {
		fmt.Fprint(&command, " --nr-of-threads ", opts.nrOfThreads)
	}
	fmt.Fprint(&command, " --compression-threads ", opts.compressionThreads)
	fmt.Fprint(&command, " --decompression-threads ", opts.decompressionThreads)
	fmt.Fprint(&command, " --compression-level ", opts.compressionLevel)
	fmt.Fprint(&command, " --batch-size ", opts.batchSize)
	if opts.queueDepth > 0 {
		fmt.Fprint(&command, " --queue-depth ", opts.queueDepth)
	}
	if opts.logPath != "" {
		fmt.Fprint(&command, " --log-path ", opts.logPath)
	}
	if opts.timed {
		fmt.Fprint(&command, " --timed")
	}
	if opts.profile != "" {
		fmt.Fprint(&command, " --profile ", opts.profile)
	}
	return command.String()
}

func runTrim(opts *trimOptions) error {
	setLogOutput(opts.logPath)

	// sanity checks

	side, ok := opts.check()
	if !ok {
		return errInvalidCommandLine
	}
	spec, err := fastq.NewTrimSpec(opts.trimLength, side)
	if err != nil {
		return err
	}

	// executing command

	if opts.nrOfThreads > 0 {
		runtime.GOMAXPROCS(opts.nrOfThreads)
	}
	log.Println("Executing command:\n", opts.commandLine(side))

	var paths [4]string
	for i, name := range []string{opts.read1, opts.read2, opts.out1, opts.out2} {
		if paths[i], err = internal.FullPathname(name); err != nil {
			return err
		}
	}

	return timedRun(opts.timed, opts.profile, "Trimming paired reads.", 1, func() error {
		input, err := fastq.OpenPaired(paths[0], paths[1], opts.decompressionThreads)
		if err != nil {
			return err
		}
		output, err := fastq.CreatePaired(paths[2], paths[3], opts.compressionThreads, opts.compressionLevel)
		if err != nil {
			_ = input.Close()
			return err
		}
		stats, err := fastq.RunPipeline(input, output, spec, fastq.Options{
			Workers:       opts.nrOfThreads,
			BatchSize:     opts.batchSize,
			QueueDepth:    opts.queueDepth,
			PreserveOrder: opts.preserveOrder,
		})
		if err != nil {
			return err
		}
		log.Printf("Trimmed %v read pairs, removed %v bases in %v.\n", stats.Pairs, stats.BasesRemoved, stats.Elapsed)
		return nil
	})
}
