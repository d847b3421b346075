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

// Package fastq trims the reads of paired FASTQ files.
//
// A FASTQ record consists of four lines: a header starting with '@', the
// sequence, a separator starting with '+', and a quality string of the
// same length as the sequence. Paired-end sequencing produces two files
// whose Nth records are mates of each other. The package reads both
// files in lockstep into Pair values, trims a fixed number of bases from
// one end of every read, and writes the mates to two BGZF-compressed
// output files.
//
// Reading, trimming and writing run concurrently as the nodes of one
// pargo pipeline (see RunPipeline):
//
//	PairedReader --> TrimStage (parallel) --> PairSink (sequential)
//
// The pipeline keeps a bounded number of batches in flight, so a slow
// writer holds back the reader instead of queueing unbounded amounts of
// trimmed data in memory. Trimming runs on a pool of worker goroutines.
// By default, batches reach the writer in the order in which the workers
// finish them, so records may appear in the output files in a different
// order than in the input files, but mates always stay together: the Nth
// record of the first output file is the mate of the Nth record of the
// second output file. Options.PreserveOrder restores input order at some
// cost in throughput.
//
// See https://godoc.org/github.com/ExaScience/pargo/pipeline for
// details of pargo pipelines.
package fastq
