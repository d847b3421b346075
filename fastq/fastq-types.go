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

package fastq

import "errors"

type (
	// A Record is one sequencing read in the 4-line FASTQ format.
	// Sequence and Quality always have the same length.
	Record struct {
		Header    string
		Sequence  string
		Separator string
		Quality   string
	}

	// A Pair holds the two mates read at the same position from two
	// paired FASTQ streams. Ordinal is the 0-based position of both
	// records in their streams.
	Pair struct {
		Ordinal int
		A, B    Record
	}

	// A Batch is a slice of consecutive Pairs as fetched by a
	// PairedReader. Batches are the unit of work passed between
	// pipeline stages; a stage that passes a Batch on must not use it
	// anymore.
	Batch []Pair
)

// Errors reported for malformed input. They are wrapped with the mate
// and record number at which they are detected.
var (
	ErrTruncatedRecord   = errors.New("stream ends in the middle of a FASTQ record")
	ErrMateCountMismatch = errors.New("paired FASTQ streams have different numbers of records")
	ErrMalformedRecord   = errors.New("malformed FASTQ record")
	ErrInvalidText       = errors.New("FASTQ line is not valid UTF-8 text")
)

// Format appends the four lines of the record to out, each
// terminated by a newline.
func (rec *Record) Format(out []byte) []byte {
	out = append(out, rec.Header...)
	out = append(out, '\n')
	out = append(out, rec.Sequence...)
	out = append(out, '\n')
	out = append(out, rec.Separator...)
	out = append(out, '\n')
	out = append(out, rec.Quality...)
	return append(out, '\n')
}
