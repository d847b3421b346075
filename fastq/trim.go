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

import (
	"fmt"
	"strings"
)

// Side selects the end of a read from which bases are trimmed.
type Side int

const (
	// Suffix trims from the 3' end of a read.
	Suffix Side = iota
	// Prefix trims from the 5' end of a read.
	Prefix
)

func (side Side) String() string {
	switch side {
	case Suffix:
		return "suffix"
	case Prefix:
		return "prefix"
	default:
		return fmt.Sprintf("Side(%d)", int(side))
	}
}

// ParseSide parses "suffix" (or "3") and "prefix" (or "5").
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "suffix", "3", "3'", "3-prime":
		return Suffix, nil
	case "prefix", "5", "5'", "5-prime":
		return Prefix, nil
	default:
		return 0, fmt.Errorf("unknown trim side %v", s)
	}
}

// A TrimSpec removes exactly Length bases from one side of the
// sequence and quality lines of a read. Reads that are not longer than
// Length become empty. A TrimSpec is never modified once created and
// can be shared by any number of goroutines.
type TrimSpec struct {
	Length int
	Side   Side
}

// NewTrimSpec returns a validated TrimSpec.
func NewTrimSpec(length int, side Side) (TrimSpec, error) {
	if length < 0 {
		return TrimSpec{}, fmt.Errorf("invalid trim length %v", length)
	}
	if side != Suffix && side != Prefix {
		return TrimSpec{}, fmt.Errorf("invalid trim side %v", side)
	}
	return TrimSpec{Length: length, Side: side}, nil
}

// Trim trims the sequence and quality of the given record, and returns
// the number of bases removed. Header and separator are left as they
// are.
func (spec TrimSpec) Trim(rec *Record) (removed int) {
	n := len(rec.Sequence)
	keep := n - spec.Length
	if keep < 0 {
		keep = 0
	}
	switch spec.Side {
	case Prefix:
		rec.Sequence = rec.Sequence[n-keep:]
		rec.Quality = rec.Quality[len(rec.Quality)-keep:]
	default:
		rec.Sequence = rec.Sequence[:keep]
		rec.Quality = rec.Quality[:keep]
	}
	return n - keep
}

// TrimPair trims both mates of the given pair.
func (spec TrimSpec) TrimPair(pair *Pair) (removed int) {
	return spec.Trim(&pair.A) + spec.Trim(&pair.B)
}

// TrimBatch trims all pairs of the given batch in place.
func (spec TrimSpec) TrimBatch(batch Batch) (removed int) {
	if spec.Length == 0 {
		return 0
	}
	for i := range batch {
		removed += spec.TrimPair(&batch[i])
	}
	return removed
}
