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

import "testing"

func TestTrim(t *testing.T) {
	for _, tc := range []struct {
		name              string
		length            int
		side              Side
		sequence, quality string
		removed           int
	}{
		{"suffix", 4, Suffix, "ACGTAC", "F:FFF:", 4},
		{"prefix", 4, Prefix, "ACGTAC", "F:,FFF", 4},
		{"zero", 0, Suffix, "ACGTACGTAC", "F:FFF:,FFF", 0},
		{"default length", 10, Prefix, "", "", 10},
		{"clamp suffix", 25, Suffix, "", "", 10},
		{"clamp prefix", 11, Prefix, "", "", 10},
		{"one", 1, Suffix, "ACGTACGTA", "F:FFF:,FF", 1},
	} {
		rec := Record{Header: "@r1 1:N:0", Sequence: "ACGTACGTAC", Separator: "+", Quality: "F:FFF:,FFF"}
		spec, err := NewTrimSpec(tc.length, tc.side)
		if err != nil {
			t.Fatal(err)
		}
		if removed := spec.Trim(&rec); removed != tc.removed {
			t.Errorf("%v: removed %v bases instead of %v", tc.name, removed, tc.removed)
		}
		if rec.Sequence != tc.sequence || rec.Quality != tc.quality {
			t.Errorf("%v: got %q/%q, expected %q/%q", tc.name, rec.Sequence, rec.Quality, tc.sequence, tc.quality)
		}
		if rec.Header != "@r1 1:N:0" || rec.Separator != "+" {
			t.Errorf("%v: header or separator modified", tc.name)
		}
	}
}

func TestTrimBatch(t *testing.T) {
	batch := Batch{
		{Ordinal: 0, A: Record{"@a", "ACGTACGTAC", "+", "FFFFFFFFFF"}, B: Record{"@a", "TTTT", "+", "FFFF"}},
		{Ordinal: 1, A: Record{"@b", "", "+", ""}, B: Record{"@b", "GGGGGG", "+a", "::::::"}},
	}
	spec := TrimSpec{Length: 4, Side: Suffix}
	if removed := spec.TrimBatch(batch); removed != 4+4+0+4 {
		t.Errorf("removed %v bases instead of 12", removed)
	}
	if batch[0].A.Sequence != "ACGTAC" || batch[0].B.Sequence != "" || batch[1].B.Quality != "::" {
		t.Errorf("unexpected batch after trimming: %v", batch)
	}
	if batch[0].Ordinal != 0 || batch[1].Ordinal != 1 || batch[1].B.Separator != "+a" {
		t.Error("trimming modified ordinals or separators")
	}
	if removed := (TrimSpec{}).TrimBatch(batch); removed != 0 {
		t.Errorf("zero length trim removed %v bases", removed)
	}
}

func TestParseSide(t *testing.T) {
	for _, tc := range []struct {
		s    string
		side Side
	}{
		{"suffix", Suffix}, {"3", Suffix}, {"3'", Suffix}, {"3-prime", Suffix}, {"SUFFIX", Suffix},
		{"prefix", Prefix}, {"5", Prefix}, {"5'", Prefix}, {"5-Prime", Prefix},
	} {
		if side, err := ParseSide(tc.s); err != nil {
			t.Errorf("%v: %v", tc.s, err)
		} else if side != tc.side {
			t.Errorf("%v parsed as %v", tc.s, side)
		}
	}
	for _, s := range []string{"", "middle", "4"} {
		if _, err := ParseSide(s); err == nil {
			t.Errorf("%q accepted as trim side", s)
		}
	}
	for _, side := range []Side{Suffix, Prefix} {
		if parsed, err := ParseSide(side.String()); err != nil || parsed != side {
			t.Errorf("%v does not parse back", side)
		}
	}
}

func TestNewTrimSpec(t *testing.T) {
	if _, err := NewTrimSpec(-1, Suffix); err == nil {
		t.Error("negative trim length accepted")
	}
	if _, err := NewTrimSpec(3, Side(7)); err == nil {
		t.Error("invalid side accepted")
	}
	if spec, err := NewTrimSpec(0, Prefix); err != nil || spec != (TrimSpec{0, Prefix}) {
		t.Errorf("unexpected result %v, %v", spec, err)
	}
}
