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
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/exascience/turbotrim/utils/bgzf"
)

var bases = [...]string{"ACGTACGTAC", "TTGCAANNGT", "GATTACAGAT", "CCCGGGAAAT"}

// makeMate returns n records of the given mate. Mate numbers end up in
// the read comments, and the read names are shared between mates.
func makeMate(mate, n int) string {
	var buf strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&buf, "@read%v %v:N:0:ACGT\n%v\n+\n%v\n", i, mate, bases[i%len(bases)][:4+i%7], strings.Repeat("F", 4+i%7))
	}
	return buf.String()
}

func gzipMembers(t *testing.T, text string, members int) []byte {
	t.Helper()
	var buf bytes.Buffer
	size := len(text)/members + 1
	for len(text) > 0 {
		n := size
		if n > len(text) {
			n = len(text)
		}
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write([]byte(text[:n])); err != nil {
			t.Fatal(err)
		}
		if err := gz.Close(); err != nil {
			t.Fatal(err)
		}
		text = text[n:]
	}
	return buf.Bytes()
}

func bgzfCompress(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := bgzf.NewWriter(&buf, 2, -1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(text)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readAllPairs(r *PairedReader, size int) (pairs []Pair, err error) {
	for r.Fetch(size) > 0 {
		pairs = append(pairs, r.Data().(Batch)...)
	}
	return pairs, r.Err()
}

func checkPairs(t *testing.T, pairs []Pair, n int) {
	t.Helper()
	if len(pairs) != n {
		t.Fatalf("got %v pairs instead of %v", len(pairs), n)
	}
	for i, pair := range pairs {
		if pair.Ordinal != i {
			t.Fatalf("pair %v has ordinal %v", i, pair.Ordinal)
		}
		name := fmt.Sprintf("@read%v ", i)
		if !strings.HasPrefix(pair.A.Header, name+"1:") || !strings.HasPrefix(pair.B.Header, name+"2:") {
			t.Fatalf("pair %v holds %q and %q", i, pair.A.Header, pair.B.Header)
		}
		if pair.A.Sequence != bases[i%len(bases)][:4+i%7] || pair.A.Separator != "+" || len(pair.B.Quality) != 4+i%7 {
			t.Fatalf("pair %v has unexpected contents %v", i, pair)
		}
	}
}

func TestPairedReaderFormats(t *testing.T) {
	const n = 1000
	text1, text2 := makeMate(1, n), makeMate(2, n)
	for _, tc := range []struct {
		name       string
		in1, in2   []byte
		batchSizes []int
	}{
		{"plain", []byte(text1), []byte(text2), []int{1, 7, 1000, 4096}},
		{"gzip", gzipMembers(t, text1, 1), gzipMembers(t, text2, 1), []int{10, 333}},
		{"multi-member gzip", gzipMembers(t, text1, 5), gzipMembers(t, text2, 3), []int{1, 64, 2000}},
		{"bgzf", bgzfCompress(t, text1), bgzfCompress(t, text2), []int{3, 1000}},
		{"mixed", bgzfCompress(t, text1), gzipMembers(t, text2, 2), []int{100}},
		{"crlf", []byte(strings.ReplaceAll(text1, "\n", "\r\n")), []byte(text2), []int{50}},
	} {
		for _, size := range tc.batchSizes {
			r, err := NewPairedReader(bytes.NewReader(tc.in1), bytes.NewReader(tc.in2), 2)
			if err != nil {
				t.Fatalf("%v: %v", tc.name, err)
			}
			pairs, err := readAllPairs(r, size)
			if err != nil {
				t.Fatalf("%v, batch size %v: %v", tc.name, size, err)
			}
			checkPairs(t, pairs, n)
			if r.Pairs() != n {
				t.Errorf("%v: Pairs returns %v", tc.name, r.Pairs())
			}
			if err := r.Close(); err != nil {
				t.Error(err)
			}
		}
	}
}

func TestPairedReaderEmpty(t *testing.T) {
	r, err := NewPairedReader(bytes.NewReader(bgzfCompress(t, "")), bytes.NewReader(nil), 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if r.Err() != nil {
		t.Error(r.Err())
	}
}

func TestPairedReaderNext(t *testing.T) {
	r, err := NewPairedReader(strings.NewReader(makeMate(1, 3)), strings.NewReader(makeMate(2, 3)), 1)
	if err != nil {
		t.Fatal(err)
	}
	var pairs []Pair
	for {
		pair, err := r.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			t.Fatal(err)
		}
		pairs = append(pairs, pair)
	}
	checkPairs(t, pairs, 3)
}

func TestMateCountMismatch(t *testing.T) {
	for _, tc := range []struct {
		n1, n2, size, short int
	}{
		{10, 9, 4, 2},
		{9, 10, 4, 1},
		{8, 9, 4, 1},
		{9, 8, 4, 2},
		{0, 1, 100, 1},
		{5, 0, 100, 2},
	} {
		r, err := NewPairedReader(strings.NewReader(makeMate(1, tc.n1)), strings.NewReader(makeMate(2, tc.n2)), 1)
		if err != nil {
			t.Fatal(err)
		}
		_, err = readAllPairs(r, tc.size)
		if !errors.Is(err, ErrMateCountMismatch) {
			t.Errorf("%v vs %v records: expected a mate count mismatch, got %v", tc.n1, tc.n2, err)
			continue
		}
		if !strings.Contains(err.Error(), fmt.Sprintf("mate %v ends", tc.short)) {
			t.Errorf("%v vs %v records: wrong mate reported in %v", tc.n1, tc.n2, err)
		}
		if r.Fetch(tc.size) != 0 {
			t.Error("Fetch succeeded after an error")
		}
	}
}

func TestMalformedInput(t *testing.T) {
	good := makeMate(2, 3)
	for _, tc := range []struct {
		name string
		text string
		err  error
	}{
		{"truncated", makeMate(1, 3) + "@read3 1:N:0:ACGT\nACGT\n", ErrTruncatedRecord},
		{"truncated quality", strings.TrimSuffix(makeMate(1, 3), "FFFFFF\n"), ErrTruncatedRecord},
		{"header", strings.Replace(makeMate(1, 3), "@read1", "read1", 1), ErrMalformedRecord},
		{"separator", strings.Replace(makeMate(1, 3), "\n+\n", "\n-\n", 1), ErrMalformedRecord},
		{"lengths", strings.Replace(makeMate(1, 3), "FFFF\n", "FFF\n", 1), ErrMalformedRecord},
		{"invalid text", strings.Replace(makeMate(1, 3), "@read2", "@read\xff2", 1), ErrInvalidText},
	} {
		r, err := NewPairedReader(strings.NewReader(tc.text), strings.NewReader(good), 1)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := readAllPairs(r, 2); !errors.Is(err, tc.err) {
			t.Errorf("%v: expected %v, got %v", tc.name, tc.err, err)
		} else if !strings.Contains(err.Error(), "mate 1") {
			t.Errorf("%v: mate not reported in %v", tc.name, err)
		}
	}
}

func TestLongLines(t *testing.T) {
	long := strings.Repeat("ACGT", inputBufferSize/2)
	text := "@long\n" + long + "\n+\n" + strings.Repeat("F", len(long)) + "\n"
	r, err := NewPairedReader(strings.NewReader(text), strings.NewReader(text), 1)
	if err != nil {
		t.Fatal(err)
	}
	pair, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if pair.A.Sequence != long || pair.B.Quality != strings.Repeat("F", len(long)) {
		t.Error("long lines not read correctly")
	}
}

func TestOpenPaired(t *testing.T) {
	dir := t.TempDir()
	name1, name2 := filepath.Join(dir, "in_1.fastq.gz"), filepath.Join(dir, "in_2.fq.gz")
	if err := os.WriteFile(name1, gzipMembers(t, makeMate(1, 20), 2), 0666); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(name2, bgzfCompress(t, makeMate(2, 20)), 0666); err != nil {
		t.Fatal(err)
	}
	r, err := OpenPaired(name1, name2, 2)
	if err != nil {
		t.Fatal(err)
	}
	pairs, err := readAllPairs(r, 6)
	if err != nil {
		t.Fatal(err)
	}
	checkPairs(t, pairs, 20)
	if err := r.Close(); err != nil {
		t.Error(err)
	}
	if _, err := OpenPaired(name1, filepath.Join(dir, "missing.fastq.gz"), 2); err == nil {
		t.Error("missing file not reported")
	}
}

func TestIsFastqGz(t *testing.T) {
	for name, ok := range map[string]bool{
		"sample_R1.fastq.gz": true,
		"dir/sample_2.fq.gz": true,
		"sample.fastq":       false,
		"sample.fq":          false,
		"sample.gz":          false,
		"sample.fastq.gz.1":  false,
	} {
		if IsFastqGz(name) != ok {
			t.Errorf("IsFastqGz(%q) should be %v", name, ok)
		}
	}
}
