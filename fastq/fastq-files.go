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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/exascience/turbotrim/utils"
	"golang.org/x/sync/errgroup"
)

// File name suffixes accepted for compressed FASTQ files.
const (
	FastqGzExt = "fastq.gz"
	FqGzExt    = "fq.gz"
)

// IsFastqGz checks the naming convention for compressed FASTQ files.
func IsFastqGz(name string) bool {
	return strings.HasSuffix(name, FastqGzExt) || strings.HasSuffix(name, FqGzExt)
}

const inputBufferSize = 1 << 20

// mateReader lexes one of the two streams of a PairedReader.
type mateReader struct {
	mate   int
	rc     io.Closer
	gz     io.ReadCloser
	buf    *bufio.Reader
	record int
}

func newMateReader(mate int, r io.Reader, rc io.Closer, threads int) (*mateReader, error) {
	gz, err := utils.Decompress(bufio.NewReaderSize(r, inputBufferSize), threads)
	if err != nil {
		return nil, fmt.Errorf("%v, while opening mate %v", err, mate)
	}
	return &mateReader{
		mate: mate,
		rc:   rc,
		gz:   gz,
		buf:  bufio.NewReaderSize(gz, inputBufferSize),
	}, nil
}

func (m *mateReader) errorf(err error) error {
	return fmt.Errorf("%w (mate %v, record %v)", err, m.mate, m.record+1)
}

func (m *mateReader) readLine() (line string, err error) {
	data, err := m.buf.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		long := append([]byte(nil), data...)
		for err == bufio.ErrBufferFull {
			data, err = m.buf.ReadSlice('\n')
			long = append(long, data...)
		}
		data = long
	}
	switch {
	case err == nil:
		data = data[:len(data)-1]
	case err == io.EOF:
		if len(data) == 0 {
			return "", io.EOF
		}
	default:
		return "", err
	}
	if n := len(data); n > 0 && data[n-1] == '\r' {
		data = data[:n-1]
	}
	if !utf8.Valid(data) {
		return "", m.errorf(ErrInvalidText)
	}
	return string(data), nil
}

// readRecord returns io.EOF only if the stream ends at a record boundary.
func (m *mateReader) readRecord(rec *Record) error {
	var lines [4]string
	for i := range lines {
		line, err := m.readLine()
		if err == io.EOF {
			if i == 0 {
				return io.EOF
			}
			return m.errorf(ErrTruncatedRecord)
		} else if err != nil {
			return err
		}
		lines[i] = line
	}
	switch {
	case !strings.HasPrefix(lines[0], "@"):
		return m.errorf(fmt.Errorf("%w: header %q does not start with '@'", ErrMalformedRecord, lines[0]))
	case !strings.HasPrefix(lines[2], "+"):
		return m.errorf(fmt.Errorf("%w: separator %q does not start with '+'", ErrMalformedRecord, lines[2]))
	case len(lines[1]) != len(lines[3]):
		return m.errorf(fmt.Errorf("%w: sequence of length %v, but quality of length %v", ErrMalformedRecord, len(lines[1]), len(lines[3])))
	}
	rec.Header, rec.Sequence, rec.Separator, rec.Quality = lines[0], lines[1], lines[2], lines[3]
	m.record++
	return nil
}

// readRecords fills at most len(recs) records, and reports whether the
// end of the stream was reached.
func (m *mateReader) readRecords(recs []Record) (n int, eof bool, err error) {
	for n < len(recs) {
		switch err := m.readRecord(&recs[n]); {
		case err == io.EOF:
			return n, true, nil
		case err != nil:
			return n, false, err
		}
		n++
	}
	return n, false, nil
}

func (m *mateReader) Close() (err error) {
	err = m.gz.Close()
	if m.rc != nil {
		if cerr := m.rc.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// A PairedReader reads two mated FASTQ streams in lockstep and
// produces Batches of Pairs in input order. It implements
// pipeline.Source.
type PairedReader struct {
	mates [2]*mateReader
	err   error
	data  Batch
	pairs int
}

// NewPairedReader returns a PairedReader for two, possibly compressed,
// FASTQ streams. BGZF streams are decompressed with at most threads
// goroutines each.
func NewPairedReader(r1, r2 io.Reader, threads int) (*PairedReader, error) {
	return newPairedReader(r1, r2, nil, nil, threads)
}

func newPairedReader(r1, r2 io.Reader, c1, c2 io.Closer, threads int) (*PairedReader, error) {
	m1, err := newMateReader(1, r1, c1, threads)
	if err != nil {
		return nil, err
	}
	m2, err := newMateReader(2, r2, c2, threads)
	if err != nil {
		_ = m1.Close()
		return nil, err
	}
	return &PairedReader{mates: [2]*mateReader{m1, m2}}, nil
}

// OpenPaired opens two paired FASTQ files for input.
func OpenPaired(name1, name2 string, threads int) (*PairedReader, error) {
	f1, err := os.Open(name1)
	if err != nil {
		return nil, err
	}
	f2, err := os.Open(name2)
	if err != nil {
		_ = f1.Close()
		return nil, err
	}
	r, err := newPairedReader(f1, f2, f1, f2, threads)
	if err != nil {
		_ = f1.Close()
		_ = f2.Close()
		return nil, err
	}
	return r, nil
}

// Pairs returns the number of pairs fetched so far.
func (r *PairedReader) Pairs() int {
	return r.pairs
}

// Err implements the method of the pipeline.Source interface.
func (r *PairedReader) Err() error {
	if r.err != io.EOF {
		return r.err
	}
	return nil
}

// Prepare implements the method of the pipeline.Source interface.
func (r *PairedReader) Prepare(_ context.Context) (size int) {
	return -1
}

// Fetch implements the method of the pipeline.Source interface. The
// two mates of a batch are lexed concurrently.
func (r *PairedReader) Fetch(size int) (fetched int) {
	r.data = nil
	if r.err != nil || size <= 0 {
		return 0
	}
	var (
		recs [2][]Record
		n    [2]int
		eof  [2]bool
		g    errgroup.Group
	)
	for i := range r.mates {
		i := i
		recs[i] = make([]Record, size)
		g.Go(func() (err error) {
			n[i], eof[i], err = r.mates[i].readRecords(recs[i])
			return err
		})
	}
	if err := g.Wait(); err != nil {
		r.err = err
		return 0
	}
	if n[0] != n[1] {
		short := 1
		if n[1] < n[0] {
			short = 2
		}
		r.err = fmt.Errorf("%w: mate %v ends after %v records", ErrMateCountMismatch, short, r.pairs+n[short-1])
		return 0
	}
	if eof[0] || eof[1] {
		r.err = io.EOF
	}
	if n[0] == 0 {
		return 0
	}
	batch := make(Batch, n[0])
	for i := range batch {
		batch[i] = Pair{Ordinal: r.pairs + i, A: recs[0][i], B: recs[1][i]}
	}
	r.pairs += n[0]
	r.data = batch
	return n[0]
}

// Data implements the method of the pipeline.Source interface.
func (r *PairedReader) Data() interface{} {
	return r.data
}

// Next fetches the next pair outside of a pipeline. It returns io.EOF
// after the last pair.
func (r *PairedReader) Next() (pair Pair, err error) {
	if r.Fetch(1) == 0 {
		if err = r.Err(); err == nil {
			err = io.EOF
		}
		return
	}
	return r.data[0], nil
}

// Close closes both input streams.
func (r *PairedReader) Close() (err error) {
	for _, m := range r.mates {
		if cerr := m.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
