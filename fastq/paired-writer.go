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
	"fmt"
	"io"
	"os"

	"github.com/exascience/pargo/parallel"
	"github.com/exascience/turbotrim/utils/bgzf"
)

// A PairSink receives the formatted records of both mates of a batch
// of pairs. WriteMates is never called concurrently, and mate1 and
// mate2 always hold the same number of records in the same order.
type PairSink interface {
	WriteMates(mate1, mate2 []byte) error
	io.Closer
}

const outputBufferSize = 4 << 20

// A PairedWriter writes two mated FASTQ streams, each compressed by
// its own parallel BGZF writer. It implements PairSink.
type PairedWriter struct {
	wcs  [2]io.Closer
	bufs [2]*bufio.Writer
	bgzf [2]*bgzf.Writer
}

// NewPairedWriter returns a PairedWriter that compresses into w1 and
// w2, using threads compression goroutines per stream and the given
// compression level (see bgzf.NewWriter).
func NewPairedWriter(w1, w2 io.Writer, threads, level int) (*PairedWriter, error) {
	return newPairedWriter([2]io.Writer{w1, w2}, [2]io.Closer{}, threads, level)
}

func newPairedWriter(ws [2]io.Writer, wcs [2]io.Closer, threads, level int) (*PairedWriter, error) {
	writer := &PairedWriter{wcs: wcs}
	for i, w := range ws {
		writer.bufs[i] = bufio.NewWriterSize(w, outputBufferSize)
		bw, err := bgzf.NewWriter(writer.bufs[i], threads, level)
		if err != nil {
			for _, started := range writer.bgzf[:i] {
				_ = started.Close()
			}
			return nil, err
		}
		writer.bgzf[i] = bw
	}
	return writer, nil
}

// CreatePaired creates or truncates two FASTQ files for BGZF-compressed
// output.
func CreatePaired(name1, name2 string, threads, level int) (*PairedWriter, error) {
	f1, err := os.Create(name1)
	if err != nil {
		return nil, err
	}
	f2, err := os.Create(name2)
	if err != nil {
		_ = f1.Close()
		return nil, err
	}
	w, err := newPairedWriter([2]io.Writer{f1, f2}, [2]io.Closer{f1, f2}, threads, level)
	if err != nil {
		_ = f1.Close()
		_ = f2.Close()
		return nil, err
	}
	return w, nil
}

// WriteMates implements the method of the PairSink interface.
func (w *PairedWriter) WriteMates(mate1, mate2 []byte) error {
	if _, err := w.bgzf[0].Write(mate1); err != nil {
		return fmt.Errorf("%v, while writing mate 1", err)
	}
	if _, err := w.bgzf[1].Write(mate2); err != nil {
		return fmt.Errorf("%v, while writing mate 2", err)
	}
	return nil
}

func (w *PairedWriter) finish(i int) (err error) {
	if err = w.bgzf[i].Close(); err != nil {
		err = fmt.Errorf("%v, while finalizing mate %v", err, i+1)
	} else if err = w.bufs[i].Flush(); err != nil {
		err = fmt.Errorf("%v, while flushing mate %v", err, i+1)
	}
	if w.wcs[i] != nil {
		if cerr := w.wcs[i].Close(); err == nil && cerr != nil {
			err = fmt.Errorf("%v, while closing mate %v", cerr, i+1)
		}
	}
	return err
}

// Close finalizes both BGZF streams concurrently, writing their EOF
// markers, and closes the underlying files.
func (w *PairedWriter) Close() error {
	var errs [2]error
	parallel.Do(
		func() { errs[0] = w.finish(0) },
		func() { errs[1] = w.finish(1) },
	)
	if errs[0] != nil {
		return errs[0]
	}
	return errs[1]
}
