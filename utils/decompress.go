// turbotrim: a high-performance tool for trimming paired FASTQ files.
// Copyright (c) 2017-2022 imec vzw.

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

package utils

import (
	"bufio"
	"io"

	"github.com/exascience/turbotrim/utils/bgzf"
	"github.com/klauspost/compress/gzip"
)

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

// Decompress inspects the initial bytes of the given reader and
// returns a reader for the decompressed stream.
//
// BGZF input is inflated in parallel with at most threads goroutines.
// Any other gzip input is decoded as a multi-member stream, so
// concatenated gzip files are read to the end. Input that is not
// gzip-compressed is returned unchanged.
//
// Closing the result does not close the underlying reader.
func Decompress(buf *bufio.Reader, threads int) (io.ReadCloser, error) {
	if ok, err := bgzf.IsBGZF(buf); err != nil {
		return nil, err
	} else if ok {
		r, err := bgzf.NewReader(buf, threads)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	if ok, err := bgzf.IsGzip(buf); err != nil {
		return nil, err
	} else if ok {
		gz, err := gzip.NewReader(buf)
		if err != nil {
			return nil, err
		}
		gz.Multistream(true)
		return gz, nil
	}
	return nopCloser{buf}, nil
}
