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

// Package bgzf reads and writes BGZF files in parallel.
//
// A BGZF file is a series of concatenated gzip members, each holding at
// most 64 KiB of uncompressed data and announcing its own compressed size
// in a BC extra subfield. Because the members are independent, they can
// be compressed and decompressed by several goroutines at once, while the
// file remains readable by any gzip tool.
package bgzf

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/exascience/pargo/pipeline"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// IsGzip determines if the the given byte scanner produces
// a gzip file. It uses ReadByte and UnreadByte to check
// only the initial byte from the input.
func IsGzip(scanner io.ByteScanner) (bool, error) {
	b, err := scanner.ReadByte()
	if err == io.EOF {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := scanner.UnreadByte(); err != nil {
		return false, err
	}
	return b == 0x1f, nil
}

// IsBGZF determines if the first gzip member produced by the given
// reader carries a BC extra subfield. It only peeks at the input.
func IsBGZF(buf *bufio.Reader) (bool, error) {
	header, err := buf.Peek(12)
	if err == io.EOF || err == bufio.ErrBufferFull {
		return false, nil
	} else if err != nil {
		if len(header) < 12 {
			return false, nil
		}
		return false, err
	}
	if header[0] != 0x1f || header[1] != 0x8b || header[2] != 8 || header[3]&4 == 0 {
		return false, nil
	}
	xlen := int(binary.LittleEndian.Uint16(header[10:12]))
	header, err = buf.Peek(12 + xlen)
	if err != nil {
		return false, nil
	}
	extra := header[12:]
	for i := 0; i+4 <= len(extra); {
		slen := int(binary.LittleEndian.Uint16(extra[i+2 : i+4]))
		if extra[i] == 'B' && extra[i+1] == 'C' && slen == 2 {
			return true, nil
		}
		i += 4 + slen
	}
	return false, nil
}

const (
	// maxBlockSize is the maximum size of a BGZF member.
	maxBlockSize = 65536

	// maxDataSize bounds the uncompressed payload of a member so that
	// incompressible data still fits into maxBlockSize after deflate
	// framing is added.
	maxDataSize = 0xff00
)

// DefaultThreads is the number of compression or decompression
// goroutines used per stream when none is specified.
const DefaultThreads = 4

var bgzfEOF = []byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00,
	0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
	0x42, 0x43, 0x02, 0x00, 0x1b, 0x00,
	0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

type (
	// block is one member of a BGZF file, compressed or not.
	block struct {
		data  []byte
		crc32 uint32
		size  uint32
	}

	// Reader reads in parallel from a BGZF file.
	Reader struct {
		err     error
		r       io.Reader
		gz      *gzip.Reader
		p       pipeline.Pipeline
		wait    sync.WaitGroup
		done    chan struct{}
		channel chan *block
		ctx     context.Context
		cancel  func()
		data    interface{}
		index   int
		current *block
	}

	internalReader Reader
)

var blockPool = sync.Pool{New: func() interface{} {
	return &block{data: make([]byte, 0, maxBlockSize)}
}}

func (bgzf *internalReader) readBlock() (b *block, err error) {
	extra := bgzf.gz.Extra
	for i, slen := 0, 0; i+4 <= len(extra); i += 4 + slen {
		slen = int(binary.LittleEndian.Uint16(extra[i+2 : i+4]))
		if extra[i] != 'B' || extra[i+1] != 'C' || slen != 2 || i+6 > len(extra) {
			continue
		}
		bsize := int(binary.LittleEndian.Uint16(extra[i+4 : i+6]))
		dataSize := bsize - len(extra) - 19
		if dataSize < 0 {
			return nil, fmt.Errorf("invalid BGZF block size %v", bsize+1)
		}
		b = blockPool.Get().(*block)
		b.data = b.data[:dataSize]
		if _, err = io.ReadFull(bgzf.r, b.data); err != nil {
			return
		}
		var tail [8]byte
		if _, err = io.ReadFull(bgzf.r, tail[:]); err != nil {
			return
		}
		b.crc32 = binary.LittleEndian.Uint32(tail[0:4])
		b.size = binary.LittleEndian.Uint32(tail[4:8])
		if b.size > maxBlockSize {
			return nil, fmt.Errorf("invalid BGZF block: %v uncompressed bytes", b.size)
		}
		err = bgzf.gz.Reset(bgzf.r)
		if err == io.EOF {
			if len(b.data) != 2 || b.data[0] != 3 || b.data[1] != 0 || b.crc32 != 0 || b.size != 0 {
				err = errors.New("invalid BGZF file: does not end in proper EOF marker")
			}
		} else if err != nil {
			err = fmt.Errorf("%v in readBlock", err)
		}
		return
	}
	return nil, errors.New("missing BC extra subfield in BGZF header")
}

// Err implements the corresponding method of pipeline.Source
func (bgzf *internalReader) Err() error {
	if bgzf.err != io.EOF {
		return bgzf.err
	}
	return nil
}

// Prepare implements the corresponding method of pipeline.Source
func (bgzf *internalReader) Prepare(_ context.Context) (size int) {
	return -1
}

// Fetch implements the corresponding method of pipeline.Source
func (bgzf *internalReader) Fetch(size int) (fetched int) {
	if bgzf.err != nil || bgzf.ctx.Err() != nil {
		return 0
	}
	b, err := bgzf.readBlock()
	if err != nil {
		bgzf.err = err
		bgzf.data = nil
		if err == io.EOF && b != nil {
			// the EOF marker itself carries no data
			blockPool.Put(b)
		}
		return 0
	}
	bgzf.data = b
	return 1
}

// Data implements the corresponding method of pipeline.Source
func (bgzf *internalReader) Data() interface{} {
	return bgzf.data
}

var flateReaderPool sync.Pool

func (bgzf *Reader) inflate(b *block) *block {
	blockReader := bytes.NewReader(b.data)
	var flateReader io.ReadCloser
	if pooled := flateReaderPool.Get(); pooled == nil {
		flateReader = flate.NewReader(blockReader)
	} else {
		flateReader = pooled.(io.ReadCloser)
		if err := flateReader.(flate.Resetter).Reset(blockReader, nil); err != nil {
			flateReader = flate.NewReader(blockReader)
		}
	}
	uncompressed := blockPool.Get().(*block)
	uncompressed.data = uncompressed.data[:int(b.size)]
	if _, err := io.ReadFull(flateReader, uncompressed.data); err == io.EOF {
		bgzf.p.SetErr(io.ErrUnexpectedEOF)
	} else if err != nil {
		bgzf.p.SetErr(err)
	} else if crc32.ChecksumIEEE(uncompressed.data) != b.crc32 {
		bgzf.p.SetErr(errors.New("invalid CRC-32 value for a data block in a BGZF file"))
	}
	if err := flateReader.Close(); err != nil {
		bgzf.p.SetErr(err)
	}
	flateReaderPool.Put(flateReader)
	blockPool.Put(b)
	return uncompressed
}

// NewReader returns a Reader for the given flate.Reader. At most
// threads blocks are inflated concurrently; threads <= 0 means
// GOMAXPROCS.
func NewReader(r flate.Reader, threads int) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%v in bgzf.NewReader", err)
	}
	if threads < 0 {
		threads = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	bgzf := &Reader{
		r:       r,
		gz:      gz,
		done:    make(chan struct{}),
		channel: make(chan *block, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	bgzf.p.Source((*internalReader)(bgzf))
	bgzf.p.Add(pipeline.LimitedPar(threads, pipeline.Receive(func(_ int, data interface{}) interface{} {
		return bgzf.inflate(data.(*block))
	})), pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
		select {
		case <-bgzf.ctx.Done():
		case bgzf.channel <- data.(*block):
		}
		return nil
	})))
	bgzf.wait.Add(1)
	go func() {
		defer bgzf.wait.Done()
		defer close(bgzf.done)
		bgzf.p.RunWithContext(bgzf.ctx, bgzf.cancel)
	}()
	return bgzf, nil
}

// Close implements the corresponding method of io.Closer. It stops
// reading and inflating blocks that have not been consumed yet.
func (bgzf *Reader) Close() error {
	bgzf.cancel()
	bgzf.wait.Wait()
	if err := bgzf.gz.Close(); err != nil {
		return err
	}
	if err := bgzf.p.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// fetchBlock waits for the next inflated block. Once the pipeline has
// stopped, only a block still buffered in the channel can be fetched.
func (bgzf *Reader) fetchBlock() (err error) {
	var b *block
	select {
	case b = <-bgzf.channel:
	case <-bgzf.done:
		if err := bgzf.p.Err(); err != nil {
			return err
		}
		select {
		case b = <-bgzf.channel:
		default:
			return io.EOF
		}
	}
	bgzf.index = 0
	bgzf.current = b
	return nil
}

// Read implements the corresponding method of io.Reader
func (bgzf *Reader) Read(p []byte) (n int, err error) {
	for bgzf.current == nil || bgzf.index == len(bgzf.current.data) {
		if bgzf.current != nil {
			blockPool.Put(bgzf.current)
			bgzf.current = nil
		}
		if err = bgzf.fetchBlock(); err != nil {
			return
		}
	}
	n = copy(p, bgzf.current.data[bgzf.index:])
	bgzf.index += n
	return
}

type (
	// Writer writes in parallel to a BGZF file.
	Writer struct {
		w       io.Writer
		level   int
		p       pipeline.Pipeline
		wait    sync.WaitGroup
		done    chan struct{}
		current *block
		channel chan *block
		data    interface{}
	}

	internalWriter Writer
)

func (*internalWriter) Err() error {
	return nil
}

func (writer *internalWriter) Prepare(_ context.Context) (size int) {
	return -1
}

func (writer *internalWriter) Fetch(size int) (fetched int) {
	if b, ok := <-writer.channel; ok {
		writer.data = b
		return 1
	}
	writer.data = nil
	return 0
}

func (writer *internalWriter) Data() interface{} {
	return writer.data
}

var flateWriterPools sync.Map

func flateWriterPool(level int) *sync.Pool {
	pool, _ := flateWriterPools.LoadOrStore(level, new(sync.Pool))
	return pool.(*sync.Pool)
}

var memberHeader = []byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00,
	0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
	0x42, 0x43, 0x02, 0x00, 0x00, 0x00,
}

func (bgzf *Writer) deflate(b *block) *block {
	gzBlock := blockPool.Get().(*block)
	gzBuf := bytes.NewBuffer(gzBlock.data[:0])
	gzBuf.Write(memberHeader)

	pool := flateWriterPool(bgzf.level)
	var flateWriter *flate.Writer
	if pooled := pool.Get(); pooled != nil {
		flateWriter = pooled.(*flate.Writer)
		flateWriter.Reset(gzBuf)
	} else {
		var err error
		if flateWriter, err = flate.NewWriter(gzBuf, bgzf.level); err != nil {
			bgzf.p.SetErr(err)
			return gzBlock
		}
	}
	if _, err := flateWriter.Write(b.data); err != nil {
		bgzf.p.SetErr(err)
	} else if err := flateWriter.Close(); err != nil {
		bgzf.p.SetErr(err)
	}
	pool.Put(flateWriter)

	var tail [8]byte
	binary.LittleEndian.PutUint32(tail[0:4], crc32.ChecksumIEEE(b.data))
	binary.LittleEndian.PutUint32(tail[4:8], uint32(len(b.data)))
	gzBuf.Write(tail[:])
	gzBlock.data = gzBuf.Bytes()
	if len(gzBlock.data) > maxBlockSize {
		bgzf.p.SetErr(fmt.Errorf("BGZF block of %v bytes exceeds maximum block size", len(gzBlock.data)))
	}
	binary.LittleEndian.PutUint16(gzBlock.data[16:18], uint16(len(gzBlock.data)-1))
	b.data = b.data[:0]
	blockPool.Put(b)
	return gzBlock
}

// NewWriter returns a Writer for the given io.Writer. At most threads
// blocks are compressed concurrently; threads <= 0 means GOMAXPROCS.
//
// Levels range from 1 (BestSpeed) to 9 (BestCompression); higher
// levels typically run slower but compress more. Level 0
// (NoCompression) does not attempt any compression; it only adds the
// necessary DEFLATE framing. Level -1 (DefaultCompression) uses the
// default compression level. Level -2 (HuffmanOnly) uses Huffman
// compression only.
func NewWriter(w io.Writer, threads, level int) (*Writer, error) {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, fmt.Errorf("invalid compression level %v", level)
	}
	if threads < 0 {
		threads = 0
	}
	bgzf := &Writer{
		w:       w,
		level:   level,
		done:    make(chan struct{}),
		current: blockPool.Get().(*block),
		channel: make(chan *block, 1),
	}
	bgzf.current.data = bgzf.current.data[:0]
	bgzf.p.Source((*internalWriter)(bgzf))
	bgzf.p.Add(pipeline.LimitedPar(threads, pipeline.Receive(func(_ int, data interface{}) interface{} {
		return bgzf.deflate(data.(*block))
	})), pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
		gzBlock := data.(*block)
		if _, err := w.Write(gzBlock.data); err != nil {
			bgzf.p.SetErr(err)
		}
		gzBlock.data = gzBlock.data[:0]
		blockPool.Put(gzBlock)
		return nil
	})))
	bgzf.wait.Add(1)
	go func() {
		defer bgzf.wait.Done()
		defer close(bgzf.done)
		bgzf.p.Run()
	}()
	return bgzf, nil
}

func (bgzf *Writer) sendBlock() error {
	select {
	case bgzf.channel <- bgzf.current:
		bgzf.current = nil
		return nil
	case <-bgzf.done:
		if err := bgzf.p.Err(); err != nil {
			return err
		}
		return errors.New("BGZF writer stopped unexpectedly")
	}
}

// Close flushes any pending data and writes the BGZF EOF marker. It
// does not close the underlying io.Writer.
func (bgzf *Writer) Close() error {
	if bgzf.current != nil && len(bgzf.current.data) > 0 {
		if err := bgzf.sendBlock(); err != nil {
			return err
		}
	}
	close(bgzf.channel)
	bgzf.wait.Wait()
	if err := bgzf.p.Err(); err != nil {
		return err
	}
	_, err := bgzf.w.Write(bgzfEOF)
	return err
}

// Write implements the corresponding method of io.Writer.
func (bgzf *Writer) Write(p []byte) (n int, err error) {
	for len(p) > 0 {
		if bgzf.current == nil {
			bgzf.current = blockPool.Get().(*block)
			bgzf.current.data = bgzf.current.data[:0]
		}
		index := len(bgzf.current.data)
		k := copy(bgzf.current.data[index:maxDataSize], p)
		bgzf.current.data = bgzf.current.data[:index+k]
		p = p[k:]
		n += k
		if len(bgzf.current.data) == maxDataSize {
			if err = bgzf.sendBlock(); err != nil {
				return
			}
		}
	}
	return
}
