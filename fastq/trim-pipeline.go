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
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/exascience/pargo/pipeline"
	"github.com/exascience/turbotrim/internal"
)

// DefaultBatchSize is the number of pairs per batch when
// Options.BatchSize is not set.
const DefaultBatchSize = 4096

// Options control the concurrency of RunPipeline.
type Options struct {
	// Workers is the number of trim workers. If < 1, GOMAXPROCS is used.
	Workers int

	// BatchSize is the number of pairs per batch.
	BatchSize int

	// QueueDepth bounds the number of batches between reading and
	// writing. The reader blocks while QueueDepth batches are in
	// flight, so memory use grows with QueueDepth * BatchSize. If < 1,
	// twice the number of workers is used.
	QueueDepth int

	// PreserveOrder writes pairs in input order. Otherwise batches are
	// written in the order in which trim workers complete them.
	PreserveOrder bool
}

// Stats summarizes a run of RunPipeline.
type Stats struct {
	Pairs        int
	BasesRemoved int64

	// MaxInFlight is the largest number of batches that were read but
	// not yet written at the same time.
	MaxInFlight int

	Elapsed time.Duration
}

type (
	trimmedBatch struct {
		pairs   Batch
		removed int
	}

	formattedBatch struct {
		first, n int
		mates    [2][]byte
		removed  int
	}
)

func recoverWorker(p *pipeline.Pipeline, stage string) {
	if x := recover(); x != nil {
		p.SetErr(fmt.Errorf("%v worker failed: %v", stage, x))
	}
}

// TrimStage returns a pargo pipeline.Filter that trims the pairs of
// the batches it receives according to spec. A panic while trimming is
// reported as an error of the pipeline.
func TrimStage(spec TrimSpec) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) (result interface{}) {
			result = (*trimmedBatch)(nil)
			defer recoverWorker(p, "trim")
			batch := data.(Batch)
			return &trimmedBatch{pairs: batch, removed: spec.TrimBatch(batch)}
		}
		return
	}
}

// FormatPairs returns a pargo pipeline.Filter that formats trimmed
// batches into one block of FASTQ text per mate.
func FormatPairs() pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) (result interface{}) {
			result = (*formattedBatch)(nil)
			defer recoverWorker(p, "format")
			trimmed, _ := data.(*trimmedBatch)
			if trimmed == nil || len(trimmed.pairs) == 0 {
				return
			}
			formatted := &formattedBatch{
				first:   trimmed.pairs[0].Ordinal,
				n:       len(trimmed.pairs),
				removed: trimmed.removed,
			}
			mate1, mate2 := internal.ReserveByteBuffer(), internal.ReserveByteBuffer()
			for i := range trimmed.pairs {
				pair := &trimmed.pairs[i]
				mate1 = pair.A.Format(mate1)
				mate2 = pair.B.Format(mate2)
			}
			formatted.mates = [2][]byte{mate1, mate2}
			return formatted
		}
		return
	}
}

// boundedSource limits the number of batches between the reader and
// the sink node. Fetch takes a token for every batch, and the sink node
// returns it once the batch is written.
type boundedSource struct {
	*PairedReader
	ctx      context.Context
	tokens   chan struct{}
	inFlight int32
	peak     int
}

func newBoundedSource(input *PairedReader, depth int) *boundedSource {
	return &boundedSource{PairedReader: input, ctx: context.Background(), tokens: make(chan struct{}, depth)}
}

// Prepare implements the method of the pipeline.Source interface.
func (src *boundedSource) Prepare(ctx context.Context) (size int) {
	src.ctx = ctx
	return src.PairedReader.Prepare(ctx)
}

// Fetch implements the method of the pipeline.Source interface. It
// blocks while the maximum number of batches is in flight.
func (src *boundedSource) Fetch(size int) (fetched int) {
	select {
	case src.tokens <- struct{}{}:
	case <-src.ctx.Done():
		return 0
	}
	if fetched = src.PairedReader.Fetch(size); fetched == 0 {
		<-src.tokens
		return 0
	}
	if n := int(atomic.AddInt32(&src.inFlight, 1)); n > src.peak {
		src.peak = n
	}
	return fetched
}

func (src *boundedSource) release() {
	atomic.AddInt32(&src.inFlight, -1)
	select {
	case <-src.tokens:
	default:
	}
}

// sinkNode writes formatted batches to a PairSink. Once stopped, it
// ignores all further batches, so that its state can be read and its
// PairSink closed even if pargo still delivers batches after a failure.
type sinkNode struct {
	sync.Mutex
	stopped bool
	out     PairSink
	ledger  *PairingLedger
	removed int64
	source  *boundedSource
}

func (node *sinkNode) write(p *pipeline.Pipeline, formatted *formattedBatch) {
	defer node.source.release()
	node.Lock()
	defer node.Unlock()
	if node.stopped || formatted == nil {
		return
	}
	defer func() {
		internal.ReleaseByteBuffer(formatted.mates[0])
		internal.ReleaseByteBuffer(formatted.mates[1])
	}()
	if internal.PedanticMode {
		for i, mate := range formatted.mates {
			if lines := bytes.Count(mate, []byte{'\n'}); lines != 4*formatted.n {
				p.SetErr(fmt.Errorf("mate %v of pairs %v to %v formatted to %v lines", i+1, formatted.first+1, formatted.first+formatted.n, lines))
				return
			}
		}
	}
	if err := node.out.WriteMates(formatted.mates[0], formatted.mates[1]); err != nil {
		p.SetErr(fmt.Errorf("%v, while writing FASTQ records to output", err))
		return
	}
	for ordinal := formatted.first; ordinal < formatted.first+formatted.n; ordinal++ {
		if err := node.ledger.Mark(ordinal); err != nil {
			p.SetErr(err)
			return
		}
	}
	node.removed += int64(formatted.removed)
}

// stop waits for a write in progress and disables all further writes.
func (node *sinkNode) stop() {
	node.Lock()
	node.stopped = true
	node.Unlock()
}

// addSink adds a sequential node to the pipeline that writes formatted
// batches. With preserveOrder, batches are written in source order,
// otherwise in arrival order.
func addSink(p *pipeline.Pipeline, node *sinkNode, preserveOrder bool) {
	var nodeCons func(...pipeline.Filter) pipeline.Node
	if preserveOrder {
		nodeCons = pipeline.StrictOrd
	} else {
		nodeCons = pipeline.Seq
	}
	p.Add(nodeCons(pipeline.Receive(func(_ int, data interface{}) interface{} {
		formatted, _ := data.(*formattedBatch)
		node.write(p, formatted)
		return nil
	})))
}

// RunPipeline reads all pairs from input, trims them according to spec,
// and writes them to output. It takes ownership of input and output and
// closes both before returning, also when the pipeline fails.
//
// Reading, trimming and writing run concurrently. The first error of
// any stage stops the pipeline and is returned; otherwise RunPipeline
// checks that each pair read was written exactly once.
func RunPipeline(input *PairedReader, output PairSink, spec TrimSpec, opts Options) (stats Stats, err error) {
	start := time.Now()
	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := opts.QueueDepth
	if depth < 1 {
		depth = 2 * workers
	}

	source := newBoundedSource(input, depth)
	node := &sinkNode{out: output, ledger: NewPairingLedger(), source: source}

	var p pipeline.Pipeline
	p.Source(source)
	p.SetVariableBatchSize(batchSize, batchSize)
	p.Add(pipeline.LimitedPar(workers, TrimStage(spec), FormatPairs()))
	addSink(&p, node, opts.PreserveOrder)
	p.Run()
	node.stop()

	err = p.Err()
	if err == nil {
		err = node.ledger.Verify(input.Pairs())
	}
	if cerr := output.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if cerr := input.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%v, while closing FASTQ input", cerr)
	}
	stats.Pairs = node.ledger.Count()
	stats.BasesRemoved = node.removed
	stats.MaxInFlight = source.peak
	stats.Elapsed = time.Since(start)
	return stats, err
}
