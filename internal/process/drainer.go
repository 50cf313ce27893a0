package process

import (
	"bufio"
	"context"
	"io"
	"sync/atomic"
	"time"
)

// StreamName identifies which of a child's two streams a Chunk came from.
type StreamName string

const (
	StreamStdout StreamName = "stdout"
	StreamStderr StreamName = "stderr"
)

// Chunk is one bounded unit of output emitted by the Drainer.
type Chunk struct {
	Stream    StreamName
	Data      string
	Seq       int64
	Truncated bool
}

// Drainer concurrently reads one child stream into bounded, line-framed Chunks,
// enforcing max_line_bytes per line and a total byte budget shared across both of a
// process's streams. It never serializes behind the process's Wait — draining must run
// in parallel with Wait to avoid pipe-buffer deadlock on large output (the deadlock
// pitfall called out for the stream-draining fan-out).
type Drainer struct {
	stream      StreamName
	maxLineBytes int64

	seq      atomic.Int64
	lastByte atomic.Int64 // unix nanos of the last byte read, for stall detection
}

// NewDrainer builds a Drainer for one stream.
func NewDrainer(stream StreamName, maxLineBytes int64) *Drainer {
	d := &Drainer{stream: stream, maxLineBytes: maxLineBytes}
	d.lastByte.Store(time.Now().UnixNano())
	return d
}

// LastByteAt reports when this drainer last observed a byte, used by the Supervisor's
// stall timer.
func (d *Drainer) LastByteAt() time.Time {
	return time.Unix(0, d.lastByte.Load())
}

// Run reads r until EOF or ctx cancellation, sending each framed Chunk to out. budget
// reports remaining total-byte budget shared across both streams and accepts consumed
// bytes; it must be safe for concurrent use by the sibling stream's Drainer. Run closes
// nothing; closing r is the caller's responsibility once the child has been reaped.
func (d *Drainer) Run(ctx context.Context, r io.Reader, out chan<- Chunk, budget *ByteBudget) {
	reader := bufio.NewReaderSize(r, int(d.maxLineBytes))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, truncated, err := readBoundedLine(reader, d.maxLineBytes)
		if len(line) > 0 {
			d.lastByte.Store(time.Now().UnixNano())
			d.emit(ctx, out, line, truncated, budget)
		}
		if err != nil {
			return
		}
	}
}

func (d *Drainer) emit(ctx context.Context, out chan<- Chunk, line []byte, truncated bool, budget *ByteBudget) {
	accepted, dropped := budget.Consume(int64(len(line)))
	if accepted == 0 && dropped > 0 {
		return
	}

	chunk := Chunk{
		Stream:    d.stream,
		Data:      string(line[:accepted]),
		Seq:       d.seq.Add(1),
		Truncated: truncated || dropped > 0,
	}

	select {
	case out <- chunk:
	case <-ctx.Done():
	}
}

// readBoundedLine reads up to maxLine bytes or a trailing newline, whichever comes
// first. If the line is cut short by the bound without seeing a newline, the returned
// bool is true and the reader is advanced to (and past) the next newline before the
// next call, so framing resynchronizes on the following read.
func readBoundedLine(r *bufio.Reader, maxLine int64) ([]byte, bool, error) {
	var buf []byte
	for int64(len(buf)) < maxLine {
		b, err := r.ReadByte()
		if err != nil {
			return buf, false, err
		}
		buf = append(buf, b)
		if b == '\n' {
			return buf, false, nil
		}
	}

	// Hit the cap without a newline: flag truncated and discard until the next
	// newline so the next read starts a fresh line.
	for {
		b, err := r.ReadByte()
		if err != nil {
			return buf, true, err
		}
		if b == '\n' {
			return buf, true, nil
		}
	}
}

// ByteBudget tracks bytes_out+bytes_err against max_total_bytes across both of an
// execution's streams, counting the remainder as bytes_dropped once exhausted.
type ByteBudget struct {
	remaining atomic.Int64
	dropped   atomic.Int64
	exceeded  atomic.Bool
}

// NewByteBudget creates a budget for max bytes.
func NewByteBudget(max int64) *ByteBudget {
	b := &ByteBudget{}
	b.remaining.Store(max)
	return b
}

// Consume deducts up to n bytes from the budget, returning how many were accepted and
// how many were dropped. Once the budget is exhausted, JustExceeded reports true
// exactly once.
func (b *ByteBudget) Consume(n int64) (accepted, dropped int64) {
	for {
		rem := b.remaining.Load()
		if rem <= 0 {
			b.dropped.Add(n)
			return 0, n
		}
		if n <= rem {
			if b.remaining.CompareAndSwap(rem, rem-n) {
				return n, 0
			}
			continue
		}
		if b.remaining.CompareAndSwap(rem, 0) {
			b.dropped.Add(n - rem)
			return rem, n - rem
		}
	}
}

// JustExceeded reports true exactly once, the first time Consume exhausts the budget.
func (b *ByteBudget) JustExceeded() bool {
	if b.remaining.Load() > 0 {
		return false
	}
	return b.exceeded.CompareAndSwap(false, true)
}

// Dropped returns the total bytes dropped so far.
func (b *ByteBudget) Dropped() int64 {
	return b.dropped.Load()
}
