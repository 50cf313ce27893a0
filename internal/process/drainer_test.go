package process

import (
	"context"
	"strings"
	"testing"
	"time"
)

func collectChunks(t *testing.T, input string, maxLine, maxTotal int64) []Chunk {
	t.Helper()
	d := NewDrainer(StreamStdout, maxLine)
	budget := NewByteBudget(maxTotal)
	out := make(chan Chunk, 1024)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d.Run(ctx, strings.NewReader(input), out, budget)
	close(out)

	var chunks []Chunk
	for c := range out {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestDrainerSplitsLines(t *testing.T) {
	chunks := collectChunks(t, "one\ntwo\nthree\n", 1024, 1024*1024)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Data != "one\n" || chunks[1].Data != "two\n" || chunks[2].Data != "three\n" {
		t.Fatalf("unexpected chunk contents: %+v", chunks)
	}
}

func TestDrainerSequenceIncreasing(t *testing.T) {
	chunks := collectChunks(t, "a\nb\nc\nd\n", 1024, 1024*1024)
	for i, c := range chunks {
		if c.Seq != int64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, c.Seq)
		}
	}
}

func TestDrainerTruncatesOversizedLine(t *testing.T) {
	long := strings.Repeat("x", 20) + "\n"
	chunks := collectChunks(t, long, 10, 1024*1024)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !chunks[0].Truncated {
		t.Fatal("expected truncated flag set")
	}
	if len(chunks[0].Data) != 10 {
		t.Fatalf("expected exactly max_line_bytes bytes, got %d", len(chunks[0].Data))
	}
}

func TestDrainerResyncsAfterTruncation(t *testing.T) {
	input := strings.Repeat("x", 20) + "\n" + "next\n"
	chunks := collectChunks(t, input, 10, 1024*1024)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[1].Data != "next\n" || chunks[1].Truncated {
		t.Fatalf("expected clean resync chunk, got %+v", chunks[1])
	}
}

func TestByteBudgetDropsExcess(t *testing.T) {
	b := NewByteBudget(10)
	accepted, dropped := b.Consume(6)
	if accepted != 6 || dropped != 0 {
		t.Fatalf("first consume: got (%d, %d)", accepted, dropped)
	}
	accepted, dropped = b.Consume(6)
	if accepted != 4 || dropped != 2 {
		t.Fatalf("second consume: got (%d, %d), want (4, 2)", accepted, dropped)
	}
	if !b.JustExceeded() {
		t.Fatal("expected JustExceeded true on first call after exhaustion")
	}
	if b.JustExceeded() {
		t.Fatal("expected JustExceeded false on subsequent calls")
	}
	if b.Dropped() != 2 {
		t.Fatalf("expected 2 bytes dropped, got %d", b.Dropped())
	}
}
