package timing

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreLookupEmpty(t *testing.T) {
	s := NewMemoryStore(Options{SamplesCap: 10})
	est, err := s.Lookup(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if est != nil {
		t.Fatal("expected nil estimate for unknown fingerprint")
	}
}

func TestMemoryStoreRecordAndLookup(t *testing.T) {
	s := NewMemoryStore(Options{SamplesCap: 10, StallFraction: 0.3, MinStallS: 1, MaxStallS: 100})
	ctx := context.Background()

	for _, d := range []float64{1, 2, 3} {
		if err := s.Record(ctx, "fp1", "shell", d); err != nil {
			t.Fatal(err)
		}
	}

	est, err := s.Lookup(ctx, "fp1")
	if err != nil {
		t.Fatal(err)
	}
	if est == nil {
		t.Fatal("expected non-nil estimate")
	}
	if est.PredictedTotalS != 2 {
		t.Fatalf("expected mean of 1,2,3 = 2, got %v", est.PredictedTotalS)
	}
}

func TestMemoryStoreTrimsSamplesCap(t *testing.T) {
	s := NewMemoryStore(Options{SamplesCap: 3})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := s.Record(ctx, "fp", "shell", float64(i)); err != nil {
			t.Fatal(err)
		}
	}
	rec := s.records["fp"]
	if len(rec.Samples) != 3 {
		t.Fatalf("expected samples trimmed to cap 3, got %d", len(rec.Samples))
	}
	if rec.Samples[0] != 7 {
		t.Fatalf("expected oldest samples dropped, got %v", rec.Samples)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	s := NewMemoryStore(Options{SamplesCap: 10, TTL: time.Millisecond})
	ctx := context.Background()
	if err := s.Record(ctx, "fp", "shell", 1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	est, err := s.Lookup(ctx, "fp")
	if err != nil {
		t.Fatal(err)
	}
	if est != nil {
		t.Fatal("expected expired record to look up as nil")
	}
}
