package timing

import "testing"

func TestMean(t *testing.T) {
	if got := mean([]float64{1, 2, 3}); got != 2 {
		t.Fatalf("mean = %v, want 2", got)
	}
}

func TestPercentile90(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	got := percentile90(samples)
	if got < 9 || got > 9.1 {
		t.Fatalf("percentile90 = %v, want ~9.1", got)
	}
}

func TestEstimateUsesMeanBelowFiveSamples(t *testing.T) {
	opts := DefaultOptions()
	est := opts.Estimate([]float64{10, 20})
	if est == nil {
		t.Fatal("expected non-nil estimate")
	}
	if est.PredictedTotalS != 15 {
		t.Fatalf("expected mean 15, got %v", est.PredictedTotalS)
	}
}

func TestEstimateUsesPercentileAtFiveSamples(t *testing.T) {
	opts := DefaultOptions()
	samples := []float64{1, 2, 3, 4, 100}
	est := opts.Estimate(samples)
	if est == nil {
		t.Fatal("expected non-nil estimate")
	}
	if est.PredictedTotalS == mean(samples) {
		t.Fatal("expected percentile, not mean, at 5 samples")
	}
}

func TestEstimateNilForNoSamples(t *testing.T) {
	opts := DefaultOptions()
	if opts.Estimate(nil) != nil {
		t.Fatal("expected nil estimate for empty sample set")
	}
}

func TestEstimateStallClampedToBounds(t *testing.T) {
	opts := DefaultOptions()
	opts.MinStallS = 5
	opts.MaxStallS = 30
	opts.StallFraction = 0.3

	est := opts.Estimate([]float64{1000})
	if est.PredictedStallS != 30 {
		t.Fatalf("expected stall clamped to max 30, got %v", est.PredictedStallS)
	}

	est = opts.Estimate([]float64{1})
	if est.PredictedStallS != 5 {
		t.Fatalf("expected stall clamped to min 5, got %v", est.PredictedStallS)
	}
}
