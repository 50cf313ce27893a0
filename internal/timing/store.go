// Package timing implements the Timing Store: a persistent key→duration-history map
// keyed by command fingerprint, used to predict total/stall timeout budgets.
package timing

import (
	"context"
	"time"

	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

// Store is the Timing Store's contract. Backends return I/O errors from Lookup and
// Record to their caller; the Session logs such an error and proceeds with the
// configured defaults, so a backend failure never reaches a client.
type Store interface {
	// Lookup returns a predicted estimate for fingerprint, or nil if there is no
	// usable history yet.
	Lookup(ctx context.Context, fingerprint string) (*v1.Estimate, error)

	// Record appends one observed duration for fingerprint.
	Record(ctx context.Context, fingerprint, commandClass string, durationS float64) error

	// Close releases any resources held by the backend.
	Close() error
}

// Options configures the shared estimate/TTL logic used by every backend.
type Options struct {
	TTL             time.Duration
	SamplesCap      int
	StallFraction   float64
	MinStallS       float64
	MaxStallS       float64
}

// DefaultOptions mirrors the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		TTL:           7 * 24 * time.Hour,
		SamplesCap:    100,
		StallFraction: 0.3,
		MinStallS:     60,
		MaxStallS:     600,
	}
}

// Estimate derives a (total, stall) prediction from a sample set, per §4.2: the 90th
// percentile once there are at least 5 samples, otherwise the arithmetic mean.
func (o Options) Estimate(samples []float64) *v1.Estimate {
	if len(samples) == 0 {
		return nil
	}

	var total float64
	if len(samples) >= 5 {
		total = percentile90(samples)
	} else {
		total = mean(samples)
	}

	stall := o.StallFraction * total
	if stall < o.MinStallS {
		stall = o.MinStallS
	}
	if stall > o.MaxStallS {
		stall = o.MaxStallS
	}

	return &v1.Estimate{PredictedTotalS: total, PredictedStallS: stall}
}
