package engine

import (
	"golang.org/x/time/rate"

	"github.com/bamsammich/arcfs/internal/cancel"
)

// NewBWLimiter creates a rate.Limiter that caps aggregate throughput to
// bytesPerSec. The burst is set to 1 MB to allow natural block-size chunks
// through without unnecessary blocking on small reads.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20 // 1 MB
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// waitBandwidth blocks until n bytes may pass limiter. Blocks larger than
// the burst are admitted in burst-sized steps. Cancelling cs interrupts the
// wait with cancel.ErrCancelled.
func waitBandwidth(cs *cancel.State, limiter *rate.Limiter, n int) error {
	if limiter == nil {
		return nil
	}
	for n > 0 {
		step := min(n, limiter.Burst())
		if err := limiter.WaitN(cs.Context(), step); err != nil {
			if cerr := cs.Test(); cerr != nil {
				return cerr
			}
			return err
		}
		n -= step
	}
	return nil
}
