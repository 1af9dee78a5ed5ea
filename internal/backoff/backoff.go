// Package backoff computes retry delays shared by the outbox dispatcher and
// the reconciliation consumer.
package backoff

import (
	"math/rand"
	"time"
)

// Delay returns an exponential delay for the given 1-based attempt, with up
// to 25% jitter added, capped at max.
func Delay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d/4) + 1))
	d += jitter
	if d > max {
		d = max
	}
	return d
}
