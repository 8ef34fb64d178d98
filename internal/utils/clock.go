// internal/utils/clock.go
package utils

import (
	"sync/atomic"
	"time"
)

var lastNanos atomic.Int64

// MonotonicNanos returns wall-clock nanoseconds that never repeat or go
// backwards within this process.
func MonotonicNanos() int64 {
	for {
		now := time.Now().UnixNano()
		last := lastNanos.Load()
		if now <= last {
			now = last + 1
		}
		if lastNanos.CompareAndSwap(last, now) {
			return now
		}
	}
}
