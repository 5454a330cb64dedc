package client

import (
	"math"
	"time"
)

// backoffDelay computes the reconnect delay for the given attempt:
// jitter-free doubling from the initial delay, capped at max.
func backoffDelay(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}
