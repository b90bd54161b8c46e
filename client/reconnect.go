package client

import "time"

// backoffDelay computes the delay before reconnect attempt `attempt`
// (1-indexed): base * 1.5^(attempt-1). With the default 5s base this
// produces the sequence 5000ms, 7500ms, 11250ms, ...
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := float64(base)
	for i := 1; i < attempt; i++ {
		delay *= 1.5
	}
	return time.Duration(delay)
}
