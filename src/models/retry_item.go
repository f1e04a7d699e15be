package models

import "time"

// MRetryItem wraps a signal envelope that failed processing and is waiting
// for another attempt. EnqueuedAt is the time of the original failure, not
// of the last attempt, so staleness measures total time in the queue.
type MRetryItem struct {
	Data       MEnvelope
	EnqueuedAt time.Time
	Attempts   int
}

// Age returns how long the item has been sitting in the queue.
func (i *MRetryItem) Age() time.Duration {
	return time.Since(i.EnqueuedAt)
}
