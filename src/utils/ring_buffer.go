package utils

import (
	"signal-relay/src/models"
)

// -----------------------------------------------------------------------------
// EventRing is a fixed-size circular buffer of signal events, used to replay
// recent history to dashboards when they connect.
// True ring buffer - no resizing allowed!
//
// Not safe for concurrent use on its own; the hub owns it from a single
// goroutine.
// -----------------------------------------------------------------------------

type EventRing struct {
	data     []*models.MSignalEvent
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewEventRing creates a new buffer with fixed capacity
func NewEventRing(capacity int) *EventRing {
	if capacity <= 0 {
		capacity = 50 // Enough history for a dashboard that just connected
	}

	return &EventRing{
		data:     make([]*models.MSignalEvent, capacity),
		capacity: capacity,
		index:    0,
		size:     0,
	}
}

// -----------------------------------------------------------------------------

// Append adds one event, overwriting the oldest once full
func (rb *EventRing) Append(event *models.MSignalEvent) {
	rb.data[rb.index] = event
	rb.index = (rb.index + 1) % rb.capacity

	// Update size (never exceeds capacity)
	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// GetLatest returns the n newest events, oldest of them first
func (rb *EventRing) GetLatest(n int) []*models.MSignalEvent {
	if rb.size == 0 || n <= 0 {
		return []*models.MSignalEvent{}
	}

	count := n
	if n > rb.size {
		count = rb.size
	}

	result := make([]*models.MSignalEvent, count)

	// Latest data sits just behind the write index
	startIdx := (rb.index - count + rb.capacity) % rb.capacity

	for i := 0; i < count; i++ {
		idx := (startIdx + i) % rb.capacity
		result[i] = rb.data[idx]
	}

	return result
}

// -----------------------------------------------------------------------------

// GetAll returns all events in insertion order (oldest to newest)
func (rb *EventRing) GetAll() []*models.MSignalEvent {
	if rb.size == 0 {
		return []*models.MSignalEvent{}
	}

	result := make([]*models.MSignalEvent, rb.size)

	// Calculate start index (oldest element)
	var startIdx int
	if rb.size == rb.capacity {
		// Buffer is full, oldest is at current index (wrap-around)
		startIdx = rb.index
	} else {
		// Buffer not full, oldest is at index 0
		startIdx = 0
	}

	for i := 0; i < rb.size; i++ {
		idx := (startIdx + i) % rb.capacity
		result[i] = rb.data[idx]
	}

	return result
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *EventRing) Size() int {
	return rb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (rb *EventRing) Capacity() int {
	return rb.capacity
}

// -----------------------------------------------------------------------------

// IsFull returns whether buffer is full
func (rb *EventRing) IsFull() bool {
	return rb.size == rb.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the buffer
func (rb *EventRing) Clear() {
	rb.index = 0
	rb.size = 0
}
