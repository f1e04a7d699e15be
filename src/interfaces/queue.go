package interfaces

import "signal-relay/src/models"

// -----------------------------------------------------------------------------
// IRetryQueue is the write side of the retry machinery. Producers hand over
// envelopes that failed transient processing; a background worker owns the
// re-attempts.
// -----------------------------------------------------------------------------

type IRetryQueue interface {

	// -----------------------------------------------------------------------------

	// Enqueue adds a failed signal for later re-processing. Returns false
	// when the queue is full, the signal is then lost and the caller must
	// tell the producer.
	Enqueue(env models.MEnvelope) bool

	// -----------------------------------------------------------------------------

	// Depth reports how many items are currently waiting.
	Depth() int
}

// -----------------------------------------------------------------------------
// IRetryExecutor re-runs a single failed signal. Implemented by the signal
// service; a nil error means the item is done (processed or deliberately
// dropped because conditions changed).
// -----------------------------------------------------------------------------

type IRetryExecutor interface {

	// -----------------------------------------------------------------------------

	Retry(env models.MEnvelope) error
}
