package interfaces

import "signal-relay/src/models"

// -----------------------------------------------------------------------------
// ISession is the write side of one authenticated producer connection, as
// seen by whoever needs to push a frame back to it (the processor, the
// relay's correlation map).
// -----------------------------------------------------------------------------

type ISession interface {

	// -----------------------------------------------------------------------------

	// WriteMessage frames and sends one envelope. Safe for concurrent use.
	WriteMessage(v interface{}) error

	// -----------------------------------------------------------------------------

	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string
}

// -----------------------------------------------------------------------------
// ISignalProcessor receives every non-heartbeat envelope an authenticated
// session reads.
// -----------------------------------------------------------------------------

type ISignalProcessor interface {

	// -----------------------------------------------------------------------------

	// Process handles one decoded envelope and returns the response to send
	// back, or nil when the response will arrive asynchronously (the relay
	// answers through the correlation map once upstream replies).
	Process(sess ISession, env models.MEnvelope) *models.MResponse
}
