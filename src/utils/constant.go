package utils

// -----------------------------------------------------------------------------

// Wire-level status and control strings. These are part of the EA protocol
// contract, so changing any of them breaks deployed clients.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusQueued  = "queued"

	TypePing = "ping"
	TypePong = "pong"
)

// -----------------------------------------------------------------------------

// Trade actions after normalization. Anything else on the wire is rejected.
const (
	ActionBuy   = "BUY"
	ActionSell  = "SELL"
	ActionClose = "CLOSE"
)

// -----------------------------------------------------------------------------

// Report types written to the reports table when the retry worker gives up
// on a signal.
const (
	ReportStaleSignal  = "STALE_SIGNAL"
	ReportRetryFailure = "RETRY_FAILURE"
)
