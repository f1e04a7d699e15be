package interfaces

// -----------------------------------------------------------------------------
// INotifier pushes human-readable alerts to operators. Delivery is
// best-effort everywhere: callers log failures and move on.
// -----------------------------------------------------------------------------

type INotifier interface {

	// -----------------------------------------------------------------------------

	// Notify sends one message to the configured channel.
	Notify(message string) error
}

// -----------------------------------------------------------------------------
// IReporter records terminal retry dispositions (stale, exhausted) so they
// survive for later review even when notification fails.
// -----------------------------------------------------------------------------

type IReporter interface {

	// -----------------------------------------------------------------------------

	// CreateReport stores one incident record.
	CreateReport(reportType string, details string) error
}
