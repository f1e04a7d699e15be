package interfaces

import "signal-relay/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveSignal inserts a new BUY/SELL signal and returns its id.
	SaveSignal(sig *models.MSignal) (int64, error)

	// -----------------------------------------------------------------------------

	// CloseSignal marks an open signal closed at the given price and returns
	// the realized profit/loss. Returns storage.ErrSignalNotFound when the
	// id is unknown or already closed.
	CloseSignal(id int64, closePrice float64) (float64, error)

	// -----------------------------------------------------------------------------

	// GetTodaySignalCount counts signals accepted today (UTC), all actions.
	GetTodaySignalCount() (int, error)

	// -----------------------------------------------------------------------------

	// GetTodayStats aggregates today's signals for /stats and notifications.
	GetTodayStats() (*models.MDailyStats, error)

	// -----------------------------------------------------------------------------

	// GetBotActive reads the persisted pause flag. A missing row counts as
	// active.
	GetBotActive() (bool, error)

	// -----------------------------------------------------------------------------

	// SetBotActive persists the pause flag (admin pause/resume).
	SetBotActive(active bool) error

	// -----------------------------------------------------------------------------

	// CreateReport records an operational incident (stale signal, retry
	// failure) for later review.
	CreateReport(reportType string, details string) error

	// -----------------------------------------------------------------------------

	// GetRecentReports returns the newest reports, newest first.
	GetRecentReports(limit int) ([]models.MReport, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
