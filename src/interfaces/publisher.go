package interfaces

import "signal-relay/src/models"

// -----------------------------------------------------------------------------
// IEventPublisher fans accepted signal events out to live dashboards.
// -----------------------------------------------------------------------------

type IEventPublisher interface {

	// -----------------------------------------------------------------------------

	// Publish hands one event to the hub. Never blocks the signal path.
	Publish(event *models.MSignalEvent)
}
