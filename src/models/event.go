package models

import "time"

// -----------------------------------------------------------------------------
// Live feed payload broadcast to websocket dashboards
// -----------------------------------------------------------------------------

type MSignalEvent struct {
	Type       string      `json:"type"` // "signal" or "close"
	Action     string      `json:"action"`
	Symbol     string      `json:"symbol"`
	Price      float64     `json:"price"`
	SignalID   int64       `json:"signal_id"`
	ProfitLoss float64     `json:"profit_loss,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Stats      MDailyStats `json:"stats"`
}
