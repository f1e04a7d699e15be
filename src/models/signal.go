package models

import "time"

// MSignal represents one stored trade signal. A zero value in SL/TP/ATR
// means the EA did not set that level.
type MSignal struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Action         string    `json:"action"`
	Symbol         string    `json:"symbol"`
	Price          float64   `json:"price"`
	SL             float64   `json:"sl"`
	TP1            float64   `json:"tp1"`
	TP2            float64   `json:"tp2"`
	TP3            float64   `json:"tp3"`
	ATR            float64   `json:"atr"`
	Closed         bool      `json:"closed"`
	ClosePrice     float64   `json:"close_price"`
	CloseTimestamp time.Time `json:"close_timestamp"`
	ProfitLoss     float64   `json:"profit_loss"`
}

// MDailyStats aggregates today's signals for /stats and the Telegram digest.
type MDailyStats struct {
	TotalSignals int     `json:"total_signals"`
	Buys         int     `json:"buys"`
	Sells        int     `json:"sells"`
	Closed       int     `json:"closed"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	TotalPL      float64 `json:"total_pl"`
}

// MReport is one operational incident record (stale signal, retry failure).
type MReport struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ReportType string    `json:"report_type"`
	Details    string    `json:"details"`
	IsRead     bool      `json:"is_read"`
}
