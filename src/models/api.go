package models

// MResponse is the framed reply sent back over TCP for every processed
// message. SignalID is only set on success, QueueDepth only on queued acks.
type MResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	SignalID    int64  `json:"signal_id,omitempty"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
	QueueDepth  int    `json:"queue_depth,omitempty"`
}

// MSignalRequest is the POST /signal body. Same fields the EA sends over
// TCP, plus the secret since HTTP has no session handshake.
type MSignalRequest struct {
	SecretKey    string  `json:"secret_key" binding:"required"`
	Action       string  `json:"action" binding:"required"`
	Symbol       string  `json:"symbol" binding:"required"`
	Price        float64 `json:"price" binding:"required,gt=0"`
	SL           float64 `json:"sl"`
	TP1          float64 `json:"tp1"`
	TP2          float64 `json:"tp2"`
	TP3          float64 `json:"tp3"`
	ATR          float64 `json:"atr"`
	OpenSignalID int64   `json:"open_signal_id"`
	ClientMsgID  string  `json:"client_msg_id"`
}

// MWebhookResponse is the POST /signal reply, the TCP response shape plus
// today's running count.
type MWebhookResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	SignalID     int64  `json:"signal_id,omitempty"`
	SignalsToday int    `json:"signals_today"`
}

// MAdminRequest carries the shared secret for pause/resume calls.
type MAdminRequest struct {
	SecretKey string `json:"secret_key" binding:"required"`
}

type MHealthResponse struct {
	Status    string `json:"status"`
	BotActive bool   `json:"bot_active"`
	Timestamp string `json:"timestamp"`
}

type MStatsResponse struct {
	Date      string       `json:"date"`
	Stats     MDailyStats  `json:"stats"`
	BotActive bool         `json:"bot_active"`
	Limits    MStatsLimits `json:"limits"`
}

type MStatsLimits struct {
	MaxSignalsPerDay         int `json:"max_signals_per_day"`
	MinSecondsBetweenSignals int `json:"min_seconds_between_signals"`
}
