package signal

import (
	"fmt"
	"sync"
	"time"

	"signal-relay/src/helpers"
	"signal-relay/src/interfaces"
	"signal-relay/src/logger"
	"signal-relay/src/metrics"
	"signal-relay/src/models"
	"signal-relay/src/utils"
)

// -----------------------------------------------------------------------------

// AdmissionController gates new BUY/SELL signals on operational state: the
// admin pause flag, the trading-hours window, the minimum spacing between
// signals and the daily cap. CLOSE signals never pass through here, closing
// an open position must always be possible.
//
// CanAccept only reads state. The caller commits an accepted signal by
// calling RecordAccept after the persist succeeds, which keeps the check
// safe to re-run from the retry worker.
type AdmissionController struct {
	Config *models.MConfig
	DB     interfaces.IDatabase
	Logger *logger.Logger

	hoursSet bool
	startSec int
	endSec   int

	mu           sync.Mutex
	lastAccepted time.Time
}

// -----------------------------------------------------------------------------

func NewAdmissionController(cfg *models.MConfig, db interfaces.IDatabase, log *logger.Logger) *AdmissionController {
	ac := &AdmissionController{
		Config: cfg,
		DB:     db,
		Logger: log,
	}

	// Parse the trading-hours window once. Config validation already
	// guarantees the format, so parse errors just leave the window off.
	adm := cfg.Admission
	if adm.TradingHoursStart != "" && adm.TradingHoursEnd != "" {
		start, errStart := time.Parse("15:04", adm.TradingHoursStart)
		end, errEnd := time.Parse("15:04", adm.TradingHoursEnd)
		if errStart == nil && errEnd == nil {
			ac.hoursSet = true
			ac.startSec = start.Hour()*3600 + start.Minute()*60
			ac.endSec = end.Hour()*3600 + end.Minute()*60
		}
	}

	return ac
}

// -----------------------------------------------------------------------------

// CanAccept checks whether a new BUY/SELL signal may be processed right now.
// The returned reason is producer-facing. A non-nil error means the state
// provider was unreachable and the answer is unknown; callers treat that as
// a transient processing failure, not a rejection.
func (ac *AdmissionController) CanAccept(symbol string) (bool, string, error) {
	// 1. Check if bot is paused
	active, err := ac.DB.GetBotActive()
	if err != nil {
		return false, "", &helpers.DatabaseError{SignalRelayError: helpers.SignalRelayError{Message: "bot state unavailable", Cause: err}}
	}
	if !active {
		metrics.AdmissionRejectsTotal.WithLabelValues("paused").Inc()
		return false, "Bot is currently paused by an admin.", nil
	}

	// 2. Check the exchange calendar when enabled (weekends, holidays)
	if ac.Config.Admission.UseTradingCalendar {
		if !utils.GetCalendar(symbol).IsTradingDay(time.Now().UTC()) {
			metrics.AdmissionRejectsTotal.WithLabelValues("market_closed").Inc()
			return false, fmt.Sprintf("Signal rejected: %s market is closed today.", symbol), nil
		}
	}

	// 3. Check trading hours (inclusive bounds, UTC time of day)
	if ac.hoursSet {
		now := time.Now().UTC()
		nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()
		if nowSec < ac.startSec || nowSec > ac.endSec {
			metrics.AdmissionRejectsTotal.WithLabelValues("outside_hours").Inc()
			return false, fmt.Sprintf("Signal rejected: Outside of trading hours (%s - %s UTC).",
				ac.Config.Admission.TradingHoursStart, ac.Config.Admission.TradingHoursEnd), nil
		}
	}

	// 4. Check rate limiting (time between signals)
	ac.mu.Lock()
	last := ac.lastAccepted
	ac.mu.Unlock()
	if !last.IsZero() {
		elapsed := time.Since(last).Seconds()
		minGap := float64(ac.Config.Admission.MinSecondsBetweenSignals)
		if elapsed < minGap {
			metrics.AdmissionRejectsTotal.WithLabelValues("rate_limited").Inc()
			return false, fmt.Sprintf("Rate limit active. Please wait %.0f more seconds.", minGap-elapsed), nil
		}
	}

	// 5. Check daily signal limit. A cap of 0 means unlimited.
	if ac.Config.Admission.MaxSignalsPerDay > 0 {
		count, err := ac.DB.GetTodaySignalCount()
		if err != nil {
			return false, "", &helpers.DatabaseError{SignalRelayError: helpers.SignalRelayError{Message: "signal count unavailable", Cause: err}}
		}
		if count >= ac.Config.Admission.MaxSignalsPerDay {
			metrics.AdmissionRejectsTotal.WithLabelValues("daily_cap").Inc()
			return false, fmt.Sprintf("Daily signal limit of %d has been reached.", ac.Config.Admission.MaxSignalsPerDay), nil
		}
	}

	return true, "OK", nil
}

// -----------------------------------------------------------------------------

// RecordAccept stamps the moment a signal was actually committed. Only
// successful persists call this, a rejected or failed signal must not push
// the rate-limit window forward.
func (ac *AdmissionController) RecordAccept() {
	ac.mu.Lock()
	ac.lastAccepted = time.Now()
	ac.mu.Unlock()
}
