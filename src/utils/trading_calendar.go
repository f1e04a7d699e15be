package utils

import (
	"log"
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers "is this a trading day for this instrument".
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// GetCalendar resolves an MT5 symbol to an exchange calendar. Index CFDs
// map to their home exchange (ISO 10383 MIC, see scmhub/calendar for the
// supported list); forex and metals have no exchange, they just trade
// Mon-Fri.
func GetCalendar(symbol string) *TradingCalendar {
	sym := strings.ToUpper(symbol)

	mic := ""
	switch {
	case strings.HasPrefix(sym, "US30"), strings.HasPrefix(sym, "US500"),
		strings.HasPrefix(sym, "US100"), strings.HasPrefix(sym, "SPX"),
		strings.HasPrefix(sym, "NAS"), strings.HasPrefix(sym, "DJ30"):
		mic = "xnys"
	case strings.HasPrefix(sym, "GER"), strings.HasPrefix(sym, "DAX"),
		strings.HasPrefix(sym, "DE40"):
		mic = "xfra"
	case strings.HasPrefix(sym, "UK100"), strings.HasPrefix(sym, "FTSE"):
		mic = "xlon"
	case strings.HasPrefix(sym, "JP225"), strings.HasPrefix(sym, "NIK"):
		mic = "xtks"
	case strings.HasPrefix(sym, "AUS200"), strings.HasPrefix(sym, "ASX"):
		mic = "xasx"
	case strings.HasPrefix(sym, "HK50"), strings.HasPrefix(sym, "HSI"):
		mic = "xhkg"
	}

	if mic == "" {
		// Forex, metals and crypto CFDs trade around the clock Mon-Fri;
		// no holiday closure is worth blocking a signal over.
		return &TradingCalendar{Fallback: true, Timezone: time.UTC}
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s'. Using weekday fallback.", mic)
		return &TradingCalendar{Fallback: true, Timezone: time.UTC}
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	// Normalize to timezone if available
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		// Simple fallback: Mon-Fri
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	// Library handles IsHoliday / IsBusinessDay
	return tc.Calendar.IsBusinessDay(date)
}
