package models

import "strings"

// MEnvelope is a decoded wire message. Every inbound frame is parsed into
// this shape first; the accessors below tolerate the loosely typed values
// JSON decoding gives us (numbers arrive as float64, ids sometimes as
// strings from older EA builds).
type MEnvelope map[string]interface{}

// -----------------------------------------------------------------------------

// Type returns the control type of the message ("ping", "pong") or ""
// for regular signal payloads.
func (e MEnvelope) Type() string {
	return e.Str("type")
}

// -----------------------------------------------------------------------------

func (e MEnvelope) SecretKey() string {
	return e.Str("secret_key")
}

// -----------------------------------------------------------------------------

// Action returns the trade action normalized to upper case, so "buy",
// "Buy" and "BUY" all compare equal downstream.
func (e MEnvelope) Action() string {
	return strings.ToUpper(e.Str("action"))
}

// -----------------------------------------------------------------------------

func (e MEnvelope) Symbol() string {
	return e.Str("symbol")
}

// -----------------------------------------------------------------------------

func (e MEnvelope) Price() float64 {
	return e.Float("price")
}

// -----------------------------------------------------------------------------

// Float reads an optional numeric field (sl, tp1..tp3, atr). Missing or
// non-numeric values come back as 0, which MT5 treats as "not set" anyway.
func (e MEnvelope) Float(key string) float64 {
	if val, ok := e[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}
	return 0.0
}

// -----------------------------------------------------------------------------

func (e MEnvelope) ClientMsgID() string {
	return e.Str("client_msg_id")
}

// -----------------------------------------------------------------------------

// CorrelationID returns the token responses are matched on. Older EA builds
// tag CLOSE frames with open_client_msg_id instead of client_msg_id, so fall
// back to that when the primary id is missing.
func (e MEnvelope) CorrelationID() string {
	if id := e.Str("client_msg_id"); id != "" {
		return id
	}
	return e.Str("open_client_msg_id")
}

// -----------------------------------------------------------------------------

// OpenSignalID returns the id of the signal a CLOSE refers to. The second
// return reports whether the field was present and usable at all.
func (e MEnvelope) OpenSignalID() (int64, bool) {
	val, ok := e["open_signal_id"]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

// -----------------------------------------------------------------------------

// Status is read on the bridge side when dispatching server responses back
// to the waiting producer.
func (e MEnvelope) Status() string {
	return e.Str("status")
}

// -----------------------------------------------------------------------------

func (e MEnvelope) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// -----------------------------------------------------------------------------

// Str reads an arbitrary string field, "" when missing or not a string.
func (e MEnvelope) Str(key string) string {
	if val, ok := e[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

