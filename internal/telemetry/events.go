// Package telemetry defines the typed events that flow over the WebSocket
// connection between aptd and its clients, and the Emitter every component
// uses to publish them.
package telemetry

import "time"

// Envelope is the base fields shared by every event type.
type Envelope struct {
	Type      string `json:"type"`
	TS        string `json:"ts"`
	Component string `json:"component"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Heartbeat is sent periodically so clients can detect connectivity and
// monitor daemon uptime.
type Heartbeat struct {
	Envelope
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StateTransition is emitted whenever the daemon moves between operating
// states (e.g. IDLE -> WAITING_FOR_PASS).
type StateTransition struct {
	Envelope
	From string `json:"from"`
	To   string `json:"to"`
}

// Progress reports incremental completion of a long-running phase like
// waiting or recording.
type Progress struct {
	Envelope
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Detail  string `json:"detail"`
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Envelope
	Level   string `json:"level"`
	Message string `json:"message"`
}

// PassScheduled announces the pass the scheduler has committed to.
type PassScheduled struct {
	Envelope
	Satellite string  `json:"satellite"`
	FreqHz    int     `json:"freq_hz"`
	AOS       string  `json:"aos"`
	LOS       string  `json:"los"`
	MaxElev   float64 `json:"max_elev"`
	DurationS int     `json:"duration_s"`
}

// CaptureComplete reports the outcome of a recording session.
type CaptureComplete struct {
	Envelope
	Satellite string `json:"satellite"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	OK        bool   `json:"ok"`
}

// ImageReady reports one decoded image variant.
type ImageReady struct {
	Envelope
	Satellite string `json:"satellite"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	OK        bool   `json:"ok"`
}

// ForwardResult reports an attempt to ship an image to the display node.
type ForwardResult struct {
	Envelope
	Path  string `json:"path"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
