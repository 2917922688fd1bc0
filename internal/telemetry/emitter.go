package telemetry

import (
	"fmt"
	"log"
)

// Broadcaster fans an event out to connected clients. *ws.Hub implements it.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// LogSink receives every log line an Emitter produces, in addition to the
// broadcast. The app uses it to fill the ring buffer behind /api/logs.
type LogSink interface {
	Record(component, level, message string)
}

// Emitter publishes typed events for one component: to the process logger,
// to the WebSocket hub, and (for log lines) to an optional sink.
type Emitter struct {
	component string
	hub       Broadcaster
	log       *log.Logger
	sink      LogSink
}

// NewEmitter builds an emitter. hub, logger, and sink may each be nil; a nil
// emitter is also safe to call, so tests can pass nothing at all.
func NewEmitter(component string, hub Broadcaster, logger *log.Logger, sink LogSink) *Emitter {
	return &Emitter{component: component, hub: hub, log: logger, sink: sink}
}

func (e *Emitter) envelope(typ string) Envelope {
	return Envelope{Type: typ, TS: NowTS(), Component: e.component}
}

func (e *Emitter) broadcast(v any) {
	if e == nil || e.hub == nil {
		return
	}
	e.hub.BroadcastJSON(v)
}

// Logf records and broadcasts a formatted log line.
func (e *Emitter) Logf(level, format string, args ...any) {
	if e == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if e.log != nil {
		e.log.Printf("%s: %s", e.component, msg)
	}
	if e.sink != nil {
		e.sink.Record(e.component, level, msg)
	}
	e.broadcast(LogLine{Envelope: e.envelope("log"), Level: level, Message: msg})
}

// Progress broadcasts a progress event for a long-running stage.
func (e *Emitter) Progress(stage string, percent int, detail string) {
	if e == nil {
		return
	}
	e.broadcast(Progress{Envelope: e.envelope("progress"), Stage: stage, Percent: percent, Detail: detail})
}

// PassScheduled broadcasts the pass the scheduler committed to.
func (e *Emitter) PassScheduled(ev PassScheduled) {
	if e == nil {
		return
	}
	ev.Envelope = e.envelope("pass_scheduled")
	e.broadcast(ev)
}

// CaptureComplete broadcasts a recording outcome.
func (e *Emitter) CaptureComplete(ev CaptureComplete) {
	if e == nil {
		return
	}
	ev.Envelope = e.envelope("capture_complete")
	e.broadcast(ev)
}

// ImageReady broadcasts a decoded image variant outcome.
func (e *Emitter) ImageReady(ev ImageReady) {
	if e == nil {
		return
	}
	ev.Envelope = e.envelope("image_ready")
	e.broadcast(ev)
}

// ForwardResult broadcasts a display forwarding outcome.
func (e *Emitter) ForwardResult(ev ForwardResult) {
	if e == nil {
		return
	}
	ev.Envelope = e.envelope("forward_result")
	e.broadcast(ev)
}
