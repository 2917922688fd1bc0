// Package scheduler drives the predict-wait-capture-decode-forward loop at
// the heart of aptd. It runs forever, recomputing the schedule after every
// pass, and services external commands during its wait periods.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sgebhart/apt-station/internal/capture"
	"github.com/sgebhart/apt-station/internal/clock"
	"github.com/sgebhart/apt-station/internal/config"
	"github.com/sgebhart/apt-station/internal/forward"
	"github.com/sgebhart/apt-station/internal/metrics"
	"github.com/sgebhart/apt-station/internal/pipeline"
	"github.com/sgebhart/apt-station/internal/predict"
	"github.com/sgebhart/apt-station/internal/telemetry"
	"github.com/sgebhart/apt-station/internal/tle"
	"github.com/sgebhart/apt-station/internal/tool"
)

const (
	// leadTime is how far before AOS the recorder starts, so tuning settles
	// while the satellite is still below the horizon.
	leadTime = 2 * time.Minute

	// noPassBackoff is the sleep before recomputing when prediction returned
	// nothing upcoming.
	noPassBackoff = 6 * time.Hour

	// errorBackoff is the sleep after a failed iteration, so a persistent
	// fault (dead network, missing SDR) doesn't spin the loop.
	errorBackoff = 5 * time.Minute
)

// PassInfo mirrors the current pass as reported to the app layer.
type PassInfo struct {
	Satellite string  `json:"satellite"`
	FreqHz    int     `json:"freq_hz"`
	AOS       string  `json:"aos"`
	LOS       string  `json:"los"`
	MaxElev   float64 `json:"max_elev"`
	Stage     string  `json:"stage"`
}

// Command is an external command sent to the scheduler through its Commands
// channel. The Reply channel receives exactly one result.
type Command struct {
	Type    string
	Payload json.RawMessage
	Reply   chan<- CommandResult
}

// CommandResult is the response sent back through a Command's Reply channel.
type CommandResult struct {
	OK                bool   `json:"ok"`
	Message           string `json:"message,omitempty"`
	Error             string `json:"error,omitempty"`
	SatellitesUpdated int    `json:"satellites_updated,omitempty"`
}

// passSource produces the upcoming pass list. *predict.Predictor implements
// it; tests substitute scripted passes.
type passSource interface {
	ComputePasses(from time.Time, horizon time.Duration) ([]predict.Pass, error)
}

// Runner owns the scheduling loop and the per-pass component chain.
type Runner struct {
	// Commands receives external commands from HTTP handlers. The loop
	// services it while waiting, never while recording.
	Commands chan Command

	clk    clock.Clock
	tools  tool.Runner
	store  *tle.Store
	hub    telemetry.Broadcaster
	logger *log.Logger
	sink   telemetry.LogSink
	emit   *telemetry.Emitter

	mu        sync.RWMutex
	cfg       config.Config
	predictor passSource
	recorder  *capture.Recorder
	pipe      *pipeline.Pipeline
	fwd       *forward.Forwarder
	skipUntil time.Time

	paused        atomic.Bool
	skipRequested atomic.Bool

	captureMu     sync.Mutex
	captureCancel context.CancelFunc

	passCallback    func(*PassInfo)
	captureCallback func(satellite string, sizeBytes int64)
}

// New creates a scheduler and its component chain.
func New(cfg config.Config, store *tle.Store, clk clock.Clock, tools tool.Runner, hub telemetry.Broadcaster, logger *log.Logger, sink telemetry.LogSink) *Runner {
	r := &Runner{
		Commands: make(chan Command, 4),
		clk:      clk,
		tools:    tools,
		store:    store,
		hub:      hub,
		logger:   logger,
		sink:     sink,
		emit:     telemetry.NewEmitter("scheduler", hub, logger, sink),
	}
	r.rebuild(cfg)
	return r
}

// rebuild swaps in a new configuration and the components derived from it.
func (r *Runner) rebuild(cfg config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.predictor = predict.New(cfg, r.store, telemetry.NewEmitter("predict", r.hub, r.logger, r.sink))
	r.recorder = capture.New(cfg, r.tools, r.clk, telemetry.NewEmitter("capture", r.hub, r.logger, r.sink))
	r.pipe = pipeline.New(cfg, r.tools, telemetry.NewEmitter("pipeline", r.hub, r.logger, r.sink))
	r.fwd = forward.New(cfg.Forward, r.tools, telemetry.NewEmitter("forward", r.hub, r.logger, r.sink))
}

// ApplyConfig replaces the scheduler's configuration. The next iteration
// picks it up; a pass already in flight finishes under the old one.
func (r *Runner) ApplyConfig(cfg config.Config) {
	r.rebuild(cfg)
	r.emit.Logf("info", "configuration applied, schedule will recompute")
}

// SetPassCallback registers a function called when the current pass changes.
func (r *Runner) SetPassCallback(fn func(*PassInfo)) { r.passCallback = fn }

// SetCaptureCallback registers a function called when a capture completes.
func (r *Runner) SetCaptureCallback(fn func(string, int64)) { r.captureCallback = fn }

// IsPaused reports whether the scheduler is paused.
func (r *Runner) IsPaused() bool { return r.paused.Load() }

func (r *Runner) config() config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

func (r *Runner) components() (passSource, *capture.Recorder, *pipeline.Pipeline, *forward.Forwarder) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.predictor, r.recorder, r.pipe, r.fwd
}

// Run is the scheduler loop. Each iteration is isolated: a panic inside one
// is recovered, logged, and followed by the error backoff, so a single bad
// pass can never take the daemon down.
func (r *Runner) Run(ctx context.Context, setState func(string)) {
	r.emit.Logf("info", "scheduler started")
	for ctx.Err() == nil {
		r.iterate(ctx, setState)
	}
	r.emit.Logf("info", "scheduler stopped")
}

func (r *Runner) iterate(ctx context.Context, setState func(string)) {
	defer func() {
		if rec := recover(); rec != nil {
			r.emit.Logf("error", "scheduler iteration panicked: %v", rec)
			r.sleepOrCommand(ctx, errorBackoff, setState)
		}
	}()

	if r.paused.Load() {
		setState("IDLE")
		r.notifyPass(nil)
		r.sleepOrCommand(ctx, 24*365*time.Hour, setState)
		return
	}

	setState("IDLE")
	cfg := r.config()
	predictor, _, _, _ := r.components()

	now := r.clk.Now()
	passes, err := predictor.ComputePasses(now, time.Duration(cfg.Predict.LookaheadHours)*time.Hour)
	if err != nil {
		r.emit.Logf("error", "prediction failed: %v", err)
		r.sleepOrCommand(ctx, errorBackoff, setState)
		return
	}
	metrics.PassesPredicted(len(passes))

	pass, ok := r.nextPass(passes, now)
	if !ok {
		r.emit.Logf("info", "no upcoming passes, recomputing in %s", noPassBackoff)
		r.sleepOrCommand(ctx, noPassBackoff, setState)
		return
	}

	setState("WAITING_FOR_PASS")
	r.notifyPass(passInfo(pass, "waiting"))
	r.emit.Logf("info", "next pass: %s at %s (max elev %.1f°, duration %s)",
		pass.Satellite, pass.AOS.Format(time.RFC3339), pass.MaxElev, pass.Duration.Truncate(time.Second))
	r.emit.PassScheduled(telemetry.PassScheduled{
		Satellite: pass.Satellite,
		FreqHz:    pass.FreqHz,
		AOS:       pass.AOS.Format(time.RFC3339),
		LOS:       pass.LOS.Format(time.RFC3339),
		MaxElev:   pass.MaxElev,
		DurationS: int(pass.Duration.Seconds()),
	})

	// A skip only makes sense while a pass is committed.
	r.skipRequested.Store(false)

	if !r.waitForPass(ctx, pass, setState) {
		if r.skipRequested.CompareAndSwap(true, false) {
			r.mu.Lock()
			r.skipUntil = pass.LOS
			r.mu.Unlock()
			r.emit.Logf("info", "skipped pass for %s", pass.Satellite)
		}
		r.notifyPass(nil)
		return
	}

	r.capturePass(ctx, pass, setState)
	r.notifyPass(nil)
	setState("IDLE")
}

// nextPass picks the first pass that hasn't started and wasn't skipped.
func (r *Runner) nextPass(passes []predict.Pass, now time.Time) (predict.Pass, bool) {
	r.mu.RLock()
	skipUntil := r.skipUntil
	r.mu.RUnlock()

	for _, p := range passes {
		if !p.AOS.After(now) {
			continue
		}
		if !p.AOS.After(skipUntil) {
			continue
		}
		return p, true
	}
	return predict.Pass{}, false
}

// capturePass runs the record-decode-forward chain for one pass. The
// recorder starts leadTime early and records through LOS.
func (r *Runner) capturePass(ctx context.Context, pass predict.Pass, setState func(string)) {
	_, recorder, pipe, fwd := r.components()

	setState("RECORDING")
	r.notifyPass(passInfo(pass, "recording"))

	req := capture.Request{
		Satellite: pass.Satellite,
		FreqHz:    pass.FreqHz,
		AOS:       pass.AOS,
		Duration:  pass.Duration + leadTime,
	}

	captureCtx, cancel := context.WithCancel(ctx)
	r.captureMu.Lock()
	r.captureCancel = cancel
	r.captureMu.Unlock()

	art, err := recorder.Record(captureCtx, req)
	cancel()

	r.captureMu.Lock()
	r.captureCancel = nil
	r.captureMu.Unlock()

	metrics.CaptureFinished(pass.Satellite, err == nil, art.SizeBytes)
	r.emit.CaptureComplete(telemetry.CaptureComplete{
		Satellite: pass.Satellite,
		Path:      art.Path,
		SizeBytes: art.SizeBytes,
		OK:        err == nil,
	})

	if err != nil {
		if ctx.Err() == nil {
			r.emit.Logf("error", "capture failed: %v", err)
		}
		return
	}
	if r.captureCallback != nil {
		r.captureCallback(pass.Satellite, art.SizeBytes)
	}

	setState("DECODING")
	r.notifyPass(passInfo(pass, "decoding"))

	res, err := pipe.Process(ctx, pass.Satellite, art)
	if err != nil {
		r.emit.Logf("error", "processing failed: %v", err)
		return
	}
	if res.Selected == "" {
		r.emit.Logf("warn", "no usable image for %s, nothing to forward", pass.Satellite)
		return
	}

	setState("FORWARDING")
	r.notifyPass(passInfo(pass, "forwarding"))
	if err := fwd.Send(ctx, res.Selected); err != nil {
		r.emit.Logf("warn", "%v", err)
	}
}

func passInfo(pass predict.Pass, stage string) *PassInfo {
	return &PassInfo{
		Satellite: pass.Satellite,
		FreqHz:    pass.FreqHz,
		AOS:       pass.AOS.Format(time.RFC3339),
		LOS:       pass.LOS.Format(time.RFC3339),
		MaxElev:   pass.MaxElev,
		Stage:     stage,
	}
}

// notifyPass calls the pass callback if set.
func (r *Runner) notifyPass(info *PassInfo) {
	if r.passCallback != nil {
		r.passCallback(info)
	}
}

// sleepResult indicates what ended a sleep period.
type sleepResult int

const (
	sleepCompleted   sleepResult = iota // timer expired normally
	sleepCancelled                      // context was cancelled
	sleepInterrupted                    // a command was received and handled
)

// sleepOrCommand blocks for duration d, until ctx is cancelled, or until a
// command arrives on r.Commands. Commands are handled inline.
func (r *Runner) sleepOrCommand(ctx context.Context, d time.Duration, setState func(string)) sleepResult {
	select {
	case <-ctx.Done():
		return sleepCancelled
	case <-r.clk.After(d):
		return sleepCompleted
	case cmd := <-r.Commands:
		r.handleCommand(ctx, cmd, setState)
		return sleepInterrupted
	}
}

// waitForPass sleeps until leadTime before AOS, reporting a countdown every
// 30 seconds. Returns true once the recording window opens, false if the
// wait was interrupted by a command or cancellation.
func (r *Runner) waitForPass(ctx context.Context, pass predict.Pass, setState func(string)) bool {
	start := pass.AOS.Add(-leadTime)
	for {
		remaining := start.Sub(r.clk.Now())
		if remaining <= 0 {
			return true
		}

		r.emit.Progress("waiting", 0, fmt.Sprintf("AOS in %s for %s", remaining.Truncate(time.Second), pass.Satellite))

		step := 30 * time.Second
		if remaining < step {
			step = remaining
		}
		if r.sleepOrCommand(ctx, step, setState) != sleepCompleted {
			return false
		}
	}
}

// handleCommand dispatches an incoming command.
func (r *Runner) handleCommand(ctx context.Context, cmd Command, setState func(string)) {
	switch cmd.Type {
	case "trigger":
		r.handleTrigger(ctx, cmd, setState)
	case "tle_refresh":
		r.handleTLERefresh(cmd)
	case "pause":
		r.handlePause(cmd)
	case "resume":
		r.handleResume(cmd)
	case "skip":
		r.handleSkip(cmd)
	case "cancel":
		r.handleCancel(cmd)
	default:
		cmd.Reply <- CommandResult{OK: false, Error: "unknown command: " + cmd.Type}
	}
}

// handleTrigger starts an immediate capture for the requested satellite,
// running the full decode and forward chain on the result.
func (r *Runner) handleTrigger(ctx context.Context, cmd Command, setState func(string)) {
	var payload struct {
		Satellite       string `json:"satellite"`
		DurationSeconds int    `json:"duration_seconds"`
	}
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		cmd.Reply <- CommandResult{OK: false, Error: "invalid payload: " + err.Error()}
		return
	}

	cfg := r.config()
	sat := cfg.SatelliteByName(payload.Satellite)
	if sat == nil {
		cmd.Reply <- CommandResult{OK: false, Error: "unknown satellite: " + payload.Satellite}
		return
	}
	dur := time.Duration(payload.DurationSeconds) * time.Second
	if dur <= 0 {
		dur = 10 * time.Minute
	}

	// Reply immediately so the HTTP handler is not blocked during capture.
	cmd.Reply <- CommandResult{
		OK:      true,
		Message: fmt.Sprintf("capture triggered for %s (%s)", sat.Name, dur.Truncate(time.Second)),
	}
	r.emit.Logf("info", "manual trigger: capturing %s for %s", sat.Name, dur.Truncate(time.Second))

	now := r.clk.Now()
	pass := predict.Pass{
		Satellite: sat.Name,
		FreqHz:    sat.Frequency,
		AOS:       now,
		LOS:       now.Add(dur),
		MaxElev:   90,
		Duration:  dur,
	}
	r.capturePass(ctx, pass, setState)
	r.notifyPass(nil)
	setState("IDLE")
}

// handleTLERefresh forces an immediate element refresh.
func (r *Runner) handleTLERefresh(cmd Command) {
	set, err := r.store.Refresh()
	if err != nil {
		cmd.Reply <- CommandResult{OK: false, Error: "element refresh failed: " + err.Error()}
		return
	}

	r.emit.Logf("info", "element set refreshed, %d satellites", len(set))
	cmd.Reply <- CommandResult{
		OK:                true,
		Message:           fmt.Sprintf("element set refreshed, %d satellites", len(set)),
		SatellitesUpdated: len(set),
	}
}

func (r *Runner) handlePause(cmd Command) {
	if r.paused.Load() {
		cmd.Reply <- CommandResult{OK: true, Message: "scheduler already paused"}
		return
	}
	r.paused.Store(true)
	r.emit.Logf("info", "scheduler paused by user")
	cmd.Reply <- CommandResult{OK: true, Message: "scheduler paused"}
}

func (r *Runner) handleResume(cmd Command) {
	if !r.paused.Load() {
		cmd.Reply <- CommandResult{OK: true, Message: "scheduler already running"}
		return
	}
	r.paused.Store(false)
	r.emit.Logf("info", "scheduler resumed by user")
	cmd.Reply <- CommandResult{OK: true, Message: "scheduler resumed"}
}

func (r *Runner) handleSkip(cmd Command) {
	r.skipRequested.Store(true)
	r.emit.Logf("info", "skipping current pass by user request")
	cmd.Reply <- CommandResult{OK: true, Message: "pass skipped, recomputing schedule"}
}

func (r *Runner) handleCancel(cmd Command) {
	cmd.Reply <- r.CancelCapture()
}

// CancelCapture aborts the recording in flight, if any. It is safe from any
// goroutine and must not go through the Commands channel: the loop only
// drains that channel between captures, which would park a cancel until the
// capture it targets has already finished.
func (r *Runner) CancelCapture() CommandResult {
	r.captureMu.Lock()
	cancel := r.captureCancel
	r.captureMu.Unlock()

	if cancel == nil {
		return CommandResult{OK: false, Error: "no capture in progress"}
	}

	cancel()
	r.emit.Logf("info", "capture cancelled by user")
	return CommandResult{OK: true, Message: "capture cancelled"}
}
