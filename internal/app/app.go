// Package app wires together the HTTP API, the WebSocket hub, the metrics
// endpoint, and the capture scheduler. It owns the daemon's lifecycle and is
// the single source of truth for the current operating state.
package app

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sgebhart/apt-station/internal/clock"
	"github.com/sgebhart/apt-station/internal/config"
	"github.com/sgebhart/apt-station/internal/metrics"
	"github.com/sgebhart/apt-station/internal/scheduler"
	"github.com/sgebhart/apt-station/internal/telemetry"
	"github.com/sgebhart/apt-station/internal/tle"
	"github.com/sgebhart/apt-station/internal/tool"
	"github.com/sgebhart/apt-station/internal/ws"
)

// logBufCap bounds the in-memory log ring served by /api/logs.
const logBufCap = 500

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *log.Logger
	Cfg        config.Config
	ConfigPath string
	Bind       string
}

// App is the top-level daemon process.
type App struct {
	log    *log.Logger
	bind   string
	server *http.Server

	cfgMu      sync.RWMutex
	cfg        config.Config
	configPath string

	startedAt time.Time
	state     atomic.Value // current state string (BOOTING, IDLE, ...)

	wsHub     *ws.Hub
	emit      *telemetry.Emitter
	store     *tle.Store
	scheduler *scheduler.Runner

	currentPass atomic.Value // *scheduler.PassInfo, may hold nil

	logBufMu sync.Mutex
	logBuf   []logEntry

	captureStats captureStats
}

type logEntry struct {
	TS        string `json:"ts"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

type captureStats struct {
	mu            sync.Mutex
	TotalCaptures int
	TotalBytes    int64
	CapturesBySat map[string]int
	LastCaptureAt string
}

// New creates an App in the BOOTING state. Call Run to start serving.
func New(opts Options) *App {
	a := &App{
		log:        opts.Logger,
		cfg:        opts.Cfg,
		configPath: opts.ConfigPath,
		bind:       opts.Bind,
		startedAt:  time.Now(),
		wsHub:      ws.NewHub(),
	}
	a.captureStats.CapturesBySat = make(map[string]int)
	a.state.Store("BOOTING")
	a.currentPass.Store((*scheduler.PassInfo)(nil))
	a.emit = telemetry.NewEmitter("aptd", a.wsHub, a.log, a)
	return a
}

// Record implements telemetry.LogSink, appending to the log ring.
func (a *App) Record(component, level, message string) {
	a.logBufMu.Lock()
	defer a.logBufMu.Unlock()
	a.logBuf = append(a.logBuf, logEntry{
		TS:        telemetry.NowTS(),
		Component: component,
		Level:     level,
		Message:   message,
	})
	if len(a.logBuf) > logBufCap {
		a.logBuf = a.logBuf[len(a.logBuf)-logBufCap:]
	}
}

func (a *App) getConfig() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// Run starts the HTTP server, WebSocket hub, heartbeat ticker, and the
// scheduler. It blocks until the context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	cfg := a.getConfig()

	bind := a.bind
	if bind == "" && cfg.Server.Bind != "" {
		bind = cfg.Server.Bind
	}
	if bind == "" {
		bind = "0.0.0.0:8080"
	}

	a.store = tle.NewStore(cfg.Predict.TLEURL, cfg.Data.TLE, cfg.Predict.TLERefreshHours)
	a.scheduler = scheduler.New(cfg, a.store, clock.System{}, tool.Exec{}, a.wsHub, a.log, a)
	a.scheduler.SetPassCallback(func(pi *scheduler.PassInfo) {
		a.currentPass.Store(pi)
	})
	a.scheduler.SetCaptureCallback(a.recordCapture)

	mux := http.NewServeMux()
	a.routes(mux)

	a.server = &http.Server{
		Addr:              bind,
		Handler:           metrics.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	a.log.Printf("listening on http://%s", bind)

	go a.wsHub.Run(ctx)
	a.transition("IDLE")
	go a.heartbeatLoop(ctx)
	go a.scheduler.Run(ctx, a.transition)

	go func() {
		<-ctx.Done()
		a.log.Printf("shutdown requested")
		_ = a.server.Shutdown(context.Background())
	}()

	return a.server.Serve(ln)
}

func (a *App) routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/satellites", a.handleSatellites)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/passes", a.handlePasses)
	mux.HandleFunc("/api/next-pass", a.handleNextPass)
	mux.HandleFunc("/api/captures", a.handleCaptures)
	mux.HandleFunc("/api/images", a.handleImages)
	mux.HandleFunc("/api/tle", a.handleTLEInfo)
	mux.HandleFunc("/api/tle/refresh", a.handleTLERefresh)
	mux.HandleFunc("/api/trigger", a.handleTrigger)
	mux.HandleFunc("/api/pause", a.handlePause)
	mux.HandleFunc("/api/resume", a.handleResume)
	mux.HandleFunc("/api/skip", a.handleSkip)
	mux.HandleFunc("/api/cancel", a.handleCancel)
	mux.HandleFunc("/api/reload", a.handleReload)
	mux.HandleFunc("/api/logs", a.handleLogs)
	mux.HandleFunc("/api/stats", a.handleStats)
	mux.HandleFunc("/api/system", a.handleSystem)
	mux.Handle("/ws", a.wsHub.Handler())
	mux.Handle("/metrics", metrics.Handler())
}

// transition atomically updates the daemon state and broadcasts the change.
func (a *App) transition(newState string) {
	old := a.state.Load().(string)
	if old == newState {
		return
	}
	a.state.Store(newState)

	a.wsHub.BroadcastJSON(telemetry.StateTransition{
		Envelope: telemetry.Envelope{Type: "state", TS: telemetry.NowTS(), Component: "aptd"},
		From:     old,
		To:       newState,
	})
}

// heartbeatLoop sends a periodic heartbeat so clients can detect connectivity
// and track uptime without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.wsHub.BroadcastJSON(telemetry.Heartbeat{
				Envelope:      telemetry.Envelope{Type: "heartbeat", TS: telemetry.NowTS(), Component: "aptd"},
				State:         a.state.Load().(string),
				UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
			})
		}
	}
}

// recordCapture updates the running capture statistics.
func (a *App) recordCapture(satellite string, sizeBytes int64) {
	a.captureStats.mu.Lock()
	defer a.captureStats.mu.Unlock()
	a.captureStats.TotalCaptures++
	a.captureStats.TotalBytes += sizeBytes
	a.captureStats.CapturesBySat[satellite]++
	a.captureStats.LastCaptureAt = telemetry.NowTS()
}
