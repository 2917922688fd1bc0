package app

import (
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sgebhart/apt-station/internal/config"
	"github.com/sgebhart/apt-station/internal/predict"
	"github.com/sgebhart/apt-station/internal/scheduler"
	"github.com/sgebhart/apt-station/internal/telemetry"
)

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()

	resp := map[string]any{
		"name":           "apt-station",
		"state":          a.state.Load().(string),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"audio_dir":      cfg.Data.Audio,
		"images_dir":     cfg.Data.Images,
		"simulate":       cfg.Reception.Simulate,
		"paused":         a.scheduler.IsPaused(),
	}

	if pi, ok := a.currentPass.Load().(*scheduler.PassInfo); ok && pi != nil {
		resp["current_pass"] = pi
	}
	if ds := statDisk(cfg.Data.Audio); ds != nil {
		resp["disk"] = ds
	}

	writeJSON(w, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
	})
}

func (a *App) handleSatellites(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()
	writeJSON(w, map[string]any{"satellites": cfg.Satellites})
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.getConfig())
}

func (a *App) handlePasses(w http.ResponseWriter, r *http.Request) {
	cfg := a.getConfig()
	predictor := predict.New(cfg, a.store, telemetry.NewEmitter("predict", a.wsHub, a.log, a))
	passes, err := predictor.ComputePasses(time.Now().UTC(), time.Duration(cfg.Predict.LookaheadHours)*time.Hour)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	passes = filterPasses(passes, r.URL.Query().Get("satellite"))
	if countStr := r.URL.Query().Get("count"); countStr != "" {
		if n, err := strconv.Atoi(countStr); err == nil && n > 0 && n < len(passes) {
			passes = passes[:n]
		}
	}

	loc := predictor.ResolveLocation()
	writeJSON(w, map[string]any{
		"passes": passesToJSON(passes),
		"station": map[string]any{
			"lat": loc.Lat,
			"lon": loc.Lon,
			"alt": loc.Alt,
		},
	})
}

func (a *App) handleNextPass(w http.ResponseWriter, r *http.Request) {
	cfg := a.getConfig()
	predictor := predict.New(cfg, a.store, telemetry.NewEmitter("predict", a.wsHub, a.log, a))
	passes, err := predictor.ComputePasses(time.Now().UTC(), time.Duration(cfg.Predict.LookaheadHours)*time.Hour)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	passes = filterPasses(passes, r.URL.Query().Get("satellite"))

	now := time.Now().UTC()
	var next *predict.Pass
	for i := range passes {
		if passes[i].AOS.After(now) {
			next = &passes[i]
			break
		}
	}

	resp := map[string]any{"pass": nil}
	if next != nil {
		pj := passesToJSON([]predict.Pass{*next})
		resp["pass"] = pj[0]
		resp["countdown_s"] = int(time.Until(next.AOS).Seconds())
	}

	loc := predictor.ResolveLocation()
	resp["station"] = map[string]any{
		"lat": loc.Lat,
		"lon": loc.Lon,
		"alt": loc.Alt,
	}

	writeJSON(w, resp)
}

func (a *App) handleCaptures(w http.ResponseWriter, r *http.Request) {
	cfg := a.getConfig()

	if r.Method == http.MethodDelete {
		name := r.URL.Query().Get("name")
		if name == "" {
			jsonError(w, "name parameter required", http.StatusBadRequest)
			return
		}
		// Prevent path traversal.
		if strings.Contains(name, "/") || strings.Contains(name, "..") {
			jsonError(w, "invalid filename", http.StatusBadRequest)
			return
		}
		path := filepath.Join(cfg.Data.Audio, name)
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				jsonError(w, "file not found", http.StatusNotFound)
			} else {
				jsonError(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, map[string]any{"ok": true, "message": "deleted " + name})
		return
	}

	type captureInfo struct {
		Filename  string `json:"filename"`
		Satellite string `json:"satellite"`
		Timestamp string `json:"timestamp"`
		Size      int64  `json:"size"`
	}

	var matches []string
	for _, pattern := range []string{"*.raw", "*.wav"} {
		m, _ := filepath.Glob(filepath.Join(cfg.Data.Audio, pattern))
		matches = append(matches, m...)
	}
	sort.Strings(matches)

	captures := make([]captureInfo, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		base := filepath.Base(m)
		sat, ts := parseArtifactName(base)
		captures = append(captures, captureInfo{
			Filename:  base,
			Satellite: sat,
			Timestamp: ts,
			Size:      info.Size(),
		})
	}

	writeJSON(w, map[string]any{"captures": captures})
}

func (a *App) handleImages(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()

	type imageInfo struct {
		Filename  string `json:"filename"`
		Satellite string `json:"satellite"`
		Kind      string `json:"kind"`
		Size      int64  `json:"size"`
	}

	matches, _ := filepath.Glob(filepath.Join(cfg.Data.Images, "*.png"))
	sort.Strings(matches)

	images := make([]imageInfo, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		base := filepath.Base(m)
		sat, kind := parseImageName(base)
		images = append(images, imageInfo{
			Filename:  base,
			Satellite: sat,
			Kind:      kind,
			Size:      info.Size(),
		})
	}

	writeJSON(w, map[string]any{"images": images})
}

func (a *App) handleTLEInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.store.CacheInfo())
}

func (a *App) handleTLERefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeCommandResult(w, a.sendSchedulerCommand("tle_refresh", nil))
}

func (a *App) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Satellite       string `json:"satellite"`
		DurationSeconds int    `json:"duration_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	cfg := a.getConfig()
	if cfg.SatelliteByName(req.Satellite) == nil {
		jsonError(w, "unknown satellite: "+req.Satellite, http.StatusBadRequest)
		return
	}
	if req.DurationSeconds <= 0 {
		req.DurationSeconds = 600
	}

	payload, _ := json.Marshal(map[string]any{
		"satellite":        req.Satellite,
		"duration_seconds": req.DurationSeconds,
	})
	writeCommandResult(w, a.sendSchedulerCommand("trigger", payload))
}

func (a *App) handlePause(w http.ResponseWriter, r *http.Request) {
	a.controlCommand(w, r, "pause")
}

func (a *App) handleResume(w http.ResponseWriter, r *http.Request) {
	a.controlCommand(w, r, "resume")
}

func (a *App) handleSkip(w http.ResponseWriter, r *http.Request) {
	a.controlCommand(w, r, "skip")
}

// handleCancel goes straight to the scheduler instead of through its command
// channel, which is not serviced while a capture is running.
func (a *App) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeCommandResult(w, a.scheduler.CancelCapture())
}

func (a *App) controlCommand(w http.ResponseWriter, r *http.Request, cmdType string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeCommandResult(w, a.sendSchedulerCommand(cmdType, nil))
}

// handleReload re-reads the config file and hands the new configuration to
// the scheduler. The element store keeps its URL and cache directory;
// changing those requires a restart.
func (a *App) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.cfgMu.RLock()
	path := a.configPath
	a.cfgMu.RUnlock()

	if path == "" {
		jsonError(w, "no config file path set", http.StatusConflict)
		return
	}

	newCfg, err := config.Load(path)
	if err != nil {
		jsonError(w, "config reload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	a.cfgMu.Lock()
	a.cfg = newCfg
	a.cfgMu.Unlock()
	a.scheduler.ApplyConfig(newCfg)

	a.emit.Logf("info", "config reloaded from %s", path)
	writeJSON(w, map[string]any{
		"ok":      true,
		"message": "configuration reloaded from " + path,
	})
}

func (a *App) handleLogs(w http.ResponseWriter, r *http.Request) {
	a.logBufMu.Lock()
	entries := make([]logEntry, len(a.logBuf))
	copy(entries, a.logBuf)
	a.logBufMu.Unlock()

	if level := r.URL.Query().Get("level"); level != "" {
		var filtered []logEntry
		for _, e := range entries {
			if e.Level == level {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}

	writeJSON(w, map[string]any{"logs": entries})
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	a.captureStats.mu.Lock()
	resp := map[string]any{
		"total_captures":        a.captureStats.TotalCaptures,
		"total_bytes":           a.captureStats.TotalBytes,
		"captures_by_satellite": a.captureStats.CapturesBySat,
		"last_capture_at":       a.captureStats.LastCaptureAt,
		"uptime_seconds":        int64(time.Since(a.startedAt).Seconds()),
	}
	a.captureStats.mu.Unlock()

	writeJSON(w, resp)
}

func (a *App) handleSystem(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()

	tools := map[string]bool{}
	for _, name := range []string{"rtl_fm", "sox", "noaa-apt", "scp"} {
		_, err := exec.LookPath(name)
		tools[name] = err == nil
	}

	resp := map[string]any{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"audio_dir":  cfg.Data.Audio,
		"images_dir": cfg.Data.Images,
		"tools":      tools,
	}
	if ds := statDisk(cfg.Data.Audio); ds != nil {
		resp["disk"] = ds
	}

	writeJSON(w, resp)
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()

	checks := map[string]any{}
	allOK := true

	for name, dir := range map[string]string{"audio_dir": cfg.Data.Audio, "images_dir": cfg.Data.Images} {
		tmpPath := filepath.Join(dir, ".healthcheck")
		if err := os.WriteFile(tmpPath, []byte("ok"), 0o644); err != nil {
			checks[name] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			os.Remove(tmpPath)
			checks[name] = map[string]any{"ok": true, "path": dir}
		}
	}

	info := a.store.CacheInfo()
	if !info.Exists {
		checks["tle_cache"] = map[string]any{"ok": false, "error": "cache file not found"}
		allOK = false
	} else {
		if !info.Fresh {
			allOK = false
		}
		checks["tle_cache"] = map[string]any{
			"ok":    info.Fresh,
			"age_s": info.AgeSeconds,
			"fresh": info.Fresh,
		}
	}

	if !cfg.Reception.Simulate {
		if _, err := exec.LookPath("rtl_fm"); err != nil {
			checks["sdr"] = map[string]any{"ok": false, "error": "rtl_fm not found in PATH"}
			allOK = false
		} else {
			checks["sdr"] = map[string]any{"ok": true}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

// sendSchedulerCommand sends a command to the scheduler and waits for the reply.
func (a *App) sendSchedulerCommand(cmdType string, payload json.RawMessage) scheduler.CommandResult {
	reply := make(chan scheduler.CommandResult, 1)
	a.scheduler.Commands <- scheduler.Command{
		Type:    cmdType,
		Payload: payload,
		Reply:   reply,
	}
	return <-reply
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": msg,
	})
}

// writeCommandResult writes a scheduler.CommandResult as JSON.
func writeCommandResult(w http.ResponseWriter, result scheduler.CommandResult) {
	w.Header().Set("Content-Type", "application/json")
	if !result.OK {
		w.WriteHeader(http.StatusInternalServerError)
	}
	_ = json.NewEncoder(w).Encode(result)
}

func filterPasses(passes []predict.Pass, satellite string) []predict.Pass {
	if satellite == "" {
		return passes
	}
	upper := strings.ToUpper(satellite)
	var filtered []predict.Pass
	for _, p := range passes {
		if strings.ToUpper(p.Satellite) == upper {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

type passJSON struct {
	Satellite string  `json:"satellite"`
	FreqHz    int     `json:"freq_hz"`
	AOS       string  `json:"aos"`
	LOS       string  `json:"los"`
	MaxElev   float64 `json:"max_elev"`
	DurationS int     `json:"duration_s"`
}

func passesToJSON(passes []predict.Pass) []passJSON {
	result := make([]passJSON, len(passes))
	for i, p := range passes {
		result[i] = passJSON{
			Satellite: p.Satellite,
			FreqHz:    p.FreqHz,
			AOS:       p.AOS.Format(time.RFC3339),
			LOS:       p.LOS.Format(time.RFC3339),
			MaxElev:   p.MaxElev,
			DurationS: int(p.Duration.Seconds()),
		}
	}
	return result
}

// parseArtifactName extracts satellite and timestamp from
// "NOAA_19_20260215T143022Z.raw".
func parseArtifactName(filename string) (satellite, timestamp string) {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	idx := strings.LastIndex(name, "_")
	if idx < 0 {
		return name, ""
	}
	return strings.ReplaceAll(name[:idx], "_", " "), name[idx+1:]
}

// parseImageName extracts satellite and variant kind from
// "NOAA_19_20260215T143022Z_msa.png".
func parseImageName(filename string) (satellite, kind string) {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	idx := strings.LastIndex(name, "_")
	if idx < 0 {
		return name, ""
	}
	kind = name[idx+1:]
	satellite, _ = parseArtifactName(name[:idx])
	return satellite, kind
}
