package ctl

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	var resp struct {
		Name          string `json:"name"`
		State         string `json:"state"`
		UptimeSeconds int64  `json:"uptime_seconds"`
		AudioDir      string `json:"audio_dir"`
		ImagesDir     string `json:"images_dir"`
		Simulate      bool   `json:"simulate"`
		Paused        bool   `json:"paused"`
		CurrentPass   *struct {
			Satellite string  `json:"satellite"`
			AOS       string  `json:"aos"`
			LOS       string  `json:"los"`
			MaxElev   float64 `json:"max_elev"`
			Stage     string  `json:"stage"`
		} `json:"current_pass"`
		Disk *struct {
			TotalBytes     int64 `json:"total_bytes"`
			AvailableBytes int64 `json:"available_bytes"`
		} `json:"disk"`
	}
	if err := getJSON(baseURL, "/api/status", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	uptime := formatDuration(time.Duration(resp.UptimeSeconds) * time.Second)
	stateStr := colorize(stateColor(resp.State), resp.State)
	if resp.Paused {
		stateStr += colorize(yellow, " (paused)")
	}

	fmt.Println()
	fmt.Println(header("  APT STATION STATUS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 44)))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Daemon:"), resp.Name)
	fmt.Printf("  %-12s %s\n", colorize(dim, "State:"), stateStr)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Uptime:"), uptime)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Audio:"), resp.AudioDir)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Images:"), resp.ImagesDir)
	if resp.Simulate {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Mode:"), colorize(yellow, "simulate"))
	}
	if resp.CurrentPass != nil {
		cp := resp.CurrentPass
		fmt.Printf("  %-12s %s (%s, max elev %.1f°)\n",
			colorize(dim, "Pass:"), colorize(bold, cp.Satellite), cp.Stage, cp.MaxElev)
	}
	if resp.Disk != nil {
		fmt.Printf("  %-12s %s free of %s\n",
			colorize(dim, "Disk:"),
			formatBytes(resp.Disk.AvailableBytes),
			formatBytes(resp.Disk.TotalBytes),
		)
	}
	fmt.Printf("  %-12s %s\n", colorize(dim, "Host:"), strings.TrimRight(baseURL, "/"))
	fmt.Println()

	return nil
}

// Health runs the daemon's detailed health checks and prints the results.
func Health(baseURL string, jsonOutput bool) error {
	code, body, err := getRaw(baseURL, "/healthz", map[string]string{"Accept": "application/json"})
	if err != nil {
		return err
	}

	var resp struct {
		Healthy bool                      `json:"healthy"`
		Checks  map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("unexpected health response (HTTP %d): %s", code, strings.TrimSpace(string(body)))
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  HEALTH CHECKS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 44)))
	for name, check := range resp.Checks {
		ok, _ := check["ok"].(bool)
		label := colorize(green, "OK  ")
		if !ok {
			label = colorize(red, "FAIL")
		}
		detail := ""
		if errMsg, has := check["error"].(string); has {
			detail = colorize(dim, errMsg)
		}
		fmt.Printf("  %s %-12s %s\n", label, name, detail)
	}
	if resp.Healthy {
		fmt.Printf("\n  %s\n\n", colorize(green, "healthy"))
	} else {
		fmt.Printf("\n  %s\n\n", colorize(red, "unhealthy"))
	}

	return nil
}

// VersionInfo shows the daemon's build information.
func VersionInfo(baseURL string, jsonOutput bool) error {
	var resp struct {
		Version   string `json:"version"`
		GoVersion string `json:"go_version"`
		BuiltAt   string `json:"built_at"`
	}
	if err := getJSON(baseURL, "/api/version", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Printf("  %-12s %s\n", colorize(dim, "Version:"), resp.Version)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Go:"), resp.GoVersion)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Built:"), resp.BuiltAt)
	fmt.Println()
	return nil
}

// Satellites lists the configured satellite catalog.
func Satellites(baseURL string, jsonOutput bool) error {
	var resp struct {
		Satellites []struct {
			Name      string `json:"name"`
			Enabled   bool   `json:"enabled"`
			Frequency int    `json:"frequency"`
		} `json:"satellites"`
	}
	if err := getJSON(baseURL, "/api/satellites", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  SATELLITES"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 44)))
	for _, s := range resp.Satellites {
		state := colorize(green, "enabled ")
		if !s.Enabled {
			state = colorize(dim, "disabled")
		}
		fmt.Printf("  %-12s %s  %.3f MHz\n", colorize(bold, s.Name), state, float64(s.Frequency)/1e6)
	}
	fmt.Println()
	return nil
}

// Config shows the daemon's running configuration.
func Config(baseURL string, jsonOutput bool) error {
	var resp map[string]any
	if err := getJSON(baseURL, "/api/config", &resp); err != nil {
		return err
	}
	// Config has too many fields for a table; always render JSON.
	_ = jsonOutput
	return printJSON(resp)
}

// Stats shows aggregate capture statistics.
func Stats(baseURL string, jsonOutput bool) error {
	var resp struct {
		TotalCaptures int            `json:"total_captures"`
		TotalBytes    int64          `json:"total_bytes"`
		BySatellite   map[string]int `json:"captures_by_satellite"`
		LastCaptureAt string         `json:"last_capture_at"`
		UptimeSeconds int64          `json:"uptime_seconds"`
	}
	if err := getJSON(baseURL, "/api/stats", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  CAPTURE STATS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 44)))
	fmt.Printf("  %-16s %d\n", colorize(dim, "Captures:"), resp.TotalCaptures)
	fmt.Printf("  %-16s %s\n", colorize(dim, "Total audio:"), formatBytes(resp.TotalBytes))
	for sat, n := range resp.BySatellite {
		fmt.Printf("  %-16s %d\n", colorize(dim, sat+":"), n)
	}
	if resp.LastCaptureAt != "" {
		fmt.Printf("  %-16s %s\n", colorize(dim, "Last capture:"), resp.LastCaptureAt)
	}
	fmt.Printf("  %-16s %s\n", colorize(dim, "Uptime:"), formatDuration(time.Duration(resp.UptimeSeconds)*time.Second))
	fmt.Println()
	return nil
}

// SystemInfo shows runtime and tool availability information.
func SystemInfo(baseURL string, jsonOutput bool) error {
	var resp struct {
		GoVersion string          `json:"go_version"`
		OS        string          `json:"os"`
		Arch      string          `json:"arch"`
		AudioDir  string          `json:"audio_dir"`
		ImagesDir string          `json:"images_dir"`
		Tools     map[string]bool `json:"tools"`
		Disk      *struct {
			TotalBytes     int64 `json:"total_bytes"`
			AvailableBytes int64 `json:"available_bytes"`
		} `json:"disk"`
	}
	if err := getJSON(baseURL, "/api/system", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  SYSTEM INFO"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 44)))
	fmt.Printf("  %-12s %s (%s/%s)\n", colorize(dim, "Runtime:"), resp.GoVersion, resp.OS, resp.Arch)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Audio:"), resp.AudioDir)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Images:"), resp.ImagesDir)
	for tool, ok := range resp.Tools {
		label := colorize(green, "found   ")
		if !ok {
			label = colorize(red, "missing ")
		}
		fmt.Printf("  %-12s %s %s\n", colorize(dim, "Tool:"), padRight(tool, 10), label)
	}
	if resp.Disk != nil {
		fmt.Printf("  %-12s %s free of %s\n",
			colorize(dim, "Disk:"),
			formatBytes(resp.Disk.AvailableBytes),
			formatBytes(resp.Disk.TotalBytes),
		)
	}
	fmt.Println()
	return nil
}
