package ctl

import (
	"fmt"
	"strings"
	"time"
)

// TLEInfo shows element cache status and freshness.
func TLEInfo(baseURL string, jsonOutput bool) error {
	var resp struct {
		Path       string `json:"path"`
		Exists     bool   `json:"exists"`
		AgeSeconds int64  `json:"age_seconds"`
		Fresh      bool   `json:"fresh"`
		SizeBytes  int64  `json:"size_bytes"`
		Satellites int    `json:"satellites"`
	}
	if err := getJSON(baseURL, "/api/tle", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  ELEMENT CACHE"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 50)))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Cache file:"), resp.Path)

	if !resp.Exists {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Status:"), colorize(red, "NOT FOUND"))
		fmt.Println()
		return nil
	}

	status := colorize(yellow, "STALE")
	if resp.Fresh {
		status = colorize(green, "FRESH")
	}
	fmt.Printf("  %-12s %s\n", colorize(dim, "Status:"), status)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Age:"), formatDuration(time.Duration(resp.AgeSeconds)*time.Second))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Size:"), formatBytes(resp.SizeBytes))
	fmt.Printf("  %-12s %d\n", colorize(dim, "Satellites:"), resp.Satellites)
	fmt.Println()
	return nil
}

// TLERefresh forces an element update from the network.
func TLERefresh(baseURL string, jsonOutput bool) error {
	var resp struct {
		OK                bool   `json:"ok"`
		Message           string `json:"message"`
		Error             string `json:"error"`
		SatellitesUpdated int    `json:"satellites_updated"`
	}
	if err := postJSON(baseURL, "/api/tle/refresh", nil, &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	if resp.OK {
		fmt.Printf("  %s  %s\n", colorize(green, "REFRESHED"), resp.Message)
	} else {
		fmt.Printf("  %s  %s\n", colorize(red, "FAILED"), resp.Error)
	}
	fmt.Println()
	return nil
}
