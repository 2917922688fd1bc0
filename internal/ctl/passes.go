package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PassesOptions controls the passes command output.
type PassesOptions struct {
	Count     int
	Satellite string
	JSON      bool
}

type passEntry struct {
	Satellite string  `json:"satellite"`
	FreqHz    int     `json:"freq_hz"`
	AOS       string  `json:"aos"`
	LOS       string  `json:"los"`
	MaxElev   float64 `json:"max_elev"`
	DurationS int     `json:"duration_s"`
}

type stationEntry struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// Passes lists upcoming satellite passes from the daemon.
func Passes(baseURL string, opts PassesOptions) error {
	params := url.Values{}
	if opts.Count > 0 {
		params.Set("count", strconv.Itoa(opts.Count))
	}
	if opts.Satellite != "" {
		params.Set("satellite", opts.Satellite)
	}
	path := "/api/passes"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		Passes  []passEntry  `json:"passes"`
		Station stationEntry `json:"station"`
	}
	if err := getPasses(baseURL, path, &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  UPCOMING PASSES"))
	fmt.Printf("  %s %.4f, %.4f, %.0fm\n",
		colorize(dim, "Station:"),
		resp.Station.Lat, resp.Station.Lon, resp.Station.Alt,
	)
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 76)))

	if len(resp.Passes) == 0 {
		fmt.Println(colorize(dim, "  No upcoming passes found."))
		fmt.Println()
		return nil
	}

	fmt.Printf("  %-4s %-12s %-22s %-22s %6s  %s\n",
		colorize(dim, "#"),
		colorize(dim, "Satellite"),
		colorize(dim, "AOS"),
		colorize(dim, "LOS"),
		colorize(dim, "Elev"),
		colorize(dim, "Duration"),
	)
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 76)))

	for i, p := range resp.Passes {
		fmt.Printf("  %-4d %-12s %-22s %-22s %5.1f°  %s\n",
			i+1,
			colorize(bold, p.Satellite),
			formatPassTime(p.AOS),
			formatPassTime(p.LOS),
			p.MaxElev,
			formatDuration(time.Duration(p.DurationS)*time.Second),
		)
	}
	fmt.Println()

	return nil
}

// NextPassOptions controls the next-pass command output.
type NextPassOptions struct {
	Satellite string
	JSON      bool
}

// NextPass shows the next upcoming pass with a countdown.
func NextPass(baseURL string, opts NextPassOptions) error {
	path := "/api/next-pass"
	if opts.Satellite != "" {
		path += "?satellite=" + url.QueryEscape(opts.Satellite)
	}

	var resp struct {
		Pass       *passEntry   `json:"pass"`
		CountdownS int          `json:"countdown_s"`
		Station    stationEntry `json:"station"`
	}
	if err := getPasses(baseURL, path, &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  NEXT PASS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 44)))

	if resp.Pass == nil {
		fmt.Println(colorize(dim, "  No upcoming pass found."))
		fmt.Println()
		return nil
	}

	p := resp.Pass
	fmt.Printf("  %-12s %s\n", colorize(dim, "Satellite:"), colorize(bold, p.Satellite))
	fmt.Printf("  %-12s %.3f MHz\n", colorize(dim, "Frequency:"), float64(p.FreqHz)/1e6)
	fmt.Printf("  %-12s %s\n", colorize(dim, "AOS:"), formatPassTime(p.AOS))
	fmt.Printf("  %-12s %s\n", colorize(dim, "LOS:"), formatPassTime(p.LOS))
	fmt.Printf("  %-12s %.1f°\n", colorize(dim, "Max elev:"), p.MaxElev)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Duration:"), formatDuration(time.Duration(p.DurationS)*time.Second))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Countdown:"), formatDuration(time.Duration(resp.CountdownS)*time.Second))
	fmt.Println()

	return nil
}

// getPasses is getJSON with a longer timeout: pass computation may involve
// element network fetches and SGP4 propagation.
func getPasses(baseURL, path string, dst any) error {
	client := &http.Client{Timeout: 60 * time.Second}
	fullURL := strings.TrimRight(baseURL, "/") + path
	resp, err := client.Get(fullURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(b))
		if msg != "" {
			return fmt.Errorf("HTTP %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("HTTP %s from %s", resp.Status, path)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// formatPassTime parses an RFC3339 timestamp and returns a local time string.
func formatPassTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04 MST")
}
