package ctl

import "fmt"

// commandResponse is the shape every scheduler control endpoint returns.
type commandResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// renderCommand prints a command result, or the raw JSON when requested.
func renderCommand(resp commandResponse, jsonOutput bool, okLabel string) error {
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	if resp.OK {
		fmt.Printf("  %s  %s\n", colorize(green, okLabel), resp.Message)
	} else {
		fmt.Printf("  %s  %s\n", colorize(red, "FAILED"), resp.Error)
	}
	fmt.Println()
	return nil
}

func postCommand(baseURL, path string, body any, jsonOutput bool, okLabel string) error {
	var resp commandResponse
	if err := postJSON(baseURL, path, body, &resp); err != nil {
		return err
	}
	return renderCommand(resp, jsonOutput, okLabel)
}

// TriggerOptions controls the trigger command.
type TriggerOptions struct {
	Satellite       string
	DurationSeconds int
	JSON            bool
}

// Trigger sends a capture trigger request to the daemon.
func Trigger(baseURL string, opts TriggerOptions) error {
	if opts.Satellite == "" {
		return fmt.Errorf("satellite name required")
	}

	body := map[string]any{"satellite": opts.Satellite}
	if opts.DurationSeconds > 0 {
		body["duration_seconds"] = opts.DurationSeconds
	}
	return postCommand(baseURL, "/api/trigger", body, opts.JSON, "TRIGGERED")
}

// Pause pauses automatic pass scheduling.
func Pause(baseURL string, jsonOutput bool) error {
	return postCommand(baseURL, "/api/pause", nil, jsonOutput, "PAUSED")
}

// Resume resumes automatic pass scheduling.
func Resume(baseURL string, jsonOutput bool) error {
	return postCommand(baseURL, "/api/resume", nil, jsonOutput, "RESUMED")
}

// Skip skips the current or next scheduled pass.
func Skip(baseURL string, jsonOutput bool) error {
	return postCommand(baseURL, "/api/skip", nil, jsonOutput, "SKIPPED")
}

// Cancel aborts an in-progress capture.
func Cancel(baseURL string, jsonOutput bool) error {
	return postCommand(baseURL, "/api/cancel", nil, jsonOutput, "CANCELLED")
}

// Reload asks the daemon to re-read its configuration file.
func Reload(baseURL string, jsonOutput bool) error {
	return postCommand(baseURL, "/api/reload", nil, jsonOutput, "RELOADED")
}
