package ctl

import (
	"fmt"
	"net/url"
	"strings"
)

// CapturesOptions controls the captures command.
type CapturesOptions struct {
	Delete string
	JSON   bool
}

// Captures lists recorded audio files, or deletes one with --delete.
func Captures(baseURL string, opts CapturesOptions) error {
	if opts.Delete != "" {
		return deleteCapture(baseURL, opts.Delete, opts.JSON)
	}

	var resp struct {
		Captures []struct {
			Filename  string `json:"filename"`
			Satellite string `json:"satellite"`
			Timestamp string `json:"timestamp"`
			Size      int64  `json:"size"`
		} `json:"captures"`
	}
	if err := getJSON(baseURL, "/api/captures", &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  CAPTURES"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 64)))

	if len(resp.Captures) == 0 {
		fmt.Println(colorize(dim, "  No capture files found."))
		fmt.Println()
		return nil
	}

	for _, c := range resp.Captures {
		fmt.Printf("  %-44s %-10s %10s\n",
			c.Filename,
			colorize(bold, c.Satellite),
			formatBytes(c.Size),
		)
	}
	fmt.Println()
	return nil
}

func deleteCapture(baseURL, name string, jsonOutput bool) error {
	path := "/api/captures?name=" + url.QueryEscape(name)
	fullURL := strings.TrimRight(baseURL, "/") + path

	req, err := newDeleteRequest(fullURL)
	if err != nil {
		return err
	}
	var resp struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := doJSON(req, &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	if resp.OK {
		fmt.Printf("  %s  %s\n", colorize(green, "DELETED"), resp.Message)
	} else {
		fmt.Printf("  %s  %s\n", colorize(red, "FAILED"), resp.Error)
	}
	fmt.Println()
	return nil
}

// Images lists decoded image files.
func Images(baseURL string, jsonOutput bool) error {
	var resp struct {
		Images []struct {
			Filename  string `json:"filename"`
			Satellite string `json:"satellite"`
			Kind      string `json:"kind"`
			Size      int64  `json:"size"`
		} `json:"images"`
	}
	if err := getJSON(baseURL, "/api/images", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  IMAGES"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 64)))

	if len(resp.Images) == 0 {
		fmt.Println(colorize(dim, "  No image files found."))
		fmt.Println()
		return nil
	}

	for _, img := range resp.Images {
		fmt.Printf("  %-48s %-10s %-12s %10s\n",
			img.Filename,
			colorize(bold, img.Satellite),
			img.Kind,
			formatBytes(img.Size),
		)
	}
	fmt.Println()
	return nil
}
