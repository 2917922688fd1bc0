// Package forward ships a decoded image to the display node over scp.
// Forwarding is best effort: a failure is reported but never disturbs the
// capture loop, and authentication uses a key file only.
package forward

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sgebhart/apt-station/internal/config"
	"github.com/sgebhart/apt-station/internal/metrics"
	"github.com/sgebhart/apt-station/internal/telemetry"
	"github.com/sgebhart/apt-station/internal/tool"
)

// Forwarder copies images to the configured display host.
type Forwarder struct {
	cfg  config.ForwardConfig
	run  tool.Runner
	emit *telemetry.Emitter
}

// New creates a forwarder.
func New(cfg config.ForwardConfig, run tool.Runner, emit *telemetry.Emitter) *Forwarder {
	return &Forwarder{cfg: cfg, run: run, emit: emit}
}

// Send copies one image to the display node, bounded by the configured
// timeout. It is a no-op when forwarding is disabled or no image was
// selected. The returned error is informational; callers log it and move on.
func (f *Forwarder) Send(ctx context.Context, path string) error {
	if !f.cfg.Enabled || path == "" {
		return nil
	}

	timeout := time.Duration(f.cfg.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	spec := f.scpSpec(path)
	f.emit.Logf("info", "forwarding %s to %s", filepath.Base(path), f.cfg.Host)

	err := f.run.Run(ctx, spec)
	ok := err == nil

	metrics.ForwardAttempted(ok)
	ev := telemetry.ForwardResult{Path: path, OK: ok}
	if err != nil {
		ev.Error = err.Error()
	}
	f.emit.ForwardResult(ev)

	if err != nil {
		return fmt.Errorf("forward %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (f *Forwarder) scpSpec(path string) tool.Spec {
	args := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
	}
	if f.cfg.IdentityFile != "" {
		args = append(args, "-i", f.cfg.IdentityFile)
	}

	dest := fmt.Sprintf("%s@%s:%s/", f.cfg.User, f.cfg.Host, strings.TrimSuffix(f.cfg.RemoteDir, "/"))
	args = append(args, path, dest)

	return tool.Spec{Name: "scp", Args: args}
}
