// Package pipeline turns a finished recording into APT images. It resamples
// the raw capture to the decoder's rate with sox, invokes the decoder once
// per enabled variant, and selects the image to forward. Variant failures are
// isolated: one bad decode never blocks the others.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sgebhart/apt-station/internal/capture"
	"github.com/sgebhart/apt-station/internal/config"
	"github.com/sgebhart/apt-station/internal/metrics"
	"github.com/sgebhart/apt-station/internal/telemetry"
	"github.com/sgebhart/apt-station/internal/tool"
)

// decoderRate is the sample rate the APT decoder expects.
const decoderRate = 11025

// Variant is one decoder invocation's outcome.
type Variant struct {
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	Succeeded bool   `json:"succeeded"`
}

// Result summarizes one processing run. Selected is the path to forward, or
// empty when nothing usable was produced.
type Result struct {
	Variants []Variant
	Selected string
}

// Pipeline decodes recordings into images.
type Pipeline struct {
	cfg  config.Config
	run  tool.Runner
	emit *telemetry.Emitter
}

// New creates a pipeline.
func New(cfg config.Config, run tool.Runner, emit *telemetry.Emitter) *Pipeline {
	return &Pipeline{cfg: cfg, run: run, emit: emit}
}

// Process resamples the artifact, decodes every enabled variant in the fixed
// kind order, applies the audio retention rules, and picks the image to
// forward. A resample failure is fatal for the run; individual decoder
// failures are not.
func (p *Pipeline) Process(ctx context.Context, satellite string, art capture.Artifact) (Result, error) {
	base := strings.TrimSuffix(filepath.Base(art.Path), filepath.Ext(art.Path))

	// Simulated captures are written at the decoder rate already.
	resampled := art.Path
	ownsResampled := false
	if filepath.Ext(art.Path) != ".wav" {
		resampled = filepath.Join(p.cfg.Data.Audio, base+"_11025.wav")
		ownsResampled = true
		if err := p.resample(ctx, art.Path, resampled); err != nil {
			_ = os.Remove(resampled)
			p.cleanupRaw(art.Path)
			return Result{}, fmt.Errorf("resample %s: %w", filepath.Base(art.Path), err)
		}
	}

	defer func() {
		if ownsResampled {
			_ = os.Remove(resampled)
		}
		p.cleanupRaw(art.Path)
	}()

	var res Result
	for _, kind := range config.VariantKinds {
		if !p.cfg.WantsVariant(kind) {
			continue
		}

		outPath := filepath.Join(p.cfg.Data.Images, fmt.Sprintf("%s_%s.png", base, kind))
		err := p.run.Run(ctx, decoderSpec(kind, resampled, outPath))
		ok := err == nil
		if !ok {
			removeEmptyOutput(outPath)
			p.emit.Logf("warn", "decode %s variant %s failed: %v", satellite, kind, err)
		} else {
			p.emit.Logf("info", "decoded %s variant %s -> %s", satellite, kind, filepath.Base(outPath))
		}

		metrics.VariantDecoded(kind, ok)
		p.emit.ImageReady(telemetry.ImageReady{Satellite: satellite, Kind: kind, Path: outPath, OK: ok})
		res.Variants = append(res.Variants, Variant{Kind: kind, Path: outPath, Succeeded: ok})
	}

	res.Selected = p.selectImage(res.Variants, base)
	return res, nil
}

// selectImage picks the first succeeded variant in kind order. When every
// decode failed it falls back to whatever image files for this capture are on
// disk, taking the lexicographically smallest so the choice is deterministic.
func (p *Pipeline) selectImage(variants []Variant, base string) string {
	for _, v := range variants {
		if v.Succeeded {
			return v.Path
		}
	}

	matches, err := filepath.Glob(filepath.Join(p.cfg.Data.Images, base+"_*.png"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

// removeEmptyOutput deletes a zero-byte file a failed decode left behind. A
// decoder that crashed after writing its image keeps its output on disk so
// selection can still fall back to it.
func removeEmptyOutput(path string) {
	if fi, err := os.Stat(path); err == nil && fi.Size() == 0 {
		_ = os.Remove(path)
	}
}

// resample converts the raw PCM capture to a WAV at the decoder rate.
func (p *Pipeline) resample(ctx context.Context, rawPath, wavPath string) error {
	spec := tool.Spec{
		Name: "sox",
		Args: []string{
			"-t", "raw",
			"-r", strconv.Itoa(p.cfg.Reception.SampleRate),
			"-e", "signed-integer",
			"-b", "16",
			"-c", "1",
			rawPath,
			"-r", strconv.Itoa(decoderRate),
			wavPath,
		},
	}
	p.emit.Logf("info", "resampling: %s", spec)
	return p.run.Run(ctx, spec)
}

// cleanupRaw applies the raw audio retention rule.
func (p *Pipeline) cleanupRaw(path string) {
	if p.cfg.Processing.SaveRawAudio {
		return
	}
	if err := os.Remove(path); err != nil {
		p.emit.Logf("warn", "remove raw audio %s: %v", filepath.Base(path), err)
	}
}

// decoderSpec builds one noaa-apt invocation. The basic variant is the plain
// decode; every other kind maps to a decoder enhancement.
func decoderSpec(kind, inPath, outPath string) tool.Spec {
	args := []string{"-o", outPath}
	if kind != "basic" {
		args = append(args, "-e", kind)
	}
	args = append(args, inPath)
	return tool.Spec{Name: "noaa-apt", Args: args}
}
