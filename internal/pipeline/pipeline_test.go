package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sgebhart/apt-station/internal/capture"
	"github.com/sgebhart/apt-station/internal/config"
	"github.com/sgebhart/apt-station/internal/tool"
)

// fakeRunner records every invocation and routes it through a scriptable
// handler. By default sox and noaa-apt both succeed and create their output
// file, like the real tools do.
type fakeRunner struct {
	specs []tool.Spec
	runFn func(spec tool.Spec) error
}

func (r *fakeRunner) Run(ctx context.Context, spec tool.Spec) error {
	r.specs = append(r.specs, spec)
	if r.runFn != nil {
		return r.runFn(spec)
	}
	return createOutput(spec)
}

func (r *fakeRunner) Start(spec tool.Spec) (tool.Proc, error) {
	return nil, errors.New("unexpected Start call")
}

func (r *fakeRunner) specsFor(name string) []tool.Spec {
	var out []tool.Spec
	for _, s := range r.specs {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// createOutput mimics a tool writing its output file. For sox the output is
// the last argument; for noaa-apt it follows -o.
func createOutput(spec tool.Spec) error {
	var out string
	switch spec.Name {
	case "sox":
		out = spec.Args[len(spec.Args)-1]
	case "noaa-apt":
		out = spec.Args[1]
	default:
		return nil
	}
	return os.WriteFile(out, []byte("output"), 0o644)
}

// decoderKind extracts the variant kind from a noaa-apt spec. Plain decode
// (no -e flag) is the basic variant.
func decoderKind(spec tool.Spec) string {
	for i, a := range spec.Args {
		if a == "-e" && i+1 < len(spec.Args) {
			return spec.Args[i+1]
		}
	}
	return "basic"
}

func pipelineConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Data.Audio = t.TempDir()
	cfg.Data.Images = t.TempDir()
	return cfg
}

// rawArtifact drops a fake raw recording into the audio dir.
func rawArtifact(t *testing.T, cfg config.Config) capture.Artifact {
	t.Helper()
	path := filepath.Join(cfg.Data.Audio, "NOAA_19_20260301T120000Z.raw")
	if err := os.WriteFile(path, []byte("raw pcm"), 0o644); err != nil {
		t.Fatalf("writing fake recording: %v", err)
	}
	return capture.Artifact{Path: path, SizeBytes: 7}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// TestProcessDecodesVariantsInDeclaredOrder verifies the pipeline resamples
// first, then attempts enabled variants in the fixed kind order regardless of
// their order in the config, and selects the first success.
func TestProcessDecodesVariantsInDeclaredOrder(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.Processing.Variants = []string{"msa", "basic"} // config order reversed on purpose
	run := &fakeRunner{}
	p := New(cfg, run, nil)

	art := rawArtifact(t, cfg)
	res, err := p.Process(context.Background(), "NOAA 19", art)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(run.specs) == 0 || run.specs[0].Name != "sox" {
		t.Fatal("resample did not run before decoding")
	}

	decodes := run.specsFor("noaa-apt")
	if len(decodes) != 2 {
		t.Fatalf("decoder invocations = %d, want 2", len(decodes))
	}
	if decoderKind(decodes[0]) != "basic" || decoderKind(decodes[1]) != "msa" {
		t.Errorf("decode order = %s, %s; want basic, msa", decoderKind(decodes[0]), decoderKind(decodes[1]))
	}

	if !strings.HasSuffix(res.Selected, "_basic.png") {
		t.Errorf("Selected = %q, want the basic variant", res.Selected)
	}

	// Resampled intermediate is gone, raw audio kept per default retention.
	if exists(filepath.Join(cfg.Data.Audio, "NOAA_19_20260301T120000Z_11025.wav")) {
		t.Error("resampled wav was not cleaned up")
	}
	if !exists(art.Path) {
		t.Error("raw audio removed despite save_raw_audio")
	}
}

// TestProcessResampleFailureIsFatal verifies a failed resample aborts the run
// with no decode attempts, while still honoring audio retention.
func TestProcessResampleFailureIsFatal(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.Processing.SaveRawAudio = false
	run := &fakeRunner{runFn: func(spec tool.Spec) error {
		if spec.Name == "sox" {
			return errors.New("sox: unknown format")
		}
		return createOutput(spec)
	}}
	p := New(cfg, run, nil)

	art := rawArtifact(t, cfg)
	_, err := p.Process(context.Background(), "NOAA 19", art)
	if err == nil {
		t.Fatal("Process succeeded despite a failed resample")
	}
	if len(run.specsFor("noaa-apt")) != 0 {
		t.Error("decoder ran on an unresampled capture")
	}
	if exists(art.Path) {
		t.Error("raw audio kept although save_raw_audio is off")
	}
}

// TestProcessVariantFailureIsIsolated verifies one failing decode neither
// stops the remaining variants nor wins selection.
func TestProcessVariantFailureIsIsolated(t *testing.T) {
	cfg := pipelineConfig(t)
	run := &fakeRunner{runFn: func(spec tool.Spec) error {
		if spec.Name == "noaa-apt" && decoderKind(spec) == "basic" {
			return errors.New("decode blew up")
		}
		return createOutput(spec)
	}}
	p := New(cfg, run, nil)

	res, err := p.Process(context.Background(), "NOAA 19", rawArtifact(t, cfg))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(res.Variants) != len(config.VariantKinds) {
		t.Fatalf("variant count = %d, want %d", len(res.Variants), len(config.VariantKinds))
	}
	if res.Variants[0].Kind != "basic" || res.Variants[0].Succeeded {
		t.Errorf("basic variant = %+v, want a recorded failure", res.Variants[0])
	}
	for _, v := range res.Variants[1:] {
		if !v.Succeeded {
			t.Errorf("variant %s failed, expected success", v.Kind)
		}
	}

	// Selection falls to the first success in kind order.
	if !strings.HasSuffix(res.Selected, "_msa.png") {
		t.Errorf("Selected = %q, want the msa variant", res.Selected)
	}
}

// TestProcessSelectionFallsBackToGlob verifies that when every decode fails,
// selection falls back to the lexicographically smallest matching image left
// on disk, and to nothing when the disk is bare too.
func TestProcessSelectionFallsBackToGlob(t *testing.T) {
	cfg := pipelineConfig(t)
	run := &fakeRunner{runFn: func(spec tool.Spec) error {
		if spec.Name == "noaa-apt" {
			return errors.New("decode blew up")
		}
		return createOutput(spec)
	}}
	p := New(cfg, run, nil)

	// Leftovers from an earlier partial run of the same capture.
	for _, name := range []string{"NOAA_19_20260301T120000Z_zz.png", "NOAA_19_20260301T120000Z_aa.png"} {
		if err := os.WriteFile(filepath.Join(cfg.Data.Images, name), []byte("png"), 0o644); err != nil {
			t.Fatalf("seeding image dir: %v", err)
		}
	}

	res, err := p.Process(context.Background(), "NOAA 19", rawArtifact(t, cfg))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if !strings.HasSuffix(res.Selected, "_aa.png") {
		t.Errorf("Selected = %q, want the lexicographically smallest leftover", res.Selected)
	}

	// Same failure with an empty image dir selects nothing.
	cfg2 := pipelineConfig(t)
	p2 := New(cfg2, &fakeRunner{runFn: run.runFn}, nil)
	res2, err := p2.Process(context.Background(), "NOAA 19", rawArtifact(t, cfg2))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if res2.Selected != "" {
		t.Errorf("Selected = %q, want empty when nothing usable exists", res2.Selected)
	}
}

// TestProcessKeepsImagesFromCrashedDecoders verifies a decoder that writes
// its image and then exits nonzero still contributes to selection: the files
// survive and the glob fallback picks the smallest one.
func TestProcessKeepsImagesFromCrashedDecoders(t *testing.T) {
	cfg := pipelineConfig(t)
	run := &fakeRunner{runFn: func(spec tool.Spec) error {
		if err := createOutput(spec); err != nil {
			return err
		}
		if spec.Name == "noaa-apt" {
			return errors.New("decoder exited with status 1")
		}
		return nil
	}}
	p := New(cfg, run, nil)

	res, err := p.Process(context.Background(), "NOAA 19", rawArtifact(t, cfg))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	for _, v := range res.Variants {
		if v.Succeeded {
			t.Errorf("variant %s reported success despite the decoder failing", v.Kind)
		}
		if !exists(v.Path) {
			t.Errorf("variant %s output was deleted", v.Kind)
		}
	}
	if !strings.HasSuffix(res.Selected, "_basic.png") {
		t.Errorf("Selected = %q, want the smallest surviving image", res.Selected)
	}
}

// TestProcessRemovesEmptyFailedOutput verifies a failed decode that left only
// a zero-byte file does not pollute the image dir or win selection.
func TestProcessRemovesEmptyFailedOutput(t *testing.T) {
	cfg := pipelineConfig(t)
	run := &fakeRunner{runFn: func(spec tool.Spec) error {
		if spec.Name == "noaa-apt" {
			if err := os.WriteFile(spec.Args[1], nil, 0o644); err != nil {
				return err
			}
			return errors.New("decode blew up")
		}
		return createOutput(spec)
	}}
	p := New(cfg, run, nil)

	res, err := p.Process(context.Background(), "NOAA 19", rawArtifact(t, cfg))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if res.Selected != "" {
		t.Errorf("Selected = %q, want empty", res.Selected)
	}
	for _, v := range res.Variants {
		if exists(v.Path) {
			t.Errorf("empty output for variant %s was kept", v.Kind)
		}
	}
}

// TestProcessSkipsResampleForWAV verifies a capture already at the decoder
// rate (simulate mode) goes straight to decoding and is not deleted as an
// intermediate.
func TestProcessSkipsResampleForWAV(t *testing.T) {
	cfg := pipelineConfig(t)
	run := &fakeRunner{}
	p := New(cfg, run, nil)

	path := filepath.Join(cfg.Data.Audio, "NOAA_19_20260301T120000Z.wav")
	if err := os.WriteFile(path, []byte("wav data"), 0o644); err != nil {
		t.Fatalf("writing fake wav: %v", err)
	}

	res, err := p.Process(context.Background(), "NOAA 19", capture.Artifact{Path: path, SizeBytes: 8})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(run.specsFor("sox")) != 0 {
		t.Error("resample ran for a decoder-rate wav")
	}
	if res.Selected == "" {
		t.Error("no image selected")
	}
	if !exists(path) {
		t.Error("wav artifact removed despite save_raw_audio")
	}

	// The decoder must have consumed the wav directly.
	decodes := run.specsFor("noaa-apt")
	if len(decodes) == 0 || decodes[0].Args[len(decodes[0].Args)-1] != path {
		t.Error("decoder did not read the wav artifact directly")
	}
}

// TestResampleSpec verifies the sox invocation describes the raw input
// format and the decoder output rate.
func TestResampleSpec(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.Reception.SampleRate = 60000
	run := &fakeRunner{}
	p := New(cfg, run, nil)

	if _, err := p.Process(context.Background(), "NOAA 19", rawArtifact(t, cfg)); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	soxSpecs := run.specsFor("sox")
	if len(soxSpecs) != 1 {
		t.Fatalf("sox invocations = %d, want 1", len(soxSpecs))
	}
	args := strings.Join(soxSpecs[0].Args, " ")
	for _, want := range []string{"-t raw", "-r 60000", "-e signed-integer", "-b 16", "-c 1", "-r 11025"} {
		if !strings.Contains(args, want) {
			t.Errorf("sox args %q missing %q", args, want)
		}
	}
}

// TestDecoderSpec verifies the basic variant is a plain decode and every
// other kind maps to an enhancement flag.
func TestDecoderSpec(t *testing.T) {
	basic := decoderSpec("basic", "in.wav", "out.png")
	if got := strings.Join(basic.Args, " "); got != "-o out.png in.wav" {
		t.Errorf("basic args = %q", got)
	}

	msa := decoderSpec("msa-precip", "in.wav", "out.png")
	if got := strings.Join(msa.Args, " "); got != "-o out.png -e msa-precip in.wav" {
		t.Errorf("msa-precip args = %q", got)
	}
}
