package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sgebhart/apt-station/internal/clock"
	"github.com/sgebhart/apt-station/internal/config"
	"github.com/sgebhart/apt-station/internal/tool"
)

var captureAOS = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeProc scripts the supervised recorder process.
type fakeProc struct {
	mu         sync.Mutex
	done       chan error
	exited     bool
	terminated bool
	killed     bool
}

func newFakeProc() *fakeProc {
	return &fakeProc{done: make(chan error, 1)}
}

func (p *fakeProc) exit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		p.exited = true
		p.done <- err
	}
}

func (p *fakeProc) Done() <-chan error { return p.done }

func (p *fakeProc) Terminate() error {
	p.mu.Lock()
	p.terminated = true
	p.mu.Unlock()
	p.exit(nil)
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit(nil)
	return nil
}

func (p *fakeProc) wasTerminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// fakeRunner hands out a scripted proc and lets the test observe the spec and
// fake the recorder's file output.
type fakeRunner struct {
	mu      sync.Mutex
	started []tool.Spec
	proc    *fakeProc
	onStart func(spec tool.Spec)
}

func (r *fakeRunner) Run(ctx context.Context, spec tool.Spec) error {
	return errors.New("unexpected Run call")
}

func (r *fakeRunner) Start(spec tool.Spec) (tool.Proc, error) {
	r.mu.Lock()
	r.started = append(r.started, spec)
	r.mu.Unlock()
	if r.onStart != nil {
		r.onStart(spec)
	}
	return r.proc, nil
}

// writeOutputFile fakes the recorder by writing bytes to the spec's output
// path (its final argument).
func writeOutputFile(t *testing.T, data []byte) func(tool.Spec) {
	return func(spec tool.Spec) {
		out := spec.Args[len(spec.Args)-1]
		if err := os.WriteFile(out, data, 0o644); err != nil {
			t.Errorf("writing fake recording: %v", err)
		}
	}
}

func captureConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Data.Audio = t.TempDir()
	return cfg
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestRecordStopsWhenDurationElapses verifies the session ends by stopping
// the recorder once the pass duration has passed, and the artifact carries
// the real file size.
func TestRecordStopsWhenDurationElapses(t *testing.T) {
	cfg := captureConfig(t)
	clk := clock.NewManual(captureAOS)
	run := &fakeRunner{proc: newFakeProc(), onStart: writeOutputFile(t, []byte("pcm!"))}
	rec := New(cfg, run, clk, nil)

	type outcome struct {
		art Artifact
		err error
	}
	results := make(chan outcome, 1)
	go func() {
		art, err := rec.Record(context.Background(), Request{
			Satellite: "NOAA 19",
			FreqHz:    137100000,
			AOS:       captureAOS,
			Duration:  12 * time.Minute,
		})
		results <- outcome{art, err}
	}()

	waitFor(t, "session timer to arm", func() bool { return clk.Waiters() == 1 })
	clk.Advance(12 * time.Minute)

	res := <-results
	if res.err != nil {
		t.Fatalf("Record returned error: %v", res.err)
	}
	if !run.proc.wasTerminated() {
		t.Error("recorder was not stopped when the duration elapsed")
	}
	if res.art.SizeBytes != 4 {
		t.Errorf("SizeBytes = %d, want 4", res.art.SizeBytes)
	}
	if got := filepath.Base(res.art.Path); got != "NOAA_19_20260301T120000Z.raw" {
		t.Errorf("artifact name = %q", got)
	}
	if !res.art.CreatedAt.Equal(clk.Now()) {
		t.Errorf("CreatedAt = %v, want clock time %v", res.art.CreatedAt, clk.Now())
	}
}

// TestRecordEarlyExitKeepsNonEmptyArtifact verifies a recorder crash is
// tolerated as long as it left usable audio behind.
func TestRecordEarlyExitKeepsNonEmptyArtifact(t *testing.T) {
	cfg := captureConfig(t)
	clk := clock.NewManual(captureAOS)
	run := &fakeRunner{proc: newFakeProc(), onStart: writeOutputFile(t, []byte("partial audio"))}
	run.proc.exit(errors.New("exit status 1"))
	rec := New(cfg, run, clk, nil)

	art, err := rec.Record(context.Background(), Request{
		Satellite: "NOAA 19", FreqHz: 137100000, AOS: captureAOS, Duration: 12 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Record returned error after early exit with data: %v", err)
	}
	if art.SizeBytes != int64(len("partial audio")) {
		t.Errorf("SizeBytes = %d, want %d", art.SizeBytes, len("partial audio"))
	}
	if run.proc.wasTerminated() {
		t.Error("recorder was signalled after it had already exited")
	}
}

// TestRecordRejectsEmptyArtifact verifies a zero-byte recording is an error
// and the file is removed rather than handed to the decoder.
func TestRecordRejectsEmptyArtifact(t *testing.T) {
	cfg := captureConfig(t)
	clk := clock.NewManual(captureAOS)
	run := &fakeRunner{proc: newFakeProc(), onStart: writeOutputFile(t, nil)}
	run.proc.exit(nil)
	rec := New(cfg, run, clk, nil)

	_, err := rec.Record(context.Background(), Request{
		Satellite: "NOAA 19", FreqHz: 137100000, AOS: captureAOS, Duration: 12 * time.Minute,
	})
	if !errors.Is(err, ErrEmptyArtifact) {
		t.Fatalf("Record error = %v, want ErrEmptyArtifact", err)
	}

	path := filepath.Join(cfg.Data.Audio, "NOAA_19_20260301T120000Z.raw")
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("empty artifact was left on disk")
	}
}

// TestRecordCancelled verifies cancellation stops the recorder and reports
// the context error.
func TestRecordCancelled(t *testing.T) {
	cfg := captureConfig(t)
	clk := clock.NewManual(captureAOS)
	run := &fakeRunner{proc: newFakeProc(), onStart: writeOutputFile(t, []byte("pcm"))}
	rec := New(cfg, run, clk, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rec.Record(ctx, Request{
		Satellite: "NOAA 19", FreqHz: 137100000, AOS: captureAOS, Duration: 12 * time.Minute,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Record error = %v, want context.Canceled", err)
	}
	if !run.proc.wasTerminated() {
		t.Error("recorder left running after cancellation")
	}
}

// TestSimulateProducesDecoderRateWAV verifies simulate mode writes a
// well-formed mono 16-bit WAV at the decoder's sample rate with a patched
// header.
func TestSimulateProducesDecoderRateWAV(t *testing.T) {
	cfg := captureConfig(t)
	cfg.Reception.Simulate = true
	clk := clock.NewManual(captureAOS)
	rec := New(cfg, &fakeRunner{}, clk, nil)

	art, err := rec.Record(context.Background(), Request{
		Satellite: "NOAA 19", FreqHz: 137100000, AOS: captureAOS, Duration: 1 * time.Second,
	})
	if err != nil {
		t.Fatalf("simulated Record returned error: %v", err)
	}
	if filepath.Ext(art.Path) != ".wav" {
		t.Errorf("artifact extension = %q, want .wav", filepath.Ext(art.Path))
	}

	wantData := uint32(11025 * 2) // one second of 16-bit mono
	if art.SizeBytes != int64(44+wantData) {
		t.Errorf("SizeBytes = %d, want %d", art.SizeBytes, 44+wantData)
	}

	b, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatalf("reading simulated wav: %v", err)
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if rate := binary.LittleEndian.Uint32(b[24:28]); rate != 11025 {
		t.Errorf("sample rate = %d, want 11025", rate)
	}
	if ch := binary.LittleEndian.Uint16(b[22:24]); ch != 1 {
		t.Errorf("channels = %d, want 1", ch)
	}
	if ds := binary.LittleEndian.Uint32(b[40:44]); ds != wantData {
		t.Errorf("data chunk size = %d, want %d", ds, wantData)
	}
	if rs := binary.LittleEndian.Uint32(b[4:8]); rs != wantData+36 {
		t.Errorf("riff chunk size = %d, want %d", rs, wantData+36)
	}
}

// TestArtifactName verifies the timestamped naming scheme.
func TestArtifactName(t *testing.T) {
	got := artifactName("NOAA 19", captureAOS, "raw")
	if got != "NOAA_19_20260301T120000Z.raw" {
		t.Errorf("artifactName = %q", got)
	}
}

// TestRTLFMSpec verifies the recorder command line, including the frequency
// offset applied to the downlink.
func TestRTLFMSpec(t *testing.T) {
	rc := config.ReceptionConfig{
		Gain:            44.5,
		SampleRate:      60000,
		FrequencyOffset: 300,
		DeviceIndex:     1,
		PPMCorrection:   -2,
	}
	spec := rtlFmSpec(rc, 137100000, "/data/audio/out.raw")

	if spec.Name != "rtl_fm" {
		t.Fatalf("command = %q, want rtl_fm", spec.Name)
	}
	want := []string{
		"-f", "137100300",
		"-s", "60000",
		"-g", "44.5",
		"-p", "-2",
		"-d", "1",
		"-E", "dc",
		"-F", "9",
		"-A", "fast",
		"/data/audio/out.raw",
	}
	if len(spec.Args) != len(want) {
		t.Fatalf("args = %v, want %v", spec.Args, want)
	}
	for i := range want {
		if spec.Args[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, spec.Args[i], want[i])
		}
	}
}
