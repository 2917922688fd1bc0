// Package capture records one satellite pass at a time by supervising an
// external rtl_fm process writing raw PCM to disk. A simulate mode generates
// a synthetic APT-band recording instead, so the rest of the station can run
// without SDR hardware.
package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sgebhart/apt-station/internal/clock"
	"github.com/sgebhart/apt-station/internal/config"
	"github.com/sgebhart/apt-station/internal/telemetry"
	"github.com/sgebhart/apt-station/internal/tool"
)

// ErrEmptyArtifact reports that the recorder exited leaving a zero-byte file.
// Such a capture must not reach the decode pipeline.
var ErrEmptyArtifact = errors.New("capture produced no audio")

// stopGrace is how long the recorder gets to exit after SIGTERM before it is
// killed.
const stopGrace = 5 * time.Second

// aptAudioRate is the sample rate the APT decoder expects.
const aptAudioRate = 11025

// Request holds the parameters for a single recording session.
type Request struct {
	Satellite string
	FreqHz    int
	AOS       time.Time
	Duration  time.Duration
}

// Artifact describes a completed, non-empty recording on disk.
type Artifact struct {
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}

// Recorder runs recording sessions. The external recorder and the clock are
// injected so sessions can be driven in tests without rtl_fm or real waits.
type Recorder struct {
	cfg  config.Config
	run  tool.Runner
	clk  clock.Clock
	emit *telemetry.Emitter
}

// New creates a recorder.
func New(cfg config.Config, run tool.Runner, clk clock.Clock, emit *telemetry.Emitter) *Recorder {
	return &Recorder{cfg: cfg, run: run, clk: clk, emit: emit}
}

// Record captures one pass and returns the resulting artifact. The session
// ends when the pass duration elapses, when the recorder exits on its own, or
// when ctx is cancelled; in the first and last cases the recorder is stopped
// with a grace period before being killed. An early recorder exit is only an
// error if the artifact ends up empty.
func (r *Recorder) Record(ctx context.Context, req Request) (Artifact, error) {
	if r.cfg.Reception.Simulate {
		return r.simulate(ctx, req)
	}

	path := filepath.Join(r.cfg.Data.Audio, artifactName(req.Satellite, req.AOS, "raw"))
	spec := rtlFmSpec(r.cfg.Reception, req.FreqHz, path)

	r.emit.Logf("info", "recording %s for %s: %s", req.Satellite, req.Duration.Truncate(time.Second), spec)

	proc, err := r.run.Start(spec)
	if err != nil {
		return Artifact{}, fmt.Errorf("start recorder: %w", err)
	}

	select {
	case <-ctx.Done():
		tool.Stop(proc, stopGrace)
		return Artifact{}, ctx.Err()
	case err := <-proc.Done():
		if err != nil {
			r.emit.Logf("warn", "recorder exited early: %v", err)
		}
	case <-r.clk.After(req.Duration):
		tool.Stop(proc, stopGrace)
	}

	return r.finalize(path)
}

// finalize validates the recording and rejects empty files, removing them so
// they don't linger in the audio directory.
func (r *Recorder) finalize(path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("inspect recording: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return Artifact{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmptyArtifact)
	}
	return Artifact{Path: path, SizeBytes: info.Size(), CreatedAt: r.clk.Now()}, nil
}

// simulate writes a synthetic 2400 Hz tone (the APT subcarrier) directly at
// the decoder's sample rate, producing a WAV the pipeline can hand to the
// decoder without resampling.
func (r *Recorder) simulate(ctx context.Context, req Request) (Artifact, error) {
	path := filepath.Join(r.cfg.Data.Audio, artifactName(req.Satellite, req.AOS, "wav"))

	r.emit.Logf("info", "simulating capture for %s -> %s", req.Satellite, filepath.Base(path))

	f, err := os.Create(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("create simulated wav: %w", err)
	}
	defer f.Close()

	if err := writeWAVHeader(f, aptAudioRate, 0); err != nil {
		return Artifact{}, fmt.Errorf("write wav header: %w", err)
	}

	totalSamples := int(req.Duration.Seconds()) * aptAudioRate
	const chunkSamples = 4096
	const toneHz = 2400.0
	buf := make([]byte, chunkSamples*2)

	written := 0
	for written < totalSamples {
		select {
		case <-ctx.Done():
			return Artifact{}, ctx.Err()
		default:
		}

		n := chunkSamples
		if written+n > totalSamples {
			n = totalSamples - written
		}
		for i := 0; i < n; i++ {
			t := float64(written+i) / float64(aptAudioRate)
			sample := int16(16000.0 * math.Sin(2.0*math.Pi*toneHz*t))
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
		}
		if _, err := f.Write(buf[:n*2]); err != nil {
			return Artifact{}, fmt.Errorf("write simulated audio: %w", err)
		}
		written += n

		if written%(aptAudioRate*30) < chunkSamples {
			pct := float64(written) / float64(totalSamples) * 100
			r.emit.Progress("recording", int(pct), fmt.Sprintf("%s simulated capture", req.Satellite))
		}
	}

	if err := fixWAVHeader(f); err != nil {
		return Artifact{}, fmt.Errorf("finalize wav header: %w", err)
	}

	return r.finalize(path)
}

// artifactName builds the timestamped file name for a recording.
func artifactName(satellite string, aos time.Time, ext string) string {
	name := strings.ReplaceAll(satellite, " ", "_")
	return fmt.Sprintf("%s_%s.%s", name, aos.UTC().Format("20060102T150405Z"), ext)
}

// rtlFmSpec assembles the recorder invocation. The output file path is the
// final argument; rtl_fm emits signed 16-bit LE mono PCM at the configured
// sample rate.
func rtlFmSpec(rc config.ReceptionConfig, freqHz int, outPath string) tool.Spec {
	return tool.Spec{
		Name: "rtl_fm",
		Args: []string{
			"-f", strconv.Itoa(freqHz + rc.FrequencyOffset),
			"-s", strconv.Itoa(rc.SampleRate),
			"-g", fmt.Sprintf("%.1f", rc.Gain),
			"-p", strconv.Itoa(rc.PPMCorrection),
			"-d", strconv.Itoa(rc.DeviceIndex),
			"-E", "dc",
			"-F", "9",
			"-A", "fast",
			outPath,
		},
	}
}
