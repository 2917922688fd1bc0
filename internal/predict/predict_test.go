package predict

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sgebhart/apt-station/internal/config"
	"github.com/sgebhart/apt-station/internal/tle"
)

// Real ISS elements reused under each configured satellite name; the
// scripted propagator only cares about the record's name.
const (
	elemLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996"
	elemLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"
)

var predictBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// scriptedPropagator serves pre-built windows per satellite name, in order.
type scriptedPropagator struct {
	windows map[string][]Window
}

func (p scriptedPropagator) NextPass(rec tle.Record, loc Location, after, until time.Time) (Window, error) {
	for _, w := range p.windows[rec.Name] {
		if !w.AOS.Before(after) {
			return w, nil
		}
	}
	return Window{}, ErrNoPassInWindow
}

// testStore builds an element store with a fresh cache holding one record per
// given satellite name.
func testStore(t *testing.T, names ...string) *tle.Store {
	t.Helper()
	s := tle.NewStore("http://unused.invalid", t.TempDir(), 24)

	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "%s\n%s\n%s\n", n, elemLine1, elemLine2)
	}
	if err := os.WriteFile(s.CachePath(), []byte(b.String()), 0o644); err != nil {
		t.Fatalf("seeding element cache: %v", err)
	}
	return s
}

func predictConfig(sats ...config.SatelliteConfig) config.Config {
	cfg := config.Default()
	cfg.Reception.MinElevation = 20
	cfg.Satellites = sats
	return cfg
}

func window(aosOffset, duration time.Duration, maxElev float64) Window {
	aos := predictBase.Add(aosOffset)
	return Window{AOS: aos, LOS: aos.Add(duration), MaxElev: maxElev, Duration: duration}
}

// failingSampler makes refinement fail so passes keep the propagator's own
// duration estimate.
type failingSampler struct{}

func (failingSampler) Elevation(tle.Record, Location, time.Time) (float64, error) {
	return 0, errors.New("sampler unavailable")
}

// constSampler reports a fixed elevation forever, which drives refinement to
// its duration ceiling.
type constSampler float64

func (c constSampler) Elevation(tle.Record, Location, time.Time) (float64, error) {
	return float64(c), nil
}

// TestComputePassesZeroHorizon verifies a non-positive horizon yields nothing
// without consulting the element store.
func TestComputePassesZeroHorizon(t *testing.T) {
	cfg := predictConfig(config.SatelliteConfig{Name: "NOAA 19", Enabled: true, Frequency: 137100000})
	p := NewWithBackends(cfg, testStore(t, "NOAA 19"), scriptedPropagator{}, &Refiner{Sampler: failingSampler{}}, nil)

	passes, err := p.ComputePasses(predictBase, 0)
	if err != nil {
		t.Fatalf("ComputePasses returned error: %v", err)
	}
	if passes != nil {
		t.Errorf("passes = %v, want nil", passes)
	}
}

// TestComputePassesMergesAndOrders verifies passes from several satellites
// come back as one list ordered by AOS, carrying each satellite's frequency.
func TestComputePassesMergesAndOrders(t *testing.T) {
	cfg := predictConfig(
		config.SatelliteConfig{Name: "NOAA 15", Enabled: true, Frequency: 137620000},
		config.SatelliteConfig{Name: "NOAA 19", Enabled: true, Frequency: 137100000},
	)
	prop := scriptedPropagator{windows: map[string][]Window{
		"NOAA 15": {window(3*time.Hour, 12*time.Minute, 55)},
		"NOAA 19": {window(1*time.Hour, 10*time.Minute, 62), window(5*time.Hour, 9*time.Minute, 40)},
	}}
	p := NewWithBackends(cfg, testStore(t, "NOAA 15", "NOAA 19"), prop, &Refiner{Sampler: failingSampler{}}, nil)

	passes, err := p.ComputePasses(predictBase, 12*time.Hour)
	if err != nil {
		t.Fatalf("ComputePasses returned error: %v", err)
	}
	if len(passes) != 3 {
		t.Fatalf("pass count = %d, want 3", len(passes))
	}

	wantOrder := []string{"NOAA 19", "NOAA 15", "NOAA 19"}
	for i, want := range wantOrder {
		if passes[i].Satellite != want {
			t.Errorf("pass %d satellite = %q, want %q", i, passes[i].Satellite, want)
		}
	}
	for i := 1; i < len(passes); i++ {
		if passes[i].AOS.Before(passes[i-1].AOS) {
			t.Errorf("passes not ordered by AOS: %v before %v", passes[i].AOS, passes[i-1].AOS)
		}
	}
	if passes[0].FreqHz != 137100000 {
		t.Errorf("pass 0 frequency = %d, want 137100000", passes[0].FreqHz)
	}

	// Refinement failed, so the propagator's duration estimate stands.
	if passes[0].Duration != 10*time.Minute {
		t.Errorf("pass 0 duration = %s, want the propagator estimate of 10m", passes[0].Duration)
	}
}

// TestComputePassesMinElevationBoundary verifies passes peaking below the
// threshold are dropped and a peak exactly at the threshold is kept.
func TestComputePassesMinElevationBoundary(t *testing.T) {
	cfg := predictConfig(config.SatelliteConfig{Name: "NOAA 19", Enabled: true, Frequency: 137100000})
	prop := scriptedPropagator{windows: map[string][]Window{
		"NOAA 19": {
			window(1*time.Hour, 10*time.Minute, 19.9),
			window(3*time.Hour, 10*time.Minute, 20.0),
		},
	}}
	p := NewWithBackends(cfg, testStore(t, "NOAA 19"), prop, &Refiner{Sampler: failingSampler{}}, nil)

	passes, err := p.ComputePasses(predictBase, 12*time.Hour)
	if err != nil {
		t.Fatalf("ComputePasses returned error: %v", err)
	}
	if len(passes) != 1 {
		t.Fatalf("pass count = %d, want only the pass at the threshold", len(passes))
	}
	if passes[0].AOS != predictBase.Add(3*time.Hour) {
		t.Errorf("kept the wrong pass: AOS = %v", passes[0].AOS)
	}
}

// TestComputePassesSkipsDisabledSatellite verifies disabled catalog entries
// never reach the propagator.
func TestComputePassesSkipsDisabledSatellite(t *testing.T) {
	cfg := predictConfig(
		config.SatelliteConfig{Name: "NOAA 15", Enabled: false, Frequency: 137620000},
		config.SatelliteConfig{Name: "NOAA 19", Enabled: true, Frequency: 137100000},
	)
	prop := scriptedPropagator{windows: map[string][]Window{
		"NOAA 15": {window(1*time.Hour, 10*time.Minute, 80)},
		"NOAA 19": {window(2*time.Hour, 10*time.Minute, 50)},
	}}
	p := NewWithBackends(cfg, testStore(t, "NOAA 15", "NOAA 19"), prop, &Refiner{Sampler: failingSampler{}}, nil)

	passes, err := p.ComputePasses(predictBase, 12*time.Hour)
	if err != nil {
		t.Fatalf("ComputePasses returned error: %v", err)
	}
	if len(passes) != 1 || passes[0].Satellite != "NOAA 19" {
		t.Errorf("passes = %+v, want only NOAA 19", passes)
	}
}

// TestComputePassesSkipsMissingRecord verifies a satellite absent from the
// element set is skipped without failing the whole prediction.
func TestComputePassesSkipsMissingRecord(t *testing.T) {
	cfg := predictConfig(
		config.SatelliteConfig{Name: "NOAA 15", Enabled: true, Frequency: 137620000},
		config.SatelliteConfig{Name: "NOAA 19", Enabled: true, Frequency: 137100000},
	)
	prop := scriptedPropagator{windows: map[string][]Window{
		"NOAA 19": {window(2*time.Hour, 10*time.Minute, 50)},
	}}
	// Cache only holds NOAA 19.
	p := NewWithBackends(cfg, testStore(t, "NOAA 19"), prop, &Refiner{Sampler: failingSampler{}}, nil)

	passes, err := p.ComputePasses(predictBase, 12*time.Hour)
	if err != nil {
		t.Fatalf("ComputePasses returned error: %v", err)
	}
	if len(passes) != 1 || passes[0].Satellite != "NOAA 19" {
		t.Errorf("passes = %+v, want only NOAA 19", passes)
	}
}

// TestComputePassesRefineOverridesEstimate verifies a successful refinement
// replaces the propagator's duration and LOS, and can raise the peak
// elevation.
func TestComputePassesRefineOverridesEstimate(t *testing.T) {
	cfg := predictConfig(config.SatelliteConfig{Name: "NOAA 19", Enabled: true, Frequency: 137100000})
	prop := scriptedPropagator{windows: map[string][]Window{
		"NOAA 19": {window(1*time.Hour, 20*time.Minute, 30)},
	}}
	// A constant 45 degree sampler drives refinement to its 600s ceiling.
	p := NewWithBackends(cfg, testStore(t, "NOAA 19"), prop, &Refiner{Sampler: constSampler(45)}, nil)

	passes, err := p.ComputePasses(predictBase, 12*time.Hour)
	if err != nil {
		t.Fatalf("ComputePasses returned error: %v", err)
	}
	if len(passes) != 1 {
		t.Fatalf("pass count = %d, want 1", len(passes))
	}

	pass := passes[0]
	if pass.Duration != 600*time.Second {
		t.Errorf("duration = %s, want the refined 600s", pass.Duration)
	}
	if !pass.LOS.Equal(pass.AOS.Add(600 * time.Second)) {
		t.Errorf("LOS = %v, want AOS+600s", pass.LOS)
	}
	if pass.MaxElev != 45 {
		t.Errorf("max elevation = %v, want the refined 45", pass.MaxElev)
	}
}

// TestComputePassesLoadFailure verifies an unusable element store fails the
// prediction with a wrapped error.
func TestComputePassesLoadFailure(t *testing.T) {
	cfg := predictConfig(config.SatelliteConfig{Name: "NOAA 19", Enabled: true, Frequency: 137100000})
	// Empty cache dir and an unreachable URL: every source is exhausted.
	store := tle.NewStore("http://127.0.0.1:1/", t.TempDir(), 24)
	p := NewWithBackends(cfg, store, scriptedPropagator{}, &Refiner{Sampler: failingSampler{}}, nil)

	if _, err := p.ComputePasses(predictBase, 12*time.Hour); err == nil {
		t.Fatal("ComputePasses succeeded with no element source")
	}
}

// TestResolveLocationFromConfig verifies the configured coordinates are used
// when gpsd is disabled.
func TestResolveLocationFromConfig(t *testing.T) {
	cfg := predictConfig(config.SatelliteConfig{Name: "NOAA 19", Enabled: true, Frequency: 137100000})
	cfg.Station.Latitude = 47.6
	cfg.Station.Longitude = -122.3
	cfg.Station.Altitude = 56
	p := NewWithBackends(cfg, testStore(t, "NOAA 19"), scriptedPropagator{}, &Refiner{Sampler: failingSampler{}}, nil)

	loc := p.ResolveLocation()
	if loc.Lat != 47.6 || loc.Lon != -122.3 || loc.Alt != 56 {
		t.Errorf("location = %+v, want the configured coordinates", loc)
	}
}
