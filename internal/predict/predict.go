// Package predict computes upcoming APT satellite passes for the ground
// station. The pass generator enumerates candidate windows per satellite, the
// refiner independently bounds each window's duration and peak elevation, and
// the predictor merges everything into a single list ordered by AOS.
package predict

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sgebhart/apt-station/internal/config"
	"github.com/sgebhart/apt-station/internal/telemetry"
	"github.com/sgebhart/apt-station/internal/tle"
)

// Pass describes a single predicted overhead pass, from acquisition of
// signal (AOS) through loss of signal (LOS). Passes are created here, read
// by the scheduler, and discarded after capture.
type Pass struct {
	Satellite string
	FreqHz    int
	AOS       time.Time
	LOS       time.Time
	MaxElev   float64
	Duration  time.Duration
}

// Predictor combines the element store, the station location, and the pass
// generator into ordered pass lists.
type Predictor struct {
	cfg     config.Config
	store   *tle.Store
	prop    Propagator
	refiner *Refiner
	emit    *telemetry.Emitter
}

// New creates a predictor using the SGP4 pass generator and refiner.
func New(cfg config.Config, store *tle.Store, emit *telemetry.Emitter) *Predictor {
	return &Predictor{
		cfg:     cfg,
		store:   store,
		prop:    sgp4Propagator{},
		refiner: NewRefiner(),
		emit:    emit,
	}
}

// NewWithBackends creates a predictor with explicit propagation backends.
// Tests use it to inject scripted windows and elevations.
func NewWithBackends(cfg config.Config, store *tle.Store, prop Propagator, refiner *Refiner, emit *telemetry.Emitter) *Predictor {
	return &Predictor{cfg: cfg, store: store, prop: prop, refiner: refiner, emit: emit}
}

// ResolveLocation determines the ground station position. If use_gpsd is
// set, gpsd is tried first with a fallback to the configured coordinates.
func (p *Predictor) ResolveLocation() Location {
	if p.cfg.Station.UseGPSD {
		loc, err := LocationFromGPSD(p.cfg.Station.GPSDHost, 10*time.Second)
		if err != nil {
			p.emit.Logf("warn", "gpsd failed (%v), falling back to configured location", err)
		} else {
			return loc
		}
	}

	return Location{
		Lat: p.cfg.Station.Latitude,
		Lon: p.cfg.Station.Longitude,
		Alt: p.cfg.Station.Altitude,
	}
}

// ComputePasses returns every pass of an enabled satellite that starts inside
// [from, from+horizon) and peaks at or above the configured minimum
// elevation, ordered by AOS ascending. A satellite with no element record or
// a failing propagation is skipped; it never fails the whole prediction.
func (p *Predictor) ComputePasses(from time.Time, horizon time.Duration) ([]Pass, error) {
	if horizon <= 0 {
		return nil, nil
	}

	set, err := p.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load elements: %w", err)
	}

	loc := p.ResolveLocation()
	end := from.Add(horizon)

	var all []Pass
	for _, sat := range p.cfg.EnabledSatellites() {
		rec, err := set.Lookup(sat.Name)
		if err != nil {
			p.emit.Logf("warn", "no element record for %s, skipping", sat.Name)
			continue
		}
		all = append(all, p.satellitePasses(sat, rec, loc, from, end)...)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].AOS.Before(all[j].AOS)
	})

	return all, nil
}

// satellitePasses walks one satellite's windows from the cursor until the
// propagator runs out of passes before the horizon end.
func (p *Predictor) satellitePasses(sat config.SatelliteConfig, rec tle.Record, loc Location, cursor, end time.Time) []Pass {
	var passes []Pass

	for {
		win, err := p.prop.NextPass(rec, loc, cursor, end)
		if errors.Is(err, ErrNoPassInWindow) {
			return passes
		}
		if err != nil {
			p.emit.Logf("error", "propagation failed for %s: %v", sat.Name, err)
			return passes
		}
		if win.AOS.After(end) {
			return passes
		}

		if win.MaxElev >= p.cfg.Reception.MinElevation {
			pass := Pass{
				Satellite: sat.Name,
				FreqHz:    sat.Frequency,
				AOS:       win.AOS,
				LOS:       win.LOS,
				MaxElev:   win.MaxElev,
				Duration:  win.LOS.Sub(win.AOS),
			}

			dur, elev, err := p.refiner.Refine(rec, loc, win.AOS)
			if err != nil {
				// Fall back to the generator's own estimate for this pass.
				p.emit.Logf("warn", "duration refinement failed for %s: %v", sat.Name, err)
			} else {
				pass.Duration = dur
				pass.LOS = win.AOS.Add(dur)
				if elev > pass.MaxElev {
					pass.MaxElev = elev
				}
			}
			if pass.MaxElev > 90 {
				pass.MaxElev = 90
			}

			p.emit.Logf("info", "%s: AOS %s, max el %.1f°, duration %s",
				sat.Name, pass.AOS.Format(time.RFC3339), pass.MaxElev, pass.Duration.Truncate(time.Second))
			passes = append(passes, pass)
		}

		// Advance to just past this window's set time.
		cursor = win.LOS.Add(time.Minute)
	}
}
