package predict

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/sgebhart/apt-station/internal/tle"
)

const (
	// refineStep and refineSamples bound the duration scan: elevation is
	// sampled every 30 simulated seconds for at most 40 samples. Usable APT
	// passes rarely exceed 20 minutes, so the scan has a hard worst case.
	refineStep    = 30 * time.Second
	refineSamples = 40

	// refineCeiling is the conservative duration reported when the scan never
	// sees the satellite drop below the horizon.
	refineCeiling = 600 * time.Second
)

// ElevationSampler reports a satellite's elevation above the observer's
// horizon, in degrees, at one instant.
type ElevationSampler interface {
	Elevation(rec tle.Record, loc Location, at time.Time) (float64, error)
}

// Refiner bounds a pass's duration and confirms its peak elevation by direct
// fixed-step sampling, independent of whatever the pass generator estimated.
type Refiner struct {
	Sampler ElevationSampler
}

// NewRefiner returns a refiner backed by the SGP4 elevation sampler.
func NewRefiner() *Refiner {
	return &Refiner{Sampler: SGP4Sampler{}}
}

// Refine samples elevation at rise and every refineStep after it. The first
// sample after the rise sample whose elevation is negative marks loss of
// signal; the elapsed time to that sample is the duration. If the scan never
// goes negative, the ceiling is returned with the best elevation observed.
// The reported elevation is clamped to [0, 90].
func (r *Refiner) Refine(rec tle.Record, loc Location, rise time.Time) (time.Duration, float64, error) {
	maxElev := 0.0

	for i := 0; i < refineSamples; i++ {
		at := rise.Add(time.Duration(i) * refineStep)
		elev, err := r.Sampler.Elevation(rec, loc, at)
		if err != nil {
			return 0, 0, fmt.Errorf("sample elevation for %s: %w", rec.Name, err)
		}

		if elev > maxElev {
			maxElev = elev
		}
		if elev < 0 && i > 0 {
			return at.Sub(rise), clampElev(maxElev), nil
		}
	}

	return refineCeiling, clampElev(maxElev), nil
}

func clampElev(e float64) float64 {
	if e < 0 {
		return 0
	}
	if e > 90 {
		return 90
	}
	return e
}

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// SGP4Sampler computes point elevations with an SGP4 propagation separate
// from the pass generator's.
type SGP4Sampler struct{}

// Elevation propagates the satellite to the given instant and returns the
// look-angle elevation from the observer, in degrees.
func (SGP4Sampler) Elevation(rec tle.Record, loc Location, at time.Time) (float64, error) {
	// Pre-validate: the SGP4 library terminates the process on garbage input.
	if err := validateElementLines(rec.Line1, rec.Line2); err != nil {
		return 0, fmt.Errorf("invalid elements for %s: %w", rec.Name, err)
	}

	sat := satellite.TLEToSat(rec.Line1, rec.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return 0, fmt.Errorf("sgp4 init failed for %s: code=%d %s", rec.Name, sat.Error, sat.ErrorStr)
	}

	at = at.UTC()
	pos, _ := satellite.Propagate(sat, at.Year(), int(at.Month()), at.Day(), at.Hour(), at.Minute(), at.Second())
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return 0, fmt.Errorf("propagation for %s produced NaN/Inf", rec.Name)
	}

	jday := satellite.JDay(at.Year(), int(at.Month()), at.Day(), at.Hour(), at.Minute(), at.Second())
	obs := satellite.LatLong{
		Latitude:  loc.Lat * deg2rad,
		Longitude: loc.Lon * deg2rad,
	}

	// go-satellite works in kilometers; station altitude is meters.
	angles := satellite.ECIToLookAngles(pos, obs, loc.Alt/1000.0, jday)
	return angles.El * rad2deg, nil
}

func validateElementLines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1'")
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2'")
	}
	return nil
}
