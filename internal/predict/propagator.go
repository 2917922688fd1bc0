package predict

import (
	"errors"
	"fmt"
	"time"

	"github.com/akhenakh/sgp4"

	"github.com/sgebhart/apt-station/internal/tle"
)

// ErrNoPassInWindow signals that the propagator found no further pass before
// the window end. It ends one satellite's search and is not a failure.
var ErrNoPassInWindow = errors.New("no further pass inside the window")

// Window is one candidate overhead window as reported by the propagator.
// Duration and MaxElev are the propagator's own estimates; the refiner
// recomputes both independently before a window becomes a scheduled pass.
type Window struct {
	AOS      time.Time
	LOS      time.Time
	MaxElev  float64
	Duration time.Duration
}

// Propagator produces the next overhead window after a cursor time. It is an
// interface so prediction logic can be tested against scripted windows.
type Propagator interface {
	NextPass(rec tle.Record, loc Location, after, until time.Time) (Window, error)
}

// propagatorStepSeconds is the SGP4 scan resolution. Coarse is fine here:
// the refiner re-derives duration and elevation on its own grid.
const propagatorStepSeconds = 10

// sgp4Propagator drives the SGP4 pass generator.
type sgp4Propagator struct{}

func (sgp4Propagator) NextPass(rec tle.Record, loc Location, after, until time.Time) (Window, error) {
	if !after.Before(until) {
		return Window{}, ErrNoPassInWindow
	}

	t, err := sgp4.ParseTLE(rec.Name + "\n" + rec.Line1 + "\n" + rec.Line2)
	if err != nil {
		return Window{}, fmt.Errorf("parse elements for %s: %w", rec.Name, err)
	}

	passes, err := t.GeneratePasses(loc.Lat, loc.Lon, loc.Alt, after, until, propagatorStepSeconds)
	if err != nil {
		return Window{}, fmt.Errorf("generate passes for %s: %w", rec.Name, err)
	}

	for _, rp := range passes {
		if rp.AOS.Before(after) {
			continue
		}
		return Window{
			AOS:      rp.AOS,
			LOS:      rp.LOS,
			MaxElev:  rp.MaxElevation,
			Duration: rp.Duration,
		}, nil
	}

	return Window{}, ErrNoPassInWindow
}
