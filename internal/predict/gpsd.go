package predict

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Location is a ground station position in degrees North, degrees East, and
// meters above sea level.
type Location struct {
	Lat float64
	Lon float64
	Alt float64
}

const gpsdWatch = `?WATCH={"enable":true,"json":true};`

// gpsdReport carries the TPV fields the station cares about. Mode 2 is a 2D
// fix, mode 3 adds altitude.
type gpsdReport struct {
	Class  string  `json:"class"`
	Mode   int     `json:"mode"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	AltMSL float64 `json:"altMSL"`
}

// LocationFromGPSD asks the gpsd instance at addr for the station position.
// It enables the JSON watch stream and decodes reports until one carries at
// least a 2D fix, giving up when the timeout deadline passes or the stream
// ends.
func LocationFromGPSD(addr string, timeout time.Duration) (Location, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return Location{}, fmt.Errorf("gpsd dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Location{}, fmt.Errorf("gpsd deadline: %w", err)
	}
	if _, err := conn.Write([]byte(gpsdWatch)); err != nil {
		return Location{}, fmt.Errorf("gpsd watch: %w", err)
	}

	dec := json.NewDecoder(conn)
	for {
		var rep gpsdReport
		if err := dec.Decode(&rep); err != nil {
			return Location{}, fmt.Errorf("gpsd stream ended without a fix: %w", err)
		}
		if rep.Class == "TPV" && rep.Mode >= 2 {
			return Location{Lat: rep.Lat, Lon: rep.Lon, Alt: rep.AltMSL}, nil
		}
	}
}
