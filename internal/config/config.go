// Package config handles loading, defaulting, and validation of the apt-station
// TOML configuration file. Every section maps to a typed struct so the rest
// of the codebase gets strong typing without manual key lookups.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Data       DataConfig        `toml:"data"       json:"data"`
	Server     ServerConfig      `toml:"server"     json:"server"`
	Station    StationConfig     `toml:"station"    json:"station"`
	Reception  ReceptionConfig   `toml:"reception"  json:"reception"`
	Satellites []SatelliteConfig `toml:"satellites" json:"satellites"`
	Predict    PredictConfig     `toml:"predict"    json:"predict"`
	Processing ProcessingConfig  `toml:"processing" json:"processing"`
	Forward    ForwardConfig     `toml:"forward"    json:"forward"`
}

type DataConfig struct {
	TLE    string `toml:"tle"    json:"tle"`
	Audio  string `toml:"audio"  json:"audio"`
	Images string `toml:"images" json:"images"`
	Logs   string `toml:"logs"   json:"logs"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

type StationConfig struct {
	Latitude  float64 `toml:"latitude"  json:"latitude"`
	Longitude float64 `toml:"longitude" json:"longitude"`
	Altitude  float64 `toml:"altitude"  json:"altitude"`
	UseGPSD   bool    `toml:"use_gpsd"  json:"use_gpsd"`
	GPSDHost  string  `toml:"gpsd_host" json:"gpsd_host"`
}

type ReceptionConfig struct {
	MinElevation    float64 `toml:"min_elevation"    json:"min_elevation"`
	Gain            float64 `toml:"gain"             json:"gain"`
	SampleRate      int     `toml:"sample_rate"      json:"sample_rate"`
	FrequencyOffset int     `toml:"frequency_offset" json:"frequency_offset"`
	DeviceIndex     int     `toml:"device_index"     json:"device_index"`
	PPMCorrection   int     `toml:"ppm_correction"   json:"ppm_correction"`
	Simulate        bool    `toml:"simulate"         json:"simulate"`
}

// SatelliteConfig is the source of truth for which satellites get scheduled.
type SatelliteConfig struct {
	Name      string `toml:"name"      json:"name"`
	Enabled   bool   `toml:"enabled"   json:"enabled"`
	Frequency int    `toml:"frequency" json:"frequency"` // downlink frequency in Hz
}

type PredictConfig struct {
	TLEURL          string `toml:"tle_url"           json:"tle_url"`
	TLERefreshHours int    `toml:"tle_refresh_hours" json:"tle_refresh_hours"`
	LookaheadHours  int    `toml:"lookahead_hours"   json:"lookahead_hours"`
}

type ProcessingConfig struct {
	// Variants selects which decoder outputs to generate. Order here does not
	// matter; the pipeline always attempts kinds in its fixed declared order.
	Variants     []string `toml:"variants"       json:"variants"`
	SaveRawAudio bool     `toml:"save_raw_audio" json:"save_raw_audio"`
}

type ForwardConfig struct {
	Enabled        bool   `toml:"enabled"         json:"enabled"`
	Host           string `toml:"host"            json:"host"`
	User           string `toml:"user"            json:"user"`
	RemoteDir      string `toml:"remote_dir"      json:"remote_dir"`
	IdentityFile   string `toml:"identity_file"   json:"identity_file"`
	TimeoutSeconds int    `toml:"timeout_seconds" json:"timeout_seconds"`
}

// VariantKinds is the fixed, ordered set of decoder output kinds. The order
// doubles as forwarding priority.
var VariantKinds = []string{"basic", "msa", "msa-precip", "hvct", "therm"}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Data: DataConfig{
			TLE:    "/var/lib/apt-station/tle",
			Audio:  "/var/lib/apt-station/audio",
			Images: "/var/lib/apt-station/images",
			Logs:   "/var/lib/apt-station/logs",
		},
		Server: ServerConfig{
			Bind: "0.0.0.0:8080",
		},
		Station: StationConfig{
			Latitude:  0.0,
			Longitude: 0.0,
			Altitude:  0.0,
			UseGPSD:   false,
			GPSDHost:  "localhost:2947",
		},
		Reception: ReceptionConfig{
			MinElevation:    20,
			Gain:            44.5,
			SampleRate:      60000,
			FrequencyOffset: 0,
			DeviceIndex:     0,
			PPMCorrection:   0,
			Simulate:        false,
		},
		Satellites: []SatelliteConfig{
			{Name: "NOAA 15", Enabled: true, Frequency: 137620000},
			{Name: "NOAA 18", Enabled: true, Frequency: 137912500},
			{Name: "NOAA 19", Enabled: true, Frequency: 137100000},
		},
		Predict: PredictConfig{
			TLEURL:          "https://celestrak.org/NORAD/elements/gp.php?GROUP=noaa&FORMAT=tle",
			TLERefreshHours: 24,
			LookaheadHours:  24,
		},
		Processing: ProcessingConfig{
			Variants:     []string{"basic", "msa", "msa-precip", "hvct", "therm"},
			SaveRawAudio: true,
		},
		Forward: ForwardConfig{
			Enabled:        false,
			Host:           "",
			User:           "",
			RemoteDir:      "~/incoming",
			IdentityFile:   "",
			TimeoutSeconds: 30,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	// A satellites table in the file replaces the default catalog entirely
	// rather than appending to it.
	var probe struct {
		Satellites []SatelliteConfig `toml:"satellites"`
	}
	if err := toml.Unmarshal(b, &probe); err == nil && probe.Satellites != nil {
		cfg.Satellites = nil
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks every constraint the rest of the system relies on. Load
// calls it, and reload paths call it again on the replacement config.
func Validate(cfg Config) error {
	if cfg.Data.TLE == "" || cfg.Data.Audio == "" || cfg.Data.Images == "" {
		return errors.New("data.tle, data.audio, and data.images must not be empty")
	}
	if cfg.Station.Latitude < -90 || cfg.Station.Latitude > 90 {
		return errors.New("station.latitude must be between -90 and 90")
	}
	if cfg.Station.Longitude < -180 || cfg.Station.Longitude > 180 {
		return errors.New("station.longitude must be between -180 and 180")
	}
	if cfg.Reception.MinElevation < 0 || cfg.Reception.MinElevation > 90 {
		return errors.New("reception.min_elevation must be between 0 and 90")
	}
	if cfg.Reception.SampleRate <= 0 {
		return errors.New("reception.sample_rate must be > 0")
	}
	if len(cfg.Satellites) == 0 {
		return errors.New("at least one [[satellites]] entry is required")
	}
	seen := make(map[string]bool, len(cfg.Satellites))
	for _, sat := range cfg.Satellites {
		if sat.Name == "" {
			return errors.New("satellites entries must have a name")
		}
		if seen[sat.Name] {
			return fmt.Errorf("duplicate satellite entry %q", sat.Name)
		}
		seen[sat.Name] = true
		if sat.Frequency <= 0 {
			return fmt.Errorf("satellite %q: frequency must be > 0", sat.Name)
		}
	}
	if cfg.Predict.TLERefreshHours < 1 {
		return errors.New("predict.tle_refresh_hours must be >= 1")
	}
	if cfg.Predict.LookaheadHours < 1 {
		return errors.New("predict.lookahead_hours must be >= 1")
	}
	known := make(map[string]bool, len(VariantKinds))
	for _, k := range VariantKinds {
		known[k] = true
	}
	for _, v := range cfg.Processing.Variants {
		if !known[v] {
			return fmt.Errorf("processing.variants: unknown kind %q", v)
		}
	}
	if cfg.Forward.Enabled {
		if cfg.Forward.Host == "" || cfg.Forward.User == "" {
			return errors.New("forward.host and forward.user are required when forwarding is enabled")
		}
		if cfg.Forward.TimeoutSeconds <= 0 {
			return errors.New("forward.timeout_seconds must be > 0")
		}
	}
	return nil
}

// EnabledSatellites returns the subset of configured satellites that are
// enabled for scheduling.
func (c Config) EnabledSatellites() []SatelliteConfig {
	var out []SatelliteConfig
	for _, s := range c.Satellites {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// SatelliteByName returns the configured satellite with the given exact name,
// or nil if not present.
func (c Config) SatelliteByName(name string) *SatelliteConfig {
	for i := range c.Satellites {
		if c.Satellites[i].Name == name {
			return &c.Satellites[i]
		}
	}
	return nil
}

// WantsVariant reports whether the given decoder output kind is enabled.
func (c Config) WantsVariant(kind string) bool {
	for _, v := range c.Processing.Variants {
		if v == kind {
			return true
		}
	}
	return false
}
