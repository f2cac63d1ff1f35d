// Package config loads lastseen settings from a TOML file.
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Config is the root of the TOML document
type Config struct {
	Tracking Tracking `toml:"tracking"`
	Capture  Capture  `toml:"capture"`
	Detector Detector `toml:"detector"`
	Storage  Storage  `toml:"storage"`
	Server   Server   `toml:"server"`
}

// Tracking holds the tracking engine parameters
type Tracking struct {
	// Maximum center-to-center distance (pixels) to consider two detections the same object
	ThresholdPixels float64 `toml:"threshold_pixels"`
	// Consecutive unmatched frames tolerated before object is considered disappeared
	FramesToDisappear int      `toml:"frames_to_disappear"`
	Keywords          []string `toml:"keywords"`
}

type Capture struct {
	DeviceID      int     `toml:"device_id"`
	ProcessingFPS float64 `toml:"processing_fps"`
}

type Detector struct {
	URL     string   `toml:"url"`
	Timeout Duration `toml:"timeout"`
}

type Storage struct {
	DBPath             string `toml:"db_path"`
	HistoryDir         string `toml:"history_dir"`
	SnapshotMaxWidth   int    `toml:"snapshot_max_width"`
	JPEGQuality        int    `toml:"jpeg_quality"`
	DeadLetterCapacity int    `toml:"dead_letter_capacity"`
}

type Server struct {
	Listen string `toml:"listen"`
}

// Duration is time.Duration decoded from strings like "30s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration '%s'", string(text))
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns configuration used when no file is given
func Default() Config {
	return Config{
		Tracking: Tracking{
			ThresholdPixels:   75,
			FramesToDisappear: 5,
			Keywords:          []string{"key", "cup", "glasses", "smartphone", "wallet"},
		},
		Capture: Capture{
			DeviceID:      0,
			ProcessingFPS: 3,
		},
		Detector: Detector{
			URL:     "http://127.0.0.1:8000/detect",
			Timeout: Duration{30 * time.Second},
		},
		Storage: Storage{
			DBPath:             "memory_log.db",
			HistoryDir:         "history",
			SnapshotMaxWidth:   1280,
			JPEGQuality:        90,
			DeadLetterCapacity: 256,
		},
		Server: Server{
			Listen: ":8501",
		},
	}
}

// Load reads TOML file over defaults. Missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return cfg, errors.Wrapf(err, "can't read config '%s'", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "can't parse config '%s'", path)
	}
	return cfg, cfg.Validate()
}

// Validate checks values consumed by the tracking engine and the frame driver
func (cfg Config) Validate() error {
	if cfg.Tracking.ThresholdPixels <= 0 {
		return errors.Errorf("tracking.threshold_pixels must be positive, got %v", cfg.Tracking.ThresholdPixels)
	}
	if cfg.Tracking.FramesToDisappear <= 0 {
		return errors.Errorf("tracking.frames_to_disappear must be positive, got %d", cfg.Tracking.FramesToDisappear)
	}
	if len(cfg.Tracking.Keywords) == 0 {
		return errors.New("tracking.keywords must not be empty")
	}
	if cfg.Capture.ProcessingFPS <= 0 {
		return errors.Errorf("capture.processing_fps must be positive, got %v", cfg.Capture.ProcessingFPS)
	}
	if cfg.Storage.JPEGQuality < 1 || cfg.Storage.JPEGQuality > 100 {
		return errors.Errorf("storage.jpeg_quality must be in [1, 100], got %d", cfg.Storage.JPEGQuality)
	}
	if cfg.Storage.DBPath == "" || cfg.Storage.HistoryDir == "" {
		return errors.New("storage.db_path and storage.history_dir are required")
	}
	return nil
}

// ProcessingInterval is minimal time between two analyzed frames
func (cfg Config) ProcessingInterval() time.Duration {
	return time.Duration(float64(time.Second) / cfg.Capture.ProcessingFPS)
}
