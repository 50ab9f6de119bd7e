package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// DefaultPath is where the harness looks for its settings document.
const DefaultPath = "./config.json"

// EnvPrefix prefixes environment overrides, e.g. DOAEVAL_START_CHECKPOINT.
const EnvPrefix = "DOAEVAL"

var ErrInvalid = errors.New("invalid configuration")

// Config is the immutable settings document for one run.
type Config struct {
	DimDirectionLabel  int       `mapstructure:"dim_direction_label"`
	SampleRate         int       `mapstructure:"sample_rate"`
	WinLen             int       `mapstructure:"win_len"`
	WinShift           int       `mapstructure:"win_shift"`
	NDFT               int       `mapstructure:"ndft"`
	ContextWindowWidth int       `mapstructure:"context_window_width"`
	StartCheckpoint    string    `mapstructure:"start_checkpoint"`
	RIRDataDir         string    `mapstructure:"rir_data_dir"`
	Reverb             []int     `mapstructure:"reverb"`
	RoomIdx            []int     `mapstructure:"room_idx"`
	TestingDataDir     string    `mapstructure:"testing_data_dir"`
	DirectionRange     []float64 `mapstructure:"direction_range"`
	DegPerSec          float64   `mapstructure:"deg_per_sec"`

	RMSThreshold     float64 `mapstructure:"rms_threshold"`
	InferenceBatch   int     `mapstructure:"inference_batch"`
	FiguresDir       string  `mapstructure:"figures_dir"`
	PlaybackPath     string  `mapstructure:"playback_path"`
	ResultsDB        string  `mapstructure:"results_db"`
	SaveSpectrograms bool    `mapstructure:"save_spectrograms"`
	DirectMs         float64 `mapstructure:"direct_ms"`
	LogLevel         string  `mapstructure:"log_level"`

	// Path and Digest describe the file the config was read from.
	Path   string `mapstructure:"-"`
	Digest string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sample_rate", 16000)
	v.SetDefault("rms_threshold", 0.3)
	v.SetDefault("inference_batch", 64)
	v.SetDefault("figures_dir", "./figures")
	v.SetDefault("playback_path", "./moving.wav")
	v.SetDefault("results_db", "./doaeval.sqlite3")
	v.SetDefault("save_spectrograms", false)
	v.SetDefault("direct_ms", 2.5)
	v.SetDefault("log_level", "info")
	v.SetDefault("start_checkpoint", "")
}

// Load reads the settings document at path (JSON, or anything viper can
// decode by extension), applies defaults and DOAEVAL_* environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadConfig(strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	sum := sha256.Sum256(raw)
	cfg.Path = path
	cfg.Digest = hex.EncodeToString(sum[:])

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the rest of the harness relies on.
func (c *Config) Validate() error {
	var problems []string
	positive := func(name string, v int) {
		if v <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %d", name, v))
		}
	}

	positive("dim_direction_label", c.DimDirectionLabel)
	positive("sample_rate", c.SampleRate)
	positive("win_len", c.WinLen)
	positive("win_shift", c.WinShift)
	positive("nDFT", c.NDFT)
	positive("context_window_width", c.ContextWindowWidth)
	positive("inference_batch", c.InferenceBatch)

	if c.NDFT > 0 && c.NDFT&(c.NDFT-1) != 0 {
		problems = append(problems, fmt.Sprintf("nDFT must be a power of two, got %d", c.NDFT))
	}
	if c.WinLen > c.NDFT {
		problems = append(problems, fmt.Sprintf("win_len (%d) exceeds nDFT (%d)", c.WinLen, c.NDFT))
	}
	if c.DimDirectionLabel == 1 {
		problems = append(problems, "dim_direction_label must be at least 2")
	}
	if len(c.DirectionRange) < 2 || c.DirectionRange[1] <= c.DirectionRange[0] {
		problems = append(problems, fmt.Sprintf("direction_range must be [low, high] with low < high, got %v", c.DirectionRange))
	}
	if c.DegPerSec < 0 {
		problems = append(problems, "deg_per_sec must not be negative")
	}
	if len(c.Reverb) == 0 {
		problems = append(problems, "reverb must list at least one level")
	}
	if len(c.RoomIdx) == 0 {
		problems = append(problems, "room_idx must list at least one room")
	}
	if c.RIRDataDir == "" {
		problems = append(problems, "rir_data_dir is required")
	}
	if c.TestingDataDir == "" {
		problems = append(problems, "testing_data_dir is required")
	}
	if c.RMSThreshold < 0 {
		problems = append(problems, "rms_threshold must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// DirectionLow and DirectionHigh bound the angular range in degrees.
func (c *Config) DirectionLow() float64  { return c.DirectionRange[0] }
func (c *Config) DirectionHigh() float64 { return c.DirectionRange[1] }

// Rooms returns the configured room indices in ascending order.
func (c *Config) Rooms() []int {
	return sortedCopy(c.RoomIdx)
}

// ReverbLevels returns the configured reverberation percentages in ascending order.
func (c *Config) ReverbLevels() []int {
	return sortedCopy(c.Reverb)
}

// Dataset is the base name of the testing data directory.
func (c *Config) Dataset() string {
	return filepath.Base(filepath.Clean(c.TestingDataDir))
}

func sortedCopy(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	return out
}
