package fraud

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the rule thresholds and lookback windows. The defaults
// reproduce the production heuristics; operators can tighten or loosen them
// via a YAML file without a rebuild.
type Config struct {
	// Rapid location change: distinct non-empty IP addresses across the
	// user's most recent sessions inside LocationWindow, newest first,
	// capped at LocationSessionLimit rows. Flags when the distinct count
	// exceeds MaxDistinctIPs.
	LocationWindow       time.Duration `yaml:"location_window"`
	LocationSessionLimit int           `yaml:"location_session_limit"`
	MaxDistinctIPs       int           `yaml:"max_distinct_ips"`

	// Multiple devices: distinct non-empty MAC addresses inside
	// DeviceWindow. Flags when the count exceeds MaxDistinctDevices.
	DeviceWindow       time.Duration `yaml:"device_window"`
	MaxDistinctDevices int           `yaml:"max_distinct_devices"`

	// Unusual hours: flags when the server-local hour is outside
	// [WorkdayStartHour, WorkdayEndHour]. The default end of 23 makes the
	// upper branch unreachable on a 0-23 clock; that matches the observed
	// production behavior and is kept literally.
	WorkdayStartHour int `yaml:"workday_start_hour"`
	WorkdayEndHour   int `yaml:"workday_end_hour"`

	// Excessive daily hours: closed-session hours since local midnight.
	// Flags when strictly above MaxDailyHours.
	MaxDailyHours float64 `yaml:"max_daily_hours"`

	// Frequent screenshot denial: the user's screenshots inside
	// DenialWindow, capped at DenialSampleLimit rows. Flags when the
	// permission-denied percentage is strictly above MaxDenialPercent.
	DenialWindow      time.Duration `yaml:"denial_window"`
	DenialSampleLimit int           `yaml:"denial_sample_limit"`
	MaxDenialPercent  float64       `yaml:"max_denial_percent"`

	// Suspicious screenshot size: session screenshots strictly below
	// SmallScreenshotBytes. Flags when the count exceeds
	// MaxSmallScreenshots.
	SmallScreenshotBytes int64 `yaml:"small_screenshot_bytes"`
	MaxSmallScreenshots  int   `yaml:"max_small_screenshots"`

	// QueryTimeout bounds each evaluator's storage queries. A slow store
	// must not hold up the business operation indefinitely.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// ApplyDefaults fills zero-valued fields with their defaults. It cannot
// distinguish an explicit zero from an unset field; configs built by hand
// should start from DefaultConfig instead.
func (c *Config) ApplyDefaults() {
	if c.LocationWindow == 0 {
		c.LocationWindow = 2 * time.Hour
	}
	if c.LocationSessionLimit == 0 {
		c.LocationSessionLimit = 5
	}
	if c.MaxDistinctIPs == 0 {
		c.MaxDistinctIPs = 2
	}
	if c.DeviceWindow == 0 {
		c.DeviceWindow = 24 * time.Hour
	}
	if c.MaxDistinctDevices == 0 {
		c.MaxDistinctDevices = 2
	}
	if c.WorkdayStartHour == 0 {
		c.WorkdayStartHour = 6
	}
	if c.WorkdayEndHour == 0 {
		c.WorkdayEndHour = 23
	}
	if c.MaxDailyHours == 0 {
		c.MaxDailyHours = 12
	}
	if c.DenialWindow == 0 {
		c.DenialWindow = 4 * time.Hour
	}
	if c.DenialSampleLimit == 0 {
		c.DenialSampleLimit = 20
	}
	if c.MaxDenialPercent == 0 {
		c.MaxDenialPercent = 50
	}
	if c.SmallScreenshotBytes == 0 {
		c.SmallScreenshotBytes = 10000
	}
	if c.MaxSmallScreenshots == 0 {
		c.MaxSmallScreenshots = 2
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.WorkdayStartHour < 0 || c.WorkdayStartHour > 23 {
		return fmt.Errorf("workday start hour must be in [0, 23], got %d", c.WorkdayStartHour)
	}
	if c.WorkdayEndHour < 0 || c.WorkdayEndHour > 23 {
		return fmt.Errorf("workday end hour must be in [0, 23], got %d", c.WorkdayEndHour)
	}
	if c.MaxDenialPercent < 0 || c.MaxDenialPercent > 100 {
		return fmt.Errorf("max denial percent must be in [0, 100], got %g", c.MaxDenialPercent)
	}
	if c.MaxDailyHours < 0 || c.MaxDailyHours > 24 {
		return fmt.Errorf("max daily hours must be in [0, 24], got %g", c.MaxDailyHours)
	}
	return nil
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig reads a YAML rules file and validates it. The file is
// unmarshalled over the defaults, so omitted keys keep their default while
// explicit values win, including explicit zeros such as
// `workday_start_hour: 0`.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse rules config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules config: %w", err)
	}

	return cfg, nil
}
