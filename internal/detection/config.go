package detection

import "time"

// Config holds the detector knobs. Zero numeric fields are replaced with
// defaults by NewDetector; the boolean switches are taken as given.
type Config struct {
	DetectionEnabled             bool `mapstructure:"detection_enabled" yaml:"detection_enabled"`
	EntropyBasedDetectionEnabled bool `mapstructure:"entropy_based_detection_enabled" yaml:"entropy_based_detection_enabled"`
	MessageValidationEnabled     bool `mapstructure:"message_validation_enabled" yaml:"message_validation_enabled"`

	// Thresholds, in messages per detection window (anomaly is a ratio)
	FloodThreshold       float64 `mapstructure:"flood_threshold" yaml:"flood_threshold"`
	SevereFloodThreshold float64 `mapstructure:"severe_flood_threshold" yaml:"severe_flood_threshold"`
	BurstThreshold       float64 `mapstructure:"burst_threshold" yaml:"burst_threshold"`
	AnomalyThreshold     float64 `mapstructure:"anomaly_threshold" yaml:"anomaly_threshold"`

	// Timing
	DetectionWindow         time.Duration `mapstructure:"detection_window" yaml:"detection_window"`
	BlacklistTimeout        time.Duration `mapstructure:"blacklist_timeout" yaml:"blacklist_timeout"`
	PersistentFloodDuration time.Duration `mapstructure:"persistent_flood_duration" yaml:"persistent_flood_duration"`
	MaxBurstDuration        time.Duration `mapstructure:"max_burst_duration" yaml:"max_burst_duration"`
	MaxMessageAge           time.Duration `mapstructure:"max_message_age" yaml:"max_message_age"`

	// Behavioral
	MinBurstSize       int     `mapstructure:"min_burst_size" yaml:"min_burst_size"`
	MaxSuspicionLevel  int     `mapstructure:"max_suspicion_level" yaml:"max_suspicion_level"`
	MaxReasonableSpeed float64 `mapstructure:"max_reasonable_speed" yaml:"max_reasonable_speed"`
}

// DefaultConfig returns the detector configuration used when nothing else is
// specified.
func DefaultConfig() Config {
	return Config{
		DetectionEnabled:             true,
		EntropyBasedDetectionEnabled: true,
		MessageValidationEnabled:     true,

		FloodThreshold:       50,
		SevereFloodThreshold: 100,
		BurstThreshold:       200,
		AnomalyThreshold:     2.0,

		DetectionWindow:         3 * time.Second,
		BlacklistTimeout:        30 * time.Second,
		PersistentFloodDuration: 6 * time.Second,
		MaxBurstDuration:        1 * time.Second,
		MaxMessageAge:           5 * time.Second,

		MinBurstSize:       50,
		MaxSuspicionLevel:  3,
		MaxReasonableSpeed: 50.0, // m/s, 180 km/h
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FloodThreshold <= 0 {
		c.FloodThreshold = def.FloodThreshold
	}
	if c.SevereFloodThreshold <= 0 {
		c.SevereFloodThreshold = def.SevereFloodThreshold
	}
	if c.BurstThreshold <= 0 {
		c.BurstThreshold = def.BurstThreshold
	}
	if c.AnomalyThreshold <= 0 {
		c.AnomalyThreshold = def.AnomalyThreshold
	}
	if c.DetectionWindow <= 0 {
		c.DetectionWindow = def.DetectionWindow
	}
	if c.BlacklistTimeout <= 0 {
		c.BlacklistTimeout = def.BlacklistTimeout
	}
	if c.PersistentFloodDuration <= 0 {
		c.PersistentFloodDuration = def.PersistentFloodDuration
	}
	if c.MaxBurstDuration <= 0 {
		c.MaxBurstDuration = def.MaxBurstDuration
	}
	if c.MaxMessageAge <= 0 {
		c.MaxMessageAge = def.MaxMessageAge
	}
	if c.MinBurstSize <= 0 {
		c.MinBurstSize = def.MinBurstSize
	}
	if c.MaxSuspicionLevel <= 0 {
		c.MaxSuspicionLevel = def.MaxSuspicionLevel
	}
	if c.MaxReasonableSpeed <= 0 {
		c.MaxReasonableSpeed = def.MaxReasonableSpeed
	}
	return c
}
