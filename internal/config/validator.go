package config

import (
	"fmt"

	"github.com/vanetguard/vanetguard/internal/attack"
	"github.com/vanetguard/vanetguard/internal/detection"
	"github.com/vanetguard/vanetguard/internal/node"
	"github.com/vanetguard/vanetguard/internal/simulation"
)

// Validate checks the configuration is logical and consistent. Every error
// wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := validateLogLevel(c.Logging.Level); err != nil {
		return invalid("logging", err)
	}
	if err := validateSimulation(&c.Simulation); err != nil {
		return invalid("simulation", err)
	}
	if err := validateNode(&c.Node); err != nil {
		return invalid("node", err)
	}
	if err := validateDetection(&c.Detection); err != nil {
		return invalid("detection", err)
	}
	if err := validateAttack(&c.Attack); err != nil {
		return invalid("attack", err)
	}
	if c.Monitoring.Enabled && c.Monitoring.ListenAddr == "" {
		return invalid("monitoring", fmt.Errorf("listen_addr is required when monitoring is enabled"))
	}
	if err := validateStorage(&c.Storage); err != nil {
		return invalid("storage", err)
	}
	return nil
}

func invalid(section string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, section, err)
}

func validateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}
}

func validateSimulation(cfg *simulation.Config) error {
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if cfg.Defenders < 1 {
		return fmt.Errorf("defenders must be at least 1")
	}
	if cfg.Attackers < 0 {
		return fmt.Errorf("attackers cannot be negative")
	}
	if cfg.RoadLength <= 0 {
		return fmt.Errorf("road_length must be positive")
	}
	if cfg.RadioRange <= 0 {
		return fmt.Errorf("radio_range must be positive")
	}
	if cfg.MinSpeed < 0 || cfg.MaxSpeed < cfg.MinSpeed {
		return fmt.Errorf("speed range [%g, %g] is invalid", cfg.MinSpeed, cfg.MaxSpeed)
	}
	if cfg.PropagationDelay < 0 {
		return fmt.Errorf("propagation_delay cannot be negative")
	}
	return nil
}

func validateNode(cfg *node.Config) error {
	if cfg.BeaconInterval <= 0 {
		return fmt.Errorf("beacon_interval must be positive")
	}
	if cfg.EvasiveDuration <= 0 {
		return fmt.Errorf("evasive_duration must be positive")
	}
	if cfg.EvasiveSpeedLimit <= 0 {
		return fmt.Errorf("evasive_speed_limit must be positive")
	}
	return nil
}

func validateDetection(cfg *detection.Config) error {
	if cfg.FloodThreshold <= 0 {
		return fmt.Errorf("flood_threshold must be positive")
	}
	if cfg.SevereFloodThreshold <= cfg.FloodThreshold {
		return fmt.Errorf("severe_flood_threshold must be greater than flood_threshold")
	}
	if cfg.BurstThreshold <= 0 {
		return fmt.Errorf("burst_threshold must be positive")
	}
	if cfg.AnomalyThreshold <= 0 {
		return fmt.Errorf("anomaly_threshold must be positive")
	}
	if cfg.DetectionWindow <= 0 {
		return fmt.Errorf("detection_window must be positive")
	}
	if cfg.BlacklistTimeout <= 0 {
		return fmt.Errorf("blacklist_timeout must be positive")
	}
	if cfg.MaxBurstDuration <= 0 || cfg.MaxMessageAge <= 0 || cfg.PersistentFloodDuration <= 0 {
		return fmt.Errorf("durations must be positive")
	}
	if cfg.MinBurstSize < 2 {
		return fmt.Errorf("min_burst_size must be at least 2")
	}
	if cfg.MaxSuspicionLevel < 1 {
		return fmt.Errorf("max_suspicion_level must be at least 1")
	}
	if cfg.MaxReasonableSpeed <= 0 {
		return fmt.Errorf("max_reasonable_speed must be positive")
	}
	return nil
}

// validateAttack accepts unknown attack types; they fall back to the
// unknown-attack payload at run time.
func validateAttack(cfg *attack.Config) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if cfg.FloodCount < 0 || cfg.SybilIdentities < 0 {
		return fmt.Errorf("counts cannot be negative")
	}
	if cfg.ManipulationProbability < 0 || cfg.ManipulationProbability > 1 {
		return fmt.Errorf("manipulation_probability must be between 0 and 1")
	}
	if cfg.DropRate < 0 || cfg.DropRate > 1 {
		return fmt.Errorf("drop_rate must be between 0 and 1")
	}
	return nil
}

func validateStorage(cfg *StorageConfig) error {
	switch cfg.Driver {
	case "":
	case "sqlite3", "postgres":
		if cfg.DSN == "" {
			return fmt.Errorf("dsn is required for driver %s", cfg.Driver)
		}
	default:
		return fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	switch cfg.ExportFormat {
	case "", "json", "yaml":
	default:
		return fmt.Errorf("unsupported export_format: %s", cfg.ExportFormat)
	}
	return nil
}
