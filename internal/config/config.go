package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/vanetguard/vanetguard/internal/attack"
	"github.com/vanetguard/vanetguard/internal/detection"
	"github.com/vanetguard/vanetguard/internal/logging"
	"github.com/vanetguard/vanetguard/internal/node"
	"github.com/vanetguard/vanetguard/internal/simulation"
)

// EnvPrefix は環境変数のプレフィックス
const EnvPrefix = "VANETGUARD"

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid config")

// Config はアプリケーション全体の設定
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	Logging    logging.Config    `mapstructure:"logging" yaml:"logging"`
	Simulation simulation.Config `mapstructure:"simulation" yaml:"simulation"`
	Node       node.Config       `mapstructure:"node" yaml:"node"`
	Detection  detection.Config  `mapstructure:"detection" yaml:"detection"`
	Attack     attack.Config     `mapstructure:"attack" yaml:"attack"`
	Monitoring MonitoringConfig  `mapstructure:"monitoring" yaml:"monitoring"`
	Storage    StorageConfig     `mapstructure:"storage" yaml:"storage"`
}

// MonitoringConfig はモニタリング設定
type MonitoringConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	// Linger keeps the HTTP server up after the run so the final report can
	// be scraped.
	Linger time.Duration `mapstructure:"linger" yaml:"linger"`
}

// StorageConfig はストレージ設定
type StorageConfig struct {
	// Driver is "sqlite3", "postgres" or empty to skip persistence.
	Driver    string `mapstructure:"driver" yaml:"driver"`
	DSN       string `mapstructure:"dsn" yaml:"dsn"`
	ExportDir string `mapstructure:"export_dir" yaml:"export_dir"`
	// ExportFormat is "json" or "yaml".
	ExportFormat string `mapstructure:"export_format" yaml:"export_format"`
	Compress     bool   `mapstructure:"compress" yaml:"compress"`
}

// Load は設定ファイルを読み込む. An empty path loads defaults and
// environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// 環境変数のバインド
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyLogLevel()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults are plain values; decoding cannot fail
	_ = v.Unmarshal(&cfg)
	cfg.applyLogLevel()
	return &cfg
}

// applyLogLevel lets the top level log_level key win over logging.level.
func (c *Config) applyLogLevel() {
	if c.LogLevel != "" {
		c.Logging.Level = c.LogLevel
	}
}

// setDefaults はデフォルト値を設定
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "")

	lg := logging.DefaultConfig()
	v.SetDefault("logging.level", lg.Level)
	v.SetDefault("logging.format", lg.Format)
	v.SetDefault("logging.output_path", lg.OutputPath)
	v.SetDefault("logging.rotation.max_size_mb", lg.Rotation.MaxSize)
	v.SetDefault("logging.rotation.max_age_days", lg.Rotation.MaxAge)
	v.SetDefault("logging.rotation.max_backups", lg.Rotation.MaxBackups)
	v.SetDefault("logging.rotation.compress", lg.Rotation.Compress)
	v.SetDefault("logging.rotation.local_time", lg.Rotation.LocalTime)
	v.SetDefault("logging.enable_caller", lg.EnableCaller)
	v.SetDefault("logging.enable_stacktrace", lg.EnableStacktrace)
	v.SetDefault("logging.development", lg.Development)
	v.SetDefault("logging.sampling.enabled", lg.Sampling.Enabled)
	v.SetDefault("logging.sampling.initial", lg.Sampling.Initial)
	v.SetDefault("logging.sampling.thereafter", lg.Sampling.Thereafter)

	sim := simulation.DefaultConfig()
	v.SetDefault("simulation.duration", sim.Duration)
	v.SetDefault("simulation.defenders", sim.Defenders)
	v.SetDefault("simulation.attackers", sim.Attackers)
	v.SetDefault("simulation.road_length", sim.RoadLength)
	v.SetDefault("simulation.lanes", sim.Lanes)
	v.SetDefault("simulation.lane_width", sim.LaneWidth)
	v.SetDefault("simulation.min_speed", sim.MinSpeed)
	v.SetDefault("simulation.max_speed", sim.MaxSpeed)
	v.SetDefault("simulation.radio_range", sim.RadioRange)
	v.SetDefault("simulation.propagation_delay", sim.PropagationDelay)
	v.SetDefault("simulation.start_stagger", sim.StartStagger)
	v.SetDefault("simulation.seed", sim.Seed)

	nd := node.DefaultConfig()
	v.SetDefault("node.beacon_interval", nd.BeaconInterval)
	v.SetDefault("node.housekeeping_interval", nd.HousekeepingInterval)
	v.SetDefault("node.position_update_interval", nd.PositionUpdateInterval)
	v.SetDefault("node.evasive_duration", nd.EvasiveDuration)
	v.SetDefault("node.evasive_speed_limit", nd.EvasiveSpeedLimit)
	v.SetDefault("node.reception_log_every", nd.ReceptionLogEvery)
	v.SetDefault("node.reception_log_rate", nd.ReceptionLogRate)
	v.SetDefault("node.reception_log_burst", nd.ReceptionLogBurst)

	det := detection.DefaultConfig()
	v.SetDefault("detection.detection_enabled", det.DetectionEnabled)
	v.SetDefault("detection.entropy_based_detection_enabled", det.EntropyBasedDetectionEnabled)
	v.SetDefault("detection.message_validation_enabled", det.MessageValidationEnabled)
	v.SetDefault("detection.flood_threshold", det.FloodThreshold)
	v.SetDefault("detection.severe_flood_threshold", det.SevereFloodThreshold)
	v.SetDefault("detection.burst_threshold", det.BurstThreshold)
	v.SetDefault("detection.anomaly_threshold", det.AnomalyThreshold)
	v.SetDefault("detection.detection_window", det.DetectionWindow)
	v.SetDefault("detection.blacklist_timeout", det.BlacklistTimeout)
	v.SetDefault("detection.persistent_flood_duration", det.PersistentFloodDuration)
	v.SetDefault("detection.max_burst_duration", det.MaxBurstDuration)
	v.SetDefault("detection.max_message_age", det.MaxMessageAge)
	v.SetDefault("detection.min_burst_size", det.MinBurstSize)
	v.SetDefault("detection.max_suspicion_level", det.MaxSuspicionLevel)
	v.SetDefault("detection.max_reasonable_speed", det.MaxReasonableSpeed)

	atk := attack.DefaultConfig()
	v.SetDefault("attack.type", atk.Type)
	v.SetDefault("attack.interval", atk.Interval)
	v.SetDefault("attack.flood_count", atk.FloodCount)
	v.SetDefault("attack.sybil_identities", atk.SybilIdentities)
	v.SetDefault("attack.replay_age", atk.ReplayAge)
	v.SetDefault("attack.timing_skew", atk.TimingSkew)
	v.SetDefault("attack.manipulation_probability", atk.ManipulationProbability)
	v.SetDefault("attack.drop_rate", atk.DropRate)
	v.SetDefault("attack.seed", atk.Seed)

	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.listen_addr", ":9090")
	v.SetDefault("monitoring.linger", 0)

	v.SetDefault("storage.driver", "")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.export_dir", "")
	v.SetDefault("storage.export_format", "json")
	v.SetDefault("storage.compress", false)
}
