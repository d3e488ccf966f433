// Package config resolves MemoGarden's configuration surface through
// viper: defaults from an embedded resource-profile bundle, overridden by
// an explicit config file, overridden in turn by MEMOGARDEN_* environment
// variables — environment beats file, file beats profile defaults.
package config

import (
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved configuration surface.
type Config struct {
	DataDir     string `mapstructure:"data_dir"`
	SoilDB      string `mapstructure:"soil_db"`
	CoreDB      string `mapstructure:"core_db"`

	SafetyCoefficient float64 `mapstructure:"safety_coefficient"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`

	SummaryMethod    string `mapstructure:"summary_method"`
	SummaryMaxTokens int    `mapstructure:"summary_max_tokens"`

	StoragePressureThresholdPct int `mapstructure:"storage_pressure_threshold_pct"`
	EvictionTargetFreePct       int `mapstructure:"eviction_target_free_pct"`

	ContextBoundN           int           `mapstructure:"context_bound_n"`
	ViewCoalescenceTimeout  time.Duration `mapstructure:"view_coalescence_timeout"`

	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	ResourceProfile string `mapstructure:"resource_profile"`
	LogLevel        string `mapstructure:"log_level"`
	Encryption      bool   `mapstructure:"encryption"`

	RedactedParamPaths []string `mapstructure:"redacted_param_paths"`
}

// resourceProfiles holds the named default bundles (embedded, standard)
// as an in-memory YAML document viper merges in at the lowest precedence
// tier, parsed with gopkg.in/yaml.v3.
const resourceProfiles = `
embedded:
  busy_timeout: 2s
  context_bound_n: 7
  view_coalescence_timeout: 5s
  sweep_interval: 24h
  safety_coefficient: 1.2
  summary_method: extractive
  summary_max_tokens: 256
  storage_pressure_threshold_pct: 90
  eviction_target_free_pct: 75
  log_level: info
standard:
  busy_timeout: 5s
  context_bound_n: 7
  view_coalescence_timeout: 5s
  sweep_interval: 24h
  safety_coefficient: 1.2
  summary_method: extractive
  summary_max_tokens: 512
  storage_pressure_threshold_pct: 85
  eviction_target_free_pct: 70
  log_level: info
`

// Load resolves the configuration: it starts from the named resource
// profile's defaults ("standard" unless told otherwise), merges an
// optional explicit config file, then lets MEMOGARDEN_* environment
// variables override both the file and the profile defaults. cfgFile may
// be empty, in which case only the profile defaults and environment apply.
func Load(cfgFile, profile string) (*Config, error) {
	if profile == "" {
		profile = "standard"
	}

	var profiles map[string]map[string]any
	if err := yaml.Unmarshal([]byte(resourceProfiles), &profiles); err != nil {
		return nil, err
	}

	v := viper.New()
	for k, val := range profiles[profile] {
		v.SetDefault(k, val)
	}
	v.SetDefault("resource_profile", profile)
	v.SetDefault("data_dir", "")
	v.SetDefault("redacted_param_paths", []string{})

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix("MEMOGARDEN")
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	// AutomaticEnv only affects viper.Get-style lookups; Unmarshal walks
	// the known key set instead, so each key needs an explicit BindEnv or
	// a MEMOGARDEN_* override would silently never reach the struct.
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configKeys lists every mapstructure tag in Config, so Load can bind each
// one to its MEMOGARDEN_<KEY> environment variable explicitly.
var configKeys = []string{
	"data_dir", "soil_db", "core_db",
	"safety_coefficient", "sweep_interval",
	"summary_method", "summary_max_tokens",
	"storage_pressure_threshold_pct", "eviction_target_free_pct",
	"context_bound_n", "view_coalescence_timeout",
	"busy_timeout",
	"resource_profile", "log_level", "encryption",
	"redacted_param_paths",
}

// ResolveStorePath applies the per-layer resolution order: explicit
// path override, then MEMOGARDEN_<LAYER>_DB, then
// MEMOGARDEN_DATA_DIR/<layer>.db, then ./<layer>.db. explicitPath and
// dataDir come from the already-resolved Config; no environment variable
// is read here, since viper's struct unmarshal already folds MEMOGARDEN_SOIL_DB /
// MEMOGARDEN_CORE_DB into SoilDB/CoreDB, so callers pass those fields in
// as explicitPath and this function only needs to apply the data_dir and
// cwd fallbacks.
func ResolveStorePath(layer, explicitPath, dataDir string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if dataDir != "" {
		return dataDir + "/" + layer + ".db"
	}
	return "./" + layer + ".db"
}
