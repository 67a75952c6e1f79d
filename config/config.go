//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package config holds the runtime options of the statement-statistics
// tracker. Options are fixed at startup; in particular Max sizes the entry
// table once and forever.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// TrackNone disables statement tracking entirely.
	TrackNone = "none"
	// TrackTop tracks top-level statements only.
	TrackTop = "top"
	// TrackAll also tracks statements nested inside other statements.
	TrackAll = "all"
)

type Config struct {
	// Max is the fixed capacity of the entry table.
	Max int `mapstructure:"max"`
	// Track selects which nesting levels produce statistics, one of
	// "none", "top", "all".
	Track string `mapstructure:"track"`
	// TrackUtility includes statements other than
	// SELECT/INSERT/UPDATE/DELETE/MERGE.
	TrackUtility bool `mapstructure:"track_utility"`
	// TrackPlanning accumulates planning-phase samples in addition to
	// execution-phase ones.
	TrackPlanning bool `mapstructure:"track_planning"`
	// Save dumps the collected statistics at shutdown and restores them
	// at startup.
	Save bool `mapstructure:"save"`

	// StatsDir holds the dump file, which exists only while the process
	// is down.
	StatsDir string `mapstructure:"stats_dir"`
	// TempDir holds the query text file, which exists only while the
	// process is up.
	TempDir string `mapstructure:"temp_dir"`
}

func DefaultConfig() Config {
	return Config{
		Max:           5000,
		Track:         TrackTop,
		TrackUtility:  true,
		TrackPlanning: false,
		Save:          true,
		StatsDir:      "./data",
		TempDir:       "./data/tmp",
	}
}

func (c Config) Validate() error {
	if c.Max <= 0 {
		return errors.Errorf("max must be positive, got %d", c.Max)
	}
	switch c.Track {
	case TrackNone, TrackTop, TrackAll:
	default:
		return errors.Errorf("track must be one of %q, %q, %q, got %q",
			TrackNone, TrackTop, TrackAll, c.Track)
	}
	if c.StatsDir == "" {
		return errors.New("stats_dir must not be empty")
	}
	if c.TempDir == "" {
		return errors.New("temp_dir must not be empty")
	}
	return nil
}

// Load reads the configuration from the optional file at path, overlaid by
// QUERYSTATS_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("max", defaults.Max)
	v.SetDefault("track", defaults.Track)
	v.SetDefault("track_utility", defaults.TrackUtility)
	v.SetDefault("track_planning", defaults.TrackPlanning)
	v.SetDefault("save", defaults.Save)
	v.SetDefault("stats_dir", defaults.StatsDir)
	v.SetDefault("temp_dir", defaults.TempDir)

	v.SetEnvPrefix("QUERYSTATS")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %q", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
