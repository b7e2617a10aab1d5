// Package config loads Spine's runtime settings from environment
// variables (and an optional YAML file) via Viper, the way the rest
// of the retrieval pack's cobra/viper services do.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable the job coordination core and its HTTP
// adapters need.
type Config struct {
	Host string
	Port int

	DataDir string

	LeaseDurationSeconds int
	ReaperIntervalMillis int
	DefaultMaxAttempts   int

	HeadTokens      []string
	LeftClawTokens  []string
	RightClawTokens []string
}

// Load builds a Config from environment variables prefixed SPINE_ and,
// if non-empty, a YAML config file at path. It fails if any of the
// three role token sets ends up empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("spine")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("lease_duration", 300)
	v.SetDefault("reaper_interval", 30000)
	v.SetDefault("default_max_attempts", 3)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Host:                 v.GetString("host"),
		Port:                 v.GetInt("port"),
		DataDir:              v.GetString("data_dir"),
		LeaseDurationSeconds: v.GetInt("lease_duration"),
		ReaperIntervalMillis: v.GetInt("reaper_interval"),
		DefaultMaxAttempts:   v.GetInt("default_max_attempts"),

		HeadTokens:      mergeTokens(v.GetString("head_token"), v.GetString("head_tokens")),
		LeftClawTokens:  mergeTokens(v.GetString("left_claw_token"), v.GetString("left_claw_tokens")),
		RightClawTokens: mergeTokens(v.GetString("right_claw_token"), v.GetString("right_claw_tokens")),
	}

	if len(cfg.HeadTokens) == 0 {
		return nil, fmt.Errorf("no head tokens configured (set SPINE_HEAD_TOKEN or SPINE_HEAD_TOKENS)")
	}
	if len(cfg.LeftClawTokens) == 0 {
		return nil, fmt.Errorf("no left-claw tokens configured (set SPINE_LEFT_CLAW_TOKEN or SPINE_LEFT_CLAW_TOKENS)")
	}
	if len(cfg.RightClawTokens) == 0 {
		return nil, fmt.Errorf("no right-claw tokens configured (set SPINE_RIGHT_CLAW_TOKEN or SPINE_RIGHT_CLAW_TOKENS)")
	}

	return cfg, nil
}

// mergeTokens unions the single-value and csv bindings for one role,
// coalescing duplicates and dropping blanks.
func mergeTokens(single, csv string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 2)

	add := func(tok string) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return
		}
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}

	add(single)
	for _, tok := range strings.Split(csv, ",") {
		add(tok)
	}

	return out
}
