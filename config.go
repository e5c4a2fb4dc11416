package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/haolipeng/agentsight/filter"
)

// Config is everything the process needs at startup. Values layer as
// defaults < config file < AGENTSIGHT_* environment < flags.
type Config struct {
	Mode          int
	Commands      []string
	TargetPID     int32
	MinDurationMs uint64
	Verbose       bool
	DBDir         string
	SigmaRulesDir string
}

// FilterConfig converts the CLI-level settings into the engine's immutable
// filter configuration.
func (c *Config) FilterConfig() (filter.Config, error) {
	mode, err := filter.ParseMode(c.Mode)
	if err != nil {
		return filter.Config{}, err
	}
	return filter.Config{
		Mode:      mode,
		Commands:  c.Commands,
		TargetPID: c.TargetPID,
	}, nil
}

func loadConfig(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("agentsight", pflag.ContinueOnError)
	flags.IntP("mode", "m", 1, "filter mode: 0=all, 1=proc, 2=filter")
	flags.StringP("commands", "c", "", "comma-separated list of commands to trace (implies -m 2)")
	flags.Int32P("pid", "p", 0, "trace this PID only (implies -m 2)")
	flags.Uint64P("duration", "d", 0, "minimum process duration (ms) to report on exit")
	flags.BoolP("verbose", "v", false, "verbose debug output")
	flags.String("db-dir", "", "record emitted events into a SQLite database under this directory")
	flags.String("sigma-rules", "", "evaluate Sigma rules from this directory against exec events")
	configFile := flags.String("config", "", "optional config file")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("AGENTSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Mode:          v.GetInt("mode"),
		TargetPID:     v.GetInt32("pid"),
		MinDurationMs: v.GetUint64("duration"),
		Verbose:       v.GetBool("verbose"),
		DBDir:         v.GetString("db-dir"),
		SigmaRulesDir: v.GetString("sigma-rules"),
	}

	if commands := v.GetString("commands"); commands != "" {
		for _, c := range strings.Split(commands, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cfg.Commands = append(cfg.Commands, c)
			}
		}
	}

	// A command allowlist or target pid only makes sense under selective
	// filtering, so either switches the mode unless one was given
	// explicitly.
	if !flags.Changed("mode") && (len(cfg.Commands) > 0 || cfg.TargetPID > 0) {
		cfg.Mode = int(filter.ModeFilter)
	}

	if cfg.TargetPID < 0 {
		return nil, fmt.Errorf("invalid PID: %d", cfg.TargetPID)
	}
	if _, err := filter.ParseMode(cfg.Mode); err != nil {
		return nil, err
	}

	return cfg, nil
}
