package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/sarchlab/coarsebench/config"
)

// ApplyModelArg is the positional argument that switches on the coarsening
// model.
const ApplyModelArg = "APPLY_COARSENING_MODEL"

type options struct {
	configFile         string
	arch               string
	occupancyReduction bool
	threadLevel        bool
	timeout            time.Duration
	logLevel           string
	streamOutput       bool
	table              bool
	resultsDB          string
	failExit           bool
	applyModel         bool
}

func (o *options) bindConfigFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configFile, "config", "c", "",
		"YAML file overriding the built-in sweep configuration")
	fs.StringVar(&o.arch, "arch", "",
		"architecture profile to model (kepler, maxwell, pascal or one defined in the config)")
	fs.BoolVar(&o.occupancyReduction, "occupancy-reduction", false,
		"measure occupancy and rerun with reduced occupancy")
	fs.BoolVar(&o.threadLevel, "thread-level", false,
		"use thread-level instead of block-level coarsening")
	fs.DurationVar(&o.timeout, "timeout", 0,
		"wall-clock budget of one run, rounded up to whole seconds (default from config, 3000s)")
	fs.BoolVar(&o.applyModel, "apply-model", false,
		"let the coarsening model pick the factor, same as "+ApplyModelArg)
}

func (o *options) bindRunFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.streamOutput, "stream-output", false,
		"echo the output of every run while it executes")
	fs.BoolVar(&o.table, "table", false,
		"print a table of all runs after the summary")
	fs.StringVar(&o.resultsDB, "results-db", "",
		"store all runs in this SQLite database")
	fs.BoolVar(&o.failExit, "fail-exit", false,
		"exit with status 1 if any run failed")
}

// parseModelArg interprets the positional arguments of the run command.
func (o *options) parseModelArg(args []string) error {
	switch {
	case len(args) == 0:
		return nil
	case len(args) == 1 && args[0] == ApplyModelArg:
		o.applyModel = true
		return nil
	default:
		return fmt.Errorf("unexpected arguments %q, only %s is accepted",
			args, ApplyModelArg)
	}
}

// loadConfig loads the configuration and applies the flags the user set.
func (o *options) loadConfig(changed func(name string) bool) (config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		var err error
		if cfg, err = config.Load(o.configFile); err != nil {
			return config.Config{}, err
		}
	}

	if changed("arch") {
		cfg.Arch = o.arch
	}
	if changed("occupancy-reduction") {
		cfg.OccupancyReduction = o.occupancyReduction
	}
	if changed("thread-level") {
		cfg.ThreadLevelCoarsening = o.threadLevel
	}
	if changed("timeout") {
		cfg.TimeoutSeconds = wholeSeconds(o.timeout)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

// wholeSeconds rounds d up to whole seconds, so a sub-second timeout is not
// truncated to zero.
func wholeSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
