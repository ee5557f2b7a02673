// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logging constructs the daemon's zap loggers from environment
// configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Env variable names read by FromEnv.
const (
	EnvLogLevel           = "TELECLAUDE_LOG_LEVEL"
	EnvThirdPartyLogLevel = "TELECLAUDE_THIRD_PARTY_LOG_LEVEL"
	EnvThirdPartyLoggers  = "TELECLAUDE_THIRD_PARTY_LOGGERS"
)

// Options configures logger construction.
type Options struct {
	Level           string   // debug|info|warn|error, default info
	ThirdPartyLevel string   // level applied to named third-party loggers
	ThirdPartyNames []string // logger names considered third-party
	Development     bool     // console encoder, caller info
}

// FromEnv builds Options from the TELECLAUDE_* environment variables.
func FromEnv() Options {
	opts := Options{
		Level:           os.Getenv(EnvLogLevel),
		ThirdPartyLevel: os.Getenv(EnvThirdPartyLogLevel),
	}
	if names := os.Getenv(EnvThirdPartyLoggers); names != "" {
		for _, n := range strings.Split(names, ",") {
			if n = strings.TrimSpace(n); n != "" {
				opts.ThirdPartyNames = append(opts.ThirdPartyNames, n)
			}
		}
	}
	return opts
}

// ParseLevel converts a level string to a zapcore.Level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New constructs the root logger.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))
	return cfg.Build()
}

// ThirdParty returns a named logger for a third-party component. If the name
// is listed in ThirdPartyNames, the logger only passes entries at or above
// the third-party level.
func ThirdParty(root *zap.Logger, opts Options, name string) *zap.Logger {
	for _, n := range opts.ThirdPartyNames {
		if n == name {
			lvl := ParseLevel(opts.ThirdPartyLevel)
			core := root.Core()
			return zap.New(&leveledCore{Core: core, min: lvl}).Named(name)
		}
	}
	return root.Named(name)
}

// leveledCore wraps a core with a higher minimum level.
type leveledCore struct {
	zapcore.Core
	min zapcore.Level
}

func (c *leveledCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && c.Core.Enabled(lvl)
}

func (c *leveledCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}
	return c.Core.Check(ent, ce)
}
