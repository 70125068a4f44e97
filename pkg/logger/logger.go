/*
 * Copyright 2026 Isolapurr Project.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger provides JSON structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction for a binary.
type Config struct {
	Level      string `json:"level"`
	Debug      bool   `json:"debug"`
	Output     string `json:"output"`
	TimeFormat string `json:"time_format"`
}

// DefaultConfig is the configuration used when a binary's config file
// does not set one.
func DefaultConfig() *Config {
	return &Config{Level: "info", Output: "stdout"}
}

// Logger is the logging interface used across the repository. It exposes
// zerolog's event chain so call sites keep the usual
// log.Info().Str(...).Msg(...) shape.
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) Logger
}

type zlogger struct {
	log zerolog.Logger
}

// New builds a Logger from Config. Unknown levels are an error; Debug wins
// over Level when both are set.
func New(config Config) (Logger, error) {
	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	}

	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return nil, err
		}
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &zlogger{log: zl}, nil
}

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() Logger {
	return &zlogger{log: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}

func (z *zlogger) Trace() *zerolog.Event { return z.log.Trace() }
func (z *zlogger) Debug() *zerolog.Event { return z.log.Debug() }
func (z *zlogger) Info() *zerolog.Event  { return z.log.Info() }
func (z *zlogger) Warn() *zerolog.Event  { return z.log.Warn() }
func (z *zlogger) Error() *zerolog.Event { return z.log.Error() }
func (z *zlogger) Fatal() *zerolog.Event { return z.log.Fatal() }

func (z *zlogger) With() zerolog.Context { return z.log.With() }

func (z *zlogger) WithComponent(component string) Logger {
	return &zlogger{log: z.log.With().Str("component", component).Logger()}
}
