/*
Copyright 2018 The OpenEBS Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging adapts the narrow log(priority, message) hook the
// monitoring engine and transport layers depend on to a zerolog-backed
// sink, so callers never import zerolog directly.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Priority mirrors the two severities the engine ever logs at (spec.md §7
// "each emitted Event is both logged (priority INFO or CRIT)").
type Priority int

const (
	Info Priority = iota
	Crit
)

// Logger is the hook contract every layer above the transport depends on.
type Logger interface {
	Log(p Priority, message string)
}

// Zerolog wraps a zerolog.Logger to satisfy Logger.
type Zerolog struct {
	log zerolog.Logger
}

// New builds a Zerolog sink writing to w. pretty selects the console writer
// (used in foreground/debug mode, `-d`); when false it writes structured
// JSON, matching how a backgrounded daemon would feed a log collector.
func New(w io.Writer, pretty bool) *Zerolog {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return &Zerolog{log: zerolog.New(w).With().Timestamp().Logger()}
}

// NewDefault builds a Zerolog sink appropriate for the given debug flag,
// writing to stderr (spec.md §6 "-d debug (foreground, log to stderr)").
func NewDefault(debug bool) *Zerolog {
	return New(os.Stderr, debug)
}

func (z *Zerolog) Log(p Priority, message string) {
	switch p {
	case Crit:
		z.log.Error().Msg(message)
	default:
		z.log.Info().Msg(message)
	}
}

// Raw exposes the underlying zerolog.Logger for callers that need
// structured fields beyond the Logger interface.
func (z *Zerolog) Raw() *zerolog.Logger { return &z.log }

// Discard is a Logger that drops everything, used by tests that don't care
// about log output.
type Discard struct{}

func (Discard) Log(Priority, string) {}
