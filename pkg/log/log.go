// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log implements a leveled logging package that prints to an
// arbitrary Writer or Emitter, along the lines of glog.
package log

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// Level is the log level to use for a given message.
type Level int32

const (
	// Warning indicates that the message is a warning.
	Warning Level = iota

	// Info indicates that the message is informational.
	Info

	// Debug indicates that the message is for debugging purposes.
	Debug
)

// String returns a string version of the level.
func (l Level) String() string {
	switch l {
	case Warning:
		return "WARNING"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	default:
		return fmt.Sprintf("S(%d)", l)
	}
}

// Emitter is the final destination for log messages.
type Emitter interface {
	// Emit writes the given message to the log.
	Emit(level Level, timestamp time.Time, format string, args ...any)
}

// Writer adapts an io.Writer into a Logger Emitter, tracking how many
// messages were dropped due to write errors so that the next successful
// write can report the gap.
type Writer struct {
	// Next is the underlying writer.
	Next interface {
		Write([]byte) (int, error)
	}

	dropMessages int64
}

// Write implements io.Writer. Errors from Next are not hidden, but are
// counted; the next Write first reports how many messages in between were
// lost, then writes its own message.
func (ew *Writer) Write(p []byte) (int, error) {
	if dropped := atomic.SwapInt64(&ew.dropMessages, 0); dropped != 0 {
		if _, err := fmt.Fprintf(ew.Next, "\n*** Dropped %d log messages ***\n", dropped); err != nil {
			atomic.AddInt64(&ew.dropMessages, dropped)
		}
	}
	n, err := ew.Next.Write(p)
	if err != nil {
		atomic.AddInt64(&ew.dropMessages, 1)
	}
	return n, err
}

// Emit implements Emitter.Emit.
func (ew *Writer) Emit(level Level, timestamp time.Time, format string, v ...any) {
	ew.Write([]byte(fmt.Sprintf(format, v...)))
}

// Logger is an interface for logging at the three levels used by this
// package.
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warningf(format string, v ...any)
	IsLogging(level Level) bool
}

// BasicLogger logs to its Emitter every message at or below its Level,
// which SetLevel can change.
type BasicLogger struct {
	Level
	Emitter
}

// Debugf implements Logger.Debugf.
func (l *BasicLogger) Debugf(format string, v ...any) {
	l.logf(Debug, format, v...)
}

// Infof implements Logger.Infof.
func (l *BasicLogger) Infof(format string, v ...any) {
	l.logf(Info, format, v...)
}

// Warningf implements Logger.Warningf.
func (l *BasicLogger) Warningf(format string, v ...any) {
	l.logf(Warning, format, v...)
}

// IsLogging implements Logger.IsLogging.
func (l *BasicLogger) IsLogging(level Level) bool {
	return level <= Level(atomic.LoadInt32((*int32)(&l.Level)))
}

func (l *BasicLogger) logf(level Level, format string, v ...any) {
	if !l.IsLogging(level) {
		return
	}
	l.Emitter.Emit(level, time.Now(), format, v...)
}

// SetLevel sets the logging level.
func (l *BasicLogger) SetLevel(level Level) {
	atomic.StoreInt32((*int32)(&l.Level), int32(level))
}

// log is the default logger, set at Info level writing to stderr.
var log atomic.Value // Logger

func init() {
	log.Store(Logger(&BasicLogger{
		Level:   Info,
		Emitter: GoogleEmitter{&Writer{Next: os.Stderr}},
	}))
}

// Log returns the global logger.
func Log() Logger {
	return log.Load().(Logger)
}

// SetTarget sets the global logger target.
func SetTarget(target Logger) {
	log.Store(target)
}

// Debugf logs to the global logger.
func Debugf(format string, v ...any) {
	Log().Debugf(format, v...)
}

// Infof logs to the global logger.
func Infof(format string, v ...any) {
	Log().Infof(format, v...)
}

// Warningf logs to the global logger.
func Warningf(format string, v ...any) {
	Log().Warningf(format, v...)
}

// IsLogging returns whether the global logger is emitting at the given
// level.
func IsLogging(level Level) bool {
	return Log().IsLogging(level)
}
