/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"github.com/sirupsen/logrus"

	"github.com/audiograph/sgm/pkg/log/level"
)

// logrusLogger adapts a *logrus.Entry to the Logger interface, for
// deployments that already ship a logrus-based aggregation pipeline
// and want SGM's output in the same format instead of the simple
// logger's plain text.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps the given logrus logger. A nil logger uses
// logrus.StandardLogger().
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) fieldsFrom(keysAndValues ...interface{}) *logrus.Entry {
	if len(keysAndValues) == 0 {
		return l.entry
	}
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return l.entry.WithFields(fields)
}

func (l *logrusLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Debugw(msg string, keysAndValues ...interface{}) {
	l.fieldsFrom(keysAndValues...).Debug(msg)
}

func (l *logrusLogger) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusLogger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }
func (l *logrusLogger) Infow(msg string, keysAndValues ...interface{}) {
	l.fieldsFrom(keysAndValues...).Info(msg)
}

func (l *logrusLogger) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Warnw(msg string, keysAndValues ...interface{}) {
	l.fieldsFrom(keysAndValues...).Warn(msg)
}

func (l *logrusLogger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *logrusLogger) Errorw(msg string, keysAndValues ...interface{}) {
	l.fieldsFrom(keysAndValues...).Error(msg)
}

func (l *logrusLogger) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }
func (l *logrusLogger) Fatalw(msg string, keysAndValues ...interface{}) {
	l.fieldsFrom(keysAndValues...).Fatal(msg)
}

func (l *logrusLogger) Panic(args ...interface{})                 { l.entry.Panic(args...) }
func (l *logrusLogger) Panicf(format string, args ...interface{}) { l.entry.Panicf(format, args...) }
func (l *logrusLogger) Panicw(msg string, keysAndValues ...interface{}) {
	l.fieldsFrom(keysAndValues...).Panic(msg)
}

func (l *logrusLogger) Output(threshold Threshold, args ...interface{}) {
	l.outputAt(threshold).Log(logrusLevel(threshold), args...)
}

func (l *logrusLogger) Outputf(threshold Threshold, format string, args ...interface{}) {
	l.outputAt(threshold).Logf(logrusLevel(threshold), format, args...)
}

func (l *logrusLogger) Outputw(threshold Threshold, msg string, keysAndValues ...interface{}) {
	l.fieldsFrom(keysAndValues...).Log(logrusLevel(threshold), msg)
}

func (l *logrusLogger) outputAt(threshold Threshold) *logrus.Entry {
	return l.entry
}

func (l *logrusLogger) With(keysAndValues ...interface{}) Logger {
	return &logrusLogger{entry: l.fieldsFrom(keysAndValues...)}
}

// logrusLevel maps our severity Threshold onto logrus.Level.
func logrusLevel(threshold Threshold) logrus.Level {
	switch threshold {
	case level.Debug:
		return logrus.DebugLevel
	case level.Info:
		return logrus.InfoLevel
	case level.Warn:
		return logrus.WarnLevel
	case level.Fatal:
		return logrus.FatalLevel
	case level.Panic:
		return logrus.PanicLevel
	default:
		return logrus.ErrorLevel
	}
}
