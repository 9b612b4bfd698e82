// Package logx holds small helpers around github.com/cyclopcam/logs
package logx

import "github.com/cyclopcam/logs"

// PrefixLogger writes to the underlying log, with every message prefixed by Prefix.
// All five levels are overridden, so nothing reaches the embedded log unprefixed.
type PrefixLogger struct {
	logs.Log
	Prefix string
}

// NewPrefixLogger separates prefix from the message with a space
func NewPrefixLogger(log logs.Log, prefix string) *PrefixLogger {
	return &PrefixLogger{
		Log:    log,
		Prefix: prefix + " ",
	}
}

// With returns a logger for a sub-component, whose messages carry both prefixes
func (l *PrefixLogger) With(prefix string) *PrefixLogger {
	return &PrefixLogger{
		Log:    l.Log,
		Prefix: l.Prefix + prefix + " ",
	}
}

func (l *PrefixLogger) Debugf(format string, a ...any) {
	l.Log.Debugf(l.Prefix+format, a...)
}

func (l *PrefixLogger) Infof(format string, a ...any) {
	l.Log.Infof(l.Prefix+format, a...)
}

func (l *PrefixLogger) Warnf(format string, a ...any) {
	l.Log.Warnf(l.Prefix+format, a...)
}

func (l *PrefixLogger) Errorf(format string, a ...any) {
	l.Log.Errorf(l.Prefix+format, a...)
}

func (l *PrefixLogger) Criticalf(format string, a ...any) {
	l.Log.Criticalf(l.Prefix+format, a...)
}
