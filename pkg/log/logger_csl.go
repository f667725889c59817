package log

import (
	"context"
	"log"
	"strings"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
	levelCritical
)

var levelNames = map[string]level{
	"debug":    levelDebug,
	"info":     levelInfo,
	"warn":     levelWarn,
	"error":    levelError,
	"critical": levelCritical,
}

// CslLogger writes leveled log lines to the console. Lines below the
// configured minimum level are dropped.
type CslLogger struct {
	minLevel level
}

func NewCslLogger() (*CslLogger, error) {
	return &CslLogger{minLevel: levelInfo}, nil
}

// NewCslLoggerWithLevel builds a console logger honoring the configured
// log level. Unknown levels fall back to debug so nothing is lost.
func NewCslLoggerWithLevel(name string) (*CslLogger, error) {
	lvl, ok := levelNames[strings.ToLower(name)]
	if !ok {
		lvl = levelDebug
	}
	return &CslLogger{minLevel: lvl}, nil
}

func (l *CslLogger) logf(lvl level, prefix, format string, args ...interface{}) {
	if lvl < l.minLevel {
		return
	}
	log.Printf(prefix+" "+format, args...)
}

func (l *CslLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.logf(levelDebug, "[DEBUG]", format, args...)
}

func (l *CslLogger) Info(ctx context.Context, format string, args ...interface{}) {
	l.logf(levelInfo, "[INFO]", format, args...)
}

func (l *CslLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.logf(levelWarn, "[WARN]", format, args...)
}

func (l *CslLogger) Error(ctx context.Context, format string, args ...interface{}) {
	l.logf(levelError, "[ERROR]", format, args...)
}

func (l *CslLogger) Critical(ctx context.Context, format string, args ...interface{}) {
	l.logf(levelCritical, "[CRITICAL]", format, args...)
}
