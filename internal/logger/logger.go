// Package logger builds the process-wide zap logger and small adapters that
// let third-party libraries (cron, goose) write through it.
package logger

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a SugaredLogger at the given level. jsonOutput selects the
// production JSON encoder; otherwise a console encoder is used.
func New(level string, jsonOutput bool) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid LOG_LEVEL %q", level)
	}

	var cfg zap.Config
	if jsonOutput {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *zap.SugaredLogger { return zap.NewNop().Sugar() }

// CronLogger adapts a SugaredLogger to robfig/cron's Logger interface.
type CronLogger struct{ L *zap.SugaredLogger }

// Info logs routine cron messages at debug level; cron is chatty.
func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.L.Debugw(msg, keysAndValues...)
}

// Error logs cron errors, including recovered panics.
func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.L.Errorw(msg, append(keysAndValues, "err", err)...)
}

// GooseLogger adapts a SugaredLogger to goose's Logger interface.
type GooseLogger struct{ L *zap.SugaredLogger }

func (g GooseLogger) Fatalf(format string, v ...interface{}) { g.L.Fatalf(format, v...) }
func (g GooseLogger) Printf(format string, v ...interface{}) {
	g.L.Infof(strings.TrimSuffix(format, "\n"), v...)
}
