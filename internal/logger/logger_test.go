package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "WARN", " error "} {
		l, err := New(lvl, false)
		require.NoError(t, err, "level %q", lvl)
		assert.NotNil(t, l)
	}
}

func TestNew_JSON(t *testing.T) {
	l, err := New("info", true)
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("loud", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestCronLogger_ErrorCarriesErr(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := CronLogger{L: zap.New(core).Sugar()}

	cl.Error(errors.New("boom"), "panic", "job", "digest")
	cl.Info("wake", "now", "t")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "panic", entry.Message)
	assert.Equal(t, zap.ErrorLevel, entry.Level)
	assert.Equal(t, "digest", entry.ContextMap()["job"])
	assert.Equal(t, zap.DebugLevel, logs.All()[1].Level)
}
