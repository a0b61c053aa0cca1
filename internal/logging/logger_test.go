package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_WritesNamedEntriesWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetBase(zap.New(core))
	defer SetBase(nil)

	log := New("CycleScheduler")
	log.Info("Tenant processed", map[string]interface{}{
		"tenant_id": "t-1",
		"new_leads": 3,
	})
	log.Error("Tenant failed", map[string]interface{}{
		"error": errors.New("boom"),
	})

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "CycleScheduler", entries[0].LoggerName)
	assert.Equal(t, "Tenant processed", entries[0].Message)
	assert.Equal(t, "t-1", entries[0].ContextMap()["tenant_id"])
	assert.EqualValues(t, 3, entries[0].ContextMap()["new_leads"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetBase(zap.New(core))
	defer SetBase(nil)

	New("Fetcher").Debug("hidden", nil)
	New("Fetcher").Warn("shown", nil)

	require.Len(t, logs.All(), 1)
	assert.Equal(t, "shown", logs.All()[0].Message)
}

func TestNewBase_InvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := NewBase("loud")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
