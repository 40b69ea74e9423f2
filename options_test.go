package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveReactorOptionsDefaults(t *testing.T) {
	cfg, err := resolveReactorOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, completionInitialCapacity, cfg.initialCompletionCap)
	assert.Equal(t, defaultMaxSpinLimit, cfg.maxSpinLimit)
	assert.Equal(t, pollerBatchSize, cfg.batchSize)
	assert.Equal(t, remoteTaskNotifyQuantum, cfg.notifyQuantum)
	assert.IsType(t, NoOpLogger{}, cfg.logger)
}

func TestReactorOptionsOverride(t *testing.T) {
	logger := NewDefaultLogger(LogWarn, nil)
	cfg, err := resolveReactorOptions([]ReactorOption{
		WithLogger(logger),
		WithMetrics(true),
		WithInitialCompletionCapacity(1024),
		WithMaxSpinLimit(4),
		WithTaskDrainBudget(10 * time.Millisecond),
		WithNotifyQuantum(8),
		WithBatchSize(32),
	})
	require.NoError(t, err)

	assert.Same(t, logger, cfg.logger)
	assert.True(t, cfg.metricsEnabled)
	assert.Equal(t, 1024, cfg.initialCompletionCap)
	assert.Equal(t, 4, cfg.maxSpinLimit)
	assert.Equal(t, 10*time.Millisecond, cfg.taskDrainBudget)
	assert.Equal(t, 8, cfg.notifyQuantum)
	assert.Equal(t, 32, cfg.batchSize)
}

func TestReactorOptionsIgnoreNilAndInvalid(t *testing.T) {
	cfg, err := resolveReactorOptions([]ReactorOption{
		nil,
		WithInitialCompletionCapacity(-1),
		WithMaxSpinLimit(-1),
		WithNotifyQuantum(0),
		WithBatchSize(0),
	})
	require.NoError(t, err)
	assert.Equal(t, completionInitialCapacity, cfg.initialCompletionCap)
	assert.Equal(t, defaultMaxSpinLimit, cfg.maxSpinLimit)
	assert.Equal(t, remoteTaskNotifyQuantum, cfg.notifyQuantum)
	assert.Equal(t, pollerBatchSize, cfg.batchSize)
}
