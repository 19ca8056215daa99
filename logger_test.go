package selhist

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umr-dbs/selhist/cursor"
)

func TestLogger(t *testing.T) {
	t.Run("WithContext", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		log.WithDimension(2).WithBuckets(10).Debug("build stage", "state", StateSorting.String())

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, float64(2), record["dimension"])
		assert.Equal(t, float64(10), record["buckets"])
		assert.Equal(t, "Sorting", record["state"])
	})

	t.Run("BuildLogsStages", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		h, err := New(2, WithTempPath(t.TempDir()), WithLogger(log))
		require.NoError(t, err)
		require.NoError(t, h.Build(context.Background(), cursor.FromSlice(uniformRects(50, 1)), 4))

		out := buf.String()
		for _, state := range []State{StateSorting, StateBulkLoading, StateExtracting, StatePartitioning} {
			assert.Contains(t, out, "state="+state.String())
		}
		assert.Contains(t, out, "histogram built")
	})

	t.Run("NoopDiscards", func(t *testing.T) {
		// Must not panic and must not write anywhere.
		log := NoopLogger()
		log.Debug("dropped")
		log.Error("dropped too")
	})
}

func TestConfigError(t *testing.T) {
	_, err := New(2, func(o *Options) { o.BlockSize = 1 })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BlockSize")
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Unbuilt", StateUnbuilt.String())
	assert.Equal(t, "Built", StateBuilt.String())
	assert.Equal(t, "Failed", StateFailed.String())
	assert.Equal(t, "Unknown", State(99).String())
	assert.Equal(t, "GOPT", BulkLoadGOPT.String())
	assert.Equal(t, "Skew", CostSkew.String())
}
