package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContextLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	reqCtx := NewRequestContext(logger, "submit_review", 42)
	require.Len(t, reqCtx.RequestID, 36)

	reqCtx.Info("review accepted", slog.Int(LogFieldItemID, 7))
	out := buf.String()
	assert.Contains(t, out, `"owner_id":42`)
	assert.Contains(t, out, `"operation":"submit_review"`)
	assert.Contains(t, out, `"item_id":7`)

	ctx := WithRequestContext(context.Background(), reqCtx)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, reqCtx.RequestID, got.RequestID)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
	assert.NotNil(t, LoggerFromContext(context.Background(), "batch"))
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordSubmission(false)
	m.RecordSubmission(true)
	m.RecordConflict()
	m.RecordRetry()
	m.RecordRetry()
	m.RecordOverflow()
	m.RecordOperation("stats.recompute_all", 30*time.Millisecond, nil)
	m.RecordOperation("stats.recompute_all", 10*time.Millisecond, errors.New("boom"))
	m.RecordOperation("retention.optimize", time.Millisecond, nil)

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.Submissions)
	assert.Equal(t, int64(1), s.SubmissionsFailed)
	assert.Equal(t, int64(2), s.Retries)
	assert.Equal(t, 50.0, s.SuccessRate())
	require.Len(t, s.Operations, 2)
	assert.Equal(t, "retention.optimize", s.Operations[0].Operation)
	assert.Equal(t, int64(2), s.Operations[1].ExecutionCount)
	assert.Equal(t, int64(1), s.Operations[1].ErrorCount)
	assert.Equal(t, int64(20), s.Operations[1].AverageDuration)

	m.Reset()
	assert.Equal(t, int64(0), m.Snapshot().Submissions)
	assert.Equal(t, 100.0, m.Snapshot().SuccessRate())
}
