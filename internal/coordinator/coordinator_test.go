package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator() *Coordinator {
	return New(Config{Attempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second}, nil)
}

func TestRetry_SucceedsAfterTransientFailure(t *testing.T) {
	c := newTestCoordinator()

	calls := 0
	err := c.Retry(context.Background(), "chapters", func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_ExhaustsAttemptBudget(t *testing.T) {
	c := newTestCoordinator()

	calls := 0
	wantErr := errors.New("down")
	err := c.Retry(context.Background(), "chapters", func(ctx context.Context) error {
		calls++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestRetry_CancellationAbortsImmediately(t *testing.T) {
	c := newTestCoordinator()

	calls := 0
	err := c.Retry(context.Background(), "search", func(ctx context.Context) error {
		calls++
		return context.Canceled
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.True(t, IsCanceled(err))
}

func TestOnce_SingleAttempt(t *testing.T) {
	c := newTestCoordinator()

	calls := 0
	err := c.Once(context.Background(), "progress", func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBegin_SupersedesPreviousCallOfSameKind(t *testing.T) {
	c := newTestCoordinator()

	ctxX, doneX := c.Begin(context.Background(), "search")
	defer doneX()
	ctxY, doneY := c.Begin(context.Background(), "search")
	defer doneY()

	// Issuing "Y" aborts the still-pending "X"; only "Y" remains live.
	assert.ErrorIs(t, ctxX.Err(), context.Canceled)
	assert.NoError(t, ctxY.Err())
}

func TestBegin_DifferentKindsAreIndependent(t *testing.T) {
	c := newTestCoordinator()

	ctxSearch, doneSearch := c.Begin(context.Background(), "search")
	defer doneSearch()
	ctxChapters, doneChapters := c.Begin(context.Background(), "chapters")
	defer doneChapters()

	assert.NoError(t, ctxSearch.Err())
	assert.NoError(t, ctxChapters.Err())
}

func TestBegin_DoneDoesNotUnregisterNewerCall(t *testing.T) {
	c := newTestCoordinator()

	_, doneX := c.Begin(context.Background(), "search")
	ctxY, doneY := c.Begin(context.Background(), "search")
	defer doneY()

	// Finishing the superseded call must not clear Y's registration,
	// and must not cancel Y.
	doneX()
	assert.NoError(t, ctxY.Err())

	c.mu.Lock()
	_, ok := c.inflight["search"]
	c.mu.Unlock()
	assert.True(t, ok)
}
