package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
	result  Result
	err     error
}

func (r *blockingRunner) Run(_ context.Context, _ uuid.UUID, _ int) (Result, error) {
	r.calls.Add(1)
	if r.started != nil {
		close(r.started)
	}
	if r.release != nil {
		<-r.release
	}
	return r.result, r.err
}

func TestScan_ConcurrentSameOwnerCoalesces(t *testing.T) {
	runner := &blockingRunner{
		started: make(chan struct{}),
		release: make(chan struct{}),
		result:  Result{ProcessedCount: 3, JobRelatedCount: 1},
	}
	svc := NewService(runner)
	ownerID := uuid.New()

	var wg sync.WaitGroup
	results := make([]Result, 5)
	errs := make([]error, 5)

	// Make sure the first cycle is in flight before the rest join.
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = svc.Scan(context.Background(), ownerID, 0)
	}()
	<-runner.started

	for i := 1; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Scan(context.Background(), ownerID, 0)
		}(i)
	}
	close(runner.release)
	wg.Wait()

	assert.Equal(t, int32(1), runner.calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, runner.result, results[i])
	}
}

func TestScan_DifferentOwnersRunIndependently(t *testing.T) {
	runner := &blockingRunner{result: Result{ProcessedCount: 1}}
	svc := NewService(runner)

	_, err := svc.Scan(context.Background(), uuid.New(), 0)
	require.NoError(t, err)
	_, err = svc.Scan(context.Background(), uuid.New(), 0)
	require.NoError(t, err)

	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestScan_PropagatesRunnerError(t *testing.T) {
	wantErr := errors.New("token refresh failed")
	svc := NewService(&blockingRunner{err: wantErr})

	result, err := svc.Scan(context.Background(), uuid.New(), 0)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, Result{}, result)
}
