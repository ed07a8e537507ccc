package volsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/notegate/notegate/testing"
)

type flushFailureCounter struct {
	failures atomic.Int32
}

func (c *flushFailureCounter) RecordFlushFailure() {
	c.failures.Add(1)
}

func newTestReplica(upload func(ctx context.Context) error) *S3Replica {
	return &S3Replica{cfg: ReplicaConfig{Bucket: "replica"}, upload: upload}
}

func TestSyncRetryExhaustionSurfacesOneError(t *testing.T) {
	var attempts atomic.Int32
	replica := newTestReplica(func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("bucket unreachable")
	})
	counter := &flushFailureCounter{}
	replica.SetMetrics(counter)

	err := replica.Sync(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 3, attempts.Load())
	require.EqualValues(t, 1, counter.failures.Load())
}

func TestSyncRecoversWithinRetryBudget(t *testing.T) {
	var attempts atomic.Int32
	replica := newTestReplica(func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	counter := &flushFailureCounter{}
	replica.SetMetrics(counter)

	require.NoError(t, replica.Sync(context.Background()))
	require.EqualValues(t, 3, attempts.Load())
	require.Zero(t, counter.failures.Load())
}

func TestSyncCoalescesConcurrentFlushes(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var uploads atomic.Int32
	replica := newTestReplica(func(ctx context.Context) error {
		if uploads.Add(1) == 1 {
			close(started)
		}
		<-release
		return nil
	})

	ctx := context.Background()
	const followers = 4
	errs := make([]error, followers)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = replica.Sync(ctx)
	}()
	<-started

	// The upload is in flight; every Sync issued now must join it.
	for i := 0; i < followers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = replica.Sync(ctx)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, uploads.Load())
	for _, err := range errs {
		require.NoError(t, err)
	}
}
