package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	dErrors "cms/pkg/domain-errors"
	"cms/pkg/platform/sentinel"
)

// ConcurrentResult counts how racing writers fared.
type ConcurrentResult struct {
	Successes int32
	Conflicts int32 // lost the checksum race
	NotFounds int32
	Errors    int32 // anything else
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Conflicts + r.NotFounds + r.Errors
}

func (r *ConcurrentResult) record(err error) {
	switch {
	case err == nil:
		atomic.AddInt32(&r.Successes, 1)
	case errors.Is(err, sentinel.ErrConflict), dErrors.HasCode(err, dErrors.CodeWrongChecksum):
		atomic.AddInt32(&r.Conflicts, 1)
	case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
		atomic.AddInt32(&r.NotFounds, 1)
	default:
		atomic.AddInt32(&r.Errors, 1)
	}
}

// RunConcurrent starts n goroutines at once and tallies their outcomes.
// The goroutines are released together to maximise overlap.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	result := &ConcurrentResult{}
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			<-start
			result.record(fn(i))
		})
	}
	close(start)
	wg.Wait()
	return result
}

// RunConcurrentCtx is RunConcurrent with a shared context.
func RunConcurrentCtx(ctx context.Context, n int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	return RunConcurrent(n, func(idx int) error {
		return fn(ctx, idx)
	})
}

// RunConcurrentCollect is RunConcurrent for callers that need the raw errors.
func RunConcurrentCollect(n int, fn func(idx int) error) (int32, []error) {
	var (
		mu   sync.Mutex
		errs []error
	)
	result := RunConcurrent(n, func(idx int) error {
		err := fn(idx)
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
		return err
	})
	return result.Successes, errs
}
