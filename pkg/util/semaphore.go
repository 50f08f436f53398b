package util

import (
	"context"
	"sync"
)

// Semaphore bounds the number of operations running at once. A zero capacity is unlimited.
type Semaphore struct {
	sem chan struct{}
}

// NewSemaphore returns a Semaphore with the given capacity.
func NewSemaphore(count int) *Semaphore {
	if count <= 0 {
		return &Semaphore{}
	}
	return &Semaphore{sem: make(chan struct{}, count)}
}

// Acquire blocks until a slot is free. Returns false if the context is done first.
func (s *Semaphore) Acquire(ctx context.Context) bool {
	if s.sem == nil {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case s.sem <- struct{}{}:
		return true
	}
}

// Release frees a slot taken by a successful Acquire.
func (s *Semaphore) Release() {
	if s.sem != nil {
		<-s.sem
	}
}

// Do runs every job, with at most the semaphore's capacity running concurrently, and
// returns the first error. Jobs that could not start before ctx was done return ctx.Err().
func (s *Semaphore) Do(ctx context.Context, jobs ...func(context.Context) error) error {
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	setErr := func(err error) {
		errOnce.Do(func() {
			firstErr = err
		})
	}
	for _, job := range jobs {
		if !s.Acquire(ctx) {
			setErr(ctx.Err())
			break
		}
		wg.Add(1)
		go func(job func(context.Context) error) {
			defer wg.Done()
			defer s.Release()
			if err := job(ctx); err != nil {
				setErr(err)
			}
		}(job)
	}
	wg.Wait()
	return firstErr
}
