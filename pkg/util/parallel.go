package util

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Gather runs every fn concurrently and waits for all of them. The returned
// slice holds each fn's error at its index. A panic is recovered and
// reported as that fn's error.
func Gather(ctx context.Context, fns ...func(context.Context) error) []error {
	errs := make([]error, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("gathered task panicked")
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			errs[i] = fn(ctx)
		}()
	}
	wg.Wait()
	return errs
}

// Map applies fn to every input with at most workerLimit in flight and
// returns the outputs in input order.
func Map[T, R any](ctx context.Context, inputs []T, workerLimit int, fn func(context.Context, T) R) []R {
	out := make([]R, len(inputs))
	if len(inputs) == 0 {
		return out
	}
	workerLimit = max(1, workerLimit)

	sem := make(chan struct{}, workerLimit)
	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = fn(ctx, in)
		}()
	}
	wg.Wait()
	return out
}
