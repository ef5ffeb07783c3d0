// Package pool runs a function over a slice with a fixed number of workers.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Result is the outcome for one input item.
type Result[R any] struct {
	Value R
	Err   error
}

// Map applies fn to every item using at most workers goroutines. Workers
// pull the next index from a shared cursor and write into the slot they
// own, so results line up with items regardless of completion order.
// A failing or panicking item never stops its siblings.
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, i int, item T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	var cursor atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(cursor.Add(1) - 1)
				if i >= len(items) {
					return
				}
				results[i] = run(ctx, i, items[i], fn)
			}
		}()
	}
	wg.Wait()
	return results
}

func run[T, R any](ctx context.Context, i int, item T, fn func(context.Context, int, T) (R, error)) (res Result[R]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[R]{Err: fmt.Errorf("pool: item %d panicked: %v", i, r)}
		}
	}()
	v, err := fn(ctx, i, item)
	return Result[R]{Value: v, Err: err}
}
