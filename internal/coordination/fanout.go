// Package coordination runs the stakeholder-coordination pipeline:
// identification, outreach, response collection, root-cause synthesis and
// plan execution.
package coordination

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

// fanOut runs fn for every item with at most limit in flight and returns
// one result per item, in input order. Errors and panics are handed to
// onErr so a failing unit never cancels its siblings.
func fanOut[T, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) (R, error), onErr func(T, error) R) []R {
	if limit <= 0 {
		limit = defaultConcurrency
	}
	results := make([]R, len(items))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					results[i] = onErr(item, fmt.Errorf("panic: %v", p))
				}
			}()
			res, err := fn(ctx, item)
			if err != nil {
				results[i] = onErr(item, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}
