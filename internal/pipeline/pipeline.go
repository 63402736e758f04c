package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrNextCalledTwice is returned when a middleware invokes next more than once.
var ErrNextCalledTwice = errors.New("pipeline: next called more than once")

// Next continues the pipeline with the next inner stage.
type Next func(ctx context.Context) error

// Middleware is one stage of a pipeline. It may run logic before and after
// calling next, or skip the rest of the pipeline by not calling it.
type Middleware[C any] func(ctx context.Context, c C, next Next) error

// Pipeline runs middleware as an onion: the last registered stage is the
// outermost wrapper and the first registered stage runs innermost. Register
// the terminal behaviour first and cross-cutting wrappers after it.
type Pipeline[C any] struct {
	stages []Middleware[C]
}

// New creates a pipeline with the given stages in registration order.
func New[C any](stages ...Middleware[C]) *Pipeline[C] {
	return &Pipeline[C]{stages: stages}
}

// Use appends stages.
func (p *Pipeline[C]) Use(stages ...Middleware[C]) *Pipeline[C] {
	p.stages = append(p.stages, stages...)
	return p
}

// Len returns the number of stages.
func (p *Pipeline[C]) Len() int {
	return len(p.stages)
}

// Run executes the pipeline against c. If ctx is already done when a stage
// is about to start, that stage and every inner stage are skipped and the
// context error is returned.
func (p *Pipeline[C]) Run(ctx context.Context, c C) error {
	n := len(p.stages)
	order := make([]Middleware[C], n)
	for i, stage := range p.stages {
		order[n-1-i] = stage
	}

	entered := make([]bool, n)

	var invoke func(ctx context.Context, i int) error
	invoke = func(ctx context.Context, i int) error {
		if i >= n {
			return nil
		}
		if entered[i] {
			return fmt.Errorf("stage %d: %w", n-1-i, ErrNextCalledTwice)
		}
		entered[i] = true

		if err := ctx.Err(); err != nil {
			return err
		}
		return order[i](ctx, c, func(ctx context.Context) error {
			return invoke(ctx, i+1)
		})
	}

	return invoke(ctx, 0)
}
