// Package pipeline composes typed processing stages. Stage i consumes the
// output type of stage i-1, so a chain that does not line up fails to compile.
package pipeline

import (
	"context"

	"github.com/JakeFAU/yacrawler/internal/crawler"
)

// StageFunc transforms In into Out.
type StageFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// Chain is an immutable sequence of named stages from In to Out.
type Chain[In, Out any] struct {
	names []string
	run   func(ctx context.Context, in In) (Out, error)
}

// New starts a chain with a single stage.
func New[In, Out any](name string, fn StageFunc[In, Out]) Chain[In, Out] {
	return Chain[In, Out]{
		names: []string{name},
		run: func(ctx context.Context, in In) (Out, error) {
			return runStage(ctx, name, 0, fn, in)
		},
	}
}

// Then appends a stage. The receiver is left unchanged.
func Then[In, Mid, Out any](c Chain[In, Mid], name string, fn StageFunc[Mid, Out]) Chain[In, Out] {
	index := len(c.names)
	names := make([]string, index, index+1)
	copy(names, c.names)
	names = append(names, name)
	prev := c.run
	return Chain[In, Out]{
		names: names,
		run: func(ctx context.Context, in In) (Out, error) {
			mid, err := prev(ctx, in)
			if err != nil {
				var zero Out
				return zero, err
			}
			return runStage(ctx, name, index, fn, mid)
		},
	}
}

func runStage[In, Out any](ctx context.Context, name string, index int, fn StageFunc[In, Out], in In) (Out, error) {
	var zero Out
	if err := ctx.Err(); err != nil {
		return zero, &crawler.StageError{Stage: name, Index: index, Err: err}
	}
	out, err := fn(ctx, in)
	if err != nil {
		return zero, &crawler.StageError{Stage: name, Index: index, Err: err}
	}
	return out, nil
}

// Run feeds in through every stage. A failure stops the chain and is returned
// as a *crawler.StageError naming the stage.
func (c Chain[In, Out]) Run(ctx context.Context, in In) (Out, error) {
	if c.run == nil {
		var zero Out
		return zero, nil
	}
	return c.run(ctx, in)
}

// Stages returns the stage names in execution order.
func (c Chain[In, Out]) Stages() []string {
	return append([]string(nil), c.names...)
}

// Len returns the number of stages.
func (c Chain[In, Out]) Len() int {
	return len(c.names)
}

// Processor adapts a chain rooted at a fetched page to crawler.Pipeline,
// discarding the terminal value.
func Processor[Out any](c Chain[crawler.Page, Out]) crawler.Pipeline {
	return processor[Out]{chain: c}
}

type processor[Out any] struct {
	chain Chain[crawler.Page, Out]
}

func (p processor[Out]) Process(ctx context.Context, page crawler.Page) error {
	_, err := p.chain.Run(ctx, page)
	return err
}

// Noop is a pipeline that accepts every page.
type Noop struct{}

// Process implements crawler.Pipeline.
func (Noop) Process(context.Context, crawler.Page) error { return nil }
