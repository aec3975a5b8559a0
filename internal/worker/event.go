package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ExtendableEvent keeps the worker alive until every promise registered with
// WaitUntil has settled.
type ExtendableEvent struct {
	Name string

	ctx  context.Context
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func newExtendableEvent(ctx context.Context, name string) *ExtendableEvent {
	return &ExtendableEvent{Name: name, ctx: ctx}
}

// WaitUntil runs fn asynchronously and extends the event until it returns.
// A panic in fn is recorded as an error.
func (e *ExtendableEvent) WaitUntil(fn func(ctx context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.fail(fmt.Errorf("%s handler panicked: %v", e.Name, r))
			}
		}()
		if err := fn(e.ctx); err != nil {
			e.fail(err)
		}
	}()
}

func (e *ExtendableEvent) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

// Wait blocks until all extensions have settled and joins their errors.
func (e *ExtendableEvent) Wait() error {
	e.wg.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.errs...)
}
