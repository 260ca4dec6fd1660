package reactor

import (
	"context"
	"sync"
)

// Completion is a single-resolution signal with an optional error, used for
// HierarchyTermination: a caller awaits it without the dispatcher ever
// blocking to produce it. Shares its shape with Future but resolves with an
// error rather than a DeliveryStatus, since "a hierarchy finished
// terminating" has no delivery outcome to report.
type Completion struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewCompletion creates an unresolved Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Complete resolves the completion exactly once.
func (c *Completion) Complete(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Await blocks until the completion resolves or ctx is cancelled.
func (c *Completion) Await(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done exposes the completion channel directly.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}
