package cancel

import "context"

// ContextCanceler is the data handler's stop token. Besides polling Done,
// the handler blocks on Context().Done() between drains. Cancelling the
// parent (a signal context, for example) cancels it too.
type ContextCanceler struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewContext derives a ContextCanceler from parent.
func NewContext(parent context.Context) *ContextCanceler {
	ctx, cancel := context.WithCancel(parent)
	return &ContextCanceler{ctx: ctx, cancel: cancel}
}

// Done reports whether the context is cancelled, without blocking.
func (c *ContextCanceler) Done() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Cancel cancels the context.
func (c *ContextCanceler) Cancel() {
	c.cancel()
}

// Context returns the context to block on.
func (c *ContextCanceler) Context() context.Context {
	return c.ctx
}
