// Package cancel provides a cooperative cancellation token for blocking calls such as
// summarization requests.
//
// A Token starts un-cancelled. Cancel is idempotent and runs every registered callback
// exactly once, synchronously and in registration order; a panicking callback does not
// prevent the others from running. Child tokens are cancelled by their parent but never
// cancel it.
package cancel

import (
	"context"
	"fmt"
	"sync"

	"contextcore/pkg/logx"
)

// Token is a cooperative cancellation signal.
type Token struct {
	done      chan struct{}
	callbacks []*callback
	logger    *logx.Logger
	mu        sync.Mutex
	cancelled bool
}

type callback struct {
	fn func()
}

// New returns an un-cancelled token.
func New() *Token {
	return &Token{
		done:   make(chan struct{}),
		logger: logx.NewLogger("cancel"),
	}
}

// Cancel marks the token cancelled and runs the registered callbacks. Calls after the
// first are no-ops.
func (t *Token) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	callbacks := t.callbacks
	t.callbacks = nil
	close(t.done)
	t.mu.Unlock()

	for _, cb := range callbacks {
		if cb.fn != nil {
			t.run(cb.fn)
		}
	}
}

func (t *Token) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("cancellation callback panicked: %v", r)
		}
	}()
	fn()
}

// IsCancelled reports whether Cancel has been called.
func (t *Token) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done returns a channel closed when the token is cancelled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// RegisterCallback adds fn to the callbacks run on cancellation. If the token is already
// cancelled fn runs immediately on the calling goroutine. The returned function removes
// fn if it has not run yet.
func (t *Token) RegisterCallback(fn func()) (unregister func()) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		t.run(fn)
		return func() {}
	}
	cb := &callback{fn: fn}
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, registered := range t.callbacks {
			if registered == cb {
				t.callbacks = append(t.callbacks[:i:i], t.callbacks[i+1:]...)
				return
			}
		}
	}
}

// Child returns a token cancelled whenever t is cancelled. Cancelling the child does not
// affect t.
func (t *Token) Child() *Token {
	child := New()
	unregister := t.RegisterCallback(child.Cancel)
	// Once the child is cancelled on its own, the parent no longer needs to track it.
	child.RegisterCallback(unregister)
	return child
}

// Bind returns a context that is cancelled when either ctx is done or the token is
// cancelled. The returned CancelFunc releases the binding and must be called.
func (t *Token) Bind(ctx context.Context) (context.Context, context.CancelFunc) {
	bound, cancel := context.WithCancelCause(ctx)
	unregister := t.RegisterCallback(func() {
		cancel(fmt.Errorf("%w: token cancelled", context.Canceled))
	})
	return bound, func() {
		unregister()
		cancel(context.Canceled)
	}
}

type tokenKey struct{}

// WithToken returns a context carrying tok.
func WithToken(ctx context.Context, tok *Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

// FromContext returns the token carried by ctx, if any.
func FromContext(ctx context.Context) (*Token, bool) {
	tok, ok := ctx.Value(tokenKey{}).(*Token)
	return tok, ok && tok != nil
}
