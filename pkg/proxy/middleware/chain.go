package middleware

import (
	"errors"
	"sync/atomic"
)

// ErrChainSealed is returned by Use once a chain has been dispatched.
var ErrChainSealed = errors.New("middleware chain is sealed")

// Next continues a chain with the following middleware.
type Next func()

// Func is a middleware over context type T. It continues the chain by
// calling next; returning without calling next halts the chain.
type Func[T any] func(c T, next Next)

// Chain is an ordered list of middlewares for one event kind. It is built
// at startup and becomes read-only on first dispatch, after which any number
// of goroutines may dispatch concurrently.
type Chain[T any] struct {
	name   string
	funcs  []Func[T]
	sealed atomic.Bool
}

// NewChain creates an empty chain. name is used in logs and metrics.
func NewChain[T any](name string) *Chain[T] {
	return &Chain[T]{name: name}
}

// Name returns the chain's name.
func (c *Chain[T]) Name() string {
	return c.name
}

// Use appends middlewares in dispatch order.
func (c *Chain[T]) Use(fns ...Func[T]) error {
	if c.sealed.Load() {
		return ErrChainSealed
	}
	for _, fn := range fns {
		if fn != nil {
			c.funcs = append(c.funcs, fn)
		}
	}
	return nil
}

// Seal forbids further registration.
func (c *Chain[T]) Seal() {
	c.sealed.Store(true)
}

// Len returns the number of registered middlewares.
func (c *Chain[T]) Len() int {
	return len(c.funcs)
}

// Dispatch runs the chain for v. It reports true when every middleware
// called next, meaning the default handler should run.
func (c *Chain[T]) Dispatch(v T) bool {
	c.sealed.Store(true)

	d := &dispatch[T]{funcs: c.funcs, value: v}
	d.next()
	return d.cursor > len(d.funcs)
}

// dispatch is the cursor state of one Dispatch call.
type dispatch[T any] struct {
	funcs  []Func[T]
	value  T
	cursor int
}

func (d *dispatch[T]) next() {
	i := d.cursor
	d.cursor++
	if i >= len(d.funcs) {
		return
	}
	called := false
	d.funcs[i](d.value, func() {
		// A middleware calling next twice must not skip entries.
		if called {
			return
		}
		called = true
		d.next()
	})
}
