package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Provider that has no value for a name.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets from one backend.
type Provider interface {
	// Name identifies the backend in logs ("env", "file").
	Name() string

	// Lookup returns the value stored under name, or an error wrapping
	// ErrNotFound when the backend does not hold it.
	Lookup(ctx context.Context, name string) (string, error)
}

// Watcher is implemented by providers whose values can change at runtime.
// Watch blocks until ctx is done and calls onChange after every change.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}
