package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL is how long a resolved secret is reused.
const DefaultCacheTTL = 5 * time.Minute

var referencePattern = regexp.MustCompile(`^\$\{secret:([A-Za-z0-9._-]+)\}$`)

// ParseReference reports whether value is exactly one ${secret:name}
// reference and returns the name.
func ParseReference(value string) (string, bool) {
	m := referencePattern.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Manager resolves secrets from providers in order and caches the result.
type Manager struct {
	providers []Provider
	cache     *gocache.Cache
}

// NewManager creates a manager trying providers in the given order. A
// non-positive ttl disables caching.
func NewManager(ttl time.Duration, providers ...Provider) *Manager {
	m := &Manager{providers: providers}
	if ttl > 0 {
		m.cache = gocache.New(ttl, 2*ttl)
	}
	return m
}

// Get returns the value of the secret called name from the first provider
// holding it.
func (m *Manager) Get(ctx context.Context, name string) (string, error) {
	if m.cache != nil {
		if v, ok := m.cache.Get(name); ok {
			return v.(string), nil
		}
	}

	var errs []error
	for _, p := range m.providers {
		value, err := p.Lookup(ctx, name)
		if err == nil {
			slog.Debug("secret resolved", "name", redactName(name), "provider", p.Name())
			if m.cache != nil {
				m.cache.SetDefault(name, value)
			}
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}

	if len(errs) > 0 {
		return "", fmt.Errorf("failed to resolve secret %q: %w", name, errors.Join(errs...))
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Resolve returns value unchanged unless it is a ${secret:name} reference,
// in which case the secret is looked up.
func (m *Manager) Resolve(ctx context.Context, value string) (string, error) {
	name, ok := ParseReference(value)
	if !ok {
		return value, nil
	}
	return m.Get(ctx, name)
}

// Flush drops every cached value.
func (m *Manager) Flush() {
	if m.cache != nil {
		m.cache.Flush()
	}
}

// Watch runs Watch on every provider that supports it and flushes the cache
// on change. It blocks until ctx is done and returns the first watcher
// failure.
func (m *Manager) Watch(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		once sync.Once
		werr error
	)
	for _, p := range m.providers {
		w, ok := p.(Watcher)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Watch(ctx, m.Flush); err != nil {
				once.Do(func() { werr = err })
			}
		}()
	}
	wg.Wait()
	return werr
}

func redactName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
