// Package registry is the startup assembly step: every component role is a
// typed key with one factory, resolved at most once into a singleton.
package registry

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

var (
	ErrUnregistered = errors.New("role not registered")
	ErrCycle        = errors.New("dependency cycle")
	ErrDuplicate    = errors.New("role registered twice")
	ErrClosed       = errors.New("container closed")
)

// ResolutionError reports a role that could not be built. It is a startup
// failure.
type ResolutionError struct {
	Key   string
	Chain []string
	Err   error
}

func (e *ResolutionError) Error() string {
	if len(e.Chain) > 0 {
		return fmt.Sprintf("resolve %s (via %s): %v", e.Key, strings.Join(e.Chain, " -> "), e.Err)
	}
	return fmt.Sprintf("resolve %s: %v", e.Key, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Key names a role whose instances have type T.
type Key[T any] struct {
	name string
}

func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

func (k Key[T]) String() string { return k.name }

type entry struct {
	factory  func(*Container) (any, error)
	instance any
	built    bool
	err      error
}

// Container owns every resolved instance until Close. Resolution is meant
// to run from a single goroutine during startup.
type Container struct {
	mu        sync.Mutex
	entries   map[string]*entry
	resolving []string
	order     []string
	closed    bool
}

func New() *Container {
	return &Container{entries: make(map[string]*entry)}
}

// Provide registers the factory for key. Registering a key twice is an
// error.
func Provide[T any](c *Container, key Key[T], factory func(*Container) (T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key.name]; exists {
		return &ResolutionError{Key: key.name, Err: ErrDuplicate}
	}
	c.entries[key.name] = &entry{
		factory: func(c *Container) (any, error) { return factory(c) },
	}
	return nil
}

// ProvideValue registers an already built instance.
func ProvideValue[T any](c *Container, key Key[T], v T) error {
	return Provide(c, key, func(*Container) (T, error) { return v, nil })
}

// Resolve returns the singleton for key, building it and its dependencies
// on first use. Factories resolve their own dependencies through the
// container they are handed.
func Resolve[T any](c *Container, key Key[T]) (T, error) {
	var zero T
	v, err := c.resolve(key.name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &ResolutionError{Key: key.name, Err: fmt.Errorf("instance has type %T", v)}
	}
	return typed, nil
}

// MustResolve panics on failure. Use it only inside factories whose caller
// recovers, or in tests.
func MustResolve[T any](c *Container, key Key[T]) T {
	v, err := Resolve(c, key)
	if err != nil {
		panic(err)
	}
	return v
}

func (c *Container) resolve(name string) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &ResolutionError{Key: name, Err: ErrClosed}
	}
	e, ok := c.entries[name]
	if !ok {
		chain := append([]string(nil), c.resolving...)
		c.mu.Unlock()
		return nil, &ResolutionError{Key: name, Chain: chain, Err: ErrUnregistered}
	}
	if e.built {
		c.mu.Unlock()
		return e.instance, e.err
	}
	for _, r := range c.resolving {
		if r == name {
			chain := append(append([]string(nil), c.resolving...), name)
			c.mu.Unlock()
			return nil, &ResolutionError{Key: name, Chain: chain, Err: ErrCycle}
		}
	}
	c.resolving = append(c.resolving, name)
	c.mu.Unlock()

	// The factory runs unlocked so that it can resolve its dependencies.
	instance, err := c.build(e)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolving = c.resolving[:len(c.resolving)-1]
	e.built = true
	if err != nil {
		var rerr *ResolutionError
		if !errors.As(err, &rerr) {
			err = &ResolutionError{Key: name, Chain: append([]string(nil), c.resolving...), Err: err}
		}
		e.err = err
		return nil, err
	}
	e.instance = instance
	c.order = append(c.order, name)
	return instance, nil
}

func (c *Container) build(e *entry) (instance any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = rerr
				return
			}
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()
	return e.factory(c)
}

// Order lists the roles built so far, dependencies first.
func (c *Container) Order() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Resolved reports whether key has been built.
func Resolved[T any](c *Container, key Key[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.name]
	return ok && e.built && e.err == nil
}

// Close closes every built instance that implements io.Closer, in reverse
// construction order.
func (c *Container) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	order := append([]string(nil), c.order...)
	c.mu.Unlock()

	var err error
	for i := len(order) - 1; i >= 0; i-- {
		if closer, ok := c.entries[order[i]].instance.(io.Closer); ok {
			if cerr := closer.Close(); cerr != nil {
				err = multierr.Append(err, fmt.Errorf("close %s: %w", order[i], cerr))
			}
		}
	}
	return err
}
