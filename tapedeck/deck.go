// Package tapedeck keeps one cassette per API namespace, all of them coming
// from the same storage backend.
package tapedeck

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/andrebq/gatekeeper/cassette"
)

type (
	// Backend opens the cassette of a namespace
	Backend interface {
		Open(ctx context.Context, namespace string) (cassette.Tape, error)
		Close() error
	}

	D struct {
		sync.Mutex
		backend   Backend
		cassettes map[string]cassette.Tape
	}
)

func New(backend Backend) *D {
	return &D{
		backend:   backend,
		cassettes: make(map[string]cassette.Tape),
	}
}

// Load puts tape under name, closing whatever was there before.
func (d *D) Load(name string, tape cassette.Tape) {
	d.Lock()
	defer d.Unlock()
	if d.cassettes[name] != nil {
		d.cassettes[name].Close()
	}
	d.cassettes[name] = tape
}

// Open returns the cassette of namespace, asking the backend for it the
// first time.
func (d *D) Open(ctx context.Context, namespace string) (cassette.Tape, error) {
	d.Lock()
	defer d.Unlock()
	if c := d.cassettes[namespace]; c != nil {
		return c, nil
	}
	if d.backend == nil {
		return nil, fmt.Errorf("tapedeck: namespace %v not loaded and no backend configured", namespace)
	}
	c, err := d.backend.Open(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("tapedeck: unable to open namespace %v, cause %w", namespace, err)
	}
	d.cassettes[namespace] = c
	return c, nil
}

func (d *D) List() []string {
	d.Lock()
	defer d.Unlock()
	out := make([]string, 0, len(d.cassettes))
	for k := range d.cassettes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (d *D) Get(name string) cassette.Tape {
	d.Lock()
	defer d.Unlock()
	return d.cassettes[name]
}

func (d *D) Close() error {
	d.Lock()
	defer d.Unlock()
	var errs []error
	for name, c := range d.cassettes {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("unable to close %v, cause %w", name, err))
		}
	}
	d.cassettes = map[string]cassette.Tape{}
	if d.backend != nil {
		if err := d.backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
