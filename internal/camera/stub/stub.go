// SPDX-License-Identifier: MIT

// Package stub is an in-memory camera.Device for tests, demos and
// kiosks without video hardware. Payloads are pushed with Emit.
package stub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/turnstile/internal/camera"
)

// ErrReleased is returned by Decode after the feed has been released.
var ErrReleased = errors.New("stub: feed released")

// Device is a scriptable camera.
type Device struct {
	name     string
	payloads chan string

	mu         sync.Mutex
	acquireErr error
	decodeErr  chan error
	acquired   int
	released   int

	decodes atomic.Int64
}

// New returns a stub device with a buffered payload queue.
func New(name string) *Device {
	if name == "" {
		name = "stub"
	}
	return &Device{
		name:      name,
		payloads:  make(chan string, 64),
		decodeErr: make(chan error, 1),
	}
}

// Name implements camera.Device.
func (d *Device) Name() string { return d.name }

// FailAcquire makes subsequent Acquire calls return err.
func (d *Device) FailAcquire(err error) {
	d.mu.Lock()
	d.acquireErr = err
	d.mu.Unlock()
}

// Emit queues a payload for the next Decode.
func (d *Device) Emit(payload string) { d.payloads <- payload }

// Break makes the pending or next Decode fail with err.
func (d *Device) Break(err error) {
	select {
	case d.decodeErr <- err:
	default:
	}
}

// Held reports whether a feed is currently acquired and not released.
func (d *Device) Held() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired > d.released
}

// Acquisitions returns how many times the device has been acquired.
func (d *Device) Acquisitions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

// Decodes returns the number of Decode calls made so far.
func (d *Device) Decodes() int { return int(d.decodes.Load()) }

// Acquire implements camera.Device.
func (d *Device) Acquire(ctx context.Context) (camera.Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acquireErr != nil {
		return nil, d.acquireErr
	}
	d.acquired++
	return &feed{dev: d, closed: make(chan struct{})}, nil
}

type feed struct {
	dev    *Device
	once   sync.Once
	closed chan struct{}
}

func (f *feed) Decode(ctx context.Context) (string, error) {
	f.dev.decodes.Add(1)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-f.closed:
		return "", ErrReleased
	case err := <-f.dev.decodeErr:
		return "", err
	case p := <-f.dev.payloads:
		return p, nil
	}
}

func (f *feed) Release() error {
	f.once.Do(func() {
		close(f.closed)
		f.dev.mu.Lock()
		f.dev.released++
		f.dev.mu.Unlock()
	})
	return nil
}
