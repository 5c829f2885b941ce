// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/turnstile/internal/camera"
)

// DirectorySource is the part of the ticket directory the checker reads.
type DirectorySource interface {
	Loaded() bool
	Len() int
}

// DirectoryChecker is unhealthy until a snapshot has been loaded and
// degraded while it is empty.
type DirectoryChecker struct {
	dir DirectorySource
}

func NewDirectoryChecker(dir DirectorySource) *DirectoryChecker {
	return &DirectoryChecker{dir: dir}
}

func (c *DirectoryChecker) Name() string { return "directory" }

func (c *DirectoryChecker) Check(context.Context) CheckResult {
	if !c.dir.Loaded() {
		return CheckResult{Status: StatusUnhealthy, Message: "no ticket snapshot loaded yet"}
	}
	n := c.dir.Len()
	if n == 0 {
		return CheckResult{Status: StatusDegraded, Message: "ticket snapshot is empty"}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d tickets", n)}
}

// Pinger is anything with a connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker probes a dependency with a timeout. A failing required
// dependency is unhealthy, an optional one only degraded.
type PingChecker struct {
	name     string
	target   Pinger
	required bool
	timeout  time.Duration
}

func NewPingChecker(name string, target Pinger, required bool) *PingChecker {
	return &PingChecker{name: name, target: target, required: required, timeout: 2 * time.Second}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.target.Ping(ctx); err != nil {
		status := StatusDegraded
		if c.required {
			status = StatusUnhealthy
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// CameraSource reports the camera session state.
type CameraSource interface {
	CameraState() camera.State
}

// CameraChecker is degraded while the camera is in ERROR. The door stays
// ready because manual entry keeps working.
type CameraChecker struct {
	src CameraSource
}

func NewCameraChecker(src CameraSource) *CameraChecker {
	return &CameraChecker{src: src}
}

func (c *CameraChecker) Name() string { return "camera" }

func (c *CameraChecker) Check(context.Context) CheckResult {
	st := c.src.CameraState()
	if st == camera.StateError {
		return CheckResult{Status: StatusDegraded, Message: string(st), Error: "camera unavailable, manual entry only"}
	}
	return CheckResult{Status: StatusHealthy, Message: string(st)}
}

// FuncChecker adapts a function.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func NewFuncChecker(name string, fn func(ctx context.Context) CheckResult) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }
