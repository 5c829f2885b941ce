// SPDX-License-Identifier: MIT

package camera

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// FailureKind is the hardware failure taxonomy surfaced to callers.
type FailureKind string

const (
	FailurePermissionDenied FailureKind = "PERMISSION_DENIED"
	FailureNoCamera         FailureKind = "NO_CAMERA"
	FailureInUse            FailureKind = "CAMERA_IN_USE"
	FailureUnknown          FailureKind = "UNKNOWN"
)

// Failure is the only error type that leaves the session boundary.
type Failure struct {
	Kind FailureKind
	Err  error
}

// NewFailure wraps err with an explicit kind.
func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "camera: " + string(f.Kind)
	}
	return fmt.Sprintf("camera: %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Hint is the operator-facing banner text for the failure.
func (f *Failure) Hint() string {
	switch f.Kind {
	case FailurePermissionDenied:
		return "Camera access was denied. Grant access or use manual entry."
	case FailureNoCamera:
		return "No camera was found. Use manual entry."
	case FailureInUse:
		return "The camera is in use by another application. Close it or use manual entry."
	default:
		return "The camera could not be started. Use manual entry."
	}
}

// Classify maps an adapter or OS error onto the failure taxonomy.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	switch {
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return FailurePermissionDenied
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO):
		return FailureNoCamera
	case errors.Is(err, syscall.EBUSY):
		return FailureInUse
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage recognises the strerror texts helper processes print.
func ClassifyMessage(msg string) FailureKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "operation not permitted"):
		return FailurePermissionDenied
	case strings.Contains(lower, "no such file or directory"), strings.Contains(lower, "no such device"):
		return FailureNoCamera
	case strings.Contains(lower, "device or resource busy"):
		return FailureInUse
	}
	return FailureUnknown
}

// asFailure converts any error into a *Failure.
func asFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: Classify(err), Err: err}
}
