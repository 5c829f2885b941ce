// SPDX-License-Identifier: MIT

package v4l2

import (
	"strings"
	"sync"
)

// lineRing keeps the last lines ffmpeg wrote to stderr so start-up
// failures can be classified after the process has exited.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	head  int
	full  bool
}

func newLineRing(capacity int) *lineRing {
	if capacity < 1 {
		capacity = 16
	}
	return &lineRing{lines: make([]string, capacity)}
}

func (r *lineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.lines[r.head] = line
		r.head = (r.head + 1) % len(r.lines)
		if r.head == 0 {
			r.full = true
		}
	}
	return len(p), nil
}

// Lines returns the buffered lines oldest first.
func (r *lineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.lines[:r.head]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.head:]...)
	return append(out, r.lines[:r.head]...)
}

func (r *lineRing) String() string { return strings.Join(r.Lines(), "\n") }
