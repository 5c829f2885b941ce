// SPDX-License-Identifier: MIT

//go:build unix

package v4l2

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/turnstile/internal/camera"
)

func fakeHelper(t *testing.T, script string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return bin
}

func TestAcquireReportsBusyDevice(t *testing.T) {
	node := filepath.Join(t.TempDir(), "video0")
	require.NoError(t, os.WriteFile(node, nil, 0o600))
	bin := fakeHelper(t, `echo "[video4linux2,v4l2 @ 0x55] ioctl(VIDIOC_STREAMON): Device or resource busy" >&2
exit 1`)

	d := New(Config{Path: node, FFmpegBin: bin, StartTimeout: 5 * time.Second, KillGrace: 50 * time.Millisecond}, zerolog.Nop())
	for i := 0; i < 25; i++ {
		_, err := d.Acquire(context.Background())
		var failure *camera.Failure
		require.ErrorAs(t, err, &failure, "attempt %d", i)
		assert.Equal(t, camera.FailureInUse, failure.Kind, "attempt %d: %v", i, err)
	}
}
