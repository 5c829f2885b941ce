// SPDX-License-Identifier: MIT

//go:build unix

package procgroup

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTerminateStopsGroup(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command("sleep", "30")
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	start := time.Now()
	err := Terminate(cmd, waitCh, 2*time.Second)
	require.Error(t, err) // killed by signal
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestTerminateNil(t *testing.T) {
	require.NoError(t, Terminate(nil, nil, time.Second))
	require.NoError(t, Kill(nil, 0))
}
