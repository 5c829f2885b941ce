// SPDX-License-Identifier: MIT

//go:build unix

package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestApp_ReloadOnSIGHUP(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent(), goleak.IgnoreAnyFunction("os/signal.loop"))

	mgr, err := NewManager(serverCfg(reserveListenAddr(t)), Deps{Logger: testLogger(), APIHandler: pong()})
	require.NoError(t, err)

	reloaded := make(chan struct{}, 1)
	app := NewApp(testLogger(), mgr, func(context.Context) error {
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return errors.New("bad file is logged, not fatal")
	})
	require.Len(t, app.runners, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	// Keep SIGHUP from terminating the test binary before the runner
	// has registered its own channel.
	guard := make(chan os.Signal, 8)
	signal.Notify(guard, syscall.SIGHUP)
	defer signal.Stop(guard)

	require.Eventually(t, func() bool {
		_ = syscall.Kill(os.Getpid(), syscall.SIGHUP)
		select {
		case <-reloaded:
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
