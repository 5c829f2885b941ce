// SPDX-License-Identifier: MIT

package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/turnstile/internal/audio"
	"github.com/ManuGH/turnstile/internal/camera/stub"
	"github.com/ManuGH/turnstile/internal/clock"
	"github.com/ManuGH/turnstile/internal/config"
	"github.com/ManuGH/turnstile/internal/directory"
	"github.com/ManuGH/turnstile/internal/domain/ticket"
	"github.com/ManuGH/turnstile/internal/scanner"
	sqlitestore "github.com/ManuGH/turnstile/internal/store/sqlite"
)

var start = time.Date(2024, 9, 1, 18, 0, 0, 0, time.UTC)

func seedData() directory.Data {
	at := start.Add(-time.Hour)
	return directory.Data{
		Events: []ticket.Event{{ID: "E1", Title: "Autumn Gala", Date: start}},
		Tickets: []ticket.Ticket{
			{ID: "ABC-123", EventID: "E1", HolderName: "Ada"},
			{ID: "USED-001", EventID: "E1", Used: true, CheckedInAt: &at},
		},
	}
}

func fileConfig(t *testing.T) config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	snap := filepath.Join(dir, "tickets.yaml")
	require.NoError(t, directory.WriteFile(snap, seedData()))

	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.Door = "north"
	cfg.Directory.Source = "file"
	cfg.Directory.File = snap
	cfg.Store.Path = filepath.Join(dir, "turnstile.db")
	cfg.Camera.Driver = "none"
	cfg.Scanner.Mode = "MANUAL"
	return cfg
}

func TestBuild_FileDirectoryFeedsStore(t *testing.T) {
	cfg := fileConfig(t)
	c, err := Build(context.Background(), cfg, Options{Clock: clock.Fake(start), SkipStartupChecks: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close(context.Background())) }()

	assert.Equal(t, 2, c.Directory.Len())
	assert.Nil(t, c.Device)
	assert.IsType(t, audio.Discard{}, c.Player)
	assert.Same(t, c.Store, c.Mutator)

	stored, err := c.Store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored.Tickets, 2)

	a, err := c.Scanner.Submit(context.Background(), "abc-123 ")
	require.NoError(t, err)
	assert.Equal(t, ticket.OutcomeSuccess, a.Outcome)

	got, ok := c.Directory.Ticket("ABC-123")
	require.True(t, ok)
	assert.True(t, got.Used)

	audit, err := c.Store.Audit(context.Background(), "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{sqlitestore.ResultAdmitted: 1}, audit)

	// A reload of the unchanged file keeps the local check-in.
	require.NoError(t, c.ReloadDirectory(context.Background()))
	got, _ = c.Directory.Ticket("ABC-123")
	assert.True(t, got.Used)
}

func TestBuild_SQLiteDirectory(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "turnstile.db")
	in := filepath.Join(dir, "in.yaml")
	require.NoError(t, directory.WriteFile(in, seedData()))
	n, err := ImportSnapshot(context.Background(), db, in)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cfg := config.Defaults()
	cfg.Store.Path = db
	cfg.Camera.Driver = "stub"
	cfg.Camera.Device = "cam0"

	c, err := Build(context.Background(), cfg, Options{Clock: clock.Fake(start), SkipStartupChecks: true})
	require.NoError(t, err)
	defer func() { _ = c.Close(context.Background()) }()

	assert.Equal(t, 2, c.Directory.Len())
	assert.Nil(t, c.Watcher)
	assert.IsType(t, &stub.Device{}, c.Device)
	assert.Equal(t, scanner.ModeCamera, c.Scanner.Mode())

	ready := c.Health.Ready(context.Background())
	assert.True(t, ready.Ready)
	assert.Contains(t, ready.Checks, "sqlite")
	assert.Contains(t, ready.Checks, "directory")
}

func TestBuild_MissingDirectoryFile(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Directory.File = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(context.Background(), cfg, Options{SkipStartupChecks: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load directory file")
}

func TestBuild_RemoteWithLeaseHealth(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Mutator.Backend = "remote"
	cfg.Mutator.Endpoint = "https://tickets.example.com/api"
	cfg.Redis.Addr = "127.0.0.1:1"

	c, err := Build(context.Background(), cfg, Options{SkipStartupChecks: true})
	require.NoError(t, err)
	defer func() { _ = c.Close(context.Background()) }()

	require.NotNil(t, c.Remote)
	require.NotNil(t, c.Lease)
	assert.Same(t, c.Lease, c.Mutator)
	assert.Nil(t, c.Store)

	// Redis is down: the door is degraded, not unready.
	ready := c.Health.Ready(context.Background())
	assert.True(t, ready.Ready)
	assert.Equal(t, "degraded", string(ready.Checks["redis"].Status))
}

func TestSnapshotExport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "turnstile.db")
	in := filepath.Join(dir, "in.yaml")
	out := filepath.Join(dir, "out.yaml")
	require.NoError(t, directory.WriteFile(in, seedData()))

	_, err := ImportSnapshot(context.Background(), db, in)
	require.NoError(t, err)
	n, err := ExportSnapshot(context.Background(), db, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d, err := directory.LoadFile(out)
	require.NoError(t, err)
	require.Len(t, d.Tickets, 2)
	assert.Equal(t, "Ada", d.Tickets[0].HolderName)
}

func TestWireDaemon(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Metrics.ListenAddr = "127.0.0.1:0"

	d, err := WireDaemon(context.Background(), cfg, Options{SkipStartupChecks: true})
	require.NoError(t, err)
	require.NotNil(t, d.Manager)
	require.NotNil(t, d.App)
	require.NotNil(t, d.Server)
	require.NoError(t, d.Container.Close(context.Background()))
}
