// SPDX-License-Identifier: MIT

package sqlite

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/turnstile/internal/clock"
	"github.com/ManuGH/turnstile/internal/directory"
	"github.com/ManuGH/turnstile/internal/domain/ticket"
)

var now = time.Date(2024, 8, 15, 19, 30, 0, 0, time.UTC)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickets.sqlite")
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	s, err := New(context.Background(), db, "door-a", clock.Fake(now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func seed() directory.Data {
	at := time.Date(2024, 8, 15, 10, 0, 0, 0, time.UTC)
	return directory.Data{
		Events: []ticket.Event{{ID: "E1", Title: "Summer Gala", Date: time.Date(2024, 8, 15, 19, 0, 0, 0, time.UTC), Location: "Hall A"}},
		Tickets: []ticket.Ticket{
			{ID: "ABC-123", EventID: "E1", HolderName: "Ada", Tier: "VIP"},
			{ID: "ABC-124", EventID: "E1", Used: true, CheckedInAt: &at},
		},
	}
}

func TestImportAndLoadSnapshot(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Import(ctx, seed()))

	got, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(seed(), got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// Re-importing an unused copy never clears a check-in.
	d := seed()
	d.Tickets[1].Used = false
	d.Tickets[1].CheckedInAt = nil
	require.NoError(t, s.Import(ctx, d))
	got, err = s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, got.Tickets[1].Used)
	require.NotNil(t, got.Tickets[1].CheckedInAt)
}

func TestImportRejectsUsedWithoutTime(t *testing.T) {
	s, _ := openStore(t)
	err := s.Import(context.Background(), directory.Data{
		Tickets: []ticket.Ticket{{ID: "BAD-001", EventID: "E1", Used: true}},
	})
	assert.ErrorIs(t, err, ErrUsedWithoutTime)
}

func TestCheckInIsConditional(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Import(ctx, seed()))

	res, err := s.CheckIn(ctx, "ABC-123")
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = s.CheckIn(ctx, "ABC-123")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "ticket was already checked in at 2024-08-15T19:30:00Z", res.Message)

	res, err = s.CheckIn(ctx, "NOPE-999")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "not known")

	audit, err := s.Audit(ctx, "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{ResultAdmitted: 1, ResultDuplicate: 1}, audit)

	snap, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Tickets[0].CheckedInAt)
	assert.True(t, snap.Tickets[0].CheckedInAt.Equal(now))
}

func TestConcurrentDoorsAdmitOnce(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Import(ctx, seed()))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.CheckIn(ctx, "ABC-123")
			if err != nil {
				t.Errorf("check-in: %v", err)
				return
			}
			if res.Success {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, admitted)
}

func TestMigrationIsIdempotent(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	require.NoError(t, migrate(ctx, s.db))

	var version int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, schemaVersion, version)
}

func TestVerifyIntegrityDetectsCorruption(t *testing.T) {
	s, path := openStore(t)
	ctx := context.Background()
	d := directory.Data{Events: []ticket.Event{{ID: "E1", Title: "Gala"}}}
	for i := 0; i < 300; i++ {
		d.Tickets = append(d.Tickets, ticket.Ticket{ID: fmt.Sprintf("T-%04d", i), EventID: "E1", HolderName: "Holder with a fairly long name to fill pages"})
	}
	require.NoError(t, s.Import(ctx, d))
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	issues, err := VerifyIntegrity(path, "quick")
	require.NoError(t, err)
	require.Nil(t, issues)

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	garbage := make([]byte, 100)
	_, _ = rand.Read(garbage)
	_, err = f.WriteAt(garbage, 4096)
	require.NoError(t, f.Close())
	require.NoError(t, err)

	issues, err = VerifyIntegrity(path, "full")
	if err == nil {
		assert.NotNil(t, issues)
	}
}
