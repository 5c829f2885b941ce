// SPDX-License-Identifier: MIT

package bootstrap

import (
	"context"
	"fmt"

	"github.com/ManuGH/turnstile/internal/clock"
	"github.com/ManuGH/turnstile/internal/directory"
	sqlitestore "github.com/ManuGH/turnstile/internal/store/sqlite"
)

func openStore(ctx context.Context, dbPath, door string) (*sqlitestore.Store, error) {
	db, err := sqlitestore.Open(dbPath, sqlitestore.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	st, err := sqlitestore.New(ctx, db, door, clock.Real())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	return st, nil
}

// ExportSnapshot writes the store's directory to a YAML file atomically.
// It returns the number of tickets written.
func ExportSnapshot(ctx context.Context, dbPath, out string) (int, error) {
	st, err := openStore(ctx, dbPath, "")
	if err != nil {
		return 0, err
	}
	defer func() { _ = st.Close() }()

	d, err := st.LoadSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	if err := directory.WriteFile(out, d); err != nil {
		return 0, err
	}
	return len(d.Tickets), nil
}

// ImportSnapshot upserts a YAML snapshot into the store. Tickets already
// checked in locally stay checked in.
func ImportSnapshot(ctx context.Context, dbPath, in string) (int, error) {
	d, err := directory.LoadFile(in)
	if err != nil {
		return 0, err
	}
	st, err := openStore(ctx, dbPath, "")
	if err != nil {
		return 0, err
	}
	defer func() { _ = st.Close() }()

	if err := st.Import(ctx, d); err != nil {
		return 0, err
	}
	return len(d.Tickets), nil
}
