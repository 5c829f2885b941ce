// SPDX-License-Identifier: MIT

// Package sqlite is the door's local ticket store. It seeds the
// directory snapshot and, when no remote backend is configured, acts as
// the authoritative check-in mutator.
package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Config tunes the connection pool.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig suits one door process with a handful of API readers.
func DefaultConfig() Config {
	return Config{BusyTimeout: 5 * time.Second, MaxOpenConns: 8}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = d.BusyTimeout
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = d.MaxOpenConns
	}
	return c
}

// dsn builds a modernc file URI. Pragmas ride in the query so every
// pooled connection applies them.
func dsn(path string, pragmas []string, extra url.Values) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	for k, vs := range extra {
		q[k] = vs
	}
	return "file:" + path + "?" + q.Encode()
}

// Open returns a pinged pool in WAL mode. Transactions take the write
// lock when they begin, so concurrent check-ins of one ticket queue on
// busy_timeout instead of failing mid-transaction.
func Open(path string, cfg Config) (*sql.DB, error) {
	cfg = cfg.withDefaults()
	db, err := sql.Open("sqlite", dsn(path, []string{
		"journal_mode(WAL)",
		"busy_timeout(" + strconv.FormatInt(cfg.BusyTimeout.Milliseconds(), 10) + ")",
		"synchronous(NORMAL)",
		"foreign_keys(ON)",
	}, url.Values{"_txlock": {"immediate"}}))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	return db, nil
}

// VerifyIntegrity opens path read-only and runs quick_check, or
// integrity_check when mode is "full". A healthy database yields nil
// findings.
func VerifyIntegrity(path, mode string) ([]string, error) {
	db, err := sql.Open("sqlite", dsn(path, []string{"busy_timeout(2000)"}, url.Values{"mode": {"ro"}}))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s read-only: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	check := "quick_check"
	if mode == "full" {
		check = "integrity_check"
	}
	rows, err := db.Query("PRAGMA " + check)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", check, err)
	}
	defer func() { _ = rows.Close() }()

	var findings []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("sqlite: %s row: %w", check, err)
		}
		findings = append(findings, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", check, err)
	}

	switch {
	case len(findings) == 0:
		return []string{check + " returned no rows"}, nil
	case len(findings) == 1 && strings.EqualFold(findings[0], "ok"):
		return nil, nil
	}
	return findings, nil
}
