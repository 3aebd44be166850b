//go:build nocgo

// Package store: CGO-free build swaps in modernc.org/sqlite, a pure-Go
// driver registered under "sqlite".
package store

import (
	_ "modernc.org/sqlite"
)

const sqlDriverName = "sqlite"

// sqlDSN encodes the per-connection pragmas in the DSN so every pooled
// connection gets them, not just the one a bare PRAGMA Exec lands on.
func sqlDSN(path string) string {
	return "file:" + path +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}
