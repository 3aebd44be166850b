//go:build !nocgo

// Package store: default build uses mattn/go-sqlite3 (cgo), registered
// under "sqlite3".
package store

import (
	_ "github.com/mattn/go-sqlite3"
)

const sqlDriverName = "sqlite3"

// sqlDSN encodes the per-connection pragmas in the DSN so every pooled
// connection gets them, not just the one a bare PRAGMA Exec lands on.
func sqlDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
}
