package importresolve

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/beadloom/beadloom/internal/store"
)

// IndexFile extracts and persists the raw import rows for one file, inside
// an existing transaction; resolution happens separately via ResolveAll so
// the resolver never observes a partially extracted batch.
func (r *Resolver) IndexFile(tx *sql.Tx, relPath string) error {
	abs := filepath.Join(r.conn.ProjectRoot(), relPath)
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	imports := r.Extract(relPath, content)
	for i := range imports {
		imports[i].FileHash = hash
	}
	return store.ReplaceImportsForFile(tx, relPath, imports)
}

// Remove deletes every import row for a file no longer on disk.
func (r *Resolver) Remove(tx *sql.Tx, relPath string) error {
	return store.ReplaceImportsForFile(tx, relPath, nil)
}
