package codeindex

import (
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beadloom/beadloom/internal/errs"
	"github.com/beadloom/beadloom/internal/logging"
	"github.com/beadloom/beadloom/internal/store"
)

var skipDirNames = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	".git":         true,
}

// Indexer walks scan roots and persists CodeSymbol rows via a Parser.
type Indexer struct {
	conn   *store.Conn
	parser *Parser
}

// New returns an Indexer bound to an open store connection. Call Close when
// done to release tree-sitter parsers.
func New(conn *store.Conn) *Indexer {
	return &Indexer{conn: conn, parser: NewParser()}
}

// Close releases the underlying tree-sitter parsers.
func (ix *Indexer) Close() { ix.parser.Close() }

// Walk enumerates every file with a supported extension under the given
// scan roots (relative to the project root), skipping hidden and vendor
// directories. Returned paths are project-root-relative and sorted.
func Walk(projectRoot string, scanRoots []string) ([]string, error) {
	var out []string
	for _, root := range scanRoots {
		abs := filepath.Join(projectRoot, root)
		err := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) && path == abs {
					return filepath.SkipDir
				}
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if path != abs && (strings.HasPrefix(name, ".") || skipDirNames[name]) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return nil
			}
			if !SupportedExt(filepath.Ext(name)) {
				return nil
			}
			rel, err := filepath.Rel(projectRoot, path)
			if err != nil {
				return err
			}
			out = append(out, filepath.ToSlash(rel))
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, errs.IO(err, "walk scan root %s", abs)
		}
	}
	sort.Strings(out)
	return out, nil
}

// IndexAll walks scanRoots and (re)indexes every supported source file,
// inside a single transaction.
func (ix *Indexer) IndexAll(scanRoots []string) error {
	timer := logging.StartTimer(logging.CategoryCode, "IndexAll")
	defer timer.Stop()

	paths, err := Walk(ix.conn.ProjectRoot(), scanRoots)
	if err != nil {
		return err
	}
	return ix.conn.WithTx(func(tx *sql.Tx) error {
		for _, rel := range paths {
			if err := ix.indexFile(tx, rel); err != nil {
				return err
			}
		}
		return nil
	})
}

// IndexFile (re)indexes a single file by project-root-relative path, used by
// the Reindex Pipeline's incremental mode.
func (ix *Indexer) IndexFile(tx *sql.Tx, relPath string) error {
	return ix.indexFile(tx, relPath)
}

func (ix *Indexer) indexFile(tx *sql.Tx, relPath string) error {
	abs := filepath.Join(ix.conn.ProjectRoot(), relPath)
	content, err := os.ReadFile(abs)
	if err != nil {
		logging.Code("skip %s: %v", relPath, err)
		return nil
	}
	symbols, err := ix.parser.ParseFile(relPath, content)
	if err != nil {
		logging.Code("skip %s: %v", relPath, err)
		return nil
	}
	symbols = append(symbols, ExtractRoutes(relPath, content)...)
	return store.ReplaceSymbolsForFile(tx, relPath, symbols)
}

// Remove deletes every symbol row for a file no longer on disk, used by the
// Reindex Pipeline's deletion handling.
func (ix *Indexer) Remove(tx *sql.Tx, relPath string) error {
	return store.DeleteSymbolsForFile(tx, relPath)
}
