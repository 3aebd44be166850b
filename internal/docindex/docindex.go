// Package docindex implements the Doc Indexer: it walks the
// docs directory, hashes and heading-chunks every markdown file, and
// associates each chunk with a node ref_id via an explicit marker or the
// directory-source heuristic.
package docindex

import (
	"bufio"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/beadloom/beadloom/internal/errs"
	"github.com/beadloom/beadloom/internal/logging"
	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/store"
)

var (
	headingRe   = regexp.MustCompile(`^(#{1,3})\s+(.*)$`)
	refMarkerRe = regexp.MustCompile(`<!--\s*beadloom:ref=([A-Za-z0-9_.\-]+)\s*-->`)
)

var skipDirNames = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	".git":         true,
}

// Indexer walks a docs directory and persists Doc + Chunk rows.
type Indexer struct {
	conn *store.Conn
}

// New returns an Indexer bound to an open store connection.
func New(conn *store.Conn) *Indexer {
	return &Indexer{conn: conn}
}

// Walk enumerates every *.md file under docsDir (relative to projectRoot),
// skipping hidden and vendor directories, returning project-root-relative
// paths sorted for determinism.
func Walk(projectRoot, docsDir string) ([]string, error) {
	root := filepath.Join(projectRoot, docsDir)
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || skipDirNames[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !strings.HasSuffix(name, ".md") {
			return nil
		}
		rel, err := filepath.Rel(projectRoot, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IO(err, "walk docs dir %s", root)
	}
	sort.Strings(out)
	return out, nil
}

// IndexAll walks docsDir and (re)indexes every markdown file found, inside a
// single transaction.
func (ix *Indexer) IndexAll(docsDir string) error {
	timer := logging.StartTimer(logging.CategoryDocs, "IndexAll")
	defer timer.Stop()

	paths, err := Walk(ix.conn.ProjectRoot(), docsDir)
	if err != nil {
		return err
	}
	nodes, err := ix.conn.AllNodes()
	if err != nil {
		return err
	}
	return ix.conn.WithTx(func(tx *sql.Tx) error {
		for _, rel := range paths {
			if err := ix.indexFile(tx, rel, nodes); err != nil {
				return err
			}
		}
		return nil
	})
}

// IndexFile (re)indexes a single markdown file by project-root-relative
// path, used by the Reindex Pipeline's incremental mode for a single
// changed/new doc.
func (ix *Indexer) IndexFile(tx *sql.Tx, relPath string) error {
	nodes, err := ix.conn.AllNodes()
	if err != nil {
		return err
	}
	return ix.indexFile(tx, relPath, nodes)
}

func (ix *Indexer) indexFile(tx *sql.Tx, relPath string, nodes []model.Node) error {
	abs := filepath.Join(ix.conn.ProjectRoot(), relPath)
	data, err := os.ReadFile(abs)
	if err != nil {
		logging.Docs("skip %s: %v", relPath, err)
		return nil
	}
	if !utf8.Valid(data) {
		logging.Docs("skip %s: invalid UTF-8", relPath)
		return nil
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	chunks := Chunk(relPath, string(data))
	refID := associateRefID(relPath, string(data), nodes)

	title := ""
	if len(chunks) > 0 {
		title = firstHeadingTitle(string(data))
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))
	}

	info, err := os.Stat(abs)
	if err != nil {
		return errs.IO(err, "stat %s", abs)
	}

	doc := model.Doc{
		Path:         relPath,
		RefID:        refID,
		Hash:         hash,
		Title:        title,
		LastModified: info.ModTime(),
	}
	if err := store.UpsertDoc(tx, doc); err != nil {
		return fmt.Errorf("docindex: upsert doc %s: %w", relPath, err)
	}
	if err := store.ReplaceChunks(tx, relPath, chunks); err != nil {
		return fmt.Errorf("docindex: replace chunks %s: %w", relPath, err)
	}
	texts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		texts = append(texts, ch.Text)
	}
	if err := store.ReplaceDocFTS(tx, refID, relPath, texts); err != nil {
		return fmt.Errorf("docindex: fts %s: %w", relPath, err)
	}
	return nil
}

// Remove deletes a doc (and its chunks, via cascade) plus its FTS rows for
// a path no longer on disk, used by the Reindex Pipeline's deletion
// handling.
func (ix *Indexer) Remove(tx *sql.Tx, relPath string) error {
	if err := store.DeleteDocFTS(tx, relPath); err != nil {
		return err
	}
	return store.DeleteDoc(tx, relPath)
}

// Chunk splits markdown content into sections at h1/h2/h3 boundaries,
// preserving the active heading path.
func Chunk(docPath, content string) []model.Chunk {
	type stackEntry struct {
		level int
		title string
	}
	var stack []stackEntry
	var chunks []model.Chunk
	var cur strings.Builder
	curHeadingPath := ""
	chunkIndex := 0
	haveChunk := false

	flush := func() {
		text := strings.TrimRight(cur.String(), "\n")
		if strings.TrimSpace(text) == "" {
			cur.Reset()
			return
		}
		chunks = append(chunks, model.Chunk{
			DocPath:       docPath,
			ChunkIndex:    chunkIndex,
			HeadingPath:   curHeadingPath,
			Text:          text,
			TokenEstimate: tokenEstimate(text),
		})
		chunkIndex++
		cur.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := headingRe.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			title := strings.TrimSpace(m[2])
			if haveChunk {
				flush()
			}
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, stackEntry{level: level, title: title})
			parts := make([]string, len(stack))
			for i, e := range stack {
				parts[i] = e.title
			}
			curHeadingPath = strings.Join(parts, " > ")
			haveChunk = true
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	flush()
	return chunks
}

func tokenEstimate(text string) int {
	return int(math.Ceil(float64(len(text)) / 4.0))
}

func firstHeadingTitle(content string) string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

// associateRefID picks the owning node for a doc: an explicit
// <!-- beadloom:ref=... --> marker wins; otherwise the nearest containing
// directory that matches a node's source (deepest match).
func associateRefID(relPath, content string, nodes []model.Node) string {
	if m := refMarkerRe.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	dir := filepath.ToSlash(filepath.Dir(relPath))
	best := ""
	bestLen := -1
	for _, n := range nodes {
		src := strings.Trim(n.Source, "/")
		if src == "" {
			continue
		}
		if dir == src || strings.HasPrefix(dir+"/", src+"/") {
			if len(src) > bestLen {
				bestLen = len(src)
				best = n.RefID
			}
		}
	}
	return best
}
