// Package reindex implements the Reindex Pipeline: it drives the Graph
// Loader, Doc Indexer, Code Indexer, Import Resolver and Sync Engine
// through a full or incremental run, with a fixed stage order so every
// stage only ever reads data an earlier stage has already committed.
package reindex

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beadloom/beadloom/internal/codeindex"
	"github.com/beadloom/beadloom/internal/config"
	"github.com/beadloom/beadloom/internal/docindex"
	"github.com/beadloom/beadloom/internal/errs"
	"github.com/beadloom/beadloom/internal/graphloader"
	"github.com/beadloom/beadloom/internal/importresolve"
	"github.com/beadloom/beadloom/internal/logging"
	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/rules"
	"github.com/beadloom/beadloom/internal/store"
	"github.com/beadloom/beadloom/internal/syncengine"
)

const maxParallelHash = 8

// Pipeline orchestrates a reindex run against one project.
type Pipeline struct {
	conn    *store.Conn
	cfg     *config.Config
	docs    *docindex.Indexer
	code    *codeindex.Indexer
	imports *importresolve.Resolver
	sync    *syncengine.Engine

	// lastHashes carries the parallel-computed hashes from computeDiff (or
	// recordFileIndex) into the following file_index write so neither path
	// re-hashes the fileset it just hashed.
	lastHashes map[string]string
}

// New returns a Pipeline bound to an open store connection and config.
func New(conn *store.Conn, cfg *config.Config) *Pipeline {
	return &Pipeline{
		conn:    conn,
		cfg:     cfg,
		docs:    docindex.New(conn),
		code:    codeindex.New(conn),
		imports: importresolve.New(conn, cfg),
		sync:    syncengine.New(conn),
	}
}

// Close releases tree-sitter parsers held by the pipeline's indexers.
func (p *Pipeline) Close() {
	p.code.Close()
	p.imports.Close()
}

// Full drops every volatile table and every L2 bundle-cache row, and
// rebuilds the index from scratch: graph reload, then doc/code indexing,
// then import resolution; sync evaluation runs last so it observes the
// freshly recorded file_index hashes.
func (p *Pipeline) Full() error {
	timer := logging.StartTimer(logging.CategoryReindex, "Full")
	defer timer.Stop()

	if err := p.conn.DropVolatileTables(); err != nil {
		return err
	}
	if err := p.conn.InvalidateAllBundleCache(); err != nil {
		return err
	}
	if err := p.reloadGraph(); err != nil {
		return err
	}
	if err := p.reloadRules(); err != nil {
		return err
	}
	if err := p.docs.IndexAll(p.cfg.DocsDir); err != nil {
		return err
	}
	if err := p.code.IndexAll(p.cfg.ScanPaths); err != nil {
		return err
	}
	if err := p.reindexCodeImports(p.cfg.ScanPaths); err != nil {
		return err
	}
	if err := p.recordFileIndex(); err != nil {
		return err
	}
	if err := p.conn.WithTx(p.sync.EvaluateAll); err != nil {
		return err
	}
	return p.finish()
}

// Incremental diffs the filesystem against file_index and re-processes only
// what changed.
func (p *Pipeline) Incremental() error {
	timer := logging.StartTimer(logging.CategoryReindex, "Incremental")
	defer timer.Stop()

	diff, err := p.computeDiff()
	if err != nil {
		return err
	}

	graphChanged := len(diff.graphChanged) > 0 || len(diff.graphDeleted) > 0
	if graphChanged {
		if err := p.reloadGraph(); err != nil {
			return err
		}
		if err := p.reloadRules(); err != nil {
			return err
		}
	}

	affectedRefs := map[string]bool{}

	// Capture owning nodes of docs about to be removed so their sync state
	// is re-evaluated afterwards.
	for _, rel := range diff.docsDeleted {
		if doc, ok, err := p.conn.GetDoc(rel); err == nil && ok && doc.RefID != "" {
			affectedRefs[doc.RefID] = true
		}
	}
	if err := p.conn.WithTx(func(tx *sql.Tx) error {
		for _, rel := range diff.docsDeleted {
			if err := p.docs.Remove(tx, rel); err != nil {
				return err
			}
			if err := store.DeleteSyncStateForDoc(tx, rel); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	for _, rel := range append(append([]string{}, diff.docsChanged...), diff.docsNew...) {
		if err := p.conn.WithTx(func(tx *sql.Tx) error { return p.docs.IndexFile(tx, rel) }); err != nil {
			return err
		}
		if doc, ok, err := p.conn.GetDoc(rel); err == nil && ok && doc.RefID != "" {
			affectedRefs[doc.RefID] = true
		}
	}

	changedCode := append(append([]string{}, diff.codeChanged...), diff.codeNew...)
	if err := p.conn.WithTx(func(tx *sql.Tx) error {
		for _, rel := range diff.codeDeleted {
			if err := p.code.Remove(tx, rel); err != nil {
				return err
			}
			if err := p.imports.Remove(tx, rel); err != nil {
				return err
			}
			if err := store.DeleteSyncStateForCode(tx, rel); err != nil {
				return err
			}
		}
		for _, rel := range changedCode {
			if err := p.code.IndexFile(tx, rel); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	// Extraction commits before resolution so the resolver reads a complete,
	// committed batch.
	if err := p.conn.WithTx(func(tx *sql.Tx) error {
		for _, rel := range changedCode {
			if err := p.imports.IndexFile(tx, rel); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := p.conn.WithTx(p.resolveAndDeriveEdges); err != nil {
		return err
	}

	nodes, err := p.conn.AllNodes()
	if err != nil {
		return err
	}
	for _, rel := range changedCode {
		if owner := ownerOf(rel, nodes); owner != "" {
			affectedRefs[owner] = true
		}
	}
	for _, rel := range diff.codeDeleted {
		if owner := ownerOf(rel, nodes); owner != "" {
			affectedRefs[owner] = true
		}
	}
	if graphChanged {
		for _, n := range nodes {
			affectedRefs[n.RefID] = true
		}
	}

	// file_index first: sync evaluation reads code hashes out of it.
	if err := p.applyFileIndexDiff(diff); err != nil {
		return err
	}

	if err := p.conn.WithTx(func(tx *sql.Tx) error {
		for refID := range affectedRefs {
			if err := p.sync.EvaluateNode(tx, refID); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := p.rebuildFTSFor(affectedRefs); err != nil {
		return err
	}
	return p.finish()
}

func ownerOf(filePath string, nodes []model.Node) string {
	best := ""
	bestLen := -1
	for _, n := range nodes {
		src := strings.Trim(n.Source, "/")
		if src == "" {
			continue
		}
		if filePath == src || strings.HasPrefix(filePath+"/", src+"/") {
			if len(src) > bestLen {
				bestLen = len(src)
				best = n.RefID
			}
		}
	}
	return best
}

func (p *Pipeline) resolveAndDeriveEdges(tx *sql.Tx) error {
	if err := p.imports.ResolveAll(tx); err != nil {
		return err
	}
	return p.imports.DeriveEdges(tx)
}

// reloadGraph truncates nodes/edges and repopulates them from the graph
// directory's YAML files.
func (p *Pipeline) reloadGraph() error {
	dir := config.GraphDir(p.conn.ProjectRoot())
	g, err := graphloader.Load(dir)
	if err != nil {
		return err
	}
	return p.conn.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM edges"); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM nodes"); err != nil {
			return err
		}
		if err := store.ClearNodeFTS(tx); err != nil {
			return err
		}
		for _, n := range g.Nodes {
			if err := store.UpsertNode(tx, n); err != nil {
				return err
			}
			if err := store.IndexNodeFTS(tx, n.RefID, n.Summary); err != nil {
				return err
			}
		}
		for _, e := range g.Edges {
			if err := store.UpsertEdge(tx, e); err != nil {
				return err
			}
		}
		// Rows keyed by ref_ids that did not survive the reload: sync state
		// goes away, import resolutions are blanked for a future retry.
		if err := store.DeleteSyncStateOrphans(tx); err != nil {
			return err
		}
		return store.ClearStaleResolutions(tx)
	})
}

// reloadRules reparses rules.yml into the rules table. The table survives
// DropVolatileTables, so a reload replaces it wholesale; a missing rules
// file yields an empty set, which clears any previously stored rules.
func (p *Pipeline) reloadRules() error {
	ruleSet, err := rules.Load(config.GraphDir(p.conn.ProjectRoot()))
	if err != nil {
		return err
	}
	return p.conn.WithTx(func(tx *sql.Tx) error {
		return store.ReplaceAllRules(tx, ruleSet)
	})
}

// reindexCodeImports extracts raw imports for every scanned code file; used
// by Full() after symbols are committed.
func (p *Pipeline) reindexCodeImports(scanRoots []string) error {
	paths, err := codeindex.Walk(p.conn.ProjectRoot(), scanRoots)
	if err != nil {
		return err
	}
	if err := p.conn.WithTx(func(tx *sql.Tx) error {
		for _, rel := range paths {
			if err := p.imports.IndexFile(tx, rel); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	// Resolution runs against the committed import rows in a second
	// transaction.
	return p.conn.WithTx(p.resolveAndDeriveEdges)
}

func (p *Pipeline) rebuildFTSFor(refs map[string]bool) error {
	return p.conn.WithTx(func(tx *sql.Tx) error {
		for refID := range refs {
			n, ok, err := p.conn.GetNode(refID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := store.IndexNodeFTS(tx, refID, n.Summary); err != nil {
				return err
			}
			docs, err := p.conn.DocsByRefID(refID)
			if err != nil {
				return err
			}
			for _, d := range docs {
				chunks, err := p.conn.ChunksForDoc(d.Path)
				if err != nil {
					return err
				}
				texts := make([]string, 0, len(chunks))
				for _, ch := range chunks {
					texts = append(texts, ch.Text)
				}
				if err := store.ReplaceDocFTS(tx, refID, d.Path, texts); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (p *Pipeline) finish() error {
	now := time.Now()
	if err := p.conn.WithTx(func(tx *sql.Tx) error {
		return store.SetMeta(tx, "last_reindex_at", now.Format(time.RFC3339))
	}); err != nil {
		return err
	}
	return p.takeHealthSnapshot(now)
}

func (p *Pipeline) takeHealthSnapshot(at time.Time) error {
	nodes, err := p.conn.AllNodes()
	if err != nil {
		return err
	}
	edges, err := p.conn.AllEdges()
	if err != nil {
		return err
	}
	docs, err := p.conn.AllDocs()
	if err != nil {
		return err
	}
	syncRows, err := p.conn.AllSyncState()
	if err != nil {
		return err
	}

	connected := map[string]bool{}
	for _, e := range edges {
		connected[e.SrcRefID] = true
		connected[e.DstRefID] = true
	}
	docRefs := map[string]bool{}
	for _, d := range docs {
		if d.RefID != "" {
			docRefs[d.RefID] = true
		}
	}
	isolated := 0
	withDocs := 0
	for _, n := range nodes {
		if !connected[n.RefID] {
			isolated++
		}
		if docRefs[n.RefID] || len(n.Extra.Docs) > 0 {
			withDocs++
		}
	}
	stale := 0
	for _, s := range syncRows {
		if s.Status == model.SyncStale {
			stale++
		}
	}
	coverage := 0.0
	if len(nodes) > 0 {
		coverage = float64(withDocs) / float64(len(nodes)) * 100
	}

	return p.conn.RecordHealthSnapshot(model.HealthSnapshot{
		TakenAt:       at,
		NodesCount:    len(nodes),
		EdgesCount:    len(edges),
		DocsCount:     len(docs),
		CoveragePct:   coverage,
		StaleCount:    stale,
		IsolatedCount: isolated,
	})
}

type diffResult struct {
	graphChanged []string
	graphDeleted []string

	docsNew     []string
	docsChanged []string
	docsDeleted []string

	codeNew     []string
	codeChanged []string
	codeDeleted []string
}

// computeDiff enumerates graph/doc/code files, hashes them in parallel, and
// compares against file_index.
func (p *Pipeline) computeDiff() (*diffResult, error) {
	root := p.conn.ProjectRoot()

	graphFiles, err := graphloader.ListFiles(config.GraphDir(root))
	if err != nil {
		return nil, err
	}
	var graphRel []string
	for _, name := range graphFiles {
		graphRel = append(graphRel, filepath.ToSlash(filepath.Join(config.ConfigDirName, "_graph", name)))
	}

	docRel, err := docindex.Walk(root, p.cfg.DocsDir)
	if err != nil {
		return nil, err
	}
	codeRel, err := codeindex.Walk(root, p.cfg.ScanPaths)
	if err != nil {
		return nil, err
	}

	allCurrent := append(append(append([]string{}, graphRel...), docRel...), codeRel...)
	hashes, err := hashFilesParallel(root, allCurrent)
	if err != nil {
		return nil, err
	}

	prior, err := p.conn.AllFileIndex()
	if err != nil {
		return nil, err
	}

	diff := &diffResult{}
	classify := func(rel string) (isNew, isChanged bool) {
		entry, tracked := prior[rel]
		if !tracked {
			return true, false
		}
		return false, entry.Hash != hashes[rel]
	}

	for _, rel := range graphRel {
		isNew, isChanged := classify(rel)
		if isNew || isChanged {
			diff.graphChanged = append(diff.graphChanged, rel)
		}
	}
	for _, rel := range docRel {
		isNew, isChanged := classify(rel)
		switch {
		case isNew:
			diff.docsNew = append(diff.docsNew, rel)
		case isChanged:
			diff.docsChanged = append(diff.docsChanged, rel)
		}
	}
	for _, rel := range codeRel {
		isNew, isChanged := classify(rel)
		switch {
		case isNew:
			diff.codeNew = append(diff.codeNew, rel)
		case isChanged:
			diff.codeChanged = append(diff.codeChanged, rel)
		}
	}

	currentSet := map[string]bool{}
	for _, rel := range allCurrent {
		currentSet[rel] = true
	}
	for path, entry := range prior {
		if currentSet[path] {
			continue
		}
		switch entry.Kind {
		case model.FileDoc:
			diff.docsDeleted = append(diff.docsDeleted, path)
		case model.FileCode:
			diff.codeDeleted = append(diff.codeDeleted, path)
		case model.FileGraph:
			diff.graphDeleted = append(diff.graphDeleted, path)
		}
	}
	sort.Strings(diff.docsDeleted)
	sort.Strings(diff.codeDeleted)
	sort.Strings(diff.graphDeleted)

	p.lastHashes = hashes
	return diff, nil
}

func (p *Pipeline) applyFileIndexDiff(diff *diffResult) error {
	now := time.Now()
	return p.conn.WithTx(func(tx *sql.Tx) error {
		for _, rel := range diff.docsDeleted {
			if err := store.DeleteFileIndex(tx, rel); err != nil {
				return err
			}
		}
		for _, rel := range diff.codeDeleted {
			if err := store.DeleteFileIndex(tx, rel); err != nil {
				return err
			}
		}
		for _, rel := range diff.graphDeleted {
			if err := store.DeleteFileIndex(tx, rel); err != nil {
				return err
			}
		}
		upsert := func(rel string, kind model.FileKind) error {
			hash := p.lastHashes[rel]
			return store.UpsertFileIndex(tx, model.FileIndexEntry{Path: rel, Hash: hash, Kind: kind, IndexedAt: now})
		}
		for _, rel := range append(append([]string{}, diff.docsNew...), diff.docsChanged...) {
			if err := upsert(rel, model.FileDoc); err != nil {
				return err
			}
		}
		for _, rel := range append(append([]string{}, diff.codeNew...), diff.codeChanged...) {
			if err := upsert(rel, model.FileCode); err != nil {
				return err
			}
		}
		for _, rel := range diff.graphChanged {
			if err := upsert(rel, model.FileGraph); err != nil {
				return err
			}
		}
		return nil
	})
}

// recordFileIndex rebuilds file_index from the files currently on disk,
// used after a full reindex. The table is reset first so entries for files
// deleted since the previous run do not linger.
func (p *Pipeline) recordFileIndex() error {
	root := p.conn.ProjectRoot()
	graphFiles, err := graphloader.ListFiles(config.GraphDir(root))
	if err != nil {
		return err
	}
	var graphRel []string
	for _, name := range graphFiles {
		graphRel = append(graphRel, filepath.ToSlash(filepath.Join(config.ConfigDirName, "_graph", name)))
	}
	docRel, err := docindex.Walk(root, p.cfg.DocsDir)
	if err != nil {
		return err
	}
	codeRel, err := codeindex.Walk(root, p.cfg.ScanPaths)
	if err != nil {
		return err
	}

	all := append(append(append([]string{}, graphRel...), docRel...), codeRel...)
	hashes, err := hashFilesParallel(root, all)
	if err != nil {
		return err
	}
	now := time.Now()
	return p.conn.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM file_index"); err != nil {
			return err
		}
		for _, rel := range graphRel {
			if err := store.UpsertFileIndex(tx, model.FileIndexEntry{Path: rel, Hash: hashes[rel], Kind: model.FileGraph, IndexedAt: now}); err != nil {
				return err
			}
		}
		for _, rel := range docRel {
			if err := store.UpsertFileIndex(tx, model.FileIndexEntry{Path: rel, Hash: hashes[rel], Kind: model.FileDoc, IndexedAt: now}); err != nil {
				return err
			}
		}
		for _, rel := range codeRel {
			if err := store.UpsertFileIndex(tx, model.FileIndexEntry{Path: rel, Hash: hashes[rel], Kind: model.FileCode, IndexedAt: now}); err != nil {
				return err
			}
		}
		return nil
	})
}

// hashFilesParallel computes SHA-256 hashes for relPaths concurrently,
// bounded to maxParallelHash in flight.
func hashFilesParallel(root string, relPaths []string) (map[string]string, error) {
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(maxParallelHash)

	var mu sync.Mutex
	out := make(map[string]string, len(relPaths))
	for _, rel := range relPaths {
		rel := rel
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(root, rel))
			if err != nil {
				return errs.IO(err, "hash %s", rel)
			}
			sum := sha256.Sum256(data)
			hash := hex.EncodeToString(sum[:])
			mu.Lock()
			out[rel] = hash
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
