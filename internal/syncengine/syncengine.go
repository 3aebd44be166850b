// Package syncengine implements the Sync Engine: for every
// node with at least one linked doc and at least one code file under its
// source, it tracks whether the doc and code sides have drifted apart.
package syncengine

import (
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/beadloom/beadloom/internal/codeindex"
	"github.com/beadloom/beadloom/internal/logging"
	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/store"
)

// Engine evaluates and records sync state for the Persistent Store's nodes.
type Engine struct {
	conn *store.Conn
}

// New returns an Engine bound to an open store connection.
func New(conn *store.Conn) *Engine {
	return &Engine{conn: conn}
}

// EvaluateAll recomputes sync state for every node.
func (e *Engine) EvaluateAll(tx *sql.Tx) error {
	timer := logging.StartTimer(logging.CategorySync, "EvaluateAll")
	defer timer.Stop()

	nodes, err := e.conn.AllNodes()
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := e.EvaluateNode(tx, n.RefID); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateNode recomputes sync state for the (docPath, codePath) pairs of a
// single node, used by incremental reindex for affected ref_ids.
func (e *Engine) EvaluateNode(tx *sql.Tx, refID string) error {
	node, ok, err := e.conn.GetNode(refID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	docPaths, err := e.docsFor(node)
	if err != nil {
		return err
	}
	codePaths, err := e.codeFilesFor(node)
	if err != nil {
		return err
	}
	if len(docPaths) == 0 || len(codePaths) == 0 {
		return nil
	}

	existing, err := e.conn.SyncStateForRef(refID)
	if err != nil {
		return err
	}
	baseline := map[[2]string]model.SyncState{}
	for _, s := range existing {
		baseline[[2]string{s.DocPath, s.CodePath}] = s
	}

	untracked, err := e.untrackedFilesFor(node)
	if err != nil {
		return err
	}

	for _, docPath := range docPaths {
		for _, codePath := range codePaths {
			prior, havePrior := baseline[[2]string{docPath, codePath}]
			state, err := e.computeState(refID, docPath, codePath, prior, havePrior, untracked)
			if err != nil {
				return err
			}
			if err := store.UpsertSyncState(tx, state); err != nil {
				return err
			}
		}
	}
	return nil
}

// MarkSynced recomputes current hashes for a node's doc/code pairs and
// writes them as the new baseline.
func (e *Engine) MarkSynced(tx *sql.Tx, refID string) error {
	node, ok, err := e.conn.GetNode(refID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	docPaths, err := e.docsFor(node)
	if err != nil {
		return err
	}
	codePaths, err := e.codeFilesFor(node)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, docPath := range docPaths {
		docHash, err := e.docHash(docPath)
		if err != nil {
			return err
		}
		for _, codePath := range codePaths {
			codeHash, err := e.codeHash(codePath)
			if err != nil {
				return err
			}
			details, err := e.currentSymbolsJSON(codePath)
			if err != nil {
				return err
			}
			if err := store.UpsertSyncState(tx, model.SyncState{
				RefID: refID, DocPath: docPath, CodePath: codePath,
				Status: model.SyncOK, CodeHashAtSync: codeHash, DocHashAtSync: docHash,
				SyncedAt: now, Reason: "", Details: details,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) computeState(refID, docPath, codePath string, baseline model.SyncState, haveBaseline bool, untracked []string) (model.SyncState, error) {
	docHash, err := e.docHash(docPath)
	if err != nil {
		return model.SyncState{}, err
	}
	codeHash, err := e.codeHash(codePath)
	if err != nil {
		return model.SyncState{}, err
	}

	if !haveBaseline {
		// First evaluation of this pair: the current hashes become the
		// baseline and the pair starts out in sync.
		details, err := e.currentSymbolsJSON(codePath)
		if err != nil {
			return model.SyncState{}, err
		}
		return model.SyncState{
			RefID: refID, DocPath: docPath, CodePath: codePath,
			Status: model.SyncOK, CodeHashAtSync: codeHash, DocHashAtSync: docHash,
			SyncedAt: time.Now(), Details: details,
		}, nil
	}

	state := model.SyncState{
		RefID: refID, DocPath: docPath, CodePath: codePath,
		CodeHashAtSync: baseline.CodeHashAtSync, DocHashAtSync: baseline.DocHashAtSync,
		SyncedAt: baseline.SyncedAt,
	}

	if codeHash == "" {
		state.Status = model.SyncStale
		state.Reason = "missing_modules"
		data, _ := json.Marshal(map[string]string{"code_path": codePath})
		state.Details = string(data)
		return state, nil
	}
	if docHash != baseline.DocHashAtSync {
		state.Status = model.SyncStale
		state.Reason = "doc_rewritten"
		return state, nil
	}
	if codeHash != baseline.CodeHashAtSync {
		added, removed, err := e.symbolDrift(codePath, baseline)
		if err != nil {
			return model.SyncState{}, err
		}
		if len(added) > 0 || len(removed) > 0 {
			state.Status = model.SyncStale
			state.Reason = "symbols_changed"
			state.Details = symbolSetDetails(added, removed)
			return state, nil
		}
		state.Status = model.SyncStale
		state.Reason = "content_changed"
		return state, nil
	}
	if len(untracked) > 0 {
		state.Status = model.SyncStale
		state.Reason = "untracked_files"
		data, _ := json.Marshal(struct {
			Untracked []string `json:"untracked"`
		}{Untracked: untracked})
		state.Details = string(data)
		return state, nil
	}

	state.Status = model.SyncOK
	state.Details = baseline.Details
	return state, nil
}

// currentSymbolsJSON serializes the sorted symbol-name set of codePath, the
// shape symbolDrift diffs against on later evaluations.
func (e *Engine) currentSymbolsJSON(codePath string) (string, error) {
	symbols, err := e.conn.SymbolsForFile(codePath)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(symbols))
	for _, s := range symbols {
		names = append(names, s.SymbolName)
	}
	sort.Strings(names)
	data, err := json.Marshal(struct {
		Symbols []string `json:"symbols"`
	}{Symbols: names})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// untrackedFilesFor returns code files present on disk under the node's
// source prefix that the file_index has never seen, sorted.
func (e *Engine) untrackedFilesFor(n model.Node) ([]string, error) {
	if n.Source == "" {
		return nil, nil
	}
	onDisk, err := codeindex.Walk(e.conn.ProjectRoot(), []string{strings.TrimSuffix(n.Source, "/")})
	if err != nil {
		return nil, err
	}
	if len(onDisk) == 0 {
		return nil, nil
	}
	idx, err := e.conn.AllFileIndex()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range onDisk {
		if _, tracked := idx[p]; !tracked {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (e *Engine) symbolDrift(codePath string, baseline model.SyncState) (added, removed []string, err error) {
	current, err := e.conn.SymbolsForFile(codePath)
	if err != nil {
		return nil, nil, err
	}
	currentSet := map[string]bool{}
	for _, s := range current {
		currentSet[s.SymbolName] = true
	}

	var prevDetails struct {
		Symbols []string `json:"symbols"`
	}
	if baseline.Details != "" {
		_ = json.Unmarshal([]byte(baseline.Details), &prevDetails)
	}
	prevSet := map[string]bool{}
	for _, s := range prevDetails.Symbols {
		prevSet[s] = true
	}

	for name := range currentSet {
		if !prevSet[name] {
			added = append(added, name)
		}
	}
	for name := range prevSet {
		if !currentSet[name] {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed, nil
}

func symbolSetDetails(added, removed []string) string {
	payload := struct {
		Added   []string `json:"added,omitempty"`
		Removed []string `json:"removed,omitempty"`
	}{Added: added, Removed: removed}
	data, _ := json.Marshal(payload)
	return string(data)
}

func (e *Engine) docHash(docPath string) (string, error) {
	d, ok, err := e.conn.GetDoc(docPath)
	if err != nil || !ok {
		return "", err
	}
	return d.Hash, nil
}

func (e *Engine) codeHash(codePath string) (string, error) {
	idx, err := e.conn.AllFileIndex()
	if err != nil {
		return "", err
	}
	entry, ok := idx[codePath]
	if !ok {
		return "", nil
	}
	return entry.Hash, nil
}

// docsFor returns the union of a node's explicit extra.docs list and any
// docs the Doc Indexer associated with it by directory heuristic.
func (e *Engine) docsFor(n model.Node) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range n.Extra.Docs {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	linked, err := e.conn.DocsByRefID(n.RefID)
	if err != nil {
		return nil, err
	}
	for _, d := range linked {
		if !seen[d.Path] {
			seen[d.Path] = true
			out = append(out, d.Path)
		}
	}
	sort.Strings(out)
	return out, nil
}

// codeFilesFor returns the distinct code file paths under a node's source
// prefix.
func (e *Engine) codeFilesFor(n model.Node) ([]string, error) {
	if n.Source == "" {
		return nil, nil
	}
	symbols, err := e.conn.SymbolsUnderPrefix(strings.TrimSuffix(n.Source, "/"))
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, s := range symbols {
		if !seen[s.FilePath] {
			seen[s.FilePath] = true
			out = append(out, s.FilePath)
		}
	}
	sort.Strings(out)
	return out, nil
}
