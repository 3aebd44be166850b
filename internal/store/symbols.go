package store

import (
	"database/sql"
	"encoding/json"

	"github.com/beadloom/beadloom/internal/model"
)

// ReplaceSymbolsForFile removes all symbol rows for filePath and inserts the
// new set.
func ReplaceSymbolsForFile(tx *sql.Tx, filePath string, symbols []model.CodeSymbol) error {
	if _, err := tx.Exec("DELETE FROM code_symbols WHERE file_path = ?", filePath); err != nil {
		return err
	}
	for _, s := range symbols {
		ann, err := json.Marshal(s.Annotations)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO code_symbols(file_path, symbol_name, line_start, line_end, kind, language,
				annotations_json, route_method, route_path, route_handler)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.FilePath, s.SymbolName, s.LineStart, s.LineEnd, string(s.Kind), s.Language,
			string(ann), s.RouteMethod, s.RoutePath, s.RouteHandler,
		); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSymbolsForFile removes every symbol row for filePath (used when a
// file is deleted).
func DeleteSymbolsForFile(tx *sql.Tx, filePath string) error {
	_, err := tx.Exec("DELETE FROM code_symbols WHERE file_path = ?", filePath)
	return err
}

func scanSymbol(row interface{ Scan(...any) error }) (model.CodeSymbol, error) {
	var s model.CodeSymbol
	var kind, ann string
	if err := row.Scan(&s.FilePath, &s.SymbolName, &s.LineStart, &s.LineEnd, &kind, &s.Language,
		&ann, &s.RouteMethod, &s.RoutePath, &s.RouteHandler); err != nil {
		return s, err
	}
	s.Kind = model.SymbolKind(kind)
	if ann != "" {
		_ = json.Unmarshal([]byte(ann), &s.Annotations)
	}
	return s, nil
}

const symbolCols = `file_path, symbol_name, line_start, line_end, kind, language,
	annotations_json, route_method, route_path, route_handler`

// SymbolsForFile returns every symbol extracted from filePath.
func (c *Conn) SymbolsForFile(filePath string) ([]model.CodeSymbol, error) {
	rows, err := c.db.Query("SELECT "+symbolCols+" FROM code_symbols WHERE file_path = ? ORDER BY line_start", filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CodeSymbol
	for rows.Next() {
		s, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SymbolsUnderPrefix returns every symbol whose file_path starts with prefix,
// used by the Context Assembler to collect a subgraph node's code symbols.
func (c *Conn) SymbolsUnderPrefix(prefix string) ([]model.CodeSymbol, error) {
	rows, err := c.db.Query(
		"SELECT "+symbolCols+" FROM code_symbols WHERE file_path LIKE ? ORDER BY file_path, line_start",
		prefix+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CodeSymbol
	for rows.Next() {
		s, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SymbolsWithAnnotation finds symbols in filePath whose annotations contain
// key=value, used by the Import Resolver's annotation-lookup strategy.
func (c *Conn) SymbolsWithAnnotation(filePath, key, value string) ([]model.CodeSymbol, error) {
	all, err := c.SymbolsForFile(filePath)
	if err != nil {
		return nil, err
	}
	var out []model.CodeSymbol
	for _, s := range all {
		if s.Annotations != nil && s.Annotations[key] == value {
			out = append(out, s)
		}
	}
	return out, nil
}

// AllCodeFiles returns the distinct set of file paths with symbols indexed.
func (c *Conn) AllCodeFiles() ([]string, error) {
	rows, err := c.db.Query("SELECT DISTINCT file_path FROM code_symbols ORDER BY file_path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
