package store

import (
	"database/sql"

	"github.com/beadloom/beadloom/internal/model"
)

// ReplaceImportsForFile removes all import rows for filePath and inserts the
// new set.
func ReplaceImportsForFile(tx *sql.Tx, filePath string, imports []model.CodeImport) error {
	if _, err := tx.Exec("DELETE FROM code_imports WHERE file_path = ?", filePath); err != nil {
		return err
	}
	for _, im := range imports {
		if _, err := tx.Exec(
			`INSERT INTO code_imports(file_path, line_number, import_path, resolved_ref_id, file_hash)
			 VALUES (?, ?, ?, ?, ?)`,
			im.FilePath, im.LineNumber, im.ImportPath, im.ResolvedRefID, im.FileHash,
		); err != nil {
			return err
		}
	}
	return nil
}

// ClearStaleResolutions blanks resolved_ref_id on rows whose target node no
// longer exists, so the rows are retained for future resolution attempts
// without dangling references after a graph reload.
func ClearStaleResolutions(tx *sql.Tx) error {
	_, err := tx.Exec(
		"UPDATE code_imports SET resolved_ref_id = '' WHERE resolved_ref_id != '' AND resolved_ref_id NOT IN (SELECT ref_id FROM nodes)",
	)
	return err
}

// SetImportResolution updates resolved_ref_id for a single import row.
func SetImportResolution(tx *sql.Tx, filePath string, lineNumber int, importPath, refID string) error {
	_, err := tx.Exec(
		`UPDATE code_imports SET resolved_ref_id = ? WHERE file_path = ? AND line_number = ? AND import_path = ?`,
		refID, filePath, lineNumber, importPath,
	)
	return err
}

func scanImport(row interface{ Scan(...any) error }) (model.CodeImport, error) {
	var im model.CodeImport
	if err := row.Scan(&im.FilePath, &im.LineNumber, &im.ImportPath, &im.ResolvedRefID, &im.FileHash); err != nil {
		return im, err
	}
	return im, nil
}

const importCols = `file_path, line_number, import_path, resolved_ref_id, file_hash`

// ImportsForFile returns every import row extracted from filePath.
func (c *Conn) ImportsForFile(filePath string) ([]model.CodeImport, error) {
	rows, err := c.db.Query("SELECT "+importCols+" FROM code_imports WHERE file_path = ? ORDER BY line_number", filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CodeImport
	for rows.Next() {
		im, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

// UnresolvedImports returns every import row with an empty resolved_ref_id,
// retained for future reindex attempts.
func (c *Conn) UnresolvedImports() ([]model.CodeImport, error) {
	rows, err := c.db.Query("SELECT " + importCols + " FROM code_imports WHERE resolved_ref_id = '' ORDER BY file_path, line_number")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CodeImport
	for rows.Next() {
		im, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

// AllImports returns every import row, used to (re)derive depends_on edges.
func (c *Conn) AllImports() ([]model.CodeImport, error) {
	rows, err := c.db.Query("SELECT " + importCols + " FROM code_imports ORDER BY file_path, line_number")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CodeImport
	for rows.Next() {
		im, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}
