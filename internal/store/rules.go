package store

import (
	"database/sql"

	"github.com/beadloom/beadloom/internal/model"
)

// ReplaceAllRules truncates and repopulates the rules table, used when the
// Rule Engine reloads rules.yml; whole-file replace semantics mirror the
// Graph Loader's full reload on any graph-file change.
func ReplaceAllRules(tx *sql.Tx, rules []model.Rule) error {
	if _, err := tx.Exec("DELETE FROM rules"); err != nil {
		return err
	}
	for _, r := range rules {
		enabled := 0
		if r.Enabled {
			enabled = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO rules(name, rule_type, rule_json, enabled) VALUES (?, ?, ?, ?)`,
			r.Name, string(r.Type), r.RuleJSON, enabled,
		); err != nil {
			return err
		}
	}
	return nil
}

// AllRules returns every enabled rule. RuleJSON carries the variant payload
// plus description, re-parsed by internal/rules.
func (c *Conn) AllRules() ([]model.Rule, error) {
	rows, err := c.db.Query("SELECT name, rule_type, rule_json, enabled FROM rules WHERE enabled = 1 ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Rule
	for rows.Next() {
		var r model.Rule
		var ruleType string
		var enabled int
		if err := rows.Scan(&r.Name, &ruleType, &r.RuleJSON, &enabled); err != nil {
			return nil, err
		}
		r.Type = model.RuleType(ruleType)
		r.Enabled = enabled != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
