package rules

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/beadloom/beadloom/internal/errs"
	"github.com/beadloom/beadloom/internal/model"
)

// acceptedVersions is the closed set of rules.yml schema versions.
var acceptedVersions = map[int]bool{1: true, 2: true, 3: true}

type rulesFile struct {
	Version int                 `yaml:"version"`
	Tags    map[string][]string `yaml:"tags"`
	Rules   []ruleEntry         `yaml:"rules"`
}

type ruleEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Deny         *DenyVariant         `yaml:"deny"`
	Require      *RequireVariant      `yaml:"require"`
	ForbidCycles *ForbidCyclesVariant `yaml:"forbid_cycles"`
	ForbidImport *ForbidImportVariant `yaml:"forbid_import"`
	ForbidEdge   *ForbidEdgeVariant   `yaml:"forbid_edge"`
	Layers       *LayersVariant       `yaml:"layers"`
	Check        *CardinalityVariant  `yaml:"check"`
}

// FileName is the well-known rules file name under the graph directory.
const FileName = "rules.yml"

// Load reads rules.yml from dir. A missing file is not an error: it returns
// a nil rule set, which evaluates to zero violations.
func Load(dir string) ([]model.Rule, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			altPath := filepath.Join(dir, "rules.yaml")
			data, err = os.ReadFile(altPath)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, nil
				}
				return nil, errs.IO(err, "read %s", altPath)
			}
			path = altPath
		} else {
			return nil, errs.IO(err, "read %s", path)
		}
	}

	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, errs.Configuration(path, 0, "malformed YAML: %v", err)
	}
	if !acceptedVersions[rf.Version] {
		return nil, errs.Configuration(path, 0, "unsupported rules schema version %d", rf.Version)
	}

	seen := map[string]bool{}
	out := make([]model.Rule, 0, len(rf.Rules))
	for _, entry := range rf.Rules {
		if entry.Name == "" {
			return nil, errs.Configuration(path, 0, "rule missing required name")
		}
		if seen[entry.Name] {
			return nil, errs.Configuration(path, 0, "duplicate rule name %q", entry.Name)
		}
		seen[entry.Name] = true

		r, err := buildRule(entry, path)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// buildRule validates that exactly one variant key is set on entry,
// validates every kind it references against the closed node/edge-kind
// sets, and serializes the variant payload into model.Rule.RuleJSON.
func buildRule(entry ruleEntry, path string) (model.Rule, error) {
	type candidate struct {
		ruleType model.RuleType
		payload  any
	}
	var present []candidate
	if entry.Deny != nil {
		present = append(present, candidate{model.RuleDeny, entry.Deny})
	}
	if entry.Require != nil {
		present = append(present, candidate{model.RuleRequire, entry.Require})
	}
	if entry.ForbidCycles != nil {
		present = append(present, candidate{model.RuleForbidCycles, entry.ForbidCycles})
	}
	if entry.ForbidImport != nil {
		present = append(present, candidate{model.RuleForbidImport, entry.ForbidImport})
	}
	if entry.ForbidEdge != nil {
		present = append(present, candidate{model.RuleForbidEdge, entry.ForbidEdge})
	}
	if entry.Layers != nil {
		present = append(present, candidate{model.RuleLayers, entry.Layers})
	}
	if entry.Check != nil {
		present = append(present, candidate{model.RuleCardinality, entry.Check})
	}

	if len(present) == 0 {
		return model.Rule{}, errs.Configuration(path, 0, "rule %q names no variant (exactly one of deny/require/forbid_cycles/forbid_import/forbid_edge/layers/check is required)", entry.Name)
	}
	if len(present) > 1 {
		return model.Rule{}, errs.Configuration(path, 0, "rule %q names more than one variant key", entry.Name)
	}
	chosen := present[0]

	if err := validateKinds(entry.Name, chosen.ruleType, chosen.payload, path); err != nil {
		return model.Rule{}, err
	}

	payloadJSON, err := json.Marshal(chosen.payload)
	if err != nil {
		return model.Rule{}, errs.Configuration(path, 0, "rule %q: marshal variant: %v", entry.Name, err)
	}

	wrapper := struct {
		Description string          `json:"description"`
		Payload     json.RawMessage `json:"payload"`
	}{Description: entry.Description, Payload: payloadJSON}
	ruleJSON, err := json.Marshal(wrapper)
	if err != nil {
		return model.Rule{}, errs.Configuration(path, 0, "rule %q: marshal rule: %v", entry.Name, err)
	}

	return model.Rule{
		Name:        entry.Name,
		Type:        chosen.ruleType,
		Description: entry.Description,
		RuleJSON:    string(ruleJSON),
		Enabled:     true,
	}, nil
}

func validateKinds(name string, ruleType model.RuleType, payload any, path string) error {
	checkNodeMatcher := func(m NodeMatcher) error {
		if m.Kind != "" && !model.ValidNodeKind(model.NodeKind(m.Kind)) {
			return errs.Configuration(path, 0, "rule %q: unknown node kind %q", name, m.Kind)
		}
		return nil
	}
	checkEdgeKind := func(k string) error {
		if k != "" && !model.ValidEdgeKind(model.EdgeKind(k)) {
			return errs.Configuration(path, 0, "rule %q: unknown edge kind %q", name, k)
		}
		return nil
	}

	switch v := payload.(type) {
	case *DenyVariant:
		if err := checkNodeMatcher(v.From); err != nil {
			return err
		}
		if err := checkNodeMatcher(v.To); err != nil {
			return err
		}
		if v.From.Empty() {
			return errs.Configuration(path, 0, "rule %q: deny.from requires at least one field", name)
		}
		for _, k := range v.UnlessEdge {
			if err := checkEdgeKind(k); err != nil {
				return err
			}
		}
	case *RequireVariant:
		if err := checkNodeMatcher(v.For); err != nil {
			return err
		}
		if v.For.Empty() {
			return errs.Configuration(path, 0, "rule %q: require.for requires at least one field", name)
		}
		if err := checkEdgeKind(v.EdgeKind); err != nil {
			return err
		}
	case *ForbidCyclesVariant:
		for _, k := range v.EdgeKind {
			if err := checkEdgeKind(k); err != nil {
				return err
			}
		}
		if v.MaxDepth <= 0 {
			return errs.Configuration(path, 0, "rule %q: forbid_cycles.max_depth must be positive", name)
		}
	case *ForbidImportVariant:
		if v.FromGlob == "" || v.ToGlob == "" {
			return errs.Configuration(path, 0, "rule %q: forbid_import requires from_glob and to_glob", name)
		}
	case *ForbidEdgeVariant:
		if err := checkNodeMatcher(v.From); err != nil {
			return err
		}
		if err := checkNodeMatcher(v.To); err != nil {
			return err
		}
		if v.From.Empty() {
			return errs.Configuration(path, 0, "rule %q: forbid_edge.from requires at least one field", name)
		}
		if err := checkEdgeKind(v.EdgeKind); err != nil {
			return err
		}
	case *LayersVariant:
		if len(v.Layers) == 0 {
			return errs.Configuration(path, 0, "rule %q: layers requires at least one layer", name)
		}
		if err := checkEdgeKind(v.EdgeKind); err != nil {
			return err
		}
	case *CardinalityVariant:
		if err := checkNodeMatcher(v.For); err != nil {
			return err
		}
		if v.For.Empty() {
			return errs.Configuration(path, 0, "rule %q: check.for requires at least one field", name)
		}
		if v.Severity != "" && v.Severity != string(model.SeverityError) && v.Severity != string(model.SeverityWarn) {
			return errs.Configuration(path, 0, "rule %q: unknown severity %q", name, v.Severity)
		}
	default:
		return errs.Configuration(path, 0, "rule %q: unhandled rule type %s", name, ruleType)
	}
	return nil
}
