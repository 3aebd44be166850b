// Package errs defines the five error kinds from the core's error-handling
// design: Configuration, I/O, Constraint, Not Found and Stale/Warn. Callers
// (the CLI, the RPC server — both out of core scope) branch on kind with
// errors.As rather than string matching.
package errs

import "fmt"

// Kind classifies an error for caller-side handling.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindIO            Kind = "io"
	KindConstraint    Kind = "constraint"
	KindNotFound      Kind = "not_found"
	KindStale         Kind = "stale"
)

// Error is a typed, wrapped error carrying a Kind plus optional file/line
// location.
type Error struct {
	Kind Kind
	File string
	Line int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	loc := ""
	if e.File != "" {
		if e.Line > 0 {
			loc = fmt.Sprintf(" (%s:%d)", e.File, e.Line)
		} else {
			loc = fmt.Sprintf(" (%s)", e.File)
		}
	}
	if e.Err != nil {
		return fmt.Sprintf("%s%s: %s: %v", e.Msg, loc, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s%s: %s", e.Msg, loc, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, &errs.Error{Kind: errs.KindNotFound})-style
// matching: any *Error target matches when its Kind equals e.Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Configuration wraps a malformed-input error (YAML parse failure, duplicate
// ref_id, unknown kind, invalid rule).
func Configuration(file string, line int, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, File: file, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// IO wraps a filesystem/database I/O failure.
func IO(err error, format string, args ...any) *Error {
	return &Error{Kind: KindIO, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Constraint wraps a database uniqueness/foreign-key violation surfaced from
// the Reindex Pipeline.
func Constraint(err error, format string, args ...any) *Error {
	return &Error{Kind: KindConstraint, Msg: fmt.Sprintf(format, args...), Err: err}
}

// NotFound wraps a "no such node"-style lookup failure. Suggestions (ref_ids
// within edit distance 3) are appended to Msg when available.
func NotFound(refID string, candidates []string) *Error {
	msg := fmt.Sprintf("no such node: %q", refID)
	if s := Suggestions(refID, candidates, 3); len(s) > 0 {
		msg = fmt.Sprintf("%s (did you mean: %v?)", msg, s)
	}
	return &Error{Kind: KindNotFound, Msg: msg}
}

// Stale wraps an advisory condition (sync drift, rule referencing an unknown
// ref_id) that is returned alongside otherwise-successful results, never
// fatal.
func Stale(format string, args ...any) *Error {
	return &Error{Kind: KindStale, Msg: fmt.Sprintf(format, args...)}
}

// Suggestions returns candidates within the given Levenshtein distance of
// target, closest first, capped at 3 results.
func Suggestions(target string, candidates []string, maxDistance int) []string {
	type scored struct {
		s string
		d int
	}
	var hits []scored
	for _, c := range candidates {
		d := levenshtein(target, c)
		if d <= maxDistance {
			hits = append(hits, scored{c, d})
		}
	}
	// simple insertion sort by distance; candidate lists are small
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j-1].d > hits[j].d; j-- {
			hits[j-1], hits[j] = hits[j], hits[j-1]
		}
	}
	out := make([]string, 0, 3)
	for i, h := range hits {
		if i >= 3 {
			break
		}
		out = append(out, h.s)
	}
	return out
}

// levenshtein computes edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
