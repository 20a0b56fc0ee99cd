package puzzle

import (
	"strconv"
	"strings"
)

// Facts is what a condition is evaluated against. *Table implements it.
type Facts interface {
	Truth(id, attr string) bool
	Count(id string) (int, bool)
}

// EvalCondition evaluates a condition expression.
// Supported patterns:
//   - "" (empty = always true)
//   - "<id>.completed", "<id>.resolved", "<id>.ready"
//   - "<id>.count <op> N" with op one of >=, <=, ==, >, <
//   - "!<expr>"
//   - "<expr> && <expr>", "<expr> || <expr>" (|| binds looser)
func EvalCondition(expr string, f Facts) bool {
	expr = strings.TrimSpace(expr)

	if expr == "" {
		return true
	}
	if f == nil {
		return false
	}

	if strings.Contains(expr, "||") {
		parts := strings.SplitN(expr, "||", 2)
		return EvalCondition(parts[0], f) || EvalCondition(parts[1], f)
	}

	if strings.Contains(expr, "&&") {
		parts := strings.SplitN(expr, "&&", 2)
		return EvalCondition(parts[0], f) && EvalCondition(parts[1], f)
	}

	if strings.HasPrefix(expr, "!") {
		return !EvalCondition(expr[1:], f)
	}

	// Pattern: <id>.count <op> N
	if id, op, n, ok := parseCount(expr); ok {
		count, known := f.Count(id)
		if !known {
			return false
		}
		return compare(count, op, n)
	}

	// Pattern: <id>.<attr>
	if idx := strings.LastIndex(expr, "."); idx > 0 {
		return f.Truth(expr[:idx], expr[idx+1:])
	}

	// Unknown pattern - return false
	return false
}

var countOps = []string{">=", "<=", "==", ">", "<"}

// parseCount parses "<id>.count <op> N".
func parseCount(expr string) (id, op string, n int, ok bool) {
	for _, candidate := range countOps {
		idx := strings.Index(expr, candidate)
		if idx == -1 {
			continue
		}
		left := strings.TrimSpace(expr[:idx])
		right := strings.TrimSpace(expr[idx+len(candidate):])
		if !strings.HasSuffix(left, ".count") {
			return "", "", 0, false
		}
		v, err := strconv.Atoi(right)
		if err != nil {
			return "", "", 0, false
		}
		return strings.TrimSuffix(left, ".count"), candidate, v, true
	}
	return "", "", 0, false
}

func compare(a int, op string, b int) bool {
	switch op {
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	case "==":
		return a == b
	case ">":
		return a > b
	case "<":
		return a < b
	}
	return false
}

// References returns the element ids a condition mentions, in order of
// appearance and without duplicates.
func References(expr string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, term := range splitTerms(expr) {
		term = strings.TrimLeft(strings.TrimSpace(term), "!")
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		var id string
		if cid, _, _, ok := parseCount(term); ok {
			id = cid
		} else if idx := strings.LastIndex(term, "."); idx > 0 {
			id = term[:idx]
		}
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// ValidCondition reports whether every term of expr is a pattern
// EvalCondition understands.
func ValidCondition(expr string) bool {
	if strings.TrimSpace(expr) == "" {
		return true
	}
	for _, term := range splitTerms(expr) {
		term = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(term), "!"))
		if term == "" {
			return false
		}
		if _, _, _, ok := parseCount(term); ok {
			continue
		}
		idx := strings.LastIndex(term, ".")
		if idx <= 0 {
			return false
		}
		switch term[idx+1:] {
		case "completed", "resolved", "ready":
		default:
			return false
		}
	}
	return true
}

func splitTerms(expr string) []string {
	var out []string
	for _, or := range strings.Split(expr, "||") {
		out = append(out, strings.Split(or, "&&")...)
	}
	return out
}
