package cypher

import "strings"

// stripExplainPrefix detects a leading, case-insensitive EXPLAIN keyword
// and returns the remaining query text with it removed. The keyword must
// be followed by whitespace or end-of-string — "EXPLAINED MATCH ..." is a
// plain (if unusual) identifier-led query, not an EXPLAIN request.
func stripExplainPrefix(src string) (rest string, explain bool) {
	trimmed := strings.TrimLeft(src, " \t\r\n")
	const kw = "EXPLAIN"
	if len(trimmed) < len(kw) || !strings.EqualFold(trimmed[:len(kw)], kw) {
		return src, false
	}
	if len(trimmed) == len(kw) {
		return "", true
	}
	switch trimmed[len(kw)] {
	case ' ', '\t', '\r', '\n':
		return trimmed[len(kw)+1:], true
	default:
		return src, false
	}
}

// renderPlan renders an operator tree's Describe() output as an indented
// text block, the EXPLAIN surface's only documented output shape.
func renderPlan(op Operator) string {
	var sb strings.Builder
	var walk func(op Operator, depth int)
	walk = func(op Operator, depth int) {
		if op == nil {
			return
		}
		label, children := op.Describe()
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(label)
		sb.WriteString("\n")
		for _, c := range children {
			walk(c, depth+1)
		}
	}
	walk(op, 0)
	return sb.String()
}
