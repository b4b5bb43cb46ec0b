package cypher

import "testing"

// EXPLAIN prefix stripping honors the keyword boundary.
func TestStripExplainPrefix(t *testing.T) {
	cases := []struct {
		in       string
		wantRest string
		wantOK   bool
	}{
		{"EXPLAIN MATCH (n) RETURN n", "MATCH (n) RETURN n", true},
		{"explain MATCH (n) RETURN n", "MATCH (n) RETURN n", true},
		{"  EXPLAIN\tMATCH (n) RETURN n", "MATCH (n) RETURN n", true},
		{"EXPLAINED MATCH (n) RETURN n", "EXPLAINED MATCH (n) RETURN n", false},
		{"EXPLAIN", "", true},
		{"MATCH (n) RETURN n", "MATCH (n) RETURN n", false},
	}
	for _, tc := range cases {
		rest, ok := stripExplainPrefix(tc.in)
		if ok != tc.wantOK || rest != tc.wantRest {
			t.Errorf("stripExplainPrefix(%q) = (%q, %v), want (%q, %v)", tc.in, rest, ok, tc.wantRest, tc.wantOK)
		}
	}
}
