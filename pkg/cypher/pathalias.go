package cypher

import (
	"strconv"
	"strings"
)

// internalPathAliasPrefix marks row aliases synthesized by the planner for
// anonymous path patterns (e.g. `(a)-[:R]->(b)` with no `p =` binding but
// referenced as a whole path internally for variable-length expansion).
// Names beginning with this prefix are never surfaced to callers.
const internalPathAliasPrefix = "__nervus_internal_path_"

// pathAliasAllocator hands out successive internal path aliases starting
// from 0, used by the planner when a pattern needs a path binding the
// query text never named.
type pathAliasAllocator struct {
	next int
}

// newPathAliasAllocator returns an allocator whose first Next() call
// yields alias 0.
func newPathAliasAllocator() *pathAliasAllocator {
	return &pathAliasAllocator{}
}

// Next returns the next internal path alias and advances the counter.
func (a *pathAliasAllocator) Next() string {
	name := internalPathAliasPrefix + strconv.Itoa(a.next)
	a.next++
	return name
}

// isInternalPathAlias reports whether name was synthesized by
// pathAliasAllocator — it must start with the reserved prefix and be
// immediately followed by a non-empty run of digits, nothing else.
func isInternalPathAlias(name string) bool {
	rest, ok := strings.CutPrefix(name, internalPathAliasPrefix)
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
