package cypher

// PreparedQuery is a parsed query ready to run against any snapshot sharing
// the same label namespace.
// A fresh physical operator tree is compiled on every Run call rather than
// cached here: operators are single-use, stateful iterators, while the AST
// they're compiled from is immutable and safe to reuse across executions —
// including against different, later snapshots.
type PreparedQuery struct {
	query   *Query
	plan    *LogicalPlan
	isWrite bool
	explain bool
}

// Prepare parses src (after stripping a leading EXPLAIN, if present), then
// builds and optimizes its logical plan. It performs no I/O:
// label names are resolved lazily against a snapshot only once execution
// begins.
func Prepare(src string) (*PreparedQuery, error) {
	rest, explain := stripExplainPrefix(src)
	parser := NewParser(rest)
	q, err := parser.ParseQuery()
	if err != nil {
		return nil, err
	}
	lp := Optimize(BuildLogicalPlan(q))
	if _, err := compileClauses(lp.Query.Clauses, &valuesOp{rows: []Row{{}}}, lp.MergeQueue); err != nil {
		return nil, err
	}
	return &PreparedQuery{query: q, plan: lp, isWrite: queryIsWrite(q), explain: explain}, nil
}

// IsWrite reports whether executing this query requires a write
// transaction.
func (pq *PreparedQuery) IsWrite() bool { return pq.isWrite }

// IsExplain reports whether the query text carried an EXPLAIN prefix.
func (pq *PreparedQuery) IsExplain() bool { return pq.explain }

// queryHasReturn reports whether the query ends up producing caller-facing
// rows at all; a write statement without a RETURN exposes only its
// affected-count stats.
func queryHasReturn(q *Query) bool {
	for _, c := range q.Clauses {
		if _, ok := c.(*ReturnClause); ok {
			return true
		}
	}
	return false
}

func columnsOf(q *Query) []string {
	for i := len(q.Clauses) - 1; i >= 0; i-- {
		if t, ok := q.Clauses[i].(*ReturnClause); ok {
			return projectionColumns(t.Items)
		}
	}
	return nil
}

func projectionColumns(items []ProjectionItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Star {
			continue
		}
		alias := it.Alias
		if alias == "" {
			if vr, ok := it.Expr.(*Var); ok {
				alias = vr.Name
			} else {
				alias = exprText(it.Expr)
			}
		}
		out = append(out, alias)
	}
	return out
}
