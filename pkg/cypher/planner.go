package cypher

// compileClauses folds an ordered clause list into a single Operator
// chain rooted at seed: the logical plan is the straight-line composition
// of clauses, with no cross-clause rewrite beyond the identity-or-simplify
// optimizer passes. This module is the one place that turns a Query into a
// runnable plan.
func compileClauses(clauses []Clause, seed Operator, mergeQueue []*MergeSubclauseItem) (Operator, error) {
	pa := newPathAliasAllocator()
	op := seed
	var err error
	for _, c := range clauses {
		op, err = compileClause(c, op, pa, mergeQueue)
		if err != nil {
			return nil, err
		}
	}
	return op, nil
}

func compileClause(c Clause, input Operator, pa *pathAliasAllocator, mergeQueue []*MergeSubclauseItem) (Operator, error) {
	switch t := c.(type) {
	case *MatchClause:
		if t.Optional {
			return &optionalMatchOp{
				input:    input,
				patterns: t.Patterns,
				where:    t.Where,
				aliases:  collectAliases(t.Patterns),
				pa:       pa,
			}, nil
		}
		op := compileMatchPatterns(t.Patterns, input, pa)
		if t.Where != nil {
			op = &filterOp{input: op, predicate: t.Where}
		}
		return op, nil

	case *CreateClause:
		op := input
		for _, p := range t.Patterns {
			op = &createOp{input: op, pattern: p}
		}
		return op, nil

	case *MergeClause:
		onCreate, onMatch := t.OnCreate, t.OnMatch
		for _, item := range mergeQueue {
			if item.Clause == t {
				onCreate, onMatch = item.OnCreate, item.OnMatch
				break
			}
		}
		return &mergeOp{input: input, pattern: t.Pattern, onCreate: onCreate, onMatch: onMatch}, nil

	case *SetClause:
		return &setOp{input: input, items: t.Items}, nil

	case *RemoveClause:
		return &removeOp{input: input, items: t.Items}, nil

	case *DeleteClause:
		return &deleteOp{input: input, names: t.Variables, detach: t.Detach}, nil

	case *UnwindClause:
		return &unwindOp{input: input, list: t.List, variable: t.Variable}, nil

	case *ForeachClause:
		sub := t.SubClauses
		return &foreachOp{
			input:    input,
			variable: t.Variable,
			list:     t.List,
			buildBody: func(env *Env, seed Row) (Operator, error) {
				return compileClauses(sub, &valuesOp{rows: []Row{seed}}, mergeQueue)
			},
		}, nil

	case *WithClause:
		op := Operator(&projectOp{input: input, items: t.Items})
		if t.Where != nil {
			op = &filterOp{input: op, predicate: t.Where}
		}
		if t.Distinct {
			op = &distinctOp{input: op}
		}
		if len(t.OrderBy) > 0 {
			op = &orderByOp{input: op, items: t.OrderBy}
		}
		if t.Skip != nil {
			op = &skipOp{input: op, n: t.Skip}
		}
		if t.Limit != nil {
			op = &limitOp{input: op, n: t.Limit}
		}
		return op, nil

	case *ReturnClause:
		op := Operator(&projectOp{input: input, items: t.Items})
		if t.Distinct {
			op = &distinctOp{input: op}
		}
		if len(t.OrderBy) > 0 {
			op = &orderByOp{input: op, items: t.OrderBy}
		}
		if t.Skip != nil {
			op = &skipOp{input: op, n: t.Skip}
		}
		if t.Limit != nil {
			op = &limitOp{input: op, n: t.Limit}
		}
		return op, nil

	default:
		return nil, newNotImplemented("unknown clause type")
	}
}

// compileMatchPatterns chains buildExpand across every comma-separated
// pattern of a single MATCH, each subsequent pattern joining against
// whatever aliases the running row already carries.
func compileMatchPatterns(patterns []*PatternPath, seed Operator, pa *pathAliasAllocator) Operator {
	op := seed
	for _, p := range patterns {
		op, _ = buildExpand(p, op, pa) // buildExpand never returns a non-nil error
	}
	return op
}

// collectAliases lists every alias an OPTIONAL MATCH's patterns would bind,
// so an unmatched row can be filled with Null for each of them rather than
// eliminated.
func collectAliases(patterns []*PatternPath) []string {
	var out []string
	for _, p := range patterns {
		for i, n := range p.Nodes {
			if n.Variable != "" {
				out = append(out, n.Variable)
			} else {
				out = append(out, anonNodeAlias(p, i))
			}
		}
		for _, r := range p.Rels {
			if r.Variable != "" {
				out = append(out, r.Variable)
			}
		}
		if p.PathVariable != "" {
			out = append(out, p.PathVariable)
		}
	}
	return out
}

// optionalMatchOp implements OPTIONAL MATCH: every input row always
// survives, either joined with one row per underlying match or, when none
// exists, extended with Null for every alias the pattern would have bound.
type optionalMatchOp struct {
	input    Operator
	patterns []*PatternPath
	where    Expression
	aliases  []string
	pa       *pathAliasAllocator
	env      *Env

	pending    []Row
	pendingIdx int
}

func (o *optionalMatchOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }
func (o *optionalMatchOp) Close()              { o.input.Close() }
func (o *optionalMatchOp) Describe() (string, []Operator) {
	return "OptionalMatch", []Operator{o.input}
}

func (o *optionalMatchOp) Next() (Row, bool, error) {
	for {
		if o.pendingIdx < len(o.pending) {
			r := o.pending[o.pendingIdx]
			o.pendingIdx++
			return r, true, nil
		}
		row, ok, err := o.input.Next()
		if err != nil || !ok {
			return row, ok, err
		}
		inner := compileMatchPatterns(o.patterns, &valuesOp{rows: []Row{row}}, o.pa)
		if o.where != nil {
			inner = &filterOp{input: inner, predicate: o.where}
		}
		if err := inner.Open(o.env); err != nil {
			return nil, false, err
		}
		var matched []Row
		for {
			r, ok2, err2 := inner.Next()
			if err2 != nil {
				inner.Close()
				return nil, false, err2
			}
			if !ok2 {
				break
			}
			matched = append(matched, r)
		}
		inner.Close()
		if len(matched) == 0 {
			out := row.clone()
			for _, a := range o.aliases {
				if _, has := out[a]; !has {
					out[a] = NullValue()
				}
			}
			o.pending, o.pendingIdx = []Row{out}, 0
			continue
		}
		o.pending, o.pendingIdx = matched, 0
	}
}

// isWriteClause reports whether c can mutate the graph, determining
// whether Prepare must hand the executor a live write transaction.
func isWriteClause(c Clause) bool {
	switch c.(type) {
	case *CreateClause, *MergeClause, *SetClause, *RemoveClause, *DeleteClause, *ForeachClause:
		return true
	default:
		return false
	}
}

func queryIsWrite(q *Query) bool {
	for _, c := range q.Clauses {
		if isWriteClause(c) {
			return true
		}
	}
	return false
}
