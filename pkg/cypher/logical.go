package cypher

// LogicalPlan wraps the parsed Query together with a side-channel FIFO of
// deferred MERGE ON CREATE / ON MATCH fragments: the parser's
// AST already attaches each MERGE's items to its MergeClause node, but
// compileClause looks up each MergeClause's fragment by identity in this
// FIFO rather than reading t.OnCreate/t.OnMatch directly, so a later
// optimizer pass that clones or reorders clauses can repoint the queue
// without the physical compiler needing to know about it.
type LogicalPlan struct {
	Query      *Query
	MergeQueue []*MergeSubclauseItem
}

// MergeSubclauseItem is one dequeued MERGE's ON CREATE/ON MATCH item set,
// tagged with the clause it was drained from.
type MergeSubclauseItem struct {
	Clause   *MergeClause
	OnCreate []SetItem
	OnMatch  []SetItem
}

// BuildLogicalPlan walks the parsed query and drains into the MergeQueue,
// in clause appearance order, the fragments of every top-level MergeClause
// and of every MergeClause directly inside a top-level FOREACH. A MERGE
// nested deeper is not queued; compileClause then uses its own items.
func BuildLogicalPlan(q *Query) *LogicalPlan {
	lp := &LogicalPlan{Query: q}
	for _, c := range q.Clauses {
		if mc, ok := c.(*MergeClause); ok {
			lp.MergeQueue = append(lp.MergeQueue, &MergeSubclauseItem{
				Clause:   mc,
				OnCreate: mc.OnCreate,
				OnMatch:  mc.OnMatch,
			})
		}
		if fe, ok := c.(*ForeachClause); ok {
			drainNestedMerges(fe.SubClauses, &lp.MergeQueue)
		}
	}
	return lp
}

func drainNestedMerges(clauses []Clause, queue *[]*MergeSubclauseItem) {
	for _, c := range clauses {
		if mc, ok := c.(*MergeClause); ok {
			*queue = append(*queue, &MergeSubclauseItem{
				Clause:   mc,
				OnCreate: mc.OnCreate,
				OnMatch:  mc.OnMatch,
			})
		}
	}
}

// Optimize runs the identity-or-rewrite pass over the logical plan. The
// only rewrite performed today is constant folding of binary expressions
// over two Literal operands — a semantics-preserving simplification that
// lets the physical planner skip re-evaluating a closed-form subexpression
// on every row. Anything it cannot safely fold is returned unchanged,
// which is the documented identity-rewrite baseline.
func Optimize(lp *LogicalPlan) *LogicalPlan {
	for _, c := range lp.Query.Clauses {
		optimizeClause(c)
	}
	return lp
}

func optimizeClause(c Clause) {
	switch t := c.(type) {
	case *MatchClause:
		t.Where = foldExpr(t.Where)
	case *WithClause:
		t.Where = foldExpr(t.Where)
		for i := range t.Items {
			t.Items[i].Expr = foldExpr(t.Items[i].Expr)
		}
	case *ReturnClause:
		for i := range t.Items {
			t.Items[i].Expr = foldExpr(t.Items[i].Expr)
		}
	}
}

// foldExpr constant-folds binary arithmetic over two Literal operands.
// Anything else (including a nil expression) is returned as-is.
func foldExpr(e Expression) Expression {
	if e == nil {
		return nil
	}
	bo, ok := e.(*BinOp)
	if !ok {
		return e
	}
	bo.Left = foldExpr(bo.Left)
	bo.Right = foldExpr(bo.Right)
	ll, lok := bo.Left.(*Literal)
	rl, rok := bo.Right.(*Literal)
	if !lok || !rok {
		return bo
	}
	folded, ok := foldArithmetic(bo.Op, ll.Value, rl.Value)
	if !ok {
		return bo
	}
	return &Literal{Value: folded}
}

func foldArithmetic(op string, l, r any) (any, bool) {
	li, liok := l.(int64)
	ri, riok := r.(int64)
	if liok && riok {
		switch op {
		case "+":
			return li + ri, true
		case "-":
			return li - ri, true
		case "*":
			return li * ri, true
		}
	}
	return nil, false
}
