package cypher

import "strconv"

// Parser is a hand-written recursive-descent parser over the token
// stream produced by Lexer. It never panics: every malformed input
// reaches a *ParseError return rather than an unrecovered panic.
type Parser struct {
	toks []Token
	pos  int
}

// NewParser tokenizes src eagerly and returns a Parser positioned at the
// first token.
func NewParser(src string) *Parser {
	lex := NewLexer(src)
	var toks []Token
	for {
		t := lex.Next()
		toks = append(toks, t)
		if t.Kind == TokEOF {
			break
		}
	}
	return &Parser{toks: toks}
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) peekN(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}
func (p *Parser) advance() Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) atKeyword(kw string) bool {
	t := p.cur()
	return t.Kind == TokKeyword && t.Text == kw
}

func (p *Parser) atEOF() bool { return p.cur().Kind == TokEOF }

func (p *Parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return newParseError(p.cur().Pos, "expected %s, found %q", kw, p.cur().Text)
	}
	p.advance()
	return nil
}

func (p *Parser) expectKind(k TokenKind, what string) (Token, error) {
	if p.cur().Kind != k {
		return Token{}, newParseError(p.cur().Pos, "expected %s, found %q", what, p.cur().Text)
	}
	return p.advance(), nil
}

// ParseQuery parses one full Cypher query (no trailing garbage beyond an
// optional terminating semicolon).
func (p *Parser) ParseQuery() (*Query, error) {
	q := &Query{Parameters: map[string]any{}}
	for !p.atEOF() {
		clause, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		q.Clauses = append(q.Clauses, clause)
		if p.cur().Kind == TokSemicolon {
			p.advance()
		}
	}
	if len(q.Clauses) == 0 {
		return nil, newParseError(0, "empty query")
	}
	return q, nil
}

func (p *Parser) parseClause() (Clause, error) {
	switch {
	case p.atKeyword("MATCH"):
		return p.parseMatch(false)
	case p.atKeyword("OPTIONAL"):
		p.advance()
		if err := p.expectKeyword("MATCH"); err != nil {
			return nil, err
		}
		return p.parseMatchBody(true)
	case p.atKeyword("CREATE"):
		return p.parseCreate()
	case p.atKeyword("MERGE"):
		return p.parseMerge()
	case p.atKeyword("DELETE"):
		return p.parseDelete(false)
	case p.atKeyword("DETACH"):
		p.advance()
		if err := p.expectKeyword("DELETE"); err != nil {
			return nil, err
		}
		return p.parseDeleteBody(true)
	case p.atKeyword("SET"):
		return p.parseSet()
	case p.atKeyword("REMOVE"):
		return p.parseRemove()
	case p.atKeyword("WITH"):
		return p.parseWith()
	case p.atKeyword("RETURN"):
		return p.parseReturn()
	case p.atKeyword("UNWIND"):
		return p.parseUnwind()
	case p.atKeyword("FOREACH"):
		return p.parseForeach()
	default:
		return nil, newParseError(p.cur().Pos, "unexpected token %q, expected a clause keyword", p.cur().Text)
	}
}

func (p *Parser) parseMatch(optional bool) (Clause, error) {
	p.advance() // MATCH
	return p.parseMatchBody(optional)
}

func (p *Parser) parseMatchBody(optional bool) (Clause, error) {
	paths, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}
	c := &MatchClause{Patterns: paths, Optional: optional}
	if p.atKeyword("WHERE") {
		p.advance()
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Where = w
	}
	return c, nil
}

func (p *Parser) parseCreate() (Clause, error) {
	p.advance() // CREATE
	paths, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}
	return &CreateClause{Patterns: paths}, nil
}

func (p *Parser) parseMerge() (Clause, error) {
	p.advance() // MERGE
	path, err := p.parsePatternPath()
	if err != nil {
		return nil, err
	}
	m := &MergeClause{Pattern: path}
	for p.atKeyword("ON") {
		p.advance()
		switch {
		case p.atKeyword("CREATE"):
			p.advance()
			if err := p.expectKeyword("SET"); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			m.OnCreate = append(m.OnCreate, items...)
		case p.atKeyword("MATCH"):
			p.advance()
			if err := p.expectKeyword("SET"); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			m.OnMatch = append(m.OnMatch, items...)
		default:
			return nil, newParseError(p.cur().Pos, "expected CREATE or MATCH after ON")
		}
	}
	return m, nil
}

func (p *Parser) parseDelete(detach bool) (Clause, error) {
	p.advance() // DELETE
	return p.parseDeleteBody(detach)
}

func (p *Parser) parseDeleteBody(detach bool) (Clause, error) {
	var vars []string
	for {
		tok, err := p.expectKind(TokIdent, "variable")
		if err != nil {
			return nil, err
		}
		vars = append(vars, tok.Text)
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return &DeleteClause{Variables: vars, Detach: detach}, nil
}

func (p *Parser) parseSet() (Clause, error) {
	p.advance() // SET
	items, err := p.parseSetItems()
	if err != nil {
		return nil, err
	}
	return &SetClause{Items: items}, nil
}

func (p *Parser) parseSetItems() ([]SetItem, error) {
	var items []SetItem
	for {
		item, err := p.parseSetItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseSetItem() (SetItem, error) {
	varTok, err := p.expectKind(TokIdent, "variable")
	if err != nil {
		return SetItem{}, err
	}
	switch p.cur().Kind {
	case TokColon:
		p.advance()
		labelTok, err := p.expectKind(TokIdent, "label")
		if err != nil {
			return SetItem{}, err
		}
		return SetItem{Variable: varTok.Text, Label: labelTok.Text}, nil
	case TokDot:
		p.advance()
		fieldTok, err := p.expectKind(TokIdent, "property name")
		if err != nil {
			return SetItem{}, err
		}
		if err := p.expectOp(TokAssign); err != nil {
			return SetItem{}, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return SetItem{}, err
		}
		return SetItem{Variable: varTok.Text, Property: fieldTok.Text, Expr: expr}, nil
	case TokAssign:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return SetItem{}, err
		}
		return SetItem{Variable: varTok.Text, Expr: expr}, nil
	default:
		if p.cur().Kind == TokPlus && p.peekN(1).Kind == TokAssign {
			p.advance()
			p.advance()
			expr, err := p.parseExpr()
			if err != nil {
				return SetItem{}, err
			}
			return SetItem{Variable: varTok.Text, Expr: expr, IsMapMerge: true}, nil
		}
		return SetItem{}, newParseError(p.cur().Pos, "expected '.', ':' or '=' in SET item")
	}
}

func (p *Parser) expectOp(k TokenKind) error {
	if p.cur().Kind != k {
		return newParseError(p.cur().Pos, "unexpected token %q", p.cur().Text)
	}
	p.advance()
	return nil
}

func (p *Parser) parseRemove() (Clause, error) {
	p.advance() // REMOVE
	var items []RemoveItem
	for {
		varTok, err := p.expectKind(TokIdent, "variable")
		if err != nil {
			return nil, err
		}
		item := RemoveItem{Variable: varTok.Text}
		switch p.cur().Kind {
		case TokColon:
			p.advance()
			labelTok, err := p.expectKind(TokIdent, "label")
			if err != nil {
				return nil, err
			}
			item.Label = labelTok.Text
		case TokDot:
			p.advance()
			fieldTok, err := p.expectKind(TokIdent, "property name")
			if err != nil {
				return nil, err
			}
			item.Property = fieldTok.Text
		default:
			return nil, newParseError(p.cur().Pos, "expected '.' or ':' in REMOVE item")
		}
		items = append(items, item)
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return &RemoveClause{Items: items}, nil
}

func (p *Parser) parseWith() (Clause, error) {
	p.advance() // WITH
	c := &WithClause{}
	if p.atKeyword("DISTINCT") {
		p.advance()
		c.Distinct = true
	}
	items, err := p.parseProjectionItems()
	if err != nil {
		return nil, err
	}
	c.Items = items
	if err := p.parseWhereOrderSkipLimit(&c.Where, &c.OrderBy, &c.Skip, &c.Limit); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Parser) parseReturn() (Clause, error) {
	p.advance() // RETURN
	c := &ReturnClause{}
	if p.atKeyword("DISTINCT") {
		p.advance()
		c.Distinct = true
	}
	items, err := p.parseProjectionItems()
	if err != nil {
		return nil, err
	}
	c.Items = items
	if err := p.parseWhereOrderSkipLimit(nil, &c.OrderBy, &c.Skip, &c.Limit); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Parser) parseWhereOrderSkipLimit(where *Expression, order *[]OrderItem, skip, limit *Expression) error {
	if where != nil && p.atKeyword("WHERE") {
		p.advance()
		w, err := p.parseExpr()
		if err != nil {
			return err
		}
		*where = w
	}
	if p.atKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return err
			}
			desc := false
			if p.atKeyword("DESC") {
				p.advance()
				desc = true
			} else if p.atKeyword("ASC") {
				p.advance()
			}
			*order = append(*order, OrderItem{Expr: e, Descending: desc})
			if p.cur().Kind == TokComma {
				p.advance()
				continue
			}
			break
		}
	}
	if p.atKeyword("SKIP") {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return err
		}
		*skip = e
	}
	if p.atKeyword("LIMIT") {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return err
		}
		*limit = e
	}
	return nil
}

func (p *Parser) parseProjectionItems() ([]ProjectionItem, error) {
	var items []ProjectionItem
	for {
		if p.cur().Kind == TokStar {
			p.advance()
			items = append(items, ProjectionItem{Star: true})
		} else {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			alias := ""
			if p.atKeyword("AS") {
				p.advance()
				tok, err := p.expectKind(TokIdent, "alias")
				if err != nil {
					return nil, err
				}
				alias = tok.Text
			}
			items = append(items, ProjectionItem{Expr: e, Alias: alias})
		}
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseUnwind() (Clause, error) {
	p.advance() // UNWIND
	list, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
	tok, err := p.expectKind(TokIdent, "variable")
	if err != nil {
		return nil, err
	}
	return &UnwindClause{List: list, Variable: tok.Text}, nil
}

func (p *Parser) parseForeach() (Clause, error) {
	p.advance() // FOREACH
	if _, err := p.expectKind(TokLParen, "("); err != nil {
		return nil, err
	}
	varTok, err := p.expectKind(TokIdent, "variable")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("IN"); err != nil {
		return nil, err
	}
	list, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind != TokPipe {
		return nil, newParseError(p.cur().Pos, "expected '|' in FOREACH")
	}
	p.advance()
	var subs []Clause
	for p.cur().Kind != TokRParen && !p.atEOF() {
		c, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		subs = append(subs, c)
	}
	if _, err := p.expectKind(TokRParen, ")"); err != nil {
		return nil, err
	}
	return &ForeachClause{Variable: varTok.Text, List: list, SubClauses: subs}, nil
}

// ---- Patterns ----

func (p *Parser) parsePatternList() ([]*PatternPath, error) {
	var paths []*PatternPath
	for {
		path, err := p.parsePatternPath()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return paths, nil
}

func (p *Parser) parsePatternPath() (*PatternPath, error) {
	path := &PatternPath{}
	if p.cur().Kind == TokIdent && p.peekN(1).Kind == TokAssign {
		path.PathVariable = p.advance().Text
		p.advance() // '='
	}
	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	path.Nodes = append(path.Nodes, node)
	for p.cur().Kind == TokDash || p.cur().Kind == TokArrowLeft {
		rel, err := p.parseRelPattern()
		if err != nil {
			return nil, err
		}
		path.Rels = append(path.Rels, rel)
		node, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		path.Nodes = append(path.Nodes, node)
	}
	return path, nil
}

func (p *Parser) parseNodePattern() (*NodePattern, error) {
	if _, err := p.expectKind(TokLParen, "("); err != nil {
		return nil, err
	}
	n := &NodePattern{Properties: map[string]Expression{}}
	if p.cur().Kind == TokIdent {
		n.Variable = p.advance().Text
	}
	for p.cur().Kind == TokColon {
		p.advance()
		tok, err := p.expectKind(TokIdent, "label")
		if err != nil {
			return nil, err
		}
		n.Labels = append(n.Labels, tok.Text)
	}
	if p.cur().Kind == TokLBrace {
		props, err := p.parseMapLiteralEntries()
		if err != nil {
			return nil, err
		}
		n.Properties = props
	}
	if _, err := p.expectKind(TokRParen, ")"); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseRelPattern() (*RelPattern, error) {
	r := &RelPattern{Direction: DirEither, Properties: map[string]Expression{}, MaxHops: -1}
	leftArrow := false
	if p.cur().Kind == TokArrowLeft {
		p.advance()
		leftArrow = true
	} else {
		if _, err := p.expectKind(TokDash, "-"); err != nil {
			return nil, err
		}
	}
	if p.cur().Kind == TokLBracket {
		p.advance()
		if p.cur().Kind == TokIdent {
			r.Variable = p.advance().Text
		}
		for p.cur().Kind == TokColon {
			p.advance()
			tok, err := p.expectKind(TokIdent, "relationship type")
			if err != nil {
				return nil, err
			}
			r.Types = append(r.Types, tok.Text)
			for p.cur().Kind == TokPipe {
				p.advance()
				if p.cur().Kind == TokColon {
					p.advance()
				}
				tok, err := p.expectKind(TokIdent, "relationship type")
				if err != nil {
					return nil, err
				}
				r.Types = append(r.Types, tok.Text)
			}
		}
		if p.cur().Kind == TokStar {
			p.advance()
			r.VarLength = true
			r.MinHops = 1
			if p.cur().Kind == TokInt {
				n, _ := strconv.Atoi(p.advance().Text)
				r.MinHops = n
				r.MaxHops = n
			}
			if p.cur().Kind == TokDotDot {
				p.advance()
				if p.cur().Kind == TokInt {
					n, _ := strconv.Atoi(p.advance().Text)
					r.MaxHops = n
				} else {
					r.MaxHops = -1
				}
			}
		}
		if p.cur().Kind == TokLBrace {
			props, err := p.parseMapLiteralEntries()
			if err != nil {
				return nil, err
			}
			r.Properties = props
		}
		if _, err := p.expectKind(TokRBracket, "]"); err != nil {
			return nil, err
		}
	}
	if p.cur().Kind == TokArrowRight {
		p.advance()
		r.Direction = DirOut
	} else if leftArrow {
		if _, err := p.expectKind(TokDash, "-"); err != nil {
			return nil, err
		}
		r.Direction = DirIn
	} else {
		if _, err := p.expectKind(TokDash, "-"); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (p *Parser) parseMapLiteralEntries() (map[string]Expression, error) {
	if _, err := p.expectKind(TokLBrace, "{"); err != nil {
		return nil, err
	}
	m := map[string]Expression{}
	for p.cur().Kind != TokRBrace {
		keyTok, err := p.expectKind(TokIdent, "map key")
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(TokColon); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m[keyTok.Text] = v
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectKind(TokRBrace, "}"); err != nil {
		return nil, err
	}
	return m, nil
}
