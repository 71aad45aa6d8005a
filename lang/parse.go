package lang

import (
	"log/slog"
)

// parser holds the state of parsing the code of a single tag.
type parser struct {
	loc  *Location
	toks []token
	pos  int
}

func newParser(loc *Location) (*parser, error) {
	toks, err := tokenize(loc)
	if err != nil {
		return nil, err
	}

	return &parser{loc: loc, toks: toks}, nil
}

// parseExpression parses the code of a print, printx or return tag.
func parseExpression(loc *Location) (Node, error) {
	return parseEntry(loc, "expression required", (*parser).parseExpr)
}

// parseForHeader parses "target in container".
func parseForHeader(loc *Location) (*For, error) {
	n, err := parseEntry(loc, "loop expression required", func(p *parser) (Node, error) {
		target, err := p.parseTargetList()
		if err != nil {
			return nil, err
		}

		if err := p.expectKeyword("in"); err != nil {
			return nil, err
		}

		container, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		return &For{nodeBase: p.base(), Target: target, Container: container}, nil
	})
	if err != nil {
		return nil, err
	}

	return n.(*For), nil //nolint:forcetypeassert
}

// parseStatement parses the code of a code tag.
func parseStatement(loc *Location) (Node, error) {
	return parseEntry(loc, "statement required", (*parser).parseStmt)
}

// parseRenderCall parses the code of a render tag.
func parseRenderCall(loc *Location) (Node, error) {
	return parseEntry(loc, "render statement required", func(p *parser) (Node, error) {
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		switch n := n.(type) {
		case *CallFunc:
			obj := &Var{nodeBase: n.nodeBase, Name: n.Name}

			return &Render{nodeBase: n.nodeBase, Obj: obj, Args: n.Args}, nil
		case *CallMeth:
			obj := &GetAttr{nodeBase: n.nodeBase, Obj: n.Obj, Name: n.Name}

			return &Render{nodeBase: n.nodeBase, Obj: obj, Args: n.Args}, nil
		case *Call:
			return &Render{nodeBase: n.nodeBase, Obj: n.Obj, Args: n.Args}, nil
		default:
			return nil, ErrSyntax.Wrapf("render requires a call, got %s", n.Kind())
		}
	})
}

// parseReturn parses the code of a return tag, which may be empty.
func parseReturn(loc *Location) (Node, error) {
	if loc.CodeStart == loc.CodeEnd {
		return &Return{nodeBase: nodeBase{loc}}, nil
	}

	value, err := parseExpression(loc)
	if err != nil {
		return nil, err
	}

	return &Return{nodeBase: nodeBase{loc}, Value: value}, nil
}

func parseEntry(
	loc *Location,
	empty string,
	rule func(*parser) (Node, error),
) (Node, error) {
	p, err := newParser(loc)
	if err != nil {
		return nil, err
	}

	if len(p.toks) == 0 {
		return nil, ErrSyntax.Wrapf("%s", empty)
	}

	n, err := rule(p)
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.kind != tokenEnd {
		return nil, p.unexpected(tok)
	}

	return n, nil
}

func (p *parser) base() nodeBase { return nodeBase{p.loc} }

func (p *parser) peek() token {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}

	return token{kind: tokenEnd, start: p.loc.CodeEnd, end: p.loc.CodeEnd}
}

func (p *parser) peekAt(n int) token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}

	return token{kind: tokenEnd}
}

func (p *parser) next() token {
	tok := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}

	return tok
}

func (p *parser) isPunct(s string) bool {
	tok := p.peek()

	return tok.kind == tokenPunct && tok.text == s
}

func (p *parser) isKeyword(s string) bool {
	tok := p.peek()

	return tok.kind == tokenKeyword && tok.text == s
}

func (p *parser) acceptPunct(s string) bool {
	if p.isPunct(s) {
		p.pos++

		return true
	}

	return false
}

func (p *parser) acceptKeyword(s string) bool {
	if p.isKeyword(s) {
		p.pos++

		return true
	}

	return false
}

func (p *parser) expectPunct(s string) error {
	if !p.acceptPunct(s) {
		return p.unexpected(p.peek())
	}

	return nil
}

func (p *parser) expectKeyword(s string) error {
	if !p.acceptKeyword(s) {
		return p.unexpected(p.peek())
	}

	return nil
}

func (p *parser) unexpected(tok token) error {
	return ErrSyntax.Wrapf("unexpected %s at %d (%s)",
		tok, tok.start, positionAt(p.loc.Source, tok.start)).
		With(slog.Int("offset", tok.start))
}

// parseStmt parses "del name", "target = expr" or "name op= expr".
func (p *parser) parseStmt() (Node, error) {
	if p.acceptKeyword("del") {
		tok := p.next()
		if tok.kind != tokenName {
			return nil, p.unexpected(tok)
		}

		return &DelVar{nodeBase: p.base(), Name: tok.text}, nil
	}

	if p.peek().kind == tokenName {
		if op, ok := augmented[p.peekAt(1).text]; ok && p.peekAt(1).kind == tokenPunct {
			name := p.next().text
			p.next()

			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}

			return &ChangeVar{
				nodeBase: p.base(),
				Op:       op,
				Target:   &Var{nodeBase: p.base(), Name: name},
				Value:    value,
			}, nil
		}
	}

	// A bare call runs for its effect, e.g. "t.render(x=1)".
	start := p.pos
	if expr, err := p.parseExpr(); err == nil && p.peek().kind == tokenEnd {
		switch expr.(type) {
		case *CallFunc, *CallMeth, *Call:
			return expr, nil
		}
	}

	p.pos = start

	target, err := p.parseTargetList()
	if err != nil {
		return nil, err
	}

	if err := p.expectPunct("="); err != nil {
		return nil, err
	}

	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	return &ChangeVar{nodeBase: p.base(), Op: KindStoreVar, Target: target, Value: value}, nil
}

var augmented = map[string]Kind{
	"+=":  KindAddVar,
	"-=":  KindSubVar,
	"*=":  KindMulVar,
	"/=":  KindTrueDivVar,
	"//=": KindFloorDivVar,
	"%=":  KindModVar,
}

// parseTargetList parses one target or a comma separated list of targets,
// which unpacks.
func (p *parser) parseTargetList() (Node, error) {
	first, err := p.parseTarget()
	if err != nil {
		return nil, err
	}

	if !p.isPunct(",") {
		return first, nil
	}

	items := []Node{first}

	for p.acceptPunct(",") {
		if tok := p.peek(); tok.kind != tokenName && !(tok.kind == tokenPunct && tok.text == "(") {
			break
		}

		item, err := p.parseTarget()
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return &Unpack{nodeBase: p.base(), Items: items}, nil
}

// parseTarget parses a name or a parenthesized target list.
func (p *parser) parseTarget() (Node, error) {
	tok := p.next()

	switch {
	case tok.kind == tokenName:
		return &Var{nodeBase: p.base(), Name: tok.text}, nil
	case tok.kind == tokenPunct && tok.text == "(":
		inner, err := p.parseTargetList()
		if err != nil {
			return nil, err
		}

		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}

		return inner, nil
	default:
		return nil, p.unexpected(tok)
	}
}

func (p *parser) parseExpr() (Node, error) { return p.parseOr() }

func (p *parser) parseOr() (Node, error) {
	return p.parseBinaryLevel(p.parseAnd, func() (Kind, bool) {
		return KindOr, p.acceptKeyword("or")
	})
}

func (p *parser) parseAnd() (Node, error) {
	return p.parseBinaryLevel(p.parseNot, func() (Kind, bool) {
		return KindAnd, p.acceptKeyword("and")
	})
}

func (p *parser) parseNot() (Node, error) {
	if p.acceptKeyword("not") {
		obj, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return p.unary(KindNot, obj)
	}

	return p.parseContains()
}

func (p *parser) parseContains() (Node, error) {
	return p.parseBinaryLevel(p.parseCompare, func() (Kind, bool) {
		if p.acceptKeyword("in") {
			return KindContains, true
		}

		if p.isKeyword("not") && p.peekAt(1).kind == tokenKeyword && p.peekAt(1).text == "in" {
			p.pos += 2

			return KindNotContains, true
		}

		return 0, false
	})
}

var comparisons = map[string]Kind{
	"==": KindEQ, "!=": KindNE, "<": KindLT, "<=": KindLE, ">": KindGT, ">=": KindGE,
}

func (p *parser) parseCompare() (Node, error) {
	return p.parseBinaryLevel(p.parseAdd, p.punctOp(comparisons))
}

var additive = map[string]Kind{"+": KindAdd, "-": KindSub}

func (p *parser) parseAdd() (Node, error) {
	return p.parseBinaryLevel(p.parseMul, p.punctOp(additive))
}

var multiplicative = map[string]Kind{
	"*": KindMul, "/": KindTrueDiv, "//": KindFloorDiv, "%": KindMod,
}

func (p *parser) parseMul() (Node, error) {
	return p.parseBinaryLevel(p.parseNeg, p.punctOp(multiplicative))
}

func (p *parser) punctOp(ops map[string]Kind) func() (Kind, bool) {
	return func() (Kind, bool) {
		tok := p.peek()
		if tok.kind != tokenPunct {
			return 0, false
		}

		op, ok := ops[tok.text]
		if ok {
			p.pos++
		}

		return op, ok
	}
}

// parseBinaryLevel parses a left-associative chain of operands joined by the
// operators that match reports.
func (p *parser) parseBinaryLevel(
	operand func() (Node, error),
	match func() (Kind, bool),
) (Node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}

	for {
		op, ok := match()
		if !ok {
			return left, nil
		}

		right, err := operand()
		if err != nil {
			return nil, err
		}

		left, err = p.binary(op, left, right)
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseNeg() (Node, error) {
	if p.acceptPunct("-") {
		obj, err := p.parseNeg()
		if err != nil {
			return nil, err
		}

		return p.unary(KindNeg, obj)
	}

	return p.parsePostfix()
}

// unary builds a unary node, folding constant operands.
func (p *parser) unary(op Kind, obj Node) (Node, error) {
	if c, ok := obj.(*Const); ok {
		v, err := unaryOp(op, c.Value)
		if err != nil {
			return nil, err
		}

		return p.folded(v, &Unary{nodeBase: p.base(), Op: op, Obj: obj}), nil
	}

	return &Unary{nodeBase: p.base(), Op: op, Obj: obj}, nil
}

// binary builds a binary node, folding constant operands.
func (p *parser) binary(op Kind, left, right Node) (Node, error) {
	n := &Binary{nodeBase: p.base(), Op: op, Left: left, Right: right}

	l, okL := left.(*Const)
	r, okR := right.(*Const)

	if !okL || !okR {
		return n, nil
	}

	v, err := binaryOp(op, l.Value, r.Value)
	if err != nil {
		return nil, err
	}

	return p.folded(v, n), nil
}

// folded returns a constant for v, or n when v cannot be a constant.
func (p *parser) folded(v any, n Node) Node {
	switch v.(type) {
	case *Undefined, *List:
		return n
	}

	return &Const{nodeBase: p.base(), Value: v}
}

func (p *parser) parsePostfix() (Node, error) {
	n, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.acceptPunct("."):
			tok := p.next()
			if tok.kind != tokenName && tok.kind != tokenKeyword {
				return nil, p.unexpected(tok)
			}

			if p.acceptPunct("(") {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}

				n = &CallMeth{nodeBase: p.base(), Obj: n, Name: tok.text, Args: args}
			} else {
				n = &GetAttr{nodeBase: p.base(), Obj: n, Name: tok.text}
			}

		case p.acceptPunct("["):
			n, err = p.parseSubscript(n)
			if err != nil {
				return nil, err
			}

		case p.acceptPunct("("):
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}

			if v, ok := n.(*Var); ok {
				n = &CallFunc{nodeBase: p.base(), Name: v.Name, Args: args}
			} else {
				n = &Call{nodeBase: p.base(), Obj: n, Args: args}
			}

		default:
			return n, nil
		}
	}
}

// parseSubscript parses the rest of "obj[index]" or "obj[start:stop]".
func (p *parser) parseSubscript(obj Node) (Node, error) {
	var start, stop Node

	if !p.isPunct(":") {
		index, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		if p.acceptPunct("]") {
			return p.binary(KindGetItem, obj, index)
		}

		start = index
	}

	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}

	if !p.isPunct("]") {
		var err error

		stop, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}

	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}

	n := &GetSlice{nodeBase: p.base(), Obj: obj, Start: start, Stop: stop}

	c, ok := obj.(*Const)
	if !ok {
		return n, nil
	}

	bounds := [2]any{}

	for i, b := range []Node{start, stop} {
		switch b := b.(type) {
		case nil:
		case *Const:
			bounds[i] = b.Value
		default:
			return n, nil
		}
	}

	v, err := getSlice(c.Value, bounds[0], bounds[1])
	if err != nil {
		return nil, err
	}

	return p.folded(v, n), nil
}

// Positional arguments come first and "**" comes last. Keyword arguments
// and a single "*" may be mixed in between.
const (
	argPositional = iota
	argKeyword
	argStar
	argStarStar
)

// argAllowed reports whether an argument of kind may follow the arguments
// seen so far, whose latest kind is last.
func argAllowed(kind, last int, star bool) bool {
	switch kind {
	case argPositional:
		return last == argPositional
	case argKeyword:
		return last != argStarStar
	case argStar:
		return !star && last != argStarStar
	default:
		return last != argStarStar
	}
}

// parseArgs parses call arguments after the opening parenthesis.
func (p *parser) parseArgs() ([]Arg, error) {
	var (
		args []Arg
		star bool
	)

	last := argPositional

	for !p.acceptPunct(")") {
		var (
			arg  Arg
			kind int
		)

		tok := p.peek()

		switch {
		case p.acceptPunct("**"):
			arg.Name, kind = "**", argStarStar
		case p.acceptPunct("*"):
			arg.Name, kind = "*", argStar
		case tok.kind == tokenName && p.peekAt(1).kind == tokenPunct && p.peekAt(1).text == "=":
			arg.Name, kind = p.next().text, argKeyword
			p.next()
		default:
			kind = argPositional
		}

		if !argAllowed(kind, last, star) {
			return nil, p.unexpected(tok)
		}

		last, star = kind, star || kind == argStar

		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		// A generator expression may be the only argument.
		if kind == argPositional && len(args) == 0 && p.isKeyword("for") {
			c, err := p.parseComprehension(value)
			if err != nil {
				return nil, err
			}

			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}

			return []Arg{{Value: &GenExpr{
				nodeBase:  p.base(),
				Item:      c.item,
				Target:    c.target,
				Container: c.container,
				Condition: c.condition,
			}}}, nil
		}

		arg.Value = value
		args = append(args, arg)

		if !p.acceptPunct(",") {
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}

			break
		}
	}

	return args, nil
}

type comprehension struct {
	item, target, container, condition Node
}

// parseComprehension parses "for target in container [if condition]" after
// the item expression.
func (p *parser) parseComprehension(item Node) (comprehension, error) {
	c := comprehension{item: item}

	if err := p.expectKeyword("for"); err != nil {
		return c, err
	}

	var err error

	if c.target, err = p.parseTargetList(); err != nil {
		return c, err
	}

	if err = p.expectKeyword("in"); err != nil {
		return c, err
	}

	if c.container, err = p.parseOr(); err != nil {
		return c, err
	}

	if p.acceptKeyword("if") {
		if c.condition, err = p.parseExpr(); err != nil {
			return c, err
		}
	}

	return c, nil
}

func (p *parser) parseAtom() (Node, error) {
	tok := p.next()

	switch tok.kind {
	case tokenConst:
		return &Const{nodeBase: p.base(), Value: tok.value}, nil
	case tokenName:
		return &Var{nodeBase: p.base(), Name: tok.text}, nil
	case tokenPunct:
		switch tok.text {
		case "(":
			return p.parseParen()
		case "[":
			return p.parseList()
		case "{":
			return p.parseDict()
		}
	}

	return nil, p.unexpected(tok)
}

func (p *parser) parseParen() (Node, error) {
	inner, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.isKeyword("for") {
		c, err := p.parseComprehension(inner)
		if err != nil {
			return nil, err
		}

		inner = &GenExpr{
			nodeBase:  p.base(),
			Item:      c.item,
			Target:    c.target,
			Container: c.container,
			Condition: c.condition,
		}
	}

	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	return inner, nil
}

func (p *parser) parseList() (Node, error) {
	if p.acceptPunct("]") {
		return &ListExpr{nodeBase: p.base()}, nil
	}

	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.isKeyword("for") {
		c, err := p.parseComprehension(first)
		if err != nil {
			return nil, err
		}

		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}

		return &ListComp{
			nodeBase:  p.base(),
			Item:      c.item,
			Target:    c.target,
			Container: c.container,
			Condition: c.condition,
		}, nil
	}

	items := []Node{first}

	for p.acceptPunct(",") {
		if p.isPunct("]") {
			break
		}

		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}

	return &ListExpr{nodeBase: p.base(), Items: items}, nil
}

func (p *parser) parseDictItem() (DictItem, error) {
	if p.acceptPunct("**") {
		value, err := p.parseExpr()

		return DictItem{Value: value}, err
	}

	key, err := p.parseExpr()
	if err != nil {
		return DictItem{}, err
	}

	if err := p.expectPunct(":"); err != nil {
		return DictItem{}, err
	}

	value, err := p.parseExpr()

	return DictItem{Key: key, Value: value}, err
}

func (p *parser) parseDict() (Node, error) {
	if p.acceptPunct("}") {
		return &DictExpr{nodeBase: p.base()}, nil
	}

	first, err := p.parseDictItem()
	if err != nil {
		return nil, err
	}

	if first.Key != nil && p.isKeyword("for") {
		c, err := p.parseComprehension(first.Value)
		if err != nil {
			return nil, err
		}

		if err := p.expectPunct("}"); err != nil {
			return nil, err
		}

		return &DictComp{
			nodeBase:  p.base(),
			Key:       first.Key,
			Value:     c.item,
			Target:    c.target,
			Container: c.container,
			Condition: c.condition,
		}, nil
	}

	items := []DictItem{first}

	for p.acceptPunct(",") {
		if p.isPunct("}") {
			break
		}

		item, err := p.parseDictItem()
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}

	return &DictExpr{nodeBase: p.base(), Items: items}, nil
}
