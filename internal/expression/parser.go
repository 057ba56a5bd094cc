package expression

import (
	"fmt"
	"strconv"
)

// node is a parsed expression tree node. Nodes are immutable once
// built; a Program may therefore be shared between evaluations.
type node interface {
	isNode()
}

type numberLit struct{ val float64 }

type stringLit struct{ val string }

type boolLit struct{ val bool }

type nullLit struct{}

type offLit struct{}

type ident struct {
	name string
	pos  int
}

type unary struct {
	op    tokenKind
	right node
}

type binary struct {
	op    tokenKind
	left  node
	right node
}

type ternary struct {
	cond node
	then node
	els  node
}

type call struct {
	name string
	args []node
	pos  int
}

func (numberLit) isNode() {}
func (stringLit) isNode() {}
func (boolLit) isNode()   {}
func (nullLit) isNode()   {}
func (offLit) isNode()    {}
func (ident) isNode()     {}
func (unary) isNode()     {}
func (binary) isNode()    {}
func (ternary) isNode()   {}
func (call) isNode()      {}

// Program is a compiled expression, immutable and safe for concurrent
// evaluation.
type Program struct {
	src      string
	root     node
	includes []string
}

// Source returns the original expression text. The schedule evaluator
// uses it as the per-evaluation cache key.
func (p *Program) Source() string { return p.src }

// Includes returns the snippet names referenced by IncludeSchedule
// calls, in source order without duplicates. Because IncludeSchedule
// only accepts a string literal, this set is complete and the include
// graph can be checked for cycles at load time.
func (p *Program) Includes() []string { return p.includes }

func (p *Program) String() string { return p.src }

// Compile lexes and parses src. Errors wrap ErrSyntax and name the
// offending offset.
func Compile(src string) (*Program, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, tok.text, tok.pos)
	}
	prog := &Program{src: src, root: root}
	collectIncludes(root, &prog.includes)
	return prog, nil
}

// collectIncludes gathers IncludeSchedule string-literal arguments from
// the tree. Argument shape is enforced during parsing, so every
// IncludeSchedule call found here carries exactly one string literal.
func collectIncludes(n node, out *[]string) {
	switch t := n.(type) {
	case unary:
		collectIncludes(t.right, out)
	case binary:
		collectIncludes(t.left, out)
		collectIncludes(t.right, out)
	case ternary:
		collectIncludes(t.cond, out)
		collectIncludes(t.then, out)
		collectIncludes(t.els, out)
	case call:
		if t.name == funcIncludeSchedule {
			if lit, ok := t.args[0].(stringLit); ok && !containsString(*out, lit.val) {
				*out = append(*out, lit.val)
			}
		}
		for _, arg := range t.args {
			collectIncludes(arg, out)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// parser is a recursive-descent parser over the token stream.
// Precedence, loosest first: ternary, ||, &&, equality, comparison,
// additive, multiplicative, unary, primary.
type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.peek()
	if tok.kind != kind {
		return tok, fmt.Errorf("%w: expected %s at offset %d", ErrSyntax, what, tok.pos)
	}
	return p.next(), nil
}

func (p *parser) parseExpr() (node, error) {
	return p.parseTernary()
}

func (p *parser) parseTernary() (node, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenQuestion {
		return cond, nil
	}
	p.next()
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenColon, "':'"); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return ternary{cond: cond, then: then, els: els}, nil
}

func (p *parser) parseOr() (node, error) {
	return p.parseBinary(p.parseAnd, tokenOr)
}

func (p *parser) parseAnd() (node, error) {
	return p.parseBinary(p.parseEquality, tokenAnd)
}

func (p *parser) parseEquality() (node, error) {
	return p.parseBinary(p.parseComparison, tokenEq, tokenNeq)
}

func (p *parser) parseComparison() (node, error) {
	return p.parseBinary(p.parseAdditive, tokenLt, tokenLte, tokenGt, tokenGte)
}

func (p *parser) parseAdditive() (node, error) {
	return p.parseBinary(p.parseMultiplicative, tokenPlus, tokenMinus)
}

func (p *parser) parseMultiplicative() (node, error) {
	return p.parseBinary(p.parseUnary, tokenStar, tokenSlash, tokenPercent)
}

// parseBinary parses a left-associative chain of the given operators
// over the next-tighter precedence level.
func (p *parser) parseBinary(sub func() (node, error), ops ...tokenKind) (node, error) {
	left, err := sub()
	if err != nil {
		return nil, err
	}
	for {
		kind := p.peek().kind
		if !containsKind(ops, kind) {
			return left, nil
		}
		p.next()
		right, err := sub()
		if err != nil {
			return nil, err
		}
		left = binary{op: kind, left: left, right: right}
	}
}

func containsKind(kinds []tokenKind, k tokenKind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

func (p *parser) parseUnary() (node, error) {
	switch p.peek().kind {
	case tokenMinus, tokenBang:
		op := p.next().kind
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unary{op: op, right: right}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokenNumber:
		p.next()
		val, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed number %q at offset %d", ErrSyntax, tok.text, tok.pos)
		}
		return numberLit{val: val}, nil
	case tokenString:
		p.next()
		return stringLit{val: tok.text}, nil
	case tokenLParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokenIdent:
		return p.parseIdent()
	default:
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, tok.text, tok.pos)
	}
}

func (p *parser) parseIdent() (node, error) {
	tok := p.next()
	switch tok.text {
	case "true":
		return boolLit{val: true}, nil
	case "false":
		return boolLit{val: false}, nil
	case "null":
		return nullLit{}, nil
	case "OFF":
		return offLit{}, nil
	}
	if p.peek().kind != tokenLParen {
		return ident{name: tok.text, pos: tok.pos}, nil
	}
	p.next()
	var args []node
	if p.peek().kind != tokenRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokenComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}
	c := call{name: tok.text, args: args, pos: tok.pos}
	if c.name == funcIncludeSchedule {
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s takes exactly one argument (offset %d)", ErrSyntax, funcIncludeSchedule, tok.pos)
		}
		if _, ok := args[0].(stringLit); !ok {
			return nil, fmt.Errorf("%w: %s requires a string literal snippet name (offset %d)", ErrSyntax, funcIncludeSchedule, tok.pos)
		}
	}
	return c, nil
}
