// Package parser turns ChatFlow script text into an ast.Script.
//
// The parser is a single-pass recursive descent over a pre-lexed token
// slice. It performs no semantic validation: unknown flows, tributaries and
// variables are only detected at run time.
package parser

import (
	"strconv"

	"github.com/rendis/chatflow/pkg/ast"
	"github.com/rendis/chatflow/pkg/schema"
)

// Parser holds the token stream of one parse.
type Parser struct {
	tokens []Token
	pos    int
}

// Parse parses a complete script. On failure it returns a PARSE_ERROR
// *schema.ChatflowError positioned at the offending token and no AST.
func Parse(src string) (*ast.Script, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: tokens}
	return p.parseScript()
}

// MustParse is like Parse but panics on error. Intended for tests and
// scripts embedded in Go source.
func MustParse(src string) *ast.Script {
	script, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return script
}

// --- Token helpers ---

func (p *Parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != EOF {
		p.pos++
	}
	return tok
}

func (p *Parser) accept(typ TokenType) bool {
	if p.peek().Type == typ {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(typ TokenType, what string) (Token, error) {
	tok := p.peek()
	if tok.Type != typ {
		return tok, p.errorf(tok, "expected %s, found %s", what, tok)
	}
	return p.next(), nil
}

func (p *Parser) errorf(tok Token, format string, args ...any) error {
	return schema.NewErrorf(schema.ErrCodeParse, format, args...).
		WithPos(tok.Line, tok.Column).
		WithDetails(map[string]any{"token": tok.Type.String(), "value": tok.Value})
}

func pos(tok Token) ast.Pos {
	return ast.Pos{Line: tok.Line, Column: tok.Column}
}

// --- Structure ---

func (p *Parser) parseScript() (*ast.Script, error) {
	script := &ast.Script{}
	for {
		flow, err := p.parseFlow()
		if err != nil {
			return nil, err
		}
		script.Flows = append(script.Flows, flow)
		if p.peek().Type == EOF {
			return script, nil
		}
	}
}

func (p *Parser) parseFlow() (*ast.Flow, error) {
	kw, err := p.expect(FLOW, `"flow"`)
	if err != nil {
		return nil, err
	}
	name, err := p.expect(IDENT, "flow name")
	if err != nil {
		return nil, err
	}
	body, err := p.parseBraced()
	if err != nil {
		return nil, err
	}
	return &ast.Flow{Name: name.Value, Body: body, Pos: pos(kw)}, nil
}

// parseBraced parses `{ block }`.
func (p *Parser) parseBraced() (*ast.Block, error) {
	open, err := p.expect(LBRACE, `"{"`)
	if err != nil {
		return nil, err
	}
	block := &ast.Block{Pos: pos(open)}
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.errorf(p.peek(), "unclosed block opened at %d:%d", open.Line, open.Column)
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Statements = append(block.Statements, stmt)
	}
	p.next()
	return block, nil
}

// --- Statements ---

func (p *Parser) parseStatement() (ast.Statement, error) {
	tok := p.peek()
	switch tok.Type {
	case IF:
		return p.parseIf()
	case WHILE:
		p.next()
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBraced()
		if err != nil {
			return nil, err
		}
		return &ast.While{Cond: cond, Body: body, Pos: pos(tok)}, nil
	case SPEAK:
		return p.parseSpeak()
	case ENGAGE:
		p.next()
		name, err := p.expect(IDENT, "flow name")
		if err != nil {
			return nil, err
		}
		return &ast.Engage{Flow: name.Value, Pos: pos(tok)}, nil
	case HANDOVER:
		p.next()
		name, err := p.expect(IDENT, "tributary name")
		if err != nil {
			return nil, err
		}
		return &ast.Handover{Tributary: name.Value, Pos: pos(tok)}, nil
	case END:
		p.next()
		return &ast.End{Pos: pos(tok)}, nil
	case LISTEN:
		return p.parseListen()
	case ASSIGN:
		p.next()
		return p.parseAssign(tok)
	case STORE:
		p.next()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &ast.Store{Value: v, Pos: pos(tok)}, nil
	case FETCH:
		p.next()
		name, err := p.expect(IDENT, "variable name")
		if err != nil {
			return nil, err
		}
		return &ast.Fetch{Var: name.Value, Pos: pos(tok)}, nil
	case LBRACE:
		return p.parseBraced()
	case IDENT, STRING, INT, MINUS, LPAREN, TIMEOUT:
		return p.parseAssign(tok)
	default:
		return nil, p.errorf(tok, "expected a statement, found %s", tok)
	}
}

func (p *Parser) parseIf() (*ast.If, error) {
	kw := p.next()
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBraced()
	if err != nil {
		return nil, err
	}
	stmt := &ast.If{Cond: cond, Then: then, Pos: pos(kw)}
	if !p.accept(ELSE) {
		return stmt, nil
	}
	switch p.peek().Type {
	case IF:
		stmt.ElseIf, err = p.parseIf()
	case LBRACE:
		stmt.ElseBlock, err = p.parseBraced()
	default:
		err = p.errorf(p.peek(), `expected "{" or "if" after "else", found %s`, p.peek())
	}
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseSpeak() (*ast.Speak, error) {
	kw := p.next()
	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	stmt := &ast.Speak{Parts: []ast.Value{first}, Pos: pos(kw)}
	for p.accept(PLUS) {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		stmt.Parts = append(stmt.Parts, v)
	}
	return stmt, nil
}

func (p *Parser) parseListen() (*ast.Listen, error) {
	kw := p.next()
	if _, err := p.expect(FOR, `"for"`); err != nil {
		return nil, err
	}
	name, err := p.expect(IDENT, "variable name")
	if err != nil {
		return nil, err
	}
	stmt := &ast.Listen{Var: name.Value, Pos: pos(kw)}
	if p.accept(FOR) {
		amount, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		unitTok := p.peek()
		unit, ok := timeUnit(unitTok)
		if !ok {
			return nil, p.errorf(unitTok, `expected time unit "s", "m" or "h", found %s`, unitTok)
		}
		p.next()
		stmt.Timeout = &ast.Duration{Amount: amount, Unit: unit}
	}
	return stmt, nil
}

func timeUnit(tok Token) (ast.TimeUnit, bool) {
	if tok.Type != IDENT {
		return 0, false
	}
	switch tok.Value {
	case "s":
		return ast.Seconds, true
	case "m":
		return ast.Minutes, true
	case "h":
		return ast.Hours, true
	}
	return 0, false
}

func (p *Parser) parseAssign(start Token) (*ast.Assign, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TO, `"to"`); err != nil {
		return nil, err
	}
	name, err := p.expect(IDENT, "variable name")
	if err != nil {
		return nil, err
	}
	return &ast.Assign{Expr: expr, Var: name.Value, Pos: pos(start)}, nil
}

// --- Conditions ---

func (p *Parser) parseCondition() (ast.Condition, error) {
	tok := p.peek()
	switch tok.Type {
	case NOT:
		p.next()
		inner, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		return &ast.Not{Cond: inner, Pos: pos(tok)}, nil
	case TRUE, FALSE:
		p.next()
		return &ast.Bool{Value: tok.Type == TRUE, Pos: pos(tok)}, nil
	case TIMEOUT:
		if !continuesExpr(p.peekAt(1).Type) {
			p.next()
			return &ast.Timeout{Pos: pos(tok)}, nil
		}
	}

	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	op := p.peek()
	switch op.Type {
	case MATCHES:
		p.next()
		pattern, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		cond := &ast.Match{Subject: left, Pattern: pattern, Pos: pos(tok)}
		if p.accept(AS) {
			name, err := p.expect(IDENT, "variable name")
			if err != nil {
				return nil, err
			}
			cond.Bind = name.Value
		}
		return cond, nil
	case EQUALS:
		p.next()
		return p.finishCompare(ast.Equals, left, tok)
	case LARGER, LESS:
		p.next()
		if _, err := p.expect(THAN, `"than"`); err != nil {
			return nil, err
		}
		cmp := ast.Larger
		if op.Type == LESS {
			cmp = ast.Less
		}
		return p.finishCompare(cmp, left, tok)
	default:
		return nil, p.errorf(op, `expected "matches", "equals", "larger than" or "less than", found %s`, op)
	}
}

func (p *Parser) finishCompare(op ast.CompareOp, left ast.Expr, start Token) (ast.Condition, error) {
	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.Compare{Op: op, Left: left, Right: right, Pos: pos(start)}, nil
}

// continuesExpr reports whether a token following a value makes it part of
// a larger expression or comparison.
func continuesExpr(t TokenType) bool {
	switch t {
	case PLUS, MINUS, STAR, SLASH, MATCHES, EQUALS, LARGER, LESS:
		return true
	}
	return false
}

// --- Expressions ---

func (p *Parser) parseExpr() (ast.Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		var op ast.Operator
		switch tok.Type {
		case PLUS:
			op = ast.Add
		case MINUS:
			op = ast.Sub
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: op, Left: left, Right: right, Pos: pos(tok)}
	}
}

func (p *Parser) parseTerm() (ast.Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		var op ast.Operator
		switch tok.Type {
		case STAR:
			op = ast.Mul
		case SLASH:
			op = ast.Div
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: op, Left: left, Right: right, Pos: pos(tok)}
	}
}

func (p *Parser) parseFactor() (ast.Expr, error) {
	if open := p.peek(); open.Type == LPAREN {
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN, `")"`); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseValue()
}

func (p *Parser) parseValue() (ast.Value, error) {
	tok := p.peek()
	switch tok.Type {
	case TIMEOUT:
		p.next()
		return &ast.TimeoutValue{Pos: pos(tok)}, nil
	case STRING:
		p.next()
		return &ast.Literal{Value: tok.Value, Pos: pos(tok)}, nil
	case INT:
		p.next()
		return p.intLiteral(tok, tok.Value)
	case MINUS:
		// A sign binds only to a digit that follows it directly.
		digits := p.peekAt(1)
		if digits.Type != INT || digits.Line != tok.Line || digits.Column != tok.Column+1 {
			return nil, p.errorf(tok, "expected a value, found %s", tok)
		}
		p.next()
		p.next()
		return p.intLiteral(tok, "-"+digits.Value)
	case IDENT:
		p.next()
		return &ast.Variable{Name: tok.Value, Pos: pos(tok)}, nil
	default:
		return nil, p.errorf(tok, "expected a value, found %s", tok)
	}
}

func (p *Parser) intLiteral(tok Token, text string) (ast.Value, error) {
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, p.errorf(tok, "integer literal %s out of range", text)
	}
	return &ast.Literal{Value: n, Pos: pos(tok)}, nil
}
