package parser

import (
	"github.com/rendis/chatflow/pkg/schema"
)

// Lexer turns ChatFlow source into tokens. Whitespace, newlines and
// `//` or `#` line comments are skipped.
type Lexer struct {
	src    string
	pos    int
	line   int
	column int
}

// NewLexer creates a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, column: 1}
}

// Tokenize lexes the whole input. The returned slice always ends with EOF.
func Tokenize(src string) ([]Token, error) {
	lx := NewLexer(src)
	var tokens []Token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}

// Next returns the next token.
func (lx *Lexer) Next() (Token, error) {
	lx.skipTrivia()

	if lx.pos >= len(lx.src) {
		return Token{Type: EOF, Line: lx.line, Column: lx.column}, nil
	}

	line, col := lx.line, lx.column
	ch := lx.src[lx.pos]

	switch {
	case isLetter(ch):
		start := lx.pos
		for lx.pos < len(lx.src) && (isLetter(lx.src[lx.pos]) || isDigit(lx.src[lx.pos])) {
			lx.advance()
		}
		word := lx.src[start:lx.pos]
		typ := IDENT
		if kw, ok := keywords[word]; ok {
			typ = kw
		}
		return Token{Type: typ, Value: word, Line: line, Column: col}, nil

	case isDigit(ch):
		return lx.number(line, col), nil

	case ch == '"':
		return lx.str(line, col)
	}

	var typ TokenType
	switch ch {
	case '{':
		typ = LBRACE
	case '}':
		typ = RBRACE
	case '(':
		typ = LPAREN
	case ')':
		typ = RPAREN
	case '+':
		typ = PLUS
	case '-':
		typ = MINUS
	case '*':
		typ = STAR
	case '/':
		typ = SLASH
	default:
		return Token{}, schema.NewErrorf(schema.ErrCodeParse, "unexpected character %q", rune(ch)).
			WithPos(line, col)
	}
	lx.advance()
	return Token{Type: typ, Value: string(ch), Line: line, Column: col}, nil
}

func (lx *Lexer) number(line, col int) Token {
	start := lx.pos
	for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
		lx.advance()
	}
	return Token{Type: INT, Value: lx.src[start:lx.pos], Line: line, Column: col}
}

// str lexes a double-quoted string. The body is kept verbatim: a backslash
// only protects the following character from ending the string.
func (lx *Lexer) str(line, col int) (Token, error) {
	lx.advance() // opening quote
	start := lx.pos
	for lx.pos < len(lx.src) {
		switch lx.src[lx.pos] {
		case '"':
			body := lx.src[start:lx.pos]
			lx.advance()
			return Token{Type: STRING, Value: body, Line: line, Column: col}, nil
		case '\n':
			return Token{}, schema.NewError(schema.ErrCodeParse, "unterminated string literal").WithPos(line, col)
		case '\\':
			lx.advance()
			if lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.advance()
			}
		default:
			lx.advance()
		}
	}
	return Token{}, schema.NewError(schema.ErrCodeParse, "unterminated string literal").WithPos(line, col)
}

func (lx *Lexer) skipTrivia() {
	for lx.pos < len(lx.src) {
		ch := lx.src[lx.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\f' || ch == '\n':
			lx.advance()
		case ch == '#':
			lx.skipLine()
		case ch == '/' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '/':
			lx.skipLine()
		default:
			return
		}
	}
}

func (lx *Lexer) skipLine() {
	for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
		lx.advance()
	}
}

func (lx *Lexer) advance() {
	if lx.src[lx.pos] == '\n' {
		lx.line++
		lx.column = 1
	} else {
		lx.column++
	}
	lx.pos++
}

func isLetter(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
