package parser

import "fmt"

// TokenType is the lexical category of a token.
type TokenType int

const (
	EOF TokenType = iota
	ILLEGAL

	IDENT  // origin, answer, num
	STRING // "hello"
	INT    // 42

	LBRACE // {
	RBRACE // }
	LPAREN // (
	RPAREN // )
	PLUS   // +
	MINUS  // -
	STAR   // *
	SLASH  // /

	// Keywords
	FLOW
	IF
	ELSE
	WHILE
	SPEAK
	ENGAGE
	HANDOVER
	END
	LISTEN
	FOR
	ASSIGN
	TO
	STORE
	FETCH
	NOT
	MATCHES
	AS
	EQUALS
	LARGER
	LESS
	THAN
	TRUE
	FALSE
	TIMEOUT
)

var tokenNames = [...]string{
	EOF:      "EOF",
	ILLEGAL:  "ILLEGAL",
	IDENT:    "IDENT",
	STRING:   "STRING",
	INT:      "INT",
	LBRACE:   "{",
	RBRACE:   "}",
	LPAREN:   "(",
	RPAREN:   ")",
	PLUS:     "+",
	MINUS:    "-",
	STAR:     "*",
	SLASH:    "/",
	FLOW:     "flow",
	IF:       "if",
	ELSE:     "else",
	WHILE:    "while",
	SPEAK:    "speak",
	ENGAGE:   "engage",
	HANDOVER: "handover",
	END:      "end",
	LISTEN:   "listen",
	FOR:      "for",
	ASSIGN:   "assign",
	TO:       "to",
	STORE:    "store",
	FETCH:    "fetch",
	NOT:      "not",
	MATCHES:  "matches",
	AS:       "as",
	EQUALS:   "equals",
	LARGER:   "larger",
	LESS:     "less",
	THAN:     "than",
	TRUE:     "true",
	FALSE:    "false",
	TIMEOUT:  "timeout",
}

func (t TokenType) String() string {
	if int(t) >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

var keywords = map[string]TokenType{
	"flow":     FLOW,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"speak":    SPEAK,
	"engage":   ENGAGE,
	"handover": HANDOVER,
	"end":      END,
	"listen":   LISTEN,
	"for":      FOR,
	"assign":   ASSIGN,
	"to":       TO,
	"store":    STORE,
	"fetch":    FETCH,
	"not":      NOT,
	"matches":  MATCHES,
	"as":       AS,
	"equals":   EQUALS,
	"larger":   LARGER,
	"less":     LESS,
	"than":     THAN,
	"true":     TRUE,
	"false":    FALSE,
	"timeout":  TIMEOUT,
}

// IsKeyword reports whether name is reserved and cannot be used as an identifier.
func IsKeyword(name string) bool {
	_, ok := keywords[name]
	return ok
}

// Token is a lexeme with its 1-based position.
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

func (t Token) String() string {
	switch t.Type {
	case EOF:
		return "end of input"
	case IDENT, INT:
		return fmt.Sprintf("%s %q", t.Type, t.Value)
	case STRING:
		return fmt.Sprintf("string %q", t.Value)
	default:
		return fmt.Sprintf("%q", t.Type.String())
	}
}
