// Package ast defines the syntax tree produced by the ChatFlow parser.
// Nodes are plain data: they carry no behaviour beyond their position and are
// never mutated after parsing.
package ast

// Pos is a 1-based source position.
type Pos struct {
	Line   int
	Column int
}

// Script is a parsed ChatFlow source file.
type Script struct {
	Flows []*Flow
}

// Flow is a named top-level block.
type Flow struct {
	Name string
	Body *Block
	Pos  Pos
}

// --- Statements ---

// Statement is any executable node inside a block.
type Statement interface {
	Position() Pos
	stmtNode()
}

// Block is an ordered statement sequence with its own scope frame.
type Block struct {
	Statements []Statement
	Pos        Pos
}

// If runs Then when Cond holds, otherwise ElseBlock or ElseIf (at most one is set).
type If struct {
	Cond      Condition
	Then      *Block
	ElseBlock *Block
	ElseIf    *If
	Pos       Pos
}

// While re-evaluates Cond before every iteration of Body.
type While struct {
	Cond Condition
	Body *Block
	Pos  Pos
}

// Speak concatenates the stringified parts and hands them to the host.
type Speak struct {
	Parts []Value
	Pos   Pos
}

// Listen binds host input to Var, optionally bounded by Timeout.
type Listen struct {
	Var     string
	Timeout *Duration
	Pos     Pos
}

// Assign writes the value of Expr to Var.
type Assign struct {
	Expr Expr
	Var  string
	Pos  Pos
}

// Engage calls another flow.
type Engage struct {
	Flow string
	Pos  Pos
}

// Handover delegates to a host tributary.
type Handover struct {
	Tributary string
	Pos       Pos
}

// End terminates the whole run.
type End struct {
	Pos Pos
}

// Store writes Value into the context parameter.
type Store struct {
	Value Value
	Pos   Pos
}

// Fetch binds the context parameter to Var.
type Fetch struct {
	Var string
	Pos Pos
}

func (s *Block) Position() Pos    { return s.Pos }
func (s *If) Position() Pos       { return s.Pos }
func (s *While) Position() Pos    { return s.Pos }
func (s *Speak) Position() Pos    { return s.Pos }
func (s *Listen) Position() Pos   { return s.Pos }
func (s *Assign) Position() Pos   { return s.Pos }
func (s *Engage) Position() Pos   { return s.Pos }
func (s *Handover) Position() Pos { return s.Pos }
func (s *End) Position() Pos      { return s.Pos }
func (s *Store) Position() Pos    { return s.Pos }
func (s *Fetch) Position() Pos    { return s.Pos }

func (*Block) stmtNode()    {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*Speak) stmtNode()    {}
func (*Listen) stmtNode()   {}
func (*Assign) stmtNode()   {}
func (*Engage) stmtNode()   {}
func (*Handover) stmtNode() {}
func (*End) stmtNode()      {}
func (*Store) stmtNode()    {}
func (*Fetch) stmtNode()    {}

// --- Durations ---

// TimeUnit is the suffix of a listen timeout.
type TimeUnit int

const (
	Seconds TimeUnit = iota
	Minutes
	Hours
)

// Seconds returns how many seconds one unit represents.
func (u TimeUnit) Seconds() int64 {
	switch u {
	case Minutes:
		return 60
	case Hours:
		return 3600
	default:
		return 1
	}
}

func (u TimeUnit) String() string {
	switch u {
	case Minutes:
		return "m"
	case Hours:
		return "h"
	default:
		return "s"
	}
}

// Duration is a value scaled by a unit, e.g. `5s` or `n m`.
type Duration struct {
	Amount Value
	Unit   TimeUnit
}

// --- Expressions ---

// Expr is an arithmetic expression.
type Expr interface {
	Position() Pos
	exprNode()
}

// Value is a leaf expression: a literal, a variable, or the timeout flag.
type Value interface {
	Expr
	valueNode()
}

// Operator is an arithmetic operator.
type Operator int

const (
	Add Operator = iota
	Sub
	Mul
	Div
)

func (o Operator) String() string {
	switch o {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	default:
		return "?"
	}
}

// Binary is Left Op Right.
type Binary struct {
	Op    Operator
	Left  Expr
	Right Expr
	Pos   Pos
}

// Literal is a string or int64 constant.
type Literal struct {
	Value any
	Pos   Pos
}

// Variable reads a name from scope.
type Variable struct {
	Name string
	Pos  Pos
}

// TimeoutValue reads the context timeout flag.
type TimeoutValue struct {
	Pos Pos
}

func (e *Binary) Position() Pos       { return e.Pos }
func (e *Literal) Position() Pos      { return e.Pos }
func (e *Variable) Position() Pos     { return e.Pos }
func (e *TimeoutValue) Position() Pos { return e.Pos }

func (*Binary) exprNode()       {}
func (*Literal) exprNode()      {}
func (*Variable) exprNode()     {}
func (*TimeoutValue) exprNode() {}

func (*Literal) valueNode()      {}
func (*Variable) valueNode()     {}
func (*TimeoutValue) valueNode() {}

// --- Conditions ---

// Condition is a boolean test used by if and while.
type Condition interface {
	Position() Pos
	condNode()
}

// Match tests Subject against the regular expression Pattern.
// With Bind set it searches and binds the first match.
type Match struct {
	Subject Expr
	Pattern Value
	Bind    string
	Pos     Pos
}

// Compare is one of the binary comparisons.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
	Pos   Pos
}

// CompareOp selects the comparison performed by Compare.
type CompareOp int

const (
	Equals CompareOp = iota
	Larger
	Less
)

func (o CompareOp) String() string {
	switch o {
	case Equals:
		return "equals"
	case Larger:
		return "larger than"
	case Less:
		return "less than"
	default:
		return "?"
	}
}

// Bool is a `true` or `false` literal condition.
type Bool struct {
	Value bool
	Pos   Pos
}

// Timeout holds when the last bounded listen expired.
type Timeout struct {
	Pos Pos
}

// Not negates Cond.
type Not struct {
	Cond Condition
	Pos  Pos
}

func (c *Match) Position() Pos   { return c.Pos }
func (c *Compare) Position() Pos { return c.Pos }
func (c *Bool) Position() Pos    { return c.Pos }
func (c *Timeout) Position() Pos { return c.Pos }
func (c *Not) Position() Pos     { return c.Pos }

func (*Match) condNode()   {}
func (*Compare) condNode() {}
func (*Bool) condNode()    {}
func (*Timeout) condNode() {}
func (*Not) condNode()     {}
