package ast

// Inspect visits every statement reachable from b in source order, descending
// into if/else branches and loop bodies. If fn returns false the children of
// that statement are skipped.
func Inspect(b *Block, fn func(Statement) bool) {
	if b == nil {
		return
	}
	for _, stmt := range b.Statements {
		inspectStmt(stmt, fn)
	}
}

func inspectStmt(stmt Statement, fn func(Statement) bool) {
	if !fn(stmt) {
		return
	}
	switch s := stmt.(type) {
	case *Block:
		Inspect(s, fn)
	case *If:
		Inspect(s.Then, fn)
		if s.ElseIf != nil {
			inspectStmt(s.ElseIf, fn)
		}
		Inspect(s.ElseBlock, fn)
	case *While:
		Inspect(s.Body, fn)
	}
}
