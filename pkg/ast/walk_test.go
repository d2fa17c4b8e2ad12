package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInspect_Order(t *testing.T) {
	body := &Block{Statements: []Statement{
		&Speak{Pos: Pos{Line: 1}},
		&If{
			Cond: &Bool{Value: true},
			Then: &Block{Statements: []Statement{&Engage{Flow: "a"}}},
			ElseIf: &If{
				Cond:      &Timeout{},
				Then:      &Block{Statements: []Statement{&Engage{Flow: "b"}}},
				ElseBlock: &Block{Statements: []Statement{&Handover{Tributary: "t"}}},
			},
		},
		&While{Cond: &Bool{}, Body: &Block{Statements: []Statement{&End{}}}},
	}}

	var seen []string
	Inspect(body, func(s Statement) bool {
		switch s := s.(type) {
		case *Engage:
			seen = append(seen, "engage "+s.Flow)
		case *Handover:
			seen = append(seen, "handover "+s.Tributary)
		case *End:
			seen = append(seen, "end")
		}
		return true
	})
	assert.Equal(t, []string{"engage a", "engage b", "handover t", "end"}, seen)
}

func TestInspect_SkipChildren(t *testing.T) {
	body := &Block{Statements: []Statement{
		&While{Cond: &Bool{}, Body: &Block{Statements: []Statement{&End{}}}},
	}}

	count := 0
	Inspect(body, func(s Statement) bool {
		count++
		_, isLoop := s.(*While)
		return !isLoop
	})
	assert.Equal(t, 1, count)
}

func TestInspect_Nil(t *testing.T) {
	Inspect(nil, func(Statement) bool {
		t.Fatal("visited")
		return true
	})
}
