package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/chatflow/pkg/schema"
)

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"hi", "hi"},
		{true, "true"},
		{false, "false"},
		{42, "42"},
		{int64(-7), "-7"},
		{uint8(3), "3"},
		{2.5, "2.5"},
		{float32(0.25), "0.25"},
		{[]int{1, 2}, "[1 2]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Stringify(tt.in))
	}
}

func TestFormat(t *testing.T) {
	c := NewContext("origin", nil)
	c.PushScope()
	c.SetVariable("name", "Ada")
	c.SetVariable("n", int64(3))

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"single", "hi {name}", "hi Ada"},
		{"several", "{name} has {n} items", "Ada has 3 items"},
		{"escaped", `\{name\}`, "{name}"},
		{"not identifier", "{ name }", "{ name }"},
		{"empty braces", "{}", "{}"},
		{"unclosed", "hi {name", "hi {name"},
		{"json-ish", `{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Format(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_UnknownVariable(t *testing.T) {
	c := NewContext("origin", nil)
	c.PushScope()

	_, err := c.Format("hi {who}")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNameNotFound))
}
