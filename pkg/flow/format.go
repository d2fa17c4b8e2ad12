package flow

import (
	"fmt"
	"strconv"
	"strings"
)

// Stringify renders a value the way speak and interpolation show it.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(x)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Format replaces every {name} in text with the stringified value of the
// visible variable name. `\{` and `\}` produce literal braces; a brace pair
// that does not enclose an identifier is copied unchanged.
func (c *Context) Format(text string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch == '\\' && i+1 < len(text) && (text[i+1] == '{' || text[i+1] == '}'):
			b.WriteByte(text[i+1])
			i++
		case ch == '{':
			end := strings.IndexByte(text[i+1:], '}')
			if end == -1 {
				b.WriteString(text[i:])
				return b.String(), nil
			}
			name := text[i+1 : i+1+end]
			if !isIdentifier(name) {
				b.WriteByte(ch)
				continue
			}
			v, err := c.GetVariable(name)
			if err != nil {
				return "", err
			}
			b.WriteString(Stringify(v))
			i += end + 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		letter := ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
		if !letter && (i == 0 || ch < '0' || ch > '9') {
			return false
		}
	}
	return true
}
