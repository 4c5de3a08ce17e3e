package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CoerceMap accepts a mapping where a schema field requires one:
//   - a native mapping is returned as-is
//   - a string is tried as strict JSON first
//   - then as a Python-literal dict (planner models sometimes emit
//     single-quoted dicts)
//
// Everything else is rejected.
func CoerceMap(v any) (map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case string:
		s := strings.TrimSpace(t)

		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err == nil && m != nil {
			return m, nil
		}

		if lit, err := parseLiteral(s); err == nil {
			if lm, ok := lit.(map[string]any); ok {
				return lm, nil
			}
		}
	}
	return nil, fmt.Errorf("expected mapping or encoded mapping, got %T", v)
}

// parseLiteral parses the Python-literal subset models emit for mapping
// fields: dicts, lists, single- or double-quoted strings, numbers, True,
// False and None. Numbers decode to float64, matching encoding/json.
func parseLiteral(s string) (any, error) {
	p := &literalParser{src: s}
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("trailing characters at offset %d", p.pos)
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

func (p *literalParser) parseValue() (any, error) {
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("unexpected end of input")
	}
	switch c := p.src[p.pos]; {
	case c == '{':
		return p.parseDict()
	case c == '[':
		return p.parseList()
	case c == '\'' || c == '"':
		return p.parseString()
	case c == 'T':
		return p.parseKeyword("True", true)
	case c == 'F':
		return p.parseKeyword("False", false)
	case c == 'N':
		return p.parseKeyword("None", nil)
	case c == '-' || c == '+' || c >= '0' && c <= '9':
		return p.parseNumber()
	default:
		return nil, fmt.Errorf("unexpected character %q at offset %d", c, p.pos)
	}
}

func (p *literalParser) parseKeyword(word string, value any) (any, error) {
	if !strings.HasPrefix(p.src[p.pos:], word) {
		return nil, fmt.Errorf("invalid literal at offset %d", p.pos)
	}
	p.pos += len(word)
	return value, nil
}

func (p *literalParser) parseNumber() (any, error) {
	start := p.pos
	if c := p.src[p.pos]; c == '-' || c == '+' {
		p.pos++
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		if (c == '-' || c == '+') && p.pos > start {
			prev := p.src[p.pos-1]
			if prev == 'e' || prev == 'E' {
				p.pos++
				continue
			}
		}
		break
	}
	n, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", p.src[start:p.pos])
	}
	return n, nil
}

func (p *literalParser) parseString() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == quote {
			p.pos++
			return b.String(), nil
		}
		if c != '\\' {
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
			continue
		}
		p.pos++
		if p.pos >= len(p.src) {
			return "", fmt.Errorf("unterminated escape")
		}
		esc := p.src[p.pos]
		p.pos++
		switch esc {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '\\', '\'', '"':
			b.WriteByte(esc)
		case 'x':
			if p.pos+2 > len(p.src) {
				return "", fmt.Errorf("invalid \\x escape")
			}
			n, err := strconv.ParseUint(p.src[p.pos:p.pos+2], 16, 8)
			if err != nil {
				return "", fmt.Errorf("invalid \\x escape")
			}
			b.WriteRune(rune(n))
			p.pos += 2
		case 'u':
			if p.pos+4 > len(p.src) {
				return "", fmt.Errorf("invalid \\u escape")
			}
			n, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 32)
			if err != nil {
				return "", fmt.Errorf("invalid \\u escape")
			}
			b.WriteRune(rune(n))
			p.pos += 4
		default:
			// Python keeps unknown escapes verbatim.
			b.WriteByte('\\')
			b.WriteByte(esc)
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *literalParser) parseDict() (map[string]any, error) {
	p.pos++ // consume '{'
	out := map[string]any{}
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '}' {
		p.pos++
		return out, nil
	}
	for {
		p.skipSpace()
		key, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		ks, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("dict key must be a string, got %T", key)
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return nil, fmt.Errorf("expected ':' at offset %d", p.pos)
		}
		p.pos++
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		out[ks] = val
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("unterminated dict")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
			p.skipSpace()
			if p.pos < len(p.src) && p.src[p.pos] == '}' {
				p.pos++
				return out, nil
			}
		case '}':
			p.pos++
			return out, nil
		default:
			return nil, fmt.Errorf("expected ',' or '}' at offset %d", p.pos)
		}
	}
}

func (p *literalParser) parseList() ([]any, error) {
	p.pos++ // consume '['
	out := []any{}
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ']' {
		p.pos++
		return out, nil
	}
	for {
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		out = append(out, val)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("unterminated list")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
			p.skipSpace()
			if p.pos < len(p.src) && p.src[p.pos] == ']' {
				p.pos++
				return out, nil
			}
		case ']':
			p.pos++
			return out, nil
		default:
			return nil, fmt.Errorf("expected ',' or ']' at offset %d", p.pos)
		}
	}
}
