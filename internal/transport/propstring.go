package transport

import (
	"strings"
	"unicode"
)

// Properties is an ordered flat key/value set carried on one line as
// whitespace separated key=value pairs. Values containing whitespace or
// quotes are double quoted with backslash escapes.
type Properties struct {
	keys   []string
	values map[string]string
}

func NewProperties() *Properties {
	return &Properties{values: make(map[string]string)}
}

// Set stores key=value, keeping the first insertion position.
func (p *Properties) Set(key, value string) *Properties {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

func (p *Properties) Get(key string) string { return p.values[key] }

func (p *Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

func (p *Properties) Keys() []string { return append([]string(nil), p.keys...) }

func (p *Properties) Len() int { return len(p.keys) }

// Encode renders the set as a single line (no terminator).
func (p *Properties) Encode() string {
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quoteValue(p.values[k]))
	}
	return b.String()
}

func (p *Properties) String() string { return p.Encode() }

func quoteValue(v string) string {
	if v != "" && !strings.ContainsFunc(v, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '\\'
	}) {
		return v
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range v {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// ParseProperties decodes a property line. A key without '=' is stored with
// an empty value; later duplicates overwrite earlier values.
func ParseProperties(line string) *Properties {
	p := NewProperties()
	rs := []rune(line)
	i := 0
	for i < len(rs) {
		for i < len(rs) && unicode.IsSpace(rs[i]) {
			i++
		}
		if i >= len(rs) {
			break
		}

		start := i
		for i < len(rs) && rs[i] != '=' && !unicode.IsSpace(rs[i]) {
			i++
		}
		key := string(rs[start:i])
		if i >= len(rs) || rs[i] != '=' {
			p.Set(key, "")
			continue
		}
		i++

		var val strings.Builder
		if i < len(rs) && rs[i] == '"' {
			i++
			for i < len(rs) && rs[i] != '"' {
				if rs[i] == '\\' && i+1 < len(rs) {
					i++
					switch rs[i] {
					case 'n':
						val.WriteByte('\n')
					case 'r':
						val.WriteByte('\r')
					default:
						val.WriteRune(rs[i])
					}
				} else {
					val.WriteRune(rs[i])
				}
				i++
			}
			i++ // closing quote
		} else {
			for i < len(rs) && !unicode.IsSpace(rs[i]) {
				val.WriteRune(rs[i])
				i++
			}
		}
		if key != "" {
			p.Set(key, val.String())
		}
	}
	return p
}
