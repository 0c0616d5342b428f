package placeholder

// marker is one parameter marker found in the original text.
// name is empty for positional markers.
type marker struct {
	start, end int
	name       string
}

func (m marker) named() bool { return m.name != "" }

// scan returns every parameter marker in s outside of literals, quoted
// identifiers and comments.
func scan(s string) []marker {
	var out []marker
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(s, i, c)
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			i = skipLine(s, i)
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i = skipBlock(s, i)
		case c == '?':
			out = append(out, marker{start: i, end: i + 1})
			i++
		case c == ':':
			// :: is a cast, not a marker
			if i+1 < len(s) && s[i+1] == ':' {
				i += 2
				continue
			}
			j := i + 1
			for j < len(s) && isIdentByte(s[j], j == i+1) {
				j++
			}
			if j == i+1 {
				i++
				continue
			}
			out = append(out, marker{start: i, end: j, name: s[i+1 : j]})
			i = j
		default:
			i++
		}
	}
	return out
}

// skipQuoted returns the index just past the literal opened at s[i].
// A doubled quote character is an escaped quote.
func skipQuoted(s string, i int, q byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

func skipLine(s string, i int) int {
	for j := i + 2; j < len(s); j++ {
		if s[j] == '\n' {
			return j + 1
		}
	}
	return len(s)
}

func skipBlock(s string, i int) int {
	for j := i + 2; j+1 < len(s); j++ {
		if s[j] == '*' && s[j+1] == '/' {
			return j + 2
		}
	}
	return len(s)
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= 0x80:
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
