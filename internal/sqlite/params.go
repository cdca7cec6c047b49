package sqlite

import (
	"strconv"
	"strings"
)

// countParams returns the number of parameters SQLite assigns to query:
// the largest index used by "?", "?NNN", ":name", "@name" and "$name"
// placeholders. String literals, quoted identifiers and comments are
// skipped.
func countParams(query string) int {
	highest := 0
	named := make(map[string]bool)
	n := len(query)

	for i := 0; i < n; i++ {
		c := query[i]
		switch c {
		case '\'', '"', '`':
			i = skipQuoted(query, i, c)
		case '[':
			end := strings.IndexByte(query[i+1:], ']')
			if end < 0 {
				return highest
			}
			i += end + 1
		case '-':
			if i+1 < n && query[i+1] == '-' {
				end := strings.IndexByte(query[i:], '\n')
				if end < 0 {
					return highest
				}
				i += end
			}
		case '/':
			if i+1 < n && query[i+1] == '*' {
				end := strings.Index(query[i+2:], "*/")
				if end < 0 {
					return highest
				}
				i += 2 + end + 1
			}
		case '?':
			j := i + 1
			for j < n && isDigit(query[j]) {
				j++
			}
			if j > i+1 {
				if idx, err := strconv.Atoi(query[i+1 : j]); err == nil && idx > highest {
					highest = idx
				}
				i = j - 1
			} else {
				highest++
			}
		case ':', '@', '$':
			j := i + 1
			for j < n && isIdentByte(query[j]) {
				j++
			}
			if j > i+1 {
				name := query[i+1 : j]
				if !named[name] {
					named[name] = true
					highest++
				}
				i = j - 1
			}
		}
	}
	return highest
}

// skipQuoted returns the index of the quote closing the literal that starts
// at start. Doubled quotes are escapes.
func skipQuoted(s string, start int, q byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i
	}
	return len(s)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}
