package sqlite

import (
	"strings"
	"unicode"
)

// Split breaks a SQL script into statements on semicolons that are not inside
// string literals, quoted identifiers, comments, or a trigger body. Comments
// are dropped and empty statements are skipped.
func Split(src string) []string {
	var (
		stmts []string
		b     strings.Builder
		words []string // leading words of the current statement, upper-cased
		inTrg bool
		depth int
	)

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			stmts = append(stmts, s)
		}
		b.Reset()
		words = words[:0]
		inTrg = false
		depth = 0
	}

	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			j := closeQuote(src, i, c)
			b.WriteString(src[i:j])
			i = j
		case c == '[':
			j := strings.IndexByte(src[i:], ']')
			if j < 0 {
				j = len(src) - i - 1
			}
			b.WriteString(src[i : i+j+1])
			i += j + 1
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				i = len(src)
			} else {
				i += j
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			j := strings.Index(src[i+2:], "*/")
			if j < 0 {
				i = len(src)
			} else {
				i += j + 4
			}
			b.WriteByte(' ')
		case c == ';':
			if inTrg && depth > 0 {
				b.WriteByte(c)
				i++
				continue
			}
			flush()
			i++
		case isWordByte(c):
			j := i
			for j < len(src) && isWordByte(src[j]) {
				j++
			}
			word := strings.ToUpper(src[i:j])
			b.WriteString(src[i:j])
			i = j

			if len(words) < 4 {
				words = append(words, word)
				if word == "TRIGGER" && words[0] == "CREATE" {
					inTrg = true
				}
			}
			if inTrg {
				switch word {
				case "BEGIN", "CASE":
					depth++
				case "END":
					depth--
				}
			}
		default:
			b.WriteByte(c)
			i++
		}
	}
	flush()
	return stmts
}

// closeQuote returns the index just past the quote that closes the one at
// src[start]. A doubled quote is an escaped quote.
func closeQuote(src string, start int, q byte) int {
	for i := start + 1; i < len(src); i++ {
		if src[i] != q {
			continue
		}
		if i+1 < len(src) && src[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(src)
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 0x80 || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

// leadingKeyword returns the first word of stmt, upper-cased.
func leadingKeyword(stmt string) string {
	stmt = strings.TrimLeft(stmt, " \t\r\n(")
	end := strings.IndexFunc(stmt, func(r rune) bool {
		return !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	if end < 0 {
		end = len(stmt)
	}
	return strings.ToUpper(stmt[:end])
}

// returnsRows reports whether stmt is expected to produce a result set.
// Data-modifying statements do when they carry a RETURNING clause.
func returnsRows(stmt string) bool {
	switch leadingKeyword(stmt) {
	case "SELECT", "WITH", "VALUES", "PRAGMA", "EXPLAIN":
		return true
	case "INSERT", "UPDATE", "DELETE", "REPLACE":
		return hasKeyword(stmt, "RETURNING")
	}
	return false
}

// hasKeyword reports whether word appears in stmt as a whole word outside
// string literals and quoted identifiers. The match ignores case.
func hasKeyword(stmt, word string) bool {
	for i := 0; i < len(stmt); {
		c := stmt[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = closeQuote(stmt, i, c)
		case c == '[':
			j := strings.IndexByte(stmt[i:], ']')
			if j < 0 {
				return false
			}
			i += j + 1
		case isWordByte(c):
			j := i
			for j < len(stmt) && isWordByte(stmt[j]) {
				j++
			}
			if strings.EqualFold(stmt[i:j], word) {
				return true
			}
			i = j
		default:
			i++
		}
	}
	return false
}

// modifiesRows reports whether stmt is a data-modifying statement whose
// affected-row count is meaningful.
func modifiesRows(stmt string) bool {
	switch leadingKeyword(stmt) {
	case "INSERT", "UPDATE", "DELETE", "REPLACE":
		return true
	}
	return false
}
