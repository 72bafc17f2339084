package applier

import "strings"

// SplitStatements breaks a script into statements on top-level semicolons.
// Semicolons inside quoted strings (including E'' strings with backslash
// escapes), quoted identifiers, dollar-quoted bodies and comments do not
// terminate a statement. Comments are dropped and empty statements are skipped.
func SplitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case c == '-' && strings.HasPrefix(script[i:], "--"):
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				i = len(script)
			} else {
				i += end
				current.WriteByte('\n')
			}
		case c == '/' && strings.HasPrefix(script[i:], "/*"):
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = len(script)
			} else {
				i += end + 3
				current.WriteByte(' ')
			}
		case c == '\'' && escapeString(script, i):
			end := closingEscapedQuote(script, i)
			current.WriteString(script[i:end])
			i = end - 1
		case c == '\'' || c == '"':
			end := closingQuote(script, i)
			current.WriteString(script[i:end])
			i = end - 1
		case c == '$':
			tag, ok := dollarTag(script[i:])
			if !ok {
				current.WriteByte(c)
				continue
			}
			body := strings.Index(script[i+len(tag):], tag)
			end := len(script)
			if body >= 0 {
				end = i + len(tag) + body + len(tag)
			}
			current.WriteString(script[i:end])
			i = end - 1
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()

	return statements
}

// closingQuote returns the index just past the quote closing the one at start.
// A doubled quote character is an escaped quote.
func closingQuote(s string, start int) int {
	q := s[start]
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

// escapeString reports whether the quote at i opens an E'...' string
func escapeString(s string, i int) bool {
	if i == 0 || (s[i-1] != 'E' && s[i-1] != 'e') {
		return false
	}
	return i == 1 || !identChar(s[i-2])
}

// closingEscapedQuote is closingQuote for E'...' strings, where a backslash
// escapes the character after it
func closingEscapedQuote(s string, start int) int {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '\'':
			if i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(s)
}

func identChar(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

// dollarTag recognizes $$ and $name$ openers
func dollarTag(s string) (string, bool) {
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[:i+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 1 && c >= '0' && c <= '9') {
			return "", false
		}
	}
	return "", false
}
