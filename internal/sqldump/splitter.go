package sqldump

import (
	"strings"
	"unicode"
)

// DefaultDelimiter terminates statements until a DELIMITER directive changes it
const DefaultDelimiter = ";"

const delimiterDirective = "DELIMITER"

// Statement is one executable piece of a dump
type Statement struct {
	// Text is the statement including its terminating delimiter, if it had one.
	Text string
	// Delimiter was the active delimiter when the statement ended.
	Delimiter string
}

// Body returns the statement without its terminating delimiter, ready to send to the server
func (s Statement) Body() string {
	body := strings.TrimSpace(s.Text)
	if s.Delimiter != "" {
		body = strings.TrimSuffix(body, s.Delimiter)
	}
	return strings.TrimSpace(body)
}

// Split breaks a dump into statements. Comments are removed first. Quotes
// (single or double) suspend splitting until the matching quote; a backslash
// inside a quoted string escapes the next character. "DELIMITER <token>" at
// the start of a statement switches the terminator. A trailing fragment
// without terminator is returned as the last statement. Doubled-quote escapes
// and backtick identifiers are not understood.
func Split(sqlText string) []Statement {
	text := StripComments(sqlText)

	var (
		statements []Statement
		current    strings.Builder
		delimiter  = DefaultDelimiter
		quote      byte
	)

	emit := func(delim string) {
		stmt := Statement{Text: strings.TrimSpace(current.String()), Delimiter: delim}
		current.Reset()
		if stmt.Body() != "" {
			statements = append(statements, stmt)
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]

		if quote != 0 {
			current.WriteByte(c)
			switch {
			case c == '\\' && i+1 < len(text):
				i++
				current.WriteByte(text[i])
			case c == quote:
				quote = 0
			}
			continue
		}

		if c == '\'' || c == '"' {
			quote = c
			current.WriteByte(c)
			continue
		}

		if (c == 'D' || c == 'd') && isBlank(current.String()) && hasDirective(text[i:]) {
			token, next := readDelimiterToken(text, i+len(delimiterDirective))
			if token != "" {
				delimiter = token
				current.Reset()
				i = next - 1
				continue
			}
		}

		if strings.HasPrefix(text[i:], delimiter) {
			current.WriteString(delimiter)
			i += len(delimiter) - 1
			emit(delimiter)
			continue
		}

		current.WriteByte(c)
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, Statement{Text: rest})
	}
	return statements
}

// hasDirective reports whether s starts with "DELIMITER" followed by whitespace
func hasDirective(s string) bool {
	n := len(delimiterDirective)
	if len(s) <= n || !strings.EqualFold(s[:n], delimiterDirective) {
		return false
	}
	return s[n] == ' ' || s[n] == '\t'
}

// readDelimiterToken returns the whitespace-delimited word after pos and the index after it
func readDelimiterToken(text string, pos int) (string, int) {
	for pos < len(text) && (text[pos] == ' ' || text[pos] == '\t') {
		pos++
	}
	start := pos
	for pos < len(text) && !unicode.IsSpace(rune(text[pos])) {
		pos++
	}
	return text[start:pos], pos
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// StripComments removes "/* ... */" blocks and "-- ..." lines that are not
// inside quoted strings. Line comments keep their newline.
func StripComments(sqlText string) string {
	var out strings.Builder
	out.Grow(len(sqlText))

	var quote byte
	for i := 0; i < len(sqlText); i++ {
		c := sqlText[i]

		if quote != 0 {
			out.WriteByte(c)
			switch {
			case c == '\\' && i+1 < len(sqlText):
				i++
				out.WriteByte(sqlText[i])
			case c == quote:
				quote = 0
			}
			continue
		}

		switch {
		case c == '\'' || c == '"':
			quote = c
			out.WriteByte(c)
		case c == '/' && i+1 < len(sqlText) && sqlText[i+1] == '*':
			end := strings.Index(sqlText[i+2:], "*/")
			if end < 0 {
				return out.String()
			}
			i += end + 3
			out.WriteByte(' ')
		case c == '-' && strings.HasPrefix(sqlText[i:], "--") && isLineCommentStart(sqlText, i):
			end := strings.IndexByte(sqlText[i:], '\n')
			if end < 0 {
				return out.String()
			}
			i += end
			out.WriteByte('\n')
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

// isLineCommentStart requires "--" to be followed by whitespace or end of
// input, so expressions such as "a--1" survive.
func isLineCommentStart(s string, i int) bool {
	if i+2 >= len(s) {
		return true
	}
	next := s[i+2]
	return next == ' ' || next == '\t' || next == '\n' || next == '\r'
}
