package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// annotationPrefix marks a comment line that documents destructive behavior,
// e.g. "-- data loss: phage.Program is dropped."
const annotationPrefix = "data loss:"

// Parse reads an upgrade script. The file name supplies the version pair and
// the contents are split into individual statements. The parsed script is
// validated against the step conventions before it is returned.
func Parse(name string, contents []byte) (Script, error) {
	from, to, ok := ParseFilename(name)
	if !ok {
		return Script{}, fmt.Errorf("script %s: name does not match upgrade_<from>_to_<to>.sql", name)
	}
	s := Script{
		Name:        name,
		From:        from,
		To:          to,
		Statements:  SplitStatements(string(contents)),
		Annotations: parseAnnotations(string(contents)),
	}
	if err := s.Validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}

// SplitStatements splits sql on top-level semicolons. Semicolons inside
// string literals, quoted identifiers, and comments do not split. Comment
// text travels with the statement that follows it; chunks that contain no
// executable text are dropped. A trailing statement without a semicolon is
// kept.
func SplitStatements(sql string) []string {
	var statements []string
	var b strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(b.String())
		b.Reset()
		if chunk == "" {
			return
		}
		if strings.TrimSpace(stripComments(chunk)) == "" {
			return
		}
		statements = append(statements, chunk)
	}

	const (
		plain = iota
		singleQuote
		doubleQuote
		backQuote
		lineComment
		blockComment
	)
	state := plain

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch state {
		case plain:
			switch {
			case c == ';':
				flush()
				continue
			case c == '\'':
				state = singleQuote
			case c == '"':
				state = doubleQuote
			case c == '`':
				state = backQuote
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = lineComment
			case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
				state = blockComment
				b.WriteByte(c)
				i++
				c = sql[i]
			}
		case singleQuote:
			switch c {
			case '\\':
				if i+1 < len(sql) {
					b.WriteByte(c)
					i++
					c = sql[i]
				}
			case '\'':
				// "''" is an escaped quote, not a terminator.
				if i+1 < len(sql) && sql[i+1] == '\'' {
					b.WriteByte(c)
					i++
				} else {
					state = plain
				}
			}
		case doubleQuote:
			if c == '"' {
				state = plain
			}
		case backQuote:
			if c == '`' {
				state = plain
			}
		case lineComment:
			if c == '\n' {
				state = plain
			}
		case blockComment:
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				b.WriteByte(c)
				i++
				c = sql[i]
				state = plain
			}
		}
		b.WriteByte(c)
	}
	flush()
	return statements
}

// stripComments removes line and block comments from sql, leaving string
// literals and quoted identifiers intact.
func stripComments(sql string) string {
	var b strings.Builder

	const (
		plain = iota
		singleQuote
		doubleQuote
		backQuote
		lineComment
		blockComment
	)
	state := plain

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch state {
		case plain:
			switch {
			case c == '\'':
				state = singleQuote
			case c == '"':
				state = doubleQuote
			case c == '`':
				state = backQuote
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = lineComment
				i++
				continue
			case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
				state = blockComment
				i++
				continue
			}
		case singleQuote:
			switch c {
			case '\\':
				if i+1 < len(sql) {
					b.WriteByte(c)
					i++
					c = sql[i]
				}
			case '\'':
				if i+1 < len(sql) && sql[i+1] == '\'' {
					b.WriteByte(c)
					i++
				} else {
					state = plain
				}
			}
		case doubleQuote:
			if c == '"' {
				state = plain
			}
		case backQuote:
			if c == '`' {
				state = plain
			}
		case lineComment:
			if c == '\n' {
				state = plain
				b.WriteByte(c)
			}
			continue
		case blockComment:
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				i++
				state = plain
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func parseAnnotations(sql string) []string {
	var notes []string
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "--") {
			continue
		}
		comment := strings.TrimSpace(strings.TrimPrefix(line, "--"))
		rest, ok := cutPrefixFold(comment, annotationPrefix)
		if !ok {
			continue
		}
		if note := strings.TrimSpace(rest); note != "" {
			notes = append(notes, note)
		}
	}
	return notes
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

// versionUpdateRe matches a statement of the form
//
//	UPDATE version SET SchemaVersion = <n>
//
// accepting both the current and the pre-rename column spelling, an
// optionally capitalized table name, and backtick quoting.
var versionUpdateRe = regexp.MustCompile(`(?is)^\s*UPDATE\s+` + "`?" + `version` + "`?" + `\s+SET\s+` + "`?" + `schema_?version` + "`?" + `\s*=\s*(\d+)\s*;?\s*$`)

var versionTouchRe = regexp.MustCompile(`(?is)^\s*UPDATE\s+` + "`?" + `version` + "`?" + `\b`)

// VersionUpdate reports whether stmt is a version bookkeeping statement and,
// if so, the schema version it assigns.
func VersionUpdate(stmt string) (to int, ok bool) {
	m := versionUpdateRe.FindStringSubmatch(strings.TrimSpace(stripComments(stmt)))
	if m == nil {
		return 0, false
	}
	to, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return to, true
}

// UpdatesVersion reports whether stmt writes the version table at all,
// whatever the assignment looks like.
func UpdatesVersion(stmt string) bool {
	return versionTouchRe.MatchString(strings.TrimSpace(stripComments(stmt)))
}
