// Package textquery implements the V|T pipeline query grammar: a vector
// similarity seed, an optional `|` separator, and a shell-style text
// filter expression.
package textquery

import "strings"

// SplitPipeline splits a query on the first unescaped `|`. The left side
// is the vector similarity seed, the right side the text filter
// expression; either may be empty. `\|` produces a literal pipe and the
// backslash is consumed; any other escape is left intact for ParseTerms.
func SplitPipeline(query string) (vectorQuery, textFilter string) {
	var left strings.Builder
	runes := []rune(query)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch == '\\' && i+1 < len(runes) {
			if runes[i+1] == '|' {
				left.WriteRune('|')
			} else {
				left.WriteRune(ch)
				left.WriteRune(runes[i+1])
			}
			i++
			continue
		}
		if ch == '|' {
			return strings.TrimSpace(left.String()), strings.TrimSpace(string(runes[i+1:]))
		}
		left.WriteRune(ch)
	}
	return strings.TrimSpace(left.String()), ""
}

// ParseTerms parses a text filter expression into inclusion and
// exclusion terms. Shell-style rules: terms are space-separated,
// double-quoted substrings are single terms with spaces preserved, a
// leading `-` marks an exclusion, and backslash escapes the next
// character literally.
func ParseTerms(text string) (include, exclude []string) {
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		for i < len(runes) && isSpace(runes[i]) {
			i++
		}
		if i >= len(runes) {
			break
		}

		isExclude := false
		if runes[i] == '-' {
			isExclude = true
			i++
		}

		var term strings.Builder
		quoted := false
	scan:
		for i < len(runes) {
			ch := runes[i]
			switch {
			case ch == '\\' && i+1 < len(runes):
				i++
				term.WriteRune(runes[i])
				i++
			case ch == '"' && !quoted:
				quoted = true
				i++
			case ch == '"' && quoted:
				// closing quote ends the term
				i++
				break scan
			case isSpace(ch) && !quoted:
				break scan
			default:
				term.WriteRune(ch)
				i++
			}
		}

		if term.Len() > 0 {
			if isExclude {
				exclude = append(exclude, term.String())
			} else {
				include = append(include, term.String())
			}
		}
	}
	return include, exclude
}

// Match reports whether content satisfies the term lists: every include
// term must appear and no exclude term may appear, both as
// case-insensitive substrings.
func Match(content string, include, exclude []string) bool {
	lower := strings.ToLower(content)
	for _, term := range include {
		if !strings.Contains(lower, strings.ToLower(term)) {
			return false
		}
	}
	for _, term := range exclude {
		if strings.Contains(lower, strings.ToLower(term)) {
			return false
		}
	}
	return true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
