// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package filter

import (
	"fmt"
	"strings"
)

// CheckRegexPattern verifies the pattern stays within the translatable subset:
// leading ^ and trailing $ anchors, '.', '.*', backslash escapes, and
// literals. Alternation, classes, groups, and bounded repetition have no LIKE
// equivalent and are rejected rather than silently matched as literals.
func CheckRegexPattern(field, pattern string) error {
	body := strings.TrimPrefix(pattern, "^")
	if strings.HasSuffix(body, "$") && !strings.HasSuffix(body, `\$`) {
		body = body[:len(body)-1]
	}

	unsupported := func() error {
		return fmt.Errorf("Operator $regex for field '%s' supports only ^ and $ anchors, '.', '.*', escapes, and literal text", field)
	}

	runes := []rune(body)
	prevPlainDot := false
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\\':
			if i+1 >= len(runes) {
				return unsupported()
			}
			i++
			prevPlainDot = false
		case '|', '[', ']', '(', ')', '+', '?', '{', '}', '^', '$':
			return unsupported()
		case '*':
			if !prevPlainDot {
				return unsupported()
			}
			prevPlainDot = false
		case '.':
			prevPlainDot = true
		default:
			prevPlainDot = false
		}
	}
	return nil
}

// RegexToLike converts the supported regex subset into a SQL LIKE pattern.
//
// # Supported constructs
//
//   - ^ and $ anchors (leading/trailing only)
//   - .* → %   and   . → _
//   - \. \\ and other backslash escapes become the literal character
//
// Literal % and _ in the pattern are escaped with a backslash so they cannot
// act as wildcard metacharacters; callers must emit LIKE ... ESCAPE '\'.
// An unanchored pattern is wrapped in %...% to match anywhere, mirroring
// regex search semantics.
func RegexToLike(pattern string) string {
	anchoredStart := strings.HasPrefix(pattern, "^")
	anchoredEnd := strings.HasSuffix(pattern, "$") && !strings.HasSuffix(pattern, `\$`)

	body := pattern
	if anchoredStart {
		body = body[1:]
	}
	if anchoredEnd {
		body = body[:len(body)-1]
	}

	var b strings.Builder
	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\\':
			// Escape sequence: the next rune is a literal.
			if i+1 < len(runes) {
				i++
				writeLikeLiteral(&b, runes[i])
			}
		case '.':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteByte('%')
				i++
			} else {
				b.WriteByte('_')
			}
		default:
			writeLikeLiteral(&b, r)
		}
	}

	like := b.String()
	if !anchoredStart {
		like = "%" + like
	}
	if !anchoredEnd {
		like = like + "%"
	}
	return like
}

// writeLikeLiteral escapes LIKE metacharacters in a literal rune.
func writeLikeLiteral(b *strings.Builder, r rune) {
	switch r {
	case '%', '_', '\\':
		b.WriteByte('\\')
	}
	b.WriteRune(r)
}
