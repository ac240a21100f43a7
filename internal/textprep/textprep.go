// Package textprep provides the text hygiene primitives shared by every
// extraction path: control-character scrubbing, whitespace normalization and
// UTF-8-boundary-safe truncation counted in Unicode scalar values.
package textprep

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// CleanText normalizes line endings and strips characters that should never
// appear in extracted text: CRLF/CR become LF, formfeed becomes a paragraph
// break, a leading BOM is removed, and C0/C1 control characters other than
// \n and \t are replaced with spaces. The function is idempotent.
func CleanText(s string) string {
	if s == "" {
		return s
	}
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\f", "\n\n")
	if !hasControl(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isForbiddenControl(r) {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func hasControl(s string) bool {
	for _, r := range s {
		if isForbiddenControl(r) {
			return true
		}
	}
	return false
}

// isForbiddenControl reports whether r is a C0/C1 control character that is
// not \n or \t. DEL (0x7f) counts as forbidden.
func isForbiddenControl(r rune) bool {
	if r == '\n' || r == '\t' {
		return false
	}
	if r < 0x20 || r == 0x7f {
		return true
	}
	return r >= 0x80 && r <= 0x9f
}

// TruncateChars cuts s to at most n Unicode scalar values, never splitting a
// codepoint. n <= 0 yields the empty string. The operation is idempotent for
// n >= utf8.RuneCountInString(s).
func TruncateChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// CollapseWhitespace trims every line, collapses internal whitespace runs to
// single spaces and keeps at most one consecutive blank line.
func CollapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, collapseSpaces(trimmed))
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}

// NormalizeForMatch lowercases and NFC-normalizes s for token comparison.
func NormalizeForMatch(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// Tokenize splits s into lowercase alphanumeric tokens of length >= 2,
// suitable for lexical chunk scoring.
func Tokenize(s string) []string {
	s = NormalizeForMatch(s)
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() >= 2 {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
	}
	for _, r := range s {
		if isAlnum(r) {
			cur.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || r > 0x7f && isLetterish(r)
}

func isLetterish(r rune) bool {
	// Non-ASCII letters pass through so CJK and accented queries still match.
	return !strings.ContainsRune(" \t\n.,;:!?()[]{}<>\"'`/\\|@#$%^&*-_=+~", r)
}

// TruncateBytesSafe cuts b to at most n bytes without splitting a UTF-8
// sequence, backing up to the previous rune boundary when needed.
func TruncateBytesSafe(b []byte, n int) []byte {
	if n <= 0 {
		return nil
	}
	if len(b) <= n {
		return b
	}
	cut := n
	for cut > 0 && cut > n-4 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return b[:cut]
}
