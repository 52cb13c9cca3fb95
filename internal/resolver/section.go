package resolver

import (
	"regexp"
	"strings"
	"unicode"
)

var headingRe = regexp.MustCompile(`^(#{1,6})[ \t]+(.+?)[ \t]*$`)

// Heading is one ATX heading found in a note body.
type Heading struct {
	Level  int
	Text   string
	Offset int // byte offset of the heading line
}

// Headings returns the ATX headings of body in order, ignoring fenced code
// and tag lines.
func Headings(body string) []Heading {
	var (
		out    []Heading
		fence  string
		offset int
	)
	for _, line := range strings.SplitAfter(body, "\n") {
		start := offset
		offset += len(line)
		trimmed := strings.TrimRight(line, "\r\n")

		if marker := fenceMarker(trimmed); marker != "" {
			switch {
			case fence == "":
				fence = marker
			case strings.HasPrefix(strings.TrimSpace(trimmed), fence):
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}

		m := headingRe.FindStringSubmatch(trimmed)
		if m == nil || strings.HasPrefix(m[2], "#") {
			continue
		}
		out = append(out, Heading{Level: len(m[1]), Text: m[2], Offset: start})
	}
	return out
}

func fenceMarker(line string) string {
	s := strings.TrimLeft(line, " ")
	if len(line)-len(s) > 3 {
		return ""
	}
	for _, m := range []string{"```", "~~~"} {
		if strings.HasPrefix(s, m) {
			return m
		}
	}
	return ""
}

// ExtractSection returns the section of body that starts at the heading
// matching header and runs up to the next heading of the same or shallower
// level. The heading line itself is included.
func ExtractSection(body, header string) (string, bool) {
	target := NormalizeHeader(header)
	headings := Headings(body)
	for i, h := range headings {
		if NormalizeHeader(h.Text) != target {
			continue
		}
		end := len(body)
		for _, next := range headings[i+1:] {
			if next.Level <= h.Level {
				end = next.Offset
				break
			}
		}
		return strings.TrimSpace(body[h.Offset:end]), true
	}
	return "", false
}

// HeadingOutline lists headings indented by level, for diagnostics.
func HeadingOutline(body string) []string {
	var out []string
	for _, h := range Headings(body) {
		out = append(out, strings.Repeat("  ", h.Level-1)+strings.Repeat("#", h.Level)+" "+h.Text)
	}
	if len(out) == 0 {
		return []string{"No headers found"}
	}
	return out
}

// NormalizeHeader lowercases text, drops punctuation and joins words with
// single hyphens.
func NormalizeHeader(text string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsSpace(r) || r == '-':
			pendingSep = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
