// Package parser turns raw Markdown files into notes: it splits the
// frontmatter block, parses its key/value lines and derives slug and title.
// Every function here is pure.
package parser

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/laguz/internal/models"
)

// TitleSeparator joins capitalised slug segments in derived titles.
const TitleSeparator = " › "

var frontmatterRe = regexp.MustCompile(`(?s)\A---\n(.*?)\n---\n(.*)\z`)

// ParseFile builds a note from a raw file. Files without content yield a nil
// note and a nil error.
func ParseFile(file models.RawFile) (*models.Note, error) {
	if file.Content == "" {
		return nil, nil
	}
	file.Name = ValidUTF8(file.Name)
	file.Path = ValidUTF8(file.Path)
	file.Content = ValidUTF8(file.Content)

	fm, body := SplitFrontmatter(file.Content)
	slug := Slug(file.Name)

	title := fm.String("title")
	if title == "" {
		title = SlugToTitle(slug)
	}

	return &models.Note{
		Slug:        slug,
		Title:       title,
		Body:        body,
		Frontmatter: fm,
		Path:        file.Path,
	}, nil
}

// SplitFrontmatter separates a leading "---\n...\n---\n" block from the body.
// Content without a complete block is returned unchanged with empty metadata.
func SplitFrontmatter(content string) (models.Frontmatter, string) {
	m := frontmatterRe.FindStringSubmatch(content)
	if m == nil {
		return models.Frontmatter{}, content
	}
	return ParseFrontmatter(m[1]), m[2]
}

// ParseFrontmatter parses "key: value" lines. A value of the form [a, b, c]
// becomes a list of trimmed items; quotes are stripped from items and scalars.
// Lines without a key before the first colon are ignored.
func ParseFrontmatter(block string) models.Frontmatter {
	fm := models.Frontmatter{}
	for _, line := range strings.Split(block, "\n") {
		colon := strings.Index(line, ":")
		if colon <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])

		if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") && len(value) >= 2 {
			items := []string{}
			for _, item := range strings.Split(value[1:len(value)-1], ",") {
				item = stripQuotes(strings.TrimSpace(item))
				if item != "" {
					items = append(items, item)
				}
			}
			fm[key] = models.ListValue(items...)
			continue
		}
		fm[key] = models.StringValue(stripQuotes(value))
	}
	return fm
}

// Slug derives a note slug from a filename by dropping its extension.
func Slug(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// SlugToTitle capitalises each dot-delimited slug segment and joins them
// with TitleSeparator: "foo.bar" becomes "Foo › Bar".
func SlugToTitle(slug string) string {
	parts := strings.Split(slug, ".")
	for i, part := range parts {
		r, size := utf8.DecodeRuneInString(part)
		if size == 0 {
			continue
		}
		parts[i] = string(unicode.ToUpper(r)) + part[size:]
	}
	return strings.Join(parts, TitleSeparator)
}

// ValidUTF8 replaces every byte of s that is not part of a valid UTF-8
// sequence with U+FFFD, one replacement per byte, matching encoding/json.
func ValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

func stripQuotes(s string) string {
	return strings.NewReplacer(`"`, "", `'`, "").Replace(s)
}
