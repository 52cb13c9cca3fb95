package resolver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	fbDiagramRe = regexp.MustCompile("(?s)```mermaid\n(.*?)\n```")
	fbTokenRe   = regexp.MustCompile(`LAGUZDIAGRAM(\d+)X`)
	fbH3Re      = regexp.MustCompile(`(?m)^### (.*)$`)
	fbH2Re      = regexp.MustCompile(`(?m)^## (.*)$`)
	fbH1Re      = regexp.MustCompile(`(?m)^# (.*)$`)
	fbBoldRe    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	fbItalicRe  = regexp.MustCompile(`\*(.*?)\*`)
	fbCodeRe    = regexp.MustCompile("`(.*?)`")
	fbHashtagRe = regexp.MustCompile(`#([a-zA-Z0-9_-]+)`)
)

// Fallback is the deterministic substitution renderer used when the primary
// renderer fails. It never returns an error.
type Fallback struct{}

// Render implements Renderer.
func (Fallback) Render(src []byte) ([]byte, error) {
	return []byte(renderFallback(string(src))), nil
}

func renderFallback(src string) string {
	var diagrams []string
	out := fbDiagramRe.ReplaceAllStringFunc(src, func(m string) string {
		chart := strings.TrimSpace(fbDiagramRe.FindStringSubmatch(m)[1])
		diagrams = append(diagrams, diagramHTML(chart, diagramID(chart, len(diagrams))))
		return fmt.Sprintf("LAGUZDIAGRAM%dX", len(diagrams)-1)
	})

	out = fbH3Re.ReplaceAllString(out, "<h3>$1</h3>")
	out = fbH2Re.ReplaceAllString(out, "<h2>$1</h2>")
	out = fbH1Re.ReplaceAllString(out, "<h1>$1</h1>")
	out = fbBoldRe.ReplaceAllString(out, "<strong>$1</strong>")
	out = fbItalicRe.ReplaceAllString(out, "<em>$1</em>")
	out = fbCodeRe.ReplaceAllString(out, "<code>$1</code>")
	out = fbHashtagRe.ReplaceAllStringFunc(out, func(m string) string {
		return hashtagHTML(m[1:])
	})

	out = strings.ReplaceAll(out, "\n\n", "</p><p>")
	out = strings.ReplaceAll(out, "\n", "<br>")
	out = "<p>" + out + "</p>"

	return fbTokenRe.ReplaceAllStringFunc(out, func(m string) string {
		i, err := strconv.Atoi(fbTokenRe.FindStringSubmatch(m)[1])
		if err != nil || i >= len(diagrams) {
			return m
		}
		return diagrams[i]
	})
}
