// Package resolver renders a note body against the full note set: it
// rewrites wikilinks, materializes transclusions and renders Markdown.
package resolver

import (
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/starford/laguz/internal/models"
)

// DefaultMaxDepth bounds nested transclusion.
const DefaultMaxDepth = 8

// DefaultLinkBase prefixes the href of live wikilinks.
const DefaultLinkBase = "/notes/"

var (
	transclusionRe = regexp.MustCompile(`!\[\[([^\]#]+)(?:#([^\]]+))?\]\]`)
	wikilinkRe     = regexp.MustCompile(`\[\[([^\]#]+)(?:#([^\]]+))?\]\]`)
	markerRe       = regexp.MustCompile(`<wikilink data-slug="([^"]*)" data-header="([^"]*)" data-exists="(true|false)">(.*?)</wikilink>`)
	tagRe          = regexp.MustCompile(`#[A-Za-z0-9_-]+`)
)

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&quot;")

func escape(s string) string { return attrEscaper.Replace(s) }

// DiagnosticKind classifies a resolution problem.
type DiagnosticKind string

const (
	MissingNote   DiagnosticKind = "missing-note"
	MissingHeader DiagnosticKind = "missing-header"
	Cycle         DiagnosticKind = "cycle"
	DepthExceeded DiagnosticKind = "depth-exceeded"
)

// Diagnostic is a non-fatal resolution problem rendered inline.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Slug    string         `json:"slug"`
	Header  string         `json:"header,omitempty"`
	Message string         `json:"message"`
}

// Rendered is the resolved form of one note.
type Rendered struct {
	HTML          string                         `json:"html"`
	Links         []models.LinkReference         `json:"links"`
	Transclusions []models.TransclusionReference `json:"transclusions"`
	Tags          []string                       `json:"tags"`
	Diagnostics   []Diagnostic                   `json:"diagnostics"`
}

// Options configures a Resolver. Zero values select defaults.
type Options struct {
	Renderer Renderer
	LinkBase string
	MaxDepth int
	Logger   *slog.Logger
}

// Resolver renders notes. It holds no per-note state and is safe for
// concurrent use when its Renderer is.
type Resolver struct {
	renderer Renderer
	linkBase string
	maxDepth int
	log      *slog.Logger
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	r := &Resolver{
		renderer: opts.Renderer,
		linkBase: opts.LinkBase,
		maxDepth: opts.MaxDepth,
		log:      opts.Logger,
	}
	if r.renderer == nil {
		r.renderer = NewGoldmark()
	}
	if r.linkBase == "" {
		r.linkBase = DefaultLinkBase
	}
	if r.maxDepth <= 0 {
		r.maxDepth = DefaultMaxDepth
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

type embed struct {
	token  string
	slug   string
	header string
}

type resolution struct {
	notes   map[string]*models.Note
	visited map[string]bool
	tokens  int
	out     *Rendered
}

// Resolve renders note against all. It never fails: missing targets become
// diagnostics and inline error blocks.
func (r *Resolver) Resolve(note models.Note, all []models.Note) Rendered {
	res := &resolution{
		notes:   make(map[string]*models.Note, len(all)),
		visited: map[string]bool{note.Slug: true},
		out: &Rendered{
			Links:         []models.LinkReference{},
			Transclusions: []models.TransclusionReference{},
			Diagnostics:   []Diagnostic{},
		},
	}
	for i := range all {
		if _, dup := res.notes[all[i].Slug]; !dup {
			res.notes[all[i].Slug] = &all[i]
		}
	}
	res.out.Tags = Tags(note.Body)
	res.out.HTML = r.render(res, note.Body, 0, true)
	return *res.out
}

func (r *Resolver) render(res *resolution, body string, depth int, top bool) string {
	var embeds []embed
	body = transclusionRe.ReplaceAllStringFunc(body, func(m string) string {
		sub := transclusionRe.FindStringSubmatch(m)
		e := embed{
			token:  fmt.Sprintf("TRANSCLUSION_PLACEHOLDER_%d_END", res.tokens),
			slug:   strings.TrimSpace(sub[1]),
			header: strings.TrimSpace(sub[2]),
		}
		res.tokens++
		embeds = append(embeds, e)
		if top {
			res.out.Transclusions = append(res.out.Transclusions, models.TransclusionReference{Slug: e.slug, Header: e.header})
		}
		return e.token
	})

	body = wikilinkRe.ReplaceAllStringFunc(body, func(m string) string {
		sub := wikilinkRe.FindStringSubmatch(m)
		slug, header := strings.TrimSpace(sub[1]), strings.TrimSpace(sub[2])
		label := slug
		target, exists := res.notes[slug]
		if exists {
			label = target.Title
		}
		if header != "" {
			label += " › " + header
		}
		if top {
			res.out.Links = append(res.out.Links, models.LinkReference{Slug: slug, Header: header, Label: label, Exists: exists})
		}
		return fmt.Sprintf(`<wikilink data-slug="%s" data-header="%s" data-exists="%t">%s</wikilink>`,
			escape(slug), escape(header), exists, escape(label))
	})

	out := r.markdown(body)

	out = markerRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := markerRe.FindStringSubmatch(m)
		slug, header, exists, label := sub[1], sub[2], sub[3], sub[4]
		if exists != "true" {
			return `<span class="deadlink">` + label + `</span>`
		}
		href := r.linkBase + escape(url.PathEscape(html.UnescapeString(slug)))
		if header != "" {
			href += "#" + NormalizeHeader(header)
		}
		return fmt.Sprintf(`<a class="wikilink" href="%s" data-slug="%s" data-header="%s">%s</a>`, href, slug, header, label)
	})

	for _, e := range embeds {
		block := r.transclude(res, e, depth)
		out = strings.Replace(out, "<p>"+e.token+"</p>", block, 1)
		out = strings.Replace(out, e.token, block, 1)
	}
	return out
}

// markdown runs the primary renderer and falls back to the substitution
// renderer on error or panic.
func (r *Resolver) markdown(src string) (out string) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Warn("resolver: renderer panicked, using fallback", slog.Any("panic", p))
			out = renderFallback(src)
		}
	}()
	b, err := r.renderer.Render([]byte(src))
	if err != nil {
		r.log.Warn("resolver: renderer failed, using fallback", slog.String("error", err.Error()))
		return renderFallback(src)
	}
	return string(b)
}

func (r *Resolver) transclude(res *resolution, e embed, depth int) string {
	target, ok := res.notes[e.slug]
	if !ok {
		return r.fail(res, Diagnostic{
			Kind:    MissingNote,
			Slug:    e.slug,
			Header:  e.header,
			Message: fmt.Sprintf("The note %q could not be found.", e.slug),
		}, "Note not found", "")
	}
	if res.visited[e.slug] {
		return r.fail(res, Diagnostic{
			Kind:    Cycle,
			Slug:    e.slug,
			Header:  e.header,
			Message: fmt.Sprintf("The note %q is already being embedded here.", e.slug),
		}, "Transclusion cycle", "")
	}
	if depth+1 > r.maxDepth {
		return r.fail(res, Diagnostic{
			Kind:    DepthExceeded,
			Slug:    e.slug,
			Header:  e.header,
			Message: fmt.Sprintf("Embedding %q exceeds the nesting limit of %d.", e.slug, r.maxDepth),
		}, "Nesting limit reached", "")
	}

	content := target.Body
	if e.header != "" {
		section, found := ExtractSection(content, e.header)
		if !found {
			return r.fail(res, Diagnostic{
				Kind:    MissingHeader,
				Slug:    e.slug,
				Header:  e.header,
				Message: fmt.Sprintf("The header %q was not found in %q.", e.header, target.Title),
			}, "Header not found", headingList(content))
		}
		content = section
	}

	inner := "<p><em>No content</em></p>"
	if strings.TrimSpace(content) != "" {
		res.visited[e.slug] = true
		inner = unwrapParagraph(strings.TrimSpace(r.render(res, content, depth+1, false)))
		delete(res.visited, e.slug)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="transclusion-block" data-source-slug="%s">`, escape(e.slug))
	fmt.Fprintf(&b, `<div class="transclusion-header"><span class="transclusion-source">From %s</span>`, escape(target.Title))
	fmt.Fprintf(&b, `<a class="transclusion-link" href="%s" data-slug="%s">Go to text →</a></div>`, escape(r.linkBase+e.slug), escape(e.slug))
	fmt.Fprintf(&b, `<div class="transclusion-content">%s</div>`, inner)
	if chips := Tags(content); len(chips) > 0 {
		b.WriteString(`<div class="transclusion-tags">`)
		for _, tag := range chips {
			fmt.Fprintf(&b, `<span class="transclusion-tag">#%s</span>`, escape(tag))
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func (r *Resolver) fail(res *resolution, d Diagnostic, title, extra string) string {
	res.out.Diagnostics = append(res.out.Diagnostics, d)
	return fmt.Sprintf(`<div class="transclusion-block transclusion-error" data-source-slug="%s"><div class="transclusion-header"><span class="transclusion-source">⚠️ %s</span></div><div class="transclusion-content"><p>%s</p>%s</div></div>`,
		escape(d.Slug), title, escape(d.Message), extra)
}

func headingList(body string) string {
	var b strings.Builder
	b.WriteString(`<details><summary>Available headers:</summary><ul>`)
	for _, h := range HeadingOutline(body) {
		fmt.Fprintf(&b, `<li>%s</li>`, escape(h))
	}
	b.WriteString(`</ul></details>`)
	return b.String()
}

func unwrapParagraph(html string) string {
	if strings.HasPrefix(html, "<p>") && strings.HasSuffix(html, "</p>") && strings.Count(html, "<p>") == 1 {
		return html[3 : len(html)-4]
	}
	return html
}

// stripReferences removes wikilink and transclusion syntax so tag scans do
// not pick up header fragments.
func stripReferences(body string) string {
	return wikilinkRe.ReplaceAllString(transclusionRe.ReplaceAllString(body, ""), "")
}

// Tags returns the distinct inline #tags of body in order of appearance,
// without the leading '#'.
func Tags(body string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, m := range tagRe.FindAllString(stripReferences(body), -1) {
		tag := m[1:]
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}

// Backlinks returns every other note whose body contains [[slug]] or
// ![[slug]], in input order.
func Backlinks(slug string, all []models.Note) []models.Note {
	needle := "[[" + slug + "]]" // also matches ![[slug]]
	out := []models.Note{}
	for _, n := range all {
		if n.Slug != slug && strings.Contains(n.Body, needle) {
			out = append(out, n)
		}
	}
	return out
}
