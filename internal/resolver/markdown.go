package resolver

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/starford/laguz/internal/checksum"
)

// Renderer converts Markdown source to HTML.
type Renderer interface {
	Render(src []byte) ([]byte, error)
}

// Goldmark is the primary Renderer: GFM plus inline hashtags and diagram
// fences.
type Goldmark struct {
	md goldmark.Markdown
}

// NewGoldmark builds the primary renderer. Raw HTML passes through so link
// markers survive rendering.
func NewGoldmark() *Goldmark {
	return &Goldmark{md: goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.TaskList, vaultSyntax{}),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)}
}

// Render implements Renderer.
func (g *Goldmark) Render(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := g.md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("markdown render: %w", err)
	}
	return buf.Bytes(), nil
}

// vaultSyntax registers the hashtag inline parser, the diagram transformer
// and their renderers.
type vaultSyntax struct{}

func (vaultSyntax) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithInlineParsers(util.Prioritized(hashtagParser{}, 999)),
		parser.WithASTTransformers(util.Prioritized(diagramTransformer{}, 999)),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(util.Prioritized(vaultRenderer{}, 999)),
	)
}

// KindHashtag is the node kind of an inline #tag.
var KindHashtag = ast.NewNodeKind("Hashtag")

// Hashtag is an inline #tag.
type Hashtag struct {
	ast.BaseInline
	Tag string
}

func (n *Hashtag) Kind() ast.NodeKind { return KindHashtag }

func (n *Hashtag) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Tag": n.Tag}, nil)
}

// KindDiagram is the node kind of a diagram placeholder.
var KindDiagram = ast.NewNodeKind("Diagram")

// Diagram replaces a mermaid fenced code block.
type Diagram struct {
	ast.BaseBlock
	Chart string
	ID    string
}

func (n *Diagram) Kind() ast.NodeKind { return KindDiagram }

func (n *Diagram) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"ID": n.ID}, nil)
}

type hashtagParser struct{}

func (hashtagParser) Trigger() []byte { return []byte{'#'} }

func (hashtagParser) Parse(_ ast.Node, block text.Reader, _ parser.Context) ast.Node {
	line, _ := block.PeekLine()
	n := 1
	for n < len(line) && isTagByte(line[n]) {
		n++
	}
	if n == 1 {
		return nil
	}
	block.Advance(n)
	return &Hashtag{Tag: string(line[1:n])}
}

func isTagByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}

type diagramTransformer struct{}

func (diagramTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	var fences []*ast.FencedCodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if fc, ok := n.(*ast.FencedCodeBlock); ok && string(fc.Language(source)) == "mermaid" {
			fences = append(fences, fc)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	for i, fc := range fences {
		var chart strings.Builder
		lines := fc.Lines()
		for j := 0; j < lines.Len(); j++ {
			seg := lines.At(j)
			chart.Write(seg.Value(source))
		}
		d := &Diagram{Chart: strings.TrimSpace(chart.String())}
		d.ID = diagramID(d.Chart, i)
		parent := fc.Parent()
		parent.ReplaceChild(parent, fc, d)
	}
}

type vaultRenderer struct{}

func (vaultRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindHashtag, renderHashtag)
	reg.Register(KindDiagram, renderDiagram)
}

func renderHashtag(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(hashtagHTML(n.(*Hashtag).Tag))
	}
	return ast.WalkSkipChildren, nil
}

func renderDiagram(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		d := n.(*Diagram)
		_, _ = w.WriteString(diagramHTML(d.Chart, d.ID))
		_ = w.WriteByte('\n')
	}
	return ast.WalkSkipChildren, nil
}

func hashtagHTML(tag string) string {
	return `<span class="hashtag" data-tag="` + tag + `">#` + tag + `</span>`
}

func diagramHTML(chart, id string) string {
	return `<div class="mermaid-diagram" data-chart="` + encodeURIComponent(chart) + `" data-id="` + id + `"></div>`
}

func diagramID(chart string, n int) string {
	return fmt.Sprintf("mermaid-%s-%d", checksum.Short(chart), n)
}

// encodeURIComponent percent-encodes s so decodeURIComponent restores it.
func encodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
