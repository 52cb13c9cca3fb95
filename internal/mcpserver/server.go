// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the loaded vault to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/resolver"
)

// SyntaxURI is the resource holding SyntaxGuide.
const SyntaxURI = "laguz://syntax"

const searchLimit = 20

// Vault is the read side of the session state. *pipeline.Library
// implements it.
type Vault interface {
	Notes() []models.Note
	Note(slug string) (models.Note, error)
	Render(slug string) (models.Note, resolver.Rendered, error)
	Backlinks(slug string) ([]models.Note, error)
	Search(query string, limit int) []models.Note
}

// Server wraps the MCP server with Laguz tools.
type Server struct {
	mcp   *server.MCPServer
	vault Vault
}

// New creates a new MCP server with all Laguz tools registered.
func New(v Vault, version string) *Server {
	s := &Server{vault: v}

	s.mcp = server.NewMCPServer(
		"Laguz",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes as 'slug: title' lines in title order."),
		mcp.WithString("prefix", mcp.Description("Optional slug prefix, e.g. 'projects.' for a hierarchy branch")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the Markdown body of a note, without frontmatter."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Note slug (file name without extension)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("render_note",
		mcp.WithDescription("Render a note to HTML with wikilinks, transclusions and tags resolved. "+
			"Returns JSON with html, links, transclusions, tags and diagnostics."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Note slug")),
	), s.renderNote)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to or embed the specified note."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Slug of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Case-insensitive substring search over note titles, slugs and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_syntax",
		mcp.WithDescription("Returns the vault syntax guide: slugs, frontmatter, links, transclusions and tags."),
	), s.getSyntax)

	s.mcp.AddResource(
		mcp.NewResource(SyntaxURI, "Vault Syntax",
			mcp.WithResourceDescription("Wikilink, transclusion and frontmatter conventions of the vault."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSyntaxResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type noteHit struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

func hits(notes []models.Note) []noteHit {
	out := make([]noteHit, len(notes))
	for i, n := range notes {
		out[i] = noteHit{Slug: n.Slug, Title: n.Title, Path: n.Path}
	}
	return out
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := req.GetString("prefix", "")

	var lines []string
	for _, n := range s.vault.Notes() {
		if strings.HasPrefix(n.Slug, prefix) {
			lines = append(lines, n.Slug+": "+n.Title)
		}
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.vault.Note(slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", slug)), nil
	}
	return mcp.NewToolResultText(note.Body), nil
}

func (s *Server) renderNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, rendered, err := s.vault.Render(slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", slug)), nil
	}
	out, _ := json.MarshalIndent(rendered, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.vault.Backlinks(slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", slug)), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	slugs := make([]string, len(bl))
	for i, n := range bl {
		slugs[i] = n.Slug
	}
	return mcp.NewToolResultText(strings.Join(slugs, "\n")), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(hits(s.vault.Search(query, searchLimit)), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getSyntax(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SyntaxGuide), nil
}

func (s *Server) readSyntaxResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      SyntaxURI,
			MIMEType: "text/markdown",
			Text:     SyntaxGuide,
		},
	}, nil
}
