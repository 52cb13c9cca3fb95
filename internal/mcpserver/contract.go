package mcpserver

// SyntaxGuide describes the vault conventions Laguz resolves, for LLM
// consumers reading or rendering notes.
const SyntaxGuide = `# Laguz Vault Syntax

Notes are Markdown files in a Dendron-style dot hierarchy. The file name,
minus its extension, is the note's slug: ` + "`" + `projects.laguz.md` + "`" + ` has slug
` + "`" + `projects.laguz` + "`" + `.

## Frontmatter

` + "```" + `markdown
---
title: Laguz                 # OPTIONAL – derived from the slug when missing
tags: [ingest, "markdown"]   # OPTIONAL – list values use [a, b, c]
---
` + "```" + `

The block must start on the first line. Each line is ` + "`" + `key: value` + "`" + `;
quotes around values are stripped. Without a title, the slug segments are
capitalised and joined with " › " (` + "`" + `projects.laguz` + "`" + ` → "Projects › Laguz").

## Links

- ` + "`" + `[[slug]]` + "`" + ` links another note; the label is the slug.
- ` + "`" + `[[slug#Header]]` + "`" + ` links a section; the label is "slug > Header".
- Links to missing notes render as dead links.

## Transclusions

- ` + "`" + `![[slug]]` + "`" + ` embeds the whole body of another note.
- ` + "`" + `![[slug#Header]]` + "`" + ` embeds one section: the heading and everything up
  to the next heading of the same or higher level.
- Header matching ignores case and punctuation; spaces and hyphens are
  interchangeable.
- Embeds nest up to 8 levels. A note embedding itself, directly or through
  others, renders an error block instead of recursing.

## Tags and diagrams

- ` + "`" + `#tag` + "`" + ` (letters, digits, ` + "`" + `_` + "`" + `, ` + "`" + `-` + "`" + `) marks a tag. Tags of an embedded
  note are shown under its transclusion.
- A fenced ` + "`" + `mermaid` + "`" + ` block renders as a diagram placeholder.
`
