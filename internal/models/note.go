// Package models defines the domain types for Laguz.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Local is the origin identity of files read from a local directory.
const Local = "local"

// GitHubOrigin returns the origin identity of files fetched from owner/repo.
func GitHubOrigin(owner, repo string) string {
	return "github:" + owner + "/" + repo
}

// RawFile is one source file before parsing. An empty Content means the file
// carries no content and yields no note.
type RawFile struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Content     string `json:"content,omitempty"`
	Size        int64  `json:"size,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	Origin      string `json:"origin"`
}

// Note is a parsed Markdown document. Notes are never mutated after parsing.
type Note struct {
	Slug        string      `json:"slug"`
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	Frontmatter Frontmatter `json:"frontmatter"`
	Path        string      `json:"path"`
}

// Frontmatter holds the key/value pairs of a note's metadata block.
type Frontmatter map[string]FrontmatterValue

// String returns the scalar value stored under key, or "" when the key is
// missing or holds a list.
func (f Frontmatter) String(key string) string {
	v, ok := f[key]
	if !ok || v.IsList() {
		return ""
	}
	return v.Str()
}

// FrontmatterValue is either a single string or a list of strings.
type FrontmatterValue struct {
	str    string
	list   []string
	isList bool
}

// StringValue builds a scalar frontmatter value.
func StringValue(s string) FrontmatterValue {
	return FrontmatterValue{str: s}
}

// ListValue builds a list frontmatter value.
func ListValue(items ...string) FrontmatterValue {
	if items == nil {
		items = []string{}
	}
	return FrontmatterValue{list: items, isList: true}
}

// IsList reports whether v holds a list.
func (v FrontmatterValue) IsList() bool { return v.isList }

// Str returns the scalar value; for lists it is empty.
func (v FrontmatterValue) Str() string { return v.str }

// List returns the list items; for scalars it is nil.
func (v FrontmatterValue) List() []string { return v.list }

// MarshalJSON encodes v as a JSON string or array of strings.
func (v FrontmatterValue) MarshalJSON() ([]byte, error) {
	if v.isList {
		return json.Marshal(v.list)
	}
	return json.Marshal(v.str)
}

// UnmarshalJSON decodes a JSON string or array of strings.
func (v *FrontmatterValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("frontmatter list: %w", err)
		}
		*v = ListValue(items...)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("frontmatter string: %w", err)
	}
	*v = StringValue(s)
	return nil
}

// Cache sources.
const (
	SourceGitHub = "github"
	SourceLocal  = "local"
)

// LocalCacheKey is the fixed metadata key of the local source.
const LocalCacheKey = "local-files"

// GitHubCacheKey returns the metadata key for owner/repo.
func GitHubCacheKey(owner, repo string) string {
	return fmt.Sprintf("github-%s-%s", owner, repo)
}

// OriginInfo identifies the remote snapshot a cache record was taken from.
type OriginInfo struct {
	Owner          string    `json:"owner"`
	Repo           string    `json:"repo"`
	Branch         string    `json:"branch,omitempty"`
	LastCommitID   string    `json:"last_commit_id,omitempty"`
	LastCommitTime time.Time `json:"last_commit_time,omitempty"`
}

// CacheRecord is point-in-time metadata for one cached source.
type CacheRecord struct {
	Key       string      `json:"key"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Origin    *OriginInfo `json:"origin,omitempty"`
	FileCount int         `json:"file_count"`
}

// LinkReference is a parsed [[slug]] or [[slug#header]] reference.
type LinkReference struct {
	Slug   string `json:"slug"`
	Header string `json:"header,omitempty"`
	Label  string `json:"label"`
	Exists bool   `json:"exists"`
}

// TransclusionReference is a parsed ![[slug]] or ![[slug#header]] embed.
type TransclusionReference struct {
	Slug   string `json:"slug"`
	Header string `json:"header,omitempty"`
}
