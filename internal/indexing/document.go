// Package indexing normalises chunks into index documents, fans them out to
// the index adapters (lexical, vector, symbol, fuzzy, documentation), and
// fuses per-source search hits into one ranked result list.
package indexing

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/codefang-index/internal/chunking"
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

// Document is the normalised record passed to index adapters. ID equals the
// chunk id unless the document is virtual.
type Document struct {
	ID          string   `json:"id"`
	ChunkID     string   `json:"chunk_id"`
	RepoID      string   `json:"repo_id"`
	SnapshotID  string   `json:"snapshot_id"`
	FilePath    string   `json:"file_path"`
	Language    string   `json:"language"`
	SymbolID    string   `json:"symbol_id"`
	SymbolName  string   `json:"symbol_name"`
	Content     string   `json:"content"`
	Span        ir.Span  `json:"span"`
	Identifiers []string `json:"identifiers,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Importance  float64  `json:"importance"`
	Summary     string   `json:"summary,omitempty"`
}

// docFilenames are the documentation filename conventions (matched on the
// basename without extension, case-insensitively).
var docFilenames = map[string]struct{}{
	"readme": {}, "changelog": {}, "license": {},
	"contributing": {}, "code_of_conduct": {},
}

// docExtensions are the documentation file extensions.
var docExtensions = map[string]struct{}{
	".md": {}, ".rst": {}, ".adoc": {}, ".txt": {},
}

// IsDocumentationPath reports whether a path belongs in the
// documentation-meta index: a documentation filename convention, a
// documentation extension, or a docs/ directory component.
func IsDocumentationPath(filePath string) bool {
	base := path.Base(filePath)
	ext := strings.ToLower(path.Ext(base))
	stem := strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))

	if _, ok := docFilenames[stem]; ok {
		return true
	}

	if _, ok := docExtensions[ext]; ok {
		return true
	}

	for _, part := range strings.Split(path.Dir(filePath), "/") {
		if strings.EqualFold(part, "docs") {
			return true
		}
	}

	return false
}

// FromChunk builds the index document for one chunk. Importance defaults to
// zero and is filled in from the repo map when available.
func FromChunk(c chunking.Chunk, language string, importance float64, summary string) Document {
	return Document{
		ID:          c.ChunkID,
		ChunkID:     c.ChunkID,
		RepoID:      c.RepoID,
		SnapshotID:  c.SnapshotID,
		FilePath:    c.FilePath,
		Language:    language,
		SymbolID:    c.SymbolID,
		SymbolName:  symbolName(c),
		Content:     c.Content,
		Span:        c.Span,
		Identifiers: ExtractIdentifiers(c.Content),
		Importance:  importance,
		Summary:     summary,
	}
}

func symbolName(c chunking.Chunk) string {
	// Chunk ids carry "chunk:<path>:<fqn>"; the last dotted component of
	// the FQN is the display name.
	idx := strings.LastIndex(c.ChunkID, ":")
	if idx < 0 {
		return c.SymbolID
	}

	fqn := c.ChunkID[idx+1:]
	if dot := strings.LastIndex(fqn, "."); dot >= 0 {
		return fqn[dot+1:]
	}

	return fqn
}

// ExtractIdentifiers pulls the distinct identifier-shaped tokens out of
// content, preserving first-seen order.
func ExtractIdentifiers(content string) []string {
	seen := make(map[string]struct{})

	var (
		out []string
		cur strings.Builder
	)

	flush := func() {
		if cur.Len() < 2 {
			cur.Reset()

			return
		}

		tok := cur.String()
		cur.Reset()

		if _, dup := seen[tok]; dup {
			return
		}

		seen[tok] = struct{}{}
		out = append(out, tok)
	}

	for _, r := range content {
		if unicode.IsLetter(r) || r == '_' || (cur.Len() > 0 && unicode.IsDigit(r)) {
			cur.WriteRune(r)

			continue
		}

		flush()
	}

	flush()

	return out
}

// documentSchema validates documents at the persistence boundary before
// rows are handed to the external store.
const documentSchema = `{
	"type": "object",
	"required": ["id", "chunk_id", "repo_id", "snapshot_id", "file_path"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"chunk_id": {"type": "string", "minLength": 1},
		"repo_id": {"type": "string", "minLength": 1},
		"snapshot_id": {"type": "string", "minLength": 1},
		"file_path": {"type": "string", "minLength": 1},
		"importance": {"type": "number", "minimum": 0}
	}
}`

var documentSchemaLoader = gojsonschema.NewStringLoader(documentSchema)

// ValidateDocument checks a document against the persisted-row schema.
func ValidateDocument(doc *Document) error {
	res, err := gojsonschema.Validate(documentSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("indexing: validate document: %w", err)
	}

	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}

		return fmt.Errorf("indexing: invalid document %s: %s", doc.ID, strings.Join(msgs, "; "))
	}

	return nil
}
