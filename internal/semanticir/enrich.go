package semanticir

import (
	"context"
	"strings"
	"time"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
	"github.com/Sumatoshi-tech/codefang-index/pkg/safeconv"
)

// HoverClient is the language-server port used to resolve the type of a
// source position. Implementations talk LSP to an external checker; the
// pipeline only depends on this narrow slice of the protocol.
type HoverClient interface {
	Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error)
}

// hoverTimeout bounds each hover query; a slow or dead server degrades to
// the internal inference path instead of stalling the pipeline.
const hoverTimeout = 2 * time.Second

// Enricher produces a typed snapshot for an IR document, querying the hover
// client per symbol and falling back to internal inference when the client
// is absent or a query fails.
type Enricher struct {
	Client HoverClient
}

// Enrich builds the snapshot and its lookup index for one IR document.
// Sources maps file path to file content, used by the inference fallback.
func (en *Enricher) Enrich(ctx context.Context, doc *ir.Document, sources map[string][]byte) (*Snapshot, *Index) {
	snap := &Snapshot{
		SnapshotID: doc.SnapshotID,
		ProjectID:  doc.RepoID,
	}

	seenFiles := make(map[string]struct{})

	for _, n := range doc.Nodes {
		if n.Kind == ir.KindFile {
			if _, ok := seenFiles[n.FilePath]; !ok {
				seenFiles[n.FilePath] = struct{}{}
				snap.Files = append(snap.Files, n.FilePath)
			}

			continue
		}

		typeStr := en.typeOf(ctx, n, sources[n.FilePath])
		if typeStr == "" {
			continue
		}

		snap.Entries = append(snap.Entries, TypeEntry{File: n.FilePath, Span: n.Span, Type: typeStr})
	}

	return snap, NewIndex(snap)
}

func (en *Enricher) typeOf(ctx context.Context, n ir.Node, source []byte) string {
	if en.Client != nil {
		if t, ok := en.hover(ctx, n); ok {
			return t
		}
	}

	return inferType(n, source)
}

func (en *Enricher) hover(ctx context.Context, n ir.Node) (string, bool) {
	hctx, cancel := context.WithTimeout(ctx, hoverTimeout)
	defer cancel()

	params := &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentUri("file://" + n.FilePath)},
			Position: protocol.Position{
				Line:      safeconv.MustIntToUint32(n.Span.StartLine - 1),
				Character: safeconv.MustIntToUint32(n.Span.StartCol),
			},
		},
	}

	hov, err := en.Client.Hover(hctx, params)
	if err != nil || hov == nil {
		return "", false
	}

	return hoverText(hov.Contents), hoverText(hov.Contents) != ""
}

func hoverText(contents any) string {
	switch c := contents.(type) {
	case protocol.MarkupContent:
		return firstLine(c.Value)
	case string:
		return firstLine(c)
	default:
		return ""
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}

	return strings.TrimPrefix(strings.TrimSuffix(s, "```"), "```")
}

// inferType derives a coarse type string from the IR node alone: the
// declaration line's text for callables and classes, the node kind
// otherwise. A real checker's hover result always wins over this.
func inferType(n ir.Node, source []byte) string {
	switch n.Kind {
	case ir.KindFunction, ir.KindMethod, ir.KindClass:
		if sig := declarationLine(source, n.Span.StartLine); sig != "" {
			return sig
		}

		return string(n.Kind) + " " + n.Name
	case ir.KindVariable:
		return "variable " + n.Name
	case ir.KindModule:
		return "module " + n.Name
	case ir.KindFile:
		return ""
	default:
		return ""
	}
}

func declarationLine(source []byte, line int) string {
	if len(source) == 0 || line < 1 {
		return ""
	}

	lines := strings.Split(string(source), "\n")
	if line > len(lines) {
		return ""
	}

	return strings.TrimSuffix(strings.TrimSpace(lines[line-1]), "{")
}
