package ir

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/codefang-index/internal/astpool"
	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
	"github.com/Sumatoshi-tech/codefang-index/pkg/textutil"
)

// SchemaVersion is the current IR document schema version.
const SchemaVersion = 2

// TextLanguage marks files carried through the pipeline without parsing:
// documentation and other plain-text content.
const TextLanguage = "text"

// BuildConfig tunes the layered builder.
type BuildConfig struct {
	// SemanticTier selects how much semantic detail the builder attaches
	// ("syntactic", "typed"); the builder itself only records it.
	SemanticTier string

	// Occurrences enables variable occurrence nodes.
	Occurrences bool

	// CrossFile enables call/import edge resolution across files.
	CrossFile bool

	// RetrievalIndex reserves identifier extraction for retrieval; the
	// chunk stage consumes it.
	RetrievalIndex bool

	// ParallelWorkers sizes the per-file worker pool; <=1 is sequential.
	ParallelWorkers int
}

// BuildTotals aggregates counts across a multi-file build.
type BuildTotals struct {
	Files       int
	Nodes       int
	Edges       int
	FailedFiles []string
}

var builderFunctionTypes = map[string]struct{}{
	"function_definition": {}, "function_declaration": {}, "method_declaration": {},
	"function_item": {}, "method_definition": {}, "generator_function_declaration": {},
}

var builderClassTypes = map[string]struct{}{
	"class_definition": {}, "class_declaration": {}, "object_declaration": {},
}

var builderImportTypes = map[string]struct{}{
	"import_statement": {}, "import_from_statement": {}, "import_declaration": {},
	"use_declaration": {}, "import_header": {},
}

var builderCallTypes = map[string]struct{}{
	"call": {}, "call_expression": {}, "method_invocation": {},
}

// BuildFiles runs the layered builder over many files: each file is parsed
// and lowered to a per-file IR document; cross-file call edges are resolved
// in a second pass when enabled. Per-file failures are collected, not
// fatal.
func BuildFiles(ctx context.Context, repoID, snapshotID string, files []string, sources map[string][]byte, languages map[string]string, pool *astpool.Pool, cfg BuildConfig) (map[string]*Document, BuildTotals, error) {
	perFile := make(map[string]*Document, len(files))
	totals := BuildTotals{}

	workers := cfg.ParallelWorkers
	if workers <= 1 {
		workers = 1
	}

	type result struct {
		file string
		doc  *Document
		err  error
	}

	work := make(chan string)
	results := make(chan result)

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for file := range work {
				doc, err := BuildFileLegacy(ctx, repoID, snapshotID, file, sources[file], languages[file], pool, cfg)
				results <- result{file: file, doc: doc, err: err}
			}
		}()
	}

	go func() {
		defer close(work)

		for _, file := range files {
			select {
			case work <- file:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			totals.FailedFiles = append(totals.FailedFiles, res.file)

			continue
		}

		perFile[res.file] = res.doc
		totals.Files++
		totals.Nodes += len(res.doc.Nodes)
		totals.Edges += len(res.doc.Edges)
	}

	sort.Strings(totals.FailedFiles)

	if cfg.CrossFile {
		totals.Edges += resolveCrossFileCalls(perFile)
	}

	return perFile, totals, ctx.Err()
}

// Merge combines per-file documents into one snapshot document.
func Merge(repoID, snapshotID string, perFile map[string]*Document) *Document {
	files := make([]string, 0, len(perFile))
	for f := range perFile {
		files = append(files, f)
	}

	sort.Strings(files)

	merged := &Document{RepoID: repoID, SnapshotID: snapshotID, SchemaVersion: SchemaVersion}

	for _, f := range files {
		merged.Nodes = append(merged.Nodes, perFile[f].Nodes...)
		merged.Edges = append(merged.Edges, perFile[f].Edges...)
	}

	return merged
}

// BuildFileLegacy is the per-file builder: parse one file and lower its
// definitions, imports, and intra-file calls into a document. Plain-text
// files (language "text") get a file node only, so documentation still
// flows through the chunk and index stages without an AST.
func BuildFileLegacy(ctx context.Context, repoID, snapshotID, filePath string, source []byte, language string, pool *astpool.Pool, cfg BuildConfig) (*Document, error) {
	if language == TextLanguage {
		return buildTextFile(repoID, snapshotID, filePath, source), nil
	}

	parse, err := pool.Parse(ctx, language, source)
	if err != nil {
		return nil, &errs.IRGenerationError{File: filePath, Err: err}
	}
	defer parse.Close()

	b := &fileBuilder{
		doc:      &Document{RepoID: repoID, SnapshotID: snapshotID, SchemaVersion: SchemaVersion},
		filePath: filePath,
		language: language,
		source:   source,
		module:   moduleName(filePath),
		cfg:      cfg,
	}

	root := parse.Tree.RootNode()

	fileID := nodeID(filePath, "file", 0)
	b.doc.Nodes = append(b.doc.Nodes, Node{
		ID:       fileID,
		Kind:     KindFile,
		FQN:      filePath,
		Name:     path.Base(filePath),
		FilePath: filePath,
		Span:     spanOfNode(root),
		Language: language,
	})

	moduleID := nodeID(filePath, "module", 0)
	b.doc.Nodes = append(b.doc.Nodes, Node{
		ID:       moduleID,
		Kind:     KindModule,
		FQN:      b.module,
		Name:     b.module,
		FilePath: filePath,
		Span:     spanOfNode(root),
		Language: language,
	})
	b.addEdge(EdgeContains, fileID, moduleID)

	b.walk(root, moduleID, b.module)
	b.resolveLocalCalls()

	return b.doc, nil
}

func buildTextFile(repoID, snapshotID, filePath string, source []byte) *Document {
	lineCount := textutil.CountLines(source)

	return &Document{
		RepoID:        repoID,
		SnapshotID:    snapshotID,
		SchemaVersion: SchemaVersion,
		Nodes: []Node{{
			ID:       nodeID(filePath, "file", 0),
			Kind:     KindFile,
			FQN:      filePath,
			Name:     path.Base(filePath),
			FilePath: filePath,
			Span:     Span{StartLine: 1, EndLine: lineCount},
			Language: TextLanguage,
		}},
	}
}

type pendingCall struct {
	callerID string
	callee   string
}

type fileBuilder struct {
	doc      *Document
	filePath string
	language string
	source   []byte
	module   string
	cfg      BuildConfig

	edgeSeq int
	calls   []pendingCall
	defs    map[string]string // simple name -> node id
}

func (b *fileBuilder) walk(n sitter.Node, parentID, parentFQN string) {
	count := n.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := n.NamedChild(i)
		if child.IsNull() {
			continue
		}

		t := child.Type()

		switch {
		case isType(t, builderFunctionTypes):
			b.addDefinition(child, parentID, parentFQN, KindFunction)
		case isType(t, builderClassTypes):
			b.addDefinition(child, parentID, parentFQN, KindClass)
		case isType(t, builderImportTypes):
			b.addImport(child, parentID)
		default:
			b.walk(child, parentID, parentFQN)
		}
	}
}

func (b *fileBuilder) addDefinition(n sitter.Node, parentID, parentFQN string, kind NodeKind) {
	name := identifierOf(n, b.source)
	if name == "" {
		return
	}

	if kind == KindFunction && isMethodContext(parentID, b.doc) {
		kind = KindMethod
	}

	fqn := parentFQN + "." + name
	id := nodeID(b.filePath, string(kind), uint32(n.StartByte()))

	if b.defs == nil {
		b.defs = make(map[string]string)
	}

	b.defs[name] = id

	b.doc.Nodes = append(b.doc.Nodes, Node{
		ID:       id,
		Kind:     kind,
		FQN:      fqn,
		Name:     name,
		FilePath: b.filePath,
		Span:     spanOfNode(n),
		Language: b.language,
	})
	b.addEdge(EdgeContains, parentID, id)

	b.collectCalls(n, id)
	b.walk(n, id, fqn)
}

func (b *fileBuilder) addImport(n sitter.Node, parentID string) {
	target := strings.TrimSpace(string(b.source[n.StartByte():n.EndByte()]))
	id := nodeID(b.filePath, "import", uint32(n.StartByte()))

	b.doc.Nodes = append(b.doc.Nodes, Node{
		ID:       id,
		Kind:     KindVariable,
		FQN:      b.module + ".import." + fmt.Sprint(n.StartByte()),
		Name:     target,
		FilePath: b.filePath,
		Span:     spanOfNode(n),
		Language: b.language,
	})
	b.addEdge(EdgeImports, parentID, id)
}

// collectCalls records callee names inside a definition body for later
// resolution; nested definitions collect their own.
func (b *fileBuilder) collectCalls(n sitter.Node, callerID string) {
	count := n.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := n.NamedChild(i)
		if child.IsNull() {
			continue
		}

		t := child.Type()

		if isType(t, builderFunctionTypes) || isType(t, builderClassTypes) {
			continue
		}

		if isType(t, builderCallTypes) {
			if callee := calleeNameOf(child, b.source); callee != "" {
				b.calls = append(b.calls, pendingCall{callerID: callerID, callee: callee})
			}
		}

		b.collectCalls(child, callerID)
	}
}

// resolveLocalCalls turns pending calls whose callee is defined in this
// file into call edges; the rest are exported for the cross-file pass.
func (b *fileBuilder) resolveLocalCalls() {
	for _, call := range b.calls {
		if targetID, ok := b.defs[call.callee]; ok {
			if targetID != call.callerID {
				b.addEdge(EdgeCalls, call.callerID, targetID)
			}

			continue
		}

		b.doc.UnresolvedCalls = append(b.doc.UnresolvedCalls, UnresolvedCall{CallerID: call.callerID, Callee: call.callee})
	}
}

func (b *fileBuilder) addEdge(kind EdgeKind, sourceID, targetID string) {
	b.edgeSeq++
	b.doc.Edges = append(b.doc.Edges, Edge{
		ID:       fmt.Sprintf("%s:e%d", b.filePath, b.edgeSeq),
		Kind:     kind,
		SourceID: sourceID,
		TargetID: targetID,
	})
}

// resolveCrossFileCalls links unresolved calls to definitions in other
// files by simple-name match, returning how many edges were added.
// Ambiguous names (defined in several files) are skipped rather than
// guessed.
func resolveCrossFileCalls(perFile map[string]*Document) int {
	defCount := make(map[string]int)
	defID := make(map[string]string)
	defFile := make(map[string]string)

	for file, doc := range perFile {
		for _, n := range doc.Nodes {
			if n.Kind == KindFunction || n.Kind == KindMethod || n.Kind == KindClass {
				defCount[n.Name]++
				defID[n.Name] = n.ID
				defFile[n.Name] = file
			}
		}
	}

	added := 0

	for file, doc := range perFile {
		seq := 0

		for _, pc := range doc.UnresolvedCalls {
			if defCount[pc.Callee] != 1 || defFile[pc.Callee] == file {
				continue
			}

			seq++
			doc.Edges = append(doc.Edges, Edge{
				ID:       fmt.Sprintf("%s:x%d", file, seq),
				Kind:     EdgeCalls,
				SourceID: pc.CallerID,
				TargetID: defID[pc.Callee],
			})
			added++
		}
	}

	return added
}

func isType(t string, set map[string]struct{}) bool {
	_, ok := set[t]

	return ok
}

func isMethodContext(parentID string, doc *Document) bool {
	for _, n := range doc.Nodes {
		if n.ID == parentID {
			return n.Kind == KindClass
		}
	}

	return false
}

func identifierOf(n sitter.Node, source []byte) string {
	count := n.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := n.NamedChild(i)
		if child.IsNull() {
			continue
		}

		t := child.Type()
		if t == "identifier" || t == "type_identifier" || t == "simple_identifier" || t == "field_identifier" || t == "name" {
			return string(source[child.StartByte():child.EndByte()])
		}
	}

	return ""
}

func calleeNameOf(callNode sitter.Node, source []byte) string {
	if callNode.NamedChildCount() == 0 {
		return ""
	}

	fn := callNode.NamedChild(0)
	if fn.IsNull() {
		return ""
	}

	text := string(source[fn.StartByte():fn.EndByte()])

	// "obj.method" resolves by the rightmost component.
	if dot := strings.LastIndexByte(text, '.'); dot >= 0 {
		text = text[dot+1:]
	}

	return text
}

func spanOfNode(n sitter.Node) Span {
	start := n.StartPoint()
	end := n.EndPoint()

	return Span{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column),
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column),
	}
}

func nodeID(filePath, kind string, offset uint32) string {
	return fmt.Sprintf("%s:%s:%d", filePath, kind, offset)
}

func moduleName(filePath string) string {
	base := path.Base(filePath)

	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		base = base[:dot]
	}

	return base
}
