// Package bfg builds per-function Basic Flow Graphs from tree-sitter ASTs:
// language-dispatched block extraction, generator lowering to an explicit
// state machine, and await/suspend-resume splitting for async code.
package bfg

import (
	"fmt"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/codefang-index/internal/astpool"
	"github.com/Sumatoshi-tech/codefang-index/internal/ir"
)

// functionNodeTypes names tree-sitter node types considered function/method
// definitions across the supported languages; used to locate the AST node
// for an IR function node and to exclude function/class definitions from
// module-scope extraction.
var functionNodeTypes = set(
	"function_definition", "function_declaration", "method_declaration",
	"function_item", "method_definition", "arrow_function",
	"generator_function_declaration", "generator_function",
)

var classNodeTypes = set(
	"class_definition", "class_declaration", "class_body",
)

var importNodeTypes = set(
	"import_statement", "import_from_statement", "import_declaration", "use_declaration",
)

// blockWrapperTypes are the body-container nodes grammars wrap statements
// in (a Python if-consequence is a "block" whose children are the real
// statements). They are unwrapped transparently during dispatch so awaits,
// loops, and nested branches inside a body are still detected.
var blockWrapperTypes = set(
	"block", "statement_block", "compound_statement", "function_body",
)

// Builder constructs BFGs for functions and files within a single language.
type Builder struct {
	rules langRules
}

// NewBuilder returns a Builder dispatching on the given language's rule set.
func NewBuilder(language string) *Builder {
	return &Builder{rules: rulesFor(language)}
}

// FunctionInput bundles what the builder needs to extract one function's
// graph: the parsed tree, its source bytes, the function's id/FQN for
// labelling blocks, and the 1-indexed starting line used to locate the AST
// node (mirroring an ast-indexed lookup keyed by declaration line).
type FunctionInput struct {
	FunctionNodeID string
	StartLine      int
	Parse          *astpool.ParseResult
}

// Build produces the BFG for one function. On any extraction failure it
// falls back to a single statement block spanning the function body, per
// the documented fallback behavior; Build itself never returns an error for
// a located function node; it returns an error only if the function node
// cannot be found at all.
func (b *Builder) Build(in FunctionInput) (*Graph, error) {
	root := in.Parse.Tree.RootNode()

	fnNode, ok := findNodeAtLine(root, functionNodeTypes, in.StartLine)
	if !ok {
		return nil, fmt.Errorf("bfg: no function node found at line %d for %s", in.StartLine, in.FunctionNodeID)
	}

	g := &Graph{
		ID:             in.FunctionNodeID + ":bfg",
		FunctionNodeID: in.FunctionNodeID,
	}

	ex := &extractor{
		rules:  b.rules,
		src:    in.Parse.Source,
		fnID:   in.FunctionNodeID,
		nextID: 0,
	}

	entry := ex.newBlock(BlockEntry, fnNode)
	g.EntryBlockID = entry.ID
	g.Blocks = append(g.Blocks, entry)

	bodyNode, hasBody := bodyOf(fnNode)

	if hasBody && containsYield(bodyNode) {
		ex.lowerGenerator(g, bodyNode)
		g.IsGenerator = true
	} else {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Fallback: any extraction failure collapses to a
					// single statement block spanning the function body.
					g.Blocks = g.Blocks[:1]
					g.Blocks = append(g.Blocks, ex.newBlock(BlockStatement, fnNode))
				}
			}()

			if hasBody {
				ex.extractChildren(g, bodyNode)
			}
		}()
	}

	exit := ex.newBlock(BlockExit, fnNode)
	g.ExitBlockID = exit.ID
	g.Blocks = append(g.Blocks, exit)

	g.TotalStatements = countStatements(g.Blocks)
	g.YieldCount = ex.yieldCount

	return g, nil
}

// BuildModule produces the virtual BFG for a file's top-level statements,
// excluding function/class definitions and imports, per the module-scope
// BFG rule. functionNodeID should be "<file_node>:module".
func (b *Builder) BuildModule(functionNodeID string, parse *astpool.ParseResult) *Graph {
	root := parse.Tree.RootNode()

	g := &Graph{
		ID:             functionNodeID + ":bfg",
		FunctionNodeID: functionNodeID,
	}

	ex := &extractor{rules: b.rules, src: parse.Source, fnID: functionNodeID}

	entry := ex.newBlock(BlockEntry, root)
	g.EntryBlockID = entry.ID
	g.Blocks = append(g.Blocks, entry)

	count := root.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := root.NamedChild(i)
		if child.IsNull() {
			continue
		}

		t := child.Type()
		if _, skip := functionNodeTypes[t]; skip {
			continue
		}

		if _, skip := classNodeTypes[t]; skip {
			continue
		}

		if _, skip := importNodeTypes[t]; skip {
			continue
		}

		ex.dispatch(g, child)
	}

	exit := ex.newBlock(BlockExit, root)
	g.ExitBlockID = exit.ID
	g.Blocks = append(g.Blocks, exit)

	g.TotalStatements = countStatements(g.Blocks)

	return g
}

type extractor struct {
	rules      langRules
	src        []byte
	fnID       string
	nextID     int
	loopStack  []string
	yieldCount int
}

func (ex *extractor) newID() string {
	ex.nextID++

	return fmt.Sprintf("%s:b%d", ex.fnID, ex.nextID)
}

func (ex *extractor) newBlock(kind BlockKind, n sitter.Node) Block {
	return Block{
		ID:             ex.newID(),
		Kind:           kind,
		Span:           spanOf(n),
		FunctionNodeID: ex.fnID,
	}
}

func (ex *extractor) text(n sitter.Node) string {
	start, end := n.StartByte(), n.EndByte()
	if end > uint(len(ex.src)) || start > end {
		return ""
	}

	return string(ex.src[start:end])
}

// extractChildren walks each named child of a node and dispatches it.
func (ex *extractor) extractChildren(g *Graph, n sitter.Node) {
	count := n.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := n.NamedChild(i)
		if child.IsNull() {
			continue
		}

		ex.dispatch(g, child)
	}
}

// dispatch classifies a single AST node and appends the resulting block(s)
// per the block extraction algorithm. Statement wrappers with a single
// meaningful child (e.g. an expression_statement around an assignment) are
// transparently unwrapped so the real construct underneath is dispatched.
func (ex *extractor) dispatch(g *Graph, n sitter.Node) {
	t := n.Type()

	switch {
	case t == "expression_statement" && n.NamedChildCount() == 1:
		ex.dispatch(g, n.NamedChild(0))
	case isOneOf(t, blockWrapperTypes):
		ex.extractChildren(g, n)
	case isOneOf(t, awaitTypes):
		ex.extractAwait(g, n, "")
	case isOneOf(t, assignTypes):
		ex.extractAssignment(g, n)
	case isOneOf(t, breakTypes):
		ex.extractLoopControl(g, n, true)
	case isOneOf(t, continueTypes):
		ex.extractLoopControl(g, n, false)
	case isOneOf(t, returnTypes):
		blk := ex.newBlock(BlockStatement, n)
		blk.IsReturn = true
		g.Blocks = append(g.Blocks, blk)
	case ex.rules.isBranch(t):
		ex.extractBranch(g, n)
	case ex.rules.isLoop(t):
		ex.extractLoop(g, n)
	case ex.rules.isTry(t):
		ex.extractTry(g, n)
	default:
		g.Blocks = append(g.Blocks, ex.newBlock(BlockStatement, n))
	}
}

// extractAssignment handles "x = await f()"-shaped statements: if the
// assignment's value is an await expression, the LHS text becomes the
// resulting RESUME block's result_variable; otherwise it's a plain
// statement block.
func (ex *extractor) extractAssignment(g *Graph, n sitter.Node) {
	count := n.NamedChildCount()
	if count < 2 {
		g.Blocks = append(g.Blocks, ex.newBlock(BlockStatement, n))

		return
	}

	target := n.NamedChild(0)
	value := n.NamedChild(count - 1)

	if !value.IsNull() && isOneOf(value.Type(), awaitTypes) {
		ex.extractAwait(g, value, ex.text(target))

		return
	}

	g.Blocks = append(g.Blocks, ex.newBlock(BlockStatement, n))
}

func (ex *extractor) extractAwait(g *Graph, n sitter.Node, resultVariable string) {
	suspend := ex.newBlock(BlockSuspend, n)
	suspend.IsAsyncCall = true
	suspend.CanThrow = true
	suspend.AwaitedExpr = ex.text(n)
	g.Blocks = append(g.Blocks, suspend)

	resume := ex.newBlock(BlockResume, n)
	resume.ResumeFromSuspendID = suspend.ID
	resume.ResultVariable = resultVariable
	g.Blocks = append(g.Blocks, resume)
}

func (ex *extractor) extractLoopControl(g *Graph, n sitter.Node, isBreak bool) {
	blk := ex.newBlock(BlockStatement, n)

	if isBreak {
		blk.IsBreak = true
	} else {
		blk.IsContinue = true
	}

	if len(ex.loopStack) > 0 {
		blk.TargetLoopID = ex.loopStack[len(ex.loopStack)-1]
	}

	g.Blocks = append(g.Blocks, blk)
}

// extractBranch emits the condition block and recurses into the then,
// elif, and else bodies. The condition expression itself is covered by
// the condition block, so it produces no statement block of its own.
func (ex *extractor) extractBranch(g *Graph, n sitter.Node) {
	cond := ex.newBlock(BlockCondition, n)
	cond.Weight = 1
	g.Blocks = append(g.Blocks, cond)

	skip := map[uint]struct{}{}

	for _, field := range []string{"condition", "subject"} {
		if fieldNode := n.ChildByFieldName(field); !fieldNode.IsNull() {
			skip[fieldNode.StartByte()] = struct{}{}
		}
	}

	count := n.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := n.NamedChild(i)
		if child.IsNull() {
			continue
		}

		if _, isCond := skip[child.StartByte()]; isCond {
			continue
		}

		ex.dispatch(g, child)
	}
}

// extractLoop emits the loop-header block and recurses into the loop body
// with the header pushed on the loop stack, so break/continue inside can
// record their target. Iteration variables and range expressions are
// covered by the header block.
func (ex *extractor) extractLoop(g *Graph, n sitter.Node) {
	head := ex.newBlock(BlockLoopHead, n)
	head.Weight = 1
	g.Blocks = append(g.Blocks, head)

	ex.loopStack = append(ex.loopStack, head.ID)

	if body := n.ChildByFieldName("body"); !body.IsNull() {
		ex.dispatch(g, body)
	} else {
		ex.extractChildren(g, n)
	}

	ex.loopStack = ex.loopStack[:len(ex.loopStack)-1]
}

func (ex *extractor) extractTry(g *Graph, n sitter.Node) {
	tryBlk := ex.newBlock(BlockTry, n)
	g.Blocks = append(g.Blocks, tryBlk)

	count := n.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := n.NamedChild(i)
		if child.IsNull() {
			continue
		}

		t := child.Type()

		switch {
		case isCatchClause(t):
			g.Blocks = append(g.Blocks, ex.newBlock(BlockCatch, child))
			ex.extractClauseBody(g, child)
		case isFinallyClause(t):
			g.Blocks = append(g.Blocks, ex.newBlock(BlockFinally, child))
			ex.extractClauseBody(g, child)
		default:
			ex.dispatch(g, child)
		}
	}
}

// extractClauseBody recurses into a catch/finally clause's body block,
// skipping the exception pattern; clauses without a dedicated block node
// fall back to dispatching every child.
func (ex *extractor) extractClauseBody(g *Graph, clause sitter.Node) {
	unwrapped := false

	count := clause.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := clause.NamedChild(i)
		if child.IsNull() {
			continue
		}

		if isOneOf(child.Type(), blockWrapperTypes) {
			ex.extractChildren(g, child)

			unwrapped = true
		}
	}

	if !unwrapped {
		ex.extractChildren(g, clause)
	}
}

// lowerGenerator rewrites a yield-containing function body into a
// state-machine shape: one YIELD block segment per yield point, preceded by
// the entry block's recorded union of local names.
func (ex *extractor) lowerGenerator(g *Graph, body sitter.Node) {
	locals := ex.collectLocalNames(body)

	if len(g.Blocks) > 0 {
		g.Blocks[0].AllLocals = locals
	}

	ex.walkYields(g, body)
}

func (ex *extractor) walkYields(g *Graph, n sitter.Node) {
	count := n.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := n.NamedChild(i)
		if child.IsNull() {
			continue
		}

		if isOneOf(child.Type(), yieldTypes) {
			blk := ex.newBlock(BlockYield, child)
			g.Blocks = append(g.Blocks, blk)
			ex.yieldCount++

			continue
		}

		if child.NamedChildCount() > 0 {
			ex.walkYields(g, child)

			continue
		}

		g.Blocks = append(g.Blocks, ex.newBlock(BlockStatement, child))
	}
}

func isCatchClause(t string) bool {
	switch t {
	case "except_clause", "catch_clause", "catch_block":
		return true
	default:
		return false
	}
}

func isFinallyClause(t string) bool {
	switch t {
	case "finally_clause", "finally_block":
		return true
	default:
		return false
	}
}

func isOneOf(t string, m map[string]struct{}) bool {
	_, ok := m[t]

	return ok
}

func spanOf(n sitter.Node) ir.Span {
	start := n.StartPoint()
	end := n.EndPoint()

	return ir.Span{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column),
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column),
	}
}

func bodyOf(fnNode sitter.Node) (sitter.Node, bool) {
	count := fnNode.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := fnNode.NamedChild(i)
		if child.IsNull() {
			continue
		}

		switch child.Type() {
		case "block", "statement_block", "compound_statement", "function_body":
			return child, true
		}
	}

	// No dedicated body node in this grammar; treat the function node
	// itself as the body so its statement children are still walked.
	return fnNode, fnNode.NamedChildCount() > 0
}

func containsYield(n sitter.Node) bool {
	if isOneOf(n.Type(), yieldTypes) {
		return true
	}

	count := n.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := n.NamedChild(i)
		if child.IsNull() {
			continue
		}

		// Don't descend into nested function definitions; yields there
		// belong to the nested function's own generator.
		if _, isFn := functionNodeTypes[child.Type()]; isFn {
			continue
		}

		if containsYield(child) {
			return true
		}
	}

	return false
}

// findNodeAtLine locates the first node of one of the given types whose
// start line matches targetLine (1-indexed), searching depth-first.
func findNodeAtLine(n sitter.Node, types map[string]struct{}, targetLine int) (sitter.Node, bool) {
	if _, ok := types[n.Type()]; ok {
		if int(n.StartPoint().Row)+1 == targetLine {
			return n, true
		}
	}

	count := n.NamedChildCount()
	for i := uint32(0); i < count; i++ {
		child := n.NamedChild(i)
		if child.IsNull() {
			continue
		}

		if found, ok := findNodeAtLine(child, types, targetLine); ok {
			return found, true
		}
	}

	return sitter.Node{}, false
}

// collectLocalNames gathers the set of identifier texts assigned anywhere
// within a generator's body, forming its closure environment.
func (ex *extractor) collectLocalNames(n sitter.Node) []string {
	seen := map[string]struct{}{}

	var walk func(sitter.Node)

	walk = func(cur sitter.Node) {
		if isOneOf(cur.Type(), assignTypes) {
			if cur.NamedChildCount() > 0 {
				target := cur.NamedChild(0)
				if !target.IsNull() && target.Type() == "identifier" {
					if name := ex.text(target); name != "" {
						seen[name] = struct{}{}
					}
				}
			}
		}

		count := cur.NamedChildCount()
		for i := uint32(0); i < count; i++ {
			child := cur.NamedChild(i)
			if !child.IsNull() {
				walk(child)
			}
		}
	}

	walk(n)

	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}

	return names
}

func countStatements(blocks []Block) int {
	count := 0

	for _, b := range blocks {
		switch b.Kind {
		case BlockEntry, BlockExit:
			continue
		default:
			count++
		}
	}

	return count
}
