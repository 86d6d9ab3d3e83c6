package bfg

// langRules is the per-language dispatch table: the sets of tree-sitter
// node type names that count as branch, loop, and try constructs for that
// language. Unsupported languages get an empty langRules (graceful
// degradation: entry/exit blocks still exist).
type langRules struct {
	Branch map[string]struct{}
	Loop   map[string]struct{}
	Try    map[string]struct{}
}

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}

	return m
}

var dispatchTable = map[string]langRules{
	"python": {
		Branch: set("if_statement", "elif_clause", "else_clause", "match_statement", "case_clause"),
		Loop:   set("for_statement", "while_statement"),
		Try:    set("try_statement", "except_clause", "finally_clause"),
	},
	"javascript": {
		Branch: set("if_statement", "else_clause"),
		Loop:   set("for_statement", "for_in_statement", "while_statement", "do_statement"),
		Try:    set("try_statement"),
	},
	"typescript": {
		Branch: set("if_statement", "else_clause"),
		Loop:   set("for_statement", "for_in_statement", "while_statement", "do_statement"),
		Try:    set("try_statement"),
	},
	"tsx": {
		Branch: set("if_statement", "else_clause"),
		Loop:   set("for_statement", "for_in_statement", "while_statement", "do_statement"),
		Try:    set("try_statement"),
	},
	"java": {
		Branch: set("if_statement", "switch_expression", "switch_statement"),
		Loop:   set("for_statement", "enhanced_for_statement", "while_statement", "do_statement"),
		Try:    set("try_statement", "try_with_resources_statement", "catch_clause", "finally_clause"),
	},
	"kotlin": {
		Branch: set("if_expression", "when_expression"),
		Loop:   set("for_statement", "while_statement", "do_while_statement"),
		Try:    set("try_expression", "catch_block", "finally_block"),
	},
}

// rulesFor returns the dispatch rules for a language, or an empty
// (all-nil-set) rules value for unsupported languages.
func rulesFor(language string) langRules {
	if r, ok := dispatchTable[language]; ok {
		return r
	}

	return langRules{}
}

func (r langRules) isBranch(nodeType string) bool {
	_, ok := r.Branch[nodeType]

	return ok
}

func (r langRules) isLoop(nodeType string) bool {
	_, ok := r.Loop[nodeType]

	return ok
}

func (r langRules) isTry(nodeType string) bool {
	_, ok := r.Try[nodeType]

	return ok
}

// Generic node-type names recognised across languages for control
// statements that aren't part of the per-language dispatch table (await,
// yield, break/continue/return). These vary little across tree-sitter
// grammars in practice; languages with different spellings fall back to
// treating the construct as a regular statement, which degrades
// gracefully (still produces a valid, if less precise, BFG).
var (
	awaitTypes    = set("await", "await_expression")
	yieldTypes    = set("yield_expression", "yield")
	breakTypes    = set("break_statement")
	continueTypes = set("continue_statement")
	returnTypes   = set("return_statement")
	assignTypes   = set("assignment", "assignment_expression", "variable_declarator", "let_declaration", "short_var_declaration")
)
