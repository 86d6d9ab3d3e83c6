package astpool

import (
	"sync"
	"unsafe"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/alexaandru/go-sitter-forest/ansible"
	"github.com/alexaandru/go-sitter-forest/bash"
	"github.com/alexaandru/go-sitter-forest/c"
	"github.com/alexaandru/go-sitter-forest/c_sharp"
	"github.com/alexaandru/go-sitter-forest/clojure"
	"github.com/alexaandru/go-sitter-forest/cmake"
	"github.com/alexaandru/go-sitter-forest/commonlisp"
	"github.com/alexaandru/go-sitter-forest/cpp"
	"github.com/alexaandru/go-sitter-forest/crystal"
	"github.com/alexaandru/go-sitter-forest/css"
	"github.com/alexaandru/go-sitter-forest/csv"
	"github.com/alexaandru/go-sitter-forest/dart"
	"github.com/alexaandru/go-sitter-forest/dockerfile"
	"github.com/alexaandru/go-sitter-forest/dotenv"
	"github.com/alexaandru/go-sitter-forest/elixir"
	"github.com/alexaandru/go-sitter-forest/elm"
	"github.com/alexaandru/go-sitter-forest/fish"
	"github.com/alexaandru/go-sitter-forest/fortran"
	"github.com/alexaandru/go-sitter-forest/git_config"
	"github.com/alexaandru/go-sitter-forest/gitattributes"
	"github.com/alexaandru/go-sitter-forest/gitignore"
	golang "github.com/alexaandru/go-sitter-forest/go"
	"github.com/alexaandru/go-sitter-forest/gosum"
	"github.com/alexaandru/go-sitter-forest/gotmpl"
	"github.com/alexaandru/go-sitter-forest/gowork"
	"github.com/alexaandru/go-sitter-forest/graphql"
	"github.com/alexaandru/go-sitter-forest/groovy"
	"github.com/alexaandru/go-sitter-forest/haskell"
	"github.com/alexaandru/go-sitter-forest/hcl"
	"github.com/alexaandru/go-sitter-forest/helm"
	"github.com/alexaandru/go-sitter-forest/html"
	"github.com/alexaandru/go-sitter-forest/ini"
	"github.com/alexaandru/go-sitter-forest/java"
	"github.com/alexaandru/go-sitter-forest/javascript"
	"github.com/alexaandru/go-sitter-forest/json"
	"github.com/alexaandru/go-sitter-forest/kotlin"
	"github.com/alexaandru/go-sitter-forest/latex"
	"github.com/alexaandru/go-sitter-forest/lua"
	"github.com/alexaandru/go-sitter-forest/make"
	"github.com/alexaandru/go-sitter-forest/markdown"
	"github.com/alexaandru/go-sitter-forest/nim"
	"github.com/alexaandru/go-sitter-forest/perl"
	"github.com/alexaandru/go-sitter-forest/php"
	"github.com/alexaandru/go-sitter-forest/powershell"
	"github.com/alexaandru/go-sitter-forest/properties"
	"github.com/alexaandru/go-sitter-forest/proto"
	"github.com/alexaandru/go-sitter-forest/python"
	"github.com/alexaandru/go-sitter-forest/r"
	"github.com/alexaandru/go-sitter-forest/ruby"
	"github.com/alexaandru/go-sitter-forest/rust"
	"github.com/alexaandru/go-sitter-forest/scala"
	"github.com/alexaandru/go-sitter-forest/sql"
	"github.com/alexaandru/go-sitter-forest/swift"
	"github.com/alexaandru/go-sitter-forest/toml"
	"github.com/alexaandru/go-sitter-forest/tsx"
	"github.com/alexaandru/go-sitter-forest/typescript"
	"github.com/alexaandru/go-sitter-forest/xml"
	"github.com/alexaandru/go-sitter-forest/yaml"
	"github.com/alexaandru/go-sitter-forest/zig"
)

// languageFuncs maps language names to their tree-sitter GetLanguage
// functions. Besides programming languages it also registers markup, data
// and config grammars (markdown, html, css, json, yaml, toml and others).
var languageFuncs = map[string]func() unsafe.Pointer{
	"ansible":       ansible.GetLanguage,
	"bash":          bash.GetLanguage,
	"c":             c.GetLanguage,
	"c_sharp":       c_sharp.GetLanguage,
	"clojure":       clojure.GetLanguage,
	"cmake":         cmake.GetLanguage,
	"commonlisp":    commonlisp.GetLanguage,
	"cpp":           cpp.GetLanguage,
	"crystal":       crystal.GetLanguage,
	"css":           css.GetLanguage,
	"csv":           csv.GetLanguage,
	"dart":          dart.GetLanguage,
	"dockerfile":    dockerfile.GetLanguage,
	"dotenv":        dotenv.GetLanguage,
	"elixir":        elixir.GetLanguage,
	"elm":           elm.GetLanguage,
	"fish":          fish.GetLanguage,
	"fortran":       fortran.GetLanguage,
	"git_config":    git_config.GetLanguage,
	"gitattributes": gitattributes.GetLanguage,
	"gitignore":     gitignore.GetLanguage,
	"go":            golang.GetLanguage,
	"gosum":         gosum.GetLanguage,
	"gotmpl":        gotmpl.GetLanguage,
	"gowork":        gowork.GetLanguage,
	"graphql":       graphql.GetLanguage,
	"groovy":        groovy.GetLanguage,
	"haskell":       haskell.GetLanguage,
	"hcl":           hcl.GetLanguage,
	"helm":          helm.GetLanguage,
	"html":          html.GetLanguage,
	"ini":           ini.GetLanguage,
	"java":          java.GetLanguage,
	"javascript":    javascript.GetLanguage,
	"json":          json.GetLanguage,
	"kotlin":        kotlin.GetLanguage,
	"latex":         latex.GetLanguage,
	"lua":           lua.GetLanguage,
	"make":          make.GetLanguage,
	"markdown":      markdown.GetLanguage,
	"nim":           nim.GetLanguage,
	"perl":          perl.GetLanguage,
	"php":           php.GetLanguage,
	"powershell":    powershell.GetLanguage,
	"properties":    properties.GetLanguage,
	"proto":         proto.GetLanguage,
	"python":        python.GetLanguage,
	"r":             r.GetLanguage,
	"ruby":          ruby.GetLanguage,
	"rust":          rust.GetLanguage,
	"scala":         scala.GetLanguage,
	"sql":           sql.GetLanguage,
	"swift":         swift.GetLanguage,
	"toml":          toml.GetLanguage,
	"tsx":           tsx.GetLanguage,
	"typescript":    typescript.GetLanguage,
	"xml":           xml.GetLanguage,
	"yaml":          yaml.GetLanguage,
	"zig":           zig.GetLanguage,
}

// extensionToLanguage maps file extensions to the language keys above.
var extensionToLanguage = map[string]string{
	".go":         "go",
	".py":         "python",
	".pyw":        "python",
	".pyi":        "python",
	".js":         "javascript",
	".mjs":        "javascript",
	".cjs":        "javascript",
	".jsx":        "javascript",
	".ts":         "typescript",
	".mts":        "typescript",
	".cts":        "typescript",
	".tsx":        "tsx",
	".rs":         "rust",
	".java":       "java",
	".kt":         "kotlin",
	".kts":        "kotlin",
	".scala":      "scala",
	".c":          "c",
	".h":          "c",
	".cpp":        "cpp",
	".cc":         "cpp",
	".cxx":        "cpp",
	".hpp":        "cpp",
	".cs":         "c_sharp",
	".rb":         "ruby",
	".php":        "php",
	".sh":         "bash",
	".bash":       "bash",
	".ps1":        "powershell",
	".pl":         "perl",
	".lua":        "lua",
	".r":          "r",
	".swift":      "swift",
	".ex":         "elixir",
	".exs":        "elixir",
	".hs":         "haskell",
	".clj":        "clojure",
	".cljs":       "clojure",
	".cr":         "crystal",
	".dart":       "dart",
	".fish":       "fish",
	".f90":        "fortran",
	".html":       "html",
	".css":        "css",
	".json":       "json",
	".xml":        "xml",
	".yaml":       "yaml",
	".yml":        "yaml",
	".toml":       "toml",
	".sql":        "sql",
	".md":         "markdown",
	".graphql":    "graphql",
	".proto":      "proto",
	".cmake":      "cmake",
	".dockerfile": "dockerfile",
	".zig":        "zig",
	".ini":        "ini",
	".csv":        "csv",
	".properties": "properties",
}

var languageCache sync.Map

// LanguageForExtension returns the language key for a lowercase file
// extension (including the leading dot), or "" if unsupported.
func LanguageForExtension(ext string) string {
	return extensionToLanguage[ext]
}

// GetLanguage returns the tree-sitter Language for the given language key,
// or nil if unsupported. Lookups are cached since grammar construction is
// not free and languages are shared read-only across goroutines once built.
func GetLanguage(name string) *sitter.Language {
	if cached, ok := languageCache.Load(name); ok {
		if lang, castOK := cached.(*sitter.Language); castOK {
			return lang
		}
	}

	fn, ok := languageFuncs[name]
	if !ok {
		return nil
	}

	lang := sitter.NewLanguage(fn())
	languageCache.Store(name, lang)

	return lang
}

// Supported reports whether a language key has a registered grammar.
func Supported(name string) bool {
	_, ok := languageFuncs[name]

	return ok
}
