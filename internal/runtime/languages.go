package runtime

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/rubyastgen/internal/ruby"
)

// File kinds handled by the pipeline.
const (
	KindRuby = "ruby"
	KindERB  = "erb"
)

// extToKind maps file extensions to file kinds.
var extToKind = map[string]string{
	".rb":      KindRuby,
	".gemspec": KindRuby,
	".rake":    KindRuby,
	".ru":      KindRuby,
	".erb":     KindERB,
}

// nameToKind maps extensionless file names that hold Ruby source.
var nameToKind = map[string]string{
	"Rakefile": KindRuby,
	"Gemfile":  KindRuby,
}

// KindForFile returns the file kind for a path based on its extension or,
// for well-known extensionless files, its name. Returns ("", false) if the
// file is not handled.
func KindForFile(path string) (string, bool) {
	base := filepath.Base(path)
	if kind, ok := nameToKind[base]; ok {
		return kind, true
	}
	kind, ok := extToKind[strings.ToLower(filepath.Ext(base))]
	return kind, ok
}

// ParserForKind returns the tree-sitter grammar that parses a file kind.
// Templates are parsed after lowering, so both kinds share the Ruby
// grammar. Returns (nil, false) for unknown kinds.
func ParserForKind(kind string) (*sitter.Language, bool) {
	switch kind {
	case KindRuby, KindERB:
		return ruby.Language(), true
	}
	return nil, false
}
