// Package scripts embeds the built-in annotation hooks.
package scripts

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// FS holds the built-in hooks under hooks/.
//
//go:embed hooks/*.risor
var FS embed.FS

// BuiltinPrefix selects a built-in hook by name wherever a hook path is
// accepted, e.g. "builtin:definitions".
const BuiltinPrefix = "builtin:"

// Builtin returns the path within FS of the built-in hook called name.
func Builtin(name string) (string, bool) {
	p := path.Join("hooks", name+".risor")
	if _, err := fs.Stat(FS, p); err != nil {
		return "", false
	}
	return p, true
}

// Names lists the built-in hooks, sorted.
func Names() []string {
	entries, _ := fs.ReadDir(FS, "hooks")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".risor"))
	}
	sort.Strings(names)
	return names
}
