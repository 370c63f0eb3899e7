// Package rubyastgen turns Ruby source files and ERB templates into JSON
// syntax tree documents, one per file.
//
// # Pipeline
//
// For each discovered file the Engine:
//
//  1. Lowers templates (.erb) into plain Ruby. Literal text becomes appends
//     to joern__buffer, interpolations are wrapped in
//     joern__template_out_escape or joern__template_out_raw, and helper
//     calls that take a template block are lifted into lambdas. A template
//     whose blocks do not balance is wrapped verbatim in a heredoc instead.
//  2. Parses the Ruby with tree-sitter. Files with syntax errors are logged
//     and counted as failed; the run continues.
//  3. Builds the document (node types, field names, 1-based lines, 0-based
//     columns, leaf text) and runs the optional Risor annotation hook.
//  4. Writes <output>/<relative path>.json.
//
// # Usage
//
//	e, err := rubyastgen.New("out", rubyastgen.WithManifest("out/.manifest.db"))
//	if err != nil { ... }
//	defer e.Close()
//
//	sum, err := e.Process(ctx, "path/to/app")
//
// # Discovery
//
// Directory inputs are walked skipping hidden directories and a few
// well-known dependency and scratch directories. Paths relative to the
// input are matched against the exclusion pattern ([DefaultExclude] unless
// [WithExclude] is given) and, when set, the [WithFilter] expression.
//
// # Incremental Runs
//
// With [WithManifest], each run records per-file content hashes and
// outcomes in SQLite. A later run skips files whose hash, output document
// and hook script are unchanged. Manifest rows and documents for sources
// that no longer exist are pruned after a directory run.
//
// # Hooks
//
// A hook ([WithHookScript]) is a Risor script that sees the parsed tree
// through tree-sitter host functions and records values with annotate.
// See the internal/runtime package for the globals exposed to hooks.
package rubyastgen
