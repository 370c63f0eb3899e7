package runtime

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/rubyastgen/internal/ruby"
)

// Runtime embeds a Risor VM and provides tree-sitter host functions to
// annotation hook scripts. A Runtime holds no per-file state and is safe
// for concurrent use; every run gets its own globals.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	logger     *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log global.
func WithRuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// NewRuntime creates a Runtime that resolves script paths and imports
// against scriptsDir.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hook is a loaded annotation script.
type Hook struct {
	Path   string
	Source string
	// Hash is the hex SHA-256 of Source. Documents produced under a
	// different hook hash are stale.
	Hash string
}

// HookInput is what a hook sees of one parsed file.
type HookInput struct {
	Tree     *ruby.Tree
	FilePath string
	RelPath  string
	IsERB    bool
}

// LoadHook reads the script at path and returns it ready to run.
func (r *Runtime) LoadHook(path string) (*Hook, error) {
	src, err := r.LoadScript(path)
	if err != nil {
		return nil, err
	}
	return &Hook{
		Path:   path,
		Source: src,
		Hash:   fmt.Sprintf("%x", sha256.Sum256([]byte(src))),
	}, nil
}

// RunHook runs h against one parsed file and returns the values the script
// recorded with annotate. A nil map means nothing was annotated.
func (r *Runtime) RunHook(ctx context.Context, h *Hook, in HookInput) (map[string]any, error) {
	ss := newSourceStore()
	ss.store(in.Tree.Root(), in.Tree.Source)

	root, err := object.NewProxy(in.Tree.Root())
	if err != nil {
		return nil, fmt.Errorf("runtime: proxy root: %w", err)
	}

	ann := &annotations{}
	extras := map[string]any{
		"root":      root,
		"file_path": in.FilePath,
		"rel_path":  in.RelPath,
		"is_erb":    in.IsERB,
		"source":    string(in.Tree.Source),
		"annotate":  makeAnnotateFn(ss, ann),
		"log":       mustProxy(&logObject{logger: r.logger.With("hook", h.Path, "file", in.RelPath)}),
	}
	if err := r.eval(ctx, ss, h.Source, h.Path, extras); err != nil {
		return nil, err
	}
	return ann.values, nil
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, newSourceStore(), src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals. Useful for testing without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, newSourceStore(), source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, ss *sourceStore, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(ss, extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly.
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	_, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
// When an fs.FS is configured, uses fs.ReadFile on the embedded filesystem.
// Otherwise, uses os.ReadFile with scriptsDir as the base directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		// For fs.FS, strip any leading path separator so the path is
		// relative within the FS (e.g., "/hooks/sinks.risor" -> "hooks/sinks.risor").
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(ss *sourceStore, extra map[string]any) map[string]any {
	globals := map[string]any{
		"parse_src":  makeParseSrcFn(ss),
		"node_text":  makeNodeTextFn(ss),
		"node_child": makeNodeChildFn(),
		"query":      makeQueryFn(ss),
		"log":        mustProxy(&logObject{logger: r.logger}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

// annotations collects the values a hook records for one file.
type annotations struct {
	mu     sync.Mutex
	values map[string]any
}

func (a *annotations) set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.values == nil {
		a.values = make(map[string]any)
	}
	a.values[key] = value
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
