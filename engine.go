package rubyastgen

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jward/rubyastgen/internal/document"
	"github.com/jward/rubyastgen/internal/erb"
	"github.com/jward/rubyastgen/internal/ruby"
	"github.com/jward/rubyastgen/internal/runtime"
	"github.com/jward/rubyastgen/internal/store"
)

// DefaultExclude matches paths, relative to the input directory, that are
// not processed unless WithExclude overrides it.
const DefaultExclude = `^(tests?|vendor|spec)`

// DefaultWorkers is the worker pool size used when WithWorkers is not given.
const DefaultWorkers = 10

// hookHashKey is the manifest metadata key holding the hash of the hook
// script used for the last run.
const hookHashKey = "hook_hash"

// Engine turns Ruby sources and templates into syntax tree documents:
// file discovery, exclusion, template lowering, parsing, annotation hooks,
// document writing and the run manifest.
type Engine struct {
	outputDir string

	excludeSrc string
	exclude    *regexp.Regexp
	filterSrc  string
	filter     *vm.Program

	workers     int
	useParallel bool
	logger      *slog.Logger

	manifestPath string
	store        *store.Store // nil when no manifest is kept

	hookPath string
	hookFS   fs.FS
	hook     *runtime.Hook
	runtime  *runtime.Runtime
}

// Option configures an Engine.
type Option func(*Engine)

// WithExclude sets the regular expression matched against each file's path
// relative to the input directory. Matching files are skipped. An empty
// pattern disables exclusion.
func WithExclude(pattern string) Option {
	return func(e *Engine) {
		e.excludeSrc = pattern
	}
}

// WithFilter sets an expr-lang expression that must evaluate to true for a
// discovered file to be processed. The environment provides path,
// rel_path, ext, size and is_erb.
func WithFilter(expression string) Option {
	return func(e *Engine) {
		e.filterSrc = expression
	}
}

// WithWorkers sets the size of the worker pool. Values below 1 select
// DefaultWorkers.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithParallel controls the worker pool. When true (default), files are
// processed concurrently and a single collector records the results.
// Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithLogger sets the logger for per-file progress and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithManifest keeps a SQLite run manifest at dbPath. With a manifest,
// files whose content, output and hook are unchanged since the last run
// are skipped.
func WithManifest(dbPath string) Option {
	return func(e *Engine) {
		e.manifestPath = dbPath
	}
}

// WithHookScript runs the Risor script at path against every parsed file.
// Values the script records with annotate end up in the document.
func WithHookScript(path string) Option {
	return func(e *Engine) {
		e.hookPath = path
	}
}

// WithHookFS resolves the WithHookScript path, and the hook's imports,
// inside fsys instead of on disk.
func WithHookFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.hookFS = fsys
	}
}

// New creates an Engine writing documents under outputDir.
func New(outputDir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		outputDir:   outputDir,
		excludeSrc:  DefaultExclude,
		useParallel: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = DefaultWorkers
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}

	if e.excludeSrc != "" {
		re, err := regexp.Compile(e.excludeSrc)
		if err != nil {
			return nil, fmt.Errorf("rubyastgen: exclude pattern: %w", err)
		}
		e.exclude = re
	}
	if e.filterSrc != "" {
		program, err := expr.Compile(e.filterSrc, expr.Env(filterEnv("", "", 0)), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("rubyastgen: filter expression: %w", err)
		}
		e.filter = program
	}

	if e.hookPath != "" {
		hookPath := e.hookPath
		if e.hookFS != nil {
			e.runtime = runtime.NewRuntime("", runtime.WithRuntimeFS(e.hookFS), runtime.WithRuntimeLogger(e.logger))
		} else {
			e.runtime = runtime.NewRuntime(filepath.Dir(hookPath), runtime.WithRuntimeLogger(e.logger))
			hookPath = filepath.Base(hookPath)
		}
		hook, err := e.runtime.LoadHook(hookPath)
		if err != nil {
			return nil, fmt.Errorf("rubyastgen: load hook: %w", err)
		}
		e.hook = hook
	}

	if e.manifestPath != "" {
		s, err := store.NewStore(e.manifestPath)
		if err != nil {
			return nil, fmt.Errorf("rubyastgen: create manifest: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("rubyastgen: migrate manifest: %w", err)
		}
		e.store = s
	}

	return e, nil
}

// Close releases the manifest database, if any.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Store returns the run manifest, or nil when WithManifest was not given.
func (e *Engine) Store() *Store {
	return e.store
}

// hookHash is the hash recorded for the configured hook; empty without one.
func (e *Engine) hookHash() string {
	if e.hook == nil {
		return ""
	}
	return e.hook.Hash
}

// task is one discovered file.
type task struct {
	path string
	rel  string // slash-separated, relative to the input root
	kind string
}

// fileResult is what processing one file produced. record is nil for
// skipped files.
type fileResult struct {
	task    task
	outcome string
	skipped bool
	record  *store.File
	err     error
}

// Process converts input, a single file or a directory tree, into
// documents under the output directory. Per-file failures are logged and
// counted; they never stop the run. The returned error summarises I/O
// failures (reading sources, writing documents, recording the manifest)
// and context cancellation.
func (e *Engine) Process(ctx context.Context, input string) (Summary, error) {
	var sum Summary

	info, err := os.Stat(input)
	if err != nil {
		return sum, fmt.Errorf("rubyastgen: %w", err)
	}

	var tasks []task
	if info.IsDir() {
		tasks, sum.Excluded, err = e.discover(input)
		if err != nil {
			return sum, err
		}
	} else {
		kind, ok := runtime.KindForFile(input)
		if !ok {
			return sum, fmt.Errorf("rubyastgen: %s: not a Ruby source or template", input)
		}
		tasks = []task{{path: input, rel: filepath.Base(input), kind: kind}}
	}

	prevHookHash := ""
	var batch *store.BatchedStore
	if e.store != nil {
		prevHookHash, err = e.store.GetMetadata(hookHashKey)
		if err != nil {
			return sum, fmt.Errorf("rubyastgen: read manifest: %w", err)
		}
		batch = store.NewBatchedStore(e.store)
	}
	incremental := e.store != nil && prevHookHash == e.hookHash()

	var errs []error
	collect := func(res fileResult) {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.task.rel, res.err))
		}
		sum.add(res)
		if batch != nil && res.record != nil {
			batch.UpsertFile(res.record)
		}
	}

	process := func(ctx context.Context, t task) fileResult {
		return e.processFile(ctx, t, incremental)
	}
	if e.useParallel && len(tasks) > 1 {
		err = e.processParallel(ctx, tasks, process, collect)
	} else {
		err = processSerial(ctx, tasks, process, collect)
	}
	if err != nil {
		errs = append(errs, err)
	}

	if batch != nil {
		if cerr := e.store.CommitBatch(batch); cerr != nil {
			errs = append(errs, cerr)
		} else if serr := e.store.SetMetadata(hookHashKey, e.hookHash()); serr != nil {
			errs = append(errs, serr)
		}
		if info.IsDir() && err == nil {
			n, perr := e.prune(input)
			sum.Pruned = n
			if perr != nil {
				errs = append(errs, perr)
			}
		}
	}

	e.logger.Info("run complete",
		"processed", sum.Processed,
		"transformed", sum.Transformed,
		"fallback", sum.Fallback,
		"skipped", sum.Skipped,
		"excluded", sum.Excluded,
		"failed", sum.Failed,
		"pruned", sum.Pruned,
	)

	if len(errs) > 0 {
		return sum, fmt.Errorf("processing had %d error(s): %w", len(errs), errs[0])
	}
	return sum, nil
}

func processSerial(ctx context.Context, tasks []task, process func(context.Context, task) fileResult, collect func(fileResult)) error {
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		collect(process(ctx, t))
	}
	return nil
}

// skipDirs are directory names never descended into.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"tmp":          true,
	"log":          true,
}

// discover walks root and returns the files to process, sorted by relative
// path, along with the number of files rejected by the exclusion pattern
// or the filter. Hidden directories and skipDirs are not descended into.
func (e *Engine) discover(root string) ([]task, int, error) {
	var (
		tasks    []task
		excluded int
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		kind, ok := runtime.KindForFile(path)
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if e.exclude != nil && e.exclude.MatchString(rel) {
			e.logger.Debug("excluded", "file", rel)
			excluded++
			return nil
		}
		if e.filter != nil {
			info, err := d.Info()
			if err != nil {
				return err
			}
			keep, err := e.accept(path, rel, info.Size())
			if err != nil {
				return fmt.Errorf("filter %s: %w", rel, err)
			}
			if !keep {
				e.logger.Debug("filtered", "file", rel)
				excluded++
				return nil
			}
		}
		tasks = append(tasks, task{path: path, rel: rel, kind: kind})
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("rubyastgen: walk directory: %w", err)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].rel < tasks[j].rel })
	return tasks, excluded, nil
}

// filterEnv is the environment filter expressions are evaluated in.
func filterEnv(path, rel string, size int64) map[string]any {
	return map[string]any{
		"path":     path,
		"rel_path": rel,
		"ext":      filepath.Ext(path),
		"size":     size,
		"is_erb":   strings.HasSuffix(path, ".erb"),
	}
}

// accept evaluates the filter for one file.
func (e *Engine) accept(path, rel string, size int64) (bool, error) {
	out, err := vm.Run(e.filter, filterEnv(path, rel, size))
	if err != nil {
		return false, err
	}
	keep, _ := out.(bool)
	return keep, nil
}

// processFile runs the per-file pipeline: read, lower templates, parse,
// build the document, run the hook, write. When incremental is set, a file
// whose content hash and document are unchanged since the last run is
// skipped.
func (e *Engine) processFile(ctx context.Context, t task, incremental bool) fileResult {
	res := fileResult{task: t}
	log := e.logger.With("file", t.rel)

	content, err := os.ReadFile(t.path)
	if err != nil {
		res.outcome = store.OutcomeFailed
		res.err = fmt.Errorf("read file: %w", err)
		log.Error("failed", "error", err)
		return res
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(content))
	outPath := document.OutputPath(e.outputDir, t.rel)

	if incremental && unchanged(e.store, t.path, hash, outPath) {
		log.Debug("skipped")
		res.skipped = true
		return res
	}

	record := &store.File{
		Path:          t.path,
		RelPath:       t.rel,
		Kind:          t.kind,
		Hash:          hash,
		LastProcessed: time.Now(),
	}
	res.record = record

	src := string(content)
	lowering := ""
	outcome := store.OutcomeParsed
	if t.kind == runtime.KindERB {
		out, fellBack, lerr := erb.Prepare(src)
		src = out
		record.LoweredBytes = len(out)
		if fellBack {
			log.Debug("template fell back", "error", lerr)
			lowering, outcome = document.LoweringFallback, store.OutcomeFallback
		} else {
			lowering, outcome = document.LoweringTransformed, store.OutcomeTransformed
		}
	}

	tree, err := ruby.Parse(ctx, []byte(src), t.path)
	if err != nil {
		record.Outcome = store.OutcomeFailed
		record.Error = err.Error()
		res.outcome = store.OutcomeFailed
		var se *ruby.SyntaxError
		if errors.As(err, &se) {
			log.Error("failed", "line", se.Line, "column", se.Column, "near", se.Near)
			return res
		}
		log.Error("failed", "error", err)
		res.err = err
		return res
	}

	doc := &document.Document{
		FilePath:    t.path,
		RelFilePath: t.rel,
		IsERB:       t.kind == runtime.KindERB,
		Lowering:    lowering,
		AST:         document.Build(tree),
	}

	if e.hook != nil {
		ann, herr := e.runtime.RunHook(ctx, e.hook, runtime.HookInput{
			Tree:     tree,
			FilePath: t.path,
			RelPath:  t.rel,
			IsERB:    doc.IsERB,
		})
		if herr != nil {
			log.Warn("hook failed", "error", herr)
		} else {
			doc.Annotations = ann
		}
	}

	if err := document.Write(outPath, doc); err != nil {
		record.Outcome = store.OutcomeFailed
		record.Error = err.Error()
		res.outcome = store.OutcomeFailed
		res.err = err
		log.Error("failed", "error", err)
		return res
	}

	record.Outcome = outcome
	record.OutputPath = outPath
	res.outcome = outcome
	log.Info("processed", "outcome", outcome)
	return res
}

// prune drops manifest rows under root whose source file no longer exists,
// removing the documents they recorded. It returns the number of rows
// dropped.
func (e *Engine) prune(root string) (int, error) {
	files, err := e.store.FilesByOutcome()
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	prefix := filepath.Clean(root) + string(filepath.Separator)
	if prefix == "."+string(filepath.Separator) {
		prefix = ""
	}
	pruned := 0
	for _, f := range files {
		if !strings.HasPrefix(f.Path, prefix) {
			continue
		}
		if _, err := os.Stat(f.Path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if f.OutputPath != "" {
			if err := os.Remove(f.OutputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return pruned, fmt.Errorf("prune %s: %w", f.RelPath, err)
			}
		}
		if err := e.store.DeleteFile(f.Path); err != nil {
			return pruned, fmt.Errorf("prune: %w", err)
		}
		e.logger.Info("pruned", "file", f.RelPath)
		pruned++
	}
	return pruned, nil
}

// unchanged reports whether ds holds a successful record for path with the
// same content hash whose document still exists at outPath.
func unchanged(ds store.DataStore, path, hash, outPath string) bool {
	existing, err := ds.FileByPath(path)
	if err != nil || existing == nil {
		return false
	}
	if existing.Hash != hash || existing.Outcome == store.OutcomeFailed || existing.OutputPath != outPath {
		return false
	}
	_, err = os.Stat(outPath)
	return err == nil
}
