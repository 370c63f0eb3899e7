package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/rubyastgen"
	"github.com/jward/rubyastgen/internal/config"
	"github.com/jward/rubyastgen/scripts"
)

// defaultOutputDir is where documents go when neither --output nor the
// project config names a directory.
const defaultOutputDir = "ast_out"

// cliFlags holds the values of the parse flags. Each command tree gets its
// own instance so tests can execute commands repeatedly.
type cliFlags struct {
	Input    string
	Output   string
	Exclude  string
	Filter   string
	Workers  int
	DB       string
	Hook     string
	Debug    bool
	Format   string
	Fallback bool
	Outcomes []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:   "rubyastgen [input]",
		Short: "Generate JSON syntax trees for Ruby sources and ERB templates",
		Long: "Parses Ruby files and ERB templates (lowered to Ruby first) with tree-sitter " +
			"and writes one JSON syntax tree document per file. Without a subcommand, runs parse.",
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, flags, args)
		},
	}
	root.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	addParseFlags(root, flags)

	parse := &cobra.Command{
		Use:   "parse [input]",
		Short: "Write syntax tree documents for a file or directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, flags, args)
		},
	}
	addParseFlags(parse, flags)

	root.AddCommand(parse)
	root.AddCommand(newLowerCmd(flags))
	root.AddCommand(newStatusCmd(flags))
	root.AddCommand(newMCPCmd(flags))
	return root
}

func addParseFlags(cmd *cobra.Command, flags *cliFlags) {
	f := cmd.Flags()
	f.StringVarP(&flags.Input, "input", "i", "", "file or directory to process (default: first argument, else .)")
	f.StringVarP(&flags.Output, "output", "o", "", "output directory (default: "+defaultOutputDir+")")
	f.StringVarP(&flags.Exclude, "exclude", "e", rubyastgen.DefaultExclude, "regex of relative paths to skip; empty disables")
	f.StringVar(&flags.Filter, "filter", "", "expr-lang expression over path, rel_path, ext, size, is_erb")
	f.IntVar(&flags.Workers, "workers", rubyastgen.DefaultWorkers, "number of parallel workers")
	f.StringVar(&flags.DB, "db", "", "run manifest database; enables incremental runs")
	f.StringVar(&flags.Hook, "hook", "", "Risor annotation hook script, or builtin:<name> ("+strings.Join(scripts.Names(), ", ")+")")
}

// newLogger returns a text logger on w at info level, or debug with --debug.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// parseSettings is the merged result of flags and the project config.
type parseSettings struct {
	Input   string
	Output  string
	Exclude string
	Filter  string
	Workers int
	DB      string
	Hook    string
	Debug   bool
}

// resolveSettings layers explicitly set flags over rubyastgen.yml found in
// the input directory (or the directory holding the input file). Relative
// paths from the config are resolved against that directory.
func resolveSettings(cmd *cobra.Command, flags *cliFlags, args []string) (parseSettings, error) {
	input := flags.Input
	if input == "" && len(args) > 0 {
		input = args[0]
	}
	if input == "" {
		input = "."
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		return parseSettings{}, fmt.Errorf("resolving path %q: %w", input, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return parseSettings{}, fmt.Errorf("input not found: %s", abs)
	}
	cfgDir := abs
	if !info.IsDir() {
		cfgDir = filepath.Dir(abs)
	}

	cfg, err := config.Load(cfgDir)
	if err != nil {
		return parseSettings{}, err
	}
	fromConfig := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(cfgDir, p)
	}
	changed := cmd.Flags().Changed

	s := parseSettings{
		Input:   abs,
		Output:  flags.Output,
		Exclude: flags.Exclude,
		Filter:  flags.Filter,
		Workers: flags.Workers,
		DB:      flags.DB,
		Hook:    flags.Hook,
		Debug:   flags.Debug || cfg.Debug,
	}
	if !changed("output") {
		s.Output = defaultOutputDir
		if cfg.OutputDir != "" {
			s.Output = fromConfig(cfg.OutputDir)
		}
	}
	if !changed("exclude") && cfg.Exclude != "" {
		s.Exclude = cfg.Exclude
	}
	if !changed("filter") && cfg.Filter != "" {
		s.Filter = cfg.Filter
	}
	if !changed("workers") && cfg.Workers > 0 {
		s.Workers = cfg.Workers
	}
	if !changed("db") && cfg.Manifest != "" {
		s.DB = fromConfig(cfg.Manifest)
	}
	if !changed("hook") && cfg.Hook != "" {
		s.Hook = cfg.Hook
		if !strings.HasPrefix(cfg.Hook, scripts.BuiltinPrefix) {
			s.Hook = fromConfig(cfg.Hook)
		}
	}
	return s, nil
}

func runParse(cmd *cobra.Command, flags *cliFlags, args []string) error {
	start := time.Now()

	s, err := resolveSettings(cmd, flags, args)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), s.Debug)
	logger.Debug("settings", "input", s.Input, "output", s.Output, "exclude", s.Exclude,
		"filter", s.Filter, "workers", s.Workers, "db", s.DB, "hook", s.Hook)

	if err := os.MkdirAll(s.Output, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", s.Output, err)
	}

	opts := []rubyastgen.Option{
		rubyastgen.WithExclude(s.Exclude),
		rubyastgen.WithWorkers(s.Workers),
		rubyastgen.WithLogger(logger),
	}
	if s.Filter != "" {
		opts = append(opts, rubyastgen.WithFilter(s.Filter))
	}
	if s.DB != "" {
		if err := os.MkdirAll(filepath.Dir(s.DB), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(s.DB), err)
		}
		opts = append(opts, rubyastgen.WithManifest(s.DB))
	}
	if name, ok := strings.CutPrefix(s.Hook, scripts.BuiltinPrefix); ok {
		p, found := scripts.Builtin(name)
		if !found {
			return fmt.Errorf("unknown builtin hook %q (available: %s)", name, strings.Join(scripts.Names(), ", "))
		}
		opts = append(opts, rubyastgen.WithHookFS(scripts.FS), rubyastgen.WithHookScript(p))
	} else if s.Hook != "" {
		opts = append(opts, rubyastgen.WithHookScript(s.Hook))
	}

	engine, err := rubyastgen.New(s.Output, opts...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	sum, err := engine.Process(cmd.Context(), s.Input)
	fmt.Fprintf(cmd.ErrOrStderr(), "Processed %s in %s: %s\n",
		s.Input, time.Since(start).Round(time.Millisecond), sum)
	return err
}
