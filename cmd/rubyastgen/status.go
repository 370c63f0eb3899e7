package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	"github.com/jward/rubyastgen"
	"github.com/jward/rubyastgen/internal/config"
	"github.com/jward/rubyastgen/internal/store"
)

// CLIOutcomeCount is one row of the status counts table.
type CLIOutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
}

// CLIFile is a manifest record as reported by status.
type CLIFile struct {
	RelPath       string    `json:"rel_path"`
	Kind          string    `json:"kind"`
	Outcome       string    `json:"outcome"`
	OutputPath    string    `json:"output_path,omitempty"`
	Error         string    `json:"error,omitempty"`
	LastProcessed time.Time `json:"last_processed"`
}

// CLIStatus is the status command's result envelope.
type CLIStatus struct {
	Manifest string            `json:"manifest"`
	Total    int               `json:"total"`
	Counts   []CLIOutcomeCount `json:"counts"`
	Files    []CLIFile         `json:"files,omitempty"`
}

func newStatusCmd(flags *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [dir]",
		Short: "Summarise the run manifest",
		Long: "Reports how many files the last runs recorded per outcome. With --outcome, also " +
			"lists the matching files. The manifest comes from --db, else from rubyastgen.yml in dir.",
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFormat(flags.Format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := resolveManifest(flags.DB, args)
			if err != nil {
				return err
			}
			status, err := loadStatus(dbPath, flags.Outcomes)
			if err != nil {
				return err
			}
			if flags.Format == "text" {
				w := cmd.OutOrStdout()
				formatCountsText(w, status)
				if len(status.Files) > 0 {
					fmt.Fprintln(w)
					formatFilesText(w, status.Files)
				}
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
	cmd.Flags().StringVar(&flags.DB, "db", "", "run manifest database")
	cmd.Flags().StringVar(&flags.Format, "format", "text", "output format: json|text")
	cmd.Flags().StringSliceVar(&flags.Outcomes, "outcome", nil, "list files with these outcomes (parsed, transformed, fallback, failed)")
	return cmd
}

// resolveManifest returns the manifest path from --db or the project config.
// The database must already exist; status never creates one.
func resolveManifest(db string, args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if db == "" {
		cfg, err := config.Load(dir)
		if err != nil {
			return "", err
		}
		if cfg.Manifest == "" {
			return "", fmt.Errorf("no manifest: pass --db or set manifest in %s", filepath.Join(dir, "rubyastgen.yml"))
		}
		db = cfg.Manifest
		if !filepath.IsAbs(db) {
			db = filepath.Join(dir, db)
		}
	}
	if _, err := os.Stat(db); err != nil {
		return "", fmt.Errorf("manifest not found: %s", db)
	}
	return db, nil
}

func loadStatus(dbPath string, outcomes []string) (CLIStatus, error) {
	for _, o := range outcomes {
		switch o {
		case store.OutcomeParsed, store.OutcomeTransformed, store.OutcomeFallback, store.OutcomeFailed:
		default:
			return CLIStatus{}, fmt.Errorf("invalid outcome %q", o)
		}
	}

	s, err := store.NewStore(dbPath)
	if err != nil {
		return CLIStatus{}, fmt.Errorf("opening manifest: %w", err)
	}
	defer s.Close()
	if err := s.Migrate(); err != nil {
		return CLIStatus{}, fmt.Errorf("opening manifest: %w", err)
	}

	counts, err := s.OutcomeCounts()
	if err != nil {
		return CLIStatus{}, err
	}
	status := CLIStatus{Manifest: dbPath, Counts: make([]CLIOutcomeCount, 0, len(counts))}
	for _, c := range counts {
		status.Counts = append(status.Counts, CLIOutcomeCount{Outcome: c.Outcome, Count: c.Count})
		status.Total += c.Count
	}

	if len(outcomes) > 0 {
		files, err := s.FilesByOutcome(outcomes...)
		if err != nil {
			return CLIStatus{}, err
		}
		for _, f := range files {
			status.Files = append(status.Files, fileToCLI(f))
		}
	}
	return status, nil
}

func fileToCLI(f *rubyastgen.File) CLIFile {
	return CLIFile{
		RelPath:       f.RelPath,
		Kind:          f.Kind,
		Outcome:       f.Outcome,
		OutputPath:    f.OutputPath,
		Error:         f.Error,
		LastProcessed: f.LastProcessed,
	}
}
