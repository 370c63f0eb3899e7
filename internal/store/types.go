package store

import "time"

// Per-file outcomes recorded in the manifest.
const (
	OutcomeParsed      = "parsed"
	OutcomeTransformed = "transformed"
	OutcomeFallback    = "fallback"
	OutcomeFailed      = "failed"
)

// File is one manifest row: the last processing result for a source file.
type File struct {
	ID            int64
	Path          string
	RelPath       string
	Kind          string
	Hash          string
	Outcome       string
	OutputPath    string
	Error         string
	LoweredBytes  int
	LastProcessed time.Time
}

// OutcomeCount is the number of files recorded with one outcome.
type OutcomeCount struct {
	Outcome string
	Count   int
}
