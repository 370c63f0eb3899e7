package rubyastgen

import (
	"fmt"

	"github.com/jward/rubyastgen/internal/document"
	"github.com/jward/rubyastgen/internal/store"
)

// Public type aliases for internal types returned by the Engine.

type Store = store.Store
type File = store.File
type OutcomeCount = store.OutcomeCount
type Document = document.Document
type Node = document.Node

// Summary counts what a Process run did with each discovered file.
// Processed includes Transformed and Fallback; Excluded counts files
// rejected by the exclusion pattern or the filter expression. Pruned counts
// manifest records dropped because their source file was deleted.
type Summary struct {
	Processed   int `json:"processed"`
	Transformed int `json:"transformed"`
	Fallback    int `json:"fallback"`
	Skipped     int `json:"skipped"`
	Excluded    int `json:"excluded"`
	Failed      int `json:"failed"`
	Pruned      int `json:"pruned"`
}

func (s *Summary) add(res fileResult) {
	if res.skipped {
		s.Skipped++
		return
	}
	switch res.outcome {
	case store.OutcomeParsed:
		s.Processed++
	case store.OutcomeTransformed:
		s.Processed++
		s.Transformed++
	case store.OutcomeFallback:
		s.Processed++
		s.Fallback++
	case store.OutcomeFailed:
		s.Failed++
	}
}

func (s Summary) String() string {
	str := fmt.Sprintf("%d processed (%d transformed, %d fallback), %d skipped, %d excluded, %d failed",
		s.Processed, s.Transformed, s.Fallback, s.Skipped, s.Excluded, s.Failed)
	if s.Pruned > 0 {
		str += fmt.Sprintf(", %d pruned", s.Pruned)
	}
	return str
}
