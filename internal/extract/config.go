// Package extract runs forward inference over a FASTA file and writes one
// representation file per sequence.
package extract

import (
	"fmt"
	"strings"
)

const (
	DefaultToksPerBatch = 4096
	DefaultTruncation   = 1022
	extraToksPerSeq     = 2 // CLS and EOS
)

// IncludeSet selects which representations end up in the result files.
type IncludeSet struct {
	PerTok   bool
	Mean     bool
	BOS      bool
	Contacts bool
}

// Any reports whether at least one representation is selected.
func (s IncludeSet) Any() bool {
	return s.PerTok || s.Mean || s.BOS || s.Contacts
}

// ParseInclude maps --include values onto an IncludeSet. Unknown names
// are rejected.
func ParseInclude(names []string) (IncludeSet, error) {
	var s IncludeSet
	for _, name := range names {
		switch strings.TrimSpace(name) {
		case "per_tok":
			s.PerTok = true
		case "mean":
			s.Mean = true
		case "bos":
			s.BOS = true
		case "contacts":
			s.Contacts = true
		default:
			return IncludeSet{}, fmt.Errorf("unknown include value %q (expected per_tok, mean, bos or contacts)", name)
		}
	}
	if !s.Any() {
		return IncludeSet{}, fmt.Errorf("at least one --include value is required")
	}
	return s, nil
}

// Config carries everything a single extraction run needs.
type Config struct {
	ModelPath           string
	FastaPath           string
	OutputDir           string
	ToksPerBatch        int
	ReprLayers          []int
	Include             IncludeSet
	TruncationSeqLength int
	NoGPU               bool
}
