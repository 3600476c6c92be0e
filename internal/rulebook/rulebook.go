// Package rulebook defines the persisted output of the grammar inducer: the
// page-numbering topology, heading hierarchy, asset signatures and structural
// vocabulary a document was profiled with. Later stages consume it read-only.
package rulebook

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pagemap/relink/internal/urn"
)

// Segment maps a contiguous run of physical pages to a contiguous printed
// range under one numbering type. Segments are kept in chronological order;
// downstream lookup relies on first-match-wins when ranges overlap.
type Segment struct {
	PhysicalStart int           `yaml:"physical_start"`
	PhysicalEnd   int           `yaml:"physical_end"`
	PrintedStart  int           `yaml:"printed_start"`
	PrintedEnd    int           `yaml:"printed_end"`
	Numbering     urn.Numbering `yaml:"numbering"`
	Spacers       []int         `yaml:"spacers"`
}

// Contains reports whether the physical page falls inside the segment,
// inclusive on both ends.
func (s Segment) Contains(physical int) bool {
	return s.PhysicalStart <= physical && physical <= s.PhysicalEnd
}

// FontRange is a closed font-size band.
type FontRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Matches reports whether a size falls inside the band.
func (r FontRange) Matches(size float64) bool {
	return r.Min <= size && size <= r.Max
}

// VisualSignature is the geometric fingerprint of a structural element.
type VisualSignature struct {
	FontSize FontRange `yaml:"font_size"`
	IsBold   bool      `yaml:"is_bold,omitempty"`
}

// Matches enforces the signature: size within band, and boldness required
// only when the signature demands it.
func (v VisualSignature) Matches(size float64, bold bool) bool {
	if !v.FontSize.Matches(size) {
		return false
	}
	if v.IsBold && !bold {
		return false
	}
	return true
}

// LabelHypothesis is a semantic namespace guess with its confidence.
type LabelHypothesis struct {
	PreferredLabel string  `yaml:"preferred_label"`
	Confidence     float64 `yaml:"confidence"`
}

// HierarchyLevel is one heading rank, ordered by descending font size.
type HierarchyLevel struct {
	LevelRank       int             `yaml:"level_rank"`
	LabelHypothesis LabelHypothesis `yaml:"label_hypothesis"`
	VisualSignature VisualSignature `yaml:"visual_signature"`
}

// AssetSignature recognizes caption markers such as figures, maps and tables.
type AssetSignature struct {
	AssetType       string          `yaml:"asset_type"`
	VisualSignature VisualSignature `yaml:"visual_signature"`
}

// VocabularySource records where the structural vocabulary came from.
type VocabularySource string

const (
	SourceCLIOverride         VocabularySource = "cli_override"
	SourceManualIngest        VocabularySource = "manual_ingest"
	SourceOracle              VocabularySource = "gemini_api"
	SourceStatisticalFallback VocabularySource = "statistical_fallback"
	SourceDefaultFallback     VocabularySource = "default_fallback"
)

// StructuralVocabulary is the resolved top-level division label.
type StructuralVocabulary struct {
	PrimaryMarker string           `yaml:"primary_marker"`
	Source        VocabularySource `yaml:"source"`
	Confidence    float64          `yaml:"confidence"`
}

// Diagnostics carries profiling health data alongside the rulebook.
type Diagnostics struct {
	ProfilingStatus   string  `yaml:"profiling_status"`
	PageMapConfidence float64 `yaml:"page_map_confidence"`
}

// Rulebook is the full induced grammar for one document.
type Rulebook struct {
	Diagnostics          Diagnostics          `yaml:"profiling_diagnostics"`
	PageMap              []Segment            `yaml:"page_map"`
	HierarchyLevels      []HierarchyLevel     `yaml:"hierarchy_levels"`
	Assets               []AssetSignature     `yaml:"assets"`
	StructuralVocabulary StructuralVocabulary `yaml:"structural_vocabulary"`
}

// InSegment reports whether a physical page is covered by any mapped segment.
// Pages outside all segments are topological dead zones.
func (rb *Rulebook) InSegment(physical int) bool {
	for _, seg := range rb.PageMap {
		if seg.Contains(physical) {
			return true
		}
	}
	return false
}

// ResolvePrinted converts a printed page number to a physical page using the
// first chronologically stored segment whose printed range contains the
// value, inclusive on both sides. ok=false means a topology gap.
func (rb *Rulebook) ResolvePrinted(printed int, numbering urn.Numbering) (int, bool) {
	for _, seg := range rb.PageMap {
		if seg.Numbering != numbering {
			continue
		}
		if seg.PrintedStart <= printed && printed <= seg.PrintedEnd {
			return seg.PhysicalStart + (printed - seg.PrintedStart), true
		}
	}
	return 0, false
}

// Load reads a rulebook from its YAML cache file.
func Load(path string) (*Rulebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rulebook %s: %w", path, err)
	}
	var rb Rulebook
	if err := yaml.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("parse rulebook %s: %w", path, err)
	}
	return &rb, nil
}

// Save persists the rulebook as YAML.
func (rb *Rulebook) Save(path string) error {
	data, err := yaml.Marshal(rb)
	if err != nil {
		return fmt.Errorf("marshal rulebook: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write rulebook %s: %w", path, err)
	}
	return nil
}
