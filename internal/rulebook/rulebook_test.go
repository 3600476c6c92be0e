package rulebook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pagemap/relink/internal/urn"
)

func sampleRulebook() *Rulebook {
	return &Rulebook{
		Diagnostics: Diagnostics{ProfilingStatus: "success", PageMapConfidence: 0.91},
		PageMap: []Segment{
			{PhysicalStart: 1, PhysicalEnd: 4, PrintedStart: 1, PrintedEnd: 4, Numbering: urn.Roman},
			{PhysicalStart: 5, PhysicalEnd: 10, PrintedStart: 1, PrintedEnd: 6, Numbering: urn.Arabic},
			{PhysicalStart: 12, PhysicalEnd: 20, PrintedStart: 9, PrintedEnd: 17, Numbering: urn.Arabic, Spacers: []int{11}},
		},
		HierarchyLevels: []HierarchyLevel{
			{
				LevelRank:       1,
				LabelHypothesis: LabelHypothesis{PreferredLabel: "theme", Confidence: 0.95},
				VisualSignature: VisualSignature{FontSize: FontRange{Min: 22, Max: 26}, IsBold: true},
			},
		},
		Assets: []AssetSignature{
			{AssetType: "map", VisualSignature: VisualSignature{FontSize: FontRange{Min: 8.7, Max: 9.3}}},
		},
		StructuralVocabulary: StructuralVocabulary{PrimaryMarker: "Theme", Source: SourceOracle, Confidence: 0.95},
	}
}

func TestResolvePrintedInclusiveBounds(t *testing.T) {
	rb := &Rulebook{PageMap: []Segment{
		{PhysicalStart: 5, PhysicalEnd: 10, PrintedStart: 1, PrintedEnd: 6, Numbering: urn.Arabic},
	}}

	phys, ok := rb.ResolvePrinted(3, urn.Arabic)
	if !ok || phys != 7 {
		t.Errorf("printed 3 -> (%d, %v), want (7, true)", phys, ok)
	}
	// Boundary values are inclusive on both sides.
	if phys, ok := rb.ResolvePrinted(1, urn.Arabic); !ok || phys != 5 {
		t.Errorf("printed 1 -> (%d, %v), want (5, true)", phys, ok)
	}
	if phys, ok := rb.ResolvePrinted(6, urn.Arabic); !ok || phys != 10 {
		t.Errorf("printed 6 -> (%d, %v), want (10, true)", phys, ok)
	}
	// Outside the segment must not resolve.
	if _, ok := rb.ResolvePrinted(7, urn.Arabic); ok {
		t.Error("printed 7 resolved, want topology gap")
	}
}

func TestResolvePrintedNumberingTypeIsolation(t *testing.T) {
	rb := sampleRulebook()
	// Printed 2 exists in both the roman and arabic segments; numbering type
	// must disambiguate.
	if phys, ok := rb.ResolvePrinted(2, urn.Roman); !ok || phys != 2 {
		t.Errorf("roman 2 -> (%d, %v), want (2, true)", phys, ok)
	}
	if phys, ok := rb.ResolvePrinted(2, urn.Arabic); !ok || phys != 6 {
		t.Errorf("arabic 2 -> (%d, %v), want (6, true)", phys, ok)
	}
}

func TestResolvePrintedFirstMatchWins(t *testing.T) {
	rb := &Rulebook{PageMap: []Segment{
		{PhysicalStart: 5, PhysicalEnd: 10, PrintedStart: 1, PrintedEnd: 6, Numbering: urn.Arabic},
		{PhysicalStart: 30, PhysicalEnd: 40, PrintedStart: 1, PrintedEnd: 11, Numbering: urn.Arabic},
	}}
	// Value 4 is in both ranges; chronological order breaks the tie.
	if phys, ok := rb.ResolvePrinted(4, urn.Arabic); !ok || phys != 8 {
		t.Errorf("overlapping printed 4 -> (%d, %v), want first segment (8, true)", phys, ok)
	}
}

func TestInSegment(t *testing.T) {
	rb := sampleRulebook()
	for page, want := range map[int]bool{1: true, 4: true, 10: true, 11: false, 12: true, 21: false} {
		if got := rb.InSegment(page); got != want {
			t.Errorf("InSegment(%d) = %v, want %v", page, got, want)
		}
	}
}

func TestVisualSignatureMatches(t *testing.T) {
	sig := VisualSignature{FontSize: FontRange{Min: 22, Max: 26}, IsBold: true}
	if !sig.Matches(24, true) {
		t.Error("expected bold 24pt to match")
	}
	if sig.Matches(24, false) {
		t.Error("bold signature must reject regular weight")
	}
	if sig.Matches(27, true) {
		t.Error("size above band must not match")
	}
	// Non-bold signature accepts either weight.
	loose := VisualSignature{FontSize: FontRange{Min: 8, Max: 10}}
	if !loose.Matches(9, true) || !loose.Matches(9, false) {
		t.Error("non-bold signature should accept both weights")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	rb := sampleRulebook()
	path := filepath.Join(t.TempDir(), "doc_rulebook.yaml")
	if err := rb.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.PageMap) != 3 || loaded.PageMap[2].Spacers[0] != 11 {
		t.Errorf("page map did not survive round trip: %+v", loaded.PageMap)
	}
	if loaded.StructuralVocabulary.PrimaryMarker != "Theme" || loaded.StructuralVocabulary.Source != SourceOracle {
		t.Errorf("vocabulary did not survive round trip: %+v", loaded.StructuralVocabulary)
	}
	if loaded.HierarchyLevels[0].VisualSignature.FontSize.Min != 22 {
		t.Errorf("hierarchy signature did not survive round trip")
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("rulebook file missing: %v", err)
	}
}
