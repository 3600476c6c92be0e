package registry

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pagemap/relink/internal/rulebook"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestGetDefaultFallback(t *testing.T) {
	s := newTestStore(t)
	e := s.Get("atlas", nil, nil)
	if e.Source != rulebook.SourceDefaultFallback {
		t.Errorf("source = %s, want default_fallback", e.Source)
	}
	if e.PrimaryMarker != "Chapter" || e.Confidence != 0.1 {
		t.Errorf("fallback = %+v, want Chapter/0.1", e)
	}
}

func TestGetStatisticalFallback(t *testing.T) {
	s := newTestStore(t)
	samples := []string{"Theme 1: Origins", "Theme 2: Empires", "Theme 3: Trade", "Appendix"}
	e := s.Get("atlas", nil, samples)
	if e.Source != rulebook.SourceStatisticalFallback {
		t.Fatalf("source = %s, want statistical_fallback", e.Source)
	}
	if e.PrimaryMarker != "Theme" || e.Confidence != 0.5 {
		t.Errorf("fallback = %+v, want Theme/0.5", e)
	}
}

func TestStatisticalFallbackRejectsUnknownMarkers(t *testing.T) {
	s := newTestStore(t)
	e := s.Get("atlas", nil, []string{"Wibble 1", "Wibble 2", "Wibble 3"})
	if e.Source != rulebook.SourceDefaultFallback {
		t.Errorf("unknown leading word must not become a marker; got source %s", e.Source)
	}
}

func TestManualPrecedesAPI(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteAPIResult("atlas", Entry{PrimaryMarker: "Chapter", Confidence: 0.95}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteManualResult("atlas", Entry{PrimaryMarker: "Theme", Confidence: 1.0}); err != nil {
		t.Fatal(err)
	}
	e := s.Get("atlas", nil, nil)
	if e.Source != rulebook.SourceManualIngest || e.PrimaryMarker != "Theme" {
		t.Errorf("got %+v, want manual Theme entry", e)
	}
}

func TestValidatorSkipsImplausibleEntries(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteAPIResult("atlas", Entry{PrimaryMarker: "Unit", Confidence: 0.95}); err != nil {
		t.Fatal(err)
	}
	validator := func(e Entry) bool { return e.PrimaryMarker == "Theme" }
	e := s.Get("atlas", validator, nil)
	if e.Source != rulebook.SourceDefaultFallback {
		t.Errorf("entry failing validation must fall through, got %+v", e)
	}
}

func TestClearInvalidatesLatest(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteAPIResult("atlas", Entry{PrimaryMarker: "Chapter", Confidence: 0.95}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear("atlas", rulebook.SourceOracle); err != nil {
		t.Fatal(err)
	}
	e := s.Get("atlas", nil, nil)
	if e.Source != rulebook.SourceDefaultFallback {
		t.Errorf("invalidated entry must be skipped, got %+v", e)
	}
}

func TestListAllReturnsLatestPerDoc(t *testing.T) {
	s := newTestStore(t)
	_ = s.WriteAPIResult("a", Entry{PrimaryMarker: "Chapter"})
	_ = s.WriteManualResult("a", Entry{PrimaryMarker: "Theme"})
	_ = s.WriteAPIResult("b", Entry{PrimaryMarker: "Unit"})
	all := s.ListAll()
	if len(all) != 2 {
		t.Fatalf("ListAll = %d entries, want 2", len(all))
	}
	if all[0].DocName != "a" || all[0].PrimaryMarker != "Theme" {
		t.Errorf("latest entry for a = %+v, want manual Theme", all[0])
	}
}

func TestIngestResponsesSingleFile(t *testing.T) {
	s := newTestStore(t)
	manualDir := t.TempDir()
	if err := WritePending(manualDir, "atlas"); err != nil {
		t.Fatal(err)
	}
	resp := `{"doc_name":"atlas","primary_marker":"Theme","chapter_count":12,"compound_titles":[],"font_role_map":[]}`
	respPath := filepath.Join(manualDir, "atlas_response.json")
	if err := os.WriteFile(respPath, []byte(resp), 0o644); err != nil {
		t.Fatal(err)
	}

	ingested, err := s.IngestResponses(manualDir, "atlas")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !ingested {
		t.Fatal("expected ingestion")
	}
	if _, err := os.Stat(respPath); !os.IsNotExist(err) {
		t.Error("response file should be removed after ingestion")
	}
	pending, _ := ListPending(manualDir)
	if len(pending) != 0 {
		t.Errorf("pending flag should be cleared, got %v", pending)
	}
	e := s.Get("atlas", nil, nil)
	if e.Source != rulebook.SourceManualIngest || e.PrimaryMarker != "Theme" || e.ChapterCount != 12 {
		t.Errorf("ingested entry = %+v", e)
	}
}

func TestIngestResponsesBatchKeepsFileWhilePending(t *testing.T) {
	s := newTestStore(t)
	manualDir := t.TempDir()
	_ = WritePending(manualDir, "atlas")
	_ = WritePending(manualDir, "almanac")
	batch := `[
		{"doc_name":"atlas","primary_marker":"Theme","chapter_count":12,"compound_titles":[],"font_role_map":[]},
		{"doc_name":"almanac","primary_marker":"Unit","chapter_count":8,"compound_titles":[],"font_role_map":[]}
	]`
	respPath := filepath.Join(manualDir, "batch_1_response.json")
	if err := os.WriteFile(respPath, []byte(batch), 0o644); err != nil {
		t.Fatal(err)
	}

	// First ingest covers atlas only; almanac still pending, so the batch
	// file must survive.
	if ok, err := s.IngestResponses(manualDir, "atlas"); err != nil || !ok {
		t.Fatalf("ingest atlas: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(respPath); err != nil {
		t.Fatal("batch file removed while a document is still pending")
	}

	if ok, err := s.IngestResponses(manualDir, "almanac"); err != nil || !ok {
		t.Fatalf("ingest almanac: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(respPath); !os.IsNotExist(err) {
		t.Error("batch file should be removed once all documents are processed")
	}
}

func TestIngestIncompleteResponseIgnored(t *testing.T) {
	s := newTestStore(t)
	manualDir := t.TempDir()
	resp := `{"doc_name":"atlas","primary_marker":"Theme"}`
	_ = os.WriteFile(filepath.Join(manualDir, "atlas_response.json"), []byte(resp), 0o644)
	ingested, err := s.IngestResponses(manualDir, "atlas")
	if err != nil {
		t.Fatal(err)
	}
	if ingested {
		t.Error("incomplete response must not be ingested")
	}
}
