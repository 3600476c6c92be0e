// Package registry persists structural vocabulary results per document and
// arbitrates between manually ingested entries, oracle-derived entries and
// statistical/default fallbacks.
//
// The store is an explicit handle passed into the profiler; there is no
// process-wide singleton. All state lives in three JSON files under the
// registry directory: manual_store.json, api_store.json, validation_log.json.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pagemap/relink/internal/rulebook"
)

// ErrVocabRequired halts a document in manual-only mode when no manual
// vocabulary entry exists for it.
var ErrVocabRequired = errors.New("structural vocabulary required: no manual entry in registry")

// Entry is one vocabulary result for a document.
type Entry struct {
	DocName       string                    `json:"doc_name"`
	PrimaryMarker string                    `json:"primary_marker"`
	ChapterCount  int                       `json:"chapter_count,omitempty"`
	Source        rulebook.VocabularySource `json:"source"`
	Confidence    float64                   `json:"confidence"`
	Timestamp     time.Time                 `json:"timestamp"`
	Invalidated   bool                      `json:"invalidated"`
}

// Validator decides whether a stored entry is still plausible for the
// document being profiled (e.g. its marker appears in large-font samples).
type Validator func(Entry) bool

// Markers a statistical fallback is allowed to promote to a vocabulary label.
var knownStructuralMarkers = map[string]bool{
	"Chapter": true, "Theme": true, "Unit": true, "Part": true, "Lesson": true,
	"Module": true, "Section": true, "Volume": true, "Topic": true, "Book": true,
	"Reading": true, "Entry": true, "Case": true, "Story": true, "Week": true,
	"Session": true, "Block": true, "Strand": true, "Article": true, "Clause": true,
	"Rule": true, "Act": true, "Schedule": true, "Protocol": true, "Trial": true,
	"Experiment": true, "Canto": true, "Tale": true, "Verse": true, "Epoch": true,
	"Era": true, "Period": true, "Paath": true,
}

var leadingWord = regexp.MustCompile(`^\s*([a-zA-Z]+)`)

// Store manages the on-disk vocabulary registry.
type Store struct {
	dir        string
	manualPath string
	apiPath    string
	logPath    string
	log        *slog.Logger
}

// Open initializes the registry directory, creating empty stores as needed.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	s := &Store{
		dir:        dir,
		manualPath: filepath.Join(dir, "manual_store.json"),
		apiPath:    filepath.Join(dir, "api_store.json"),
		logPath:    filepath.Join(dir, "validation_log.json"),
		log:        log,
	}
	for _, p := range []string{s.manualPath, s.apiPath, s.logPath} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			if err := os.WriteFile(p, []byte("[]"), 0o644); err != nil {
				return nil, fmt.Errorf("init registry store %s: %w", p, err)
			}
		}
	}
	return s, nil
}

// Dir returns the registry directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) loadEntries(path string) []Entry {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.log.Warn("registry store unreadable, treating as empty", "path", path, "error", err)
		return nil
	}
	return entries
}

func (s *Store) saveEntries(path string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry store: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write registry store %s: %w", path, err)
	}
	return nil
}

type validationRecord struct {
	Source    rulebook.VocabularySource `json:"source"`
	DocName   string                    `json:"doc_name"`
	Timestamp time.Time                 `json:"timestamp"`
	Result    string                    `json:"result"`
}

func (s *Store) appendValidationLog(rec validationRecord) {
	var records []validationRecord
	if data, err := os.ReadFile(s.logPath); err == nil {
		_ = json.Unmarshal(data, &records)
	}
	records = append(records, rec)
	if data, err := json.MarshalIndent(records, "", "  "); err == nil {
		_ = os.WriteFile(s.logPath, data, 0o644)
	}
}

// Get returns the best vocabulary entry for a document. Manual entries take
// precedence over oracle entries; within a source, newest first. Entries that
// fail the validator or are invalidated are skipped (each attempt is logged).
// When nothing survives, a statistical fallback is derived from the provided
// large-cluster samples, and failing that, the default fallback.
func (s *Store) Get(docName string, validator Validator, samples []string) Entry {
	sources := []struct {
		name    rulebook.VocabularySource
		entries []Entry
	}{
		{rulebook.SourceManualIngest, s.loadEntries(s.manualPath)},
		{rulebook.SourceOracle, s.loadEntries(s.apiPath)},
	}

	for _, src := range sources {
		matching := make([]Entry, 0, len(src.entries))
		for _, e := range src.entries {
			if e.DocName == docName {
				matching = append(matching, e)
			}
		}
		sort.Slice(matching, func(i, j int) bool {
			return matching[i].Timestamp.After(matching[j].Timestamp)
		})
		for _, e := range matching {
			if e.Invalidated {
				continue
			}
			ok := validator == nil || validator(e)
			result := "pass"
			if !ok {
				result = "fail"
			}
			s.appendValidationLog(validationRecord{
				Source: src.name, DocName: docName, Timestamp: time.Now(), Result: result,
			})
			if ok {
				return e
			}
		}
	}

	fallback := s.statisticalFallback(docName, samples)
	if fallback == nil {
		fallback = &Entry{
			DocName:       docName,
			PrimaryMarker: "Chapter",
			Source:        rulebook.SourceDefaultFallback,
			Confidence:    0.1,
			Timestamp:     time.Now(),
		}
	}
	s.appendValidationLog(validationRecord{
		Source: fallback.Source, DocName: docName, Timestamp: time.Now(), Result: "fallback_generated",
	})
	return *fallback
}

// statisticalFallback promotes the most common leading word of the large-font
// samples, but only when it is a known structural marker.
func (s *Store) statisticalFallback(docName string, samples []string) *Entry {
	counts := make(map[string]int)
	for _, sample := range samples {
		m := leadingWord.FindStringSubmatch(sample)
		if m == nil {
			continue
		}
		counts[titleCase(m[1])]++
	}
	best, bestN := "", 0
	for w, n := range counts {
		if n > bestN || (n == bestN && w < best) {
			best, bestN = w, n
		}
	}
	if best == "" || !knownStructuralMarkers[best] {
		return nil
	}
	return &Entry{
		DocName:       docName,
		PrimaryMarker: best,
		Source:        rulebook.SourceStatisticalFallback,
		Confidence:    0.5,
		Timestamp:     time.Now(),
	}
}

// WriteAPIResult appends an oracle-derived entry.
func (s *Store) WriteAPIResult(docName string, e Entry) error {
	e.DocName = docName
	e.Source = rulebook.SourceOracle
	e.Timestamp = time.Now()
	e.Invalidated = false
	entries := append(s.loadEntries(s.apiPath), e)
	return s.saveEntries(s.apiPath, entries)
}

// WriteManualResult appends a manually ingested entry.
func (s *Store) WriteManualResult(docName string, e Entry) error {
	e.DocName = docName
	e.Source = rulebook.SourceManualIngest
	e.Timestamp = time.Now()
	e.Invalidated = false
	entries := append(s.loadEntries(s.manualPath), e)
	return s.saveEntries(s.manualPath, entries)
}

// ListAll returns the latest entry per document across both stores.
func (s *Store) ListAll() []Entry {
	latest := make(map[string]Entry)
	for _, e := range append(s.loadEntries(s.manualPath), s.loadEntries(s.apiPath)...) {
		if cur, ok := latest[e.DocName]; !ok || e.Timestamp.After(cur.Timestamp) {
			latest[e.DocName] = e
		}
	}
	out := make([]Entry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocName < out[j].DocName })
	return out
}

// Clear invalidates the most recent non-invalidated entry for a document in
// the given source store. Entries are never deleted, only flagged.
func (s *Store) Clear(docName string, source rulebook.VocabularySource) error {
	path := s.apiPath
	if source == rulebook.SourceManualIngest {
		path = s.manualPath
	}
	entries := s.loadEntries(path)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].DocName == docName && !entries[i].Invalidated {
			entries[i].Invalidated = true
			return s.saveEntries(path, entries)
		}
	}
	return nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
