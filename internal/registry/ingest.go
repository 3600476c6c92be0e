package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Fields a manual response must carry before it is accepted into the store.
var requiredManualKeys = []string{"primary_marker", "chapter_count", "compound_titles", "font_role_map"}

// Pending describes a document awaiting manual vocabulary review.
type Pending struct {
	DocName   string
	Timestamp string
}

// IngestResponses scans the manual-review directory for *_response.json
// files (single objects or batch arrays), ingests every complete entry for
// docName into the manual store, clears its pending flag, and removes
// response files whose documents have all been processed. Returns whether an
// entry for docName was ingested.
func (s *Store) IngestResponses(manualDir, docName string) (bool, error) {
	if err := os.MkdirAll(manualDir, 0o755); err != nil {
		return false, fmt.Errorf("create manual review dir: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(manualDir, "*_response.json"))
	if err != nil {
		return false, err
	}

	ingested := false
	for _, rf := range files {
		data, err := os.ReadFile(rf)
		if err != nil {
			s.log.Warn("manual response unreadable", "file", rf, "error", err)
			continue
		}

		entries, isBatch, err := decodeResponses(data)
		if err != nil {
			s.log.Warn("manual response malformed", "file", rf, "error", err)
			continue
		}

		for _, raw := range entries {
			name, ok := raw["doc_name"].(string)
			if !ok || name != docName {
				continue
			}
			if missing := missingKeys(raw); len(missing) > 0 {
				s.log.Warn("manual response incomplete", "file", rf, "doc", name, "missing", missing)
				continue
			}
			entry := entryFromRaw(name, raw)
			if err := s.WriteManualResult(name, entry); err != nil {
				return ingested, err
			}
			s.log.Info("manual vocabulary auto-ingested", "doc", name, "primary_marker", entry.PrimaryMarker)
			ingested = true
			_ = os.Remove(pendingFlagPath(manualDir, name))
		}

		if isBatch {
			// Keep batch files around until every document they cover has
			// been reviewed.
			done := true
			for _, raw := range entries {
				if name, ok := raw["doc_name"].(string); ok {
					if _, err := os.Stat(pendingFlagPath(manualDir, name)); err == nil {
						done = false
					}
				}
			}
			if done {
				_ = os.Remove(rf)
			}
		} else if ingested {
			_ = os.Remove(rf)
		}
	}
	return ingested, nil
}

func decodeResponses(data []byte) ([]map[string]any, bool, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var batch []map[string]any
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, true, err
		}
		return batch, true, nil
	}
	var single map[string]any
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, false, err
	}
	return []map[string]any{single}, false, nil
}

func missingKeys(raw map[string]any) []string {
	var missing []string
	for _, k := range requiredManualKeys {
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

func entryFromRaw(docName string, raw map[string]any) Entry {
	e := Entry{DocName: docName, Confidence: 1.0}
	if m, ok := raw["primary_marker"].(string); ok {
		e.PrimaryMarker = m
	}
	if c, ok := raw["chapter_count"].(float64); ok {
		e.ChapterCount = int(c)
	}
	if c, ok := raw["confidence"].(float64); ok {
		e.Confidence = c
	}
	return e
}

func pendingFlagPath(manualDir, docName string) string {
	return filepath.Join(manualDir, docName+"_pending.flag")
}

// WritePending drops a pending-review flag for a document.
func WritePending(manualDir, docName string) error {
	if err := os.MkdirAll(manualDir, 0o755); err != nil {
		return err
	}
	content := fmt.Sprintf("%s\n%s\n", docName, time.Now().Format(time.RFC3339))
	return os.WriteFile(pendingFlagPath(manualDir, docName), []byte(content), 0o644)
}

// ListPending returns all documents awaiting manual review, sorted by name.
func ListPending(manualDir string) ([]Pending, error) {
	flags, err := filepath.Glob(filepath.Join(manualDir, "*_pending.flag"))
	if err != nil {
		return nil, err
	}
	sort.Strings(flags)
	var out []Pending
	for _, f := range flags {
		p := Pending{DocName: strings.TrimSuffix(filepath.Base(f), "_pending.flag"), Timestamp: "N/A"}
		if data, err := os.ReadFile(f); err == nil {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 1 {
				p.Timestamp = strings.TrimSpace(lines[1])
			}
		}
		out = append(out, p)
	}
	return out, nil
}
