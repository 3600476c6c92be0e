package oracle

import (
	"log/slog"
	"strconv"
	"strings"
)

var (
	allowedSizes     = map[string]bool{"giant": true, "large": true, "medium": true, "small": true}
	allowedPositions = map[string]bool{"top": true, "middle": true, "bottom": true}
	openerRoles      = map[string]bool{"chapter_number": true, "chapter_title": true}
)

// ValidateAndCorrect runs the three-tier correction pass over a decoded oracle
// response, mutating it in place.
//
// Tier 1 defaults individually malformed fields. Tier 2 repairs semantic
// inconsistencies across templates. Tier 3 rejects responses with no usable
// layout templates at all; those return ErrSchemaUnrecoverable so the caller
// can retry or fall back.
func ValidateAndCorrect(s *LayoutSchema, log *slog.Logger) error {
	// Tier 1: field-level defaulting.
	if strings.TrimSpace(s.PrimaryMarker) == "" {
		log.Warn("oracle response missing primary_marker, defaulting", "default", "Chapter")
		s.PrimaryMarker = "Chapter"
	}
	if s.ChapterCount < 0 {
		log.Warn("oracle response has negative chapter_count, zeroing", "value", s.ChapterCount)
		s.ChapterCount = 0
	}
	kept := s.LayoutTemplates[:0]
	for ti := range s.LayoutTemplates {
		t := &s.LayoutTemplates[ti]
		if strings.TrimSpace(t.TemplateID) == "" {
			t.TemplateID = "template_" + strconv.Itoa(ti)
		}
		if len(t.Elements) == 0 {
			log.Warn("oracle template has no elements, dropped", "template", t.TemplateID)
			continue
		}
		for ei := range t.Elements {
			e := &t.Elements[ei]
			if strings.TrimSpace(e.Role) == "" {
				e.Role = "unknown"
			}
			e.RelativeSize = strings.ToLower(strings.TrimSpace(e.RelativeSize))
			if !allowedSizes[e.RelativeSize] {
				log.Warn("oracle element has invalid relative_size, defaulting",
					"template", t.TemplateID, "value", e.RelativeSize)
				e.RelativeSize = "medium"
			}
			e.Position = strings.ToLower(strings.TrimSpace(e.Position))
			if !allowedPositions[e.Position] {
				e.Position = "middle"
			}
			if e.RepeatsOnPage < 1 {
				e.RepeatsOnPage = 1
			}
		}
		kept = append(kept, *t)
	}
	s.LayoutTemplates = kept

	// Tier 3 before tier 2: nothing usable survived filtering.
	if len(s.LayoutTemplates) == 0 {
		return ErrSchemaUnrecoverable
	}

	// Tier 2: cross-template consistency. Exactly one template may open a
	// top-level division.
	openers := 0
	for _, t := range s.LayoutTemplates {
		if t.IsChapterOpener {
			openers++
		}
	}
	switch {
	case openers == 0:
		// Infer the opener from element roles.
		for ti := range s.LayoutTemplates {
			if templateLooksLikeOpener(s.LayoutTemplates[ti]) {
				log.Warn("oracle marked no chapter opener, inferring from roles",
					"template", s.LayoutTemplates[ti].TemplateID)
				s.LayoutTemplates[ti].IsChapterOpener = true
				break
			}
		}
	case openers > 1:
		log.Warn("oracle marked multiple chapter openers, keeping the first", "count", openers)
		seen := false
		for ti := range s.LayoutTemplates {
			if s.LayoutTemplates[ti].IsChapterOpener {
				if seen {
					s.LayoutTemplates[ti].IsChapterOpener = false
				}
				seen = true
			}
		}
	}

	return nil
}

func templateLooksLikeOpener(t LayoutTemplate) bool {
	for _, e := range t.Elements {
		for role := range openerRoles {
			if strings.Contains(e.Role, role) {
				return true
			}
		}
	}
	return false
}

