// Package miner extracts explicit navigational symbols ("see page 42",
// "p. xii") from block text and converts them into strict semantic
// references. It scans every page; gating against the topology map is the
// resolver's job.
package miner

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/pagemap/relink/internal/geometry"
	"github.com/pagemap/relink/internal/refs"
	"github.com/pagemap/relink/internal/urn"
)

// pagePattern captures the numeral following a page/p./p prefix. The prefix
// requirement is what permits single-letter roman numerals at all.
var pagePattern = regexp.MustCompile(`(?i)\b(?:page|p\.?)\s*([ivxlcdm]+|[0-9]+)\b`)

// Single letters that are valid numerals but far more often abbreviations
// (c. for circa, l. for line). i, v and x stay accepted because the page
// prefix disambiguates them.
var ambiguousRomanChars = map[string]bool{"c": true, "d": true, "l": true, "m": true}

// Miner scans document blocks for page references.
type Miner struct {
	src geometry.Source
	log *slog.Logger
}

func New(src geometry.Source, log *slog.Logger) *Miner {
	return &Miner{src: src, log: log}
}

// MineDocument walks every block of every page and collects references.
func (m *Miner) MineDocument() ([]refs.SemanticReference, error) {
	var out []refs.SemanticReference
	for page := 1; page <= m.src.NumPages(); page++ {
		blocks, err := m.src.Blocks(page)
		if err != nil {
			return nil, fmt.Errorf("mine page %d: %w", page, err)
		}
		for _, b := range blocks {
			text := strings.TrimSpace(b.Text)
			if text == "" {
				continue
			}
			out = append(out, m.MineBlock(page, text, b.BBox)...)
		}
	}
	m.log.Info("reference mining complete", "references", len(out))
	return out, nil
}

// MineBlock extracts all page references from one block of text.
func (m *Miner) MineBlock(page int, text string, blockBox geometry.BBox) []refs.SemanticReference {
	var out []refs.SemanticReference
	for _, match := range pagePattern.FindAllStringSubmatchIndex(text, -1) {
		full := text[match[0]:match[1]]
		token := strings.ToLower(text[match[2]:match[3]])

		isRoman := !isDigits(token)
		var val int
		var numbering urn.Numbering
		if isRoman {
			if len(token) == 1 && ambiguousRomanChars[token] {
				continue
			}
			if !urn.IsValidRoman(token) {
				continue
			}
			val = urn.RomanToInt(token)
			numbering = urn.Roman
		} else {
			v, err := strconv.Atoi(token)
			if err != nil {
				continue
			}
			val = v
			numbering = urn.Arabic
		}
		if val <= 0 {
			continue
		}

		box := m.anchorBBox(page, full, blockBox)
		ref, err := refs.NewSemanticReference(page, urn.PageURN(val, numbering), text, box)
		if err != nil {
			m.log.Warn("mined reference rejected", "anchor", full, "page", page, "error", err)
			continue
		}
		out = append(out, ref)
	}
	return out
}

// anchorBBox locates the exact box of the matched anchor text, clipped to the
// context block so a duplicate phrase elsewhere on the page cannot collide.
// When the layout splits the phrase across spans the block box stands in.
func (m *Miner) anchorBBox(page int, anchor string, blockBox geometry.BBox) geometry.BBox {
	if box, ok := m.src.Search(page, anchor, blockBox); ok {
		return box
	}
	m.log.Warn("exact anchor box not found, falling back to block box",
		"anchor", anchor, "page", page)
	return blockBox
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
