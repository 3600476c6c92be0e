// Package indexer is the AST builder: a single deterministic pass that
// replays the rulebook's visual signatures against the document geometry and
// emits the flat list of verified target nodes. No network and no heuristics
// beyond the signatures happen here.
package indexer

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/pagemap/relink/internal/geometry"
	"github.com/pagemap/relink/internal/refs"
	"github.com/pagemap/relink/internal/rulebook"
	"github.com/pagemap/relink/internal/urn"
)

// Heading continuations merge when the next block starts within this many
// points of the pending heading's bottom edge and is still heading-sized.
const (
	lookaheadGap     = 20.0
	lookaheadMinSize = 13.5
	dropCapMaxRunes  = 2
)

// Indexer builds the target-node list for one document.
type Indexer struct {
	src geometry.Source
	rb  *rulebook.Rulebook
	log *slog.Logger
}

// New wires an indexer over an open document and its induced rulebook.
func New(src geometry.Source, rb *rulebook.Rulebook, log *slog.Logger) *Indexer {
	return &Indexer{src: src, rb: rb, log: log}
}

// pendingHeading buffers a freshly matched hierarchy node so that a title
// block directly below can merge into it before it is committed.
type pendingHeading struct {
	node refs.TargetNode
	bbox geometry.BBox
}

// BuildAST walks every mapped page in physical order and emits target nodes
// for asset captions and hierarchy headings. Pages outside all topology
// segments are skipped entirely.
func (ix *Indexer) BuildAST() ([]refs.TargetNode, error) {
	var nodes []refs.TargetNode
	counters := make(map[string]int)
	var pending *pendingHeading

	flush := func() {
		if pending != nil {
			nodes = append(nodes, pending.node)
			pending = nil
		}
	}

	for page := 1; page <= ix.src.NumPages(); page++ {
		if !ix.rb.InSegment(page) {
			ix.log.Debug("topology gap, page skipped", "physical_page", page)
			continue
		}
		blocks, err := ix.src.Blocks(page)
		if err != nil {
			return nil, fmt.Errorf("index page %d: %w", page, err)
		}

		for _, block := range blocks {
			for _, line := range block.Lines {
				text := strings.TrimSpace(line.Text)
				if text == "" {
					continue
				}
				// Drop caps and stray ligature fragments.
				if len([]rune(text)) <= dropCapMaxRunes {
					continue
				}

				if pending != nil {
					if math.Abs(line.BBox.Y0-pending.bbox.Y1) < lookaheadGap && line.FontSize > lookaheadMinSize {
						pending.node.Name += ": " + text
						pending.bbox = geometry.BBox{
							X0: pending.bbox.X0,
							Y0: pending.bbox.Y0,
							X1: math.Max(pending.bbox.X1, line.BBox.X1),
							Y1: line.BBox.Y1,
						}
						continue
					}
					flush()
				}

				if node, ok := ix.matchAsset(text, line, page, counters); ok {
					nodes = append(nodes, node)
					continue
				}
				if node, ok := ix.matchHierarchy(text, line, page, counters); ok {
					pending = &pendingHeading{node: node, bbox: line.BBox}
				}
			}
		}
	}
	flush()

	ix.log.Info("AST construction complete", "nodes", len(nodes))
	return nodes, nil
}

// matchAsset tests a line against every asset signature. The signature match
// alone is not enough: the text must actually contain the marker word.
func (ix *Indexer) matchAsset(text string, line geometry.Line, page int, counters map[string]int) (refs.TargetNode, bool) {
	for _, asset := range ix.rb.Assets {
		if !asset.VisualSignature.Matches(line.FontSize, line.Bold) {
			continue
		}
		kind := strings.ToLower(asset.AssetType)
		if !assetMarkerRe(kind).MatchString(text) {
			continue
		}
		key := "asset:" + kind
		counters[key]++
		node, err := refs.NewTargetNode(
			urn.StructuralURN(kind, counters[key]),
			refs.TargetAsset, text, page, 1.0,
		)
		if err != nil {
			ix.log.Warn("asset node rejected", "error", err)
			return refs.TargetNode{}, false
		}
		return node, true
	}
	return refs.TargetNode{}, false
}

// matchHierarchy tests a line against the heading levels, most prominent
// first, and mints a namespaced node from the level's label hypothesis.
func (ix *Indexer) matchHierarchy(text string, line geometry.Line, page int, counters map[string]int) (refs.TargetNode, bool) {
	for _, lvl := range ix.rb.HierarchyLevels {
		if !lvl.VisualSignature.Matches(line.FontSize, line.Bold) {
			continue
		}
		label := lvl.LabelHypothesis.PreferredLabel
		namespace := urn.Slugify(label)
		key := "hier:" + namespace
		counters[key]++
		node, err := refs.NewTargetNode(
			urn.StructuralURN(namespace, counters[key]),
			refs.TargetHierarchy, text, page, lvl.LabelHypothesis.Confidence,
		)
		if err != nil {
			ix.log.Warn("hierarchy node rejected", "error", err)
			return refs.TargetNode{}, false
		}
		return node, true
	}
	return refs.TargetNode{}, false
}

var assetRes = map[string]*regexp.Regexp{}

func assetMarkerRe(kind string) *regexp.Regexp {
	if re, ok := assetRes[kind]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kind) + `\b`)
	assetRes[kind] = re
	return re
}

// Index is a constant-time lookup table over the AST keyed by target ID.
type Index map[string]refs.TargetNode

// BuildIndex folds the node list into its lookup form. Later duplicates are
// ignored; the first minted node owns the identifier.
func BuildIndex(nodes []refs.TargetNode) Index {
	idx := make(Index, len(nodes))
	for _, n := range nodes {
		if _, exists := idx[n.ID]; !exists {
			idx[n.ID] = n
		}
	}
	return idx
}
