// Package refs holds the data contracts flowing between pipeline stages:
// verified structural destinations (TargetNode), mined pointers awaiting
// resolution (SemanticReference) and the resolver's output (Resolved).
//
// Invariants are enforced at construction so malformed values never reach
// downstream matching logic.
package refs

import (
	"fmt"
	"strings"

	"github.com/pagemap/relink/internal/geometry"
	"github.com/pagemap/relink/internal/urn"
)

// TargetType is a closed sum over the kinds of destinations the pipeline can
// produce. The resolver and annotator switch exhaustively over these; adding
// a variant without handling it there is a compile-review error, not a
// runtime surprise.
type TargetType string

const (
	TargetHierarchy      TargetType = "hierarchy"
	TargetAsset          TargetType = "asset"
	TargetSyntheticAsset TargetType = "synthetic_asset"
	TargetDirectPage     TargetType = "direct_page"
)

// TargetNode is a verified physical destination in the document.
// Immutable after construction.
type TargetNode struct {
	ID         string
	Type       TargetType
	Name       string
	Page       int // 1-indexed physical page
	Confidence float64
}

// NewTargetNode validates the node invariants: strictly positive physical
// page and a non-empty identifier.
func NewTargetNode(id string, t TargetType, name string, page int, confidence float64) (TargetNode, error) {
	if page < 1 {
		return TargetNode{}, fmt.Errorf("target node %q: invalid physical page %d", id, page)
	}
	if strings.TrimSpace(id) == "" {
		return TargetNode{}, fmt.Errorf("target node: empty identifier")
	}
	return TargetNode{ID: id, Type: t, Name: name, Page: page, Confidence: confidence}, nil
}

// SemanticReference is a mined navigational pointer awaiting resolution.
type SemanticReference struct {
	SourcePage int    // 1-indexed physical page the reference was mined from
	Anchor     string // e.g. "page:arabic:24", "map:02"
	Context    string // surrounding sentence/block text
	BBox       geometry.BBox
}

// NewSemanticReference enforces the stage-2/stage-3 contract: positive source
// page, anchor conforming to the shared URN grammar, non-empty context and a
// non-degenerate bounding box.
func NewSemanticReference(sourcePage int, anchor, context string, box geometry.BBox) (SemanticReference, error) {
	if sourcePage < 1 {
		return SemanticReference{}, fmt.Errorf("reference %q: invalid source page %d", anchor, sourcePage)
	}
	if !urn.ValidAnchor(anchor) {
		return SemanticReference{}, fmt.Errorf("reference: malformed or unsupported anchor %q", anchor)
	}
	if strings.TrimSpace(context) == "" {
		return SemanticReference{}, fmt.Errorf("reference %q: empty context", anchor)
	}
	if !box.Valid() {
		return SemanticReference{}, fmt.Errorf("reference %q: degenerate bounding box %v", anchor, box)
	}
	return SemanticReference{SourcePage: sourcePage, Anchor: anchor, Context: strings.TrimSpace(context), BBox: box}, nil
}

// Resolved pairs a mined reference with its verified target. A reference is
// never mutated during resolution; it is either dropped or consumed into one
// of these.
type Resolved struct {
	Ref    SemanticReference
	Target TargetNode
	Score  float64
}
