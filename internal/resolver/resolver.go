// Package resolver is the relational linker: it attaches every mined
// reference to a verified target node, or drops it with a logged reason.
// Resolution is strictly deterministic; the synthetic-anchor hook exists for
// downstream alias maps but resolves nothing by default.
package resolver

import (
	"log/slog"

	"github.com/pagemap/relink/internal/indexer"
	"github.com/pagemap/relink/internal/refs"
	"github.com/pagemap/relink/internal/rulebook"
	"github.com/pagemap/relink/internal/urn"
)

// SyntheticLookup resolves anchors absent from the AST to a physical page.
// Implementations might consult an alias map or a secondary text pass.
type SyntheticLookup func(anchor string) (int, bool)

// Resolver links mined references against the AST and the topology map.
type Resolver struct {
	rb        *rulebook.Rulebook
	idx       indexer.Index
	synthetic SyntheticLookup
	log       *slog.Logger
}

// New builds a resolver over the AST and rulebook. synthetic may be nil.
func New(rb *rulebook.Rulebook, ast []refs.TargetNode, synthetic SyntheticLookup, log *slog.Logger) *Resolver {
	return &Resolver{
		rb:        rb,
		idx:       indexer.BuildIndex(ast),
		synthetic: synthetic,
		log:       log,
	}
}

// Resolve attaches targets to the mined references. References it cannot
// place are dropped, never mutated; each drop is logged with its reason.
func (r *Resolver) Resolve(mined []refs.SemanticReference) []refs.Resolved {
	resolved := make([]refs.Resolved, 0, len(mined))

	for _, ref := range mined {
		numbering, val, isPage, err := urn.ParsePageURN(ref.Anchor)
		if err != nil {
			r.log.Warn("reference dropped, malformed anchor", "anchor", ref.Anchor, "error", err)
			continue
		}

		if isPage {
			if out, ok := r.resolveDirectPage(ref, numbering, val); ok {
				resolved = append(resolved, out)
			}
			continue
		}

		if node, ok := r.idx[ref.Anchor]; ok {
			resolved = append(resolved, refs.Resolved{Ref: ref, Target: node, Score: node.Confidence})
			continue
		}

		if out, ok := r.resolveSynthetic(ref); ok {
			resolved = append(resolved, out)
			continue
		}
		r.log.Warn("unresolved anchor, not in AST and no synthetic fallback",
			"anchor", ref.Anchor, "source_page", ref.SourcePage)
	}

	r.log.Info("relational linking complete", "resolved", len(resolved), "mined", len(mined))
	return resolved
}

// resolveDirectPage maps a printed page number through the topology. A
// printed value outside every mapped segment is a topology gap and the
// reference is dropped.
func (r *Resolver) resolveDirectPage(ref refs.SemanticReference, numbering urn.Numbering, val int) (refs.Resolved, bool) {
	phys, ok := r.rb.ResolvePrinted(val, numbering)
	if !ok {
		r.log.Warn("reference dropped, printed page outside mapped segments",
			"anchor", ref.Anchor, "source_page", ref.SourcePage)
		return refs.Resolved{}, false
	}
	node, err := refs.NewTargetNode(ref.Anchor, refs.TargetDirectPage, ref.Anchor, phys, 1.0)
	if err != nil {
		r.log.Warn("reference dropped, invalid direct-page target", "anchor", ref.Anchor, "error", err)
		return refs.Resolved{}, false
	}
	return refs.Resolved{Ref: ref, Target: node, Score: 1.0}, true
}

func (r *Resolver) resolveSynthetic(ref refs.SemanticReference) (refs.Resolved, bool) {
	if r.synthetic == nil {
		return refs.Resolved{}, false
	}
	page, ok := r.synthetic(ref.Anchor)
	if !ok {
		return refs.Resolved{}, false
	}
	node, err := refs.NewTargetNode(ref.Anchor, refs.TargetSyntheticAsset, "Synthetic "+ref.Anchor, page, 0.5)
	if err != nil {
		r.log.Warn("synthetic target rejected", "anchor", ref.Anchor, "error", err)
		return refs.Resolved{}, false
	}
	return refs.Resolved{Ref: ref, Target: node, Score: 0.5}, true
}
