package resolver

import (
	"log/slog"
	"testing"

	"github.com/pagemap/relink/internal/geometry"
	"github.com/pagemap/relink/internal/refs"
	"github.com/pagemap/relink/internal/rulebook"
	"github.com/pagemap/relink/internal/urn"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

// Two segments sharing printed values: roman front matter i..iv, then arabic
// body restarting at 1. Numbering type is what keeps them apart.
func testRulebook() *rulebook.Rulebook {
	return &rulebook.Rulebook{
		PageMap: []rulebook.Segment{
			{PhysicalStart: 1, PhysicalEnd: 4, PrintedStart: 1, PrintedEnd: 4, Numbering: urn.Roman},
			{PhysicalStart: 5, PhysicalEnd: 12, PrintedStart: 1, PrintedEnd: 8, Numbering: urn.Arabic},
		},
	}
}

func testAST(t *testing.T) []refs.TargetNode {
	t.Helper()
	theme, err := refs.NewTargetNode("theme:01", refs.TargetHierarchy, "Theme 1: Origins", 5, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	fig, err := refs.NewTargetNode("fig:01", refs.TargetAsset, "Fig 1.1 Ancient trade routes", 6, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	return []refs.TargetNode{theme, fig}
}

func mkRef(t *testing.T, page int, anchor string) refs.SemanticReference {
	t.Helper()
	ref, err := refs.NewSemanticReference(page, anchor, "see "+anchor+" nearby",
		geometry.BBox{X0: 10, Y0: 10, X1: 90, Y1: 22})
	if err != nil {
		t.Fatalf("reference %s: %v", anchor, err)
	}
	return ref
}

func TestResolveDirectPageByNumbering(t *testing.T) {
	r := New(testRulebook(), nil, nil, discard())
	got := r.Resolve([]refs.SemanticReference{
		mkRef(t, 7, "page:arabic:3"),
		mkRef(t, 7, "page:roman:3"),
	})
	if len(got) != 2 {
		t.Fatalf("resolved = %+v, want 2", got)
	}
	// Arabic 3 lands in the body segment, roman iii in the front matter.
	if got[0].Target.Page != 7 {
		t.Errorf("arabic 3 -> physical %d, want 7", got[0].Target.Page)
	}
	if got[1].Target.Page != 3 {
		t.Errorf("roman iii -> physical %d, want 3", got[1].Target.Page)
	}
	for _, res := range got {
		if res.Target.Type != refs.TargetDirectPage || res.Score != 1.0 || res.Target.Confidence != 1.0 {
			t.Errorf("direct page target = %+v score %v", res.Target, res.Score)
		}
		if res.Target.ID != res.Ref.Anchor || res.Target.Name != res.Ref.Anchor {
			t.Errorf("direct page node must be named by its anchor: %+v", res.Target)
		}
	}
}

func TestResolveDropsTopologyGap(t *testing.T) {
	r := New(testRulebook(), nil, nil, discard())
	got := r.Resolve([]refs.SemanticReference{
		mkRef(t, 2, "page:arabic:99"),
		mkRef(t, 2, "page:roman:9"),
	})
	if len(got) != 0 {
		t.Errorf("resolved = %+v, want both dropped as unmapped", got)
	}
}

func TestResolveStructuralAnchorFromAST(t *testing.T) {
	r := New(testRulebook(), testAST(t), nil, discard())
	got := r.Resolve([]refs.SemanticReference{mkRef(t, 8, "fig:01")})
	if len(got) != 1 {
		t.Fatalf("resolved = %+v, want 1", got)
	}
	res := got[0]
	if res.Target.ID != "fig:01" || res.Target.Page != 6 {
		t.Errorf("target = %+v", res.Target)
	}
	if res.Score != res.Target.Confidence {
		t.Errorf("score = %v, want the node confidence %v", res.Score, res.Target.Confidence)
	}
}

func TestResolveUnknownAnchorDropped(t *testing.T) {
	r := New(testRulebook(), testAST(t), nil, discard())
	if got := r.Resolve([]refs.SemanticReference{mkRef(t, 8, "map:07")}); len(got) != 0 {
		t.Errorf("resolved = %+v, want unknown anchor dropped", got)
	}
}

func TestResolveSyntheticFallback(t *testing.T) {
	lookup := func(anchor string) (int, bool) {
		if anchor == "map:07" {
			return 11, true
		}
		return 0, false
	}
	r := New(testRulebook(), testAST(t), lookup, discard())
	got := r.Resolve([]refs.SemanticReference{
		mkRef(t, 8, "map:07"),
		mkRef(t, 8, "map:08"),
	})
	if len(got) != 1 {
		t.Fatalf("resolved = %+v, want only the aliased anchor", got)
	}
	res := got[0]
	if res.Target.Type != refs.TargetSyntheticAsset || res.Target.Page != 11 {
		t.Errorf("target = %+v", res.Target)
	}
	if res.Target.Name != "Synthetic map:07" {
		t.Errorf("name = %q", res.Target.Name)
	}
	if res.Score != 0.5 || res.Target.Confidence != 0.5 {
		t.Errorf("score = %v confidence = %v, want 0.5", res.Score, res.Target.Confidence)
	}
}

func TestResolvePreservesInputReference(t *testing.T) {
	in := mkRef(t, 7, "page:arabic:3")
	want := in
	got := New(testRulebook(), nil, nil, discard()).Resolve([]refs.SemanticReference{in})
	if len(got) != 1 {
		t.Fatal("expected resolution")
	}
	if got[0].Ref != want || in != want {
		t.Errorf("input reference changed: %+v", got[0].Ref)
	}
}
