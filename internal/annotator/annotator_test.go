package annotator

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/pagemap/relink/internal/geometry"
	"github.com/pagemap/relink/internal/refs"
)

// fakeDoc stands in for the pdfcpu-backed file operations: four US Letter
// pages and a write stub that records what would hit disk.
type fakeDoc struct {
	written map[int][]model.AnnotationRenderer
	calls   int
}

func (f *fakeDoc) dims(string) ([]types.Dim, error) {
	return []types.Dim{
		{Width: 612, Height: 792},
		{Width: 612, Height: 792},
		{Width: 612, Height: 792},
		{Width: 612, Height: 792},
	}, nil
}

func (f *fakeDoc) write(_, _ string, annots map[int][]model.AnnotationRenderer) error {
	f.calls++
	f.written = annots
	return nil
}

func newTestAnnotator(t *testing.T, minConf float64, debug bool) (*Annotator, *fakeDoc) {
	t.Helper()
	doc := &fakeDoc{}
	a := New(minConf, debug, slog.New(slog.DiscardHandler))
	a.pageDims = doc.dims
	a.write = doc.write
	return a, doc
}

func link(t *testing.T, srcPage, targetPage int, score float64) refs.Resolved {
	t.Helper()
	ref, err := refs.NewSemanticReference(srcPage, "page:arabic:9", "see page 9",
		geometry.BBox{X0: 100, Y0: 700, X1: 180, Y1: 712})
	if err != nil {
		t.Fatal(err)
	}
	node, err := refs.NewTargetNode("page:arabic:9", refs.TargetDirectPage, "page:arabic:9", targetPage, score)
	if err != nil {
		t.Fatal(err)
	}
	return refs.Resolved{Ref: ref, Target: node, Score: score}
}

func TestAnnotateAppliesResolvedLinks(t *testing.T) {
	a, doc := newTestAnnotator(t, 0.75, false)
	n, err := a.Annotate("in.pdf", "out.pdf", []refs.Resolved{
		link(t, 1, 3, 1.0),
		link(t, 1, 4, 0.95),
		link(t, 2, 1, 1.0),
	})
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if n != 3 {
		t.Errorf("applied = %d, want 3", n)
	}
	if len(doc.written[1]) != 2 || len(doc.written[2]) != 1 {
		t.Errorf("page map = %v", doc.written)
	}
}

func TestAnnotateConfidenceGate(t *testing.T) {
	a, doc := newTestAnnotator(t, 0.75, false)
	n, err := a.Annotate("in.pdf", "out.pdf", []refs.Resolved{
		link(t, 1, 2, 0.5), // synthetic-grade score, below threshold
		link(t, 1, 2, 0.95),
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(doc.written[1]) != 1 {
		t.Errorf("applied = %d map = %v, want the low-score link dropped", n, doc.written)
	}
}

func TestAnnotateZeroSurvivorsStillWrites(t *testing.T) {
	a, doc := newTestAnnotator(t, 0.75, false)
	n, err := a.Annotate("in.pdf", "out.pdf", []refs.Resolved{link(t, 1, 2, 0.1)})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("applied = %d, want 0", n)
	}
	if doc.calls != 1 || len(doc.written) != 0 {
		t.Errorf("output copy must still be written, calls = %d", doc.calls)
	}
}

func TestAnnotateBoundsFaultAbortsWrite(t *testing.T) {
	a, doc := newTestAnnotator(t, 0.75, false)
	_, err := a.Annotate("in.pdf", "out.pdf", []refs.Resolved{
		link(t, 1, 2, 1.0), // valid, but must not survive the later fault
		link(t, 2, 9, 1.0), // target beyond the four pages
	})
	var be *BoundsError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BoundsError", err)
	}
	if be.Page != 9 || be.Total != 4 {
		t.Errorf("bounds error = %+v", be)
	}
	if doc.calls != 0 {
		t.Error("write must not run after a bounds fault")
	}
}

func TestAnnotateConvertsToBottomOriginCoordinates(t *testing.T) {
	a, doc := newTestAnnotator(t, 0.75, false)
	if _, err := a.Annotate("in.pdf", "out.pdf", []refs.Resolved{link(t, 1, 2, 1.0)}); err != nil {
		t.Fatal(err)
	}
	la, ok := doc.written[1][0].(model.LinkAnnotation)
	if !ok {
		t.Fatalf("renderer type %T", doc.written[1][0])
	}
	// Top-origin y 700..712 on a 792pt page lands at user-space y 80..92.
	if la.Rect.LL.X != 100 || la.Rect.LL.Y != 80 || la.Rect.UR.X != 180 || la.Rect.UR.Y != 92 {
		t.Errorf("rect = %+v", la.Rect)
	}
	if la.Dest == nil || la.Dest.PageNr != 2 {
		t.Errorf("dest = %+v, want page 2", la.Dest)
	}
}

func TestAnnotateDebugBorders(t *testing.T) {
	a, doc := newTestAnnotator(t, 0.75, true)
	if _, err := a.Annotate("in.pdf", "out.pdf", []refs.Resolved{link(t, 1, 2, 1.0)}); err != nil {
		t.Fatal(err)
	}
	la := doc.written[1][0].(model.LinkAnnotation)
	if !la.Border || la.BorderWidth != debugBorderWidth {
		t.Errorf("debug border not applied: border=%v width=%v", la.Border, la.BorderWidth)
	}
}
