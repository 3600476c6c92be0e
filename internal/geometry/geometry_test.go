package geometry

import "testing"

func TestBBoxValid(t *testing.T) {
	if !(BBox{X0: 1, Y0: 1, X1: 2, Y1: 2}).Valid() {
		t.Error("expected valid box")
	}
	if (BBox{X0: 2, Y0: 1, X1: 1, Y1: 2}).Valid() {
		t.Error("expected inverted x box to be invalid")
	}
	if (BBox{X0: 1, Y0: 2, X1: 2, Y1: 2}).Valid() {
		t.Error("expected zero-height box to be invalid")
	}
}

func TestBBoxUnionAndIntersects(t *testing.T) {
	a := BBox{X0: 0, Y0: 0, X1: 10, Y1: 10}
	b := BBox{X0: 5, Y0: 5, X1: 20, Y1: 8}
	u := a.Union(b)
	want := BBox{X0: 0, Y0: 0, X1: 20, Y1: 10}
	if u != want {
		t.Errorf("union = %+v, want %+v", u, want)
	}
	if !a.Intersects(b) {
		t.Error("expected overlap")
	}
	c := BBox{X0: 11, Y0: 0, X1: 12, Y1: 1}
	if a.Intersects(c) {
		t.Error("expected no overlap")
	}
}

func TestGroupBlocksMergesAdjacentLines(t *testing.T) {
	lines := []Line{
		TextLine("See the figure on", 10, false, BBox{X0: 50, Y0: 100, X1: 300, Y1: 110}),
		TextLine("page 42 for details.", 10, false, BBox{X0: 50, Y0: 112, X1: 280, Y1: 122}),
		TextLine("A distant paragraph.", 10, false, BBox{X0: 50, Y0: 200, X1: 290, Y1: 210}),
	}
	blocks := GroupBlocks(lines)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Text != "See the figure on page 42 for details." {
		t.Errorf("merged text = %q", blocks[0].Text)
	}
	if blocks[0].BBox.Y1 != 122 {
		t.Errorf("merged bbox should grow to y1=122, got %v", blocks[0].BBox.Y1)
	}
}

func TestSearchLinesFindsSubstringBox(t *testing.T) {
	// One span of 40 chars spanning x 0..400: each char is 10 wide.
	text := "turn to page 42 for the annexation map.."
	ln := TextLine(text, 10, false, BBox{X0: 0, Y0: 100, X1: 400, Y1: 112})
	clip := BBox{X0: 0, Y0: 90, X1: 400, Y1: 120}

	box, ok := SearchLines([]Line{ln}, "page 42", clip)
	if !ok {
		t.Fatal("expected match")
	}
	// "page 42" starts at offset 8, length 7.
	if box.X0 != 80 || box.X1 != 150 {
		t.Errorf("box = %+v, want x0=80 x1=150", box)
	}
	if box.Y0 != 100 || box.Y1 != 112 {
		t.Errorf("box vertical extent = %+v, want line extent", box)
	}
}

func TestSearchLinesRespectsClip(t *testing.T) {
	ln := TextLine("page 42", 10, false, BBox{X0: 0, Y0: 100, X1: 70, Y1: 112})
	farClip := BBox{X0: 0, Y0: 500, X1: 70, Y1: 520}
	if _, ok := SearchLines([]Line{ln}, "page 42", farClip); ok {
		t.Error("expected no match outside clip")
	}
}

func TestIsBoldFont(t *testing.T) {
	for font, want := range map[string]bool{
		"Times-Bold":        true,
		"Helvetica-Black":   true,
		"ACaslonPro-Regular": false,
		"Arial-BoldMT":      true,
		"Georgia":           false,
	} {
		if got := IsBoldFont(font); got != want {
			t.Errorf("IsBoldFont(%q) = %v, want %v", font, got, want)
		}
	}
}
