// Package geometry supplies positioned text extracted from a PDF: per-line
// text with font size, boldness and bounding boxes, block grouping, and exact
// substring search scoped to a bounding box.
//
// Coordinates are normalized to a top-origin system (y grows downward), so
// margin ratios and vertical-gap thresholds read naturally for print layout.
package geometry

// BBox is an axis-aligned rectangle with x0<x1 and y0<y1 (top-origin).
type BBox struct {
	X0, Y0, X1, Y1 float64
}

// Valid reports whether the box is a non-degenerate rectangle.
func (b BBox) Valid() bool {
	return b.X0 < b.X1 && b.Y0 < b.Y1
}

// Union returns the smallest box containing both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// Intersects reports whether b and o overlap.
func (b BBox) Intersects(o BBox) bool {
	return b.X0 < o.X1 && o.X0 < b.X1 && b.Y0 < o.Y1 && o.Y0 < b.Y1
}

// MidY returns the vertical midpoint of the box.
func (b BBox) MidY() float64 {
	return (b.Y0 + b.Y1) / 2
}

// Span is a contiguous text fragment within a line, positioned horizontally.
// Offset is the rune offset of the fragment within the owning line's Text.
type Span struct {
	Text     string
	Font     string
	FontSize float64
	X, W     float64
	Offset   int
}

// Line is one observed text line.
type Line struct {
	Text     string
	FontSize float64 // size of the primary (largest-ink) span
	Bold     bool
	BBox     BBox
	Spans    []Span
}

// Block is a run of vertically adjacent lines, the unit the miner scans.
type Block struct {
	Text  string
	BBox  BBox
	Lines []Line
}

// Source is the geometry contract consumed by the inducer, the AST builder
// and the miner. *Document implements it against a real PDF; tests supply
// fakes.
type Source interface {
	NumPages() int
	Height(page int) float64
	Lines(page int) ([]Line, error)
	Blocks(page int) ([]Block, error)
	HasImage(page int) bool
	Search(page int, needle string, clip BBox) (BBox, bool)
}
