package geometry

import (
	"fmt"
	"os"
	"sort"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// Vertical tolerance when grouping fragments into lines, and the horizontal
// gap (relative to font size) at which a word break is inserted.
const (
	lineYTolerance = 2.0
	wordGapFactor  = 0.3
	blockGapFactor = 0.9
)

// Document provides geometry access to a single PDF. The file handle is
// exclusively owned by the active pipeline phase; Close is safe to call on
// every exit path.
type Document struct {
	path   string
	file   *os.File
	reader *pdflib.Reader

	pages   int
	heights []float64

	lineCache map[int][]Line
}

// Open opens a PDF for geometry extraction.
func Open(path string) (*Document, error) {
	f, r, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	d := &Document{
		path:      path,
		file:      f,
		reader:    r,
		pages:     r.NumPage(),
		heights:   make([]float64, r.NumPage()+1),
		lineCache: make(map[int][]Line),
	}
	return d, nil
}

// Path returns the underlying file path.
func (d *Document) Path() string { return d.path }

// NumPages returns the physical page count.
func (d *Document) NumPages() int { return d.pages }

// Close releases the underlying file handle.
func (d *Document) Close() error {
	return d.file.Close()
}

// Height returns the page height in points (1-indexed page).
func (d *Document) Height(page int) float64 {
	if page < 1 || page > d.pages {
		return 0
	}
	if d.heights[page] != 0 {
		return d.heights[page]
	}
	h := 792.0 // US Letter default when the media box is unreadable
	if box, ok := mediaBox(d.reader.Page(page).V); ok {
		h = box.Y1 - box.Y0
	}
	d.heights[page] = h
	return h
}

// Lines returns the text lines of a page in reading order, top to bottom.
// Pages without extractable text yield an empty slice, not an error.
func (d *Document) Lines(page int) (lines []Line, err error) {
	if cached, ok := d.lineCache[page]; ok {
		return cached, nil
	}
	if page < 1 || page > d.pages {
		return nil, fmt.Errorf("page %d out of range 1..%d", page, d.pages)
	}

	// The content-stream parser panics on some malformed streams; surface
	// that as a per-page extraction error instead of killing the batch.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract page %d of %s: %v", page, d.path, r)
		}
	}()

	p := d.reader.Page(page)
	if p.V.IsNull() {
		d.lineCache[page] = nil
		return nil, nil
	}
	content := p.Content()
	lines = assembleLines(content.Text, d.Height(page))
	d.lineCache[page] = lines
	return lines, nil
}

// Blocks merges vertically adjacent lines into blocks.
func (d *Document) Blocks(page int) ([]Block, error) {
	lines, err := d.Lines(page)
	if err != nil {
		return nil, err
	}
	return GroupBlocks(lines), nil
}

// HasImage reports whether the page's resource dictionary references an
// image XObject.
func (d *Document) HasImage(page int) bool {
	if page < 1 || page > d.pages {
		return false
	}
	defer func() { _ = recover() }()
	res := d.reader.Page(page).V.Key("Resources")
	xobj := res.Key("XObject")
	for _, k := range xobj.Keys() {
		if xobj.Key(k).Key("Subtype").Name() == "Image" {
			return true
		}
	}
	return false
}

// Search finds the first occurrence of needle inside clip on the given page
// and returns its bounding box. The search is case-insensitive and the box is
// interpolated across span extents for substrings shorter than a line.
func (d *Document) Search(page int, needle string, clip BBox) (BBox, bool) {
	lines, err := d.Lines(page)
	if err != nil || needle == "" {
		return BBox{}, false
	}
	return SearchLines(lines, needle, clip)
}

// SearchLines implements Search over pre-extracted lines. Exported so fakes
// and tests share the exact production lookup.
func SearchLines(lines []Line, needle string, clip BBox) (BBox, bool) {
	lowNeedle := strings.ToLower(needle)
	for _, ln := range lines {
		if !ln.BBox.Intersects(clip) {
			continue
		}
		idx := strings.Index(strings.ToLower(ln.Text), lowNeedle)
		if idx < 0 {
			continue
		}
		box, ok := spanSubBox(ln, idx, idx+len(needle))
		if !ok {
			continue
		}
		if box.Intersects(clip) {
			return box, true
		}
	}
	return BBox{}, false
}

// GroupBlocks merges consecutive lines whose vertical gap is below a factor
// of the font size.
func GroupBlocks(lines []Line) []Block {
	var blocks []Block
	var cur *Block
	for _, ln := range lines {
		if cur != nil {
			gap := ln.BBox.Y0 - cur.BBox.Y1
			if gap < blockGapFactor*maxf(ln.FontSize, 1) {
				cur.Lines = append(cur.Lines, ln)
				cur.Text += " " + ln.Text
				cur.BBox = cur.BBox.Union(ln.BBox)
				continue
			}
			blocks = append(blocks, *cur)
		}
		cur = &Block{Text: ln.Text, BBox: ln.BBox, Lines: []Line{ln}}
	}
	if cur != nil {
		blocks = append(blocks, *cur)
	}
	return blocks
}

// assembleLines groups raw fragments by baseline and converts the PDF's
// bottom-origin coordinates to top-origin.
func assembleLines(frags []pdflib.Text, pageHeight float64) []Line {
	if len(frags) == 0 {
		return nil
	}
	sorted := make([]pdflib.Text, len(frags))
	copy(sorted, frags)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y // higher baseline first = top of page first
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []Line
	var group []pdflib.Text
	flush := func() {
		if ln, ok := buildLine(group, pageHeight); ok {
			lines = append(lines, ln)
		}
		group = group[:0]
	}
	for _, fr := range sorted {
		if len(group) > 0 && abs(fr.Y-group[len(group)-1].Y) > lineYTolerance {
			flush()
		}
		group = append(group, fr)
	}
	flush()
	return lines
}

func buildLine(frags []pdflib.Text, pageHeight float64) (Line, bool) {
	var (
		sb      strings.Builder
		spans   []Span
		box     BBox
		haveBox bool
		primary pdflib.Text
	)
	prevEnd := 0.0
	for i, fr := range frags {
		if strings.TrimSpace(fr.S) == "" && fr.S != " " {
			continue
		}
		if sb.Len() > 0 && fr.X-prevEnd > wordGapFactor*maxf(fr.FontSize, 1) {
			sb.WriteByte(' ')
		}
		spans = append(spans, Span{
			Text:     fr.S,
			Font:     fr.Font,
			FontSize: fr.FontSize,
			X:        fr.X,
			W:        fr.W,
			Offset:   sb.Len(),
		})
		sb.WriteString(fr.S)
		prevEnd = fr.X + fr.W

		fb := BBox{
			X0: fr.X,
			Y0: pageHeight - fr.Y - fr.FontSize,
			X1: fr.X + fr.W,
			Y1: pageHeight - fr.Y,
		}
		if fb.X1 <= fb.X0 {
			fb.X1 = fb.X0 + 0.1
		}
		if !haveBox {
			box, haveBox = fb, true
		} else {
			box = box.Union(fb)
		}
		if fr.W*fr.FontSize > primary.W*primary.FontSize || i == 0 {
			primary = fr
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" || !haveBox {
		return Line{}, false
	}
	return Line{
		Text:     text,
		FontSize: primary.FontSize,
		Bold:     IsBoldFont(primary.Font),
		BBox:     box,
		Spans:    spans,
	}, true
}

// IsBoldFont infers boldness from the font name; the extraction layer
// exposes no style flags.
func IsBoldFont(font string) bool {
	f := strings.ToLower(font)
	return strings.Contains(f, "bold") || strings.Contains(f, "black") || strings.Contains(f, "heavy")
}

// spanSubBox computes the box of text[start:end) within a line by
// interpolating inside the covering spans.
func spanSubBox(ln Line, start, end int) (BBox, bool) {
	if len(ln.Spans) == 0 || start >= end {
		return BBox{}, false
	}
	x0, x1 := 0.0, 0.0
	found0, found1 := false, false
	for _, sp := range ln.Spans {
		spStart, spEnd := sp.Offset, sp.Offset+len(sp.Text)
		if !found0 && start >= spStart && start < spEnd {
			x0 = sp.X + sp.W*float64(start-spStart)/float64(len(sp.Text))
			found0 = true
		}
		if !found1 && end > spStart && end <= spEnd {
			x1 = sp.X + sp.W*float64(end-spStart)/float64(len(sp.Text))
			found1 = true
		}
	}
	if !found0 || !found1 || x1 <= x0 {
		return BBox{}, false
	}
	return BBox{X0: x0, Y0: ln.BBox.Y0, X1: x1, Y1: ln.BBox.Y1}, true
}

// mediaBox resolves the page media box, walking up the page tree for
// inherited values.
func mediaBox(v pdflib.Value) (box BBox, ok bool) {
	defer func() { _ = recover() }()
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		if mb := v.Key("MediaBox"); !mb.IsNull() && mb.Len() == 4 {
			return BBox{
				X0: mb.Index(0).Float64(),
				Y0: mb.Index(1).Float64(),
				X1: mb.Index(2).Float64(),
				Y1: mb.Index(3).Float64(),
			}, true
		}
		v = v.Key("Parent")
	}
	return BBox{}, false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
