package geometry

// MemSource is an in-memory Source backed by literal lines. It drives the
// stage tests, which exercise the pipeline against synthetic layouts instead
// of PDF fixtures.
type MemSource struct {
	PageLines  [][]Line // index 0 = physical page 1
	PageHeight float64
	Images     map[int]bool
}

func (m *MemSource) NumPages() int { return len(m.PageLines) }

func (m *MemSource) Height(page int) float64 {
	if m.PageHeight == 0 {
		return 792
	}
	return m.PageHeight
}

func (m *MemSource) Lines(page int) ([]Line, error) {
	if page < 1 || page > len(m.PageLines) {
		return nil, nil
	}
	return m.PageLines[page-1], nil
}

func (m *MemSource) Blocks(page int) ([]Block, error) {
	lines, err := m.Lines(page)
	if err != nil {
		return nil, err
	}
	return GroupBlocks(lines), nil
}

func (m *MemSource) HasImage(page int) bool { return m.Images[page] }

func (m *MemSource) Search(page int, needle string, clip BBox) (BBox, bool) {
	lines, err := m.Lines(page)
	if err != nil {
		return BBox{}, false
	}
	return SearchLines(lines, needle, clip)
}

// TextLine builds a single-span line; the convenience constructor used
// throughout the stage tests.
func TextLine(text string, size float64, bold bool, box BBox) Line {
	font := "Times-Roman"
	if bold {
		font = "Times-Bold"
	}
	return Line{
		Text:     text,
		FontSize: size,
		Bold:     bold,
		BBox:     box,
		Spans: []Span{{
			Text:     text,
			Font:     font,
			FontSize: size,
			X:        box.X0,
			W:        box.X1 - box.X0,
			Offset:   0,
		}},
	}
}
