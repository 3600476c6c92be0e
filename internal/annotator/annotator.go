// Package annotator is the terminal pipeline stage: it injects go-to link
// annotations for every resolved reference and writes the hyperlinked copy.
// The write is transactional: a single out-of-bounds link aborts the whole
// pass and no output file appears.
package annotator

import (
	"fmt"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/pagemap/relink/internal/pdfio"
	"github.com/pagemap/relink/internal/refs"
)

// debugBorderWidth is the visible outline drawn around every link rectangle
// when debug rendering is on.
const debugBorderWidth = 1.5

// BoundsError reports a link whose source or target page falls outside the
// document. It aborts the annotation pass before anything is written.
type BoundsError struct {
	Anchor string
	Page   int
	Total  int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("link %q: page %d out of document bounds 1..%d", e.Anchor, e.Page, e.Total)
}

// pageDimsFunc and writeFunc are swappable for tests; production uses pdfio.
type (
	pageDimsFunc func(path string) ([]types.Dim, error)
	writeFunc    func(inPath, outPath string, annots map[int][]model.AnnotationRenderer) error
)

// Annotator writes resolved links into a PDF copy.
type Annotator struct {
	minConfidence float64
	debugRects    bool
	log           *slog.Logger

	pageDims pageDimsFunc
	write    writeFunc
}

// New builds an annotator that drops links scoring below minConfidence.
func New(minConfidence float64, debugRects bool, log *slog.Logger) *Annotator {
	return &Annotator{
		minConfidence: minConfidence,
		debugRects:    debugRects,
		log:           log,
		pageDims:      pdfio.PageDims,
		write:         pdfio.WriteAnnotated,
	}
}

// Annotate injects one go-to link per resolved reference and writes the
// result to outPath. It returns the number of links applied. Every link is
// bounds-checked before any output exists; the first violation returns a
// BoundsError and leaves no file behind.
func (a *Annotator) Annotate(inPath, outPath string, links []refs.Resolved) (int, error) {
	dims, err := a.pageDims(inPath)
	if err != nil {
		return 0, err
	}
	total := len(dims)

	annots := make(map[int][]model.AnnotationRenderer)
	applied := 0
	for i, link := range links {
		if link.Score < a.minConfidence {
			a.log.Warn("link dropped below confidence threshold",
				"anchor", link.Ref.Anchor, "score", link.Score, "threshold", a.minConfidence)
			continue
		}
		if link.Ref.SourcePage < 1 || link.Ref.SourcePage > total {
			return 0, &BoundsError{Anchor: link.Ref.Anchor, Page: link.Ref.SourcePage, Total: total}
		}
		if link.Target.Page < 1 || link.Target.Page > total {
			return 0, &BoundsError{Anchor: link.Target.ID, Page: link.Target.Page, Total: total}
		}

		src := link.Ref.SourcePage
		ann := a.buildLink(link, dims[src-1].Height, i)
		annots[src] = append(annots[src], ann)
		applied++
	}

	if err := a.write(inPath, outPath, annots); err != nil {
		return 0, err
	}
	a.log.Info("binary annotation complete", "links", applied, "output", outPath)
	return applied, nil
}

// buildLink converts the mined rectangle from top-origin text coordinates to
// PDF user space and wraps it in a go-to annotation that preserves the
// reader's zoom.
func (a *Annotator) buildLink(link refs.Resolved, pageHeight float64, seq int) model.AnnotationRenderer {
	box := link.Ref.BBox
	rect := types.NewRectangle(box.X0, pageHeight-box.Y1, box.X1, pageHeight-box.Y0)

	dest := &model.Destination{
		Typ:    model.DestXYZ,
		PageNr: link.Target.Page,
		Left:   -1,
		Top:    -1,
		Zoom:   0,
	}

	var borderCol *color.SimpleColor
	border := false
	width := 0.0
	if a.debugRects {
		borderCol = &color.SimpleColor{R: 1}
		border = true
		width = debugBorderWidth
	}

	ann := model.NewLinkAnnotation(
		*rect,
		0,
		link.Target.Name,
		fmt.Sprintf("%s-%d", link.Ref.Anchor, seq),
		"",
		0,
		borderCol,
		dest,
		"",
		nil,
		border,
		width,
		model.BSSolid,
	)
	return ann
}
