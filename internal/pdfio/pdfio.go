// Package pdfio wraps the pdfcpu operations the pipeline needs: page
// geometry for annotation bounds, page extraction for review packets and
// oracle samples, and the final annotated write. Text extraction lives in
// geometry; this package never parses content streams.
package pdfio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// conf is the shared pdfcpu configuration. Relaxed validation keeps the
// scanned-book corpus processable; strict mode rejects too many real files.
func conf() *model.Configuration {
	c := model.NewDefaultConfiguration()
	c.ValidationMode = model.ValidationRelaxed
	return c
}

// PageCount returns the physical page count of the PDF at path.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("page count %s: %w", path, err)
	}
	return n, nil
}

// PageDims returns the media-box dimensions of every page in order.
func PageDims(path string) ([]types.Dim, error) {
	dims, err := api.PageDimsFile(path)
	if err != nil {
		return nil, fmt.Errorf("page dims %s: %w", path, err)
	}
	return dims, nil
}

// ExtractPages renders the selected 1-indexed pages into a standalone PDF
// and returns its bytes. Duplicates are collapsed and order normalized.
func ExtractPages(path string, pages []int) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("extract pages %s: empty page selection", path)
	}
	sel := pageSelection(pages)

	tmp, err := os.CreateTemp("", "pagemap-extract-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("extract pages %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := api.TrimFile(path, tmpPath, sel, conf()); err != nil {
		return nil, fmt.Errorf("extract pages %s: %w", path, err)
	}
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("extract pages %s: %w", path, err)
	}
	return data, nil
}

// ExtractPagesToFile is ExtractPages with a destination on disk, used for
// manual review packets.
func ExtractPagesToFile(path string, pages []int, outPath string) error {
	data, err := ExtractPages(path, pages)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return nil
}

// WriteAnnotated applies the page-keyed annotations to inPath and writes the
// result to outPath atomically: the annotated copy is built and optimized in
// a temp file first, then renamed into place.
func WriteAnnotated(inPath, outPath string, annots map[int][]model.AnnotationRenderer) error {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("annotate %s: %w", inPath, err)
	}
	tmp, err := os.CreateTemp(dir, ".pagemap-annotate-*.pdf")
	if err != nil {
		return fmt.Errorf("annotate %s: %w", inPath, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	// A document with zero surviving links still produces an output file.
	if len(annots) == 0 {
		if err := api.OptimizeFile(inPath, tmpPath, conf()); err != nil {
			return fmt.Errorf("optimize %s: %w", inPath, err)
		}
	} else {
		if err := api.AddAnnotationsMapFile(inPath, tmpPath, annots, conf(), false); err != nil {
			return fmt.Errorf("annotate %s: %w", inPath, err)
		}
		if err := api.OptimizeFile(tmpPath, tmpPath, conf()); err != nil {
			return fmt.Errorf("optimize %s: %w", inPath, err)
		}
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("annotate %s: %w", inPath, err)
	}
	return nil
}

// pageSelection formats a sorted, deduplicated pdfcpu page selection.
func pageSelection(pages []int) []string {
	uniq := make([]int, 0, len(pages))
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		if p > 0 && !seen[p] {
			seen[p] = true
			uniq = append(uniq, p)
		}
	}
	sort.Ints(uniq)
	sel := make([]string, len(uniq))
	for i, p := range uniq {
		sel[i] = strconv.Itoa(p)
	}
	return sel
}
