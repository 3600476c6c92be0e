package profiler

import (
	"math"
	"sort"
	"strings"

	"github.com/pagemap/relink/internal/geometry"
)

// adaptiveGrid derives the font-size bucketing granularity from a stratified
// sample of up to ten pages: the median positive gap between distinct sizes,
// clamped to [0.1, 0.25].
func adaptiveGrid(src geometry.Source) float64 {
	total := src.NumPages()
	if total == 0 {
		return 0.1
	}

	seen := make(map[float64]bool)
	n := min(10, total)
	for i := 0; i < n; i++ {
		page := i*(total-1)/9 + 1
		lines, err := src.Lines(page)
		if err != nil {
			continue
		}
		for _, line := range lines {
			for _, s := range line.Spans {
				seen[s.FontSize] = true
			}
		}
	}

	sizes := make([]float64, 0, len(seen))
	for s := range seen {
		sizes = append(sizes, s)
	}
	if len(sizes) < 2 {
		return 0.1
	}
	sort.Float64s(sizes)

	var deltas []float64
	for i := 1; i < len(sizes); i++ {
		if d := sizes[i] - sizes[i-1]; d > 0.05 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		return 0.1
	}
	return math.Max(0.1, math.Min(0.25, median(deltas)))
}

// contentWeight scores how much real content a page carries, used to decide
// which unnumbered gap pages absorb printed numbers versus become spacers.
// Characters dominate, block count adds structure, and fonts near the body
// size count for more than decorative outliers.
func contentWeight(src geometry.Source, page int, bodySize float64) float64 {
	blocks, err := src.Blocks(page)
	if err != nil {
		return 0
	}
	charCount := 0
	var proximities []float64
	for _, b := range blocks {
		for _, line := range b.Lines {
			for _, s := range line.Spans {
				charCount += len(strings.TrimSpace(s.Text))
				if s.FontSize > 0 {
					proximities = append(proximities, 1.0/(1.0+math.Abs(s.FontSize-bodySize)))
				}
			}
		}
	}
	avgProximity := 0.0
	if len(proximities) > 0 {
		sum := 0.0
		for _, p := range proximities {
			sum += p
		}
		avgProximity = sum / float64(len(proximities))
	}
	return float64(charCount)*0.6 + float64(len(blocks))*10 + avgProximity*30
}
