package profiler

import (
	"math"
	"strings"

	"github.com/pagemap/relink/internal/rulebook"
)

// detectAssets finds sparse caption clusters (figures, maps, tables). A
// cluster qualifies when its marker word recurs, it covers a minority of
// pages, and at least one topology segment sees it at a plausible density.
func (p *Profiler) detectAssets(slots map[int][]observation, clusters map[int]cluster, bodyIdx int, pageMap []rulebook.Segment) []rulebook.AssetSignature {
	var assets []rulebook.AssetSignature

	for _, marker := range assetMarkerTypes {
		var eligible []int
		for _, idx := range sortedKeys(clusters) {
			c := clusters[idx]
			if idx != bodyIdx && c.coverage < 0.4 && c.avgPerPage < maxHeaderAvgPerPage {
				eligible = append(eligible, idx)
			}
		}
		if len(eligible) == 0 {
			continue
		}

		bestIdx := eligible[0]
		bestScore := math.Inf(-1)
		for _, idx := range eligible {
			c := clusters[idx]
			score := float64(c.markers[marker]) / math.Max(c.coverage, 0.01)
			if score > bestScore {
				bestScore = score
				bestIdx = idx
			}
		}

		c := clusters[bestIdx]
		if c.markers[marker] <= 2 {
			continue
		}

		markersByPage := make(map[int]int)
		re := markerRes[marker]
		for _, o := range slots[bestIdx] {
			if re.MatchString(o.text) {
				markersByPage[o.page]++
			}
		}

		// Overly dense segments are caption-like noise (indexes, galleries);
		// the signature is only kept when some segment uses it sparsely.
		validSegment := false
		for _, seg := range pageMap {
			segMarkers := 0
			for page := seg.PhysicalStart; page <= seg.PhysicalEnd; page++ {
				segMarkers += markersByPage[page]
			}
			if segMarkers == 0 {
				continue
			}
			length := seg.PhysicalEnd - seg.PhysicalStart + 1
			if float64(segMarkers)/float64(length) <= maxAssetMarkersPerPage {
				validSegment = true
			}
		}
		if !validSegment {
			continue
		}

		assets = append(assets, rulebook.AssetSignature{
			AssetType: strings.ToLower(marker),
			VisualSignature: rulebook.VisualSignature{
				FontSize: rulebook.FontRange{
					Min: round2(c.center - 0.3),
					Max: round2(c.center + 0.3),
				},
			},
		})
	}
	return assets
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
