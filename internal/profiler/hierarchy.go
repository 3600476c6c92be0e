package profiler

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pagemap/relink/internal/rulebook"
	"github.com/pagemap/relink/internal/urn"
)

// buildHierarchy turns heading-like clusters into ranked hierarchy levels.
// A cluster is heading-like when it sits distinctly above the body size and
// is sparse enough to not be body text itself. Font-size bands are spread
// around each cluster center and clamped at the midpoint toward neighboring
// levels so the bands never overlap.
func buildHierarchy(clusters map[int]cluster, bodySize float64, vocab rulebook.StructuralVocabulary) []rulebook.HierarchyLevel {
	var headers []int
	for _, idx := range sortedKeys(clusters) {
		c := clusters[idx]
		if c.center > bodySize*1.1 && c.avgPerPage <= maxHeaderAvgPerPage {
			headers = append(headers, idx)
		}
	}
	sort.SliceStable(headers, func(i, j int) bool {
		a, b := clusters[headers[i]], clusters[headers[j]]
		if a.center != b.center {
			return a.center > b.center
		}
		return a.boldRatio > b.boldRatio
	})

	primaryLabel := strings.ToLower(strings.TrimSpace(vocab.PrimaryMarker))
	if primaryLabel == "" {
		primaryLabel = urn.SlugFallback
	}

	levels := make([]rulebook.HierarchyLevel, 0, len(headers))
	for i, idx := range headers {
		c := clusters[idx]
		spread := math.Max(0.2, math.Min(c.center*0.03, 0.8))
		minV, maxV := c.center-spread, c.center+spread
		if i > 0 {
			minV = math.Max(minV, (c.center+clusters[headers[i-1]].center)/2)
		}
		if i < len(headers)-1 {
			maxV = math.Min(maxV, (c.center+clusters[headers[i+1]].center)/2)
		}
		if minV >= maxV {
			minV, maxV = c.center-0.1, c.center+0.1
		}

		// TODO: derive lower-rank labels from the oracle's layout template
		// roles instead of the generic subtopic counter.
		label := primaryLabel
		if i > 0 {
			label = fmt.Sprintf("subtopic_%d", i)
		}

		levels = append(levels, rulebook.HierarchyLevel{
			LevelRank: i + 1,
			LabelHypothesis: rulebook.LabelHypothesis{
				PreferredLabel: label,
				Confidence:     vocab.Confidence,
			},
			VisualSignature: rulebook.VisualSignature{
				FontSize: rulebook.FontRange{Min: round2(minV), Max: round2(maxV)},
				IsBold:   c.boldRatio > 0.5,
			},
		})
	}
	return levels
}
