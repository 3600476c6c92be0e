// Package profiler is the grammar and topology inducer. It scans a document's
// text geometry, clusters font sizes on an adaptive grid, selects the body
// cluster, induces the printed-page topology from header/footer number
// observations, detects asset caption signatures, assembles the heading
// hierarchy and resolves the structural vocabulary. The output is a rulebook
// that every later stage consumes read-only.
package profiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pagemap/relink/internal/geometry"
	"github.com/pagemap/relink/internal/oracle"
	"github.com/pagemap/relink/internal/registry"
	"github.com/pagemap/relink/internal/rulebook"
	"github.com/pagemap/relink/internal/urn"
)

// Zone ratios and density caps for structural candidates.
const (
	headerMarginRatio      = 0.15
	footerMarginRatio      = 0.85
	maxHeaderAvgPerPage    = 3.5
	maxAssetMarkersPerPage = 3.0
)

var (
	// ErrNoTextGeometry means the document yielded no extractable text at
	// all; image-only scans land here.
	ErrNoTextGeometry = errors.New("no extractable text detected, document may be an image-only scan")

	// ErrTopologyInduction means no printed-number stream survived the
	// correlation gates, so no page map could be built.
	ErrTopologyInduction = errors.New("topology induction failed: page map is empty")
)

// Caption markers the asset detector recognizes.
var assetMarkerTypes = []string{"Fig", "Map", "Table"}

var (
	romanTokenRe = regexp.MustCompile(`\b[ivxlcdm]{1,10}\b`)
	digitRunRe   = regexp.MustCompile(`[0-9]+`)
)

// Mode controls which vocabulary-resolution paths are allowed.
type Mode string

const (
	ModeFull       Mode = "full"
	ModeNoAPI      Mode = "no-api"
	ModeOffline    Mode = "offline"
	ModeManualOnly Mode = "manual-only"
	ModeOverride   Mode = "override"
)

// Oracle proposes a layout schema for a sampled set of pages.
type Oracle interface {
	ProposeLayoutSchema(ctx context.Context, prompt string, samplePDF []byte) (*oracle.LayoutSchema, error)
}

// Sampler extracts the given physical pages (1-based) into a standalone PDF.
type Sampler func(pages []int) ([]byte, error)

// Options tunes scan limits and clustering thresholds.
type Options struct {
	DocName          string
	Mode             Mode
	VocabOverride    string
	ClusterScanLimit int // 0 means all pages
	TopoScanLimit    int // 0 means all pages

	VectorGiantThreshold  float64 // default 3.0
	VectorLargeThreshold  float64 // default 1.8
	VectorMediumThreshold float64 // default 1.1
	ClusterDistance       float64 // default 0.10
}

func (o *Options) applyDefaults(totalPages int) {
	if o.Mode == "" {
		o.Mode = ModeFull
	}
	if o.ClusterScanLimit <= 0 || o.ClusterScanLimit > totalPages {
		o.ClusterScanLimit = totalPages
	}
	if o.TopoScanLimit <= 0 || o.TopoScanLimit > totalPages {
		o.TopoScanLimit = totalPages
	}
	if o.VectorGiantThreshold == 0 {
		o.VectorGiantThreshold = 3.0
	}
	if o.VectorLargeThreshold == 0 {
		o.VectorLargeThreshold = 1.8
	}
	if o.VectorMediumThreshold == 0 {
		o.VectorMediumThreshold = 1.1
	}
	if o.ClusterDistance == 0 {
		o.ClusterDistance = 0.10
	}
}

// Deps are the collaborators the profiler needs. Oracle and Sampler may be
// nil; the vocabulary chain then skips the API and packet paths.
type Deps struct {
	Source    geometry.Source
	Registry  *registry.Store
	Oracle    Oracle
	Sampler   Sampler
	ManualDir string
	Log       *slog.Logger
}

// Profiler induces a rulebook from one document.
type Profiler struct {
	src        geometry.Source
	store      *registry.Store
	oracle     Oracle
	sampler    Sampler
	manualDir  string
	log        *slog.Logger
	opts       Options
	totalPages int
	grid       float64
}

// New builds a profiler over an open document.
func New(deps Deps, opts Options) *Profiler {
	total := deps.Source.NumPages()
	opts.applyDefaults(total)
	return &Profiler{
		src:        deps.Source,
		store:      deps.Registry,
		oracle:     deps.Oracle,
		sampler:    deps.Sampler,
		manualDir:  deps.ManualDir,
		log:        deps.Log,
		opts:       opts,
		totalPages: total,
		grid:       adaptiveGrid(deps.Source),
	}
}

// observation is one text line bucketed into a font-grid slot.
type observation struct {
	size  float64
	chars int
	area  float64
	bold  bool
	page  int // 1-based physical page
	text  string
	x, y  float64
}

// pageNumberObs is a printed page-number candidate found in a margin band.
type pageNumberObs struct {
	val  int
	page int // 1-based physical page
	x, y float64
	kind urn.Numbering
	band string // "header" or "footer"
}

// cluster is the reduced statistics of one font-grid slot.
type cluster struct {
	center      float64
	coverage    float64
	uniquePages int
	density     float64
	boldRatio   float64
	avgPerPage  float64
	markers     map[string]int
	samples     []string
}

// Run executes the full induction pass and returns the rulebook.
func (p *Profiler) Run(ctx context.Context) (*rulebook.Rulebook, error) {
	slots, topoCandidates, err := p.scan()
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, ErrNoTextGeometry
	}

	clusters := reduceClusters(slots, p.opts.ClusterScanLimit)
	bodyIdx := selectBody(clusters)
	bodySize := clusters[bodyIdx].center
	p.log.Debug("body cluster selected", "grid_idx", bodyIdx, "size", bodySize)

	vocab, err := p.resolveVocabulary(ctx, slots, clusters, bodySize)
	if err != nil {
		return nil, err
	}
	p.log.Info("structural vocabulary resolved",
		"primary_marker", vocab.PrimaryMarker, "source", vocab.Source, "confidence", vocab.Confidence)

	pageMap, err := p.inducePageMap(topoCandidates, bodySize)
	if err != nil {
		return nil, err
	}

	assets := p.detectAssets(slots, clusters, bodyIdx, pageMap)
	hierarchy := buildHierarchy(clusters, bodySize, vocab)

	covered := 0
	for _, seg := range pageMap {
		covered += seg.PhysicalEnd - seg.PhysicalStart + 1
	}
	confidence := math.Round(float64(covered)/float64(p.opts.TopoScanLimit)*100) / 100

	return &rulebook.Rulebook{
		Diagnostics: rulebook.Diagnostics{
			ProfilingStatus:   "success",
			PageMapConfidence: confidence,
		},
		PageMap:              pageMap,
		HierarchyLevels:      hierarchy,
		Assets:               assets,
		StructuralVocabulary: vocab,
	}, nil
}

// scan walks the document once, bucketing every line into its font-grid slot
// and collecting printed-page-number candidates from the margin bands.
func (p *Profiler) scan() (map[int][]observation, map[int][]pageNumberObs, error) {
	slots := make(map[int][]observation)
	topoCandidates := make(map[int][]pageNumberObs)

	for page := 1; page <= p.opts.TopoScanLimit; page++ {
		height := p.src.Height(page)
		headerZone := height * headerMarginRatio
		footerZone := height * footerMarginRatio

		lines, err := p.src.Lines(page)
		if err != nil {
			return nil, nil, fmt.Errorf("scan page %d: %w", page, err)
		}
		for _, line := range lines {
			text := strings.TrimSpace(line.Text)
			if text == "" {
				continue
			}
			inkWidth := 0.0
			for _, s := range line.Spans {
				inkWidth += s.W
			}
			inkArea := inkWidth * (line.BBox.Y1 - line.BBox.Y0)
			yMid := line.BBox.MidY()
			gridIdx := int(line.FontSize / p.grid)

			if page <= p.opts.ClusterScanLimit {
				slots[gridIdx] = append(slots[gridIdx], observation{
					size:  line.FontSize,
					chars: len(text),
					area:  inkArea,
					bold:  line.Bold,
					page:  page,
					text:  text,
					x:     line.BBox.X0,
					y:     yMid,
				})
			}

			if yMid <= headerZone || yMid >= footerZone {
				band := "footer"
				if yMid <= headerZone {
					band = "header"
				}
				p.collectPageNumbers(topoCandidates, page, text, line.BBox.X0, yMid, band)
			}
		}
	}
	return slots, topoCandidates, nil
}

// collectPageNumbers extracts roman and arabic printed-number candidates from
// one margin-band line. Values are capped at twice the physical page count to
// shed years, ISBN fragments and similar noise.
func (p *Profiler) collectPageNumbers(out map[int][]pageNumberObs, page int, text string, x, y float64, band string) {
	lower := strings.ToLower(text)
	limit := p.totalPages * 2

	for _, tok := range romanTokenRe.FindAllString(lower, -1) {
		if !urn.IsValidRoman(tok) {
			continue
		}
		val := urn.RomanToInt(tok)
		if val > 0 && val <= limit {
			out[page] = append(out[page], pageNumberObs{
				val: val, page: page, x: x, y: y, kind: urn.Roman, band: band,
			})
		}
	}

	// Standalone digit runs of up to four digits. Longer runs are ISBNs or
	// years glued to other numbers and never page numbers.
	for _, loc := range digitRunRe.FindAllStringIndex(lower, -1) {
		run := lower[loc[0]:loc[1]]
		if len(run) > 4 {
			continue
		}
		val, err := strconv.Atoi(run)
		if err != nil || val <= 0 || val > limit {
			continue
		}
		out[page] = append(out[page], pageNumberObs{
			val: val, page: page, x: x, y: y, kind: urn.Arabic, band: band,
		})
	}
}

// reduceClusters collapses each grid slot's observations into summary
// statistics.
func reduceClusters(slots map[int][]observation, clusterScanLimit int) map[int]cluster {
	clusters := make(map[int]cluster, len(slots))
	for idx, obs := range slots {
		sizes := make([]float64, len(obs))
		pages := make(map[int]bool)
		chars, bolds := 0, 0
		area := 0.0
		for i, o := range obs {
			sizes[i] = o.size
			pages[o.page] = true
			chars += o.chars
			area += o.area
			if o.bold {
				bolds++
			}
		}

		markers := make(map[string]int, len(assetMarkerTypes))
		for _, m := range assetMarkerTypes {
			re := markerRes[m]
			n := 0
			for _, o := range obs {
				if re.MatchString(o.text) {
					n++
				}
			}
			markers[m] = n
		}

		samples := make([]string, 0, 10)
		for _, o := range obs[:min(10, len(obs))] {
			samples = append(samples, o.text)
		}

		clusters[idx] = cluster{
			center:      median(sizes),
			coverage:    float64(len(pages)) / float64(clusterScanLimit),
			uniquePages: len(pages),
			density:     float64(chars) / math.Max(area, 0.001),
			boldRatio:   float64(bolds) / float64(len(obs)),
			avgPerPage:  float64(len(obs)) / float64(len(pages)),
			markers:     markers,
			samples:     samples,
		}
	}
	return clusters
}

// selectBody picks the grid slot that behaves like running body text: broad
// page coverage, high ink density, low boldness. Ties break toward the
// smaller grid index for determinism.
func selectBody(clusters map[int]cluster) int {
	idxs := sortedKeys(clusters)
	bestIdx := idxs[0]
	bestScore := math.Inf(-1)
	for _, idx := range idxs {
		c := clusters[idx]
		score := (c.coverage * c.density) / (1 + c.boldRatio)
		if score > bestScore {
			bestScore = score
			bestIdx = idx
		}
	}
	return bestIdx
}

var markerRes = func() map[string]*regexp.Regexp {
	res := make(map[string]*regexp.Regexp, len(assetMarkerTypes))
	for _, m := range assetMarkerTypes {
		res[m] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(m) + `\b`)
	}
	return res
}()

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func median(vals []float64) float64 {
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

