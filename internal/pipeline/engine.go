// Package pipeline orchestrates the five compilation stages for a batch of
// documents: profile, index, mine, resolve, annotate. Processing is
// single-threaded and batch-sequential; one document's failure is isolated
// and never aborts its siblings.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pagemap/relink/internal/annotator"
	"github.com/pagemap/relink/internal/config"
	"github.com/pagemap/relink/internal/geometry"
	"github.com/pagemap/relink/internal/indexer"
	"github.com/pagemap/relink/internal/miner"
	"github.com/pagemap/relink/internal/pdfio"
	"github.com/pagemap/relink/internal/profiler"
	"github.com/pagemap/relink/internal/refs"
	"github.com/pagemap/relink/internal/registry"
	"github.com/pagemap/relink/internal/resolver"
	"github.com/pagemap/relink/internal/rulebook"
)

// Options are the per-run switches; directory layout and tuning live in the
// environment config.
type Options struct {
	Mode          profiler.Mode
	VocabOverride string
	Debug         bool
	AllowPartial  bool
	Reprofile     bool
}

// Engine drives the compilation of input documents into hyperlinked copies.
type Engine struct {
	cfg    config.Config
	store  *registry.Store
	oracle profiler.Oracle // nil in offline modes
	opts   Options
	log    *slog.Logger
}

// New provisions the directory layout and assembles the engine.
func New(cfg config.Config, store *registry.Store, orc profiler.Oracle, opts Options, log *slog.Logger) (*Engine, error) {
	for _, dir := range []string{cfg.InputDir, cfg.OutputDir, cfg.ConfigDir, cfg.LogsDir, cfg.ReviewDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("provision %s: %w", dir, err)
		}
	}
	return &Engine{cfg: cfg, store: store, oracle: orc, opts: opts, log: log}, nil
}

// RunBatch processes every PDF in the input directory in sorted order and
// returns the success/failure tally. A failed document logs its fault and
// the batch moves on.
func (e *Engine) RunBatch(ctx context.Context) (succeeded, failed int, err error) {
	queue, err := filepath.Glob(filepath.Join(e.cfg.InputDir, "*.pdf"))
	if err != nil {
		return 0, 0, fmt.Errorf("scan input dir: %w", err)
	}
	sort.Strings(queue)
	if len(queue) == 0 {
		e.log.Warn("queue empty, place PDFs in the input directory to begin", "dir", e.cfg.InputDir)
		return 0, 0, nil
	}

	e.log.Info("batch initialized", "documents", len(queue))
	for i, path := range queue {
		e.log.Info("batch progress", "position", i+1, "total", len(queue))
		if err := e.ProcessDocument(ctx, path); err != nil {
			e.log.Error("pipeline fault, no output written", "doc", path, "error", err)
			failed++
			continue
		}
		succeeded++
	}
	e.log.Info("batch complete", "succeeded", succeeded, "failed", failed)
	return succeeded, failed, nil
}

// ProcessDocument compiles one document through all five stages.
func (e *Engine) ProcessDocument(ctx context.Context, pdfPath string) error {
	base := docBase(pdfPath)
	log := e.log.With("doc", base)
	rbPath := rulebookPath(e.cfg.ConfigDir, base)
	outPath := outputPath(e.cfg.OutputDir, base)

	log.Info("compiling document", "path", pdfPath)

	rb, err := e.loadOrInduceRulebook(ctx, pdfPath, rbPath, base, log)
	if err != nil {
		return err
	}
	if e.opts.Debug {
		dumpRulebook(rb, log)
	}

	ast, mined, err := e.extractStages(pdfPath, rb, log)
	if err != nil {
		return err
	}
	if e.opts.Debug {
		dumpAST(ast, log)
	}

	resolved := resolver.New(rb, ast, nil, log).Resolve(mined)

	ann := annotator.New(e.cfg.MinLinkConfidence, e.opts.Debug || e.cfg.DebugRects, log)
	links, err := ann.Annotate(pdfPath, outPath, resolved)
	if err != nil {
		return fmt.Errorf("annotate %s: %w", base, err)
	}

	log.Info("pipeline success", "output", outPath, "links", links)
	return nil
}

// loadOrInduceRulebook serves the cached rulebook when present, unless a
// reprofile was requested, in which case the cache is removed first.
func (e *Engine) loadOrInduceRulebook(ctx context.Context, pdfPath, rbPath, base string, log *slog.Logger) (*rulebook.Rulebook, error) {
	if _, statErr := os.Stat(rbPath); statErr == nil {
		if !e.opts.Reprofile {
			log.Info("rulebook cached, profiling skipped", "path", rbPath)
			return rulebook.Load(rbPath)
		}
		if err := os.Remove(rbPath); err != nil {
			return nil, fmt.Errorf("remove stale rulebook %s: %w", rbPath, err)
		}
		log.Info("cached rulebook removed for reprofile", "path", rbPath)
	}

	doc, err := geometry.Open(pdfPath)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	sampler := func(pages []int) ([]byte, error) {
		return pdfio.ExtractPages(pdfPath, pages)
	}
	prof := profiler.New(profiler.Deps{
		Source:    doc,
		Registry:  e.store,
		Oracle:    e.oracle,
		Sampler:   sampler,
		ManualDir: e.cfg.ReviewDir,
		Log:       log,
	}, profiler.Options{
		DocName:               base,
		Mode:                  e.opts.Mode,
		VocabOverride:         e.opts.VocabOverride,
		ClusterScanLimit:      e.cfg.ClusterScanLimit,
		TopoScanLimit:         e.cfg.TopoScanLimit,
		VectorGiantThreshold:  e.cfg.VectorGiantThreshold,
		VectorLargeThreshold:  e.cfg.VectorLargeThreshold,
		VectorMediumThreshold: e.cfg.VectorMediumThreshold,
		ClusterDistance:       e.cfg.ClusterDistance,
	})

	rb, err := prof.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", base, err)
	}
	if err := rb.Save(rbPath); err != nil {
		return nil, fmt.Errorf("persist rulebook %s: %w", rbPath, err)
	}
	return rb, nil
}

// extractStages runs the geometry-bound stages (index, mine) under one
// document handle that is released before annotation reopens the file.
func (e *Engine) extractStages(pdfPath string, rb *rulebook.Rulebook, log *slog.Logger) ([]refs.TargetNode, []refs.SemanticReference, error) {
	doc, err := geometry.Open(pdfPath)
	if err != nil {
		return nil, nil, err
	}
	defer doc.Close()

	ast, err := indexer.New(doc, rb, log).BuildAST()
	if err != nil {
		return nil, nil, fmt.Errorf("index: %w", err)
	}
	mined, err := miner.New(doc, log).MineDocument()
	if err != nil {
		return nil, nil, fmt.Errorf("mine: %w", err)
	}
	return ast, mined, nil
}

func dumpRulebook(rb *rulebook.Rulebook, log *slog.Logger) {
	log.Debug("profiler artifacts", "segments", len(rb.PageMap), "hierarchy_levels", len(rb.HierarchyLevels), "assets", len(rb.Assets))
	for i, seg := range rb.PageMap {
		log.Debug("page map segment", "index", i, "numbering", seg.Numbering,
			"physical", fmt.Sprintf("%d-%d", seg.PhysicalStart, seg.PhysicalEnd),
			"printed", fmt.Sprintf("%d-%d", seg.PrintedStart, seg.PrintedEnd))
	}
	for i, lvl := range rb.HierarchyLevels {
		log.Debug("hierarchy level", "index", i, "rank", lvl.LevelRank,
			"label", lvl.LabelHypothesis.PreferredLabel,
			"font_min", lvl.VisualSignature.FontSize.Min, "font_max", lvl.VisualSignature.FontSize.Max)
	}
}

func dumpAST(ast []refs.TargetNode, log *slog.Logger) {
	log.Debug("AST nodes extracted", "total", len(ast))
	for i, node := range ast {
		log.Debug("AST node", "index", i+1, "id", node.ID, "type", node.Type, "page", node.Page, "name", node.Name)
	}
}

func docBase(pdfPath string) string {
	name := filepath.Base(pdfPath)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func rulebookPath(configDir, base string) string {
	return filepath.Join(configDir, base+"_rulebook.yaml")
}

func outputPath(outputDir, base string) string {
	return filepath.Join(outputDir, "LINKED_"+base+".pdf")
}
