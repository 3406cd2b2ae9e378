// Package generator renders a test source file exercising the MusicBrainz
// client against randomly chosen MBIDs from the sample files.
package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mbtestgen/mbtestgen/pkg/entity"
	"github.com/mbtestgen/mbtestgen/pkg/observability"
	"github.com/mbtestgen/mbtestgen/pkg/render"
	"github.com/mbtestgen/mbtestgen/pkg/samplefile"
	"github.com/mbtestgen/mbtestgen/pkg/sampling"
)

// ErrInvalidRequest is returned for requests rejected before any I/O
var ErrInvalidRequest = errors.New("invalid request")

// DefaultCount is the default number of test cases per kind
const DefaultCount = 25

// DefaultOutput is the default generated file name
const DefaultOutput = "tests.rs"

// DefaultKinds returns the kinds generated when none are requested
func DefaultKinds() []entity.Kind {
	// Release is left out by default: its lookups are by far the slowest
	// against the live service.
	return []entity.Kind{
		entity.Area, entity.Artist, entity.Event, entity.Label, entity.Place,
		entity.Recording, entity.ReleaseGroup, entity.Series, entity.Track,
		entity.URL, entity.Work,
	}
}

// Fetcher makes sure the sample directory is populated
type Fetcher interface {
	Ensure(ctx context.Context) error
}

// Request describes one generation run
type Request struct {
	Kinds []entity.Kind
	Count int
}

// Validate checks the request without touching the filesystem
func (r Request) Validate() error {
	if len(r.Kinds) == 0 {
		return fmt.Errorf("%w: no entity kinds requested", ErrInvalidRequest)
	}
	seen := make(map[entity.Kind]bool, len(r.Kinds))
	for _, k := range r.Kinds {
		if !k.Valid() {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, entity.ErrUnknownKind)
		}
		if seen[k] {
			return fmt.Errorf("%w: %s requested more than once", ErrInvalidRequest, k)
		}
		seen[k] = true
	}
	if r.Count <= 0 {
		return fmt.Errorf("%w: case count must be positive, got %d", ErrInvalidRequest, r.Count)
	}
	return nil
}

// KindReport is the outcome for one kind
type KindReport struct {
	Kind      entity.Kind `json:"entity" yaml:"entity"`
	Available int         `json:"available" yaml:"available"`
	Selected  int         `json:"selected" yaml:"selected"`
}

// Report summarizes a generation run
type Report struct {
	Output string       `json:"output" yaml:"output"`
	Cases  int          `json:"cases" yaml:"cases"`
	Kinds  []KindReport `json:"kinds" yaml:"kinds"`
}

// Config configures a Generator
type Config struct {
	Store    *samplefile.Store
	Fetcher  Fetcher          // optional
	Template *render.Template // defaults to render.Default()
	Rand     *rand.Rand
	Logger   *zap.Logger
	Metrics  *observability.Metrics // optional
}

// Generator produces generated test sources from sample files
type Generator struct {
	store    *samplefile.Store
	fetcher  Fetcher
	template *render.Template
	rand     *rand.Rand
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// New creates a Generator
func New(cfg Config) (*Generator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("sample store is required")
	}
	if cfg.Rand == nil {
		return nil, fmt.Errorf("random source is required")
	}
	tmpl := cfg.Template
	if tmpl == nil {
		tmpl = render.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		store:    cfg.Store,
		fetcher:  cfg.Fetcher,
		template: tmpl,
		rand:     cfg.Rand,
		logger:   logger,
		metrics:  cfg.Metrics,
	}, nil
}

// Generate selects req.Count identifiers per kind and writes the rendered
// source to output. The file is replaced in one step: on any error the
// previous content at output, if any, is left untouched.
func (g *Generator) Generate(ctx context.Context, req Request, output string) (*Report, error) {
	ctx, span := observability.StartSpan(ctx, "generator.generate",
		attribute.StringSlice("entities", entity.Names(req.Kinds)),
		attribute.Int("count", req.Count),
	)
	report, err := g.generate(ctx, req, output)
	observability.EndSpan(span, err)
	return report, err
}

func (g *Generator) generate(ctx context.Context, req Request, output string) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := observability.ContextLogger(ctx, g.logger)
	logger.Info("Generating tests",
		zap.Int("num", req.Count),
		zap.Strings("entities", entity.Names(req.Kinds)),
	)
	start := time.Now()

	if !g.store.Exists() && g.fetcher != nil {
		if err := g.fetcher.Ensure(ctx); err != nil {
			return nil, err
		}
	}

	report := &Report{Output: output}
	var cases []render.Case
	for _, kind := range req.Kinds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ids, err := g.store.Load(kind)
		if err != nil {
			return nil, err
		}

		chosen, err := sampling.Choose(g.rand, ids, req.Count)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}

		for _, id := range chosen {
			cases = append(cases, render.NewCase(kind, id))
		}
		report.Kinds = append(report.Kinds, KindReport{
			Kind:      kind,
			Available: len(ids),
			Selected:  len(chosen),
		})
		if g.metrics != nil {
			g.metrics.CasesRendered.WithLabelValues(kind.String()).Add(float64(len(chosen)))
		}

		logger.Debug("Selected test cases",
			zap.String("entity", kind.String()),
			zap.Int("available", len(ids)),
			zap.Int("selected", len(chosen)),
		)
	}
	report.Cases = len(cases)

	var buf bytes.Buffer
	if err := g.template.Render(&buf, cases); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(output, buf.Bytes()); err != nil {
		return nil, err
	}

	if g.metrics != nil {
		g.metrics.PhaseDurationSeconds.WithLabelValues("generate").Observe(time.Since(start).Seconds())
	}
	logger.Info("Wrote generated tests",
		zap.String("output", output),
		zap.Int("cases", report.Cases),
		zap.Duration("took", time.Since(start)),
	)
	return report, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it over path
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
