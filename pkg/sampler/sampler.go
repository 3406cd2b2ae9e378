// Package sampler extracts random MBID samples from a MusicBrainz database
// dump. The dump is a tar archive with one tab-separated table per entity
// kind; the MBID is the second column of every row.
package sampler

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mbtestgen/mbtestgen/pkg/entity"
	"github.com/mbtestgen/mbtestgen/pkg/observability"
	"github.com/mbtestgen/mbtestgen/pkg/samplefile"
	"github.com/mbtestgen/mbtestgen/pkg/sampling"
)

var (
	// ErrArchive is returned when the dump cannot be opened or read
	ErrArchive = errors.New("archive error")

	// ErrMemberMissing is returned for each requested kind whose table is absent
	ErrMemberMissing = errors.New("archive member missing")
)

// DefaultLimit is the per-kind sample cap
const DefaultLimit = 100000

// maxRowSize bounds a single dump row
const maxRowSize = 16 << 20

// Config configures a Sampler
type Config struct {
	Store   *samplefile.Store
	Limit   int
	Kinds   []entity.Kind // defaults to entity.All()
	Rand    *rand.Rand
	Logger  *zap.Logger
	Metrics *observability.Metrics // optional
}

// Sampler draws per-kind MBID samples from a dump archive
type Sampler struct {
	store   *samplefile.Store
	limit   int
	kinds   []entity.Kind
	rand    *rand.Rand
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Result describes the sample written for one kind
type Result struct {
	Kind    entity.Kind `json:"entity" yaml:"entity"`
	Member  string      `json:"member" yaml:"member"`
	Records int64       `json:"records" yaml:"records"`
	Skipped int64       `json:"skipped" yaml:"skipped"`
	Sampled int         `json:"sampled" yaml:"sampled"`
	Path    string      `json:"path" yaml:"path"`
}

// New creates a Sampler
func New(cfg Config) (*Sampler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("sample store is required")
	}
	if cfg.Rand == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", cfg.Limit)
	}
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = entity.All()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sampler{
		store:   cfg.Store,
		limit:   cfg.Limit,
		kinds:   kinds,
		rand:    cfg.Rand,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// Extract walks the archive once and writes one sample file per requested
// kind as soon as its table has been read. Kinds written before a failure
// stay on disk. Tables missing from the archive are reported together, one
// ErrMemberMissing per kind, alongside the results for the kinds found.
func (s *Sampler) Extract(ctx context.Context, archivePath string) ([]Result, error) {
	ctx, span := observability.StartSpan(ctx, "sampler.extract", attribute.String("archive", archivePath))
	results, err := s.extract(ctx, archivePath)
	observability.EndSpan(span, err)
	return results, err
}

func (s *Sampler) extract(ctx context.Context, archivePath string) ([]Result, error) {
	logger := observability.ContextLogger(ctx, s.logger)

	a, err := openArchive(archivePath)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	logger.Info("Opened dump archive",
		zap.String("path", archivePath),
		zap.String("compression", string(a.compression)),
	)

	if err := s.store.WriteNotice(); err != nil {
		return nil, err
	}

	wanted := make(map[entity.Kind]bool, len(s.kinds))
	for _, k := range s.kinds {
		wanted[k] = true
	}

	var (
		results []Result
		errs    error
	)
	for len(wanted) > 0 {
		if err := ctx.Err(); err != nil {
			return results, multierr.Append(errs, err)
		}

		hdr, err := a.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return results, multierr.Append(errs, fmt.Errorf("%w: %s: %v", ErrArchive, archivePath, err))
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		kind, ok := entity.ForMember(hdr.Name)
		if !ok || !wanted[kind] {
			continue
		}
		delete(wanted, kind)

		result, err := s.sampleKind(ctx, kind, hdr, a)
		if err != nil {
			if errors.Is(err, ErrArchive) || ctx.Err() != nil {
				return results, multierr.Append(errs, err)
			}
			// Write failures only affect this kind.
			errs = multierr.Append(errs, err)
			continue
		}
		results = append(results, result)
	}

	for _, k := range s.kinds {
		if wanted[k] {
			logger.Warn("Entity table not found in archive",
				zap.String("entity", k.String()),
				zap.String("member", k.Member()),
			)
			errs = multierr.Append(errs, fmt.Errorf("%w: %s (%s)", ErrMemberMissing, k, k.Member()))
		}
	}

	return results, errs
}

func (s *Sampler) sampleKind(ctx context.Context, kind entity.Kind, hdr *tar.Header, r io.Reader) (result Result, err error) {
	ctx = observability.WithEntity(ctx, kind.String())
	ctx, span := observability.StartSpan(ctx, "sampler.kind", attribute.String("entity", kind.String()))
	defer func() { observability.EndSpan(span, err) }()

	logger := observability.ContextLogger(ctx, s.logger)
	logger.Info("Extracting entity",
		zap.String("member", hdr.Name),
		zap.String("size", humanize.Bytes(uint64(hdr.Size))),
	)
	start := time.Now()

	res := sampling.NewReservoir[string](s.rand, s.limit)
	records, skipped, err := scanIDs(ctx, r, func(id []byte) {
		if slot, keep := res.Next(); keep {
			res.Put(slot, string(id))
		}
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading %s: %v", ErrArchive, hdr.Name, err)
	}

	if err := s.store.Write(kind, res.Items()); err != nil {
		return Result{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordsScanned.WithLabelValues(kind.String()).Add(float64(records))
		s.metrics.RecordsSkipped.WithLabelValues(kind.String()).Add(float64(skipped))
		s.metrics.IDsSampled.WithLabelValues(kind.String()).Add(float64(res.Len()))
	}

	logger.Info("Wrote sample file",
		zap.Int64("records", records),
		zap.Int64("skipped", skipped),
		zap.Int("sampled", res.Len()),
		zap.Duration("took", time.Since(start)),
	)

	return Result{
		Kind:    kind,
		Member:  hdr.Name,
		Records: records,
		Skipped: skipped,
		Sampled: res.Len(),
		Path:    s.store.Path(kind),
	}, nil
}

// scanIDs calls fn with the second tab-separated field of every row. The
// slice passed to fn is only valid for the duration of the call. Rows
// without a non-empty second field are counted as skipped.
func scanIDs(ctx context.Context, r io.Reader, fn func(id []byte)) (records, skipped int64, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRowSize)

	for scanner.Scan() {
		records++
		if records%(1<<16) == 0 {
			if err := ctx.Err(); err != nil {
				return records, skipped, err
			}
		}

		id, ok := idField(scanner.Bytes())
		if !ok {
			skipped++
			continue
		}
		fn(id)
	}
	return records, skipped, scanner.Err()
}

// idField returns the second tab-separated field of row
func idField(row []byte) ([]byte, bool) {
	i := bytes.IndexByte(row, '\t')
	if i < 0 {
		return nil, false
	}
	field := row[i+1:]
	if j := bytes.IndexByte(field, '\t'); j >= 0 {
		field = field[:j]
	}
	field = bytes.TrimRight(field, "\r")
	if len(field) == 0 {
		return nil, false
	}
	return field, true
}
