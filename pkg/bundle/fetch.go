// Package bundle downloads and unpacks the prebuilt sample bundle.
package bundle

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mbtestgen/mbtestgen/pkg/observability"
)

// DefaultURL is the published bundle of sample files
const DefaultURL = "https://leoschwarz.com/git-assets/musicbrainz_rust/mbids.tar.gz"

// ErrFetch wraps every download or unpack failure
var ErrFetch = errors.New("bundle fetch failed")

// Fetcher populates a sample directory from a gzipped tarball
type Fetcher struct {
	URL string
	// Dir is the sample directory; the bundle is unpacked into its parent
	// and is expected to contain a top-level entry with the same name.
	Dir string
	// SHA256 is the expected hex digest of the download; empty skips the check.
	SHA256   string
	Client   *http.Client
	Progress io.Writer // optional
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// Ensure downloads and unpacks the bundle unless Dir already exists
func (f *Fetcher) Ensure(ctx context.Context) error {
	if _, err := os.Stat(f.Dir); err == nil {
		return nil
	}
	return f.Fetch(ctx)
}

// Fetch unconditionally downloads and unpacks the bundle
func (f *Fetcher) Fetch(ctx context.Context) (err error) {
	ctx, span := observability.StartSpan(ctx, "bundle.fetch", attribute.String("url", f.URL))
	defer func() { observability.EndSpan(span, err) }()

	logger := observability.ContextLogger(ctx, f.logger())
	logger.Info("Fetching sample bundle", zap.String("url", f.URL), zap.String("dir", f.Dir))
	start := time.Now()

	tmp, err := os.CreateTemp("", "mbids-*.tar.gz")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	n, err := f.download(ctx, io.MultiWriter(tmp, hasher))
	if err != nil {
		return err
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))
	logger.Info("Downloaded sample bundle",
		zap.String("size", humanize.Bytes(uint64(n))),
		zap.String("sha256", checksum),
	)
	if f.SHA256 != "" && !strings.EqualFold(f.SHA256, checksum) {
		return fmt.Errorf("%w: checksum verification failed: got %s, want %s", ErrFetch, checksum, f.SHA256)
	}
	if f.Metrics != nil {
		f.Metrics.BundleBytes.Add(float64(n))
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	_, statErr := os.Stat(f.Dir)
	existed := statErr == nil

	dest := filepath.Dir(filepath.Clean(f.Dir))
	files, err := unpack(tmp, dest)
	if err != nil {
		// a half-unpacked directory would pass the next Ensure
		if !existed {
			os.RemoveAll(f.Dir)
		}
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if f.Metrics != nil {
		f.Metrics.PhaseDurationSeconds.WithLabelValues("fetch").Observe(time.Since(start).Seconds())
	}
	logger.Info("Unpacked sample bundle",
		zap.String("dest", dest),
		zap.Int("files", files),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func (f *Fetcher) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func (f *Fetcher) download(ctx context.Context, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: GET %s: %s", ErrFetch, f.URL, resp.Status)
	}

	dst := w
	if f.Progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(f.Progress),
			progressbar.OptionSetDescription("mbids.tar.gz"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(f.Progress) }),
		)
		defer bar.Finish()
		dst = io.MultiWriter(w, bar)
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("%w: download interrupted after %s: %w", ErrFetch, humanize.Bytes(uint64(n)), err)
	}
	return n, nil
}

// unpack extracts a gzipped tarball below dest and returns the number of
// regular files written
func unpack(r io.Reader, dest string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("not a gzip stream: %w", err)
	}
	defer gz.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	files := 0
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("failed to read bundle: %w", err)
		}

		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return files, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr); err != nil {
				return files, err
			}
			files++
		default:
			// links and devices are never part of the bundle
		}
	}
}

// safeJoin resolves name below root and rejects entries that would escape it
func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("bundle entry %q escapes destination", name)
	}
	return target, nil
}

func writeEntry(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return out.Close()
}
