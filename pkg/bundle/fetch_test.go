package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mbtestgen/mbtestgen/pkg/entity"
	"github.com/mbtestgen/mbtestgen/pkg/observability"
	"github.com/mbtestgen/mbtestgen/pkg/samplefile"
)

type entry struct {
	name string
	body string
	dir  bool
}

func makeBundle(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0644, Typeflag: tar.TypeReg, Size: int64(len(e.body))}
		if e.dir {
			hdr = &tar.Header{Name: e.name, Mode: 0755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.dir {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func serve(t *testing.T, status int, body []byte) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestEnsure_DownloadsAndUnpacks(t *testing.T) {
	data := makeBundle(t, []entry{
		{name: "mbids/", dir: true},
		{name: "mbids/README", body: samplefile.Notice},
		{name: "mbids/Area", body: "a1\na2\n"},
		{name: "mbids/Work", body: "w1\n"},
	})
	srv, hits := serve(t, http.StatusOK, data)

	dir := filepath.Join(t.TempDir(), "mbids")
	var progress bytes.Buffer
	metrics := observability.NewMetrics()
	f := &Fetcher{
		URL:      srv.URL + "/mbids.tar.gz",
		Dir:      dir,
		Client:   srv.Client(),
		Progress: &progress,
		Logger:   zaptest.NewLogger(t),
		Metrics:  metrics,
	}

	require.NoError(t, f.Ensure(context.Background()))
	assert.Equal(t, 1, *hits)
	assert.Equal(t, float64(len(data)), testutil.ToFloat64(metrics.BundleBytes))

	ids, err := samplefile.NewStore(dir).Load(entity.Area)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids)

	ids, err = samplefile.NewStore(dir).Load(entity.Work)
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, ids)

	// second call is a no-op
	require.NoError(t, f.Ensure(context.Background()))
	assert.Equal(t, 1, *hits)
}

func TestEnsure_ExistingDirSkipsDownload(t *testing.T) {
	srv, hits := serve(t, http.StatusOK, nil)
	f := &Fetcher{URL: srv.URL, Dir: t.TempDir(), Client: srv.Client()}

	require.NoError(t, f.Ensure(context.Background()))
	assert.Zero(t, *hits)
}

func TestFetch_HTTPError(t *testing.T) {
	srv, _ := serve(t, http.StatusNotFound, []byte("not found"))
	dir := filepath.Join(t.TempDir(), "mbids")
	f := &Fetcher{URL: srv.URL, Dir: dir, Client: srv.Client()}

	err := f.Ensure(context.Background())
	require.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "404")
	assert.NoDirExists(t, dir)
}

func TestFetch_NotGzip(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, []byte("plain text, not a bundle"))
	f := &Fetcher{URL: srv.URL, Dir: filepath.Join(t.TempDir(), "mbids"), Client: srv.Client()}

	assert.ErrorIs(t, f.Ensure(context.Background()), ErrFetch)
}

func TestFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := &Fetcher{URL: url, Dir: filepath.Join(t.TempDir(), "mbids")}
	assert.ErrorIs(t, f.Ensure(context.Background()), ErrFetch)
}

func TestFetch_RejectsEscapingEntries(t *testing.T) {
	root := t.TempDir()
	data := makeBundle(t, []entry{
		{name: "mbids/Area", body: "a1\n"},
		{name: "../../evil", body: "x"},
	})
	srv, _ := serve(t, http.StatusOK, data)

	f := &Fetcher{URL: srv.URL, Dir: filepath.Join(root, "work", "mbids"), Client: srv.Client()}
	err := f.Ensure(context.Background())
	require.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "escapes")

	_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "evil"))
	assert.True(t, os.IsNotExist(statErr))
	assert.NoDirExists(t, f.Dir, "partial unpack must be removed")
}

func TestFetch_CancelledContext(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, makeBundle(t, nil))
	f := &Fetcher{URL: srv.URL, Dir: filepath.Join(t.TempDir(), "mbids"), Client: srv.Client()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Ensure(ctx), ErrFetch)
}

func TestSafeJoin(t *testing.T) {
	root := filepath.FromSlash("/data/samples")
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"mbids/Area", false},
		{"./mbids/", false},
		{"mbids/../mbids/Work", false},
		{"../outside", true},
		{"mbids/../../outside", true},
	}
	for _, tt := range tests {
		_, err := safeJoin(root, tt.name)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
		} else {
			assert.NoError(t, err, tt.name)
		}
	}
}

func TestFetch_Checksum(t *testing.T) {
	data := makeBundle(t, []entry{{name: "mbids/Area", body: "a1\n"}})
	sum := sha256.Sum256(data)
	srv, _ := serve(t, http.StatusOK, data)

	dir := filepath.Join(t.TempDir(), "mbids")
	bad := &Fetcher{URL: srv.URL, Dir: dir, Client: srv.Client(), SHA256: strings.Repeat("0", 64)}
	err := bad.Ensure(context.Background())
	require.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "checksum")
	assert.NoDirExists(t, dir)

	good := &Fetcher{URL: srv.URL, Dir: dir, Client: srv.Client(), SHA256: strings.ToUpper(hex.EncodeToString(sum[:]))}
	require.NoError(t, good.Ensure(context.Background()))
	assert.FileExists(t, filepath.Join(dir, "Area"))
}
