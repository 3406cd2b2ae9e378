// Package testutil holds fixtures shared by package and command tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/mbtestgen/mbtestgen/pkg/entity"
	"github.com/mbtestgen/mbtestgen/pkg/samplefile"
)

// NewTestLogger creates a logger suitable for testing that outputs to the test log
func NewTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// IsolateHome points HOME at an empty directory so user config files
// under ~/.mbtestgen are never read
func IsolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

// Member is one file inside a fixture tarball
type Member struct {
	Name string
	Body string
}

// TarBytes builds an uncompressed tarball from members
func TarBytes(t *testing.T, members []Member) []byte {
	t.Helper()
	var buf bytes.Buffer
	writeTar(t, &buf, members)
	return buf.Bytes()
}

// TarGzBytes builds a gzipped tarball from members
func TarGzBytes(t *testing.T, members []Member) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	writeTar(t, gz, members)
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	return buf.Bytes()
}

func writeTar(t *testing.T, w io.Writer, members []Member) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, m := range members {
		hdr := &tar.Header{Name: m.Name, Mode: 0644, Typeflag: tar.TypeReg, Size: int64(len(m.Body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("failed to write tar header %s: %v", m.Name, err)
		}
		if _, err := io.WriteString(tw, m.Body); err != nil {
			t.Fatalf("failed to write tar member %s: %v", m.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
}

// DumpMembers returns one mbdump table per kind holding n rows whose MBIDs
// are "<Kind>-<row>"
func DumpMembers(n int, kinds ...entity.Kind) []Member {
	if len(kinds) == 0 {
		kinds = entity.All()
	}
	members := make([]Member, 0, len(kinds))
	for _, k := range kinds {
		var body bytes.Buffer
		for i := 0; i < n; i++ {
			fmt.Fprintf(&body, "%d\t%s-%d\tname\n", i+1, k, i)
		}
		members = append(members, Member{Name: k.Member(), Body: body.String()})
	}
	return members
}

// WriteDumpArchive writes a plain tar dump with n rows per kind and returns its path
func WriteDumpArchive(t *testing.T, n int, kinds ...entity.Kind) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mbdump.tar")
	if err := os.WriteFile(path, TarBytes(t, DumpMembers(n, kinds...)), 0644); err != nil {
		t.Fatalf("failed to write dump archive: %v", err)
	}
	return path
}

// WriteSamples creates a sample directory holding the given identifiers
func WriteSamples(t *testing.T, dir string, samples map[entity.Kind][]string) *samplefile.Store {
	t.Helper()
	store := samplefile.NewStore(dir)
	for k, ids := range samples {
		if err := store.Write(k, ids); err != nil {
			t.Fatalf("failed to write %s samples: %v", k, err)
		}
	}
	return store
}
