package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mbtestgen/mbtestgen/pkg/entity"
	"github.com/mbtestgen/mbtestgen/pkg/observability"
	"github.com/mbtestgen/mbtestgen/pkg/render"
	"github.com/mbtestgen/mbtestgen/pkg/samplefile"
	"github.com/mbtestgen/mbtestgen/pkg/sampling"
)

var mbidPattern = regexp.MustCompile(`Mbid::from_str\("([^"]*)"\)`)

type fakeFetcher struct {
	calls int
	err   error
	fill  func() error
}

func (f *fakeFetcher) Ensure(ctx context.Context) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.fill != nil {
		return f.fill()
	}
	return nil
}

func newStore(t *testing.T, samples map[entity.Kind][]string) *samplefile.Store {
	t.Helper()
	store := samplefile.NewStore(filepath.Join(t.TempDir(), "mbids"))
	for k, ids := range samples {
		require.NoError(t, store.Write(k, ids))
	}
	return store
}

func newGenerator(t *testing.T, store *samplefile.Store, seed uint64, fetcher Fetcher) *Generator {
	t.Helper()
	g, err := New(Config{
		Store:   store,
		Fetcher: fetcher,
		Rand:    sampling.NewRand(seed),
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return g
}

func renderedIDs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var ids []string
	for _, m := range mbidPattern.FindAllStringSubmatch(string(data), -1) {
		ids = append(ids, m[1])
	}
	return ids
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{name: "valid", req: Request{Kinds: []entity.Kind{entity.Area}, Count: 1}},
		{name: "no kinds", req: Request{Count: 1}, wantErr: true},
		{name: "zero count", req: Request{Kinds: []entity.Kind{entity.Area}, Count: 0}, wantErr: true},
		{name: "negative count", req: Request{Kinds: []entity.Kind{entity.Area}, Count: -3}, wantErr: true},
		{name: "invalid kind", req: Request{Kinds: []entity.Kind{entity.Kind(99)}, Count: 1}, wantErr: true},
		{name: "repeated kind", req: Request{Kinds: []entity.Kind{entity.Area, entity.Work, entity.Area}, Count: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGenerate_RepeatedKindRejected(t *testing.T) {
	store := newStore(t, map[entity.Kind][]string{entity.Area: {"a1", "a2", "a3"}})
	out := filepath.Join(t.TempDir(), "tests.rs")

	_, err := newGenerator(t, store, 1, nil).Generate(context.Background(),
		Request{Kinds: []entity.Kind{entity.Area, entity.Area}, Count: 3}, out)
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.NoFileExists(t, out)
}

func TestGenerate_AreaScenario(t *testing.T) {
	all := []string{"a1", "a2", "a3", "a4", "a5"}
	store := newStore(t, map[entity.Kind][]string{entity.Area: all})
	out := filepath.Join(t.TempDir(), "tests.rs")

	report, err := newGenerator(t, store, 7, nil).Generate(context.Background(),
		Request{Kinds: []entity.Kind{entity.Area}, Count: 3}, out)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Cases)
	assert.Equal(t, []KindReport{{Kind: entity.Area, Available: 5, Selected: 3}}, report.Kinds)

	ids := renderedIDs(t, out)
	require.Len(t, ids, 3)
	seen := map[string]bool{}
	for _, id := range ids {
		assert.Contains(t, all, id)
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "get_by_mbid::<Area>"))
}

func TestGenerate_Reproducible(t *testing.T) {
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = fmt.Sprintf("%08x-0000-4000-8000-%012d", i, i)
	}
	store := newStore(t, map[entity.Kind][]string{
		entity.Artist:    ids,
		entity.Recording: ids,
	})
	req := Request{Kinds: []entity.Kind{entity.Artist, entity.Recording}, Count: 10}

	dir := t.TempDir()
	a := filepath.Join(dir, "a.rs")
	b := filepath.Join(dir, "b.rs")
	_, err := newGenerator(t, store, 1234, nil).Generate(context.Background(), req, a)
	require.NoError(t, err)
	_, err = newGenerator(t, store, 1234, nil).Generate(context.Background(), req, b)
	require.NoError(t, err)

	da, err := os.ReadFile(a)
	require.NoError(t, err)
	db, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestGenerate_KindOrderAndLayout(t *testing.T) {
	store := newStore(t, map[entity.Kind][]string{
		entity.Work:  {"w1", "w2"},
		entity.Label: {"l1", "l2"},
	})
	tmpl, err := render.Parse(render.Source{
		Preamble: "<",
		Body:     "{{.Entity}}:{{.MBID}};",
		Trailer:  ">",
	})
	require.NoError(t, err)
	g, err := New(Config{Store: store, Template: tmpl, Rand: sampling.NewRand(3)})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.txt")
	_, err = g.Generate(context.Background(), Request{Kinds: []entity.Kind{entity.Work, entity.Label}, Count: 2}, out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Regexp(t, `^<Work:w\d;Work:w\d;Label:l\d;Label:l\d;>$`, string(data))
}

func TestGenerate_TooManyCases(t *testing.T) {
	store := newStore(t, map[entity.Kind][]string{
		entity.Area:   {"a1", "a2", "a3"},
		entity.Artist: {"b1", "b2"},
	})
	out := filepath.Join(t.TempDir(), "tests.rs")

	_, err := newGenerator(t, store, 1, nil).Generate(context.Background(),
		Request{Kinds: []entity.Kind{entity.Area, entity.Artist}, Count: 3}, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, sampling.ErrSampleTooLarge)
	assert.Contains(t, err.Error(), "Artist")

	_, statErr := os.Stat(out)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no output file should be written")
}

func TestGenerate_FailureKeepsPreviousOutput(t *testing.T) {
	store := newStore(t, map[entity.Kind][]string{entity.Artist: {"b1", "b2"}})
	out := filepath.Join(t.TempDir(), "tests.rs")
	require.NoError(t, os.WriteFile(out, []byte("previous"), 0644))

	_, err := newGenerator(t, store, 1, nil).Generate(context.Background(),
		Request{Kinds: []entity.Kind{entity.Artist}, Count: 5}, out)
	require.ErrorIs(t, err, sampling.ErrSampleTooLarge)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestGenerate_ReplacesOutput(t *testing.T) {
	store := newStore(t, map[entity.Kind][]string{entity.Event: {"e1"}})
	out := filepath.Join(t.TempDir(), "tests.rs")
	require.NoError(t, os.WriteFile(out, []byte(strings.Repeat("old content\n", 1000)), 0644))

	_, err := newGenerator(t, store, 1, nil).Generate(context.Background(),
		Request{Kinds: []entity.Kind{entity.Event}, Count: 1}, out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "old content")
	assert.Equal(t, []string{"e1"}, renderedIDs(t, out))
}

func TestGenerate_MissingSampleFile(t *testing.T) {
	store := newStore(t, map[entity.Kind][]string{entity.Area: {"a1"}})
	out := filepath.Join(t.TempDir(), "tests.rs")

	_, err := newGenerator(t, store, 1, nil).Generate(context.Background(),
		Request{Kinds: []entity.Kind{entity.Area, entity.Series}, Count: 1}, out)
	require.ErrorIs(t, err, samplefile.ErrMissing)
	assert.Contains(t, err.Error(), "Series")
	assert.NoFileExists(t, out)
}

func TestGenerate_InvalidRequestBeforeIO(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := samplefile.NewStore(filepath.Join(t.TempDir(), "absent"))
	out := filepath.Join(t.TempDir(), "tests.rs")

	_, err := newGenerator(t, store, 1, fetcher).Generate(context.Background(),
		Request{Kinds: []entity.Kind{entity.Area}, Count: 0}, out)
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, fetcher.calls)
	assert.NoFileExists(t, out)
}

func TestGenerate_FetchesWhenStoreAbsent(t *testing.T) {
	store := samplefile.NewStore(filepath.Join(t.TempDir(), "mbids"))
	fetcher := &fakeFetcher{fill: func() error {
		return store.Write(entity.Place, []string{"p1", "p2"})
	}}
	out := filepath.Join(t.TempDir(), "tests.rs")

	_, err := newGenerator(t, store, 1, fetcher).Generate(context.Background(),
		Request{Kinds: []entity.Kind{entity.Place}, Count: 2}, out)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
	assert.ElementsMatch(t, []string{"p1", "p2"}, renderedIDs(t, out))
}

func TestGenerate_SkipsFetchWhenStorePresent(t *testing.T) {
	store := newStore(t, map[entity.Kind][]string{entity.Place: {"p1"}})
	fetcher := &fakeFetcher{}

	_, err := newGenerator(t, store, 1, fetcher).Generate(context.Background(),
		Request{Kinds: []entity.Kind{entity.Place}, Count: 1}, filepath.Join(t.TempDir(), "tests.rs"))
	require.NoError(t, err)
	assert.Zero(t, fetcher.calls)
}

func TestGenerate_FetchFailure(t *testing.T) {
	store := samplefile.NewStore(filepath.Join(t.TempDir(), "mbids"))
	fetchErr := errors.New("download failed")
	fetcher := &fakeFetcher{err: fetchErr}

	_, err := newGenerator(t, store, 1, fetcher).Generate(context.Background(),
		Request{Kinds: []entity.Kind{entity.Place}, Count: 1}, filepath.Join(t.TempDir(), "tests.rs"))
	assert.ErrorIs(t, err, fetchErr)
}

func TestGenerate_FetchLeavesFileMissing(t *testing.T) {
	store := samplefile.NewStore(filepath.Join(t.TempDir(), "mbids"))
	fetcher := &fakeFetcher{fill: store.Init}

	_, err := newGenerator(t, store, 1, fetcher).Generate(context.Background(),
		Request{Kinds: []entity.Kind{entity.Track}, Count: 1}, filepath.Join(t.TempDir(), "tests.rs"))
	assert.ErrorIs(t, err, samplefile.ErrMissing)
}

func TestGenerate_Metrics(t *testing.T) {
	store := newStore(t, map[entity.Kind][]string{entity.URL: {"u1", "u2", "u3"}})
	metrics := observability.NewMetrics()
	g, err := New(Config{Store: store, Rand: sampling.NewRand(1), Metrics: metrics})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), Request{Kinds: []entity.Kind{entity.URL}, Count: 2},
		filepath.Join(t.TempDir(), "tests.rs"))
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CasesRendered.WithLabelValues("URL")))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Rand: sampling.NewRand(1)})
	assert.Error(t, err)
	_, err = New(Config{Store: samplefile.NewStore("x")})
	assert.Error(t, err)
}

func TestDefaultKinds(t *testing.T) {
	kinds := DefaultKinds()
	assert.Len(t, kinds, len(entity.All())-1)
	assert.NotContains(t, kinds, entity.Release)
}
