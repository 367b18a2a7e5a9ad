package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brookluers/chdtrend/internal/nhanes"
)

// archive serves fake survey files and counts hits per path.
type archive struct {
	mu   sync.Mutex
	hits map[string]int
	fail map[string]bool
}

func (a *archive) handler(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.hits[r.URL.Path]++
	fail := a.fail[r.URL.Path]
	a.mu.Unlock()

	if fail {
		http.Error(w, "gone", http.StatusNotFound)
		return
	}
	// Payload must clear the truncation threshold.
	w.Write(bytes.Repeat([]byte(filepath.Base(r.URL.Path)+"|"), 200))
}

func (a *archive) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.hits {
		n += c
	}
	return n
}

func newFetcher(t *testing.T, base string) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	return New(base, dir, &http.Client{}, zap.NewNop()), dir
}

func TestFetchIdempotent(t *testing.T) {

	ar := &archive{hits: make(map[string]int), fail: make(map[string]bool)}
	srv := httptest.NewServer(http.HandlerFunc(ar.handler))
	defer srv.Close()

	f, dir := newFetcher(t, srv.URL)
	require.NoError(t, f.Run(context.Background()))

	// Every continuous component plus the NHANES III adult file,
	// minus the three early cycles where HDL shares the TCHOL lab
	// file and the second reference hits the cache.
	wantFiles := len(nhanes.ContinuousCycles())*len(nhanes.Components) + 1 - 3
	first := ar.total()
	assert.Equal(t, wantFiles, first)

	demo := filepath.Join(dir, "2013-2014", "DEMO_H.xpt")
	before, err := os.ReadFile(demo)
	require.NoError(t, err)

	// Second run: warm cache, no downloads, bytes untouched.
	require.NoError(t, f.Run(context.Background()))
	assert.Equal(t, first, ar.total())

	after, err := os.ReadFile(demo)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFetchContinuesPastFailures(t *testing.T) {

	ar := &archive{hits: make(map[string]int), fail: make(map[string]bool)}
	srv := httptest.NewServer(http.HandlerFunc(ar.handler))
	defer srv.Close()

	// One broken file must not abort the rest.
	url, err := nhanes.FileURL("", "2013-2014", nhanes.MCQ)
	require.NoError(t, err)
	ar.fail[url] = true

	f, dir := newFetcher(t, srv.URL)
	require.NoError(t, f.Run(context.Background()))

	_, err = os.Stat(filepath.Join(dir, "2013-2014", "MCQ_H.xpt"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, "2013-2014", "DEMO_H.xpt"))
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, nhanes.CycleIII, nhanes.AdultDat))
	assert.NoError(t, err)
}

func TestNoTempFilesLeftBehind(t *testing.T) {

	ar := &archive{hits: make(map[string]int), fail: make(map[string]bool)}
	srv := httptest.NewServer(http.HandlerFunc(ar.handler))
	defer srv.Close()

	f, dir := newFetcher(t, srv.URL)
	require.NoError(t, f.Run(context.Background()))

	var leftovers []string
	err := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err == nil && !fi.IsDir() && filepath.Ext(path) != ".xpt" && fi.Name() != nhanes.AdultDat {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
