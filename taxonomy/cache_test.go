package taxonomy

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	entries   []Entry
	err       error
	failFirst int // when set, err is only returned for the first failFirst calls
	calls     int
}

func (f *fakeSource) FetchTaxonomy(ctx context.Context) ([]Entry, error) {
	f.calls++
	if f.err != nil && (f.failFirst == 0 || f.calls <= f.failFirst) {
		return nil, f.err
	}
	return f.entries, nil
}

func namesSource(names ...string) *fakeSource {
	src := &fakeSource{}
	for _, n := range names {
		src.entries = append(src.entries, Entry{CommonName: n})
	}
	return src
}

func TestCache_SuggestOrdering(t *testing.T) {
	c := NewCache(namesSource("Egret", "Pigeon", "Snowy Egret"), "")
	_, err := c.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Egret", "Snowy Egret"}, c.Suggest("eg", 0))
	assert.Equal(t, []string{"Egret", "Snowy Egret"}, c.Suggest("  EG ", 7))
}

func TestCache_SuggestPrefixBeforeContains(t *testing.T) {
	c := NewCache(namesSource("Little Egret", "Egyptian Goose", "Cattle Egret", "egret hybrid", "Great Egret"), "")
	_, err := c.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"egret hybrid", "Cattle Egret", "Great Egret", "Little Egret"},
		c.Suggest("egr", 0))
	assert.Equal(t, []string{"egret hybrid", "Egyptian Goose"}, c.Suggest("eg", 2))
}

func TestCache_SuggestShortQueryAndEmptyList(t *testing.T) {
	c := NewCache(namesSource("Egret"), "")
	assert.Empty(t, c.Suggest("eg", 0), "nothing loaded yet")

	_, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c.Suggest("e", 0))
	assert.Empty(t, c.Suggest("e", 0))
	assert.Empty(t, c.Suggest("   ", 0))
}

func TestCache_LoadFailureLeavesListEmpty(t *testing.T) {
	c := NewCache(&fakeSource{err: errors.New("network down")}, filepath.Join(t.TempDir(), "species.json"))
	names, err := c.Load(context.Background())
	require.Error(t, err)
	assert.Empty(t, names)
	assert.False(t, c.Loaded())
	assert.Empty(t, c.Suggest("egret", 0))
}

func TestCache_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "species.json")
	src := namesSource("Snowy Egret", "snowy egret", "Dodo")

	first := NewCache(src, path)
	names, err := first.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Snowy Egret", "Dodo"}, names)
	assert.Equal(t, 1, src.calls)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var persisted []string
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, names, persisted)

	// a second cache reads the snapshot without touching the source
	second := NewCache(src, path)
	names, err = second.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Snowy Egret", "Dodo"}, names)
	assert.Equal(t, 1, src.calls)
}

func TestCache_ReloadClearsMemo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "species.json")
	require.NoError(t, os.WriteFile(path, []byte(`["Egret"]`), 0644))

	c := NewCache(nil, path)
	_, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Egret"}, c.Suggest("eg", 0))

	require.NoError(t, os.WriteFile(path, []byte(`["Egret","Snowy Egret"]`), 0644))
	_, err = c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Egret", "Snowy Egret"}, c.Suggest("eg", 0))
}

func TestCache_LookupDetails(t *testing.T) {
	src := &fakeSource{entries: []Entry{
		{CommonName: "Snowy Egret", ScientificName: "Egretta thula", FamilyComName: "Herons, Egrets, and Bitterns", Order: "Pelecaniformes"},
		{CommonName: "Dodo", ScientificName: "Raphus cucullatus", FamilyComName: "Pigeons and Doves", Order: "Columbiformes", Extinct: true},
	}}
	c := NewCache(src, "")

	d, err := c.LookupDetails(context.Background(), "snowy EGRET")
	require.NoError(t, err)
	assert.Equal(t, Details{
		ScientificName: "Egretta thula",
		Family:         "Herons, Egrets, and Bitterns",
		Order:          "Pelecaniformes",
		Status:         StatusNotExtinct,
	}, d)

	d, err = c.LookupDetails(context.Background(), "Dodo")
	require.NoError(t, err)
	assert.Equal(t, StatusExtinct, d.Status)

	_, err = c.LookupDetails(context.Background(), "Snowy")
	assert.ErrorIs(t, err, ErrNotFound)

	src.err = errors.New("timeout")
	_, err = c.LookupDetails(context.Background(), "Dodo")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCache_LoadWithRetryRecovers(t *testing.T) {
	src := namesSource("Snowy Egret", "Dodo")
	src.err = errors.New("network down")
	src.failFirst = 2
	c := NewCache(src, "")

	names, err := c.LoadWithRetry(context.Background(), time.Second, time.Millisecond, 4*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"Snowy Egret", "Dodo"}, names)
	assert.Equal(t, 3, src.calls)
	assert.True(t, c.Loaded())
}

func TestCache_LoadWithRetryStopsWhenCancelled(t *testing.T) {
	c := NewCache(&fakeSource{err: errors.New("network down")}, "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	names, err := c.LoadWithRetry(ctx, time.Second, 5*time.Millisecond, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, names)
	assert.False(t, c.Loaded())
}

func TestCache_LookupFillsNamesAfterFailedLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "species.json")
	src := namesSource("Snowy Egret", "Little Egret")
	src.err = errors.New("network down")
	src.failFirst = 1
	c := NewCache(src, path)

	_, err := c.Load(context.Background())
	require.Error(t, err)
	assert.Empty(t, c.Suggest("egret", 0))

	_, err = c.LookupDetails(context.Background(), "Snowy Egret")
	require.NoError(t, err)
	assert.True(t, c.Loaded())
	assert.Equal(t, []string{"Little Egret", "Snowy Egret"}, c.Suggest("egret", 0))

	_, err = os.Stat(path)
	assert.NoError(t, err, "the adopted list is snapshotted")
}
