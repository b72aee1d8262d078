package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/birdphotos/database/dbtest"
	"github.com/camden-git/birdphotos/repository"
	"github.com/camden-git/birdphotos/taxonomy"
)

type fakeLookup struct {
	mu      sync.Mutex
	details map[string]taxonomy.Details
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeLookup) LookupDetails(ctx context.Context, commonName string) (taxonomy.Details, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	d, ok := f.details[strings.ToLower(commonName)]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return taxonomy.Details{}, ctx.Err()
		}
	}
	if err != nil {
		return taxonomy.Details{}, err
	}
	if !ok {
		return taxonomy.Details{}, taxonomy.ErrNotFound
	}
	return d, nil
}

var egretDetails = taxonomy.Details{
	ScientificName: "Egretta thula",
	Family:         "Herons, Egrets, and Bitterns",
	Order:          "Pelecaniformes",
	Status:         taxonomy.StatusNotExtinct,
}

func newLookup() *fakeLookup {
	return &fakeLookup{details: map[string]taxonomy.Details{"snowy egret": egretDetails}}
}

func TestSpeciesReconciler_CreatesWithMetadata(t *testing.T) {
	db := dbtest.Open(t)
	speciesRepo := repository.NewSpeciesRepository(db)
	r := NewSpeciesReconciler(speciesRepo, newLookup(), time.Second)
	ctx := context.Background()

	id, err := r.Resolve(ctx, "  Snowy Egret ")
	require.NoError(t, err)

	s, err := speciesRepo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Snowy Egret", s.CommonName)
	require.NotNil(t, s.ScientificName)
	assert.Equal(t, "Egretta thula", *s.ScientificName)
	require.NotNil(t, s.Status)
	assert.Equal(t, taxonomy.StatusNotExtinct, *s.Status)
}

func TestSpeciesReconciler_CaseInsensitiveIdentity(t *testing.T) {
	db := dbtest.Open(t)
	r := NewSpeciesReconciler(repository.NewSpeciesRepository(db), newLookup(), time.Second)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "Snowy Egret")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "snowy egret")
	require.NoError(t, err)
	third, err := r.Resolve(ctx, "SNOWY EGRET")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
}

func TestSpeciesReconciler_RejectsBlankNames(t *testing.T) {
	db := dbtest.Open(t)
	r := NewSpeciesReconciler(repository.NewSpeciesRepository(db), nil, 0)

	_, err := r.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestSpeciesReconciler_LookupFailureStillCreates(t *testing.T) {
	db := dbtest.Open(t)
	speciesRepo := repository.NewSpeciesRepository(db)
	lookup := newLookup()
	lookup.err = errors.New("connection refused")
	r := NewSpeciesReconciler(speciesRepo, lookup, time.Second)
	ctx := context.Background()

	id, err := r.Resolve(ctx, "Snowy Egret")
	require.NoError(t, err)

	s, err := speciesRepo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, s.MissingMetadata())

	// once the taxonomy answers again the existing row is backfilled
	lookup.mu.Lock()
	lookup.err = nil
	lookup.mu.Unlock()

	again, err := r.Resolve(ctx, "snowy egret")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	s, err = speciesRepo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, s.MissingMetadata())
}

func TestSpeciesReconciler_LookupTimeout(t *testing.T) {
	db := dbtest.Open(t)
	speciesRepo := repository.NewSpeciesRepository(db)
	lookup := newLookup()
	lookup.delay = time.Second
	r := NewSpeciesReconciler(speciesRepo, lookup, 20*time.Millisecond)

	start := time.Now()
	id, err := r.Resolve(context.Background(), "Snowy Egret")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	s, err := speciesRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, s.MissingMetadata())
}

func TestSpeciesReconciler_UnknownNameHasNoMetadata(t *testing.T) {
	db := dbtest.Open(t)
	speciesRepo := repository.NewSpeciesRepository(db)
	r := NewSpeciesReconciler(speciesRepo, newLookup(), time.Second)

	id, err := r.Resolve(context.Background(), "Backyard Mystery Bird")
	require.NoError(t, err)

	s, err := speciesRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, s.ScientificName)
	assert.Nil(t, s.Family)
}
