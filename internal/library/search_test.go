package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yomu/internal/coordinator"
	"yomu/internal/domain"
	"yomu/internal/store"
)

func TestSearch_RanksAndCaches(t *testing.T) {
	client := newFakeClient()
	calls := 0
	client.searchFn = func(ctx context.Context, query string) ([]domain.TitleRef, error) {
		calls++
		return []domain.TitleRef{
			{TitleID: "2", Source: "agg", Title: "Alphaville"},
			{TitleID: "1", Source: "agg", Title: "Alpha"},
			{TitleID: "3", Source: "agg", Title: "The Alpha Files"},
		}, nil
	}
	s := newTestService(t, client)

	results, err := s.Search(context.Background(), "alpha")
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Exact match first, then prefix, then substring.
	assert.Equal(t, "Alpha", results[0].Title)
	assert.Equal(t, "Alphaville", results[1].Title)

	again, err := s.Search(context.Background(), "Alpha")
	require.NoError(t, err)
	assert.Equal(t, results, again)
	assert.Equal(t, 1, calls)
}

func TestSearch_EmptyQueryIsNoop(t *testing.T) {
	client := newFakeClient()
	client.searchFn = func(ctx context.Context, query string) ([]domain.TitleRef, error) {
		t.Fatal("remote search should not run for an empty query")
		return nil, nil
	}
	s := newTestService(t, client)

	results, err := s.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestSearch_NewerQuerySupersedesPending(t *testing.T) {
	started := make(chan struct{})
	client := newFakeClient()
	client.searchFn = func(ctx context.Context, query string) ([]domain.TitleRef, error) {
		if query == "slow" {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []domain.TitleRef{{TitleID: "1", Source: "agg", Title: "Fast"}}, nil
	}
	s := newTestService(t, client)

	slowErr := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), "slow")
		slowErr <- err
	}()
	<-started

	results, err := s.Search(context.Background(), "fast")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Fast", results[0].Title)

	select {
	case err := <-slowErr:
		assert.True(t, coordinator.IsCanceled(err))
	case <-time.After(2 * time.Second):
		t.Fatal("superseded search did not return")
	}

	// Only the winning query's results were cached.
	var cached []domain.TitleRef
	assert.True(t, s.store.GetCache(store.Fingerprint(store.PrefixSearch, map[string]string{"q": "fast"}), &cached))
	assert.False(t, s.store.GetCache(store.Fingerprint(store.PrefixSearch, map[string]string{"q": "slow"}), &cached))
}

func TestSearch_FallsBackToLocalLibraryOnFailure(t *testing.T) {
	client := newFakeClient()
	client.searchFn = func(ctx context.Context, query string) ([]domain.TitleRef, error) {
		return nil, errors.New("upstream down")
	}
	s := newTestService(t, client)
	seed(s,
		domain.LibraryEntry{Key: "srcA:1", TitleID: "1", Source: "srcA", Title: "Vinland Saga"},
		domain.LibraryEntry{Key: "srcA:2", TitleID: "2", Source: "srcA", Title: "Berserk"},
	)

	results, err := s.Search(context.Background(), "vinland")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Vinland Saga", results[0].Title)
}

func TestFilter_FuzzyMatchesLibrary(t *testing.T) {
	s := newTestService(t, newFakeClient())
	seed(s,
		domain.LibraryEntry{Key: "srcA:1", TitleID: "1", Source: "srcA", Title: "Vinland Saga"},
		domain.LibraryEntry{Key: "srcA:2", TitleID: "2", Source: "srcA", Title: "Berserk"},
	)

	matches := s.Filter("brsk")
	require.Len(t, matches, 1)
	assert.Equal(t, "Berserk", matches[0].Title)

	assert.Len(t, s.Filter(""), 2)
}
