package library

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yomu/internal/coordinator"
	"yomu/internal/domain"
	"yomu/internal/store"
)

func TestFetchChapters_MergesAcrossSourcesAndCaches(t *testing.T) {
	client := newFakeClient()
	client.chaptersFn = func(ctx context.Context, req domain.ChapterRequest) (domain.ChapterPage, error) {
		switch req.Source {
		case "srcA":
			return domain.ChapterPage{
				Chapters: []domain.RawChapter{
					{ID: "a1", Number: "1"},
					{ID: "a2", Number: "2"},
				},
				Total: 2,
			}, nil
		case "srcB":
			return domain.ChapterPage{
				Chapters: []domain.RawChapter{
					{ID: "b2", Number: "2", Title: "Duel"},
					{ID: "b3", Number: "3"},
				},
				Total: 2,
			}, nil
		}
		return domain.ChapterPage{}, domain.ErrNotFound
	}
	s := newTestService(t, client)

	ref := domain.TitleRef{TitleID: "t-1", Source: "srcA", Title: "Alpha"}
	records, err := s.FetchChapters(context.Background(), &ref, []string{"srcA", "srcB"})
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{records[0].Number, records[1].Number, records[2].Number})

	// The shared chapter keeps the primary source's row and records both
	// sources as carriers.
	assert.Equal(t, "a2", records[1].ID)
	assert.Equal(t, "srcA", records[1].SourceID)
	assert.ElementsMatch(t, []string{"srcA", "srcB"}, records[1].SiblingSourceIDs)

	// Second fetch is served from cache.
	calls := client.chapterCalls
	again, err := s.FetchChapters(context.Background(), &ref, []string{"srcA", "srcB"})
	require.NoError(t, err)
	assert.Equal(t, records, again)
	assert.Equal(t, calls, client.chapterCalls)
}

func TestFetchChapters_ResolvedIdentityRewritesRefAndRekeysEntry(t *testing.T) {
	client := newFakeClient()
	client.chaptersFn = func(ctx context.Context, req domain.ChapterRequest) (domain.ChapterPage, error) {
		return domain.ChapterPage{
			Chapters:         []domain.RawChapter{{ID: "c1", Number: "1"}},
			Total:            1,
			ResolvedSourceID: "srcA",
			ResolvedTitleID:  "t-42",
		}, nil
	}
	s := newTestService(t, client)
	seed(s, domain.LibraryEntry{Key: "agg:agg-1", TitleID: "agg-1", Source: "agg", Title: "Alpha"})

	ref := domain.TitleRef{TitleID: "agg-1", Source: "agg", ExternalCatalogID: "cat-1"}
	records, err := s.FetchChapters(context.Background(), &ref, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Working identity is overwritten in place.
	assert.Equal(t, "srcA", ref.Source)
	assert.Equal(t, "t-42", ref.TitleID)

	// The tracked entry was rekeyed, not duplicated.
	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "srcA:t-42", entries[0].Key)
}

func TestFetchChapters_NewerLoadSupersedesPending(t *testing.T) {
	started := make(chan struct{})
	client := newFakeClient()
	client.chaptersFn = func(ctx context.Context, req domain.ChapterRequest) (domain.ChapterPage, error) {
		if req.TitleID == "t-slow" {
			close(started)
			<-ctx.Done()
			return domain.ChapterPage{}, ctx.Err()
		}
		return domain.ChapterPage{
			Chapters: []domain.RawChapter{{ID: "f1", Number: "1"}},
			Total:    1,
		}, nil
	}
	s := newTestService(t, client)

	slowErr := make(chan error, 1)
	go func() {
		ref := domain.TitleRef{TitleID: "t-slow", Source: "srcA"}
		_, err := s.FetchChapters(context.Background(), &ref, nil)
		slowErr <- err
	}()
	<-started

	fastRef := domain.TitleRef{TitleID: "t-fast", Source: "srcA"}
	records, err := s.FetchChapters(context.Background(), &fastRef, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	select {
	case err := <-slowErr:
		assert.True(t, coordinator.IsCanceled(err))
	case <-time.After(2 * time.Second):
		t.Fatal("superseded chapter load did not return")
	}

	// The stale load cached nothing.
	fp := store.Fingerprint(store.PrefixChapters, map[string]string{
		"title": "t-slow", "source": "srcA", "catalog": "",
	})
	var cached []domain.ChapterRecord
	assert.False(t, s.store.GetCache(fp, &cached))
}

func TestFetchChapters_FailedSecondarySourceIsSkipped(t *testing.T) {
	client := newFakeClient()
	client.chaptersFn = func(ctx context.Context, req domain.ChapterRequest) (domain.ChapterPage, error) {
		if req.Source == "srcB" {
			return domain.ChapterPage{}, errors.New("listing unavailable")
		}
		return domain.ChapterPage{
			Chapters: []domain.RawChapter{{ID: "a1", Number: "1"}},
			Total:    1,
		}, nil
	}
	s := newTestService(t, client)

	ref := domain.TitleRef{TitleID: "t-1", Source: "srcA"}
	records, err := s.FetchChapters(context.Background(), &ref, []string{"srcA", "srcB"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "srcA", records[0].SourceID)
}

func TestFetchChapters_AllSourcesFailingSurfacesError(t *testing.T) {
	client := newFakeClient()
	client.chaptersFn = func(ctx context.Context, req domain.ChapterRequest) (domain.ChapterPage, error) {
		return domain.ChapterPage{}, domain.ErrServerOffline
	}
	s := newTestService(t, client)

	ref := domain.TitleRef{TitleID: "t-1", Source: "srcA"}
	_, err := s.FetchChapters(context.Background(), &ref, []string{"srcA", "srcB"})
	assert.ErrorIs(t, err, domain.ErrServerOffline)
}

func TestFetchChapters_PaginatesUntilTotal(t *testing.T) {
	client := newFakeClient()
	client.chaptersFn = func(ctx context.Context, req domain.ChapterRequest) (domain.ChapterPage, error) {
		page := domain.ChapterPage{Total: chapterPageSize + 1}
		if req.Offset == 0 {
			for i := 0; i < chapterPageSize; i++ {
				page.Chapters = append(page.Chapters, domain.RawChapter{ID: "c" + strconv.Itoa(i), Number: strconv.Itoa(i + 1)})
			}
		} else {
			page.Chapters = []domain.RawChapter{{ID: "last", Number: "101"}}
		}
		return page, nil
	}
	s := newTestService(t, client)

	ref := domain.TitleRef{TitleID: "t-1", Source: "srcA"}
	records, err := s.FetchChapters(context.Background(), &ref, nil)
	require.NoError(t, err)
	assert.Len(t, records, chapterPageSize+1)
	assert.Equal(t, 2, client.chapterCalls)
}

func TestFetchPages_CachesListing(t *testing.T) {
	client := newFakeClient()
	calls := 0
	client.pagesFn = func(ctx context.Context, chapterID, source string) ([]domain.Page, error) {
		calls++
		return []domain.Page{{URL: "https://img/1"}, {URL: "https://img/2"}}, nil
	}
	s := newTestService(t, client)

	pages, err := s.FetchPages(context.Background(), "c1", "srcA")
	require.NoError(t, err)
	require.Len(t, pages, 2)

	again, err := s.FetchPages(context.Background(), "c1", "srcA")
	require.NoError(t, err)
	assert.Equal(t, pages, again)
	assert.Equal(t, 1, calls)
}

func TestHealthySources_FiltersUnhealthyKeepsPrimary(t *testing.T) {
	client := newFakeClient()
	client.healthFn = func(ctx context.Context) (map[string]bool, error) {
		return map[string]bool{"srcA": false, "srcB": true, "srcC": false}, nil
	}
	s := newTestService(t, client)

	got := s.HealthySources(context.Background(), "srcA", []string{"srcA", "srcB", "srcC"})
	assert.Equal(t, []string{"srcA", "srcB"}, got)
}

func TestHealthySources_DegradesToConfiguredOrder(t *testing.T) {
	s := newTestService(t, newFakeClient())

	got := s.HealthySources(context.Background(), "srcB", []string{"srcA", "srcB", "srcC"})
	assert.Equal(t, []string{"srcB", "srcA", "srcC"}, got)
}
