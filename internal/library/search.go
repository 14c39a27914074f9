package library

import (
	"context"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	sahilm "github.com/sahilm/fuzzy"

	"yomu/internal/coordinator"
	"yomu/internal/domain"
	"yomu/internal/store"
)

// Search queries the remote catalog, cache first. A newer search of any
// query supersedes a still-pending one, so a slow earlier response can
// never clobber a faster later one. When the remote search fails (and was
// not superseded) the cached library is ranked locally as a fallback.
func (s *Service) Search(ctx context.Context, query string) ([]domain.TitleRef, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	fp := store.Fingerprint(store.PrefixSearch, map[string]string{"q": strings.ToLower(query)})
	var cached []domain.TitleRef
	if s.store.GetCache(fp, &cached) {
		s.logger.Debug("search cache hit", "query", query)
		return cached, nil
	}

	callCtx, done := s.coord.Begin(ctx, "search")
	defer done()

	var results []domain.TitleRef
	err := s.coord.Retry(callCtx, "search", func(ctx context.Context) error {
		var err error
		results, err = s.client.Search(ctx, query)
		return err
	})
	if err != nil {
		if coordinator.IsCanceled(err) {
			return nil, err
		}
		s.logger.Warn("remote search failed, falling back to local", "error", err)
		return s.localSearch(query), nil
	}

	ranked := rankResults(results, query)
	if err := s.store.SetCache(fp, ranked, searchTTL); err != nil {
		s.logger.Warn("failed to cache search results", "error", err)
	}
	return ranked, nil
}

// Similar returns similar-title recommendations, cache first.
func (s *Service) Similar(ctx context.Context, titleID string) ([]domain.TitleRef, error) {
	fp := store.Fingerprint(store.PrefixSimilar, map[string]string{"title": titleID})
	var cached []domain.TitleRef
	if s.store.GetCache(fp, &cached) {
		return cached, nil
	}

	var results []domain.TitleRef
	err := s.coord.Retry(ctx, "similar", func(ctx context.Context) error {
		var err error
		results, err = s.client.Similar(ctx, titleID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.SetCache(fp, results, similarTTL); err != nil {
		s.logger.Warn("failed to cache similar titles", "error", err)
	}
	return results, nil
}

// localSearch ranks the in-memory library against the query.
func (s *Service) localSearch(query string) []domain.TitleRef {
	entries := s.Entries()
	if len(entries) == 0 {
		return nil
	}

	titles := make([]string, len(entries))
	byTitle := make(map[string]domain.TitleRef, len(entries))
	for i, e := range entries {
		lower := strings.ToLower(e.Title)
		titles[i] = lower
		byTitle[lower] = e.Ref()
	}

	matches := fuzzy.RankFindFold(strings.ToLower(query), titles)
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	results := make([]domain.TitleRef, 0, len(matches))
	for _, match := range matches {
		if ref, ok := byTitle[match.Target]; ok {
			results = append(results, ref)
		}
	}
	return results
}

// rankResults orders remote search results by match quality.
func rankResults(refs []domain.TitleRef, query string) []domain.TitleRef {
	if len(refs) == 0 {
		return refs
	}

	query = strings.ToLower(query)

	type ranked struct {
		ref   domain.TitleRef
		score int
	}
	scored := make([]ranked, 0, len(refs))
	for _, ref := range refs {
		scored = append(scored, ranked{ref: ref, score: matchScore(strings.ToLower(ref.Title), query)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score < scored[j].score
	})

	results := make([]domain.TitleRef, len(scored))
	for i, r := range scored {
		results[i] = r.ref
	}
	return results
}

// matchScore calculates a match score for ranking; lower is better.
func matchScore(title, query string) int {
	if title == query {
		return 0
	}
	if strings.HasPrefix(title, query) {
		return 10
	}
	if strings.Contains(title, query) {
		return 50
	}
	return 100 + fuzzy.LevenshteinDistance(query, title)
}

// filterIndex implements sahilm/fuzzy.Source over the library for the
// incremental filter in the shell.
type filterIndex struct {
	entries []domain.LibraryEntry
	lower   []string
}

func (idx *filterIndex) String(i int) string { return idx.lower[i] }
func (idx *filterIndex) Len() int            { return len(idx.entries) }

// Filter fuzzy-matches the library against an incremental query.
func (s *Service) Filter(query string) []domain.LibraryEntry {
	entries := s.Entries()
	if query == "" {
		return entries
	}

	idx := &filterIndex{entries: entries, lower: make([]string, len(entries))}
	for i, e := range entries {
		idx.lower[i] = strings.ToLower(e.Title)
	}

	matches := sahilm.FindFrom(strings.ToLower(query), idx)
	results := make([]domain.LibraryEntry, 0, len(matches))
	for _, m := range matches {
		results = append(results, entries[m.Index])
	}
	return results
}
