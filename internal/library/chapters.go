package library

import (
	"context"
	"time"

	"yomu/internal/coordinator"
	"yomu/internal/domain"
	"yomu/internal/merge"
	"yomu/internal/store"
)

// Call-site TTLs for the tiered cache. The cache itself is TTL-agnostic.
const (
	searchTTL            = 5 * time.Minute
	chaptersTTL          = time.Hour
	completedChaptersTTL = 24 * time.Hour
	pagesTTL             = time.Hour
	similarTTL           = 30 * time.Minute

	chapterPageSize = 100
)

// FetchChapters returns the merged chapter view for a title across the
// given sources, consulting the cache first. A newer chapter load of any
// title supersedes a still-pending one, so a slow earlier listing can never
// land after a faster later one. The ref's identity is overwritten in place
// when the service resolves an aggregator reference to a concrete source; a
// library entry tracked under the old key is rekeyed, never duplicated.
//
// Secondary sources that fail are skipped; if every listing fails, one
// direct un-merged fetch of the primary source is attempted before giving
// up.
func (s *Service) FetchChapters(ctx context.Context, ref *domain.TitleRef, sources []string) ([]domain.ChapterRecord, error) {
	primary := ref.Source
	candidates := orderSources(primary, sources)

	callCtx, done := s.coord.Begin(ctx, "chapters")
	defer done()

	fp := store.Fingerprint(store.PrefixChapters, map[string]string{
		"title":   ref.TitleID,
		"source":  ref.Source,
		"catalog": ref.ExternalCatalogID,
	})
	var cached []domain.ChapterRecord
	if s.store.GetCache(fp, &cached) {
		s.logger.Debug("chapters cache hit", "title", ref.TitleID)
		return cached, nil
	}

	var lists []domain.SourceChapters
	var lastErr error
	for _, src := range candidates {
		chapters, err := s.fetchSourceChapters(callCtx, ref, src)
		if err != nil {
			if coordinator.IsCanceled(err) {
				return nil, err
			}
			s.logger.Warn("chapter listing failed, merging without source", "source", src, "error", err)
			lastErr = err
			continue
		}
		srcID := src
		if srcID == "" {
			srcID = ref.Source // filled in by identity resolution
		}
		lists = append(lists, domain.SourceChapters{SourceID: srcID, Chapters: chapters})
	}

	if primary == "" {
		primary = ref.Source
	}

	var records []domain.ChapterRecord
	switch {
	case len(lists) > 0:
		records = merge.Merge(lists, primary)
	default:
		// Fall back to the primary source's un-merged listing.
		chapters, err := s.fetchSourceChapters(callCtx, ref, primary)
		if err != nil {
			if coordinator.IsCanceled(err) {
				return nil, err
			}
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}
		records = merge.Unmerged(domain.SourceChapters{SourceID: primary, Chapters: chapters})
	}

	ttl := chaptersTTL
	if entry, ok := s.Entry(ref.Key()); ok && entry.Status == domain.StatusCompleted {
		ttl = completedChaptersTTL
	}
	if err := s.store.SetCache(fp, records, ttl); err != nil {
		s.logger.Warn("failed to cache chapter listing", "error", err)
	}
	return records, nil
}

// fetchSourceChapters pages through one source's listing, applying any
// resolved identity the server reports back to the caller's working ref.
func (s *Service) fetchSourceChapters(ctx context.Context, ref *domain.TitleRef, source string) ([]domain.RawChapter, error) {
	var all []domain.RawChapter
	offset := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req := domain.ChapterRequest{
			TitleID:           ref.TitleID,
			Source:            source,
			ExternalCatalogID: ref.ExternalCatalogID,
			Offset:            offset,
			Limit:             chapterPageSize,
		}

		var page domain.ChapterPage
		err := s.coord.Retry(ctx, "chapters."+source, func(ctx context.Context) error {
			var err error
			page, err = s.client.Chapters(ctx, req)
			return err
		})
		if err != nil {
			return nil, err
		}

		if page.ResolvedSourceID != "" || page.ResolvedTitleID != "" {
			s.applyResolvedIdentity(ref, page)
		}

		all = append(all, page.Chapters...)
		if len(all) >= page.Total || len(page.Chapters) == 0 {
			break
		}
		offset += chapterPageSize
	}

	return all, nil
}

// applyResolvedIdentity overwrites the working title identity with the
// concrete source/title ids the server resolved, and rewrites any library
// entry tracked under the old key in place.
func (s *Service) applyResolvedIdentity(ref *domain.TitleRef, page domain.ChapterPage) {
	oldKey := ref.Key()
	if page.ResolvedSourceID != "" {
		ref.Source = page.ResolvedSourceID
	}
	if page.ResolvedTitleID != "" {
		ref.TitleID = page.ResolvedTitleID
	}
	if ref.Key() == oldKey {
		return
	}
	s.logger.Debug("resolved title identity", "from", oldKey, "to", ref.Key())
	if _, tracked := s.Entry(oldKey); tracked {
		s.RekeyEntry(oldKey, ref.Source, ref.TitleID)
	}
}

// FetchPages returns a chapter's ordered page list, cache first.
func (s *Service) FetchPages(ctx context.Context, chapterID, source string) ([]domain.Page, error) {
	fp := store.Fingerprint(store.PrefixPages, map[string]string{
		"chapter": chapterID,
		"source":  source,
	})
	var cached []domain.Page
	if s.store.GetCache(fp, &cached) {
		return cached, nil
	}

	var pages []domain.Page
	err := s.coord.Retry(ctx, "pages", func(ctx context.Context) error {
		var err error
		pages, err = s.client.Pages(ctx, chapterID, source)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.SetCache(fp, pages, pagesTTL); err != nil {
		s.logger.Warn("failed to cache page listing", "error", err)
	}
	return pages, nil
}

// HealthySources orders the configured sources for merging: the primary
// first, then sources the server reports healthy. Health lookup failures
// degrade to the configured order.
func (s *Service) HealthySources(ctx context.Context, primary string, configured []string) []string {
	health, err := s.client.SourceHealth(ctx)
	if err != nil {
		s.logger.Debug("source health unavailable, using configured order", "error", err)
		return orderSources(primary, configured)
	}

	ordered := make([]string, 0, len(configured))
	for _, src := range configured {
		if src == primary || health[src] {
			ordered = append(ordered, src)
		}
	}
	return orderSources(primary, ordered)
}

// orderSources puts primary first and drops duplicates.
func orderSources(primary string, sources []string) []string {
	out := make([]string, 0, len(sources)+1)
	if primary != "" {
		out = append(out, primary)
	}
	for _, src := range sources {
		if src == primary || src == "" {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen == src {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, src)
		}
	}
	if len(out) == 0 {
		out = append(out, primary)
	}
	return out
}
