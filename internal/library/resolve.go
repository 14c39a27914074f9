package library

import "yomu/internal/domain"

// ResolveKey resolves a title reference from partial information to the
// canonical library key, first match wins:
//
//  1. the exact source:titleId key is already tracked;
//  2. an entry's external catalog id equals the given one;
//  3. exactly one entry's title matches, case-folded and trimmed.
//
// Ambiguous title matches return "" rather than guessing; callers must
// treat "" as "no library membership" and fall back to snapshot-only
// persistence. The aggregator catalog a user searches against is often a
// different identity space than the per-source id the reading pipeline
// resolves to; this order keeps one title reached through two entry points
// from becoming two rows.
func (s *Service) ResolveKey(titleID, source, title, externalCatalogID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if titleID != "" && source != "" {
		key := domain.EntryKey(source, titleID)
		for _, e := range s.entries {
			if e.Key == key {
				return key
			}
		}
	}

	if externalCatalogID != "" {
		for _, e := range s.entries {
			if e.ExternalCatalogID == externalCatalogID {
				return e.Key
			}
		}
	}

	if title != "" {
		want := domain.NormalizeTitle(title)
		match := ""
		for _, e := range s.entries {
			if domain.NormalizeTitle(e.Title) == want {
				if match != "" {
					s.logger.Debug("ambiguous title match, refusing to guess", "title", title)
					return ""
				}
				match = e.Key
			}
		}
		return match
	}

	return ""
}
