package api

import "yomu/internal/domain"

// Wire DTOs for the remote JSON API. Provider-backed fields arrive under
// inconsistent names depending on which upstream source produced them;
// the mapper normalizes them into canonical domain shapes before any
// business logic sees them.

type searchResponse struct {
	Results []titleDTO `json:"results"`
}

type titleDTO struct {
	ID                string `json:"id"`
	Source            string `json:"source"`
	Title             string `json:"title"`
	Cover             string `json:"cover"`
	ExternalCatalogID string `json:"externalCatalogId"`
}

type chaptersResponse struct {
	Chapters         []chapterDTO `json:"chapters"`
	Total            int          `json:"total"`
	ResolvedSourceID string       `json:"resolvedSourceId"`
	ResolvedTitleID  string       `json:"resolvedTitleId"`
}

type chapterDTO struct {
	ID       string `json:"id"`
	Number   string `json:"number"`
	Chapter  string `json:"chapter"` // legacy field name used by some sources
	Title    string `json:"title"`
	Language string `json:"language"`
	Group    string `json:"group"`
	Official bool   `json:"official"`
}

type pagesResponse struct {
	Pages []pageDTO `json:"pages"`
}

type pageDTO struct {
	URL     string `json:"url"`
	Referer string `json:"referer"`
}

type libraryResponse struct {
	Entries []domain.LibraryEntry `json:"entries"`
}

type healthResponse struct {
	Sources map[string]bool `json:"sources"`
}

type statusBody struct {
	Status domain.ReadingStatus `json:"status"`
}
