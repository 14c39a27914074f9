package api

import "yomu/internal/domain"

func mapTitles(dtos []titleDTO) []domain.TitleRef {
	refs := make([]domain.TitleRef, 0, len(dtos))
	for _, d := range dtos {
		refs = append(refs, domain.TitleRef{
			TitleID:           d.ID,
			Source:            d.Source,
			Title:             d.Title,
			Cover:             d.Cover,
			ExternalCatalogID: d.ExternalCatalogID,
		})
	}
	return refs
}

func mapChapters(dtos []chapterDTO) []domain.RawChapter {
	chapters := make([]domain.RawChapter, 0, len(dtos))
	for _, d := range dtos {
		number := d.Number
		if number == "" {
			number = d.Chapter
		}
		chapters = append(chapters, domain.RawChapter{
			ID:              d.ID,
			Number:          number,
			Title:           d.Title,
			Language:        d.Language,
			ScanlationGroup: d.Group,
			Official:        d.Official,
		})
	}
	return chapters
}

func mapPages(dtos []pageDTO) []domain.Page {
	pages := make([]domain.Page, 0, len(dtos))
	for _, d := range dtos {
		pages = append(pages, domain.Page{URL: d.URL, Referer: d.Referer})
	}
	return pages
}
