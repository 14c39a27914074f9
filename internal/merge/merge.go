// Package merge folds chapter listings fetched from several independent
// sources for the same logical title into one deduplicated, consistently
// ordered list annotated with per-entry source availability.
package merge

import (
	"sort"
	"strconv"
	"strings"

	"yomu/internal/domain"
)

// Merge folds per-source chapter lists into ChapterRecords. Records sharing
// an identity key are deduplicated; the primary source supplies the
// authoritative id/title/label fields when it carries the chapter. Sort
// order (ascending vs descending) is inferred once from the first list's
// natural order and applied uniformly.
func Merge(lists []domain.SourceChapters, primary string) []domain.ChapterRecord {
	if len(lists) == 0 {
		return nil
	}

	byKey := make(map[string]*domain.ChapterRecord)
	var order []string

	for _, list := range lists {
		for _, ch := range list.Chapters {
			key := identityKey(list.SourceID, ch)

			rec, ok := byKey[key]
			if !ok {
				rec = &domain.ChapterRecord{
					ID:              ch.ID,
					Number:          ch.Number,
					Title:           ch.Title,
					Language:        ch.Language,
					ScanlationGroup: ch.ScanlationGroup,
					Official:        ch.Official,
					SourceID:        list.SourceID,
				}
				byKey[key] = rec
				order = append(order, key)
			} else if list.SourceID == primary && rec.SourceID != primary {
				// The chapter a user opens must resolve against the
				// canonical source when it carries the chapter. Only the
				// primary's first row wins; duplicate rows within the
				// primary never displace it.
				rec.ID = ch.ID
				rec.Number = ch.Number
				rec.Title = ch.Title
				rec.Language = ch.Language
				rec.ScanlationGroup = ch.ScanlationGroup
				rec.Official = ch.Official
				rec.SourceID = primary
			}
			appendSibling(rec, list.SourceID)
		}
	}

	merged := make([]domain.ChapterRecord, 0, len(order))
	for _, key := range order {
		merged = append(merged, *byKey[key])
	}

	desc := descending(lists[0].Chapters)
	sort.SliceStable(merged, func(i, j int) bool {
		less := chapterLess(merged[i], merged[j])
		if desc {
			return !less && !chapterEqualOrder(merged[i], merged[j])
		}
		return less
	})

	return merged
}

// appendSibling records a carrying source once per record, so duplicate
// rows within one source's listing do not inflate the carrier set.
func appendSibling(rec *domain.ChapterRecord, sourceID string) {
	for _, s := range rec.SiblingSourceIDs {
		if s == sourceID {
			return
		}
	}
	rec.SiblingSourceIDs = append(rec.SiblingSourceIDs, sourceID)
}

// Unmerged maps a single source's raw list directly to records, for the
// fallback path when no list could be fetched for merging.
func Unmerged(list domain.SourceChapters) []domain.ChapterRecord {
	records := make([]domain.ChapterRecord, 0, len(list.Chapters))
	for _, ch := range list.Chapters {
		records = append(records, domain.ChapterRecord{
			ID:               ch.ID,
			Number:           ch.Number,
			Title:            ch.Title,
			Language:         ch.Language,
			ScanlationGroup:  ch.ScanlationGroup,
			Official:         ch.Official,
			SourceID:         list.SourceID,
			SiblingSourceIDs: []string{list.SourceID},
		})
	}
	return records
}

// LastChapter returns the title's final chapter: the maximum parsed chapter
// number, falling back to list order when nothing parses as numeric.
func LastChapter(records []domain.ChapterRecord) (domain.ChapterRecord, bool) {
	if len(records) == 0 {
		return domain.ChapterRecord{}, false
	}

	best := -1
	bestNum := 0.0
	for i, rec := range records {
		if n, ok := ParseNumber(rec.Number); ok {
			if best == -1 || n > bestNum {
				best = i
				bestNum = n
			}
		}
	}
	if best >= 0 {
		return records[best], true
	}
	return records[len(records)-1], true
}

// identityKey assigns the merge identity for one raw chapter: numeric/label
// value first, normalized title second, and as a last resort the chapter's
// own id (scoped by source so it merges with nothing).
func identityKey(sourceID string, ch domain.RawChapter) string {
	if n, ok := ParseNumber(ch.Number); ok {
		return "n:" + strconv.FormatFloat(n, 'f', -1, 64)
	}
	if label := strings.TrimSpace(ch.Number); label != "" {
		return "l:" + strings.ToLower(label)
	}
	if ch.Title != "" {
		return "t:" + domain.NormalizeTitle(ch.Title)
	}
	return "id:" + sourceID + ":" + ch.ID
}

// descending infers list order by comparing the first and last entries.
func descending(chapters []domain.RawChapter) bool {
	if len(chapters) < 2 {
		return false
	}
	first, last := chapters[0], chapters[len(chapters)-1]
	fn, fok := ParseNumber(first.Number)
	ln, lok := ParseNumber(last.Number)
	if fok && lok {
		return fn > ln
	}
	return labelOf(first) > labelOf(last)
}

// chapterLess orders two records ascending: by parsed numeric chapter value
// when both parse, lexicographic label comparison otherwise.
func chapterLess(a, b domain.ChapterRecord) bool {
	an, aok := ParseNumber(a.Number)
	bn, bok := ParseNumber(b.Number)
	if aok && bok {
		return an < bn
	}
	return a.Label() < b.Label()
}

func chapterEqualOrder(a, b domain.ChapterRecord) bool {
	an, aok := ParseNumber(a.Number)
	bn, bok := ParseNumber(b.Number)
	if aok && bok {
		return an == bn
	}
	return a.Label() == b.Label()
}

func labelOf(ch domain.RawChapter) string {
	if ch.Number != "" {
		return ch.Number
	}
	return ch.Title
}

// ParseNumber extracts the numeric chapter value from a label: "12",
// "12.5", or embedded forms like "Ch. 12".
func ParseNumber(label string) (float64, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return 0, false
	}
	if n, err := strconv.ParseFloat(label, 64); err == nil {
		return n, true
	}

	// Scan the first numeric run.
	start := -1
	for i, r := range label {
		if r >= '0' && r <= '9' {
			start = i
			break
		}
	}
	if start == -1 {
		return 0, false
	}
	end := start
	seenDot := false
	for end < len(label) {
		c := label[end]
		if c == '.' && !seenDot {
			seenDot = true
			end++
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		end++
	}
	n, err := strconv.ParseFloat(strings.TrimSuffix(label[start:end], "."), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
