// Package archive maintains the JSON feed a static site renders: one
// record per day, newest first, capped at a fixed number of days.
package archive

// KeywordEntry is one derived keyword as published in the archive.
type KeywordEntry struct {
	Word   string `json:"word"`
	Slot   uint64 `json:"slot"`
	Source string `json:"source"`
}

// PoemEntry is a day's poem as published in the archive.
type PoemEntry struct {
	Content     string `json:"content"`
	Model       string `json:"model"`
	GeneratedAt string `json:"generatedAt"`
}

// DayRecord bundles everything the archive holds for one day.
type DayRecord struct {
	Date     string         `json:"date"`
	Keywords []KeywordEntry `json:"keywords"`
	Poem     *PoemEntry     `json:"poem,omitempty"`
	PostURI  string         `json:"postUri,omitempty"`
}

// Merge returns the archive with today's record applied: an existing
// record for the same date is replaced where it stands, otherwise the
// record is inserted at the front. The result is truncated to limit
// entries when limit > 0. The input slice is not modified and record
// order is never re-sorted.
func Merge(records []DayRecord, today DayRecord, limit int) []DayRecord {
	out := make([]DayRecord, 0, len(records)+1)
	replaced := false
	for _, r := range records {
		if r.Date == today.Date {
			out = append(out, today)
			replaced = true
			continue
		}
		out = append(out, r)
	}
	if !replaced {
		out = append([]DayRecord{today}, out...)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
