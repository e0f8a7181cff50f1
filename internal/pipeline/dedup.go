// Package pipeline post-processes extracted records: cross-source phone
// deduplication followed by ordered exclusion rules.
package pipeline

import (
	"github.com/ksaito/jobharvest/internal/harvest"
)

// Deduplicate collapses records sharing a normalized phone number down to one
// winner each. Output order follows first appearance; when a later record
// beats the kept one it takes over the kept record's position. Records
// without a phone number pass through untouched.
//
// The winner between two records with the same phone:
//  1. the one with a posted date when only one has it, the newer posted date
//     when both do
//  2. the newer fetch time
//  3. the lower source priority number
func Deduplicate(records []harvest.JobRecord, priority func(source string) int) (kept []harvest.JobRecord, dropped int) {
	if priority == nil {
		priority = func(string) int { return 0 }
	}
	kept = make([]harvest.JobRecord, 0, len(records))
	byPhone := make(map[string]int)

	for _, rec := range records {
		phone := rec.NormalizedPhone
		if phone == "" {
			kept = append(kept, rec)
			continue
		}
		at, seen := byPhone[phone]
		if !seen {
			byPhone[phone] = len(kept)
			kept = append(kept, rec)
			continue
		}
		dropped++
		if beats(rec, kept[at], priority) {
			kept[at] = rec
		}
	}
	return kept, dropped
}

// beats reports whether challenger should replace incumbent.
func beats(challenger, incumbent harvest.JobRecord, priority func(string) int) bool {
	switch {
	case challenger.PostedDate != nil && incumbent.PostedDate == nil:
		return true
	case challenger.PostedDate == nil && incumbent.PostedDate != nil:
		return false
	case challenger.PostedDate != nil && incumbent.PostedDate != nil:
		if !challenger.PostedDate.Equal(*incumbent.PostedDate) {
			return challenger.PostedDate.After(*incumbent.PostedDate)
		}
	}
	if !challenger.FetchedAt.Equal(incumbent.FetchedAt) {
		return challenger.FetchedAt.After(incumbent.FetchedAt)
	}
	return priority(challenger.Source) < priority(incumbent.Source)
}
