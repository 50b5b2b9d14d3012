package synergy

import (
	"sort"

	"github.com/kyudori/er-scout/internal/domain/player"
)

// MinSharedGames is the smallest shared sample that supports a
// per-character claim. Entries below it are dropped.
const MinSharedGames = 5

// Entry aggregates outcomes across matches shared with one teammate
// character.
type Entry struct {
	CharacterID   int64
	GamesTogether int
	AvgRank       float64
	WinRate       float64
}

// Views are the two presentation slices derived from the same aggregate
// list.
type Views struct {
	Stabilizing []Entry
	Carrying    []Entry
}

type bucket struct {
	games   int
	rankSum int
	wins    int
}

// Aggregate walks the match window and folds per-teammate-character
// outcome counts. The subject player's own rows are excluded; matches
// without a teammate list are skipped. Output preserves the order in
// which characters were first encountered.
func Aggregate(subjectID string, matches []player.Match) []Entry {
	buckets := make(map[int64]*bucket)
	order := make([]int64, 0, 8)

	for _, m := range matches {
		if len(m.Teammates) == 0 {
			continue
		}
		for _, mate := range m.Teammates {
			if mate.UserID == subjectID {
				continue
			}
			b, ok := buckets[mate.CharacterID]
			if !ok {
				b = &bucket{}
				buckets[mate.CharacterID] = b
				order = append(order, mate.CharacterID)
			}
			b.games++
			b.rankSum += m.Rank
			if m.Rank == 1 {
				b.wins++
			}
		}
	}

	entries := make([]Entry, 0, len(order))
	for _, id := range order {
		b := buckets[id]
		if b.games < MinSharedGames {
			continue
		}
		entries = append(entries, Entry{
			CharacterID:   id,
			GamesTogether: b.games,
			AvgRank:       float64(b.rankSum) / float64(b.games),
			WinRate:       float64(b.wins) / float64(b.games),
		})
	}
	return entries
}

// BuildViews sorts the aggregate list two ways: lowest average rank
// first for the stabilizing view, highest win rate first for the
// carrying view. Both keep at most two entries; ties keep insertion
// order.
func BuildViews(entries []Entry) Views {
	stabilizing := make([]Entry, len(entries))
	copy(stabilizing, entries)
	sort.SliceStable(stabilizing, func(i, j int) bool {
		return stabilizing[i].AvgRank < stabilizing[j].AvgRank
	})

	carrying := make([]Entry, len(entries))
	copy(carrying, entries)
	sort.SliceStable(carrying, func(i, j int) bool {
		return carrying[i].WinRate > carrying[j].WinRate
	})

	return Views{
		Stabilizing: head(stabilizing, 2),
		Carrying:    head(carrying, 2),
	}
}

func head(entries []Entry, n int) []Entry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}
