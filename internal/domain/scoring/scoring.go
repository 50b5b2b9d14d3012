package scoring

import "github.com/kyudori/er-scout/internal/domain/player"

type Tier string

const (
	TierPurple Tier = "purple"
	TierGreen  Tier = "green"
	TierOrange Tier = "orange"
)

const (
	// MinScoredGames is the smallest season sample that produces a scored
	// result. Callers must not invoke Score below it.
	MinScoredGames = 50

	// RecentFormWindow bounds how many of the newest matches feed the
	// recent-form criteria.
	RecentFormWindow = 20
)

// Input carries everything the additive model reads. Recent is expected
// newest first.
type Input struct {
	Stats  player.SeasonStats
	Recent []player.Match
}

type Result struct {
	Score      int
	Tier       Tier
	Strengths  []string
	MajorRisks []string
	MinorRisks []string
}

// Score applies the five-criterion additive point model. Each criterion
// contributes points independently; nothing multiplies. The final score
// is clamped to [0,100].
func Score(in Input) Result {
	stats := in.Stats
	total := 0
	var strengths, majorRisks, minorRisks []string

	// Average final rank, lower is better.
	switch rank := stats.AverageRank; {
	case rank <= 4.0:
		total += 15
		strengths = append(strengths, "consistently high placement")
	case rank <= 4.3:
		total += 12
	case rank <= 4.5:
		total += 8
	}

	// Win rate.
	switch winRate := stats.WinRate(); {
	case winRate >= 0.18:
		total += 20
		strengths = append(strengths, "strong win rate")
	case winRate >= 0.14:
		total += 14
	case winRate >= 0.10:
		total += 8
	}

	// Top-3 rate.
	switch top3 := stats.Top3Rate; {
	case top3 >= 0.50:
		total += 15
		strengths = append(strengths, "frequent top-3 finishes")
	case top3 >= 0.40:
		total += 12
	case top3 >= 0.30:
		total += 8
	case top3 >= 0.20:
		total += 4
	}

	// Character-usage concentration. Small season samples get a flat
	// award instead of a concentration read.
	if stats.TotalGames >= MinScoredGames {
		concentration := float64(stats.MaxCharacterGames()) / float64(stats.TotalGames)
		switch {
		case concentration >= 0.40:
			total += 20
			strengths = append(strengths, "deep character specialization")
		case concentration >= 0.25:
			total += 15
		case concentration >= 0.15:
			total += 8
		default:
			minorRisks = append(minorRisks, "no settled character pool")
		}
	} else {
		total += 10
	}

	// Recent form over the newest matches. Damage is an independent
	// secondary bonus, not a gate on the rank bonus.
	avgRank, avgDamage, counted := player.RecentForm(in.Recent, RecentFormWindow)
	if counted > 0 {
		switch {
		case avgRank <= 4:
			total += 20
			strengths = append(strengths, "sharp recent form")
		case avgRank <= 5:
			total += 12
		case avgRank <= 6:
			total += 5
		default:
			if avgDamage < 7000 {
				majorRisks = append(majorRisks, "recent slump with low damage output")
			}
		}

		switch {
		case avgDamage >= 11000:
			total += 10
		case avgDamage >= 9500:
			total += 6
		case avgDamage >= 8000:
			total += 3
		}
	}

	// Late-game collapse: a wide top7/top5 gap means the player often
	// survives to mid placements and dies there.
	switch gap := stats.Top7Rate - stats.Top5Rate; {
	case gap >= 0.25:
		total -= 10
		majorRisks = append(majorRisks, "frequent mid-placement elimination")
	case gap >= 0.15:
		total -= 5
		minorRisks = append(minorRisks, "occasional mid-placement elimination")
	}

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	if len(strengths) > 3 {
		strengths = strengths[:3]
	}

	return Result{
		Score:      total,
		Tier:       TierFor(total),
		Strengths:  strengths,
		MajorRisks: majorRisks,
		MinorRisks: minorRisks,
	}
}

func TierFor(score int) Tier {
	switch {
	case score >= 70:
		return TierPurple
	case score >= 50:
		return TierGreen
	default:
		return TierOrange
	}
}
