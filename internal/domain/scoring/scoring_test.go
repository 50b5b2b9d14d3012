package scoring

import (
	"testing"

	"github.com/kyudori/er-scout/internal/domain/player"
)

func repeatMatches(rank int, damage float64, n int) []player.Match {
	out := make([]player.Match, n)
	for i := range out {
		out[i] = player.Match{Rank: rank, DamageToPlayer: damage}
	}
	return out
}

func TestScore_AllCriteriaAtTopTier(t *testing.T) {
	t.Parallel()

	in := Input{
		Stats: player.SeasonStats{
			TotalGames:  100,
			Wins:        20,
			Top3Rate:    0.55,
			AverageRank: 3.8,
			CharacterUsage: []player.CharacterUsage{
				{CharacterID: 14, GamesPlayed: 45},
				{CharacterID: 7, GamesPlayed: 55},
			},
		},
		Recent: repeatMatches(3, 16000, 20),
	}

	// 15 rank + 20 winrate + 15 top3 + 20 concentration + 20 form rank + 10 form damage.
	got := Score(in)
	if got.Score != 100 {
		t.Fatalf("score = %d, want 100", got.Score)
	}
	if got.Tier != TierPurple {
		t.Fatalf("tier = %s, want purple", got.Tier)
	}
	if len(got.Strengths) != 3 {
		t.Fatalf("strengths = %v, want exactly 3 retained", got.Strengths)
	}
	// Cap keeps the earliest criteria in evaluation order.
	want := []string{"consistently high placement", "strong win rate", "frequent top-3 finishes"}
	for i, s := range want {
		if got.Strengths[i] != s {
			t.Fatalf("strengths[%d] = %q, want %q", i, got.Strengths[i], s)
		}
	}
	if len(got.MajorRisks) != 0 || len(got.MinorRisks) != 0 {
		t.Fatalf("risks = %v / %v, want none", got.MajorRisks, got.MinorRisks)
	}
}

func TestScore_ClampsToZero(t *testing.T) {
	t.Parallel()

	in := Input{
		Stats: player.SeasonStats{
			TotalGames:  60,
			Wins:        0,
			Top3Rate:    0.05,
			Top5Rate:    0.10,
			Top7Rate:    0.40,
			AverageRank: 7.5,
		},
		Recent: repeatMatches(8, 3000, 20),
	}

	got := Score(in)
	if got.Score != 0 {
		t.Fatalf("score = %d, want 0 after clamp", got.Score)
	}
	if got.Tier != TierOrange {
		t.Fatalf("tier = %s, want orange", got.Tier)
	}
}

func TestScore_CollapsePenalty(t *testing.T) {
	t.Parallel()

	base := player.SeasonStats{
		TotalGames:  100,
		Wins:        15,
		Top3Rate:    0.35,
		AverageRank: 4.2,
		CharacterUsage: []player.CharacterUsage{
			{CharacterID: 14, GamesPlayed: 30},
		},
	}

	wide := base
	wide.Top5Rate = 0.30
	wide.Top7Rate = 0.60
	got := Score(Input{Stats: wide, Recent: repeatMatches(4, 9000, 10)})
	if !containsString(got.MajorRisks, "frequent mid-placement elimination") {
		t.Fatalf("major risks = %v, want mid-placement elimination flagged", got.MajorRisks)
	}

	narrow := base
	narrow.Top5Rate = 0.30
	narrow.Top7Rate = 0.47
	penalized := Score(Input{Stats: narrow, Recent: repeatMatches(4, 9000, 10)})
	if !containsString(penalized.MinorRisks, "occasional mid-placement elimination") {
		t.Fatalf("minor risks = %v, want mid-placement noted", penalized.MinorRisks)
	}

	clean := base
	clean.Top5Rate = 0.30
	clean.Top7Rate = 0.40
	unpenalized := Score(Input{Stats: clean, Recent: repeatMatches(4, 9000, 10)})
	if unpenalized.Score-penalized.Score != 5 {
		t.Fatalf("minor gap penalty = %d, want 5", unpenalized.Score-penalized.Score)
	}
	if unpenalized.Score-got.Score != 10 {
		t.Fatalf("major gap penalty = %d, want 10", unpenalized.Score-got.Score)
	}
}

func TestScore_SlumpRisk(t *testing.T) {
	t.Parallel()

	in := Input{
		Stats: player.SeasonStats{
			TotalGames:  80,
			Wins:        10,
			AverageRank: 5.0,
		},
		Recent: repeatMatches(7, 5000, 20),
	}

	got := Score(in)
	if !containsString(got.MajorRisks, "recent slump with low damage output") {
		t.Fatalf("major risks = %v, want slump flagged", got.MajorRisks)
	}

	// High damage with the same poor placement is not a slump.
	in.Recent = repeatMatches(7, 9000, 20)
	got = Score(in)
	if containsString(got.MajorRisks, "recent slump with low damage output") {
		t.Fatalf("major risks = %v, slump flagged despite damage", got.MajorRisks)
	}
}

func TestScore_ShallowCharacterPoolRisk(t *testing.T) {
	t.Parallel()

	in := Input{
		Stats: player.SeasonStats{
			TotalGames:  100,
			Wins:        10,
			AverageRank: 5.0,
			CharacterUsage: []player.CharacterUsage{
				{CharacterID: 1, GamesPlayed: 10},
				{CharacterID: 2, GamesPlayed: 10},
			},
		},
	}

	got := Score(in)
	if !containsString(got.MinorRisks, "no settled character pool") {
		t.Fatalf("minor risks = %v, want character pool flagged", got.MinorRisks)
	}
}

func TestScore_SmallSampleConcentrationFlatAward(t *testing.T) {
	t.Parallel()

	small := Input{Stats: player.SeasonStats{TotalGames: 30, AverageRank: 9}}
	large := Input{Stats: player.SeasonStats{TotalGames: 60, AverageRank: 9}}

	// Below the concentration sample floor the criterion pays a flat 10;
	// at or above it, an empty usage list pays nothing and flags a risk.
	if got := Score(small).Score; got != 10 {
		t.Fatalf("small-sample score = %d, want 10", got)
	}
	if got := Score(large).Score; got != 0 {
		t.Fatalf("large-sample score = %d, want 0", got)
	}
}

func TestTierFor_Boundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score int
		want  Tier
	}{
		{0, TierOrange},
		{49, TierOrange},
		{50, TierGreen},
		{69, TierGreen},
		{70, TierPurple},
		{100, TierPurple},
	}
	for _, tc := range cases {
		if got := TierFor(tc.score); got != tc.want {
			t.Fatalf("TierFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestTierFor_Monotonic(t *testing.T) {
	t.Parallel()

	order := map[Tier]int{TierOrange: 0, TierGreen: 1, TierPurple: 2}
	prev := TierOrange
	for score := 0; score <= 100; score++ {
		tier := TierFor(score)
		if order[tier] < order[prev] {
			t.Fatalf("tier regressed from %s to %s at score %d", prev, tier, score)
		}
		prev = tier
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
